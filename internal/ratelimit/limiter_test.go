package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinRate(t *testing.T) {
	l := New(2, time.Second)
	now := time.Unix(0, 0)
	if !l.AllowAt("site", now) {
		t.Fatal("first event should be allowed")
	}
	if !l.AllowAt("site", now) {
		t.Fatal("second event should be allowed")
	}
	if l.AllowAt("site", now) {
		t.Fatal("third event should be rate-limited")
	}
}

func TestAllowRefillsAfterInterval(t *testing.T) {
	l := New(1, time.Second)
	now := time.Unix(0, 0)
	if !l.AllowAt("site", now) {
		t.Fatal("first event should be allowed")
	}
	if l.AllowAt("site", now.Add(500*time.Millisecond)) {
		t.Fatal("should still be limited before the interval elapses")
	}
	if !l.AllowAt("site", now.Add(1100*time.Millisecond)) {
		t.Fatal("should refill after the interval elapses")
	}
}

func TestAllowIsPerCallSite(t *testing.T) {
	l := New(1, time.Second)
	now := time.Unix(0, 0)
	if !l.AllowAt("a", now) {
		t.Fatal("site a should be allowed")
	}
	if !l.AllowAt("b", now) {
		t.Fatal("site b should be independently allowed")
	}
}
