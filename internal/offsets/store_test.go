package offsets

import (
	"context"
	"testing"
)

// newTestStore connects to a local Redis instance and skips the test if one
// isn't reachable; these tests exercise the real Lua script rather than a
// mock, so they require redis-server running on the default port.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("localhost:6379", 0, "flowrollup-test")
	if err != nil {
		t.Skipf("no local redis available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCommitIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Commit(ctx, 0, 100); err != nil {
		t.Fatalf("commit 100 failed: %v", err)
	}
	if err := s.Commit(ctx, 0, 50); err != nil {
		t.Fatalf("commit 50 failed: %v", err)
	}

	got, ok, err := s.Committed(ctx, 0)
	if err != nil {
		t.Fatalf("read committed offset: %v", err)
	}
	if !ok {
		t.Fatal("expected a committed offset")
	}
	if got != 100 {
		t.Fatalf("got %d, want 100 (commit must not move backwards)", got)
	}
}

func TestCommittedUnknownPartition(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Committed(context.Background(), 999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no committed offset for a partition that was never committed")
	}
}
