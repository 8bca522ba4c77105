package topk

import (
	"math/rand"
	"testing"

	"FlowRollup/internal/model"
)

func entriesS3() []Entry {
	// S3: five keys, totals {500,500,300,200,100}.
	return []Entry{
		{Key: "e", Bytes: model.BytesInOut{BytesIn: 500}},
		{Key: "a", Bytes: model.BytesInOut{BytesIn: 500}},
		{Key: "c", Bytes: model.BytesInOut{BytesIn: 300}},
		{Key: "b", Bytes: model.BytesInOut{BytesIn: 200}},
		{Key: "d", Bytes: model.BytesInOut{BytesIn: 100}},
	}
}

func TestTopKS3TiebreakByKey(t *testing.T) {
	got := TopK(entriesS3(), 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	// Both have total 500 and equal bytesIn, so the tertiary lexicographic
	// key tiebreak decides: "a" before "e".
	if got[0].Key != "a" || got[1].Key != "e" {
		t.Fatalf("got order %v, want [a, e]", got)
	}
}

func TestTopKDeterministicRegardlessOfArrivalOrder(t *testing.T) {
	base := entriesS3()
	want := TopK(base, 3)

	for i := 0; i < 20; i++ {
		shuffled := append([]Entry(nil), base...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := TopK(shuffled, 3)
		if len(got) != len(want) {
			t.Fatalf("length mismatch: %v vs %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("order dependency detected: got %v, want %v", got, want)
			}
		}
	}
}

func TestTopKFewerThanKEntries(t *testing.T) {
	entries := []Entry{{Key: "only", Bytes: model.BytesInOut{BytesIn: 1}}}
	got := TopK(entries, 10)
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
}

func TestTopKZeroK(t *testing.T) {
	if got := TopK(entriesS3(), 0); got != nil {
		t.Fatalf("expected nil for k=0, got %v", got)
	}
}

func TestCompareSecondaryTiebreak(t *testing.T) {
	a := Entry{Key: "a", Bytes: model.BytesInOut{BytesIn: 100, BytesOut: 0}}
	b := Entry{Key: "b", Bytes: model.BytesInOut{BytesIn: 50, BytesOut: 50}}
	// Equal totals (100), but a has a higher bytesIn, so a ranks first.
	if Compare(a, b) >= 0 {
		t.Fatalf("expected a to rank before b on the secondary bytesIn tiebreak")
	}
}
