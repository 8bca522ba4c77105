package watermark

import "testing"

func TestWatermarkMonotonicPerPartition(t *testing.T) {
	// Successive watermarks must never decrease.
	tr := NewTracker()
	wm1 := tr.Observe(0, 100_000, 5_000)
	if wm1 != 95_000 {
		t.Fatalf("got %d, want 95000", wm1)
	}
	// A later observation with an earlier event time must not pull the
	// watermark backwards.
	wm2 := tr.Observe(0, 50_000, 5_000)
	if wm2 < wm1 {
		t.Fatalf("watermark decreased: %d -> %d", wm1, wm2)
	}
	wm3 := tr.Observe(0, 200_000, 5_000)
	if wm3 != 195_000 {
		t.Fatalf("got %d, want 195000", wm3)
	}
}

func TestGlobalWatermarkIsMinAcrossPartitions(t *testing.T) {
	tr := NewTracker()
	tr.Observe(0, 100_000, 0)
	tr.Observe(1, 50_000, 0)
	tr.Observe(2, 200_000, 0)

	global, ok := tr.Global()
	if !ok {
		t.Fatal("expected a global watermark once partitions have been observed")
	}
	if global != 50_000 {
		t.Fatalf("got %d, want 50000 (the slowest partition)", global)
	}
}

func TestGlobalWatermarkUnknownBeforeAnyObservation(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.Global(); ok {
		t.Fatal("expected no global watermark before any partition reports")
	}
}
