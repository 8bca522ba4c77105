package alloc

import (
	"testing"

	"FlowRollup/internal/model"
	"FlowRollup/internal/window"
)

func TestAllocateS1ProportionalSplit(t *testing.T) {
	f := &model.FlowRecord{DeltaSwitched: 1000, LastSwitched: 61_000, NumBytes: 120, Direction: model.DirectionIngress}
	w0 := window.Of(0, 60_000)
	w1 := window.Of(60_000, 60_000)

	b0, ok := Allocate(w0, f)
	if !ok {
		t.Fatal("expected window 0 to receive bytes")
	}
	if b0.BytesIn != 118 {
		t.Fatalf("window 0: got %d bytes, want 118", b0.BytesIn)
	}

	b1, ok := Allocate(w1, f)
	if !ok {
		t.Fatal("expected window 1 to receive bytes")
	}
	if b1.BytesIn != 2 {
		t.Fatalf("window 1: got %d bytes, want 2", b1.BytesIn)
	}
}

func TestAllocateZeroDurationFullyContained(t *testing.T) {
	f := &model.FlowRecord{DeltaSwitched: 5000, LastSwitched: 5000, NumBytes: 500, Direction: model.DirectionEgress}
	w := window.Of(0, 60_000)
	b, ok := Allocate(w, f)
	if !ok {
		t.Fatal("expected full containment to allocate")
	}
	if b.BytesOut != 500 {
		t.Fatalf("got %d, want 500", b.BytesOut)
	}
	if b.BytesIn != 0 {
		t.Fatalf("egress flow must not contribute ingress bytes")
	}
}

func TestAllocateZeroDurationOutsideWindowDrops(t *testing.T) {
	// S6: a zero-duration flow straddling no window boundary but outside
	// all current windows is dropped.
	f := &model.FlowRecord{DeltaSwitched: 5000, LastSwitched: 5000, NumBytes: 500}
	w := window.Of(60_000, 60_000)
	_, ok := Allocate(w, f)
	if ok {
		t.Fatal("expected drop for a window that does not contain the flow")
	}
}

func TestAllocateNegativeDurationDrops(t *testing.T) {
	f := &model.FlowRecord{DeltaSwitched: 10_000, LastSwitched: 5000, NumBytes: 500}
	w := window.Of(0, 60_000)
	_, ok := Allocate(w, f)
	if ok {
		t.Fatal("expected drop for negative duration")
	}
}

func TestByteConservationAcrossWindows(t *testing.T) {
	// Summed allocated bytes across all spanned windows must equal numBytes,
	// up to floor rounding bounded by the number of windows.
	f := &model.FlowRecord{DeltaSwitched: 1000, LastSwitched: 185_000, NumBytes: 10_000, Direction: model.DirectionIngress}
	windows := window.Assign(f, 60_000)

	var total int64
	for _, w := range windows {
		b, ok := Allocate(w, f)
		if !ok {
			t.Fatalf("window %v unexpectedly dropped", w)
		}
		total += b.Total()
	}

	loss := f.NumBytes - total
	if loss < 0 || loss > int64(len(windows)) {
		t.Fatalf("byte conservation violated: numBytes=%d total=%d loss=%d windows=%d", f.NumBytes, total, loss, len(windows))
	}
}

func TestDirectionExclusivity(t *testing.T) {
	// Exactly one of in/out must be set per flow.
	ingress := &model.FlowRecord{DeltaSwitched: 0, LastSwitched: 0, NumBytes: 42, Direction: model.DirectionIngress}
	egress := &model.FlowRecord{DeltaSwitched: 0, LastSwitched: 0, NumBytes: 42, Direction: model.DirectionEgress}
	w := window.Of(0, 60_000)

	bi, _ := Allocate(w, ingress)
	if bi.BytesIn == 0 || bi.BytesOut != 0 {
		t.Fatalf("ingress flow must only set bytesIn: %+v", bi)
	}
	be, _ := Allocate(w, egress)
	if be.BytesOut == 0 || be.BytesIn != 0 {
		t.Fatalf("egress flow must only set bytesOut: %+v", be)
	}
}
