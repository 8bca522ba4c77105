// Package watermark tracks per-partition event-time watermarks and the
// window pane lifecycle (on-time firing, late firing, allowed-lateness
// eviction) those watermarks drive.
package watermark

import "sync"

// Tracker maintains a monotonically non-decreasing watermark per source
// partition and exposes the global watermark as the minimum across all of
// them.
type Tracker struct {
	mu         sync.Mutex
	partitions map[int]int64
}

// NewTracker creates an empty watermark tracker.
func NewTracker() *Tracker {
	return &Tracker{partitions: make(map[int]int64)}
}

// Observe reports a record seen on partition with the given event time and
// the configured max input delay, and returns the partition's (possibly
// unchanged) watermark. The partition watermark never decreases even if a
// later observation implies an earlier candidate.
func (t *Tracker) Observe(partition int, eventTimeMs, maxInputDelayMs int64) int64 {
	candidate := eventTimeMs - maxInputDelayMs

	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.partitions[partition]; !ok || candidate > current {
		t.partitions[partition] = candidate
	}
	return t.partitions[partition]
}

// Global returns the minimum watermark across all observed partitions. It
// returns (0, false) if no partition has been observed yet.
func (t *Tracker) Global() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.partitions) == 0 {
		return 0, false
	}
	min := int64(1<<63 - 1)
	for _, wm := range t.partitions {
		if wm < min {
			min = wm
		}
	}
	return min, true
}
