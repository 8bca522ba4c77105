// Package window implements fixed, epoch-aligned windows and the assigner
// that dispatches a flow to every window its active interval touches.
package window

import "fmt"

// Window is the half-open interval [StartMs, EndMs) on event-time, aligned
// to StartMs % size == 0 for the configured window size.
type Window struct {
	StartMs int64
	EndMs   int64
}

// Of returns the window of the given size starting at startMs.
func Of(startMs, sizeMs int64) Window {
	return Window{StartMs: startMs, EndMs: startMs + sizeMs}
}

// Contains reports whether t falls in [StartMs, EndMs).
func (w Window) Contains(t int64) bool {
	return t >= w.StartMs && t < w.EndMs
}

// Overlaps reports whether the closed interval [start, end] intersects w.
func (w Window) Overlaps(start, end int64) bool {
	return start < w.EndMs && end >= w.StartMs
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d)", w.StartMs, w.EndMs)
}

// alignDown returns the largest multiple of sizeMs that is <= t.
func alignDown(t, sizeMs int64) int64 {
	if t >= 0 {
		return (t / sizeMs) * sizeMs
	}
	// Floor division for negative timestamps (only reachable with
	// pre-epoch event times, which the pipeline otherwise never sees).
	q := t / sizeMs
	if t%sizeMs != 0 {
		q--
	}
	return q * sizeMs
}
