// Package alloc implements the proportional byte allocator: splitting a
// flow's byte count across the windows it spans, by time overlap.
package alloc

import (
	"log"
	"time"

	"FlowRollup/internal/model"
	"FlowRollup/internal/ratelimit"
	"FlowRollup/internal/window"
)

var warnLog = ratelimit.New(5, 10*time.Second)

// Allocate computes the BytesInOut contribution of flow f to window w. The
// second return value is false when the pair should be dropped (negative
// duration, or no actual overlap with w).
func Allocate(w window.Window, f *model.FlowRecord) (model.BytesInOut, bool) {
	durationMs := f.DurationMs()

	if durationMs < 0 {
		if warnLog.Allow("alloc.negative_duration") {
			log.Printf("dropping flow with negative duration %dms: %+v", durationMs, f)
		}
		return model.BytesInOut{}, false
	}

	if durationMs == 0 {
		start, end := f.ActiveInterval()
		if start >= w.StartMs && end <= w.EndMs {
			return model.FromFlow(f, 1.0), true
		}
		return model.BytesInOut{}, false
	}

	start, end := f.ActiveInterval()
	overlapMs := min64(end, w.EndMs) - max64(start, w.StartMs)
	if overlapMs <= 0 {
		return model.BytesInOut{}, false
	}

	multiplier := float64(overlapMs) / float64(durationMs)
	return model.FromFlow(f, multiplier), true
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
