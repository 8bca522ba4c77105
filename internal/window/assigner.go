package window

import (
	"log"
	"time"

	"FlowRollup/internal/metrics"
	"FlowRollup/internal/model"
	"FlowRollup/internal/ratelimit"
)

var skewLog = ratelimit.New(5, 10*time.Second)

// AssignedFlow pairs a window with the flow that was dispatched to it.
type AssignedFlow struct {
	Window Window
	Flow   *model.FlowRecord
}

// Assign returns one (window, flow) pair for every window that overlaps
// the flow's active interval [deltaSwitched, lastSwitched], per the C3
// contract: windows are aligned to sizeMs, and a flow landing exactly on a
// boundary belongs only to the later window.
func Assign(f *model.FlowRecord, sizeMs int64) []Window {
	start, end := f.ActiveInterval()
	t := alignDown(start, sizeMs)

	var windows []Window
	for t <= end {
		windows = append(windows, Of(t, sizeMs))
		t += sizeMs
	}
	return windows
}

// AssignWithSkewGuard is Assign plus the skew guard: it drops (and
// rate-limit warns about) any window whose start is older than
// currentInputTimestampMs - maxFlowDurationMs, bounding how far back a
// single laggard flow can drag the watermark.
func AssignWithSkewGuard(f *model.FlowRecord, sizeMs, maxFlowDurationMs, currentInputTimestampMs int64) []Window {
	floor := currentInputTimestampMs - maxFlowDurationMs
	all := Assign(f, sizeMs)

	out := all[:0:0]
	for _, w := range all {
		if w.StartMs < floor {
			metrics.FlowsSkewDropped.Inc()
			if skewLog.Allow("window.skew") {
				log.Printf("dropping flow window assignment older than allowed skew: window start=%d floor=%d flow=%+v", w.StartMs, floor, f)
			}
			continue
		}
		out = append(out, w)
	}
	return out
}
