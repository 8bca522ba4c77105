package pipeline

import (
	"sync"

	"FlowRollup/internal/keying"
	"FlowRollup/internal/model"
	"FlowRollup/internal/summary"
	"FlowRollup/internal/topk"
	"FlowRollup/internal/watermark"
	"FlowRollup/internal/window"
)

// grouper derives a branch's compound key from a flow record.
type grouper func(f *model.FlowRecord) keying.CompoundKey

// branch owns one trigger engine and runs one grouping dimension end to end:
// keying, accumulation, and (for the ranked dimensions) top-K selection.
// topK == 0 means every key is emitted as a TOTAL summary with no ranking
// competition; topK > 0 means keys sharing an outer key compete for the top
// topK slots, emitted as TOPK summaries.
type branch struct {
	name    string
	group   grouper
	topK    int
	engine  *watermark.Engine

	mu      sync.Mutex
	keysByWindow map[window.Window]map[string]keying.CompoundKey
}

func newBranch(name string, group grouper, topK int, engine *watermark.Engine) *branch {
	return &branch{
		name:         name,
		group:        group,
		topK:         topK,
		engine:       engine,
		keysByWindow: make(map[window.Window]map[string]keying.CompoundKey),
	}
}

// add accumulates bytes for flow's key into window w, remembering the
// concrete CompoundKey so a later firing can rebuild a full FlowSummary from
// the flat string key the accumulator stores internally.
func (b *branch) add(w window.Window, f *model.FlowRecord, bytes model.BytesInOut, watermarkMs int64) bool {
	key := b.group(f)
	ok := b.engine.Add(w, key.GroupedByKey(), bytes, watermarkMs)
	if !ok {
		return false
	}

	b.mu.Lock()
	byKey, exists := b.keysByWindow[w]
	if !exists {
		byKey = make(map[string]keying.CompoundKey)
		b.keysByWindow[w] = byKey
	}
	byKey[key.GroupedByKey()] = key
	b.mu.Unlock()
	return true
}

// buildSummaries turns one Firing's accumulated values into the flat
// FlowSummary documents to write to the sink, applying top-K selection for
// ranked branches.
func (b *branch) buildSummaries(firing watermark.Firing) []model.FlowSummary {
	b.mu.Lock()
	keys := b.keysByWindow[firing.Window]
	b.mu.Unlock()

	if b.topK == 0 {
		summaries := make([]model.FlowSummary, 0, len(firing.Values))
		for keyStr, bytes := range firing.Values {
			key, ok := keys[keyStr]
			if !ok {
				continue
			}
			summaries = append(summaries, summary.Build(model.AggregationTotal, firing.Window, key, bytes))
		}
		return summaries
	}

	// Group competing entries by outer key (the exporter/interface they
	// refine), then select the top K within each group independently.
	byOuter := make(map[string][]topk.Entry)
	for keyStr, bytes := range firing.Values {
		key, ok := keys[keyStr]
		if !ok {
			continue
		}
		byOuter[key.OuterKey()] = append(byOuter[key.OuterKey()], topk.Entry{Key: keyStr, Bytes: bytes})
	}

	var summaries []model.FlowSummary
	for _, entries := range byOuter {
		top := topk.TopK(entries, b.topK)
		group := make([]model.FlowSummary, 0, len(top))
		for _, e := range top {
			key := keys[e.Key]
			group = append(group, summary.Build(model.AggregationTopK, firing.Window, key, e.Bytes))
		}
		summary.AssignRankings(group)
		summaries = append(summaries, group...)
	}
	return summaries
}

// pruneWindows drops key registries for windows the engine no longer
// tracks, preventing the registry from growing without bound as windows are
// evicted past their allowed lateness.
func (b *branch) pruneWindows() {
	active := make(map[window.Window]bool)
	for _, w := range b.engine.ActiveWindows() {
		active[w] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for w := range b.keysByWindow {
		if !active[w] {
			delete(b.keysByWindow, w)
		}
	}
}
