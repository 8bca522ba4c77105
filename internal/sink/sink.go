// Package sink implements the idempotent document-store writers flow
// summaries are upserted into. A sink.DocumentSink is expected to
// deduplicate by FlowSummary.ID(): re-delivering the same summary (as
// happens whenever a late pane re-fires a window) must overwrite the
// previous document rather than create a duplicate.
package sink

import (
	"strings"
	"time"

	"FlowRollup/internal/model"
)

// DocumentSink persists flow summaries into an index/table that rolls over
// per the configured IndexStrategy, upserting by summary ID.
type DocumentSink interface {
	// Write upserts a batch of summaries. Implementations must tolerate
	// repeated delivery of a summary with an ID already present.
	Write(summaries []model.FlowSummary) error

	Close() error
}

// tableNameFor derives the rolling table/index name for a summary from its
// timestamp and the sink's configured strategy, sanitized into a valid SQL
// identifier (IndexName's hyphens aren't legal in a ClickHouse or SQLite
// table name).
func tableNameFor(baseIndex string, strategy model.IndexStrategy, timestampMs int64) string {
	name := strategy.IndexName(baseIndex, time.UnixMilli(timestampMs))
	return strings.ReplaceAll(name, "-", "_")
}

// groupBySummaryTable partitions summaries by their rolled-over table name.
func groupBySummaryTable(summaries []model.FlowSummary, baseIndex string, strategy model.IndexStrategy) map[string][]model.FlowSummary {
	groups := make(map[string][]model.FlowSummary)
	for _, sm := range summaries {
		name := tableNameFor(baseIndex, strategy, sm.Timestamp)
		groups[name] = append(groups[name], sm)
	}
	return groups
}
