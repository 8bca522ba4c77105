package model

import (
	"fmt"
	"time"
)

// AggregationType distinguishes a total-bytes summary from a top-K entry.
type AggregationType string

const (
	AggregationTotal AggregationType = "TOTAL"
	AggregationTopK  AggregationType = "TOPK"
)

// ExporterFields is the flattened exporter identity embedded in a
// FlowSummary document.
type ExporterFields struct {
	ForeignSource string `json:"foreign_source"`
	ForeignID     string `json:"foreign_id"`
	NodeID        int64  `json:"node_id"`
}

// FlowSummary is the flat record emitted to sinks. Field names and nesting
// match the sink document contract bit-exactly.
type FlowSummary struct {
	Timestamp       int64           `json:"@timestamp"`
	RangeStartMs    int64           `json:"range_start"`
	RangeEndMs      int64           `json:"range_end"`
	Ranking         int64           `json:"ranking"`
	GroupedBy       string          `json:"grouped_by"`
	GroupedByKey    string          `json:"grouped_by_key"`
	AggregationType AggregationType `json:"aggregation_type"`
	BytesIngress    int64           `json:"bytes_ingress"`
	BytesEgress     int64           `json:"bytes_egress"`
	BytesTotal      int64           `json:"bytes_total"`

	Exporter ExporterFields `json:"exporter"`
	IfIndex  int32          `json:"if_index"`

	Application     string `json:"application,omitempty"`
	HostAddress     string `json:"host_address,omitempty"`
	ConversationKey string `json:"conversation_key,omitempty"`
}

// ID is the summary's upsert identity: {timestamp}_{groupedBy}_{groupedByKey}_{aggregationType}_{ranking}.
// It is stable across on-time and late re-firings of the same (window, key,
// ranking), which is what lets a sink upsert rather than duplicate.
func (s FlowSummary) ID() string {
	return fmt.Sprintf("%d_%s_%s_%s_%d", s.Timestamp, s.GroupedBy, s.GroupedByKey, s.AggregationType, s.Ranking)
}

// IndexStrategy derives a sink index name from a summary's timestamp.
type IndexStrategy string

const (
	IndexDaily   IndexStrategy = "DAILY"
	IndexHourly  IndexStrategy = "HOURLY"
	IndexMonthly IndexStrategy = "MONTHLY"
)

// IndexName formats the index name in UTC per the configured strategy:
// "{baseIndex}-yyyy-MM-dd" (DAILY), "{baseIndex}-yyyy-MM-dd-HH" (HOURLY) or
// "{baseIndex}-yyyy-MM" (MONTHLY).
func (s IndexStrategy) IndexName(baseIndex string, t time.Time) string {
	t = t.UTC()
	switch s {
	case IndexHourly:
		return fmt.Sprintf("%s-%s-%02d", baseIndex, t.Format("2006-01-02"), t.Hour())
	case IndexMonthly:
		return fmt.Sprintf("%s-%s", baseIndex, t.Format("2006-01"))
	default: // IndexDaily
		return fmt.Sprintf("%s-%s", baseIndex, t.Format("2006-01-02"))
	}
}
