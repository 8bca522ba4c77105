// Package metrics holds the Prometheus instrumentation exposed by the
// engine's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FlowsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "flowrollup",
		Name:      "flows_consumed_total",
		Help:      "Total number of flow records consumed from the bus.",
	}, []string{"partition"})

	FlowsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "flowrollup",
		Name:      "flows_malformed_total",
		Help:      "Total number of flow records dropped for failing to decode.",
	})

	FlowsSkewDropped = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "flowrollup",
		Name:      "flows_skew_dropped_total",
		Help:      "Total number of (window, flow) assignments dropped by the skew guard for being too far behind the current input timestamp.",
	})

	FlowsDeltaSwitchedSynthesized = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "flowrollup",
		Name:      "delta_switched_synthesized_total",
		Help:      "Total number of flow records whose deltaSwitched was defaulted to firstSwitched because it arrived unset.",
	})

	WindowsAssignedPerFlow = promauto.NewHistogram(prometheus.HistogramOpts{
		Subsystem: "flowrollup",
		Name:      "windows_assigned_per_flow",
		Help:      "Distribution of the number of fixed windows a single flow record was split across.",
		Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
	})

	SummariesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "flowrollup",
		Name:      "summaries_emitted_total",
		Help:      "Total number of flow summaries emitted to the document sink, labeled by branch and pane kind.",
	}, []string{"branch", "pane"})

	SinkWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "flowrollup",
		Name:      "sink_write_errors_total",
		Help:      "Total number of failed document-sink write attempts.",
	}, []string{"branch"})

	SinkWriteRetriesExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "flowrollup",
		Name:      "sink_write_retries_exhausted_total",
		Help:      "Total number of batches that exhausted writeBatch's bounded retries and were queued for later retry, withholding offset commits for the windows they cover.",
	}, []string{"branch"})

	SinkWriteLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "flowrollup",
		Name:      "sink_write_latency_seconds",
		Help:      "Latency of document-sink batch writes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"branch"})

	WatermarkLagSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "flowrollup",
		Name:      "watermark_lag_seconds",
		Help:      "Current lag between wall-clock processing time and each partition's own watermark.",
	}, []string{"partition"})

	OffsetsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "flowrollup",
		Name:      "offsets_committed_total",
		Help:      "Total number of bus offsets committed, labeled by partition.",
	}, []string{"partition"})
)
