// Package bus defines the partitioned, ordered, replayable message bus
// contracts the pipeline reads flow records from and publishes summaries to,
// and a NATS JetStream realization of both.
package bus

import "FlowRollup/internal/model"

// Record is one decoded flow record pulled off the bus, tagged with the
// partition and offset it was read from so the pipeline can commit offsets
// only after a sink has acknowledged the summaries derived from it.
type Record struct {
	Partition int
	Offset    uint64
	Flow      *model.FlowRecord
}

// Source is a partitioned, ordered, replayable source of flow records.
// Implementations deliver records in partition order but may interleave
// partitions; callers must not assume ordering across partitions.
type Source interface {
	// Records returns a channel of decoded records. The channel is closed
	// when the source is closed.
	Records() <-chan Record

	// Commit durably records that every record up to and including offset
	// on partition has been fully processed and safely acknowledged by all
	// downstream sinks.
	Commit(partition int, offset uint64) error

	// Close stops consuming and releases the underlying connection.
	Close() error
}

// TopicSink republishes derived summaries to a topic on the bus, for
// downstream consumers that want the rollup stream rather than the document
// store.
type TopicSink interface {
	Publish(summary *model.FlowSummary) error
	Close() error
}
