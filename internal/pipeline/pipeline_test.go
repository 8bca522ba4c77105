package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"FlowRollup/internal/bus"
	"FlowRollup/internal/config"
	"FlowRollup/internal/model"
)

// fakeSource feeds a fixed slice of records and never produces a commit
// error, recording every commit call for assertions.
type fakeSource struct {
	records chan bus.Record
	commits chan uint64
	closed  bool
}

func newFakeSource(recs []bus.Record) *fakeSource {
	s := &fakeSource{
		records: make(chan bus.Record, len(recs)+1),
		commits: make(chan uint64, len(recs)+1),
	}
	for _, r := range recs {
		s.records <- r
	}
	return s
}

func (s *fakeSource) Records() <-chan bus.Record { return s.records }
func (s *fakeSource) Commit(partition int, offset uint64) error {
	s.commits <- offset
	return nil
}
func (s *fakeSource) Close() error {
	if !s.closed {
		s.closed = true
		close(s.records)
	}
	return nil
}

// fakeSink collects every batch written to it on a channel so the test can
// synchronize on the pipeline's asynchronous firing without sleeping on a
// fixed delay.
type fakeSink struct {
	batches chan []model.FlowSummary
}

func newFakeSink() *fakeSink {
	return &fakeSink{batches: make(chan []model.FlowSummary, 16)}
}

func (s *fakeSink) Write(summaries []model.FlowSummary) error {
	batch := make([]model.FlowSummary, len(summaries))
	copy(batch, summaries)
	s.batches <- batch
	return nil
}
func (s *fakeSink) Close() error { return nil }

// flakySink lets a test flip whether Write succeeds, to exercise the
// pipeline's behavior against a sink outage: writes attempted while
// setFailing(true) return an error, writes attempted otherwise land on
// writes like fakeSink's batches.
type flakySink struct {
	mu      sync.Mutex
	failing bool
	writes  chan []model.FlowSummary
}

func newFlakySink() *flakySink {
	return &flakySink{writes: make(chan []model.FlowSummary, 16)}
}

func (s *flakySink) setFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *flakySink) Write(summaries []model.FlowSummary) error {
	s.mu.Lock()
	failing := s.failing
	s.mu.Unlock()
	if failing {
		return fmt.Errorf("flakySink: simulated sink outage")
	}
	batch := make([]model.FlowSummary, len(summaries))
	copy(batch, summaries)
	s.writes <- batch
	return nil
}
func (s *flakySink) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Bus: config.BusConfig{
			BootstrapServers: "nats://unused",
			FlowSourceTopic:  "flows.raw",
			GroupID:          "test",
			AutoCommit:       true,
		},
		Sink: config.SinkConfig{
			FlowIndex:     "flow_summary",
			IndexStrategy: config.Daily,
		},
		Windowing: config.WindowingConfig{
			FixedWindowSizeMs:      60_000,
			MaxFlowDurationMs:      10_000_000,
			DefaultMaxInputDelayMs: 0,
			LateProcessingDelayMs:  10,
			AllowedLatenessMs:      1_000_000,
		},
		Branches: config.BranchesConfig{Total: true},
		TopK:     10,
	}
}

func flowOfBytes(numBytes int64, atMs int64) *model.FlowRecord {
	return &model.FlowRecord{
		Exporter:      model.Exporter{ForeignSource: "e1", NodeID: 1},
		InputSnmp:     7,
		DeltaSwitched: atMs,
		FirstSwitched: atMs,
		LastSwitched:  atMs,
		NumBytes:      numBytes,
		Direction:     model.DirectionIngress,
	}
}

func TestPipelineEmitsOnTimeSummaryOnWatermarkCrossing(t *testing.T) {
	source := newFakeSource([]bus.Record{
		{Partition: 0, Offset: 1, Flow: flowOfBytes(100, 1_000)},
		// The second flow's event time pushes the watermark past the first
		// window's end, triggering its on-time firing.
		{Partition: 0, Offset: 2, Flow: flowOfBytes(1, 120_000)},
	})
	sink := newFakeSink()

	p := New(testConfig(), source, sink, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	select {
	case batch := <-sink.batches:
		if len(batch) != 1 {
			t.Fatalf("expected exactly one summary in the first firing, got %d", len(batch))
		}
		if batch[0].BytesIngress != 100 {
			t.Fatalf("got BytesIngress=%d, want 100", batch[0].BytesIngress)
		}
		if batch[0].RangeStartMs != 0 || batch[0].RangeEndMs != 60_000 {
			t.Fatalf("unexpected window range: [%d,%d)", batch[0].RangeStartMs, batch[0].RangeEndMs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the on-time firing to reach the sink")
	}

	source.Close()
	p.Stop()
}

func TestPipelineCommitsOffsetsOnlyAfterEviction(t *testing.T) {
	source := newFakeSource([]bus.Record{
		{Partition: 0, Offset: 1, Flow: flowOfBytes(100, 1_000)},
	})
	sink := newFakeSink()

	p := New(testConfig(), source, sink, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	// With only one low-watermark flow processed, the window is nowhere
	// near its allowed-lateness eviction horizon: no commit should happen
	// yet.
	select {
	case off := <-source.commits:
		t.Fatalf("unexpected early commit of offset %d", off)
	case <-time.After(200 * time.Millisecond):
	}

	source.Close()
	p.Stop()

	// Stop's final sweep pushes the watermark to the end of time, which
	// must evict every remaining window and commit the pending offset.
	select {
	case off := <-source.commits:
		if off != 1 {
			t.Fatalf("got committed offset %d, want 1", off)
		}
	default:
		t.Fatal("expected the pending offset to be committed during shutdown")
	}
}

// TestPipelineWithholdsCommitOnSinkFailure covers the gap a failing sink
// leaves if offset commits are gated purely on elapsed watermark time: the
// on-time firing for the first window is attempted against a sink that
// never recovers, and the offset it covers must never be committed, even
// once Stop's final sweep pushes the watermark past every window's eviction
// horizon.
func TestPipelineWithholdsCommitOnSinkFailure(t *testing.T) {
	source := newFakeSource([]bus.Record{
		{Partition: 0, Offset: 1, Flow: flowOfBytes(100, 1_000)},
		// Pushes the watermark past the first window's end, so its on-time
		// firing is attempted (and, since the sink is down, fails) well
		// before shutdown.
		{Partition: 0, Offset: 2, Flow: flowOfBytes(1, 120_000)},
	})
	sink := newFlakySink()
	sink.setFailing(true)

	p := New(testConfig(), source, sink, nil, nil)
	p.SetWriteBackoffForTest(time.Millisecond, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	// Give the worker time to process both records and exhaust the bounded
	// retries on the first window's firing.
	time.Sleep(200 * time.Millisecond)

	source.Close()
	p.Stop()

	select {
	case off := <-source.commits:
		t.Fatalf("expected no offset commit while the sink never recovers, got commit of offset %d", off)
	default:
	}
}

// TestPipelineCommitsAfterSinkRecovers is the converse of the failure case:
// once the flakySink starts succeeding again, the queued batch drains and
// the withheld offsets become safe to commit. The retry only happens on the
// next advanceWatermark/checkLateFirings pass, so recovery is observed by
// forcing Stop's final sweep rather than waiting out the late-firing ticker.
func TestPipelineCommitsAfterSinkRecovers(t *testing.T) {
	source := newFakeSource([]bus.Record{
		{Partition: 0, Offset: 1, Flow: flowOfBytes(100, 1_000)},
		{Partition: 0, Offset: 2, Flow: flowOfBytes(1, 120_000)},
	})
	sink := newFlakySink()
	sink.setFailing(true)

	p := New(testConfig(), source, sink, nil, nil)
	p.SetWriteBackoffForTest(time.Millisecond, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	time.Sleep(200 * time.Millisecond)
	sink.setFailing(false)

	source.Close()
	p.Stop()

	select {
	case batch := <-sink.writes:
		if len(batch) != 1 {
			t.Fatalf("expected exactly one summary per window firing, got %d", len(batch))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the recovered sink to receive the backlogged batch")
	}

	// commitSafeOffsets advances through the whole contiguous run of evicted
	// offsets in one pass, so recovery commits the highest of the two once
	// both windows are acknowledged, not offset 1 in isolation.
	select {
	case off := <-source.commits:
		if off != 2 {
			t.Fatalf("got committed offset %d, want 2", off)
		}
	default:
		t.Fatal("expected the offsets to be committed once the backlog drained")
	}
}
