// Package pipeline wires the source, windowing, combining, top-K, and sink
// stages into the running engine: a worker pool over the input channel,
// dedicated ticker-driven goroutines for periodic work, and a two-phase Stop
// that drains in-flight work before declaring the pipeline down.
package pipeline

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"FlowRollup/internal/alloc"
	"FlowRollup/internal/bus"
	"FlowRollup/internal/config"
	"FlowRollup/internal/keying"
	"FlowRollup/internal/metrics"
	"FlowRollup/internal/model"
	"FlowRollup/internal/offsets"
	"FlowRollup/internal/sink"
	"FlowRollup/internal/watermark"
	"FlowRollup/internal/window"
)

// pendingCommit is one not-yet-safe-to-commit offset: it becomes safe once
// the global watermark passes evictAtMs, the point at which every window the
// record could have touched has fired on-time and exhausted its allowed
// lateness across every branch.
type pendingCommit struct {
	offset    uint64
	evictAtMs int64
}

type partitionState struct {
	mu      sync.Mutex
	pending []pendingCommit
}

// pendingWrite is a batch that exhausted writeBatch's bounded retries. It is
// retried opportunistically on every subsequent advanceWatermark/
// checkLateFirings call until the sink recovers, and withholds offset
// commits for any window at or after windowEndMs in the meantime: see
// safeCommitWatermark.
type pendingWrite struct {
	branch      *branch
	kind        watermark.PaneKind
	batch       []model.FlowSummary
	windowEndMs int64
}

// Pipeline orchestrates one running instance of the flow rollup engine.
type Pipeline struct {
	cfg       *config.Config
	source    bus.Source
	topicSink bus.TopicSink // optional, nil when flowDestTopic is unset
	docSink   sink.DocumentSink
	offsets   *offsets.Store

	tracker  *watermark.Tracker
	branches []*branch

	partitionsMu sync.Mutex
	partitions   map[int]*partitionState

	writeMu          sync.Mutex
	pendingWrites    []pendingWrite
	writeSafeWaterMs int64
	writeBackoffBase time.Duration
	writeBackoffCap  time.Duration

	numWorkers int
	records    chan bus.Record

	workerWg sync.WaitGroup
	tickerWg sync.WaitGroup
	done     chan struct{}
}

// New builds a Pipeline with one branch per enabled config.Branches toggle.
func New(cfg *config.Config, source bus.Source, docSink sink.DocumentSink, topicSink bus.TopicSink, offsetStore *offsets.Store) *Pipeline {
	p := &Pipeline{
		cfg:              cfg,
		source:           source,
		docSink:          docSink,
		topicSink:        topicSink,
		offsets:          offsetStore,
		tracker:          watermark.NewTracker(),
		partitions:       make(map[int]*partitionState),
		numWorkers:       4,
		records:          make(chan bus.Record, 1024),
		done:             make(chan struct{}),
		writeBackoffBase: 200 * time.Millisecond,
		writeBackoffCap:  10 * time.Second,
	}

	lateDelay := cfg.LateProcessingDelay()
	allowedLateness := cfg.Windowing.AllowedLatenessMs

	if cfg.Branches.Total {
		p.branches = append(p.branches, newBranch("TOTAL", keying.ByExporterInterface, 0,
			watermark.NewEngine(lateDelay, allowedLateness)))
	}
	if cfg.Branches.TopApps {
		p.branches = append(p.branches, newBranch("TOP_APPS", keying.ByExporterInterfaceApplication, cfg.TopK,
			watermark.NewEngine(lateDelay, allowedLateness)))
	}
	if cfg.Branches.TopHosts {
		p.branches = append(p.branches, newBranch("TOP_HOSTS", keying.ByExporterInterfaceHost, cfg.TopK,
			watermark.NewEngine(lateDelay, allowedLateness)))
	}
	if cfg.Branches.TopConversations {
		p.branches = append(p.branches, newBranch("TOP_CONVERSATIONS", keying.ByExporterInterfaceConversation, cfg.TopK,
			watermark.NewEngine(lateDelay, allowedLateness)))
	}

	return p
}

// Start begins consuming from the source and launches the background
// goroutines that drive watermark advancement, late-firing checks, and
// offset commits.
func (p *Pipeline) Start(ctx context.Context) {
	p.workerWg.Add(p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		go p.worker()
	}

	go p.pumpFromSource(ctx)

	p.tickerWg.Add(1)
	go p.runLateFiringChecker()

	log.Printf("pipeline: started with %d workers and %d branches", p.numWorkers, len(p.branches))
}

// pumpFromSource relays the source's records into the worker pool's input
// channel, stopping when the source closes its channel or ctx is done.
func (p *Pipeline) pumpFromSource(ctx context.Context) {
	for {
		select {
		case rec, ok := <-p.source.Records():
			if !ok {
				close(p.records)
				return
			}
			p.records <- rec
		case <-ctx.Done():
			close(p.records)
			return
		case <-p.done:
			close(p.records)
			return
		}
	}
}

func (p *Pipeline) worker() {
	defer p.workerWg.Done()
	for rec := range p.records {
		p.processRecord(rec)
	}
}

// processRecord runs one flow through every stage: normalize, observe the
// watermark, assign windows (with the skew guard), allocate bytes per
// window, and fan the result out to every branch.
func (p *Pipeline) processRecord(rec bus.Record) {
	flow := rec.Flow
	metrics.FlowsConsumed.WithLabelValues(strconv.Itoa(rec.Partition)).Inc()

	if flow.Normalize() {
		metrics.FlowsDeltaSwitchedSynthesized.Inc()
	}

	partitionWm := p.tracker.Observe(rec.Partition, flow.LastSwitched, p.cfg.Windowing.DefaultMaxInputDelayMs)
	lagSeconds := float64(time.Now().UnixMilli()-partitionWm) / 1000
	if lagSeconds < 0 {
		lagSeconds = 0
	}
	metrics.WatermarkLagSeconds.WithLabelValues(strconv.Itoa(rec.Partition)).Set(lagSeconds)

	globalWm, ok := p.tracker.Global()
	if !ok {
		globalWm = partitionWm
	}
	currentInputTimestampMs := partitionWm + p.cfg.Windowing.DefaultMaxInputDelayMs

	windows := window.AssignWithSkewGuard(flow, p.cfg.Windowing.FixedWindowSizeMs, p.cfg.Windowing.MaxFlowDurationMs, currentInputTimestampMs)
	metrics.WindowsAssignedPerFlow.Observe(float64(len(windows)))

	evictAtMs := globalWm
	for _, w := range windows {
		bytes, ok := alloc.Allocate(w, flow)
		if !ok {
			continue
		}
		for _, b := range p.branches {
			b.add(w, flow, bytes, globalWm)
		}
		if end := w.EndMs + p.cfg.Windowing.AllowedLatenessMs; end > evictAtMs {
			evictAtMs = end
		}
	}

	p.recordPending(rec.Partition, rec.Offset, evictAtMs)
	p.advanceWatermark(globalWm)
}

func (p *Pipeline) recordPending(partition int, offset uint64, evictAtMs int64) {
	p.partitionsMu.Lock()
	ps, ok := p.partitions[partition]
	if !ok {
		ps = &partitionState{}
		p.partitions[partition] = ps
	}
	p.partitionsMu.Unlock()

	if !ok {
		p.logResumePoint(partition)
	}

	ps.mu.Lock()
	ps.pending = append(ps.pending, pendingCommit{offset: offset, evictAtMs: evictAtMs})
	ps.mu.Unlock()
}

// logResumePoint reads back the last offset persisted for partition, on the
// first record seen from it in this run, so an operator can confirm the
// pipeline picked up where the previous run's sink-acked writes left off.
func (p *Pipeline) logResumePoint(partition int) {
	if p.offsets == nil {
		return
	}
	offset, found, err := p.offsets.Committed(context.Background(), partition)
	if err != nil {
		log.Printf("pipeline: failed to read resume offset for partition %d: %v", partition, err)
		return
	}
	if !found {
		log.Printf("pipeline: partition %d has no previously committed offset, starting fresh", partition)
		return
	}
	log.Printf("pipeline: partition %d resuming after previously committed offset %d", partition, offset)
}

// advanceWatermark fires every due on-time pane across every branch, writes
// the resulting summaries to the sink, and commits whatever offsets have
// become safe as a result.
func (p *Pipeline) advanceWatermark(globalWm int64) {
	p.retryPendingWrites()
	for _, b := range p.branches {
		firings := b.engine.OnWatermarkAdvance(globalWm)
		p.flush(b, firings, watermark.PaneOnTime)
		b.pruneWindows()
	}
	p.commitSafeOffsets(p.safeCommitWatermark(globalWm))
}

// runLateFiringChecker periodically checks every branch for late panes whose
// coalescing delay has elapsed, independent of new records arriving.
func (p *Pipeline) runLateFiringChecker() {
	defer p.tickerWg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.checkLateFirings()
		case <-p.done:
			p.checkLateFirings()
			return
		}
	}
}

func (p *Pipeline) checkLateFirings() {
	p.retryPendingWrites()
	for _, b := range p.branches {
		firings := b.engine.CheckLateFirings()
		p.flush(b, firings, watermark.PaneLate)
	}
	if wm, ok := p.tracker.Global(); ok {
		p.commitSafeOffsets(p.safeCommitWatermark(wm))
	}
}

// writeAttempts bounds how many times writeBatch retries a single write
// before giving up and handing the batch to the pending-write backlog for
// opportunistic retry, per spec.md §7's "retry with exponential backoff;
// after N attempts, surface to the runtime."
const writeAttempts = 5

// SetWriteBackoffForTest overrides the write-retry backoff bounds. Intended
// for tests that want to exercise a failing sink without waiting out the
// production backoff schedule, mirroring watermark.Engine.SetClock.
func (p *Pipeline) SetWriteBackoffForTest(base, capDelay time.Duration) {
	p.writeBackoffBase = base
	p.writeBackoffCap = capDelay
}

// writeBatch writes one batch to the document sink with bounded exponential
// backoff, republishing to the topic sink and recording metrics only on a
// successful write. It returns false once writeAttempts is exhausted,
// leaving the batch to be retried again by the caller.
func (p *Pipeline) writeBatch(b *branch, kind watermark.PaneKind, batch []model.FlowSummary) bool {
	backoff := p.writeBackoffBase
	var lastErr error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		start := time.Now()
		lastErr = p.docSink.Write(batch)
		metrics.SinkWriteLatencySeconds.WithLabelValues(b.name).Observe(time.Since(start).Seconds())
		if lastErr == nil {
			metrics.SummariesEmitted.WithLabelValues(b.name, kind.String()).Add(float64(len(batch)))
			if p.topicSink != nil {
				for i := range batch {
					if err := p.topicSink.Publish(&batch[i]); err != nil {
						log.Printf("pipeline: failed to republish summary %s: %v", batch[i].ID(), err)
					}
				}
			}
			return true
		}

		metrics.SinkWriteErrors.WithLabelValues(b.name).Inc()
		log.Printf("pipeline: branch %s failed to write %d summaries (attempt %d/%d): %v", b.name, len(batch), attempt, writeAttempts, lastErr)
		if attempt == writeAttempts {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > p.writeBackoffCap {
			backoff = p.writeBackoffCap
		}
	}

	log.Printf("pipeline: branch %s exhausted %d retries writing %d summaries, queuing for later retry: %v", b.name, writeAttempts, len(batch), lastErr)
	metrics.SinkWriteRetriesExhausted.WithLabelValues(b.name).Inc()
	return false
}

// flush writes one pane firing's summaries to the sink. A batch that fails
// every retry in writeBatch is queued as a pendingWrite tagged with the
// earliest window it covers, rather than dropped: safeCommitWatermark then
// withholds offset commits for that window and everything after it until
// the batch is retried successfully.
func (p *Pipeline) flush(b *branch, firings []watermark.Firing, kind watermark.PaneKind) {
	if len(firings) == 0 {
		return
	}

	var batch []model.FlowSummary
	windowEndMs := int64(1) << 62
	for _, firing := range firings {
		batch = append(batch, b.buildSummaries(firing)...)
		if firing.Window.EndMs < windowEndMs {
			windowEndMs = firing.Window.EndMs
		}
	}
	if len(batch) == 0 {
		return
	}

	if p.writeBatch(b, kind, batch) {
		return
	}

	p.writeMu.Lock()
	p.pendingWrites = append(p.pendingWrites, pendingWrite{branch: b, kind: kind, batch: batch, windowEndMs: windowEndMs})
	p.writeMu.Unlock()
}

// retryPendingWrites retries every batch that previously exhausted
// writeBatch's attempts, so a recovered sink drains its backlog before any
// newer firing is considered for the same pass.
func (p *Pipeline) retryPendingWrites() {
	p.writeMu.Lock()
	pending := p.pendingWrites
	p.pendingWrites = nil
	p.writeMu.Unlock()

	if len(pending) == 0 {
		return
	}

	var stillFailing []pendingWrite
	for _, pw := range pending {
		if p.writeBatch(pw.branch, pw.kind, pw.batch) {
			continue
		}
		stillFailing = append(stillFailing, pw)
	}
	if len(stillFailing) == 0 {
		return
	}

	p.writeMu.Lock()
	p.pendingWrites = append(p.pendingWrites, stillFailing...)
	p.writeMu.Unlock()
}

// safeCommitWatermark clamps globalWm down to the earliest window covered
// by a still-unresolved pendingWrite, so commitSafeOffsets never commits an
// offset whose data has not actually been acknowledged by the sink. It is
// the fix for the gap "commit source offsets only for windows whose results
// have been fully acknowledged by the sink" (spec.md §5) depends on: without
// it, commitSafeOffsets advances purely on elapsed time, blind to write
// failures. The clamp only ever pushes the watermark used for commits
// backward from what the caller observed, and the result never regresses
// across calls, since writeSafeWaterMs only moves forward.
func (p *Pipeline) safeCommitWatermark(globalWm int64) int64 {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	safe := globalWm
	for _, pw := range p.pendingWrites {
		if pw.windowEndMs < safe {
			safe = pw.windowEndMs
		}
	}
	if safe > p.writeSafeWaterMs {
		p.writeSafeWaterMs = safe
	}
	return p.writeSafeWaterMs
}

// commitSafeOffsets commits every pending offset, per partition, whose
// windows have all been evicted as of globalWm. Workers append to a
// partition's FIFO concurrently, so it is not strictly in offset order; the
// highest offset popped in a pass is the one committed.
func (p *Pipeline) commitSafeOffsets(globalWm int64) {
	p.partitionsMu.Lock()
	snapshot := make(map[int]*partitionState, len(p.partitions))
	for k, v := range p.partitions {
		snapshot[k] = v
	}
	p.partitionsMu.Unlock()

	for partition, ps := range snapshot {
		ps.mu.Lock()
		var safe uint64
		found := false
		for len(ps.pending) > 0 && globalWm >= ps.pending[0].evictAtMs {
			if !found || ps.pending[0].offset > safe {
				safe = ps.pending[0].offset
			}
			found = true
			ps.pending = ps.pending[1:]
		}
		ps.mu.Unlock()

		if !found {
			continue
		}
		if err := p.source.Commit(partition, safe); err != nil {
			log.Printf("pipeline: failed to commit offset %d on partition %d: %v", safe, partition, err)
			continue
		}
		if p.offsets != nil {
			if err := p.offsets.Commit(context.Background(), partition, safe); err != nil {
				log.Printf("pipeline: failed to persist committed offset %d on partition %d: %v", safe, partition, err)
			}
		}
		metrics.OffsetsCommitted.WithLabelValues(strconv.Itoa(partition)).Inc()
	}
}

// Stop drains in-flight records, fires every pane that is complete (or can
// never complete, being evicted instead), writes them to the sink, and
// commits whatever offsets became safe as a result.
func (p *Pipeline) Stop() {
	log.Println("pipeline: stopping...")
	close(p.done)

	log.Println("pipeline: waiting for workers to drain...")
	p.workerWg.Wait()

	log.Println("pipeline: waiting for background tickers to finish...")
	p.tickerWg.Wait()

	// Final sweep: push the watermark to the end of time so every branch
	// fires (or evicts) every remaining window, then commit what we can.
	// retryPendingWrites runs both before (draining any earlier backlog) and
	// after (catching the final sweep's own failures) the sweep itself;
	// safeCommitWatermark still withholds commits for anything left
	// unresolved in the backlog, so a sink that's down at shutdown loses no
	// data: it is just left uncommitted for the next run to redeliver.
	const end = int64(1) << 62
	p.retryPendingWrites()
	for _, b := range p.branches {
		firings := b.engine.OnWatermarkAdvance(end)
		p.flush(b, firings, watermark.PaneOnTime)
	}
	p.retryPendingWrites()
	p.commitSafeOffsets(p.safeCommitWatermark(end))

	if err := p.source.Close(); err != nil {
		log.Printf("pipeline: error closing source: %v", err)
	}
	if err := p.docSink.Close(); err != nil {
		log.Printf("pipeline: error closing document sink: %v", err)
	}
	if p.topicSink != nil {
		if err := p.topicSink.Close(); err != nil {
			log.Printf("pipeline: error closing topic sink: %v", err)
		}
	}
	if p.offsets != nil {
		if err := p.offsets.Close(); err != nil {
			log.Printf("pipeline: error closing offset store: %v", err)
		}
	}
	log.Println("pipeline: stopped.")
}
