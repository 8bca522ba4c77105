// Package genflow generates synthetic flow records for tests and local
// development, substituting for a real probe/exporter feed.
package genflow

import (
	"fmt"
	"math/rand"

	"FlowRollup/internal/model"

	"github.com/google/uuid"
)

// Options configures the shape of generated flows.
type Options struct {
	Exporters    int
	Interfaces   int
	Applications []string
	Hosts        []string

	MinBytes, MaxBytes         int64
	MinDurationMs, MaxDurationMs int64
}

// DefaultOptions returns a reasonable default shape: a handful of
// exporters, a few interfaces each, and a small application/host pool.
func DefaultOptions() Options {
	return Options{
		Exporters:     3,
		Interfaces:    4,
		Applications:  []string{"http", "https", "dns", "ssh", ""},
		Hosts:         []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "192.168.1.10", "192.168.1.11"},
		MinBytes:      64,
		MaxBytes:      1_000_000,
		MinDurationMs: 0,
		MaxDurationMs: 120_000,
	}
}

// Generator produces synthetic FlowRecords with a deterministic seed, so
// tests using it remain reproducible.
type Generator struct {
	rnd  *rand.Rand
	opts Options
}

// New creates a Generator seeded with seed.
func New(seed int64, opts Options) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed)), opts: opts}
}

// exporterNamespace roots the name-based UUIDs generated for synthetic
// exporter identities.
var exporterNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// exporterForeignID derives a stable ForeignID for exporterIdx: every flow
// generated for the same exporter shares the same identity, and the value
// depends only on exporterIdx, not on the generator's random stream, so it
// stays reproducible across runs with the same seed.
func exporterForeignID(exporterIdx int) string {
	return uuid.NewMD5(exporterNamespace, []byte(fmt.Sprintf("exporter-%d", exporterIdx))).String()
}

// Next produces one synthetic flow with an active interval anchored at
// baseMs, so callers can generate a stream whose event times advance
// monotonically.
func (g *Generator) Next(baseMs int64) *model.FlowRecord {
	exporterIdx := g.rnd.Intn(g.opts.Exporters)
	ifIndex := int32(g.rnd.Intn(g.opts.Interfaces))

	durationMs := g.opts.MinDurationMs
	if span := g.opts.MaxDurationMs - g.opts.MinDurationMs; span > 0 {
		durationMs += g.rnd.Int63n(span)
	}

	direction := model.DirectionIngress
	if g.rnd.Intn(2) == 1 {
		direction = model.DirectionEgress
	}

	numBytes := g.opts.MinBytes
	if span := g.opts.MaxBytes - g.opts.MinBytes; span > 0 {
		numBytes += g.rnd.Int63n(span)
	}

	app := ""
	if len(g.opts.Applications) > 0 {
		app = g.opts.Applications[g.rnd.Intn(len(g.opts.Applications))]
	}
	src := g.randomHost()
	dst := g.randomHost()

	inIf, outIf := ifIndex, int32(g.rnd.Intn(g.opts.Interfaces))
	if direction == model.DirectionEgress {
		inIf, outIf = outIf, ifIndex
	}

	return &model.FlowRecord{
		Exporter: model.Exporter{
			ForeignSource: fmt.Sprintf("exporter-%d", exporterIdx),
			ForeignID:     exporterForeignID(exporterIdx),
			NodeID:        int64(exporterIdx),
		},
		InputSnmp:     inIf,
		OutputSnmp:    outIf,
		SrcAddress:    src,
		DstAddress:    dst,
		SrcPort:       int32(1024 + g.rnd.Intn(60000)),
		DstPort:       int32(1024 + g.rnd.Intn(60000)),
		Protocol:      6,
		Application:   app,
		NumBytes:      numBytes,
		FirstSwitched: baseMs,
		DeltaSwitched: baseMs,
		LastSwitched:  baseMs + durationMs,
		Direction:     direction,
	}
}

func (g *Generator) randomHost() string {
	if len(g.opts.Hosts) == 0 {
		return "0.0.0.0"
	}
	return g.opts.Hosts[g.rnd.Intn(len(g.opts.Hosts))]
}

// Stream produces n flows with baseMs advancing by stepMs between each.
func (g *Generator) Stream(n int, startMs, stepMs int64) []*model.FlowRecord {
	out := make([]*model.FlowRecord, n)
	for i := 0; i < n; i++ {
		out[i] = g.Next(startMs + int64(i)*stepMs)
	}
	return out
}
