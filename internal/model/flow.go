// Package model holds the in-memory flow record and the value types derived
// from it by the aggregation pipeline.
package model

// Direction is the traffic direction of a flow as observed at the exporter.
type Direction int

const (
	DirectionIngress Direction = iota
	DirectionEgress
)

func (d Direction) String() string {
	if d == DirectionEgress {
		return "EGRESS"
	}
	return "INGRESS"
}

// UnknownApplication is substituted for flows that arrive without an
// application tag.
const UnknownApplication = "__unknown__"

// Exporter identifies the device that emitted a flow.
type Exporter struct {
	ForeignSource string
	ForeignID     string
	NodeID        int64
	Location      string
	Categories    []string
}

// FlowRecord is an immutable, already-decoded flow as produced by the
// upstream wire decoder. Records are created on ingest and never mutated.
type FlowRecord struct {
	Exporter Exporter

	InputSnmp  int32
	OutputSnmp int32

	SrcAddress string
	DstAddress string
	SrcPort    int32
	DstPort    int32
	Protocol   int32

	Application string

	NumBytes int64

	FirstSwitched int64
	DeltaSwitched int64
	LastSwitched  int64

	Direction Direction
}

// ApplicationOrUnknown returns the flow's application, substituting
// UnknownApplication for an empty value.
func (f *FlowRecord) ApplicationOrUnknown() string {
	if f.Application == "" {
		return UnknownApplication
	}
	return f.Application
}

// Normalize applies the deltaSwitched default (firstSwitched) when it is
// absent and reports whether the default was synthesized, so callers can
// track it via a metric rather than silently dropping the distinction.
func (f *FlowRecord) Normalize() (synthesized bool) {
	if f.DeltaSwitched == 0 {
		f.DeltaSwitched = f.FirstSwitched
		return true
	}
	return false
}

// ActiveInterval returns the flow's active interval [deltaSwitched,
// lastSwitched].
func (f *FlowRecord) ActiveInterval() (start, end int64) {
	return f.DeltaSwitched, f.LastSwitched
}

// DurationMs returns lastSwitched - deltaSwitched, which may be negative for
// a malformed flow.
func (f *FlowRecord) DurationMs() int64 {
	return f.LastSwitched - f.DeltaSwitched
}
