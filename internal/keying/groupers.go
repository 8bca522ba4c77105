package keying

import "FlowRollup/internal/model"

// FlowInterface returns the interface index a flow should be keyed under:
// a flow carries a single Direction, reported against the interface the
// exporter observed it on — the input interface for an ingress flow, the
// output interface for an egress flow, which is why exactly one of
// bytesIn/bytesOut ends up set per flow.
func FlowInterface(f *model.FlowRecord) int32 {
	if f.Direction == model.DirectionEgress {
		return f.OutputSnmp
	}
	return f.InputSnmp
}

// FlowHostAddress returns the host address local to the flow's own
// interface: the source address for an ingress flow (traffic entering at
// srcAddress), the destination address for an egress flow (traffic leaving
// toward dstAddress).
func FlowHostAddress(f *model.FlowRecord) string {
	if f.Direction == model.DirectionEgress {
		return f.DstAddress
	}
	return f.SrcAddress
}

// ByExporterInterface groups by (exporter, ifIndex) only.
func ByExporterInterface(f *model.FlowRecord) CompoundKey {
	return NewExporterInterface(f.Exporter, FlowInterface(f))
}

// ByExporterInterfaceApplication groups by (exporter, ifIndex, application).
func ByExporterInterfaceApplication(f *model.FlowRecord) CompoundKey {
	return NewExporterInterfaceApplication(f.Exporter, FlowInterface(f), f.ApplicationOrUnknown())
}

// ByExporterInterfaceHost groups by (exporter, ifIndex, host address).
func ByExporterInterfaceHost(f *model.FlowRecord) CompoundKey {
	return NewExporterInterfaceHost(f.Exporter, FlowInterface(f), FlowHostAddress(f))
}

// ByExporterInterfaceConversation groups by the canonicalised bidirectional
// 5-tuple.
func ByExporterInterfaceConversation(f *model.FlowRecord) CompoundKey {
	return NewExporterInterfaceConversation(f.Exporter, FlowInterface(f), f.Protocol,
		f.SrcAddress, f.SrcPort, f.DstAddress, f.DstPort, f.ApplicationOrUnknown())
}
