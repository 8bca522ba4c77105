// Package summary builds flat FlowSummary records from a grouped
// (window, compound key, bytes) result, dispatching on the key's variant to
// flatten its fields (C7's visitor pattern over the tagged CompoundKey
// variant).
package summary

import (
	"fmt"

	"FlowRollup/internal/keying"
	"FlowRollup/internal/model"
	"FlowRollup/internal/window"
)

// Build projects a (window, key, bytes) result into a FlowSummary. For the
// TOTAL aggregation type, ranking is always 0; for TOPK, the caller sets
// Ranking after Build returns (ranking is assigned in comparator order
// across the full top-K list for the (window, outerKey), which this
// function has no visibility into).
func Build(aggType model.AggregationType, w window.Window, key keying.CompoundKey, bytes model.BytesInOut) model.FlowSummary {
	s := model.FlowSummary{
		AggregationType: aggType,
		GroupedBy:       key.GroupedBy(),
		GroupedByKey:    key.GroupedByKey(),
		RangeStartMs:    w.StartMs,
		RangeEndMs:      w.EndMs,
		Timestamp:       w.EndMs,
		BytesIngress:    bytes.BytesIn,
		BytesEgress:     bytes.BytesOut,
		BytesTotal:      bytes.Total(),
	}
	if aggType == model.AggregationTotal {
		s.Ranking = 0
	}
	key.Accept(&visitor{summary: &s})
	return s
}

// visitor flattens each CompoundKey variant's fields into the summary under
// construction.
type visitor struct {
	summary *model.FlowSummary
}

func flattenExporterInterface(s *model.FlowSummary, k keying.ExporterInterface) {
	s.Exporter = model.ExporterFields{
		ForeignSource: k.Exporter.ForeignSource,
		ForeignID:     k.Exporter.ForeignID,
		NodeID:        k.Exporter.NodeID,
	}
	s.IfIndex = k.IfIndex
}

func (v *visitor) VisitExporterInterface(k keying.ExporterInterface) {
	flattenExporterInterface(v.summary, k)
}

func (v *visitor) VisitExporterInterfaceApplication(k keying.ExporterInterfaceApplication) {
	flattenExporterInterface(v.summary, k.ExporterInterface)
	v.summary.Application = k.Application
}

func (v *visitor) VisitExporterInterfaceHost(k keying.ExporterInterfaceHost) {
	flattenExporterInterface(v.summary, k.ExporterInterface)
	v.summary.HostAddress = k.Address
}

func (v *visitor) VisitExporterInterfaceConversation(k keying.ExporterInterfaceConversation) {
	flattenExporterInterface(v.summary, k.ExporterInterface)
	v.summary.Application = k.Application
	v.summary.ConversationKey = fmt.Sprintf("%d/%s:%d-%s:%d", k.Protocol, k.SmallerAddr, k.SmallerPort, k.LargerAddr, k.LargerPort)
}

// AssignRankings assigns 1-based rankings to a comparator-ordered top-K
// list of summaries for a single (window, outerKey).
func AssignRankings(summaries []model.FlowSummary) {
	for i := range summaries {
		summaries[i].Ranking = int64(i + 1)
	}
}
