// Package keying implements the compound-key tagged variants flows are
// grouped by: the exporter/interface outer key, and its three inner-key
// refinements (application, host, conversation).
package keying

import (
	"strconv"
	"strings"

	"FlowRollup/internal/model"
)

// Visitor is implemented by summary builders that need to flatten a
// CompoundKey's variant-specific fields. This replaces a class hierarchy +
// visit() dispatch with a sum-type-style double dispatch: Accept calls back
// into the one Visit method matching the concrete variant.
type Visitor interface {
	VisitExporterInterface(k ExporterInterface)
	VisitExporterInterfaceApplication(k ExporterInterfaceApplication)
	VisitExporterInterfaceHost(k ExporterInterfaceHost)
	VisitExporterInterfaceConversation(k ExporterInterfaceConversation)
}

// CompoundKey is the tagged-variant key flows are grouped by.
type CompoundKey interface {
	// OuterKey is the encoded ExporterInterface projection this key belongs
	// to; it is the partitioning axis for the top-K operator.
	OuterKey() string
	// GroupedBy names the variant, used in the sink document's grouped_by
	// field.
	GroupedBy() string
	// GroupedByKey is a deterministic encoding of the variant's fields,
	// used for the sink document ID and as the tertiary top-K tiebreak.
	GroupedByKey() string
	// Accept dispatches to the Visitor method matching this variant.
	Accept(v Visitor)
}

func encodeExporter(e model.Exporter) string {
	return e.ForeignSource + "|" + e.ForeignID + "|" + strconv.FormatInt(e.NodeID, 10)
}

// ExporterInterface is the outer key: an exporter/interface pair.
type ExporterInterface struct {
	Exporter model.Exporter
	IfIndex  int32
}

func NewExporterInterface(e model.Exporter, ifIndex int32) ExporterInterface {
	return ExporterInterface{Exporter: e, IfIndex: ifIndex}
}

func (k ExporterInterface) GroupedBy() string     { return "EXPORTER_INTERFACE" }
func (k ExporterInterface) GroupedByKey() string  { return encodeExporter(k.Exporter) + "|" + strconv.Itoa(int(k.IfIndex)) }
func (k ExporterInterface) OuterKey() string      { return k.GroupedByKey() }
func (k ExporterInterface) Accept(v Visitor)      { v.VisitExporterInterface(k) }

// ExporterInterfaceApplication refines the outer key by application.
type ExporterInterfaceApplication struct {
	ExporterInterface
	Application string
}

func NewExporterInterfaceApplication(e model.Exporter, ifIndex int32, app string) ExporterInterfaceApplication {
	return ExporterInterfaceApplication{
		ExporterInterface: NewExporterInterface(e, ifIndex),
		Application:       app,
	}
}

func (k ExporterInterfaceApplication) GroupedBy() string { return "EXPORTER_INTERFACE_APPLICATION" }
func (k ExporterInterfaceApplication) GroupedByKey() string {
	return k.ExporterInterface.GroupedByKey() + "|" + k.Application
}
func (k ExporterInterfaceApplication) OuterKey() string { return k.ExporterInterface.GroupedByKey() }
func (k ExporterInterfaceApplication) Accept(v Visitor) { v.VisitExporterInterfaceApplication(k) }

// ExporterInterfaceHost refines the outer key by host address.
type ExporterInterfaceHost struct {
	ExporterInterface
	Address string
}

func NewExporterInterfaceHost(e model.Exporter, ifIndex int32, address string) ExporterInterfaceHost {
	return ExporterInterfaceHost{
		ExporterInterface: NewExporterInterface(e, ifIndex),
		Address:           address,
	}
}

func (k ExporterInterfaceHost) GroupedBy() string { return "EXPORTER_INTERFACE_HOST" }
func (k ExporterInterfaceHost) GroupedByKey() string {
	return k.ExporterInterface.GroupedByKey() + "|" + k.Address
}
func (k ExporterInterfaceHost) OuterKey() string { return k.ExporterInterface.GroupedByKey() }
func (k ExporterInterfaceHost) Accept(v Visitor) { v.VisitExporterInterfaceHost(k) }

// ExporterInterfaceConversation refines the outer key by a canonicalised
// bidirectional 5-tuple: the two endpoints are ordered lexicographically so
// that both directions of a conversation hash equal.
type ExporterInterfaceConversation struct {
	ExporterInterface
	Protocol     int32
	SmallerAddr  string
	SmallerPort  int32
	LargerAddr   string
	LargerPort   int32
	Application  string
}

// NewExporterInterfaceConversation canonicalises the two endpoints of a
// conversation: (addrA, portA) and (addrB, portB) may be given in either
// order and the result is the same regardless.
func NewExporterInterfaceConversation(e model.Exporter, ifIndex int32, protocol int32, addrA string, portA int32, addrB string, portB int32, application string) ExporterInterfaceConversation {
	smallerAddr, smallerPort, largerAddr, largerPort := addrA, portA, addrB, portB
	if endpointLess(addrB, portB, addrA, portA) {
		smallerAddr, smallerPort, largerAddr, largerPort = addrB, portB, addrA, portA
	}
	return ExporterInterfaceConversation{
		ExporterInterface: NewExporterInterface(e, ifIndex),
		Protocol:          protocol,
		SmallerAddr:       smallerAddr,
		SmallerPort:       smallerPort,
		LargerAddr:        largerAddr,
		LargerPort:        largerPort,
		Application:       application,
	}
}

func endpointLess(addrA string, portA int32, addrB string, portB int32) bool {
	if addrA != addrB {
		return addrA < addrB
	}
	return portA < portB
}

func (k ExporterInterfaceConversation) GroupedBy() string { return "EXPORTER_INTERFACE_CONVERSATION" }
func (k ExporterInterfaceConversation) GroupedByKey() string {
	return strings.Join([]string{
		k.ExporterInterface.GroupedByKey(),
		strconv.Itoa(int(k.Protocol)),
		k.SmallerAddr, strconv.Itoa(int(k.SmallerPort)),
		k.LargerAddr, strconv.Itoa(int(k.LargerPort)),
		k.Application,
	}, "|")
}
func (k ExporterInterfaceConversation) OuterKey() string { return k.ExporterInterface.GroupedByKey() }
func (k ExporterInterfaceConversation) Accept(v Visitor) { v.VisitExporterInterfaceConversation(k) }
