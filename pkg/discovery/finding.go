package discovery

import (
	"net"
	"sort"
	"strings"
)

// Method identifies which discovery wire protocol produced a Finding.
type Method int

const (
	MethodMDNS Method = iota
	MethodWSD
	MethodHint
)

func (m Method) String() string {
	switch m {
	case MethodMDNS:
		return "mdns"
	case MethodWSD:
		return "wsd"
	case MethodHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Endpoint is one scan service address a device advertises: a protocol tag
// ("escl", "esclhttps" or "wsd") and the URI a Handler can be built against. Aggregated
// devices keep endpoints deduplicated and sorted so that the device state
// machine probes them in a stable order on capability failure.
type Endpoint struct {
	Protocol string
	URI      string
}

func (e Endpoint) key() string {
	return strings.ToLower(e.Protocol) + " " + strings.ToLower(e.URI)
}

func sortEndpoints(eps []Endpoint) {
	sort.Slice(eps, func(i, j int) bool {
		if eps[i].Protocol != eps[j].Protocol {
			return eps[i].Protocol < eps[j].Protocol
		}
		return eps[i].URI < eps[j].URI
	})
}

// dedupEndpoints merges a and b, deduplicating by (protocol, uri) and
// returning a sorted result. Matches spec's "deduplicated by
// (protocol, uri_equal) and sorted" without depending on pkg/uri's
// richer URI-equality notion, which this package may not import.
func dedupEndpoints(a, b []Endpoint) []Endpoint {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]Endpoint, 0, len(a)+len(b))
	for _, ep := range a {
		if _, ok := seen[ep.key()]; ok {
			continue
		}
		seen[ep.key()] = struct{}{}
		out = append(out, ep)
	}
	for _, ep := range b {
		if _, ok := seen[ep.key()]; ok {
			continue
		}
		seen[ep.key()] = struct{}{}
		out = append(out, ep)
	}
	sortEndpoints(out)
	return out
}

// Finding is one discovery result from one method on one interface: the
// method tag, an optional network name, an optional human-readable model,
// an optional UUID, the address set it was seen from, the interface it
// arrived on, and any endpoints already resolved by the publisher.
//
// Withdrawn marks a finding as a retraction (e.g. an mDNS goodbye packet,
// or a WSD Bye message) rather than an announcement: the aggregator drops
// the matching device instead of merging.
type Finding struct {
	Method    Method
	IfIndex   int
	Name      string
	UUID      string
	Model     string
	Addrs     []net.IP
	Endpoints []Endpoint
	Withdrawn bool
}

// groupKey is the identity an unresolved (no-UUID-yet) Finding is grouped
// under: matching method, interface and name, per spec §4.9.
type groupKey struct {
	method  Method
	ifIndex int
	name    string
}

func (f Finding) groupKey() groupKey {
	return groupKey{method: f.Method, ifIndex: f.IfIndex, name: f.Name}
}

func mergeAddrs(a, b []net.IP) []net.IP {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]net.IP, 0, len(a)+len(b))
	for _, ip := range append(append([]net.IP(nil), a...), b...) {
		if ip == nil {
			continue
		}
		k := ip.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ip)
	}
	return out
}
