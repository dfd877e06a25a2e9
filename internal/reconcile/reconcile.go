// Package reconcile deduplicates and classifies IP addresses gathered
// from heterogeneous sources into a single typed, ordered report.
package reconcile

import (
	"net"
	"strings"

	"github.com/ashita-ai/raikyaku/internal/model"
)

// lanRanges is the set of IPv4 CIDR blocks classified as private LAN
// addresses. Populated once at package init.
var lanRanges []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16", // link-local
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err == nil {
			lanRanges = append(lanRanges, network)
		}
	}
}

// Observation is one raw address as reported by a gathering source,
// before deduplication.
type Observation struct {
	Address string
	Source  string
	// Local marks addresses obtained via local network discovery rather
	// than public resolution. It decides the IPv6 split (ipv6_local vs
	// public_ipv6).
	Local bool
}

// Merge deduplicates and classifies raw observations into an IPReport.
//
// Callers must pass observations in source-precedence order (public
// resolution sources before local discovery): when the same address is
// reported twice, the first occurrence wins the provenance tag. Invalid
// or sentinel addresses are discarded, not classified.
func Merge(raw []Observation) *model.IPReport {
	report := &model.IPReport{Counts: map[model.IPKind]int{}}
	seen := make(map[string]bool, len(raw))

	for _, obs := range raw {
		addr := strings.TrimSpace(obs.Address)
		kind, ok := classify(addr, obs.Local)
		if !ok || seen[addr] {
			continue
		}
		seen[addr] = true
		report.Observations = append(report.Observations, model.IPObservation{
			Address: addr,
			Kind:    kind,
			Source:  obs.Source,
		})
		report.Counts[kind]++
	}

	report.Total = len(report.Observations)
	return report
}

// classify assigns an IPKind to a single address. Returns ok=false for
// addresses that must be discarded (empty, well-known invalid sentinels,
// unparseable).
func classify(addr string, local bool) (model.IPKind, bool) {
	if addr == "" || addr == "0.0.0.0" || strings.HasPrefix(addr, "0.") {
		return "", false
	}

	if strings.Contains(addr, ":") {
		if net.ParseIP(addr) == nil {
			return "", false
		}
		if local {
			return model.IPV6Local, true
		}
		return model.IPPublicV6, true
	}

	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil {
		return "", false
	}
	for _, r := range lanRanges {
		if r.Contains(ip) {
			return model.IPPrivateLAN, true
		}
	}
	return model.IPPublicV4, true
}
