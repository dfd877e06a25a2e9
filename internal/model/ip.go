package model

// IPKind classifies a reconciled IP observation.
type IPKind string

const (
	IPPublicV4   IPKind = "public_ipv4"
	IPPublicV6   IPKind = "public_ipv6"
	IPPrivateLAN IPKind = "private_lan"
	IPV6Local    IPKind = "ipv6_local"
)

// IPObservation is one deduplicated address with its classification and
// the source it was first seen from (in precedence order, not arrival order).
type IPObservation struct {
	Address string `json:"address"`
	Kind    IPKind `json:"kind"`
	Source  string `json:"source"`
}

// IPReport is the reconciled result of all IP-gathering sources: a flat
// deduplicated sequence in first-seen order plus per-kind counts.
type IPReport struct {
	Observations []IPObservation `json:"observations"`
	Counts       map[IPKind]int  `json:"counts"`
	Total        int             `json:"total"`
}
