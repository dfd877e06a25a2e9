package model

// ConsentState is the visitor's data-collection decision. It is
// process-wide, persisted, and terminal once decided.
type ConsentState string

const (
	ConsentUndecided ConsentState = "undecided"
	ConsentAccepted  ConsentState = "accepted"
	ConsentDeclined  ConsentState = "declined"
)

// Valid reports whether s is one of the three known states.
func (s ConsentState) Valid() bool {
	switch s {
	case ConsentUndecided, ConsentAccepted, ConsentDeclined:
		return true
	}
	return false
}

// Decided reports whether the visitor has made a terminal decision.
func (s ConsentState) Decided() bool {
	return s == ConsentAccepted || s == ConsentDeclined
}
