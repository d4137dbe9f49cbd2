// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package run

// State is the phase a run is in. A run moves forward through
// Idle, ResolvingIdentifier, ProbingPages, Merging and Persisting to
// Completed, or stops in Failed from any of them. Completed and Failed are
// terminal; a retry is a new run.
type State int

const (
	Idle State = iota
	ResolvingIdentifier
	ProbingPages
	Merging
	Persisting
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ResolvingIdentifier:
		return "resolving"
	case ProbingPages:
		return "probing"
	case Merging:
		return "merging"
	case Persisting:
		return "persisting"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}
