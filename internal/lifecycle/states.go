package lifecycle

import "github.com/scrypster/recollect/pkg/types"

// ValidTransition reports whether the status state machine permits
// moving a semantic memory from one status to another.
//
// Valid transitions:
//
//	active -> aging | superseded | invalidated | conflicted
//	aging  -> active | superseded | invalidated | conflicted
//	superseded  -> (terminal, no transitions out)
//	invalidated -> (terminal, no transitions out)
//	conflicted  -> (terminal, no transitions out)
//
// aging -> active is the explicit-validation path; entry into aging is
// normally computed passively at read time rather than written.
func ValidTransition(from, to types.MemoryStatus) bool {
	if from == to {
		return false
	}

	switch from {
	case types.StatusActive:
		return to == types.StatusAging || to == types.StatusSuperseded ||
			to == types.StatusInvalidated || to == types.StatusConflicted

	case types.StatusAging:
		return to == types.StatusActive || to == types.StatusSuperseded ||
			to == types.StatusInvalidated || to == types.StatusConflicted

	case types.StatusSuperseded, types.StatusInvalidated, types.StatusConflicted:
		return false // Terminal states

	default:
		return false // Unknown current status
	}
}
