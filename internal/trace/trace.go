// Package trace provides the optional observer hook for debug
// instrumentation of the memory core. Components receive an Observer at
// construction and default to the no-op implementation; the core stays
// ignorant of any specific consumer.
package trace

import "time"

// EventKind classifies each trace event by type.
type EventKind string

const (
	// KindResolutionStage is emitted once per resolution stage attempted.
	KindResolutionStage EventKind = "resolution_stage"

	// KindResolutionCompleted is emitted with the final resolution outcome.
	KindResolutionCompleted EventKind = "resolution_completed"

	// KindCandidatesGenerated is emitted per retrieval source after the
	// concurrent fan-out joins.
	KindCandidatesGenerated EventKind = "candidates_generated"

	// KindScoredCandidate is emitted once per candidate that received scoring.
	KindScoredCandidate EventKind = "scored_candidate"

	// KindResultsSelected is emitted after budget-constrained selection.
	KindResultsSelected EventKind = "results_selected"

	// KindConflictDetected is emitted when the conflict path fires.
	KindConflictDetected EventKind = "conflict_detected"

	// KindConsolidationRun is emitted when a consolidation window is processed.
	KindConsolidationRun EventKind = "consolidation_run"
)

// Event is a single structured event emitted by the memory core.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind `json:"kind"`

	// At is the wall-clock time the event was recorded.
	At time.Time `json:"at"`

	// Stage names the resolution stage or retrieval source involved.
	Stage string `json:"stage,omitempty"`

	// Subject is the mention, query, or memory ID the event refers to.
	Subject string `json:"subject,omitempty"`

	// Count carries cardinalities (candidates found, results selected).
	Count int `json:"count,omitempty"`

	// Score carries the relevant score or confidence value.
	Score float64 `json:"score,omitempty"`

	// Detail is a short human-readable annotation.
	Detail string `json:"detail,omitempty"`
}

// Observer receives trace events. Implementations must be cheap and
// non-blocking; they run inline on the request path.
type Observer interface {
	OnEvent(event Event)
}

// Nop is the default Observer that discards all events.
type Nop struct{}

// OnEvent implements Observer.
func (Nop) OnEvent(Event) {}

// Emit constructs and delivers an event, timestamping it. A nil
// observer is tolerated so call sites never need guards.
func Emit(obs Observer, kind EventKind, mutate func(*Event)) {
	if obs == nil {
		return
	}
	e := Event{Kind: kind, At: time.Now()}
	if mutate != nil {
		mutate(&e)
	}
	obs.OnEvent(e)
}
