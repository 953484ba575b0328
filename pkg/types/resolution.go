package types

// ResolutionMethod records which stage of the resolution pipeline
// produced an answer.
type ResolutionMethod string

const (
	MethodExact           ResolutionMethod = "exact"            // Case-insensitive canonical-name match
	MethodUserAlias       ResolutionMethod = "user_alias"       // User-scoped learned alias
	MethodFuzzy           ResolutionMethod = "fuzzy"            // Fuzzy auto-resolution
	MethodCoreference     ResolutionMethod = "coreference"      // Reasoning-capability coreference
	MethodDomainBootstrap ResolutionMethod = "domain_bootstrap" // New entity created from the domain store
	MethodDisambiguation  ResolutionMethod = "disambiguation"   // Explicit user choice
	MethodUnresolved      ResolutionMethod = "unresolved"       // No candidate anywhere
)

// ResolutionCandidate is one scored alternative surfaced when a mention
// cannot be auto-resolved.
type ResolutionCandidate struct {
	EntityID      string  `json:"entity_id"`
	CanonicalName string  `json:"canonical_name"`
	Score         float64 `json:"score"` // Combined fuzzy score in [0, 1]
}

// Resolution is the outcome of resolving a free-text mention. Ambiguous
// and unresolved outcomes are normal results, not errors: callers check
// RequiresDisambiguation and EntityID.
type Resolution struct {
	// EntityID is the resolved canonical entity, or empty when the
	// mention is ambiguous or unresolved.
	EntityID string `json:"entity_id,omitempty"`

	// Confidence is the resolution confidence in [0, 1]. Zero when
	// unresolved.
	Confidence float64 `json:"confidence"`

	// Method records the stage that produced this outcome.
	Method ResolutionMethod `json:"method"`

	// Candidates holds the surviving alternatives when disambiguation is
	// required, best first.
	Candidates []ResolutionCandidate `json:"candidates,omitempty"`

	// RequiresDisambiguation is true when the caller must pick among
	// Candidates before the mention can be bound to an identity.
	RequiresDisambiguation bool `json:"requires_disambiguation"`
}

// Resolved reports whether the mention was bound to a single entity.
func (r *Resolution) Resolved() bool {
	return r.EntityID != "" && !r.RequiresDisambiguation
}
