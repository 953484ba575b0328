// Package types contains the domain types shared across the Recollect
// memory core: canonical entities and aliases, the four memory kinds,
// conflict records, and resolution results.
package types

import "time"

// MemoryStatus is the lifecycle status of a semantic memory.
type MemoryStatus string

const (
	// StatusActive marks a memory that is live and retrievable.
	StatusActive MemoryStatus = "active"

	// StatusAging marks a memory that has gone stale (no validation for
	// an extended period, low reinforcement). Aging is computed passively
	// at read time and may be persisted when observed; an aging memory
	// returns to active via explicit validation.
	StatusAging MemoryStatus = "aging"

	// StatusConflicted marks the memory-side value of a conflict that an
	// authoritative external source won. Terminal.
	StatusConflicted MemoryStatus = "conflicted"

	// StatusSuperseded marks a memory replaced by a newer one. Terminal;
	// the winner is recorded in SupersededByMemoryID.
	StatusSuperseded MemoryStatus = "superseded"

	// StatusInvalidated marks a memory explicitly retracted. Terminal.
	StatusInvalidated MemoryStatus = "invalidated"
)

// IsTerminal reports whether the status accepts no further transitions.
func (s MemoryStatus) IsTerminal() bool {
	return s == StatusSuperseded || s == StatusInvalidated || s == StatusConflicted
}

// MemoryKind discriminates the four memory variants that share the
// scorable candidate shape.
type MemoryKind string

const (
	KindSemantic   MemoryKind = "semantic"   // Subject-predicate-object facts
	KindEpisodic   MemoryKind = "episodic"   // Raw conversational observations
	KindProcedural MemoryKind = "procedural" // How-to knowledge
	KindSummary    MemoryKind = "summary"    // Consolidated narratives
)

// Candidate is the uniform scorable shape consumed by the retrieval
// scorer. All four memory kinds implement it; type-specific payload
// stays behind the concrete type so the scorer remains kind-agnostic.
type Candidate interface {
	// CandidateID returns the memory's unique identifier.
	CandidateID() string

	// Kind returns the memory kind for strategy-specific handling
	// (summaries receive a flat boost after weighting).
	Kind() MemoryKind

	// CandidateEmbedding returns the memory's vector embedding, or nil
	// when the embedding has not been backfilled yet.
	CandidateEmbedding() []float32

	// CandidateEntities returns the canonical entity IDs referenced by
	// the memory.
	CandidateEntities() []string

	// CandidateCreatedAt returns the memory's creation time.
	CandidateCreatedAt() time.Time

	// CandidateImportance returns the stored importance in [0, 1].
	CandidateImportance() float64

	// CandidateText returns the text used for token-budget estimation
	// during selection.
	CandidateText() string
}

// SemanticMemory is a durable subject-predicate-object fact extracted
// from conversation, with an explicit confidence and lifecycle model.
// Semantic memories are created by extraction, mutated exclusively by
// the lifecycle manager, and never physically deleted.
type SemanticMemory struct {
	ID              string    `json:"id"`                // Unique identifier (format: mem:sem:slug)
	UserID          string    `json:"user_id"`           // Owning user
	SubjectEntityID string    `json:"subject_entity_id"` // Canonical entity the fact is about
	Predicate       string    `json:"predicate"`         // Relation name (e.g. "delivery_preference")
	ObjectValue     string    `json:"object_value"`      // The fact's value
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Epistemic state
	Confidence         float64      `json:"confidence"`          // Stored confidence in [0, 0.95]
	ReinforcementCount int          `json:"reinforcement_count"` // Times corroborated
	LastValidatedAt    time.Time    `json:"last_validated_at"`   // Decay reference point
	Status             MemoryStatus `json:"status"`              // Lifecycle status

	// SupersededByMemoryID points at the conflict winner when this
	// memory was superseded.
	SupersededByMemoryID string `json:"superseded_by_memory_id,omitempty"`

	// Retrieval signals
	Importance float64   `json:"importance"`          // Importance in [0, 1]
	Embedding  []float32 `json:"embedding,omitempty"` // Nil until backfilled

	// FromAuthoritativeSource marks facts whose value came from the
	// external domain store rather than conversation. Used by the
	// dual-truth conflict rule.
	FromAuthoritativeSource bool `json:"from_authoritative_source,omitempty"`
}

func (m *SemanticMemory) CandidateID() string            { return m.ID }
func (m *SemanticMemory) Kind() MemoryKind               { return KindSemantic }
func (m *SemanticMemory) CandidateEmbedding() []float32  { return m.Embedding }
func (m *SemanticMemory) CandidateEntities() []string    { return []string{m.SubjectEntityID} }
func (m *SemanticMemory) CandidateCreatedAt() time.Time  { return m.CreatedAt }
func (m *SemanticMemory) CandidateImportance() float64   { return m.Importance }
func (m *SemanticMemory) CandidateText() string {
	return m.Predicate + ": " + m.ObjectValue
}

// EpisodicMemory is a raw observation tied to a conversation session.
// Episodic memories feed consolidation and are marked consolidated
// (never deleted) once summarized.
type EpisodicMemory struct {
	ID        string    `json:"id"` // Format: mem:epi:slug
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"` // Conversation session the observation came from
	Content   string    `json:"content"`
	EntityIDs []string  `json:"entity_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Importance float64   `json:"importance"`
	Embedding  []float32 `json:"embedding,omitempty"`

	// Consolidated marks the memory as absorbed into a summary and
	// excludable from future candidate pools.
	Consolidated bool `json:"consolidated,omitempty"`
}

func (m *EpisodicMemory) CandidateID() string           { return m.ID }
func (m *EpisodicMemory) Kind() MemoryKind              { return KindEpisodic }
func (m *EpisodicMemory) CandidateEmbedding() []float32 { return m.Embedding }
func (m *EpisodicMemory) CandidateEntities() []string   { return m.EntityIDs }
func (m *EpisodicMemory) CandidateCreatedAt() time.Time { return m.CreatedAt }
func (m *EpisodicMemory) CandidateImportance() float64  { return m.Importance }
func (m *EpisodicMemory) CandidateText() string         { return m.Content }

// MemorySummary is a consolidated narrative over a set of episodic
// memories. Summaries reference all their sources and are always offered
// to the selector ahead of raw candidates.
type MemorySummary struct {
	ID        string    `json:"id"` // Format: mem:sum:slug
	UserID    string    `json:"user_id"`
	Narrative string    `json:"narrative"`
	SourceIDs []string  `json:"source_ids"` // Episodic memories absorbed by this summary
	EntityIDs []string  `json:"entity_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// WindowKey identifies the session window the summary covers.
	// Consolidation is idempotent per window key.
	WindowKey string `json:"window_key"`

	Importance float64   `json:"importance"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

func (m *MemorySummary) CandidateID() string           { return m.ID }
func (m *MemorySummary) Kind() MemoryKind              { return KindSummary }
func (m *MemorySummary) CandidateEmbedding() []float32 { return m.Embedding }
func (m *MemorySummary) CandidateEntities() []string   { return m.EntityIDs }
func (m *MemorySummary) CandidateCreatedAt() time.Time { return m.CreatedAt }
func (m *MemorySummary) CandidateImportance() float64  { return m.Importance }
func (m *MemorySummary) CandidateText() string         { return m.Narrative }

// ProceduralMemory captures how-to knowledge (multi-step instructions
// the user has taught or confirmed).
type ProceduralMemory struct {
	ID        string    `json:"id"` // Format: mem:pro:slug
	UserID    string    `json:"user_id"`
	Task      string    `json:"task"`
	Steps     []string  `json:"steps"`
	EntityIDs []string  `json:"entity_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Importance float64   `json:"importance"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

func (m *ProceduralMemory) CandidateID() string           { return m.ID }
func (m *ProceduralMemory) Kind() MemoryKind              { return KindProcedural }
func (m *ProceduralMemory) CandidateEmbedding() []float32 { return m.Embedding }
func (m *ProceduralMemory) CandidateEntities() []string   { return m.EntityIDs }
func (m *ProceduralMemory) CandidateCreatedAt() time.Time { return m.CreatedAt }
func (m *ProceduralMemory) CandidateImportance() float64  { return m.Importance }
func (m *ProceduralMemory) CandidateText() string {
	text := m.Task
	for _, s := range m.Steps {
		text += "\n" + s
	}
	return text
}
