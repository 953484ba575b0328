package types

import "time"

// ConflictType categorizes a detected fact conflict.
type ConflictType string

const (
	// ConflictMemoryVsMemory is a clash between two conversation-derived facts.
	ConflictMemoryVsMemory ConflictType = "memory_vs_memory"

	// ConflictMemoryVsDB is a clash between a memory-origin fact and the
	// authoritative external domain store. The db-origin value always wins.
	ConflictMemoryVsDB ConflictType = "memory_vs_db"

	// ConflictTemporal is a clash resolved purely by recency.
	ConflictTemporal ConflictType = "temporal"
)

// ResolutionStrategy names the rule that settled (or failed to settle)
// a conflict.
type ResolutionStrategy string

const (
	StrategyTrustDB          ResolutionStrategy = "trust_db"          // Authoritative source wins unconditionally
	StrategyHigherConfidence ResolutionStrategy = "higher_confidence" // Confidence gap > threshold
	StrategyMoreReinforced   ResolutionStrategy = "more_reinforced"   // Reinforcement-count gap >= threshold
	StrategyNewerWins        ResolutionStrategy = "newer_wins"        // Creation-time gap > threshold
	StrategyUnresolved       ResolutionStrategy = "unresolved"        // Surfaced to the caller, no auto winner
)

// MemoryConflict is an append-only audit record of a detected conflict.
// Every resolution branch, including the unresolved one, produces a
// record. Conflicts are never mutated after creation.
type MemoryConflict struct {
	ID              string             `json:"id"`                  // Unique identifier (format: cfl:slug)
	DetectedAtEvent string             `json:"detected_at_event"`   // Event/request that surfaced the conflict
	Type            ConflictType       `json:"type"`
	Strategy        ResolutionStrategy `json:"resolution_strategy"`
	Rationale       string             `json:"rationale"`           // Human-readable explanation of the chosen rule
	CreatedAt       time.Time          `json:"created_at"`

	// ConflictData carries both values plus the identifying fields of
	// the clashing facts.
	ConflictData map[string]interface{} `json:"conflict_data"`
}
