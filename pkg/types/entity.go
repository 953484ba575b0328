package types

import "time"

// CanonicalEntity is the stable identity record for a real-world object
// (a person, an organization, a product, ...). Entities are created
// idempotently on their natural key (Type, ExternalRef) and are only
// mutated by administrative updates, never by resolution reads.
type CanonicalEntity struct {
	// Core identification fields
	ID            string    `json:"id"`             // Unique identifier (format: ent:type:slug)
	EntityType    string    `json:"entity_type"`    // Entity type (person, organization, ...)
	CanonicalName string    `json:"canonical_name"` // Display name, unique per type in practice
	ExternalRef   string    `json:"external_ref"`   // Key into the external domain store
	CreatedAt     time.Time `json:"created_at"`     // Creation timestamp
	UpdatedAt     time.Time `json:"updated_at"`     // Last update timestamp

	// Properties holds type-specific attributes copied from the domain
	// store at bootstrap time. Opaque to the resolver.
	Properties map[string]interface{} `json:"properties,omitempty"`

	// Embedding is an optional vector used for semantic similarity during
	// fuzzy resolution. Nil until backfilled.
	Embedding []float32 `json:"embedding,omitempty"`
}

// AliasSource records which resolution stage learned an alias.
type AliasSource string

const (
	// AliasSourceExact marks aliases seeded from canonical names.
	AliasSourceExact AliasSource = "exact"

	// AliasSourceUserAlias marks aliases explicitly taught by a user.
	AliasSourceUserAlias AliasSource = "user_alias"

	// AliasSourceFuzzy marks aliases learned by fuzzy auto-resolution.
	AliasSourceFuzzy AliasSource = "fuzzy"

	// AliasSourceCoreference marks aliases learned via coreference resolution.
	AliasSourceCoreference AliasSource = "coreference"

	// AliasSourceDisambiguation marks aliases learned from an explicit
	// user choice after a disambiguation request.
	AliasSourceDisambiguation AliasSource = "disambiguation"
)

// EntityAlias maps an alternate surface form to a canonical entity.
// Aliases are unique on (AliasText, UserID, EntityID). A blank UserID
// means the alias is global rather than user-scoped.
type EntityAlias struct {
	AliasText  string      `json:"alias_text"`        // The surface form as seen in conversation
	EntityID   string      `json:"entity_id"`         // Canonical entity this alias resolves to
	UserID     string      `json:"user_id,omitempty"` // Owning user; empty = global
	Source     AliasSource `json:"source"`            // Which stage learned the alias
	Confidence float64     `json:"confidence"`        // Mapping confidence, capped at 0.95
	UseCount   int         `json:"use_count"`         // Times this alias has resolved a mention
	CreatedAt  time.Time   `json:"created_at"`        // When the alias was first learned
}

// IsGlobal reports whether the alias applies to all users.
func (a *EntityAlias) IsGlobal() bool {
	return a.UserID == ""
}

// DomainRecord is a read-only row returned by the external domain store.
// The Memory Core bootstraps new canonical entities from these records
// but never writes back to the domain store.
type DomainRecord struct {
	ExternalRef string                 `json:"external_ref"` // Natural key in the domain store
	EntityType  string                 `json:"entity_type"`  // Domain-side type classification
	Name        string                 `json:"name"`         // Display name
	Properties  map[string]interface{} `json:"properties,omitempty"`
}
