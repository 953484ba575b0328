// Package reasoning defines the ports onto the external semantic
// reasoning and embedding capabilities, plus the guardrails (circuit
// breaker, rate limiting, timeouts) the memory core wraps around them.
//
// Every call through these ports is timeout-bound and returns a typed
// failure; raw provider errors never cross the boundary. The memory
// core always has a deterministic fallback when a capability call
// fails: coreference falls through to domain bootstrap, consolidation
// is skipped for the window, reply generation falls back to a template.
package reasoning

import (
	"context"
	"errors"

	"github.com/scrypster/recollect/pkg/types"
)

var (
	// ErrCapabilityTimeout indicates the capability call exceeded its
	// deadline. Never fatal: callers take their fallback path.
	ErrCapabilityTimeout = errors.New("capability call timed out")

	// ErrCapabilityUnavailable indicates the capability is down or the
	// circuit breaker is open. Never fatal.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
)

// Triple is one extracted (subject, predicate, object) fact with the
// extractor's confidence.
type Triple struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

// CoreferenceContext carries the recent-entity context given to the
// coreference resolver alongside the ambiguous mention.
type CoreferenceContext struct {
	// RecentEntityIDs lists entities mentioned recently in the
	// conversation, most recent first.
	RecentEntityIDs []string

	// Utterance is the full utterance containing the mention.
	Utterance string
}

// Reasoner is the port onto the external semantic-reasoning capability.
type Reasoner interface {
	// ResolveCoreference picks the candidate entity a pronoun or
	// anaphoric mention refers to, or returns empty when it cannot tell.
	ResolveCoreference(ctx context.Context, mention string, candidates []types.ResolutionCandidate, rc CoreferenceContext) (string, error)

	// ExtractTriples extracts structured facts from text, given the
	// entities already resolved in it.
	ExtractTriples(ctx context.Context, text string, entityIDs []string) ([]Triple, error)

	// ClassifyQuery names the retrieval strategy a query calls for, or
	// returns empty when it cannot tell. Consulted only when lexical
	// classification found no signal.
	ClassifyQuery(ctx context.Context, query string) (string, error)

	// Summarize produces one narrative over a set of source texts.
	Summarize(ctx context.Context, sources []string) (string, error)

	// GenerateReply produces a free-form reply for a prompt.
	GenerateReply(ctx context.Context, prompt string) (string, error)
}

// Embedder is the port onto the external embedding capability.
type Embedder interface {
	// Embed returns the vector embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}
