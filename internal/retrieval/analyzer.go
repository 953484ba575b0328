// Package retrieval implements query-to-context retrieval: lightweight
// query analysis, concurrent candidate generation from four sources,
// pure multi-signal scoring, and budget-constrained selection.
package retrieval

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/reasoning"
	"github.com/scrypster/recollect/internal/resolver"
	"github.com/scrypster/recollect/internal/storage"
)

// Strategy classifies a query for weight-vector selection.
type Strategy string

const (
	// StrategyFactual marks entity-focused fact lookups.
	StrategyFactual Strategy = "factual_entity_focused"

	// StrategyTemporal marks queries anchored to a time window.
	StrategyTemporal Strategy = "temporal"

	// StrategyProcedural marks how-to queries.
	StrategyProcedural Strategy = "procedural"

	// StrategyExploratory is the open-ended default.
	StrategyExploratory Strategy = "exploratory"
)

// Analysis is the feature set retrieval derives from a query before
// candidate generation.
type Analysis struct {
	// Query is the original query text.
	Query string

	// Strategy selects the scoring weight vector.
	Strategy Strategy

	// Embedding is the query embedding, or nil when the embedding
	// capability was unavailable (semantic similarity then scores zero).
	Embedding []float32

	// EntityIDs are the canonical entities resolved from the query.
	EntityIDs []string

	// TimeRange is the explicit temporal window, zero when absent.
	TimeRange storage.TimeRange
}

// Analyzer classifies queries and extracts their retrieval features.
// Classification is lexical first; the reasoning capability is consulted
// only when no lexical signal fires at all, timeout-bound, with the
// exploratory default standing on any failure. The query embedding is
// likewise timeout-bound with a nil fallback.
type Analyzer struct {
	resolver *resolver.Resolver
	reasoner reasoning.Reasoner
	embedder reasoning.Embedder
	cfg      config.RetrievalConfig

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewAnalyzer creates a query analyzer. resolver, reasoner, and embedder
// may each be nil; the entity set stays empty, classification stays
// lexical, and the embedding stays nil respectively.
func NewAnalyzer(res *resolver.Resolver, reasoner reasoning.Reasoner, embedder reasoning.Embedder, cfg config.RetrievalConfig) *Analyzer {
	return &Analyzer{
		resolver: res,
		reasoner: reasoner,
		embedder: embedder,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetClock overrides the analyzer's time source. Intended for tests.
func (a *Analyzer) SetClock(now func() time.Time) {
	a.now = now
}

// Analyze derives the retrieval features for a query.
func (a *Analyzer) Analyze(ctx context.Context, query, userID string) (*Analysis, error) {
	analysis := &Analysis{Query: query}

	analysis.TimeRange = parseTimeRange(query, a.now())

	if a.resolver != nil {
		for _, mention := range extractMentions(query) {
			res, err := a.resolver.Resolve(ctx, mention, userID, resolver.Context{Utterance: query})
			if err != nil {
				continue // best-effort; an unresolvable mention is not an entity signal
			}
			if res.Resolved() {
				analysis.EntityIDs = append(analysis.EntityIDs, res.EntityID)
			}
		}
	}

	analysis.Strategy = classify(query, analysis)
	if analysis.Strategy == StrategyExploratory && a.reasoner != nil {
		analysis.Strategy = a.classifyWithReasoner(ctx, query)
	}

	if a.embedder != nil {
		if vec, err := reasoning.EmbedWithTimeout(ctx, a.embedder, query, a.cfg.EmbedTimeout); err == nil {
			analysis.Embedding = vec
		}
	}

	return analysis, nil
}

// classifyWithReasoner asks the reasoning capability to classify a
// query no lexical cue matched. Any failure or unrecognized answer
// keeps the exploratory default.
func (a *Analyzer) classifyWithReasoner(ctx context.Context, query string) Strategy {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ClassifyTimeout)
	defer cancel()

	answer, err := a.reasoner.ClassifyQuery(ctx, query)
	if err != nil {
		return StrategyExploratory
	}
	switch Strategy(answer) {
	case StrategyFactual, StrategyTemporal, StrategyProcedural:
		return Strategy(answer)
	default:
		return StrategyExploratory
	}
}

// classify picks the retrieval strategy from cheap lexical signals.
func classify(query string, analysis *Analysis) Strategy {
	lower := strings.ToLower(query)

	if !analysis.TimeRange.IsZero() || containsAny(lower, temporalCues) {
		return StrategyTemporal
	}
	if containsAny(lower, proceduralCues) {
		return StrategyProcedural
	}
	if len(analysis.EntityIDs) > 0 {
		return StrategyFactual
	}
	return StrategyExploratory
}

var temporalCues = []string{
	"yesterday", "last week", "last month", "this week", "this morning",
	"ago", "when did", "what happened on", "recently",
}

var proceduralCues = []string{
	"how do i", "how to", "how does", "what are the steps",
	"procedure", "process for", "walk me through", "set up", "configure",
}

// containsAny reports whether s contains any of the given substrings.
func containsAny(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}

// parseTimeRange extracts a coarse explicit window from common temporal
// phrases. Absent a recognized phrase the range stays zero and temporal
// relevance decays by age instead.
func parseTimeRange(query string, now time.Time) storage.TimeRange {
	lower := strings.ToLower(query)

	switch {
	case strings.Contains(lower, "yesterday"):
		return storage.TimeRange{From: now.Add(-48 * time.Hour), To: now.Add(-24 * time.Hour)}
	case strings.Contains(lower, "this morning"), strings.Contains(lower, "today"):
		return storage.TimeRange{From: now.Add(-24 * time.Hour), To: now}
	case strings.Contains(lower, "last week"):
		return storage.TimeRange{From: now.Add(-14 * 24 * time.Hour), To: now.Add(-7 * 24 * time.Hour)}
	case strings.Contains(lower, "this week"):
		return storage.TimeRange{From: now.Add(-7 * 24 * time.Hour), To: now}
	case strings.Contains(lower, "last month"):
		return storage.TimeRange{From: now.Add(-60 * 24 * time.Hour), To: now.Add(-30 * 24 * time.Hour)}
	default:
		return storage.TimeRange{}
	}
}

// extractMentions pulls candidate entity mentions out of a query:
// maximal runs of capitalized words, with possessive suffixes trimmed
// ("Acme's payment terms" yields "Acme").
func extractMentions(query string) []string {
	words := strings.Fields(query)
	var mentions []string
	var run []string

	flush := func() {
		if len(run) > 0 {
			mentions = append(mentions, strings.Join(run, " "))
			run = nil
		}
	}

	for i, word := range words {
		cleaned := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		cleaned = strings.TrimSuffix(strings.TrimSuffix(cleaned, "'s"), "’s")

		if cleaned == "" || !unicode.IsUpper([]rune(cleaned)[0]) {
			flush()
			continue
		}
		// A capitalized first word is usually just sentence case, unless
		// the run continues into the next word.
		if i == 0 && len(words) > 1 && !startsUpper(words[1]) {
			continue
		}
		run = append(run, cleaned)
	}
	flush()

	return mentions
}

// startsUpper reports whether the word begins with an uppercase letter.
func startsUpper(word string) bool {
	runes := []rune(word)
	return len(runes) > 0 && unicode.IsUpper(runes[0])
}
