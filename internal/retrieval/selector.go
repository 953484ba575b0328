package retrieval

import (
	"sort"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/trace"
	"github.com/scrypster/recollect/pkg/types"
)

// Selection is the assembled, budget-constrained context for a query.
type Selection struct {
	// Items are the selected candidates, summaries first, then by score
	// descending.
	Items []Scored

	// TokensUsed is the estimated token footprint of the selection.
	TokensUsed int
}

// Selector assembles the final context from scored candidates under a
// count cap and a token budget. Like the scorer it is pure and
// deterministic: ties break by candidate ID.
type Selector struct {
	cfg      config.RetrievalConfig
	observer trace.Observer
}

// NewSelector creates a selector. observer may be nil.
func NewSelector(cfg config.RetrievalConfig, observer trace.Observer) *Selector {
	if observer == nil {
		observer = trace.Nop{}
	}
	return &Selector{cfg: cfg, observer: observer}
}

// Select ranks candidates and assembles the context. Summaries are
// admitted first (capped) regardless of rank, then the remaining
// candidates in score order, until the count cap or the token budget is
// exhausted.
func (s *Selector) Select(scored []Scored) Selection {
	ranked := make([]Scored, len(scored))
	copy(ranked, scored)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Candidate.CandidateID() < ranked[j].Candidate.CandidateID()
	})

	var selection Selection
	admitted := make(map[string]struct{})

	admit := func(item Scored) bool {
		if len(selection.Items) >= s.cfg.MaxResults {
			return false
		}
		tokens := estimateTokens(item.Candidate.CandidateText(), s.cfg.CharsPerToken)
		if selection.TokensUsed+tokens > s.cfg.TokenBudget {
			return false
		}
		selection.Items = append(selection.Items, item)
		selection.TokensUsed += tokens
		admitted[item.Candidate.CandidateID()] = struct{}{}
		return true
	}

	// Pass 1: summaries, up to the cap.
	summariesAdmitted := 0
	for _, item := range ranked {
		if item.Candidate.Kind() != types.KindSummary {
			continue
		}
		if summariesAdmitted >= s.cfg.SummaryCount {
			break
		}
		if !admit(item) {
			break
		}
		summariesAdmitted++
	}

	// Pass 2: everything else in score order.
	for _, item := range ranked {
		if _, dup := admitted[item.Candidate.CandidateID()]; dup {
			continue
		}
		if item.Candidate.Kind() == types.KindSummary {
			continue
		}
		if !admit(item) {
			break
		}
	}

	trace.Emit(s.observer, trace.KindResultsSelected, func(e *trace.Event) {
		e.Count = len(selection.Items)
		e.Score = float64(selection.TokensUsed)
	})

	return selection
}

// estimateTokens approximates a text's token count as its length
// divided by the configured characters-per-token ratio, with a floor of
// one token for non-empty text.
func estimateTokens(text string, charsPerToken int) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len(text) / charsPerToken
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
