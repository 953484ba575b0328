// Package resolver turns free-text mentions into canonical entity
// identities via a five-stage pipeline with fallback and cost bounding.
//
// Stages run in order and short-circuit on success: exact canonical
// name, user-scoped alias, fuzzy matching over names and aliases,
// coreference via the reasoning capability (gated and timeout-bound),
// and finally domain-store bootstrap or a disambiguation request.
// Ambiguous and unresolved outcomes are normal results, not errors.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/reasoning"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/internal/trace"
	"github.com/scrypster/recollect/pkg/types"
)

// Context carries the conversational context a resolution happens in.
type Context struct {
	// Utterance is the full utterance containing the mention.
	Utterance string

	// RecentEntityIDs lists entities mentioned recently in the
	// conversation, most recent first. Consumed by coreference.
	RecentEntityIDs []string

	// TypeHint narrows domain-store bootstrap when non-empty.
	TypeHint string
}

// Resolver resolves mentions against the entity/alias store, with the
// domain store and reasoning capability as fallbacks.
type Resolver struct {
	entities storage.EntityStore
	domain   storage.DomainStore
	reasoner reasoning.Reasoner
	embedder reasoning.Embedder
	cfg      config.ResolverConfig
	observer trace.Observer
}

// New creates a resolver. domain, reasoner, and embedder may each be
// nil; the corresponding stages degrade (coreference is skipped,
// bootstrap is skipped, semantic similarity scores zero). observer may
// be nil.
func New(entities storage.EntityStore, domain storage.DomainStore, reasoner reasoning.Reasoner, embedder reasoning.Embedder, cfg config.ResolverConfig, observer trace.Observer) *Resolver {
	if observer == nil {
		observer = trace.Nop{}
	}
	return &Resolver{
		entities: entities,
		domain:   domain,
		reasoner: reasoner,
		embedder: embedder,
		cfg:      cfg,
		observer: observer,
	}
}

// scoredCandidate pairs a fuzzy match with its blended score.
type scoredCandidate struct {
	match storage.EntityMatch
	score float64
}

// Resolve resolves a mention for a user. Identical (mention, context)
// against unchanged state yields the same entity ID; only alias
// counters move as a side effect.
func (r *Resolver) Resolve(ctx context.Context, mention, userID string, rc Context) (*types.Resolution, error) {
	mention = strings.TrimSpace(mention)
	if mention == "" {
		return nil, fmt.Errorf("%w: mention is required", storage.ErrInvalidInput)
	}

	// Stage 1: exact canonical-name match.
	entity, err := r.entities.FindByName(ctx, mention)
	if err == nil {
		r.emitStage("exact", mention, 1.0)
		return r.completed(&types.Resolution{
			EntityID:   entity.ID,
			Confidence: 1.0,
			Method:     types.MethodExact,
		}, mention), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("resolver: exact lookup failed: %w", err)
	}

	// Stage 2: user-scoped alias. A hit bumps the alias's use count.
	if userID != "" {
		alias, aliasErr := r.entities.FindAlias(ctx, mention, userID)
		if aliasErr == nil {
			r.touchAlias(ctx, alias)
			r.emitStage("user_alias", mention, r.cfg.UserAliasConfidence)
			return r.completed(&types.Resolution{
				EntityID:   alias.EntityID,
				Confidence: r.cfg.UserAliasConfidence,
				Method:     types.MethodUserAlias,
			}, mention), nil
		}
		if !errors.Is(aliasErr, storage.ErrNotFound) {
			return nil, fmt.Errorf("resolver: alias lookup failed: %w", aliasErr)
		}
	}

	// Stage 3: fuzzy matching over names and aliases.
	candidates, err := r.fuzzyCandidates(ctx, mention)
	if err != nil {
		return nil, err
	}

	if resolution := r.tryAutoResolve(ctx, mention, candidates); resolution != nil {
		return r.completed(resolution, mention), nil
	}

	ambiguous := retainedCandidates(candidates, r.cfg.AmbiguousBandLow)

	// Stage 4: coreference. Invoked only for pronoun-like mentions or an
	// ambiguous candidate set, and only when a reasoner is wired. This
	// is the single stage permitted a reasoning call.
	if r.reasoner != nil && (isPronounLike(mention) || len(ambiguous) > 0) {
		if resolution := r.tryCoreference(ctx, mention, ambiguous, rc); resolution != nil {
			return r.completed(resolution, mention), nil
		}
	}

	// Stage 5: domain bootstrap, disambiguation request, or unresolved.
	return r.completed(r.stageFive(ctx, mention, ambiguous, rc), mention), nil
}

// fuzzyCandidates runs the fuzzy search and blends each hit's signals:
// text similarity, historical alias confidence, and semantic similarity
// between the mention embedding and the entity embedding. Ordering is
// deterministic: score desc, then use count desc, then created-at asc.
func (r *Resolver) fuzzyCandidates(ctx context.Context, mention string) ([]scoredCandidate, error) {
	matches, err := r.entities.FuzzySearch(ctx, mention, r.cfg.FuzzySearchFloor)
	if err != nil {
		return nil, fmt.Errorf("resolver: fuzzy search failed: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	// One embedding call per resolution, bounded; a failure just zeroes
	// the semantic component for every candidate.
	var mentionVec []float32
	if r.embedder != nil {
		mentionVec, _ = reasoning.EmbedWithTimeout(ctx, r.embedder, mention, r.cfg.CoreferenceTimeout)
	}

	scored := make([]scoredCandidate, 0, len(matches))
	for _, match := range matches {
		semantic := cosine32(mentionVec, match.Entity.Embedding)
		score := r.cfg.FuzzyTextWeight*match.TextScore +
			r.cfg.FuzzyHistoryWeight*match.AliasConfidence +
			r.cfg.FuzzySemanticWeight*semantic
		scored = append(scored, scoredCandidate{match: match, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].match.UseCount != scored[j].match.UseCount {
			return scored[i].match.UseCount > scored[j].match.UseCount
		}
		return scored[i].match.Entity.CreatedAt.Before(scored[j].match.Entity.CreatedAt)
	})

	return scored, nil
}

// tryAutoResolve applies the stage-3 auto-resolution policy: a single
// dominant candidate at or above the threshold resolves immediately and
// the mention is learned as a global alias. A narrow top-two gap or any
// candidate inside the ambiguous band forces fallthrough.
func (r *Resolver) tryAutoResolve(ctx context.Context, mention string, candidates []scoredCandidate) *types.Resolution {
	if len(candidates) == 0 {
		return nil
	}

	top := candidates[0]
	if top.score < r.cfg.AutoResolveThreshold {
		return nil
	}

	if len(candidates) > 1 {
		if top.score-candidates[1].score < r.cfg.DisambiguationGap {
			return nil
		}
		// The ambiguous band is half-open: a runner-up at or above the
		// auto-resolve threshold is governed by the gap check alone.
		for _, c := range candidates[1:] {
			if c.score >= r.cfg.AmbiguousBandLow && c.score < r.cfg.AutoResolveThreshold {
				return nil
			}
		}
	}

	// Alias learning: remember the surface form globally so the next
	// resolution short-circuits at stage 2/1 cost.
	r.learnAlias(ctx, mention, top.match.Entity.ID, "", types.AliasSourceFuzzy, top.score)

	r.emitStage("fuzzy", mention, top.score)
	return &types.Resolution{
		EntityID:   top.match.Entity.ID,
		Confidence: top.score,
		Method:     types.MethodFuzzy,
	}
}

// tryCoreference delegates an ambiguous or anaphoric mention to the
// reasoning capability under a hard deadline. Any failure or an empty
// answer falls through to stage 5.
func (r *Resolver) tryCoreference(ctx context.Context, mention string, candidates []types.ResolutionCandidate, rc Context) *types.Resolution {
	corefCtx, cancel := context.WithTimeout(ctx, r.cfg.CoreferenceTimeout)
	defer cancel()

	entityID, err := r.reasoner.ResolveCoreference(corefCtx, mention, candidates, reasoning.CoreferenceContext{
		RecentEntityIDs: rc.RecentEntityIDs,
		Utterance:       rc.Utterance,
	})
	if err != nil || entityID == "" {
		return nil
	}

	r.emitStage("coreference", mention, r.cfg.CoreferenceConfidence)
	return &types.Resolution{
		EntityID:   entityID,
		Confidence: r.cfg.CoreferenceConfidence,
		Method:     types.MethodCoreference,
	}
}

// stageFive bootstraps from the domain store, or falls back to a
// disambiguation request or the unresolved outcome.
func (r *Resolver) stageFive(ctx context.Context, mention string, candidates []types.ResolutionCandidate, rc Context) *types.Resolution {
	if r.domain != nil {
		records, err := r.domain.SearchEntities(ctx, mention, rc.TypeHint)
		if err == nil && len(records) > 0 {
			record := records[0]
			entity, createErr := r.entities.CreateOrGet(ctx, record.EntityType, record.ExternalRef, record.Name)
			if createErr == nil {
				r.emitStage("domain_bootstrap", mention, r.cfg.BootstrapConfidence)
				return &types.Resolution{
					EntityID:   entity.ID,
					Confidence: r.cfg.BootstrapConfidence,
					Method:     types.MethodDomainBootstrap,
				}
			}
		}
		// Domain-store failures degrade to the candidate/unresolved paths;
		// the store is a read-only collaborator, never a hard dependency
		// of resolution.
	}

	if len(candidates) > 0 {
		r.emitStage("disambiguation_request", mention, candidates[0].Score)
		return &types.Resolution{
			Method:                 types.MethodFuzzy,
			Candidates:             candidates,
			RequiresDisambiguation: true,
		}
	}

	r.emitStage("unresolved", mention, 0)
	return &types.Resolution{
		Confidence: 0,
		Method:     types.MethodUnresolved,
	}
}

// ConfirmDisambiguation persists a caller's explicit choice after a
// disambiguation request as a user-scoped alias, so subsequent
// resolutions of the same mention short-circuit at stage 2.
func (r *Resolver) ConfirmDisambiguation(ctx context.Context, mention, userID, entityID string) (*types.Resolution, error) {
	mention = strings.TrimSpace(mention)
	if mention == "" || entityID == "" {
		return nil, fmt.Errorf("%w: mention and entity ID are required", storage.ErrInvalidInput)
	}

	if _, err := r.entities.GetEntity(ctx, entityID); err != nil {
		return nil, fmt.Errorf("resolver: disambiguation target: %w", err)
	}

	r.learnAlias(ctx, mention, entityID, userID, types.AliasSourceDisambiguation, r.cfg.DisambiguationConfidence)

	return &types.Resolution{
		EntityID:   entityID,
		Confidence: r.cfg.DisambiguationConfidence,
		Method:     types.MethodDisambiguation,
	}, nil
}

// learnAlias persists a learned alias. Alias persistence is best-effort:
// a failure here must not fail a resolution that already succeeded.
func (r *Resolver) learnAlias(ctx context.Context, aliasText, entityID, userID string, source types.AliasSource, confidence float64) {
	if confidence > r.cfg.AliasConfidenceCap {
		confidence = r.cfg.AliasConfidenceCap
	}
	_ = r.entities.CreateOrTouchAlias(ctx, &types.EntityAlias{
		AliasText:  aliasText,
		EntityID:   entityID,
		UserID:     userID,
		Source:     source,
		Confidence: confidence,
		UseCount:   1,
	})
}

// touchAlias bumps an alias's use count on a stage-2 hit.
func (r *Resolver) touchAlias(ctx context.Context, alias *types.EntityAlias) {
	_ = r.entities.CreateOrTouchAlias(ctx, alias)
}

// completed emits the final-outcome trace event and passes the
// resolution through.
func (r *Resolver) completed(resolution *types.Resolution, mention string) *types.Resolution {
	trace.Emit(r.observer, trace.KindResolutionCompleted, func(e *trace.Event) {
		e.Subject = mention
		e.Stage = string(resolution.Method)
		e.Score = resolution.Confidence
		e.Count = len(resolution.Candidates)
	})
	return resolution
}

// emitStage emits a per-stage trace event.
func (r *Resolver) emitStage(stage, mention string, score float64) {
	trace.Emit(r.observer, trace.KindResolutionStage, func(e *trace.Event) {
		e.Stage = stage
		e.Subject = mention
		e.Score = score
	})
}

// retainedCandidates converts scored fuzzy matches at or above the
// ambiguous band into the candidate list surfaced to coreference and
// disambiguation.
func retainedCandidates(candidates []scoredCandidate, bandLow float64) []types.ResolutionCandidate {
	var retained []types.ResolutionCandidate
	for _, c := range candidates {
		if c.score < bandLow {
			continue
		}
		retained = append(retained, types.ResolutionCandidate{
			EntityID:      c.match.Entity.ID,
			CanonicalName: c.match.Entity.CanonicalName,
			Score:         c.score,
		})
	}
	return retained
}

// pronounForms gates the coreference stage to anaphora-like mentions.
var pronounForms = map[string]bool{
	"he": true, "him": true, "his": true,
	"she": true, "her": true, "hers": true,
	"they": true, "them": true, "their": true, "theirs": true,
	"it": true, "its": true,
	"this": true, "that": true, "these": true, "those": true,
}

// isPronounLike reports whether a mention looks like a pronoun or a
// definite anaphoric reference ("the company", "that order").
func isPronounLike(mention string) bool {
	lower := strings.ToLower(mention)
	if pronounForms[lower] {
		return true
	}
	for _, prefix := range []string{"the ", "that ", "this "} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// cosine32 returns the cosine similarity of two vectors, or 0 when
// either is missing or the dimensions disagree.
func cosine32(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	return sim
}
