package reasoning

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/pkg/types"
)

// GuardedReasoner wraps a Reasoner with a circuit breaker and a rate
// limiter. The breaker protects the core from a degraded capability
// (after consecutive failures it rejects calls immediately instead of
// waiting out timeouts); the limiter keeps reasoning traffic inside its
// operational budget so the hot resolution path stays cheap.
//
// All failures surface as ErrCapabilityTimeout or
// ErrCapabilityUnavailable so callers can branch on errors.Is without
// knowing the provider.
type GuardedReasoner struct {
	inner   Reasoner
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuardedReasoner wraps inner with the guardrails from cfg.
func NewGuardedReasoner(inner Reasoner, cfg config.ReasoningConfig) *GuardedReasoner {
	settings := gobreaker.Settings{
		Name:    "reasoner",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
	}

	return &GuardedReasoner{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
	}
}

// execute runs fn through the limiter and breaker, normalizing failures
// to the package's typed errors.
func (g *GuardedReasoner) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if !g.limiter.Allow() {
		return nil, ErrCapabilityUnavailable
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	return result, nil
}

// normalizeError maps breaker/context/provider errors onto the typed
// capability failures.
func normalizeError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCapabilityTimeout
	case errors.Is(err, context.Canceled):
		return ErrCapabilityTimeout
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrCapabilityUnavailable
	case errors.Is(err, ErrCapabilityTimeout), errors.Is(err, ErrCapabilityUnavailable):
		return err
	default:
		return ErrCapabilityUnavailable
	}
}

// ResolveCoreference implements Reasoner.
func (g *GuardedReasoner) ResolveCoreference(ctx context.Context, mention string, candidates []types.ResolutionCandidate, rc CoreferenceContext) (string, error) {
	result, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.ResolveCoreference(ctx, mention, candidates, rc)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// ExtractTriples implements Reasoner.
func (g *GuardedReasoner) ExtractTriples(ctx context.Context, text string, entityIDs []string) ([]Triple, error) {
	result, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.ExtractTriples(ctx, text, entityIDs)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Triple), nil
}

// ClassifyQuery implements Reasoner.
func (g *GuardedReasoner) ClassifyQuery(ctx context.Context, query string) (string, error) {
	result, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.ClassifyQuery(ctx, query)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Summarize implements Reasoner.
func (g *GuardedReasoner) Summarize(ctx context.Context, sources []string) (string, error) {
	result, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.Summarize(ctx, sources)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// GenerateReply implements Reasoner.
func (g *GuardedReasoner) GenerateReply(ctx context.Context, prompt string) (string, error) {
	result, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.GenerateReply(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// State returns the breaker state for health reporting: "closed",
// "open", or "half-open".
func (g *GuardedReasoner) State() string {
	switch g.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// EmbedWithTimeout calls embedder.Embed under deadline and normalizes
// its failure. A nil embedder or any failure yields (nil, typed error);
// readers treat a missing embedding as semantic_similarity = 0.
func EmbedWithTimeout(ctx context.Context, embedder Embedder, text string, timeout time.Duration) ([]float32, error) {
	if embedder == nil {
		return nil, ErrCapabilityUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, normalizeError(err)
	}
	return vec, nil
}
