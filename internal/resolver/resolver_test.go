package resolver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/reasoning"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// fakeEntities is an in-memory EntityStore with canned fuzzy results.
type fakeEntities struct {
	entities map[string]*types.CanonicalEntity          // by ID
	aliases  map[string]*types.EntityAlias              // by "alias|user"
	fuzzy    map[string][]storage.EntityMatch           // by lowercased search text
	upserts  []*types.EntityAlias
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{
		entities: make(map[string]*types.CanonicalEntity),
		aliases:  make(map[string]*types.EntityAlias),
		fuzzy:    make(map[string][]storage.EntityMatch),
	}
}

func (f *fakeEntities) add(entity *types.CanonicalEntity) *types.CanonicalEntity {
	f.entities[entity.ID] = entity
	return entity
}

func (f *fakeEntities) CreateOrGet(_ context.Context, entityType, externalRef, name string) (*types.CanonicalEntity, error) {
	for _, e := range f.entities {
		if e.EntityType == entityType && e.ExternalRef == externalRef {
			return e, nil
		}
	}
	entity := &types.CanonicalEntity{
		ID:            types.NewID("ent:" + entityType),
		EntityType:    entityType,
		CanonicalName: name,
		ExternalRef:   externalRef,
		CreatedAt:     time.Now(),
	}
	f.entities[entity.ID] = entity
	return entity, nil
}

func (f *fakeEntities) GetEntity(_ context.Context, id string) (*types.CanonicalEntity, error) {
	if e, ok := f.entities[id]; ok {
		return e, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeEntities) FindByName(_ context.Context, name string) (*types.CanonicalEntity, error) {
	for _, e := range f.entities {
		if strings.EqualFold(e.CanonicalName, name) {
			return e, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeEntities) FuzzySearch(_ context.Context, text string, _ float64) ([]storage.EntityMatch, error) {
	return f.fuzzy[strings.ToLower(text)], nil
}

func (f *fakeEntities) FindAlias(_ context.Context, aliasText, userID string) (*types.EntityAlias, error) {
	if a, ok := f.aliases[strings.ToLower(aliasText)+"|"+userID]; ok {
		return a, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeEntities) CreateOrTouchAlias(_ context.Context, alias *types.EntityAlias) error {
	key := strings.ToLower(alias.AliasText) + "|" + alias.UserID
	if existing, ok := f.aliases[key]; ok {
		existing.UseCount++
	} else {
		clone := *alias
		f.aliases[key] = &clone
	}
	f.upserts = append(f.upserts, alias)
	return nil
}

func (f *fakeEntities) ListAliases(_ context.Context, entityID string) ([]*types.EntityAlias, error) {
	var out []*types.EntityAlias
	for _, a := range f.aliases {
		if a.EntityID == entityID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeEntities) Close() error { return nil }

// fakeDomain serves canned domain records.
type fakeDomain struct {
	records map[string][]types.DomainRecord
}

func (f *fakeDomain) SearchEntities(_ context.Context, text, _ string) ([]types.DomainRecord, error) {
	return f.records[strings.ToLower(text)], nil
}

// slowReasoner blocks until its context is cancelled, simulating a
// coreference call that exceeds its deadline.
type slowReasoner struct{}

func (slowReasoner) ResolveCoreference(ctx context.Context, _ string, _ []types.ResolutionCandidate, _ reasoning.CoreferenceContext) (string, error) {
	<-ctx.Done()
	return "", reasoning.ErrCapabilityTimeout
}
func (slowReasoner) ExtractTriples(context.Context, string, []string) ([]reasoning.Triple, error) {
	return nil, nil
}
func (slowReasoner) ClassifyQuery(context.Context, string) (string, error) { return "", nil }
func (slowReasoner) Summarize(context.Context, []string) (string, error)   { return "", nil }
func (slowReasoner) GenerateReply(context.Context, string) (string, error) { return "", nil }

// pickReasoner answers coreference with a fixed entity.
type pickReasoner struct{ entityID string }

func (p pickReasoner) ResolveCoreference(context.Context, string, []types.ResolutionCandidate, reasoning.CoreferenceContext) (string, error) {
	return p.entityID, nil
}
func (pickReasoner) ExtractTriples(context.Context, string, []string) ([]reasoning.Triple, error) {
	return nil, nil
}
func (pickReasoner) ClassifyQuery(context.Context, string) (string, error) { return "", nil }
func (pickReasoner) Summarize(context.Context, []string) (string, error)   { return "", nil }
func (pickReasoner) GenerateReply(context.Context, string) (string, error) { return "", nil }

func resolverDefaults() config.ResolverConfig {
	cfg := config.DefaultConfig().Resolver
	cfg.CoreferenceTimeout = 50 * time.Millisecond
	return cfg
}

func match(entity *types.CanonicalEntity, textScore, aliasConfidence float64, useCount int) storage.EntityMatch {
	return storage.EntityMatch{
		Entity:          entity,
		TextScore:       textScore,
		AliasConfidence: aliasConfidence,
		UseCount:        useCount,
	}
}

func TestResolveExactMatch(t *testing.T) {
	store := newFakeEntities()
	acme := store.add(&types.CanonicalEntity{
		ID:            "ent:organization:acme01",
		EntityType:    "organization",
		CanonicalName: "Acme Corporation",
	})
	r := New(store, nil, nil, nil, resolverDefaults(), nil)

	res, err := r.Resolve(context.Background(), "Acme Corporation", "user-1", Context{})
	require.NoError(t, err)
	assert.Equal(t, acme.ID, res.EntityID)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, types.MethodExact, res.Method)
	assert.False(t, res.RequiresDisambiguation)
}

func TestResolveExactMatchIdempotent(t *testing.T) {
	store := newFakeEntities()
	store.add(&types.CanonicalEntity{
		ID:            "ent:organization:acme01",
		EntityType:    "organization",
		CanonicalName: "Acme Corporation",
	})
	r := New(store, nil, nil, nil, resolverDefaults(), nil)

	first, err := r.Resolve(context.Background(), "Acme Corporation", "user-1", Context{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), "Acme Corporation", "user-1", Context{})
		require.NoError(t, err)
		assert.Equal(t, first.EntityID, again.EntityID)
		assert.Equal(t, first.Confidence, again.Confidence)
	}
}

func TestResolveUserAliasTouchesUseCount(t *testing.T) {
	store := newFakeEntities()
	store.add(&types.CanonicalEntity{ID: "ent:organization:acme01", CanonicalName: "Acme Corporation"})
	store.aliases["the acme folks|user-1"] = &types.EntityAlias{
		AliasText:  "the acme folks",
		EntityID:   "ent:organization:acme01",
		UserID:     "user-1",
		Source:     types.AliasSourceUserAlias,
		Confidence: 0.95,
		UseCount:   3,
	}
	r := New(store, nil, nil, nil, resolverDefaults(), nil)

	res, err := r.Resolve(context.Background(), "the acme folks", "user-1", Context{})
	require.NoError(t, err)
	assert.Equal(t, "ent:organization:acme01", res.EntityID)
	assert.Equal(t, types.MethodUserAlias, res.Method)
	assert.Equal(t, 4, store.aliases["the acme folks|user-1"].UseCount)
}

func TestResolveFuzzyAutoResolveLearnsGlobalAlias(t *testing.T) {
	store := newFakeEntities()
	acme := store.add(&types.CanonicalEntity{ID: "ent:organization:acme01", CanonicalName: "Acme Corporation"})
	store.fuzzy["acme corp"] = []storage.EntityMatch{match(acme, 1.0, 0.95, 7)}
	// No embedder wired, so the semantic component is redistributed onto
	// text and history: blended score = 0.6*1.0 + 0.4*0.95 = 0.98.
	cfg := resolverDefaults()
	cfg.FuzzyTextWeight = 0.6
	cfg.FuzzyHistoryWeight = 0.4
	cfg.FuzzySemanticWeight = 0.0
	r := New(store, nil, nil, nil, cfg, nil)

	res, err := r.Resolve(context.Background(), "Acme Corp", "user-1", Context{})
	require.NoError(t, err)
	assert.Equal(t, acme.ID, res.EntityID)
	assert.Equal(t, types.MethodFuzzy, res.Method)
	assert.InDelta(t, 0.98, res.Confidence, 1e-9)

	// The surface form is now a global alias.
	learned, ok := store.aliases["acme corp|"]
	require.True(t, ok, "auto-resolution must learn the mention as a global alias")
	assert.Equal(t, acme.ID, learned.EntityID)
	assert.Equal(t, types.AliasSourceFuzzy, learned.Source)
	assert.True(t, learned.IsGlobal())
}

func TestResolveNarrowGapForcesDisambiguation(t *testing.T) {
	store := newFakeEntities()
	a := store.add(&types.CanonicalEntity{ID: "ent:person:jsmith1", CanonicalName: "John Smith"})
	b := store.add(&types.CanonicalEntity{ID: "ent:person:jsmith2", CanonicalName: "Jon Smith"})
	store.fuzzy["j smith"] = []storage.EntityMatch{
		match(a, 0.90, 0.9, 5),
		match(b, 0.88, 0.9, 2),
	}
	cfg := resolverDefaults()
	cfg.FuzzyTextWeight = 1.0
	cfg.FuzzyHistoryWeight = 0.0
	cfg.FuzzySemanticWeight = 0.0
	r := New(store, nil, nil, nil, cfg, nil)

	res, err := r.Resolve(context.Background(), "J Smith", "user-1", Context{})
	require.NoError(t, err)
	assert.True(t, res.RequiresDisambiguation)
	assert.Empty(t, res.EntityID)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, a.ID, res.Candidates[0].EntityID, "candidates ordered best first")
	assert.Equal(t, b.ID, res.Candidates[1].EntityID)
	assert.Empty(t, store.upserts, "no alias is learned without a resolution")
}

func TestResolveRunnerUpAtBandUpperBoundStillAutoResolves(t *testing.T) {
	store := newFakeEntities()
	a := store.add(&types.CanonicalEntity{ID: "ent:person:jsmith1", CanonicalName: "John Smith"})
	b := store.add(&types.CanonicalEntity{ID: "ent:person:jsmith2", CanonicalName: "Jon Smith"})
	store.fuzzy["john smith sr"] = []storage.EntityMatch{
		match(a, 1.0, 0, 0),
		match(b, 0.85, 0, 0),
	}
	cfg := resolverDefaults()
	cfg.FuzzyTextWeight = 1.0
	cfg.FuzzyHistoryWeight = 0.0
	cfg.FuzzySemanticWeight = 0.0
	r := New(store, nil, nil, nil, cfg, nil)

	// The ambiguous band is [0.65, 0.85): a runner-up exactly at 0.85
	// sits outside it, and the 0.15 top-two gap clears the gap check, so
	// the dominant candidate resolves without disambiguation.
	res, err := r.Resolve(context.Background(), "John Smith Sr", "user-1", Context{})
	require.NoError(t, err)
	assert.False(t, res.RequiresDisambiguation)
	assert.Equal(t, a.ID, res.EntityID)
	assert.Equal(t, types.MethodFuzzy, res.Method)
}

func TestResolveCoreferenceTimeoutFallsThrough(t *testing.T) {
	store := newFakeEntities()
	a := store.add(&types.CanonicalEntity{ID: "ent:person:jsmith1", CanonicalName: "John Smith"})
	b := store.add(&types.CanonicalEntity{ID: "ent:person:jsmith2", CanonicalName: "Jon Smith"})
	store.fuzzy["j smith"] = []storage.EntityMatch{
		match(a, 0.90, 0.9, 5),
		match(b, 0.88, 0.9, 2),
	}
	cfg := resolverDefaults()
	cfg.FuzzyTextWeight = 1.0
	cfg.FuzzyHistoryWeight = 0.0
	cfg.FuzzySemanticWeight = 0.0
	r := New(store, nil, slowReasoner{}, nil, cfg, nil)

	start := time.Now()
	res, err := r.Resolve(context.Background(), "J Smith", "user-1", Context{})
	require.NoError(t, err)
	assert.True(t, res.RequiresDisambiguation, "timeout degrades to the disambiguation request")
	assert.Less(t, time.Since(start), time.Second, "the coreference deadline must bound the call")
}

func TestResolvePronounViaCoreference(t *testing.T) {
	store := newFakeEntities()
	store.add(&types.CanonicalEntity{ID: "ent:person:dana01", CanonicalName: "Dana Reyes"})
	cfg := resolverDefaults()
	r := New(store, nil, pickReasoner{entityID: "ent:person:dana01"}, nil, cfg, nil)

	res, err := r.Resolve(context.Background(), "they", "user-1", Context{
		Utterance:       "did they confirm the order?",
		RecentEntityIDs: []string{"ent:person:dana01"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ent:person:dana01", res.EntityID)
	assert.Equal(t, types.MethodCoreference, res.Method)
	assert.Equal(t, cfg.CoreferenceConfidence, res.Confidence)
}

func TestResolveBootstrapsFromDomainStore(t *testing.T) {
	store := newFakeEntities()
	domain := &fakeDomain{records: map[string][]types.DomainRecord{
		"northwind traders": {{
			ExternalRef: "org-771",
			EntityType:  "organization",
			Name:        "Northwind Traders",
		}},
	}}
	cfg := resolverDefaults()
	r := New(store, domain, nil, nil, cfg, nil)

	res, err := r.Resolve(context.Background(), "Northwind Traders", "user-1", Context{TypeHint: "organization"})
	require.NoError(t, err)
	require.NotEmpty(t, res.EntityID)
	assert.Equal(t, types.MethodDomainBootstrap, res.Method)
	assert.Equal(t, cfg.BootstrapConfidence, res.Confidence)

	created, err := store.GetEntity(context.Background(), res.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "org-771", created.ExternalRef)

	// The bootstrap is idempotent: a second resolution finds the entity
	// at stage 1.
	again, err := r.Resolve(context.Background(), "Northwind Traders", "user-1", Context{})
	require.NoError(t, err)
	assert.Equal(t, res.EntityID, again.EntityID)
	assert.Equal(t, types.MethodExact, again.Method)
}

func TestResolveUnknownMentionUnresolved(t *testing.T) {
	store := newFakeEntities()
	r := New(store, nil, nil, nil, resolverDefaults(), nil)

	res, err := r.Resolve(context.Background(), "completely unknown thing", "user-1", Context{})
	require.NoError(t, err)
	assert.Empty(t, res.EntityID)
	assert.Equal(t, types.MethodUnresolved, res.Method)
	assert.Zero(t, res.Confidence)
	assert.False(t, res.RequiresDisambiguation)
}

func TestResolveEmptyMentionRejected(t *testing.T) {
	r := New(newFakeEntities(), nil, nil, nil, resolverDefaults(), nil)
	_, err := r.Resolve(context.Background(), "   ", "user-1", Context{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestConfirmDisambiguationLearnsUserAlias(t *testing.T) {
	store := newFakeEntities()
	store.add(&types.CanonicalEntity{ID: "ent:person:jsmith1", CanonicalName: "John Smith"})
	cfg := resolverDefaults()
	r := New(store, nil, nil, nil, cfg, nil)

	res, err := r.ConfirmDisambiguation(context.Background(), "J Smith", "user-1", "ent:person:jsmith1")
	require.NoError(t, err)
	assert.Equal(t, "ent:person:jsmith1", res.EntityID)
	assert.Equal(t, types.MethodDisambiguation, res.Method)
	assert.Equal(t, cfg.DisambiguationConfidence, res.Confidence)

	learned, ok := store.aliases["j smith|user-1"]
	require.True(t, ok)
	assert.Equal(t, types.AliasSourceDisambiguation, learned.Source)
	assert.False(t, learned.IsGlobal())

	// The next resolution of the same mention short-circuits at stage 2.
	resolved, err := r.Resolve(context.Background(), "J Smith", "user-1", Context{})
	require.NoError(t, err)
	assert.Equal(t, "ent:person:jsmith1", resolved.EntityID)
	assert.Equal(t, types.MethodUserAlias, resolved.Method)
}

func TestConfirmDisambiguationUnknownEntityFails(t *testing.T) {
	r := New(newFakeEntities(), nil, nil, nil, resolverDefaults(), nil)
	_, err := r.ConfirmDisambiguation(context.Background(), "J Smith", "user-1", "ent:person:ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
