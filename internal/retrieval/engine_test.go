package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/tenant"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

// fakeEmbedder returns fixed vectors per text, recording calls.
type fakeEmbedder struct {
	vectors map[string][]float32
	deflt   []float32
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.deflt, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type world struct {
	engine   *Engine
	store    *vectorstore.ChromemStore
	embedder *fakeEmbedder
	orgA     uuid.UUID
	orgB     uuid.UUID
	alice    tenant.Context // member of orgA
	bob      tenant.Context // member of orgB
	carol    tenant.Context // personal mode
}

func seed(t *testing.T, s *vectorstore.ChromemStore, orgID *uuid.UUID, userID uuid.UUID, visibility, filename string, embedding []float32) {
	t.Helper()
	require.NoError(t, s.Upsert(context.Background(), []vectorstore.Chunk{{
		ID:             uuid.New().String(),
		DocumentID:     uuid.New(),
		Text:           "content of " + filename,
		Embedding:      embedding,
		Filename:       filename,
		Visibility:     visibility,
		OrganizationID: orgID,
		UploadedBy:     userID,
	}}))
}

func newWorld(t *testing.T, cfg Config) *world {
	t.Helper()
	store, err := vectorstore.NewChromemStore("", "test_chunks", false, nil)
	require.NoError(t, err)

	orgA, orgB := uuid.New(), uuid.New()
	aliceID, bobID, carolID := uuid.New(), uuid.New(), uuid.New()

	w := &world{
		store:    store,
		embedder: &fakeEmbedder{deflt: []float32{1, 0, 0}},
		orgA:     orgA,
		orgB:     orgB,
		alice:    tenant.Context{UserID: aliceID, OrganizationID: &orgA, Role: tenant.RoleMember},
		bob:      tenant.Context{UserID: bobID, OrganizationID: &orgB, Role: tenant.RoleMember},
		carol:    tenant.Context{UserID: carolID},
	}

	seed(t, store, &orgA, aliceID, vectorstore.VisibilityOrganization, "orga-shared.txt", []float32{1, 0, 0})
	seed(t, store, &orgB, bobID, vectorstore.VisibilityOrganization, "orgb-shared.txt", []float32{1, 0.05, 0})
	seed(t, store, nil, aliceID, vectorstore.VisibilityPrivate, "alice-private.txt", []float32{1, 0, 0.05})
	seed(t, store, nil, carolID, vectorstore.VisibilityPrivate, "carol-private.txt", []float32{1, 0.02, 0.02})

	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	w.engine = NewEngine(store, w.embedder, cfg, nil)
	return w
}

func filenames(results []vectorstore.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Filename
	}
	return out
}

func TestSearchScopeOrganization(t *testing.T) {
	w := newWorld(t, Config{})
	res, err := w.engine.Search(context.Background(), w.alice, "question", ScopeOrganization, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"orga-shared.txt"}, filenames(res))

	// personal-mode user gets an empty organization scope, not an error
	res, err = w.engine.Search(context.Background(), w.carol, "question", ScopeOrganization, Options{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSearchScopePrivate(t *testing.T) {
	w := newWorld(t, Config{})
	res, err := w.engine.Search(context.Background(), w.alice, "question", ScopePrivate, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-private.txt"}, filenames(res))
}

func TestSearchScopeAll(t *testing.T) {
	w := newWorld(t, Config{})
	res, err := w.engine.Search(context.Background(), w.alice, "question", ScopeAll, Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"orga-shared.txt", "alice-private.txt"}, filenames(res))

	// personal mode: only the private query runs
	res, err = w.engine.Search(context.Background(), w.carol, "question", ScopeAll, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol-private.txt"}, filenames(res))
}

func TestSearchIsolationAcrossTenants(t *testing.T) {
	w := newWorld(t, Config{})

	// bob searches everything he can see; alice's private document and
	// orgA's shared pool must never surface
	res, err := w.engine.Search(context.Background(), w.bob, "question", ScopeAll, Options{})
	require.NoError(t, err)
	for _, r := range res {
		assert.NotEqual(t, "alice-private.txt", r.Filename)
		assert.NotEqual(t, "orga-shared.txt", r.Filename)
		assert.NotEqual(t, "carol-private.txt", r.Filename)
	}
	assert.Equal(t, []string{"orgb-shared.txt"}, filenames(res))
}

func TestSearchAllIsSubsetOfScopedUnion(t *testing.T) {
	w := newWorld(t, Config{})
	ctx := context.Background()

	all, err := w.engine.Search(ctx, w.alice, "q", ScopeAll, Options{})
	require.NoError(t, err)
	org, err := w.engine.Search(ctx, w.alice, "q", ScopeOrganization, Options{})
	require.NoError(t, err)
	private, err := w.engine.Search(ctx, w.alice, "q", ScopePrivate, Options{})
	require.NoError(t, err)

	union := make(map[string]bool)
	for _, r := range append(org, private...) {
		union[r.ChunkID] = true
	}
	for _, r := range all {
		assert.True(t, union[r.ChunkID], "scope=all returned a chunk absent from both scoped queries")
	}
}

func TestSearchThresholdAndTopK(t *testing.T) {
	w := newWorld(t, Config{})
	res, err := w.engine.Search(context.Background(), w.alice, "q", ScopeAll, Options{TopK: 1})
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = w.engine.Search(context.Background(), w.alice, "q", ScopeAll, Options{ScoreThreshold: 0.999999})
	require.NoError(t, err)
	// only the exactly-parallel chunk survives a near-1.0 threshold
	assert.Equal(t, []string{"orga-shared.txt"}, filenames(res))
}

func TestSearchUnknownScope(t *testing.T) {
	w := newWorld(t, Config{})
	_, err := w.engine.Search(context.Background(), w.alice, "q", "everything", Options{})
	assert.Error(t, err)
}

func TestSearchCache(t *testing.T) {
	w := newWorld(t, Config{CacheTTL: time.Hour})
	ctx := context.Background()

	first, err := w.engine.Search(ctx, w.alice, "q", ScopeAll, Options{})
	require.NoError(t, err)
	callsAfterFirst := w.embedder.calls

	second, err := w.engine.Search(ctx, w.alice, "q", ScopeAll, Options{})
	require.NoError(t, err)
	assert.Equal(t, filenames(first), filenames(second))
	assert.Equal(t, callsAfterFirst, w.embedder.calls, "cached search must not re-embed")

	// a different user never hits the same cache entry
	_, err = w.engine.Search(ctx, w.carol, "q", ScopeAll, Options{})
	require.NoError(t, err)
	assert.Greater(t, w.embedder.calls, callsAfterFirst)
}

func TestSearchQueryExpansion(t *testing.T) {
	store, err := vectorstore.NewChromemStore("", "test_chunks", false, nil)
	require.NoError(t, err)
	userID := uuid.New()
	actor := tenant.Context{UserID: userID}
	seed(t, store, nil, userID, vectorstore.VisibilityPrivate, "doc.txt", []float32{0, 1, 0})

	emb := &fakeEmbedder{
		deflt: []float32{1, 0, 0},
		vectors: map[string][]float32{
			// only the expanded form points at the stored chunk
			"what is kb ritual prayer": {0, 1, 0},
		},
	}
	engine := NewEngine(store, emb, Config{
		TopK:          5,
		ExpandQueries: true,
		Synonyms:      map[string]string{"kb": "ritual prayer"},
	}, nil)

	res, err := engine.Search(context.Background(), actor, "what is kb", ScopeAll, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.txt"}, filenames(res))
}

func TestExpander(t *testing.T) {
	e := NewExpander(map[string]string{"namaz": "ritual prayer", "kb": "knowledge base"})
	assert.Equal(t, "how to perform namaz ritual prayer", e.Expand("how to perform namaz"))
	assert.Equal(t, "plain question", e.Expand("plain question"))
	// no partial-word matches
	assert.Equal(t, "kbdocs", e.Expand("kbdocs"))

	none := NewExpander(nil)
	assert.Equal(t, "anything", none.Expand("anything"))
}
