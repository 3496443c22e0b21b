package vectorstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// test embeddings are tiny unit-ish vectors; cosine similarity ranks by
// direction, so near-parallel vectors score highest
func vec(x, y, z float32) []float32 { return []float32{x, y, z} }

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore("", "test_chunks", false, nil)
	require.NoError(t, err)
	return s
}

type testDoc struct {
	docID  uuid.UUID
	chunks []Chunk
}

func seedDoc(t *testing.T, s *ChromemStore, orgID *uuid.UUID, userID uuid.UUID, visibility, filename string, embedding []float32) testDoc {
	t.Helper()
	docID := uuid.New()
	c := Chunk{
		ID:             uuid.New().String(),
		DocumentID:     docID,
		Ordinal:        0,
		Text:           "content of " + filename,
		Embedding:      embedding,
		Filename:       filename,
		Visibility:     visibility,
		OrganizationID: orgID,
		UploadedBy:     userID,
	}
	require.NoError(t, s.Upsert(context.Background(), []Chunk{c}))
	return testDoc{docID: docID, chunks: []Chunk{c}}
}

func TestChromemQueryIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	orgA := uuid.New()
	orgB := uuid.New()
	alice := uuid.New() // member of orgA
	bob := uuid.New()   // member of orgB

	sharedA := seedDoc(t, s, &orgA, alice, VisibilityOrganization, "a-shared.txt", vec(1, 0, 0))
	seedDoc(t, s, &orgB, bob, VisibilityOrganization, "b-shared.txt", vec(1, 0.1, 0))
	alicePrivate := seedDoc(t, s, nil, alice, VisibilityPrivate, "a-private.txt", vec(1, 0, 0.1))
	seedDoc(t, s, nil, bob, VisibilityPrivate, "b-private.txt", vec(1, 0.1, 0.1))

	query := vec(1, 0, 0)

	t.Run("organization scope", func(t *testing.T) {
		res, err := s.Query(ctx, query, OrgFilter(orgA), 10)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, sharedA.docID, res[0].DocumentID)
		assert.Equal(t, VisibilityOrganization, res[0].Scope)
		assert.Equal(t, "a-shared.txt", res[0].Filename)
	})

	t.Run("private scope", func(t *testing.T) {
		res, err := s.Query(ctx, query, PrivateFilter(alice), 10)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, alicePrivate.docID, res[0].DocumentID)
		assert.Equal(t, VisibilityPrivate, res[0].Scope)
	})

	t.Run("another user's private stays invisible", func(t *testing.T) {
		res, err := s.Query(ctx, query, PrivateFilter(uuid.New()), 10)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("empty filter rejected", func(t *testing.T) {
		_, err := s.Query(ctx, query, Filter{}, 10)
		assert.Error(t, err)
	})
}

func TestChromemQueryOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	orgID := uuid.New()
	userID := uuid.New()

	seedDoc(t, s, &orgID, userID, VisibilityOrganization, "near.txt", vec(1, 0.05, 0))
	seedDoc(t, s, &orgID, userID, VisibilityOrganization, "far.txt", vec(0, 1, 0))
	seedDoc(t, s, &orgID, userID, VisibilityOrganization, "nearest.txt", vec(1, 0, 0))

	res, err := s.Query(ctx, vec(1, 0, 0), OrgFilter(orgID), 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "nearest.txt", res[0].Filename)
	assert.Equal(t, "near.txt", res[1].Filename)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
}

func TestChromemQueryEmptyCollection(t *testing.T) {
	s := newTestStore(t)
	res, err := s.Query(context.Background(), vec(1, 0, 0), PrivateFilter(uuid.New()), 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestChromemDeleteByDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	doc := seedDoc(t, s, nil, userID, VisibilityPrivate, "gone.txt", vec(1, 0, 0))
	keep := seedDoc(t, s, nil, userID, VisibilityPrivate, "kept.txt", vec(0.9, 0.1, 0))

	require.NoError(t, s.DeleteByDocument(ctx, doc.docID))

	res, err := s.Query(ctx, vec(1, 0, 0), PrivateFilter(userID), 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, keep.docID, res[0].DocumentID)

	// idempotent: deleting again succeeds
	require.NoError(t, s.DeleteByDocument(ctx, doc.docID))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(nil))
	assert.False(t, isTransient(assert.AnError))
}
