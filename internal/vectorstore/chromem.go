package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemStore is an embedded Store backed by chromem-go. It needs no
// external service, which makes it the default for single-node deploys and
// the store every test runs against.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	log        *zap.Logger
	mu         sync.Mutex
}

// NewChromemStore opens (or creates) a chromem database. An empty path
// selects a purely in-memory store.
func NewChromemStore(path, collectionName string, compress bool, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem db: %w", err)
		}
	}

	// Embeddings arrive precomputed; the registered func must never run.
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("chromem store received a chunk without an embedding")
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", collectionName, err)
	}

	return &ChromemStore{db: db, collection: collection, log: logger}, nil
}

// Upsert writes chunks with their ownership metadata.
func (s *ChromemStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		docs[i] = chromem.Document{
			ID:        id,
			Metadata:  chunkMetadata(c),
			Embedding: c.Embedding,
			Content:   c.Text,
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("upserting %d chunks: %w", len(chunks), err)
	}
	s.log.Debug("chunks upserted", zap.Int("count", len(chunks)))
	return nil
}

// Query runs a filtered similarity search.
func (s *ChromemStore) Query(ctx context.Context, embedding []float32, filter Filter, topK int) ([]Result, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// chromem rejects nResults above the collection size
	if count := s.collection.Count(); count == 0 {
		return nil, nil
	} else if topK > count {
		topK = count
	}

	res, err := s.collection.QueryEmbedding(ctx, embedding, topK, filter.metadata(), nil)
	if err != nil {
		return nil, fmt.Errorf("querying chromem: %w", err)
	}

	out := make([]Result, 0, len(res))
	for _, r := range res {
		docID, err := uuid.Parse(r.Metadata[MetaDocumentID])
		if err != nil {
			s.log.Warn("chunk with unparseable document id skipped",
				zap.String("chunk_id", r.ID))
			continue
		}
		out = append(out, Result{
			ChunkID:    r.ID,
			DocumentID: docID,
			Text:       r.Content,
			Filename:   r.Metadata[MetaFilename],
			Scope:      scopeOf(r.Metadata),
			Score:      float64(r.Similarity),
		})
	}
	return out, nil
}

// DeleteByDocument removes every chunk belonging to the document.
func (s *ChromemStore) DeleteByDocument(ctx context.Context, docID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	where := map[string]string{MetaDocumentID: docID.String()}
	if err := s.collection.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("deleting chunks of document %s: %w", docID, err)
	}
	return nil
}

// Close is a no-op for the embedded store; persistence is write-through.
func (s *ChromemStore) Close() error { return nil }
