package vectorstore

import (
	"context"

	"github.com/google/uuid"
)

// Store is the vector store capability. Query filters are mandatory and
// validated fail-closed by each implementation.
type Store interface {
	// Upsert writes a document's chunks with their ownership metadata.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Query returns up to topK chunks matching the filter, ordered by
	// descending similarity.
	Query(ctx context.Context, embedding []float32, filter Filter, topK int) ([]Result, error)

	// DeleteByDocument removes every chunk of a document. Idempotent;
	// deleting an absent document succeeds.
	DeleteByDocument(ctx context.Context, docID uuid.UUID) error

	// Close releases the underlying client or database.
	Close() error
}
