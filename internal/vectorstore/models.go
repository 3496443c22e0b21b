// Package vectorstore provides the vector store capability: chunk upsert,
// filtered similarity query and delete-by-document, with tenant isolation
// enforced through mandatory metadata filters.
package vectorstore

import (
	"github.com/google/uuid"
)

// Metadata keys attached to every stored chunk. These are the only keys
// filters may match on.
const (
	MetaOrganizationID = "organization_id"
	MetaUploadedBy     = "uploaded_by_user_id"
	MetaVisibility     = "visibility"
	MetaDocumentID     = "document_id"
	MetaFilename       = "filename"
	MetaOrdinal        = "ordinal"
)

// Visibility values mirrored into chunk metadata.
const (
	VisibilityOrganization = "organization"
	VisibilityPrivate      = "private"
)

// Chunk is one retrievable unit of a document, carried with its embedding
// and the ownership metadata isolation filters match on.
type Chunk struct {
	ID             string
	DocumentID     uuid.UUID
	Ordinal        int
	Text           string
	Embedding      []float32
	Filename       string
	Visibility     string
	OrganizationID *uuid.UUID
	UploadedBy     uuid.UUID
}

// Result is one scored chunk returned from a query.
type Result struct {
	ChunkID    string
	DocumentID uuid.UUID
	Text       string
	Filename   string
	Scope      string // organization or private
	Score      float64
}
