// Package document tracks uploaded documents: ownership, visibility,
// processing status and the indexing handoff to the vector store.
package document

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Visibility classes. A document is owned by exactly one of organization or
// uploader, never both.
const (
	VisibilityOrganization = "organization"
	VisibilityPrivate      = "private"
)

// Processing statuses.
const (
	StatusProcessing = "processing"
	StatusIndexing   = "indexing"
	StatusIndexed    = "indexed"
	StatusFailed     = "failed"
)

// Document is one uploaded file. OwnerScope is a computed column combining
// the owning side into one string ("org:<id>" or "user:<id>") so content
// hash uniqueness can be enforced per scope with a plain composite unique
// index on every supported database.
type Document struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Filename       string     `gorm:"not null" json:"filename"`
	UploadedBy     uuid.UUID  `gorm:"type:uuid;not null;index" json:"uploaded_by_user_id"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	Visibility     string     `gorm:"not null" json:"visibility"`
	Status         string     `gorm:"not null;default:processing" json:"status"`
	FailReason     string     `json:"fail_reason,omitempty"`
	ContentHash    string     `gorm:"not null;uniqueIndex:idx_documents_scope_hash" json:"content_hash"`
	OwnerScope     string     `gorm:"not null;uniqueIndex:idx_documents_scope_hash" json:"-"`
	ChunkCount     int        `gorm:"not null;default:0" json:"chunk_count"`
	SizeBytes      int64      `gorm:"not null;default:0" json:"size_bytes"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.OwnerScope = ownerScope(d.Visibility, d.OrganizationID, d.UploadedBy)
	return nil
}

func (Document) TableName() string { return "documents" }

func ownerScope(visibility string, orgID *uuid.UUID, uploadedBy uuid.UUID) string {
	if visibility == VisibilityOrganization && orgID != nil {
		return fmt.Sprintf("org:%s", orgID)
	}
	return fmt.Sprintf("user:%s", uploadedBy)
}
