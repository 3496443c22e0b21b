package document

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fyrsmithlabs/knowledged/internal/kberr"
	"github.com/fyrsmithlabs/knowledged/internal/quota"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

// Registry owns document lifecycle: registration with quota admission,
// status transitions, indexing handoff and deletion.
type Registry struct {
	db     *gorm.DB
	ledger *quota.Ledger
	store  vectorstore.Store
	log    *zap.Logger
}

// NewRegistry constructs a Registry.
func NewRegistry(db *gorm.DB, ledger *quota.Ledger, store vectorstore.Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{db: db, ledger: ledger, store: store, log: logger}
}

// RegisterUpload admits and records a new document in one transaction:
// quota admission and the row insert commit or roll back together, so an
// over-quota upload leaves no trace. The returned document is in the
// processing state.
func (r *Registry) RegisterUpload(ctx context.Context, actor tenant.Context, visibility, filename, contentHash string, sizeBytes int64) (*Document, error) {
	var orgID *uuid.UUID
	switch visibility {
	case VisibilityOrganization:
		if !actor.InOrganization() {
			return nil, fmt.Errorf("organization visibility requires organization membership: %w", kberr.ErrPermissionDenied)
		}
		orgID = actor.OrganizationID
	case VisibilityPrivate:
		// private documents never carry an organization id
	default:
		return nil, fmt.Errorf("unknown visibility %q: %w", visibility, kberr.ErrPermissionDenied)
	}

	doc := &Document{
		Filename:       filename,
		UploadedBy:     actor.UserID,
		OrganizationID: orgID,
		Visibility:     visibility,
		Status:         StatusProcessing,
		ContentHash:    contentHash,
		SizeBytes:      sizeBytes,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := ownerScope(visibility, orgID, actor.UserID)
		var dupes int64
		if err := tx.Model(&Document{}).
			Where("owner_scope = ? AND content_hash = ?", scope, contentHash).
			Count(&dupes).Error; err != nil {
			return fmt.Errorf("checking for duplicate content: %w", err)
		}
		if dupes > 0 {
			return fmt.Errorf("identical document already exists in this scope: %w", kberr.ErrNameConflict)
		}

		if visibility == VisibilityOrganization {
			var org tenant.Organization
			if err := tx.First(&org, "id = ?", *orgID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("organization %s: %w", orgID, kberr.ErrNotFound)
				}
				return fmt.Errorf("loading organization: %w", err)
			}
			if err := r.ledger.AdmitOrgDocumentIn(tx, org.ID, org.MaxDocuments); err != nil {
				return err
			}
		} else {
			if err := r.ledger.AdmitPrivateDocumentIn(tx, actor.UserID); err != nil {
				return err
			}
		}

		if err := tx.Create(doc).Error; err != nil {
			// a concurrent identical upload can slip past the pre-check
			// and land on the unique index instead
			if isUniqueViolation(err) {
				return fmt.Errorf("identical document already exists in this scope: %w", kberr.ErrNameConflict)
			}
			return fmt.Errorf("creating document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("document registered",
		zap.String("document_id", doc.ID.String()),
		zap.String("visibility", visibility),
		zap.String("filename", filename))
	return doc, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// Get loads a document the actor is allowed to see.
func (r *Registry) Get(ctx context.Context, actor tenant.Context, docID uuid.UUID) (*Document, error) {
	var doc Document
	err := r.db.WithContext(ctx).First(&doc, "id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %s: %w", docID, kberr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if !visibleTo(actor, &doc) {
		// indistinguishable from absent, so document ids cannot be probed
		return nil, fmt.Errorf("document %s: %w", docID, kberr.ErrNotFound)
	}
	return &doc, nil
}

func visibleTo(actor tenant.Context, doc *Document) bool {
	if doc.UploadedBy == actor.UserID {
		return true
	}
	return doc.Visibility == VisibilityOrganization &&
		doc.OrganizationID != nil &&
		actor.SameOrganization(*doc.OrganizationID)
}

// MarkIndexing transitions processing -> indexing.
func (r *Registry) MarkIndexing(ctx context.Context, docID uuid.UUID) error {
	return r.transition(ctx, docID, StatusProcessing, map[string]any{"status": StatusIndexing})
}

// MarkIndexed transitions indexing -> indexed and records the chunk count.
func (r *Registry) MarkIndexed(ctx context.Context, docID uuid.UUID, chunkCount int) error {
	return r.transition(ctx, docID, StatusIndexing, map[string]any{
		"status":      StatusIndexed,
		"chunk_count": chunkCount,
		"fail_reason": "",
	})
}

// MarkFailed transitions processing or indexing -> failed with a reason the
// uploader will see.
func (r *Registry) MarkFailed(ctx context.Context, docID uuid.UUID, reason string) error {
	res := r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status IN ?", docID, []string{StatusProcessing, StatusIndexing}).
		Updates(map[string]any{"status": StatusFailed, "fail_reason": reason})
	if res.Error != nil {
		return fmt.Errorf("marking document failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.transitionMiss(ctx, docID, "processing or indexing")
	}
	return nil
}

func (r *Registry) transition(ctx context.Context, docID uuid.UUID, from string, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status = ?", docID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("updating document status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.transitionMiss(ctx, docID, from)
	}
	return nil
}

func (r *Registry) transitionMiss(ctx context.Context, docID uuid.UUID, want string) error {
	var doc Document
	err := r.db.WithContext(ctx).First(&doc, "id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("document %s: %w", docID, kberr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}
	return fmt.Errorf("document %s is %s, expected %s", docID, doc.Status, want)
}

// ChunkInput is one embedded chunk handed over for indexing.
type ChunkInput struct {
	Ordinal   int
	Text      string
	Embedding []float32
}

// IndexChunks pushes a processed document's chunks into the vector store
// with the document's ownership metadata, walking the status machine
// processing -> indexing -> indexed. An upsert failure marks the document
// failed and surfaces the upstream error.
func (r *Registry) IndexChunks(ctx context.Context, docID uuid.UUID, chunks []ChunkInput) error {
	var doc Document
	err := r.db.WithContext(ctx).First(&doc, "id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("document %s: %w", docID, kberr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}

	if err := r.MarkIndexing(ctx, docID); err != nil {
		return err
	}

	stored := make([]vectorstore.Chunk, len(chunks))
	for i, c := range chunks {
		stored[i] = vectorstore.Chunk{
			ID:             uuid.New().String(),
			DocumentID:     doc.ID,
			Ordinal:        c.Ordinal,
			Text:           c.Text,
			Embedding:      c.Embedding,
			Filename:       doc.Filename,
			Visibility:     doc.Visibility,
			OrganizationID: doc.OrganizationID,
			UploadedBy:     doc.UploadedBy,
		}
	}

	if err := r.store.Upsert(ctx, stored); err != nil {
		if markErr := r.MarkFailed(ctx, docID, "indexing failed: "+err.Error()); markErr != nil {
			r.log.Error("failed to record indexing failure",
				zap.String("document_id", docID.String()),
				zap.Error(markErr))
		}
		return fmt.Errorf("indexing document %s: %w", docID, err)
	}

	return r.MarkIndexed(ctx, docID, len(chunks))
}

// Delete removes a document. Uploaders delete their own documents;
// organization admins and owners additionally delete any organization
// document of their organization. The vector store delete runs first
// (idempotent); the row removal and quota release commit together only
// after the chunks are gone, so a failed vector delete leaves the row in
// place and the whole operation retryable.
func (r *Registry) Delete(ctx context.Context, actor tenant.Context, docID uuid.UUID) error {
	var doc Document
	err := r.db.WithContext(ctx).First(&doc, "id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("document %s: %w", docID, kberr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}

	allowed := doc.UploadedBy == actor.UserID ||
		(doc.Visibility == VisibilityOrganization &&
			doc.OrganizationID != nil &&
			actor.SameOrganization(*doc.OrganizationID) &&
			actor.CanManageOrgDocuments())
	if !allowed {
		return fmt.Errorf("not allowed to delete this document: %w", kberr.ErrPermissionDenied)
	}

	if err := r.store.DeleteByDocument(ctx, docID); err != nil {
		r.log.Error("vector store delete failed, keeping document row",
			zap.String("document_id", docID.String()),
			zap.Error(err))
		return fmt.Errorf("deleting document chunks: %w", err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&Document{}, "id = ?", docID)
		if res.Error != nil {
			return fmt.Errorf("deleting document row: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// lost a race with a concurrent delete
			return fmt.Errorf("document %s: %w", docID, kberr.ErrNotFound)
		}
		if doc.Visibility == VisibilityOrganization {
			return r.ledger.ReleaseOrgDocumentSlotIn(tx, *doc.OrganizationID)
		}
		return r.ledger.ReleasePrivateDocumentSlotIn(tx, doc.UploadedBy)
	})
	if err != nil {
		return err
	}

	r.log.Info("document deleted",
		zap.String("document_id", docID.String()),
		zap.String("actor_id", actor.UserID.String()))
	return nil
}

// ListVisible returns the union of the actor's organization documents and
// their own private documents, newest first.
func (r *Registry) ListVisible(ctx context.Context, actor tenant.Context) ([]Document, error) {
	q := r.db.WithContext(ctx).Model(&Document{})
	if actor.InOrganization() {
		q = q.Where(
			"(visibility = ? AND organization_id = ?) OR (visibility = ? AND uploaded_by = ?)",
			VisibilityOrganization, *actor.OrganizationID,
			VisibilityPrivate, actor.UserID,
		)
	} else {
		q = q.Where("visibility = ? AND uploaded_by = ?", VisibilityPrivate, actor.UserID)
	}

	var docs []Document
	if err := q.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// PurgeOrganization hard-deletes every organization document and its chunks,
// part of the organization deletion cascade. Vector deletes run per document
// before the rows go; a failed vector delete aborts the purge with the rows
// intact, so re-running the cascade retries it.
func (r *Registry) PurgeOrganization(ctx context.Context, orgID uuid.UUID) error {
	var docs []Document
	err := r.db.WithContext(ctx).
		Where("visibility = ? AND organization_id = ?", VisibilityOrganization, orgID).
		Find(&docs).Error
	if err != nil {
		return fmt.Errorf("listing organization documents: %w", err)
	}

	for _, doc := range docs {
		if err := r.store.DeleteByDocument(ctx, doc.ID); err != nil {
			r.log.Error("vector purge failed, keeping document rows",
				zap.String("document_id", doc.ID.String()),
				zap.Error(err))
			return fmt.Errorf("purging chunks for document %s: %w", doc.ID, err)
		}
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Document{}, "visibility = ? AND organization_id = ?",
			VisibilityOrganization, orgID).Error; err != nil {
			return fmt.Errorf("deleting organization documents: %w", err)
		}
		return r.ledger.ResetOrgUsageIn(tx, orgID)
	})
	if err != nil {
		return err
	}

	r.log.Info("organization documents purged",
		zap.String("org_id", orgID.String()),
		zap.Int("count", len(docs)))
	return nil
}
