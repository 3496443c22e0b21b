package vectorstore

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/knowledged/internal/kberr"
)

// Filter is a conjunctive exact-match predicate over chunk metadata. It is
// fail-closed: a filter with no tenant dimension is rejected before any
// store call, so a coding mistake can never widen a query to all tenants.
// Filters are built only through the constructors below; callers never
// supply raw metadata keys.
type Filter struct {
	organizationID *uuid.UUID
	uploadedBy     *uuid.UUID
	visibility     string
	documentID     *uuid.UUID
}

// OrgFilter scopes a query to one organization's shared documents.
func OrgFilter(orgID uuid.UUID) Filter {
	return Filter{organizationID: &orgID, visibility: VisibilityOrganization}
}

// PrivateFilter scopes a query to one user's private documents.
func PrivateFilter(userID uuid.UUID) Filter {
	return Filter{uploadedBy: &userID, visibility: VisibilityPrivate}
}

// WithDocument narrows the filter to a single document.
func (f Filter) WithDocument(docID uuid.UUID) Filter {
	f.documentID = &docID
	return f
}

// Validate rejects filters that do not pin a tenant dimension.
func (f Filter) Validate() error {
	if f.organizationID == nil && f.uploadedBy == nil {
		return fmt.Errorf("filter lacks a tenant dimension: %w", kberr.ErrUpstreamPermanent)
	}
	return nil
}

// metadata renders the filter as the exact-match map both store
// implementations consume.
func (f Filter) metadata() map[string]string {
	m := make(map[string]string, 3)
	if f.organizationID != nil {
		m[MetaOrganizationID] = f.organizationID.String()
	}
	if f.uploadedBy != nil {
		m[MetaUploadedBy] = f.uploadedBy.String()
	}
	if f.visibility != "" {
		m[MetaVisibility] = f.visibility
	}
	if f.documentID != nil {
		m[MetaDocumentID] = f.documentID.String()
	}
	return m
}

// chunkMetadata renders the metadata stored with a chunk.
func chunkMetadata(c Chunk) map[string]string {
	m := map[string]string{
		MetaUploadedBy: c.UploadedBy.String(),
		MetaVisibility: c.Visibility,
		MetaDocumentID: c.DocumentID.String(),
		MetaFilename:   c.Filename,
		MetaOrdinal:    fmt.Sprintf("%d", c.Ordinal),
	}
	if c.OrganizationID != nil {
		m[MetaOrganizationID] = c.OrganizationID.String()
	}
	return m
}

// scopeOf derives the result scope from stored metadata. Anything without an
// explicit organization visibility reads as private.
func scopeOf(meta map[string]string) string {
	if meta[MetaVisibility] == VisibilityOrganization {
		return VisibilityOrganization
	}
	return VisibilityPrivate
}
