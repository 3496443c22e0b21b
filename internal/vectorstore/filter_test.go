package vectorstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/kberr"
)

func TestFilterFailClosed(t *testing.T) {
	var empty Filter
	err := empty.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, kberr.ErrUpstreamPermanent)
}

func TestOrgFilter(t *testing.T) {
	orgID := uuid.New()
	f := OrgFilter(orgID)
	require.NoError(t, f.Validate())

	m := f.metadata()
	assert.Equal(t, orgID.String(), m[MetaOrganizationID])
	assert.Equal(t, VisibilityOrganization, m[MetaVisibility])
	assert.NotContains(t, m, MetaUploadedBy)
}

func TestPrivateFilter(t *testing.T) {
	userID := uuid.New()
	f := PrivateFilter(userID)
	require.NoError(t, f.Validate())

	m := f.metadata()
	assert.Equal(t, userID.String(), m[MetaUploadedBy])
	assert.Equal(t, VisibilityPrivate, m[MetaVisibility])
	assert.NotContains(t, m, MetaOrganizationID)
}

func TestFilterWithDocument(t *testing.T) {
	docID := uuid.New()
	f := PrivateFilter(uuid.New()).WithDocument(docID)
	assert.Equal(t, docID.String(), f.metadata()[MetaDocumentID])
}

func TestChunkMetadata(t *testing.T) {
	orgID := uuid.New()
	userID := uuid.New()
	docID := uuid.New()

	shared := Chunk{
		DocumentID:     docID,
		Ordinal:        2,
		Filename:       "handbook.pdf",
		Visibility:     VisibilityOrganization,
		OrganizationID: &orgID,
		UploadedBy:     userID,
	}
	m := chunkMetadata(shared)
	assert.Equal(t, orgID.String(), m[MetaOrganizationID])
	assert.Equal(t, userID.String(), m[MetaUploadedBy])
	assert.Equal(t, docID.String(), m[MetaDocumentID])
	assert.Equal(t, "handbook.pdf", m[MetaFilename])
	assert.Equal(t, "2", m[MetaOrdinal])
	assert.Equal(t, VisibilityOrganization, scopeOf(m))

	private := Chunk{DocumentID: docID, Visibility: VisibilityPrivate, UploadedBy: userID}
	pm := chunkMetadata(private)
	assert.NotContains(t, pm, MetaOrganizationID)
	assert.Equal(t, VisibilityPrivate, scopeOf(pm))
}
