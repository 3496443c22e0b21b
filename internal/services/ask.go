package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fyrsmithlabs/knowledged/internal/answer"
	"github.com/fyrsmithlabs/knowledged/internal/customize"
	"github.com/fyrsmithlabs/knowledged/internal/document"
	"github.com/fyrsmithlabs/knowledged/internal/kberr"
	"github.com/fyrsmithlabs/knowledged/internal/quota"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// AskRequest is one end-user question.
type AskRequest struct {
	Question string
	Scope    string // organization, private or all; defaults to all
	TopK     int    // 0 means the engine default
}

// AskResponse is the assembled answer plus retrieval metadata.
type AskResponse struct {
	Answer     string
	Sources    []string
	Confidence int
	ChunkCount int
	LatencyMS  int64
}

// AskService runs the end-to-end question flow: tenant resolution, quota
// admission, retrieval, customization and assembly. Quota is charged at
// admission; a failed retrieval or completion does not refund it.
type AskService struct {
	db        *gorm.DB
	directory *tenant.Directory
	ledger    *quota.Ledger
	documents *document.Registry
	resolver  *customize.Resolver
	engine    *retrieval.Engine
	assembler *answer.Assembler
	log       *zap.Logger
}

// NewAskService constructs an AskService from the registry.
func NewAskService(db *gorm.DB, reg Registry, logger *zap.Logger) *AskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AskService{
		db:        db,
		directory: reg.Directory(),
		ledger:    reg.Ledger(),
		documents: reg.Documents(),
		resolver:  reg.Customization(),
		engine:    reg.Retrieval(),
		assembler: reg.Assembler(),
		log:       logger,
	}
}

// Ask answers a question for the given user.
func (s *AskService) Ask(ctx context.Context, userID uuid.UUID, req AskRequest) (*AskResponse, error) {
	start := time.Now()

	actor, err := s.directory.ResolveContext(ctx, userID)
	if err != nil {
		return nil, err
	}

	scope := req.Scope
	if scope == "" {
		scope = retrieval.ScopeAll
	}

	limits, err := s.orgLimits(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.AdmitQuery(ctx, userID, limits); err != nil {
		return nil, err
	}

	chunks, err := s.engine.Search(ctx, actor, req.Question, scope, retrieval.Options{TopK: req.TopK})
	if err != nil {
		return nil, err
	}

	cfg, err := s.resolver.Resolve(ctx, actor.OrganizationID)
	if err != nil {
		return nil, err
	}

	assembled, err := s.assembler.BuildAnswer(ctx, req.Question, chunks, cfg)
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	s.ledger.LogQuery(ctx, &quota.QueryLog{
		UserID:         userID,
		OrganizationID: actor.OrganizationID,
		Scope:          scope,
		LatencyMS:      latency,
		SourceCount:    len(assembled.Sources),
	})

	return &AskResponse{
		Answer:     assembled.Text,
		Sources:    assembled.Sources,
		Confidence: assembled.Confidence,
		ChunkCount: len(chunks),
		LatencyMS:  latency,
	}, nil
}

// Usage reports the caller's current consumption against effective limits.
func (s *AskService) Usage(ctx context.Context, userID uuid.UUID) (*quota.Usage, error) {
	actor, err := s.directory.ResolveContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	limits, err := s.orgLimits(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.ledger.CurrentUsage(ctx, userID, limits)
}

// orgLimits loads the actor's organization limits, or nil in personal mode.
// Members of a suspended organization cannot query under it.
func (s *AskService) orgLimits(ctx context.Context, actor tenant.Context) (*quota.OrgLimits, error) {
	if !actor.InOrganization() {
		return nil, nil
	}
	org, err := s.directory.GetOrganization(ctx, *actor.OrganizationID)
	if err != nil {
		return nil, err
	}
	if org.Status != tenant.OrgActive {
		return nil, kberr.ErrPermissionDenied
	}
	return &quota.OrgLimits{
		ID:           org.ID,
		PerUserDaily: org.MaxQueriesPerUserDaily,
		OrgDaily:     org.MaxQueriesOrgDaily,
		MaxDocuments: org.MaxDocuments,
	}, nil
}

// DeleteOrganization soft-deletes the organization and cascades: memberships
// end, invites are revoked, shared documents and their vectors are purged,
// settings rows are removed. Private documents of former members survive.
func (s *AskService) DeleteOrganization(ctx context.Context, actor tenant.Context, orgID uuid.UUID) error {
	if err := s.directory.SoftDeleteOrganization(ctx, actor, orgID); err != nil {
		return err
	}
	if err := s.documents.PurgeOrganization(ctx, orgID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.resolver.DeleteSettingsIn(tx, orgID)
	})
}
