package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/knowledged/internal/answer"
	"github.com/fyrsmithlabs/knowledged/internal/completion"
	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/customize"
	"github.com/fyrsmithlabs/knowledged/internal/document"
	"github.com/fyrsmithlabs/knowledged/internal/kberr"
	"github.com/fyrsmithlabs/knowledged/internal/quota"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	deflt   []float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.deflt, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

type fakeCompleter struct {
	response string
	calls    int
}

func (f *fakeCompleter) Complete(_ context.Context, _ completion.Request) (string, error) {
	f.calls++
	return f.response, nil
}

type stack struct {
	ask       *AskService
	reg       Registry
	db        *gorm.DB
	completer *fakeCompleter
	owner     *tenant.User
	org       *tenant.Organization
}

func answerDefaults() config.AnswerDefaults {
	return config.AnswerDefaults{
		SystemPrompt:     config.DefaultSystemPrompt,
		Model:            "gpt-4o-mini",
		Temperature:      0.5,
		MaxTokens:        512,
		ResponseFormat:   "markdown",
		NoResultsMessage: "Nothing relevant was found.",
	}
}

// newStack wires the full service graph against in-memory stores: one
// organization ("Nur") owned by owner, per-user daily query limit 2.
func newStack(t *testing.T) *stack {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&tenant.User{}, &tenant.Organization{}, &tenant.Membership{}, &tenant.Invite{},
		&customize.Settings{},
		&document.Document{},
		&quota.UserQuota{}, &quota.OrgUsage{}, &quota.QueryLog{},
	))

	store, err := vectorstore.NewChromemStore("", "test_chunks", false, nil)
	require.NoError(t, err)

	resolver := customize.NewResolver(db, answerDefaults(), time.Minute, nil)
	defaults := config.OrgQuotaDefaults{
		MaxMembers: 10, MaxDocuments: 5, MaxStorageMB: 100,
		MaxQueriesPerUserDaily: 2, MaxQueriesOrgDaily: 100,
	}
	directory := tenant.NewDirectory(db, defaults, resolver, nil)
	ledger := quota.NewLedger(db, 5, 2, nil)
	documents := document.NewRegistry(db, ledger, store, nil)

	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"prayer times":                {1, 0, 0},
			"Prayer is held five times.":  {1, 0, 0.05},
			"The kitchen closes at nine.": {0, 1, 0},
			"unrelated":                   {0, 0, 1},
		},
		deflt: []float32{0, 0, 1},
	}
	engine := retrieval.NewEngine(store, embedder, retrieval.Config{TopK: 5, ScoreThreshold: 0.3}, nil)

	completer := &fakeCompleter{response: "Prayer is held five times a day."}
	assembler := answer.NewAssembler(completer, nil)

	reg := NewRegistry(Options{
		Directory:     directory,
		Ledger:        ledger,
		Documents:     documents,
		Customization: resolver,
		Retrieval:     engine,
		Assembler:     assembler,
		VectorStore:   store,
		Embedder:      embedder,
		Completer:     completer,
	})

	owner := &tenant.User{Email: "owner@nur.example"}
	require.NoError(t, db.Create(owner).Error)
	org, err := directory.CreateOrganization(context.Background(), owner.ID, "Nur")
	require.NoError(t, err)

	return &stack{
		ask:       NewAskService(db, reg, nil),
		reg:       reg,
		db:        db,
		completer: completer,
		owner:     owner,
		org:       org,
	}
}

// indexDoc registers and indexes one org-shared document for the actor.
func indexDoc(t *testing.T, s *stack, actor tenant.Context, filename, text string, embedding []float32) *document.Document {
	t.Helper()
	doc, err := s.reg.Documents().RegisterUpload(context.Background(), actor,
		vectorstore.VisibilityOrganization, filename, uuid.NewString(), 100)
	require.NoError(t, err)
	require.NoError(t, s.reg.Documents().IndexChunks(context.Background(), doc.ID,
		[]document.ChunkInput{{Ordinal: 0, Text: text, Embedding: embedding}}))
	return doc
}

func ownerActor(s *stack) tenant.Context {
	orgID := s.org.ID
	return tenant.Context{UserID: s.owner.ID, OrganizationID: &orgID, Role: tenant.RoleOwner}
}

func TestAskEndToEnd(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	indexDoc(t, s, ownerActor(s), "schedule.md", "Prayer is held five times.", []float32{1, 0, 0.05})

	resp, err := s.ask.Ask(ctx, s.owner.ID, AskRequest{Question: "prayer times"})
	require.NoError(t, err)

	assert.Equal(t, "Prayer is held five times a day.", resp.Answer)
	assert.Equal(t, []string{"schedule.md"}, resp.Sources)
	assert.Equal(t, 1, resp.ChunkCount)
	assert.Equal(t, 1, s.completer.calls)

	var logged int64
	require.NoError(t, s.db.Model(&quota.QueryLog{}).Count(&logged).Error)
	assert.EqualValues(t, 1, logged)
}

func TestAskNoResults(t *testing.T) {
	s := newStack(t)

	resp, err := s.ask.Ask(context.Background(), s.owner.ID, AskRequest{Question: "unrelated"})
	require.NoError(t, err)

	assert.Equal(t, "Nothing relevant was found.", resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, s.completer.calls)
}

func TestAskDailyQuotaCharged(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	// Per-user daily limit is 2; even no-result questions are charged.
	for i := 0; i < 2; i++ {
		_, err := s.ask.Ask(ctx, s.owner.ID, AskRequest{Question: "unrelated"})
		require.NoError(t, err)
	}
	_, err := s.ask.Ask(ctx, s.owner.ID, AskRequest{Question: "unrelated"})
	require.ErrorIs(t, err, kberr.ErrQuotaExceeded)
	kind, ok := kberr.QuotaKindOf(err)
	require.True(t, ok)
	assert.Equal(t, kberr.QuotaUserDaily, kind)
}

func TestAskSuspendedOrganization(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	require.NoError(t, s.db.Model(&tenant.Organization{}).
		Where("id = ?", s.org.ID).Update("status", tenant.OrgSuspended).Error)

	_, err := s.ask.Ask(ctx, s.owner.ID, AskRequest{Question: "prayer times"})
	require.ErrorIs(t, err, kberr.ErrPermissionDenied)
}

func TestAskPersonalMode(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	solo := &tenant.User{Email: "solo@example.com"}
	require.NoError(t, s.db.Create(solo).Error)

	doc, err := s.reg.Documents().RegisterUpload(ctx, tenant.Context{UserID: solo.ID},
		vectorstore.VisibilityPrivate, "notes.md", uuid.NewString(), 50)
	require.NoError(t, err)
	require.NoError(t, s.reg.Documents().IndexChunks(ctx, doc.ID,
		[]document.ChunkInput{{Ordinal: 0, Text: "Prayer is held five times.", Embedding: []float32{1, 0, 0.05}}}))

	resp, err := s.ask.Ask(ctx, solo.ID, AskRequest{Question: "prayer times"})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.md"}, resp.Sources)
}

func TestAskUnknownUser(t *testing.T) {
	s := newStack(t)
	_, err := s.ask.Ask(context.Background(), uuid.New(), AskRequest{Question: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, kberr.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound))
}

func TestUsageReporting(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.ask.Ask(ctx, s.owner.ID, AskRequest{Question: "unrelated"})
	require.NoError(t, err)

	usage, err := s.ask.Usage(ctx, s.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.QueriesToday)
}

func TestDeleteOrganizationCascade(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	actor := ownerActor(s)
	indexDoc(t, s, actor, "schedule.md", "Prayer is held five times.", []float32{1, 0, 0.05})

	require.NoError(t, s.ask.DeleteOrganization(ctx, actor, s.org.ID))

	// Owner falls back to personal mode and the shared doc is gone.
	resolved, err := s.reg.Directory().ResolveContext(ctx, s.owner.ID)
	require.NoError(t, err)
	assert.False(t, resolved.InOrganization())

	var docs int64
	require.NoError(t, s.db.Model(&document.Document{}).
		Where("organization_id = ?", s.org.ID).Count(&docs).Error)
	assert.Zero(t, docs)

	var settings int64
	require.NoError(t, s.db.Model(&customize.Settings{}).
		Where("organization_id = ?", s.org.ID).Count(&settings).Error)
	assert.Zero(t, settings)
}
