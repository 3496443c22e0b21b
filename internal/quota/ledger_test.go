package quota

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/knowledged/internal/kberr"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&UserQuota{}, &OrgUsage{}, &QueryLog{}))
	return db
}

func newTestLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	return NewLedger(db, 2, 3, nil), db
}

func TestAdmitPrivateDocument(t *testing.T) {
	l, db := newTestLedger(t)
	userID := uuid.New()

	// personal limit is 2
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return l.AdmitPrivateDocumentIn(tx, userID)
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return l.AdmitPrivateDocumentIn(tx, userID)
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		return l.AdmitPrivateDocumentIn(tx, userID)
	})
	require.ErrorIs(t, err, kberr.ErrQuotaExceeded)
	kind, ok := kberr.QuotaKindOf(err)
	require.True(t, ok)
	assert.Equal(t, kberr.QuotaDocumentCount, kind)

	// release frees a slot
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return l.ReleasePrivateDocumentSlotIn(tx, userID)
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return l.AdmitPrivateDocumentIn(tx, userID)
	}))
}

func TestAdmitOrgDocumentConcurrent(t *testing.T) {
	l, db := newTestLedger(t)
	orgID := uuid.New()
	const limit = 2
	const attempts = 6

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.Transaction(func(tx *gorm.DB) error {
				return l.AdmitOrgDocumentIn(tx, orgID, limit)
			})
		}(i)
	}
	wg.Wait()

	var admitted, rejected int
	for _, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		require.ErrorIs(t, err, kberr.ErrQuotaExceeded)
		kind, ok := kberr.QuotaKindOf(err)
		require.True(t, ok)
		assert.Equal(t, kberr.QuotaDocumentCount, kind)
		rejected++
	}
	assert.Equal(t, limit, admitted)
	assert.Equal(t, attempts-limit, rejected)

	var row OrgUsage
	require.NoError(t, db.First(&row, "organization_id = ?", orgID).Error)
	assert.Equal(t, limit, row.DocumentCount)
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	l, db := newTestLedger(t)
	orgID := uuid.New()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return l.AdmitOrgDocumentIn(tx, orgID, 5)
	}))
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return l.ReleaseOrgDocumentSlotIn(tx, orgID)
		}))
	}

	var row OrgUsage
	require.NoError(t, db.First(&row, "organization_id = ?", orgID).Error)
	assert.Equal(t, 0, row.DocumentCount)
}

func TestAdmitQueryPersonal(t *testing.T) {
	l, _ := newTestLedger(t)
	userID := uuid.New()
	ctx := context.Background()

	// personal daily limit is 3
	for i := 0; i < 3; i++ {
		require.NoError(t, l.AdmitQuery(ctx, userID, nil))
	}
	err := l.AdmitQuery(ctx, userID, nil)
	require.ErrorIs(t, err, kberr.ErrQuotaExceeded)
	kind, _ := kberr.QuotaKindOf(err)
	assert.Equal(t, kberr.QuotaUserDaily, kind)
}

func TestAdmitQueryOrgLimits(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	org := &OrgLimits{ID: uuid.New(), PerUserDaily: 2, OrgDaily: 3}

	alice := uuid.New()
	bob := uuid.New()

	// alice hits the per-user limit first
	require.NoError(t, l.AdmitQuery(ctx, alice, org))
	require.NoError(t, l.AdmitQuery(ctx, alice, org))
	err := l.AdmitQuery(ctx, alice, org)
	require.ErrorIs(t, err, kberr.ErrQuotaExceeded)
	kind, _ := kberr.QuotaKindOf(err)
	assert.Equal(t, kberr.QuotaUserDaily, kind)

	// bob's first query exhausts the org aggregate
	require.NoError(t, l.AdmitQuery(ctx, bob, org))
	err = l.AdmitQuery(ctx, bob, org)
	require.ErrorIs(t, err, kberr.ErrQuotaExceeded)
	kind, _ = kberr.QuotaKindOf(err)
	assert.Equal(t, kberr.QuotaOrgDaily, kind)
}

func TestAdmitQueryOrgRejectionRollsBackUserIncrement(t *testing.T) {
	l, db := newTestLedger(t)
	ctx := context.Background()
	org := &OrgLimits{ID: uuid.New(), PerUserDaily: 10, OrgDaily: 1}

	alice := uuid.New()
	bob := uuid.New()

	// bob has already consumed one query today, committed before the
	// rejected admission
	require.NoError(t, db.Create(&UserQuota{
		UserID: bob, MaxDocuments: 2, MaxQueriesDaily: 3,
		QueriesToday: 1, QueryDate: today(),
	}).Error)

	require.NoError(t, l.AdmitQuery(ctx, alice, org))
	err := l.AdmitQuery(ctx, bob, org)
	require.ErrorIs(t, err, kberr.ErrQuotaExceeded)
	kind, _ := kberr.QuotaKindOf(err)
	require.Equal(t, kberr.QuotaOrgDaily, kind)

	// bob's user-level increment must not survive the org-level rejection
	var row UserQuota
	require.NoError(t, db.First(&row, "user_id = ?", bob).Error)
	assert.Equal(t, 1, row.QueriesToday)
}

func TestLazyDailyReset(t *testing.T) {
	l, db := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.AdmitQuery(ctx, userID, nil))
	}
	require.Error(t, l.AdmitQuery(ctx, userID, nil))

	// simulate the day rolling over
	require.NoError(t, db.Model(&UserQuota{}).
		Where("user_id = ?", userID).
		Update("query_date", "2000-01-01").Error)

	require.NoError(t, l.AdmitQuery(ctx, userID, nil))

	var row UserQuota
	require.NoError(t, db.First(&row, "user_id = ?", userID).Error)
	assert.Equal(t, 1, row.QueriesToday)
	assert.Equal(t, today(), row.QueryDate)
}

func TestCurrentUsage(t *testing.T) {
	l, db := newTestLedger(t)
	ctx := context.Background()
	org := &OrgLimits{ID: uuid.New(), PerUserDaily: 10, OrgDaily: 10}
	userID := uuid.New()

	require.NoError(t, l.AdmitQuery(ctx, userID, org))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return l.AdmitOrgDocumentIn(tx, org.ID, 5)
	}))

	u, err := l.CurrentUsage(ctx, userID, org)
	require.NoError(t, err)
	assert.Equal(t, 1, u.QueriesToday)
	assert.Equal(t, 1, u.OrgQueries)
	assert.Equal(t, 1, u.OrgDocuments)
	assert.Equal(t, 0, u.DocumentCount)

	// unknown user reads as zero consumption
	u, err = l.CurrentUsage(ctx, uuid.New(), nil)
	require.NoError(t, err)
	assert.Zero(t, u.QueriesToday)
}

func TestLogQuery(t *testing.T) {
	l, db := newTestLedger(t)
	orgID := uuid.New()
	entry := &QueryLog{
		UserID:         uuid.New(),
		OrganizationID: &orgID,
		Scope:          "all",
		LatencyMS:      412,
		SourceCount:    3,
	}
	l.LogQuery(context.Background(), entry)

	var count int64
	require.NoError(t, db.Model(&QueryLog{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
