package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fyrsmithlabs/knowledged/internal/kberr"
)

// OrgLimits carries the organization limits relevant to query admission.
// The caller reads them off the Organization row.
type OrgLimits struct {
	ID           uuid.UUID
	PerUserDaily int
	OrgDaily     int
	MaxDocuments int
}

// Ledger admits quota-consuming actions. Every admission is a guarded
// conditional increment so two concurrent requests can never both observe a
// stale under-limit state and jointly exceed it.
type Ledger struct {
	db  *gorm.DB
	log *zap.Logger

	personalMaxDocuments    int
	personalMaxQueriesDaily int
}

// NewLedger constructs a Ledger. The personal limits seed UserQuota rows the
// first time a user consumes anything.
func NewLedger(db *gorm.DB, personalMaxDocuments, personalMaxQueriesDaily int, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		db:                      db,
		log:                     logger,
		personalMaxDocuments:    personalMaxDocuments,
		personalMaxQueriesDaily: personalMaxQueriesDaily,
	}
}

// today returns the UTC calendar day counters are keyed on.
func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (l *Ledger) ensureUserRow(tx *gorm.DB, userID uuid.UUID) (*UserQuota, error) {
	row := UserQuota{
		UserID:          userID,
		MaxDocuments:    l.personalMaxDocuments,
		MaxQueriesDaily: l.personalMaxQueriesDaily,
	}
	if err := tx.Where(UserQuota{UserID: userID}).FirstOrCreate(&row).Error; err != nil {
		return nil, fmt.Errorf("ensuring user quota row: %w", err)
	}
	return &row, nil
}

func (l *Ledger) ensureOrgRow(tx *gorm.DB, orgID uuid.UUID) error {
	row := OrgUsage{OrganizationID: orgID}
	if err := tx.Where(OrgUsage{OrganizationID: orgID}).FirstOrCreate(&row).Error; err != nil {
		return fmt.Errorf("ensuring org usage row: %w", err)
	}
	return nil
}

// AdmitPrivateDocumentIn admits one private document for the user inside the
// caller's transaction, so the admission and the document insert commit or
// roll back together.
func (l *Ledger) AdmitPrivateDocumentIn(tx *gorm.DB, userID uuid.UUID) error {
	row, err := l.ensureUserRow(tx, userID)
	if err != nil {
		return err
	}
	res := tx.Model(&UserQuota{}).
		Where("user_id = ? AND document_count < max_documents", userID).
		Update("document_count", gorm.Expr("document_count + 1"))
	if res.Error != nil {
		return fmt.Errorf("admitting private document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return kberr.QuotaExceeded(kberr.QuotaDocumentCount, row.MaxDocuments)
	}
	return nil
}

// AdmitOrgDocumentIn admits one organization document against the given
// limit inside the caller's transaction.
func (l *Ledger) AdmitOrgDocumentIn(tx *gorm.DB, orgID uuid.UUID, maxDocuments int) error {
	if err := l.ensureOrgRow(tx, orgID); err != nil {
		return err
	}
	res := tx.Model(&OrgUsage{}).
		Where("organization_id = ? AND document_count < ?", orgID, maxDocuments).
		Update("document_count", gorm.Expr("document_count + 1"))
	if res.Error != nil {
		return fmt.Errorf("admitting organization document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return kberr.QuotaExceeded(kberr.QuotaDocumentCount, maxDocuments)
	}
	return nil
}

// ReleasePrivateDocumentSlotIn decrements the user's document counter on
// deletion. Never drops below zero.
func (l *Ledger) ReleasePrivateDocumentSlotIn(tx *gorm.DB, userID uuid.UUID) error {
	err := tx.Model(&UserQuota{}).
		Where("user_id = ? AND document_count > 0", userID).
		Update("document_count", gorm.Expr("document_count - 1")).Error
	if err != nil {
		return fmt.Errorf("releasing private document slot: %w", err)
	}
	return nil
}

// ReleaseOrgDocumentSlotIn decrements the organization's document counter on
// deletion. Never drops below zero.
func (l *Ledger) ReleaseOrgDocumentSlotIn(tx *gorm.DB, orgID uuid.UUID) error {
	err := tx.Model(&OrgUsage{}).
		Where("organization_id = ? AND document_count > 0", orgID).
		Update("document_count", gorm.Expr("document_count - 1")).Error
	if err != nil {
		return fmt.Errorf("releasing organization document slot: %w", err)
	}
	return nil
}

// AdmitQuery admits one query for the user. Two independent checks run in
// one transaction: the user's daily count against the per-user limit, and,
// for organization members, the organization's aggregate daily count. If
// either fails the whole admission rolls back; the error names the exceeded
// kind. Consumption is charged here, at admission, so a request cancelled
// after admission still counts.
func (l *Ledger) AdmitQuery(ctx context.Context, userID uuid.UUID, org *OrgLimits) error {
	day := today()
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := l.ensureUserRow(tx, userID)
		if err != nil {
			return err
		}

		// lazy reset at the day boundary
		if err := tx.Model(&UserQuota{}).
			Where("user_id = ? AND query_date <> ?", userID, day).
			Updates(map[string]any{"queries_today": 0, "query_date": day}).Error; err != nil {
			return fmt.Errorf("resetting user daily counter: %w", err)
		}

		userLimit := row.MaxQueriesDaily
		if org != nil {
			userLimit = org.PerUserDaily
		}
		res := tx.Model(&UserQuota{}).
			Where("user_id = ? AND queries_today < ?", userID, userLimit).
			Update("queries_today", gorm.Expr("queries_today + 1"))
		if res.Error != nil {
			return fmt.Errorf("admitting user query: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return kberr.QuotaExceeded(kberr.QuotaUserDaily, userLimit)
		}

		if org == nil {
			return nil
		}

		if err := l.ensureOrgRow(tx, org.ID); err != nil {
			return err
		}
		if err := tx.Model(&OrgUsage{}).
			Where("organization_id = ? AND query_date <> ?", org.ID, day).
			Updates(map[string]any{"queries_today": 0, "query_date": day}).Error; err != nil {
			return fmt.Errorf("resetting org daily counter: %w", err)
		}
		res = tx.Model(&OrgUsage{}).
			Where("organization_id = ? AND queries_today < ?", org.ID, org.OrgDaily).
			Update("queries_today", gorm.Expr("queries_today + 1"))
		if res.Error != nil {
			return fmt.Errorf("admitting org query: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return kberr.QuotaExceeded(kberr.QuotaOrgDaily, org.OrgDaily)
		}
		return nil
	})
}

// LogQuery appends a QueryLog entry. Failures are logged and swallowed;
// analytics must never fail a served answer.
func (l *Ledger) LogQuery(ctx context.Context, entry *QueryLog) {
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		l.log.Warn("failed to append query log",
			zap.String("user_id", entry.UserID.String()),
			zap.Error(err))
	}
}

// Usage is a point-in-time snapshot of a user's consumption.
type Usage struct {
	DocumentCount int
	QueriesToday  int
	OrgDocuments  int
	OrgQueries    int
}

// CurrentUsage reports the user's counters, plus the organization's when
// limits are given. Counters from a previous day read as zero.
func (l *Ledger) CurrentUsage(ctx context.Context, userID uuid.UUID, org *OrgLimits) (*Usage, error) {
	day := today()
	var u Usage

	var row UserQuota
	err := l.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if err == nil {
		u.DocumentCount = row.DocumentCount
		if row.QueryDate == day {
			u.QueriesToday = row.QueriesToday
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("reading user quota: %w", err)
	}

	if org != nil {
		var orgRow OrgUsage
		err := l.db.WithContext(ctx).First(&orgRow, "organization_id = ?", org.ID).Error
		if err == nil {
			u.OrgDocuments = orgRow.DocumentCount
			if orgRow.QueryDate == day {
				u.OrgQueries = orgRow.QueriesToday
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("reading org usage: %w", err)
		}
	}
	return &u, nil
}

// ResetOrgUsageIn clears an organization's counters, used by the
// organization deletion cascade.
func (l *Ledger) ResetOrgUsageIn(tx *gorm.DB, orgID uuid.UUID) error {
	return tx.Where("organization_id = ?", orgID).Delete(&OrgUsage{}).Error
}
