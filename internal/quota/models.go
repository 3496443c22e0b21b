// Package quota tracks per-user and per-organization consumption and
// atomically admits or rejects quota-consuming actions.
package quota

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserQuota holds a user's personal limits and consumption counters.
// Personal limits apply in personal mode; inside an organization the
// organization's per-user limit takes over for queries. QueryDate is the
// UTC calendar day the daily counter belongs to; the counter is lazily
// reset the first time it is touched on a new day.
type UserQuota struct {
	UserID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	MaxDocuments    int       `gorm:"not null" json:"max_documents"`
	MaxQueriesDaily int       `gorm:"not null" json:"max_queries_daily"`
	DocumentCount   int       `gorm:"not null;default:0" json:"document_count"`
	QueriesToday    int       `gorm:"not null;default:0" json:"queries_today"`
	QueryDate       string    `gorm:"not null;default:''" json:"query_date"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (UserQuota) TableName() string { return "user_quotas" }

// OrgUsage holds an organization's aggregate counters. Limits live on the
// Organization row; this row only counts.
type OrgUsage struct {
	OrganizationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"organization_id"`
	DocumentCount  int       `gorm:"not null;default:0" json:"document_count"`
	QueriesToday   int       `gorm:"not null;default:0" json:"queries_today"`
	QueryDate      string    `gorm:"not null;default:''" json:"query_date"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (OrgUsage) TableName() string { return "org_usage" }

// QueryLog is the append-only record of answered queries, used for
// analytics. Counting for admission happens on the counter rows, not here.
type QueryLog struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	Scope          string     `gorm:"not null" json:"scope"`
	LatencyMS      int64      `gorm:"not null" json:"latency_ms"`
	SourceCount    int        `gorm:"not null" json:"source_count"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (q *QueryLog) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

func (QueryLog) TableName() string { return "query_logs" }
