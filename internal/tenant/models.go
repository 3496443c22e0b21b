// Package tenant owns organizations, memberships and invites, and resolves
// the tenant context every other component keys its isolation decisions on.
package tenant

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Organization statuses.
const (
	OrgActive    = "active"
	OrgSuspended = "suspended"
	OrgDeleted   = "deleted"
)

// Invite statuses. Expired and exhausted are evaluated lazily at redemption
// time and persisted on first observation.
const (
	InviteActive    = "active"
	InviteExpired   = "expired"
	InviteRevoked   = "revoked"
	InviteExhausted = "exhausted"
)

// User is the platform account. Authentication is handled elsewhere; this
// core reads organization binding and the platform-admin flag only.
// Platform admins manage organization lifecycle and never gain access to
// tenant document content.
type User struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email           string     `gorm:"uniqueIndex;not null" json:"email"`
	Name            string     `json:"name"`
	OrganizationID  *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	RoleInOrg       *string    `json:"role_in_org,omitempty"`
	IsPlatformAdmin bool       `gorm:"default:false" json:"is_platform_admin"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (User) TableName() string { return "users" }

// Organization is the unit of shared document visibility.
type Organization struct {
	ID      uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string     `gorm:"not null" json:"name"`
	Slug    string     `gorm:"uniqueIndex;not null" json:"slug"`
	OwnerID *uuid.UUID `gorm:"type:uuid" json:"owner_id,omitempty"`
	Status  string     `gorm:"not null;default:active" json:"status"`

	// Quotas, assigned from platform defaults at creation.
	MaxMembers             int `gorm:"not null" json:"max_members"`
	MaxDocuments           int `gorm:"not null" json:"max_documents"`
	MaxStorageMB           int `gorm:"not null" json:"max_storage_mb"`
	MaxQueriesPerUserDaily int `gorm:"not null" json:"max_queries_per_user_daily"`
	MaxQueriesOrgDaily     int `gorm:"not null" json:"max_queries_org_daily"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (Organization) TableName() string { return "organizations" }

// Membership is history-preserving: leaving sets LeftAt instead of deleting
// the row. At most one active row exists per (organization, user) pair.
type Membership struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_memberships_org_user" json:"organization_id"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index:idx_memberships_org_user" json:"user_id"`
	Role           string     `gorm:"not null" json:"role"`
	JoinedAt       time.Time  `gorm:"not null" json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty"`
	InvitedBy      *uuid.UUID `gorm:"type:uuid" json:"invited_by,omitempty"`
}

func (m *Membership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	return nil
}

func (Membership) TableName() string { return "memberships" }

// Invite is a redeemable join code for an organization.
type Invite struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code           string    `gorm:"uniqueIndex;not null" json:"code"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	CreatedBy      uuid.UUID `gorm:"type:uuid;not null" json:"created_by"`
	MaxUses        int       `gorm:"not null" json:"max_uses"`
	UsedCount      int       `gorm:"not null;default:0" json:"used_count"`
	DefaultRole    string    `gorm:"not null;default:member" json:"default_role"`
	Status         string    `gorm:"not null;default:active" json:"status"`
	ExpiresAt      time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (i *Invite) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (Invite) TableName() string { return "invites" }
