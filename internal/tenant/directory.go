package tenant

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/kberr"
)

// maxSlugAttempts bounds the collision-suffix retry loop before
// CreateOrganization surfaces a name conflict.
const maxSlugAttempts = 5

// SettingsProvisioner creates the default per-organization settings row.
// Implemented by the customization resolver; injected to keep this package
// free of a dependency on it.
type SettingsProvisioner interface {
	ProvisionDefaults(tx *gorm.DB, orgID uuid.UUID) error
}

// Directory resolves tenant contexts and manages organization membership
// lifecycle.
type Directory struct {
	db       *gorm.DB
	log      *zap.Logger
	defaults config.OrgQuotaDefaults
	settings SettingsProvisioner
}

// NewDirectory constructs a Directory. settings may be nil, in which case
// organizations are created without a settings row and fall back to platform
// defaults at resolution time.
func NewDirectory(db *gorm.DB, defaults config.OrgQuotaDefaults, settings SettingsProvisioner, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{db: db, log: logger, defaults: defaults, settings: settings}
}

// ResolveContext loads the user's current tenant context. No side effects.
func (d *Directory) ResolveContext(ctx context.Context, userID uuid.UUID) (Context, error) {
	var user User
	err := d.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Context{}, fmt.Errorf("user %s: %w", userID, kberr.ErrNotFound)
	}
	if err != nil {
		return Context{}, fmt.Errorf("resolving tenant context: %w", err)
	}

	tc := Context{UserID: user.ID, IsPlatformAdmin: user.IsPlatformAdmin}
	if user.OrganizationID != nil {
		tc.OrganizationID = user.OrganizationID
		if user.RoleInOrg != nil {
			tc.Role = *user.RoleInOrg
		}
	}
	return tc, nil
}

// GetOrganization loads an active organization by id.
func (d *Directory) GetOrganization(ctx context.Context, orgID uuid.UUID) (*Organization, error) {
	var org Organization
	err := d.db.WithContext(ctx).First(&org, "id = ?", orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("organization %s: %w", orgID, kberr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	return &org, nil
}

// CreateOrganization creates an organization owned by the acting user, with
// platform-default quotas, an owner membership and default settings. The slug
// is derived from the name; collisions get a numeric suffix for a bounded
// number of attempts before NameConflict is returned.
func (d *Directory) CreateOrganization(ctx context.Context, actorID uuid.UUID, name string) (*Organization, error) {
	if name == "" {
		return nil, fmt.Errorf("organization name is required: %w", kberr.ErrNameConflict)
	}

	var actor User
	if err := d.db.WithContext(ctx).First(&actor, "id = ?", actorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", actorID, kberr.ErrNotFound)
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if actor.OrganizationID != nil {
		return nil, fmt.Errorf("user already belongs to an organization: %w", kberr.ErrPermissionDenied)
	}

	base := slugify(name)
	var org *Organization
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := d.pickSlug(tx, base)
		if err != nil {
			return err
		}

		ownerID := actor.ID
		org = &Organization{
			Name:                   name,
			Slug:                   slug,
			OwnerID:                &ownerID,
			Status:                 OrgActive,
			MaxMembers:             d.defaults.MaxMembers,
			MaxDocuments:           d.defaults.MaxDocuments,
			MaxStorageMB:           d.defaults.MaxStorageMB,
			MaxQueriesPerUserDaily: d.defaults.MaxQueriesPerUserDaily,
			MaxQueriesOrgDaily:     d.defaults.MaxQueriesOrgDaily,
		}
		if err := tx.Create(org).Error; err != nil {
			return fmt.Errorf("creating organization: %w", err)
		}

		m := &Membership{
			OrganizationID: org.ID,
			UserID:         actor.ID,
			Role:           RoleOwner,
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("creating owner membership: %w", err)
		}

		role := RoleOwner
		updates := map[string]any{"organization_id": org.ID, "role_in_org": role}
		if err := tx.Model(&User{}).Where("id = ?", actor.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("binding owner to organization: %w", err)
		}

		if d.settings != nil {
			if err := d.settings.ProvisionDefaults(tx, org.ID); err != nil {
				return fmt.Errorf("provisioning default settings: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
		zap.String("owner_id", actorID.String()))
	return org, nil
}

// pickSlug finds a free slug under the bounded retry policy.
func (d *Directory) pickSlug(tx *gorm.DB, base string) (string, error) {
	for i := 0; i < maxSlugAttempts; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", base, i+1)
		}
		var count int64
		if err := tx.Model(&Organization{}).Unscoped().
			Where("slug = ?", candidate).Count(&count).Error; err != nil {
			return "", fmt.Errorf("checking slug: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("slug %q taken after %d attempts: %w", base, maxSlugAttempts, kberr.ErrNameConflict)
}

// CreateInvite issues a join code for the actor's organization. Requires a
// managing role; rejects when the organization is already at member capacity.
func (d *Directory) CreateInvite(ctx context.Context, actor Context, maxUses int, ttl time.Duration, defaultRole string) (*Invite, error) {
	if !actor.CanManageMembers() {
		return nil, fmt.Errorf("creating invites requires an admin or owner role: %w", kberr.ErrPermissionDenied)
	}
	if maxUses < 1 {
		maxUses = 1
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if defaultRole != RoleAdmin {
		defaultRole = RoleMember
	}

	org, err := d.GetOrganization(ctx, *actor.OrganizationID)
	if err != nil {
		return nil, err
	}
	count, err := d.activeMemberCount(ctx, d.db, org.ID)
	if err != nil {
		return nil, err
	}
	if count >= int64(org.MaxMembers) {
		return nil, kberr.QuotaExceeded(kberr.QuotaMemberCount, org.MaxMembers)
	}

	code, err := newInviteCode()
	if err != nil {
		return nil, err
	}
	inv := &Invite{
		Code:           code,
		OrganizationID: org.ID,
		CreatedBy:      actor.UserID,
		MaxUses:        maxUses,
		DefaultRole:    defaultRole,
		Status:         InviteActive,
		ExpiresAt:      time.Now().UTC().Add(ttl),
	}
	if err := d.db.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, fmt.Errorf("creating invite: %w", err)
	}

	d.log.Info("invite created",
		zap.String("org_id", org.ID.String()),
		zap.String("invite_id", inv.ID.String()),
		zap.Int("max_uses", maxUses))
	return inv, nil
}

func newInviteCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating invite code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// InvitePreview is what an unauthenticated holder of a code may learn about
// it: the organization's display name and whether the code is still usable.
// Every invalid condition collapses to the same generic error.
type InvitePreview struct {
	OrganizationName string
	DefaultRole      string
	ExpiresAt        time.Time
}

// InviteDetails validates a code and returns its preview. Invalid, expired,
// revoked and exhausted codes all return InviteInvalid without distinguishing
// the reason.
func (d *Directory) InviteDetails(ctx context.Context, code string) (*InvitePreview, error) {
	var inv Invite
	err := d.db.WithContext(ctx).First(&inv, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, kberr.ErrInviteInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("loading invite: %w", err)
	}
	if !redeemable(&inv, time.Now().UTC()) {
		return nil, kberr.ErrInviteInvalid
	}

	var org Organization
	if err := d.db.WithContext(ctx).First(&org, "id = ?", inv.OrganizationID).Error; err != nil {
		return nil, kberr.ErrInviteInvalid
	}
	return &InvitePreview{
		OrganizationName: org.Name,
		DefaultRole:      inv.DefaultRole,
		ExpiresAt:        inv.ExpiresAt,
	}, nil
}

func redeemable(inv *Invite, now time.Time) bool {
	return inv.Status == InviteActive &&
		inv.UsedCount < inv.MaxUses &&
		now.Before(inv.ExpiresAt)
}

// markInviteTerminal flips an active invite into a terminal state observed
// lazily. Runs on its own connection, not inside the redemption transaction:
// the redemption rolls back on rejection and would take the status write
// with it.
func (d *Directory) markInviteTerminal(ctx context.Context, inviteID uuid.UUID, status string) {
	err := d.db.WithContext(ctx).Model(&Invite{}).
		Where("id = ? AND status = ?", inviteID, InviteActive).
		Update("status", status).Error
	if err != nil {
		d.log.Warn("persisting invite state",
			zap.String("invite_id", inviteID.String()),
			zap.String("status", status),
			zap.Error(err))
	}
}

// RedeemInvite joins a user to the inviting organization. The used_count
// increment is a guarded update inside one transaction so concurrent
// redemptions cannot jointly exceed max_uses.
func (d *Directory) RedeemInvite(ctx context.Context, code string, newUserID uuid.UUID) (*Membership, error) {
	var membership *Membership
	now := time.Now().UTC()

	// Lazy terminal-state transitions, persisted on first observation and
	// committed before the redemption transaction starts.
	var observed Invite
	err := d.db.WithContext(ctx).First(&observed, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, kberr.ErrInviteInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("loading invite: %w", err)
	}
	if observed.Status == InviteActive && !now.Before(observed.ExpiresAt) {
		d.markInviteTerminal(ctx, observed.ID, InviteExpired)
		return nil, kberr.ErrInviteInvalid
	}
	if observed.Status == InviteActive && observed.UsedCount >= observed.MaxUses {
		d.markInviteTerminal(ctx, observed.ID, InviteExhausted)
		return nil, kberr.ErrInviteInvalid
	}

	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv Invite
		err := tx.First(&inv, "code = ?", code).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return kberr.ErrInviteInvalid
		}
		if err != nil {
			return fmt.Errorf("loading invite: %w", err)
		}
		if !redeemable(&inv, now) {
			return kberr.ErrInviteInvalid
		}

		var user User
		if err := tx.First(&user, "id = ?", newUserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %s: %w", newUserID, kberr.ErrNotFound)
			}
			return fmt.Errorf("loading user: %w", err)
		}
		if user.OrganizationID != nil {
			return fmt.Errorf("user already belongs to an organization: %w", kberr.ErrPermissionDenied)
		}

		var org Organization
		if err := tx.First(&org, "id = ? AND status = ?", inv.OrganizationID, OrgActive).Error; err != nil {
			return kberr.ErrInviteInvalid
		}
		// Capacity gate: the no-op write takes the organization row's lock,
		// serializing concurrent redemptions, and the count is re-evaluated
		// under that lock so two invites cannot jointly exceed max_members.
		capacity := tx.Exec(
			`UPDATE organizations SET updated_at = updated_at
			 WHERE id = ? AND (SELECT COUNT(*) FROM memberships
			                   WHERE organization_id = ? AND left_at IS NULL) < max_members`,
			org.ID, org.ID)
		if capacity.Error != nil {
			return fmt.Errorf("checking member capacity: %w", capacity.Error)
		}
		if capacity.RowsAffected == 0 {
			return kberr.QuotaExceeded(kberr.QuotaMemberCount, org.MaxMembers)
		}

		// Guarded increment: rows affected is zero when a concurrent
		// redemption consumed the last use first.
		res := tx.Model(&Invite{}).
			Where("id = ? AND status = ? AND used_count < max_uses", inv.ID, InviteActive).
			Update("used_count", gorm.Expr("used_count + 1"))
		if res.Error != nil {
			return fmt.Errorf("incrementing invite use: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return kberr.ErrInviteInvalid
		}
		if inv.UsedCount+1 >= inv.MaxUses {
			if err := tx.Model(&Invite{}).Where("id = ?", inv.ID).
				Update("status", InviteExhausted).Error; err != nil {
				return fmt.Errorf("marking invite exhausted: %w", err)
			}
		}

		membership = &Membership{
			OrganizationID: org.ID,
			UserID:         user.ID,
			Role:           inv.DefaultRole,
			InvitedBy:      &inv.CreatedBy,
		}
		if err := tx.Create(membership).Error; err != nil {
			return fmt.Errorf("creating membership: %w", err)
		}

		updates := map[string]any{"organization_id": org.ID, "role_in_org": inv.DefaultRole}
		if err := tx.Model(&User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("binding user to organization: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.log.Info("invite redeemed",
		zap.String("org_id", membership.OrganizationID.String()),
		zap.String("user_id", newUserID.String()),
		zap.String("role", membership.Role))
	return membership, nil
}

// RemoveMember ends the target's membership. The owner cannot be removed;
// ownership must be transferred first. Admins may remove members only;
// removing another admin requires the owner.
func (d *Directory) RemoveMember(ctx context.Context, actor Context, targetUserID uuid.UUID) error {
	if !actor.CanManageMembers() {
		return fmt.Errorf("removing members requires an admin or owner role: %w", kberr.ErrPermissionDenied)
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := d.activeMembership(tx, *actor.OrganizationID, targetUserID)
		if err != nil {
			return err
		}
		switch {
		case m.Role == RoleOwner:
			return fmt.Errorf("the owner cannot be removed, transfer ownership first: %w", kberr.ErrPermissionDenied)
		case m.Role == RoleAdmin && actor.Role != RoleOwner:
			return fmt.Errorf("removing an admin requires the owner: %w", kberr.ErrPermissionDenied)
		}
		return d.endMembership(tx, m)
	})
}

// LeaveOrganization lets a member leave voluntarily. The owner must transfer
// ownership before leaving.
func (d *Directory) LeaveOrganization(ctx context.Context, actor Context) error {
	if !actor.InOrganization() {
		return fmt.Errorf("not in an organization: %w", kberr.ErrNotFound)
	}
	if actor.IsOwner() {
		return fmt.Errorf("the owner must transfer ownership before leaving: %w", kberr.ErrPermissionDenied)
	}
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := d.activeMembership(tx, *actor.OrganizationID, actor.UserID)
		if err != nil {
			return err
		}
		return d.endMembership(tx, m)
	})
}

// UpdateMemberRole changes a member's role between admin and member.
// Owner-only; the owner role itself moves via TransferOwnership.
func (d *Directory) UpdateMemberRole(ctx context.Context, actor Context, targetUserID uuid.UUID, newRole string) error {
	if !actor.IsOwner() {
		return fmt.Errorf("changing roles requires the owner: %w", kberr.ErrPermissionDenied)
	}
	if newRole != RoleAdmin && newRole != RoleMember {
		return fmt.Errorf("role must be admin or member: %w", kberr.ErrPermissionDenied)
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := d.activeMembership(tx, *actor.OrganizationID, targetUserID)
		if err != nil {
			return err
		}
		if m.Role == RoleOwner {
			return fmt.Errorf("the owner role moves via ownership transfer: %w", kberr.ErrPermissionDenied)
		}
		if err := tx.Model(m).Update("role", newRole).Error; err != nil {
			return fmt.Errorf("updating role: %w", err)
		}
		return tx.Model(&User{}).Where("id = ?", targetUserID).
			Update("role_in_org", newRole).Error
	})
}

// TransferOwnership moves the owner role to another active member. The
// previous owner becomes an admin.
func (d *Directory) TransferOwnership(ctx context.Context, actor Context, targetUserID uuid.UUID) error {
	if !actor.IsOwner() {
		return fmt.Errorf("only the owner can transfer ownership: %w", kberr.ErrPermissionDenied)
	}
	if targetUserID == actor.UserID {
		return fmt.Errorf("cannot transfer ownership to yourself: %w", kberr.ErrPermissionDenied)
	}

	orgID := *actor.OrganizationID
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := d.activeMembership(tx, orgID, targetUserID)
		if err != nil {
			return err
		}
		current, err := d.activeMembership(tx, orgID, actor.UserID)
		if err != nil {
			return err
		}

		if err := tx.Model(target).Update("role", RoleOwner).Error; err != nil {
			return fmt.Errorf("promoting new owner: %w", err)
		}
		if err := tx.Model(current).Update("role", RoleAdmin).Error; err != nil {
			return fmt.Errorf("demoting previous owner: %w", err)
		}
		if err := tx.Model(&User{}).Where("id = ?", targetUserID).
			Update("role_in_org", RoleOwner).Error; err != nil {
			return err
		}
		if err := tx.Model(&User{}).Where("id = ?", actor.UserID).
			Update("role_in_org", RoleAdmin).Error; err != nil {
			return err
		}
		return tx.Model(&Organization{}).Where("id = ?", orgID).
			Update("owner_id", targetUserID).Error
	})
	if err != nil {
		return err
	}

	d.log.Info("ownership transferred",
		zap.String("org_id", orgID.String()),
		zap.String("from", actor.UserID.String()),
		zap.String("to", targetUserID.String()))
	return nil
}

// RevokeInvite marks an invite revoked. Requires a managing role in the
// invite's organization.
func (d *Directory) RevokeInvite(ctx context.Context, actor Context, inviteID uuid.UUID) error {
	if !actor.CanManageMembers() {
		return fmt.Errorf("revoking invites requires an admin or owner role: %w", kberr.ErrPermissionDenied)
	}
	res := d.db.WithContext(ctx).Model(&Invite{}).
		Where("id = ? AND organization_id = ? AND status = ?", inviteID, *actor.OrganizationID, InviteActive).
		Update("status", InviteRevoked)
	if res.Error != nil {
		return fmt.Errorf("revoking invite: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("invite %s: %w", inviteID, kberr.ErrNotFound)
	}
	return nil
}

// Members lists the active members of the actor's organization.
func (d *Directory) Members(ctx context.Context, actor Context) ([]Membership, error) {
	if !actor.InOrganization() {
		return nil, fmt.Errorf("not in an organization: %w", kberr.ErrNotFound)
	}
	var members []Membership
	err := d.db.WithContext(ctx).
		Where("organization_id = ? AND left_at IS NULL", *actor.OrganizationID).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return members, nil
}

// Stats summarizes organization membership for its managers.
type Stats struct {
	MemberCount   int64
	AdminCount    int64
	ActiveInvites int64
}

// OrgStats returns membership statistics for the actor's organization.
func (d *Directory) OrgStats(ctx context.Context, actor Context) (*Stats, error) {
	if !actor.CanManageMembers() {
		return nil, fmt.Errorf("organization stats require an admin or owner role: %w", kberr.ErrPermissionDenied)
	}
	orgID := *actor.OrganizationID
	var s Stats
	if err := d.db.WithContext(ctx).Model(&Membership{}).
		Where("organization_id = ? AND left_at IS NULL", orgID).
		Count(&s.MemberCount).Error; err != nil {
		return nil, fmt.Errorf("counting members: %w", err)
	}
	if err := d.db.WithContext(ctx).Model(&Membership{}).
		Where("organization_id = ? AND left_at IS NULL AND role IN ?", orgID, []string{RoleOwner, RoleAdmin}).
		Count(&s.AdminCount).Error; err != nil {
		return nil, fmt.Errorf("counting admins: %w", err)
	}
	if err := d.db.WithContext(ctx).Model(&Invite{}).
		Where("organization_id = ? AND status = ? AND expires_at > ?", orgID, InviteActive, time.Now().UTC()).
		Count(&s.ActiveInvites).Error; err != nil {
		return nil, fmt.Errorf("counting invites: %w", err)
	}
	return &s, nil
}

// SoftDeleteOrganization marks the organization deleted, ends all
// memberships, returns every member to personal mode and revokes open
// invites. Document purging is orchestrated by the caller, which also owns
// the vector-store side of the cascade. Allowed for the owner or a platform
// admin.
func (d *Directory) SoftDeleteOrganization(ctx context.Context, actor Context, orgID uuid.UUID) error {
	allowed := actor.IsPlatformAdmin || (actor.IsOwner() && actor.SameOrganization(orgID))
	if !allowed {
		return fmt.Errorf("deleting an organization requires its owner or a platform admin: %w", kberr.ErrPermissionDenied)
	}

	now := time.Now().UTC()
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org Organization
		if err := tx.First(&org, "id = ?", orgID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("organization %s: %w", orgID, kberr.ErrNotFound)
			}
			return fmt.Errorf("loading organization: %w", err)
		}

		if err := tx.Model(&Membership{}).
			Where("organization_id = ? AND left_at IS NULL", orgID).
			Update("left_at", now).Error; err != nil {
			return fmt.Errorf("ending memberships: %w", err)
		}
		if err := tx.Model(&User{}).
			Where("organization_id = ?", orgID).
			Updates(map[string]any{"organization_id": nil, "role_in_org": nil}).Error; err != nil {
			return fmt.Errorf("unbinding members: %w", err)
		}
		if err := tx.Model(&Invite{}).
			Where("organization_id = ? AND status = ?", orgID, InviteActive).
			Update("status", InviteRevoked).Error; err != nil {
			return fmt.Errorf("revoking invites: %w", err)
		}
		if err := tx.Model(&org).Update("status", OrgDeleted).Error; err != nil {
			return fmt.Errorf("marking organization deleted: %w", err)
		}
		return tx.Delete(&org).Error
	})
	if err != nil {
		return err
	}

	d.log.Info("organization deleted",
		zap.String("org_id", orgID.String()),
		zap.String("actor_id", actor.UserID.String()))
	return nil
}

func (d *Directory) activeMemberCount(ctx context.Context, tx *gorm.DB, orgID uuid.UUID) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&Membership{}).
		Where("organization_id = ? AND left_at IS NULL", orgID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting members: %w", err)
	}
	return count, nil
}

func (d *Directory) activeMembership(tx *gorm.DB, orgID, userID uuid.UUID) (*Membership, error) {
	var m Membership
	err := tx.First(&m, "organization_id = ? AND user_id = ? AND left_at IS NULL", orgID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("membership for user %s: %w", userID, kberr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading membership: %w", err)
	}
	return &m, nil
}

func (d *Directory) endMembership(tx *gorm.DB, m *Membership) error {
	now := time.Now().UTC()
	if err := tx.Model(m).Update("left_at", now).Error; err != nil {
		return fmt.Errorf("ending membership: %w", err)
	}
	if err := tx.Model(&User{}).Where("id = ?", m.UserID).
		Updates(map[string]any{"organization_id": nil, "role_in_org": nil}).Error; err != nil {
		return fmt.Errorf("unbinding user: %w", err)
	}
	return nil
}
