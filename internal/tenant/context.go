package tenant

import (
	"github.com/google/uuid"
)

// Context is the resolved tenant identity for one request. All isolation
// and permission decisions read from it; it is never trusted from caller
// input, only built by Directory.ResolveContext.
type Context struct {
	UserID          uuid.UUID
	OrganizationID  *uuid.UUID
	Role            string // "" when the user is in personal mode
	IsPlatformAdmin bool
}

// InOrganization reports whether the user currently belongs to an organization.
func (c Context) InOrganization() bool {
	return c.OrganizationID != nil
}

// CanManageMembers reports whether the user may create invites, remove
// members and change roles within their organization.
func (c Context) CanManageMembers() bool {
	return c.InOrganization() && (c.Role == RoleOwner || c.Role == RoleAdmin)
}

// CanEditSettings reports whether the user may change organization AI
// settings.
func (c Context) CanEditSettings() bool {
	return c.InOrganization() && (c.Role == RoleOwner || c.Role == RoleAdmin)
}

// CanManageOrgDocuments reports whether the user may delete organization
// documents uploaded by others.
func (c Context) CanManageOrgDocuments() bool {
	return c.InOrganization() && (c.Role == RoleOwner || c.Role == RoleAdmin)
}

// IsOwner reports whether the user holds the owner role.
func (c Context) IsOwner() bool {
	return c.InOrganization() && c.Role == RoleOwner
}

// SameOrganization reports whether the given organization is the user's own.
func (c Context) SameOrganization(orgID uuid.UUID) bool {
	return c.OrganizationID != nil && *c.OrganizationID == orgID
}
