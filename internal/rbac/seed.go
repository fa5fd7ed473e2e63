package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
)

const (
	PermUserRead         = "user.read"
	PermUserCreate       = "user.create"
	PermUserUpdate       = "user.update"
	PermUserDelete       = "user.delete"
	PermTenantRead       = "tenant.read"
	PermTenantUpdate     = "tenant.update"
	PermTenantDelete     = "tenant.delete"
	PermRoleRead         = "role.read"
	PermRoleCreate       = "role.create"
	PermRoleUpdate       = "role.update"
	PermRoleDelete       = "role.delete"
	PermRoleGrant        = "role.grant"
	PermPermissionRead   = "permission.read"
	PermPermissionCreate = "permission.create"
	PermPermissionUpdate = "permission.update"
	PermPermissionDelete = "permission.delete"
	PermMembershipRead   = "membership.read"
	PermMembershipCreate = "membership.create"
	PermMembershipUpdate = "membership.update"
	PermMembershipDelete = "membership.delete"
	PermAuditRead        = "audit.read"
)

const (
	// RoleSuperAdmin is the platform administrator role. It is never handed
	// out by signup; see Bootstrap in the auth package.
	RoleSuperAdmin = "SUPERADMIN"
	// RoleOwner is assigned to whoever creates a tenant.
	RoleOwner  = "OWNER"
	RoleMember = "MEMBER"
)

var defaultPermissions = []struct{ key, description string }{
	{PermUserRead, "List and view users"},
	{PermUserCreate, "Create users"},
	{PermUserUpdate, "Update users"},
	{PermUserDelete, "Delete users"},
	{PermTenantRead, "View the tenant"},
	{PermTenantUpdate, "Update the tenant"},
	{PermTenantDelete, "Delete the tenant"},
	{PermRoleRead, "List and view roles"},
	{PermRoleCreate, "Create roles"},
	{PermRoleUpdate, "Update roles"},
	{PermRoleDelete, "Delete roles"},
	{PermRoleGrant, "Grant extra permissions to a role within the tenant"},
	{PermPermissionRead, "List and view permissions"},
	{PermPermissionCreate, "Create permissions"},
	{PermPermissionUpdate, "Update permissions"},
	{PermPermissionDelete, "Delete permissions"},
	{PermMembershipRead, "List tenant members"},
	{PermMembershipCreate, "Add members to the tenant"},
	{PermMembershipUpdate, "Change member role or status"},
	{PermMembershipDelete, "Remove members from the tenant"},
	{PermAuditRead, "Read the tenant audit log"},
}

var memberPermissions = []string{PermUserRead, PermTenantRead}

// PlatformPermissions change the global catalog shared by every tenant.
var PlatformPermissions = []string{
	PermRoleCreate,
	PermRoleUpdate,
	PermRoleDelete,
	PermPermissionCreate,
	PermPermissionUpdate,
	PermPermissionDelete,
}

// IsPlatformPermission reports whether key is one of PlatformPermissions.
func IsPlatformPermission(key string) bool {
	for _, p := range PlatformPermissions {
		if strings.EqualFold(p, key) {
			return true
		}
	}
	return false
}

// Seed makes sure the default permissions and the SUPERADMIN, OWNER and
// MEMBER roles exist. Records that are already present are left untouched.
func Seed(ctx context.Context, c *Catalog) error {
	ids := make(map[string]uuid.UUID, len(defaultPermissions))
	for _, dp := range defaultPermissions {
		p, err := c.permissions.GetByKey(ctx, dp.key)
		if isNotFound(err) {
			p, err = c.CreatePermission(ctx, dp.key, dp.description)
			if errors.Is(err, apperr.ErrDuplicatePermission) {
				p, err = c.permissions.GetByKey(ctx, dp.key)
			}
			if err == nil {
				slog.Info("seeded permission", "key", dp.key)
			}
		}
		if err != nil {
			return fmt.Errorf("seed permission %s: %w", dp.key, err)
		}
		ids[dp.key] = p.ID
	}

	all := make([]uuid.UUID, 0, len(defaultPermissions))
	owner := make([]uuid.UUID, 0, len(defaultPermissions))
	for _, dp := range defaultPermissions {
		all = append(all, ids[dp.key])
		if !IsPlatformPermission(dp.key) {
			owner = append(owner, ids[dp.key])
		}
	}
	member := make([]uuid.UUID, 0, len(memberPermissions))
	for _, key := range memberPermissions {
		member = append(member, ids[key])
	}

	if err := seedRole(ctx, c, RoleSuperAdmin, all); err != nil {
		return err
	}
	if err := seedRole(ctx, c, RoleOwner, owner); err != nil {
		return err
	}
	return seedRole(ctx, c, RoleMember, member)
}

func seedRole(ctx context.Context, c *Catalog, name string, permissionIDs []uuid.UUID) error {
	_, err := c.FindRoleByName(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("seed role %s: %w", name, err)
	}
	if _, err := c.CreateRole(ctx, name, permissionIDs); err != nil && !errors.Is(err, apperr.ErrDuplicateRole) {
		return fmt.Errorf("seed role %s: %w", name, err)
	}
	slog.Info("seeded role", "name", name)
	return nil
}
