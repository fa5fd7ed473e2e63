package rbac

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/store"
)

// Overrides manages the extra permissions a tenant grants to a global role.
// A tenant without an override record simply gets the role's base set.
type Overrides struct {
	overrides   store.Overrides
	permissions store.Permissions
	roles       store.Roles
}

func NewOverrides(overrides store.Overrides, permissions store.Permissions, roles store.Roles) *Overrides {
	return &Overrides{overrides: overrides, permissions: permissions, roles: roles}
}

// AddExtraPermissions grants ids to the role within the tenant. Granting an
// id twice has no further effect.
func (o *Overrides) AddExtraPermissions(ctx context.Context, tenantID, roleID uuid.UUID, permissionIDs []uuid.UUID) (*models.TenantRolePermission, error) {
	if _, err := o.roles.GetByID(ctx, roleID); err != nil {
		return nil, apperr.FromStore(err, nil)
	}
	ids, err := resolvePermissionIDs(ctx, o.permissions, permissionIDs)
	if err != nil {
		return nil, err
	}
	rec, err := o.overrides.AddPermissions(ctx, tenantID, roleID, ids)
	if err != nil {
		return nil, fmt.Errorf("grant permissions: %w", err)
	}
	return rec, nil
}

// RemoveExtraPermissions revokes ids from the tenant's grant. Revoking an id
// that was never granted, or revoking when no override exists, is a no-op.
func (o *Overrides) RemoveExtraPermissions(ctx context.Context, tenantID, roleID uuid.UUID, permissionIDs []uuid.UUID) (*models.TenantRolePermission, error) {
	rec, err := o.overrides.RemovePermissions(ctx, tenantID, roleID, dedupe(permissionIDs))
	if isNotFound(err) {
		return emptyOverride(tenantID, roleID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("revoke permissions: %w", err)
	}
	return rec, nil
}

func (o *Overrides) GetOverride(ctx context.Context, tenantID, roleID uuid.UUID) (*models.TenantRolePermission, error) {
	rec, err := o.overrides.Get(ctx, tenantID, roleID)
	if isNotFound(err) {
		return emptyOverride(tenantID, roleID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get override: %w", err)
	}
	return rec, nil
}

// GetEffectivePermissions returns the role's base permissions united with the
// tenant's extras, one entry per permission, ordered by key.
func (o *Overrides) GetEffectivePermissions(ctx context.Context, tenantID, roleID uuid.UUID) ([]models.Permission, error) {
	role, err := o.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, apperr.FromStore(err, nil)
	}

	ids := role.PermissionIDs
	rec, err := o.overrides.Get(ctx, tenantID, roleID)
	switch {
	case err == nil:
		ids = append(append([]uuid.UUID{}, ids...), rec.ExtraPermissionIDs...)
	case !isNotFound(err):
		return nil, fmt.Errorf("get override: %w", err)
	}

	perms, err := o.permissions.GetByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	return perms, nil
}

func emptyOverride(tenantID, roleID uuid.UUID) *models.TenantRolePermission {
	return &models.TenantRolePermission{TenantID: tenantID, RoleID: roleID, ExtraPermissionIDs: []uuid.UUID{}}
}
