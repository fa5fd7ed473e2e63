// Package rbac holds the global role and permission catalog and the per-tenant
// permission grants layered on top of roles.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/store"
)

var keyPattern = regexp.MustCompile(`^[a-z]+\.[a-z]+$`)

type Catalog struct {
	permissions store.Permissions
	roles       store.Roles
}

func NewCatalog(permissions store.Permissions, roles store.Roles) *Catalog {
	return &Catalog{permissions: permissions, roles: roles}
}

// RoleUpdate changes the fields that are set. A nil PermissionIDs leaves the
// role's permissions alone; an empty one clears them.
type RoleUpdate struct {
	Name          *string
	PermissionIDs []uuid.UUID
}

func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func NormalizeRoleName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func (c *Catalog) CreatePermission(ctx context.Context, key, description string) (*models.Permission, error) {
	key = NormalizeKey(key)
	if !keyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: permission key must look like resource.action", apperr.ErrInvalidInput)
	}

	p := &models.Permission{Key: key, Description: strings.TrimSpace(description)}
	if err := c.permissions.Create(ctx, p); err != nil {
		return nil, apperr.FromStore(err, apperr.ErrDuplicatePermission)
	}
	return p, nil
}

func (c *Catalog) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	perms, err := c.permissions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}

func (c *Catalog) GetPermission(ctx context.Context, id uuid.UUID) (*models.Permission, error) {
	p, err := c.permissions.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, nil)
	}
	return p, nil
}

// UpdatePermission changes the description only; keys are immutable.
func (c *Catalog) UpdatePermission(ctx context.Context, id uuid.UUID, description string) (*models.Permission, error) {
	p, err := c.GetPermission(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Description = strings.TrimSpace(description)
	if err := c.permissions.Update(ctx, p); err != nil {
		return nil, apperr.FromStore(err, apperr.ErrDuplicatePermission)
	}
	return p, nil
}

// DeletePermission removes the permission along with every role and tenant
// override reference to it.
func (c *Catalog) DeletePermission(ctx context.Context, id uuid.UUID) error {
	return apperr.FromStore(c.permissions.Delete(ctx, id), nil)
}

func (c *Catalog) CreateRole(ctx context.Context, name string, permissionIDs []uuid.UUID) (*models.Role, error) {
	name = NormalizeRoleName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", apperr.ErrInvalidInput)
	}
	ids, err := c.resolveIDs(ctx, permissionIDs)
	if err != nil {
		return nil, err
	}

	role := &models.Role{Name: name, PermissionIDs: ids}
	if err := c.roles.Create(ctx, role); err != nil {
		return nil, apperr.FromStore(err, apperr.ErrDuplicateRole)
	}
	return role, nil
}

func (c *Catalog) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := c.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

func (c *Catalog) GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	role, err := c.roles.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, nil)
	}
	return role, nil
}

func (c *Catalog) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	role, err := c.roles.GetByName(ctx, NormalizeRoleName(name))
	if err != nil {
		return nil, apperr.FromStore(err, nil)
	}
	return role, nil
}

// FindByIDWithPermissions resolves the role's permission references. Ids
// that no longer resolve are dropped.
func (c *Catalog) FindByIDWithPermissions(ctx context.Context, roleID uuid.UUID) (*models.RoleWithPermissions, error) {
	role, err := c.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	perms, err := c.permissions.GetByIDs(ctx, role.PermissionIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve role permissions: %w", err)
	}
	return &models.RoleWithPermissions{Role: *role, Permissions: perms}, nil
}

func (c *Catalog) UpdateRole(ctx context.Context, id uuid.UUID, upd RoleUpdate) (*models.Role, error) {
	role, err := c.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := NormalizeRoleName(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", apperr.ErrInvalidInput)
		}
		role.Name = name
	}
	if upd.PermissionIDs != nil {
		ids, err := c.resolveIDs(ctx, upd.PermissionIDs)
		if err != nil {
			return nil, err
		}
		role.PermissionIDs = ids
	}

	if err := c.roles.Update(ctx, role); err != nil {
		return nil, apperr.FromStore(err, apperr.ErrDuplicateRole)
	}
	return role, nil
}

// DeleteRole hard-deletes the role and its tenant overrides. Memberships
// pointing at it stay and stop granting permissions.
func (c *Catalog) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return apperr.FromStore(c.roles.Delete(ctx, id), nil)
}

// resolveIDs deduplicates ids and checks that each names an existing
// permission.
func (c *Catalog) resolveIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	return resolvePermissionIDs(ctx, c.permissions, ids)
}

func resolvePermissionIDs(ctx context.Context, permissions store.Permissions, ids []uuid.UUID) ([]uuid.UUID, error) {
	distinct := dedupe(ids)
	if len(distinct) == 0 {
		return distinct, nil
	}
	found, err := permissions.GetByIDs(ctx, distinct)
	if err != nil {
		return nil, fmt.Errorf("lookup permissions: %w", err)
	}
	if len(found) != len(distinct) {
		known := make(map[uuid.UUID]struct{}, len(found))
		for _, p := range found {
			known[p.ID] = struct{}{}
		}
		for _, id := range distinct {
			if _, ok := known[id]; !ok {
				return nil, fmt.Errorf("%w: %s", apperr.ErrUnknownPermission, id)
			}
		}
		return nil, apperr.ErrUnknownPermission
	}
	return distinct, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
