package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/store"
)

const (
	permissionColumns = "id, key, description, created_at, updated_at"
	roleColumns       = "id, name, permission_ids, created_at, updated_at"
	overrideColumns   = "id, tenant_id, role_id, extra_permission_ids, created_at, updated_at"
)

type permissionsRepo struct {
	db DBTX
}

func scanPermission(row scanner) (*models.Permission, error) {
	var p models.Permission
	if err := row.Scan(&p.ID, &p.Key, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *permissionsRepo) Create(ctx context.Context, p *models.Permission) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO permissions (id, key, description) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		p.ID, p.Key, p.Description,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return translate(err)
}

func (r *permissionsRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Permission, error) {
	return scanPermission(r.db.QueryRow(ctx, "SELECT "+permissionColumns+" FROM permissions WHERE id = $1", id))
}

func (r *permissionsRepo) GetByKey(ctx context.Context, key string) (*models.Permission, error) {
	return scanPermission(r.db.QueryRow(ctx, "SELECT "+permissionColumns+" FROM permissions WHERE key = $1", key))
}

func (r *permissionsRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Permission, error) {
	if len(ids) == 0 {
		return []models.Permission{}, nil
	}
	return r.query(ctx, "SELECT "+permissionColumns+" FROM permissions WHERE id = ANY($1) ORDER BY key", ids)
}

func (r *permissionsRepo) List(ctx context.Context) ([]models.Permission, error) {
	return r.query(ctx, "SELECT "+permissionColumns+" FROM permissions ORDER BY key")
}

func (r *permissionsRepo) query(ctx context.Context, sql string, args ...any) ([]models.Permission, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	perms := []models.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, *p)
	}
	return perms, rows.Err()
}

func (r *permissionsRepo) Update(ctx context.Context, p *models.Permission) error {
	err := r.db.QueryRow(ctx,
		`UPDATE permissions SET key = $2, description = $3, updated_at = now()
		 WHERE id = $1 RETURNING created_at, updated_at`,
		p.ID, p.Key, p.Description,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return translate(err)
}

// Delete strips the id from role and override arrays in the same statement.
func (r *permissionsRepo) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted int64
	err := r.db.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM permissions WHERE id = $1 RETURNING id
		), stripped_roles AS (
			UPDATE roles SET permission_ids = array_remove(permission_ids, $1), updated_at = now()
			WHERE $1 = ANY(permission_ids)
		), stripped_overrides AS (
			UPDATE tenant_role_permissions
			SET extra_permission_ids = array_remove(extra_permission_ids, $1), updated_at = now()
			WHERE $1 = ANY(extra_permission_ids)
		)
		SELECT count(*) FROM deleted`, id,
	).Scan(&deleted)
	if err != nil {
		return translate(err)
	}
	if deleted == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rolesRepo struct {
	db DBTX
}

func scanRole(row scanner) (*models.Role, error) {
	var role models.Role
	if err := row.Scan(&role.ID, &role.Name, &role.PermissionIDs, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	if role.PermissionIDs == nil {
		role.PermissionIDs = []uuid.UUID{}
	}
	return &role, nil
}

func (r *rolesRepo) Create(ctx context.Context, role *models.Role) error {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO roles (id, name, permission_ids) VALUES ($1, $2, $3)
		 RETURNING permission_ids, created_at, updated_at`,
		role.ID, role.Name, nonNilIDs(role.PermissionIDs),
	).Scan(&role.PermissionIDs, &role.CreatedAt, &role.UpdatedAt)
	return translate(err)
}

func (r *rolesRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	return scanRole(r.db.QueryRow(ctx, "SELECT "+roleColumns+" FROM roles WHERE id = $1", id))
}

func (r *rolesRepo) GetByName(ctx context.Context, name string) (*models.Role, error) {
	return scanRole(r.db.QueryRow(ctx, "SELECT "+roleColumns+" FROM roles WHERE name = $1", name))
}

func (r *rolesRepo) List(ctx context.Context) ([]models.Role, error) {
	rows, err := r.db.Query(ctx, "SELECT "+roleColumns+" FROM roles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := []models.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

func (r *rolesRepo) Update(ctx context.Context, role *models.Role) error {
	err := r.db.QueryRow(ctx,
		`UPDATE roles SET name = $2, permission_ids = $3, updated_at = now()
		 WHERE id = $1 RETURNING permission_ids, created_at, updated_at`,
		role.ID, role.Name, nonNilIDs(role.PermissionIDs),
	).Scan(&role.PermissionIDs, &role.CreatedAt, &role.UpdatedAt)
	return translate(err)
}

// Delete relies on the ON DELETE CASCADE of tenant_role_permissions.role_id.
func (r *rolesRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return requireAffected(r.db.Exec(ctx, "DELETE FROM roles WHERE id = $1", id))
}

type overridesRepo struct {
	db DBTX
}

func scanOverride(row scanner) (*models.TenantRolePermission, error) {
	var o models.TenantRolePermission
	if err := row.Scan(&o.ID, &o.TenantID, &o.RoleID, &o.ExtraPermissionIDs, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	if o.ExtraPermissionIDs == nil {
		o.ExtraPermissionIDs = []uuid.UUID{}
	}
	return &o, nil
}

func (r *overridesRepo) Get(ctx context.Context, tenantID, roleID uuid.UUID) (*models.TenantRolePermission, error) {
	return scanOverride(r.db.QueryRow(ctx,
		"SELECT "+overrideColumns+" FROM tenant_role_permissions WHERE tenant_id = $1 AND role_id = $2",
		tenantID, roleID))
}

// AddPermissions upserts on (tenant_id, role_id) and unions the arrays in a
// single statement.
func (r *overridesRepo) AddPermissions(ctx context.Context, tenantID, roleID uuid.UUID, ids []uuid.UUID) (*models.TenantRolePermission, error) {
	return scanOverride(r.db.QueryRow(ctx, `
		INSERT INTO tenant_role_permissions (tenant_id, role_id, extra_permission_ids)
		VALUES ($1, $2, ARRAY(SELECT DISTINCT unnest($3::uuid[])))
		ON CONFLICT (tenant_id, role_id) DO UPDATE
		SET extra_permission_ids = ARRAY(
				SELECT DISTINCT unnest(tenant_role_permissions.extra_permission_ids || EXCLUDED.extra_permission_ids)
			),
			updated_at = now()
		RETURNING `+overrideColumns,
		tenantID, roleID, nonNilIDs(ids)))
}

func (r *overridesRepo) RemovePermissions(ctx context.Context, tenantID, roleID uuid.UUID, ids []uuid.UUID) (*models.TenantRolePermission, error) {
	return scanOverride(r.db.QueryRow(ctx, `
		UPDATE tenant_role_permissions
		SET extra_permission_ids = ARRAY(
				SELECT unnest(extra_permission_ids) EXCEPT SELECT unnest($3::uuid[])
			),
			updated_at = now()
		WHERE tenant_id = $1 AND role_id = $2
		RETURNING `+overrideColumns,
		tenantID, roleID, nonNilIDs(ids)))
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
