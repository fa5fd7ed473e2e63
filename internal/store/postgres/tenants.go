package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/models"
)

const tenantColumns = "id, name, domain, is_active, is_deleted, created_at, updated_at"

type tenantsRepo struct {
	db DBTX
}

func scanTenant(row scanner) (*models.Tenant, error) {
	var t models.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Domain, &t.IsActive, &t.IsDeleted, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *tenantsRepo) Create(ctx context.Context, t *models.Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO tenants (id, name, domain, is_active, is_deleted) VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Domain, t.IsActive, t.IsDeleted,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	return translate(err)
}

func (r *tenantsRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return scanTenant(r.db.QueryRow(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE id = $1", id))
}

func (r *tenantsRepo) GetByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	return scanTenant(r.db.QueryRow(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE domain = $1 AND NOT is_deleted", domain))
}

func (r *tenantsRepo) List(ctx context.Context) ([]models.Tenant, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE NOT is_deleted ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	tenants := []models.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

func (r *tenantsRepo) Update(ctx context.Context, t *models.Tenant) error {
	err := r.db.QueryRow(ctx,
		`UPDATE tenants SET name = $2, domain = $3, is_active = $4, is_deleted = $5, updated_at = now()
		 WHERE id = $1 RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Domain, t.IsActive, t.IsDeleted,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	return translate(err)
}
