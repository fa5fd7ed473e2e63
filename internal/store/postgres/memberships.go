package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/store"
)

const membershipColumns = "id, user_id, tenant_id, role_id, status, created_at, updated_at"

type membershipsRepo struct {
	db DBTX
}

func scanMembership(row scanner) (*models.Membership, error) {
	var m models.Membership
	if err := row.Scan(&m.ID, &m.UserID, &m.TenantID, &m.RoleID, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *membershipsRepo) Create(ctx context.Context, m *models.Membership) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO user_tenants (id, user_id, tenant_id, role_id, status) VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		m.ID, m.UserID, m.TenantID, m.RoleID, string(m.Status),
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	return translate(err)
}

func (r *membershipsRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	return scanMembership(r.db.QueryRow(ctx, "SELECT "+membershipColumns+" FROM user_tenants WHERE id = $1", id))
}

func (r *membershipsRepo) GetByUserAndTenant(ctx context.Context, userID, tenantID uuid.UUID) (*models.Membership, error) {
	return scanMembership(r.db.QueryRow(ctx,
		"SELECT "+membershipColumns+" FROM user_tenants WHERE user_id = $1 AND tenant_id = $2",
		userID, tenantID))
}

func (r *membershipsRepo) ListByUser(ctx context.Context, userID uuid.UUID, status models.MembershipStatus) ([]models.Membership, error) {
	if status == "" {
		return r.query(ctx,
			"SELECT "+membershipColumns+" FROM user_tenants WHERE user_id = $1 ORDER BY created_at, id", userID)
	}
	return r.query(ctx,
		"SELECT "+membershipColumns+" FROM user_tenants WHERE user_id = $1 AND status = $2 ORDER BY created_at, id",
		userID, string(status))
}

func (r *membershipsRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Membership, error) {
	return r.query(ctx,
		"SELECT "+membershipColumns+" FROM user_tenants WHERE tenant_id = $1 ORDER BY created_at, id", tenantID)
}

func (r *membershipsRepo) query(ctx context.Context, sql string, args ...any) ([]models.Membership, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	out := []models.Membership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *membershipsRepo) Update(ctx context.Context, m *models.Membership) error {
	err := r.db.QueryRow(ctx,
		`UPDATE user_tenants SET role_id = $2, status = $3, updated_at = now()
		 WHERE id = $1 RETURNING user_id, tenant_id, created_at, updated_at`,
		m.ID, m.RoleID, string(m.Status),
	).Scan(&m.UserID, &m.TenantID, &m.CreatedAt, &m.UpdatedAt)
	return translate(err)
}

func (r *membershipsRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return requireAffected(r.db.Exec(ctx, "DELETE FROM user_tenants WHERE id = $1", id))
}

type auditRepo struct {
	db DBTX
}

func (r *auditRepo) Append(ctx context.Context, l *models.AuditLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	details := l.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO audit_logs (id, tenant_id, user_id, action, resource_type, resource_id, details, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		l.ID, l.TenantID, l.UserID, l.Action, l.ResourceType, l.ResourceID, []byte(details), l.IPAddress,
	).Scan(&l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *auditRepo) List(ctx context.Context, q store.AuditQuery) ([]models.AuditLog, error) {
	q = q.Page()

	query := `SELECT id, tenant_id, user_id, action, resource_type, resource_id, details, ip_address, created_at
			  FROM audit_logs WHERE tenant_id = $1`
	args := []any{q.TenantID}
	argIdx := 2

	if q.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, q.Action)
		argIdx++
	}
	if q.StartDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *q.StartDate)
		argIdx++
	}
	if q.EndDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *q.EndDate)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var (
			l       models.AuditLog
			details []byte
		)
		if err := rows.Scan(&l.ID, &l.TenantID, &l.UserID, &l.Action, &l.ResourceType, &l.ResourceID, &details, &l.IPAddress, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		l.Details = json.RawMessage(details)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
