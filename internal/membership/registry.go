// Package membership links users to tenants with a role and a lifecycle status.
package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/store"
)

// RoleResolver loads a role with its permission objects.
type RoleResolver interface {
	FindByIDWithPermissions(ctx context.Context, roleID uuid.UUID) (*models.RoleWithPermissions, error)
}

type Registry struct {
	memberships store.Memberships
	users       store.Users
	tenants     store.Tenants
	roles       RoleResolver
}

func NewRegistry(memberships store.Memberships, users store.Users, tenants store.Tenants, roles RoleResolver) *Registry {
	return &Registry{memberships: memberships, users: users, tenants: tenants, roles: roles}
}

type AssignInput struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	RoleID   uuid.UUID
	// Status defaults to ACTIVE.
	Status models.MembershipStatus
}

type MembershipUpdate struct {
	RoleID *uuid.UUID
	Status *models.MembershipStatus
}

func (r *Registry) AssignUser(ctx context.Context, in AssignInput) (*models.Membership, error) {
	if in.Status == "" {
		in.Status = models.MembershipActive
	}
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown membership status %q", apperr.ErrInvalidInput, in.Status)
	}

	if _, err := r.users.GetByID(ctx, in.UserID); err != nil {
		return nil, fmt.Errorf("user: %w", apperr.FromStore(err, nil))
	}
	t, err := r.tenants.GetByID(ctx, in.TenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant: %w", apperr.FromStore(err, nil))
	}
	if t.IsDeleted {
		return nil, fmt.Errorf("tenant: %w", apperr.ErrNotFound)
	}
	if _, err := r.roles.FindByIDWithPermissions(ctx, in.RoleID); err != nil {
		return nil, fmt.Errorf("role: %w", err)
	}

	m := &models.Membership{
		UserID:   in.UserID,
		TenantID: in.TenantID,
		RoleID:   in.RoleID,
		Status:   in.Status,
	}
	if err := r.memberships.Create(ctx, m); err != nil {
		return nil, apperr.FromStore(err, apperr.ErrDuplicateMembership)
	}
	return m, nil
}

// GetMembership returns the user's membership in the tenant with tenant and
// role populated, whatever its status. Callers decide whether it authorizes.
func (r *Registry) GetMembership(ctx context.Context, userID, tenantID uuid.UUID) (*models.MembershipDetail, error) {
	m, err := r.memberships.GetByUserAndTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, apperr.FromStore(err, nil)
	}
	return r.detail(ctx, *m)
}

// GetUserTenants lists the user's ACTIVE memberships in tenants that still
// exist, oldest first.
func (r *Registry) GetUserTenants(ctx context.Context, userID uuid.UUID) ([]models.MembershipDetail, error) {
	ms, err := r.memberships.ListByUser(ctx, userID, models.MembershipActive)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}

	out := make([]models.MembershipDetail, 0, len(ms))
	for _, m := range ms {
		d, err := r.detail(ctx, m)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if d.Tenant.IsDeleted {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	m, err := r.memberships.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, nil)
	}
	return m, nil
}

func (r *Registry) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Membership, error) {
	ms, err := r.memberships.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return ms, nil
}

func (r *Registry) Update(ctx context.Context, id uuid.UUID, upd MembershipUpdate) (*models.Membership, error) {
	m, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.RoleID != nil {
		if _, err := r.roles.FindByIDWithPermissions(ctx, *upd.RoleID); err != nil {
			return nil, fmt.Errorf("role: %w", err)
		}
		m.RoleID = *upd.RoleID
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown membership status %q", apperr.ErrInvalidInput, *upd.Status)
		}
		m.Status = *upd.Status
	}

	if err := r.memberships.Update(ctx, m); err != nil {
		return nil, apperr.FromStore(err, nil)
	}
	return m, nil
}

func (r *Registry) Remove(ctx context.Context, id uuid.UUID) error {
	return apperr.FromStore(r.memberships.Delete(ctx, id), nil)
}

// detail joins the membership with its tenant and role. A role that has been
// deleted leaves Role nil; a missing tenant is ErrNotFound.
func (r *Registry) detail(ctx context.Context, m models.Membership) (*models.MembershipDetail, error) {
	t, err := r.tenants.GetByID(ctx, m.TenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant: %w", apperr.FromStore(err, nil))
	}

	d := &models.MembershipDetail{Membership: m, Tenant: t}
	role, err := r.roles.FindByIDWithPermissions(ctx, m.RoleID)
	switch {
	case err == nil:
		d.Role = role
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, fmt.Errorf("role: %w", err)
	}
	return d, nil
}
