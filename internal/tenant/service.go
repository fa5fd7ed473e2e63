// Package tenant owns tenant records.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/store"
)

type Service struct {
	tenants store.Tenants
}

func NewService(tenants store.Tenants) *Service {
	return &Service{tenants: tenants}
}

type TenantUpdate struct {
	Name     *string
	Domain   *string
	IsActive *bool
}

func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

func (s *Service) FindByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	t, err := s.tenants.GetByDomain(ctx, NormalizeDomain(domain))
	if err != nil {
		return nil, apperr.FromStore(err, nil)
	}
	return t, nil
}

// DomainAvailable reports whether no live tenant holds domain.
// The answer is advisory; Create relies on the unique index.
func (s *Service) DomainAvailable(ctx context.Context, domain string) (bool, error) {
	_, err := s.tenants.GetByDomain(ctx, NormalizeDomain(domain))
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup tenant: %w", err)
	}
	return false, nil
}

func (s *Service) Create(ctx context.Context, name, domain string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	domain = NormalizeDomain(domain)
	if name == "" || domain == "" {
		return nil, fmt.Errorf("%w: tenant name and domain are required", apperr.ErrInvalidInput)
	}

	t := &models.Tenant{Name: name, Domain: domain, IsActive: true}
	if err := s.tenants.Create(ctx, t); err != nil {
		return nil, apperr.FromStore(err, apperr.ErrDuplicateDomain)
	}
	return t, nil
}

// GetByID returns ErrNotFound for soft-deleted tenants.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, nil)
	}
	if t.IsDeleted {
		return nil, apperr.ErrNotFound
	}
	return t, nil
}

func (s *Service) List(ctx context.Context) ([]models.Tenant, error) {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, upd TenantUpdate) (*models.Tenant, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tenant name is required", apperr.ErrInvalidInput)
		}
		t.Name = name
	}
	if upd.Domain != nil {
		domain := NormalizeDomain(*upd.Domain)
		if domain == "" {
			return nil, fmt.Errorf("%w: tenant domain is required", apperr.ErrInvalidInput)
		}
		t.Domain = domain
	}
	if upd.IsActive != nil {
		t.IsActive = *upd.IsActive
	}

	if err := s.tenants.Update(ctx, t); err != nil {
		return nil, apperr.FromStore(err, apperr.ErrDuplicateDomain)
	}
	return t, nil
}

func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID) error {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	t.IsDeleted = true
	t.IsActive = false
	if err := s.tenants.Update(ctx, t); err != nil {
		return apperr.FromStore(err, nil)
	}
	return nil
}
