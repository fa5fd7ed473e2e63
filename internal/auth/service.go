package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/audit"
	"github.com/nikhilbhutani/tenantauth/internal/identity"
	"github.com/nikhilbhutani/tenantauth/internal/membership"
	"github.com/nikhilbhutani/tenantauth/internal/metrics"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/rbac"
	"github.com/nikhilbhutani/tenantauth/internal/session"
	"github.com/nikhilbhutani/tenantauth/internal/tenant"
)

type Service struct {
	users       *identity.Service
	tenants     *tenant.Service
	catalog     *rbac.Catalog
	memberships *membership.Registry
	issuer      *session.Issuer
	audit       *audit.Service
}

// NewService wires the auth flows. auditSvc may be nil.
func NewService(
	users *identity.Service,
	tenants *tenant.Service,
	catalog *rbac.Catalog,
	memberships *membership.Registry,
	issuer *session.Issuer,
	auditSvc *audit.Service,
) *Service {
	return &Service{
		users:       users,
		tenants:     tenants,
		catalog:     catalog,
		memberships: memberships,
		issuer:      issuer,
		audit:       auditSvc,
	}
}

type SignupInput struct {
	Name     string
	Email    string
	Password string
	// TenantName and TenantDomain are set together or not at all.
	TenantName   string
	TenantDomain string
}

type SignupResult struct {
	User       *models.User       `json:"user"`
	Tenant     *models.Tenant     `json:"tenant,omitempty"`
	Membership *models.Membership `json:"membership,omitempty"`
}

type LoginResult struct {
	session.TokenPair
	User          *models.User              `json:"user"`
	Tenants       []models.MembershipDetail `json:"tenants"`
	DefaultTenant *models.MembershipDetail  `json:"default_tenant"`
}

type RefreshInput struct {
	UserID uuid.UUID
	// TenantID, when set, requires the user's membership there to still be
	// ACTIVE.
	TenantID     *uuid.UUID
	RefreshToken string
}

type RefreshResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Signup creates a user and, when tenant details are given, a tenant owned by
// that user through an OWNER membership.
func (s *Service) Signup(ctx context.Context, in SignupInput) (res *SignupResult, err error) {
	defer func() { metrics.AuthEvent("signup", err) }()

	in.TenantName = strings.TrimSpace(in.TenantName)
	in.TenantDomain = strings.TrimSpace(in.TenantDomain)
	withTenant := in.TenantName != "" || in.TenantDomain != ""
	if withTenant && (in.TenantName == "" || in.TenantDomain == "") {
		return nil, fmt.Errorf("%w: tenant name and domain must be provided together", apperr.ErrInvalidInput)
	}

	var owner *models.Role
	if withTenant {
		available, err := s.tenants.DomainAvailable(ctx, in.TenantDomain)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, apperr.ErrDuplicateDomain
		}
		owner, err = s.ownerRole(ctx)
		if err != nil {
			return nil, err
		}
	}

	u, err := s.users.Create(ctx, in.Name, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	res = &SignupResult{User: u}

	if withTenant {
		t, err := s.tenants.Create(ctx, in.TenantName, in.TenantDomain)
		if err != nil {
			s.discardUser(ctx, u.ID)
			return nil, err
		}
		m, err := s.memberships.AssignUser(ctx, membership.AssignInput{
			UserID:   u.ID,
			TenantID: t.ID,
			RoleID:   owner.ID,
			Status:   models.MembershipActive,
		})
		if err != nil {
			s.discardUser(ctx, u.ID)
			s.discardTenant(ctx, t.ID)
			return nil, fmt.Errorf("assign owner: %w", err)
		}
		res.Tenant, res.Membership = t, m
	}

	entry := audit.LogEntry{UserID: u.ID, Action: audit.ActionSignup, ResourceType: "user", ResourceID: u.ID}
	if res.Tenant != nil {
		entry.TenantID = res.Tenant.ID
	}
	s.audit.Record(ctx, entry)

	return res, nil
}

// CreateTenant creates a tenant and makes the caller its OWNER.
func (s *Service) CreateTenant(ctx context.Context, userID uuid.UUID, name, domain string) (*models.Tenant, *models.Membership, error) {
	owner, err := s.ownerRole(ctx)
	if err != nil {
		return nil, nil, err
	}
	t, err := s.tenants.Create(ctx, name, domain)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.memberships.AssignUser(ctx, membership.AssignInput{UserID: userID, TenantID: t.ID, RoleID: owner.ID})
	if err != nil {
		return nil, nil, fmt.Errorf("assign owner: %w", err)
	}
	s.audit.Record(ctx, audit.LogEntry{TenantID: t.ID, UserID: userID, Action: audit.ActionTenantCreate, ResourceType: "tenant", ResourceID: t.ID})
	return t, m, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (res *LoginResult, err error) {
	defer func() { metrics.AuthEvent("login", err) }()

	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.users.VerifyPassword(password, u.PasswordHash) {
		return nil, apperr.ErrInvalidCredentials
	}

	pair, err := s.issuer.Issue(ctx, subjectOf(u))
	if err != nil {
		return nil, err
	}

	tenants, err := s.memberships.GetUserTenants(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	res = &LoginResult{TokenPair: *pair, User: u, Tenants: tenants}
	if len(tenants) > 0 {
		res.DefaultTenant = &tenants[0]
	}

	entry := audit.LogEntry{UserID: u.ID, Action: audit.ActionLogin, ResourceType: "user", ResourceID: u.ID}
	if res.DefaultTenant != nil {
		entry.TenantID = res.DefaultTenant.TenantID
	}
	s.audit.Record(ctx, entry)

	return res, nil
}

// Refresh mints a new access token. The refresh token is not rotated.
func (s *Service) Refresh(ctx context.Context, in RefreshInput) (res *RefreshResult, err error) {
	defer func() { metrics.AuthEvent("refresh", err) }()

	stored, err := s.issuer.Store().Get(ctx, in.UserID)
	if errors.Is(err, session.ErrNoSession) {
		return nil, apperr.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}
	if in.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(in.RefreshToken)) != 1 {
		return nil, apperr.ErrInvalidRefreshToken
	}

	claims, err := s.issuer.VerifyRefresh(in.RefreshToken)
	if err != nil {
		return nil, err
	}
	if sub, err := claims.UserID(); err != nil || sub != in.UserID {
		return nil, apperr.ErrInvalidRefreshToken
	}

	u, err := s.users.FindByID(ctx, in.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}

	if in.TenantID != nil {
		m, err := s.memberships.GetMembership(ctx, in.UserID, *in.TenantID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrMembershipInactive
		}
		if err != nil {
			return nil, err
		}
		if !m.Active() || !m.Tenant.Usable() {
			return nil, apperr.ErrMembershipInactive
		}
	}

	access, err := s.issuer.MintAccess(subjectOf(u))
	if err != nil {
		return nil, err
	}
	return &RefreshResult{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}

// Logout drops every refresh token of the user, including tenant scoped ones.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) (err error) {
	defer func() { metrics.AuthEvent("logout", err) }()

	if err := s.issuer.Store().DeleteAll(ctx, userID); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.LogEntry{UserID: userID, Action: audit.ActionLogout, ResourceType: "user", ResourceID: userID})
	return nil
}

// BootstrapPlatformAdmin makes sure the user named by in holds the SUPERADMIN
// role in the tenant named by in, creating the user and the tenant when they
// do not exist. An existing user keeps its password.
func (s *Service) BootstrapPlatformAdmin(ctx context.Context, in SignupInput) (*models.Membership, error) {
	if in.TenantName == "" || in.TenantDomain == "" {
		return nil, fmt.Errorf("%w: platform tenant name and domain are required", apperr.ErrInvalidInput)
	}
	role, err := s.catalog.FindRoleByName(ctx, rbac.RoleSuperAdmin)
	if err != nil {
		return nil, fmt.Errorf("lookup platform role: %w", err)
	}

	u, err := s.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		u, err = s.users.Create(ctx, in.Name, in.Email, in.Password)
	}
	if err != nil {
		return nil, fmt.Errorf("bootstrap user: %w", err)
	}

	t, err := s.tenants.FindByDomain(ctx, in.TenantDomain)
	if errors.Is(err, apperr.ErrNotFound) {
		t, err = s.tenants.Create(ctx, in.TenantName, in.TenantDomain)
	}
	if err != nil {
		return nil, fmt.Errorf("bootstrap tenant: %w", err)
	}

	m, err := s.memberships.GetMembership(ctx, u.ID, t.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return s.memberships.AssignUser(ctx, membership.AssignInput{
			UserID:   u.ID,
			TenantID: t.ID,
			RoleID:   role.ID,
			Status:   models.MembershipActive,
		})
	}
	if err != nil {
		return nil, err
	}
	if m.RoleID == role.ID && m.Active() {
		return &m.Membership, nil
	}
	active := models.MembershipActive
	return s.memberships.Update(ctx, m.ID, membership.MembershipUpdate{RoleID: &role.ID, Status: &active})
}

func (s *Service) ownerRole(ctx context.Context) (*models.Role, error) {
	role, err := s.catalog.FindRoleByName(ctx, rbac.RoleOwner)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrOwnerRoleMissing
	}
	if err != nil {
		return nil, fmt.Errorf("lookup owner role: %w", err)
	}
	return role, nil
}

// discardUser undoes user creation when the rest of the signup failed.
func (s *Service) discardUser(ctx context.Context, id uuid.UUID) {
	if err := s.users.Delete(ctx, id); err != nil {
		slog.Error("failed to remove user after aborted signup", "user_id", id, "error", err)
	}
}

func (s *Service) discardTenant(ctx context.Context, id uuid.UUID) {
	if err := s.tenants.SoftDelete(ctx, id); err != nil {
		slog.Error("failed to remove tenant after aborted signup", "tenant_id", id, "error", err)
	}
}

func subjectOf(u *models.User) session.Subject {
	return session.Subject{UserID: u.ID, Email: u.Email, Name: u.Name}
}
