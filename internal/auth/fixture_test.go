package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/audit"
	"github.com/nikhilbhutani/tenantauth/internal/identity"
	"github.com/nikhilbhutani/tenantauth/internal/membership"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/rbac"
	"github.com/nikhilbhutani/tenantauth/internal/session"
	"github.com/nikhilbhutani/tenantauth/internal/store/memory"
	"github.com/nikhilbhutani/tenantauth/internal/tenant"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	store       *memory.Store
	users       *identity.Service
	tenants     *tenant.Service
	catalog     *rbac.Catalog
	overrides   *rbac.Overrides
	memberships *membership.Registry
	refresh     session.RefreshStore
	issuer      *session.Issuer
	audit       *audit.Service
	svc         *Service
	pipeline    *Pipeline
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, session.NewMemoryRefreshStore())
}

func newFixtureWithStore(t *testing.T, refresh session.RefreshStore) *fixture {
	t.Helper()
	st := memory.NewStore()
	f := &fixture{store: st, refresh: refresh}
	f.users = identity.NewService(st.Users(), identity.NewBcryptHasher(bcrypt.MinCost), nil, time.Minute)
	f.tenants = tenant.NewService(st.Tenants())
	f.catalog = rbac.NewCatalog(st.Permissions(), st.Roles())
	f.overrides = rbac.NewOverrides(st.Overrides(), st.Permissions(), st.Roles())
	f.memberships = membership.NewRegistry(st.Memberships(), st.Users(), st.Tenants(), f.catalog)
	f.issuer = session.NewIssuer(session.Config{Secret: "test-secret", Issuer: "tenantauth-test"}, refresh)
	f.audit = audit.NewService(st.AuditLogs())
	f.svc = NewService(f.users, f.tenants, f.catalog, f.memberships, f.issuer, f.audit)
	f.pipeline = NewPipeline(f.issuer, f.memberships, f.overrides)

	require.NoError(t, rbac.Seed(context.Background(), f.catalog))
	return f
}

// signup creates a user owning a fresh tenant.
func (f *fixture) signup(t *testing.T, email, domain string) *SignupResult {
	t.Helper()
	res, err := f.svc.Signup(context.Background(), SignupInput{
		Name:         "User " + email,
		Email:        email,
		Password:     "secret1",
		TenantName:   "Tenant " + domain,
		TenantDomain: domain,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) role(t *testing.T, name string) *models.Role {
	t.Helper()
	role, err := f.catalog.FindRoleByName(context.Background(), name)
	require.NoError(t, err)
	return role
}

func (f *fixture) permissionID(t *testing.T, key string) uuid.UUID {
	t.Helper()
	p, err := f.store.Permissions().GetByKey(context.Background(), key)
	require.NoError(t, err)
	return p.ID
}
