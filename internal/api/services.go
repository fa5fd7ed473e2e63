package api

import (
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/tenantauth/internal/audit"
	"github.com/nikhilbhutani/tenantauth/internal/auth"
	"github.com/nikhilbhutani/tenantauth/internal/cache"
	"github.com/nikhilbhutani/tenantauth/internal/config"
	"github.com/nikhilbhutani/tenantauth/internal/identity"
	"github.com/nikhilbhutani/tenantauth/internal/membership"
	"github.com/nikhilbhutani/tenantauth/internal/rbac"
	"github.com/nikhilbhutani/tenantauth/internal/session"
	"github.com/nikhilbhutani/tenantauth/internal/store"
	"github.com/nikhilbhutani/tenantauth/internal/tenant"
)

// NewServices wires the domain services over st. rdb is optional: without it
// refresh tokens are kept in process and the user listing is not cached.
func NewServices(cfg *config.Config, st store.Store, rdb redis.UniversalClient) Services {
	var (
		listCache identity.ListCache
		refresh   session.RefreshStore = session.NewMemoryRefreshStore()
	)
	if rdb != nil {
		listCache = cache.NewCache(rdb)
		refresh = session.NewRedisRefreshStore(rdb)
	}

	users := identity.NewService(st.Users(), identity.NewBcryptHasher(cfg.Auth.BcryptCost), listCache, cfg.Cache.UsersTTL)
	tenants := tenant.NewService(st.Tenants())
	catalog := rbac.NewCatalog(st.Permissions(), st.Roles())
	overrides := rbac.NewOverrides(st.Overrides(), st.Permissions(), st.Roles())
	memberships := membership.NewRegistry(st.Memberships(), st.Users(), st.Tenants(), catalog)
	issuer := session.NewIssuer(session.Config{
		Secret:     cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	}, refresh)
	auditSvc := audit.NewService(st.AuditLogs())

	return Services{
		Store:       st,
		Redis:       rdb,
		Users:       users,
		Tenants:     tenants,
		Catalog:     catalog,
		Overrides:   overrides,
		Memberships: memberships,
		Issuer:      issuer,
		Audit:       auditSvc,
		Auth:        auth.NewService(users, tenants, catalog, memberships, issuer, auditSvc),
	}
}
