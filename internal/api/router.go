package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/tenantauth/internal/api/handlers"
	"github.com/nikhilbhutani/tenantauth/internal/api/middleware"
	"github.com/nikhilbhutani/tenantauth/internal/audit"
	"github.com/nikhilbhutani/tenantauth/internal/auth"
	"github.com/nikhilbhutani/tenantauth/internal/config"
	"github.com/nikhilbhutani/tenantauth/internal/identity"
	"github.com/nikhilbhutani/tenantauth/internal/membership"
	"github.com/nikhilbhutani/tenantauth/internal/metrics"
	"github.com/nikhilbhutani/tenantauth/internal/rbac"
	"github.com/nikhilbhutani/tenantauth/internal/session"
	"github.com/nikhilbhutani/tenantauth/internal/store"
	"github.com/nikhilbhutani/tenantauth/internal/tenant"
)

// Services groups everything the HTTP layer calls into.
type Services struct {
	Store       store.Store
	Redis       redis.UniversalClient
	Users       *identity.Service
	Tenants     *tenant.Service
	Catalog     *rbac.Catalog
	Overrides   *rbac.Overrides
	Memberships *membership.Registry
	Issuer      *session.Issuer
	Audit       *audit.Service
	Auth        *auth.Service
}

type Router struct {
	mux      *chi.Mux
	cfg      *config.Config
	svc      Services
	pipeline *auth.Pipeline
}

func NewRouter(cfg *config.Config, svc Services) *Router {
	return &Router{
		mux:      chi.NewRouter(),
		cfg:      cfg,
		svc:      svc,
		pipeline: auth.NewPipeline(svc.Issuer, svc.Memberships, svc.Overrides),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Instrument)
	r.Use(audit.CaptureIP)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.svc.Store, rt.svc.Redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", metrics.Handler())

	authH := handlers.NewAuthHandler(rt.svc.Auth, rt.svc.Memberships)
	userH := handlers.NewUserHandler(rt.svc.Users, rt.svc.Memberships, rt.svc.Audit)
	tenantH := handlers.NewTenantHandler(rt.svc.Tenants, rt.svc.Auth, rt.svc.Audit)
	permH := handlers.NewPermissionHandler(rt.svc.Catalog, rt.svc.Audit)
	roleH := handlers.NewRoleHandler(rt.svc.Catalog, rt.svc.Audit)
	overrideH := handlers.NewOverrideHandler(rt.svc.Overrides, rt.svc.Catalog, rt.svc.Audit)
	memberH := handlers.NewMembershipHandler(rt.svc.Memberships, rt.svc.Catalog, rt.svc.Audit)
	auditH := handlers.NewAuditHandler(rt.svc.Audit)

	p := rt.pipeline
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints, throttled per client IP
		rl := middleware.NewRateLimiter(rt.cfg.RateLimit.RequestsPerSecond, rt.cfg.RateLimit.Burst)
		r.Route("/auth", func(r chi.Router) {
			r.Use(rl.Limit)
			r.Post("/signup", authH.Signup)
			r.Post("/login", authH.Login)
			r.Post("/refresh", authH.Refresh)
			r.With(p.Authenticate).Post("/logout", authH.Logout)
		})

		// Authenticated, no tenant context
		r.Group(func(r chi.Router) {
			r.Use(p.Authenticate)
			r.Get("/me", userH.Me)
			r.Patch("/me", userH.UpdateMe)
			r.Get("/me/tenants", authH.MyTenants)
			r.Post("/tenants", tenantH.Create)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(p.Protect(auth.AllOf(rbac.PermUserRead))...).Get("/", userH.List)
			r.With(p.Protect(auth.AllOf(rbac.PermUserRead))...).Get("/{id}", userH.Get)
		})

		// The permission and role catalog is shared by every tenant; writes
		// are reserved to platform administrators.
		r.Route("/permissions", func(r chi.Router) {
			r.With(p.Protect(auth.AllOf(rbac.PermPermissionRead))...).Get("/", permH.List)
			r.With(p.Protect(auth.PlatformAdmin(rbac.PermPermissionCreate))...).Post("/", permH.Create)
			r.With(p.Protect(auth.AllOf(rbac.PermPermissionRead))...).Get("/{id}", permH.Get)
			r.With(p.Protect(auth.PlatformAdmin(rbac.PermPermissionUpdate))...).Patch("/{id}", permH.Update)
			r.With(p.Protect(auth.PlatformAdmin(rbac.PermPermissionDelete))...).Delete("/{id}", permH.Delete)
		})

		r.Route("/roles", func(r chi.Router) {
			r.With(p.Protect(auth.AllOf(rbac.PermRoleRead))...).Get("/", roleH.List)
			r.With(p.Protect(auth.PlatformAdmin(rbac.PermRoleCreate))...).Post("/", roleH.Create)
			r.With(p.Protect(auth.AllOf(rbac.PermRoleRead))...).Get("/{id}", roleH.Get)
			r.With(p.Protect(auth.PlatformAdmin(rbac.PermRoleUpdate))...).Patch("/{id}", roleH.Update)
			r.With(p.Protect(auth.PlatformAdmin(rbac.PermRoleDelete))...).Delete("/{id}", roleH.Delete)
		})

		r.Route("/tenants/current", func(r chi.Router) {
			r.With(p.Protect(auth.AllOf(rbac.PermTenantRead))...).Get("/", tenantH.Current)
			r.With(p.Protect(auth.AllOf(rbac.PermTenantUpdate))...).Patch("/", tenantH.UpdateCurrent)
			r.With(p.Protect(auth.AllOf(rbac.PermTenantDelete))...).Delete("/", tenantH.DeleteCurrent)

			r.Route("/roles/{roleId}/permissions", func(r chi.Router) {
				r.With(p.Protect(auth.AnyOf(rbac.PermRoleRead, rbac.PermTenantRead))...).Get("/", overrideH.Get)
				r.With(p.Protect(auth.AllOf(rbac.PermRoleGrant, rbac.PermTenantUpdate))...).Post("/", overrideH.Grant)
				r.With(p.Protect(auth.AllOf(rbac.PermRoleGrant, rbac.PermTenantUpdate))...).Delete("/", overrideH.Revoke)
				r.With(p.Protect(auth.AnyOf(rbac.PermRoleRead, rbac.PermTenantRead))...).Get("/effective", overrideH.Effective)
			})
		})

		r.Route("/memberships", func(r chi.Router) {
			r.With(p.Protect(auth.AllOf(rbac.PermMembershipRead))...).Get("/", memberH.List)
			r.With(p.Protect(auth.AllOf(rbac.PermMembershipCreate))...).Post("/", memberH.Create)
			r.With(p.Protect(auth.AllOf(rbac.PermMembershipUpdate))...).Patch("/{id}", memberH.Update)
			r.With(p.Protect(auth.AllOf(rbac.PermMembershipDelete))...).Delete("/{id}", memberH.Delete)
		})

		r.With(p.Protect(auth.AllOf(rbac.PermAuditRead))...).Get("/audit", auditH.AuditLogs)
	})

	return r
}
