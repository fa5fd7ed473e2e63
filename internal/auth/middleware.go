// Package auth runs the per-request authorization pipeline and the signup,
// login, refresh and logout flows.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/metrics"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/rbac"
	"github.com/nikhilbhutani/tenantauth/internal/session"
	"github.com/nikhilbhutani/tenantauth/internal/tenant"
)

type TokenVerifier interface {
	VerifyAccess(token string) (*session.Claims, error)
}

type MembershipResolver interface {
	GetMembership(ctx context.Context, userID, tenantID uuid.UUID) (*models.MembershipDetail, error)
}

type PermissionResolver interface {
	GetEffectivePermissions(ctx context.Context, tenantID, roleID uuid.UUID) ([]models.Permission, error)
}

const (
	stepAuthenticate  = "authenticate"
	stepResolveTenant = "resolve_tenant"
	stepRequire       = "require"
)

// Pipeline holds the three ordered middlewares guarding protected routes:
// Authenticate, then ResolveTenant, then Require. A step that runs without
// the context of the previous one fails closed.
type Pipeline struct {
	tokens      TokenVerifier
	memberships MembershipResolver
	permissions PermissionResolver
}

func NewPipeline(tokens TokenVerifier, memberships MembershipResolver, permissions PermissionResolver) *Pipeline {
	return &Pipeline{tokens: tokens, memberships: memberships, permissions: permissions}
}

// Protect returns the full chain for a route with the given requirement.
func (p *Pipeline) Protect(req Requirement) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{p.Authenticate, p.ResolveTenant, p.Require(req)}
}

func (p *Pipeline) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			p.deny(w, r, stepAuthenticate, apperr.ErrUnauthenticated)
			return
		}

		claims, err := p.tokens.VerifyAccess(tokenStr)
		if err != nil {
			p.deny(w, r, stepAuthenticate, err)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			p.deny(w, r, stepAuthenticate, apperr.ErrUnauthenticated)
			return
		}

		metrics.AuthzDecision(stepAuthenticate, metrics.OutcomeAllow)
		ctx := WithPrincipal(r.Context(), &Principal{UserID: userID, Claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (p *Pipeline) ResolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFromContext(r.Context())
		if principal == nil {
			p.deny(w, r, stepResolveTenant, apperr.ErrUnauthenticated)
			return
		}

		tenantID, err := tenant.SelectorFromRequest(r)
		if err != nil {
			p.deny(w, r, stepResolveTenant, err)
			return
		}

		m, err := p.memberships.GetMembership(r.Context(), principal.UserID, tenantID)
		if errors.Is(err, apperr.ErrNotFound) {
			p.deny(w, r, stepResolveTenant, apperr.ErrUnauthorizedTenant)
			return
		}
		if err != nil {
			p.fail(w, r, stepResolveTenant, err)
			return
		}
		if !m.Active() || !m.Tenant.Usable() {
			p.deny(w, r, stepResolveTenant, apperr.ErrUnauthorizedTenant)
			return
		}

		metrics.AuthzDecision(stepResolveTenant, metrics.OutcomeAllow)
		ctx := WithPrincipal(r.Context(), principal.withMembership(m))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require enforces req over the effective permissions of the resolved
// membership.
func (p *Pipeline) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				p.deny(w, r, stepRequire, apperr.ErrUnauthenticated)
				return
			}
			m := principal.Membership
			if m == nil || !m.Active() {
				p.deny(w, r, stepRequire, apperr.ErrUnauthorizedTenant)
				return
			}
			if req.Platform && !isPlatformAdmin(m) {
				p.deny(w, r, stepRequire, apperr.ErrInsufficientPermissions)
				return
			}
			if req.Empty() {
				metrics.AuthzDecision(stepRequire, metrics.OutcomeAllow)
				next.ServeHTTP(w, r)
				return
			}

			perms, err := p.permissions.GetEffectivePermissions(r.Context(), m.TenantID, m.RoleID)
			if errors.Is(err, apperr.ErrNotFound) {
				p.deny(w, r, stepRequire, apperr.ErrInsufficientPermissions)
				return
			}
			if err != nil {
				p.fail(w, r, stepRequire, err)
				return
			}

			keys := models.PermissionKeys(perms)
			if !req.Satisfied(keys) {
				p.deny(w, r, stepRequire, apperr.ErrInsufficientPermissions)
				return
			}

			metrics.AuthzDecision(stepRequire, metrics.OutcomeAllow)
			ctx := WithPrincipal(r.Context(), principal.withPermissions(keys))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (p *Pipeline) deny(w http.ResponseWriter, r *http.Request, step string, err error) {
	metrics.AuthzDecision(step, metrics.OutcomeDeny)
	slog.Debug("request denied",
		"step", step,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	writeError(w, err)
}

func (p *Pipeline) fail(w http.ResponseWriter, r *http.Request, step string, err error) {
	metrics.AuthzDecision(step, metrics.OutcomeError)
	slog.Error("authorization failed",
		"step", step,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	writeError(w, err)
}

func isPlatformAdmin(m *models.MembershipDetail) bool {
	return m.Role != nil && m.Role.Name == rbac.RoleSuperAdmin
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": publicMessage(err)})
}

// publicMessage strips wrapping detail from pipeline errors so callers only
// see the taxonomy message.
func publicMessage(err error) string {
	for _, sentinel := range []error{
		apperr.ErrUnauthenticated,
		apperr.ErrTenantNotSpecified,
		apperr.ErrUnauthorizedTenant,
		apperr.ErrInsufficientPermissions,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return apperr.PublicMessage(err)
}
