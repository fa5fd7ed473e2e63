package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/tenantauth/internal/auth"
	"github.com/nikhilbhutani/tenantauth/internal/config"
	"github.com/nikhilbhutani/tenantauth/internal/identity"
	"github.com/nikhilbhutani/tenantauth/internal/rbac"
	"github.com/nikhilbhutani/tenantauth/internal/store/memory"
	"github.com/nikhilbhutani/tenantauth/internal/tenant"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}},
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret",
			Issuer:     "tenantauth-test",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
			BcryptCost: 4,
		},
		Cache:     config.CacheConfig{UsersTTL: time.Minute, WarmInterval: time.Minute},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
}

type testServer struct {
	t   *testing.T
	h   http.Handler
	svc Services
}

func newTestServer(t *testing.T, cfg *config.Config, rdb redis.UniversalClient) *testServer {
	t.Helper()
	svc := NewServices(cfg, memory.NewStore(), rdb)
	require.NoError(t, rbac.Seed(context.Background(), svc.Catalog))
	return &testServer{t: t, h: NewRouter(cfg, svc).Setup(), svc: svc}
}

type call struct {
	method, path  string
	body          any
	token, tenant string
}

func (s *testServer) do(c call) (int, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(c.body))
	}
	r := httptest.NewRequest(c.method, c.path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.tenant != "" {
		r.Header.Set(tenant.HeaderName, c.tenant)
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, r)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json" {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func (s *testServer) login(email string) map[string]any {
	s.t.Helper()
	code, body := s.do(call{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{
		"email": email, "password": "secret1",
	}})
	require.Equal(s.t, http.StatusOK, code, body)
	return body
}

func str(m map[string]any, keys ...string) string {
	var cur any = m
	for _, k := range keys {
		cur = cur.(map[string]any)[k]
	}
	return cur.(string)
}

func TestTenantAdministrationFlow(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	code, body := s.do(call{method: http.MethodPost, path: "/api/v1/auth/signup", body: map[string]any{
		"name": "Ada", "email": "ada@example.com", "password": "secret1",
		"tenant": map[string]string{"name": "Acme", "domain": "acme.com"},
	}})
	require.Equal(t, http.StatusCreated, code, body)
	tenantID := str(body, "tenant", "id")

	owner := s.login("ada@example.com")
	ownerToken := str(owner, "access_token")
	require.Equal(t, tenantID, str(owner, "default_tenant", "tenant_id"))

	code, _ = s.do(call{method: http.MethodGet, path: "/api/v1/roles"})
	require.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(call{method: http.MethodGet, path: "/api/v1/roles", token: ownerToken})
	require.Equal(t, http.StatusBadRequest, code)
	code, body = s.do(call{method: http.MethodGet, path: "/api/v1/roles", token: ownerToken, tenant: tenantID})
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 3, body["count"])

	// a second user joins as MEMBER
	code, body = s.do(call{method: http.MethodPost, path: "/api/v1/auth/signup", body: map[string]any{
		"name": "Bob", "email": "bob@example.com", "password": "secret1",
	}})
	require.Equal(t, http.StatusCreated, code, body)
	bobID := str(body, "user", "id")

	member, err := s.svc.Catalog.FindRoleByName(context.Background(), rbac.RoleMember)
	require.NoError(t, err)
	code, body = s.do(call{method: http.MethodPost, path: "/api/v1/memberships", token: ownerToken, tenant: tenantID,
		body: map[string]string{"user_id": bobID, "role_id": member.ID.String()}})
	require.Equal(t, http.StatusCreated, code, body)
	require.Equal(t, "ACTIVE", body["status"])

	code, _ = s.do(call{method: http.MethodPost, path: "/api/v1/memberships", token: ownerToken, tenant: tenantID,
		body: map[string]string{"user_id": bobID, "role_id": member.ID.String()}})
	require.Equal(t, http.StatusConflict, code)

	bobToken := str(s.login("bob@example.com"), "access_token")
	code, body = s.do(call{method: http.MethodGet, path: "/api/v1/users", token: bobToken, tenant: tenantID})
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 2, body["count"])
	code, body = s.do(call{method: http.MethodGet, path: "/api/v1/roles", token: bobToken, tenant: tenantID})
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "insufficient permissions", body["error"])

	// tenant override lets MEMBER read roles here
	perm, err := s.svc.Store.Permissions().GetByKey(context.Background(), rbac.PermRoleRead)
	require.NoError(t, err)
	overridePath := "/api/v1/tenants/current/roles/" + member.ID.String() + "/permissions"
	code, body = s.do(call{method: http.MethodPost, path: overridePath, token: ownerToken, tenant: tenantID,
		body: map[string]any{"permission_ids": []string{perm.ID.String()}}})
	require.Equal(t, http.StatusOK, code, body)

	code, _ = s.do(call{method: http.MethodGet, path: "/api/v1/roles", token: bobToken, tenant: tenantID})
	require.Equal(t, http.StatusOK, code)
	code, body = s.do(call{method: http.MethodGet, path: overridePath + "/effective", token: bobToken, tenant: tenantID})
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 3, body["count"])

	code, _ = s.do(call{method: http.MethodDelete, path: overridePath, token: ownerToken, tenant: tenantID,
		body: map[string]any{"permission_ids": []string{perm.ID.String()}}})
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(call{method: http.MethodGet, path: "/api/v1/roles", token: bobToken, tenant: tenantID})
	require.Equal(t, http.StatusForbidden, code)

	code, body = s.do(call{method: http.MethodGet, path: "/api/v1/audit", token: ownerToken, tenant: tenantID})
	require.Equal(t, http.StatusOK, code)
	require.NotZero(t, body["count"])

	code, body = s.do(call{method: http.MethodGet, path: "/api/v1/me/tenants", token: bobToken})
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, body["count"])
}

// signupOwner registers email as the owner of a new tenant and returns the
// signup response.
func (s *testServer) signupOwner(email, domain string) map[string]any {
	s.t.Helper()
	code, body := s.do(call{method: http.MethodPost, path: "/api/v1/auth/signup", body: map[string]any{
		"name": email, "email": email, "password": "secret1",
		"tenant": map[string]string{"name": domain, "domain": domain},
	}})
	require.Equal(s.t, http.StatusCreated, code, body)
	return body
}

func (s *testServer) roleID(name string) string {
	s.t.Helper()
	role, err := s.svc.Catalog.FindRoleByName(context.Background(), name)
	require.NoError(s.t, err)
	return role.ID.String()
}

func (s *testServer) permissionID(key string) string {
	s.t.Helper()
	perm, err := s.svc.Store.Permissions().GetByKey(context.Background(), key)
	require.NoError(s.t, err)
	return perm.ID.String()
}

func TestTenantOwnerCannotReachOtherTenants(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	acme := s.signupOwner("ada@example.com", "acme.com")
	acmeID := str(acme, "tenant", "id")
	adaID := str(acme, "user", "id")
	adaToken := str(s.login("ada@example.com"), "access_token")

	evil := s.signupOwner("eve@example.com", "evil.com")
	evilID := str(evil, "tenant", "id")
	eveMembership := str(evil, "membership", "id")
	eveToken := str(s.login("eve@example.com"), "access_token")
	eve := func(method, path string, body any) int {
		code, _ := s.do(call{method: method, path: path, body: body, token: eveToken, tenant: evilID})
		return code
	}

	// users of other tenants are invisible
	code, body := s.do(call{method: http.MethodGet, path: "/api/v1/users", token: eveToken, tenant: evilID})
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, body["count"])
	require.Equal(t, str(evil, "user", "id"), body["users"].([]any)[0].(map[string]any)["id"])
	require.Equal(t, http.StatusNotFound, eve(http.MethodGet, "/api/v1/users/"+adaID, nil))

	// the shared catalog is read-only for tenant owners
	require.Equal(t, http.StatusOK, eve(http.MethodGet, "/api/v1/roles", nil))
	for _, name := range []string{rbac.RoleSuperAdmin, rbac.RoleOwner, rbac.RoleMember} {
		require.Equal(t, http.StatusForbidden, eve(http.MethodDelete, "/api/v1/roles/"+s.roleID(name), nil), name)
		require.Equal(t, http.StatusForbidden, eve(http.MethodPatch, "/api/v1/roles/"+s.roleID(name),
			map[string]any{"permission_ids": []string{}}), name)
	}
	require.Equal(t, http.StatusForbidden, eve(http.MethodPost, "/api/v1/roles",
		map[string]any{"name": "EVIL", "permission_ids": []string{}}))
	require.Equal(t, http.StatusForbidden, eve(http.MethodPost, "/api/v1/permissions",
		map[string]string{"key": "evil.do", "description": "x"}))
	readID := s.permissionID(rbac.PermUserRead)
	require.Equal(t, http.StatusForbidden, eve(http.MethodPatch, "/api/v1/permissions/"+readID,
		map[string]string{"description": "x"}))
	require.Equal(t, http.StatusForbidden, eve(http.MethodDelete, "/api/v1/permissions/"+readID, nil))

	// no escalation inside her own tenant either
	require.Equal(t, http.StatusForbidden, eve(http.MethodPost,
		"/api/v1/tenants/current/roles/"+s.roleID(rbac.RoleOwner)+"/permissions",
		map[string]any{"permission_ids": []string{s.permissionID(rbac.PermRoleDelete)}}))
	require.Equal(t, http.StatusForbidden, eve(http.MethodPatch, "/api/v1/memberships/"+eveMembership,
		map[string]string{"role_id": s.roleID(rbac.RoleSuperAdmin)}))
	code, body = s.do(call{method: http.MethodPost, path: "/api/v1/auth/signup", body: map[string]any{
		"name": "Mallory", "email": "mallory@example.com", "password": "secret1",
	}})
	require.Equal(t, http.StatusCreated, code, body)
	require.Equal(t, http.StatusForbidden, eve(http.MethodPost, "/api/v1/memberships",
		map[string]string{"user_id": str(body, "user", "id"), "role_id": s.roleID(rbac.RoleSuperAdmin)}))

	// acme is out of reach and keeps working
	code, _ = s.do(call{method: http.MethodGet, path: "/api/v1/roles", token: eveToken, tenant: acmeID})
	require.Equal(t, http.StatusForbidden, code)
	code, body = s.do(call{method: http.MethodGet, path: "/api/v1/roles", token: adaToken, tenant: acmeID})
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 3, body["count"])
	code, body = s.do(call{method: http.MethodGet, path: "/api/v1/users", token: adaToken, tenant: acmeID})
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, body["count"])
}

func TestPlatformAdminManagesCatalog(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	m, err := s.svc.Auth.BootstrapPlatformAdmin(context.Background(), auth.SignupInput{
		Name: "Root", Email: "root@example.com", Password: "secret1",
		TenantName: "Platform", TenantDomain: "platform.local",
	})
	require.NoError(t, err)
	rootToken := str(s.login("root@example.com"), "access_token")
	platform := m.TenantID.String()

	code, body := s.do(call{method: http.MethodPost, path: "/api/v1/permissions", token: rootToken, tenant: platform,
		body: map[string]string{"key": "reports.export", "description": "Export reports"}})
	require.Equal(t, http.StatusCreated, code, body)
	code, _ = s.do(call{method: http.MethodDelete, path: "/api/v1/permissions/" + str(body, "id"), token: rootToken, tenant: platform})
	require.Equal(t, http.StatusNoContent, code)

	// a platform admin may hand out the platform role
	s.signupOwner("ada@example.com", "acme.com")
	ada, err := s.svc.Users.FindByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	code, body = s.do(call{method: http.MethodPost, path: "/api/v1/memberships", token: rootToken, tenant: platform,
		body: map[string]string{"user_id": ada.ID.String(), "role_id": s.roleID(rbac.RoleSuperAdmin)}})
	require.Equal(t, http.StatusCreated, code, body)
}

func TestAuditPagingIsValidated(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	tenantID := str(s.signupOwner("ada@example.com", "acme.com"), "tenant", "id")
	token := str(s.login("ada@example.com"), "access_token")

	for _, q := range []string{"offset=-1", "limit=-5", "limit=ten"} {
		code, body := s.do(call{method: http.MethodGet, path: "/api/v1/audit?" + q, token: token, tenant: tenantID})
		require.Equal(t, http.StatusBadRequest, code, q)
		require.NotEmpty(t, body["error"])
	}

	code, body := s.do(call{method: http.MethodGet, path: "/api/v1/audit?limit=100000&offset=0", token: token, tenant: tenantID})
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 2, body["count"])

	code, body = s.do(call{method: http.MethodGet, path: "/api/v1/audit?offset=50", token: token, tenant: tenantID})
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 0, body["count"])
}

func TestRefreshAndLogout(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := newTestServer(t, testConfig(), rdb)

	code, body := s.do(call{method: http.MethodPost, path: "/api/v1/auth/signup", body: map[string]any{
		"name": "Ada", "email": "ada@example.com", "password": "secret1",
	}})
	require.Equal(t, http.StatusCreated, code, body)

	login := s.login("ada@example.com")
	refresh := map[string]string{"user_id": str(login, "user", "id"), "refresh_token": str(login, "refresh_token")}

	code, body = s.do(call{method: http.MethodPost, path: "/api/v1/auth/refresh", body: refresh})
	require.Equal(t, http.StatusOK, code, body)
	require.NotEmpty(t, body["access_token"])

	code, _ = s.do(call{method: http.MethodPost, path: "/api/v1/auth/logout"})
	require.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(call{method: http.MethodPost, path: "/api/v1/auth/logout", token: str(login, "access_token")})
	require.Equal(t, http.StatusNoContent, code)

	code, body = s.do(call{method: http.MethodPost, path: "/api/v1/auth/refresh", body: refresh})
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "invalid refresh token", body["error"])

	code, body = s.do(call{method: http.MethodGet, path: "/api/v1/me", token: str(login, "access_token")})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ada@example.com", body["email"])

	_, err := s.svc.Users.List(context.Background())
	require.NoError(t, err)
	require.True(t, mr.Exists(identity.UsersCacheKey))
}

func TestAuthEndpointsAreRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 2}
	s := newTestServer(t, cfg, nil)

	creds := map[string]string{"email": "nobody@example.com", "password": "wrong-password"}
	for i := 0; i < 2; i++ {
		code, _ := s.do(call{method: http.MethodPost, path: "/api/v1/auth/login", body: creds})
		require.Equal(t, http.StatusUnauthorized, code)
	}
	code, _ := s.do(call{method: http.MethodPost, path: "/api/v1/auth/login", body: creds})
	require.Equal(t, http.StatusTooManyRequests, code)

	// non-auth routes use a separate budget
	code, _ = s.do(call{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	code, body := s.do(call{method: http.MethodGet, path: "/readyz"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])

	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "http_requests_total")
}
