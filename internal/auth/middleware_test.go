package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/membership"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/rbac"
	"github.com/nikhilbhutani/tenantauth/internal/session"
	"github.com/nikhilbhutani/tenantauth/internal/tenant"
	"github.com/stretchr/testify/require"
)

type caller struct {
	userID   uuid.UUID
	tenantID uuid.UUID
	token    string
	member   *models.Membership
}

// owner signs up a user owning a new tenant and logs them in.
func (f *fixture) owner(t *testing.T, email, domain string) caller {
	t.Helper()
	res := f.signup(t, email, domain)
	login, err := f.svc.Login(context.Background(), email, "secret1")
	require.NoError(t, err)
	return caller{userID: res.User.ID, tenantID: res.Tenant.ID, token: login.AccessToken, member: res.Membership}
}

// member adds a new user to tenantID with the named role.
func (f *fixture) member(t *testing.T, email string, tenantID uuid.UUID, roleName string, status models.MembershipStatus) caller {
	t.Helper()
	ctx := context.Background()
	u, err := f.users.Create(ctx, "Member", email, "secret1")
	require.NoError(t, err)
	m, err := f.memberships.AssignUser(ctx, membership.AssignInput{
		UserID:   u.ID,
		TenantID: tenantID,
		RoleID:   f.role(t, roleName).ID,
		Status:   status,
	})
	require.NoError(t, err)
	login, err := f.svc.Login(ctx, email, "secret1")
	require.NoError(t, err)
	return caller{userID: u.ID, tenantID: tenantID, token: login.AccessToken, member: m}
}

// serve runs one request through the protected chain and reports the status
// and, on success, the principal the handler observed.
func serve(p *Pipeline, req Requirement, token, tenantHeader string) (int, *Principal, string) {
	var seen *Principal
	h := chi.Chain(p.Protect(req)...).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/things", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	if tenantHeader != "" {
		r.Header.Set(tenant.HeaderName, tenantHeader)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(w.Body).Decode(&body)
	return w.Code, seen, body.Error
}

func TestAuthenticateRejectsMissingAndInvalidTokens(t *testing.T) {
	f := newFixture(t)
	c := f.owner(t, "ada@example.com", "acme.com")

	for name, token := range map[string]string{
		"missing":   "",
		"garbage":   "not-a-jwt",
		"tampered":  c.token + "x",
		"forged":    forgeToken(t, c.userID),
		"refreshed": f.refreshToken(t, "ada@example.com"),
	} {
		t.Run(name, func(t *testing.T) {
			code, seen, msg := serve(f.pipeline, Requirement{}, token, c.tenantID.String())
			require.Equal(t, http.StatusUnauthorized, code)
			require.Nil(t, seen)
			require.Equal(t, "unauthenticated", msg)
		})
	}
}

func TestBearerSchemeIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	c := f.owner(t, "ada@example.com", "acme.com")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer "+c.token)
	require.Equal(t, c.token, extractBearerToken(r))

	r.Header.Set("Authorization", "Basic "+c.token)
	require.Empty(t, extractBearerToken(r))
}

func TestResolveTenantHeader(t *testing.T) {
	f := newFixture(t)
	c := f.owner(t, "ada@example.com", "acme.com")
	other := f.owner(t, "bob@example.com", "globex.com")

	code, _, msg := serve(f.pipeline, Requirement{}, c.token, "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "tenant not specified", msg)

	for name, header := range map[string]string{
		"malformed":  "acme",
		"nil uuid":   uuid.Nil.String(),
		"unknown":    uuid.NewString(),
		"not member": other.tenantID.String(),
	} {
		t.Run(name, func(t *testing.T) {
			code, seen, msg := serve(f.pipeline, Requirement{}, c.token, header)
			require.Equal(t, http.StatusForbidden, code)
			require.Nil(t, seen)
			require.Equal(t, "unauthorized tenant", msg)
		})
	}
}

func TestResolveTenantRejectsInactiveMemberships(t *testing.T) {
	f := newFixture(t)
	owner := f.owner(t, "ada@example.com", "acme.com")
	invited := f.member(t, "invited@example.com", owner.tenantID, rbac.RoleMember, models.MembershipInvited)
	suspended := f.member(t, "suspended@example.com", owner.tenantID, rbac.RoleMember, models.MembershipSuspended)

	for name, c := range map[string]caller{"invited": invited, "suspended": suspended} {
		t.Run(name, func(t *testing.T) {
			code, _, _ := serve(f.pipeline, Requirement{}, c.token, c.tenantID.String())
			require.Equal(t, http.StatusForbidden, code)
		})
	}
}

func TestResolveTenantRejectsDeletedAndInactiveTenants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deleted := f.owner(t, "ada@example.com", "acme.com")
	inactive := f.owner(t, "bob@example.com", "globex.com")

	require.NoError(t, f.tenants.SoftDelete(ctx, deleted.tenantID))
	off := false
	_, err := f.tenants.Update(ctx, inactive.tenantID, tenant.TenantUpdate{IsActive: &off})
	require.NoError(t, err)

	for _, c := range []caller{deleted, inactive} {
		code, _, msg := serve(f.pipeline, Requirement{}, c.token, c.tenantID.String())
		require.Equal(t, http.StatusForbidden, code)
		require.Equal(t, "unauthorized tenant", msg)
	}
}

func TestEmptyRequirementOnlyNeedsActiveMembership(t *testing.T) {
	f := newFixture(t)
	c := f.owner(t, "ada@example.com", "acme.com")

	code, seen, _ := serve(f.pipeline, Requirement{}, c.token, c.tenantID.String())
	require.Equal(t, http.StatusNoContent, code)
	require.NotNil(t, seen)
	require.Equal(t, c.userID, seen.UserID)
	require.Equal(t, c.tenantID, seen.TenantID())
	require.Equal(t, rbac.RoleOwner, seen.Membership.Role.Name)
}

func TestRequirementModes(t *testing.T) {
	f := newFixture(t)
	owner := f.owner(t, "ada@example.com", "acme.com")
	m := f.member(t, "member@example.com", owner.tenantID, rbac.RoleMember, models.MembershipActive)

	tests := []struct {
		name string
		req  Requirement
		want int
	}{
		{"and granted", AllOf(rbac.PermUserRead, rbac.PermTenantRead), http.StatusNoContent},
		{"and partially granted", AllOf(rbac.PermUserRead, rbac.PermUserDelete), http.StatusForbidden},
		{"or one granted", AnyOf(rbac.PermUserDelete, rbac.PermUserRead), http.StatusNoContent},
		{"or none granted", AnyOf(rbac.PermUserDelete, rbac.PermRoleCreate), http.StatusForbidden},
		{"case insensitive", AllOf("USER.READ"), http.StatusNoContent},
		{"unknown key", AllOf("reports.export"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, seen, msg := serve(f.pipeline, tt.req, m.token, m.tenantID.String())
			require.Equal(t, tt.want, code)
			if tt.want == http.StatusForbidden {
				require.Equal(t, "insufficient permissions", msg)
				return
			}
			require.ElementsMatch(t, []string{rbac.PermTenantRead, rbac.PermUserRead}, seen.Permissions)
		})
	}
}

func TestPlatformRequirement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.owner(t, "ada@example.com", "acme.com")
	admin := f.member(t, "root@example.com", owner.tenantID, rbac.RoleSuperAdmin, models.MembershipActive)

	code, _, msg := serve(f.pipeline, PlatformAdmin(rbac.PermRoleDelete), owner.token, owner.tenantID.String())
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "insufficient permissions", msg)

	// an override on the owner role does not make its holders platform admins
	_, err := f.overrides.AddExtraPermissions(ctx, owner.tenantID, f.role(t, rbac.RoleOwner).ID,
		[]uuid.UUID{f.permissionID(t, rbac.PermRoleDelete)})
	require.NoError(t, err)
	code, _, _ = serve(f.pipeline, PlatformAdmin(rbac.PermRoleDelete), owner.token, owner.tenantID.String())
	require.Equal(t, http.StatusForbidden, code)

	code, seen, _ := serve(f.pipeline, PlatformAdmin(rbac.PermRoleDelete), admin.token, admin.tenantID.String())
	require.Equal(t, http.StatusNoContent, code)
	require.Contains(t, seen.Permissions, rbac.PermRoleDelete)
}

func TestPrincipalHolds(t *testing.T) {
	p := &Principal{Permissions: []string{rbac.PermUserRead, rbac.PermRoleRead}}
	require.True(t, p.Holds())
	require.True(t, p.Holds("USER.READ", rbac.PermRoleRead))
	require.False(t, p.Holds(rbac.PermUserRead, rbac.PermRoleDelete))

	var none *Principal
	require.False(t, none.Holds(rbac.PermUserRead))
}

func TestOverrideGrantIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acme := f.owner(t, "ada@example.com", "acme.com")
	globex := f.owner(t, "bob@example.com", "globex.com")
	inAcme := f.member(t, "m1@example.com", acme.tenantID, rbac.RoleMember, models.MembershipActive)
	inGlobex := f.member(t, "m2@example.com", globex.tenantID, rbac.RoleMember, models.MembershipActive)

	req := AllOf(rbac.PermAuditRead)
	code, _, _ := serve(f.pipeline, req, inAcme.token, acme.tenantID.String())
	require.Equal(t, http.StatusForbidden, code)

	_, err := f.overrides.AddExtraPermissions(ctx, acme.tenantID, f.role(t, rbac.RoleMember).ID,
		[]uuid.UUID{f.permissionID(t, rbac.PermAuditRead)})
	require.NoError(t, err)

	code, _, _ = serve(f.pipeline, req, inAcme.token, acme.tenantID.String())
	require.Equal(t, http.StatusNoContent, code)
	code, _, _ = serve(f.pipeline, req, inGlobex.token, globex.tenantID.String())
	require.Equal(t, http.StatusForbidden, code)

	_, err = f.overrides.RemoveExtraPermissions(ctx, acme.tenantID, f.role(t, rbac.RoleMember).ID,
		[]uuid.UUID{f.permissionID(t, rbac.PermAuditRead)})
	require.NoError(t, err)
	code, _, _ = serve(f.pipeline, req, inAcme.token, acme.tenantID.String())
	require.Equal(t, http.StatusForbidden, code)
}

func TestDeletedRoleGrantsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.owner(t, "ada@example.com", "acme.com")

	role, err := f.catalog.CreateRole(ctx, "AUDITOR", []uuid.UUID{f.permissionID(t, rbac.PermAuditRead)})
	require.NoError(t, err)
	u, err := f.users.Create(ctx, "Auditor", "auditor@example.com", "secret1")
	require.NoError(t, err)
	_, err = f.memberships.AssignUser(ctx, membership.AssignInput{UserID: u.ID, TenantID: owner.tenantID, RoleID: role.ID})
	require.NoError(t, err)
	login, err := f.svc.Login(ctx, "auditor@example.com", "secret1")
	require.NoError(t, err)

	code, _, _ := serve(f.pipeline, AllOf(rbac.PermAuditRead), login.AccessToken, owner.tenantID.String())
	require.Equal(t, http.StatusNoContent, code)

	require.NoError(t, f.catalog.DeleteRole(ctx, role.ID))

	code, _, msg := serve(f.pipeline, AllOf(rbac.PermAuditRead), login.AccessToken, owner.tenantID.String())
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "insufficient permissions", msg)
}

func TestStepsFailClosedWithoutPrerequisites(t *testing.T) {
	f := newFixture(t)
	c := f.owner(t, "ada@example.com", "acme.com")
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(tenant.HeaderName, c.tenantID.String())
	w := httptest.NewRecorder()
	f.pipeline.ResolveTenant(ok).ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	f.pipeline.Require(Requirement{})(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// authenticated but tenant never resolved
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(WithPrincipal(r.Context(), &Principal{UserID: c.userID}))
	w = httptest.NewRecorder()
	f.pipeline.Require(Requirement{})(ok).ServeHTTP(w, r)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestPrincipalIsNotMutatedByLaterSteps(t *testing.T) {
	base := &Principal{UserID: uuid.New()}
	withM := base.withMembership(&models.MembershipDetail{})
	withP := withM.withPermissions([]string{"user.read"})

	require.Nil(t, base.Membership)
	require.Nil(t, withM.Permissions)
	require.Equal(t, []string{"user.read"}, withP.Permissions)
	require.Equal(t, uuid.Nil, base.TenantID())
}

func (f *fixture) refreshToken(t *testing.T, email string) string {
	t.Helper()
	login, err := f.svc.Login(context.Background(), email, "secret1")
	require.NoError(t, err)
	return login.RefreshToken
}

// forgeToken signs a well-formed access token with a foreign secret.
func forgeToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	other := session.NewIssuer(session.Config{Secret: "other-secret", Issuer: "tenantauth-test"}, session.NewMemoryRefreshStore())
	token, err := other.MintAccess(session.Subject{UserID: userID, Email: "ada@example.com"})
	require.NoError(t, err)
	return token
}
