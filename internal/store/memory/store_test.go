package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/store"
	"github.com/stretchr/testify/require"
)

func TestUniqueIndexes(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Users().Create(ctx, &models.User{Email: "a@example.com"}))
	require.ErrorIs(t, s.Users().Create(ctx, &models.User{Email: "a@example.com"}), store.ErrConflict)

	require.NoError(t, s.Tenants().Create(ctx, &models.Tenant{Domain: "acme.com"}))
	require.ErrorIs(t, s.Tenants().Create(ctx, &models.Tenant{Domain: "acme.com"}), store.ErrConflict)

	require.NoError(t, s.Permissions().Create(ctx, &models.Permission{Key: "user.read"}))
	require.ErrorIs(t, s.Permissions().Create(ctx, &models.Permission{Key: "user.read"}), store.ErrConflict)

	require.NoError(t, s.Roles().Create(ctx, &models.Role{Name: "ADMIN"}))
	require.ErrorIs(t, s.Roles().Create(ctx, &models.Role{Name: "ADMIN"}), store.ErrConflict)

	userID, tenantID := uuid.New(), uuid.New()
	require.NoError(t, s.Memberships().Create(ctx, &models.Membership{UserID: userID, TenantID: tenantID}))
	require.ErrorIs(t, s.Memberships().Create(ctx, &models.Membership{UserID: userID, TenantID: tenantID}), store.ErrConflict)
}

func TestSoftDeletedTenantHiddenFromDomainLookup(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	tn := &models.Tenant{Name: "Acme", Domain: "acme.com", IsActive: true}
	require.NoError(t, s.Tenants().Create(ctx, tn))

	tn.IsDeleted = true
	require.NoError(t, s.Tenants().Update(ctx, tn))

	_, err := s.Tenants().GetByDomain(ctx, "acme.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.Tenants().List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	// the unique index still covers deleted rows
	require.ErrorIs(t, s.Tenants().Create(ctx, &models.Tenant{Domain: "acme.com"}), store.ErrConflict)
}

func TestPermissionDeleteStripsReferences(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	read := &models.Permission{Key: "user.read"}
	write := &models.Permission{Key: "user.update"}
	require.NoError(t, s.Permissions().Create(ctx, read))
	require.NoError(t, s.Permissions().Create(ctx, write))

	role := &models.Role{Name: "ADMIN", PermissionIDs: []uuid.UUID{read.ID, write.ID}}
	require.NoError(t, s.Roles().Create(ctx, role))

	tenantID := uuid.New()
	_, err := s.Overrides().AddPermissions(ctx, tenantID, role.ID, []uuid.UUID{write.ID})
	require.NoError(t, err)

	require.NoError(t, s.Permissions().Delete(ctx, write.ID))

	got, err := s.Roles().GetByID(ctx, role.ID)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{read.ID}, got.PermissionIDs)

	o, err := s.Overrides().Get(ctx, tenantID, role.ID)
	require.NoError(t, err)
	require.Empty(t, o.ExtraPermissionIDs)
}

func TestRoleDeleteRemovesOverridesKeepsMemberships(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	role := &models.Role{Name: "MEMBER"}
	require.NoError(t, s.Roles().Create(ctx, role))

	tenantID := uuid.New()
	_, err := s.Overrides().AddPermissions(ctx, tenantID, role.ID, []uuid.UUID{uuid.New()})
	require.NoError(t, err)

	m := &models.Membership{UserID: uuid.New(), TenantID: tenantID, RoleID: role.ID, Status: models.MembershipActive}
	require.NoError(t, s.Memberships().Create(ctx, m))

	require.NoError(t, s.Roles().Delete(ctx, role.ID))

	_, err = s.Overrides().Get(ctx, tenantID, role.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Memberships().GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, role.ID, got.RoleID)
}

func TestOverridesUnionAndSubtract(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tenantID, roleID := uuid.New(), uuid.New()
	a, b := uuid.New(), uuid.New()

	o, err := s.Overrides().AddPermissions(ctx, tenantID, roleID, []uuid.UUID{a, a})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a}, o.ExtraPermissionIDs)

	o, err = s.Overrides().AddPermissions(ctx, tenantID, roleID, []uuid.UUID{a, b})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a, b}, o.ExtraPermissionIDs)

	o, err = s.Overrides().RemovePermissions(ctx, tenantID, roleID, []uuid.UUID{a, uuid.New()})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{b}, o.ExtraPermissionIDs)

	_, err = s.Overrides().RemovePermissions(ctx, uuid.New(), roleID, []uuid.UUID{b})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestReturnedRolesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := uuid.New()

	role := &models.Role{Name: "ADMIN", PermissionIDs: []uuid.UUID{p}}
	require.NoError(t, s.Roles().Create(ctx, role))

	got, err := s.Roles().GetByID(ctx, role.ID)
	require.NoError(t, err)
	got.PermissionIDs[0] = uuid.New()

	again, err := s.Roles().GetByID(ctx, role.ID)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{p}, again.PermissionIDs)
}

func TestMembershipListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	userID := uuid.New()

	require.NoError(t, s.Memberships().Create(ctx, &models.Membership{UserID: userID, TenantID: uuid.New(), Status: models.MembershipActive}))
	require.NoError(t, s.Memberships().Create(ctx, &models.Membership{UserID: userID, TenantID: uuid.New(), Status: models.MembershipInvited}))

	all, err := s.Memberships().ListByUser(ctx, userID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	active, err := s.Memberships().ListByUser(ctx, userID, models.MembershipActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, models.MembershipActive, active[0].Status)
}

func TestUserDeleteDropsMemberships(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	u := &models.User{Email: "a@example.com"}
	require.NoError(t, s.Users().Create(ctx, u))
	tenantID := uuid.New()
	require.NoError(t, s.Memberships().Create(ctx, &models.Membership{UserID: u.ID, TenantID: tenantID}))

	require.NoError(t, s.Users().Delete(ctx, u.ID))

	_, err := s.Memberships().GetByUserAndTenant(ctx, u.ID, tenantID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuditLogsNewestFirstPerTenant(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tenantID, other := uuid.New(), uuid.New()

	require.NoError(t, s.AuditLogs().Append(ctx, &models.AuditLog{TenantID: &tenantID, Action: "login"}))
	require.NoError(t, s.AuditLogs().Append(ctx, &models.AuditLog{TenantID: &other, Action: "login"}))
	require.NoError(t, s.AuditLogs().Append(ctx, &models.AuditLog{TenantID: &tenantID, Action: "logout"}))

	logs, err := s.AuditLogs().List(ctx, store.AuditQuery{TenantID: tenantID})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "logout", logs[0].Action)

	logs, err = s.AuditLogs().List(ctx, store.AuditQuery{TenantID: tenantID, Action: "login"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestAuditLogsPageBounds(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tenantID := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AuditLogs().Append(ctx, &models.AuditLog{TenantID: &tenantID, Action: "login"}))
	}

	logs, err := s.AuditLogs().List(ctx, store.AuditQuery{TenantID: tenantID, Offset: -1})
	require.NoError(t, err)
	require.Len(t, logs, 3)

	logs, err = s.AuditLogs().List(ctx, store.AuditQuery{TenantID: tenantID, Offset: 2, Limit: -5})
	require.NoError(t, err)
	require.Len(t, logs, 1)

	logs, err = s.AuditLogs().List(ctx, store.AuditQuery{TenantID: tenantID, Offset: 10})
	require.NoError(t, err)
	require.Empty(t, logs)
}
