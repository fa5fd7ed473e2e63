// Package memory is an in-process implementation of store.Store. It backs
// tests and lets the API run without Postgres.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/store"
)

type overrideKey struct {
	tenantID uuid.UUID
	roleID   uuid.UUID
}

type Store struct {
	mu sync.RWMutex

	users       map[uuid.UUID]models.User
	tenants     map[uuid.UUID]models.Tenant
	permissions map[uuid.UUID]models.Permission
	roles       map[uuid.UUID]models.Role
	overrides   map[overrideKey]models.TenantRolePermission
	memberships map[uuid.UUID]models.Membership
	auditLogs   []models.AuditLog

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		users:       make(map[uuid.UUID]models.User),
		tenants:     make(map[uuid.UUID]models.Tenant),
		permissions: make(map[uuid.UUID]models.Permission),
		roles:       make(map[uuid.UUID]models.Role),
		overrides:   make(map[overrideKey]models.TenantRolePermission),
		memberships: make(map[uuid.UUID]models.Membership),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() store.Users             { return usersRepo{s} }
func (s *Store) Tenants() store.Tenants         { return tenantsRepo{s} }
func (s *Store) Permissions() store.Permissions { return permissionsRepo{s} }
func (s *Store) Roles() store.Roles             { return rolesRepo{s} }
func (s *Store) Overrides() store.Overrides     { return overridesRepo{s} }
func (s *Store) Memberships() store.Memberships { return membershipsRepo{s} }
func (s *Store) AuditLogs() store.AuditLogs     { return auditRepo{s} }

func (s *Store) Ping(context.Context) error { return nil }

// stamp assigns an id and creation timestamps to a new record.
func (s *Store) stamp(id *uuid.UUID, createdAt, updatedAt *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	now := s.now()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}

// users

type usersRepo struct{ s *Store }

func (r usersRepo) Create(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return store.ErrConflict
		}
	}
	r.s.stamp(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if _, ok := r.s.users[u.ID]; ok {
		return store.ErrConflict
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r usersRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (r usersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r usersRepo) List(context.Context) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (r usersRepo) Update(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	for id, other := range r.s.users {
		if id != u.ID && other.Email == u.Email {
			return store.ErrConflict
		}
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = r.s.now()
	r.s.users[u.ID] = *u
	return nil
}

func (r usersRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.users, id)
	for mid, m := range r.s.memberships {
		if m.UserID == id {
			delete(r.s.memberships, mid)
		}
	}
	return nil
}

// tenants

type tenantsRepo struct{ s *Store }

func (r tenantsRepo) Create(_ context.Context, t *models.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.tenants {
		if existing.Domain == t.Domain {
			return store.ErrConflict
		}
	}
	r.s.stamp(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	r.s.tenants[t.ID] = *t
	return nil
}

func (r tenantsRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (r tenantsRepo) GetByDomain(_ context.Context, domain string) (*models.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.tenants {
		if t.Domain == domain && !t.IsDeleted {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r tenantsRepo) List(context.Context) ([]models.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Tenant, 0, len(r.s.tenants))
	for _, t := range r.s.tenants {
		if !t.IsDeleted {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (r tenantsRepo) Update(_ context.Context, t *models.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.tenants[t.ID]
	if !ok {
		return store.ErrNotFound
	}
	for id, other := range r.s.tenants {
		if id != t.ID && other.Domain == t.Domain {
			return store.ErrConflict
		}
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = r.s.now()
	r.s.tenants[t.ID] = *t
	return nil
}

// permissions

type permissionsRepo struct{ s *Store }

func (r permissionsRepo) Create(_ context.Context, p *models.Permission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.permissions {
		if existing.Key == p.Key {
			return store.ErrConflict
		}
	}
	r.s.stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	r.s.permissions[p.ID] = *p
	return nil
}

func (r permissionsRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.permissions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r permissionsRepo) GetByKey(_ context.Context, key string) (*models.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.permissions {
		if p.Key == key {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r permissionsRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]models.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]models.Permission, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.s.permissions[id]; ok {
			out = append(out, p)
		}
	}
	sortPermissions(out)
	return out, nil
}

func (r permissionsRepo) List(context.Context) ([]models.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Permission, 0, len(r.s.permissions))
	for _, p := range r.s.permissions {
		out = append(out, p)
	}
	sortPermissions(out)
	return out, nil
}

func (r permissionsRepo) Update(_ context.Context, p *models.Permission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.permissions[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	for id, other := range r.s.permissions {
		if id != p.ID && other.Key == p.Key {
			return store.ErrConflict
		}
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = r.s.now()
	r.s.permissions[p.ID] = *p
	return nil
}

func (r permissionsRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.permissions[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.permissions, id)
	gone := []uuid.UUID{id}
	for rid, role := range r.s.roles {
		role.PermissionIDs = subtractIDs(role.PermissionIDs, gone)
		r.s.roles[rid] = role
	}
	for k, o := range r.s.overrides {
		o.ExtraPermissionIDs = subtractIDs(o.ExtraPermissionIDs, gone)
		r.s.overrides[k] = o
	}
	return nil
}

// roles

type rolesRepo struct{ s *Store }

func (r rolesRepo) Create(_ context.Context, role *models.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.roles {
		if existing.Name == role.Name {
			return store.ErrConflict
		}
	}
	r.s.stamp(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	role.PermissionIDs = unionIDs(nil, role.PermissionIDs)
	r.s.roles[role.ID] = cloneRole(*role)
	return nil
}

func (r rolesRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	role = cloneRole(role)
	return &role, nil
}

func (r rolesRepo) GetByName(_ context.Context, name string) (*models.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, role := range r.s.roles {
		if role.Name == name {
			role = cloneRole(role)
			return &role, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r rolesRepo) List(context.Context) ([]models.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		out = append(out, cloneRole(role))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r rolesRepo) Update(_ context.Context, role *models.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.roles[role.ID]
	if !ok {
		return store.ErrNotFound
	}
	for id, other := range r.s.roles {
		if id != role.ID && other.Name == role.Name {
			return store.ErrConflict
		}
	}
	role.CreatedAt = existing.CreatedAt
	role.UpdatedAt = r.s.now()
	role.PermissionIDs = unionIDs(nil, role.PermissionIDs)
	r.s.roles[role.ID] = cloneRole(*role)
	return nil
}

func (r rolesRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.roles, id)
	for k := range r.s.overrides {
		if k.roleID == id {
			delete(r.s.overrides, k)
		}
	}
	return nil
}

// overrides

type overridesRepo struct{ s *Store }

func (r overridesRepo) Get(_ context.Context, tenantID, roleID uuid.UUID) (*models.TenantRolePermission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.overrides[overrideKey{tenantID, roleID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	o = cloneOverride(o)
	return &o, nil
}

func (r overridesRepo) AddPermissions(_ context.Context, tenantID, roleID uuid.UUID, ids []uuid.UUID) (*models.TenantRolePermission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := overrideKey{tenantID, roleID}
	o, ok := r.s.overrides[key]
	if !ok {
		o = models.TenantRolePermission{TenantID: tenantID, RoleID: roleID}
		r.s.stamp(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	} else {
		o.UpdatedAt = r.s.now()
	}
	o.ExtraPermissionIDs = unionIDs(o.ExtraPermissionIDs, ids)
	r.s.overrides[key] = cloneOverride(o)
	return &o, nil
}

func (r overridesRepo) RemovePermissions(_ context.Context, tenantID, roleID uuid.UUID, ids []uuid.UUID) (*models.TenantRolePermission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := overrideKey{tenantID, roleID}
	o, ok := r.s.overrides[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	o.ExtraPermissionIDs = subtractIDs(o.ExtraPermissionIDs, ids)
	o.UpdatedAt = r.s.now()
	r.s.overrides[key] = cloneOverride(o)
	return &o, nil
}

// memberships

type membershipsRepo struct{ s *Store }

func (r membershipsRepo) Create(_ context.Context, m *models.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.memberships {
		if existing.UserID == m.UserID && existing.TenantID == m.TenantID {
			return store.ErrConflict
		}
	}
	r.s.stamp(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	r.s.memberships[m.ID] = *m
	return nil
}

func (r membershipsRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.memberships[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (r membershipsRepo) GetByUserAndTenant(_ context.Context, userID, tenantID uuid.UUID) (*models.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.memberships {
		if m.UserID == userID && m.TenantID == tenantID {
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r membershipsRepo) ListByUser(_ context.Context, userID uuid.UUID, status models.MembershipStatus) ([]models.Membership, error) {
	return r.list(func(m models.Membership) bool {
		return m.UserID == userID && (status == "" || m.Status == status)
	}), nil
}

func (r membershipsRepo) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]models.Membership, error) {
	return r.list(func(m models.Membership) bool { return m.TenantID == tenantID }), nil
}

func (r membershipsRepo) list(match func(models.Membership) bool) []models.Membership {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []models.Membership{}
	for _, m := range r.s.memberships {
		if match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out
}

func (r membershipsRepo) Update(_ context.Context, m *models.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.memberships[m.ID]
	if !ok {
		return store.ErrNotFound
	}
	// user and tenant are fixed for the life of a membership
	m.UserID = existing.UserID
	m.TenantID = existing.TenantID
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = r.s.now()
	r.s.memberships[m.ID] = *m
	return nil
}

func (r membershipsRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.memberships[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.memberships, id)
	return nil
}

// audit logs

type auditRepo struct{ s *Store }

func (r auditRepo) Append(_ context.Context, l *models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.s.now()
	}
	r.s.auditLogs = append(r.s.auditLogs, *l)
	return nil
}

func (r auditRepo) List(_ context.Context, q store.AuditQuery) ([]models.AuditLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	q = q.Page()
	var matched []models.AuditLog
	for i := len(r.s.auditLogs) - 1; i >= 0; i-- {
		l := r.s.auditLogs[i]
		if l.TenantID == nil || *l.TenantID != q.TenantID {
			continue
		}
		if q.Action != "" && l.Action != q.Action {
			continue
		}
		if q.StartDate != nil && l.CreatedAt.Before(*q.StartDate) {
			continue
		}
		if q.EndDate != nil && l.CreatedAt.After(*q.EndDate) {
			continue
		}
		matched = append(matched, l)
	}
	if q.Offset >= len(matched) {
		return []models.AuditLog{}, nil
	}
	matched = matched[q.Offset:]
	if len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func before(at time.Time, aid uuid.UUID, bt time.Time, bid uuid.UUID) bool {
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return aid.String() < bid.String()
}

func sortPermissions(perms []models.Permission) {
	sort.Slice(perms, func(i, j int) bool { return perms[i].Key < perms[j].Key })
}

// unionIDs appends the ids from add missing in base, keeping first-seen order.
func unionIDs(base, add []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(base)+len(add))
	for _, id := range base {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	for _, id := range add {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func subtractIDs(base, remove []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(base))
	for _, id := range base {
		if !slices.Contains(remove, id) {
			out = append(out, id)
		}
	}
	return out
}

func cloneRole(r models.Role) models.Role {
	r.PermissionIDs = slices.Clone(r.PermissionIDs)
	return r
}

func cloneOverride(o models.TenantRolePermission) models.TenantRolePermission {
	o.ExtraPermissionIDs = slices.Clone(o.ExtraPermissionIDs)
	return o
}
