package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/models"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: unique constraint violated")
)

// Store exposes one repository per aggregate. Implementations live in
// store/postgres and store/memory.
type Store interface {
	Users() Users
	Tenants() Tenants
	Permissions() Permissions
	Roles() Roles
	Overrides() Overrides
	Memberships() Memberships
	AuditLogs() AuditLogs

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error
}

type Users interface {
	// Create inserts u. ErrConflict is returned when the email is taken.
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Tenants interface {
	// Create inserts t. Domains are unique across live and deleted tenants.
	Create(ctx context.Context, t *models.Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	// GetByDomain ignores soft-deleted tenants.
	GetByDomain(ctx context.Context, domain string) (*models.Tenant, error)
	// List returns tenants that are not soft-deleted.
	List(ctx context.Context) ([]models.Tenant, error)
	Update(ctx context.Context, t *models.Tenant) error
}

type Permissions interface {
	Create(ctx context.Context, p *models.Permission) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Permission, error)
	GetByKey(ctx context.Context, key string) (*models.Permission, error)
	// GetByIDs returns the permissions that exist among ids, ordered by key.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Permission, error)
	List(ctx context.Context) ([]models.Permission, error)
	Update(ctx context.Context, p *models.Permission) error
	// Delete removes the permission and every role or override reference to it.
	Delete(ctx context.Context, id uuid.UUID) error
}

type Roles interface {
	Create(ctx context.Context, r *models.Role) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	List(ctx context.Context) ([]models.Role, error)
	Update(ctx context.Context, r *models.Role) error
	// Delete removes the role and its tenant overrides. Memberships that
	// reference it are left in place.
	Delete(ctx context.Context, id uuid.UUID) error
}

type Overrides interface {
	Get(ctx context.Context, tenantID, roleID uuid.UUID) (*models.TenantRolePermission, error)
	// AddPermissions unions ids into the override, creating it when absent.
	AddPermissions(ctx context.Context, tenantID, roleID uuid.UUID, ids []uuid.UUID) (*models.TenantRolePermission, error)
	// RemovePermissions subtracts ids from the override. ErrNotFound is
	// returned when no override exists.
	RemovePermissions(ctx context.Context, tenantID, roleID uuid.UUID, ids []uuid.UUID) (*models.TenantRolePermission, error)
}

type Memberships interface {
	// Create inserts m. ErrConflict is returned when the user already
	// belongs to the tenant.
	Create(ctx context.Context, m *models.Membership) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Membership, error)
	GetByUserAndTenant(ctx context.Context, userID, tenantID uuid.UUID) (*models.Membership, error)
	// ListByUser returns the user's memberships, filtered by status when
	// status is non-empty.
	ListByUser(ctx context.Context, userID uuid.UUID, status models.MembershipStatus) ([]models.Membership, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Membership, error)
	Update(ctx context.Context, m *models.Membership) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type AuditQuery struct {
	TenantID  uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
	Action    string
	Limit     int
	Offset    int
}

const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 200
)

// Page returns q with Limit defaulted and capped and a negative Offset reset
// to zero.
func (q AuditQuery) Page() AuditQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultAuditLimit
	}
	if q.Limit > MaxAuditLimit {
		q.Limit = MaxAuditLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

type AuditLogs interface {
	Append(ctx context.Context, l *models.AuditLog) error
	// List returns the tenant's entries, newest first.
	List(ctx context.Context, q AuditQuery) ([]models.AuditLog, error)
}
