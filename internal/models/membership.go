package models

import (
	"time"

	"github.com/google/uuid"
)

type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "ACTIVE"
	MembershipInvited   MembershipStatus = "INVITED"
	MembershipSuspended MembershipStatus = "SUSPENDED"
)

func (s MembershipStatus) Valid() bool {
	switch s {
	case MembershipActive, MembershipInvited, MembershipSuspended:
		return true
	}
	return false
}

// Membership binds a user to a tenant with a role.
type Membership struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	UserID    uuid.UUID        `json:"user_id" db:"user_id"`
	TenantID  uuid.UUID        `json:"tenant_id" db:"tenant_id"`
	RoleID    uuid.UUID        `json:"role_id" db:"role_id"`
	Status    MembershipStatus `json:"status" db:"status"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

func (m *Membership) Active() bool {
	return m != nil && m.Status == MembershipActive
}

// MembershipDetail is a membership joined with its tenant and role. Role is
// nil when the referenced role no longer exists.
type MembershipDetail struct {
	Membership
	Tenant *Tenant              `json:"tenant"`
	Role   *RoleWithPermissions `json:"role"`
}
