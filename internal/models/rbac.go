package models

import (
	"time"

	"github.com/google/uuid"
)

type Permission struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Key         string    `json:"key" db:"key"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type Role struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	Name          string      `json:"name" db:"name"`
	PermissionIDs []uuid.UUID `json:"permission_ids" db:"permission_ids"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// RoleWithPermissions is a role whose permission references have been resolved.
type RoleWithPermissions struct {
	Role
	Permissions []Permission `json:"permissions"`
}

// TenantRolePermission holds the extra permissions a tenant grants to a global role.
type TenantRolePermission struct {
	ID                 uuid.UUID   `json:"id" db:"id"`
	TenantID           uuid.UUID   `json:"tenant_id" db:"tenant_id"`
	RoleID             uuid.UUID   `json:"role_id" db:"role_id"`
	ExtraPermissionIDs []uuid.UUID `json:"extra_permission_ids" db:"extra_permission_ids"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
}

// PermissionKeys returns the keys of perms in order.
func PermissionKeys(perms []Permission) []string {
	keys := make([]string, 0, len(perms))
	for _, p := range perms {
		keys = append(keys, p.Key)
	}
	return keys
}
