package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/session"
)

// Principal is what the pipeline knows about the caller. Each step stores a
// new value in the request context; a stored Principal is never mutated.
type Principal struct {
	UserID uuid.UUID
	Claims *session.Claims
	// Membership is set once the tenant has been resolved.
	Membership *models.MembershipDetail
	// Permissions holds the effective permission keys once a requirement
	// has been evaluated.
	Permissions []string
}

func (p *Principal) TenantID() uuid.UUID {
	if p == nil || p.Membership == nil {
		return uuid.Nil
	}
	return p.Membership.TenantID
}

// Holds reports whether every key is among the caller's effective
// permissions. Keys compare case-insensitively.
func (p *Principal) Holds(keys ...string) bool {
	if p == nil {
		return false
	}
	return AllOf(keys...).Satisfied(p.Permissions)
}

func (p *Principal) withMembership(m *models.MembershipDetail) *Principal {
	next := *p
	next.Membership = m
	next.Permissions = nil
	return &next
}

func (p *Principal) withPermissions(keys []string) *Principal {
	next := *p
	next.Permissions = keys
	return &next
}

type ctxKey string

const principalKey ctxKey = "principal"

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}
