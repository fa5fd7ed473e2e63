// Package audit records security relevant actions per tenant.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/store"
)

const (
	ActionSignup           = "auth.signup"
	ActionLogin            = "auth.login"
	ActionLogout           = "auth.logout"
	ActionTenantCreate     = "tenant.create"
	ActionTenantUpdate     = "tenant.update"
	ActionTenantDelete     = "tenant.delete"
	ActionRoleCreate       = "role.create"
	ActionRoleUpdate       = "role.update"
	ActionRoleDelete       = "role.delete"
	ActionPermissionCreate = "permission.create"
	ActionPermissionUpdate = "permission.update"
	ActionPermissionDelete = "permission.delete"
	ActionGrant            = "override.grant"
	ActionRevoke           = "override.revoke"
	ActionMemberAdd        = "membership.create"
	ActionMemberUpdate     = "membership.update"
	ActionMemberRemove     = "membership.delete"
	ActionUserUpdate       = "user.update"
	ActionUserDelete       = "user.delete"
)

type Service struct {
	logs store.AuditLogs
}

func NewService(logs store.AuditLogs) *Service {
	return &Service{logs: logs}
}

type LogEntry struct {
	TenantID     uuid.UUID
	UserID       uuid.UUID
	Action       string
	ResourceType string
	ResourceID   uuid.UUID
	Details      map[string]any
}

func (s *Service) Log(ctx context.Context, entry LogEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil || entry.Details == nil {
		details = []byte("{}")
	}

	l := &models.AuditLog{
		TenantID:     optionalID(entry.TenantID),
		UserID:       optionalID(entry.UserID),
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   optionalID(entry.ResourceID),
		Details:      details,
		IPAddress:    IPFromContext(ctx),
	}
	if err := s.logs.Append(ctx, l); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Record logs the entry and swallows failures; audit trouble never fails the
// caller's operation. A nil Service records nothing.
func (s *Service) Record(ctx context.Context, entry LogEntry) {
	if s == nil {
		return
	}
	if err := s.Log(ctx, entry); err != nil {
		slog.Warn("audit log failed", "action", entry.Action, "error", err)
	}
}

func (s *Service) GetAuditLogs(ctx context.Context, q store.AuditQuery) ([]models.AuditLog, error) {
	logs, err := s.logs.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	return logs, nil
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

type ctxKey string

const ipKey ctxKey = "client_ip"

func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey, ip)
}

func IPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey).(string)
	return ip
}

// CaptureIP stores the client address for audit entries. It expects chi's
// RealIP middleware to have run first.
func CaptureIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(WithIP(r.Context(), ip)))
	})
}
