package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/audit"
	"github.com/nikhilbhutani/tenantauth/internal/auth"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/rbac"
)

// OverrideHandler manages the current tenant's extra grants for a role.
type OverrideHandler struct {
	overrides *rbac.Overrides
	catalog   *rbac.Catalog
	audit     *audit.Service
}

func NewOverrideHandler(overrides *rbac.Overrides, catalog *rbac.Catalog, auditSvc *audit.Service) *OverrideHandler {
	return &OverrideHandler{overrides: overrides, catalog: catalog, audit: auditSvc}
}

type overrideRequest struct {
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

func (h *OverrideHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	roleID, err := pathID(r, "roleId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.overrides.GetOverride(r.Context(), p.TenantID(), roleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *OverrideHandler) Grant(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, audit.ActionGrant, h.overrides.AddExtraPermissions, h.grantable)
}

func (h *OverrideHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, audit.ActionRevoke, h.overrides.RemoveExtraPermissions, nil)
}

func (h *OverrideHandler) Effective(w http.ResponseWriter, r *http.Request) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	roleID, err := pathID(r, "roleId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	perms, err := h.overrides.GetEffectivePermissions(r.Context(), p.TenantID(), roleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"permissions": perms, "count": len(perms)})
}

type overrideFunc func(ctx context.Context, tenantID, roleID uuid.UUID, ids []uuid.UUID) (*models.TenantRolePermission, error)

type overrideCheck func(ctx context.Context, p *auth.Principal, ids []uuid.UUID) error

func (h *OverrideHandler) change(w http.ResponseWriter, r *http.Request, action string, apply overrideFunc, check overrideCheck) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	roleID, err := pathID(r, "roleId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req overrideRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if check != nil {
		if err := check(r.Context(), p, req.PermissionIDs); err != nil {
			writeError(w, r, err)
			return
		}
	}

	rec, err := apply(r.Context(), p.TenantID(), roleID, req.PermissionIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		TenantID: p.TenantID(), UserID: p.UserID, Action: action,
		ResourceType: "role", ResourceID: roleID, Details: map[string]any{"permission_ids": req.PermissionIDs},
	})
	writeJSON(w, http.StatusOK, rec)
}

// grantable refuses permissions the caller does not hold. Unknown ids are left
// for the override service to reject.
func (h *OverrideHandler) grantable(ctx context.Context, p *auth.Principal, ids []uuid.UUID) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		perm, err := h.catalog.GetPermission(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		keys = append(keys, perm.Key)
	}
	if !p.Holds(keys...) {
		return apperr.ErrInsufficientPermissions
	}
	return nil
}
