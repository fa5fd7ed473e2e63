package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/audit"
	"github.com/nikhilbhutani/tenantauth/internal/auth"
	"github.com/nikhilbhutani/tenantauth/internal/membership"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/rbac"
)

// MembershipHandler administers memberships of the current tenant only.
type MembershipHandler struct {
	registry *membership.Registry
	catalog  *rbac.Catalog
	audit    *audit.Service
}

func NewMembershipHandler(registry *membership.Registry, catalog *rbac.Catalog, auditSvc *audit.Service) *MembershipHandler {
	return &MembershipHandler{registry: registry, catalog: catalog, audit: auditSvc}
}

func (h *MembershipHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ms, err := h.registry.ListByTenant(r.Context(), p.TenantID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"memberships": ms, "count": len(ms)})
}

type assignRequest struct {
	UserID uuid.UUID               `json:"user_id"`
	RoleID uuid.UUID               `json:"role_id"`
	Status models.MembershipStatus `json:"status"`
}

func (h *MembershipHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req assignRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.assignable(r.Context(), p, req.RoleID); err != nil {
		writeError(w, r, err)
		return
	}

	m, err := h.registry.AssignUser(r.Context(), membership.AssignInput{
		UserID:   req.UserID,
		TenantID: p.TenantID(),
		RoleID:   req.RoleID,
		Status:   req.Status,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		TenantID: p.TenantID(), UserID: p.UserID, Action: audit.ActionMemberAdd,
		ResourceType: "membership", ResourceID: m.ID, Details: map[string]any{"user_id": m.UserID, "role_id": m.RoleID},
	})
	writeJSON(w, http.StatusCreated, m)
}

type updateMembershipRequest struct {
	RoleID *uuid.UUID               `json:"role_id"`
	Status *models.MembershipStatus `json:"status"`
}

func (h *MembershipHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, id, err := h.owned(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateMembershipRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.RoleID != nil {
		if err := h.assignable(r.Context(), p, *req.RoleID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	m, err := h.registry.Update(r.Context(), id, membership.MembershipUpdate{RoleID: req.RoleID, Status: req.Status})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		TenantID: p.TenantID(), UserID: p.UserID, Action: audit.ActionMemberUpdate,
		ResourceType: "membership", ResourceID: m.ID, Details: map[string]any{"role_id": m.RoleID, "status": m.Status},
	})
	writeJSON(w, http.StatusOK, m)
}

func (h *MembershipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, id, err := h.owned(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.registry.Remove(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		TenantID: p.TenantID(), UserID: p.UserID, Action: audit.ActionMemberRemove,
		ResourceType: "membership", ResourceID: id,
	})
	w.WriteHeader(http.StatusNoContent)
}

// owned resolves the {id} membership and hides memberships of other tenants.
func (h *MembershipHandler) owned(r *http.Request) (*auth.Principal, uuid.UUID, error) {
	p, err := tenantPrincipal(r)
	if err != nil {
		return nil, uuid.Nil, err
	}
	id, err := pathID(r, "id")
	if err != nil {
		return nil, uuid.Nil, err
	}
	m, err := h.registry.Get(r.Context(), id)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if m.TenantID != p.TenantID() {
		return nil, uuid.Nil, apperr.ErrNotFound
	}
	return p, id, nil
}

// assignable refuses roles carrying permissions the caller does not hold.
// Unknown roles are left for the registry to reject.
func (h *MembershipHandler) assignable(ctx context.Context, p *auth.Principal, roleID uuid.UUID) error {
	role, err := h.catalog.FindByIDWithPermissions(ctx, roleID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !p.Holds(models.PermissionKeys(role.Permissions)...) {
		return apperr.ErrInsufficientPermissions
	}
	return nil
}
