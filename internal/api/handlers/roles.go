package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/audit"
	"github.com/nikhilbhutani/tenantauth/internal/rbac"
)

type RoleHandler struct {
	catalog *rbac.Catalog
	audit   *audit.Service
}

func NewRoleHandler(catalog *rbac.Catalog, auditSvc *audit.Service) *RoleHandler {
	return &RoleHandler{catalog: catalog, audit: auditSvc}
}

type createRoleRequest struct {
	Name          string      `json:"name"`
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createRoleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	role, err := h.catalog.CreateRole(r.Context(), req.Name, req.PermissionIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		TenantID: p.TenantID(), UserID: p.UserID, Action: audit.ActionRoleCreate,
		ResourceType: "role", ResourceID: role.ID, Details: map[string]any{"name": role.Name},
	})
	writeJSON(w, http.StatusCreated, role)
}

func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	roles, err := h.catalog.ListRoles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": roles, "count": len(roles)})
}

// Get returns the role with its permissions resolved.
func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	role, err := h.catalog.FindByIDWithPermissions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

type updateRoleRequest struct {
	Name *string `json:"name"`
	// Omitted leaves the set unchanged; an empty list clears it.
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateRoleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	role, err := h.catalog.UpdateRole(r.Context(), id, rbac.RoleUpdate{Name: req.Name, PermissionIDs: req.PermissionIDs})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		TenantID: p.TenantID(), UserID: p.UserID, Action: audit.ActionRoleUpdate,
		ResourceType: "role", ResourceID: role.ID,
	})
	writeJSON(w, http.StatusOK, role)
}

func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.DeleteRole(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		TenantID: p.TenantID(), UserID: p.UserID, Action: audit.ActionRoleDelete,
		ResourceType: "role", ResourceID: id,
	})
	w.WriteHeader(http.StatusNoContent)
}
