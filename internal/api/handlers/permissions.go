package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/tenantauth/internal/audit"
	"github.com/nikhilbhutani/tenantauth/internal/rbac"
)

type PermissionHandler struct {
	catalog *rbac.Catalog
	audit   *audit.Service
}

func NewPermissionHandler(catalog *rbac.Catalog, auditSvc *audit.Service) *PermissionHandler {
	return &PermissionHandler{catalog: catalog, audit: auditSvc}
}

type permissionRequest struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

func (h *PermissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req permissionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	perm, err := h.catalog.CreatePermission(r.Context(), req.Key, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		TenantID: p.TenantID(), UserID: p.UserID, Action: audit.ActionPermissionCreate,
		ResourceType: "permission", ResourceID: perm.ID, Details: map[string]any{"key": perm.Key},
	})
	writeJSON(w, http.StatusCreated, perm)
}

func (h *PermissionHandler) List(w http.ResponseWriter, r *http.Request) {
	perms, err := h.catalog.ListPermissions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"permissions": perms, "count": len(perms)})
}

func (h *PermissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	perm, err := h.catalog.GetPermission(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

func (h *PermissionHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var req permissionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	perm, err := h.catalog.UpdatePermission(r.Context(), id, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		TenantID: p.TenantID(), UserID: p.UserID, Action: audit.ActionPermissionUpdate,
		ResourceType: "permission", ResourceID: perm.ID,
	})
	writeJSON(w, http.StatusOK, perm)
}

func (h *PermissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.catalog.DeletePermission(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		TenantID: p.TenantID(), UserID: p.UserID, Action: audit.ActionPermissionDelete,
		ResourceType: "permission", ResourceID: id,
	})
	w.WriteHeader(http.StatusNoContent)
}
