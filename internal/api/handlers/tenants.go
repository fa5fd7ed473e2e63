package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/tenantauth/internal/audit"
	"github.com/nikhilbhutani/tenantauth/internal/auth"
	"github.com/nikhilbhutani/tenantauth/internal/tenant"
)

type TenantHandler struct {
	tenants *tenant.Service
	auth    *auth.Service
	audit   *audit.Service
}

func NewTenantHandler(tenants *tenant.Service, authSvc *auth.Service, auditSvc *audit.Service) *TenantHandler {
	return &TenantHandler{tenants: tenants, auth: authSvc, audit: auditSvc}
}

type createTenantRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// Create makes a new tenant owned by the caller.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createTenantRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, m, err := h.auth.CreateTenant(r.Context(), p.UserID, req.Name, req.Domain)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"tenant": t, "membership": m})
}

func (h *TenantHandler) Current(w http.ResponseWriter, r *http.Request) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.tenants.GetByID(r.Context(), p.TenantID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type updateTenantRequest struct {
	Name     *string `json:"name"`
	Domain   *string `json:"domain"`
	IsActive *bool   `json:"is_active"`
}

func (h *TenantHandler) UpdateCurrent(w http.ResponseWriter, r *http.Request) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateTenantRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.tenants.Update(r.Context(), p.TenantID(), tenant.TenantUpdate{
		Name:     req.Name,
		Domain:   req.Domain,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		TenantID: t.ID, UserID: p.UserID, Action: audit.ActionTenantUpdate, ResourceType: "tenant", ResourceID: t.ID,
	})
	writeJSON(w, http.StatusOK, t)
}

func (h *TenantHandler) DeleteCurrent(w http.ResponseWriter, r *http.Request) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.tenants.SoftDelete(r.Context(), p.TenantID()); err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		TenantID: p.TenantID(), UserID: p.UserID, Action: audit.ActionTenantDelete, ResourceType: "tenant", ResourceID: p.TenantID(),
	})
	w.WriteHeader(http.StatusNoContent)
}
