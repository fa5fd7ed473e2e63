package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/auth"
	"github.com/nikhilbhutani/tenantauth/internal/membership"
)

type AuthHandler struct {
	svc         *auth.Service
	memberships *membership.Registry
}

func NewAuthHandler(svc *auth.Service, memberships *membership.Registry) *AuthHandler {
	return &AuthHandler{svc: svc, memberships: memberships}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Tenant   *struct {
		Name   string `json:"name"`
		Domain string `json:"domain"`
	} `json:"tenant,omitempty"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	in := auth.SignupInput{Name: req.Name, Email: req.Email, Password: req.Password}
	if req.Tenant != nil {
		in.TenantName, in.TenantDomain = req.Tenant.Name, req.Tenant.Domain
	}
	res, err := h.svc.Signup(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := requireField("email", req.Email); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type refreshRequest struct {
	UserID       uuid.UUID  `json:"user_id"`
	TenantID     *uuid.UUID `json:"tenant_id,omitempty"`
	RefreshToken string     `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Refresh(r.Context(), auth.RefreshInput{
		UserID:       req.UserID,
		TenantID:     req.TenantID,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Logout(r.Context(), p.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MyTenants lists the tenants the caller can currently act in.
func (h *AuthHandler) MyTenants(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tenants, err := h.memberships.GetUserTenants(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tenants": tenants, "count": len(tenants)})
}
