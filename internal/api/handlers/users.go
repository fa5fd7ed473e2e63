package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/audit"
	"github.com/nikhilbhutani/tenantauth/internal/identity"
	"github.com/nikhilbhutani/tenantauth/internal/membership"
	"github.com/nikhilbhutani/tenantauth/internal/models"
)

// UserHandler serves the caller's own profile and the members of the current
// tenant. Users outside the tenant are invisible.
type UserHandler struct {
	users    *identity.Service
	registry *membership.Registry
	audit    *audit.Service
}

func NewUserHandler(users *identity.Service, registry *membership.Registry, auditSvc *audit.Service) *UserHandler {
	return &UserHandler{users: users, registry: registry, audit: auditSvc}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
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
	members := make(map[uuid.UUID]struct{}, len(ms))
	for _, m := range ms {
		members[m.UserID] = struct{}{}
	}

	all, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	users := make([]models.User, 0, len(ms))
	for _, u := range all {
		if _, ok := members[u.ID]; ok {
			users = append(users, u)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users, "count": len(users)})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	if _, err := h.registry.GetMembership(r.Context(), id, p.TenantID()); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.FindByID(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateUserRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.users.Update(r.Context(), p.UserID, identity.UserUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.LogEntry{
		UserID: p.UserID, Action: audit.ActionUserUpdate, ResourceType: "user", ResourceID: u.ID,
	})
	writeJSON(w, http.StatusOK, u)
}
