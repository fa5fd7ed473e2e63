package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/audit"
	"github.com/nikhilbhutani/tenantauth/internal/store"
)

type AuditHandler struct {
	auditSvc *audit.Service
}

func NewAuditHandler(auditSvc *audit.Service) *AuditHandler {
	return &AuditHandler{auditSvc: auditSvc}
}

// AuditLogs lists the current tenant's audit trail, newest first.
func (h *AuditHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	p, err := tenantPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := store.AuditQuery{
		TenantID: p.TenantID(),
		Action:   r.URL.Query().Get("action"),
	}

	if q.Limit, err = pageParam(r, "limit", store.DefaultAuditLimit); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Offset, err = pageParam(r, "offset", 0); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = store.DefaultAuditLimit
	}
	q.Limit = min(q.Limit, store.MaxAuditLimit)

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			q.StartDate = &t
		}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			q.EndDate = &t
		}
	}

	logs, err := h.auditSvc.GetAuditLogs(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"audit_logs": logs, "count": len(logs)})
}

// pageParam reads a non-negative integer query parameter.
func pageParam(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", apperr.ErrInvalidInput, name)
	}
	return n, nil
}
