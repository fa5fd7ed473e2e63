package tenant

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
)

// HeaderName carries the id of the tenant a request targets.
const HeaderName = "x-tenant-id"

// SelectorFromRequest reads the tenant selector header. A missing value is
// ErrTenantNotSpecified; a value that is not a tenant id can never match a
// membership and is reported as ErrUnauthorizedTenant.
func SelectorFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderName))
	if raw == "" {
		return uuid.Nil, apperr.ErrTenantNotSpecified
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: malformed tenant id", apperr.ErrUnauthorizedTenant)
	}
	return id, nil
}
