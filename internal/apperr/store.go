package apperr

import (
	"errors"

	"github.com/nikhilbhutani/tenantauth/internal/store"
)

// FromStore translates store sentinels into domain errors. conflict is the
// Duplicate* error for the unique index the caller writes to; nil leaves
// conflicts untranslated.
func FromStore(err error, conflict error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case conflict != nil && errors.Is(err, store.ErrConflict):
		return conflict
	default:
		return err
	}
}
