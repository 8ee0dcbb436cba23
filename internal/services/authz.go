package services

import (
	"errors"
	"fmt"
	"strings"

	"pharmacy_backend/internal/models"
)

var (
	// ErrForbidden is returned when the calling actor's role is not allowed
	// to perform the operation. Route middleware performs the same check at
	// the HTTP layer; this one guards non-HTTP callers.
	ErrForbidden = errors.New("operation not permitted for role")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation error")
)

// authorize checks that the actor holds one of the allowed roles.
// Role comparison is case-insensitive, matching the route middleware.
func authorize(actor models.Actor, allowedRoles ...string) error {
	for _, role := range allowedRoles {
		if strings.EqualFold(actor.Role, role) {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q, required one of %s", ErrForbidden, actor.Role, strings.Join(allowedRoles, ", "))
}
