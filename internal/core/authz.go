package core

import (
	"datamarket/internal/validation"
	"datamarket/pkg/domain"
)

// Role names the single capability a mutating operation requires.
type Role string

// Roles. There is no hierarchy between them and no delegation.
const (
	RoleOwner    Role = "owner"
	RoleVerifier Role = "verifier"
	RoleAdmin    Role = "admin"
)

// authorize compares the acting principal with the principal holding role.
func authorize(role Role, expected, actual Principal) error {
	if err := validation.Principal(actual); err != nil {
		return err
	}
	if expected.IsZero() || expected != actual {
		return domain.NewError(domain.CodeUnauthorized, "%s is not the %s", actual, role)
	}
	return nil
}
