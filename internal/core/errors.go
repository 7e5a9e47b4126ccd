package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the ledger wraps one of these so
// callers can branch with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("conflict")
	ErrInconsistency = errors.New("cached balance inconsistent with replay")
)

var (
	ErrInvalidAmount      = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrZeroAmount         = fmt.Errorf("%w: amount must be non-zero", ErrValidation)
	ErrEmptyDescription   = fmt.Errorf("%w: empty description", ErrValidation)
	ErrEmptyName          = fmt.Errorf("%w: empty name", ErrValidation)
	ErrMissingSource      = fmt.Errorf("%w: source account is required", ErrValidation)
	ErrInvalidAccountType = fmt.Errorf("%w: invalid account type", ErrValidation)
	ErrSameAccount        = fmt.Errorf("%w: destination account equals source account", ErrConflict)
)

// NotFound builds an ErrNotFound for the given entity and id.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, entity, id)
}
