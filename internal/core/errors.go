package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Callers classify with errors.Is.
var (
	ErrAccessDenied      = errors.New("access denied")
	ErrValidation        = errors.New("validation error")
	ErrMissingColumns    = errors.New("missing columns")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrConfiguration     = errors.New("configuration error")
	ErrNoData            = errors.New("no data")
	ErrNoDataForPeriod   = errors.New("no data for period")
	ErrInvalidPeriod     = errors.New("invalid period")
	ErrNoSession         = errors.New("no active session")
	ErrSessionExpired    = errors.New("session expired")
	ErrNoPlates          = errors.New("no plates available")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ValidationError describes input rejected by the entry flow. The session
// state is left untouched.
type ValidationError struct {
	State  string
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input %q in state %s: %s", e.Input, e.State, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// MissingColumnsError lists the required headers absent from the store.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return "missing columns: " + strings.Join(e.Missing, ", ")
}

func (e *MissingColumnsError) Unwrap() error { return ErrMissingColumns }

// StoreUnavailable wraps an I/O failure of the backing store.
func StoreUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
