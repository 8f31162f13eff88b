package domain

import "errors"

// Sentinel errors shared across the core. Infrastructure and service layers
// translate their narrow failures into these; the API layer maps each one to
// a distinct external response code.
var (
	// ErrValidation covers malformed input the caller can correct.
	ErrValidation = errors.New("invalid input")

	// ErrConflict is a uniqueness violation raised by the generic repository
	// when a specialization cannot name the offending constraint.
	ErrConflict = errors.New("uniqueness conflict")

	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")

	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is deliberately low-information: unknown
	// identifier and wrong password both produce this exact value so callers
	// cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")
	ErrTooManyAttempts    = errors.New("too many login attempts")

	// ErrUnauthenticated means no, invalid, or expired token.
	// ErrForbidden means a valid token with an insufficient role.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("access forbidden")

	// ErrStoreUnavailable wraps transient store failures. Fatal for the
	// request; this core never retries on its own.
	ErrStoreUnavailable = errors.New("store unavailable")
)
