package ports

import (
	"context"

	"github.com/parishdesk/member-system/internal/core/domain"
)

// PasswordHasher produces and verifies salted one-way password digests.
type PasswordHasher interface {
	// Hash returns a fresh digest; two calls on the same input yield
	// different digests (unique salt per call).
	Hash(plaintext string) (string, error)
	// Verify reports whether plaintext matches digest. Malformed digests
	// verify as false, never as an error.
	Verify(plaintext, digest string) bool
}

// TokenIssuer issues and validates signed, self-contained session tokens.
// Validation is pure local computation; no store is consulted.
type TokenIssuer interface {
	// Issue returns an access token carrying the subject's identity and the
	// role at issuance time.
	Issue(subjectID, role string) (string, error)
	// IssueRefresh returns a longer-lived refresh token carrying only the
	// subject's identity.
	IssueRefresh(subjectID string) (string, error)
	Validate(token string) (*domain.Claims, error)
	// ValidateRefresh returns the subject identity; access tokens presented
	// here are rejected.
	ValidateRefresh(token string) (string, error)
}

// LoginThrottle rate-limits authentication attempts per identifier.
type LoginThrottle interface {
	// Allow records an attempt and reports whether it falls within the
	// configured window limit.
	Allow(ctx context.Context, identifier string) (bool, error)
}
