package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/parishdesk/member-system/internal/core/domain"
)

// TokenResolver is the slice of the access guard the middleware needs.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (*domain.Identity, error)
	ResolveFresh(ctx context.Context, token string) (*domain.Identity, error)
}

// ResolvePolicy selects how the role of the authenticated identity is
// obtained. The choice is per route group, not global.
type ResolvePolicy int

const (
	// TrustClaims uses the role embedded in the token. Stale after a role
	// change until the token expires; fine for low-sensitivity reads.
	TrustClaims ResolvePolicy = iota
	// FreshLookup re-reads the user record, so demoted or deactivated users
	// are rejected immediately. Use for admin surfaces.
	FreshLookup
)

const identityKey = "identity"

// Auth resolves the Bearer token through the guard and stores the resulting
// identity in the request context. Missing, malformed, expired, and
// tampered tokens all answer 401 without distinguishing the cause.
func Auth(guard TokenResolver, policy ResolvePolicy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			resolve := guard.Resolve
			if policy == FreshLookup {
				resolve = guard.ResolveFresh
			}

			identity, err := resolve(c.Request().Context(), parts[1])
			if err != nil {
				if errors.Is(err, domain.ErrUnauthenticated) {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
				return err
			}

			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// Identity returns the identity stored by Auth, or nil when the request is
// unauthenticated.
func Identity(c echo.Context) *domain.Identity {
	identity, _ := c.Get(identityKey).(*domain.Identity)
	return identity
}
