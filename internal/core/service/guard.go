package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/parishdesk/member-system/internal/api/metrics"
	"github.com/parishdesk/member-system/internal/auth"
	"github.com/parishdesk/member-system/internal/core/domain"
	"github.com/parishdesk/member-system/internal/core/ports"
)

// AccessGuard resolves session tokens into authenticated identities and
// enforces role requirements. Two resolution policies exist: Resolve trusts
// the token's role claim (cheap, may be stale until expiry) and ResolveFresh
// re-reads the user record (role changes and deactivation take effect
// immediately). Callers pick the policy per operation; role-sensitive admin
// surfaces should use ResolveFresh.
type AccessGuard struct {
	tokens ports.TokenIssuer
	users  ports.UserRepository
	log    zerolog.Logger
}

func NewAccessGuard(tokens ports.TokenIssuer, users ports.UserRepository, log zerolog.Logger) *AccessGuard {
	return &AccessGuard{tokens: tokens, users: users, log: log}
}

// Resolve validates the token and builds an identity from its claims alone.
// Every token failure collapses to domain.ErrUnauthenticated; the precise
// cause is logged and counted, never leaked to the caller.
func (g *AccessGuard) Resolve(ctx context.Context, token string) (*domain.Identity, error) {
	claims, err := g.tokens.Validate(token)
	if err != nil {
		metrics.TokenValidationsTotal.WithLabelValues(tokenFailureLabel(err)).Inc()
		g.log.Debug().Err(err).Msg("token rejected")
		return nil, domain.ErrUnauthenticated
	}
	metrics.TokenValidationsTotal.WithLabelValues("ok").Inc()
	return &domain.Identity{UserID: claims.SubjectID, Role: claims.Role}, nil
}

// ResolveFresh validates the token and re-reads the user record, taking the
// role from the store instead of the stale claim. Missing or deactivated
// users fail as unauthenticated, exactly like a bad token.
func (g *AccessGuard) ResolveFresh(ctx context.Context, token string) (*domain.Identity, error) {
	identity, err := g.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := g.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			g.log.Debug().Str("user_id", identity.UserID).Msg("token subject no longer exists")
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}
	if !user.Active {
		g.log.Debug().Str("user_id", user.ID).Msg("token subject is deactivated")
		return nil, domain.ErrUnauthenticated
	}

	return &domain.Identity{UserID: user.ID, Role: user.Role}, nil
}

// RequireRole enforces that the identity holds one of the given roles.
// A nil identity is unauthenticated; a known identity with the wrong role is
// forbidden. The two are distinct failures with distinct external codes.
func (g *AccessGuard) RequireRole(identity *domain.Identity, roles ...string) error {
	if identity == nil {
		return domain.ErrUnauthenticated
	}
	for _, role := range roles {
		if identity.Role == role {
			return nil
		}
	}
	return domain.ErrForbidden
}

func tokenFailureLabel(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	case errors.Is(err, auth.ErrTokenSignatureInvalid):
		return "invalid_signature"
	default:
		return "malformed"
	}
}
