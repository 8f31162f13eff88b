package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/parishdesk/member-system/internal/api/metrics"
	"github.com/parishdesk/member-system/internal/core/domain"
	"github.com/parishdesk/member-system/internal/core/ports"
)

const maxListLimit = 100

// UserService implements registration, authentication, and profile
// management by composing the password hasher, token issuer, and user
// repository. Narrow infrastructure errors are translated here; nothing is
// re-thrown raw and nothing is swallowed.
type UserService struct {
	users    ports.UserRepository
	hasher   ports.PasswordHasher
	tokens   ports.TokenIssuer
	throttle ports.LoginThrottle // optional, nil disables throttling
	log      zerolog.Logger
}

func NewUserService(
	users ports.UserRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenIssuer,
	throttle ports.LoginThrottle,
	log zerolog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		throttle: throttle,
		log:      log,
	}
}

// Register creates a new standard-role, active account. Email and username
// collisions are reported distinctly so the caller can present a precise
// message.
func (s *UserService) Register(ctx context.Context, input ports.RegisterInput) (*domain.User, error) {
	if err := checkInput(&input); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrDuplicateEmail
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return nil, domain.ErrDuplicateUsername
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	start := time.Now()
	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	metrics.PasswordHashDuration.Observe(time.Since(start).Seconds())

	created, err := s.users.Create(ctx, &domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         domain.RoleStandard,
		Active:       true,
	})
	if err != nil {
		// A concurrent registration can still trip the unique index between
		// the predicate checks above and the insert.
		return nil, err
	}

	metrics.RegistrationsTotal.Inc()
	s.log.Info().Str("user_id", created.ID).Str("username", created.Username).Msg("user registered")
	return created, nil
}

// Authenticate verifies the identifier/password pair and issues a token
// pair. Unknown identifier and wrong password produce the identical
// domain.ErrInvalidCredentials, so callers cannot enumerate accounts.
func (s *UserService) Authenticate(ctx context.Context, identifier, password string) (*ports.AuthResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, identifier)
		if err != nil {
			// Fail open: an unavailable throttle must not lock everyone out.
			s.log.Warn().Err(err).Msg("login throttle unavailable")
		} else if !ok {
			metrics.LoginsTotal.WithLabelValues("throttled").Inc()
			return nil, domain.ErrTooManyAttempts
		}
	}

	user, err := s.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.LoginsTotal.WithLabelValues("failure").Inc()
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		s.log.Debug().Str("user_id", user.ID).Msg("password verification failed")
		return nil, domain.ErrInvalidCredentials
	}

	if !user.Active {
		metrics.LoginsTotal.WithLabelValues("inactive").Inc()
		return nil, domain.ErrAccountInactive
	}

	access, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user authenticated")
	return &ports.AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// lookup resolves an identifier that may be an email or a username. An
// identifier containing "@" is tried as email first, then as username.
func (s *UserService) lookup(ctx context.Context, identifier string) (*domain.User, error) {
	if strings.Contains(identifier, "@") {
		user, err := s.users.FindByEmail(ctx, identifier)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return s.users.FindByUsername(ctx, identifier)
}

// Refresh exchanges a valid refresh token for a new access token. The user
// record is re-read so the new token carries the current role, and revoked
// or deactivated accounts are cut off here.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	subjectID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		s.log.Debug().Err(err).Msg("refresh token rejected")
		return "", domain.ErrUnauthenticated
	}

	user, err := s.users.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrUnauthenticated
		}
		return "", err
	}
	if !user.Active {
		return "", domain.ErrAccountInactive
	}

	access, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return access, nil
}

// GetProfile returns the user record for the given id.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpdateProfile applies a self-service profile change. Email and username
// uniqueness is re-checked excluding the user themselves; a password change
// requires the current password.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input ports.UpdateProfileInput) (*domain.User, error) {
	if err := checkInput(&input); err != nil {
		return nil, err
	}

	current, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}

	if input.NewPassword != "" {
		if input.CurrentPassword == "" {
			return nil, fmt.Errorf("%w: current password is required to change password", domain.ErrValidation)
		}
		if !s.hasher.Verify(input.CurrentPassword, current.PasswordHash) {
			return nil, domain.ErrInvalidCredentials
		}
		hash, err := s.hasher.Hash(input.NewPassword)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		fields["password_hash"] = hash
	}

	if email := strings.ToLower(strings.TrimSpace(input.Email)); email != "" && email != current.Email {
		if other, err := s.users.FindByEmail(ctx, email); err == nil && other.ID != userID {
			return nil, domain.ErrDuplicateEmail
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		fields["email"] = email
	}

	if username := strings.TrimSpace(input.Username); username != "" && !strings.EqualFold(username, current.Username) {
		if other, err := s.users.FindByUsername(ctx, username); err == nil && other.ID != userID {
			return nil, domain.ErrDuplicateUsername
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		fields["username"] = username
	}

	if len(fields) == 0 {
		return current, nil
	}

	updated, err := s.users.Update(ctx, userID, fields)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", userID).Msg("profile updated")
	return updated, nil
}

// PromoteToAdmin grants the admin role to the target. Only an admin identity
// may call it; everyone else fails with domain.ErrForbidden and the target is
// left untouched.
func (s *UserService) PromoteToAdmin(ctx context.Context, acting domain.Identity, targetID string) (*domain.User, error) {
	if acting.Role != domain.RoleAdmin {
		s.log.Warn().Str("acting_user_id", acting.UserID).Str("target_id", targetID).Msg("promotion denied")
		return nil, domain.ErrForbidden
	}

	updated, err := s.users.Update(ctx, targetID, map[string]any{"role": domain.RoleAdmin})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("acting_user_id", acting.UserID).Str("target_id", targetID).Msg("user promoted to admin")
	return updated, nil
}

// Deactivate is the soft-delete path: the record stays, active drops.
// Already issued tokens keep validating until expiry; fresh-lookup guard
// policies reject the account immediately.
func (s *UserService) Deactivate(ctx context.Context, userID string) error {
	if _, err := s.users.Update(ctx, userID, map[string]any{"active": false}); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Msg("user deactivated")
	return nil
}

// List returns users in creation order with offset/limit pagination and an
// optional search. The limit is capped at 100.
func (s *UserService) List(ctx context.Context, input ports.ListUsersInput) ([]*domain.User, error) {
	limit := input.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	return s.users.List(ctx, ports.ListUsersFilter{
		Search:     input.Search,
		ActiveOnly: input.ActiveOnly,
		Page:       ports.Page{Offset: offset, Limit: limit},
	})
}

// Count reports the number of users, optionally only active ones.
func (s *UserService) Count(ctx context.Context, activeOnly bool) (int64, error) {
	return s.users.Count(ctx, activeOnly)
}
