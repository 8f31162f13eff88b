package ports

import (
	"context"

	"github.com/parishdesk/member-system/internal/core/domain"
)

// RegisterInput carries a registration request.
type RegisterInput struct {
	Email    string `validate:"required,email"`
	Username string `validate:"required,min=3,max=50"`
	Password string `validate:"required,min=8"`
}

// UpdateProfileInput is a self-service profile change. Empty fields are left
// untouched. Changing the password requires the current one.
type UpdateProfileInput struct {
	Email           string `validate:"omitempty,email"`
	Username        string `validate:"omitempty,min=3,max=50"`
	CurrentPassword string `validate:"-"`
	NewPassword     string `validate:"omitempty,min=8"`
}

// AuthResult is returned by a successful authentication.
type AuthResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

// ListUsersInput carries the parameters for the user listing operation.
type ListUsersInput struct {
	Search     string
	ActiveOnly bool
	Offset     int64
	Limit      int64
}

// UserService orchestrates registration, authentication, and profile
// operations over the repository, hasher, and token issuer.
type UserService interface {
	Register(ctx context.Context, input RegisterInput) (*domain.User, error)
	// Authenticate accepts an email or username identifier. Unknown
	// identifier and wrong password both fail with the identical
	// domain.ErrInvalidCredentials.
	Authenticate(ctx context.Context, identifier, password string) (*AuthResult, error)
	// Refresh exchanges a valid refresh token for a new access token carrying
	// the user's current role.
	Refresh(ctx context.Context, refreshToken string) (string, error)
	GetProfile(ctx context.Context, userID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*domain.User, error)
	// PromoteToAdmin fails with domain.ErrForbidden unless the acting
	// identity holds the admin role.
	PromoteToAdmin(ctx context.Context, acting domain.Identity, targetID string) (*domain.User, error)
	// Deactivate is the soft-delete path: the record stays, active drops.
	Deactivate(ctx context.Context, userID string) error
	List(ctx context.Context, input ListUsersInput) ([]*domain.User, error)
	Count(ctx context.Context, activeOnly bool) (int64, error)
}
