package ports

import (
	"context"

	"github.com/parishdesk/member-system/internal/core/domain"
)

// Page controls offset/limit pagination. A zero Limit means "no limit".
type Page struct {
	Offset int64
	Limit  int64
}

// ListUsersFilter carries the query parameters for listing users.
type ListUsersFilter struct {
	// Search is an optional case-insensitive substring match over username
	// and email.
	Search     string
	ActiveOnly bool
	Page       Page
}

// UserRepository persists User records.
//
// All operations suspend on the store without blocking concurrent callers on
// other entities. Results are returned in creation order (created_at
// ascending, ties broken by identity).
type UserRepository interface {
	// Create assigns identity and timestamps when absent and persists the
	// user. Uniqueness violations surface as domain.ErrDuplicateEmail or
	// domain.ErrDuplicateUsername.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// Update applies a partial field merge and bumps updated_at; the
	// post-update record is returned.
	Update(ctx context.Context, id string, fields map[string]any) (*domain.User, error)
	// Delete removes the record, reporting domain.ErrNotFound when the id
	// does not exist.
	Delete(ctx context.Context, id string) error
	// FindByEmail and FindByUsername are case-insensitive exact lookups.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context, filter ListUsersFilter) ([]*domain.User, error)
	Count(ctx context.Context, activeOnly bool) (int64, error)
}
