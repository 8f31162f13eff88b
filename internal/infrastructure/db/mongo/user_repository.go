package mongo

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/parishdesk/member-system/internal/core/domain"
	"github.com/parishdesk/member-system/internal/core/ports"
)

const userCollection = "users"

// caseInsensitive compares letters regardless of case (collation strength 2).
// The username unique index and username lookups share it so "Alice" and
// "alice" collide.
var caseInsensitive = options.Collation{Locale: "en", Strength: 2}

// UserRepository specializes the generic repository for User records: unique
// email (stored lowercased) and case-insensitively unique username.
type UserRepository struct {
	*Repository[domain.User, *domain.User]
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		Repository: NewRepository[domain.User, *domain.User](db, userCollection),
	}
}

// EnsureIndexes declares the uniqueness constraints and the listing index.
// Index names are stable because conflict translation matches on them.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("uniq_email").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "username", Value: 1}},
			Options: options.Index().
				SetName("uniq_username").
				SetUnique(true).
				SetCollation(&caseInsensitive),
		},
		{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
	}

	_, err := r.Collection().Indexes().CreateMany(ctx, indexes)
	return err
}

// Create persists a user, lowercasing the email and naming the violated
// constraint on duplicate key races.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	user.Email = strings.ToLower(user.Email)
	created, err := r.Repository.Create(ctx, user)
	if err != nil {
		return nil, translateConflict(err)
	}
	return created, nil
}

// Update applies a partial merge, lowercasing an email change and naming the
// violated constraint on duplicate key races.
func (r *UserRepository) Update(ctx context.Context, id string, fields map[string]any) (*domain.User, error) {
	if email, ok := fields["email"].(string); ok {
		fields["email"] = strings.ToLower(email)
	}
	updated, err := r.Repository.Update(ctx, id, fields)
	if err != nil {
		return nil, translateConflict(err)
	}
	return updated, nil
}

// FindByEmail is a case-insensitive exact lookup; emails are stored
// lowercased, so lowercasing the query suffices.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u domain.User
	err := r.Collection().FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr("find by email", err)
	}
	return &u, nil
}

// FindByUsername is a case-insensitive exact lookup using the same collation
// as the uniqueness index.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u domain.User
	err := r.Collection().
		FindOne(ctx, bson.M{"username": username}, options.FindOne().SetCollation(&caseInsensitive)).
		Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr("find by username", err)
	}
	return &u, nil
}

// List returns users in creation order with optional active filtering and a
// case-insensitive substring search over username and email.
func (r *UserRepository) List(ctx context.Context, filter ports.ListUsersFilter) ([]*domain.User, error) {
	query := bson.M{}
	if filter.ActiveOnly {
		query["active"] = true
	}
	if filter.Search != "" {
		pattern := regexp.QuoteMeta(filter.Search)
		query["$or"] = bson.A{
			bson.M{"username": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"email": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	return r.Repository.List(ctx, query, ListOptions{
		Offset: filter.Page.Offset,
		Limit:  filter.Page.Limit,
	})
}

// Count reports how many users exist, optionally only active ones.
func (r *UserRepository) Count(ctx context.Context, activeOnly bool) (int64, error) {
	query := bson.M{}
	if activeOnly {
		query["active"] = true
	}
	return r.Repository.Count(ctx, query)
}

// translateConflict narrows a generic conflict to the violated constraint.
// The driver error text carries the index name.
func translateConflict(err error) error {
	if !errors.Is(err, domain.ErrConflict) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "uniq_email"):
		return domain.ErrDuplicateEmail
	case strings.Contains(msg, "uniq_username"):
		return domain.ErrDuplicateUsername
	}
	return err
}
