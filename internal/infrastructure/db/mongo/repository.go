package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/parishdesk/member-system/internal/core/domain"
)

// record constrains the pointer side of a repository's type parameter: any
// struct embedding domain.Entity satisfies it.
type record interface {
	Base() *domain.Entity
}

// Repository implements generic CRUD over a single collection.
//
// Specializations declare their own indexes and uniqueness rules (via
// EnsureIndexes and error translation) and never re-implement the mechanics
// here. Reads and writes suspend on the driver without taking any lock over
// the collection; concurrent updates to the same document are last-write-wins.
type Repository[T any, PT interface {
	*T
	record
}] struct {
	col *mongo.Collection
}

// NewRepository binds a generic repository to a collection.
func NewRepository[T any, PT interface {
	*T
	record
}](db *mongo.Database, collection string) *Repository[T, PT] {
	return &Repository[T, PT]{col: db.Collection(collection)}
}

// Collection exposes the underlying collection to specializations.
func (r *Repository[T, PT]) Collection() *mongo.Collection { return r.col }

// Create assigns identity and timestamps when absent and inserts the record.
// A duplicate key on any unique index surfaces as domain.ErrConflict wrapping
// the driver error, so specializations can name the offending constraint.
func (r *Repository[T, PT]) Create(ctx context.Context, doc PT) (PT, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ent := doc.Base()
	if ent.ID == "" {
		ent.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now().UTC()
	if ent.CreatedAt.IsZero() {
		ent.CreatedAt = now
	}
	ent.UpdatedAt = now

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
		return nil, storeErr("insert", err)
	}
	return doc, nil
}

// GetByID fetches a single record, reporting domain.ErrNotFound when absent.
func (r *Repository[T, PT]) GetByID(ctx context.Context, id string) (PT, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := PT(new(T))
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr("find by id", err)
	}
	return doc, nil
}

// Update applies a partial $set merge and bumps updated_at, returning the
// post-update record. Identity and creation time are immutable and silently
// dropped from the merge.
func (r *Repository[T, PT]) Update(ctx context.Context, id string, fields map[string]any) (PT, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range fields {
		if k == "_id" || k == "created_at" {
			continue
		}
		set[k] = v
	}

	doc := PT(new(T))
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
		return nil, storeErr("update", err)
	}
	return doc, nil
}

// Delete removes a record. Deleting an absent id reports domain.ErrNotFound
// rather than succeeding silently.
func (r *Repository[T, PT]) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storeErr("delete", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOptions controls offset/limit pagination. A zero Limit means no limit.
type ListOptions struct {
	Offset int64
	Limit  int64
}

// List returns records matching filter in a deterministic, stable order:
// created_at ascending, ties broken by _id ascending.
func (r *Repository[T, PT]) List(ctx context.Context, filter bson.M, page ListOptions) ([]PT, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if filter == nil {
		filter = bson.M{}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(page.Offset)
	if page.Limit > 0 {
		opts.SetLimit(page.Limit)
	}

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeErr("find", err)
	}
	defer cur.Close(ctx)

	var out []PT
	for cur.Next(ctx) {
		doc := PT(new(T))
		if err := cur.Decode(doc); err != nil {
			return nil, storeErr("decode", err)
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, storeErr("cursor", err)
	}
	return out, nil
}

// Count returns the number of records matching filter.
func (r *Repository[T, PT]) Count(ctx context.Context, filter bson.M) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if filter == nil {
		filter = bson.M{}
	}
	n, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
