// Package store is the persistence adapter: a uniform interface over the
// document store. Domain services never touch the database driver directly.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names used by the domain services.
const (
	Users         = "users"
	Organizations = "organizations"
	Projects      = "projects"
	Tasks         = "tasks"
)

// ErrNoDocuments is returned by FindOne when the filter matches nothing.
var ErrNoDocuments = errors.New("store: no documents in result")

// FindOptions carries projection, ordering and pagination for queries.
// Projection supports exclusion form only ({"field": 0}).
type FindOptions struct {
	Projection bson.M
	Sort       bson.D
	Skip       int64
	Limit      int64
}

type Store interface {
	FindOne(ctx context.Context, collection string, filter bson.M, out interface{}, opts *FindOptions) error
	Find(ctx context.Context, collection string, filter bson.M, out interface{}, opts *FindOptions) error
	InsertOne(ctx context.Context, collection string, doc interface{}) (primitive.ObjectID, error)
	UpdateOne(ctx context.Context, collection string, filter, update bson.M) (int64, error)
	UpdateMany(ctx context.Context, collection string, filter, update bson.M) (int64, error)
	DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error)
	Count(ctx context.Context, collection string, filter bson.M) (int64, error)
}
