package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Store is the narrow persistence surface the deletion engine and the
// repos are written against. Predicates and patches are plain bson so
// collections with unknown schemas can be queried uniformly.
type Store interface {
	ListCollections(ctx context.Context) ([]string, error)
	Find(ctx context.Context, collection string, filter bson.M) ([]bson.M, error)
	CountDocuments(ctx context.Context, collection string, filter bson.M) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error)
	UpdateMany(ctx context.Context, collection string, filter, update bson.M) (int64, error)
	InsertOne(ctx context.Context, collection string, doc interface{}) (interface{}, error)
	UpdateOne(ctx context.Context, collection string, filter, update bson.M) error
	UpsertOne(ctx context.Context, collection string, filter, update bson.M) error
	FindOneAndUpdate(ctx context.Context, collection string, filter, update bson.M, out interface{}) error
}
