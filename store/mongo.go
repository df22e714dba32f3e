package store

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on top of a Mongo database. Every round-trip
// goes through the circuit breaker so a struggling database trips fast
// instead of piling up requests.
type MongoStore struct {
	db      *mongo.Database
	breaker *gobreaker.CircuitBreaker
}

func NewMongoStore(db *mongo.Database, breaker *gobreaker.CircuitBreaker) *MongoStore {
	return &MongoStore{db: db, breaker: breaker}
}

func (s *MongoStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(fn)
}

func (s *MongoStore) FindOne(ctx context.Context, collection string, filter bson.M, out interface{}, opts *FindOptions) error {
	_, err := s.execute(func() (interface{}, error) {
		findOpts := options.FindOne()
		if opts != nil && opts.Projection != nil {
			findOpts.SetProjection(opts.Projection)
		}
		err := s.db.Collection(collection).FindOne(ctx, filter, findOpts).Decode(out)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoDocuments
		}
		return nil, err
	})
	return err
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter bson.M, out interface{}, opts *FindOptions) error {
	_, err := s.execute(func() (interface{}, error) {
		findOpts := options.Find()
		if opts != nil {
			if opts.Projection != nil {
				findOpts.SetProjection(opts.Projection)
			}
			if opts.Sort != nil {
				findOpts.SetSort(opts.Sort)
			}
			if opts.Skip > 0 {
				findOpts.SetSkip(opts.Skip)
			}
			if opts.Limit > 0 {
				findOpts.SetLimit(opts.Limit)
			}
		}
		cursor, err := s.db.Collection(collection).Find(ctx, filter, findOpts)
		if err != nil {
			return nil, err
		}
		defer cursor.Close(ctx)
		return nil, cursor.All(ctx, out)
	})
	return err
}

func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc interface{}) (primitive.ObjectID, error) {
	res, err := s.execute(func() (interface{}, error) {
		return s.db.Collection(collection).InsertOne(ctx, doc)
	})
	if err != nil {
		return primitive.NilObjectID, err
	}
	if id, ok := res.(*mongo.InsertOneResult).InsertedID.(primitive.ObjectID); ok {
		return id, nil
	}
	return primitive.NilObjectID, nil
}

func (s *MongoStore) UpdateOne(ctx context.Context, collection string, filter, update bson.M) (int64, error) {
	res, err := s.execute(func() (interface{}, error) {
		return s.db.Collection(collection).UpdateOne(ctx, filter, update)
	})
	if err != nil {
		return 0, err
	}
	return res.(*mongo.UpdateResult).MatchedCount, nil
}

func (s *MongoStore) UpdateMany(ctx context.Context, collection string, filter, update bson.M) (int64, error) {
	res, err := s.execute(func() (interface{}, error) {
		return s.db.Collection(collection).UpdateMany(ctx, filter, update)
	})
	if err != nil {
		return 0, err
	}
	return res.(*mongo.UpdateResult).MatchedCount, nil
}

func (s *MongoStore) DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error) {
	res, err := s.execute(func() (interface{}, error) {
		return s.db.Collection(collection).DeleteOne(ctx, filter)
	})
	if err != nil {
		return 0, err
	}
	return res.(*mongo.DeleteResult).DeletedCount, nil
}

func (s *MongoStore) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	res, err := s.execute(func() (interface{}, error) {
		return s.db.Collection(collection).DeleteMany(ctx, filter)
	})
	if err != nil {
		return 0, err
	}
	return res.(*mongo.DeleteResult).DeletedCount, nil
}

func (s *MongoStore) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	res, err := s.execute(func() (interface{}, error) {
		return s.db.Collection(collection).CountDocuments(ctx, filter)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}
