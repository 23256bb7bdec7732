// Package mongo implements the Chat Session Layer's Store and the
// Workflow Engine's ContextRepository over MongoDB, an external
// collaborator per SPEC_FULL.md §7's "Durable chat/trace storage" and
// "Durable workflow/retry state" rows. It mirrors the teacher's
// features/session/mongo and features/run/mongo split: a thin collection
// seam for testability, document types separate from the domain structs
// they persist, and upsert-based idempotent writes.
package mongo

import (
	"context"
	"errors"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const defaultOpTimeout = 5 * time.Second

// collection captures the subset of *mongodriver.Collection the stores in
// this package depend on, so tests can substitute a fake.
type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
	UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error)
	InsertOne(ctx context.Context, doc any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type cursor interface {
	Close(ctx context.Context) error
	Decode(val any) error
	Err() error
	Next(ctx context.Context) bool
}

type wrappedCollection struct {
	coll *mongodriver.Collection
}

func newCollection(db *mongodriver.Database, name string) collection {
	return wrappedCollection{coll: db.Collection(name)}
}

func (c wrappedCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return c.coll.FindOne(ctx, filter, opts...)
}

func (c wrappedCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	return c.coll.Find(ctx, filter, opts...)
}

func (c wrappedCollection) UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c wrappedCollection) DeleteOne(ctx context.Context, filter any, opts ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error) {
	return c.coll.DeleteOne(ctx, filter, opts...)
}

func (c wrappedCollection) InsertOne(ctx context.Context, doc any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, doc, opts...)
}

func (c wrappedCollection) Indexes() indexView {
	return c.coll.Indexes()
}

// Ping verifies connectivity to client, for use as a health check.
func Ping(ctx context.Context, client *mongodriver.Client) error {
	if client == nil {
		return errors.New("mongo: client is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return client.Ping(ctx, readpref.Primary())
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

var errNoDocuments = mongodriver.ErrNoDocuments

func isNoDocuments(err error) bool {
	return errors.Is(err, errNoDocuments)
}
