package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// fakeCollection is a hand-rolled double for the collection interface,
// grounded on the same "collection seam exists so tests can substitute a
// fake" rationale documented on the interface itself. Each method is a
// settable func field so a test only wires the calls it exercises; Decode
// on the fake singleResult/cursor round-trips through bson marshal/unmarshal
// so it behaves exactly like the real driver's typed decode.
type fakeCollection struct {
	findOneFn  func(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	findFn     func(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
	updateOneFn func(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	deleteOneFn func(ctx context.Context, filter any, opts ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error)
	insertOneFn func(ctx context.Context, doc any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error)
}

func (f *fakeCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return f.findOneFn(ctx, filter, opts...)
}

func (f *fakeCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	return f.findFn(ctx, filter, opts...)
}

func (f *fakeCollection) UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return f.updateOneFn(ctx, filter, update, opts...)
}

func (f *fakeCollection) DeleteOne(ctx context.Context, filter any, opts ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error) {
	return f.deleteOneFn(ctx, filter, opts...)
}

func (f *fakeCollection) InsertOne(ctx context.Context, doc any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
	return f.insertOneFn(ctx, doc, opts...)
}

func (f *fakeCollection) Indexes() indexView { return fakeIndexView{} }

type fakeIndexView struct{}

func (fakeIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return "", nil
}

// fakeSingleResult decodes doc via a real bson round-trip, so tests assert
// against ordinary Go values rather than hand-built bson documents.
type fakeSingleResult struct {
	doc any
	err error
}

func (r fakeSingleResult) Decode(val any) error {
	if r.err != nil {
		return r.err
	}
	data, err := bson.Marshal(r.doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, val)
}

func notFoundResult() singleResult { return fakeSingleResult{err: mongodriver.ErrNoDocuments} }

// fakeCursor iterates a fixed slice of documents, each decoded the same way
// fakeSingleResult does.
type fakeCursor struct {
	docs []any
	pos  int
	err  error
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Decode(val any) error {
	data, err := bson.Marshal(c.docs[c.pos-1])
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, val)
}

func (c *fakeCursor) Err() error            { return c.err }
func (c *fakeCursor) Close(context.Context) error { return nil }
