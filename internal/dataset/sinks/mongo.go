package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/JakeFAU/review-scraper/internal/dataset"
)

type collection interface {
	DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	InsertMany(ctx context.Context, docs []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// Mongo replaces the documents of a collection on every flush. Rows are
// buffered until Commit; a failed flush before Commit leaves the collection
// untouched.
type Mongo struct {
	client *mongo.Client
	coll   collection
	name   string
}

var _ dataset.Destination = (*Mongo)(nil)

// ConnectMongo connects to uri and targets database.collection.
func ConnectMongo(ctx context.Context, uri, database, coll string) (*Mongo, error) {
	if uri == "" || database == "" || coll == "" {
		return nil, errors.New("mongo uri, database and collection are required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Mongo{
		client: client,
		coll:   client.Database(database).Collection(coll),
		name:   "mongo:" + database + "." + coll,
	}, nil
}

// Name implements dataset.Destination.
func (m *Mongo) Name() string { return m.name }

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

// Open implements dataset.Destination.
func (m *Mongo) Open(_ context.Context, columns []string) (dataset.Writer, error) {
	return &mongoWriter{coll: m.coll, columns: columns}, nil
}

type mongoWriter struct {
	coll    collection
	columns []string
	docs    []any
}

func (w *mongoWriter) WriteRow(_ context.Context, row []string) error {
	if len(row) != len(w.columns) {
		return fmt.Errorf("row has %d cells, header has %d", len(row), len(w.columns))
	}
	doc := make(bson.D, len(row))
	for i, v := range row {
		doc[i] = bson.E{Key: w.columns[i], Value: v}
	}
	w.docs = append(w.docs, doc)
	return nil
}

func (w *mongoWriter) Commit(ctx context.Context) error {
	if _, err := w.coll.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	if len(w.docs) == 0 {
		return nil
	}
	if _, err := w.coll.InsertMany(ctx, w.docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("insert documents: %w", err)
	}
	return nil
}

func (w *mongoWriter) Abort(context.Context) error {
	w.docs = nil
	return nil
}
