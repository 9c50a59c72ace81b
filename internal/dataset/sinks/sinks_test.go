package sinks

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/review-scraper/internal/dataset"
	"github.com/JakeFAU/review-scraper/internal/scraper"
)

func sampleDataset(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(dataset.Config{Fields: []string{"author", "rating"}})
	require.NoError(t, err)
	target, err := scraper.NewTarget("https://example.com/reviews")
	require.NoError(t, err)
	for i := range n {
		ds.Add(scraper.NormalizedRecord{
			Target: target,
			Index:  i,
			Fields: map[string]scraper.Value{
				"author": {Kind: scraper.KindText, Text: "ann, \"the\" critic"},
				"rating": {Kind: scraper.KindNumber, Number: float64(i) + 0.5},
			},
		})
	}
	return ds
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVFlushReplacesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "reviews.csv")
	dest, err := NewCSV(path)
	require.NoError(t, err)

	ds := sampleDataset(t, 2)
	require.NoError(t, ds.Flush(context.Background(), dest))
	require.NoError(t, ds.Flush(context.Background(), dest))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows := readCSV(t, data)
	require.Equal(t, []string{"target", "item_index", "author", "rating"}, rows[0])
	require.Len(t, rows, 3)
	require.Equal(t, []string{"https://example.com/reviews", "1", "ann, \"the\" critic", "1.5"}, rows[2])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestCSVAbortLeavesPreviousFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reviews.csv")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))
	dest, err := NewCSV(path)
	require.NoError(t, err)

	w, err := dest.Open(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Error(t, w.WriteRow(context.Background(), []string{"only-one"}))
	require.NoError(t, w.Abort(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "old\n", string(data))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = NewCSV(" ")
	require.Error(t, err)
}

func TestSQLiteFlush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reviews.db")
	dest, err := OpenSQLite(ctx, path, "reviews")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dest.Close() })

	require.NoError(t, sampleDataset(t, 3).Flush(ctx, dest))
	require.NoError(t, sampleDataset(t, 2).Flush(ctx, dest))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "reviews"`).Scan(&count))
	require.Equal(t, 2, count)

	var author, rating string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT "author", "rating" FROM "reviews" WHERE "item_index" = '1'`).Scan(&author, &rating))
	require.Equal(t, "ann, \"the\" critic", author)
	require.Equal(t, "1.5", rating)

	_, err = OpenSQLite(ctx, path, "bad name")
	require.ErrorContains(t, err, "invalid table name")
}

func TestSQLiteAbortRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dest, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "reviews.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dest.Close() })
	require.NoError(t, sampleDataset(t, 1).Flush(ctx, dest))

	w, err := dest.Open(ctx, []string{"x"})
	require.NoError(t, err)
	require.NoError(t, w.WriteRow(ctx, []string{"y"}))
	require.NoError(t, w.Abort(ctx))

	var count int
	require.NoError(t, dest.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "records"`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestPostgresFlushCopiesRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dest, err := NewPostgresWithPool(mock, "reviews")
	require.NoError(t, err)

	columns := []string{"target", "item_index", "author", "rating"}
	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "reviews"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "reviews"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"reviews"}, columns).WillReturnResult(3)
	mock.ExpectCommit()

	require.NoError(t, sampleDataset(t, 3).Flush(context.Background(), dest))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFlushRollsBackOnCopyFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dest, err := NewPostgresWithPool(mock, "")
	require.NoError(t, err)

	columns := []string{"target", "item_index", "author", "rating"}
	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "records"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "records"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"records"}, columns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = sampleDataset(t, 1).Flush(context.Background(), dest)
	require.ErrorContains(t, err, "copy rows: disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGCSUploadsCSV(t *testing.T) {
	t.Parallel()

	var uploads []*fakeObject
	dest, err := newGCS("bucket", "exports/reviews.csv", func(ctx context.Context, object string) io.WriteCloser {
		obj := &fakeObject{ctx: ctx, name: object}
		uploads = append(uploads, obj)
		return obj
	})
	require.NoError(t, err)
	require.Equal(t, "gs://bucket/exports/reviews.csv", dest.Name())

	require.NoError(t, sampleDataset(t, 2).Flush(context.Background(), dest))
	require.Len(t, uploads, 1)
	require.True(t, uploads[0].closed)
	require.False(t, uploads[0].cancelled)
	require.Len(t, readCSV(t, uploads[0].buf.Bytes()), 3)

	w, err := dest.Open(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.NoError(t, w.Abort(context.Background()))
	require.True(t, uploads[1].cancelled)

	_, err = newGCS("", "x", nil)
	require.Error(t, err)
}

func TestMongoReplacesDocuments(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{}
	dest := &Mongo{coll: coll, name: "mongo:db.reviews"}

	require.NoError(t, sampleDataset(t, 2).Flush(context.Background(), dest))
	require.Equal(t, 1, coll.deletes)
	require.Len(t, coll.docs, 2)
	first, ok := coll.docs[0].(bson.D)
	require.True(t, ok)
	require.Equal(t, bson.E{Key: "target", Value: "https://example.com/reviews"}, first[0])
	require.Equal(t, bson.E{Key: "rating", Value: "0.5"}, first[3])

	coll.failInsert = errors.New("not primary")
	require.ErrorContains(t, sampleDataset(t, 1).Flush(context.Background(), dest), "insert documents")
}

type fakeObject struct {
	ctx       context.Context
	name      string
	buf       bytes.Buffer
	closed    bool
	cancelled bool
}

func (o *fakeObject) Write(p []byte) (int, error) { return o.buf.Write(p) }

func (o *fakeObject) Close() error {
	o.closed = true
	o.cancelled = o.ctx.Err() != nil
	return nil
}

type fakeCollection struct {
	deletes    int
	docs       []any
	failInsert error
}

func (c *fakeCollection) DeleteMany(context.Context, any, ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	c.deletes++
	c.docs = nil
	return &mongo.DeleteResult{}, nil
}

func (c *fakeCollection) InsertMany(_ context.Context, docs []any, _ ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	if c.failInsert != nil {
		return nil, c.failInsert
	}
	c.docs = append(c.docs, docs...)
	return &mongo.InsertManyResult{}, nil
}


