package sinks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/review-scraper/internal/dataset"
)

// objectWriterFunc opens an upload of object. Cancelling ctx abandons it.
type objectWriterFunc func(ctx context.Context, object string) io.WriteCloser

// GCS uploads each snapshot as a CSV object, overwriting the previous one.
// The object only changes when the upload completes.
type GCS struct {
	bucket string
	object string
	open   objectWriterFunc
}

var _ dataset.Destination = (*GCS)(nil)

// NewGCS returns a destination writing gs://bucket/object.
func NewGCS(client *storage.Client, bucket, object string) (*GCS, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	return newGCS(bucket, object, func(ctx context.Context, name string) io.WriteCloser {
		w := client.Bucket(bucket).Object(name).NewWriter(ctx)
		w.ContentType = "text/csv"
		return w
	})
}

func newGCS(bucket, object string, open objectWriterFunc) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if strings.TrimSpace(object) == "" {
		return nil, errors.New("object path is required")
	}
	return &GCS{bucket: bucket, object: object, open: open}, nil
}

// Name implements dataset.Destination.
func (g *GCS) Name() string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, g.object)
}

// Open implements dataset.Destination.
func (g *GCS) Open(ctx context.Context, columns []string) (dataset.Writer, error) {
	uploadCtx, cancel := context.WithCancel(ctx)
	w := &objectWriter{out: g.open(uploadCtx, g.object), cancel: cancel}
	w.rows = newRowEncoder(w.out)
	if err := w.rows.header(columns); err != nil {
		_ = w.Abort(ctx)
		return nil, err
	}
	return w, nil
}

type objectWriter struct {
	out    io.WriteCloser
	rows   *rowEncoder
	cancel context.CancelFunc
	done   bool
}

func (w *objectWriter) WriteRow(_ context.Context, row []string) error {
	return w.rows.row(row)
}

func (w *objectWriter) Commit(context.Context) error {
	defer w.cancel()
	if err := w.rows.flush(); err != nil {
		return err
	}
	w.done = true
	if err := w.out.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func (w *objectWriter) Abort(context.Context) error {
	w.cancel()
	if !w.done {
		w.done = true
		// closing after cancel discards the upload
		_ = w.out.Close()
	}
	return nil
}
