package ingest

import (
	"context"
	"fmt"

	"github.com/WessleyAI/cinesearch/engine/domain"
	"github.com/WessleyAI/cinesearch/engine/semantic"
	"github.com/WessleyAI/cinesearch/pkg/fn"
)

// DefaultBatchSize is the number of points per upsert request.
const DefaultBatchSize = 100

// Upserter writes points and returns once they are durable.
type Upserter interface {
	Upsert(ctx context.Context, points []semantic.Point) error
}

// Batch is one contiguous slice of the upload, covering points [Start, End).
// Number counts from 1.
type Batch struct {
	Number int
	Total  int
	Start  int
	End    int
	Points []semantic.Point
}

// BatchError reports the batch that failed. Batches before it are stored.
type BatchError struct {
	Batch int
	Total int
	Start int
	End   int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("ingest: batch %d/%d points [%d, %d): %v", e.Batch, e.Total, e.Start, e.End, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// RetryFunc runs submit for b, possibly more than once.
type RetryFunc func(ctx context.Context, b Batch, submit func(context.Context) error) error

// SubmitOnce calls submit a single time.
func SubmitOnce(ctx context.Context, _ Batch, submit func(context.Context) error) error {
	return submit(ctx)
}

// RetryWith retries each batch with exponential backoff.
func RetryWith(opts fn.RetryOpts) RetryFunc {
	return func(ctx context.Context, _ Batch, submit func(context.Context) error) error {
		return fn.RetryErr(ctx, opts, submit)
	}
}

// Batcher uploads points in sequential, acknowledged batches.
type Batcher struct {
	Size int
	// Retry wraps every submission. Nil means SubmitOnce.
	Retry RetryFunc
	// OnBatch runs after each acknowledged batch.
	OnBatch func(ctx context.Context, b Batch)
}

// BatchCount returns ceil(n/size).
func BatchCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Upload submits points in order and returns the number of acknowledged
// batches. It stops at the first failed batch.
func (b Batcher) Upload(ctx context.Context, store Upserter, points []semantic.Point) (int, error) {
	if err := domain.ValidateBatchSize(b.Size); err != nil {
		return 0, err
	}
	retry := b.Retry
	if retry == nil {
		retry = SubmitOnce
	}

	chunks := fn.Chunk(points, b.Size)
	done := 0
	for i, chunk := range chunks {
		start := i * b.Size
		batch := Batch{
			Number: i + 1,
			Total:  len(chunks),
			Start:  start,
			End:    start + len(chunk),
			Points: chunk,
		}
		err := retry(ctx, batch, func(ctx context.Context) error {
			return store.Upsert(ctx, batch.Points)
		})
		if err != nil {
			return done, &BatchError{Batch: batch.Number, Total: batch.Total, Start: batch.Start, End: batch.End, Err: err}
		}
		done++
		if b.OnBatch != nil {
			b.OnBatch(ctx, batch)
		}
	}
	return done, nil
}
