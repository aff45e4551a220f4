// Package events publishes ingestion progress to NATS.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/cinesearch/engine/ingest"
	"github.com/WessleyAI/cinesearch/pkg/natsutil"
)

// Subjects.
const (
	SubjectBatch = "cinesearch.ingest.batch"
	SubjectDone  = "cinesearch.ingest.done"
)

// BatchUploaded is published after each acknowledged batch.
type BatchUploaded struct {
	RunID      string `json:"run_id"`
	Collection string `json:"collection"`
	Batch      int    `json:"batch"`
	Batches    int    `json:"batches"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Points     int    `json:"points"`
}

// RunFinished is published once per run, whatever its outcome.
type RunFinished struct {
	RunID       string  `json:"run_id"`
	Collection  string  `json:"collection"`
	Status      string  `json:"status"`
	Fingerprint string  `json:"fingerprint"`
	Points      int     `json:"points"`
	Batches     int     `json:"batches"`
	DurationMS  float64 `json:"duration_ms"`
	Error       string  `json:"error,omitempty"`
}

// Notifier publishes ingest.Notifier callbacks as JSON messages.
type Notifier struct {
	pub        natsutil.Publisher
	collection string
}

var _ ingest.Notifier = (*Notifier)(nil)

// NewNotifier creates a Notifier for runs against collection.
func NewNotifier(pub natsutil.Publisher, collection string) *Notifier {
	return &Notifier{pub: pub, collection: collection}
}

func (n *Notifier) BatchUploaded(ctx context.Context, runID string, b ingest.Batch) error {
	return natsutil.Publish(ctx, n.pub, SubjectBatch, BatchUploaded{
		RunID:      runID,
		Collection: n.collection,
		Batch:      b.Number,
		Batches:    b.Total,
		Start:      b.Start,
		End:        b.End,
		Points:     len(b.Points),
	})
}

func (n *Notifier) RunFinished(ctx context.Context, r ingest.Report) error {
	ev := RunFinished{
		RunID:       r.RunID,
		Collection:  r.Collection,
		Status:      r.Status,
		Fingerprint: r.Fingerprint,
		Points:      r.Points,
		Batches:     r.Batches,
		DurationMS:  float64(r.Duration.Microseconds()) / 1000,
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return natsutil.Publish(ctx, n.pub, SubjectDone, ev)
}

func (e BatchUploaded) String() string {
	return fmt.Sprintf("%s batch %d/%d rows %d-%d (%d points) run %s",
		e.Collection, e.Batch, e.Batches, e.Start, e.End, e.Points, e.RunID)
}

func (e RunFinished) String() string {
	out := fmt.Sprintf("%s run %s %s: %d points in %d batches, %.0fms",
		e.Collection, e.RunID, e.Status, e.Points, e.Batches, e.DurationMS)
	if e.Error != "" {
		out += ": " + e.Error
	}
	return out
}

// Handlers receive decoded progress events. Either may be nil.
type Handlers struct {
	Batch func(context.Context, BatchUploaded)
	Done  func(context.Context, RunFinished)
}

// Watch subscribes h to the progress subjects. Events for other collections
// are dropped unless collection is empty. The returned func unsubscribes.
func Watch(nc *nats.Conn, collection string, h Handlers) (func() error, error) {
	var subs []*nats.Subscription
	unsubscribe := func() error {
		var errs []error
		for _, s := range subs {
			errs = append(errs, s.Unsubscribe())
		}
		return errors.Join(errs...)
	}

	if h.Batch != nil {
		s, err := natsutil.Subscribe(nc, SubjectBatch, func(ctx context.Context, ev BatchUploaded) {
			if collection == "" || ev.Collection == collection {
				h.Batch(ctx, ev)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("events: subscribe %s: %w", SubjectBatch, err)
		}
		subs = append(subs, s)
	}
	if h.Done != nil {
		s, err := natsutil.Subscribe(nc, SubjectDone, func(ctx context.Context, ev RunFinished) {
			if collection == "" || ev.Collection == collection {
				h.Done(ctx, ev)
			}
		})
		if err != nil {
			_ = unsubscribe()
			return nil, fmt.Errorf("events: subscribe %s: %w", SubjectDone, err)
		}
		subs = append(subs, s)
	}
	return unsubscribe, nil
}
