// Package ingest turns the movie dataset into stored vectors: it normalizes
// each record, composes its search document, embeds it, builds the point and
// uploads everything in acknowledged batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/WessleyAI/cinesearch/engine/catalog"
	"github.com/WessleyAI/cinesearch/engine/domain"
	"github.com/WessleyAI/cinesearch/engine/embedding"
	"github.com/WessleyAI/cinesearch/engine/semantic"
	"github.com/WessleyAI/cinesearch/engine/state"
	"github.com/WessleyAI/cinesearch/pkg/fn"
	"github.com/WessleyAI/cinesearch/pkg/metrics"
)

// Store is the vector store surface ingestion needs.
type Store interface {
	Upserter
	CollectionExists(ctx context.Context) (bool, error)
	EnsureCollection(ctx context.Context, dims int) (bool, error)
	RecreateCollection(ctx context.Context, dims int) error
	Count(ctx context.Context) (uint64, error)
}

// MarkerStore persists the record of the last completed run.
type MarkerStore interface {
	Marker(ctx context.Context, collection string) (state.Marker, bool, error)
	PutMarker(ctx context.Context, m state.Marker) error
	DeleteMarker(ctx context.Context, collection string) error
}

// Notifier receives progress of a run. Errors are logged, never fatal.
type Notifier interface {
	BatchUploaded(ctx context.Context, runID string, b Batch) error
	RunFinished(ctx context.Context, r Report) error
}

// GraphSink mirrors uploaded movies into the catalog graph. Errors are
// logged, never fatal.
type GraphSink interface {
	SaveMovies(ctx context.Context, movies []domain.Movie) error
}

// Deps holds the external dependencies of a Runner. Markers, Notifier, Graph,
// Metrics and Logger are optional.
type Deps struct {
	Store    Store
	Embedder embedding.Embedder
	Markers  MarkerStore
	Notifier Notifier
	Graph    GraphSink
	Metrics  *metrics.Registry
	Logger   *slog.Logger
}

// Options configures one ingestion run.
type Options struct {
	Source     catalog.Source
	Collection string
	Model      string
	Dimension  int
	BatchSize  int
	IDPolicy   domain.IDPolicy
	Weighting  Weighting
	CastLimit  int
	// Recreate drops and recreates the collection; otherwise it is created
	// only when missing.
	Recreate bool
	// Force ignores a matching marker.
	Force bool
	Retry fn.RetryOpts
}

// Validate checks o before any external call is made.
func (o Options) Validate() error {
	if o.Collection == "" {
		return domain.NewValidationError("collection", "", domain.ErrMissingSetting)
	}
	if o.Source.MoviesPath == "" {
		return domain.NewValidationError("source.movies", "", domain.ErrMissingSetting)
	}
	if o.Dimension < 1 {
		return semantic.ErrInvalidDimension
	}
	if err := domain.ValidateBatchSize(o.BatchSize); err != nil {
		return err
	}
	if err := domain.ValidateIDPolicy(o.IDPolicy); err != nil {
		return err
	}
	return o.Weighting.Validate()
}

// Phase is a step of the ingestion state machine.
type Phase string

const (
	PhaseUninitialized     Phase = "uninitialized"
	PhaseCollectionCreated Phase = "collection_created"
	PhaseLoading           Phase = "loading"
	PhaseUploading         Phase = "uploading"
	PhaseReady             Phase = "ready"
	PhaseFailed            Phase = "failed"
)

// Status values of a finished run.
const (
	StatusReady   = "ready"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Report summarizes a run.
type Report struct {
	RunID       string        `json:"run_id"`
	Collection  string        `json:"collection"`
	Status      string        `json:"status"`
	Fingerprint string        `json:"fingerprint"`
	Points      int           `json:"points"`
	Batches     int           `json:"batches"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

// Runner executes ingestion runs. Phase is safe to read concurrently.
type Runner struct {
	deps Deps
	opts Options
	log  *slog.Logger
	met  runnerMetrics

	mu    sync.Mutex
	phase Phase
}

type runnerMetrics struct {
	reg       *metrics.Registry
	points    *metrics.Counter
	batches   *metrics.Counter
	embedDur  *metrics.Histogram
	upsertDur *metrics.Histogram
	runDur    *metrics.Histogram
	loaded    *metrics.Gauge
}

func newRunnerMetrics(reg *metrics.Registry) runnerMetrics {
	if reg == nil {
		reg = metrics.New()
	}
	return runnerMetrics{
		reg:       reg,
		points:    reg.Counter("cinesearch_ingest_points_total", "Points acknowledged by the vector store"),
		batches:   reg.Counter("cinesearch_ingest_batches_total", "Upsert batches acknowledged"),
		embedDur:  reg.Histogram("cinesearch_ingest_embed_duration_seconds", "Per-document embedding latency", nil),
		upsertDur: reg.Histogram("cinesearch_ingest_upsert_duration_seconds", "Per-batch upsert latency", nil),
		runDur:    reg.Histogram("cinesearch_ingest_run_duration_seconds", "Whole ingestion run duration", nil),
		loaded:    reg.Gauge("cinesearch_ingest_last_run_points", "Points written by the last successful run"),
	}
}

func (m runnerMetrics) errors(phase Phase) *metrics.Counter {
	return m.reg.Counter(metrics.WithLabels("cinesearch_ingest_errors_total", "stage", string(phase)), "Ingestion failures by stage")
}

// NewRunner creates a Runner. Zero BatchSize, Dimension, CastLimit, IDPolicy
// and Weighting take their defaults.
func NewRunner(deps Deps, opts Options) *Runner {
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Dimension == 0 {
		opts.Dimension = embedding.Dimension
	}
	if opts.CastLimit == 0 {
		opts.CastLimit = catalog.DefaultCastLimit
	}
	if opts.IDPolicy == "" {
		opts.IDPolicy = domain.IDOrdinal
	}
	if opts.Weighting == nil {
		opts.Weighting = Plain
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		deps:  deps,
		opts:  opts,
		log:   log.With("component", "ingest", "collection", opts.Collection),
		met:   newRunnerMetrics(deps.Metrics),
		phase: PhaseUninitialized,
	}
}

// Phase returns the current phase.
func (r *Runner) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Runner) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
	r.log.Debug("ingest.phase", "phase", p)
}

// Fingerprint identifies the source files together with every option that
// changes the stored points.
func (r *Runner) Fingerprint() (string, error) {
	o := r.opts
	return catalog.Digest(o.Source,
		o.Collection,
		o.Model,
		strconv.Itoa(o.Dimension),
		string(o.IDPolicy),
		o.Weighting.String(),
		strconv.Itoa(o.CastLimit),
	)
}

// loaded carries movies and their points through the pipeline.
type loaded struct {
	movies []domain.Movie
	points []semantic.Point
}

// Run executes one ingestion. Failures are returned and also recorded in the
// report.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	rep := Report{RunID: uuid.NewString(), Collection: r.opts.Collection}
	log := r.log.With("run_id", rep.RunID)

	fail := func(phase Phase, err error) (Report, error) {
		r.setPhase(PhaseFailed)
		r.met.errors(phase).Inc()
		rep.Status = StatusFailed
		rep.Err = err
		rep.Duration = time.Since(start)
		r.met.runDur.Since(start)
		log.Error("ingest.failed", "phase", phase, "error", err, "batches", rep.Batches)
		r.notifyDone(ctx, rep)
		return rep, err
	}

	if err := r.opts.Validate(); err != nil {
		return fail(PhaseUninitialized, fmt.Errorf("ingest: options: %w", err))
	}
	fp, err := r.Fingerprint()
	if err != nil {
		return fail(PhaseUninitialized, fmt.Errorf("ingest: fingerprint: %w", err))
	}
	rep.Fingerprint = fp

	skip, err := r.shouldSkip(ctx, fp)
	if err != nil {
		return fail(PhaseUninitialized, err)
	}
	if skip {
		r.setPhase(PhaseReady)
		rep.Status = StatusSkipped
		rep.Duration = time.Since(start)
		log.Info("ingest.skipped", "reason", "collection matches last completed run", "fingerprint", fp)
		r.notifyDone(ctx, rep)
		return rep, nil
	}

	if r.deps.Markers != nil {
		if err := r.deps.Markers.DeleteMarker(ctx, r.opts.Collection); err != nil {
			return fail(PhaseUninitialized, fmt.Errorf("ingest: clear marker: %w", err))
		}
	}

	if err := r.prepareCollection(ctx, log); err != nil {
		return fail(PhaseUninitialized, err)
	}
	r.setPhase(PhaseCollectionCreated)

	r.setPhase(PhaseLoading)
	load := fn.TracedStage("ingest.load", fn.FuncStage(r.load),
		attribute.String("movies", r.opts.Source.MoviesPath))
	read := fn.TapStage(func(_ context.Context, raw []domain.RawMovie) {
		log.Debug("ingest.read", "rows", len(raw), "credits", r.opts.Source.CreditsPath != "")
	})
	prepare := fn.TracedStage("ingest.prepare", fn.FuncStage(r.prepare))
	data, err := fn.Then(fn.Then(load, read), prepare)(ctx, r.opts.Source).Unwrap()
	if err != nil {
		return fail(PhaseLoading, err)
	}
	log.Info("ingest.loaded", "movies", len(data.movies), "batches", BatchCount(len(data.points), r.opts.BatchSize))

	r.setPhase(PhaseUploading)
	batcher := Batcher{
		Size:  r.opts.BatchSize,
		Retry: r.retryFunc(),
		OnBatch: func(ctx context.Context, b Batch) {
			rep.Batches = b.Number
			rep.Points = b.End
			r.afterBatch(ctx, log, rep.RunID, b, data.movies[b.Start:b.End])
		},
	}
	upload := fn.TracedStage("ingest.upload", fn.FuncStage(func(ctx context.Context, pts []semantic.Point) (int, error) {
		return batcher.Upload(ctx, r.deps.Store, pts)
	}), attribute.Int("points", len(data.points)))
	if _, err := upload(ctx, data.points).Unwrap(); err != nil {
		return fail(PhaseUploading, err)
	}

	rep.Status = StatusReady
	rep.Duration = time.Since(start)
	if r.deps.Markers != nil {
		err := r.deps.Markers.PutMarker(ctx, state.Marker{
			Collection:  r.opts.Collection,
			Fingerprint: fp,
			RunID:       rep.RunID,
			Points:      rep.Points,
			Batches:     rep.Batches,
			CompletedAt: time.Now().UTC(),
		})
		if err != nil {
			return fail(PhaseUploading, fmt.Errorf("ingest: write marker: %w", err))
		}
	}
	r.setPhase(PhaseReady)
	r.met.runDur.Since(start)
	r.met.loaded.Set(int64(rep.Points))
	log.Info("ingest.done", "points", rep.Points, "batches", rep.Batches, "duration", rep.Duration)
	r.notifyDone(ctx, rep)
	return rep, nil
}

func (r *Runner) shouldSkip(ctx context.Context, fp string) (bool, error) {
	if r.opts.Force || r.deps.Markers == nil {
		return false, nil
	}
	m, found, err := r.deps.Markers.Marker(ctx, r.opts.Collection)
	if err != nil {
		return false, fmt.Errorf("ingest: read marker: %w", err)
	}
	if !found || m.Fingerprint != fp {
		return false, nil
	}
	exists, err := r.deps.Store.CollectionExists(ctx)
	if err != nil {
		return false, fmt.Errorf("ingest: %w", err)
	}
	if !exists {
		return false, nil
	}
	// The marker is local; the collection may have been emptied or rebuilt
	// elsewhere since it was written.
	n, err := r.deps.Store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("ingest: %w", err)
	}
	if n != uint64(m.Points) {
		r.log.Info("ingest.stale_marker", "marker_points", m.Points, "collection_points", n)
		return false, nil
	}
	return true, nil
}

func (r *Runner) prepareCollection(ctx context.Context, log *slog.Logger) error {
	if r.opts.Recreate {
		if err := r.deps.Store.RecreateCollection(ctx, r.opts.Dimension); err != nil {
			return fmt.Errorf("ingest: recreate collection: %w", err)
		}
		log.Info("ingest.collection", "action", "recreated", "dims", r.opts.Dimension)
		return nil
	}
	created, err := r.deps.Store.EnsureCollection(ctx, r.opts.Dimension)
	if err != nil {
		return fmt.Errorf("ingest: ensure collection: %w", err)
	}
	if created {
		log.Info("ingest.collection", "action", "created", "dims", r.opts.Dimension)
	}
	return nil
}

func (r *Runner) load(_ context.Context, src catalog.Source) ([]domain.RawMovie, error) {
	raw, err := catalog.Load(src)
	if err != nil {
		return nil, fmt.Errorf("ingest: load: %w", err)
	}
	return raw, nil
}

// prepare validates ids up front, then embeds every movie in row order.
func (r *Runner) prepare(ctx context.Context, raw []domain.RawMovie) (loaded, error) {
	if r.opts.IDPolicy == domain.IDExternal {
		for i, m := range raw {
			if err := domain.ValidateExternalID(m); err != nil {
				return loaded{}, fmt.Errorf("ingest: row %d: %w", i, err)
			}
		}
	}

	movies := fn.Map(raw, func(rm domain.RawMovie) domain.Movie { return catalog.Normalize(rm, r.opts.CastLimit) })
	vectors := make([][]float32, len(movies))
	for i, m := range movies {
		if err := ctx.Err(); err != nil {
			return loaded{}, err
		}
		t := time.Now()
		vec, err := r.deps.Embedder.Embed(ctx, Compose(m, r.opts.Weighting))
		r.met.embedDur.Since(t)
		if err != nil {
			return loaded{}, fmt.Errorf("ingest: embed row %d (%q): %w", i, m.Title, err)
		}
		vectors[i] = vec
	}

	points, err := fn.Collect(fn.MapIndex(movies, func(i int, m domain.Movie) fn.Result[semantic.Point] {
		p, err := BuildPoint(m, i, vectors[i], r.opts.IDPolicy)
		if err != nil {
			err = fmt.Errorf("ingest: row %d: %w", i, err)
		}
		return fn.FromPair(p, err)
	})).Unwrap()
	if err != nil {
		return loaded{}, err
	}
	return loaded{movies: movies, points: points}, nil
}

func (r *Runner) retryFunc() RetryFunc {
	if r.opts.Retry.MaxAttempts <= 1 {
		return timed(r.met.upsertDur, SubmitOnce)
	}
	return timed(r.met.upsertDur, RetryWith(r.opts.Retry))
}

func timed(h *metrics.Histogram, next RetryFunc) RetryFunc {
	return func(ctx context.Context, b Batch, submit func(context.Context) error) error {
		return next(ctx, b, func(ctx context.Context) error {
			defer h.Since(time.Now())
			return submit(ctx)
		})
	}
}

func (r *Runner) afterBatch(ctx context.Context, log *slog.Logger, runID string, b Batch, movies []domain.Movie) {
	r.met.batches.Inc()
	r.met.points.Add(int64(len(b.Points)))
	log.Info("ingest.batch", "batch", b.Number, "of", b.Total, "points", len(b.Points))

	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.BatchUploaded(ctx, runID, b); err != nil {
			log.Warn("ingest: batch event", "batch", b.Number, "error", err)
		}
	}
	if r.deps.Graph != nil {
		if err := r.deps.Graph.SaveMovies(ctx, movies); err != nil {
			r.met.errors("graph").Inc()
			log.Warn("ingest: catalog graph", "batch", b.Number, "error", err)
		}
	}
}

func (r *Runner) notifyDone(ctx context.Context, rep Report) {
	if r.deps.Notifier == nil {
		return
	}
	if err := r.deps.Notifier.RunFinished(ctx, rep); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn("ingest: done event", "run_id", rep.RunID, "error", err)
	}
}
