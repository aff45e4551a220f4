// Package search answers free-text queries: it embeds the query, finds the
// nearest movies in the vector store and formats them for display.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/WessleyAI/cinesearch/engine/domain"
	"github.com/WessleyAI/cinesearch/engine/embedding"
	"github.com/WessleyAI/cinesearch/engine/semantic"
	"github.com/WessleyAI/cinesearch/pkg/fn"
	"github.com/WessleyAI/cinesearch/pkg/metrics"
	"github.com/WessleyAI/cinesearch/pkg/resilience"
)

// DefaultLimit is the number of results when the caller does not ask.
const DefaultLimit = 10

// Searcher abstracts the vector store.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]semantic.Hit, error)
}

// Options configures the Service.
type Options struct {
	Limit   int
	Timeout time.Duration
	// Breaker guards embed+search. Nil creates one with DefaultBreakerOpts.
	Breaker *resilience.Breaker
}

// DefaultOptions returns the query defaults.
func DefaultOptions() Options {
	return Options{Limit: DefaultLimit, Timeout: 10 * time.Second}
}

// Row is one displayable result.
type Row struct {
	ID          uint64   `json:"id"`
	Score       float32  `json:"score"`
	Title       string   `json:"title"`
	Year        string   `json:"year"`
	Genres      string   `json:"genres"`
	GenreList   []string `json:"genre_list"`
	Rating      float64  `json:"rating"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Description string   `json:"description"`
}

// ScoreText renders the similarity with three decimals.
func (r Row) ScoreText() string { return fmt.Sprintf("%.3f", r.Score) }

// RatingText renders the rating out of ten.
func (r Row) RatingText() string { return fmt.Sprintf("%.1f/10", r.Rating) }

// NewRow formats a hit. Year is "(YYYY)" from the first four characters of
// the release date, or empty when there is none.
func NewRow(h semantic.Hit) Row {
	p := h.Payload
	row := Row{
		ID:          h.ID,
		Score:       h.Score,
		Title:       p.Title,
		Genres:      strings.Join(p.Genres, ", "),
		GenreList:   p.Genres,
		Rating:      p.Rating,
		Description: p.Description,
	}
	if row.GenreList == nil {
		row.GenreList = []string{}
	}
	if p.HasReleaseDate() {
		d := *p.ReleaseDate
		row.ReleaseDate = d
		if len(d) >= 4 {
			row.Year = "(" + d[:4] + ")"
		} else {
			row.Year = "(" + d + ")"
		}
	}
	return row
}

// Service runs queries. Safe for concurrent use.
type Service struct {
	query  fn.Stage[request, []Row]
	opts   Options
	logger *slog.Logger

	queries *metrics.Counter
	empty   *metrics.Counter
	errs    *metrics.Counter
	latency *metrics.Histogram
}

// New creates a Service. reg and logger may be nil.
func New(emb embedding.Embedder, store Searcher, opts Options, reg *metrics.Registry, logger *slog.Logger) *Service {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if reg == nil {
		reg = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "search")
	if opts.Breaker == nil {
		bo := resilience.DefaultBreakerOpts
		bo.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
		bo.OnStateChange = func(from, to resilience.State) {
			logger.Warn("search breaker", "from", from.String(), "to", to.String())
		}
		opts.Breaker = resilience.NewBreaker(bo)
	}

	s := &Service{
		opts:    opts,
		logger:  logger,
		queries: reg.Counter("cinesearch_search_queries_total", "Non-empty search queries"),
		empty:   reg.Counter("cinesearch_search_empty_total", "Blank queries ignored"),
		errs:    reg.Counter("cinesearch_search_errors_total", "Failed search queries"),
		latency: reg.Histogram("cinesearch_search_duration_seconds", "Search latency including embedding", nil),
	}

	embed := fn.TracedStage("search.embed", fn.FuncStage(func(ctx context.Context, r request) (request, error) {
		vec, err := emb.Embed(ctx, r.text)
		if err != nil {
			return r, fmt.Errorf("search: embed query: %w", err)
		}
		r.vector = vec
		return r, nil
	}))
	find := fn.TracedStage("search.vector", fn.FuncStage(func(ctx context.Context, r request) ([]semantic.Hit, error) {
		hits, err := store.Search(ctx, r.vector, r.limit)
		if err != nil {
			return nil, fmt.Errorf("search: vector search: %w", err)
		}
		return hits, nil
	}))
	rows := fn.MapStage(func(hits []semantic.Hit) []Row { return fn.Map(hits, NewRow) })
	s.query = resilience.BreakerStage(opts.Breaker, fn.Then(fn.Then(embed, find), rows))
	return s
}

type request struct {
	text   string
	limit  int
	vector []float32
}

// Limit returns the default result count.
func (s *Service) Limit() int { return s.opts.Limit }

// Query returns up to limit rows for q in store order. A blank q returns no
// rows and makes no calls. limit 0 uses the default.
func (s *Service) Query(ctx context.Context, q string, limit int) ([]Row, error) {
	q, err := domain.NormalizeQuery(q)
	if errors.Is(err, domain.ErrEmptyQuery) {
		s.empty.Inc()
		return nil, nil
	}
	if limit == 0 {
		limit = s.opts.Limit
	}
	if err := domain.ValidateLimit(limit); err != nil {
		return nil, err
	}

	s.queries.Inc()
	start := time.Now()
	defer s.latency.Since(start)

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	rows, err := fn.TracedStage("search.query", s.query, attribute.Int("limit", limit))(ctx, request{text: q, limit: limit}).Unwrap()
	if err != nil {
		s.errs.Inc()
		s.logger.Warn("search failed", "query_len", len(q), "limit", limit, "error", err)
		return nil, err
	}
	s.logger.Debug("search done", "query_len", len(q), "hits", len(rows), "duration", time.Since(start))
	return rows, nil
}
