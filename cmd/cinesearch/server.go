package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/WessleyAI/cinesearch/engine/domain"
	"github.com/WessleyAI/cinesearch/engine/graph"
	"github.com/WessleyAI/cinesearch/engine/search"
	"github.com/WessleyAI/cinesearch/pkg/fn"
	"github.com/WessleyAI/cinesearch/pkg/metrics"
	"github.com/WessleyAI/cinesearch/pkg/mid"
	"github.com/WessleyAI/cinesearch/pkg/repo"
)

//go:embed web/index.html
var webFS embed.FS

var indexTmpl = template.Must(template.ParseFS(webFS, "web/index.html"))

// querier is the search service as the handlers use it.
type querier interface {
	Query(ctx context.Context, q string, limit int) ([]search.Row, error)
	Limit() int
}

// healthChecker reports the vector store version.
type healthChecker interface {
	Health(ctx context.Context) (string, error)
}

// catalogReader is the Neo4j catalog graph as the browse handlers use it.
type catalogReader interface {
	Movie(ctx context.Context, id int64) (graph.MovieNode, error)
	Movies(ctx context.Context, opts repo.ListOpts) ([]graph.MovieNode, error)
	Genres(ctx context.Context, opts repo.ListOpts) ([]graph.GenreNode, error)
}

type server struct {
	svc    querier
	health healthChecker
	movies catalogReader
	reg    *metrics.Registry
	log    *slog.Logger
}

func newServer(svc querier, health healthChecker, reg *metrics.Registry, log *slog.Logger) *server {
	return &server{svc: svc, health: health, reg: reg, log: log}
}

// withCatalog enables the browse endpoints. Without it they answer 503.
func (s *server) withCatalog(c catalogReader) *server {
	s.movies = c
	return s
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/movies", s.handleMovies).Methods(http.MethodGet)
	r.HandleFunc("/api/movies/{id:[0-9]+}", s.handleMovie).Methods(http.MethodGet)
	r.HandleFunc("/api/genres", s.handleGenres).Methods(http.MethodGet)
	r.Handle("/metrics", s.reg.Handler()).Methods(http.MethodGet)

	return mid.Chain(r,
		mid.Recover(s.log),
		mid.RequestID(),
		mid.Logger(s.log),
		mid.Metrics(s.reg),
		mid.OTel("cinesearch"),
	)
}

// parseLimit reads the limit parameter; empty means the service default.
func parseLimit(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.NewValidationError("limit", v, domain.ErrInvalidLimit)
	}
	if err := domain.ValidateLimit(n); err != nil {
		return 0, err
	}
	return n, nil
}

type indexPage struct {
	Query string
	Limit int
	Rows  []search.Row
	Error string
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := indexPage{Query: strings.TrimSpace(r.URL.Query().Get("q")), Limit: s.svc.Limit()}
	status := http.StatusOK

	limit, err := parseLimit(r)
	switch {
	case err != nil:
		page.Error = err.Error()
		status = http.StatusBadRequest
	case page.Query != "":
		if limit > 0 {
			page.Limit = limit
		}
		page.Rows, err = s.svc.Query(r.Context(), page.Query, page.Limit)
		if err != nil {
			page.Error = "the search backend is unavailable, try again shortly"
			status = http.StatusBadGateway
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTmpl.Execute(w, page); err != nil {
		s.log.Error("render index", "error", err, "request_id", mid.RequestIDFrom(r.Context()))
	}
}

type searchResponse struct {
	Query   string       `json:"query"`
	Limit   int          `json:"limit"`
	Results []search.Row `json:"results"`
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if limit == 0 {
		limit = s.svc.Limit()
	}

	rows, err := s.svc.Query(r.Context(), q, limit)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrInvalidLimit) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	if rows == nil {
		rows = []search.Row{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q, Limit: limit, Results: rows})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	version, err := s.health.Health(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "qdrant": version})
}

var errNoCatalog = errors.New("catalog graph is not configured")

// parsePage reads offset and limit for the browse endpoints.
func parsePage(r *http.Request) (repo.ListOpts, error) {
	var opts repo.ListOpts
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"offset", &opts.Offset}, {"limit", &opts.Limit}} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return repo.ListOpts{}, fmt.Errorf("%s must be a non-negative integer, got %q", p.name, v)
		}
		*p.dst = n
	}
	if opts.Limit > repo.DefaultListLimit {
		opts.Limit = repo.DefaultListLimit
	}
	return opts, nil
}

func (s *server) handleMovies(w http.ResponseWriter, r *http.Request) {
	if s.movies == nil {
		writeError(w, http.StatusServiceUnavailable, errNoCatalog)
		return
	}
	opts, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	movies, err := s.movies.Movies(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if movies == nil {
		movies = []graph.MovieNode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"offset": opts.Offset, "movies": movies})
}

func (s *server) handleMovie(w http.ResponseWriter, r *http.Request) {
	if s.movies == nil {
		writeError(w, http.StatusServiceUnavailable, errNoCatalog)
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := s.movies.Movie(r.Context(), id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
	default:
		writeJSON(w, http.StatusOK, m)
	}
}

func (s *server) handleGenres(w http.ResponseWriter, r *http.Request) {
	if s.movies == nil {
		writeError(w, http.StatusServiceUnavailable, errNoCatalog)
		return
	}
	opts, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	genres, err := s.movies.Genres(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	names := fn.Map(genres, func(g graph.GenreNode) string { return g.Name })
	writeJSON(w, http.StatusOK, map[string]any{"genres": names})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
