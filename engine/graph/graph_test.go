package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/WessleyAI/cinesearch/engine/domain"
	"github.com/WessleyAI/cinesearch/pkg/repo"
)

type mockResult struct {
	records []*neo4j.Record
	idx     int
}

func newMockResult(records ...*neo4j.Record) *mockResult { return &mockResult{records: records} }

func (m *mockResult) Next(context.Context) bool {
	if m.idx < len(m.records) {
		m.idx++
		return true
	}
	return false
}

func (m *mockResult) Record() *neo4j.Record { return m.records[m.idx-1] }
func (m *mockResult) Err() error            { return nil }

// trackingSession records all cypher and routes writes to itself.
type trackingSession struct {
	queries []string
	params  []map[string]any
	result  *mockResult
	runErr  error
	writes  int
}

func (s *trackingSession) Run(_ context.Context, cypher string, params map[string]any) (repo.Result, error) {
	s.queries = append(s.queries, cypher)
	s.params = append(s.params, params)
	if s.runErr != nil {
		return nil, s.runErr
	}
	if s.result != nil {
		return s.result, nil
	}
	return newMockResult(), nil
}

func (s *trackingSession) ExecuteWrite(ctx context.Context, work func(repo.Runner) (any, error)) (any, error) {
	s.writes++
	return work(s)
}

func (s *trackingSession) Close(context.Context) error { return nil }

type trackingOpener struct{ sess *trackingSession }

func (o trackingOpener) OpenSession(context.Context) repo.Session { return o.sess }

func newTrackingGraph() (*CatalogGraph, *trackingSession) {
	sess := &trackingSession{}
	return NewWithOpener(trackingOpener{sess}, nil), sess
}

func TestSaveMovies(t *testing.T) {
	g, sess := newTrackingGraph()
	rating := 7.2
	movies := []domain.Movie{
		{
			RawMovie:   domain.RawMovie{ID: 19995, HasID: true, Title: "Avatar", VoteAverage: &rating, ReleaseDate: "2009-12-10"},
			GenreNames: []string{"Action", "Science Fiction"},
			Actors:     []string{"Sam Worthington"},
		},
		{RawMovie: domain.RawMovie{Title: "no id"}},
		{RawMovie: domain.RawMovie{ID: 42, HasID: true, Title: "Nova"}, Actors: []string{"Ada", "Ada"}},
	}
	if err := g.SaveMovies(context.Background(), movies); err != nil {
		t.Fatalf("SaveMovies: %v", err)
	}
	if sess.writes != 1 || len(sess.queries) != 1 {
		t.Fatalf("writes=%d queries=%d", sess.writes, len(sess.queries))
	}
	q := sess.queries[0]
	for _, want := range []string{"UNWIND $rows", "MERGE (m:Movie {id: row.id})", ":IN_GENRE", ":APPEARS_IN"} {
		if !strings.Contains(q, want) {
			t.Errorf("cypher missing %q", want)
		}
	}

	rows := sess.params[0]["rows"].([]map[string]any)
	if len(rows) != 2 {
		t.Fatalf("movies without id must be skipped, rows = %d", len(rows))
	}
	if rows[0]["id"] != int64(19995) || rows[0]["rating"] != 7.2 || rows[0]["release_date"] != "2009-12-10" {
		t.Errorf("avatar row = %v", rows[0])
	}
	if rows[1]["rating"] != 0.0 || rows[1]["release_date"] != nil {
		t.Errorf("nova row = %v", rows[1])
	}
	if genres, ok := rows[1]["genres"].([]string); !ok || genres == nil {
		t.Errorf("genres must be a non-nil list, got %#v", rows[1]["genres"])
	}
	if actors := rows[1]["actors"].([]string); len(actors) != 1 || actors[0] != "Ada" {
		t.Errorf("repeated actors should merge once, got %v", actors)
	}
}

func TestSaveMoviesNothingToWrite(t *testing.T) {
	g, sess := newTrackingGraph()
	if err := g.SaveMovies(context.Background(), []domain.Movie{{RawMovie: domain.RawMovie{Title: "x"}}}); err != nil {
		t.Fatal(err)
	}
	if sess.writes != 0 {
		t.Fatal("no session expected for an empty write")
	}
}

func TestSaveMoviesError(t *testing.T) {
	g, sess := newTrackingGraph()
	sess.runErr = errors.New("neo4j unavailable")
	err := g.SaveMovies(context.Background(), []domain.Movie{{RawMovie: domain.RawMovie{ID: 1, HasID: true}}})
	if !errors.Is(err, sess.runErr) {
		t.Fatalf("expected wrapped run error, got %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	g, sess := newTrackingGraph()
	if err := g.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sess.queries) != len(schema) {
		t.Fatalf("queries = %d", len(sess.queries))
	}
	for _, q := range sess.queries {
		if !strings.Contains(q, "IF NOT EXISTS") {
			t.Errorf("schema statement must be idempotent: %q", q)
		}
	}
}

func nodeRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{Values: []any{dbtype.Node{Labels: []string{LabelMovie}, Props: props}}, Keys: []string{"n"}}
}

func TestMovie(t *testing.T) {
	g, sess := newTrackingGraph()
	sess.result = newMockResult(nodeRecord(map[string]any{
		"id": int64(42), "title": "Nova", "rating": 6.5, "release_date": "2001-04-01",
	}))
	m, err := g.Movie(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != 42 || m.Title != "Nova" || m.Rating != 6.5 || m.ReleaseDate != "2001-04-01" {
		t.Fatalf("movie = %+v", m)
	}
}

func TestMovieNotFound(t *testing.T) {
	g, _ := newTrackingGraph()
	if _, err := g.Movie(context.Background(), 1); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMovies(t *testing.T) {
	g, sess := newTrackingGraph()
	sess.result = newMockResult(
		nodeRecord(map[string]any{"id": int64(1), "title": "a"}),
		nodeRecord(map[string]any{"id": int64(2), "title": "b", "rating": int64(8)}),
	)
	ms, err := g.Movies(context.Background(), repo.ListOpts{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 || ms[1].Rating != 8 || ms[0].ReleaseDate != "" {
		t.Fatalf("movies = %+v", ms)
	}
}

func TestMovieCount(t *testing.T) {
	g, sess := newTrackingGraph()
	sess.result = newMockResult(&neo4j.Record{Values: []any{int64(3)}, Keys: []string{"c"}})
	n, err := g.MovieCount(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestGenres(t *testing.T) {
	g, sess := newTrackingGraph()
	sess.result = newMockResult(
		&neo4j.Record{Values: []any{dbtype.Node{Labels: []string{LabelGenre}, Props: map[string]any{"name": "Drama"}}}, Keys: []string{"n"}},
		&neo4j.Record{Values: []any{dbtype.Node{Labels: []string{LabelGenre}, Props: map[string]any{"name": "Sci-Fi"}}}, Keys: []string{"n"}},
	)
	genres, err := g.Genres(context.Background(), repo.ListOpts{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(genres) != 2 || genres[0].Name != "Drama" || genres[1].Name != "Sci-Fi" {
		t.Fatalf("genres = %+v", genres)
	}
	if q := sess.queries[0]; !strings.Contains(q, "MATCH (n:Genre)") || !strings.Contains(q, "ORDER BY n.name") {
		t.Fatalf("genres must be keyed and ordered by name: %q", q)
	}
}
