package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/cinesearch/engine/domain"
	"github.com/WessleyAI/cinesearch/pkg/fn"
	"github.com/WessleyAI/cinesearch/pkg/repo"
)

var schema = []string{
	`CREATE CONSTRAINT movie_id IF NOT EXISTS FOR (m:Movie) REQUIRE m.id IS UNIQUE`,
	`CREATE CONSTRAINT genre_name IF NOT EXISTS FOR (g:Genre) REQUIRE g.name IS UNIQUE`,
	`CREATE CONSTRAINT person_name IF NOT EXISTS FOR (p:Person) REQUIRE p.name IS UNIQUE`,
}

const saveMoviesCypher = `UNWIND $rows AS row
MERGE (m:Movie {id: row.id})
SET m.title = row.title, m.rating = row.rating, m.release_date = row.release_date
WITH m, row
FOREACH (name IN row.genres |
  MERGE (g:Genre {name: name})
  MERGE (m)-[:IN_GENRE]->(g))
FOREACH (name IN row.actors |
  MERGE (p:Person {name: name})
  MERGE (p)-[:APPEARS_IN]->(m))`

// CatalogGraph writes and reads the catalog graph. Safe for concurrent use.
type CatalogGraph struct {
	opener repo.Opener
	movies *repo.Neo4jRepo[MovieNode, int64]
	genres *repo.Neo4jRepo[GenreNode, string]
	log    *slog.Logger
}

// New creates a CatalogGraph on driver.
func New(driver neo4j.DriverWithContext, log *slog.Logger) *CatalogGraph {
	return NewWithOpener(repo.DriverOpener(driver), log)
}

// NewWithOpener creates a CatalogGraph over any session source.
func NewWithOpener(opener repo.Opener, log *slog.Logger) *CatalogGraph {
	if log == nil {
		log = slog.Default()
	}
	return &CatalogGraph{
		opener: opener,
		movies: repo.NewNeo4jRepo[MovieNode, int64](opener, LabelMovie, movieFromRecord),
		genres: repo.NewNeo4jRepo[GenreNode, string](opener, LabelGenre, genreFromRecord, repo.WithIDKey[GenreNode, string]("name")),
		log:    log.With("component", "graph"),
	}
}

// EnsureSchema creates the uniqueness constraints MERGE relies on.
func (g *CatalogGraph) EnsureSchema(ctx context.Context) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	for _, stmt := range schema {
		res, err := sess.Run(ctx, stmt, nil)
		if err == nil {
			err = repo.Drain(ctx, res)
		}
		if err != nil {
			return fmt.Errorf("graph: schema: %w", err)
		}
	}
	return nil
}

// SaveMovies merges movies with their genres and actors in one write
// transaction. Movies without a dataset id are skipped.
func (g *CatalogGraph) SaveMovies(ctx context.Context, movies []domain.Movie) error {
	keyed := fn.Filter(movies, func(m domain.Movie) bool { return m.HasID && m.ID >= 0 })
	rows := fn.Map(keyed, movieRow)
	if skipped := len(movies) - len(rows); skipped > 0 {
		g.log.Debug("graph: skipping movies without id", "skipped", skipped)
	}
	if len(rows) == 0 {
		return nil
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx repo.Runner) (any, error) {
		res, err := tx.Run(ctx, saveMoviesCypher, map[string]any{"rows": rows})
		if err != nil {
			return nil, err
		}
		return nil, repo.Drain(ctx, res)
	})
	if err != nil {
		return fmt.Errorf("graph: save %d movies: %w", len(rows), err)
	}
	return nil
}

// Movie returns the Movie node with the dataset id.
func (g *CatalogGraph) Movie(ctx context.Context, id int64) (MovieNode, error) {
	return g.movies.Get(ctx, id)
}

// Movies lists Movie nodes ordered by id.
func (g *CatalogGraph) Movies(ctx context.Context, opts repo.ListOpts) ([]MovieNode, error) {
	return g.movies.List(ctx, opts)
}

// MovieCount returns the number of Movie nodes.
func (g *CatalogGraph) MovieCount(ctx context.Context) (int64, error) {
	return g.movies.Count(ctx)
}

// Genres lists Genre nodes ordered by name.
func (g *CatalogGraph) Genres(ctx context.Context, opts repo.ListOpts) ([]GenreNode, error) {
	return g.genres.List(ctx, opts)
}
