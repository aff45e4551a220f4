//go:build integration

package graph

import (
	"context"
	"os"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/cinesearch/engine/domain"
	"github.com/WessleyAI/cinesearch/pkg/repo"
)

func testDriver(t *testing.T) neo4j.DriverWithContext {
	t.Helper()
	driver, err := neo4j.NewDriverWithContext(envOr("NEO4J_URL", "neo4j://localhost:7687"), neo4j.NoAuth())
	if err != nil {
		t.Fatalf("neo4j connect: %v", err)
	}
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		t.Skipf("neo4j not reachable: %v", err)
	}
	t.Cleanup(func() {
		sess := driver.NewSession(ctx, neo4j.SessionConfig{})
		sess.Run(ctx, "MATCH (n) WHERE n:Movie OR n:Genre OR n:Person DETACH DELETE n", nil)
		sess.Close(ctx)
		driver.Close(ctx)
	})
	return driver
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestNeo4jSaveAndReadMovies(t *testing.T) {
	g := New(testDriver(t), nil)
	ctx := context.Background()
	if err := g.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	movies := []domain.Movie{
		{RawMovie: domain.RawMovie{ID: 1, HasID: true, Title: "Nova"}, GenreNames: []string{"Sci-Fi"}, Actors: []string{"Ada"}},
		{RawMovie: domain.RawMovie{ID: 2, HasID: true, Title: "Drift"}, GenreNames: []string{"Sci-Fi"}},
	}
	for i := 0; i < 2; i++ {
		if err := g.SaveMovies(ctx, movies); err != nil {
			t.Fatalf("SaveMovies: %v", err)
		}
	}

	n, err := g.MovieCount(ctx)
	if err != nil || n != 2 {
		t.Fatalf("count=%d err=%v", n, err)
	}
	m, err := g.Movie(ctx, 1)
	if err != nil || m.Title != "Nova" {
		t.Fatalf("movie=%+v err=%v", m, err)
	}
	list, err := g.Movies(ctx, repo.ListOpts{Limit: 10})
	if err != nil || len(list) != 2 || list[0].ID != 1 {
		t.Fatalf("list=%+v err=%v", list, err)
	}
}
