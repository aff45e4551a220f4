package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/cinesearch/engine/graph"
	"github.com/WessleyAI/cinesearch/engine/state"
	"github.com/WessleyAI/cinesearch/pkg/fn"
	"github.com/WessleyAI/cinesearch/pkg/natsutil"
	"github.com/WessleyAI/cinesearch/pkg/repo"
)

// checkStep is one connectivity check. Optional steps report but never fail
// the command.
type checkStep struct {
	name     string
	optional bool
	run      func(ctx context.Context) (string, error)
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check connectivity to Qdrant, Ollama and the optional services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, err := a.checks(cmd.Context())
			if err != nil {
				return err
			}
			return runChecks(cmd.Context(), cmd.OutOrStdout(), steps)
		},
	}
}

func (a *app) checks(ctx context.Context) ([]checkStep, error) {
	store, err := a.vectorStore()
	if err != nil {
		return nil, err
	}
	client := a.ollamaClient()

	steps := []checkStep{
		{name: "qdrant", run: func(ctx context.Context) (string, error) {
			v, err := store.Health(ctx)
			if err != nil {
				return "", err
			}
			return "version " + v, nil
		}},
		{name: "collection", optional: true, run: func(ctx context.Context) (string, error) {
			exists, err := store.CollectionExists(ctx)
			if err != nil {
				return "", err
			}
			if !exists {
				return "", fmt.Errorf("collection %s not found, run ingest", store.Collection())
			}
			n, err := store.Count(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s holds %d points", store.Collection(), n), nil
		}},
		{name: "ollama", run: func(ctx context.Context) (string, error) {
			if err := client.Ping(ctx); err != nil {
				return "", err
			}
			return a.cfg.Ollama.URL, nil
		}},
		{name: "model", run: func(ctx context.Context) (string, error) {
			ok, err := client.HasModel(ctx)
			if err != nil {
				return "", err
			}
			if !ok {
				return "", fmt.Errorf("model %s not pulled (ollama pull %s)", client.Model(), client.Model())
			}
			return client.Model(), nil
		}},
		{name: "state", optional: true, run: func(ctx context.Context) (string, error) {
			s, err := a.stateStore()
			if err != nil {
				return "", err
			}
			return stateSummary(ctx, s, a.cfg.Qdrant.Collection)
		}},
	}

	if url := a.cfg.NATS.URL; url != "" {
		steps = append(steps, checkStep{name: "nats", optional: true, run: func(context.Context) (string, error) {
			nc, err := natsutil.Connect(url, "cinesearch-check")
			if err != nil {
				return "", err
			}
			defer nc.Close()
			return nc.ConnectedUrl(), nc.Flush()
		}})
	}
	if a.cfg.Neo4j.URL != "" {
		steps = append(steps, checkStep{name: "neo4j", optional: true, run: func(ctx context.Context) (string, error) {
			g, err := a.catalogGraph(ctx)
			if err != nil {
				return "", err
			}
			return catalogSummary(ctx, g)
		}})
	}
	return steps, nil
}

// stateSummary describes the state file and the last run recorded for
// collection.
func stateSummary(ctx context.Context, s *state.Store, collection string) (string, error) {
	cached, err := s.EmbeddingCount()
	if err != nil {
		return "", err
	}
	out := fmt.Sprintf("%s, %d cached embeddings", s.Path(), cached)
	m, ok, err := s.Marker(ctx, collection)
	if err != nil {
		return "", err
	}
	if !ok {
		return out + ", no completed run", nil
	}
	return fmt.Sprintf("%s, last run %s: %d points at %s", out, m.RunID, m.Points, m.CompletedAt.Format(time.RFC3339)), nil
}

type catalogStats interface {
	MovieCount(ctx context.Context) (int64, error)
	Movies(ctx context.Context, opts repo.ListOpts) ([]graph.MovieNode, error)
	Genres(ctx context.Context, opts repo.ListOpts) ([]graph.GenreNode, error)
}

// catalogSummary reports the graph size and a few sample titles.
func catalogSummary(ctx context.Context, c catalogStats) (string, error) {
	n, err := c.MovieCount(ctx)
	if err != nil {
		return "", err
	}
	genres, err := c.Genres(ctx, repo.ListOpts{Limit: repo.DefaultListLimit})
	if err != nil {
		return "", err
	}
	sample, err := c.Movies(ctx, repo.ListOpts{Limit: 3})
	if err != nil {
		return "", err
	}
	out := fmt.Sprintf("%d movies, %d genres in graph", n, len(genres))
	if len(sample) > 0 {
		titles := fn.Map(sample, func(m graph.MovieNode) string { return m.Title })
		out += " (" + strings.Join(titles, ", ") + ")"
	}
	return out, nil
}

// runChecks prints one line per step and fails when a required step fails.
func runChecks(ctx context.Context, w io.Writer, steps []checkStep) error {
	failed := 0
	for _, s := range steps {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		detail, err := s.run(sctx)
		cancel()
		switch {
		case err == nil:
			fmt.Fprintf(w, "ok    %-10s %s\n", s.name, detail)
		case s.optional:
			fmt.Fprintf(w, "warn  %-10s %v\n", s.name, err)
		default:
			fmt.Fprintf(w, "FAIL  %-10s %v\n", s.name, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}
