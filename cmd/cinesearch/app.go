package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/cinesearch/engine/catalog"
	"github.com/WessleyAI/cinesearch/engine/domain"
	"github.com/WessleyAI/cinesearch/engine/embedding"
	"github.com/WessleyAI/cinesearch/engine/events"
	"github.com/WessleyAI/cinesearch/engine/graph"
	"github.com/WessleyAI/cinesearch/engine/ingest"
	"github.com/WessleyAI/cinesearch/engine/semantic"
	"github.com/WessleyAI/cinesearch/engine/state"
	"github.com/WessleyAI/cinesearch/pkg/config"
	"github.com/WessleyAI/cinesearch/pkg/fn"
	"github.com/WessleyAI/cinesearch/pkg/metrics"
	"github.com/WessleyAI/cinesearch/pkg/natsutil"
	"github.com/WessleyAI/cinesearch/pkg/ollama"
	"github.com/WessleyAI/cinesearch/pkg/resilience"
)

// app holds the configuration and the long-lived handles of one command.
type app struct {
	configPath string
	cfg        *config.Config
	log        *slog.Logger
	reg        *metrics.Registry
	closers    []func() error
}

// load reads the configuration with explicitly set flags on top.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, func(c *config.Config) {
		stringFlag(cmd, "mode", &c.Mode)
		stringFlag(cmd, "collection", &c.Qdrant.Collection)
		stringFlag(cmd, "log-level", &c.Logging.Level)
		stringFlag(cmd, "log-format", &c.Logging.Format)
		stringFlag(cmd, "movies", &c.Data.Movies)
		stringFlag(cmd, "credits", &c.Data.Credits)
		stringFlag(cmd, "id-policy", &c.Ingest.IDPolicy)
		stringFlag(cmd, "weighting", &c.Ingest.Weighting)
		stringFlag(cmd, "addr", &c.Server.Addr)
		intFlag(cmd, "batch-size", &c.Ingest.BatchSize)
		intFlag(cmd, "limit", &c.Search.Limit)
		if cmd.Flags().Changed("recreate") {
			b, _ := cmd.Flags().GetBool("recreate")
			c.Ingest.Recreate = &b
		}
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(a.log)
	a.reg = metrics.New()
	return nil
}

func stringFlag(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

func intFlag(cmd *cobra.Command, name string, dst *int) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetInt(name)
	}
}

func (a *app) onClose(f func() error) { a.closers = append(a.closers, f) }

// close releases handles in reverse order of creation.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) vectorStore() (*semantic.VectorStore, error) {
	if a.cfg.Qdrant.RESTPort() {
		a.log.Warn("qdrant url uses the REST port; the client needs the gRPC port 6334", "url", a.cfg.Qdrant.URL)
	}
	vs, err := semantic.New(a.cfg.Qdrant.Addr(), a.cfg.Qdrant.Collection)
	if err != nil {
		return nil, err
	}
	a.onClose(vs.Close)
	return vs, nil
}

func (a *app) ollamaClient() *ollama.EmbedClient {
	o := a.cfg.Ollama
	return ollama.NewEmbedClient(o.URL, o.Model, ollama.WithTimeout(o.Timeout))
}

// embedder decorates client with dimension checking, the configured rate
// limit and, when cache is non-nil, the embedding cache.
func (a *app) embedder(client *ollama.EmbedClient, cache embedding.Cache) embedding.Embedder {
	var e embedding.Embedder = embedding.WithDimension(client, embedding.Dimension)
	if r := a.cfg.Ollama.RateLimit; r > 0 {
		e = embedding.WithRateLimit(e, resilience.NewLimiter(resilience.LimiterOpts{Rate: r, Burst: a.cfg.Ollama.Burst}))
	}
	if cache != nil {
		e = embedding.WithCache(e, cache, client.Model(), a.log)
	}
	return e
}

func (a *app) stateStore() (*state.Store, error) {
	s, err := state.Open(a.cfg.Ingest.StatePath)
	if err != nil {
		return nil, err
	}
	a.onClose(s.Close)
	return s, nil
}

// notifier returns nil when NATS is not configured.
func (a *app) notifier() (ingest.Notifier, error) {
	if a.cfg.NATS.URL == "" {
		return nil, nil
	}
	nc, err := natsutil.Connect(a.cfg.NATS.URL, "cinesearch")
	if err != nil {
		return nil, err
	}
	a.onClose(func() error { return nc.Drain() })
	return events.NewNotifier(nc, a.cfg.Qdrant.Collection), nil
}

// catalogGraph returns nil when Neo4j is not configured.
func (a *app) catalogGraph(ctx context.Context) (*graph.CatalogGraph, error) {
	n := a.cfg.Neo4j
	if n.URL == "" {
		return nil, nil
	}
	auth := neo4j.NoAuth()
	if n.User != "" {
		auth = neo4j.BasicAuth(n.User, n.Pass, "")
	}
	driver, err := neo4j.NewDriverWithContext(n.URL, auth)
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	a.onClose(func() error { return driver.Close(context.Background()) })
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connect %s: %w", n.URL, err)
	}
	return graph.New(driver, a.log), nil
}

func (a *app) ingestOptions(force bool) (ingest.Options, error) {
	c := a.cfg
	w, err := ingest.ParseWeighting(c.Ingest.Weighting)
	if err != nil {
		return ingest.Options{}, err
	}
	opts := ingest.Options{
		Source:     catalog.Source{MoviesPath: c.Data.Movies, CreditsPath: c.Data.Credits},
		Collection: c.Qdrant.Collection,
		Model:      c.Ollama.Model,
		Dimension:  embedding.Dimension,
		BatchSize:  c.Ingest.BatchSize,
		IDPolicy:   domain.IDPolicy(c.Ingest.IDPolicy),
		Weighting:  w,
		CastLimit:  c.Ingest.CastLimit,
		Recreate:   c.RecreateCollection(),
		Force:      force,
		Retry:      fn.NoRetry,
	}
	if c.Ingest.Retries > 0 {
		opts.Retry = fn.DefaultRetry
		opts.Retry.MaxAttempts = c.Ingest.Retries + 1
	}
	if w.UsesCast() && opts.Source.CreditsPath == "" {
		a.log.Warn("weighting uses cast but no credits file is configured; cast will read from the movies file")
	}
	return opts, nil
}

// runIngest wires state, events and the catalog graph around store and
// runs one ingestion.
func (a *app) runIngest(ctx context.Context, store ingest.Store, client *ollama.EmbedClient, force bool) (ingest.Report, error) {
	opts, err := a.ingestOptions(force)
	if err != nil {
		return ingest.Report{}, err
	}
	markers, err := a.stateStore()
	if err != nil {
		return ingest.Report{}, err
	}
	var cache embedding.Cache
	if a.cfg.Ingest.CacheEmbeddings {
		cache = markers
	}
	deps := ingest.Deps{
		Store:    store,
		Embedder: a.embedder(client, cache),
		Markers:  markers,
		Metrics:  a.reg,
		Logger:   a.log,
	}
	if deps.Notifier, err = a.notifier(); err != nil {
		return ingest.Report{}, err
	}
	cg, err := a.catalogGraph(ctx)
	if err != nil {
		return ingest.Report{}, err
	}
	if cg != nil {
		if err := cg.EnsureSchema(ctx); err != nil {
			return ingest.Report{}, err
		}
		deps.Graph = cg
	}
	return ingest.NewRunner(deps, opts).Run(ctx)
}
