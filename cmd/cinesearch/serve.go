package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/cinesearch/engine/search"
)

func newServeCmd(a *app) *cobra.Command {
	var ingestFirst, force bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search UI and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), ingestFirst, force)
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "listen address")
	f.Int("limit", 0, "default number of results")
	f.BoolVar(&ingestFirst, "ingest", false, "run ingestion before serving")
	f.BoolVar(&force, "force", false, "with --ingest, ingest even when the last run matches")
	addIngestFlags(cmd)
	return cmd
}

func (a *app) serve(ctx context.Context, ingestFirst, force bool) error {
	store, err := a.vectorStore()
	if err != nil {
		return err
	}
	client := a.ollamaClient()

	if ingestFirst {
		rep, err := a.runIngest(ctx, store, client, force)
		if err != nil {
			return fmt.Errorf("ingest before serve: %w", err)
		}
		a.log.Info("collection ready", "status", rep.Status, "points", rep.Points)
	}

	svc := search.New(a.embedder(client, nil), store, search.Options{
		Limit:   a.cfg.Search.Limit,
		Timeout: a.cfg.Search.Timeout,
	}, a.reg, a.log)

	h := newServer(svc, store, a.reg, a.log)
	cg, err := a.catalogGraph(ctx)
	if err != nil {
		return err
	}
	if cg != nil {
		h.withCatalog(cg)
	}

	sc := a.cfg.Server
	srv := &http.Server{
		Addr:         sc.Addr,
		Handler:      h.routes(),
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("search server starting", "addr", sc.Addr, "collection", a.cfg.Qdrant.Collection)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
