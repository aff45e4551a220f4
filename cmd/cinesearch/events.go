package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/cinesearch/engine/events"
	"github.com/WessleyAI/cinesearch/pkg/natsutil"
)

func newEventsCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow ingestion progress published to NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			collection := a.cfg.Qdrant.Collection
			if all {
				collection = ""
			}
			return a.followEvents(cmd.Context(), cmd.OutOrStdout(), collection)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "show runs for every collection")
	return cmd
}

// followEvents prints one line per progress event until ctx is done.
func (a *app) followEvents(ctx context.Context, w io.Writer, collection string) error {
	url := a.cfg.NATS.URL
	if url == "" {
		return errors.New("events: nats url is not configured (NATS_URL)")
	}
	nc, err := natsutil.Connect(url, "cinesearch-events")
	if err != nil {
		return err
	}
	defer nc.Close()

	stop, err := events.Watch(nc, collection, eventPrinter(w))
	if err != nil {
		return err
	}
	defer stop()
	if err := nc.Flush(); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	a.log.Info("following ingest events", "url", nc.ConnectedUrl(), "collection", collection)

	<-ctx.Done()
	return nil
}

// eventPrinter writes events to w. Subscriptions deliver concurrently, so
// writes are serialized.
func eventPrinter(w io.Writer) events.Handlers {
	var mu sync.Mutex
	line := func(kind string, v fmt.Stringer) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "%-5s %s\n", kind, v)
	}
	return events.Handlers{
		Batch: func(_ context.Context, ev events.BatchUploaded) { line("batch", ev) },
		Done:  func(_ context.Context, ev events.RunFinished) { line("done", ev) },
	}
}
