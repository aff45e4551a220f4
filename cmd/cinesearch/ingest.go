package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/cinesearch/engine/ingest"
)

func newIngestCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed the dataset and upload it to the collection",
		Long: `ingest reads the movies file (and the credits file when configured),
builds one search document per movie, embeds it and upserts the points in
acknowledged batches. A run is skipped when the collection already holds the
result of an identical earlier run, unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.vectorStore()
			if err != nil {
				return err
			}
			rep, err := a.runIngest(cmd.Context(), store, a.ollamaClient(), force)
			if err != nil {
				return err
			}
			printReport(cmd, rep)
			return nil
		},
	}
	addIngestFlags(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "ingest even when the last run matches")
	return cmd
}

// addIngestFlags registers the flags app.load maps onto the ingest config.
func addIngestFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("movies", "", "movies CSV")
	f.String("credits", "", "credits CSV joined on movie id")
	f.String("id-policy", "", "point ids: ordinal or external")
	f.String("weighting", "", `document weighting: "plain", "boosted" or e.g. "title:2,overview"`)
	f.Int("batch-size", 0, "points per upsert")
	f.Bool("recreate", false, "drop and recreate the collection first")
}

func printReport(cmd *cobra.Command, rep ingest.Report) {
	out := cmd.OutOrStdout()
	switch rep.Status {
	case ingest.StatusSkipped:
		fmt.Fprintf(out, "collection %s is up to date, nothing to do (use --force to re-ingest)\n", rep.Collection)
	default:
		fmt.Fprintf(out, "ingested %d movies into %s in %d batches (%s)\n",
			rep.Points, rep.Collection, rep.Batches, rep.Duration.Round(time.Millisecond))
	}
}
