package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/cinesearch/engine/search"
)

func newSearchCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the collection from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.vectorStore()
			if err != nil {
				return err
			}
			svc := search.New(a.embedder(a.ollamaClient(), nil), store, search.Options{
				Limit:   a.cfg.Search.Limit,
				Timeout: a.cfg.Search.Timeout,
			}, a.reg, a.log)

			query := strings.Join(args, " ")
			rows, err := svc.Query(cmd.Context(), query, 0)
			if err != nil {
				return err
			}
			if asJSON {
				if rows == nil {
					rows = []search.Row{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			printRows(cmd.OutOrStdout(), query, rows)
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func printRows(w io.Writer, query string, rows []search.Row) {
	if strings.TrimSpace(query) == "" {
		return
	}
	if len(rows) == 0 {
		fmt.Fprintf(w, "no matches for %q\n", query)
		return
	}
	for i, r := range rows {
		title := r.Title
		if r.Year != "" {
			title += " " + r.Year
		}
		fmt.Fprintf(w, "%2d. %s  [%s]\n", i+1, title, r.ScoreText())
		meta := r.RatingText()
		if r.Genres != "" {
			meta = r.Genres + " | " + meta
		}
		fmt.Fprintf(w, "    %s\n", meta)
		if r.Description != "" {
			fmt.Fprintf(w, "    %s\n", r.Description)
		}
	}
}
