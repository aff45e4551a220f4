// Command cinesearch loads a movie dataset into Qdrant and serves semantic
// search over it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/cinesearch/pkg/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cinesearch:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "cinesearch",
		Short: "Semantic movie search over Qdrant",
		Long: `cinesearch embeds a TMDB-style movie dataset with a sentence embedding
model served by Ollama, stores the vectors in a Qdrant collection and answers
free-text queries from the command line or a small web UI.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.Version = Version

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default "+config.DefaultPath+" when present)")
	pf.String("mode", "", "preset: demo or production")
	pf.String("collection", "", "Qdrant collection")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "json or text")

	root.AddCommand(
		newIngestCmd(a),
		newServeCmd(a),
		newSearchCmd(a),
		newCheckCmd(a),
		newEventsCmd(a),
	)
	return root
}
