// Command openclaw is the reference-first retrieval core CLI: serve the
// tool surface over MCP, query memory and transcripts, maintain the
// inverted index, and run the evaluation harness.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

func main() {
	root := &cobra.Command{
		Use:     "openclaw",
		Short:   "Reference-first retrieval over workspace memory and session transcripts",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	root.PersistentFlags().StringP("workspace", "w", ".", "workspace directory (MEMORY.md, memory/, sessions/)")
	root.PersistentFlags().StringP("config", "c", "", "path to openclaw.json5 config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "debug logging")

	root.AddCommand(
		newServeCmd(),
		newSearchCmd(),
		newRefsCmd(),
		newGetCmd(),
		newExpandCmd(),
		newIndexCmd(),
		newEvalCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
