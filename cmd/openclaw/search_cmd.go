package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// runTool executes one registry tool and prints its JSON output.
func runTool(cmd *cobra.Command, name string, args map[string]interface{}) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := buildStack(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	defer s.close()

	result := s.registry.Execute(cmd.Context(), name, args)
	fmt.Fprintln(cmd.OutOrStdout(), result.ForLLM)
	if result.IsError {
		return fmt.Errorf("%s failed", name)
	}
	return nil
}

func newSearchCmd() *cobra.Command {
	var maxResults int
	var minScore float64
	var rlmOnly bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memory files (or transcripts with --rlm) for snippets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			tool := "memory_search"
			params := map[string]interface{}{"query": query}
			if maxResults > 0 {
				params["maxResults"] = float64(maxResults)
			}
			if rlmOnly {
				tool = "rlm_search"
			} else if minScore > 0 {
				params["minScore"] = minScore
			}
			return runTool(cmd, tool, params)
		},
	}
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 0, "maximum results")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum relevance score")
	cmd.Flags().BoolVar(&rlmOnly, "rlm", false, "search session transcripts via the inverted index")
	return cmd
}

func newRefsCmd() *cobra.Command {
	var maxResults, previewChars, maxHops int
	var recursive bool

	cmd := &cobra.Command{
		Use:   "refs <query>",
		Short: "Reference-first search: compact refs to expand lazily",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]interface{}{"query": strings.Join(args, " ")}
			if maxResults > 0 {
				params["maxResults"] = float64(maxResults)
			}
			if previewChars > 0 {
				params["previewChars"] = float64(previewChars)
			}
			if recursive {
				rc := map[string]interface{}{"enabled": true}
				if maxHops > 0 {
					rc["maxHops"] = float64(maxHops)
				}
				params["recursive"] = rc
			}
			return runTool(cmd, "memory_search_refs", params)
		},
	}
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 0, "maximum refs")
	cmd.Flags().IntVar(&previewChars, "preview-chars", 0, "preview length per ref")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "enable multi-hop recursive retrieval")
	cmd.Flags().IntVar(&maxHops, "max-hops", 0, "recursive hop budget")
	return cmd
}

func newGetCmd() *cobra.Command {
	var from, lines int

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Read a memory file, optionally a line range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]interface{}{"path": args[0]}
			if from > 0 {
				params["from"] = float64(from)
			}
			if lines > 0 {
				params["lines"] = float64(lines)
			}
			return runTool(cmd, "memory_get", params)
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "start line (1-indexed)")
	cmd.Flags().IntVar(&lines, "lines", 0, "number of lines")
	return cmd
}

func newExpandCmd() *cobra.Command {
	var lines, maxChars int

	cmd := &cobra.Command{
		Use:   "expand <path:startLine[-endLine]>...",
		Short: "Expand refs into bounded text windows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refsArg := make([]interface{}, 0, len(args))
			for _, a := range args {
				ref, err := parseRefArg(a)
				if err != nil {
					return err
				}
				refsArg = append(refsArg, ref)
			}
			params := map[string]interface{}{
				"refs":    refsArg,
				"maxRefs": float64(len(refsArg)),
			}
			if lines > 0 {
				params["defaultLines"] = float64(lines)
			}
			if maxChars > 0 {
				params["maxChars"] = float64(maxChars)
			}
			return runTool(cmd, "memory_expand", params)
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 0, "default lines per ref")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "character cap per ref")
	return cmd
}

// parseRefArg parses "path:12" or "path:12-40" into a ref object.
func parseRefArg(arg string) (map[string]interface{}, error) {
	ref := map[string]interface{}{}
	path := arg
	if i := strings.LastIndex(arg, ":"); i > 0 {
		rangePart := arg[i+1:]
		var start, end int
		if n, _ := fmt.Sscanf(rangePart, "%d-%d", &start, &end); n == 2 {
			path = arg[:i]
			ref["startLine"] = float64(start)
			ref["endLine"] = float64(end)
		} else if n, _ := fmt.Sscanf(rangePart, "%d", &start); n == 1 {
			path = arg[:i]
			ref["startLine"] = float64(start)
			ref["endLine"] = float64(start)
		}
	}
	ref["path"] = path
	return ref, nil
}
