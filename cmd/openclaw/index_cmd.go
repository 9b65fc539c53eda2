package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vriveras/openclaw/internal/rlm"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain the transcript inverted index",
	}
	cmd.AddCommand(newIndexRebuildCmd(), newIndexUpdateCmd(), newIndexStatusCmd())
	return cmd
}

func newIndexRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the inverted index from every session on disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			engine := rlm.NewEngine(cfg.Sessions(), cfg.IndexFile())
			if err := engine.Rebuild(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "index rebuilt:", cfg.IndexFile())
			return nil
		},
	}
}

func newIndexUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <session-file>",
		Short: "Incrementally index new messages from one session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sessionFile := args[0]
			sessionID := rlm.SessionIDFromPath(sessionFile)
			if sessionID == "" {
				return fmt.Errorf("session file must be named <sessionId>.jsonl: %s", sessionFile)
			}

			engine := rlm.NewEngine(cfg.Sessions(), cfg.IndexFile())
			maintainer := rlm.NewMaintainer(engine)
			result, err := maintainer.UpdateIndex(cmd.Context(), sessionID, sessionFile)
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newIndexStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index freshness and size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ix, err := rlm.LoadIndex(cfg.IndexFile())
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "index absent or unreadable: %v\n", err)
				return nil
			}

			status := map[string]interface{}{
				"path":        filepath.Clean(cfg.IndexFile()),
				"sessions":    len(ix.Sessions),
				"tokens":      len(ix.Tokens),
				"lastUpdated": ix.LastUpdated,
				"stale":       ix.Stale(cfg.Sessions()),
			}
			data, _ := json.MarshalIndent(status, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
