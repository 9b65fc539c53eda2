package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vriveras/openclaw/internal/bus"
	"github.com/vriveras/openclaw/internal/mcp"
	"github.com/vriveras/openclaw/internal/rlm"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the retrieval tools over MCP stdio",
		Long: `Starts the MCP stdio server exposing memory_search, memory_search_refs,
memory_get, memory_expand, rlm_search, rlm_search_refs and rlm_expand.
Watches the sessions directory and keeps the inverted index fresh.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			s, err := buildStack(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer s.close()

			// Host events flow through the bus into the maintainer.
			events := bus.New()
			events.Subscribe(bus.EventTranscriptUpdate, func(ev bus.Event) {
				if file, _ := ev.Payload["sessionFile"].(string); file != "" {
					s.maintainer.HandleTranscriptUpdate(file)
				}
			})

			watcher, err := rlm.NewWatcher(cfg.Sessions(), func(sessionFile string) {
				events.Publish(bus.TranscriptUpdate(sessionFile))
			})
			if err != nil {
				return err
			}
			if err := watcher.Start(ctx); err != nil {
				slog.Warn("session watcher unavailable", "error", err)
			} else {
				defer func() {
					watcher.Stop()
					s.maintainer.Flush(context.Background())
				}()
			}

			scheduler, err := rlm.NewRebuildScheduler(cfg.Index.RebuildSchedule, s.engine)
			if err != nil {
				return err
			}
			if scheduler != nil {
				scheduler.Start(ctx)
				defer scheduler.Stop()
			}

			srv, err := mcp.NewServer(s.registry, version)
			if err != nil {
				return err
			}
			return srv.ServeStdio()
		},
	}
	return cmd
}
