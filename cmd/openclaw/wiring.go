package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vriveras/openclaw/internal/config"
	"github.com/vriveras/openclaw/internal/expand"
	"github.com/vriveras/openclaw/internal/hooks"
	"github.com/vriveras/openclaw/internal/memory"
	"github.com/vriveras/openclaw/internal/refs"
	"github.com/vriveras/openclaw/internal/rlm"
	"github.com/vriveras/openclaw/internal/tools"
)

// stack is the wired retrieval core.
type stack struct {
	cfg          *config.Config
	manager      *memory.Manager
	engine       *rlm.Engine
	maintainer   *rlm.Maintainer
	expander     *expand.Engine
	orchestrator *refs.Orchestrator
	chain        *hooks.Chain
	registry     *tools.Registry
}

// loadConfig resolves the config from --config or falls back to defaults
// rooted at --workspace.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		return config.Load(configPath)
	}
	workspace, _ := cmd.Flags().GetString("workspace")
	return config.Default(workspace), nil
}

// buildStack wires every component. indexMemory controls whether memory
// files are (re)indexed up front.
func buildStack(ctx context.Context, cfg *config.Config, indexMemory bool) (*stack, error) {
	manager, err := memory.NewManager(cfg.WorkspaceDir)
	if err != nil {
		return nil, fmt.Errorf("open memory engine: %w", err)
	}
	if indexMemory {
		if err := manager.IndexAll(ctx); err != nil {
			manager.Close()
			return nil, fmt.Errorf("index memory files: %w", err)
		}
	}

	engine := rlm.NewEngine(cfg.Sessions(), cfg.IndexFile())
	if scorer, err := rlm.NewExternalScorer(cfg.Index.ScorerCommand); err != nil {
		manager.Close()
		return nil, err
	} else if scorer != nil {
		engine.SetScorer(scorer)
	}
	maintainer := rlm.NewMaintainer(engine)
	expander := expand.NewEngine(cfg.WorkspaceDir)
	orchestrator := refs.NewOrchestrator(manager, engine, expander)
	chain := hooks.NewChain()

	registry := tools.NewRegistry()
	registry.Register(tools.NewMemorySearchTool(manager))
	registry.Register(tools.NewMemorySearchRefsTool(orchestrator, manager, chain))
	registry.Register(tools.NewMemoryGetTool(manager))
	registry.Register(tools.NewMemoryExpandTool(expander, chain))
	registry.Register(tools.NewRlmSearchTool(engine))
	registry.Register(tools.NewRlmSearchRefsTool(engine))
	registry.Register(tools.NewRlmExpandTool(expander))

	return &stack{
		cfg:          cfg,
		manager:      manager,
		engine:       engine,
		maintainer:   maintainer,
		expander:     expander,
		orchestrator: orchestrator,
		chain:        chain,
		registry:     registry,
	}, nil
}

func (s *stack) close() {
	if s.manager != nil {
		s.manager.Close()
	}
}
