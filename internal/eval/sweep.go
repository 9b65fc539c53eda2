package eval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vriveras/openclaw/internal/refs"
)

// Grid is the sweep parameter space; empty dimensions collapse to the
// base config's value.
type Grid struct {
	MaxHops               []int `json:"maxHops,omitempty" yaml:"maxHops,omitempty"`
	ExpandTopK            []int `json:"expandTopK,omitempty" yaml:"expandTopK,omitempty"`
	DefaultLines          []int `json:"defaultLines,omitempty" yaml:"defaultLines,omitempty"`
	MaxTotalExpandedChars []int `json:"maxTotalExpandedChars,omitempty" yaml:"maxTotalExpandedChars,omitempty"`
}

// BestCell is the sweep winner under the ordered objective.
type BestCell struct {
	Cfg           refs.RecursiveConfig `json:"cfg"`
	Label         string               `json:"label"`
	PassRate      float64              `json:"passRate"`
	RecTokensMean float64              `json:"recTokensMean"`
	RecLatencyP95 float64              `json:"recLatencyP95"`
}

// SweepResult is the sweep section of a report.
type SweepResult struct {
	Grid      Grid      `json:"grid"`
	Objective string    `json:"objective"`
	Best      *BestCell `json:"best,omitempty"`
}

// sweepObjective documents the selection order.
const sweepObjective = "max passRate, then min tokens.recursiveRefs.mean, then min latencyMs.recursiveRefs.p95"

// cells enumerates the Cartesian product of the grid over a base config,
// bounded by maxConfigs (0 = unbounded).
func (g Grid) cells(base refs.RecursiveConfig, maxConfigs int) []refs.RecursiveConfig {
	hops := orDefaultInts(g.MaxHops, base.MaxHops)
	topks := orDefaultInts(g.ExpandTopK, base.ExpandTopK)
	lines := orDefaultInts(g.DefaultLines, base.DefaultLines)
	budgets := orDefaultInts(g.MaxTotalExpandedChars, base.MaxTotalExpandedChars)

	var out []refs.RecursiveConfig
	for _, h := range hops {
		for _, k := range topks {
			for _, l := range lines {
				for _, b := range budgets {
					cfg := base
					cfg.MaxHops = h
					cfg.ExpandTopK = k
					cfg.DefaultLines = l
					cfg.MaxTotalExpandedChars = b
					out = append(out, cfg)
					if maxConfigs > 0 && len(out) >= maxConfigs {
						return out
					}
				}
			}
		}
	}
	return out
}

func orDefaultInts(vals []int, def int) []int {
	if len(vals) == 0 {
		return []int{def}
	}
	return vals
}

// CellLabel names one sweep cell; labels key checkpoint resume.
func CellLabel(cfg refs.RecursiveConfig) string {
	return fmt.Sprintf("sweep hops=%d topk=%d lines=%d budget=%d",
		cfg.MaxHops, cfg.ExpandTopK, cfg.DefaultLines, cfg.MaxTotalExpandedChars)
}

// RunSweep enumerates the grid, runs one suite per cell (skipping cells the
// report already holds, which makes aborted sweeps restartable), checkpoints
// after each, and selects the best cell by the ordered objective.
func (h *Harness) RunSweep(ctx context.Context, gt *GroundTruth, report *Report, outPath string, grid Grid, base Options, maxConfigs int) error {
	report.Sweep = &SweepResult{Grid: grid, Objective: sweepObjective}

	for _, cfg := range grid.cells(base.Recursive, maxConfigs) {
		label := CellLabel(cfg)
		if report.HasSuite(label) {
			slog.Info("sweep cell already in report, skipping", "label", label)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		opts := base
		opts.Recursive = cfg
		opts.Modes = []string{ModeBaseline, ModeRefs, ModeExpand, ModeRecursive}

		suite := h.RunSuite(ctx, gt, label, opts)
		report.AddSuite(suite)
		if err := report.Checkpoint(outPath); err != nil {
			return fmt.Errorf("checkpoint after %q: %w", label, err)
		}
	}

	report.Sweep.Best = selectBest(report.Suites)
	return report.Checkpoint(outPath)
}

// selectBest applies the ordered objective over sweep suites.
func selectBest(suites []*Suite) *BestCell {
	var best *BestCell
	for _, s := range suites {
		if !strings.HasPrefix(s.Label, "sweep ") {
			continue
		}
		tokens := s.Aggregates["tokens.recursiveRefs"].Mean
		latency := s.Aggregates["latencyMs.recursiveRefs"].P95

		cand := &BestCell{
			Cfg:           s.Config,
			Label:         s.Label,
			PassRate:      s.PassRate,
			RecTokensMean: tokens,
			RecLatencyP95: latency,
		}
		if best == nil || better(cand, best) {
			best = cand
		}
	}
	return best
}

func better(a, b *BestCell) bool {
	if a.PassRate != b.PassRate {
		return a.PassRate > b.PassRate
	}
	if a.RecTokensMean != b.RecTokensMean {
		return a.RecTokensMean < b.RecTokensMean
	}
	return a.RecLatencyP95 < b.RecLatencyP95
}
