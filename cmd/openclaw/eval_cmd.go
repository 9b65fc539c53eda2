package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vriveras/openclaw/internal/config"
	"github.com/vriveras/openclaw/internal/eval"
	"github.com/vriveras/openclaw/internal/refs"
)

func newEvalCmd() *cobra.Command {
	var (
		groundTruthPath string
		outPath         string
		resumePath      string
		modes           []string
		sweep           bool
		maxConfigs      int
		maxHops         []int
		expandTopK      []int
		defaultLines    []int
		budgets         []int
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the ground-truth evaluation harness",
		Long: `Runs every ground-truth case through the configured retrieval modes
(baseline, refs, expand, recursive) and writes a checkpointed JSON report.
With --sweep, enumerates the recursive parameter grid and selects the best
cell by pass rate, then token cost, then latency. --resume skips suites
already present in an existing report.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if groundTruthPath == "" {
				groundTruthPath = cfg.Eval.GroundTruthPath
			}
			if groundTruthPath == "" {
				return fmt.Errorf("--ground-truth (or eval.groundTruthPath in config) is required")
			}
			if outPath == "" {
				outPath = cfg.Eval.ReportPath
			}
			if outPath == "" {
				outPath = "eval-report.json"
			}

			gt, err := eval.LoadGroundTruth(groundTruthPath)
			if err != nil {
				return err
			}

			s, err := buildStack(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer s.close()

			base := eval.Options{
				Modes:     modes,
				Recursive: recursiveFromConfig(cfg.Recursive),
			}

			var report *eval.Report
			if resumePath != "" {
				report, err = eval.LoadReport(resumePath)
				if err != nil && !os.IsNotExist(err) {
					return err
				}
			}
			if report == nil {
				report = eval.NewReport(gt, map[string]interface{}{
					"modes":     base.Modes,
					"recursive": base.Recursive,
				})
			}

			harness := eval.NewHarness(s.manager, s.orchestrator, s.expander)

			if sweep {
				grid := eval.Grid{
					MaxHops:               maxHops,
					ExpandTopK:            expandTopK,
					DefaultLines:          defaultLines,
					MaxTotalExpandedChars: budgets,
				}
				if err := harness.RunSweep(ctx, gt, report, outPath, grid, base, maxConfigs); err != nil {
					return err
				}
			} else {
				label := "suite " + strings.Join(base.Modes, "+")
				if len(base.Modes) == 0 {
					label = "suite default"
				}
				if !report.HasSuite(label) {
					report.AddSuite(harness.RunSuite(ctx, gt, label, base))
				}
				if err := report.Checkpoint(outPath); err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "report written:", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&groundTruthPath, "ground-truth", "", "ground-truth suite file (YAML or JSON)")
	cmd.Flags().StringVar(&outPath, "out", "", "report output path")
	cmd.Flags().StringVar(&resumePath, "resume", "", "existing report to resume; suites already present are skipped")
	cmd.Flags().StringSliceVar(&modes, "modes", nil, "modes to run (baseline,refs,expand,recursive)")
	cmd.Flags().BoolVar(&sweep, "sweep", false, "sweep the recursive parameter grid")
	cmd.Flags().IntVar(&maxConfigs, "max-configs", 0, "bound the number of sweep cells (0 = all)")
	cmd.Flags().IntSliceVar(&maxHops, "sweep-hops", nil, "maxHops values for the sweep")
	cmd.Flags().IntSliceVar(&expandTopK, "sweep-topk", nil, "expandTopK values for the sweep")
	cmd.Flags().IntSliceVar(&defaultLines, "sweep-lines", nil, "defaultLines values for the sweep")
	cmd.Flags().IntSliceVar(&budgets, "sweep-budget", nil, "maxTotalExpandedChars values for the sweep")
	return cmd
}

// recursiveFromConfig overlays configured values on the documented defaults.
func recursiveFromConfig(rc config.RecursiveConfig) refs.RecursiveConfig {
	cfg := refs.DefaultRecursiveConfig()
	if rc.MaxHops > 0 {
		cfg.MaxHops = rc.MaxHops
	}
	if rc.MaxRefsPerHop > 0 {
		cfg.MaxRefsPerHop = rc.MaxRefsPerHop
	}
	if rc.ExpandTopK > 0 {
		cfg.ExpandTopK = rc.ExpandTopK
	}
	if rc.DefaultLines > 0 {
		cfg.DefaultLines = rc.DefaultLines
	}
	if rc.MaxCharsPerRef > 0 {
		cfg.MaxCharsPerRef = rc.MaxCharsPerRef
	}
	if rc.MaxTotalExpandedChars > 0 {
		cfg.MaxTotalExpandedChars = rc.MaxTotalExpandedChars
	}
	if rc.DerivedQueryMaxTerms > 0 {
		cfg.DerivedQueryMaxTerms = rc.DerivedQueryMaxTerms
	}
	return cfg
}
