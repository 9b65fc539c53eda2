package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vriveras/openclaw/internal/expand"
	"github.com/vriveras/openclaw/internal/memory"
	"github.com/vriveras/openclaw/internal/refs"
)

// Mode names.
const (
	ModeBaseline  = "baseline"
	ModeRefs      = "refs"
	ModeExpand    = "expand"
	ModeRecursive = "recursive"
)

// tokensPerChar is the stable token-cost proxy: tokens = ceil(chars/4).
// Exact tokenization is deliberately out of scope.
const tokensPerChar = 4

// Size is the recorded output size of one mode.
type Size struct {
	Chars  int `json:"chars"`
	Tokens int `json:"tokens"`
}

func sizeOf(output string) Size {
	n := len(output)
	return Size{Chars: n, Tokens: (n + tokensPerChar - 1) / tokensPerChar}
}

// Counts records retrieval volume for one case.
type Counts struct {
	RefsReturned      int `json:"refsReturned"`
	ExpandedRequested int `json:"expandedRequested"`
}

// CaseResult is the per-case record in a suite.
type CaseResult struct {
	ID            string              `json:"id"`
	Query         string              `json:"query"`
	Sizes         map[string]Size     `json:"sizes"`
	LatencyMs     map[string]float64  `json:"latencyMs"`
	Counts        Counts              `json:"counts"`
	OK            bool                `json:"ok"`
	OKByMode      map[string]bool     `json:"okByMode"`
	TopRefs       []refs.Ref          `json:"topRefs,omitempty"`
	RecursiveMeta *refs.RecursiveMeta `json:"recursiveMeta,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// Suite is one full run of the ground truth under a parameter set.
type Suite struct {
	Label      string               `json:"label"`
	Config     refs.RecursiveConfig `json:"config"`
	Cases      []CaseResult         `json:"cases"`
	PassRate   float64              `json:"passRate"`
	Aggregates map[string]Stats     `json:"aggregates"`
}

// Options configures a harness run.
type Options struct {
	Modes        []string
	Recursive    refs.RecursiveConfig
	MaxResults   int
	PreviewChars int
	ExpandTopK   int // refs expanded in expand mode
}

// Harness drives the retrieval stack over a ground-truth suite.
type Harness struct {
	manager      *memory.Manager
	orchestrator *refs.Orchestrator
	expander     *expand.Engine

	now func() time.Time
}

// NewHarness wires the harness to the retrieval components.
func NewHarness(manager *memory.Manager, orchestrator *refs.Orchestrator, expander *expand.Engine) *Harness {
	return &Harness{
		manager:      manager,
		orchestrator: orchestrator,
		expander:     expander,
		now:          time.Now,
	}
}

// RunSuite executes every case under every requested mode. A single-case
// panic or error is a case-level failure; the suite always completes.
func (h *Harness) RunSuite(ctx context.Context, gt *GroundTruth, label string, opts Options) *Suite {
	if len(opts.Modes) == 0 {
		opts.Modes = []string{ModeBaseline, ModeRefs, ModeExpand}
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 8
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = 140
	}
	if opts.ExpandTopK <= 0 {
		opts.ExpandTopK = 2
	}

	suite := &Suite{Label: label, Config: opts.Recursive}

	passed := 0
	for _, c := range gt.Cases {
		result := h.runCase(ctx, c, opts)
		if result.OK {
			passed++
		}
		suite.Cases = append(suite.Cases, result)
	}
	if len(suite.Cases) > 0 {
		suite.PassRate = float64(passed) / float64(len(suite.Cases))
	}

	suite.Aggregates = h.aggregate(suite.Cases, opts.Modes)

	slog.Info("suite complete",
		"label", label,
		"cases", len(suite.Cases),
		"pass_rate", suite.PassRate)
	return suite
}

// runCase executes one case across all modes, recovering panics into a
// case-level failure.
func (h *Harness) runCase(ctx context.Context, c Case, opts Options) (result CaseResult) {
	result = CaseResult{
		ID:        c.ID,
		Query:     c.Query,
		Sizes:     make(map[string]Size),
		LatencyMs: make(map[string]float64),
		OKByMode:  make(map[string]bool),
	}

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("case panicked: %v", r)
			result.OK = false
		}
	}()

	caseStart := h.now()
	for _, mode := range opts.Modes {
		start := h.now()
		output, err := h.runMode(ctx, mode, c.Query, opts, &result)
		elapsed := float64(h.now().Sub(start).Microseconds()) / 1000.0

		key := mode
		if mode == ModeRecursive {
			key = "recursiveRefs"
		}
		result.LatencyMs[key] = elapsed
		if err != nil {
			result.Error = err.Error()
			continue
		}
		result.Sizes[key] = sizeOf(output)
		if c.Expect.passes(output) {
			result.OKByMode[mode] = true
			result.OK = true
		}
	}
	result.LatencyMs["total"] = float64(h.now().Sub(caseStart).Microseconds()) / 1000.0
	return result
}

// runMode produces the textual output of one mode, updating counts and
// metadata on the case result.
func (h *Harness) runMode(ctx context.Context, mode, query string, opts Options, result *CaseResult) (string, error) {
	switch mode {
	case ModeBaseline:
		if h.manager == nil {
			return "", fmt.Errorf("baseline mode requires the memory engine")
		}
		results, _, err := h.manager.Search(ctx, query, memory.SearchOptions{MaxResults: opts.MaxResults})
		if err != nil {
			return "", err
		}
		data, _ := json.Marshal(results)
		return string(data), nil

	case ModeRefs:
		r := h.orchestrator.SearchRefs(ctx, query, refs.Options{
			MaxResults:   opts.MaxResults,
			PreviewChars: opts.PreviewChars,
		})
		if r.Disabled {
			return "", fmt.Errorf("refs search disabled: %s", r.Error)
		}
		if len(result.TopRefs) == 0 {
			result.TopRefs = topRefs(r.Refs, 3)
		}
		result.Counts.RefsReturned += len(r.Refs)
		data, _ := json.Marshal(r.Refs)
		return string(data), nil

	case ModeExpand:
		r := h.orchestrator.SearchRefs(ctx, query, refs.Options{
			MaxResults:   opts.MaxResults,
			PreviewChars: opts.PreviewChars,
		})
		if r.Disabled {
			return "", fmt.Errorf("refs search disabled: %s", r.Error)
		}
		top := topRefs(r.Refs, opts.ExpandTopK)
		specs := make([]expand.RefSpec, len(top))
		for i, ref := range top {
			specs[i] = expand.RefSpec{Path: ref.Path, StartLine: ref.StartLine, EndLine: ref.EndLine}
		}
		result.Counts.ExpandedRequested += len(specs)
		exp := h.expander.Expand(specs, expand.Options{
			DefaultLines: 60,
			MaxRefs:      len(specs),
			MaxChars:     8000,
		})
		var out string
		for _, w := range exp.Results {
			out += w.Text + "\n"
		}
		return out, nil

	case ModeRecursive:
		cfg := opts.Recursive
		cfg.Enabled = true
		r := h.orchestrator.SearchRefs(ctx, query, refs.Options{
			MaxResults:   opts.MaxResults,
			PreviewChars: opts.PreviewChars,
			Recursive:    &cfg,
		})
		if r.Disabled {
			return "", fmt.Errorf("recursive search disabled: %s", r.Error)
		}
		result.RecursiveMeta = r.Recursive
		result.Counts.RefsReturned += len(r.Refs)
		data, _ := json.Marshal(r.Refs)
		return string(data), nil

	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}

// aggregate builds the per-series stats for a finished suite.
func (h *Harness) aggregate(cases []CaseResult, modes []string) map[string]Stats {
	out := make(map[string]Stats)

	keys := make([]string, 0, len(modes)+1)
	for _, m := range modes {
		if m == ModeRecursive {
			keys = append(keys, "recursiveRefs")
		} else {
			keys = append(keys, m)
		}
	}
	keys = append(keys, "total")

	for _, key := range keys {
		var latencies, tokens []float64
		for _, c := range cases {
			if v, ok := c.LatencyMs[key]; ok {
				latencies = append(latencies, v)
			}
			if s, ok := c.Sizes[key]; ok {
				tokens = append(tokens, float64(s.Tokens))
			}
		}
		if len(latencies) > 0 {
			out["latencyMs."+key] = Aggregate(latencies)
		}
		if len(tokens) > 0 {
			out["tokens."+key] = Aggregate(tokens)
		}
	}
	return out
}

func topRefs(list []refs.Ref, n int) []refs.Ref {
	if len(list) > n {
		list = list[:n]
	}
	return list
}
