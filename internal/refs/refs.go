// Package refs implements the refs-first retrieval orchestrator: searches
// return compact (path, line-range, preview) references that callers expand
// lazily, with an optional bounded multi-hop recursive loop that derives
// follow-up queries from expanded snippets.
package refs

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vriveras/openclaw/internal/expand"
	"github.com/vriveras/openclaw/internal/memory"
	"github.com/vriveras/openclaw/internal/rlm"
)

// Ref is a compact pointer into a memory file or transcript.
type Ref struct {
	Path      string  `json:"path"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Score     float64 `json:"score"`
	Source    string  `json:"source,omitempty"`
	Preview   string  `json:"preview"`
	SessionID string  `json:"sessionId,omitempty"`
	Hop       int     `json:"hop,omitempty"`
}

// Options configures one SearchRefs call.
type Options struct {
	MaxResults   int
	MinScore     float64
	PreviewChars int
	Recursive    *RecursiveConfig
}

// RecursiveConfig bounds the multi-hop loop. Zero MaxHops degenerates to
// the non-recursive path.
type RecursiveConfig struct {
	Enabled               bool `json:"enabled"`
	MaxHops               int  `json:"maxHops"`
	MaxRefsPerHop         int  `json:"maxRefsPerHop"`
	ExpandTopK            int  `json:"expandTopK"`
	DefaultLines          int  `json:"defaultLines"`
	MaxCharsPerRef        int  `json:"maxCharsPerRef"`
	MaxTotalExpandedChars int  `json:"maxTotalExpandedChars"`
	DerivedQueryMaxTerms  int  `json:"derivedQueryMaxTerms"`
	EarlyStop             bool `json:"earlyStop"`
}

// DefaultRecursiveConfig returns the documented defaults.
func DefaultRecursiveConfig() RecursiveConfig {
	return RecursiveConfig{
		Enabled:               true,
		MaxHops:               1,
		MaxRefsPerHop:         8,
		ExpandTopK:            2,
		DefaultLines:          20,
		MaxCharsPerRef:        8000,
		MaxTotalExpandedChars: 12000,
		DerivedQueryMaxTerms:  12,
		EarlyStop:             true,
	}
}

// HopInfo records one hop of the recursive loop.
type HopInfo struct {
	Hop          int    `json:"hop"`
	Query        string `json:"query"`
	DerivedQuery string `json:"derivedQuery,omitempty"`
	NewRefs      int    `json:"newRefs"`
}

// RecursiveMeta is attached to results of recursive runs.
type RecursiveMeta struct {
	Enabled            bool            `json:"enabled"`
	Budget             RecursiveConfig `json:"budget"`
	Hops               []HopInfo       `json:"hops"`
	TotalExpandedChars int             `json:"totalExpandedChars"`
}

// Result is the outcome of SearchRefs. Disabled distinguishes "capability
// unavailable" from "no results".
type Result struct {
	Query     string         `json:"query"`
	Refs      []Ref          `json:"refs"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model,omitempty"`
	Disabled  bool           `json:"disabled,omitempty"`
	Error     string         `json:"error,omitempty"`
	Recursive *RecursiveMeta `json:"recursive,omitempty"`
}

// Orchestrator runs refs-first retrieval over the memory searcher and the
// transcript engine. Either collaborator may be nil.
type Orchestrator struct {
	memory   *memory.Manager
	engine   *rlm.Engine
	expander *expand.Engine
}

// NewOrchestrator wires the collaborators.
func NewOrchestrator(mem *memory.Manager, engine *rlm.Engine, expander *expand.Engine) *Orchestrator {
	return &Orchestrator{memory: mem, engine: engine, expander: expander}
}

func (o *Orchestrator) providerInfo() (provider, model string) {
	if o.memory != nil && o.memory.Provider() != nil {
		return o.memory.Provider().Name(), o.memory.Provider().Model()
	}
	if o.memory != nil {
		return "fts", "sqlite-fts5"
	}
	if o.engine != nil {
		return "rlm", "inverted-index"
	}
	return "none", ""
}

// SearchRefs is the orchestrator entry point.
func (o *Orchestrator) SearchRefs(ctx context.Context, query string, opts Options) *Result {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 8
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = 140
	}

	provider, model := o.providerInfo()
	res := &Result{Query: query, Refs: []Ref{}, Provider: provider, Model: model}

	if o.memory == nil && o.engine == nil {
		res.Disabled = true
		res.Error = "no searcher configured"
		return res
	}

	if opts.Recursive != nil && opts.Recursive.Enabled && opts.Recursive.MaxHops > 0 {
		o.searchRecursive(ctx, query, opts, res)
		return res
	}

	refs, err := o.searchOnce(ctx, query, opts.MaxResults, opts.MinScore, opts.PreviewChars)
	if err != nil {
		res.Disabled = true
		res.Error = err.Error()
		return res
	}
	res.Refs = refs
	return res
}

// searchOnce queries both engines, maps hits to refs, interleaves sources
// by per-source rank (scores across sources are not comparable), and drops
// binary-blob refs.
func (o *Orchestrator) searchOnce(ctx context.Context, query string, maxResults int, minScore float64, previewChars int) ([]Ref, error) {
	var memRefs, rlmRefs []Ref
	var memErr, rlmErr error

	if o.memory != nil {
		results, _, err := o.memory.Search(ctx, query, memory.SearchOptions{
			MaxResults: maxResults,
			MinScore:   minScore,
		})
		if err != nil {
			memErr = fmt.Errorf("memory search: %w", err)
		}
		for _, r := range results {
			norm := normalizeWS(r.Snippet)
			if IsBinaryBlob(norm) {
				continue
			}
			memRefs = append(memRefs, Ref{
				Path:      r.Path,
				StartLine: r.StartLine,
				EndLine:   r.EndLine,
				Score:     r.Score,
				Source:    r.Source,
				Preview:   truncatePreview(norm, previewChars),
			})
		}
	}

	if o.engine != nil {
		result, err := o.engine.Search(ctx, query, rlm.SearchOptions{MaxResults: maxResults})
		if err != nil {
			rlmErr = fmt.Errorf("rlm search: %w", err)
		} else {
			for _, m := range result.Results {
				norm := normalizeWS(m.Text)
				if IsBinaryBlob(norm) {
					continue
				}
				rlmRefs = append(rlmRefs, Ref{
					Path:      m.Path,
					StartLine: m.Line,
					EndLine:   m.Line,
					Score:     m.MatchScore,
					Source:    "sessions",
					SessionID: m.SessionID,
					Preview:   truncatePreview(norm, previewChars),
				})
			}
		}
	}

	if memErr != nil && (o.engine == nil || rlmErr != nil) {
		return nil, memErr
	}
	if rlmErr != nil && o.memory == nil {
		return nil, rlmErr
	}

	merged := interleaveRefs(memRefs, rlmRefs)
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return merged, nil
}

// interleaveRefs merges two ranked ref lists round-robin by rank.
func interleaveRefs(a, b []Ref) []Ref {
	out := make([]Ref, 0, len(a)+len(b))
	seen := make(map[mergeKey]struct{}, len(a)+len(b))
	for i := 0; i < len(a) || i < len(b); i++ {
		for _, list := range [2][]Ref{a, b} {
			if i >= len(list) {
				continue
			}
			k := keyOf(list[i])
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, list[i])
		}
	}
	return out
}

type mergeKey struct {
	path       string
	start, end int
}

func keyOf(r Ref) mergeKey {
	return mergeKey{r.Path, r.StartLine, r.EndLine}
}

// normalizeWS collapses all whitespace runs to single spaces.
func normalizeWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncatePreview cuts a normalized snippet to previewChars runes, the
// trailing ellipsis included.
func truncatePreview(norm string, previewChars int) string {
	if utf8.RuneCountInString(norm) <= previewChars {
		return norm
	}
	if previewChars < 1 {
		return ""
	}
	runes := []rune(norm)
	return string(runes[:previewChars-1]) + "…"
}

// IsBinaryBlob reports whether a normalized snippet looks like base64 or
// other binary junk: at least 40 chars with no whitespace and entirely
// [A-Za-z0-9+/=], or containing the Unicode replacement character.
// Expanding such refs floods context with no information gain.
func IsBinaryBlob(preview string) bool {
	if strings.ContainsRune(preview, '�') {
		return true
	}
	if len(preview) < 40 {
		return false
	}
	for _, r := range preview {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '+', r == '/', r == '=':
		default:
			return false
		}
	}
	return true
}
