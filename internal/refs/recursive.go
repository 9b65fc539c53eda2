package refs

import (
	"context"
	"log/slog"
	"sort"

	"github.com/vriveras/openclaw/internal/expand"
)

// searchRecursive runs the bounded multi-hop loop: each hop searches with
// the current query, merges new refs into the accumulator, expands the top
// refs under the global character budget, and derives the next query from
// the expanded text. The original query is never discarded.
func (o *Orchestrator) searchRecursive(ctx context.Context, query string, opts Options, res *Result) {
	cfg := *opts.Recursive
	if cfg.MaxRefsPerHop <= 0 {
		cfg.MaxRefsPerHop = 8
	}
	if cfg.ExpandTopK <= 0 {
		cfg.ExpandTopK = 2
	}
	if cfg.DefaultLines <= 0 {
		cfg.DefaultLines = 20
	}
	if cfg.MaxCharsPerRef <= 0 {
		cfg.MaxCharsPerRef = 8000
	}
	if cfg.MaxTotalExpandedChars <= 0 {
		cfg.MaxTotalExpandedChars = 12000
	}
	if cfg.DerivedQueryMaxTerms <= 0 {
		cfg.DerivedQueryMaxTerms = 12
	}

	meta := &RecursiveMeta{Enabled: true, Budget: cfg, Hops: []HopInfo{}}
	res.Recursive = meta

	acc := make(map[mergeKey]*Ref)
	var order []mergeKey // insertion order for stable output of equal scores
	remaining := cfg.MaxTotalExpandedChars

	q := query
	for hop := 0; hop < cfg.MaxHops; hop++ {
		batch, err := o.searchOnce(ctx, q, cfg.MaxRefsPerHop, opts.MinScore, opts.PreviewChars)
		if err != nil {
			if hop == 0 {
				res.Disabled = true
				res.Error = err.Error()
				return
			}
			// A later hop's searcher failure ends the loop; earlier hops
			// already produced refs.
			slog.Warn("recursive hop search failed", "hop", hop, "error", err)
			break
		}

		newRefs := 0
		for i := range batch {
			k := keyOf(batch[i])
			if existing, ok := acc[k]; ok {
				// First writer wins on hop; keep the best score seen.
				if batch[i].Score > existing.Score {
					existing.Score = batch[i].Score
				}
				continue
			}
			r := batch[i]
			r.Hop = hop
			acc[k] = &r
			order = append(order, k)
			newRefs++
		}

		info := HopInfo{Hop: hop, Query: q, NewRefs: newRefs}

		expanded := o.expandTop(acc, order, cfg, &remaining)
		derived := DeriveQuery(expanded, cfg.DerivedQueryMaxTerms)
		info.DerivedQuery = derived
		meta.Hops = append(meta.Hops, info)

		if cfg.EarlyStop && newRefs == 0 {
			break
		}
		if derived == "" {
			break
		}
		q = query + " " + derived
	}

	meta.TotalExpandedChars = cfg.MaxTotalExpandedChars - remaining

	out := make([]Ref, 0, len(order))
	for _, k := range order {
		out = append(out, *acc[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if opts.MaxResults > 0 && len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}
	res.Refs = out
}

// expandTop expands the accumulator's top refs by score and returns the
// concatenated expanded text for query derivation. A per-ref expand failure
// aborts only that expansion.
func (o *Orchestrator) expandTop(acc map[mergeKey]*Ref, order []mergeKey, cfg RecursiveConfig, remaining *int) string {
	if *remaining <= 0 {
		return ""
	}

	refs := make([]Ref, 0, len(order))
	for _, k := range order {
		refs = append(refs, *acc[k])
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Score > refs[j].Score })
	if len(refs) > cfg.ExpandTopK {
		refs = refs[:cfg.ExpandTopK]
	}

	specs := make([]expand.RefSpec, len(refs))
	for i, r := range refs {
		specs[i] = expand.RefSpec{Path: r.Path, StartLine: r.StartLine, EndLine: r.EndLine}
	}

	result := o.expander.Expand(specs, expand.Options{
		DefaultLines:    cfg.DefaultLines,
		MaxRefs:         len(specs),
		MaxChars:        cfg.MaxCharsPerRef,
		GlobalRemaining: remaining,
	})

	var parts []string
	for _, w := range result.Results {
		if w.Error != "" {
			slog.Debug("recursive expansion failed for ref", "path", w.Path, "error", w.Error)
			continue
		}
		parts = append(parts, w.Text)
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}
