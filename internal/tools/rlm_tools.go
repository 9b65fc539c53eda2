package tools

import (
	"context"
	"strings"
	"time"

	"github.com/vriveras/openclaw/internal/expand"
	"github.com/vriveras/openclaw/internal/refs"
	"github.com/vriveras/openclaw/internal/rlm"
)

// rlmModel labels the engine in tool output.
const rlmModel = "inverted-index"

// RlmSearchTool implements rlm_search: transcript search through the
// three-tier pipeline.
type RlmSearchTool struct {
	engine *rlm.Engine
}

func NewRlmSearchTool(engine *rlm.Engine) *RlmSearchTool {
	return &RlmSearchTool{engine: engine}
}

func (t *RlmSearchTool) Name() string { return "rlm_search" }

func (t *RlmSearchTool) Description() string {
	return "Search past session transcripts via the inverted index (posting intersection, coarse ranking, enhanced lexical matching). Falls back to a full scan when the index cannot answer; meta.searchPath reports which path ran."
}

func (t *RlmSearchTool) Parameters() map[string]interface{} {
	return objSchema(map[string]interface{}{
		"query":      propString("Natural language search query. Supports temporal phrases like 'yesterday' or 'last week'."),
		"maxResults": propNumber("Maximum number of results (default: 10)"),
	}, "query")
}

func (t *RlmSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query := argString(args, "query")
	if query == "" {
		return ErrorResult("query parameter is required")
	}
	if t.engine == nil {
		return JSONResult(map[string]interface{}{
			"disabled": true,
			"error":    "transcript index not available",
			"results":  []interface{}{},
			"provider": "rlm",
		})
	}

	opts := rlm.SearchOptions{
		MaxResults: argInt(args, "maxResults", 0),
	}
	if _, dr := rlm.DetectTemporal(query, time.Now()); dr != nil {
		opts.Temporal = dr
	}
	result, err := t.engine.Search(ctx, query, opts)
	if err != nil {
		return JSONResult(map[string]interface{}{
			"disabled": true,
			"error":    err.Error(),
			"results":  []interface{}{},
			"provider": "rlm",
		})
	}

	return JSONResult(map[string]interface{}{
		"results":  result.Results,
		"provider": "rlm",
		"model":    rlmModel,
		"meta": map[string]interface{}{
			"timings": map[string]interface{}{
				"queryTimeMs": result.QueryTimeMs,
				"totalTimeMs": result.TotalTimeMs,
				"tiers":       result.TierTimesMs,
			},
			"searchPath": result.SearchPath,
		},
	})
}

// RlmSearchRefsTool implements rlm_search_refs: refs-shaped results over
// the transcript engine only.
type RlmSearchRefsTool struct {
	engine *rlm.Engine
}

func NewRlmSearchRefsTool(engine *rlm.Engine) *RlmSearchRefsTool {
	return &RlmSearchRefsTool{engine: engine}
}

func (t *RlmSearchRefsTool) Name() string { return "rlm_search_refs" }

func (t *RlmSearchRefsTool) Description() string {
	return "Reference-first transcript search: returns compact refs into sessions/*.jsonl instead of full snippets. Expand selected refs with rlm_expand."
}

func (t *RlmSearchRefsTool) Parameters() map[string]interface{} {
	return objSchema(map[string]interface{}{
		"query":        propString("Natural language search query."),
		"maxResults":   propNumber("Maximum number of refs (default: 8)"),
		"previewChars": propNumber("Preview length per ref (default: 140)"),
	}, "query")
}

func (t *RlmSearchRefsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query := argString(args, "query")
	if query == "" {
		return ErrorResult("query parameter is required")
	}
	if t.engine == nil {
		return JSONResult(map[string]interface{}{
			"disabled": true,
			"error":    "transcript index not available",
			"refs":     []interface{}{},
			"provider": "rlm",
		})
	}

	maxResults := argInt(args, "maxResults", 8)
	previewChars := argInt(args, "previewChars", defaultPreviewChars)

	result, err := t.engine.Search(ctx, query, rlm.SearchOptions{MaxResults: maxResults})
	if err != nil {
		return JSONResult(map[string]interface{}{
			"disabled": true,
			"error":    err.Error(),
			"refs":     []interface{}{},
			"provider": "rlm",
		})
	}

	out := make([]refs.Ref, 0, len(result.Results))
	for _, m := range result.Results {
		if refs.IsBinaryBlob(strings.Join(strings.Fields(m.Text), " ")) {
			continue
		}
		r := refs.Ref{
			Path:      m.Path,
			StartLine: m.Line,
			EndLine:   m.Line,
			Score:     m.MatchScore,
			Source:    "sessions",
			SessionID: m.SessionID,
			Preview:   makeRefPreview(m.Text, previewChars),
		}
		out = append(out, r)
	}

	return JSONResult(map[string]interface{}{
		"query":    query,
		"refs":     out,
		"provider": "rlm",
		"model":    rlmModel,
		"meta": map[string]interface{}{
			"timings": map[string]interface{}{
				"queryTimeMs": result.QueryTimeMs,
				"totalTimeMs": result.TotalTimeMs,
			},
			"searchPath": result.SearchPath,
		},
	})
}

// makeRefPreview whitespace-normalizes and truncates a snippet.
func makeRefPreview(text string, previewChars int) string {
	norm := strings.Join(strings.Fields(text), " ")
	runes := []rune(norm)
	if len(runes) <= previewChars {
		return norm
	}
	if previewChars < 1 {
		return ""
	}
	return string(runes[:previewChars-1]) + "…"
}

// RlmExpandTool implements rlm_expand: expansion restricted to session
// transcript paths.
type RlmExpandTool struct {
	expander *expand.Engine
}

func NewRlmExpandTool(expander *expand.Engine) *RlmExpandTool {
	return &RlmExpandTool{expander: expander}
}

func (t *RlmExpandTool) Name() string { return "rlm_expand" }

func (t *RlmExpandTool) Description() string {
	return "Expand transcript refs from rlm_search_refs into bounded text windows. Only sessions/<id>.jsonl paths are accepted."
}

func (t *RlmExpandTool) Parameters() map[string]interface{} {
	return objSchema(map[string]interface{}{
		"refs": map[string]interface{}{
			"type":        "array",
			"description": "Refs to expand: [{path, startLine?, endLine?, from?, lines?}]",
		},
		"defaultLines": propNumber("Lines per ref when the ref has no range (default: 60)"),
		"maxRefs":      propNumber("Maximum refs to expand (default: 2)"),
		"maxChars":     propNumber("Character cap per expanded ref (default: 8000)"),
	}, "refs")
}

func (t *RlmExpandTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	specs, err := parseRefSpecs(args["refs"])
	if err != nil {
		return ErrorResult(err.Error())
	}
	if len(specs) == 0 {
		return ErrorResult("refs parameter is required")
	}
	for _, s := range specs {
		if !strings.HasPrefix(s.Path, "sessions/") {
			return ErrorResult("rlm_expand only accepts sessions/<id>.jsonl paths, got: " + s.Path)
		}
	}

	result := t.expander.Expand(specs, expand.Options{
		DefaultLines: argInt(args, "defaultLines", defaultExpandLines),
		MaxRefs:      argInt(args, "maxRefs", defaultMaxRefs),
		MaxChars:     argInt(args, "maxChars", defaultMaxChars),
	})

	return JSONResult(map[string]interface{}{
		"results": result.Results,
	})
}
