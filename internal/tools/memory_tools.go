package tools

import (
	"context"
	"fmt"

	"github.com/vriveras/openclaw/internal/expand"
	"github.com/vriveras/openclaw/internal/hooks"
	"github.com/vriveras/openclaw/internal/memory"
	"github.com/vriveras/openclaw/internal/refs"
)

// Defaults for the tool surface.
const (
	defaultPreviewChars = 140
	defaultExpandLines  = 60
	defaultMaxRefs      = 2
	defaultMaxChars     = 8000
)

// MemorySearchTool implements memory_search: snippet-heavy search over
// workspace memory files.
type MemorySearchTool struct {
	manager *memory.Manager
}

func NewMemorySearchTool(manager *memory.Manager) *MemorySearchTool {
	return &MemorySearchTool{manager: manager}
}

func (t *MemorySearchTool) Name() string { return "memory_search" }

func (t *MemorySearchTool) Description() string {
	return "Search MEMORY.md and memory/*.md for relevant snippets before answering questions about prior work, decisions, dates, people, preferences, or todos. Returns top snippets with path + lines. If the response has disabled=true, memory retrieval is unavailable."
}

func (t *MemorySearchTool) Parameters() map[string]interface{} {
	return objSchema(map[string]interface{}{
		"query":      propString("Natural language search query."),
		"maxResults": propNumber("Maximum number of results to return (default: 6)"),
		"minScore":   propNumber("Minimum relevance score threshold (0-1)"),
	}, "query")
}

func (t *MemorySearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query := argString(args, "query")
	if query == "" {
		return ErrorResult("query parameter is required")
	}
	if t.manager == nil {
		return JSONResult(map[string]interface{}{
			"disabled": true,
			"error":    "memory system not available",
			"results":  []interface{}{},
			"provider": "none",
		})
	}

	results, fellBack, err := t.manager.Search(ctx, query, memory.SearchOptions{
		MaxResults: argInt(args, "maxResults", 0),
		MinScore:   argFloat(args, "minScore", 0),
	})
	if err != nil {
		return JSONResult(map[string]interface{}{
			"disabled": true,
			"error":    err.Error(),
			"results":  []interface{}{},
			"provider": providerName(t.manager),
		})
	}

	payload := map[string]interface{}{
		"results":  results,
		"provider": providerName(t.manager),
		"model":    providerModel(t.manager),
	}
	if fellBack {
		payload["fallback"] = true
	}
	return JSONResult(payload)
}

// MemorySearchRefsTool implements memory_search_refs: the refs-first entry
// point, optionally recursive.
type MemorySearchRefsTool struct {
	orchestrator *refs.Orchestrator
	manager      *memory.Manager
	chain        *hooks.Chain
}

func NewMemorySearchRefsTool(o *refs.Orchestrator, manager *memory.Manager, chain *hooks.Chain) *MemorySearchRefsTool {
	return &MemorySearchRefsTool{orchestrator: o, manager: manager, chain: chain}
}

func (t *MemorySearchRefsTool) Name() string { return "memory_search_refs" }

func (t *MemorySearchRefsTool) Description() string {
	return "Reference-first memory search: returns compact refs (path, line range, short preview) instead of full snippets. Expand selected refs with memory_expand to keep context small. Set recursive to follow leads across multiple hops."
}

func (t *MemorySearchRefsTool) Parameters() map[string]interface{} {
	return objSchema(map[string]interface{}{
		"query":        propString("Natural language search query."),
		"maxResults":   propNumber("Maximum number of refs to return (default: 8)"),
		"minScore":     propNumber("Minimum relevance score threshold (0-1)"),
		"previewChars": propNumber("Preview length per ref (default: 140)"),
		"recursive": map[string]interface{}{
			"type":        "object",
			"description": "Recursive retrieval config: {enabled, maxHops, maxRefsPerHop, expandTopK, defaultLines, maxCharsPerRef, maxTotalExpandedChars, derivedQueryMaxTerms, earlyStop}",
		},
	}, "query")
}

func (t *MemorySearchRefsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query := argString(args, "query")
	if query == "" {
		return ErrorResult("query parameter is required")
	}

	opts := refs.Options{
		MaxResults:   argInt(args, "maxResults", 0),
		MinScore:     argFloat(args, "minScore", 0),
		PreviewChars: argInt(args, "previewChars", defaultPreviewChars),
	}
	if rc, ok := args["recursive"].(map[string]interface{}); ok {
		opts.Recursive = parseRecursiveConfig(rc)
	}

	result := t.orchestrator.SearchRefs(ctx, query, opts)

	payload := map[string]interface{}{
		"query":    result.Query,
		"refs":     result.Refs,
		"provider": result.Provider,
		"model":    result.Model,
	}
	if result.Disabled {
		payload["disabled"] = true
		payload["error"] = result.Error
	}
	if result.Recursive != nil {
		payload["recursive"] = result.Recursive
	}

	hc := t.chain.Emit(ctx, hooks.EventSearchRefsPost, payload)
	if hc.AugmentedRefs != nil {
		payload["augmentedRefs"] = hc.AugmentedRefs
	}
	return JSONResult(payload)
}

// parseRecursiveConfig decodes the recursive parameter object, applying
// the documented defaults for absent fields.
func parseRecursiveConfig(rc map[string]interface{}) *refs.RecursiveConfig {
	cfg := refs.DefaultRecursiveConfig()
	cfg.Enabled = argBool(rc, "enabled", true)
	cfg.MaxHops = argInt(rc, "maxHops", cfg.MaxHops)
	cfg.MaxRefsPerHop = argInt(rc, "maxRefsPerHop", cfg.MaxRefsPerHop)
	cfg.ExpandTopK = argInt(rc, "expandTopK", cfg.ExpandTopK)
	cfg.DefaultLines = argInt(rc, "defaultLines", cfg.DefaultLines)
	cfg.MaxCharsPerRef = argInt(rc, "maxCharsPerRef", cfg.MaxCharsPerRef)
	cfg.MaxTotalExpandedChars = argInt(rc, "maxTotalExpandedChars", cfg.MaxTotalExpandedChars)
	cfg.DerivedQueryMaxTerms = argInt(rc, "derivedQueryMaxTerms", cfg.DerivedQueryMaxTerms)
	cfg.EarlyStop = argBool(rc, "earlyStop", cfg.EarlyStop)
	return &cfg
}

// MemoryGetTool implements memory_get: a bounded line-range read of one
// memory file.
type MemoryGetTool struct {
	manager *memory.Manager
}

func NewMemoryGetTool(manager *memory.Manager) *MemoryGetTool {
	return &MemoryGetTool{manager: manager}
}

func (t *MemoryGetTool) Name() string { return "memory_get" }

func (t *MemoryGetTool) Description() string {
	return "Safe snippet read from MEMORY.md or memory/*.md with optional from/lines; use after memory_search to pull only the needed lines and keep context small."
}

func (t *MemoryGetTool) Parameters() map[string]interface{} {
	return objSchema(map[string]interface{}{
		"path":  propString("Relative path to memory file (e.g., 'MEMORY.md' or 'memory/notes.md')"),
		"from":  propNumber("Start line number (1-indexed). Omit to read from beginning."),
		"lines": propNumber("Number of lines to read. Omit to read entire file."),
	}, "path")
}

func (t *MemoryGetTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path := argString(args, "path")
	if path == "" {
		return ErrorResult("path parameter is required")
	}
	if t.manager == nil {
		return ErrorResult("memory system not available")
	}

	from := argInt(args, "from", 0)
	lines := argInt(args, "lines", 0)

	text, err := t.manager.GetFile(path, from, lines)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read %s: %v", path, err))
	}

	if from <= 0 {
		from = 1
	}
	return JSONResult(map[string]interface{}{
		"path":  path,
		"from":  from,
		"lines": lines,
		"text":  text,
	})
}

// MemoryExpandTool implements memory_expand: batch expansion of refs into
// bounded text windows.
type MemoryExpandTool struct {
	expander *expand.Engine
	chain    *hooks.Chain
}

func NewMemoryExpandTool(expander *expand.Engine, chain *hooks.Chain) *MemoryExpandTool {
	return &MemoryExpandTool{expander: expander, chain: chain}
}

func (t *MemoryExpandTool) Name() string { return "memory_expand" }

func (t *MemoryExpandTool) Description() string {
	return "Expand refs returned by memory_search_refs into bounded text windows. Per-ref output is capped at maxChars with an explicit truncation marker; refs past maxRefs are dropped."
}

func (t *MemoryExpandTool) Parameters() map[string]interface{} {
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

func (t *MemoryExpandTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	specs, err := parseRefSpecs(args["refs"])
	if err != nil {
		return ErrorResult(err.Error())
	}
	if len(specs) == 0 {
		return ErrorResult("refs parameter is required")
	}

	result := t.expander.Expand(specs, expand.Options{
		DefaultLines: argInt(args, "defaultLines", defaultExpandLines),
		MaxRefs:      argInt(args, "maxRefs", defaultMaxRefs),
		MaxChars:     argInt(args, "maxChars", defaultMaxChars),
	})

	payload := map[string]interface{}{
		"results": result.Results,
		"budget":  result.Budget,
	}

	hc := t.chain.Emit(ctx, hooks.EventExpandPost, payload)
	if hc.AugmentedExpanded != nil {
		payload["augmentedExpanded"] = hc.AugmentedExpanded
	}
	return JSONResult(payload)
}

// parseRefSpecs decodes the refs argument array.
func parseRefSpecs(v interface{}) ([]expand.RefSpec, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("refs must be an array")
	}
	specs := make([]expand.RefSpec, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("refs[%d] must be an object", i)
		}
		specs = append(specs, expand.RefSpec{
			Path:      argString(m, "path"),
			StartLine: argInt(m, "startLine", 0),
			EndLine:   argInt(m, "endLine", 0),
			From:      argInt(m, "from", 0),
			Lines:     argInt(m, "lines", 0),
		})
	}
	return specs, nil
}

func providerName(m *memory.Manager) string {
	if m != nil && m.Provider() != nil {
		return m.Provider().Name()
	}
	return "fts"
}

func providerModel(m *memory.Manager) string {
	if m != nil && m.Provider() != nil {
		return m.Provider().Model()
	}
	return "sqlite-fts5"
}

// Schema helpers shared by the tool definitions.

func objSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func propString(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func propNumber(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": desc}
}
