package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vriveras/openclaw/internal/expand"
	"github.com/vriveras/openclaw/internal/hooks"
	"github.com/vriveras/openclaw/internal/memory"
	"github.com/vriveras/openclaw/internal/refs"
)

// newToolStack builds a registry over a temp workspace.
func newToolStack(t *testing.T, files map[string]string) (*Registry, *hooks.Chain, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	manager, err := memory.NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { manager.Close() })
	if err := manager.IndexAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	expander := expand.NewEngine(dir)
	orchestrator := refs.NewOrchestrator(manager, nil, expander)
	chain := hooks.NewChain()

	registry := NewRegistry()
	registry.Register(NewMemorySearchTool(manager))
	registry.Register(NewMemorySearchRefsTool(orchestrator, manager, chain))
	registry.Register(NewMemoryGetTool(manager))
	registry.Register(NewMemoryExpandTool(expander, chain))
	registry.Register(NewRlmExpandTool(expander))

	return registry, chain, dir
}

func decode(t *testing.T, r *Result) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(r.ForLLM), &out); err != nil {
		t.Fatalf("tool output is not JSON: %v\n%s", err, r.ForLLM)
	}
	return out
}

func TestMemorySearch_ResultShape(t *testing.T) {
	registry, _, _ := newToolStack(t, map[string]string{
		"memory/infra.md": "the staging cluster runs on hetzner with nixos images",
	})

	res := registry.Execute(context.Background(), "memory_search", map[string]interface{}{
		"query": "staging cluster",
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}

	out := decode(t, res)
	if _, ok := out["results"]; !ok {
		t.Error("missing results field")
	}
	if _, ok := out["provider"]; !ok {
		t.Error("missing provider field")
	}
	if _, ok := out["disabled"]; ok {
		t.Error("disabled must be absent on success")
	}
}

func TestMemorySearch_DisabledWithoutManager(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewMemorySearchTool(nil))

	res := registry.Execute(context.Background(), "memory_search", map[string]interface{}{
		"query": "anything",
	})
	out := decode(t, res)
	if out["disabled"] != true {
		t.Error("expected disabled=true when the memory system is absent")
	}
	if out["error"] == "" {
		t.Error("disabled result must carry an error")
	}
}

func TestMemoryExpand_TruncationThroughToolLayer(t *testing.T) {
	line := strings.Repeat("y", 2000)
	registry, _, _ := newToolStack(t, map[string]string{
		"notes.md": strings.Join([]string{line, line, line}, "\n"),
	})

	res := registry.Execute(context.Background(), "memory_expand", map[string]interface{}{
		"refs": []interface{}{
			map[string]interface{}{"path": "notes.md", "startLine": float64(1), "endLine": float64(3)},
		},
		"defaultLines": float64(3),
		"maxRefs":      float64(1),
		"maxChars":     float64(1500),
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}

	out := decode(t, res)
	results := out["results"].([]interface{})
	text := results[0].(map[string]interface{})["text"].(string)
	if !strings.HasSuffix(text, expand.TruncationMarker) {
		t.Error("expanded text missing truncation marker")
	}
	if len(text) != 1500+len(expand.TruncationMarker) {
		t.Errorf("text length = %d, want %d", len(text), 1500+len(expand.TruncationMarker))
	}

	budget := out["budget"].(map[string]interface{})
	if budget["maxChars"].(float64) != 1500 {
		t.Errorf("budget.maxChars = %v", budget["maxChars"])
	}
}

func TestMemoryExpand_DefaultMaxRefs(t *testing.T) {
	registry, _, _ := newToolStack(t, map[string]string{
		"a.md": "alpha",
		"b.md": "bravo",
		"c.md": "charlie",
	})

	// maxRefs omitted: default 2, third ref silently dropped.
	res := registry.Execute(context.Background(), "memory_expand", map[string]interface{}{
		"refs": []interface{}{
			map[string]interface{}{"path": "a.md"},
			map[string]interface{}{"path": "b.md"},
			map[string]interface{}{"path": "c.md"},
		},
	})
	out := decode(t, res)
	results := out["results"].([]interface{})
	if len(results) != 2 {
		t.Errorf("results = %d, want 2 (default maxRefs)", len(results))
	}
}

func TestMemorySearchRefs_HookAugmentation(t *testing.T) {
	registry, chain, _ := newToolStack(t, map[string]string{
		"memory/x.md": "content about orchestration layers",
	})

	chain.Register(hooks.EventSearchRefsPost, func(_ context.Context, hc *hooks.Context) error {
		hc.AugmentedRefs = []map[string]interface{}{{"path": "augmented.md"}}
		return nil
	})

	res := registry.Execute(context.Background(), "memory_search_refs", map[string]interface{}{
		"query": "orchestration",
	})
	out := decode(t, res)
	aug, ok := out["augmentedRefs"].([]interface{})
	if !ok || len(aug) != 1 {
		t.Fatalf("augmentedRefs = %+v", out["augmentedRefs"])
	}
}

func TestMemorySearchRefs_RecursiveParam(t *testing.T) {
	registry, _, _ := newToolStack(t, map[string]string{
		"memory/x.md": "notes about the ingestion worker backlog",
	})

	res := registry.Execute(context.Background(), "memory_search_refs", map[string]interface{}{
		"query": "ingestion backlog",
		"recursive": map[string]interface{}{
			"enabled": true,
			"maxHops": float64(2),
		},
	})
	out := decode(t, res)
	rec, ok := out["recursive"].(map[string]interface{})
	if !ok {
		t.Fatal("recursive meta missing")
	}
	if _, ok := rec["hops"].([]interface{}); !ok {
		t.Error("recursive.hops missing")
	}
	if _, ok := rec["totalExpandedChars"]; !ok {
		t.Error("recursive.totalExpandedChars missing")
	}
}

func TestMemoryGet_Shape(t *testing.T) {
	registry, _, _ := newToolStack(t, map[string]string{
		"memory/list.md": "one\ntwo\nthree",
	})

	res := registry.Execute(context.Background(), "memory_get", map[string]interface{}{
		"path":  "memory/list.md",
		"from":  float64(2),
		"lines": float64(1),
	})
	out := decode(t, res)
	if out["text"] != "two" {
		t.Errorf("text = %q", out["text"])
	}
	if out["path"] != "memory/list.md" {
		t.Errorf("path = %q", out["path"])
	}
}

func TestRlmExpand_RejectsNonSessionPaths(t *testing.T) {
	registry, _, _ := newToolStack(t, map[string]string{
		"memory/x.md": "content",
	})

	res := registry.Execute(context.Background(), "rlm_expand", map[string]interface{}{
		"refs": []interface{}{
			map[string]interface{}{"path": "memory/x.md"},
		},
	})
	if !res.IsError {
		t.Fatal("rlm_expand must reject non-session paths")
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	registry := NewRegistry()
	res := registry.Execute(context.Background(), "nope", nil)
	if !res.IsError {
		t.Error("expected error for unknown tool")
	}
}

func TestParseRefSpecs(t *testing.T) {
	specs, err := parseRefSpecs([]interface{}{
		map[string]interface{}{"path": "a.md", "from": float64(3), "lines": float64(7)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if specs[0].Path != "a.md" || specs[0].From != 3 || specs[0].Lines != 7 {
		t.Errorf("spec = %+v", specs[0])
	}

	if _, err := parseRefSpecs("not an array"); err == nil {
		t.Error("expected error for non-array refs")
	}
	if _, err := parseRefSpecs([]interface{}{"not an object"}); err == nil {
		t.Error("expected error for non-object ref")
	}
}
