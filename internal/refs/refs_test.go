package refs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/vriveras/openclaw/internal/expand"
	"github.com/vriveras/openclaw/internal/memory"
)

// newTestOrchestrator builds an orchestrator over a temp workspace with the
// memory engine only (no transcript engine).
func newTestOrchestrator(t *testing.T, files map[string]string) (*Orchestrator, string) {
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
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	if err := manager.IndexAll(context.Background()); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}

	return NewOrchestrator(manager, nil, expand.NewEngine(dir)), dir
}

func TestIsBinaryBlob(t *testing.T) {
	blob := strings.Repeat("Ab1+", 50)
	if !IsBinaryBlob(blob) {
		t.Error("200-char base64 run should be flagged")
	}
	if IsBinaryBlob("ordinary prose about deployments") {
		t.Error("prose flagged as blob")
	}
	if IsBinaryBlob("short+b64=") {
		t.Error("short base64 (under 40 chars) flagged")
	}
	if !IsBinaryBlob("text with replacement � char") {
		t.Error("replacement character should be flagged")
	}
}

func TestSearchRefs_BlobFiltered(t *testing.T) {
	// qr.md's only matching line is 200 chars of [A-Za-z0-9+/=]; real.md
	// matches with prose. The blob ref must not appear.
	blob := strings.Repeat("Ab12", 24) + "+qr/" + strings.Repeat("Cd34", 24) + "===="
	if len(blob) != 200 {
		t.Fatalf("blob length = %d, want 200", len(blob))
	}
	o, _ := newTestOrchestrator(t, map[string]string{
		"memory/qr.md":   blob,
		"memory/real.md": "notes about qr code printing on labels",
	})

	res := o.SearchRefs(context.Background(), "qr", Options{PreviewChars: 140})
	if res.Disabled {
		t.Fatalf("unexpected disabled: %s", res.Error)
	}
	for _, r := range res.Refs {
		if r.Path == "memory/qr.md" {
			t.Errorf("blob ref returned: %+v", r)
		}
	}
}

func TestSearchRefs_PreviewInvariant(t *testing.T) {
	long := strings.Repeat("the deployment pipeline uses staged rollouts and canary analysis ", 20)
	o, _ := newTestOrchestrator(t, map[string]string{
		"memory/deploy.md": long,
	})

	res := o.SearchRefs(context.Background(), "deployment pipeline", Options{PreviewChars: 50})
	if len(res.Refs) == 0 {
		t.Fatal("expected refs")
	}
	for _, r := range res.Refs {
		if n := utf8.RuneCountInString(r.Preview); n > 50 {
			t.Errorf("preview %d runes exceeds previewChars", n)
		}
		if r.StartLine < 1 || r.StartLine > r.EndLine {
			t.Errorf("line invariant violated: %d..%d", r.StartLine, r.EndLine)
		}
		if strings.ContainsAny(r.Preview, "\n\t") {
			t.Errorf("preview not whitespace-normalized: %q", r.Preview)
		}
	}
}

func TestSearchRefs_NoSearcher(t *testing.T) {
	o := NewOrchestrator(nil, nil, expand.NewEngine(t.TempDir()))
	res := o.SearchRefs(context.Background(), "anything", Options{})
	if !res.Disabled {
		t.Fatal("expected disabled result without searchers")
	}
	if res.Error == "" {
		t.Error("disabled result must carry an error string")
	}
	if len(res.Refs) != 0 {
		t.Error("disabled result must carry no refs")
	}
}

func TestSearchRefs_RecursiveEarlyStop(t *testing.T) {
	// The only matching file expands to text with no derivable terms (every
	// token under 4 chars), so hop 0 produces refs but no follow-up query.
	o, _ := newTestOrchestrator(t, map[string]string{
		"memory/short.md": "abc def ghi jkl mno pqr stu vwx",
	})

	cfg := DefaultRecursiveConfig()
	cfg.MaxHops = 3
	cfg.EarlyStop = true
	res := o.SearchRefs(context.Background(), "abc def", Options{Recursive: &cfg})
	if res.Disabled {
		t.Fatalf("disabled: %s", res.Error)
	}
	if res.Recursive == nil {
		t.Fatal("recursive meta missing")
	}
	if len(res.Recursive.Hops) != 1 {
		t.Fatalf("hops = %d, want 1", len(res.Recursive.Hops))
	}
	if res.Recursive.Hops[0].NewRefs == 0 {
		t.Error("hop 0 should have found refs")
	}
	if res.Recursive.Hops[0].DerivedQuery != "" {
		t.Errorf("derived query = %q, want empty", res.Recursive.Hops[0].DerivedQuery)
	}
}

func TestSearchRefs_ZeroHopsEqualsNonRecursive(t *testing.T) {
	files := map[string]string{
		"memory/topic.md": "initial discussion of the migration plan and rollback strategy",
	}
	o, _ := newTestOrchestrator(t, files)

	plain := o.SearchRefs(context.Background(), "migration rollback", Options{})

	cfg := DefaultRecursiveConfig()
	cfg.MaxHops = 0
	degenerate := o.SearchRefs(context.Background(), "migration rollback", Options{Recursive: &cfg})

	if degenerate.Recursive != nil {
		t.Error("zero maxHops must not attach recursive meta")
	}
	if len(plain.Refs) != len(degenerate.Refs) {
		t.Fatalf("ref counts differ: %d vs %d", len(plain.Refs), len(degenerate.Refs))
	}
	for i := range plain.Refs {
		if plain.Refs[i] != degenerate.Refs[i] {
			t.Errorf("ref %d differs: %+v vs %+v", i, plain.Refs[i], degenerate.Refs[i])
		}
	}
}

func TestSearchRefs_RecursiveMonotonic(t *testing.T) {
	// Hop 0 finds seed.md; its expansion mentions "relatedtopic", which the
	// derived hop-1 query needs to reach linked.md.
	files := map[string]string{
		"memory/seed.md":   "alphaproject kickoff notes referencing relatedtopic decisions",
		"memory/linked.md": "relatedtopic deep dive with follow up actions",
	}

	refSet := func(maxHops int) map[string]bool {
		o, _ := newTestOrchestrator(t, files)
		cfg := DefaultRecursiveConfig()
		cfg.MaxHops = maxHops
		cfg.EarlyStop = false
		res := o.SearchRefs(context.Background(), "alphaproject", Options{Recursive: &cfg, MaxResults: 20})
		set := map[string]bool{}
		for _, r := range res.Refs {
			set[r.Path] = true
		}
		return set
	}

	one := refSet(1)
	two := refSet(2)

	for path := range one {
		if !two[path] {
			t.Errorf("ref %s present at maxHops=1 but missing at maxHops=2", path)
		}
	}
	if !two["memory/linked.md"] {
		t.Error("hop 1 should have reached linked.md via the derived query")
	}
}

func TestDeriveQuery(t *testing.T) {
	text := "See https://example.com/docs and update config.yaml then rerun the indexerPipeline with default settings from lines 10"
	got := DeriveQuery(text, 12)

	if !strings.Contains(got, "https://example.com/docs") {
		t.Errorf("URL missing from derived query: %q", got)
	}
	if !strings.Contains(got, "config.yaml") {
		t.Errorf("file token missing: %q", got)
	}
	for _, stop := range []string{"from", "lines", "default"} {
		for _, term := range strings.Fields(got) {
			if strings.EqualFold(term, stop) {
				t.Errorf("stopword %q leaked into derived query %q", stop, got)
			}
		}
	}
}

func TestDeriveQuery_CapAndDedupe(t *testing.T) {
	text := strings.Repeat("uniqueterm ", 5) + "alpha1 beta22 gamma33 delta44 epsilon55 zeta66 eta77 theta88 iota99 kappa11 lambda22 mu33 nu44"
	got := strings.Fields(DeriveQuery(text, 5))
	if len(got) != 5 {
		t.Fatalf("derived terms = %d, want capped at 5", len(got))
	}
	seen := map[string]bool{}
	for _, term := range got {
		if seen[term] {
			t.Errorf("duplicate term %q", term)
		}
		seen[term] = true
	}
}

func TestDeriveQuery_Empty(t *testing.T) {
	if got := DeriveQuery("ab cd ef", 10); got != "" {
		t.Errorf("expected empty derivation, got %q", got)
	}
	if got := DeriveQuery("", 10); got != "" {
		t.Errorf("expected empty for empty input, got %q", got)
	}
}

func TestInterleaveRefs(t *testing.T) {
	a := []Ref{{Path: "a1", StartLine: 1, EndLine: 1}, {Path: "a2", StartLine: 1, EndLine: 1}}
	b := []Ref{{Path: "b1", StartLine: 1, EndLine: 1}, {Path: "a1", StartLine: 1, EndLine: 1}}

	got := interleaveRefs(a, b)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (duplicate dropped)", len(got))
	}
	if got[0].Path != "a1" || got[1].Path != "b1" || got[2].Path != "a2" {
		t.Errorf("order = %v", []string{got[0].Path, got[1].Path, got[2].Path})
	}
}
