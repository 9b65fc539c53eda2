package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestChunkText(t *testing.T) {
	text := `# Title

First paragraph with some content.
More content in the same paragraph.

Second paragraph here.
And a second line.

Third paragraph is short.`

	chunks := ChunkText(text, 100)

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if chunks[0].StartLine != 1 {
		t.Errorf("first chunk start line = %d, want 1", chunks[0].StartLine)
	}
	for i, c := range chunks {
		if c.Text == "" {
			t.Errorf("chunk %d has empty text", i)
		}
		if c.StartLine < 1 || c.StartLine > c.EndLine {
			t.Errorf("chunk %d line range %d..%d invalid", i, c.StartLine, c.EndLine)
		}
	}
}

func TestChunkText_SingleParagraph(t *testing.T) {
	chunks := ChunkText("Short text.", 1000)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "Short text." {
		t.Errorf("text = %q", chunks[0].Text)
	}
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, dir
}

func writeWorkspaceFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestManager_IndexAndSearch(t *testing.T) {
	m, dir := newTestManager(t)
	writeWorkspaceFile(t, dir, "MEMORY.md", "The project uses Go with SQLite FTS5 for retrieval")
	writeWorkspaceFile(t, dir, "memory/notes.md", "Authentication is handled via rotating JWT tokens")

	if err := m.IndexAll(context.Background()); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}

	results, fellBack, err := m.Search(context.Background(), "sqlite retrieval", SearchOptions{MaxResults: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if fellBack {
		t.Error("no provider configured, fellBack must be false")
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Path != "MEMORY.md" {
		t.Errorf("top path = %s, want MEMORY.md", results[0].Path)
	}
	if results[0].StartLine < 1 {
		t.Errorf("startLine = %d", results[0].StartLine)
	}
}

func TestManager_ReindexSkipsUnchanged(t *testing.T) {
	m, dir := newTestManager(t)
	writeWorkspaceFile(t, dir, "memory/a.md", "stable content for hashing")

	if err := m.IndexFile(context.Background(), "memory/a.md"); err != nil {
		t.Fatal(err)
	}
	before := m.store.ChunkCount()

	// Unchanged file: second index is a no-op.
	if err := m.IndexFile(context.Background(), "memory/a.md"); err != nil {
		t.Fatal(err)
	}
	if after := m.store.ChunkCount(); after != before {
		t.Errorf("chunk count changed on unchanged reindex: %d -> %d", before, after)
	}
}

func TestManager_GetFileRange(t *testing.T) {
	m, dir := newTestManager(t)
	writeWorkspaceFile(t, dir, "memory/list.md", "one\ntwo\nthree\nfour")

	text, err := m.GetFile("memory/list.md", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if text != "two\nthree" {
		t.Errorf("range text = %q", text)
	}

	full, err := m.GetFile("memory/list.md", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(full, "one") || !strings.HasSuffix(full, "four") {
		t.Errorf("full text = %q", full)
	}
}

func TestManager_GetFileRejectsTraversal(t *testing.T) {
	m, _ := newTestManager(t)

	for _, p := range []string{"../outside.md", "/etc/passwd", "memory/../../x.md", ""} {
		if _, err := m.GetFile(p, 0, 0); err == nil {
			t.Errorf("path %q: expected error", p)
		}
	}
}

func TestInterleave(t *testing.T) {
	a := []SearchResult{{Path: "p1", StartLine: 1}, {Path: "p2", StartLine: 1}}
	b := []SearchResult{{Path: "p3", StartLine: 1}, {Path: "p1", StartLine: 1}}

	got := interleave(a, b)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Path != "p1" || got[1].Path != "p3" || got[2].Path != "p2" {
		t.Errorf("order = %v", []string{got[0].Path, got[1].Path, got[2].Path})
	}
}

func TestFtsQuote(t *testing.T) {
	got := ftsQuote(`select NEAR "quoted" term`)
	if strings.Contains(got, `""`) || !strings.Contains(got, `"NEAR"`) {
		t.Errorf("ftsQuote = %q", got)
	}
	if !strings.Contains(got, " OR ") {
		t.Errorf("terms not OR-joined: %q", got)
	}
}
