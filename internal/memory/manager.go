package memory

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Manager owns the workspace memory files and their chunk index.
// Indexed files are MEMORY.md and everything under memory/.
type Manager struct {
	workspaceDir string
	store        *SQLiteStore
	provider     Provider // optional external searcher, nil in local mode
}

// Provider is an optional externally backed searcher (embedding service or
// similar) merged with local FTS results. Implementations must return
// scores comparable within their own result set only.
type Provider interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
	Name() string
	Model() string
}

// NewManager opens the chunk store under <workspaceDir>/.openclaw/memory.db.
func NewManager(workspaceDir string) (*Manager, error) {
	dbDir := filepath.Join(workspaceDir, ".openclaw")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	store, err := NewSQLiteStore(filepath.Join(dbDir, "memory.db"))
	if err != nil {
		return nil, err
	}
	return &Manager{workspaceDir: workspaceDir, store: store}, nil
}

// SetProvider installs an external search provider.
func (m *Manager) SetProvider(p Provider) { m.provider = p }

// Provider returns the installed provider (nil when local-only).
func (m *Manager) Provider() Provider { return m.provider }

// Close releases the chunk store.
func (m *Manager) Close() error { return m.store.Close() }

// IndexAll (re)indexes MEMORY.md and memory/**/*.md, skipping files whose
// content hash is unchanged.
func (m *Manager) IndexAll(ctx context.Context) error {
	paths := []string{"MEMORY.md"}

	memDir := filepath.Join(m.workspaceDir, "memory")
	filepath.WalkDir(memDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".md") {
			if rel, rerr := filepath.Rel(m.workspaceDir, path); rerr == nil {
				paths = append(paths, rel)
			}
		}
		return nil
	})

	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.IndexFile(ctx, rel); err != nil && !os.IsNotExist(err) {
			slog.Warn("memory index skipped file", "path", rel, "error", err)
		}
	}
	return nil
}

// IndexFile chunks one workspace-relative file into the store.
func (m *Manager) IndexFile(_ context.Context, relPath string) error {
	abs, err := m.resolve(relPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return err
	}

	hash := ContentHash(string(data))
	if stored, ok := m.store.GetFileHash(relPath); ok && stored == hash {
		return nil
	}

	if err := m.store.DeleteByPath(relPath); err != nil {
		return err
	}

	for i, chunk := range ChunkText(string(data), 1000) {
		c := Chunk{
			ID:        fmt.Sprintf("%s#%d", relPath, i),
			Path:      relPath,
			Source:    "memory",
			StartLine: chunk.StartLine,
			EndLine:   chunk.EndLine,
			Hash:      ContentHash(chunk.Text),
			Text:      chunk.Text,
		}
		if err := m.store.UpsertChunk(c); err != nil {
			return err
		}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	return m.store.UpsertFile(relPath, "memory", hash, info.ModTime().Unix(), info.Size())
}

// Search queries the provider (when installed) and local FTS, ranking
// within each source and interleaving by per-source rank. Scores from
// different sources are never compared directly. fellBack reports that a
// configured provider failed and results are local-only.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) (results []SearchResult, fellBack bool, err error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 6
	}

	ftsResults, ftsErr := m.store.SearchFTS(query, opts)

	var provResults []SearchResult
	if m.provider != nil {
		var perr error
		provResults, perr = m.provider.Search(ctx, query, opts)
		if perr != nil {
			// Provider failure degrades to local-only.
			slog.Warn("memory provider search failed", "provider", m.provider.Name(), "error", perr)
			provResults = nil
			fellBack = true
		}
	}

	if ftsErr != nil && provResults == nil {
		return nil, fellBack, ftsErr
	}

	merged := interleave(provResults, ftsResults)

	if opts.MinScore > 0 {
		filtered := merged[:0]
		for _, r := range merged {
			if r.Score >= opts.MinScore {
				filtered = append(filtered, r)
			}
		}
		merged = filtered
	}

	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return merged, fellBack, nil
}

// interleave merges two ranked lists round-robin by rank, dropping
// duplicate (path, startLine) entries.
func interleave(a, b []SearchResult) []SearchResult {
	type key struct {
		path string
		line int
	}
	seen := make(map[key]struct{}, len(a)+len(b))
	out := make([]SearchResult, 0, len(a)+len(b))

	for i := 0; i < len(a) || i < len(b); i++ {
		for _, list := range [2][]SearchResult{a, b} {
			if i >= len(list) {
				continue
			}
			k := key{list[i].Path, list[i].StartLine}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, list[i])
		}
	}
	return out
}

// GetFile reads a workspace-relative file, optionally restricted to a line
// range. fromLine is 1-indexed; 0 reads from the beginning. numLines 0
// reads to the end.
func (m *Manager) GetFile(relPath string, fromLine, numLines int) (string, error) {
	abs, err := m.resolve(relPath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}

	content := string(data)
	if fromLine <= 0 && numLines <= 0 {
		return content, nil
	}

	lines := strings.Split(content, "\n")
	start := 0
	if fromLine > 0 {
		start = fromLine - 1
	}
	if start >= len(lines) {
		return "", nil
	}

	end := len(lines)
	if numLines > 0 && start+numLines < end {
		end = start + numLines
	}

	return strings.Join(lines[start:end], "\n"), nil
}

// resolve maps a workspace-relative path to an absolute one, rejecting
// traversal outside the workspace.
func (m *Manager) resolve(relPath string) (string, error) {
	if relPath == "" || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("path must be workspace-relative: %q", relPath)
	}
	clean := filepath.Clean(relPath)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %q", relPath)
	}
	return filepath.Join(m.workspaceDir, clean), nil
}
