package memory

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements chunk storage with FTS5 full-text search.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// initializes the schema with FTS5 support.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("memory chunk store opened", "path", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'memory',
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			hash TEXT NOT NULL,
			text TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			text,
			id UNINDEXED,
			path UNINDEXED,
			source UNINDEXED,
			start_line UNINDEXED,
			end_line UNINDEXED,
			tokenize='porter unicode61'
		)`,
		// File metadata for change detection on re-index.
		`CREATE TABLE IF NOT EXISTS files (
			path TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT 'memory',
			hash TEXT NOT NULL,
			mtime INTEGER NOT NULL DEFAULT 0,
			size INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}

	return nil
}

// UpsertChunk inserts or replaces a chunk and its FTS index entry.
func (s *SQLiteStore) UpsertChunk(c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tx.Exec("DELETE FROM chunks_fts WHERE id = ?", c.ID)

	_, err = tx.Exec(`INSERT OR REPLACE INTO chunks (id, path, source, start_line, end_line, hash, text, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, strftime('%s','now'))`,
		c.ID, c.Path, c.Source, c.StartLine, c.EndLine, c.Hash, c.Text)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO chunks_fts (text, id, path, source, start_line, end_line)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Text, c.ID, c.Path, c.Source, c.StartLine, c.EndLine)
	if err != nil {
		return fmt.Errorf("insert fts: %w", err)
	}

	return tx.Commit()
}

// DeleteByPath removes all chunks (and FTS entries) for a given path.
func (s *SQLiteStore) DeleteByPath(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tx.Exec("DELETE FROM chunks_fts WHERE path = ?", path)
	tx.Exec("DELETE FROM chunks WHERE path = ?", path)

	return tx.Commit()
}

// SearchFTS performs a full-text search using FTS5 with BM25 ranking.
// BM25 rank is normalized to a [0,1] score via 1/(1+|rank|).
func (s *SQLiteStore) SearchFTS(query string, opts SearchOptions) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	where := ""
	args := []interface{}{ftsQuote(query)}

	if opts.Source != "" {
		where += " AND source = ?"
		args = append(args, opts.Source)
	}
	if opts.PathPrefix != "" {
		where += " AND path LIKE ?"
		args = append(args, opts.PathPrefix+"%")
	}

	args = append(args, maxResults)

	stmt := fmt.Sprintf(`SELECT id, path, source, start_line, end_line, text,
		1.0 / (1.0 + abs(rank)) as score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?%s
		ORDER BY rank
		LIMIT ?`, where)

	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var id, path, source, text string
		var startLine, endLine int
		var score float64

		if err := rows.Scan(&id, &path, &source, &startLine, &endLine, &text, &score); err != nil {
			continue
		}

		results = append(results, SearchResult{
			Path:      path,
			StartLine: startLine,
			EndLine:   endLine,
			Score:     score,
			Snippet:   truncateSnippet(text, 700),
			Source:    source,
		})
	}

	return results, nil
}

// GetFileHash returns the stored hash for a file path, or false if not found.
func (s *SQLiteStore) GetFileHash(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hash string
	err := s.db.QueryRow("SELECT hash FROM files WHERE path = ?", path).Scan(&hash)
	if err != nil {
		return "", false
	}
	return hash, true
}

// UpsertFile stores or updates file metadata for change detection.
func (s *SQLiteStore) UpsertFile(path, source, hash string, mtime, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO files (path, source, hash, mtime, size) VALUES (?, ?, ?, ?, ?)`,
		path, source, hash, mtime, size)
	return err
}

// ChunkCount returns the number of stored chunks.
func (s *SQLiteStore) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&count)
	return count
}

// Close closes the SQLite database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ContentHash returns a truncated SHA256 hash of text content.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h[:16])
}

// ftsQuote rewrites a natural-language query for FTS5: each token quoted
// (so operator syntax like NEAR or - can't leak in) and OR-joined, since
// requiring every term would sink recall on long queries. BM25 ranking
// still rewards documents matching more terms.
func ftsQuote(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, ``) + `"`
	}
	return strings.Join(fields, " OR ")
}

func truncateSnippet(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
