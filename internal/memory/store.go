// Package memory provides full-text search over workspace memory files
// (MEMORY.md, memory/*.md): paragraph chunks with line ranges stored in a
// SQLite FTS5 index, plus bounded line-range reads. It is the local
// implementation of the searcher capability behind memory_search; an
// embedding-backed provider can replace it without touching callers.
package memory

// Chunk is a text fragment stored in the chunk database.
type Chunk struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Source    string `json:"source"` // "memory" or "sessions"
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Hash      string `json:"hash"`
	Text      string `json:"text"`
}

// SearchResult is a single result from a memory search.
type SearchResult struct {
	Path      string  `json:"path"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
	Source    string  `json:"source"`
}

// SearchOptions configures a search query.
type SearchOptions struct {
	MaxResults int     // top-K results
	MinScore   float64 // minimum relevance score (0-1)
	Source     string  // filter by source ("memory", "sessions", "")
	PathPrefix string  // filter by path prefix
}
