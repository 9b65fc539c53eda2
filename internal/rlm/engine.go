package rlm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// State is the index lifecycle state.
type State string

const (
	StateAbsent     State = "absent"
	StateBuilding   State = "building"
	StateReady      State = "ready"
	StateStale      State = "stale"
	StateRebuilding State = "rebuilding"
)

// Search path tags reported in results.
const (
	PathIndex    = "index"
	PathFallback = "fallback"
	PathHybrid   = "hybrid"
)

// coarseLimit is Kc: how many candidates survive Tier 2 into the enhanced
// matcher.
const coarseLimit = 40

// maxHitsPerSession bounds per-line hits contributed by one session.
const maxHitsPerSession = 3

// DateRange is an inclusive ISO-date filter.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SearchOptions configures one engine query.
type SearchOptions struct {
	MaxResults int
	Temporal   *DateRange
}

// Match is one per-line hit from the enhanced matcher.
type Match struct {
	SessionID  string  `json:"sessionId"`
	Path       string  `json:"path"`
	Line       int     `json:"line"`
	Text       string  `json:"text"`
	MatchScore float64 `json:"match_score"`
	Date       string  `json:"date,omitempty"`
}

// SearchResult is the engine's answer for one query.
type SearchResult struct {
	Results     []Match            `json:"results"`
	SearchPath  string             `json:"searchPath"`
	QueryTimeMs float64            `json:"queryTimeMs"`
	TotalTimeMs float64            `json:"totalTimeMs"`
	TierTimesMs map[string]float64 `json:"tierTimesMs,omitempty"`
}

// Engine runs the three-tier query pipeline over the inverted index, falling
// back to a full scan when the index cannot answer.
type Engine struct {
	sessionsDir string
	indexPath   string

	mu    sync.Mutex
	index *Index
	state State

	textCache  *lru.Cache[string, string]
	buildGroup singleflight.Group

	scorer *ExternalScorer // optional, latency-only collaborator

	now func() time.Time
}

// SetScorer installs the optional external temporal scorer. Results are
// passed through it after local ranking; any scorer failure keeps the
// local order.
func (e *Engine) SetScorer(s *ExternalScorer) { e.scorer = s }

// NewEngine creates an engine over a sessions directory and index file.
func NewEngine(sessionsDir, indexPath string) *Engine {
	cache, _ := lru.New[string, string](128)
	return &Engine{
		sessionsDir: sessionsDir,
		indexPath:   indexPath,
		state:       StateAbsent,
		textCache:   cache,
		now:         time.Now,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Search executes the three-tier pipeline. The index is built synchronously
// on first use; a corrupt or empty index routes to the fallback path.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	total := e.now()

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	tokens := uniqueTokens(Tokenize(query))
	if len(tokens) == 0 {
		return &SearchResult{Results: []Match{}, SearchPath: PathFallback}, nil
	}

	ix, err := e.ensureIndex(ctx)
	if err != nil {
		// Corruption or missing index: serve via full scan.
		slog.Warn("index unavailable, using fallback", "error", err)
		res, ferr := e.fullScan(ctx, query, tokens, opts, maxResults)
		if ferr != nil {
			return nil, ferr
		}
		res.TotalTimeMs = msSince(total, e.now)
		return res, nil
	}

	queryStart := e.now()
	tiers := make(map[string]float64, 2)

	// Tier 1: posting-list intersection, smallest list first, early exit.
	t1 := e.now()
	candidates := intersectPostings(ix, tokens)
	tiers["tier1IndexMs"] = msSince(t1, e.now)

	if len(candidates) == 0 {
		res, ferr := e.fullScan(ctx, query, tokens, opts, maxResults)
		if ferr != nil {
			return nil, ferr
		}
		res.TierTimesMs = tiers
		res.TotalTimeMs = msSince(total, e.now)
		return res, nil
	}

	// Temporal filter restricts candidates before the expensive tier.
	if opts.Temporal != nil {
		candidates = filterByDate(ix, candidates, opts.Temporal)
	}

	// Tier 2: coarse substring ranking; retain the top Kc candidates.
	t2 := e.now()
	candidates = e.coarseRank(candidates, tokens)
	if len(candidates) > coarseLimit {
		candidates = candidates[:coarseLimit]
	}
	tiers["tier2CoarseMs"] = msSince(t2, e.now)

	// Tier 3: enhanced matcher over the survivors.
	t3 := e.now()
	matches := e.enhancedScan(ctx, ix, candidates, tokens)
	tiers["tier3MatchMs"] = msSince(t3, e.now)

	searchPath := PathIndex

	// A stale index still serves queries, but sessions it has never seen
	// are scanned directly so results don't silently miss them.
	if unknown := e.unknownSessions(ix); len(unknown) > 0 {
		extra := e.enhancedScanFiles(ctx, unknown, tokens)
		if opts.Temporal != nil {
			kept := extra[:0]
			for _, m := range extra {
				if m.Date != "" && m.Date >= opts.Temporal.Start && m.Date <= opts.Temporal.End {
					kept = append(kept, m)
				}
			}
			extra = kept
		}
		matches = append(matches, extra...)
		searchPath = PathHybrid
		e.setState(StateStale)
	}

	if len(matches) == 0 {
		res, ferr := e.fullScan(ctx, query, tokens, opts, maxResults)
		if ferr != nil {
			return nil, ferr
		}
		res.TierTimesMs = tiers
		res.TotalTimeMs = msSince(total, e.now)
		return res, nil
	}

	sortMatches(matches)
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	if e.scorer != nil {
		rescored, err := e.scorer.Rescore(ctx, query, matches)
		if err != nil {
			slog.Debug("external scorer unavailable", "error", err)
		} else {
			matches = rescored
		}
	}

	return &SearchResult{
		Results:     matches,
		SearchPath:  searchPath,
		QueryTimeMs: msSince(queryStart, e.now),
		TotalTimeMs: msSince(total, e.now),
		TierTimesMs: tiers,
	}, nil
}

// ensureIndex loads the on-disk index, building it synchronously on first
// use. Concurrent first-use builds are collapsed via singleflight.
func (e *Engine) ensureIndex(ctx context.Context) (*Index, error) {
	e.mu.Lock()
	if e.index != nil {
		ix := e.index
		e.mu.Unlock()
		return ix, nil
	}
	e.mu.Unlock()

	v, err, _ := e.buildGroup.Do("load", func() (interface{}, error) {
		ix, err := LoadIndex(e.indexPath)
		if errors.Is(err, os.ErrNotExist) {
			e.setState(StateBuilding)
			ix, err = e.buildFull(ctx)
		}
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.index = ix
		e.state = StateReady
		e.mu.Unlock()
		return ix, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

// Invalidate drops the in-memory snapshot so the next query re-reads the
// index file. Called by the maintainer after an update lands.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.index = nil
	e.mu.Unlock()
}

// Rebuild discards the index and rebuilds it from every session on disk.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.setState(StateRebuilding)
	ix, err := e.buildFull(ctx)
	if err != nil {
		e.setState(StateStale)
		return err
	}
	e.mu.Lock()
	e.index = ix
	e.state = StateReady
	e.mu.Unlock()
	return nil
}

// buildFull indexes every session file under sessionsDir and persists the
// result atomically.
func (e *Engine) buildFull(ctx context.Context) (*Index, error) {
	start := e.now()
	ix := NewIndex()

	entries, err := os.ReadDir(e.sessionsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(e.sessionsDir, entry.Name())
		id := sessionIDFromFile(entry.Name())
		if _, err := indexSession(ix, id, path, 0); err != nil {
			slog.Warn("skipping session during build", "session", id, "error", err)
		}
	}

	ix.LastUpdated = e.now()
	if err := SaveIndex(ix, e.indexPath); err != nil {
		return nil, err
	}

	slog.Info("index built",
		"sessions", len(ix.Sessions),
		"tokens", len(ix.Tokens),
		"duration_ms", msSince(start, e.now))
	return ix, nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// intersectPostings implements Tier 1: look up each token's posting list,
// intersect from the smallest outward, early-exit when empty. When the
// strict intersection is empty but some tokens matched, the union is used
// so multi-token queries with one unknown token still find candidates.
func intersectPostings(ix *Index, tokens []string) []string {
	var lists [][]string
	for _, t := range tokens {
		if pl := ix.Posting(t); len(pl) > 0 {
			lists = append(lists, pl)
		}
	}
	if len(lists) == 0 {
		return nil
	}

	sort.Slice(lists, func(i, j int) bool { return len(lists[i]) < len(lists[j]) })

	result := make(map[string]struct{}, len(lists[0]))
	for _, id := range lists[0] {
		result[id] = struct{}{}
	}
	for _, pl := range lists[1:] {
		next := make(map[string]struct{})
		for _, id := range pl {
			if _, ok := result[id]; ok {
				next[id] = struct{}{}
			}
		}
		result = next
		if len(result) == 0 {
			break
		}
	}

	if len(result) == 0 {
		// Union keeps recall when one token kills the intersection.
		for _, pl := range lists {
			for _, id := range pl {
				result[id] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	sort.Strings(out) // stable posting rank
	return out
}

// coarseRank implements Tier 2: order candidates by the fraction of query
// tokens appearing as substrings in the session text.
func (e *Engine) coarseRank(candidates, tokens []string) []string {
	scores := make(map[string]float64, len(candidates))
	for _, id := range candidates {
		text, err := e.sessionText(id)
		if err != nil || text == "" {
			continue
		}
		matched := 0
		for _, t := range tokens {
			if strings.Contains(text, t) {
				matched++
			}
		}
		scores[id] = float64(matched) / float64(len(tokens))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return scores[candidates[i]] > scores[candidates[j]]
	})
	return candidates
}

// enhancedScan implements Tier 3 for indexed candidates.
func (e *Engine) enhancedScan(ctx context.Context, ix *Index, candidates, tokens []string) []Match {
	m := newMatcher(tokens)
	var out []Match
	for _, id := range candidates {
		if ctx.Err() != nil {
			break
		}
		meta := ix.Sessions[id]
		path := meta.Path
		if path == "" {
			path = filepath.Join(e.sessionsDir, id+".jsonl")
		}
		out = append(out, scanSession(m, id, path, meta.Date)...)
	}
	return out
}

// enhancedScanFiles runs the matcher over raw session files (no metadata).
func (e *Engine) enhancedScanFiles(ctx context.Context, paths []string, tokens []string) []Match {
	m := newMatcher(tokens)
	var out []Match
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		id := sessionIDFromFile(path)
		out = append(out, scanSession(m, id, path, "")...)
	}
	return out
}

// scanSession scores every record of one session and keeps its best hits.
func scanSession(m *matcher, id, path, date string) []Match {
	records, _, err := readRecords(path, 0)
	if err != nil {
		return nil
	}
	var hits []Match
	for _, rec := range records {
		score, _ := m.Score(rec.Text)
		if score <= 0 {
			continue
		}
		recDate := date
		if recDate == "" && len(rec.Timestamp) >= 10 && isISODate(rec.Timestamp[:10]) {
			recDate = rec.Timestamp[:10]
		}
		hits = append(hits, Match{
			SessionID:  id,
			Path:       "sessions/" + id + ".jsonl",
			Line:       rec.Line,
			Text:       snippet(rec.Text, 300),
			MatchScore: score,
			Date:       recDate,
		})
	}
	sortMatches(hits)
	if len(hits) > maxHitsPerSession {
		hits = hits[:maxHitsPerSession]
	}
	return hits
}

// fullScan is the fallback path: the enhanced matcher over every session on
// disk.
func (e *Engine) fullScan(ctx context.Context, query string, tokens []string, opts SearchOptions, maxResults int) (*SearchResult, error) {
	start := e.now()

	entries, err := os.ReadDir(e.sessionsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		paths = append(paths, filepath.Join(e.sessionsDir, entry.Name()))
	}

	matches := e.enhancedScanFiles(ctx, paths, tokens)

	if opts.Temporal != nil {
		filtered := matches[:0]
		for _, m := range matches {
			if m.Date != "" && m.Date >= opts.Temporal.Start && m.Date <= opts.Temporal.End {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}

	sortMatches(matches)
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	return &SearchResult{
		Results:     matches,
		SearchPath:  PathFallback,
		QueryTimeMs: msSince(start, e.now),
	}, nil
}

// unknownSessions lists session files on disk that the index has never seen.
func (e *Engine) unknownSessions(ix *Index) []string {
	entries, err := os.ReadDir(e.sessionsDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		if _, known := ix.Sessions[sessionIDFromFile(entry.Name())]; !known {
			out = append(out, filepath.Join(e.sessionsDir, entry.Name()))
		}
	}
	return out
}

// sessionText returns the lowercased concatenated message text of a session,
// cached per (session, mtime).
func (e *Engine) sessionText(id string) (string, error) {
	path := filepath.Join(e.sessionsDir, id+".jsonl")
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s@%d", id, info.ModTime().UnixNano())
	if text, ok := e.textCache.Get(key); ok {
		return text, nil
	}

	records, _, err := readRecords(path, 0)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, r := range records {
		b.WriteString(strings.ToLower(r.Text))
		b.WriteByte(' ')
	}
	text := b.String()
	e.textCache.Add(key, text)
	return text, nil
}

// filterByDate keeps candidates whose session date lies inside the range.
// Sessions with invalid or missing dates are excluded.
func filterByDate(ix *Index, candidates []string, dr *DateRange) []string {
	out := candidates[:0]
	for _, id := range candidates {
		meta := ix.Sessions[id]
		if meta.DateInvalid || meta.Date == "" {
			continue
		}
		if meta.Date >= dr.Start && meta.Date <= dr.End {
			out = append(out, id)
		}
	}
	return out
}

// sortMatches orders by score descending, ties broken by recency (newer
// date first) then by session/line for stability.
func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].MatchScore != matches[j].MatchScore {
			return matches[i].MatchScore > matches[j].MatchScore
		}
		if matches[i].Date != matches[j].Date {
			return matches[i].Date > matches[j].Date
		}
		if matches[i].SessionID != matches[j].SessionID {
			return matches[i].SessionID < matches[j].SessionID
		}
		return matches[i].Line < matches[j].Line
	})
}

// snippet truncates text for result payloads.
func snippet(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

func msSince(start time.Time, now func() time.Time) float64 {
	return float64(now().Sub(start).Microseconds()) / 1000.0
}
