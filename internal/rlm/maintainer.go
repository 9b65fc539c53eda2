package rlm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/time/rate"
)

// Maintainer defaults.
const (
	debounceWindow = 5 * time.Second
	cooldownWindow = 30 * time.Second
	lockTimeout    = 30 * time.Second
	maxPending     = 100
	topicCount     = 10
)

// UpdateResult reports one incremental index update.
type UpdateResult struct {
	SessionID     string  `json:"sessionId"`
	MessagesAdded int     `json:"messagesAdded"`
	TimeMs        float64 `json:"timeMs"`
}

// Maintainer applies transcript-update events to the inverted index:
// incremental per-session updates guarded by an advisory file lock, with
// per-session debounce, cooldown, and a bounded pending queue.
type Maintainer struct {
	engine    *Engine
	indexPath string

	debounce time.Duration
	cooldown time.Duration

	mu      sync.Mutex
	pending map[string]*pendingUpdate
	order   []string // pending session IDs, oldest first
	limits  map[string]*rate.Limiter

	now func() time.Time
}

type pendingUpdate struct {
	path  string
	timer *time.Timer
}

// NewMaintainer creates a maintainer bound to an engine's index file.
func NewMaintainer(engine *Engine) *Maintainer {
	return &Maintainer{
		engine:    engine,
		indexPath: engine.indexPath,
		debounce:  debounceWindow,
		cooldown:  cooldownWindow,
		pending:   make(map[string]*pendingUpdate),
		limits:    make(map[string]*rate.Limiter),
		now:       time.Now,
	}
}

// HandleTranscriptUpdate schedules an incremental update for the session
// behind sessionFile. Rapid events for one session coalesce into a single
// update five seconds after the last event; a 30 s per-session cooldown
// spaces successive runs. The pending set is bounded: past 100 entries the
// oldest pending session is dropped (its next event re-creates it).
func (m *Maintainer) HandleTranscriptUpdate(sessionFile string) {
	id := SessionIDFromPath(sessionFile)
	if id == "" {
		slog.Warn("transcript update with unusable path", "path", sessionFile)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pending[id]; ok {
		p.path = sessionFile
		p.timer.Reset(m.debounce)
		return
	}

	if len(m.order) >= maxPending {
		oldest := m.order[0]
		m.order = m.order[1:]
		if p, ok := m.pending[oldest]; ok {
			p.timer.Stop()
			delete(m.pending, oldest)
		}
		slog.Warn("pending update queue full, dropped oldest", "session", oldest)
	}

	p := &pendingUpdate{path: sessionFile}
	p.timer = time.AfterFunc(m.debounce, func() { m.fire(id) })
	m.pending[id] = p
	m.order = append(m.order, id)
}

// fire runs when a session's debounce window elapses. If the session is
// still inside its cooldown the run is postponed to the cooldown's end
// rather than dropped.
func (m *Maintainer) fire(id string) {
	m.mu.Lock()
	p, ok := m.pending[id]
	if !ok {
		m.mu.Unlock()
		return
	}

	lim := m.limits[id]
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(m.cooldown), 1)
		m.limits[id] = lim
	}
	res := lim.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		p.timer.Reset(delay)
		m.mu.Unlock()
		return
	}

	path := p.path
	delete(m.pending, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if _, err := m.UpdateIndex(context.Background(), id, path); err != nil {
		// The event is dropped; the next event for this session
		// reconstructs the work from lastIndexedLine.
		slog.Warn("incremental index update failed", "session", id, "error", err)
	}
}

// Flush synchronously applies all pending updates (shutdown path).
func (m *Maintainer) Flush(ctx context.Context) {
	m.mu.Lock()
	type item struct{ id, path string }
	var items []item
	for id, p := range m.pending {
		p.timer.Stop()
		items = append(items, item{id, p.path})
	}
	m.pending = make(map[string]*pendingUpdate)
	m.order = nil
	m.mu.Unlock()

	for _, it := range items {
		if _, err := m.UpdateIndex(ctx, it.id, it.path); err != nil {
			slog.Warn("flush update failed", "session", it.id, "error", err)
		}
	}
}

// UpdateIndex incrementally indexes new messages from a session file.
// Protocol: advisory file lock (blocking, 30 s timeout), read-modify of the
// on-disk index, resume at lastIndexedLine, atomic rename on save.
func (m *Maintainer) UpdateIndex(ctx context.Context, sessionID, sessionFile string) (UpdateResult, error) {
	start := m.now()
	res := UpdateResult{SessionID: sessionID}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	lock := flock.New(m.indexPath + ".lock")
	locked, err := lock.TryLockContext(lockCtx, 10*time.Millisecond)
	if err != nil {
		return res, fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return res, fmt.Errorf("acquire index lock: timeout after %s", lockTimeout)
	}
	defer lock.Unlock()

	ix, err := LoadIndex(m.indexPath)
	if err != nil {
		ix = NewIndex()
	}

	meta := ix.Sessions[sessionID]
	records, lastLine, err := readRecords(sessionFile, meta.LastIndexedLine)
	if err != nil {
		return res, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	if len(records) == 0 {
		res.TimeMs = msSince(start, m.now)
		return res, nil
	}

	freq := make(map[string]int)
	for _, rec := range records {
		for _, tok := range Tokenize(rec.Text) {
			ix.AddPosting(tok, sessionID)
			freq[tok]++
		}
	}

	if lastLine > meta.LastIndexedLine {
		meta.LastIndexedLine = lastLine
	}
	meta.Path = sessionFile
	meta.Topics = mergeTopics(meta.Topics, freq)
	if meta.Date == "" && !meta.DateInvalid {
		date, ok := sessionDate(records)
		if !ok {
			meta.DateInvalid = true
			slog.Warn("session carries non-ISO date, temporal filtering disabled for it",
				"session", sessionID)
		} else {
			meta.Date = date
		}
	}
	ix.Sessions[sessionID] = meta
	ix.LastUpdated = m.now()

	if err := SaveIndex(ix, m.indexPath); err != nil {
		return res, err
	}
	m.engine.Invalidate()

	res.MessagesAdded = len(records)
	res.TimeMs = msSince(start, m.now)
	slog.Debug("index updated",
		"session", sessionID,
		"messages", res.MessagesAdded,
		"duration_ms", res.TimeMs)
	return res, nil
}

// indexSession indexes a whole session file into ix (full-build path).
func indexSession(ix *Index, sessionID, path string, afterLine int) (int, error) {
	records, lastLine, err := readRecords(path, afterLine)
	if err != nil {
		return 0, err
	}

	freq := make(map[string]int)
	for _, rec := range records {
		for _, tok := range Tokenize(rec.Text) {
			ix.AddPosting(tok, sessionID)
			freq[tok]++
		}
	}

	meta := ix.Sessions[sessionID]
	if lastLine > meta.LastIndexedLine {
		meta.LastIndexedLine = lastLine
	}
	meta.Path = path
	meta.Topics = mergeTopics(meta.Topics, freq)
	if meta.Date == "" && !meta.DateInvalid {
		if date, ok := sessionDate(records); ok {
			meta.Date = date
		} else {
			meta.DateInvalid = true
		}
	}
	ix.Sessions[sessionID] = meta
	return len(records), nil
}

// mergeTopics folds new token frequencies into the existing topic set and
// keeps the top tokens. Existing topics act as ties-first seeds so topic
// sets stay stable across small updates.
func mergeTopics(existing []string, freq map[string]int) []string {
	for i, t := range existing {
		// Seed weight decays with position so earlier topics persist.
		freq[t] += topicCount - i
	}

	type tf struct {
		tok string
		n   int
	}
	all := make([]tf, 0, len(freq))
	for t, n := range freq {
		all = append(all, tf{t, n})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].n != all[j].n {
			return all[i].n > all[j].n
		}
		return all[i].tok < all[j].tok
	})

	n := min(len(all), topicCount)
	topics := make([]string, 0, n)
	for _, t := range all[:n] {
		topics = append(topics, t.tok)
	}
	return topics
}
