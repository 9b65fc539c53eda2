// Package expand reads the bounded text windows that refs point at. All
// output is budgeted: a per-ref character cap with an observable truncation
// marker, and an optional global budget consumed in order.
package expand

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TruncationMarker is appended verbatim whenever a window was cut short.
const TruncationMarker = "\n…TRUNCATED…"

// maxWindowLines clamps any single window.
const maxWindowLines = 400

// RefSpec identifies a window to expand. Either from/lines or
// startLine/endLine may be given; from/lines wins.
type RefSpec struct {
	Path      string `json:"path"`
	StartLine int    `json:"startLine,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
	From      int    `json:"from,omitempty"`
	Lines     int    `json:"lines,omitempty"`
}

// Window is one expanded result. Error is set for per-ref failures; the
// remaining fields are then zero.
type Window struct {
	Path  string `json:"path"`
	From  int    `json:"from,omitempty"`
	Lines int    `json:"lines,omitempty"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Budget echoes the limits an expansion ran under.
type Budget struct {
	MaxRefs      int `json:"maxRefs"`
	DefaultLines int `json:"defaultLines"`
	MaxChars     int `json:"maxChars"`
}

// Options configures one Expand call.
type Options struct {
	DefaultLines int
	MaxRefs      int
	MaxChars     int

	// GlobalRemaining, when non-nil, is a shared character budget consumed
	// in ref order; once exhausted, remaining refs are skipped. Used by the
	// recursive retrieval loop.
	GlobalRemaining *int
}

// Result is the outcome of one Expand call.
type Result struct {
	Results []Window `json:"results"`
	Budget  Budget   `json:"budget"`
}

// Engine expands refs against a workspace root.
type Engine struct {
	workspaceDir string
}

// NewEngine creates an expand engine rooted at workspaceDir.
func NewEngine(workspaceDir string) *Engine {
	return &Engine{workspaceDir: workspaceDir}
}

// Expand reads each ref's window. Refs beyond MaxRefs are silently dropped
// from the tail. A failing ref yields a per-ref error; siblings still
// expand. Budget overruns are never errors, only truncation.
func (e *Engine) Expand(refs []RefSpec, opts Options) *Result {
	if opts.DefaultLines <= 0 {
		opts.DefaultLines = 60
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 8000
	}
	if opts.MaxRefs < 0 {
		opts.MaxRefs = 0
	}

	res := &Result{
		Results: []Window{},
		Budget: Budget{
			MaxRefs:      opts.MaxRefs,
			DefaultLines: opts.DefaultLines,
			MaxChars:     opts.MaxChars,
		},
	}

	if opts.MaxRefs == 0 {
		return res
	}
	if len(refs) > opts.MaxRefs {
		refs = refs[:opts.MaxRefs]
	}

	for _, ref := range refs {
		if opts.GlobalRemaining != nil && *opts.GlobalRemaining <= 0 {
			break
		}
		res.Results = append(res.Results, e.expandOne(ref, opts))
	}
	return res
}

func (e *Engine) expandOne(ref RefSpec, opts Options) Window {
	abs, err := e.resolve(ref.Path)
	if err != nil {
		return Window{Path: ref.Path, Error: err.Error()}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return Window{Path: ref.Path, Error: fmt.Sprintf("read: %v", err)}
	}

	fileLines := strings.Split(string(data), "\n")

	from := ref.From
	if from == 0 {
		from = ref.StartLine
	}
	if from == 0 {
		from = 1
	}

	lines := ref.Lines
	if lines == 0 && ref.EndLine > 0 && ref.StartLine > 0 {
		lines = ref.EndLine - ref.StartLine + 1
	}
	if lines == 0 {
		lines = opts.DefaultLines
	}
	if lines < 1 {
		lines = 1
	}
	if lines > maxWindowLines {
		lines = maxWindowLines
	}

	if from < 1 {
		from = 1
	}
	if from > len(fileLines) {
		return Window{Path: ref.Path, Error: fmt.Sprintf("line %d past end of file (%d lines)", from, len(fileLines))}
	}

	end := from - 1 + lines
	if end > len(fileLines) {
		end = len(fileLines)
	}
	text := strings.Join(fileLines[from-1:end], "\n")

	maxChars := opts.MaxChars
	if opts.GlobalRemaining != nil && *opts.GlobalRemaining < maxChars {
		maxChars = *opts.GlobalRemaining
	}
	if len(text) > maxChars {
		text = text[:maxChars] + TruncationMarker
	}
	if opts.GlobalRemaining != nil {
		*opts.GlobalRemaining -= len(text)
	}

	return Window{
		Path:  ref.Path,
		From:  from,
		Lines: end - from + 1,
		Text:  text,
	}
}

// resolve validates a ref path and maps it into the workspace. Session
// paths must look exactly like sessions/<file>.jsonl with no separators or
// parent references inside <file>.
func (e *Engine) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute path not allowed: %q", path)
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path traversal not allowed: %q", path)
	}

	if strings.HasPrefix(path, "sessions/") {
		file := strings.TrimPrefix(path, "sessions/")
		if file == "" || strings.ContainsAny(file, `/\`) || !strings.HasSuffix(file, ".jsonl") {
			return "", fmt.Errorf("invalid session path: %q", path)
		}
	}

	return filepath.Join(e.workspaceDir, filepath.Clean(path)), nil
}
