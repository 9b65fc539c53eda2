// Package config loads the retrieval core's configuration from a JSON5
// file and watches it for changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

// Config is the root configuration document.
type Config struct {
	// WorkspaceDir holds MEMORY.md, memory/ and sessions/.
	WorkspaceDir string `json:"workspaceDir"`

	// SessionsDir overrides <workspace>/sessions.
	SessionsDir string `json:"sessionsDir,omitempty"`

	// IndexPath overrides <workspace>/.openclaw/inverted-index.json.
	IndexPath string `json:"indexPath,omitempty"`

	Index     IndexConfig     `json:"index"`
	Recursive RecursiveConfig `json:"recursive"`
	Eval      EvalConfig      `json:"eval"`
}

// IndexConfig tunes the maintainer and engine.
type IndexConfig struct {
	// RebuildSchedule is an optional cron expression for periodic full
	// rebuilds (e.g. "0 */6 * * *").
	RebuildSchedule string `json:"rebuildSchedule,omitempty"`

	// ScorerCommand is an optional external temporal-scorer CLI, invoked
	// as a JSON-in/JSON-out black box with a strict timeout.
	ScorerCommand string `json:"scorerCommand,omitempty"`
}

// RecursiveConfig mirrors the recursive retrieval defaults; zero values
// fall back to the documented defaults at call time.
type RecursiveConfig struct {
	MaxHops               int  `json:"maxHops,omitempty"`
	MaxRefsPerHop         int  `json:"maxRefsPerHop,omitempty"`
	ExpandTopK            int  `json:"expandTopK,omitempty"`
	DefaultLines          int  `json:"defaultLines,omitempty"`
	MaxCharsPerRef        int  `json:"maxCharsPerRef,omitempty"`
	MaxTotalExpandedChars int  `json:"maxTotalExpandedChars,omitempty"`
	DerivedQueryMaxTerms  int  `json:"derivedQueryMaxTerms,omitempty"`
	EarlyStop             bool `json:"earlyStop,omitempty"`
}

// EvalConfig holds harness defaults.
type EvalConfig struct {
	GroundTruthPath string `json:"groundTruthPath,omitempty"`
	ReportPath      string `json:"reportPath,omitempty"`
}

// Default returns a config rooted at dir.
func Default(dir string) *Config {
	return &Config{WorkspaceDir: dir}
}

// Load reads and parses a JSON5 config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json5.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = filepath.Dir(path)
	}
	return &cfg, nil
}

// Sessions returns the effective sessions directory.
func (c *Config) Sessions() string {
	if c.SessionsDir != "" {
		return c.SessionsDir
	}
	return filepath.Join(c.WorkspaceDir, "sessions")
}

// IndexFile returns the effective inverted-index path.
func (c *Config) IndexFile() string {
	if c.IndexPath != "" {
		return c.IndexPath
	}
	return filepath.Join(c.WorkspaceDir, ".openclaw", "inverted-index.json")
}
