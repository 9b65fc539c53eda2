package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// GroundTruthInfo identifies the suite a report was produced against.
type GroundTruthInfo struct {
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Report is the append-only evaluation document. It is rewritten atomically
// after every completed suite so long runs are restartable.
type Report struct {
	GeneratedAt time.Time              `json:"generatedAt"`
	GroundTruth GroundTruthInfo        `json:"groundTruth"`
	Defaults    map[string]interface{} `json:"defaults"`
	Suites      []*Suite               `json:"suites"`
	Sweep       *SweepResult           `json:"sweep,omitempty"`
}

// NewReport starts an empty report.
func NewReport(gt *GroundTruth, defaults map[string]interface{}) *Report {
	return &Report{
		GeneratedAt: time.Now(),
		GroundTruth: GroundTruthInfo{Description: gt.Description, Version: gt.Version},
		Defaults:    defaults,
		Suites:      []*Suite{},
	}
}

// LoadReport re-reads a checkpointed report for --resume.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}

// HasSuite reports whether a suite with the label is already present.
func (r *Report) HasSuite(label string) bool {
	for _, s := range r.Suites {
		if s.Label == label {
			return true
		}
	}
	return false
}

// AddSuite appends a completed suite.
func (r *Report) AddSuite(s *Suite) {
	r.Suites = append(r.Suites, s)
}

// Checkpoint rewrites the report atomically (temp file + fsync + rename),
// the same discipline as the inverted index file.
func (r *Report) Checkpoint(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
