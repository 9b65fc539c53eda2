// Package eval implements the evaluation harness: reproducible retrieval
// metrics (accuracy by substring evidence, token cost, latency, expansion
// counts) over a ground-truth suite, with parameter sweeps and a
// checkpointable, resumable report.
package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Expectation is the pass criterion for a case: any expected substring
// appears (case-insensitive) in any executed mode's output.
type Expectation struct {
	AnyContains []string `json:"anyContains" yaml:"anyContains"`
	PathsLike   []string `json:"pathsLike,omitempty" yaml:"pathsLike,omitempty"`
}

// Case is one ground-truth query.
type Case struct {
	ID     string      `json:"id" yaml:"id"`
	Query  string      `json:"query" yaml:"query"`
	Expect Expectation `json:"expect" yaml:"expect"`
}

// GroundTruth is a suite of cases.
type GroundTruth struct {
	Description string `json:"description" yaml:"description"`
	Version     string `json:"version" yaml:"version"`
	Cases       []Case `json:"cases" yaml:"cases"`
}

// LoadGroundTruth reads a suite from a YAML or JSON file.
func LoadGroundTruth(path string) (*GroundTruth, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var gt GroundTruth
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &gt)
	default:
		err = json.Unmarshal(data, &gt)
	}
	if err != nil {
		return nil, fmt.Errorf("parse ground truth %s: %w", path, err)
	}

	if len(gt.Cases) == 0 {
		return nil, fmt.Errorf("ground truth %s has no cases", path)
	}
	for i, c := range gt.Cases {
		if c.ID == "" || c.Query == "" || len(c.Expect.AnyContains) == 0 {
			return nil, fmt.Errorf("ground truth case %d incomplete (id, query, expect.anyContains required)", i)
		}
	}
	return &gt, nil
}

// passes reports whether output satisfies the expectation.
func (e Expectation) passes(output string) bool {
	lower := strings.ToLower(output)
	for _, want := range e.AnyContains {
		if strings.Contains(lower, strings.ToLower(want)) {
			return true
		}
	}
	return false
}
