package rlm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	shellwords "github.com/mattn/go-shellwords"
)

// External scorer bounds. The scorer is a latency optimization only; its
// absence or failure never affects correctness.
const (
	scorerTimeout   = 30 * time.Second
	scorerMaxOutput = 4 << 20
)

// ExternalScorer shells out to a configured temporal-search CLI, treated as
// a JSON-in/JSON-out black box with a strict timeout and a bounded stdout
// buffer.
type ExternalScorer struct {
	argv []string
}

// NewExternalScorer parses the configured command line. An empty command
// returns (nil, nil): the scorer is simply not configured.
func NewExternalScorer(command string) (*ExternalScorer, error) {
	if command == "" {
		return nil, nil
	}
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse scorer command: %w", err)
	}
	if len(argv) == 0 {
		return nil, nil
	}
	return &ExternalScorer{argv: argv}, nil
}

// scorerRequest is the JSON document written to the child's stdin.
type scorerRequest struct {
	Query   string  `json:"query"`
	Results []Match `json:"results"`
}

// scorerResponse is the expected child output.
type scorerResponse struct {
	Results []Match `json:"results"`
}

// Rescore passes matches through the external CLI and returns its ranking.
// On any failure (spawn, timeout, oversized or malformed output) the input
// is returned unchanged with the error for logging.
func (s *ExternalScorer) Rescore(ctx context.Context, query string, matches []Match) ([]Match, error) {
	ctx, cancel := context.WithTimeout(ctx, scorerTimeout)
	defer cancel()

	input, err := json.Marshal(scorerRequest{Query: query, Results: matches})
	if err != nil {
		return matches, err
	}

	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return matches, err
	}
	if err := cmd.Start(); err != nil {
		return matches, fmt.Errorf("start scorer: %w", err)
	}

	out, readErr := io.ReadAll(io.LimitReader(stdout, scorerMaxOutput+1))
	waitErr := cmd.Wait()

	if readErr != nil {
		return matches, readErr
	}
	if len(out) > scorerMaxOutput {
		return matches, fmt.Errorf("scorer output exceeds %d bytes", scorerMaxOutput)
	}
	if waitErr != nil {
		return matches, fmt.Errorf("scorer: %w", waitErr)
	}

	var resp scorerResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return matches, fmt.Errorf("parse scorer output: %w", err)
	}
	if len(resp.Results) == 0 {
		slog.Debug("external scorer returned no results, keeping local ranking")
		return matches, nil
	}
	return resp.Results, nil
}
