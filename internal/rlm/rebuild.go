package rlm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// RebuildScheduler triggers periodic full index rebuilds on a cron
// expression (config key index.rebuildSchedule). Rebuilds reconcile any
// drift an incremental path cannot, e.g. rotated or compacted transcripts
// whose line numbers went backwards.
type RebuildScheduler struct {
	expr   string
	engine *Engine
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRebuildScheduler validates the cron expression. Empty expr returns
// (nil, nil): scheduled rebuilds are off.
func NewRebuildScheduler(expr string, engine *Engine) (*RebuildScheduler, error) {
	if expr == "" {
		return nil, nil
	}
	if err := gronx.New().IsValid(expr); !err {
		return nil, errInvalidCron(expr)
	}
	return &RebuildScheduler{expr: expr, engine: engine}, nil
}

type errInvalidCron string

func (e errInvalidCron) Error() string { return "invalid rebuild schedule: " + string(e) }

// Start runs the schedule loop until Stop or context cancellation.
func (s *RebuildScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	slog.Info("rebuild scheduler started", "schedule", s.expr)
}

// Stop halts the scheduler.
func (s *RebuildScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *RebuildScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	g := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := g.IsDue(s.expr, now)
			if err != nil || !due {
				continue
			}
			if err := s.engine.Rebuild(ctx); err != nil {
				slog.Warn("scheduled rebuild failed", "error", err)
			}
		}
	}
}
