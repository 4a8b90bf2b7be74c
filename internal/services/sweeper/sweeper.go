// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package sweeper periodically purges expired verification tokens and
// sessions.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = 10 * time.Minute

// Sweepable removes expired rows and reports how many it removed.
type Sweepable interface {
	Sweep(ctx context.Context) (int64, error)
}

// Target is a named Sweepable.
type Target struct {
	Name string
	Sweepable
}

type Sweeper struct {
	targets  []Target
	interval time.Duration
}

func New(interval time.Duration, targets ...Target) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{targets: targets, interval: interval}
}

// RunOnce sweeps every target once. A failing target does not stop the
// others; the first error is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (map[string]int64, error) {
	removed := make(map[string]int64, len(s.targets))
	var firstErr error
	for _, t := range s.targets {
		n, err := t.Sweep(ctx)
		if err != nil {
			slog.Error("sweep_failed", "target", t.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed[t.Name] = n
		if n > 0 {
			slog.Info("sweep_done", "target", t.Name, "removed", n)
		}
	}
	return removed, firstErr
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Debug("sweeper_started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Debug("sweeper_stopped")
			return
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		}
	}
}
