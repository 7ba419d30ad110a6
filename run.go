package singleton

import (
	"context"
	"time"
)

// WorkFunc is the exclusive activity run while holding the lock.
// It should return when ctx is done.
type WorkFunc func(ctx context.Context) error

// Run is the standard daemon loop. It reclaims any stale lock on
// the resource, then polls for the lock. While it holds the lock it
// runs work; once work returns, or ctx is done, the lock is released.
// A failed reclaim is answered immediately. Otherwise Run answers
// nil when ctx is done.
func Run(ctx context.Context, m *Manager, opts RunOpts, work WorkFunc) error {
	if m == nil || work == nil || opts.Resource == "" {
		return ErrBadRequest
	}
	if err := m.ReclaimStale(opts.Resource); err != nil {
		return err
	}

	ticker := time.NewTicker(opts.pollInterval())
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if m.TryAcquire(opts.Resource) {
			runHeld(ctx, m, opts, work)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func runHeld(ctx context.Context, m *Manager, opts RunOpts, work WorkFunc) {
	defer m.Release(opts.Resource, opts.ReleaseDelay)

	start := time.Now()
	err := work(ctx)
	ev := m.log.Info()
	if err != nil && ctx.Err() == nil {
		ev = m.log.Error().Err(err)
	}
	ev.Str("resource", opts.Resource).
		Str("op", "work").
		Dur("elapsed", time.Since(start)).
		Msg("exclusive work finished")
}
