package core

// sweeper.go evicts abandoned jobs.
//
// A job the client stops polling is never finished or cancelled; it just
// sits in the store. Backends with native expiry (Redis) drop such records
// themselves; the others rely on this sweeper calling DeleteExpired, either
// on a ticker (StartSweeper) or piggybacked on requests (SweepIfDue) where
// no process outlives a request.

import (
	"context"
	"time"
)

// DefaultSweepInterval is how often StartSweeper evicts expired jobs.
const DefaultSweepInterval = 10 * time.Minute

// Sweep runs one eviction pass and returns the number of jobs removed.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := d.store.DeleteExpired(ctx)
	if err != nil {
		d.logger.Error("sweep failed", "error", err)
		return 0, err
	}
	if n > 0 {
		d.logger.Info("evicted expired jobs",
			"jobs_evicted", n,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return n, nil
}

// StartSweeper runs Sweep immediately and then every interval until ctx
// is cancelled. It blocks; run it in its own goroutine.
func (d *Dispatcher) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	d.logger.Info("job sweeper started", "interval", interval.String())

	_, _ = d.Sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("job sweeper stopped")
			return
		case <-ticker.C:
			_, _ = d.Sweep(ctx)
		}
	}
}

// SweepIfDue runs Sweep when no pass has started within interval, and
// reports whether it ran. A failed pass still counts, so a broken store is
// not hit on every call.
func (d *Dispatcher) SweepIfDue(ctx context.Context, interval time.Duration) (bool, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	d.sweepMu.Lock()
	now := d.now()
	if !d.lastSweep.IsZero() && now.Sub(d.lastSweep) < interval {
		d.sweepMu.Unlock()
		return false, nil
	}
	d.lastSweep = now
	d.sweepMu.Unlock()

	_, err := d.Sweep(ctx)
	return true, err
}
