package reclaim

import (
	"context"
	"time"

	"github.com/gokando-wam/wamcore/pkg/wam"
)

// Reclaimer periodically drains a clause database's deferred-reclamation
// bin through a Pool, so predicate storage unlinked by abolish/1 is freed
// off a goal's call path, at quiescent points, instead of synchronously.
type Reclaimer struct {
	pool *Pool
	db   *wam.ClauseDB

	tickInterval time.Duration
	stopChan     chan struct{}
	stopped      chan struct{}
}

// NewReclaimer wraps db with a background sweep schedule driven by pool.
// tickInterval defaults to 250ms when non-positive.
func NewReclaimer(db *wam.ClauseDB, pool *Pool, tickInterval time.Duration) *Reclaimer {
	if tickInterval <= 0 {
		tickInterval = 250 * time.Millisecond
	}
	return &Reclaimer{
		pool:         pool,
		db:           db,
		tickInterval: tickInterval,
		stopChan:     make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Start runs the periodic quiescent-point sweep in a background
// goroutine until ctx is done or Stop is called.
func (r *Reclaimer) Start(ctx context.Context) {
	go func() {
		defer close(r.stopped)
		ticker := time.NewTicker(r.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.SweepNow(ctx)
			case <-r.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// SweepNow submits one immediate sweep of db's bin, bypassing the ticker.
func (r *Reclaimer) SweepNow(ctx context.Context) error {
	return r.pool.Submit(ctx, func(context.Context) (int, error) {
		return r.db.EmptyGCDefBin(), nil
	})
}

// Stop halts the background ticker and waits for it to exit. It does not
// shut down the underlying Pool, which callers may share across several
// Reclaimers.
func (r *Reclaimer) Stop() {
	close(r.stopChan)
	<-r.stopped
}

// Counters exposes the gc_count/gc_acc/gc_tick triple of its Pool, which
// accumulates every sweep the Pool has run, including sweeps submitted by
// other Reclaimers sharing it.
func (r *Reclaimer) Counters() *GCCounters { return r.pool.Counters }
