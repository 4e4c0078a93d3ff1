package reclaim

import (
	"sync"
	"sync/atomic"
	"time"
)

// GCCounters tracks the gc_count/gc_acc/gc_tick triple the stack-shift
// and deferred-reclamation machinery report, aggregated across every
// sweep a Pool has run. Only the reclamation-relevant counters are kept
// here; goal-search throughput and worker-utilisation have no meaning in
// this package.
type GCCounters struct {
	mu sync.RWMutex

	Count       uint64        // gc_count: sweeps run
	AccReclaimed uint64       // gc_acc: units (abolished predicates) reclaimed across all sweeps
	TickTime    time.Duration // gc_tick: wall time spent in the most recent sweep

	FailedCount uint64
	LastError   error
}

// NewGCCounters returns a zeroed counters block.
func NewGCCounters() *GCCounters { return &GCCounters{} }

// RecordSweep records one successful sweep's yield and duration.
func (c *GCCounters) RecordSweep(reclaimed int, dur time.Duration) {
	atomic.AddUint64(&c.Count, 1)
	atomic.AddUint64(&c.AccReclaimed, uint64(reclaimed))
	c.mu.Lock()
	c.TickTime = dur
	c.mu.Unlock()
}

// RecordFailed records a sweep that returned an error or panicked.
func (c *GCCounters) RecordFailed(err error) {
	atomic.AddUint64(&c.FailedCount, 1)
	c.mu.Lock()
	c.LastError = err
	c.mu.Unlock()
}

// Snapshot returns the current gc_count/gc_acc/gc_tick triple.
func (c *GCCounters) Snapshot() (count, accReclaimed uint64, tick time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return atomic.LoadUint64(&c.Count), atomic.LoadUint64(&c.AccReclaimed), c.TickTime
}
