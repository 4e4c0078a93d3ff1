// Package reclaim runs deferred-reclamation sweeps — draining a clause
// database's abolished-predicate bin — on a small worker pool that scales
// itself to the backlog.
package reclaim

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Task is one reclamation sweep. It frees whatever backlog it can and
// reports how many units (abolished predicates, in the common case) it
// reclaimed.
type Task func(ctx context.Context) (reclaimed int, err error)

// Config tunes a Pool's scaling behaviour.
type Config struct {
	ScaleUpThreshold   int
	ScaleDownThreshold int
	ScaleCheckInterval time.Duration
	ScaleCooldown      time.Duration
}

// Pool runs reclamation Tasks on a dynamically sized worker pool. A
// single worker is normally enough to keep a deferred-reclamation bin
// drained, but a busy engine abolishing many predicates at once can
// queue sweeps faster than one worker clears them, so the pool scales
// up under backlog and back down once it clears.
type Pool struct {
	maxWorkers     int
	minWorkers     int
	currentWorkers int
	taskChan       chan Task
	workerWg       sync.WaitGroup
	shutdownChan   chan struct{}
	scaleChan      chan int
	once           sync.Once
	mu             sync.RWMutex

	scaleUpThreshold   int
	scaleDownThreshold int
	scaleCheckInterval time.Duration
	lastScaleTime      time.Time
	scaleCooldown      time.Duration

	Counters *GCCounters
	stall    *StallMonitor
}

// ErrPoolShutdown is returned by Submit once the pool has been shut down.
var ErrPoolShutdown = fmt.Errorf("reclaim: pool has been shut down")

// NewPool returns a pool with maxWorkers capacity (defaulting to
// runtime.NumCPU() when non-positive) and a single always-on worker.
func NewPool(maxWorkers int) *Pool {
	return NewPoolWithConfig(maxWorkers, 1, Config{})
}

// NewPoolWithConfig returns a pool with explicit scaling parameters.
func NewPoolWithConfig(maxWorkers, minWorkers int, cfg Config) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	if minWorkers <= 0 {
		minWorkers = 1
	}
	if minWorkers > maxWorkers {
		minWorkers = maxWorkers
	}
	if cfg.ScaleUpThreshold <= 0 {
		cfg.ScaleUpThreshold = maxWorkers * 2
	}
	if cfg.ScaleDownThreshold <= 0 {
		cfg.ScaleDownThreshold = maxWorkers / 2
		if cfg.ScaleDownThreshold <= 0 {
			cfg.ScaleDownThreshold = 1
		}
	}
	if cfg.ScaleCheckInterval <= 0 {
		cfg.ScaleCheckInterval = 100 * time.Millisecond
	}
	if cfg.ScaleCooldown <= 0 {
		cfg.ScaleCooldown = 500 * time.Millisecond
	}

	p := &Pool{
		maxWorkers:         maxWorkers,
		minWorkers:         minWorkers,
		currentWorkers:     minWorkers,
		taskChan:           make(chan Task, maxWorkers*4),
		shutdownChan:       make(chan struct{}),
		scaleChan:          make(chan int, 1),
		scaleUpThreshold:   cfg.ScaleUpThreshold,
		scaleDownThreshold: cfg.ScaleDownThreshold,
		scaleCheckInterval: cfg.ScaleCheckInterval,
		scaleCooldown:      cfg.ScaleCooldown,
		lastScaleTime:      time.Now(),
		Counters:           NewGCCounters(),
		stall:              NewStallMonitor(30*time.Second, 5*time.Second),
	}

	for i := 0; i < minWorkers; i++ {
		p.workerWg.Add(1)
		go p.worker()
	}
	go p.scalingMonitor()

	return p
}

func (p *Pool) worker() {
	defer p.workerWg.Done()
	for {
		select {
		case task := <-p.taskChan:
			if task != nil {
				p.run(task)
			}
		case <-p.shutdownChan:
			return
		}
	}
}

func (p *Pool) run(task Task) {
	id := fmt.Sprintf("sweep-%d", time.Now().UnixNano())
	ctx, done := p.stall.Track(context.Background(), id)
	defer done()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.Counters.RecordFailed(fmt.Errorf("reclaim task panicked: %v", r))
		}
	}()
	n, err := task(ctx)
	if err != nil {
		p.Counters.RecordFailed(err)
		return
	}
	p.Counters.RecordSweep(n, time.Since(start))
}

// Submit enqueues a reclamation Task, blocking until a slot is free, ctx
// is done, or the pool has been shut down.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.shutdownChan:
		return ErrPoolShutdown
	default:
	}
	select {
	case p.taskChan <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.shutdownChan:
		return ErrPoolShutdown
	}
}

// Shutdown drains in-flight sweeps and stops the pool. Safe to call more
// than once.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		close(p.shutdownChan)
		close(p.taskChan)
		p.workerWg.Wait()
		p.stall.Shutdown()
	})
}

func (p *Pool) scalingMonitor() {
	ticker := time.NewTicker(p.scaleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.checkScaling()
		case n := <-p.scaleChan:
			p.adjustWorkers(n)
		case <-p.shutdownChan:
			return
		}
	}
}

func (p *Pool) checkScaling() {
	p.mu.RLock()
	if time.Since(p.lastScaleTime) < p.scaleCooldown {
		p.mu.RUnlock()
		return
	}
	current, max, min := p.currentWorkers, p.maxWorkers, p.minWorkers
	up, down := p.scaleUpThreshold, p.scaleDownThreshold
	p.mu.RUnlock()

	depth := len(p.taskChan)
	switch {
	case depth > up && current < max:
		p.requestScale(current + 1)
	case depth < down && current > min:
		p.requestScale(current - 1)
	}
}

func (p *Pool) requestScale(target int) {
	select {
	case p.scaleChan <- target:
	default:
		// a scale request is already pending
	}
}

func (p *Pool) adjustWorkers(target int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.currentWorkers
	if target < p.minWorkers {
		target = p.minWorkers
	}
	if target > p.maxWorkers {
		target = p.maxWorkers
	}
	if target == current {
		return
	}
	if target > current {
		for i := current; i < target; i++ {
			p.workerWg.Add(1)
			go p.worker()
		}
	}
	// scaling down lets the extra workers exit naturally once the
	// channel drains; nothing here forcibly kills a worker mid-sweep
	p.currentWorkers = target
	p.lastScaleTime = time.Now()
}

// WorkerCount reports the pool's current goroutine count.
func (p *Pool) WorkerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentWorkers
}

// QueueDepth reports the number of sweeps currently queued.
func (p *Pool) QueueDepth() int { return len(p.taskChan) }
