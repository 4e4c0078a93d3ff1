package reclaim

import (
	"context"
	"sync"
	"time"
)

// StallMonitor flags reclamation sweeps that run far longer than
// expected. A sweep only walks a bin of already-unlinked predicate
// storage, so it should never block; a stall here usually means a
// Relocator or a predicate lock got stuck mid-sweep. Tracks a single
// queue, since reclaim.Pool has no cross-task wait-for graph to
// approximate.
type StallMonitor struct {
	mu sync.Mutex

	timeout       time.Duration
	checkInterval time.Duration

	active       map[string]time.Time
	shutdownChan chan struct{}
	once         sync.Once
	alertChan    chan StallAlert
}

// StallAlert reports one sweep that exceeded the monitor's timeout.
type StallAlert struct {
	TaskID string
	Since  time.Time
}

// NewStallMonitor starts a monitor goroutine that checks for sweeps
// running past timeout every checkInterval.
func NewStallMonitor(timeout, checkInterval time.Duration) *StallMonitor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if checkInterval <= 0 {
		checkInterval = 5 * time.Second
	}
	m := &StallMonitor{
		timeout:       timeout,
		checkInterval: checkInterval,
		active:        make(map[string]time.Time),
		shutdownChan:  make(chan struct{}),
		alertChan:     make(chan StallAlert, 8),
	}
	go m.monitor()
	return m
}

func (m *StallMonitor) monitor() {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.shutdownChan:
			return
		}
	}
}

func (m *StallMonitor) check() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, start := range m.active {
		if now.Sub(start) > m.timeout {
			alert := StallAlert{TaskID: id, Since: start}
			select {
			case m.alertChan <- alert:
			default:
				// alert channel full, drop rather than block the monitor
			}
		}
	}
}

// Track registers id as active for the duration of a sweep and returns a
// context bounded by the monitor's timeout, plus a function the caller
// must call when the sweep completes.
func (m *StallMonitor) Track(parent context.Context, id string) (context.Context, func()) {
	m.mu.Lock()
	m.active[id] = time.Now()
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, m.timeout)
	return ctx, func() {
		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
		cancel()
	}
}

// Alerts returns the channel stall alerts are published on.
func (m *StallMonitor) Alerts() <-chan StallAlert { return m.alertChan }

// Shutdown stops the monitor goroutine. Safe to call once.
func (m *StallMonitor) Shutdown() {
	m.once.Do(func() { close(m.shutdownChan) })
}
