package wam

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// GoalState is a goal descriptor's position in its lifecycle state
// machine.
type GoalState uint8

const (
	Idle GoalState = iota
	Working
	PendingSols
	FailedState
)

func (s GoalState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Working:
		return "WORKING"
	case PendingSols:
		return "PENDING_SOLS"
	case FailedState:
		return "FAILED"
	default:
		return "?"
	}
}

// ActionFlags are the per-goal action bits.
type ActionFlags uint8

const (
	NoAction ActionFlags = 0
	KeepStacks ActionFlags = 1 << iota
	CreateThread
	NeedsFreeing
)

// GoalDescriptor ties one logical task to a worker and (optionally) an OS
// thread.
type GoalDescriptor struct {
	Num    uint64
	Goal   Word
	heap   *region // the worker's heap, needed to decode Goal's functor

	mu     sync.Mutex // guards state/Worker/Action for this one descriptor
	state  GoalState
	Worker *Worker
	Action ActionFlags

	done chan struct{} // closed when this goal's thread has exited

	prev, next *GoalDescriptor // ring pointers
}

func (gd *GoalDescriptor) State() GoalState {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	return gd.state
}

func (gd *GoalDescriptor) goalFunctor() Functor {
	return goalFunctorOf(gd.Goal, gd.heap)
}

// goalRing is the circular doubly-linked list of goal descriptors: IDLE
// descriptors cluster at the head, WORKING/PENDING at the tail, guarded
// by a single lock.
type goalRing struct {
	mu   sync.Mutex
	head *GoalDescriptor // sentinel
}

func newGoalRing() *goalRing {
	sentinel := &GoalDescriptor{}
	sentinel.prev = sentinel
	sentinel.next = sentinel
	return &goalRing{head: sentinel}
}

func (r *goalRing) insertAtHead(gd *GoalDescriptor) {
	gd.next = r.head.next
	gd.prev = r.head
	r.head.next.prev = gd
	r.head.next = gd
}

func (r *goalRing) insertAtTail(gd *GoalDescriptor) {
	gd.prev = r.head.prev
	gd.next = r.head
	r.head.prev.next = gd
	r.head.prev = gd
}

func (r *goalRing) unlink(gd *GoalDescriptor) {
	gd.prev.next = gd.next
	gd.next.prev = gd.prev
	gd.prev, gd.next = nil, nil
}

// freeHead pops the first IDLE descriptor at the head, if any.
func (r *goalRing) freeHead() *GoalDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	cand := r.head.next
	if cand == r.head || cand.State() != Idle {
		return nil
	}
	r.unlink(cand)
	return cand
}

// Engine bundles the shared, process-wide state of the WAM runtime: the
// atom table, clause database, goal ring, worker pool, and engine flags.
// Nothing here is package-level global state — every entry point takes
// an *Engine, making tests freely instantiable.
type Engine struct {
	Atoms *AtomTable
	DB    *ClauseDB
	Flags *EngineFlags
	Emu   Emulator

	ring     *goalRing
	goalSeq  uint64
	freeWAMs chan *Worker // free-WAM pool: pulls one, creating one on empty

	reaperMu sync.Mutex
	reaperCh chan *GoalDescriptor // single-slot thread-reaper mailbox

	Logger *log.Logger // boundary-event logging; written to by abort recovery only
}

// NewEngine constructs a fresh engine context with empty atom/predicate
// tables and default flags.
func NewEngine() *Engine {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	e := &Engine{
		Atoms:    atoms,
		DB:       db,
		Flags:    NewEngineFlags(),
		ring:     newGoalRing(),
		freeWAMs: make(chan *Worker, 64),
		reaperCh: make(chan *GoalDescriptor, 1),
		Logger:   log.Default(),
	}
	e.Emu = &ReferenceEmulator{DB: db}
	go e.reaperLoop()
	return e
}

// GimmeANewGD returns a fresh WORKING goal descriptor, reusing an IDLE
// one from the ring's head if available and otherwise allocating a new
// one with a worker pulled from the free-WAM pool. build constructs the
// goal term on the assigned worker's own heap — a goal's STR/LST
// addresses are only meaningful relative to the heap they were built on,
// so the caller never gets a chance to build on the wrong one.
func (e *Engine) GimmeANewGD(build func(w *Worker) Word) *GoalDescriptor {
	gd := e.ring.freeHead()
	if gd == nil {
		gd = &GoalDescriptor{Num: atomic.AddUint64(&e.goalSeq, 1)}
	}
	gd.Worker = e.takeWorker()
	gd.Goal = build(gd.Worker)
	gd.heap = &gd.Worker.Heap
	gd.mu.Lock()
	gd.state = Working
	gd.mu.Unlock()
	gd.done = make(chan struct{})

	e.ring.mu.Lock()
	e.ring.insertAtTail(gd)
	e.ring.mu.Unlock()
	return gd
}

func (e *Engine) takeWorker() *Worker {
	select {
	case w := <-e.freeWAMs:
		return w
	default:
		return NewWorker()
	}
}

func (e *Engine) returnWorker(w *Worker) {
	select {
	case e.freeWAMs <- w:
	default:
	}
}

// RunGoal drives gd's worker through the emulator once, transitioning
// WORKING → PENDING_SOLS on a yielded solution or WORKING → FAILED →
// (after release) IDLE on exhaustion. Only the thread holding gd WORKING
// may touch its worker.
func (e *Engine) RunGoal(ctx context.Context, gd *GoalDescriptor) ExitCode {
	code := e.Emu.Run(ctx, gd.Worker, gd)
	e.settleAfterRun(gd, code)
	return code
}

func (e *Engine) settleAfterRun(gd *GoalDescriptor, code ExitCode) {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	switch code {
	case Success:
		gd.state = PendingSols
	case Failure:
		gd.state = FailedState
		e.release(gd)
	case Abort:
		e.abortRecover(gd)
	case Interrupted:
		// The state stays WORKING. The resume point is not patched and the
		// emulator is not re-entered here; callers loop on RunGoal
		// themselves.
	}
}

// release transitions a FAILED descriptor to IDLE, returning its worker
// to the free pool and moving it to the ring's head. Caller must hold
// gd.mu.
func (e *Engine) release(gd *GoalDescriptor) {
	gd.state = Idle
	w := gd.Worker
	gd.Worker = nil
	if gd.done != nil {
		close(gd.done)
	}
	e.ring.mu.Lock()
	e.ring.unlink(gd)
	e.ring.insertAtHead(gd)
	e.ring.mu.Unlock()
	e.returnWorker(w)
}

// MakeBacktracking resumes a PENDING_SOLS descriptor, transitioning it
// back to WORKING and asking the emulator for the next alternative.
func (e *Engine) MakeBacktracking(ctx context.Context, gd *GoalDescriptor) ExitCode {
	gd.mu.Lock()
	if gd.state != PendingSols {
		gd.mu.Unlock()
		return Failure
	}
	gd.state = Working
	gd.mu.Unlock()

	re, ok := e.Emu.(*ReferenceEmulator)
	var code ExitCode
	if ok {
		code = re.Resume(ctx, gd.Worker, gd.Goal)
	} else {
		code = e.Emu.Run(ctx, gd.Worker, gd)
	}
	e.settleAfterRun(gd, code)
	return code
}

// RunGoals fans a batch of goals out concurrently with a bounded
// concurrency limit and reports the first hard failure, using
// golang.org/x/sync/errgroup in place of a hand-rolled WaitGroup + error
// channel — one OS thread's worth of work per active goal descriptor. A
// logical FAILURE is not a hard error: it only surfaces via the returned
// ExitCodes slice.
func (e *Engine) RunGoals(ctx context.Context, builds []func(w *Worker) Word, limit int) ([]ExitCode, error) {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	codes := make([]ExitCode, len(builds))
	gds := make([]*GoalDescriptor, len(builds))
	for i, build := range builds {
		i, build := i, build
		gds[i] = e.GimmeANewGD(build)
		g.Go(func() error {
			codes[i] = e.RunGoal(gctx, gds[i])
			if codes[i] == Abort {
				return newSeriousFault("goal aborted")
			}
			return nil
		})
	}
	err := g.Wait()
	return codes, err
}

// abortRecover handles an ABORT exit for gd: it logs the abort, drains
// the deferred-reclamation bin, gives gd a fresh worker (reinitialised
// areas), marks it IDLE and moves it to the ring's head. It does not stop
// other workers (they only see cancellation through their own context)
// and does not re-run any bootstrap call. Caller must hold gd.mu.
func (e *Engine) abortRecover(gd *GoalDescriptor) {
	e.Logger.Printf("wam: goal %d aborted; restarting top level", gd.Num)
	n := e.DB.EmptyGCDefBin()
	if n > 0 {
		e.Logger.Printf("wam: reclaimed %d abolished predicate(s) during abort recovery", n)
	}
	gd.Worker = NewWorker()
	gd.state = Idle
	if gd.done != nil {
		close(gd.done)
	}
	e.ring.mu.Lock()
	e.ring.unlink(gd)
	e.ring.insertAtHead(gd)
	e.ring.mu.Unlock()
}

// reaperLoop sequentialises joins of detached goal "threads" so Go
// runtime resources are never leaked but joins never block producers.
// Modeled as a goroutine draining a single-slot mailbox; Go has no OS
// thread handles to join, so "join" here means waiting on gd.done.
func (e *Engine) reaperLoop() {
	for gd := range e.reaperCh {
		if gd.done != nil {
			<-gd.done
		}
	}
}

// RequestReap enqueues gd for the thread reaper, cancelling it first via
// cancel: setting the cancellation flag before asking the reaper to join
// its goal's thread.
func (e *Engine) RequestReap(gd *GoalDescriptor, cancel context.CancelFunc) {
	if cancel != nil {
		cancel()
	}
	e.reaperMu.Lock()
	e.reaperCh <- gd // blocks until the prior reap (if any) drains
	e.reaperMu.Unlock()
}
