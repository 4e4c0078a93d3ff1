package wam

import "sync"

// GCMode toggles whether overflow may trigger a garbage collection pass.
type GCMode uint8

const (
	GCOff GCMode = iota
	GCOn
)

// GCTrace selects how verbosely GC activity is reported.
type GCTrace uint8

const (
	TraceOff GCTrace = iota
	TraceTerse
	TraceVerbose
)

// EngineFlags holds the process-wide, mutable configuration recognised
// by the engine. Guarded by a single RWMutex, since reads vastly
// outnumber writes and the individual fields have no ordering
// dependency on each other.
type EngineFlags struct {
	mu sync.RWMutex

	gcMode     GCMode
	gcTrace    GCTrace
	gcMargin   int
	radix      int
	prompt     string
	unknown    string
	ferror     string
	quiet      string
	compiling  CompileMode
}

// NewEngineFlags returns flags at their documented defaults.
func NewEngineFlags() *EngineFlags {
	return &EngineFlags{
		gcMode:    GCOn,
		gcTrace:   TraceOff,
		gcMargin:  4096,
		radix:     10,
		prompt:    "|: ",
		unknown:   "error",
		ferror:    "on",
		quiet:     "off",
		compiling: ModeUnprofiled,
	}
}

func (f *EngineFlags) GCMode() GCMode { f.mu.RLock(); defer f.mu.RUnlock(); return f.gcMode }
func (f *EngineFlags) SetGCMode(m GCMode) { f.mu.Lock(); f.gcMode = m; f.mu.Unlock() }

func (f *EngineFlags) GCTrace() GCTrace { f.mu.RLock(); defer f.mu.RUnlock(); return f.gcTrace }
func (f *EngineFlags) SetGCTrace(t GCTrace) { f.mu.Lock(); f.gcTrace = t; f.mu.Unlock() }

func (f *EngineFlags) GCMargin() int { f.mu.RLock(); defer f.mu.RUnlock(); return f.gcMargin }
func (f *EngineFlags) SetGCMargin(n int) { f.mu.Lock(); f.gcMargin = n; f.mu.Unlock() }

// SetRadix sets current_radix; must be in [2,36].
func (f *EngineFlags) SetRadix(n int) error {
	if n < 2 || n > 36 {
		return newDomainErrIn("radix", "current_radix must be in 2..36")
	}
	f.mu.Lock()
	f.radix = n
	f.mu.Unlock()
	return nil
}

func (f *EngineFlags) Radix() int { f.mu.RLock(); defer f.mu.RUnlock(); return f.radix }

func (f *EngineFlags) Prompt() string { f.mu.RLock(); defer f.mu.RUnlock(); return f.prompt }
func (f *EngineFlags) SetPrompt(s string) { f.mu.Lock(); f.prompt = s; f.mu.Unlock() }

func (f *EngineFlags) Unknown() string { f.mu.RLock(); defer f.mu.RUnlock(); return f.unknown }
func (f *EngineFlags) SetUnknown(s string) { f.mu.Lock(); f.unknown = s; f.mu.Unlock() }

func (f *EngineFlags) FError() string { f.mu.RLock(); defer f.mu.RUnlock(); return f.ferror }
func (f *EngineFlags) SetFError(s string) { f.mu.Lock(); f.ferror = s; f.mu.Unlock() }

func (f *EngineFlags) Quiet() string { f.mu.RLock(); defer f.mu.RUnlock(); return f.quiet }
func (f *EngineFlags) SetQuiet(s string) { f.mu.Lock(); f.quiet = s; f.mu.Unlock() }

func (f *EngineFlags) Compiling() CompileMode { f.mu.RLock(); defer f.mu.RUnlock(); return f.compiling }
func (f *EngineFlags) SetCompiling(m CompileMode) { f.mu.Lock(); f.compiling = m; f.mu.Unlock() }

// GCStats is a read-only snapshot of the worker-level shift/GC counters
// published by EngineFlags' associated worker(s).
type GCStats struct {
	Count     uint64
	AccBytes  uint64
	TickNanos int64
}

func StatsFromWorker(w *Worker) GCStats {
	return GCStats{Count: w.Stats.GCCount, AccBytes: w.Stats.GCAccBytes, TickNanos: w.Stats.GCTickNanos}
}
