package wam

import "fmt"

// OverflowKind names which memory area's pad check fired.
type OverflowKind uint8

const (
	OverflowHeap OverflowKind = iota
	OverflowChoiceTrail
	OverflowLocal
)

func (k OverflowKind) String() string {
	switch k {
	case OverflowHeap:
		return "heap"
	case OverflowChoiceTrail:
		return "choice/trail"
	case OverflowLocal:
		return "local"
	default:
		return "?"
	}
}

// Relocator is visited by a stack shift or GC so callers outside this
// package (the deferred-reclamation bin, interpreted-predicate instance
// clocks) can keep pointers consistent across a relocation.
type Relocator interface {
	Relocate(old, new uint64)
}

// ShiftStats counts shifts and GCs per area. It is kept in Worker.Stats;
// StatsFromWorker (flags.go) reads its GC counters.
type ShiftStats struct {
	HeapShifts    uint64
	ChoiceShifts  uint64
	LocalShifts   uint64
	GCCount       uint64
	GCAccBytes    uint64
	GCTickNanos   int64
}

// region is a single growable tagged-word area with a logical top and an
// overflow pad. Growth is modeled as Go slice regrowth (copy into a larger
// backing array) rather than raw mmap — see DESIGN.md for why no memory
// package was wired in for this instead.
type region struct {
	cells []Word
	top   int
	pad   int
}

func newRegion(initial, pad int) region {
	return region{cells: make([]Word, initial), top: 0, pad: pad}
}

func (r *region) push(w Word) int {
	if r.top >= len(r.cells) {
		grown := make([]Word, len(r.cells)*2+1)
		copy(grown, r.cells)
		r.cells = grown
	}
	addr := r.top
	r.cells[addr] = w
	r.top++
	return addr
}

func (r *region) get(addr int) Word   { return r.cells[addr] }
func (r *region) set(addr int, w Word) { r.cells[addr] = w }
func (r *region) free() int           { return len(r.cells) - r.top }

// Environment is a local-stack frame: a saved continuation and its
// Y-register slots.
type Environment struct {
	Continuation *TryNode
	Y            []Word
	Prev         *Environment
}

// Worker holds one goal's private memory areas and X-registers: heap,
// local stack, choicepoint stack, trail, none of which are shared across
// workers.
type Worker struct {
	Heap   region
	Local  region
	Choice region
	Trail  region

	X []Word // argument registers

	ChoiceTop *Choicepoint // youngest choicepoint, nil if none
	EnvTop    *Environment // youngest local-stack frame

	Stats ShiftStats

	// relocators are visited on every shift/GC so their tracked addresses
	// stay consistent with relocated cells.
	relocators []Relocator

	// onOverflow, if set, is invoked before the default shift/GC policy
	// runs; tests use this to observe overflow events deterministically.
	onOverflow func(OverflowKind)
}

// defaultPad is the slack margin between the choice/trail regions and
// between other growable areas and their limits.
const defaultPad = 64

// NewWorker allocates a worker with modestly sized areas; areas grow on
// demand via the shift policy.
func NewWorker() *Worker {
	return &Worker{
		Heap:   newRegion(1024, defaultPad),
		Local:  newRegion(256, defaultPad),
		Choice: newRegion(256, defaultPad),
		Trail:  newRegion(256, defaultPad),
		X:      make([]Word, 0, 16),
	}
}

// RegisterRelocator adds r to the set visited on every shift/GC.
func (w *Worker) RegisterRelocator(r Relocator) {
	w.relocators = append(w.relocators, r)
}

// HeapTop is the address a subsequent PushHeap will occupy.
func (w *Worker) HeapTop() int { return w.Heap.top }

// LocalTop is the current top of the local stack.
func (w *Worker) LocalTop() int { return w.Local.top }

// TrailTop is the current top of the trail.
func (w *Worker) TrailTop() int { return w.Trail.top }

// PushHeap appends w to the heap, checking the overflow pad first: a
// heap overflow triggers a stack-shift or GC.
func (wk *Worker) PushHeap(v Word) int {
	wk.checkPad(OverflowHeap)
	return wk.Heap.push(v)
}

// PushVar allocates a fresh unbound heap variable: a self-referential
// HVA cell at the next heap address.
func (wk *Worker) PushVar() Word {
	addr := wk.HeapTop()
	hva := MkWord(TagHVA, uint64(addr))
	wk.PushHeap(hva)
	return hva
}

// PushStruct allocates a compound term f(args...) on the heap and
// returns its STR-tagged address word. len(args) must equal f.Arity.
func (wk *Worker) PushStruct(f Functor, args ...Word) Word {
	addr := wk.HeapTop()
	wk.PushHeap(FunctorHeader(f))
	for _, a := range args {
		wk.PushHeap(a)
	}
	return MkWord(TagSTR, uint64(addr))
}

// HeapCell reads the heap word at addr, for callers outside this package
// that need to inspect a compound term's arguments (e.g. after setarg).
func (wk *Worker) HeapCell(addr int) Word { return wk.Heap.get(addr) }

// Deref follows a chain of self-referential variable cells (HVA/CVA/SVA)
// to a non-variable word or a genuine self-reference. Dereferencing is
// guaranteed to terminate, bounded by cells allocated since start.
func (wk *Worker) Deref(w Word) Word {
	seen := 0
	limit := wk.Heap.top + wk.Local.top + 1
	for w.IsVar() {
		addr := w.Payload()
		var cell Word
		switch w.Tag() {
		case TagHVA, TagCVA:
			cell = wk.Heap.get(int(addr))
		case TagSVA:
			cell = wk.Local.get(int(addr))
		}
		if cell == w {
			return w // unbound: self-reference
		}
		w = cell
		seen++
		if seen > limit {
			panic(fmt.Sprintf("wam: dereference chain exceeded %d cells; invariant 1 violated", limit))
		}
	}
	return w
}

// Globalise copies an SVA-tagged cell onto the heap, returning the new
// HVA word. Required before an SVA becomes reachable from a cell that may
// outlive the current environment frame.
func (wk *Worker) Globalise(sva Word) Word {
	if sva.Tag() != TagSVA {
		return sva
	}
	addr := sva.Payload()
	val := wk.Local.get(int(addr))
	if val == sva {
		// unbound stack variable: allocate a fresh self-referential HVA
		newAddr := wk.HeapTop()
		hva := MkWord(TagHVA, uint64(newAddr))
		wk.PushHeap(hva)
		wk.Local.set(int(addr), MkWord(TagSVA, uint64(addr))) // keep for trail symmetry
		wk.BindUnsafe(sva, hva)
		return hva
	}
	return val
}

// BindUnsafe writes newVal into the cell addressed by variable word v
// without trailing or checking conditionality. Callers that need the
// backtrackable contract should go through Worker.Bind (choice.go).
func (wk *Worker) BindUnsafe(v, newVal Word) {
	addr := v.Payload()
	switch v.Tag() {
	case TagHVA, TagCVA:
		wk.Heap.set(int(addr), newVal)
	case TagSVA:
		wk.Local.set(int(addr), newVal)
	default:
		panic(fmt.Sprintf("wam: BindUnsafe of non-variable tag %v", v.Tag()))
	}
}

// checkPad runs the overflow policy when the relevant regions have
// closed to within their pad. The choice and trail regions are modeled
// as two independent growable slices that "grow toward each other"
// logically: overflow fires when their combined live size leaves less
// than pad free cells (see DESIGN.md for this Open Question's resolution).
func (wk *Worker) checkPad(kind OverflowKind) {
	var tight bool
	switch kind {
	case OverflowHeap:
		tight = wk.Heap.free() < wk.Heap.pad
	case OverflowChoiceTrail:
		tight = wk.ctGap() < wk.Choice.pad
	case OverflowLocal:
		tight = wk.Local.free() < wk.Local.pad
	}
	if !tight {
		return
	}
	if wk.onOverflow != nil {
		wk.onOverflow(kind)
	}
	wk.shift(kind)
}

// ctGap returns the free space between the live choice and trail regions,
// the analogue of Ciao's ChoiceCharDifference(w->choice, w->trail_top).
func (wk *Worker) ctGap() int {
	return (len(wk.Choice.cells) - wk.Choice.top) + (len(wk.Trail.cells) - wk.Trail.top)
}

// shift grows the named area(s) and bumps the matching counter. Pointer
// relocation is a no-op here because areas are modeled as slice indices,
// stable across Go's copy-based regrowth; registered Relocators are
// still visited so CDB clocks observe every shift.
func (wk *Worker) shift(kind OverflowKind) {
	switch kind {
	case OverflowHeap:
		wk.growRegion(&wk.Heap)
		wk.Stats.HeapShifts++
	case OverflowChoiceTrail:
		wk.growRegion(&wk.Choice)
		wk.growRegion(&wk.Trail)
		wk.Stats.ChoiceShifts++
	case OverflowLocal:
		wk.growRegion(&wk.Local)
		wk.Stats.LocalShifts++
	}
	for _, r := range wk.relocators {
		r.Relocate(0, 0)
	}
}

func (wk *Worker) growRegion(r *region) {
	grown := make([]Word, len(r.cells)*2+r.pad)
	copy(grown, r.cells)
	r.cells = grown
}

// MemUsage reports used/free word counts per area, for choice_usage /
// heap_usage-style introspection.
type MemUsage struct {
	HeapUsed, HeapFree     int
	LocalUsed, LocalFree   int
	ChoiceUsed, ChoiceFree int
	TrailUsed, TrailFree   int
}

func (wk *Worker) Usage() MemUsage {
	return MemUsage{
		HeapUsed: wk.Heap.top, HeapFree: wk.Heap.free(),
		LocalUsed: wk.Local.top, LocalFree: wk.Local.free(),
		ChoiceUsed: wk.Choice.top, ChoiceFree: wk.Choice.free(),
		TrailUsed: wk.Trail.top, TrailFree: wk.Trail.free(),
	}
}
