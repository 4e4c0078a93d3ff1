package wam

import "fmt"

// Choicepoint snapshots enough worker state to resume at the next
// alternative of a predicate call.
type Choicepoint struct {
	Arity      int      // live X-register count at the time of the push
	NextAlt    *TryNode // the alternative to try on backtracking
	SavedHeap  int
	SavedLocal int
	SavedTrail int
	TrapFrame  *Environment
	XSnapshot  []Word

	// Shallow marks a choicepoint created by a shallow (neck-cut-eligible)
	// try: Backtrack skips restoring X-registers whenever it pops a
	// shallow choicepoint. See DESIGN.md for the deep/shallow distinction
	// this implements.
	Shallow bool

	// prev threads the choice stack as an explicit linked list — an arena
	// of structs connected by pointer edges, rather than a slice, since the
	// stack is walked and unwound from the top in arbitrary-depth jumps.
	prev *Choicepoint
}

// PushChoicepoint saves the live X-registers and area tops, then links
// the choicepoint onto the choice stack. Checks the choice/trail
// collision pad first. The Choice region itself only tracks consumed
// word-slots for pad/usage accounting; the choicepoint record lives
// off-heap as a Go struct.
func (wk *Worker) PushChoicepoint(alt *TryNode, shallow bool) *Choicepoint {
	wk.checkPad(OverflowChoiceTrail)
	cp := &Choicepoint{
		Arity:      len(wk.X),
		NextAlt:    alt,
		SavedHeap:  wk.HeapTop(),
		SavedLocal: wk.LocalTop(),
		SavedTrail: wk.TrailTop(),
		TrapFrame:  wk.EnvTop,
		XSnapshot:  append([]Word(nil), wk.X...),
		Shallow:    shallow,
		prev:       wk.ChoiceTop,
	}
	wk.Choice.push(Word(0)) // account for the slot this choicepoint occupies
	wk.ChoiceTop = cp
	return cp
}

// PushTrail appends a tagged word to the trail, checking the choice/trail
// collision pad.
func (wk *Worker) PushTrail(w Word) int {
	wk.checkPad(OverflowChoiceTrail)
	return wk.Trail.push(w)
}

// IsConditional reports whether the heap cell at addr was allocated
// before the youngest choicepoint — only conditional bindings need
// trailing.
func (wk *Worker) IsConditional(addr int) bool {
	if wk.ChoiceTop == nil {
		return false
	}
	return addr < wk.ChoiceTop.SavedHeap
}

// Bind writes newVal into the cell addressed by variable word v, trailing
// the old location first if it is conditional. An untrailed unconditional
// write is observationally equivalent to a trailed one, since
// backtracking past the allocating choicepoint discards it anyway.
func (wk *Worker) Bind(v, newVal Word) {
	addr := int(v.Payload())
	if v.Tag() == TagHVA || v.Tag() == TagCVA {
		if wk.IsConditional(addr) {
			wk.PushTrail(v)
		}
	}
	wk.BindUnsafe(v, newVal)
}

// setargFunctor tags a trail record produced by backtrackable setarg, so
// Backtrack can distinguish it from a plain cell-restore entry.
var setargFunctor = Functor{Name: ^AtomIdx(1), Arity: 4}

// SetargMode selects the backtrackability of a setarg call.
type SetargMode uint8

const (
	SetargOff  SetargMode = iota // internal undo replay path
	SetargOn                     // trail an undo record if the location is conditional
	SetargTrue                   // same as On but never trail (permanent mutation)
)

// Setarg implements the `setarg(I, Term, New, Mode)` protocol. term must
// be an LST or STR word; i is 1-based (2 selects the cdr of a list
// cell). Returns an error if term or i is malformed.
func (wk *Worker) Setarg(i int, term Word, newVal Word, mode SetargMode) error {
	var slot int
	switch term.Tag() {
	case TagSTR:
		addr := int(term.Payload())
		f := DecodeFunctorHeader(wk.Heap.get(addr))
		if i < 1 || i > f.Arity {
			return newTypeErr("domain", fmt.Sprintf("setarg: index %d out of range for %v", i, f))
		}
		slot = addr + i // cell addr+0 is the header; args follow
	case TagLST:
		addr := int(term.Payload())
		switch i {
		case 1:
			slot = addr
		case 2:
			slot = addr + 1
		default:
			return newDomainErr("setarg: list index must be 1 or 2")
		}
	default:
		return newTypeErr("compound", "setarg: second argument must be a structure or list")
	}

	oldVal := wk.Heap.get(slot)
	wk.Heap.set(slot, newVal)

	if mode == SetargOff {
		return nil // internal undo replay: no re-dereference, no re-trail
	}
	if mode == SetargTrue {
		return nil // permanent mutation, no trail
	}

	// mode == SetargOn: trail an undo record only if the smashed location
	// is conditional, and only if it is not already trailed this segment
	// (Ciao's segment scan before re-trailing the same location).
	cellAddr := MkWord(TagHVA, uint64(slot))
	if !wk.IsConditional(slot) {
		return nil
	}
	if wk.trailedThisSegment(cellAddr) {
		return nil
	}
	rec := wk.pushSetargRecord(i, term, oldVal)
	wk.PushTrail(rec)
	wk.PushTrail(cellAddr) // trail the smashed location too, for segmented GC
	return nil
}

// trailedThisSegment scans the trail entries pushed since the youngest
// choicepoint for cellAddr, mirroring Ciao's pre-check that avoids
// double-trailing the same location within one choicepoint's segment.
func (wk *Worker) trailedThisSegment(cellAddr Word) bool {
	limit := 0
	if wk.ChoiceTop != nil {
		limit = wk.ChoiceTop.SavedTrail
	}
	for i := wk.Trail.top - 1; i >= limit; i-- {
		if wk.Trail.get(i) == cellAddr {
			return true
		}
	}
	return false
}

// pushSetargRecord builds the `$setarg(I, Term, OldValue, Off)` undo
// record on the heap and returns its STR-tagged address word.
func (wk *Worker) pushSetargRecord(i int, term Word, oldVal Word) Word {
	addr := wk.HeapTop()
	hdr := FunctorHeader(setargFunctor)
	wk.PushHeap(hdr)
	wk.PushHeap(Num(int64(i)))
	wk.PushHeap(term)
	wk.PushHeap(oldVal)
	return MkWord(TagSTR, uint64(addr))
}

// replaySetargUndo re-applies a trailed `$setarg` record in SetargOff
// mode, undoing the mutation it recorded.
func (wk *Worker) replaySetargUndo(recAddr int) {
	i := int(NumValue(wk.Heap.get(recAddr + 1)))
	term := wk.Heap.get(recAddr + 2)
	oldVal := wk.Heap.get(recAddr + 3)
	_ = wk.Setarg(i, term, oldVal, SetargOff)
}

// Backtrack pops the youngest choicepoint, undoes every trail entry it
// owns (restoring plain cells, replaying `$setarg` records), restores the
// saved area tops, and returns the alternative to try next.
func (wk *Worker) Backtrack() (*TryNode, bool) {
	cp := wk.ChoiceTop
	if cp == nil {
		return nil, false
	}
	for i := wk.Trail.top - 1; i >= cp.SavedTrail; i-- {
		entry := wk.Trail.get(i)
		wk.undoTrailEntry(entry)
	}
	wk.Trail.top = cp.SavedTrail
	wk.Heap.top = cp.SavedHeap
	wk.Local.top = cp.SavedLocal
	wk.EnvTop = cp.TrapFrame
	if !cp.Shallow {
		wk.X = append(wk.X[:0], cp.XSnapshot...)
	}
	wk.ChoiceTop = cp.prev
	alt := cp.NextAlt
	return alt, true
}

// undoTrailEntry restores a single trail entry: either a plain variable
// cell reset to unbound, or — if the entry addresses a heap cell whose
// contents are a `$setarg` record — a replay of that record's undo.
func (wk *Worker) undoTrailEntry(entry Word) {
	if entry.Tag() == TagSTR {
		addr := int(entry.Payload())
		if addr >= 0 && addr < wk.Heap.top {
			if f, ok := tryDecodeFunctor(wk.Heap.get(addr)); ok && f == setargFunctor {
				wk.replaySetargUndo(addr)
				return
			}
		}
	}
	if entry.Tag() == TagHVA || entry.Tag() == TagCVA {
		addr := int(entry.Payload())
		wk.Heap.set(addr, entry) // restore self-reference: unbound again
		return
	}
	// Any other entry (neither a `$setarg` record nor a variable cell) is
	// left as is: nothing is restored for it.
}

func tryDecodeFunctor(w Word) (Functor, bool) {
	if w.Tag() != TagSTR {
		return Functor{}, false
	}
	return DecodeFunctorHeader(w), true
}
