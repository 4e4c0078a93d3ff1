package wam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushVarIsSelfReferential(t *testing.T) {
	w := NewWorker()
	v := w.PushVar()
	assert.True(t, v.IsVar())
	assert.Equal(t, v, w.Deref(v))
}

func TestPushStructLayout(t *testing.T) {
	w := NewWorker()
	f := Functor{Name: 3, Arity: 2}
	term := w.PushStruct(f, Num(1), Num(2))
	require.Equal(t, TagSTR, term.Tag())
	addr := int(term.Payload())
	assert.Equal(t, f, DecodeFunctorHeader(w.Heap.get(addr)))
	assert.Equal(t, int64(1), NumValue(w.Heap.get(addr+1)))
	assert.Equal(t, int64(2), NumValue(w.Heap.get(addr+2)))
}

func TestDerefTerminatesOnUnbound(t *testing.T) {
	w := NewWorker()
	v := w.PushVar()
	assert.Equal(t, v, w.Deref(v))
}

func TestDerefFollowsBindingChain(t *testing.T) {
	w := NewWorker()
	a := w.PushVar()
	b := w.PushVar()
	w.BindUnsafe(a, b)
	w.BindUnsafe(b, Num(5))
	assert.Equal(t, int64(5), NumValue(w.Deref(a)))
}

func TestDerefPanicsOnBindingCycle(t *testing.T) {
	w := NewWorker()
	a := w.PushVar()
	b := w.PushVar()
	// Wire a<->b into a cycle that never reaches a non-variable word or a
	// genuine self-reference — Deref's bound-iteration check (invariant 1)
	// must fire rather than loop forever.
	w.BindUnsafe(a, b)
	w.BindUnsafe(b, a)
	assert.Panics(t, func() { w.Deref(a) })
}

func TestGlobaliseUnboundSVA(t *testing.T) {
	w := NewWorker()
	addr := w.LocalTop()
	sva := MkWord(TagSVA, uint64(addr))
	w.Local.push(sva)
	hva := w.Globalise(sva)
	assert.Equal(t, TagHVA, hva.Tag())
	assert.Equal(t, hva, w.Deref(sva))
}

func TestGlobaliseBoundSVAReturnsValue(t *testing.T) {
	w := NewWorker()
	addr := w.LocalTop()
	sva := MkWord(TagSVA, uint64(addr))
	w.Local.push(sva)
	w.Local.set(addr, Num(9))
	assert.Equal(t, int64(9), NumValue(w.Globalise(sva)))
}

func TestHeapOverflowTriggersShiftAndOnOverflowHook(t *testing.T) {
	w := NewWorker()
	var fired OverflowKind
	w.onOverflow = func(k OverflowKind) { fired = k }
	before := w.Stats.HeapShifts
	for i := 0; i < len(w.Heap.cells)+defaultPad+1; i++ {
		w.PushHeap(Num(int64(i % 100)))
	}
	assert.Equal(t, OverflowHeap, fired)
	assert.Greater(t, w.Stats.HeapShifts, before)
}

func TestUsageReportsAreaTops(t *testing.T) {
	w := NewWorker()
	w.PushHeap(Num(1))
	w.PushHeap(Num(2))
	usage := w.Usage()
	assert.Equal(t, 2, usage.HeapUsed)
}
