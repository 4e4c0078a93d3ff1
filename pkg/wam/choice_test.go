package wam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindTrailsOnlyConditionalWrites(t *testing.T) {
	w := NewWorker()
	preChoice := w.PushVar()
	w.PushChoicepoint(FailNode, false)
	postChoice := w.PushVar()

	trailBefore := w.TrailTop()
	w.Bind(preChoice, Num(1)) // older than the choicepoint: conditional, trails
	assert.Greater(t, w.TrailTop(), trailBefore)

	trailBefore = w.TrailTop()
	w.Bind(postChoice, Num(2)) // allocated after the choicepoint: unconditional
	assert.Equal(t, trailBefore, w.TrailTop())
}

func TestBacktrackRestoresBindingsAndAreaTops(t *testing.T) {
	w := NewWorker()
	v := w.PushVar()
	heapTop := w.HeapTop()
	w.PushChoicepoint(FailNode, false)
	w.Bind(v, Num(42))
	w.PushHeap(Num(1))

	alt, ok := w.Backtrack()
	require.True(t, ok)
	assert.True(t, alt.IsFail())
	assert.Equal(t, v, w.Deref(v), "binding must be undone")
	assert.Equal(t, heapTop, w.HeapTop(), "heap top must be restored")
}

func TestBacktrackRestoresXRegistersWhenNotShallow(t *testing.T) {
	w := NewWorker()
	w.X = []Word{Num(1), Num(2)}
	w.PushChoicepoint(FailNode, false)
	w.X = []Word{Num(99)}

	_, ok := w.Backtrack()
	require.True(t, ok)
	require.Len(t, w.X, 2)
	assert.Equal(t, int64(1), NumValue(w.X[0]))
	assert.Equal(t, int64(2), NumValue(w.X[1]))
}

func TestBacktrackOnShallowChoicepointSkipsXRestore(t *testing.T) {
	w := NewWorker()
	w.X = []Word{Num(1)}
	w.PushChoicepoint(FailNode, true)
	w.X = []Word{Num(99), Num(100)}

	_, ok := w.Backtrack()
	require.True(t, ok)
	require.Len(t, w.X, 2)
	assert.Equal(t, int64(99), NumValue(w.X[0]))
}

func TestBacktrackWithNoChoicepointFails(t *testing.T) {
	w := NewWorker()
	_, ok := w.Backtrack()
	assert.False(t, ok)
}

func TestSetargOnTrailsAndBacktrackUndoes(t *testing.T) {
	w := NewWorker()
	f := Functor{Name: 1, Arity: 2}
	term := w.PushStruct(f, Num(1), Num(2))
	addr := int(term.Payload())

	w.PushChoicepoint(FailNode, false)
	require.NoError(t, w.Setarg(2, term, Num(99), SetargOn))
	assert.Equal(t, int64(99), NumValue(w.Heap.get(addr+2)))

	_, ok := w.Backtrack()
	require.True(t, ok)
	assert.Equal(t, int64(2), NumValue(w.Heap.get(addr+2)), "setarg must be undone on backtrack")
}

func TestSetargTrueNeverTrails(t *testing.T) {
	w := NewWorker()
	f := Functor{Name: 1, Arity: 1}
	term := w.PushStruct(f, Num(1))
	addr := int(term.Payload())

	w.PushChoicepoint(FailNode, false)
	trailBefore := w.TrailTop()
	require.NoError(t, w.Setarg(1, term, Num(7), SetargTrue))
	assert.Equal(t, trailBefore, w.TrailTop())

	_, ok := w.Backtrack()
	require.True(t, ok)
	assert.Equal(t, int64(7), NumValue(w.Heap.get(addr+1)), "a permanent setarg survives backtracking")
}

func TestSetargListIndices(t *testing.T) {
	w := NewWorker()
	addr := w.HeapTop()
	w.PushHeap(Num(1))
	w.PushHeap(Atom(0))
	lst := MkWord(TagLST, uint64(addr))

	require.NoError(t, w.Setarg(1, lst, Num(5), SetargTrue))
	require.NoError(t, w.Setarg(2, lst, Atom(3), SetargTrue))
	assert.Equal(t, int64(5), NumValue(w.Heap.get(addr)))
	assert.Equal(t, AtomIdx(3), AtomIndex(w.Heap.get(addr+1)))
}

func TestSetargRejectsOutOfRangeIndex(t *testing.T) {
	w := NewWorker()
	f := Functor{Name: 1, Arity: 1}
	term := w.PushStruct(f, Num(1))
	err := w.Setarg(2, term, Num(9), SetargTrue)
	assert.Error(t, err)
}

func TestSetargRejectsNonCompound(t *testing.T) {
	w := NewWorker()
	err := w.Setarg(1, Num(5), Num(9), SetargTrue)
	assert.Error(t, err)
}

func TestSetargDoesNotDoubleTrailWithinOneSegment(t *testing.T) {
	w := NewWorker()
	f := Functor{Name: 1, Arity: 1}
	term := w.PushStruct(f, Num(1))

	w.PushChoicepoint(FailNode, false)
	require.NoError(t, w.Setarg(1, term, Num(2), SetargOn))
	afterFirst := w.TrailTop()
	require.NoError(t, w.Setarg(1, term, Num(3), SetargOn))
	assert.Equal(t, afterFirst, w.TrailTop(), "re-setarg of the same slot within one segment must not re-trail")
}
