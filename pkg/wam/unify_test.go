package wam

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnifyAtomsAndNums(t *testing.T) {
	w := NewWorker()
	assert.True(t, Unify(w, Atom(1), Atom(1)))
	assert.False(t, Unify(w, Atom(1), Atom(2)))
	assert.True(t, Unify(w, Num(5), Num(5)))
	assert.False(t, Unify(w, Num(5), Atom(5)), "different tags never unify")
}

func TestUnifyBindsUnboundVariable(t *testing.T) {
	w := NewWorker()
	v := w.PushVar()
	assert.True(t, Unify(w, v, Num(7)))
	assert.Equal(t, int64(7), NumValue(w.Deref(v)))
}

func TestUnifyTwoUnboundVariablesBindsOneToOther(t *testing.T) {
	w := NewWorker()
	a := w.PushVar()
	b := w.PushVar()
	assert.True(t, Unify(w, a, b))
	assert.Equal(t, w.Deref(a), w.Deref(b))
}

func TestUnifyListsStructurally(t *testing.T) {
	w := NewWorker()
	build := func() Word {
		tail := Atom(0)
		addr := w.HeapTop()
		w.PushHeap(Num(2))
		w.PushHeap(tail)
		tail = MkWord(TagLST, uint64(addr))
		addr = w.HeapTop()
		w.PushHeap(Num(1))
		w.PushHeap(tail)
		return MkWord(TagLST, uint64(addr))
	}
	l1 := build()
	l2 := build()
	assert.True(t, Unify(w, l1, l2))
}

func TestUnifyListsFailOnMismatch(t *testing.T) {
	w := NewWorker()
	addr := w.HeapTop()
	w.PushHeap(Num(1))
	w.PushHeap(Atom(0))
	l1 := MkWord(TagLST, uint64(addr))

	addr = w.HeapTop()
	w.PushHeap(Num(2))
	w.PushHeap(Atom(0))
	l2 := MkWord(TagLST, uint64(addr))

	assert.False(t, Unify(w, l1, l2))
}

func TestUnifyStructsWithVariableArgument(t *testing.T) {
	w := NewWorker()
	f := Functor{Name: 1, Arity: 2}
	v := w.PushVar()
	s1 := w.PushStruct(f, v, Num(2))
	s2 := w.PushStruct(f, Num(1), Num(2))
	assert.True(t, Unify(w, s1, s2))
	assert.Equal(t, int64(1), NumValue(w.Deref(v)))
}

func TestUnifyStructsDifferentFunctorsFail(t *testing.T) {
	w := NewWorker()
	s1 := w.PushStruct(Functor{Name: 1, Arity: 1}, Num(1))
	s2 := w.PushStruct(Functor{Name: 2, Arity: 1}, Num(1))
	assert.False(t, Unify(w, s1, s2))
}
