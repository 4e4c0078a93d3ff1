package wam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyArg1Shapes(t *testing.T) {
	w := NewWorker()

	shape, _ := ClassifyArg1(w.PushVar(), &w.Heap)
	assert.Equal(t, ShapeVar, shape)

	addr := w.HeapTop()
	w.PushHeap(Num(1))
	w.PushHeap(Atom(0))
	shape, _ = ClassifyArg1(MkWord(TagLST, uint64(addr)), &w.Heap)
	assert.Equal(t, ShapeList, shape)

	shape, key := ClassifyArg1(Atom(5), &w.Heap)
	assert.Equal(t, ShapeOther, shape)
	assert.Equal(t, keyAtom, key.Kind)
	assert.Equal(t, AtomIdx(5), key.Atom)

	shape, key = ClassifyArg1(Num(3), &w.Heap)
	assert.Equal(t, ShapeOther, shape)
	assert.Equal(t, keySmall, key.Kind)
	assert.Equal(t, int64(3), key.Small)

	f := Functor{Name: 9, Arity: 2}
	structTerm := w.PushStruct(f, Num(1), Num(2))
	shape, key = ClassifyArg1(structTerm, &w.Heap)
	assert.Equal(t, ShapeOther, shape)
	assert.Equal(t, keyFunctor, key.Kind)
	assert.Equal(t, f, key.Functor)
}

func TestPromotionRuleStaysNonIndexedWhileAllVar(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	w := NewWorker()
	key := Functor{Name: atoms.Intern("p"), Arity: 1}
	d, err := db.DefinePredicate(key, ModeUnprofiled)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		arg := w.PushVar()
		head := w.PushStruct(key, arg)
		clause := &Clause{Functor: key, Head: head}
		require.NoError(t, d.CompiledClause(clause, ShapeVar, IndexKey{}))
	}
	assert.False(t, d.Indexed())
}

func TestPromotionRuleFlipsOnFirstConcreteClause(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	w := NewWorker()
	key := Functor{Name: atoms.Intern("p"), Arity: 1}
	d, _ := db.DefinePredicate(key, ModeUnprofiled)

	arg := w.PushVar()
	head := w.PushStruct(key, arg)
	require.NoError(t, d.CompiledClause(&Clause{Functor: key, Head: head}, ShapeVar, IndexKey{}))
	assert.False(t, d.Indexed())

	atomArg := Atom(atoms.Intern("red"))
	head = w.PushStruct(key, atomArg)
	shape, indexKey := ClassifyArg1(atomArg, &w.Heap)
	require.NoError(t, d.CompiledClause(&Clause{Functor: key, Head: head}, shape, indexKey))
	assert.True(t, d.Indexed())
}

func TestTryChainDispatchesByShape(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	w := NewWorker()
	key := Functor{Name: atoms.Intern("color"), Arity: 1}
	d, _ := db.DefinePredicate(key, ModeUnprofiled)

	redAtom := Atom(atoms.Intern("red"))
	redHead := w.PushStruct(key, redAtom)
	shape, indexKey := ClassifyArg1(redAtom, &w.Heap)
	require.NoError(t, d.CompiledClause(&Clause{Functor: key, Head: redHead}, shape, indexKey))

	greenAtom := Atom(atoms.Intern("green"))
	greenHead := w.PushStruct(key, greenAtom)
	shape, indexKey = ClassifyArg1(greenAtom, &w.Heap)
	require.NoError(t, d.CompiledClause(&Clause{Functor: key, Head: greenHead}, shape, indexKey))

	redGoal := w.PushStruct(key, redAtom)
	chain := d.tryChain(redGoal, w)
	require.False(t, chain.IsFail())
	assert.True(t, Unify(w, chain.Clause.Head, redGoal))

	blueAtom := Atom(atoms.Intern("blue"))
	blueGoal := w.PushStruct(key, blueAtom)
	chain = d.tryChain(blueGoal, w)
	assert.True(t, chain.IsFail(), "no clause narrows this key and none is var-shaped")
}

func TestTryChainArity0UsesVarChain(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	w := NewWorker()
	key := Functor{Name: atoms.Intern("idle"), Arity: 0}
	d, _ := db.DefinePredicate(key, ModeUnprofiled)
	require.NoError(t, d.CompiledClause(&Clause{Functor: key, Head: Atom(key.Name)}, ShapeVar, IndexKey{}))

	chain := d.tryChain(Atom(key.Name), w)
	require.False(t, chain.IsFail())
}

func TestInterpretedPredAddAndRemoveInstance(t *testing.T) {
	ip := newInterpretedPred()
	c1 := &Clause{Functor: Functor{Name: 1, Arity: 1}}
	c2 := &Clause{Functor: Functor{Name: 1, Arity: 1}}
	ip.AddInstance(c1, IndexKey{}, false)
	ip.AddInstance(c2, IndexKey{}, false)
	assert.Len(t, ip.Instances(), 2)

	removed := ip.RemoveInstance(func(c *Clause) bool { return c == c1 })
	assert.True(t, removed)
	assert.Len(t, ip.Instances(), 1)
}
