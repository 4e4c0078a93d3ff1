package wam

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDefinition(t *testing.T, db *ClauseDB, atoms *AtomTable, name string, arity int) (*Definition, Functor) {
	t.Helper()
	key := Functor{Name: atoms.Intern(name), Arity: arity}
	d, err := db.DefinePredicate(key, ModeUnprofiled)
	require.NoError(t, err)
	return d, key
}

func TestDefinePredicateThenLookup(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	d, key := newTestDefinition(t, db, atoms, "p", 1)
	got, ok := db.Lookup(key)
	require.True(t, ok)
	assert.Same(t, d, got)
	assert.Equal(t, Compact, d.Kind())
}

func TestDefinePredicateInterpretedMode(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	key := Functor{Name: atoms.Intern("dyn"), Arity: 2}
	d, err := db.DefinePredicate(key, ModeInterpreted)
	require.NoError(t, err)
	assert.Equal(t, Interpreted, d.Kind())
}

func TestDefinePredicateMultifileIsNoOp(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	d, key := newTestDefinition(t, db, atoms, "mf", 0)
	clause := &Clause{Functor: key, Head: Atom(key.Name)}
	require.NoError(t, d.CompiledClause(clause, ShapeVar, IndexKey{}))
	d.SetProps(PropMultifile)

	_, err := db.DefinePredicate(key, ModeUnprofiled)
	require.NoError(t, err)
	assert.Equal(t, Compact, d.Kind(), "multifile predicate keeps its existing storage")
}

func TestAbolishParksStorageInBinAndIsIdempotent(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	d, _ := newTestDefinition(t, db, atoms, "q", 1)

	db.Abolish(d)
	assert.Equal(t, 1, db.BinSize())
	assert.Equal(t, Undefined, d.Kind())

	db.Abolish(d) // already undefined: no-op, spec testable property 3
	assert.Equal(t, 1, db.BinSize())
}

func TestEmptyGCDefBinDrains(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	d1, _ := newTestDefinition(t, db, atoms, "r1", 0)
	d2, _ := newTestDefinition(t, db, atoms, "r2", 0)
	db.Abolish(d1)
	db.Abolish(d2)
	require.Equal(t, 2, db.BinSize())

	n := db.EmptyGCDefBin()
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, db.BinSize())
}

func TestFindDefinitionExistenceError(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	goal := Atom(atoms.Intern("missing"))
	_, err := db.FindDefinition(goal, nil, false)
	assert.Error(t, err)
}

func TestFindDefinitionInsertsStub(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	goal := Atom(atoms.Intern("stub"))
	d, err := db.FindDefinition(goal, nil, true)
	require.NoError(t, err)
	assert.Equal(t, Undefined, d.Kind())
}

func TestDefinitionIndexedReflectsCompiledPred(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	d, key := newTestDefinition(t, db, atoms, "idxed", 1)
	assert.False(t, d.Indexed())

	clause := &Clause{Functor: key, Head: Atom(key.Name)}
	require.NoError(t, d.CompiledClause(clause, ShapeOther, IndexKey{Kind: keyAtom, Atom: 1}))
	assert.True(t, d.Indexed())
}

func TestDefinitionIndexedFalseForUndefined(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	d, _ := newTestDefinition(t, db, atoms, "undef", 0)
	db.Abolish(d)
	assert.False(t, d.Indexed())
}

func TestConcurrentPredicateInsertionIsConsistent(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := atoms.Intern("concurrent")
			key := Functor{Name: name, Arity: i % 3}
			_, _ = db.DefinePredicate(key, ModeUnprofiled)
		}(i)
	}
	wg.Wait()
	for i := 0; i < 3; i++ {
		_, ok := db.Lookup(Functor{Name: atoms.Intern("concurrent"), Arity: i})
		assert.True(t, ok)
	}
}
