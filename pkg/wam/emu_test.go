package wam

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceEmulatorRunFailsOnUndefinedPredicate(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	emu := &ReferenceEmulator{DB: db}
	w := NewWorker()
	gd := &GoalDescriptor{Goal: Atom(atoms.Intern("nope")), heap: &w.Heap}
	assert.Equal(t, Failure, emu.Run(context.Background(), w, gd))
}

func TestReferenceEmulatorRunAndResumeOverMultipleClauses(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	key := Functor{Name: atoms.Intern("p"), Arity: 0}
	d, err := db.DefinePredicate(key, ModeUnprofiled)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, d.CompiledClause(&Clause{Functor: key, Head: Atom(key.Name)}, ShapeVar, IndexKey{}))
	}

	emu := &ReferenceEmulator{DB: db}
	w := NewWorker()
	goal := Atom(key.Name)
	gd := &GoalDescriptor{Goal: goal, heap: &w.Heap}

	code := emu.Run(context.Background(), w, gd)
	require.Equal(t, Success, code)
	solutions := 1
	for {
		code = emu.Resume(context.Background(), w, goal)
		if code != Success {
			break
		}
		solutions++
	}
	assert.Equal(t, 3, solutions)
	assert.Equal(t, Failure, code)
}

func TestReferenceEmulatorRunRespectsContextCancellation(t *testing.T) {
	atoms := NewAtomTable()
	db := NewClauseDB(atoms)
	key := Functor{Name: atoms.Intern("p"), Arity: 0}
	d, _ := db.DefinePredicate(key, ModeUnprofiled)
	require.NoError(t, d.CompiledClause(&Clause{Functor: key, Head: Atom(key.Name)}, ShapeVar, IndexKey{}))

	emu := &ReferenceEmulator{DB: db}
	w := NewWorker()
	gd := &GoalDescriptor{Goal: Atom(key.Name), heap: &w.Heap}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	time.Sleep(time.Millisecond)
	code := emu.Run(ctx, w, gd)
	assert.Equal(t, Abort, code)
}

func TestFailNodeIsFail(t *testing.T) {
	assert.True(t, FailNode.IsFail())
	var nilNode *TryNode
	assert.True(t, nilNode.IsFail())
	assert.False(t, (&TryNode{Clause: &Clause{}}).IsFail())
}
