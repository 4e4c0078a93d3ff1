package wam

import (
	"context"
	"sync/atomic"
)

// ExitCode is the status the bytecode emulator returns to its caller.
type ExitCode uint8

const (
	// Success means the goal yielded a solution; choicepoints may remain.
	Success ExitCode = iota
	// Failure means the ghost initial choicepoint was hit: no solutions.
	Failure
	// Abort means an unrecoverable condition; WGS handles it.
	Abort
	// Interrupted means a signal arrived during I/O. RunGoal leaves the
	// goal WORKING and returns the code; re-entering is up to the caller.
	Interrupted
)

func (c ExitCode) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	case Abort:
		return "ABORT"
	case Interrupted:
		return "INTERRUPTED"
	default:
		return "?"
	}
}

// Clause is an opaque bytecode block. The compiler front-end that
// produces Clause values is out of scope here; this type is just what
// CDB stores and TryNode chains point at.
type Clause struct {
	Functor  Functor
	ClauseNo int
	Head     Word   // head term, used by the reference Emulator to unify
	Body     []Word // body goals, for the reference Emulator
}

// TryNode is one alternative in a predicate's try-chain: the entry point
// the emulator dispatches to, an optional second-tier entry used for the
// deterministic-first optimisation, and the next alternative. A try-chain
// never ends in nil; FailNode terminates every chain. Next is an atomic
// pointer rather than a plain one because CompiledPred.insert appends new
// clauses by mutating a chain's tail node in place (see index.go); a plain
// pointer would race against concurrent lock-free readers walking the
// same chain.
type TryNode struct {
	ArityIn int
	Clause  *Clause
	Entry   *Clause // == Clause, kept distinct for the deterministic-first case below
	Entry2  *Clause // second-tier entry for the deterministic-first case
	Next    atomic.Pointer[TryNode]
}

// newTryNode builds a TryNode with its Next pointer already set, since
// atomic.Pointer fields can't be initialised in a composite literal.
func newTryNode(arityIn int, clause *Clause, next *TryNode) *TryNode {
	n := &TryNode{ArityIn: arityIn, Clause: clause, Entry: clause}
	n.Next.Store(next)
	return n
}

// FailNode is the sentinel "fail alternative" every try-chain ends in; a
// chain never terminates in a nil pointer.
var FailNode = &TryNode{}

// IsFail reports whether n is the chain-terminating sentinel.
func (n *TryNode) IsFail() bool { return n == FailNode || n == nil }

// Emulator is the entry/exit contract between WGS and the bytecode loop.
// The interpreter itself is out of scope here; only this boundary, and a
// deterministic reference implementation sufficient for CDB/CT/WGS to be
// tested end-to-end, live in this package.
type Emulator interface {
	// Run executes gd's goal on worker w until the next SUCCESS, FAILURE,
	// ABORT, or INTERRUPTED boundary.
	Run(ctx context.Context, w *Worker, gd *GoalDescriptor) ExitCode
}

// ReferenceEmulator is a minimal depth-first try-chain walker with
// structural unification and full trailing/backtracking through the
// Worker's CT machinery. It exists because the real bytecode interpreter
// is out of scope here, but WGS and CDB need a concrete collaborator to
// exercise their contracts. A depth-first evaluator over explicit
// TryNode chains, rather than implicit goal streams, keeps it a direct
// match for how CompiledPred exposes its try-chains.
type ReferenceEmulator struct {
	DB *ClauseDB
}

// Run implements Emulator. gd.Goal must be a STR/ATM word whose functor
// names a predicate in DB; its arguments are read from gd.Goal on w's
// heap (X-registers are not consulted).
func (e *ReferenceEmulator) Run(ctx context.Context, w *Worker, gd *GoalDescriptor) ExitCode {
	def, ok := e.DB.Lookup(gd.goalFunctor())
	if !ok {
		return Failure
	}
	chain := def.tryChain(gd.Goal, w)
	return e.runChain(ctx, w, chain, gd.Goal)
}

// runChain walks chain, trying to unify each clause head with goal,
// pushing a choicepoint per remaining alternative before the head is
// unified (so the head's bindings are trailed against it), and returning
// on the first success or on chain exhaustion.
func (e *ReferenceEmulator) runChain(ctx context.Context, w *Worker, chain *TryNode, goal Word) ExitCode {
	for !chain.IsFail() {
		select {
		case <-ctx.Done():
			return Abort
		default:
		}
		next := chain.Next.Load()
		if !next.IsFail() {
			w.PushChoicepoint(next, false)
		}
		if chain.Clause != nil && Unify(w, chain.Clause.Head, goal) {
			return Success
		}
		if !next.IsFail() {
			w.Backtrack() // undo this head's partial bindings
		}
		chain = next
	}
	return Failure
}

// Resume continues from a previously saved alternative after
// MakeBacktracking requests another solution: on backtracking, it
// consumes the next untried alternative in the saved chain.
func (e *ReferenceEmulator) Resume(ctx context.Context, w *Worker, goal Word) ExitCode {
	alt, ok := w.Backtrack()
	if !ok {
		return Failure
	}
	return e.runChain(ctx, w, alt, goal)
}
