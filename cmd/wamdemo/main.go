// Command wamdemo drives the wam engine through a handful of scenarios
// end to end: interning atoms, asserting and backtracking over facts,
// first-argument indexing, concurrent goal scheduling, backtrackable
// setarg, the constraint/suspension primitives, the atom/number text
// codec, and deferred-reclamation of an abolished predicate.
package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/gokando-wam/wamcore/internal/reclaim"
	"github.com/gokando-wam/wamcore/pkg/wam"
)

func main() {
	fmt.Println("1. Atoms and tagged words:")
	basicTaggedWords()
	fmt.Println()

	fmt.Println("2. Facts and backtracking:")
	factsAndBacktracking()
	fmt.Println()

	fmt.Println("3. First-argument indexing:")
	indexingPromotion()
	fmt.Println()

	fmt.Println("4. Concurrent goal scheduling:")
	concurrentGoals()
	fmt.Println()

	fmt.Println("5. Backtrackable setarg:")
	setargRoundTrip()
	fmt.Println()

	fmt.Println("6. Constraints: suspension lists and freeze/defrost:")
	constraintsDemo()
	fmt.Println()

	fmt.Println("7. Atom/number text codec:")
	textCodec()
	fmt.Println()

	fmt.Println("8. Abolish and deferred reclamation:")
	abolishAndReclaim()
	fmt.Println()
}

func basicTaggedWords() {
	atoms := wam.NewAtomTable()
	red := atoms.Intern("red")
	green := atoms.Intern("green")
	fmt.Printf("  interned %q -> idx %d, %q -> idx %d\n", "red", red, "green", green)

	w := wam.Atom(red)
	fmt.Printf("  tagged word for red: tag=%v payload=%d\n", w.Tag(), w.Payload())

	n := wam.Num(42)
	fmt.Printf("  tagged word for 42: tag=%v value=%d\n", n.Tag(), wam.NumValue(n))
}

// factsAndBacktracking defines three clauses of an arity-0 predicate and
// walks every solution via MakeBacktracking, demonstrating the goal ring
// and choicepoint/trail machinery together.
func factsAndBacktracking() {
	e := wam.NewEngine()
	key := wam.Functor{Name: e.Atoms.Intern("idle"), Arity: 0}
	def, err := e.DB.DefinePredicate(key, wam.ModeUnprofiled)
	if err != nil {
		fmt.Println("  error:", err)
		return
	}
	for i := 0; i < 3; i++ {
		clause := &wam.Clause{Functor: key, Head: wam.Atom(key.Name)}
		if err := def.CompiledClause(clause, wam.ShapeVar, wam.IndexKey{}); err != nil {
			fmt.Println("  error:", err)
			return
		}
	}

	ctx := context.Background()
	gd := e.GimmeANewGD(func(w *wam.Worker) wam.Word { return wam.Atom(key.Name) })
	code := e.RunGoal(ctx, gd)
	n := 0
	for code == wam.Success {
		n++
		fmt.Printf("  solution %d: %v\n", n, code)
		code = e.MakeBacktracking(ctx, gd)
	}
	fmt.Printf("  exhausted after %d solutions: %v\n", n, code)
}

// indexingPromotion inserts clauses with a mix of first-argument shapes
// and reports when the predicate promotes from non-indexed storage.
func indexingPromotion() {
	atoms := wam.NewAtomTable()
	db := wam.NewClauseDB(atoms)
	w := wam.NewWorker()

	key := wam.Functor{Name: atoms.Intern("color"), Arity: 1}
	def, _ := db.DefinePredicate(key, wam.ModeUnprofiled)

	args := []struct {
		label string
		build func() wam.Word
	}{
		{"var", func() wam.Word { return w.PushVar() }},
		{"atom red", func() wam.Word { return wam.Atom(atoms.Intern("red")) }},
		{"list [1,2]", func() wam.Word {
			tail := wam.Atom(0)
			addr := w.HeapTop()
			w.PushHeap(wam.Num(2))
			w.PushHeap(tail)
			tail = wam.MkWord(wam.TagLST, uint64(addr))
			addr = w.HeapTop()
			w.PushHeap(wam.Num(1))
			w.PushHeap(tail)
			return wam.MkWord(wam.TagLST, uint64(addr))
		}},
	}

	for _, a := range args {
		arg := a.build()
		shape, indexKey := wam.ClassifyArg1(arg, &w.Heap)
		head := w.PushStruct(key, arg)
		clause := &wam.Clause{Functor: key, Head: head}
		_ = def.CompiledClause(clause, shape, indexKey)
		fmt.Printf("  inserted %-10s -> shape=%v indexed-now=%v\n", a.label, shape, def.Indexed())
	}
}

// concurrentGoals fans three independent arity-0 goals out across the
// free-worker pool via RunGoals. Each goal is a bare atom, so its term
// needs no heap-resident structure and is safe to build on whichever
// worker the scheduler happens to assign.
func concurrentGoals() {
	e := wam.NewEngine()
	names := []string{"alpha", "beta", "gamma"}
	builds := make([]func(w *wam.Worker) wam.Word, len(names))
	for i, name := range names {
		key := wam.Functor{Name: e.Atoms.Intern(name), Arity: 0}
		def, _ := e.DB.DefinePredicate(key, wam.ModeUnprofiled)
		clause := &wam.Clause{Functor: key, Head: wam.Atom(key.Name)}
		_ = def.CompiledClause(clause, wam.ShapeVar, wam.IndexKey{})
		builds[i] = func(w *wam.Worker) wam.Word { return wam.Atom(key.Name) }
	}

	codes, err := e.RunGoals(context.Background(), builds, 2)
	if err != nil {
		fmt.Println("  error:", err)
		return
	}
	for i, code := range codes {
		fmt.Printf("  goal %q -> %v\n", names[i], code)
	}
}

// setargRoundTrip smashes an argument of a compound term inside a
// choicepoint's segment, then backtracks to confirm the mutation is
// undone via the trailed $setarg record.
func setargRoundTrip() {
	w := wam.NewWorker()
	f := wam.Functor{Name: wam.AtomIdx(100), Arity: 2}
	term := w.PushStruct(f, wam.Num(1), wam.Num(2))

	w.PushChoicepoint(wam.FailNode, false)
	if err := w.Setarg(2, term, wam.Num(99), wam.SetargOn); err != nil {
		fmt.Println("  error:", err)
		return
	}
	addr := int(term.Payload())
	fmt.Printf("  after setarg(2, Term, 99): arg2=%d\n", wam.NumValue(w.Deref(w.HeapCell(addr+2))))

	if _, ok := w.Backtrack(); !ok {
		fmt.Println("  backtrack: no choicepoint")
		return
	}
	fmt.Printf("  after backtrack: arg2=%d\n", wam.NumValue(w.Deref(w.HeapCell(addr+2))))
}

// constraintsDemo attaches a suspended goal to a constrained variable via
// Frozen, prints the tag of ConstraintList's result, then detaches it via
// Defrost.
func constraintsDemo() {
	w := wam.NewWorker()
	addr := w.HeapTop()
	cva := wam.MkWord(wam.TagCVA, uint64(addr))
	w.PushHeap(cva)

	goal := wam.Atom(wam.AtomIdx(7))
	if err := w.Frozen(cva, goal); err != nil {
		fmt.Println("  error:", err)
		return
	}
	fmt.Println("  attached a suspension to a fresh constrained variable")

	list := w.ConstraintList()
	fmt.Printf("  ConstraintList tag: %v\n", list.Tag())

	suspensions, err := w.Defrost(cva)
	if err != nil {
		fmt.Println("  error:", err)
		return
	}
	fmt.Printf("  defrosted suspension list tag: %v\n", suspensions.Tag())
}

// textCodec round-trips an atom, a small integer, a float, and a bignum
// through the atom_codes/number_codes/name primitives.
func textCodec() {
	e := wam.NewEngine()
	w := wam.NewWorker()

	atomWord := wam.Atom(e.Atoms.Intern("gokando"))
	_, codes, err := w.AtomCodes(e, atomWord, nil)
	if err != nil {
		fmt.Println("  error:", err)
		return
	}
	back, _, err := w.AtomCodes(e, 0, codes)
	if err != nil {
		fmt.Println("  error:", err)
		return
	}
	fmt.Printf("  atom_codes round trip: %q\n", e.Atoms.Name(wam.AtomIndex(back)))

	small := wam.Num(-17)
	_, codes, _ = w.NumberCodes(e, small, nil)
	back, _, err = w.NumberCodes(e, 0, codes)
	if err != nil {
		fmt.Println("  error:", err)
		return
	}
	fmt.Printf("  number_codes round trip (int): %d\n", wam.NumValue(back))

	floatWord, err := w.ParseNumberBase("3.5", 10)
	if err != nil {
		fmt.Println("  error:", err)
		return
	}
	_, codes, _ = w.NumberCodes(e, floatWord, nil)
	fmt.Printf("  number_codes printed form (float): %s\n", string(runesOf(codes)))

	bignumWord, err := w.ParseNumberBase(hugeBignumLiteral(), 10)
	if err != nil {
		fmt.Println("  error:", err)
		return
	}
	_, codes, _ = w.NumberCodes(e, bignumWord, nil)
	fmt.Printf("  number_codes printed form (bignum): %s\n", string(runesOf(codes)))

	_, _, err = w.Name(e, wam.Num(5), nil)
	if err != nil {
		fmt.Println("  error:", err)
		return
	}
	fmt.Println("  name/2 accepts both atoms and numbers on the forward direction")
}

func runesOf(codes []int64) []rune {
	out := make([]rune, len(codes))
	for i, c := range codes {
		out[i] = rune(c)
	}
	return out
}

func hugeBignumLiteral() string {
	n := new(big.Int).Exp(big.NewInt(2), big.NewInt(100), nil)
	return n.String()
}

// abolishAndReclaim defines then abolishes a predicate, confirming its
// storage parks in the deferred-reclamation bin, then drains the bin
// through a reclaim.Reclaimer running on its own pool.
func abolishAndReclaim() {
	e := wam.NewEngine()
	key := wam.Functor{Name: e.Atoms.Intern("scratch"), Arity: 1}
	def, _ := e.DB.DefinePredicate(key, wam.ModeUnprofiled)
	fmt.Printf("  defined scratch/1, bin size=%d\n", e.DB.BinSize())

	e.DB.Abolish(def)
	fmt.Printf("  abolished scratch/1, bin size=%d\n", e.DB.BinSize())

	pool := reclaim.NewPool(2)
	defer pool.Shutdown()
	r := reclaim.NewReclaimer(e.DB, pool, 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Start(ctx)

	for i := 0; i < 50 && e.DB.BinSize() > 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	r.Stop()
	count, acc, _ := r.Counters().Snapshot()
	fmt.Printf("  bin size after reclaim: %d (sweeps=%d reclaimed=%d)\n", e.DB.BinSize(), count, acc)
}
