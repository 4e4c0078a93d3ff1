package wam

import (
	"sync"
	"sync/atomic"
)

// ArgShape classifies what a clause's first argument may match, driving
// the indexing policy.
type ArgShape uint8

const (
	ShapeVar ArgShape = iota
	ShapeList
	ShapeOther
)

// IndexKey is the othercase hash key: an atom, functor, or small integer.
type IndexKey struct {
	Atom    AtomIdx
	Functor Functor
	Small   int64
	Kind    indexKeyKind
}

type indexKeyKind uint8

const (
	keyAtom indexKeyKind = iota
	keyFunctor
	keySmall
)

// ClassifyArg1 inspects a clause head's first argument and returns which
// try-chain(s) it contributes to. A bare variable contributes to varcase,
// lstcase, and every othercase key (see extendChains); a list contributes
// to lstcase only; any other concrete shape contributes to its own
// othercase key only.
func ClassifyArg1(arg Word, heap *region) (shape ArgShape, key IndexKey) {
	switch arg.Tag() {
	case TagHVA, TagCVA, TagSVA:
		return ShapeVar, IndexKey{}
	case TagLST:
		return ShapeList, IndexKey{}
	case TagATM:
		return ShapeOther, IndexKey{Kind: keyAtom, Atom: AtomIndex(arg)}
	case TagNUM:
		return ShapeOther, IndexKey{Kind: keySmall, Small: NumValue(arg)}
	case TagSTR:
		f := DecodeFunctorHeader(heap.get(int(arg.Payload())))
		return ShapeOther, IndexKey{Kind: keyFunctor, Functor: f}
	default:
		return ShapeOther, IndexKey{}
	}
}

// ClauseNode is one link in a predicate's doubly-linked clause list.
type ClauseNode struct {
	Clause *Clause
	Shape  ArgShape
	Key    IndexKey
	Next   *ClauseNode
	Prev   *ClauseNode
}

// CompiledPred is the compiled storage for a predicate: the clause list
// plus three try-chain projections.
type CompiledPred struct {
	mu sync.Mutex

	head, tail *ClauseNode
	nextClauseNo int

	indexed bool // promoted from non-indexed once a clause narrows the shape

	varChain atomic.Pointer[TryNode]
	lstChain atomic.Pointer[TryNode]
	otherTbl atomic.Pointer[otherTable]

	// varTail/lstTail/otherTails track the last TryNode of each published
	// chain so insert can extend a chain by mutating its tail's Next
	// pointer instead of rebuilding the whole chain from cp.head.
	varTail    *TryNode
	lstTail    *TryNode
	otherTails map[IndexKey]*TryNode

	// lastInsert caches the last-inserted node so repeated assertz calls
	// stay close to O(1) instead of O(depth); see DESIGN.md OQ-b for the
	// CACHE_INCREMENTAL_CLAUSE_INSERTION invariant it protects.
	lastInsert *ClauseNode
}

type otherTable struct {
	m map[IndexKey]*TryNode
}

func newCompiledPred() *CompiledPred {
	cp := &CompiledPred{otherTails: make(map[IndexKey]*TryNode)}
	cp.varChain.Store(FailNode)
	cp.lstChain.Store(FailNode)
	cp.otherTbl.Store(&otherTable{m: make(map[IndexKey]*TryNode)})
	return cp
}

// CompiledClause appends bc to def's compiled storage and updates
// indexing. shape/key classify the clause's first argument, as produced
// by ClassifyArg1.
func (d *Definition) CompiledClause(bc *Clause, shape ArgShape, key IndexKey) error {
	d.mu.Lock()
	cp := d.compiled
	d.mu.Unlock()
	if cp == nil {
		return newUsageFault("compiled_clause: predicate is not compiled storage")
	}
	cp.insert(bc, shape, key)
	if cp.Indexed() {
		d.mu.Lock()
		if d.compiled == cp {
			switch d.kind {
			case Compact:
				d.kind = CompactIndexed
			case Profiled:
				d.kind = ProfiledIndexed
			}
		}
		d.mu.Unlock()
	}
	return nil
}

// insert performs the O(depth) incremental append with the one-slot
// cache, then extends the three try-chain projections in place and
// evaluates the promotion rule. Chain extension only mutates the tail
// node of an already-published chain (safe: Next is an atomic.Pointer and
// every other field of a published TryNode is write-once); the one case
// that still walks the full clause list is the first clause to carry a
// given othercase key, since its chain must also include every
// preceding var-shaped clause in original order.
func (cp *CompiledPred) insert(bc *Clause, shape ArgShape, key IndexKey) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	node := &ClauseNode{Clause: bc, Shape: shape, Key: key}
	bc.ClauseNo = cp.nextClauseNo
	cp.nextClauseNo++

	if cp.tail != nil {
		assertCachedTailValid(cp)
		node.Prev = cp.tail
		cp.tail.Next = node
		cp.tail = node
	} else {
		cp.head = node
		cp.tail = node
	}
	cp.lastInsert = node

	cp.extendChains(node)
	cp.evaluatePromotion(shape)
}

// extendChains appends node onto whichever of varChain/lstChain/otherTbl
// it now belongs to, per the indexing policy: a variable-headed clause
// belongs to varcase, lstcase, and every existing othercase key; a
// list-headed clause belongs only to lstcase; every other clause belongs
// only to its own othercase key.
func (cp *CompiledPred) extendChains(node *ClauseNode) {
	switch node.Shape {
	case ShapeVar:
		cp.varTail = cp.appendToChain(&cp.varChain, cp.varTail, node)
		cp.lstTail = cp.appendToChain(&cp.lstChain, cp.lstTail, node)
		cp.appendVarToEveryOtherKey(node)
	case ShapeList:
		cp.lstTail = cp.appendToChain(&cp.lstChain, cp.lstTail, node)
	default:
		cp.appendOther(node)
	}
}

// appendToChain adds node to the end of the chain published in slot,
// given that chain's current tail (nil if the chain is still empty, i.e.
// FailNode). It returns the new tail. Publishing a brand-new chain uses
// slot.Store so a concurrent reader either sees the whole new chain or
// the old (empty) one; extending an existing chain mutates only the old
// tail's Next pointer, which readers that already hold that tail will
// pick up the next time they dereference it.
func (cp *CompiledPred) appendToChain(slot *atomic.Pointer[TryNode], tail *TryNode, node *ClauseNode) *TryNode {
	fresh := newTryNode(node.Clause.Functor.Arity, node.Clause, FailNode)
	if tail == nil {
		slot.Store(fresh)
	} else {
		tail.Next.Store(fresh)
	}
	return fresh
}

// extendExistingChain appends node after an already-known tail node,
// mutating only that node's Next pointer, and returns the new tail. Used
// for othercase chains, whose head is reached through the otherTbl map
// rather than a dedicated atomic slot.
func (cp *CompiledPred) extendExistingChain(tail *TryNode, node *ClauseNode) *TryNode {
	fresh := newTryNode(node.Clause.Functor.Arity, node.Clause, FailNode)
	tail.Next.Store(fresh)
	return fresh
}

// appendOther extends node's own othercase key chain. The first clause to
// carry a given key has to pull in every var-shaped clause that precedes
// it too (a variable-headed clause matches any key), which requires one
// walk of the full clause list; every later clause under the same key is
// an O(1) tail append like the var/list chains above.
func (cp *CompiledPred) appendOther(node *ClauseNode) {
	if tail, ok := cp.otherTails[node.Key]; ok {
		cp.otherTails[node.Key] = cp.extendExistingChain(tail, node)
		return
	}

	merged := mergeVarIntoOther(cp.head, node.Key)
	head, tail := chainFromWithTail(merged)
	cp.publishOtherKey(node.Key, head)
	cp.otherTails[node.Key] = tail
}

// appendVarToEveryOtherKey extends every already-existing othercase
// key's chain with node, since a variable-headed clause also matches
// every key regardless of its own concrete value.
func (cp *CompiledPred) appendVarToEveryOtherKey(node *ClauseNode) {
	for key, tail := range cp.otherTails {
		cp.otherTails[key] = cp.extendExistingChain(tail, node)
	}
}

// publishOtherKey installs head as key's chain in a freshly copied
// otherTable, so concurrent readers of the old table are never exposed
// to a half-populated map.
func (cp *CompiledPred) publishOtherKey(key IndexKey, head *TryNode) {
	old := cp.otherTbl.Load()
	tbl := &otherTable{m: make(map[IndexKey]*TryNode, len(old.m)+1)}
	for k, v := range old.m {
		tbl.m[k] = v
	}
	tbl.m[key] = head
	cp.otherTbl.Store(tbl)
}

// assertCachedTailValid is a debug-only check on the
// CACHE_INCREMENTAL_CLAUSE_INSERTION invariant that no intermediate
// clause was erased between insertions (see DESIGN.md OQ-b). The
// insertion path notes the invariant but does not enforce it in release
// builds; we assert it in debug builds only, to avoid paying the check's
// cost unconditionally.
func assertCachedTailValid(cp *CompiledPred) {
	if !debugAsserts {
		return
	}
	if cp.lastInsert != nil && cp.lastInsert != cp.tail {
		panic("wam: CACHE_INCREMENTAL_CLAUSE_INSERTION invariant violated: " +
			"a clause was erased between two incremental inserts")
	}
}

// mergeVarIntoOther returns, in head-to-tail order, every clause node
// that is either shaped ShapeVar or keyed exactly to key, preserving
// overall clause order: a variable-headed clause must try in its
// original position relative to the concrete ones under this key.
func mergeVarIntoOther(head *ClauseNode, key IndexKey) []*ClauseNode {
	var out []*ClauseNode
	for n := head; n != nil; n = n.Next {
		if n.Shape == ShapeVar || (n.Shape == ShapeOther && n.Key == key) {
			out = append(out, n)
		}
	}
	return out
}

// chainFromWithTail builds a try-chain from nodes in order and returns
// both its head and its last (tail) TryNode, so callers can keep
// extending it later without re-walking the chain.
func chainFromWithTail(nodes []*ClauseNode) (head, tail *TryNode) {
	chain := FailNode
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		chain = newTryNode(n.Clause.Functor.Arity, n.Clause, chain)
		if tail == nil {
			tail = chain
		}
	}
	if tail == nil {
		tail = FailNode
	}
	return chain, tail
}

// evaluatePromotion implements the promotion rule: as long as every
// clause still matches all three kinds (i.e. nothing has yet appeared
// that is definitely non-variable or definitely non-list), the predicate
// stays in non-indexed form. The first time a clause narrows the shape,
// the predicate is considered promoted to indexed storage.
func (cp *CompiledPred) evaluatePromotion(shape ArgShape) {
	if shape != ShapeVar {
		cp.indexed = true
	}
}

// Indexed reports whether this predicate has been promoted to indexed
// storage.
func (cp *CompiledPred) Indexed() bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.indexed
}

// tryChain returns the try-chain appropriate for goal's first argument,
// dispatching on the shape of the (already-bound or unbound) argument the
// way a compiled emulator entry would pick its head alternative. For an
// arity-0 goal (an atom), the whole clause list is the chain (no first
// argument to index on).
func (d *Definition) tryChain(goal Word, w *Worker) *TryNode {
	d.mu.Lock()
	cp := d.compiled
	ip := d.interpreted
	d.mu.Unlock()

	if ip != nil {
		return ip.tryChain(goal, w)
	}
	if cp == nil {
		return FailNode
	}
	if d.Name.Arity == 0 {
		return cp.varChain.Load()
	}

	arg1 := w.Deref(w.argOf(goal, 1))
	shape, key := ClassifyArg1(arg1, &w.Heap)
	switch shape {
	case ShapeVar:
		return cp.varChain.Load()
	case ShapeList:
		return cp.lstChain.Load()
	default:
		tbl := cp.otherTbl.Load()
		if chain, ok := tbl.m[key]; ok {
			return chain
		}
		return cp.varChain.Load() // no clause narrows this key: fall back to var-shaped ones only
	}
}

// argOf extracts the i'th (1-based) argument word of a structure/list
// goal term directly from the heap, used only by the reference
// dispatcher above; the real compiled emulator would instead read a
// pre-loaded X-register.
func (w *Worker) argOf(goal Word, i int) Word {
	switch goal.Tag() {
	case TagSTR:
		return w.Heap.get(int(goal.Payload()) + i)
	case TagLST:
		if i == 1 {
			return w.Heap.get(int(goal.Payload()))
		}
		return w.Heap.get(int(goal.Payload()) + 1)
	default:
		return goal
	}
}

// InterpretedPred is the instance-list storage for an interpreted
// predicate: a plain instance list plus a first-argument index hash.
type InterpretedPred struct {
	mu        sync.Mutex
	instances []*Clause
	index     map[IndexKey][]*Clause
	clock     int64 // bumped on every GC relocation pass
}

func newInterpretedPred() *InterpretedPred {
	return &InterpretedPred{index: make(map[IndexKey][]*Clause)}
}

func (ip *InterpretedPred) bumpClock() { atomic.AddInt64(&ip.clock, 1) }

func (ip *InterpretedPred) Clock() int64 { return atomic.LoadInt64(&ip.clock) }

func (ip *InterpretedPred) tryChain(goal Word, w *Worker) *TryNode {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	chain := FailNode
	for i := len(ip.instances) - 1; i >= 0; i-- {
		c := ip.instances[i]
		chain = newTryNode(c.Functor.Arity, c, chain)
	}
	return chain
}

// AddInstance appends a clause instance and indexes it by its first
// argument's key if provided.
func (ip *InterpretedPred) AddInstance(c *Clause, key IndexKey, indexed bool) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.instances = append(ip.instances, c)
	if indexed {
		ip.index[key] = append(ip.index[key], c)
	}
}

// RemoveInstance deletes the first instance matching pred, returning
// whether one was removed.
func (ip *InterpretedPred) RemoveInstance(pred func(*Clause) bool) bool {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	for i, c := range ip.instances {
		if pred(c) {
			ip.instances = append(ip.instances[:i], ip.instances[i+1:]...)
			return true
		}
	}
	return false
}

// Instances returns a snapshot slice of the current instance list, in
// assertion order.
func (ip *InterpretedPred) Instances() []*Clause {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	out := make([]*Clause, len(ip.instances))
	copy(out, ip.instances)
	return out
}
