package wam

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// EntryKind names the storage shape of a Definition.
type EntryKind uint8

const (
	Undefined EntryKind = iota
	Compact
	CompactIndexed
	Profiled
	ProfiledIndexed
	Interpreted
	NativeGo
)

// PredProps is a bitset of predicate properties.
type PredProps uint8

const (
	PropDynamic PredProps = 1 << iota
	PropConcurrent
	PropMultifile
	PropWait
	PropSpy
	PropBreakpoint
)

// CompileMode selects the storage shape define_predicate resets a
// predicate to.
type CompileMode uint8

const (
	ModeUnprofiled CompileMode = iota
	ModeProfiled
	ModeInterpreted
)

// Definition is a predicate's database entry: name, storage kind, a
// pointer to its storage, and its property bitset.
type Definition struct {
	Name  Functor
	Sub   *SubFunctor // non-nil for compiler-generated auxiliaries
	mu    sync.Mutex
	kind  EntryKind
	props PredProps

	compiled    *CompiledPred
	interpreted *InterpretedPred
}

func (d *Definition) Kind() EntryKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.kind
}

func (d *Definition) Props() PredProps {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.props
}

func (d *Definition) SetProps(p PredProps) {
	d.mu.Lock()
	d.props |= p
	d.mu.Unlock()
}

// Indexed reports whether this predicate's compiled storage has been
// promoted to indexed form; always false for interpreted or undefined
// predicates.
func (d *Definition) Indexed() bool {
	d.mu.Lock()
	cp := d.compiled
	d.mu.Unlock()
	if cp == nil {
		return false
	}
	return cp.Indexed()
}

// goalFunctorOf computes the key used to look a goal's predicate up:
// arity 0 for atoms, 2 for lists, arity(f) for structures.
func goalFunctorOf(goal Word, heap *region) Functor {
	switch goal.Tag() {
	case TagATM:
		return Functor{Name: AtomIndex(goal), Arity: 0}
	case TagLST:
		return DotFunctor
	case TagSTR:
		return DecodeFunctorHeader(heap.get(int(goal.Payload())))
	default:
		return Functor{}
	}
}

// ClauseDB is the process-wide predicate table: a hash map guarded by a
// coarse lock for writers, with append-only try-chains readers may walk
// lock-free.
type ClauseDB struct {
	mu    sync.Mutex // the predicate-table lock
	table atomic.Pointer[predTable]

	atoms *AtomTable

	binMu sync.Mutex
	bin   []*abolishedStorage // deferred-reclamation bin

	PredicateCount int64 // updated atomically by insertStub and Abolish
}

type predTable struct {
	m map[Functor]*Definition
}

// abolishedStorage is an unlinked predicate's storage, parked until
// EmptyGCDefBin runs at a quiescent point.
type abolishedStorage struct {
	name    Functor
	kind    EntryKind
	storage interface{}
}

// NewClauseDB returns an empty database.
func NewClauseDB(atoms *AtomTable) *ClauseDB {
	db := &ClauseDB{atoms: atoms}
	db.table.Store(&predTable{m: make(map[Functor]*Definition)})
	return db
}

// snapshot returns the current table pointer; readers call this once per
// lookup so a concurrent resize is observed atomically.
func (db *ClauseDB) snapshot() *predTable { return db.table.Load() }

// Lookup finds an existing definition without creating one.
func (db *ClauseDB) Lookup(key Functor) (*Definition, bool) {
	t := db.snapshot()
	d, ok := t.m[key]
	return d, ok
}

// FindDefinition extracts a goal's functor and probes the predicate
// table, optionally creating an undefined stub.
func (db *ClauseDB) FindDefinition(goal Word, heap *region, insert bool) (*Definition, error) {
	key := goalFunctorOf(goal, heap)
	if d, ok := db.Lookup(key); ok {
		return d, nil
	}
	if !insert {
		return nil, newExistenceErr(fmt.Sprintf("procedure %v does not exist", key))
	}
	return db.insertStub(key), nil
}

// insertStub creates an Undefined definition and publishes it. The
// functor hash slot is written only after the definition body is fully
// initialised, so a concurrent reader either sees "absent" or sees a
// complete definition.
func (db *ClauseDB) insertStub(key Functor) *Definition {
	db.mu.Lock()
	defer db.mu.Unlock()
	old := db.snapshot()
	if d, ok := old.m[key]; ok {
		return d
	}
	d := &Definition{Name: key, kind: Undefined}
	db.publish(old, key, d)
	atomic.AddInt64(&db.PredicateCount, 1)
	return d
}

// publish installs d under key, growing (rehashing into a fresh table
// twice the size) when the load factor would exceed 1/2. The new table
// pointer is swapped in only after it is fully populated.
func (db *ClauseDB) publish(old *predTable, key Functor, d *Definition) {
	if (len(old.m)+1)*2 > cap2(len(old.m)) {
		grown := &predTable{m: make(map[Functor]*Definition, len(old.m)*2+1)}
		for k, v := range old.m {
			grown.m[k] = v
		}
		grown.m[key] = d
		db.table.Store(grown)
		return
	}
	// In-place growth would race readers; Go maps are not safe for
	// concurrent read/write, so every publish goes through a copy — not
	// just the ones that cross the load-factor threshold.
	grown := &predTable{m: make(map[Functor]*Definition, len(old.m)+1)}
	for k, v := range old.m {
		grown.m[k] = v
	}
	grown.m[key] = d
	db.table.Store(grown)
}

func cap2(n int) int {
	c := 1
	for c < n {
		c *= 2
	}
	if c == 0 {
		c = 1
	}
	return c
}

// ParseDefinitionTerm resolves a term of shape Name/Arity, or the nested
// "(Parent-ClauseNo)-SubNo/Arity" auxiliary shape, to a Definition,
// creating sub-definition chains on demand. ParsedDefTerm is a
// pre-decoded description of the term's shape; the source term's actual
// reader grammar is out of scope here.
type ParsedDefTerm struct {
	Plain *Functor
	Aux   *struct {
		Parent   Functor
		ClauseNo int
		SubNo    int
		Arity    int
	}
}

func (db *ClauseDB) ParseDefinitionTerm(t ParsedDefTerm) (*Definition, error) {
	if t.Plain != nil {
		if d, ok := db.Lookup(*t.Plain); ok {
			return d, nil
		}
		return db.insertStub(*t.Plain), nil
	}
	if t.Aux == nil {
		return nil, newUsageFault("parse_definition: empty term")
	}
	parent, ok := db.Lookup(t.Aux.Parent)
	if !ok {
		parent = db.insertStub(t.Aux.Parent)
	}
	sub := &SubFunctor{Parent: parent, ClauseNo: t.Aux.ClauseNo, SubNo: t.Aux.SubNo, Arity: t.Aux.Arity}
	key := Functor{Name: ^AtomIdx(uint64(sub.ClauseNo)<<16 ^ uint64(sub.SubNo)), Arity: sub.Arity}
	if d, ok := db.Lookup(key); ok {
		return d, nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	old := db.snapshot()
	if d, ok := old.m[key]; ok {
		return d, nil
	}
	d := &Definition{Name: key, Sub: sub, kind: Undefined}
	db.publish(old, key, d)
	return d, nil
}

// DefinePredicate resets name/arity to an empty predicate of the given
// storage mode. Fails silently (no-op, preserving existing clauses) when
// the predicate is already marked multifile.
func (db *ClauseDB) DefinePredicate(key Functor, mode CompileMode) (*Definition, error) {
	d, ok := db.Lookup(key)
	if !ok {
		d = db.insertStub(key)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.props&PropMultifile != 0 {
		return d, nil // silent no-op, preserves existing clauses
	}
	switch mode {
	case ModeInterpreted:
		d.kind = Interpreted
		d.interpreted = newInterpretedPred()
		d.compiled = nil
	default:
		d.kind = Compact
		if mode == ModeProfiled {
			d.kind = Profiled
		}
		d.compiled = newCompiledPred()
		d.interpreted = nil
	}
	return d, nil
}

// Abolish marks the predicate undefined and parks its storage in the
// deferred-reclamation bin; abolishing an already-undefined predicate is
// a no-op.
func (db *ClauseDB) Abolish(d *Definition) {
	d.mu.Lock()
	if d.kind == Undefined {
		d.mu.Unlock()
		return
	}
	old := abolishedStorage{name: d.Name, kind: d.kind}
	if d.compiled != nil {
		old.storage = d.compiled
	} else {
		old.storage = d.interpreted
	}
	d.kind = Undefined
	d.compiled = nil
	d.interpreted = nil
	d.mu.Unlock()

	db.binMu.Lock()
	db.bin = append(db.bin, &old)
	db.binMu.Unlock()
	atomic.AddInt64(&db.PredicateCount, -1)
}

// EmptyGCDefBin actually frees everything deferred. Called at safe
// points such as engine restart; relocation during a GC pass also
// traverses this bin to keep interpreted predicates' instance timestamps
// consistent.
func (db *ClauseDB) EmptyGCDefBin() int {
	db.binMu.Lock()
	defer db.binMu.Unlock()
	n := len(db.bin)
	db.bin = db.bin[:0]
	return n
}

// BinSize reports how many abolished predicates are awaiting reclamation.
func (db *ClauseDB) BinSize() int {
	db.binMu.Lock()
	defer db.binMu.Unlock()
	return len(db.bin)
}

// Relocate implements Relocator so a worker's stack shift/GC keeps the
// deferred-reclamation bin's (and any live interpreted predicate's)
// instance clocks consistent.
func (db *ClauseDB) Relocate(old, new uint64) {
	db.binMu.Lock()
	defer db.binMu.Unlock()
	for _, s := range db.bin {
		if ip, ok := s.storage.(*InterpretedPred); ok {
			ip.bumpClock()
		}
	}
}
