package wam

// Unify structurally unifies a and b against worker w's heap/local stack,
// binding variables through Worker.Bind so bindings trail correctly.
// ReferenceEmulator needs this as a single entry point; a real bytecode
// compiler would instead emit per-instruction unification, which is out
// of scope here.
func Unify(w *Worker, a, b Word) bool {
	a = w.Deref(a)
	b = w.Deref(b)
	if a == b {
		return true
	}
	if a.IsVar() {
		w.Bind(a, b)
		return true
	}
	if b.IsVar() {
		w.Bind(b, a)
		return true
	}
	if a.Tag() != b.Tag() {
		return false
	}
	switch a.Tag() {
	case TagNUM, TagATM:
		return a == b
	case TagLST:
		aAddr, bAddr := int(a.Payload()), int(b.Payload())
		return Unify(w, w.Heap.get(aAddr), w.Heap.get(bAddr)) &&
			Unify(w, w.Heap.get(aAddr+1), w.Heap.get(bAddr+1))
	case TagSTR:
		fa := DecodeFunctorHeader(w.Heap.get(int(a.Payload())))
		fb := DecodeFunctorHeader(w.Heap.get(int(b.Payload())))
		if fa != fb {
			return false
		}
		aBase, bBase := int(a.Payload()), int(b.Payload())
		for i := 1; i <= fa.Arity; i++ {
			if !Unify(w, w.Heap.get(aBase+i), w.Heap.get(bBase+i)) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
