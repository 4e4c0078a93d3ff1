package wam

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

// --- constraint_list --------------------------------------------------

// suspensionFunctor tags a CVA cell's attached suspension/goal list cell
// on the heap.
var suspensionFunctor = Functor{Name: ^AtomIdx(2), Arity: 1}

// ConstraintList scans choicepoints from youngest to oldest and, for each,
// the heap cells from its saved heap top to the current heap top,
// collecting CVA cells that are self-referential. The result is a list
// with one ATM word per such cell, whose payload is the cell's heap
// address; the cells' suspension lists are not spliced in, and a cell
// inside several choicepoints' segments appears once per segment. With
// no choicepoint the result is the empty list. Grows the heap by powers
// of two and retries if there is not enough room, rather than failing an
// operation whose caller has no good way to recover space itself.
func (wk *Worker) ConstraintList() Word {
	for {
		list, ok := wk.tryBuildConstraintList()
		if ok {
			return list
		}
		wk.growHeapPow2AndRetry()
	}
}

func (wk *Worker) tryBuildConstraintList() (Word, bool) {
	var found []Word
	for cp := wk.ChoiceTop; cp != nil; cp = cp.prev {
		for addr := cp.SavedHeap; addr < wk.Heap.top; addr++ {
			cell := wk.Heap.get(addr)
			if cell.Tag() != TagCVA {
				continue
			}
			if !cell.SelfRef(uint64(addr)) {
				continue
			}
			found = append(found, Atom(AtomIdx(addr))) // placeholder identity for the suspended var
		}
	}
	need := len(found) * 2
	if wk.Heap.free() < need {
		return 0, false
	}
	list := wk.buildListWord(found)
	return list, true
}

func (wk *Worker) growHeapPow2AndRetry() {
	target := len(wk.Heap.cells) * 2
	if target == 0 {
		target = 64
	}
	grown := make([]Word, target)
	copy(grown, wk.Heap.cells)
	wk.Heap.cells = grown
	wk.Stats.HeapShifts++
}

// buildListWord writes elems as a proper list on the heap and returns its
// head word (the empty list is the ATM word for "[]", atom index 0).
func (wk *Worker) buildListWord(elems []Word) Word {
	tail := Atom(0)
	for i := len(elems) - 1; i >= 0; i-- {
		addr := wk.HeapTop()
		wk.PushHeap(elems[i])
		wk.PushHeap(tail)
		tail = MkWord(TagLST, uint64(addr))
	}
	return tail
}

// --- Frozen / Defrost (CVA suspension-list attach/detach) ----------------

// Frozen attaches goal to v's suspension list, appending it after
// whatever is already frozen there. v must be a CVA word.
func (wk *Worker) Frozen(v Word, goal Word) error {
	if v.Tag() != TagCVA {
		return newTypeErr("constrained_variable", "frozen/2: first argument must be a CVA")
	}
	addr := int(v.Payload())
	cur := wk.Heap.get(addr)
	pending := wk.collectSuspensions(cur)
	pending = append(pending, goal)
	node := wk.buildListWord(pending)
	wk.Heap.set(addr, node)
	return nil
}

// collectSuspensions walks an existing suspension list (or recognizes a
// bare self-reference as "none yet") and returns its elements in order.
func (wk *Worker) collectSuspensions(cur Word) []Word {
	if cur.Tag() != TagLST {
		return nil
	}
	var out []Word
	for cur.Tag() == TagLST {
		addr := int(cur.Payload())
		out = append(out, wk.Heap.get(addr))
		cur = wk.Heap.get(addr + 1)
	}
	return out
}

// Defrost detaches and returns v's suspension list, resetting v to a bare
// self-reference.
func (wk *Worker) Defrost(v Word) (Word, error) {
	if v.Tag() != TagCVA {
		return 0, newTypeErr("constrained_variable", "defrost/2: first argument must be a CVA")
	}
	addr := int(v.Payload())
	list := wk.Heap.get(addr)
	wk.Heap.set(addr, v)
	return list, nil
}

// --- atom/number text codec ---------------------------------------------

// AtomCodes unifies an atomic value with its canonical printed form's
// character-code list. When codes is non-nil and a is the zero Word,
// this computes the reverse direction (codes → atom).
func (wk *Worker) AtomCodes(e *Engine, a Word, codes []int64) (Word, []int64, error) {
	if codes == nil {
		if a.IsVar() {
			return 0, nil, newInstantiationErr("atom_codes/2: both arguments unbound")
		}
		s, err := wk.printAtomic(e, a)
		if err != nil {
			return 0, nil, err
		}
		return a, stringToCodes(s), nil
	}
	s, err := codesToString(codes)
	if err != nil {
		return 0, nil, err
	}
	idx := e.Atoms.Intern(s)
	return Atom(idx), codes, nil
}

// NumberCodes unifies a number with the code list of its canonical
// printed form; the codes-to-number direction requires valid numeric
// syntax or fails with a type error.
func (wk *Worker) NumberCodes(e *Engine, n Word, codes []int64) (Word, []int64, error) {
	if codes == nil {
		if n.IsVar() {
			return 0, nil, newInstantiationErr("number_codes/2: both arguments unbound")
		}
		s, err := wk.printNumber(n)
		if err != nil {
			return 0, nil, err
		}
		return n, stringToCodes(s), nil
	}
	s, err := codesToString(codes)
	if err != nil {
		return 0, nil, err
	}
	w, err := wk.parseNumber(s)
	if err != nil {
		return 0, nil, err
	}
	return w, codes, nil
}

// Name implements name/2: like atom_codes but accepts either an atom or
// a number on the forward direction and, on the reverse direction,
// prefers producing a number when the codes parse as one.
func (wk *Worker) Name(e *Engine, t Word, codes []int64) (Word, []int64, error) {
	if codes == nil {
		switch t.Tag() {
		case TagATM:
			return wk.AtomCodes(e, t, nil)
		case TagNUM, TagSTR:
			return wk.NumberCodes(e, t, nil)
		default:
			return 0, nil, newTypeErr("atomic", "name/2: first argument must be atomic")
		}
	}
	s, err := codesToString(codes)
	if err != nil {
		return 0, nil, err
	}
	if w, perr := wk.parseNumber(s); perr == nil {
		return w, codes, nil
	}
	return Atom(e.Atoms.Intern(s)), codes, nil
}

func stringToCodes(s string) []int64 {
	runes := []rune(s)
	out := make([]int64, len(runes))
	for i, r := range runes {
		out[i] = int64(r)
	}
	return out
}

// codesToString converts a character-code list back to a string,
// enforcing the §4.6 error rules: a negative or otherwise invalid rune
// code is a representation error; this function assumes the list itself
// is already known proper (an improper tail is a type error, checked by
// the caller that walks the Prolog list before calling in).
func codesToString(codes []int64) (string, error) {
	var b strings.Builder
	for _, c := range codes {
		if c < 0 || c > utf8.MaxRune || !utf8.ValidRune(rune(c)) {
			return "", newRepresentationErr("character-code", fmt.Sprintf("invalid character code %d", c))
		}
		b.WriteRune(rune(c))
	}
	return b.String(), nil
}

func (wk *Worker) printAtomic(e *Engine, a Word) (string, error) {
	switch a.Tag() {
	case TagATM:
		return e.Atoms.Name(AtomIndex(a)), nil
	case TagNUM:
		return strconv.FormatInt(NumValue(a), 10), nil
	default:
		return "", newTypeErr("atomic", "atom_codes/2: first argument must be atomic")
	}
}

func (wk *Worker) printNumber(n Word) (string, error) {
	switch n.Tag() {
	case TagNUM:
		return strconv.FormatInt(NumValue(n), 10), nil
	case TagSTR:
		addr := int(n.Payload())
		kind, ok := BlobKindOf(wk.Heap.get(addr))
		if !ok {
			return "", newTypeErr("number", "number_codes/2: first argument must be a number")
		}
		switch kind {
		case BlobFloat:
			body := []Word{wk.Heap.get(addr + 1)}
			blob := DecodeBlob(BlobFloat, body)
			return formatFloat(blob.Float), nil
		case BlobBignum:
			lenWord := uint64(wk.Heap.get(addr + 1))
			count := int(lenWord >> 1)
			body := make([]Word, 0, count+1)
			for i := 0; i <= count; i++ {
				body = append(body, wk.Heap.get(addr+1+i))
			}
			blob := DecodeBlob(BlobBignum, body)
			return blob.Big.String(), nil
		default:
			return "", newTypeErr("number", "number_codes/2: first argument must be a number")
		}
	default:
		return "", newTypeErr("number", "number_codes/2: first argument must be a number")
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "0.Inf"
	case math.IsInf(f, -1):
		return "-0.Inf"
	case math.IsNaN(f):
		return "0.Nan"
	default:
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
}

// parseNumber implements the numeric grammar at base 10 — a caller
// wanting a different integer base uses ParseNumberBase.
func (wk *Worker) parseNumber(s string) (Word, error) {
	return wk.ParseNumberBase(s, 10)
}

// ParseNumberBase parses s as an integer in the given base (2..36,
// required to be 10 for any float syntax) or, at base 10, as a float per
// this grammar:
//
//	[-]{digit}+ '.' {digit}+ (('e'|'E') [+|-] {digit}+)?
//
// A bare integer syntax (no '.') is accepted only for integer contexts; a
// "1e0"-style token without a fractional part is rejected even though it
// would be valid float syntax elsewhere. See DESIGN.md for why this
// stricter grammar was chosen over also accepting a bare exponent.
func (wk *Worker) ParseNumberBase(s string, base int) (Word, error) {
	if base < 2 || base > 36 {
		return 0, newDomainErrIn("radix", fmt.Sprintf("base %d out of range 2..36", base))
	}
	trimmed := s
	neg := false
	if strings.HasPrefix(trimmed, "-") {
		neg = true
		trimmed = trimmed[1:]
	} else if strings.HasPrefix(trimmed, "+") {
		trimmed = trimmed[1:]
	}

	switch trimmed {
	case "0.Inf":
		if base != 10 {
			return 0, newDomainErrIn("not_less_than_zero", "float requires base 10")
		}
		f := math.Inf(1)
		if neg {
			f = math.Inf(-1)
		}
		return wk.pushFloatBlob(f), nil
	case "0.Nan":
		if base != 10 {
			return 0, newDomainErrIn("not_less_than_zero", "float requires base 10")
		}
		return wk.pushFloatBlob(math.NaN()), nil
	}

	if strings.Contains(trimmed, ".") {
		if base != 10 {
			return 0, newDomainErrIn("not_less_than_zero", "float syntax requires base 10")
		}
		if !isValidFloatGrammar(trimmed) {
			return 0, newTypeErr("number", fmt.Sprintf("invalid float syntax %q", s))
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, newTypeErr("number", fmt.Sprintf("invalid float syntax %q", s))
		}
		if neg {
			f = -f
		}
		return wk.pushFloatBlob(f), nil
	}

	if trimmed == "" {
		return 0, newTypeErr("number", fmt.Sprintf("invalid numeric syntax %q", s))
	}
	for _, c := range trimmed {
		if !isValidDigit(c, base) {
			return 0, newTypeErr("number", fmt.Sprintf("invalid numeric syntax %q", s))
		}
	}
	n, err := strconv.ParseInt(trimmed, base, 64)
	if err == nil {
		if neg {
			n = -n
		}
		if n >= MinSmallInt && n <= MaxSmallInt {
			return Num(n), nil
		}
	}
	bi, ok := new(big.Int).SetString(trimmed, base)
	if !ok {
		return 0, newTypeErr("number", fmt.Sprintf("invalid numeric syntax %q", s))
	}
	if neg {
		bi.Neg(bi)
	}
	if w, blob := NormalizeInt(bi); blob == nil {
		return w, nil
	} else {
		return wk.pushBignumBlob(*blob), nil
	}
}

// pushBignumBlob writes a bignum blob cell onto the heap and returns its
// STR-tagged address word.
func (wk *Worker) pushBignumBlob(b Blob) Word {
	addr := wk.HeapTop()
	for _, w := range EncodeBlob(b) {
		wk.PushHeap(w)
	}
	return MkWord(TagSTR, uint64(addr))
}

// isValidDigit reports whether c is a legal digit in the given base
// (0-9, then a-z/A-Z for bases above 10).
func isValidDigit(c rune, base int) bool {
	var v int
	switch {
	case c >= '0' && c <= '9':
		v = int(c - '0')
	case c >= 'a' && c <= 'z':
		v = int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		v = int(c-'A') + 10
	default:
		return false
	}
	return v < base
}

// isValidFloatGrammar checks the exact EBNF (after sign removal):
// {digit}+ '.' {digit}+ (('e'|'E') [+|-] {digit}+)? — in particular,
// rejecting a bare-integer exponent with no fractional part.
func isValidFloatGrammar(s string) bool {
	dot := strings.IndexByte(s, '.')
	if dot < 0 || dot == 0 {
		return false
	}
	intPart := s[:dot]
	rest := s[dot+1:]
	for _, c := range intPart {
		if c < '0' || c > '9' {
			return false
		}
	}
	expIdx := strings.IndexAny(rest, "eE")
	fracPart := rest
	if expIdx >= 0 {
		fracPart = rest[:expIdx]
		expPart := rest[expIdx+1:]
		if len(expPart) > 0 && (expPart[0] == '+' || expPart[0] == '-') {
			expPart = expPart[1:]
		}
		if expPart == "" {
			return false
		}
		for _, c := range expPart {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	if fracPart == "" {
		return false
	}
	for _, c := range fracPart {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// pushFloatBlob writes a float blob cell onto the heap and returns its
// STR-tagged address word; floats are blobs bracketed by matching
// functor headers.
func (wk *Worker) pushFloatBlob(f float64) Word {
	addr := wk.HeapTop()
	for _, w := range EncodeBlob(Blob{Kind: BlobFloat, Float: f}) {
		wk.PushHeap(w)
	}
	return MkWord(TagSTR, uint64(addr))
}
