package value

import (
	"math"
	"strings"

	"golang.org/x/exp/slices"

	"lumen/internal/gc"
)

// WeakMode is a table's weak mode, spec.md §3: none, weak-values "v",
// weak-keys "k", all-weak "kv".
type WeakMode uint8

const (
	WeakNone WeakMode = iota
	WeakValues
	WeakKeys
	WeakBoth
)

func ParseWeakMode(s string) WeakMode {
	hasK, hasV := false, false
	for _, r := range s {
		switch r {
		case 'k':
			hasK = true
		case 'v':
			hasV = true
		}
	}
	switch {
	case hasK && hasV:
		return WeakBoth
	case hasK:
		return WeakKeys
	case hasV:
		return WeakValues
	default:
		return WeakNone
	}
}

// Table is a mapping from any non-nil, non-NaN key to a value (spec.md
// §3). Insertion order is tracked alongside the hash map so `next`/
// iteration is deterministic and stable against concurrent mutation of
// unrelated keys, matching the ordered-map idiom the teacher's
// MapObj/ArrayObj pair approximates with two separate types.
type Table struct {
	hdr  gc.Header
	hash map[Value]Value
	keys []Value // insertion order; tombstoned entries removed on delete
	meta *Table
	weak WeakMode

	finalize func(*Table)
}

func NewTable() *Table {
	return &Table{hash: make(map[Value]Value)}
}

func (t *Table) GCHeader() *gc.Header { return &t.hdr }

func (t *Table) Value() Value { return FromRef(KindTable, t) }

// References enumerates every heap value reachable from this table:
// its metatable and, for keys/values that are themselves heap-backed,
// those values. Weak-table clearing is handled separately by
// ClearUnmarked so the GC can skip weak edges during an ordinary mark.
func (t *Table) References(visit func(gc.Collectable)) {
	if t.meta != nil {
		visit(t.meta)
	}
	strongKeys := t.weak != WeakKeys && t.weak != WeakBoth
	strongValues := t.weak != WeakValues && t.weak != WeakBoth
	for k, v := range t.hash {
		if strongKeys {
			if r := k.Ref(); r != nil {
				visit(r)
			}
		}
		if strongValues {
			if r := v.Ref(); r != nil {
				visit(r)
			}
		}
	}
}

// Finalize runs the table's __gc metamethod. The evaluator installs
// the actual call via SetFinalizeFunc; Table itself has no knowledge
// of the call machinery.
func (t *Table) Finalize() {
	if t.finalize != nil {
		t.finalize(t)
	}
}

var _ gc.Collectable = (*Table)(nil)
var _ gc.WeakTable = (*Table)(nil)

func (t *Table) WeakMode() (weakKeys, weakValues bool) {
	return t.weak == WeakKeys || t.weak == WeakBoth, t.weak == WeakValues || t.weak == WeakBoth
}

// ClearUnmarked drops entries whose weak side is unmarked, and pulls
// surviving values into the live set via markValue, implementing the
// ephemeron-convergence step of spec.md §4.6/§9.
func (t *Table) ClearUnmarked(isMarked func(gc.Collectable) bool, markValue func(gc.Collectable)) {
	wk, wv := t.WeakMode()
	if !wk && !wv {
		return
	}
	for k, v := range t.hash {
		keyLive := !wk || k.Ref() == nil || isMarked(k.Ref())
		if !keyLive {
			t.deleteKey(k)
			continue
		}
		if wk {
			if r := v.Ref(); r != nil {
				markValue(r)
			}
		}
		valueLive := !wv || v.Ref() == nil || isMarked(v.Ref())
		if !valueLive {
			t.deleteKey(k)
		}
	}
}

func (t *Table) deleteKey(k Value) {
	delete(t.hash, k)
	for i, kk := range t.keys {
		if kk == k {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
}

func (t *Table) Metatable() *Table     { return t.meta }
func (t *Table) SetMetatable(m *Table) { t.meta = m }

func (t *Table) SetWeakMode(w WeakMode) { t.weak = w }
func (t *Table) GetWeakMode() WeakMode  { return t.weak }

// SetFinalizeFunc is set by the interpreter when it registers a __gc
// metamethod, so the GC can invoke it without this package depending
// on the call machinery.
func (t *Table) SetFinalizeFunc(f func(*Table)) {
	t.finalize = f
	t.hdr.SetFinalizer(f != nil)
}

// normalizeKey unifies integer-valued floats with their integer
// counterpart so t[1] and t[1.0] address the same slot (spec.md §3).
func normalizeKey(k Value) Value {
	if k.kind == KindFloat {
		f := k.AsFloat()
		if i := int64(f); float64(i) == f && !math.IsInf(f, 0) {
			return Int(i)
		}
	}
	return k
}

// Get performs a raw lookup (no metamethods); absent keys return Nil.
func (t *Table) Get(k Value) Value {
	v, ok := t.hash[normalizeKey(k)]
	if !ok {
		return Nil
	}
	return v
}

// Set performs a raw store. A nil key or a NaN key is an error per
// spec.md §3 ("a mapping from key to value where the key is any
// non-nil, non-NaN value"); storing Nil deletes the slot.
func (t *Table) Set(k, v Value) error {
	if k.IsNil() {
		return errInvalidKey("table index is nil")
	}
	if k.kind == KindFloat && math.IsNaN(k.AsFloat()) {
		return errInvalidKey("table index is NaN")
	}
	k = normalizeKey(k)
	if v.IsNil() {
		if _, ok := t.hash[k]; ok {
			t.deleteKey(k)
		}
		return nil
	}
	if _, existed := t.hash[k]; !existed {
		t.keys = append(t.keys, k)
	}
	t.hash[k] = v
	return nil
}

// Len returns a border: an index n such that t[n] ~= nil and
// t[n+1] == nil (spec.md §3 invariant (d)).
func (t *Table) Len() int64 {
	if _, ok := t.hash[Int(1)]; !ok {
		return 0
	}
	i, j := int64(1), int64(2)
	for {
		if _, ok := t.hash[Int(j)]; ok {
			i = j
			if j > (1 << 62) {
				break // pathological: stop doubling, fall back to linear-ish bound
			}
			j *= 2
		} else {
			break
		}
	}
	for j-i > 1 {
		m := i + (j-i)/2
		if _, ok := t.hash[Int(m)]; ok {
			i = m
		} else {
			j = m
		}
	}
	return i
}

// Next supports stateless iteration (`next`/`pairs`): given the
// previously returned key (Nil to start), returns the following
// key/value pair in insertion order, or ok=false when exhausted.
func (t *Table) Next(prev Value) (k, v Value, ok bool) {
	if prev.IsNil() {
		if len(t.keys) == 0 {
			return Nil, Nil, false
		}
		kk := t.keys[0]
		return kk, t.hash[kk], true
	}
	prev = normalizeKey(prev)
	for i, kk := range t.keys {
		if kk == prev {
			if i+1 < len(t.keys) {
				nk := t.keys[i+1]
				return nk, t.hash[nk], true
			}
			return Nil, Nil, false
		}
	}
	return Nil, Nil, false
}

// Keys returns a snapshot of the table's keys in insertion order.
func (t *Table) Keys() []Value {
	out := make([]Value, len(t.keys))
	copy(out, t.keys)
	return out
}

func (t *Table) Count() int { return len(t.keys) }

// SortedKeys returns the table's keys in a deterministic order (by
// kind, then numerically or lexicographically within a kind),
// independent of insertion order — unlike the insertion-ordered Keys()
// above. Nothing else in the repository calls it at present.
func (t *Table) SortedKeys() []Value {
	out := t.Keys()
	slices.SortFunc(out, func(a, b Value) int {
		if a.kind != b.kind {
			return int(a.kind) - int(b.kind)
		}
		switch a.kind {
		case KindInt, KindFloat:
			an, bn := a.AsNumber(), b.AsNumber()
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			default:
				return 0
			}
		case KindString:
			return strings.Compare(a.str, b.str)
		default:
			return 0
		}
	})
	return out
}

type keyError string

func (e keyError) Error() string { return string(e) }

func errInvalidKey(msg string) error { return keyError(msg) }
