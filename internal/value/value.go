// Package value implements the tagged runtime value of spec.md §3: a
// uniform, comparable handle over nil/bool/int/float/string plus
// heap-allocated tables, functions, userdata and coroutines. It is
// grounded on the accessor style of the teacher's vmregister/value.go
// (Is*/As*/Box* functions) but redesigned as a tagged struct rather
// than NaN-boxed bit patterns — metatables, generational promotion and
// weak-table clearing all need real object identity and a references()
// walk that bit-packed pointers can't give us safely alongside Go's
// own garbage collector (see DESIGN.md).
package value

import (
	"math"

	"lumen/internal/gc"
)

// Kind tags the variant a Value holds.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTable
	KindFunction
	KindUserdata
	KindCoroutine
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindInt, KindFloat:
		return "number"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	case KindUserdata:
		return "userdata"
	case KindCoroutine:
		return "thread"
	default:
		return "unknown"
	}
}

// Value is handed to script and host code behind a uniform, comparable
// handle (spec.md §3: "Values are handed to user code behind a uniform
// handle"). nil/bool/int/float are unboxed in num/str; table, function,
// userdata and coroutine carry a heap reference.
type Value struct {
	kind Kind
	num  uint64
	str  string
	ref  gc.Collectable
}

// Nil is the zero Value.
var Nil = Value{}

func Bool(b bool) Value {
	var n uint64
	if b {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

func Int(i int64) Value { return Value{kind: KindInt, num: uint64(i)} }

func Float(f float64) Value { return Value{kind: KindFloat, num: math.Float64bits(f)} }

func Str(s string) Value { return Value{kind: KindString, str: s} }

// FromRef boxes a heap-allocated value behind its Kind. Callers outside
// this package (table, function, coroutine constructors) use this
// rather than poking at unexported fields.
func FromRef(kind Kind, ref gc.Collectable) Value { return Value{kind: kind, ref: ref} }

func (v Value) Kind() Kind  { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }
func (v Value) IsBool() bool { return v.kind == KindBool }
func (v Value) IsInt() bool { return v.kind == KindInt }
func (v Value) IsFloat() bool { return v.kind == KindFloat }
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }
func (v Value) IsString() bool { return v.kind == KindString }
func (v Value) IsTable() bool { return v.kind == KindTable }
func (v Value) IsFunction() bool { return v.kind == KindFunction }
func (v Value) IsUserdata() bool { return v.kind == KindUserdata }
func (v Value) IsCoroutine() bool { return v.kind == KindCoroutine }

func (v Value) AsBool() bool       { return v.num != 0 }
func (v Value) AsInt() int64       { return int64(v.num) }
func (v Value) AsFloat() float64   { return math.Float64frombits(v.num) }
func (v Value) AsString() string   { return v.str }
func (v Value) Ref() gc.Collectable { return v.ref }

// AsNumber returns the value as a float64 regardless of int/float tag;
// it does not check the tag, so for a non-numeric value the result is
// meaningless — callers must check IsNumber first.
func (v Value) AsNumber() float64 {
	if v.kind == KindInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

// Truthy implements spec.md §4.3: nil and false are falsy, everything
// else (including 0 and "") is truthy.
func (v Value) Truthy() bool {
	if v.kind == KindNil {
		return false
	}
	if v.kind == KindBool {
		return v.AsBool()
	}
	return true
}

// RawEqual implements primitive equality (spec.md §3 invariants (a)-(c)
// and §4.1 rule 7): numeric cross-type equality, NaN never equal to
// itself, byte-identical strings, reference identity for tables,
// functions, userdata and coroutines. Metamethod-based __eq for
// same-tagged tables/userdata is layered on top by the meta package.
func RawEqual(a, b Value) bool {
	if a.kind == KindInt && b.kind == KindInt {
		return a.AsInt() == b.AsInt() // exact int64 compare, no float rounding above 2^53
	}
	if a.IsNumber() && b.IsNumber() {
		af, bf := a.AsNumber(), b.AsNumber()
		return af == bf // NaN != NaN falls out of IEEE-754 == here
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.AsBool() == b.AsBool()
	case KindString:
		return a.str == b.str
	case KindTable, KindFunction, KindUserdata, KindCoroutine:
		return a.ref == b.ref
	default:
		return false
	}
}

// TypeName returns the Lua-visible type name (type()).
func (v Value) TypeName() string { return v.kind.String() }
