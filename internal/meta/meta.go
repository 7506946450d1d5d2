// Package meta implements the value model's operator and indexing
// semantics of spec.md §4.1: primitive arithmetic/comparison/length/
// concatenation first, metatable-driven fallback second. It depends
// only on value, callable and errors, taking a Caller callback for the few
// operations (metamethods, __index functions, __call) that must
// invoke a Function — this keeps the dispatch tables reusable from
// both the evaluator and the coroutine scheduler without a dependency
// on either.
package meta

import (
	"fmt"
	"math"
	"strconv"

	"lumen/internal/callable"
	"lumen/internal/errors"
	"lumen/internal/value"
)

// Caller invokes a Value as a function with args, returning its
// result list or an error. The evaluator supplies this.
type Caller func(fn value.Value, args []value.Value) ([]value.Value, error)

// Metatable returns v's attached metatable, if any.
func Metatable(v value.Value) *value.Table {
	switch v.Kind() {
	case value.KindTable:
		return v.Ref().(*value.Table).Metatable()
	case value.KindUserdata:
		return v.Ref().(*callable.Userdata).Metatable()
	default:
		return nil
	}
}

// Raw looks up event in v's own metatable (not the fallback chain).
func Raw(v value.Value, event string) value.Value {
	mt := Metatable(v)
	if mt == nil {
		return value.Nil
	}
	return mt.Get(value.Str(event))
}

// Either looks up event on a's metatable, then b's, per spec.md §4.1
// rule: "the dispatcher searches the metatable of the left, then the
// right operand".
func Either(a, b value.Value, event string) value.Value {
	if h := Raw(a, event); !h.IsNil() {
		return h
	}
	return Raw(b, event)
}

// opEvent is the fixed operator→metamethod table of spec.md §4.1.
var opEvent = map[string]string{
	"+": "__add", "-": "__sub", "*": "__mul", "/": "__div", "%": "__mod",
	"^": "__pow", "//": "__idiv", "&": "__band", "|": "__bor", "~": "__bxor",
	"<<": "__shl", ">>": "__shr", "..": "__concat",
	"==": "__eq", "<": "__lt", "<=": "__le",
}

const unmEvent = "__unm"
const bnotEvent = "__bnot"
const lenEvent = "__len"
const callEvent = "__call"
const closeEvent = "__close"
const gcEvent = "__gc"
const indexEvent = "__index"
const newindexEvent = "__newindex"

func HasClose(v value.Value) bool { return !Raw(v, closeEvent).IsNil() }

// BinaryOp implements spec.md §4.1 rules 1-7 for every binary operator
// except `and`/`or` (handled by the evaluator directly; no metamethod
// involvement, spec.md §4.3).
func BinaryOp(op string, a, b value.Value, call Caller) (value.Value, error) {
	switch op {
	case "+", "-", "*", "//", "%":
		if a.IsNumber() && b.IsNumber() {
			return arith(op, a, b)
		}
	case "/", "^":
		if a.IsNumber() && b.IsNumber() {
			return value.Float(floatArith(op, a.AsNumber(), b.AsNumber())), nil
		}
	case "&", "|", "~", "<<", ">>":
		ai, aok := toIntExact(a)
		bi, bok := toIntExact(b)
		if aok && bok {
			return value.Int(bitwise(op, ai, bi)), nil
		}
	case "..":
		if concatable(a) && concatable(b) {
			return value.Str(concatStr(a) + concatStr(b)), nil
		}
	case "==":
		return value.Bool(Equal(a, b, call)), nil
	case "<", "<=":
		if ok, v, err := compare(op, a, b); ok {
			return v, err
		}
	}
	event, ok := opEvent[op]
	if !ok {
		return value.Nil, fmt.Errorf("unknown operator %q", op)
	}
	h := Either(a, b, event)
	if h.IsNil() {
		return value.Nil, noMetamethod(op, a, b)
	}
	results, err := call(h, []value.Value{a, b})
	if err != nil {
		return value.Nil, err
	}
	if op == "<" || op == "<=" || op == "==" {
		return value.Bool(first(results).Truthy()), nil
	}
	return first(results), nil
}

func noMetamethod(op string, a, b value.Value) error {
	bad := a
	if a.IsNumber() || a.IsString() {
		bad = b
	}
	return fmt.Errorf("attempt to perform arithmetic on a %s value (operator %q)", bad.TypeName(), op)
}

func first(vs []value.Value) value.Value {
	if len(vs) == 0 {
		return value.Nil
	}
	return vs[0]
}

func arith(op string, a, b value.Value) (value.Value, error) {
	if a.IsInt() && b.IsInt() {
		x, y := a.AsInt(), b.AsInt()
		switch op {
		case "+":
			return value.Int(x + y), nil // two's-complement wrap, per spec.md §4.1
		case "-":
			return value.Int(x - y), nil
		case "*":
			return value.Int(x * y), nil
		case "//":
			if y == 0 {
				return value.Nil, fmt.Errorf("attempt to perform 'n//0'")
			}
			return value.Int(floorDivInt(x, y)), nil
		case "%":
			if y == 0 {
				return value.Nil, fmt.Errorf("attempt to perform 'n%%0'")
			}
			return value.Int(x - floorDivInt(x, y)*y), nil
		}
	}
	return value.Float(floatArith(op, a.AsNumber(), b.AsNumber())), nil
}

func floorDivInt(x, y int64) int64 {
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return q
}

func floatArith(op string, x, y float64) float64 {
	switch op {
	case "+":
		return x + y
	case "-":
		return x - y
	case "*":
		return x * y
	case "/":
		return x / y
	case "^":
		return math.Pow(x, y)
	case "//":
		return math.Floor(x / y)
	case "%":
		r := math.Mod(x, y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return r
	}
	return math.NaN()
}

func toIntExact(v value.Value) (int64, bool) {
	if v.IsInt() {
		return v.AsInt(), true
	}
	if v.IsFloat() {
		f := v.AsFloat()
		if i := int64(f); float64(i) == f {
			return i, true
		}
	}
	return 0, false
}

func bitwise(op string, a, b int64) int64 {
	switch op {
	case "&":
		return a & b
	case "|":
		return a | b
	case "~":
		return a ^ b
	case "<<":
		return shiftLeft(a, b)
	case ">>":
		return shiftLeft(a, -b)
	}
	return 0
}

// shiftLeft implements Lua's logical shift semantics: shifting by >=64
// or <=-64 yields 0, negative counts shift the other way.
func shiftLeft(a, n int64) int64 {
	if n <= -64 || n >= 64 {
		return 0
	}
	if n >= 0 {
		return int64(uint64(a) << uint(n))
	}
	return int64(uint64(a) >> uint(-n))
}

func concatable(v value.Value) bool { return v.IsString() || v.IsNumber() }

func concatStr(v value.Value) string {
	if v.IsString() {
		return v.AsString()
	}
	return NumberToString(v)
}

// NumberToString formats a number the way tostring()/print() do:
// integers plain, floats with Lua's shortest round-tripping "%.14g".
func NumberToString(v value.Value) string {
	if v.IsInt() {
		return strconv.FormatInt(v.AsInt(), 10)
	}
	f := v.AsFloat()
	if math.IsNaN(f) {
		return "nan"
	}
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', 14, 64)
}

func compare(op string, a, b value.Value) (handled bool, result value.Value, err error) {
	if a.IsInt() && b.IsInt() {
		x, y := a.AsInt(), b.AsInt()
		if op == "<" {
			return true, value.Bool(x < y), nil
		}
		return true, value.Bool(x <= y), nil
	}
	if a.IsNumber() && b.IsNumber() {
		x, y := a.AsNumber(), b.AsNumber()
		if op == "<" {
			return true, value.Bool(x < y), nil
		}
		return true, value.Bool(x <= y), nil
	}
	if a.IsString() && b.IsString() {
		x, y := a.AsString(), b.AsString()
		if op == "<" {
			return true, value.Bool(x < y), nil
		}
		return true, value.Bool(x <= y), nil
	}
	return false, value.Nil, nil
}

// Equal implements spec.md §4.1 rule 7: primitive-equal values compare
// equal without a metamethod; two distinct tables/userdata only
// compare equal via __eq when they share a tag and a metamethod.
func Equal(a, b value.Value, call Caller) bool {
	if value.RawEqual(a, b) {
		return true
	}
	if a.Kind() != b.Kind() {
		return false
	}
	if a.Kind() != value.KindTable && a.Kind() != value.KindUserdata {
		return false
	}
	h := Either(a, b, "__eq")
	if h.IsNil() {
		return false
	}
	results, err := call(h, []value.Value{a, b})
	if err != nil {
		return false
	}
	return first(results).Truthy()
}

// UnaryOp implements unary `-`, `not`, `#`, `~`.
func UnaryOp(op string, v value.Value, call Caller) (value.Value, error) {
	switch op {
	case "not":
		return value.Bool(!v.Truthy()), nil
	case "-":
		if v.IsInt() {
			return value.Int(-v.AsInt()), nil
		}
		if v.IsFloat() {
			return value.Float(-v.AsFloat()), nil
		}
		return metaUnary(unmEvent, v, call, "perform arithmetic on")
	case "~":
		if i, ok := toIntExact(v); ok {
			return value.Int(^i), nil
		}
		return metaUnary(bnotEvent, v, call, "perform bitwise operation on")
	case "#":
		return Length(v, call)
	}
	return value.Nil, fmt.Errorf("unknown unary operator %q", op)
}

func metaUnary(event string, v value.Value, call Caller, verb string) (value.Value, error) {
	h := Raw(v, event)
	if h.IsNil() {
		return value.Nil, fmt.Errorf("attempt to %s a %s value", verb, v.TypeName())
	}
	results, err := call(h, []value.Value{v, v})
	if err != nil {
		return value.Nil, err
	}
	return first(results), nil
}

// Length implements spec.md §4.1 rule 5: strings return byte length,
// tables return a border unless __len is set, which always wins
// (spec.md §3 invariant (e)).
func Length(v value.Value, call Caller) (value.Value, error) {
	if v.IsString() {
		return value.Int(int64(len(v.AsString()))), nil
	}
	if v.IsTable() {
		t := v.Ref().(*value.Table)
		if h := Raw(v, lenEvent); !h.IsNil() {
			results, err := call(h, []value.Value{v})
			if err != nil {
				return value.Nil, err
			}
			return first(results), nil
		}
		return value.Int(t.Len()), nil
	}
	if h := Raw(v, lenEvent); !h.IsNil() {
		results, err := call(h, []value.Value{v})
		if err != nil {
			return value.Nil, err
		}
		return first(results), nil
	}
	return value.Nil, fmt.Errorf("attempt to get length of a %s value", v.TypeName())
}

// maxIndexChainDepth bounds __index/__newindex table-chain recursion
// (spec.md §4.1: "bounded chain length, else error 'loop in gettable'").
const maxIndexChainDepth = 2000

// Index implements `t[k]`: raw lookup, then the __index chain.
func Index(t value.Value, k value.Value, call Caller) (value.Value, error) {
	cur := t
	for depth := 0; depth < maxIndexChainDepth; depth++ {
		if cur.IsTable() {
			raw := cur.Ref().(*value.Table).Get(k)
			if !raw.IsNil() {
				return raw, nil
			}
			h := Raw(cur, indexEvent)
			if h.IsNil() {
				return value.Nil, nil
			}
			if h.IsFunction() {
				results, err := call(h, []value.Value{cur, k})
				if err != nil {
					return value.Nil, err
				}
				return first(results), nil
			}
			cur = h
			continue
		}
		h := Raw(cur, indexEvent)
		if h.IsNil() {
			return value.Nil, errors.New(errors.IndexError, fmt.Sprintf("attempt to index a %s value", cur.TypeName()))
		}
		if h.IsFunction() {
			results, err := call(h, []value.Value{cur, k})
			if err != nil {
				return value.Nil, err
			}
			return first(results), nil
		}
		cur = h
	}
	return value.Nil, fmt.Errorf("'__index' chain too long; possible loop in gettable")
}

// NewIndex implements `t[k] = v`: raw lookup decides presence, then
// the __newindex chain.
func NewIndex(t value.Value, k, v value.Value, call Caller) error {
	cur := t
	for depth := 0; depth < maxIndexChainDepth; depth++ {
		if cur.IsTable() {
			tbl := cur.Ref().(*value.Table)
			if !tbl.Get(k).IsNil() {
				return tbl.Set(k, v)
			}
			h := Raw(cur, newindexEvent)
			if h.IsNil() {
				return tbl.Set(k, v)
			}
			if h.IsFunction() {
				_, err := call(h, []value.Value{cur, k, v})
				return err
			}
			cur = h
			continue
		}
		h := Raw(cur, newindexEvent)
		if h.IsNil() {
			return errors.New(errors.IndexError, fmt.Sprintf("attempt to index a %s value", cur.TypeName()))
		}
		if h.IsFunction() {
			_, err := call(h, []value.Value{cur, k, v})
			return err
		}
		cur = h
	}
	return fmt.Errorf("'__newindex' chain too long; possible loop in settable")
}

// CallTarget resolves __call for a non-function callee, returning the
// handler function and true, or value.Nil/false if callee has none.
func CallTarget(callee value.Value) (value.Value, bool) {
	h := Raw(callee, callEvent)
	return h, !h.IsNil()
}

// CloseHandler returns the __close metamethod for v, if any.
func CloseHandler(v value.Value) (value.Value, bool) {
	h := Raw(v, closeEvent)
	return h, !h.IsNil()
}

// GCHandler returns the __gc metamethod for v, if any.
func GCHandler(v value.Value) (value.Value, bool) {
	h := Raw(v, gcEvent)
	return h, !h.IsNil()
}
