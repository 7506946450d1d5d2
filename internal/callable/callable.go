// Package callable defines the two heap-allocated value kinds that
// carry behavior: functions (native Go closures or scripted closures
// over an environment frame) and userdata (opaque host values with an
// optional metatable). Both are grounded on the teacher's
// vmregister/value.go object family — FunctionObj/ClosureObj/
// NativeFnObj collapse here into one Function type distinguished by
// Native being set, and UpvalueDesc/UpvalueObj's open/closed idea
// becomes "captured frame", per the simplification recorded in
// internal/env's Binding comment.
package callable

import (
	"lumen/internal/ast"
	"lumen/internal/env"
	"lumen/internal/gc"
	"lumen/internal/value"
)

// Native is a host-exposed builtin, matching spec.md §6's
// `(args: []Value) → Result<[]Value, Error>`.
type Native func(args []value.Value) ([]value.Value, error)

// Function is either a native builtin or a scripted closure capturing
// its defining frame (upvalues, spec.md §3).
type Function struct {
	hdr    gc.Header
	Name   string
	Native Native
	Proto  *ast.FunctionLiteral
	Env    *env.Frame // defining frame; nil for native functions
}

func NewNative(name string, fn Native) *Function {
	return &Function{Name: name, Native: fn}
}

func NewClosure(proto *ast.FunctionLiteral, defEnv *env.Frame, heap *gc.Heap) *Function {
	f := &Function{Name: proto.Name, Proto: proto, Env: defEnv}
	heap.Register(f)
	return f
}

func (f *Function) GCHeader() *gc.Header { return &f.hdr }

func (f *Function) References(visit func(gc.Collectable)) {
	if f.Env != nil {
		visit(f.Env)
	}
}

func (f *Function) Finalize() {} // functions are not finalizable in Lua

func (f *Function) IsNative() bool { return f.Native != nil }

func (f *Function) Value() value.Value { return value.FromRef(value.KindFunction, f) }

// Userdata is an opaque host value (spec.md §3): Data is whatever the
// host embedding chose to store, Meta optionally customizes indexing/
// arithmetic/gc via the same metatable dispatch tables as real values.
type Userdata struct {
	hdr  gc.Header
	Data interface{}
	meta *value.Table

	finalize func(*Userdata)
}

func NewUserdata(data interface{}, heap *gc.Heap) *Userdata {
	u := &Userdata{Data: data}
	heap.Register(u)
	return u
}

func (u *Userdata) GCHeader() *gc.Header { return &u.hdr }

func (u *Userdata) References(visit func(gc.Collectable)) {
	if u.meta != nil {
		visit(u.meta)
	}
}

func (u *Userdata) Finalize() {
	if u.finalize != nil {
		u.finalize(u)
	}
}

func (u *Userdata) Metatable() *value.Table     { return u.meta }
func (u *Userdata) SetMetatable(m *value.Table) { u.meta = m }

func (u *Userdata) SetFinalizeFunc(f func(*Userdata)) {
	u.finalize = f
	u.hdr.SetFinalizer(f != nil)
}

func (u *Userdata) Value() value.Value { return value.FromRef(value.KindUserdata, u) }

var (
	_ gc.Collectable = (*Function)(nil)
	_ gc.Collectable = (*Userdata)(nil)
)
