// Package env implements the lexically scoped variable storage of
// spec.md §3/§4.2: an ordered chain of frames, each a name→binding map
// with a parent pointer, plus to-be-closed bookkeeping in declaration
// order for reverse-order teardown. It is grounded on the teacher
// yaegi-style frame chain (root/ancestor/data) carried in
// _examples/breadchris-yaegi/interp/interp.go, adapted from a
// reflect.Value stack slice to a heap-allocated, GC-registered map of
// named Bindings, since Lumen resolves names directly rather than
// pre-computed frame indices.
package env

import (
	"fmt"

	"lumen/internal/errors"
	"lumen/internal/gc"
	"lumen/internal/value"
)

// Binding is a mutable cell holding exactly one value, shared by
// reference by every closure that captured it — this sharing is the
// upvalue mechanism (spec.md §3). An Upvalue is simply a *Binding seen
// through a closure's captured frame chain: because frames are
// heap-allocated and outlive their defining call only by virtue of
// being referenced (never slot-reused), the open/closed state machine
// of spec.md §3/§9 collapses to "always live while reachable".
type Binding struct {
	Name       string
	Val        value.Value
	Const      bool
	ToBeClosed bool
}

// Frame is one level of the environment chain.
type Frame struct {
	hdr      gc.Header
	parent   *Frame
	names    map[string]*Binding
	// tbcOrder preserves to-be-closed declaration order for reverse
	// teardown (spec.md §4.2).
	tbcOrder []*Binding
	heap     *gc.Heap
}

// NewRoot creates the root (global) frame.
func NewRoot(heap *gc.Heap) *Frame {
	f := &Frame{names: make(map[string]*Binding), heap: heap}
	heap.Register(f)
	return f
}

// NewChild creates a fresh frame nested under parent, as every block,
// function call and loop iteration does (spec.md §4.3: "the variable
// is a fresh binding per iteration").
func (f *Frame) NewChild() *Frame {
	c := &Frame{parent: f, names: make(map[string]*Binding), heap: f.heap}
	f.heap.Register(c)
	return c
}

func (f *Frame) Parent() *Frame { return f.parent }

func (f *Frame) GCHeader() *gc.Header { return &f.hdr }

func (f *Frame) References(visit func(gc.Collectable)) {
	if f.parent != nil {
		visit(f.parent)
	}
	for _, b := range f.names {
		if r := b.Val.Ref(); r != nil {
			visit(r)
		}
	}
}

func (f *Frame) Finalize() {} // frames never carry __gc

// Declare always creates a fresh binding in this frame, shadowing any
// binding of the same name in an enclosing frame (spec.md §4.2).
func (f *Frame) Declare(name string, v value.Value, attrib string) (*Binding, error) {
	b := &Binding{Name: name, Val: v}
	switch attrib {
	case "const":
		b.Const = true
	case "close":
		b.ToBeClosed = true
		if !v.IsNil() && (v.Kind() != value.KindBool || v.AsBool()) {
			if !hasCloseMetamethod(v) {
				return nil, fmt.Errorf("variable '%s' got a non-closable value", name)
			}
		}
		f.tbcOrder = append(f.tbcOrder, b)
	case "":
	default:
		return nil, fmt.Errorf("unknown attribute '<%s>' for variable '%s'", attrib, name)
	}
	f.names[name] = b
	f.heap.AddCredits(gc.BindingCost)
	return b, nil
}

// hasCloseMetamethod is overridden by the interp package at init time
// so this package doesn't need to depend on metatable dispatch.
var hasCloseMetamethod = func(v value.Value) bool { return false }

// SetCloseMetamethodCheck lets the interp package install the real
// "does this value have a __close metamethod" predicate.
func SetCloseMetamethodCheck(f func(value.Value) bool) { hasCloseMetamethod = f }

// Lookup walks the frame chain for name, returning its Binding or nil.
func (f *Frame) Lookup(name string) *Binding {
	for cur := f; cur != nil; cur = cur.parent {
		if b, ok := cur.names[name]; ok {
			return b
		}
	}
	return nil
}

// Root returns the outermost (global) frame.
func (f *Frame) Root() *Frame {
	cur := f
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Assign locates and mutates the nearest existing binding, or creates
// a global in the root frame if none exists (spec.md §4.2).
func (f *Frame) Assign(name string, v value.Value) error {
	if b := f.Lookup(name); b != nil {
		if b.Const {
			return errors.New(errors.ConstViolation, fmt.Sprintf("attempt to assign to const variable '%s'", name))
		}
		b.Val = v
		return nil
	}
	root := f.Root()
	root.names[name] = &Binding{Name: name, Val: v}
	return nil
}

// Get returns the value bound to name, or Nil if unbound.
func (f *Frame) Get(name string) value.Value {
	if b := f.Lookup(name); b != nil {
		return b.Val
	}
	return value.Nil
}

// ToBeClosed returns this frame's to-be-closed bindings in declaration
// order (callers reverse before invoking closers).
func (f *Frame) ToBeClosed() []*Binding {
	return f.tbcOrder
}
