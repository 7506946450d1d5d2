package interp

import "lumen/internal/gc"
import "lumen/internal/value"

// varargName is the synthetic binding name under which a vararg
// function's `...` is stored in its call frame.
const varargName = " ..."

// varargBox is a tiny heap value wrapping the `...` payload so it can
// ride through env.Binding/value.Value like any other reference type
// and be walked by the GC.
type varargBox struct {
	hdr  gc.Header
	vals []value.Value
}

func (b *varargBox) GCHeader() *gc.Header { return &b.hdr }

func (b *varargBox) References(visit func(gc.Collectable)) {
	for _, v := range b.vals {
		if r := v.Ref(); r != nil {
			visit(r)
		}
	}
}

func (b *varargBox) Finalize() {}

func (rt *Runtime) newVarargBox(vals []value.Value) *varargBox {
	b := &varargBox{vals: vals}
	rt.Heap.Register(b)
	rt.pin(b)
	return b
}

var _ gc.Collectable = (*varargBox)(nil)
