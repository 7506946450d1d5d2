// Call machinery: frame push/pop, native/closure invocation, __call
// fallback and the pcall/xpcall protected-call boundary of spec.md
// §4.4/§7.
package interp

import (
	"fmt"

	"lumen/internal/callable"
	"lumen/internal/errors"
	"lumen/internal/meta"
	"lumen/internal/value"
)

// maxCallDepth bounds recursion so a runaway script fails with a
// Lumen-visible error instead of overflowing the Go stack.
const maxCallDepth = 220

// CallNamed invokes fn with args, pushing a call frame recorded at
// call site loc for traces. Non-function callees fall back to
// __call (spec.md §4.1).
func (rt *Runtime) CallNamed(name string, fn value.Value, args []value.Value, l errors.SourceLocation) ([]value.Value, error) {
	if !fn.IsFunction() {
		if handler, ok := meta.CallTarget(fn); ok {
			return rt.CallNamed(name, handler, append([]value.Value{fn}, args...), l)
		}
		return nil, errors.NewAt(errors.CallError, fmt.Sprintf("attempt to call a %s value", fn.TypeName()), l)
	}
	f := fn.Ref().(*callable.Function)
	if len(rt.callStack) > maxCallDepth {
		return nil, errors.NewAt(errors.CallError, "stack overflow", l).WithTrace(rt.Trace())
	}
	rt.pushFrame(displayName(name, f), l)
	defer rt.popFrame()

	if f.IsNative() {
		results, err := f.Native(args)
		if err != nil {
			if le, ok := err.(*errors.LumenError); ok {
				return nil, le
			}
			return nil, errors.New(errors.CallError, err.Error()).WithTrace(rt.Trace())
		}
		return results, nil
	}
	return rt.callClosure(f, args)
}

func displayName(callSiteName string, f *callable.Function) string {
	if f.Name != "" {
		return f.Name
	}
	return callSiteName
}

func (rt *Runtime) callClosure(f *callable.Function, args []value.Value) ([]value.Value, error) {
	frame := f.Env.NewChild()
	proto := f.Proto
	file := proto.Span().File
	for i, p := range proto.Params {
		var v value.Value
		if i < len(args) {
			v = args[i]
		}
		if _, err := frame.Declare(p, v, ""); err != nil {
			return nil, rt.wrap(err, file, proto.Span())
		}
	}
	if proto.IsVararg {
		extra := []value.Value{}
		if len(args) > len(proto.Params) {
			extra = append(extra, args[len(proto.Params):]...)
		}
		box := rt.newVarargBox(extra)
		if _, err := frame.Declare(varargName, value.FromRef(value.KindUserdata, box), ""); err != nil {
			return nil, rt.wrap(err, file, proto.Span())
		}
	}
	out := rt.execBlock(proto.Body, frame, file)
	if closeErr := rt.closeScope(frame, file, errValueOf(out)); closeErr != nil {
		return nil, closeErr
	}
	switch out.kind {
	case oReturn:
		return out.values, nil
	case oError:
		return nil, out.err
	default:
		return nil, nil
	}
}

// Pcall implements `pcall(f, ...)`.
func (rt *Runtime) Pcall(fn value.Value, args []value.Value) []value.Value {
	results, err := rt.CallNamed("pcall", fn, args, errors.SourceLocation{})
	if err != nil {
		return []value.Value{value.Bool(false), errorToValue(asLumenErr(err))}
	}
	return append([]value.Value{value.Bool(true)}, results...)
}

// Xpcall implements `xpcall(f, handler, ...)`.
func (rt *Runtime) Xpcall(fn, handler value.Value, args []value.Value) []value.Value {
	results, err := rt.CallNamed("xpcall", fn, args, errors.SourceLocation{})
	if err != nil {
		errv := errorToValue(asLumenErr(err))
		hres, herr := rt.CallNamed("xpcall handler", handler, []value.Value{errv}, errors.SourceLocation{})
		if herr != nil {
			return []value.Value{value.Bool(false), errorToValue(asLumenErr(herr))}
		}
		return append([]value.Value{value.Bool(false)}, hres...)
	}
	return append([]value.Value{value.Bool(true)}, results...)
}

func asLumenErr(err error) *errors.LumenError {
	if le, ok := err.(*errors.LumenError); ok {
		return le
	}
	return errors.New(errors.CallError, err.Error())
}

// ErrorValue implements `error(v, level)` (spec.md §4.4): if v is a
// string and level > 0, prepend "<file>:<line>: " from the frame at
// that depth (1 = caller of error, 0 = no prefix).
func (rt *Runtime) ErrorValue(v value.Value, level int64) *errors.LumenError {
	outVal := v
	msg := v.TypeName()
	switch {
	case v.IsString():
		msg = v.AsString()
		if level > 0 {
			idx := len(rt.callStack) - int(level)
			if idx >= 0 && idx < len(rt.callStack) {
				if l := rt.callStack[idx].Loc; l.File != "" {
					msg = l.String() + ": " + msg
					outVal = value.Str(msg)
				}
			}
		}
	case v.IsNumber():
		msg = meta.NumberToString(v)
	}
	e := errors.NewValue(errors.CallError, outVal, msg)
	return e.WithTrace(rt.Trace())
}
