package interp

import (
	"lumen/internal/ast"
	"lumen/internal/env"
	"lumen/internal/errors"
	"lumen/internal/meta"
	"lumen/internal/value"
)

// closeScope implements spec.md §4.2's close_scope(error?): it runs
// frame's to-be-closed bindings in reverse declaration order, each
// inside a protected call. A closer that raises replaces the error
// being propagated with its own; closers that run before the
// replacement receive the earlier error as their second argument, and
// the earlier error is not kept on the one that is finally returned.
func (rt *Runtime) closeScope(frame *env.Frame, file string, errVal *value.Value) *errors.LumenError {
	tbc := frame.ToBeClosed()
	if len(tbc) == 0 {
		if errVal != nil {
			return valueToLumenErr(*errVal)
		}
		return nil
	}
	hasErr := errVal != nil
	var cur value.Value
	if hasErr {
		cur = *errVal
	}
	for i := len(tbc) - 1; i >= 0; i-- {
		v := tbc[i].Val
		if v.IsNil() || (v.Kind() == value.KindBool && !v.AsBool()) {
			continue
		}
		h, ok := meta.CloseHandler(v)
		if !ok {
			continue
		}
		errArg := value.Nil
		if hasErr {
			errArg = cur
		}
		_, callErr := rt.CallNamed("__close", h, []value.Value{v, errArg}, errors.SourceLocation{File: file})
		if callErr != nil {
			cur = errorToValue(rt.wrap(callErr, file, ast.Span{}))
			hasErr = true
		}
	}
	if hasErr {
		return valueToLumenErr(cur)
	}
	return nil
}

// errorToValue recovers the raised value.Value from a LumenError
// (error() on a non-string value round-trips through LumenError.Value
// as a boxed value.Value), falling back to a string for errors that
// originate inside the runtime itself.
func errorToValue(e *errors.LumenError) value.Value {
	if e == nil {
		return value.Nil
	}
	if v, ok := e.Value.(value.Value); ok {
		return v
	}
	return value.Str(e.Error())
}

func valueToLumenErr(v value.Value) *errors.LumenError {
	msg := v.TypeName()
	if v.IsString() {
		msg = v.AsString()
	} else if v.IsNumber() {
		msg = meta.NumberToString(v)
	}
	return errors.NewValue(errors.CallError, v, msg)
}

func (rt *Runtime) execFunctionDecl(n *ast.FunctionDecl, frame *env.Frame, file string) outcome {
	fn := rt.newClosure(n.Fn, frame)
	switch t := n.Target.(type) {
	case *ast.Identifier:
		if err := frame.Assign(t.Name, fn.Value()); err != nil {
			return errOutcome(rt.wrap(err, file, n.Span()))
		}
	case *ast.IndexExpr:
		objv, err := rt.evalExpr(t.Object, frame, file)
		if err != nil {
			return errOutcome(rt.wrap(err, file, n.Span()))
		}
		var keyv value.Value
		if t.Dot {
			keyv = value.Str(t.Key.(*ast.StringLiteral).Value)
		} else {
			keyv, err = rt.evalExpr(t.Key, frame, file)
			if err != nil {
				return errOutcome(rt.wrap(err, file, n.Span()))
			}
		}
		if err := meta.NewIndex(objv, keyv, fn.Value(), rt.callerFunc(file)); err != nil {
			return errOutcome(rt.wrap(err, file, n.Span()))
		}
	default:
		return errOutcome(errors.NewAt(errors.TypeError, "invalid function declaration target", loc(file, n.Span())))
	}
	return normalOutcome
}
