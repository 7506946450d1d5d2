package interp

import (
	"lumen/internal/ast"
	"lumen/internal/env"
	"lumen/internal/errors"
	"lumen/internal/value"
)

func (rt *Runtime) execNumericFor(n *ast.NumericFor, frame *env.Frame, file string) outcome {
	start, err := rt.evalExpr(n.Start, frame, file)
	if err != nil {
		return errOutcome(rt.wrap(err, file, n.Span()))
	}
	stop, err := rt.evalExpr(n.Stop, frame, file)
	if err != nil {
		return errOutcome(rt.wrap(err, file, n.Span()))
	}
	var step value.Value
	if n.Step != nil {
		step, err = rt.evalExpr(n.Step, frame, file)
		if err != nil {
			return errOutcome(rt.wrap(err, file, n.Span()))
		}
	} else {
		step = value.Int(1)
	}
	if !start.IsNumber() || !stop.IsNumber() || !step.IsNumber() {
		return errOutcome(errors.NewAt(errors.TypeError, "'for' initial value must be a number", loc(file, n.Span())))
	}
	if start.IsInt() && stop.IsInt() && step.IsInt() {
		return rt.runIntFor(n, start.AsInt(), stop.AsInt(), step.AsInt(), frame, file)
	}
	return rt.runFloatFor(n, start.AsNumber(), stop.AsNumber(), step.AsNumber(), frame, file)
}

func (rt *Runtime) runIntFor(n *ast.NumericFor, start, stop, step int64, frame *env.Frame, file string) outcome {
	if step == 0 {
		return errOutcome(errors.NewAt(errors.ArithError, "'for' step is zero", loc(file, n.Span())))
	}
	for i := start; (step > 0 && i <= stop) || (step < 0 && i >= stop); i += step {
		child := frame.NewChild() // fresh binding per iteration, spec.md §4.3
		if _, err := child.Declare(n.Var, value.Int(i), ""); err != nil {
			return errOutcome(rt.wrap(err, file, n.Span()))
		}
		out := rt.execBlock(n.Body, child, file)
		if closeErr := rt.closeScope(child, file, errValueOf(out)); closeErr != nil {
			return errOutcome(closeErr)
		}
		if out.kind == oBreak {
			return normalOutcome
		}
		if out.kind != oNormal {
			return out
		}
	}
	return normalOutcome
}

func (rt *Runtime) runFloatFor(n *ast.NumericFor, start, stop, step float64, frame *env.Frame, file string) outcome {
	if step == 0 {
		return errOutcome(errors.NewAt(errors.ArithError, "'for' step is zero", loc(file, n.Span())))
	}
	for i := start; (step > 0 && i <= stop) || (step < 0 && i >= stop); i += step {
		child := frame.NewChild()
		if _, err := child.Declare(n.Var, value.Float(i), ""); err != nil {
			return errOutcome(rt.wrap(err, file, n.Span()))
		}
		out := rt.execBlock(n.Body, child, file)
		if closeErr := rt.closeScope(child, file, errValueOf(out)); closeErr != nil {
			return errOutcome(closeErr)
		}
		if out.kind == oBreak {
			return normalOutcome
		}
		if out.kind != oNormal {
			return out
		}
	}
	return normalOutcome
}

// execGenericFor implements spec.md §4.3's `for vars in exprs do`:
// exprs evaluate to up to 4 values (iter, state, ctrl, closer); each
// iteration calls iter(state, ctrl).
func (rt *Runtime) execGenericFor(n *ast.GenericFor, frame *env.Frame, file string) outcome {
	vs, err := rt.evalExprListSpread(n.Exprs, frame, file)
	if err != nil {
		return errOutcome(rt.wrap(err, file, n.Span()))
	}
	get := func(i int) value.Value {
		if i < len(vs) {
			return vs[i]
		}
		return value.Nil
	}
	iter, state, ctrl, closer := get(0), get(1), get(2), get(3)

	loopFrame := frame.NewChild()
	if !closer.IsNil() && !(closer.Kind() == value.KindBool && !closer.AsBool()) {
		if _, err := loopFrame.Declare(" forclose", closer, "close"); err != nil {
			return errOutcome(rt.wrap(err, file, n.Span()))
		}
	}

	for {
		results, err := rt.CallNamed("for iterator", iter, []value.Value{state, ctrl}, loc(file, n.Span()))
		if err != nil {
			closeErr := rt.closeScope(loopFrame, file, nil)
			if closeErr != nil {
				return errOutcome(closeErr)
			}
			return errOutcome(rt.wrap(err, file, n.Span()))
		}
		first := value.Nil
		if len(results) > 0 {
			first = results[0]
		}
		if first.IsNil() {
			break
		}
		ctrl = first
		child := loopFrame.NewChild()
		for i, name := range n.Names {
			var v value.Value
			if i < len(results) {
				v = results[i]
			}
			if _, err := child.Declare(name, v, ""); err != nil {
				return errOutcome(rt.wrap(err, file, n.Span()))
			}
		}
		out := rt.execBlock(n.Body, child, file)
		if closeErr := rt.closeScope(child, file, errValueOf(out)); closeErr != nil {
			return errOutcome(closeErr)
		}
		if out.kind == oBreak {
			break
		}
		if out.kind != oNormal {
			if closeErr := rt.closeScope(loopFrame, file, errValueOf(out)); closeErr != nil {
				return errOutcome(closeErr)
			}
			return out
		}
	}
	if closeErr := rt.closeScope(loopFrame, file, nil); closeErr != nil {
		return errOutcome(closeErr)
	}
	return normalOutcome
}
