package interp

import (
	"fmt"

	"lumen/internal/ast"
	"lumen/internal/env"
	"lumen/internal/errors"
	"lumen/internal/meta"
	"lumen/internal/value"
)

// evalExpr evaluates e to exactly one value, truncating any
// multi-value result (spec.md §4.3: "any other position takes only
// the first").
func (rt *Runtime) evalExpr(e ast.Expr, frame *env.Frame, file string) (value.Value, error) {
	vs, err := rt.evalMulti(e, frame, file)
	if err != nil {
		return value.Nil, err
	}
	if len(vs) == 0 {
		return value.Nil, nil
	}
	return vs[0], nil
}

// evalMulti evaluates e to its full result list: more than one value
// only for Call, MethodCall and VarArg; every other node yields
// exactly one value.
func (rt *Runtime) evalMulti(e ast.Expr, frame *env.Frame, file string) ([]value.Value, error) {
	switch n := e.(type) {
	case *ast.NilLiteral:
		return []value.Value{value.Nil}, nil
	case *ast.BoolLiteral:
		return []value.Value{value.Bool(n.Value)}, nil
	case *ast.IntLiteral:
		return []value.Value{value.Int(n.Value)}, nil
	case *ast.FloatLiteral:
		return []value.Value{value.Float(n.Value)}, nil
	case *ast.StringLiteral:
		return []value.Value{value.Str(n.Value)}, nil
	case *ast.VarArg:
		return append([]value.Value{}, frame.Get(varargName).Ref().(*varargBox).vals...), nil
	case *ast.Identifier:
		return []value.Value{frame.Get(n.Name)}, nil
	case *ast.ParenExpr:
		v, err := rt.evalExpr(n.Inner, frame, file)
		if err != nil {
			return nil, err
		}
		return []value.Value{v}, nil
	case *ast.FunctionLiteral:
		fn := rt.newClosure(n, frame)
		return []value.Value{fn.Value()}, nil
	case *ast.TableCtor:
		return rt.evalTableCtor(n, frame, file)
	case *ast.IndexExpr:
		v, err := rt.evalIndex(n, frame, file)
		if err != nil {
			return nil, err
		}
		return []value.Value{v}, nil
	case *ast.UnaryExpr:
		v, err := rt.evalUnary(n, frame, file)
		if err != nil {
			return nil, err
		}
		return []value.Value{v}, nil
	case *ast.BinaryExpr:
		v, err := rt.evalBinary(n, frame, file)
		if err != nil {
			return nil, err
		}
		return []value.Value{v}, nil
	case *ast.Call:
		return rt.evalCall(n, frame, file)
	case *ast.MethodCall:
		return rt.evalMethodCall(n, frame, file)
	default:
		return nil, errors.NewAt(errors.TypeError, fmt.Sprintf("unhandled expression %T", e), loc(file, e.Span()))
	}
}

// evalExprListSpread evaluates a list of expressions where only the
// last one spreads its multiple results (spec.md §4.3).
func (rt *Runtime) evalExprListSpread(exprs []ast.Expr, frame *env.Frame, file string) ([]value.Value, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]value.Value, 0, len(exprs))
	for i, e := range exprs {
		if i == len(exprs)-1 {
			vs, err := rt.evalMulti(e, frame, file)
			if err != nil {
				return nil, err
			}
			out = append(out, vs...)
		} else {
			v, err := rt.evalExpr(e, frame, file)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func (rt *Runtime) evalTableCtor(n *ast.TableCtor, frame *env.Frame, file string) ([]value.Value, error) {
	t := rt.newTable()
	arrayIdx := int64(1)
	for i, ent := range n.Entries {
		if ent.Key == nil {
			if i == len(n.Entries)-1 {
				vs, err := rt.evalMulti(ent.Value, frame, file)
				if err != nil {
					return nil, err
				}
				for _, v := range vs {
					_ = t.Set(value.Int(arrayIdx), v)
					arrayIdx++
				}
				continue
			}
			v, err := rt.evalExpr(ent.Value, frame, file)
			if err != nil {
				return nil, err
			}
			_ = t.Set(value.Int(arrayIdx), v)
			arrayIdx++
			continue
		}
		kv, err := rt.evalExpr(ent.Key, frame, file)
		if err != nil {
			return nil, err
		}
		vv, err := rt.evalExpr(ent.Value, frame, file)
		if err != nil {
			return nil, err
		}
		if err := t.Set(kv, vv); err != nil {
			return nil, rt.wrap(err, file, n.Span())
		}
	}
	return []value.Value{t.Value()}, nil
}

func (rt *Runtime) evalIndex(n *ast.IndexExpr, frame *env.Frame, file string) (value.Value, error) {
	obj, err := rt.evalExpr(n.Object, frame, file)
	if err != nil {
		return value.Nil, err
	}
	var key value.Value
	if n.Dot {
		key = value.Str(n.Key.(*ast.StringLiteral).Value)
	} else {
		key, err = rt.evalExpr(n.Key, frame, file)
		if err != nil {
			return value.Nil, err
		}
	}
	v, err := meta.Index(obj, key, rt.callerFunc(file))
	if err != nil {
		return value.Nil, rt.wrap(err, file, n.Span())
	}
	return v, nil
}

func (rt *Runtime) evalUnary(n *ast.UnaryExpr, frame *env.Frame, file string) (value.Value, error) {
	v, err := rt.evalExpr(n.Operand, frame, file)
	if err != nil {
		return value.Nil, err
	}
	out, err := meta.UnaryOp(n.Op, v, rt.callerFunc(file))
	if err != nil {
		return value.Nil, rt.wrap(err, file, n.Span())
	}
	return out, nil
}

func (rt *Runtime) evalBinary(n *ast.BinaryExpr, frame *env.Frame, file string) (value.Value, error) {
	// `and`/`or` short-circuit with no metamethod involvement
	// (spec.md §4.3).
	if n.Op == "and" || n.Op == "or" {
		l, err := rt.evalExpr(n.Left, frame, file)
		if err != nil {
			return value.Nil, err
		}
		if n.Op == "and" {
			if !l.Truthy() {
				return l, nil
			}
		} else if l.Truthy() {
			return l, nil
		}
		return rt.evalExpr(n.Right, frame, file)
	}
	l, err := rt.evalExpr(n.Left, frame, file)
	if err != nil {
		return value.Nil, err
	}
	r, err := rt.evalExpr(n.Right, frame, file)
	if err != nil {
		return value.Nil, err
	}
	if n.Op == "~=" {
		v, err := meta.BinaryOp("==", l, r, rt.callerFunc(file))
		if err != nil {
			return value.Nil, rt.wrap(err, file, n.Span())
		}
		return value.Bool(!v.Truthy()), nil
	}
	if n.Op == ">" {
		v, err := meta.BinaryOp("<", r, l, rt.callerFunc(file))
		if err != nil {
			return value.Nil, rt.wrap(err, file, n.Span())
		}
		return v, nil
	}
	if n.Op == ">=" {
		v, err := meta.BinaryOp("<=", r, l, rt.callerFunc(file))
		if err != nil {
			return value.Nil, rt.wrap(err, file, n.Span())
		}
		return v, nil
	}
	out, err := meta.BinaryOp(n.Op, l, r, rt.callerFunc(file))
	if err != nil {
		return value.Nil, rt.wrap(err, file, n.Span())
	}
	return out, nil
}

func (rt *Runtime) evalCall(n *ast.Call, frame *env.Frame, file string) ([]value.Value, error) {
	callee, err := rt.evalExpr(n.Callee, frame, file)
	if err != nil {
		return nil, err
	}
	args, err := rt.evalExprListSpread(n.Args, frame, file)
	if err != nil {
		return nil, err
	}
	name := calleeName(n.Callee)
	results, err := rt.CallNamed(name, callee, args, loc(file, n.Span()))
	if err != nil {
		return nil, rt.wrap(err, file, n.Span())
	}
	return results, nil
}

func (rt *Runtime) evalMethodCall(n *ast.MethodCall, frame *env.Frame, file string) ([]value.Value, error) {
	recv, err := rt.evalExpr(n.Receiver, frame, file)
	if err != nil {
		return nil, err
	}
	fn, err := meta.Index(recv, value.Str(n.Method), rt.callerFunc(file))
	if err != nil {
		return nil, rt.wrap(err, file, n.Span())
	}
	args, err := rt.evalExprListSpread(n.Args, frame, file)
	if err != nil {
		return nil, err
	}
	args = append([]value.Value{recv}, args...)
	results, err := rt.CallNamed(n.Method, fn, args, loc(file, n.Span()))
	if err != nil {
		return nil, rt.wrap(err, file, n.Span())
	}
	return results, nil
}

func calleeName(e ast.Expr) string {
	switch n := e.(type) {
	case *ast.Identifier:
		return n.Name
	case *ast.IndexExpr:
		if n.Dot {
			return n.Key.(*ast.StringLiteral).Value
		}
	}
	return "?"
}

// callerFunc adapts Runtime.Call to the meta.Caller signature needed
// by operator/index dispatch.
func (rt *Runtime) callerFunc(file string) meta.Caller {
	return func(fn value.Value, args []value.Value) ([]value.Value, error) {
		return rt.CallNamed("metamethod", fn, args, errors.SourceLocation{File: file})
	}
}
