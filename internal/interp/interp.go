// Package interp is the tree-walking evaluator: a single eval(node,
// ctx) switch over the ast node set, per spec.md §9's redesign away
// from a visitor dispatching through mutual recursion across many
// methods. It is grounded on the teacher's interp/interp.go evaluation
// loop (the switch-over-node-kind shape, the Runtime-carries-context
// idiom) generalized from the teacher's own language to Lua-flavored
// control flow, multi-value expressions and to-be-closed teardown.
package interp

import (
	"fmt"
	"time"

	"lumen/internal/ast"
	"lumen/internal/callable"
	"lumen/internal/config"
	"lumen/internal/env"
	"lumen/internal/errors"
	"lumen/internal/gc"
	"lumen/internal/logging"
	"lumen/internal/meta"
	"lumen/internal/value"
)

// wallClock backs os.time/os.clock directly with the standard library,
// matching the teacher's direct time.Now() calls in its reporting and
// database modules rather than introducing a third-party clock.
type wallClock struct{ start time.Time }

func newWallClock() wallClock { return wallClock{start: time.Now()} }

func (c wallClock) UnixNow() int64      { return time.Now().Unix() }
func (c wallClock) Monotonic() float64  { return time.Since(c.start).Seconds() }

// outcomeKind tags the explicit control-transfer sum of spec.md §9,
// replacing the teacher's control-flow-via-panic with early returns.
type outcomeKind int

const (
	oNormal outcomeKind = iota
	oReturn
	oBreak
	oGoto
	oError
)

type outcome struct {
	kind   outcomeKind
	values []value.Value
	label  string
	err    *errors.LumenError
}

var normalOutcome = outcome{kind: oNormal}

func breakOutcome() outcome         { return outcome{kind: oBreak} }
func gotoOutcome(label string) outcome { return outcome{kind: oGoto, label: label} }
func returnOutcome(vs []value.Value) outcome { return outcome{kind: oReturn, values: vs} }

func errOutcome(e *errors.LumenError) outcome { return outcome{kind: oError, err: e} }

// CallFrame is one entry of the call stack (spec.md §3, §4.4).
type CallFrame struct {
	Name string
	Loc  errors.SourceLocation
	Line int
}

// Runtime is the explicit context threaded through evaluation,
// replacing the teacher's singleton-config/global-current pattern
// (spec.md §9): it carries the GC, logger, config, globals and the
// active call stack.
type Runtime struct {
	Heap    *gc.Heap
	Log     *logging.Logger
	Cfg     *config.RuntimeConfig
	Globals *env.Frame
	Clock   wallClock

	callStack []*CallFrame
	// evalStack pins heap values allocated mid-expression so a
	// GC-triggering allocation later in the same statement can't free
	// a temporary not yet stored anywhere — spec.md §4.6's root set
	// explicitly names "the evaluation stack" alongside the
	// environment chain and call stack.
	evalStack []gc.Collectable

	main    *Coroutine
	current *Coroutine

	searchers []string

	// Loader resolves require() targets; left nil until a host sets
	// one up via internal/loader.New(rt, ...) and rt.SetLoader, since
	// the loader needs an Evaluator (this Runtime) to run a module's
	// chunk, and this package can't import loader without a cycle.
	Loader interface {
		Require(string) (value.Value, error)
	}
}

// SetLoader installs the module loader used by require(). Called by
// host setup after both the Runtime and the loader exist.
func (rt *Runtime) SetLoader(l interface{ Require(string) (value.Value, error) }) {
	rt.Loader = l
}

// New builds a Runtime with a fresh heap, global frame and main
// coroutine, wiring the GC root set and the __close predicate so the
// env package stays free of a dependency on meta/interp.
func New(cfg *config.RuntimeConfig, log *logging.Logger) *Runtime {
	rt := &Runtime{Cfg: cfg, Log: log, Clock: newWallClock()}
	rt.Heap = gc.NewHeap(rt.roots, log)
	if cfg != nil {
		if cfg.GC.MinorMultiplier > 0 {
			rt.Heap.MinorMultiplier = cfg.GC.MinorMultiplier
		}
		if cfg.GC.MajorMultiplier > 0 {
			rt.Heap.MajorMultiplier = cfg.GC.MajorMultiplier
		}
	}
	rt.Globals = env.NewRoot(rt.Heap)
	rt.main = newMainCoroutine(rt)
	rt.current = rt.main
	env.SetCloseMetamethodCheck(func(v value.Value) bool { return meta.HasClose(v) })
	OpenBase(rt)
	return rt
}

// roots implements gc.Roots: the global frame, every active
// coroutine's live frame (which walks its own parent chain), and
// pinned evaluation-stack temporaries.
func (rt *Runtime) roots() []gc.Collectable {
	out := []gc.Collectable{rt.Globals}
	for _, co := range rt.allCoroutines() {
		if co.activeFrame != nil {
			out = append(out, co.activeFrame)
		}
		if fn := co.fn.Ref(); fn != nil {
			out = append(out, fn)
		}
	}
	out = append(out, rt.evalStack...)
	return out
}

func (rt *Runtime) allCoroutines() []*Coroutine {
	out := []*Coroutine{rt.main}
	for co := rt.current; co != nil && co != rt.main; co = co.parent {
		out = append(out, co)
	}
	return out
}

func (rt *Runtime) pin(c gc.Collectable) {
	rt.evalStack = append(rt.evalStack, c)
}

// unpinMark / unpinTo implement the truncate-after-each-statement
// discipline described above: results already stored into a binding
// or table remain reachable through that store, so dropping the pin
// is safe once a full statement has completed.
func (rt *Runtime) unpinMark() int { return len(rt.evalStack) }
func (rt *Runtime) unpinTo(mark int) {
	rt.evalStack = rt.evalStack[:mark]
}

func (rt *Runtime) newTable() *value.Table {
	t := value.NewTable()
	rt.Heap.Register(t)
	rt.pin(t)
	return t
}

func (rt *Runtime) newClosure(proto *ast.FunctionLiteral, defEnv *env.Frame) *callable.Function {
	f := callable.NewClosure(proto, defEnv, rt.Heap)
	rt.pin(f)
	return f
}

func (rt *Runtime) pushFrame(name string, loc errors.SourceLocation) {
	rt.callStack = append(rt.callStack, &CallFrame{Name: name, Loc: loc, Line: loc.Line})
}

func (rt *Runtime) popFrame() {
	rt.callStack = rt.callStack[:len(rt.callStack)-1]
}

// Trace captures the current call stack, innermost first, for error
// reporting (spec.md §4.4).
func (rt *Runtime) Trace() []errors.StackFrame {
	out := make([]errors.StackFrame, 0, len(rt.callStack))
	for i := len(rt.callStack) - 1; i >= 0; i-- {
		f := rt.callStack[i]
		out = append(out, errors.StackFrame{Function: f.Name, File: f.Loc.File, Line: f.Line, Column: f.Loc.Column})
	}
	return out
}

func loc(file string, span ast.Span) errors.SourceLocation {
	return errors.SourceLocation{File: file, Line: span.StartLine, Column: span.StartCol}
}

// Evaluate runs a parsed chunk's top-level block as the entry point of
// a new call frame, returning its final return values.
func (rt *Runtime) Evaluate(prog *ast.Program, chunkName string) ([]value.Value, error) {
	rt.pushFrame("main chunk", errors.SourceLocation{File: chunkName})
	defer rt.popFrame()
	frame := rt.Globals.NewChild()
	out := rt.execBlock(prog.Body, frame, chunkName)
	switch out.kind {
	case oReturn:
		return out.values, nil
	case oError:
		return nil, out.err
	default:
		return nil, nil
	}
}

// execBlock runs stmts in frame, handling goto targets declared
// anywhere in the block (Lua allows forward/backward jumps to a
// label in the same or an enclosing block).
func (rt *Runtime) execBlock(b *ast.Block, frame *env.Frame, file string) outcome {
	co := rt.current
	prevActive := co.activeFrame
	co.activeFrame = frame
	defer func() { co.activeFrame = prevActive }()

	i := 0
	for i < len(b.Stmts) {
		mark := rt.unpinMark()
		out := rt.execStmt(b.Stmts[i], frame, file)
		rt.unpinTo(mark)
		if out.kind == oGoto {
			if target := findLabel(b.Stmts, out.label); target >= 0 {
				i = target
				continue
			}
			return out // propagate to an enclosing block
		}
		if out.kind != oNormal {
			return out
		}
		i++
	}
	return normalOutcome
}

func findLabel(stmts []ast.Stmt, name string) int {
	for i, s := range stmts {
		if l, ok := s.(*ast.Label); ok && l.Name == name {
			return i
		}
	}
	return -1
}

func (rt *Runtime) execStmt(s ast.Stmt, frame *env.Frame, file string) outcome {
	switch n := s.(type) {
	case *ast.Label, *ast.ExprStmt:
		if es, ok := n.(*ast.ExprStmt); ok {
			if _, err := rt.evalMulti(es.X, frame, file); err != nil {
				return errOutcome(rt.wrap(err, file, s.Span()))
			}
		}
		return normalOutcome
	case *ast.LocalDecl:
		return rt.execLocalDecl(n, frame, file)
	case *ast.Assign:
		return rt.execAssign(n, frame, file)
	case *ast.If:
		return rt.execIf(n, frame, file)
	case *ast.While:
		return rt.execWhile(n, frame, file)
	case *ast.RepeatUntil:
		return rt.execRepeat(n, frame, file)
	case *ast.NumericFor:
		return rt.execNumericFor(n, frame, file)
	case *ast.GenericFor:
		return rt.execGenericFor(n, frame, file)
	case *ast.FunctionDecl:
		return rt.execFunctionDecl(n, frame, file)
	case *ast.LocalFunctionDecl:
		fn := rt.newClosure(n.Fn, frame)
		if _, err := frame.Declare(n.Name, value.Nil, ""); err != nil {
			return errOutcome(rt.wrap(err, file, s.Span()))
		}
		_ = frame.Assign(n.Name, fn.Value())
		return normalOutcome
	case *ast.Return:
		vs, err := rt.evalExprListSpread(n.Exprs, frame, file)
		if err != nil {
			return errOutcome(rt.wrap(err, file, s.Span()))
		}
		return returnOutcome(vs)
	case *ast.Break:
		return breakOutcome()
	case *ast.Goto:
		return gotoOutcome(n.Label)
	case *ast.DoBlock:
		child := frame.NewChild()
		out := rt.execBlock(n.Body, child, file)
		if closeErr := rt.closeScope(child, file, nil); closeErr != nil {
			return errOutcome(closeErr)
		}
		return out
	default:
		return errOutcome(errors.NewAt(errors.CallError, fmt.Sprintf("unhandled statement %T", s), loc(file, s.Span())))
	}
}

func (rt *Runtime) wrap(err error, file string, span ast.Span) *errors.LumenError {
	if le, ok := err.(*errors.LumenError); ok {
		return le
	}
	return errors.NewAt(errors.TypeError, err.Error(), loc(file, span))
}

func (rt *Runtime) execLocalDecl(n *ast.LocalDecl, frame *env.Frame, file string) outcome {
	vals, err := rt.evalExprListSpread(n.Exprs, frame, file)
	if err != nil {
		return errOutcome(rt.wrap(err, file, n.Span()))
	}
	for i, name := range n.Names {
		var v value.Value
		if i < len(vals) {
			v = vals[i]
		}
		attrib := ""
		if i < len(n.Attribs) {
			attrib = n.Attribs[i]
		}
		if _, err := frame.Declare(name, v, attrib); err != nil {
			return errOutcome(rt.wrap(err, file, n.Span()))
		}
	}
	return normalOutcome
}

func (rt *Runtime) execAssign(n *ast.Assign, frame *env.Frame, file string) outcome {
	vals, err := rt.evalExprListSpread(n.Exprs, frame, file)
	if err != nil {
		return errOutcome(rt.wrap(err, file, n.Span()))
	}
	// Pre-evaluate target components (object/key) left-to-right before
	// any store, per spec.md §4.3's "a.b.c evaluates a.b once".
	type target struct {
		ident string
		obj   value.Value
		key   value.Value
		plain bool
	}
	targets := make([]target, len(n.Targets))
	for i, texpr := range n.Targets {
		switch t := texpr.(type) {
		case *ast.Identifier:
			targets[i] = target{ident: t.Name, plain: true}
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
			targets[i] = target{obj: objv, key: keyv}
		default:
			return errOutcome(errors.NewAt(errors.TypeError, "cannot assign to this expression", loc(file, n.Span())))
		}
	}
	for i, t := range targets {
		var v value.Value
		if i < len(vals) {
			v = vals[i]
		}
		if t.plain {
			if err := frame.Assign(t.ident, v); err != nil {
				return errOutcome(rt.wrap(err, file, n.Span()))
			}
			continue
		}
		if err := meta.NewIndex(t.obj, t.key, v, rt.callerFunc(file)); err != nil {
			return errOutcome(rt.wrap(err, file, n.Span()))
		}
	}
	return normalOutcome
}

func (rt *Runtime) execIf(n *ast.If, frame *env.Frame, file string) outcome {
	cond, err := rt.evalExpr(n.Cond, frame, file)
	if err != nil {
		return errOutcome(rt.wrap(err, file, n.Span()))
	}
	if cond.Truthy() {
		return rt.execBlockScoped(n.Then, frame, file)
	}
	for _, ei := range n.ElseIfs {
		cv, err := rt.evalExpr(ei.Cond, frame, file)
		if err != nil {
			return errOutcome(rt.wrap(err, file, n.Span()))
		}
		if cv.Truthy() {
			return rt.execBlockScoped(ei.Then, frame, file)
		}
	}
	if n.Else != nil {
		return rt.execBlockScoped(n.Else, frame, file)
	}
	return normalOutcome
}

func (rt *Runtime) execBlockScoped(b *ast.Block, parent *env.Frame, file string) outcome {
	child := parent.NewChild()
	out := rt.execBlock(b, child, file)
	if closeErr := rt.closeScope(child, file, errValueOf(out)); closeErr != nil {
		return errOutcome(closeErr)
	}
	return out
}

func errValueOf(out outcome) *value.Value {
	if out.kind == oError && out.err != nil {
		v := errorToValue(out.err)
		return &v
	}
	return nil
}

func (rt *Runtime) execWhile(n *ast.While, frame *env.Frame, file string) outcome {
	for {
		cond, err := rt.evalExpr(n.Cond, frame, file)
		if err != nil {
			return errOutcome(rt.wrap(err, file, n.Span()))
		}
		if !cond.Truthy() {
			return normalOutcome
		}
		out := rt.execBlockScoped(n.Body, frame, file)
		if out.kind == oBreak {
			return normalOutcome
		}
		if out.kind != oNormal {
			return out
		}
	}
}

func (rt *Runtime) execRepeat(n *ast.RepeatUntil, frame *env.Frame, file string) outcome {
	for {
		child := frame.NewChild()
		out := rt.execBlock(n.Body, child, file)
		if out.kind == oNormal {
			cond, err := rt.evalExpr(n.Cond, child, file) // until sees the body's locals
			closeErr := rt.closeScope(child, file, nil)
			if closeErr != nil {
				return errOutcome(closeErr)
			}
			if err != nil {
				return errOutcome(rt.wrap(err, file, n.Span()))
			}
			if cond.Truthy() {
				return normalOutcome
			}
			continue
		}
		if closeErr := rt.closeScope(child, file, errValueOf(out)); closeErr != nil {
			return errOutcome(closeErr)
		}
		if out.kind == oBreak {
			return normalOutcome
		}
		return out
	}
}
