// Host embedding surface (spec.md §6): the handful of methods a host
// program uses to stand up a Runtime, hand it native functions, and
// run or call into script code without touching the evaluator
// internals above. Grounded on the teacher's cmd/sentra/main.go, which
// builds one global table of name->NativeFnObj and feeds a parsed
// program to a single entry point the same way.
package interp

import (
	"lumen/internal/errors"
	"lumen/internal/parser"
	"lumen/internal/value"
)

// DefineGlobal implements `runtime.define_global(name, value)`: installs
// or overwrites a global binding, bypassing const/to-be-closed checks
// since host code sits outside the script's scope discipline.
func (rt *Runtime) DefineGlobal(name string, v value.Value) {
	if b := rt.Globals.Lookup(name); b != nil {
		b.Val = v
		return
	}
	rt.defineGlobal(name, v)
}

// Expose implements `runtime.expose(name, native_fn)`: wraps a Go
// function taking and returning []Value as a callable Lumen global.
func (rt *Runtime) Expose(name string, fn func([]value.Value) ([]value.Value, error)) {
	rt.DefineGlobal(name, nativeValue(name, fn))
}

// EvaluateSource implements `runtime.evaluate(source_or_ast, script_path?)`
// for the source-text form: parses then runs a chunk, returning its
// final return values.
func (rt *Runtime) EvaluateSource(source, scriptPath string) ([]value.Value, error) {
	prog, err := parser.Parse(source, scriptPath)
	if err != nil {
		return nil, errors.New(errors.SyntaxError, err.Error())
	}
	return rt.Evaluate(prog, scriptPath)
}

// Call implements `runtime.call(name_or_value, args)`: resolves a
// global by name when given a string, otherwise calls the value
// directly.
func (rt *Runtime) Call(nameOrValue interface{}, args []value.Value) ([]value.Value, error) {
	switch v := nameOrValue.(type) {
	case string:
		b := rt.Globals.Lookup(v)
		if b == nil {
			return nil, errors.New(errors.CallError, "attempt to call undefined global '"+v+"'")
		}
		return rt.CallNamed(v, b.Val, args, errors.SourceLocation{})
	case value.Value:
		return rt.CallNamed("?", v, args, errors.SourceLocation{})
	default:
		return nil, errors.New(errors.CallError, "call target must be a name or a value")
	}
}

// SetSearchers replaces the search-path template list stored on the
// Runtime. require() does not consult this list: internal/loader
// resolves with the template list it was constructed with.
func (rt *Runtime) SetSearchers(templates []string) {
	rt.searchers = append([]string(nil), templates...)
}

// AddSearchPath appends one more template to the Runtime's stored
// searcher list; like SetSearchers, it does not affect require().
func (rt *Runtime) AddSearchPath(path string) {
	rt.searchers = append(rt.searchers, path)
}

// Searchers returns the stored search-path template list, or the
// default templates when none is set. internal/loader does not read it.
func (rt *Runtime) Searchers() []string {
	if len(rt.searchers) == 0 {
		return []string{"./?.lumen", "./?/init.lumen"}
	}
	return rt.searchers
}
