// OpenBase installs the base library and the coroutine/string/table/
// math/os tables every chunk starts with — grounded on the teacher's
// builtin-registration pass in cmd/sentra/main.go (a flat table of
// name→NativeFnObj entries installed into the root environment before
// running a script).
package interp

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"lumen/internal/callable"
	"lumen/internal/errors"
	"lumen/internal/meta"
	"lumen/internal/value"
)

func (rt *Runtime) defineGlobal(name string, v value.Value) {
	if _, err := rt.Globals.Declare(name, v, ""); err != nil {
		panic(err) // Declare only fails for a <close> or unknown attribute, never with "" here
	}
}

func nativeValue(name string, fn callable.Native) value.Value {
	return callable.NewNative(name, fn).Value()
}

// OpenBase wires every base-library global plus the coroutine, math,
// string, table and os tables onto rt.Globals.
func OpenBase(rt *Runtime) {
	rt.defineGlobal("print", nativeValue("print", rt.basePrint))
	rt.defineGlobal("type", nativeValue("type", func(args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Str(arg(args, 0).TypeName())}, nil
	}))
	rt.defineGlobal("tostring", nativeValue("tostring", func(args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Str(rt.tostring(arg(args, 0)))}, nil
	}))
	rt.defineGlobal("tonumber", nativeValue("tonumber", baseTonumber))
	rt.defineGlobal("pairs", nativeValue("pairs", rt.basePairs))
	rt.defineGlobal("ipairs", nativeValue("ipairs", rt.baseIpairs))
	rt.defineGlobal("next", nativeValue("next", baseNext))
	rt.defineGlobal("setmetatable", nativeValue("setmetatable", rt.baseSetmetatable))
	rt.defineGlobal("getmetatable", nativeValue("getmetatable", baseGetmetatable))
	rt.defineGlobal("rawget", nativeValue("rawget", baseRawget))
	rt.defineGlobal("rawset", nativeValue("rawset", baseRawset))
	rt.defineGlobal("rawequal", nativeValue("rawequal", func(args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Bool(value.RawEqual(arg(args, 0), arg(args, 1)))}, nil
	}))
	rt.defineGlobal("rawlen", nativeValue("rawlen", baseRawlen))
	rt.defineGlobal("assert", nativeValue("assert", rt.baseAssert))
	rt.defineGlobal("error", nativeValue("error", rt.baseError))
	rt.defineGlobal("pcall", nativeValue("pcall", func(args []value.Value) ([]value.Value, error) {
		if len(args) == 0 {
			return nil, errors.New(errors.CallError, "bad argument #1 to 'pcall' (value expected)")
		}
		return rt.Pcall(args[0], args[1:]), nil
	}))
	rt.defineGlobal("xpcall", nativeValue("xpcall", func(args []value.Value) ([]value.Value, error) {
		if len(args) < 2 {
			return nil, errors.New(errors.CallError, "bad argument #2 to 'xpcall' (value expected)")
		}
		return rt.Xpcall(args[0], args[1], args[2:]), nil
	}))
	rt.defineGlobal("select", nativeValue("select", baseSelect))
	rt.defineGlobal("unpack", nativeValue("unpack", baseUnpack))
	rt.defineGlobal("_VERSION", value.Str("Lumen 5.4"))

	rt.defineGlobal("coroutine", rt.coroutineLibrary())
	rt.defineGlobal("math", mathLibrary())
	rt.defineGlobal("string", rt.stringLibrary())
	rt.defineGlobal("table", rt.tableLibrary())
	rt.defineGlobal("os", rt.osLibrary())
	rt.defineGlobal("debug", rt.debugLibrary())
	rt.defineGlobal("require", nativeValue("require", rt.baseRequire))

	if rt.Cfg != nil && rt.Cfg.ScriptPath != "" {
		rt.defineGlobal("SCRIPT_PATH", value.Str(rt.Cfg.ScriptPath))
	}
}

// baseRequire implements the `require("a.b")` global wired to the
// module loader contract of spec.md §6; delegated entirely to
// rt.Loader (internal/loader) since path resolution and caching live
// there.
func (rt *Runtime) baseRequire(args []value.Value) ([]value.Value, error) {
	if len(args) == 0 || !args[0].IsString() {
		return nil, errors.New(errors.ModuleError, "bad argument #1 to 'require' (string expected)")
	}
	if rt.Loader == nil {
		return nil, errors.New(errors.ModuleError, "require() unavailable: no module loader configured")
	}
	v, err := rt.Loader.Require(args[0].AsString())
	if err != nil {
		if le, ok := err.(*errors.LumenError); ok {
			return nil, le
		}
		return nil, errors.New(errors.ModuleError, err.Error())
	}
	return []value.Value{v}, nil
}

func arg(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Nil
}

// ToDisplayString exposes the tostring()/print() formatting rules to
// other packages (the REPL's auto-print) without duplicating them.
func (rt *Runtime) ToDisplayString(v value.Value) string { return rt.tostring(v) }

func (rt *Runtime) tostring(v value.Value) string {
	if v.IsNumber() {
		return meta.NumberToString(v)
	}
	if v.IsString() {
		return v.AsString()
	}
	if v.IsNil() {
		return "nil"
	}
	if v.IsBool() {
		if v.AsBool() {
			return "true"
		}
		return "false"
	}
	if h := meta.Raw(v, "__tostring"); !h.IsNil() {
		if results, err := rt.CallNamed("__tostring", h, []value.Value{v}, errors.SourceLocation{}); err == nil && len(results) > 0 {
			return rt.tostring(results[0])
		}
	}
	return fmt.Sprintf("%s: %p", v.TypeName(), v.Ref())
}

func (rt *Runtime) basePrint(args []value.Value) ([]value.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = rt.tostring(a)
	}
	fmt.Println(strings.Join(parts, "\t"))
	return nil, nil
}

func baseTonumber(args []value.Value) ([]value.Value, error) {
	v := arg(args, 0)
	if v.IsNumber() {
		return []value.Value{v}, nil
	}
	if !v.IsString() {
		return []value.Value{value.Nil}, nil
	}
	s := strings.TrimSpace(v.AsString())
	base := arg(args, 1)
	if base.IsNumber() {
		i, err := strconv.ParseInt(s, int(base.AsInt()), 64)
		if err != nil {
			return []value.Value{value.Nil}, nil
		}
		return []value.Value{value.Int(i)}, nil
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return []value.Value{value.Int(i)}, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return []value.Value{value.Float(f)}, nil
	}
	return []value.Value{value.Nil}, nil
}

func (rt *Runtime) basePairs(args []value.Value) ([]value.Value, error) {
	t := arg(args, 0)
	if h := meta.Raw(t, "__pairs"); !h.IsNil() {
		return rt.CallNamed("__pairs", h, args, errors.SourceLocation{})
	}
	return []value.Value{nativeValue("next", baseNext), t, value.Nil}, nil
}

func (rt *Runtime) baseIpairs(args []value.Value) ([]value.Value, error) {
	t := arg(args, 0)
	iter := nativeValue("inext", func(a []value.Value) ([]value.Value, error) {
		tv, i := arg(a, 0), arg(a, 1).AsInt()+1
		v, err := meta.Index(tv, value.Int(i), rt.callerFunc(""))
		if err != nil {
			return nil, err
		}
		if v.IsNil() {
			return []value.Value{value.Nil}, nil
		}
		return []value.Value{value.Int(i), v}, nil
	})
	return []value.Value{iter, t, value.Int(0)}, nil
}

func baseNext(args []value.Value) ([]value.Value, error) {
	t := arg(args, 0)
	if !t.IsTable() {
		return nil, errors.New(errors.TypeError, "bad argument #1 to 'next' (table expected)")
	}
	k, v, ok := t.Ref().(*value.Table).Next(arg(args, 1))
	if !ok {
		return []value.Value{value.Nil}, nil
	}
	return []value.Value{k, v}, nil
}

// baseSetmetatable installs mv as t's metatable and, when mv carries a
// __gc entry, (re)arms t's finalizer so the collector's resurrection
// logic (spec.md §4.6/§9 Open Question (b)) has something to call;
// re-attaching a metatable with __gc after a prior finalization counts
// as fresh, per gc.Header.SetFinalizer.
func (rt *Runtime) baseSetmetatable(args []value.Value) ([]value.Value, error) {
	t := arg(args, 0)
	if !t.IsTable() {
		return nil, errors.New(errors.TypeError, "bad argument #1 to 'setmetatable' (table expected)")
	}
	tbl := t.Ref().(*value.Table)
	if existing := tbl.Metatable(); existing != nil && !meta.Raw(t, "__metatable").IsNil() {
		return nil, errors.New(errors.TypeError, "cannot change a protected metatable")
	}
	mv := arg(args, 1)
	if mv.IsNil() {
		tbl.SetMetatable(nil)
		tbl.SetFinalizeFunc(nil)
		return []value.Value{t}, nil
	}
	if !mv.IsTable() {
		return nil, errors.New(errors.TypeError, "bad argument #2 to 'setmetatable' (nil or table expected)")
	}
	tbl.SetMetatable(mv.Ref().(*value.Table))
	if handler, ok := meta.GCHandler(t); ok {
		tbl.SetFinalizeFunc(func(tt *value.Table) {
			_, _ = rt.callerFunc("<gc>")(handler, []value.Value{value.FromRef(value.KindTable, tt)})
		})
	} else {
		tbl.SetFinalizeFunc(nil)
	}
	return []value.Value{t}, nil
}

func baseGetmetatable(args []value.Value) ([]value.Value, error) {
	mt := meta.Metatable(arg(args, 0))
	if mt == nil {
		return []value.Value{value.Nil}, nil
	}
	if prot := mt.Get(value.Str("__metatable")); !prot.IsNil() {
		return []value.Value{prot}, nil
	}
	return []value.Value{mt.Value()}, nil
}

func baseRawget(args []value.Value) ([]value.Value, error) {
	t := arg(args, 0)
	if !t.IsTable() {
		return nil, errors.New(errors.TypeError, "bad argument #1 to 'rawget' (table expected)")
	}
	return []value.Value{t.Ref().(*value.Table).Get(arg(args, 1))}, nil
}

func baseRawset(args []value.Value) ([]value.Value, error) {
	t := arg(args, 0)
	if !t.IsTable() {
		return nil, errors.New(errors.TypeError, "bad argument #1 to 'rawset' (table expected)")
	}
	if err := t.Ref().(*value.Table).Set(arg(args, 1), arg(args, 2)); err != nil {
		return nil, err
	}
	return []value.Value{t}, nil
}

func baseRawlen(args []value.Value) ([]value.Value, error) {
	v := arg(args, 0)
	if v.IsString() {
		return []value.Value{value.Int(int64(len(v.AsString())))}, nil
	}
	if v.IsTable() {
		return []value.Value{value.Int(v.Ref().(*value.Table).Len())}, nil
	}
	return nil, errors.New(errors.TypeError, "table or string expected")
}

func (rt *Runtime) baseAssert(args []value.Value) ([]value.Value, error) {
	v := arg(args, 0)
	if v.Truthy() {
		return args, nil
	}
	msg := arg(args, 1)
	if msg.IsNil() {
		msg = value.Str("assertion failed!")
	}
	return nil, rt.ErrorValue(msg, 1)
}

func (rt *Runtime) baseError(args []value.Value) ([]value.Value, error) {
	level := int64(1)
	if lv := arg(args, 1); lv.IsNumber() {
		level = lv.AsInt()
	}
	return nil, rt.ErrorValue(arg(args, 0), level)
}

func baseSelect(args []value.Value) ([]value.Value, error) {
	sel := arg(args, 0)
	rest := args[1:]
	if sel.IsString() && sel.AsString() == "#" {
		return []value.Value{value.Int(int64(len(rest)))}, nil
	}
	if !sel.IsNumber() {
		return nil, errors.New(errors.TypeError, "bad argument #1 to 'select' (number expected)")
	}
	n := sel.AsInt()
	if n < 0 {
		n = int64(len(rest)) + n + 1
	}
	if n < 1 {
		return nil, errors.New(errors.CallError, "bad argument #1 to 'select' (index out of range)")
	}
	if int(n) > len(rest) {
		return nil, nil
	}
	return rest[n-1:], nil
}

func baseUnpack(args []value.Value) ([]value.Value, error) {
	t := arg(args, 0)
	if !t.IsTable() {
		return nil, errors.New(errors.TypeError, "bad argument #1 to 'unpack' (table expected)")
	}
	tbl := t.Ref().(*value.Table)
	i := int64(1)
	if iv := arg(args, 1); iv.IsNumber() {
		i = iv.AsInt()
	}
	j := tbl.Len()
	if jv := arg(args, 2); jv.IsNumber() {
		j = jv.AsInt()
	}
	var out []value.Value
	for ; i <= j; i++ {
		out = append(out, tbl.Get(value.Int(i)))
	}
	return out, nil
}

func mathLibrary() value.Value {
	t := value.NewTable()
	set := func(name string, fn callable.Native) { _ = t.Set(value.Str(name), nativeValue("math."+name, fn)) }
	_ = t.Set(value.Str("pi"), value.Float(math.Pi))
	_ = t.Set(value.Str("huge"), value.Float(math.Inf(1)))
	_ = t.Set(value.Str("maxinteger"), value.Int(math.MaxInt64))
	_ = t.Set(value.Str("mininteger"), value.Int(math.MinInt64))
	unary := func(f func(float64) float64) callable.Native {
		return func(args []value.Value) ([]value.Value, error) {
			return []value.Value{value.Float(f(arg(args, 0).AsNumber()))}, nil
		}
	}
	set("sqrt", unary(math.Sqrt))
	set("sin", unary(math.Sin))
	set("cos", unary(math.Cos))
	set("exp", unary(math.Exp))
	set("log", func(args []value.Value) ([]value.Value, error) {
		x := arg(args, 0).AsNumber()
		if b := arg(args, 1); b.IsNumber() {
			return []value.Value{value.Float(math.Log(x) / math.Log(b.AsNumber()))}, nil
		}
		return []value.Value{value.Float(math.Log(x))}, nil
	})
	set("floor", func(args []value.Value) ([]value.Value, error) {
		v := arg(args, 0)
		if v.IsInt() {
			return []value.Value{v}, nil
		}
		return []value.Value{value.Int(int64(math.Floor(v.AsNumber())))}, nil
	})
	set("ceil", func(args []value.Value) ([]value.Value, error) {
		v := arg(args, 0)
		if v.IsInt() {
			return []value.Value{v}, nil
		}
		return []value.Value{value.Int(int64(math.Ceil(v.AsNumber())))}, nil
	})
	set("abs", func(args []value.Value) ([]value.Value, error) {
		v := arg(args, 0)
		if v.IsInt() {
			n := v.AsInt()
			if n < 0 {
				n = -n
			}
			return []value.Value{value.Int(n)}, nil
		}
		return []value.Value{value.Float(math.Abs(v.AsNumber()))}, nil
	})
	set("max", func(args []value.Value) ([]value.Value, error) { return []value.Value{extremum(args, false)}, nil })
	set("min", func(args []value.Value) ([]value.Value, error) { return []value.Value{extremum(args, true)}, nil })
	set("tointeger", func(args []value.Value) ([]value.Value, error) {
		v := arg(args, 0)
		if v.IsInt() {
			return []value.Value{v}, nil
		}
		if v.IsFloat() {
			f := v.AsFloat()
			if i := int64(f); float64(i) == f {
				return []value.Value{value.Int(i)}, nil
			}
		}
		return []value.Value{value.Nil}, nil
	})
	set("type", func(args []value.Value) ([]value.Value, error) {
		v := arg(args, 0)
		switch {
		case v.IsInt():
			return []value.Value{value.Str("integer")}, nil
		case v.IsFloat():
			return []value.Value{value.Str("float")}, nil
		default:
			return []value.Value{value.Nil}, nil
		}
	})
	return t.Value()
}

func extremum(args []value.Value, wantMin bool) value.Value {
	if len(args) == 0 {
		return value.Nil
	}
	best := args[0]
	for _, v := range args[1:] {
		less := v.AsNumber() < best.AsNumber()
		if less == wantMin {
			best = v
		}
	}
	return best
}

func (rt *Runtime) stringLibrary() value.Value {
	t := value.NewTable()
	set := func(name string, fn callable.Native) { _ = t.Set(value.Str(name), nativeValue("string."+name, fn)) }
	set("len", func(args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Int(int64(len(arg(args, 0).AsString())))}, nil
	})
	set("upper", func(args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Str(strings.ToUpper(arg(args, 0).AsString()))}, nil
	})
	set("lower", func(args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Str(strings.ToLower(arg(args, 0).AsString()))}, nil
	})
	set("rep", func(args []value.Value) ([]value.Value, error) {
		n := int(arg(args, 1).AsInt())
		if n < 0 {
			n = 0
		}
		return []value.Value{value.Str(strings.Repeat(arg(args, 0).AsString(), n))}, nil
	})
	set("reverse", func(args []value.Value) ([]value.Value, error) {
		s := []byte(arg(args, 0).AsString())
		for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
			s[i], s[j] = s[j], s[i]
		}
		return []value.Value{value.Str(string(s))}, nil
	})
	set("sub", func(args []value.Value) ([]value.Value, error) {
		s := arg(args, 0).AsString()
		i := normIndex(arg(args, 1).AsInt(), len(s))
		j := len(s)
		if jv := arg(args, 2); jv.IsNumber() {
			j = normIndexEnd(jv.AsInt(), len(s))
		}
		if i < 1 {
			i = 1
		}
		if j > len(s) {
			j = len(s)
		}
		if i > j {
			return []value.Value{value.Str("")}, nil
		}
		return []value.Value{value.Str(s[i-1 : j])}, nil
	})
	set("byte", func(args []value.Value) ([]value.Value, error) {
		s := arg(args, 0).AsString()
		i := int64(1)
		if iv := arg(args, 1); iv.IsNumber() {
			i = iv.AsInt()
		}
		idx := normIndex(i, len(s))
		if idx < 1 || idx > len(s) {
			return nil, nil
		}
		return []value.Value{value.Int(int64(s[idx-1]))}, nil
	})
	set("char", func(args []value.Value) ([]value.Value, error) {
		b := make([]byte, len(args))
		for i, a := range args {
			b[i] = byte(a.AsInt())
		}
		return []value.Value{value.Str(string(b))}, nil
	})
	set("format", func(args []value.Value) ([]value.Value, error) { return rt.stringFormat(args) })
	set("find", func(args []value.Value) ([]value.Value, error) {
		s, pat := arg(args, 0).AsString(), arg(args, 1).AsString()
		idx := strings.Index(s, pat)
		if idx < 0 {
			return []value.Value{value.Nil}, nil
		}
		return []value.Value{value.Int(int64(idx + 1)), value.Int(int64(idx + len(pat)))}, nil
	})
	return t.Value()
}

func normIndex(i int64, l int) int {
	if i < 0 {
		i = int64(l) + i + 1
	}
	return int(i)
}

func normIndexEnd(i int64, l int) int {
	if i < 0 {
		i = int64(l) + i + 1
	}
	return int(i)
}

func (rt *Runtime) stringFormat(args []value.Value) ([]value.Value, error) {
	spec := arg(args, 0).AsString()
	rest := args[1:]
	var sb strings.Builder
	ai := 0
	for i := 0; i < len(spec); i++ {
		c := spec[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(spec) && strings.IndexByte("-+ #0123456789.", spec[j]) >= 0 {
			j++
		}
		if j >= len(spec) {
			sb.WriteByte(c)
			break
		}
		verb := spec[j]
		flags := spec[i : j+1]
		i = j
		if verb == '%' {
			sb.WriteByte('%')
			continue
		}
		var a value.Value
		if ai < len(rest) {
			a = rest[ai]
			ai++
		}
		switch verb {
		case 'd', 'i', 'o', 'x', 'X', 'c':
			fmt.Fprintf(&sb, strings.Replace(flags, string(verb), string(verb), 1), a.AsInt())
		case 'f', 'F', 'g', 'G', 'e', 'E':
			fmt.Fprintf(&sb, flags, a.AsNumber())
		case 's':
			fmt.Fprintf(&sb, flags, rt.tostring(a))
		case 'q':
			sb.WriteString(strconv.Quote(rt.tostring(a)))
		default:
			sb.WriteString(flags)
		}
	}
	return []value.Value{value.Str(sb.String())}, nil
}

func (rt *Runtime) tableLibrary() value.Value {
	t := value.NewTable()
	set := func(name string, fn callable.Native) { _ = t.Set(value.Str(name), nativeValue("table."+name, fn)) }
	set("insert", func(args []value.Value) ([]value.Value, error) {
		tv := arg(args, 0)
		if !tv.IsTable() {
			return nil, errors.New(errors.TypeError, "bad argument #1 to 'insert' (table expected)")
		}
		tbl := tv.Ref().(*value.Table)
		n := tbl.Len()
		if len(args) >= 3 {
			pos := args[1].AsInt()
			for i := n; i >= pos; i-- {
				_ = tbl.Set(value.Int(i+1), tbl.Get(value.Int(i)))
			}
			_ = tbl.Set(value.Int(pos), args[2])
		} else {
			_ = tbl.Set(value.Int(n+1), arg(args, 1))
		}
		return nil, nil
	})
	set("remove", func(args []value.Value) ([]value.Value, error) {
		tv := arg(args, 0)
		if !tv.IsTable() {
			return nil, errors.New(errors.TypeError, "bad argument #1 to 'remove' (table expected)")
		}
		tbl := tv.Ref().(*value.Table)
		n := tbl.Len()
		pos := n
		if pv := arg(args, 1); pv.IsNumber() {
			pos = pv.AsInt()
		}
		if n == 0 {
			return []value.Value{value.Nil}, nil
		}
		removed := tbl.Get(value.Int(pos))
		for i := pos; i < n; i++ {
			_ = tbl.Set(value.Int(i), tbl.Get(value.Int(i+1)))
		}
		_ = tbl.Set(value.Int(n), value.Nil)
		return []value.Value{removed}, nil
	})
	set("concat", func(args []value.Value) ([]value.Value, error) {
		tv := arg(args, 0)
		if !tv.IsTable() {
			return nil, errors.New(errors.TypeError, "bad argument #1 to 'concat' (table expected)")
		}
		tbl := tv.Ref().(*value.Table)
		sep := ""
		if sv := arg(args, 1); sv.IsString() {
			sep = sv.AsString()
		}
		i, j := int64(1), tbl.Len()
		if iv := arg(args, 2); iv.IsNumber() {
			i = iv.AsInt()
		}
		if jv := arg(args, 3); jv.IsNumber() {
			j = jv.AsInt()
		}
		var parts []string
		for ; i <= j; i++ {
			v := tbl.Get(value.Int(i))
			if v.IsString() {
				parts = append(parts, v.AsString())
			} else {
				parts = append(parts, meta.NumberToString(v))
			}
		}
		return []value.Value{value.Str(strings.Join(parts, sep))}, nil
	})
	set("unpack", baseUnpack)
	set("pack", func(args []value.Value) ([]value.Value, error) {
		out := value.NewTable()
		for i, v := range args {
			_ = out.Set(value.Int(int64(i+1)), v)
		}
		_ = out.Set(value.Str("n"), value.Int(int64(len(args))))
		return []value.Value{out.Value()}, nil
	})
	set("sort", func(args []value.Value) ([]value.Value, error) {
		tv := arg(args, 0)
		if !tv.IsTable() {
			return nil, errors.New(errors.TypeError, "bad argument #1 to 'sort' (table expected)")
		}
		tbl := tv.Ref().(*value.Table)
		n := int(tbl.Len())
		items := make([]value.Value, n)
		for i := 0; i < n; i++ {
			items[i] = tbl.Get(value.Int(int64(i + 1)))
		}
		cmp := arg(args, 1)
		var sortErr error
		sort.SliceStable(items, func(a, b int) bool {
			if sortErr != nil {
				return false
			}
			if cmp.IsNil() {
				v, err := meta.BinaryOp("<", items[a], items[b], nil)
				if err != nil {
					sortErr = err
					return false
				}
				return v.Truthy()
			}
			results, err := rt.CallNamed("table.sort comparator", cmp, []value.Value{items[a], items[b]}, errors.SourceLocation{})
			if err != nil {
				sortErr = err
				return false
			}
			return len(results) > 0 && results[0].Truthy()
		})
		if sortErr != nil {
			return nil, sortErr
		}
		for i, v := range items {
			_ = tbl.Set(value.Int(int64(i+1)), v)
		}
		return nil, nil
	})
	return t.Value()
}

func (rt *Runtime) osLibrary() value.Value {
	t := value.NewTable()
	_ = t.Set(value.Str("time"), nativeValue("os.time", func(args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Int(rt.Clock.UnixNow())}, nil
	}))
	_ = t.Set(value.Str("clock"), nativeValue("os.clock", func(args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Float(rt.Clock.Monotonic())}, nil
	}))
	return t.Value()
}

// debugLibrary exposes debug.traceback, rendering the active call
// stack (rt.Trace) the same way a caught LumenError renders its own
// trace, grounded on errors.LumenError.Traceback's frame formatting.
func (rt *Runtime) debugLibrary() value.Value {
	t := value.NewTable()
	_ = t.Set(value.Str("traceback"), nativeValue("debug.traceback", func(args []value.Value) ([]value.Value, error) {
		msg := ""
		if len(args) > 0 && args[0].IsString() {
			msg = args[0].AsString()
		}
		var sb strings.Builder
		if msg != "" {
			sb.WriteString(msg)
			sb.WriteString("\n")
		}
		sb.WriteString("stack traceback:")
		for _, f := range rt.Trace() {
			sb.WriteString("\n\t")
			sb.WriteString(f.String())
		}
		return []value.Value{value.Str(sb.String())}, nil
	}))
	return t.Value()
}

func (rt *Runtime) coroutineLibrary() value.Value {
	t := value.NewTable()
	set := func(name string, fn callable.Native) { _ = t.Set(value.Str(name), nativeValue("coroutine."+name, fn)) }
	set("create", func(args []value.Value) ([]value.Value, error) {
		fn := arg(args, 0)
		if !fn.IsFunction() {
			return nil, errors.New(errors.TypeError, "bad argument #1 to 'create' (function expected)")
		}
		return []value.Value{rt.NewCoroutine(fn).Value()}, nil
	})
	set("resume", func(args []value.Value) ([]value.Value, error) {
		cv := arg(args, 0)
		if !cv.IsCoroutine() {
			return nil, errors.New(errors.TypeError, "bad argument #1 to 'resume' (coroutine expected)")
		}
		ok, results := rt.Resume(cv.Ref().(*Coroutine), args[1:])
		return append([]value.Value{value.Bool(ok)}, results...), nil
	})
	set("yield", func(args []value.Value) ([]value.Value, error) { return rt.Yield(args) })
	set("status", func(args []value.Value) ([]value.Value, error) {
		cv := arg(args, 0)
		if !cv.IsCoroutine() {
			return nil, errors.New(errors.TypeError, "bad argument #1 to 'status' (coroutine expected)")
		}
		return []value.Value{value.Str(cv.Ref().(*Coroutine).Status().String())}, nil
	})
	set("close", func(args []value.Value) ([]value.Value, error) {
		cv := arg(args, 0)
		if !cv.IsCoroutine() {
			return nil, errors.New(errors.TypeError, "bad argument #1 to 'close' (coroutine expected)")
		}
		if err := rt.Close(cv.Ref().(*Coroutine)); err != nil {
			return []value.Value{value.Bool(false), errorToValue(asLumenErr(err))}, nil
		}
		return []value.Value{value.Bool(true)}, nil
	})
	set("isyieldable", func(args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Bool(rt.current != rt.main)}, nil
	})
	set("running", func(args []value.Value) ([]value.Value, error) {
		if rt.current == rt.main {
			return []value.Value{value.Nil, value.Bool(true)}, nil
		}
		return []value.Value{rt.current.Value(), value.Bool(false)}, nil
	})
	set("wrap", func(args []value.Value) ([]value.Value, error) {
		fn := arg(args, 0)
		if !fn.IsFunction() {
			return nil, errors.New(errors.TypeError, "bad argument #1 to 'wrap' (function expected)")
		}
		co := rt.NewCoroutine(fn)
		wrapped := nativeValue("wrapped coroutine", func(wargs []value.Value) ([]value.Value, error) {
			ok, results := rt.Resume(co, wargs)
			if !ok {
				return nil, valueToLumenErr(arg(results, 0))
			}
			return results, nil
		})
		return []value.Value{wrapped}, nil
	})
	return t.Value()
}
