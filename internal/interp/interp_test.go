package interp_test

import (
	"testing"

	"github.com/kr/pretty"

	"lumen/internal/config"
	"lumen/internal/interp"
	"lumen/internal/logging"
	"lumen/internal/value"
)

func newTestRuntime() *interp.Runtime {
	cfg := config.Default()
	return interp.New(&cfg, logging.Discard())
}

func mustRun(t *testing.T, rt *interp.Runtime, src string) []value.Value {
	t.Helper()
	vs, err := rt.EvaluateSource(src, "<test>")
	if err != nil {
		t.Fatalf("EvaluateSource(%q): %v", src, err)
	}
	return vs
}

// spec.md §8 scenario 1: numeric for with float step.
func TestNumericForFloatStep(t *testing.T) {
	rt := newTestRuntime()
	vs := mustRun(t, rt, `
		local out = {}
		for i = 1, 3, 0.5 do
			out[#out+1] = i
		end
		return out
	`)
	tbl := vs[0].Ref().(*value.Table)
	want := []float64{1, 1.5, 2, 2.5, 3}
	if int(tbl.Len()) != len(want) {
		t.Fatalf("len = %d, want %d", tbl.Len(), len(want))
	}
	for i, w := range want {
		got := tbl.Get(value.Int(int64(i + 1)))
		if !got.IsFloat() || got.AsFloat() != w {
			t.Errorf("out[%d] = %v, want %v", i+1, got, w)
		}
	}
}

// spec.md §8 scenario 2: __index fallback vs rawget.
func TestIndexFallback(t *testing.T) {
	rt := newTestRuntime()
	vs := mustRun(t, rt, `
		local t = setmetatable({}, {__index = function(_, k) return "k:"..k end})
		return t.foo, rawget(t, "foo")
	`)
	if !vs[0].IsString() || vs[0].AsString() != "k:foo" {
		t.Errorf("t.foo = %v, want k:foo", vs[0])
	}
	if !vs[1].IsNil() {
		t.Errorf("rawget(t,\"foo\") = %v, want nil", vs[1])
	}
}

// spec.md §8 scenario 3: closures capture a fresh binding per loop
// iteration.
func TestClosureOverLoopVariable(t *testing.T) {
	rt := newTestRuntime()
	vs := mustRun(t, rt, `
		local fs = {}
		for i = 1, 3 do
			fs[i] = function() return i end
		end
		return fs[1](), fs[2](), fs[3]()
	`)
	for i, want := range []int64{1, 2, 3} {
		if !vs[i].IsInt() || vs[i].AsInt() != want {
			t.Errorf("fs[%d]() = %v, want %d", i+1, vs[i], want)
		}
	}
}

// spec.md §8 scenario 4: pcall with a table error object.
func TestPcallErrorObject(t *testing.T) {
	rt := newTestRuntime()
	vs := mustRun(t, rt, `
		local ok, err = pcall(function() error({code = 7}) end)
		return ok, err.code
	`)
	if vs[0].Truthy() {
		t.Errorf("ok = %v, want false", vs[0])
	}
	if !vs[1].IsInt() || vs[1].AsInt() != 7 {
		t.Errorf("err.code = %v, want 7", vs[1])
	}
}

// spec.md §8 scenario 5: coroutine ping-pong round trip.
func TestCoroutinePingPong(t *testing.T) {
	rt := newTestRuntime()
	vs := mustRun(t, rt, `
		local co = coroutine.create(function(a)
			local b = coroutine.yield(a + 1)
			return b * 2
		end)
		local ok1, v1 = coroutine.resume(co, 10)
		local ok2, v2 = coroutine.resume(co, 5)
		return ok1, v1, ok2, v2
	`)
	if !vs[0].Truthy() || vs[1].AsInt() != 11 {
		t.Errorf("first resume = (%v, %v), want (true, 11)", vs[0], vs[1])
	}
	if !vs[2].Truthy() || vs[3].AsInt() != 10 {
		t.Errorf("second resume = (%v, %v), want (true, 10)", vs[2], vs[3])
	}
}

// spec.md §8 scenario 6 / §7: to-be-closed bindings close in reverse
// declaration order, and a closer's own error doesn't suppress the
// others running.
func TestToBeClosedReverseOrder(t *testing.T) {
	rt := newTestRuntime()
	vs := mustRun(t, rt, `
		local order = {}
		local function closer(name, fails)
			return setmetatable({}, {__close = function()
				order[#order+1] = name
				if fails then error("boom from "..name) end
			end})
		end
		local ok, err = pcall(function()
			local a <close> = closer("a", false)
			local b <close> = closer("b", true)
			local c <close> = closer("c", false)
		end)
		return ok, order[1], order[2], order[3]
	`)
	if vs[0].Truthy() {
		t.Errorf("ok = %v, want false (b's closer errors)", vs[0])
	}
	if vs[1].AsString() != "c" || vs[2].AsString() != "b" || vs[3].AsString() != "a" {
		t.Errorf("close order = %v,%v,%v, want c,b,a", vs[1], vs[2], vs[3])
	}
}

// spec.md §8: const violation raises, and the originally assigned
// value remains observable.
func TestConstViolation(t *testing.T) {
	rt := newTestRuntime()
	vs := mustRun(t, rt, `
		local x <const> = 5
		local ok = pcall(function() x = 6 end)
		return ok, x
	`)
	if vs[0].Truthy() {
		t.Error("assigning to a <const> local should fail")
	}
	if !vs[1].IsInt() || vs[1].AsInt() != 5 {
		t.Errorf("x = %v, want 5", vs[1])
	}
}

// spec.md §3 invariant (a): integer and float tags compare equal when
// numerically equal, and integer addition wraps.
func TestIntFloatEqualityAndWrap(t *testing.T) {
	rt := newTestRuntime()
	vs := mustRun(t, rt, `
		local eq = (1 == 1.0)
		local wrapped = math.maxinteger + 1
		return eq, wrapped == math.mininteger
	`)
	if !vs[0].Truthy() {
		t.Error("1 == 1.0 should be true")
	}
	if !vs[1].Truthy() {
		t.Error("math.maxinteger + 1 should wrap to math.mininteger")
	}
}

// spec.md §3 invariant (b): NaN is never equal to itself.
func TestNaNNotEqualToItself(t *testing.T) {
	rt := newTestRuntime()
	vs := mustRun(t, rt, `
		local nan = 0/0
		return nan == nan
	`)
	if vs[0].Truthy() {
		t.Error("NaN == NaN should be false")
	}
}

// spec.md §8: a `__len` metamethod takes precedence over the raw
// table border.
func TestLenMetamethod(t *testing.T) {
	rt := newTestRuntime()
	vs := mustRun(t, rt, `
		local t = setmetatable({1,2,3}, {__len = function() return 99 end})
		return #t
	`)
	if !vs[0].IsInt() || vs[0].AsInt() != 99 {
		t.Errorf("#t = %v, want 99", vs[0])
	}
}

// A generic-for loop over ipairs binds each index/value pair in order.
func TestGenericForWithIpairs(t *testing.T) {
	rt := newTestRuntime()
	vs := mustRun(t, rt, `
		local sum = 0
		for i, v in ipairs({10, 20, 30}) do
			sum = sum + v
		end
		return sum
	`)
	if !vs[0].IsInt() || vs[0].AsInt() != 60 {
		t.Errorf("sum = %v, want 60", vs[0])
	}
}

// spec.md §3: a table constructor stores each named field under its
// key; the scalar fields x and z are compared, the nested table y is not.
func TestTableConstructorShape(t *testing.T) {
	rt := newTestRuntime()
	vs := mustRun(t, rt, `
		return {x = 1, y = {2, 3}, z = "ok"}
	`)
	tbl := vs[0].Ref().(*value.Table)
	want := map[string]any{"x": int64(1), "z": "ok"}
	got := map[string]any{}
	for _, k := range tbl.Keys() {
		v := tbl.Get(k)
		switch {
		case v.IsInt():
			got[k.AsString()] = v.AsInt()
		case v.IsString():
			got[k.AsString()] = v.AsString()
		}
	}
	if diff := pretty.Diff(want, got); len(diff) > 0 {
		t.Errorf("table shape mismatch: %v", diff)
	}
}
