// Coroutine scheduler: symmetric create/resume/yield/close/wrap,
// implemented as cooperative goroutines handed off over unbuffered
// channels so exactly one is ever actually running (spec.md §4.5) —
// grounded on the channel-handshake idiom the pack's gorilla/websocket
// read/write pump pattern uses for single-owner access to a connection,
// adapted here so "owner" is "whichever coroutine currently holds the
// baton" rather than a socket.
package interp

import (
	"fmt"

	"lumen/internal/env"
	"lumen/internal/errors"
	"lumen/internal/gc"
	"lumen/internal/value"
)

type Status int

const (
	StatusSuspended Status = iota
	StatusRunning
	StatusNormal
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusSuspended:
		return "suspended"
	case StatusRunning:
		return "running"
	case StatusNormal:
		return "normal"
	default:
		return "dead"
	}
}

type coroMsg struct {
	done bool
	vals []value.Value
	err  error
}

// Coroutine is spec.md §3's suspended-execution value: an entry
// function, a status, and enough private state (its own goroutine,
// parked at a channel receive while suspended) to resume.
type Coroutine struct {
	hdr    gc.Header
	fn     value.Value
	status Status
	parent *Coroutine

	activeFrame *env.Frame // innermost live frame, for GC rooting and close()

	started  bool
	resumeCh chan []value.Value
	yieldCh  chan coroMsg
}

func newMainCoroutine(rt *Runtime) *Coroutine {
	co := &Coroutine{status: StatusRunning}
	rt.Heap.Register(co)
	return co
}

// NewCoroutine implements `coroutine.create(f)`.
func (rt *Runtime) NewCoroutine(fn value.Value) *Coroutine {
	co := &Coroutine{
		fn:       fn,
		status:   StatusSuspended,
		resumeCh: make(chan []value.Value),
		yieldCh:  make(chan coroMsg),
	}
	rt.Heap.Register(co)
	return co
}

func (co *Coroutine) GCHeader() *gc.Header { return &co.hdr }

func (co *Coroutine) References(visit func(gc.Collectable)) {
	if r := co.fn.Ref(); r != nil {
		visit(r)
	}
	if co.activeFrame != nil {
		visit(co.activeFrame)
	}
}

func (co *Coroutine) Finalize() {}

func (co *Coroutine) Value() value.Value { return value.FromRef(value.KindCoroutine, co) }

func (co *Coroutine) Status() Status { return co.status }

var _ gc.Collectable = (*Coroutine)(nil)

// Resume implements `coroutine.resume(co, ...)`: transfers control to
// co, delivering args to its last yield point (or the entry function
// on first resume), and blocks until co yields or completes.
func (rt *Runtime) Resume(co *Coroutine, args []value.Value) (bool, []value.Value) {
	if co == rt.main {
		return false, []value.Value{value.Str("cannot resume the main coroutine")}
	}
	if co.status != StatusSuspended {
		return false, []value.Value{value.Str(fmt.Sprintf("cannot resume %s coroutine", co.status))}
	}

	prev := rt.current
	prev.status = StatusNormal
	co.status = StatusRunning
	co.parent = prev
	rt.current = co

	if !co.started {
		co.started = true
		go func() {
			results, err := rt.CallNamed("coroutine", co.fn, args, errors.SourceLocation{})
			co.yieldCh <- coroMsg{done: true, vals: results, err: err}
		}()
	} else {
		co.resumeCh <- args
	}

	msg := <-co.yieldCh
	rt.current = prev
	prev.status = StatusRunning

	if msg.done {
		co.status = StatusDead
		if msg.err != nil {
			return false, []value.Value{errorToValue(asLumenErr(msg.err))}
		}
		return true, msg.vals
	}
	co.status = StatusSuspended
	return true, msg.vals
}

// Yield implements `coroutine.yield(...)`: suspends the running
// coroutine, handing vals to the pending resume call, and blocks until
// the next resume delivers its arguments.
func (rt *Runtime) Yield(vals []value.Value) ([]value.Value, error) {
	co := rt.current
	if co == rt.main {
		return nil, errors.New(errors.CoroutineError, "attempt to yield from outside a coroutine")
	}
	co.yieldCh <- coroMsg{vals: vals}
	return <-co.resumeCh, nil
}

// Close implements `coroutine.close(co)`: runs to-be-closed bindings
// of the coroutine's suspended frame chain in reverse order, then
// marks it dead.
func (rt *Runtime) Close(co *Coroutine) error {
	if co.status == StatusDead {
		return nil
	}
	if co.status != StatusSuspended {
		return errors.New(errors.CoroutineError, fmt.Sprintf("cannot close a %s coroutine", co.status))
	}
	var firstErr *errors.LumenError
	for f := co.activeFrame; f != nil && f != rt.Globals; f = f.Parent() {
		if lerr := rt.closeScope(f, "", nil); lerr != nil && firstErr == nil {
			firstErr = lerr
		}
	}
	co.status = StatusDead
	if firstErr != nil {
		return firstErr
	}
	return nil
}
