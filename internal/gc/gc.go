// Package gc implements the two-generation mark & sweep collector used by
// the evaluator: new heap values are born young, promoted to old on
// surviving one minor collection, and reclaimed when unreachable.
package gc

import "lumen/internal/logging"

// Generation partitions the heap the way young objects are nursed and
// promoted once they survive a minor collection.
type Generation uint8

const (
	Young Generation = iota
	Old
)

// Header is embedded by every heap-allocated value (tables, closures,
// userdata, coroutines). It carries the bookkeeping the collector needs
// without requiring a central object table.
type Header struct {
	marked      bool
	gen         Generation
	hasFinalizer bool
	finalized   bool
	toFinalize  bool
	next        *Header
}

func (h *Header) Gen() Generation   { return h.gen }
func (h *Header) Marked() bool      { return h.marked }
func (h *Header) Finalized() bool   { return h.finalized }

// SetFinalizer marks the owning object as carrying a __gc metamethod;
// the collector resurrects such objects for one extra cycle instead of
// freeing them outright. Attaching a finalizer (including re-attaching
// one after a previous finalization) re-arms it for another run.
func (h *Header) SetFinalizer(v bool) {
	h.hasFinalizer = v
	if v {
		h.finalized = false
	}
}

// Collectable is implemented by every heap value the GC manages.
type Collectable interface {
	GCHeader() *Header
	// References enumerates every heap value directly reachable from
	// this one (table entries/metatable, closure upvalues/captured
	// frame, userdata's metatable, coroutine's live frames).
	References(visit func(Collectable))
	// Finalize runs the value's __gc handler, if any, inside a
	// protected call. Errors are reported through the logger and
	// discarded, matching spec.md §4.6/§7.
	Finalize()
}

// WeakTable is implemented by tables so the major collector can apply
// ephemeron convergence and weak-entry clearing to them.
type WeakTable interface {
	Collectable
	WeakMode() (weakKeys, weakValues bool)
	// ClearUnmarked drops entries whose key/value side is unmarked per
	// the table's weak mode; markValue is invoked for any value whose
	// key survived so the value can be pulled into the live set.
	ClearUnmarked(isMarked func(Collectable) bool, markValue func(Collectable))
}

// Credits approximate the allocation cost of an object for scheduling
// purposes: a fixed per-object overhead plus a per-entry cost for
// tables and per-binding cost for environment frames.
type Credits int64

const (
	BaseCredit    Credits = 8
	TableEntryCost Credits = 4
	BindingCost   Credits = 4
)

// Roots supplies the collector with the live root set at collection
// time: the environment chain, call stack frames, the evaluation
// stack and the set of active coroutines (spec.md §4.6).
type Roots func() []Collectable

// Heap owns the young/old generations and drives minor/major cycles.
type Heap struct {
	young []Collectable
	old   []Collectable
	weak  []WeakTable

	roots Roots
	log   *logging.Logger

	creditsSinceMinor Credits
	creditsSinceMajor Credits
	minorBaseline     Credits
	majorBaseline     Credits

	MinorMultiplier int // percent, default 100, max 200
	MajorMultiplier int // percent, default 100, max 1000

	stopped bool

	// EphemeronLimit bounds ephemeron convergence iterations so a
	// pathological weak-key graph can't spin forever (spec.md §7).
	EphemeronLimit int
}

// NewHeap constructs a heap with the spec's default scheduling
// multipliers.
func NewHeap(roots Roots, log *logging.Logger) *Heap {
	return &Heap{
		roots:           roots,
		log:             log,
		MinorMultiplier: 100,
		MajorMultiplier: 100,
		EphemeronLimit:  10000,
	}
}

// Register adds a newly allocated value to the young generation. The
// allocation points in env, callable and interp call this; tables built
// directly with value.NewTable are not registered.
func (h *Heap) Register(c Collectable) {
	hdr := c.GCHeader()
	hdr.gen = Young
	h.young = append(h.young, c)
	h.creditsSinceMinor += BaseCredit
	h.creditsSinceMajor += BaseCredit
	h.maybeCollect()
}

// RegisterWeak additionally tracks a table so major collections can
// process its weak mode.
func (h *Heap) RegisterWeak(t WeakTable) {
	h.weak = append(h.weak, t)
}

// AddCredits lets callers (table inserts, frame declarations) charge
// additional allocation cost toward the GC schedule.
func (h *Heap) AddCredits(c Credits) {
	h.creditsSinceMinor += c
	h.creditsSinceMajor += c
	h.maybeCollect()
}

// Stop suspends automatic collection; Restart resumes it.
func (h *Heap) Stop()    { h.stopped = true }
func (h *Heap) Restart() { h.stopped = false }

func (h *Heap) maybeCollect() {
	if h.stopped {
		return
	}
	minorThreshold := h.minorBaseline + h.minorBaseline*Credits(min(h.MinorMultiplier, 200))/100
	if h.minorBaseline == 0 {
		minorThreshold = 64
	}
	if h.creditsSinceMinor > minorThreshold {
		h.MinorCollect()
	}
	majorThreshold := h.majorBaseline + h.majorBaseline*Credits(min(h.MajorMultiplier, 1000))/100
	if h.majorBaseline == 0 {
		majorThreshold = 512
	}
	if h.creditsSinceMajor > majorThreshold {
		h.MajorCollect()
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Step performs a bounded amount of incremental work. Lumen's collector
// is stop-the-world, so Step(n) with n>0 simply triggers one minor
// collection, matching the "may be called to perform incremental work"
// contract of spec.md §4.6 without pretending to be incremental.
func (h *Heap) Step(n int) {
	if n <= 0 {
		return
	}
	h.MinorCollect()
}

// MinorCollect marks reachable young objects from the true root set
// plus, conservatively, every old-generation object (obviating a write
// barrier, per spec.md §4.6). Survivors are promoted; the rest are
// freed.
func (h *Heap) MinorCollect() {
	for _, y := range h.young {
		y.GCHeader().marked = false
	}

	var markYoung func(c Collectable)
	markYoung = func(c Collectable) {
		if c == nil {
			return
		}
		hdr := c.GCHeader()
		if hdr.gen == Old {
			return
		}
		if hdr.marked {
			return
		}
		hdr.marked = true
		c.References(markYoung)
	}

	for _, r := range h.roots() {
		markYoung(r)
	}
	for _, o := range h.old {
		o.References(markYoung)
	}

	for _, y := range h.young {
		hdr := y.GCHeader()
		if hdr.marked {
			hdr.gen = Old
			h.old = append(h.old, y)
			continue
		}
		h.free(y)
	}
	h.young = nil

	h.minorBaseline = h.creditsSinceMinor
	h.creditsSinceMinor = 0
}

// MajorCollect performs a full mark, ephemeron convergence over
// weak-keyed tables, weak-entry clearing, finalizer resurrection and a
// final sweep, in the order spec.md §7/§9 mandates: clearing happens
// before finalizers run so finalizers observe a consistent view.
func (h *Heap) MajorCollect() {
	all := append(append([]Collectable{}, h.young...), h.old...)
	for _, o := range all {
		o.GCHeader().marked = false
	}

	isMarked := func(c Collectable) bool {
		if c == nil {
			return true
		}
		return c.GCHeader().marked
	}

	var mark func(c Collectable)
	mark = func(c Collectable) {
		if c == nil {
			return
		}
		hdr := c.GCHeader()
		if hdr.marked {
			return
		}
		hdr.marked = true
		c.References(mark)
	}

	for _, r := range h.roots() {
		mark(r)
	}

	// (1) Ephemeron convergence: for every weak-keys table whose key is
	// marked, mark the value; repeat until no change, bounded.
	for i := 0; i < h.EphemeronLimit; i++ {
		changed := false
		for _, w := range h.weak {
			wk, _ := w.WeakMode()
			if !wk {
				continue
			}
			if !isMarked(w) {
				continue
			}
			w.ClearUnmarked(isMarked, func(v Collectable) {
				if v != nil && !v.GCHeader().marked {
					mark(v)
					changed = true
				}
			})
		}
		if !changed {
			break
		}
		if i == h.EphemeronLimit-1 {
			h.log.Warn("ephemeron convergence exceeded safety limit; abandoning major collection")
			return
		}
	}

	// (2) Clear weak-values/weak-keys/all-weak entries now that the
	// mark set (extended by ephemeron convergence) is final.
	for _, w := range h.weak {
		w.ClearUnmarked(isMarked, func(Collectable) {})
	}

	// (3)/(4) Objects unmarked but carrying __gc resurrect for this
	// cycle; their transitive closure is re-marked so the finalizer
	// sees a consistent object graph.
	var toFinalize []Collectable
	var garbage []Collectable
	for _, o := range all {
		hdr := o.GCHeader()
		if hdr.marked {
			continue
		}
		if hdr.hasFinalizer && !hdr.finalized {
			toFinalize = append(toFinalize, o)
			mark(o)
		} else {
			garbage = append(garbage, o)
		}
	}

	// (5) Run finalizers; errors are logged and discarded, never
	// propagated to the mutator (spec.md §7).
	for _, o := range toFinalize {
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.log.Warn("finalizer panicked: %v", r)
				}
			}()
			o.Finalize()
		}()
		o.GCHeader().finalized = true
	}

	for _, o := range garbage {
		h.free(o)
	}

	// (6) Unmark survivors and rebuild generation lists.
	var young, old []Collectable
	for _, o := range all {
		hdr := o.GCHeader()
		if !hdr.marked {
			continue // freed above
		}
		hdr.marked = false
		if hdr.gen == Young {
			young = append(young, o)
		} else {
			old = append(old, o)
		}
	}
	h.young = young
	h.old = old

	h.majorBaseline = h.creditsSinceMajor
	h.creditsSinceMajor = 0
}

func (h *Heap) free(c Collectable) {
	hdr := c.GCHeader()
	if hdr.hasFinalizer && !hdr.finalized {
		// Minor collections don't resurrect (only major does, per
		// spec.md §4.6); run the finalizer once here so the "at most
		// once" invariant still holds for young garbage.
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.log.Warn("finalizer panicked: %v", r)
				}
			}()
			c.Finalize()
		}()
		hdr.finalized = true
	}
}

// Stats reports generation sizes, useful for tests and REPL diagnostics.
type Stats struct {
	Young, Old int
}

func (h *Heap) Stats() Stats {
	return Stats{Young: len(h.young), Old: len(h.old)}
}
