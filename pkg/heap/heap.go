// Package heap implements the tracing garbage collector (C2): allocation,
// root registration, and mark/blacken/sweep collection over the heap
// objects defined in pkg/value.
//
// Tracing proceeds in three phases, run from Collect:
//
//  1. mark   — every Value reachable from a root is marked and queued gray.
//  2. blacken — each gray object is traced (Obj.Trace), marking and
//     queuing anything it references, until the gray queue is empty.
//  3. sweep  — the intrusive allocation list is walked; unmarked objects
//     are unlinked (and left for Go's own GC to reclaim), marked objects
//     have their mark bit cleared for the next cycle.
//
// Allocate may run a collection before linking the new object into the
// heap, which is why callers must ensure an object's transitive references
// are already reachable from a root (typically because they are still on
// the operand stack, or pinned via AllocateRoot) before allocating
// something that will point to them.
package heap

import "github.com/kristofer/embervm/pkg/value"

// RootSource supplies the VM-owned roots the collector must not reclaim:
// the operand stack, frame stack (through each frame's closure), globals,
// the open-upvalue list, and the built-in class roots. A Heap is useless
// without one attached via SetRootSource.
type RootSource interface {
	Roots() []value.Value
}

const (
	initialThreshold = 128
	growthFactor     = 2
)

// Heap owns every object allocated through it and the bookkeeping needed
// to collect them.
type Heap struct {
	objects     value.Obj // head of the intrusive allocation list
	count       int
	threshold   int
	roots       RootSource
	pinned      []value.Obj // objects held live by an outstanding Root handle
	collections int
}

// New returns an empty heap. Call SetRootSource before the first
// allocation that can trigger a collection, typically right after
// constructing the owning VM.
func New() *Heap {
	return &Heap{threshold: initialThreshold}
}

// SetRootSource attaches the root provider (normally the VM itself).
func (h *Heap) SetRootSource(rs RootSource) {
	h.roots = rs
}

// Collections reports how many mark/sweep cycles have run; exposed for
// tests and diagnostics, not used by language semantics.
func (h *Heap) Collections() int { return h.collections }

// Allocate links obj into the heap, running a collection first if the
// object count has crossed the current threshold. obj's own fields must
// already be rooted (e.g. still sitting on the operand stack) before this
// is called, since the collection that may run here happens before obj
// itself is reachable.
func Allocate[T value.Obj](h *Heap, obj T) T {
	if h.count >= h.threshold {
		h.Collect()
	}
	hdr := value.HeaderOf(obj)
	hdr.SetNext(h.objects)
	hdr.SetMarked(false)
	h.objects = obj
	h.count++
	return obj
}

// Root pins an object so the collector treats it as live independent of
// the normal root set, until Release is called. Converting it to a plain
// Value via Value() is cheap and does not itself pin anything further.
type Root[T value.Obj] struct {
	heap *Heap
	obj  T
}

// AllocateRoot allocates obj (as Allocate does) and pins it.
func AllocateRoot[T value.Obj](h *Heap, obj T) *Root[T] {
	obj = Allocate(h, obj)
	h.pinned = append(h.pinned, obj)
	return &Root[T]{heap: h, obj: obj}
}

// Get returns the pinned object.
func (r *Root[T]) Get() T { return r.obj }

// Value returns the pinned object wrapped as a Value.
func (r *Root[T]) Value() value.Value { return value.FromObj(r.obj) }

// Release unpins the object. After this call the collector may reclaim it
// on the next cycle if nothing else roots it.
func (r *Root[T]) Release() {
	for i, o := range r.heap.pinned {
		if o == value.Obj(r.obj) {
			r.heap.pinned = append(r.heap.pinned[:i], r.heap.pinned[i+1:]...)
			return
		}
	}
}

// Collect runs one mark/blacken/sweep cycle. It is safe to call directly
// (e.g. from tests asserting on reachability) as well as implicitly via
// Allocate.
func (h *Heap) Collect() {
	h.collections++
	var gray []value.Obj
	mark := func(v value.Value) {
		if !v.IsObj() {
			return
		}
		o := v.Obj()
		if o == nil {
			return
		}
		hdr := value.HeaderOf(o)
		if hdr.Marked() {
			return
		}
		hdr.SetMarked(true)
		gray = append(gray, o)
	}

	if h.roots != nil {
		for _, v := range h.roots.Roots() {
			mark(v)
		}
	}
	for _, o := range h.pinned {
		mark(value.FromObj(o))
	}

	for len(gray) > 0 {
		o := gray[len(gray)-1]
		gray = gray[:len(gray)-1]
		o.Trace(mark)
	}

	h.sweep()
	h.threshold = h.count * growthFactor
	if h.threshold < initialThreshold {
		h.threshold = initialThreshold
	}
}

func (h *Heap) sweep() {
	var prev value.Obj
	obj := h.objects
	for obj != nil {
		hdr := value.HeaderOf(obj)
		next := hdr.Next()
		if hdr.Marked() {
			hdr.SetMarked(false)
			prev = obj
			obj = next
			continue
		}
		if prev == nil {
			h.objects = next
		} else {
			value.HeaderOf(prev).SetNext(next)
		}
		h.count--
		obj = next
	}
}

// Count reports how many objects are currently live on the heap.
func (h *Heap) Count() int { return h.count }
