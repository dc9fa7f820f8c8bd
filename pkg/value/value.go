// Package value implements the tagged runtime value representation for the
// ember virtual machine.
//
// A Value is a small tagged variant: it is either one of the primitive
// cases (None, Boolean, Number, Sentinel) or a reference to a heap object
// (Obj). Heap objects are shared, GC-traced handles — equality on them is
// identity, except for strings, which are interned so identity and content
// equality coincide (see pkg/intern).
//
// Value Kinds:
//
//	None      -- the absence of a value
//	Boolean   -- true / false
//	Number    -- IEEE-754 double
//	Sentinel  -- the loop-terminator singleton
//	Obj*      -- one of the heap object kinds in this package (ObjKind)
//
// Truthiness: None and Boolean(false) are false; every other value
// (including 0, "", and an empty Vec) is true.
package value

import (
	"fmt"
	"reflect"
	"strconv"
)

// Kind discriminates the cases of a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindBoolean
	KindNumber
	KindSentinel
	KindObj
)

// ObjKind discriminates the concrete heap object a KindObj Value refers to.
// It exists so callers can switch on the variant without a type assertion
// when only the tag is needed (e.g. for diagnostics).
type ObjKind uint8

const (
	ObjString ObjKind = iota
	ObjFunction
	ObjClosure
	ObjNative
	ObjClass
	ObjInstance
	ObjBoundMethod
	ObjBoundNative
	ObjUpvalue
	ObjVec
	ObjVecIter
	ObjRange
	ObjRangeIter
)

func (k ObjKind) String() string {
	switch k {
	case ObjString:
		return "string"
	case ObjFunction:
		return "function"
	case ObjClosure:
		return "closure"
	case ObjNative:
		return "native function"
	case ObjClass:
		return "class"
	case ObjInstance:
		return "instance"
	case ObjBoundMethod, ObjBoundNative:
		return "bound method"
	case ObjUpvalue:
		return "upvalue"
	case ObjVec:
		return "vec"
	case ObjVecIter:
		return "vec iterator"
	case ObjRange:
		return "range"
	case ObjRangeIter:
		return "range iterator"
	default:
		return "object"
	}
}

// Obj is implemented by every heap object reachable from a Value. It is the
// common handle the GC (pkg/heap) marks and sweeps.
type Obj interface {
	// ObjKind reports which heap object variant this is.
	ObjKind() ObjKind
	// Trace calls mark for every Value directly reachable from this object
	// (its fields, captured upvalues, elements, etc). It does not recurse;
	// the collector's blacken phase drives the fixpoint.
	Trace(mark func(Value))
	// gcHeader exposes the intrusive mark/sweep bookkeeping the heap uses.
	gcHeader() *Header
}

// Header is embedded by every heap object. It carries the bookkeeping the
// collector needs and nothing the language ever inspects directly.
type Header struct {
	marked bool
	next   Obj // intrusive list of every object the heap has allocated
}

func (h *Header) gcHeader() *Header { return h }

// Marked reports whether the mark phase has already visited this object.
func (h *Header) Marked() bool { return h.marked }

// SetMarked flips the mark bit; used by pkg/heap during mark/sweep.
func (h *Header) SetMarked(m bool) { h.marked = m }

// Next returns the next object in the heap's allocation list.
func (h *Header) Next() Obj { return h.next }

// SetNext links this object into the heap's allocation list.
func (h *Header) SetNext(o Obj) { h.next = o }

// HeaderOf exposes an object's GC header to packages (pkg/heap) that must
// walk the allocation list but cannot see the unexported gcHeader method.
func HeaderOf(o Obj) *Header { return o.gcHeader() }

// Value is the tagged variant every VM operation reads and writes.
type Value struct {
	kind    Kind
	boolean bool
	number  float64
	obj     Obj
}

// None is the zero Value.
var None = Value{kind: KindNone}

// Sentinel is the loop-terminator singleton value.
var Sentinel = Value{kind: KindSentinel}

// Bool constructs a Boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, boolean: b} }

// Number constructs a Number value.
func Number(n float64) Value { return Value{kind: KindNumber, number: n} }

// FromObj constructs a Value wrapping a heap object reference. A nil
// reference, including a typed nil pointer, yields None.
func FromObj(o Obj) Value {
	if o == nil {
		return None
	}
	if rv := reflect.ValueOf(o); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return None
	}
	return Value{kind: KindObj, obj: o}
}

// Kind reports the primitive tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsObj reports whether v holds a heap object reference.
func (v Value) IsObj() bool { return v.kind == KindObj }

// ObjKind reports the heap object variant v holds; it panics if v is not
// an object value, so callers should guard with IsObj first.
func (v Value) ObjKind() ObjKind { return v.obj.ObjKind() }

// Obj returns the underlying heap object reference, or nil if v is not an
// object value.
func (v Value) Obj() Obj {
	if v.kind != KindObj {
		return nil
	}
	return v.obj
}

// AsBool reports the truthiness of v: None and Boolean(false) are false,
// everything else — including 0, "", and an empty collection — is true.
func (v Value) AsBool() bool {
	switch v.kind {
	case KindNone:
		return false
	case KindBoolean:
		return v.boolean
	default:
		return true
	}
}

// TryNumber returns the numeric payload of v and true if v is a Number.
func (v Value) TryNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.number, true
}

// TryBool returns the boolean payload of v and true if v is a Boolean.
func (v Value) TryBool() (bool, bool) {
	if v.kind != KindBoolean {
		return false, false
	}
	return v.boolean, true
}

// TryObjString returns v's underlying *StringObj and true if v holds one.
func (v Value) TryObjString() (*StringObj, bool) {
	if v.kind != KindObj {
		return nil, false
	}
	s, ok := v.obj.(*StringObj)
	return s, ok
}

// TryObjInstance returns v's underlying *InstanceObj and true if v holds one.
func (v Value) TryObjInstance() (*InstanceObj, bool) {
	if v.kind != KindObj {
		return nil, false
	}
	i, ok := v.obj.(*InstanceObj)
	return i, ok
}

// TryObjClass returns v's underlying *ClassObj and true if v holds one.
func (v Value) TryObjClass() (*ClassObj, bool) {
	if v.kind != KindObj {
		return nil, false
	}
	c, ok := v.obj.(*ClassObj)
	return c, ok
}

// Equal implements Value equality: numeric values compare by IEEE-754
// equality, object values compare by reference identity (strings are
// interned, so identity and content equality coincide for them).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNone, KindSentinel:
		return true
	case KindBoolean:
		return a.boolean == b.boolean
	case KindNumber:
		return a.number == b.number
	case KindObj:
		return a.obj == b.obj
	default:
		return false
	}
}

// Display formats v the way the language's print/String built-ins do:
// None as "none", numbers without a trailing ".0" when integral, strings
// verbatim, Vecs as "[a, b, ...]", Ranges as "begin..end", and every other
// object as "<kind name>".
func Display(v Value) string {
	switch v.kind {
	case KindNone:
		return "none"
	case KindBoolean:
		if v.boolean {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.number)
	case KindSentinel:
		return "sentinel"
	case KindObj:
		return displayObj(v.obj)
	default:
		return "<unknown>"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func displayObj(o Obj) string {
	switch obj := o.(type) {
	case *StringObj:
		return obj.Value
	case *VecObj:
		return displayVec(obj)
	case *RangeObj:
		return fmt.Sprintf("%d..%d", obj.Begin, obj.End)
	case *FunctionObj:
		return fmt.Sprintf("<fn %s>", obj.Name)
	case *ClosureObj:
		return fmt.Sprintf("<fn %s>", obj.Function.Name)
	case *ClassObj:
		return fmt.Sprintf("<class %s>", obj.Name)
	case *InstanceObj:
		return fmt.Sprintf("<%s instance>", obj.Class.Name)
	default:
		return fmt.Sprintf("<%s>", o.ObjKind())
	}
}

func displayVec(v *VecObj) string {
	s := "["
	for i, elem := range v.Elements {
		if i > 0 {
			s += ", "
		}
		s += Display(elem)
	}
	return s + "]"
}
