package value

// This file defines the concrete heap objects a Value can reference (C1/C2
// of the data model). Every type here embeds Header so pkg/heap can link it
// into the allocation list and mark/sweep it uniformly; Trace reports the
// Values each object holds a direct reference to, which is how the
// collector's mark phase reaches everything transitively live.

// StringObj is an immutable, interned byte sequence with a precomputed hash.
type StringObj struct {
	Header
	Value string
	Hash  uint32
}

func (s *StringObj) ObjKind() ObjKind       { return ObjString }
func (s *StringObj) Trace(mark func(Value)) {}

// FunctionObj describes a compiled function: its arity (including the
// implicit receiver slot, see the call machine), the chunk it executes, its
// name, and how many upvalues its closures must capture.
type FunctionObj struct {
	Header
	Arity        int
	ChunkIndex   int
	Name         string
	UpvalueCount int
}

func (f *FunctionObj) ObjKind() ObjKind       { return ObjFunction }
func (f *FunctionObj) Trace(mark func(Value)) {}

// ClosureObj pairs a FunctionObj with the upvalues it has captured. The
// Upvalues slice is sized to Function.UpvalueCount and every slot is
// initialized before any instruction of this closure executes.
type ClosureObj struct {
	Header
	Function *FunctionObj
	Upvalues []*UpvalueObj
}

func (c *ClosureObj) ObjKind() ObjKind { return ObjClosure }
func (c *ClosureObj) Trace(mark func(Value)) {
	mark(FromObj(c.Function))
	for _, uv := range c.Upvalues {
		mark(FromObj(uv))
	}
}

// NativeFn is the host-callback signature: args[0] is the receiver (or an
// undefined placeholder for free functions) and args[1:] are user
// arguments. Implementations must validate len(args) themselves.
type NativeFn func(args []Value) (Value, error)

// NativeObj wraps a host callback as a callable Value.
type NativeObj struct {
	Header
	Name string
	Fn   NativeFn
}

func (n *NativeObj) ObjKind() ObjKind       { return ObjNative }
func (n *NativeObj) Trace(mark func(Value)) {}

// ClassObj is a named bag of methods (closures or natives), open to single
// inheritance via Inherit copying the superclass's method table into the
// subclass at class-definition time.
type ClassObj struct {
	Header
	Name       string
	Methods    map[string]Value
	Superclass *ClassObj // nil for a root class; set by Inherit. GetSuper/SuperInvoke take the superclass from the operand stack, not from this field
}

func (c *ClassObj) ObjKind() ObjKind { return ObjClass }
func (c *ClassObj) Trace(mark func(Value)) {
	for _, m := range c.Methods {
		mark(m)
	}
	if c.Superclass != nil {
		mark(FromObj(c.Superclass))
	}
}

// NewClass allocates an empty class with the given name. Callers pass it to
// a heap so it can be traced and collected like any other object.
func NewClass(name string) *ClassObj {
	return &ClassObj{Name: name, Methods: make(map[string]Value)}
}

// InstanceObj is a class instance with its own field table.
type InstanceObj struct {
	Header
	Class  *ClassObj
	Fields map[string]Value
}

func (i *InstanceObj) ObjKind() ObjKind { return ObjInstance }
func (i *InstanceObj) Trace(mark func(Value)) {
	mark(FromObj(i.Class))
	for _, f := range i.Fields {
		mark(f)
	}
}

// NewInstance allocates an instance of class with an empty field table.
func NewInstance(class *ClassObj) *InstanceObj {
	return &InstanceObj{Class: class, Fields: make(map[string]Value)}
}

// BoundMethodObj pairs a receiver with a closure method, produced by
// bind_method / GetProperty / GetSuper on an ObjClosure method.
type BoundMethodObj struct {
	Header
	Receiver Value
	Method   *ClosureObj
}

func (b *BoundMethodObj) ObjKind() ObjKind { return ObjBoundMethod }
func (b *BoundMethodObj) Trace(mark func(Value)) {
	mark(b.Receiver)
	mark(FromObj(b.Method))
}

// BoundNativeObj pairs a receiver with a native method.
type BoundNativeObj struct {
	Header
	Receiver Value
	Method   *NativeObj
}

func (b *BoundNativeObj) ObjKind() ObjKind { return ObjBoundNative }
func (b *BoundNativeObj) Trace(mark func(Value)) {
	mark(b.Receiver)
	mark(FromObj(b.Method))
}

// UpvalueObj is either open (still backed by a live stack slot, identified
// by Slot) or closed (lifted onto the heap as Closed). The upvalue manager
// (pkg/vm) is the only thing that transitions Open<->Closed.
type UpvalueObj struct {
	Header
	Open   bool
	Slot   int // valid stack index, only meaningful while Open
	Closed Value
}

func (u *UpvalueObj) ObjKind() ObjKind { return ObjUpvalue }
func (u *UpvalueObj) Trace(mark func(Value)) {
	if !u.Open {
		mark(u.Closed)
	}
}

// VecObj is the built-in growable vector. Class is always the VM's built-in
// Vec class, so property reads on a Vec resolve to bound methods on it.
type VecObj struct {
	Header
	Class    *ClassObj
	Elements []Value
}

func (v *VecObj) ObjKind() ObjKind { return ObjVec }
func (v *VecObj) Trace(mark func(Value)) {
	mark(FromObj(v.Class))
	for _, e := range v.Elements {
		mark(e)
	}
}

// RangeObj is an immutable half-open [Begin, End) integer range.
type RangeObj struct {
	Header
	Class *ClassObj
	Begin int64
	End   int64
}

func (r *RangeObj) ObjKind() ObjKind { return ObjRange }
func (r *RangeObj) Trace(mark func(Value)) {
	mark(FromObj(r.Class))
}

// VecIterObj walks a VecObj's elements in order, yielding Sentinel once
// exhausted.
type VecIterObj struct {
	Header
	Class *ClassObj
	Vec   *VecObj
	Index int
}

func (it *VecIterObj) ObjKind() ObjKind { return ObjVecIter }
func (it *VecIterObj) Trace(mark func(Value)) {
	mark(FromObj(it.Class))
	mark(FromObj(it.Vec))
}

// RangeIterObj walks a RangeObj's integers in order, yielding Sentinel once
// exhausted.
type RangeIterObj struct {
	Header
	Class   *ClassObj
	Current int64
	End     int64
}

func (it *RangeIterObj) ObjKind() ObjKind { return ObjRangeIter }
func (it *RangeIterObj) Trace(mark func(Value)) {
	mark(FromObj(it.Class))
}
