package vm

import (
	"github.com/kristofer/embervm/pkg/heap"
	"github.com/kristofer/embervm/pkg/value"
)

// FramesMax bounds call depth; LocalsMax bounds how many stack slots a
// single frame may address, and StackMax is derived from the two rather
// than chosen as a flat constant, matching the relationship the original
// enforces between its frame and value stacks.
const (
	FramesMax = 64
	LocalsMax = 256
	StackMax  = LocalsMax * FramesMax
)

// CallFrame is one activation record: the closure being executed, the
// instruction pointer to resume the *caller* at once this frame returns,
// and the base stack slot this frame's locals (including the receiver in
// slot 0) start at.
type CallFrame struct {
	Closure  *value.ClosureObj
	PrevIP   int
	SlotBase int
}

// callValue dispatches a call to whatever kind of callee is on the stack:
// a closure, a native, a class (construction), or a bound method/native.
// argCount does not include the receiver/callee slot itself.
func (vm *VM) callValue(callee value.Value, argCount int) *Error {
	if !callee.IsObj() {
		return newError(KindTypeError, "Can only call functions and classes.")
	}
	switch obj := callee.Obj().(type) {
	case *value.ClosureObj:
		return vm.callClosure(obj, argCount)
	case *value.NativeObj:
		return vm.callNative(obj, argCount)
	case *value.ClassObj:
		return vm.callClass(obj, argCount)
	case *value.BoundMethodObj:
		slotBase := len(vm.stack) - argCount - 1
		vm.stack[slotBase] = obj.Receiver
		return vm.callClosure(obj.Method, argCount)
	case *value.BoundNativeObj:
		slotBase := len(vm.stack) - argCount - 1
		vm.stack[slotBase] = obj.Receiver
		return vm.callNative(obj.Method, argCount)
	default:
		return newError(KindTypeError, "Can only call functions and classes.")
	}
}

// callClosure pushes a new call frame for c. Arity counts the receiver, so
// a user-visible arity of N is Function.Arity == N+1.
func (vm *VM) callClosure(c *value.ClosureObj, argCount int) *Error {
	if argCount+1 != c.Function.Arity {
		return newError(KindTypeError, "Expected %d arguments but got %d.", c.Function.Arity-1, argCount)
	}
	if len(vm.frames) >= FramesMax {
		return newError(KindIndexError, "Stack overflow.")
	}
	slotBase := len(vm.stack) - argCount - 1
	vm.frames = append(vm.frames, CallFrame{Closure: c, PrevIP: vm.ip, SlotBase: slotBase})
	vm.activeChunk = vm.store.Get(c.Function.ChunkIndex)
	vm.ip = 0
	return nil
}

// callNative invokes a host function synchronously: it sees the same
// [receiver, args...] slice the bytecode call convention already laid out
// on the stack, and its return value replaces that whole span.
func (vm *VM) callNative(n *value.NativeObj, argCount int) *Error {
	slotBase := len(vm.stack) - argCount - 1
	args := vm.stack[slotBase : slotBase+argCount+1]
	result, err := n.Fn(args)
	if err != nil {
		return vm.wrapNativeError(err)
	}
	vm.stack = vm.stack[:slotBase]
	vm.push(result)
	return nil
}

// callClass implements ObjClass(k) construction: allocate an instance,
// install it in the receiver slot, and run __init__ if the class defines
// one. A native __init__ is free to return something other than the fresh
// instance (the built-in Vec and Range constructors do exactly this), since
// its return value replaces the call just like any other native call.
func (vm *VM) callClass(k *value.ClassObj, argCount int) *Error {
	slotBase := len(vm.stack) - argCount - 1
	instance := heap.Allocate(vm.heap, value.NewInstance(k))
	vm.stack[slotBase] = value.FromObj(instance)

	initVal, hasInit := k.Methods[initName]
	if !hasInit {
		if argCount != 0 {
			return newError(KindTypeError, "Expected 0 arguments but got %d.", argCount)
		}
		return nil
	}
	switch init := initVal.Obj().(type) {
	case *value.ClosureObj:
		return vm.callClosure(init, argCount)
	case *value.NativeObj:
		return vm.callNative(init, argCount)
	default:
		return newError(KindRuntimeError, "Invalid initializer.")
	}
}

// invoke implements the fused get-property-then-call fast path: if
// receiver is an instance with a field by that name, the field's value is
// called (fields shadow methods); otherwise the method is looked up on the
// receiver's class and called with the receiver already in slot 0.
// Built-in receivers (Vec, Range and their iterators) have no field table,
// so they always resolve straight to their built-in class's methods.
func (vm *VM) invoke(name string, argCount int) *Error {
	receiver := vm.peek(argCount)
	if inst, ok := receiver.TryObjInstance(); ok {
		if fv, ok := inst.Fields[name]; ok {
			vm.stack[len(vm.stack)-argCount-1] = fv
			return vm.callValue(fv, argCount)
		}
		return vm.invokeFromClass(inst.Class, name, argCount)
	}
	if class := vm.builtinClassOf(receiver); class != nil {
		return vm.invokeFromClass(class, name, argCount)
	}
	return newError(KindRuntimeError, "Only instances have methods.")
}

func (vm *VM) invokeFromClass(class *value.ClassObj, name string, argCount int) *Error {
	methodVal, ok := class.Methods[name]
	if !ok {
		return newError(KindAttributeError, "Undefined property '%s'.", name)
	}
	return vm.callValue(methodVal, argCount)
}

// bindMethod looks up name on class, and replaces the receiver (already on
// top of the stack) with a bound method/bound native wrapping the two. The
// receiver is kept on the stack (and therefore rooted) until after the
// bound-method object is allocated, since that allocation may itself
// trigger a collection.
func (vm *VM) bindMethod(class *value.ClassObj, name string) *Error {
	methodVal, ok := class.Methods[name]
	if !ok {
		return newError(KindAttributeError, "Undefined property '%s'.", name)
	}
	receiver := vm.peek(0)
	switch m := methodVal.Obj().(type) {
	case *value.ClosureObj:
		bound := heap.Allocate(vm.heap, &value.BoundMethodObj{Receiver: receiver, Method: m})
		vm.pop()
		vm.push(value.FromObj(bound))
	case *value.NativeObj:
		bound := heap.Allocate(vm.heap, &value.BoundNativeObj{Receiver: receiver, Method: m})
		vm.pop()
		vm.push(value.FromObj(bound))
	default:
		return newError(KindRuntimeError, "Invalid method.")
	}
	return nil
}

// builtinClassOf returns the built-in class backing v's methods, or nil if
// v isn't one of the built-in collection kinds.
func (vm *VM) builtinClassOf(v value.Value) *value.ClassObj {
	if !v.IsObj() {
		return nil
	}
	switch v.ObjKind() {
	case value.ObjVec:
		return vm.vecClass
	case value.ObjVecIter:
		return vm.vecIterClass
	case value.ObjRange:
		return vm.rangeClass
	case value.ObjRangeIter:
		return vm.rangeIterClass
	}
	return nil
}

// wrapNativeError normalizes whatever error a native returned into *Error,
// so the dispatch loop only ever has one error type to propagate.
func (vm *VM) wrapNativeError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return newError(KindRuntimeError, "%s", err.Error())
}
