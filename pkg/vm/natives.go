package vm

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/unicode/norm"

	"github.com/kristofer/embervm/pkg/heap"
	"github.com/kristofer/embervm/pkg/value"
)

// installBuiltinClasses creates the Vec/Range classes and their iterator
// classes and wires their native methods. VecIter/RangeIter are never
// exposed as globals — they only exist so GetProperty/Invoke on an
// iterator Value has a method table to dispatch through.
func (vm *VM) installBuiltinClasses() {
	vm.vecClass = heap.Allocate(vm.heap, value.NewClass("Vec"))
	vm.rangeClass = heap.Allocate(vm.heap, value.NewClass("Range"))
	vm.vecIterClass = heap.Allocate(vm.heap, value.NewClass("VecIterator"))
	vm.rangeIterClass = heap.Allocate(vm.heap, value.NewClass("RangeIterator"))

	vm.defineNative(vm.vecClass, initName, vm.vecInit)
	vm.defineNative(vm.vecClass, "push", vm.vecPush)
	vm.defineNative(vm.vecClass, "pop", vm.vecPop)
	vm.defineNative(vm.vecClass, "size", vm.vecSize)
	vm.defineNative(vm.vecClass, "at", vm.vecAt)
	vm.defineNative(vm.vecClass, "iter", vm.vecIter)

	vm.defineNative(vm.rangeClass, initName, vm.rangeInit)
	vm.defineNative(vm.rangeClass, "size", vm.rangeSize)
	vm.defineNative(vm.rangeClass, "iter", vm.rangeIter)

	vm.defineNative(vm.vecIterClass, "next", vm.vecIterNext)
	vm.defineNative(vm.rangeIterClass, "next", vm.rangeIterNext)
}

func (vm *VM) defineNative(class *value.ClassObj, name string, fn value.NativeFn) {
	class.Methods[name] = value.FromObj(heap.Allocate(vm.heap, &value.NativeObj{Name: name, Fn: fn}))
}

// installGlobals installs the free-function natives (clock, print, String,
// sentinel, match, normalize) and the Vec/Range class globals.
func (vm *VM) installGlobals() {
	vm.defineGlobalNative("clock", vm.natClock)
	vm.defineGlobalNative("print", vm.natPrint)
	vm.defineGlobalNative("String", vm.natString)
	vm.defineGlobalNative("sentinel", vm.natSentinel)
	vm.defineGlobalNative("match", vm.natMatch)
	vm.defineGlobalNative("normalize", vm.natNormalize)
	vm.globals["Vec"] = value.FromObj(vm.vecClass)
	vm.globals["Range"] = value.FromObj(vm.rangeClass)
}

func (vm *VM) defineGlobalNative(name string, fn value.NativeFn) {
	vm.globals[name] = value.FromObj(heap.Allocate(vm.heap, &value.NativeObj{Name: name, Fn: fn}))
}

func arityErr(name string, want, got int) error {
	return newError(KindTypeError, "%s() expected %d arguments but got %d.", name, want, got)
}

// natClock returns the current time in fractional seconds, mirroring the
// teacher's clock() built-in but reading real wall-clock time.
func (vm *VM) natClock(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.None, arityErr("clock", 0, len(args)-1)
	}
	return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
}

func (vm *VM) natPrint(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.None, arityErr("print", 1, len(args)-1)
	}
	fmt.Println(value.Display(args[1]))
	return value.None, nil
}

func (vm *VM) natString(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.None, arityErr("String", 1, len(args)-1)
	}
	return value.FromObj(vm.interner.Intern(value.Display(args[1]))), nil
}

func (vm *VM) natSentinel(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.None, arityErr("sentinel", 0, len(args)-1)
	}
	return value.Sentinel, nil
}

// natMatch reports whether text (args[2]) matches pattern (args[1]),
// via .NET-flavored regular expressions.
func (vm *VM) natMatch(args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return value.None, arityErr("match", 2, len(args)-1)
	}
	pattern, ok := args[1].TryObjString()
	if !ok {
		return value.None, newError(KindTypeError, "match() pattern must be a string.")
	}
	text, ok := args[2].TryObjString()
	if !ok {
		return value.None, newError(KindTypeError, "match() text must be a string.")
	}
	re, err := regexp2.Compile(pattern.Value, regexp2.None)
	if err != nil {
		return value.None, newError(KindValueError, "invalid pattern: %s", err)
	}
	m, err := re.MatchString(text.Value)
	if err != nil {
		return value.None, newError(KindRuntimeError, "match failed: %s", err)
	}
	return value.Bool(m), nil
}

// natNormalize applies Unicode normalization form form (args[1], one of
// "NFC", "NFD", "NFKC", "NFKD") to text (args[2]).
func (vm *VM) natNormalize(args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return value.None, arityErr("normalize", 2, len(args)-1)
	}
	formStr, ok := args[1].TryObjString()
	if !ok {
		return value.None, newError(KindTypeError, "normalize() form must be a string.")
	}
	text, ok := args[2].TryObjString()
	if !ok {
		return value.None, newError(KindTypeError, "normalize() text must be a string.")
	}
	var form norm.Form
	switch formStr.Value {
	case "NFC":
		form = norm.NFC
	case "NFD":
		form = norm.NFD
	case "NFKC":
		form = norm.NFKC
	case "NFKD":
		form = norm.NFKD
	default:
		return value.None, newError(KindValueError, "unknown normalization form '%s'.", formStr.Value)
	}
	return value.FromObj(vm.interner.Intern(form.String(text.Value))), nil
}

// vecInit implements Vec's __init__: it ignores the freshly allocated
// instance in args[0] and returns a new ObjVec holding the constructor
// arguments instead, which is how calling the Vec class directly produces
// the built-in collection rather than a plain instance.
func (vm *VM) vecInit(args []value.Value) (value.Value, error) {
	elems := append([]value.Value(nil), args[1:]...)
	return value.FromObj(heap.Allocate(vm.heap, &value.VecObj{Class: vm.vecClass, Elements: elems})), nil
}

func (vm *VM) vecPush(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.None, arityErr("push", 1, len(args)-1)
	}
	v, ok := args[0].Obj().(*value.VecObj)
	if !ok {
		return value.None, newError(KindTypeError, "push() receiver must be a Vec.")
	}
	v.Elements = append(v.Elements, args[1])
	return args[0], nil
}

func (vm *VM) vecPop(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.None, arityErr("pop", 0, len(args)-1)
	}
	v, ok := args[0].Obj().(*value.VecObj)
	if !ok {
		return value.None, newError(KindTypeError, "pop() receiver must be a Vec.")
	}
	if len(v.Elements) == 0 {
		return value.None, nil
	}
	last := v.Elements[len(v.Elements)-1]
	v.Elements = v.Elements[:len(v.Elements)-1]
	return last, nil
}

func (vm *VM) vecSize(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.None, arityErr("size", 0, len(args)-1)
	}
	v, ok := args[0].Obj().(*value.VecObj)
	if !ok {
		return value.None, newError(KindTypeError, "size() receiver must be a Vec.")
	}
	return value.Number(float64(len(v.Elements))), nil
}

func (vm *VM) vecAt(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.None, arityErr("at", 1, len(args)-1)
	}
	v, ok := args[0].Obj().(*value.VecObj)
	if !ok {
		return value.None, newError(KindTypeError, "at() receiver must be a Vec.")
	}
	n, ok := args[1].TryNumber()
	if !ok {
		return value.None, newError(KindTypeError, "at() index must be a number.")
	}
	idx, ok := validateInteger(n)
	if !ok || idx < 0 || idx >= int64(len(v.Elements)) {
		return value.None, newError(KindIndexError, "Vec index out of bounds.")
	}
	return v.Elements[idx], nil
}

func (vm *VM) vecIter(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.None, arityErr("iter", 0, len(args)-1)
	}
	v, ok := args[0].Obj().(*value.VecObj)
	if !ok {
		return value.None, newError(KindTypeError, "iter() receiver must be a Vec.")
	}
	it := &value.VecIterObj{Class: vm.vecIterClass, Vec: v}
	return value.FromObj(heap.Allocate(vm.heap, it)), nil
}

func (vm *VM) vecIterNext(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.None, arityErr("next", 0, len(args)-1)
	}
	it, ok := args[0].Obj().(*value.VecIterObj)
	if !ok {
		return value.None, newError(KindTypeError, "next() receiver must be a Vec iterator.")
	}
	if it.Index >= len(it.Vec.Elements) {
		return value.Sentinel, nil
	}
	v := it.Vec.Elements[it.Index]
	it.Index++
	return v, nil
}

// rangeInit implements Range's __init__, mirroring vecInit: the two
// constructor arguments become the bounds of a fresh ObjRange, which is
// returned in place of the discarded plain instance.
func (vm *VM) rangeInit(args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return value.None, arityErr("Range", 2, len(args)-1)
	}
	beginN, ok := args[1].TryNumber()
	if !ok {
		return value.None, newError(KindTypeError, "Range bounds must be numbers.")
	}
	endN, ok := args[2].TryNumber()
	if !ok {
		return value.None, newError(KindTypeError, "Range bounds must be numbers.")
	}
	begin, ok1 := validateInteger(beginN)
	end, ok2 := validateInteger(endN)
	if !ok1 || !ok2 {
		return value.None, newError(KindValueError, "Range bounds must be integers.")
	}
	return value.FromObj(heap.Allocate(vm.heap, &value.RangeObj{Class: vm.rangeClass, Begin: begin, End: end})), nil
}

func (vm *VM) rangeSize(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.None, arityErr("size", 0, len(args)-1)
	}
	r, ok := args[0].Obj().(*value.RangeObj)
	if !ok {
		return value.None, newError(KindTypeError, "size() receiver must be a Range.")
	}
	if r.End < r.Begin {
		return value.Number(0), nil
	}
	return value.Number(float64(r.End - r.Begin)), nil
}

func (vm *VM) rangeIter(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.None, arityErr("iter", 0, len(args)-1)
	}
	r, ok := args[0].Obj().(*value.RangeObj)
	if !ok {
		return value.None, newError(KindTypeError, "iter() receiver must be a Range.")
	}
	it := &value.RangeIterObj{Class: vm.rangeIterClass, Current: r.Begin, End: r.End}
	return value.FromObj(heap.Allocate(vm.heap, it)), nil
}

func (vm *VM) rangeIterNext(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.None, arityErr("next", 0, len(args)-1)
	}
	it, ok := args[0].Obj().(*value.RangeIterObj)
	if !ok {
		return value.None, newError(KindTypeError, "next() receiver must be a Range iterator.")
	}
	if it.Current >= it.End {
		return value.Sentinel, nil
	}
	v := value.Number(float64(it.Current))
	it.Current++
	return v, nil
}
