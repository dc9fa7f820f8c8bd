package vm

import (
	"strings"

	"github.com/kristofer/embervm/pkg/bytecode"
	"github.com/kristofer/embervm/pkg/heap"
	"github.com/kristofer/embervm/pkg/value"
)

// run drives the opcode dispatch loop (C7) until the outermost call frame
// returns, or until an opcode handler fails. On failure the error already
// carries a full stack trace by the time it reaches the caller.
func (vm *VM) run() (value.Value, *Error) {
	for {
		op := bytecode.Op(vm.readByte())
		var err *Error

		switch op {
		case bytecode.OpConstant:
			vm.push(vm.readConstant())

		case bytecode.OpNil:
			vm.push(value.None)

		case bytecode.OpTrue:
			vm.push(value.Bool(true))

		case bytecode.OpFalse:
			vm.push(value.Bool(false))

		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpCopyTop:
			vm.push(vm.peek(0))

		case bytecode.OpGetLocal:
			slot := int(vm.readByte())
			vm.push(vm.stack[vm.currentFrame().SlotBase+slot])

		case bytecode.OpSetLocal:
			slot := int(vm.readByte())
			vm.stack[vm.currentFrame().SlotBase+slot] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := vm.readString()
			v, ok := vm.globals[name]
			if !ok {
				err = newError(KindRuntimeError, "Undefined variable '%s'.", name)
				break
			}
			vm.push(v)

		case bytecode.OpDefineGlobal:
			name := vm.readString()
			vm.globals[name] = vm.peek(0)
			vm.pop()

		case bytecode.OpSetGlobal:
			name := vm.readString()
			if _, ok := vm.globals[name]; !ok {
				err = newError(KindRuntimeError, "Undefined variable '%s'.", name)
				break
			}
			vm.globals[name] = vm.peek(0)

		case bytecode.OpGetUpvalue:
			idx := vm.readByte()
			vm.push(vm.readUpvalue(vm.currentFrame().Closure.Upvalues[idx]))

		case bytecode.OpSetUpvalue:
			idx := vm.readByte()
			vm.writeUpvalue(vm.currentFrame().Closure.Upvalues[idx], vm.peek(0))

		case bytecode.OpGetProperty:
			name := vm.readString()
			err = vm.execGetProperty(name)

		case bytecode.OpSetProperty:
			name := vm.readString()
			err = vm.execSetProperty(name)

		case bytecode.OpGetSuper:
			name := vm.readString()
			superVal := vm.pop()
			superclass, ok := superVal.TryObjClass()
			if !ok {
				err = newError(KindRuntimeError, "Superclass must be a class.")
				break
			}
			err = vm.bindMethod(superclass, name)

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))

		case bytecode.OpGreater:
			err = vm.execNumberCompare(func(a, b float64) bool { return a > b })

		case bytecode.OpLess:
			err = vm.execNumberCompare(func(a, b float64) bool { return a < b })

		case bytecode.OpAdd:
			err = vm.execAdd()

		case bytecode.OpSubtract:
			err = vm.execArith(func(a, b float64) float64 { return a - b })

		case bytecode.OpMultiply:
			err = vm.execArith(func(a, b float64) float64 { return a * b })

		case bytecode.OpDivide:
			err = vm.execArith(func(a, b float64) float64 { return a / b })

		case bytecode.OpNot:
			v := vm.pop()
			vm.push(value.Bool(!v.AsBool()))

		case bytecode.OpNegate:
			n, ok := vm.peek(0).TryNumber()
			if !ok {
				err = newError(KindTypeError, "Operand must be a number.")
				break
			}
			vm.pop()
			vm.push(value.Number(-n))

		case bytecode.OpFormatString:
			if _, ok := vm.peek(0).TryObjString(); !ok {
				s := value.Display(vm.pop())
				vm.push(value.FromObj(vm.interner.Intern(s)))
			}

		case bytecode.OpBuildRange:
			err = vm.execBuildRange()

		case bytecode.OpBuildString:
			n := int(vm.readByte())
			err = vm.execBuildString(n)

		case bytecode.OpBuildVec:
			n := int(vm.readByte())
			// Copy the elements but leave the originals on the stack (so
			// they stay rooted) until after the allocation that may collect
			// has completed; only then is it safe to truncate them away.
			elems := append([]value.Value(nil), vm.stack[len(vm.stack)-n:]...)
			vec := heap.Allocate(vm.heap, &value.VecObj{Class: vm.vecClass, Elements: elems})
			vm.stack = vm.stack[:len(vm.stack)-n]
			vm.push(value.FromObj(vec))

		case bytecode.OpJump:
			delta := vm.readU16()
			vm.ip += int(delta)

		case bytecode.OpJumpIfFalse:
			delta := vm.readU16()
			if !vm.peek(0).AsBool() {
				vm.ip += int(delta)
			}

		case bytecode.OpJumpIfSentinel:
			delta := vm.readU16()
			if vm.peek(0).Kind() == value.KindSentinel {
				vm.ip += int(delta)
			}

		case bytecode.OpLoop:
			delta := vm.readU16()
			vm.ip -= int(delta)

		case bytecode.OpCall:
			argc := int(vm.readByte())
			err = vm.callValue(vm.peek(argc), argc)

		case bytecode.OpInvoke:
			name := vm.readString()
			argc := int(vm.readByte())
			err = vm.invoke(name, argc)

		case bytecode.OpSuperInvoke:
			name := vm.readString()
			argc := int(vm.readByte())
			superVal := vm.pop()
			superclass, ok := superVal.TryObjClass()
			if !ok {
				err = newError(KindRuntimeError, "Superclass must be a class.")
				break
			}
			err = vm.invokeFromClass(superclass, name, argc)

		case bytecode.OpClosure:
			err = vm.execClosure()

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack)-1, vm.peek(0))
			vm.pop()

		case bytecode.OpReturn:
			var done bool
			var result value.Value
			result, done, err = vm.execReturn()
			if err != nil {
				break
			}
			if done {
				return result, nil
			}
			continue

		case bytecode.OpClass:
			name := vm.readString()
			vm.push(value.FromObj(heap.Allocate(vm.heap, value.NewClass(name))))

		case bytecode.OpInherit:
			err = vm.execInherit()

		case bytecode.OpMethod:
			name := vm.readString()
			err = vm.execMethod(name)

		default:
			err = newError(KindRuntimeError, "Unknown opcode.")
		}

		if err != nil {
			return value.None, err.withTrace(vm.currentTrace())
		}
	}
}

func (vm *VM) execGetProperty(name string) *Error {
	receiver := vm.peek(0)
	if inst, ok := receiver.TryObjInstance(); ok {
		if fv, ok := inst.Fields[name]; ok {
			vm.pop()
			vm.push(fv)
			return nil
		}
		return vm.bindMethod(inst.Class, name)
	}
	if class := vm.builtinClassOf(receiver); class != nil {
		return vm.bindMethod(class, name)
	}
	return newError(KindRuntimeError, "Only instances have properties.")
}

func (vm *VM) execSetProperty(name string) *Error {
	val := vm.pop()
	instVal := vm.pop()
	inst, ok := instVal.TryObjInstance()
	if !ok {
		return newError(KindRuntimeError, "Only instances have fields.")
	}
	inst.Fields[name] = val
	vm.push(val)
	return nil
}

func (vm *VM) execNumberCompare(cmp func(a, b float64) bool) *Error {
	bv := vm.peek(0)
	av := vm.peek(1)
	b, bok := bv.TryNumber()
	a, aok := av.TryNumber()
	if !aok || !bok {
		return newError(KindTypeError, "Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	vm.push(value.Bool(cmp(a, b)))
	return nil
}

func (vm *VM) execArith(op func(a, b float64) float64) *Error {
	bv := vm.peek(0)
	av := vm.peek(1)
	b, bok := bv.TryNumber()
	a, aok := av.TryNumber()
	if !aok || !bok {
		return newError(KindTypeError, "Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	vm.push(value.Number(op(a, b)))
	return nil
}

func (vm *VM) execAdd() *Error {
	b := vm.peek(0)
	a := vm.peek(1)
	if an, ok := a.TryNumber(); ok {
		if bn, ok := b.TryNumber(); ok {
			vm.pop()
			vm.pop()
			vm.push(value.Number(an + bn))
			return nil
		}
	}
	if as, ok := a.TryObjString(); ok {
		if bs, ok := b.TryObjString(); ok {
			vm.pop()
			vm.pop()
			vm.push(value.FromObj(vm.interner.Intern(as.Value + bs.Value)))
			return nil
		}
	}
	return newError(KindRuntimeError, "Operands must be two numbers or two strings.")
}

func (vm *VM) execBuildRange() *Error {
	endV := vm.pop()
	beginV := vm.pop()
	beginN, ok1 := beginV.TryNumber()
	endN, ok2 := endV.TryNumber()
	if !ok1 || !ok2 {
		return newError(KindTypeError, "Range bounds must be numbers.")
	}
	begin, ok3 := validateInteger(beginN)
	end, ok4 := validateInteger(endN)
	if !ok3 || !ok4 {
		return newError(KindValueError, "Range bounds must be integers.")
	}
	r := heap.Allocate(vm.heap, &value.RangeObj{Class: vm.rangeClass, Begin: begin, End: end})
	vm.push(value.FromObj(r))
	return nil
}

func (vm *VM) execBuildString(n int) *Error {
	if n == 1 {
		return nil
	}
	base := len(vm.stack) - n
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		s, ok := vm.stack[base+i].TryObjString()
		if !ok {
			return newError(KindTypeError, "String interpolation operands must be strings.")
		}
		parts[i] = s.Value
	}
	vm.stack = vm.stack[:base]
	vm.push(value.FromObj(vm.interner.Intern(strings.Join(parts, ""))))
	return nil
}

func (vm *VM) execClosure() *Error {
	fnVal := vm.readConstant()
	fn, ok := fnVal.Obj().(*value.FunctionObj)
	if !ok {
		return newError(KindRuntimeError, "Constant is not a function.")
	}
	closure := &value.ClosureObj{Function: fn, Upvalues: make([]*value.UpvalueObj, fn.UpvalueCount)}
	frame := vm.currentFrame()
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := vm.readByte()
		index := int(vm.readByte())
		if isLocal != 0 {
			closure.Upvalues[i] = vm.captureUpvalue(frame.SlotBase + index)
		} else {
			closure.Upvalues[i] = frame.Closure.Upvalues[index]
		}
	}
	vm.push(value.FromObj(heap.Allocate(vm.heap, closure)))
	return nil
}

// execReturn implements the Return opcode. It reports done=true once the
// outermost frame has returned, at which point result is the program's
// final value.
func (vm *VM) execReturn() (value.Value, bool, *Error) {
	result := vm.pop()
	frame := *vm.currentFrame()
	for i := frame.SlotBase; i < len(vm.stack); i++ {
		vm.closeUpvalues(i, vm.stack[i])
	}
	vm.frames = vm.frames[:len(vm.frames)-1]
	if len(vm.frames) == 0 {
		vm.stack = vm.stack[:frame.SlotBase]
		return result, true, nil
	}
	top := vm.frames[len(vm.frames)-1]
	vm.activeChunk = vm.store.Get(top.Closure.Function.ChunkIndex)
	vm.ip = frame.PrevIP
	vm.stack = vm.stack[:frame.SlotBase]
	vm.push(result)
	return value.None, false, nil
}

func (vm *VM) execInherit() *Error {
	superVal := vm.peek(1)
	subVal := vm.peek(0)
	superclass, ok := superVal.TryObjClass()
	if !ok {
		return newError(KindRuntimeError, "Superclass must be a class.")
	}
	subclass, _ := subVal.TryObjClass()
	for name, m := range superclass.Methods {
		subclass.Methods[name] = m
	}
	subclass.Superclass = superclass
	vm.pop()
	return nil
}

func (vm *VM) execMethod(name string) *Error {
	methodVal := vm.peek(0)
	classVal := vm.peek(1)
	class, ok := classVal.TryObjClass()
	if !ok {
		return newError(KindRuntimeError, "Only classes may define methods.")
	}
	class.Methods[name] = methodVal
	vm.pop()
	return nil
}

// validateInteger reports whether n is exactly representable as an int64,
// the integer-valued check Range construction requires.
func validateInteger(n float64) (int64, bool) {
	i := int64(n)
	return i, float64(i) == n
}
