package vm

import (
	"github.com/kristofer/embervm/pkg/bytecode"
	"github.com/kristofer/embervm/pkg/heap"
	"github.com/kristofer/embervm/pkg/intern"
	"github.com/kristofer/embervm/pkg/value"
)

const initName = "__init__"

// VM is one interpreter instance: its operand stack, call frames, globals,
// open upvalues, and the heap/interner/chunk store it was constructed
// around. Nothing here is package-level state, so more than one VM can run
// in the same process (and the same test binary) without interfering.
type VM struct {
	heap     *heap.Heap
	interner *intern.Interner
	store    *bytecode.Store

	stack       []value.Value
	frames      []CallFrame
	activeChunk *bytecode.Chunk
	ip          int

	globals      map[string]value.Value
	openUpvalues []*value.UpvalueObj

	vecClass       *value.ClassObj
	rangeClass     *value.ClassObj
	vecIterClass   *value.ClassObj
	rangeIterClass *value.ClassObj
}

// New constructs a VM over a fresh heap, interner, and chunk store, with
// the built-in globals (clock, print, String, sentinel, Vec, Range, match,
// normalize) installed.
func New() *VM {
	vm := &VM{
		heap:    heap.New(),
		store:   bytecode.NewStore(),
		stack:   make([]value.Value, 0, StackMax),
		globals: make(map[string]value.Value),
	}
	vm.interner = intern.New(vm.heap)
	vm.heap.SetRootSource(vm)
	vm.installBuiltinClasses()
	vm.installGlobals()
	return vm
}

// Store returns the chunk store backing this VM, for callers assembling
// chunks (e.g. tests) and registering them before a call.
func (vm *VM) Store() *bytecode.Store { return vm.store }

// Heap returns the VM's heap, for callers that need to allocate constants
// (e.g. function objects for a hand-assembled chunk) before execution.
func (vm *VM) Heap() *heap.Heap { return vm.heap }

// Interner returns the VM's string interner.
func (vm *VM) Interner() *intern.Interner { return vm.interner }

// Globals exposes the global variable table, primarily for tests asserting
// on DefineGlobal/SetGlobal effects.
func (vm *VM) Globals() map[string]value.Value { return vm.globals }

// Roots implements heap.RootSource: every Value the collector must treat
// as live independent of the allocation list itself.
func (vm *VM) Roots() []value.Value {
	roots := make([]value.Value, 0, len(vm.stack)+len(vm.globals)+8)
	roots = append(roots, vm.stack...)
	for _, g := range vm.globals {
		roots = append(roots, g)
	}
	for _, f := range vm.frames {
		roots = append(roots, value.FromObj(f.Closure))
	}
	for _, uv := range vm.openUpvalues {
		roots = append(roots, value.FromObj(uv))
	}
	roots = append(roots,
		value.FromObj(vm.vecClass),
		value.FromObj(vm.rangeClass),
		value.FromObj(vm.vecIterClass),
		value.FromObj(vm.rangeIterClass),
	)
	return roots
}

// Execute runs fn as the top-level program with the given arguments and
// returns its final value. fn's arity must be len(args)+1 (the implicit
// receiver slot plus one per argument), so a top-level script run with no
// arguments has arity 1. Any upvalue slots fn declares are left nil, so a
// top-level script is expected to take zero upvalues.
func (vm *VM) Execute(fn *value.FunctionObj, args []value.Value) (value.Value, error) {
	closure := heap.Allocate(vm.heap, &value.ClosureObj{
		Function: fn,
		Upvalues: make([]*value.UpvalueObj, fn.UpvalueCount),
	})
	vm.push(value.FromObj(closure))
	for _, a := range args {
		vm.push(a)
	}
	if err := vm.callClosure(closure, len(args)); err != nil {
		vm.reset()
		return value.None, err.withTrace(vm.currentTrace())
	}

	result, err := vm.run()
	if err != nil {
		vm.reset()
		return value.None, err
	}
	return result, nil
}

// currentTrace snapshots the frame stack (plus the still-executing top
// frame's current line) as Frame values, innermost first. Frame i's current
// IP is frame i+1's saved PrevIP (the point frame i was paused at to make
// the call that pushed frame i+1); only the last frame is still running,
// so its IP is vm.ip itself. Indexing by position rather than by closure
// identity matters under recursion, where the same closure occupies many
// stacked frames.
func (vm *VM) currentTrace() []Frame {
	frames := make([]Frame, 0, len(vm.frames))
	for i, f := range vm.frames {
		frames = append(frames, Frame{Name: f.Closure.Function.Name, Line: vm.lineFor(i)})
	}
	return frames
}

func (vm *VM) lineFor(i int) int {
	f := vm.frames[i]
	chunk := vm.store.Get(f.Closure.Function.ChunkIndex)
	if chunk == nil {
		return 0
	}
	ip := vm.ip
	if i+1 < len(vm.frames) {
		ip = vm.frames[i+1].PrevIP
	}
	return chunk.LineAt(ip - 1)
}

func (vm *VM) reset() {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.openUpvalues = nil
}

func (vm *VM) push(v value.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) readByte() byte {
	b := vm.activeChunk.Code[vm.ip]
	vm.ip++
	return b
}

func (vm *VM) readU16() uint16 {
	lo := vm.activeChunk.Code[vm.ip]
	hi := vm.activeChunk.Code[vm.ip+1]
	vm.ip += 2
	return uint16(lo) | uint16(hi)<<8
}

func (vm *VM) readConstant() value.Value {
	return vm.activeChunk.Constants[vm.readByte()]
}

func (vm *VM) readString() string {
	s, _ := vm.readConstant().TryObjString()
	return s.Value
}

func (vm *VM) currentFrame() *CallFrame {
	return &vm.frames[len(vm.frames)-1]
}
