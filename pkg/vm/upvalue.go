package vm

import (
	"github.com/kristofer/embervm/pkg/heap"
	"github.com/kristofer/embervm/pkg/value"
)

// captureUpvalue returns the open upvalue for stack slot, reusing one
// already open on that slot rather than allocating a duplicate. The
// original this is grounded on does a best-effort linear scan that can
// leave two open upvalues pointing at the same slot; enforcing at most one
// per slot here is a deliberate strengthening, since nothing depends on the
// weaker behavior and the dedup is what SetUpvalue/GetUpvalue/closing all
// assume.
func (vm *VM) captureUpvalue(slot int) *value.UpvalueObj {
	for _, uv := range vm.openUpvalues {
		if uv.Open && uv.Slot == slot {
			return uv
		}
	}
	uv := heap.Allocate(vm.heap, &value.UpvalueObj{Open: true, Slot: slot})
	vm.openUpvalues = append(vm.openUpvalues, uv)
	return uv
}

// closeUpvalues transitions every open upvalue referencing slot to Closed,
// snapshotting val, and drops it from the open list. Called once per local
// slot going out of scope, so most calls find nothing to do.
func (vm *VM) closeUpvalues(slot int, val value.Value) {
	remaining := vm.openUpvalues[:0]
	for _, uv := range vm.openUpvalues {
		if uv.Slot == slot {
			uv.Open = false
			uv.Closed = val
			continue
		}
		remaining = append(remaining, uv)
	}
	vm.openUpvalues = remaining
}

func (vm *VM) readUpvalue(uv *value.UpvalueObj) value.Value {
	if uv.Open {
		return vm.stack[uv.Slot]
	}
	return uv.Closed
}

func (vm *VM) writeUpvalue(uv *value.UpvalueObj, v value.Value) {
	if uv.Open {
		vm.stack[uv.Slot] = v
	} else {
		uv.Closed = v
	}
}
