package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/embervm/pkg/heap"
	"github.com/kristofer/embervm/pkg/value"
)

func TestCallValueOnNonCallableIsTypeError(t *testing.T) {
	vm := New()
	var err error = vm.callValue(value.Number(3), 0)
	require.Error(t, err)
	e, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindTypeError, e.Kind)
	assert.Contains(t, e.Messages[0], "Can only call functions and classes.")
}

func TestBindMethodUndefinedNameIsAttributeError(t *testing.T) {
	vm := New()
	class := heap.Allocate(vm.heap, value.NewClass("Empty"))
	vm.push(value.FromObj(heap.Allocate(vm.heap, value.NewInstance(class))))

	var err error = vm.bindMethod(class, "missing")
	require.Error(t, err)
	e, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindAttributeError, e.Kind)
	assert.Contains(t, e.Messages[0], "Undefined property 'missing'.")
}

func TestInvokeOnNonInstanceNonBuiltinIsRuntimeError(t *testing.T) {
	vm := New()
	vm.push(value.Bool(true))

	var err error = vm.invoke("anything", 0)
	require.Error(t, err)
	e, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindRuntimeError, e.Kind)
	assert.Contains(t, e.Messages[0], "Only instances have methods.")
}

func TestBuiltinClassOfDispatchesOnObjKind(t *testing.T) {
	vm := New()
	vec := heap.Allocate(vm.heap, &value.VecObj{Class: vm.vecClass})
	r := heap.Allocate(vm.heap, &value.RangeObj{Class: vm.rangeClass})

	assert.Same(t, vm.vecClass, vm.builtinClassOf(value.FromObj(vec)))
	assert.Same(t, vm.rangeClass, vm.builtinClassOf(value.FromObj(r)))
	assert.Nil(t, vm.builtinClassOf(value.Number(1)))
}

func TestCallClassWithoutInitRejectsArguments(t *testing.T) {
	vm := New()
	class := heap.Allocate(vm.heap, value.NewClass("Plain"))
	vm.push(value.FromObj(class))
	vm.push(value.Number(1))

	var err error = vm.callClass(class, 1)
	require.Error(t, err)
	e, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindTypeError, e.Kind)
	assert.Contains(t, e.Messages[0], "Expected 0 arguments but got 1.")
}

func TestCallClassWithoutInitConstructsBareInstance(t *testing.T) {
	vm := New()
	class := heap.Allocate(vm.heap, value.NewClass("Plain"))
	vm.push(value.FromObj(class))

	err := vm.callClass(class, 0)
	require.Nil(t, err)
	inst, ok := vm.peek(0).TryObjInstance()
	require.True(t, ok)
	assert.Same(t, class, inst.Class)
}
