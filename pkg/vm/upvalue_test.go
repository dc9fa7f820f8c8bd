package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kristofer/embervm/pkg/value"
)

func TestCaptureUpvalueDedupsPerSlot(t *testing.T) {
	m := New()
	m.stack = append(m.stack, value.Number(1), value.Number(2))

	a := m.captureUpvalue(0)
	b := m.captureUpvalue(0)
	assert.Same(t, a, b, "at most one open upvalue per slot")
	assert.Len(t, m.openUpvalues, 1)

	c := m.captureUpvalue(1)
	assert.NotSame(t, a, c)
	assert.Len(t, m.openUpvalues, 2)
}

func TestReadWriteUpvalueWhileOpen(t *testing.T) {
	m := New()
	m.stack = append(m.stack, value.Number(10))
	uv := m.captureUpvalue(0)

	assert.Equal(t, value.Number(10), m.readUpvalue(uv))
	m.writeUpvalue(uv, value.Number(20))
	assert.Equal(t, value.Number(20), m.stack[0], "writing an open upvalue writes through to the stack slot")
}

func TestCloseUpvalueTransitionsAndDropsFromOpenList(t *testing.T) {
	m := New()
	m.stack = append(m.stack, value.Number(1), value.Number(2))
	uv0 := m.captureUpvalue(0)
	uv1 := m.captureUpvalue(1)

	m.closeUpvalues(0, value.Number(99))

	assert.False(t, uv0.Open)
	assert.Equal(t, value.Number(99), uv0.Closed)
	assert.Equal(t, value.Number(99), m.readUpvalue(uv0), "closed upvalue reads its snapshot, not the stack")
	assert.Len(t, m.openUpvalues, 1)
	assert.Same(t, uv1, m.openUpvalues[0])

	m.writeUpvalue(uv0, value.Number(100))
	assert.Equal(t, value.Number(100), uv0.Closed)
	assert.Equal(t, value.Number(2), m.stack[1], "closing slot 0 must not disturb slot 1")
}
