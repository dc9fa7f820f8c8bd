package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kristofer/embervm/pkg/value"
)

func TestChunkAddConstantAndWrite(t *testing.T) {
	c := NewChunk()
	idx := c.AddConstant(value.Number(42))
	assert.Equal(t, 0, idx)

	c.WriteOp(OpConstant, 1)
	c.Write(byte(idx), 1)
	c.WriteOp(OpReturn, 2)

	assert.Equal(t, []byte{byte(OpConstant), 0, byte(OpReturn)}, c.Code)
	assert.Equal(t, []int{1, 1, 2}, c.Lines)
}

func TestChunkWriteU16LittleEndian(t *testing.T) {
	c := NewChunk()
	c.WriteU16(0x0102, 1)
	assert.Equal(t, []byte{0x02, 0x01}, c.Code)
}

func TestChunkLineAtOutOfRange(t *testing.T) {
	c := NewChunk()
	assert.Equal(t, 0, c.LineAt(-1))
	assert.Equal(t, 0, c.LineAt(100))
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "ADD", OpAdd.String())
	assert.Equal(t, "UNKNOWN", Op(255).String())
}

func TestStoreAddAndGet(t *testing.T) {
	s := NewStore()
	c1 := NewChunk()
	c2 := NewChunk()

	i1 := s.Add(c1)
	i2 := s.Add(c2)
	assert.Equal(t, 0, i1)
	assert.Equal(t, 1, i2)

	assert.Same(t, c1, s.Get(i1))
	assert.Same(t, c2, s.Get(i2))
	assert.Nil(t, s.Get(99))
	assert.Nil(t, s.Get(-1))
}
