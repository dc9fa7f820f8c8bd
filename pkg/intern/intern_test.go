package intern

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kristofer/embervm/pkg/heap"
)

func TestInternDeduplicates(t *testing.T) {
	in := New(heap.New())
	a := in.Intern("hello")
	b := in.Intern("hello")
	assert.Same(t, a, b)
	assert.Equal(t, 1, in.Len())
}

func TestInternDistinctContent(t *testing.T) {
	in := New(heap.New())
	a := in.Intern("hello")
	b := in.Intern("world")
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, in.Len())
}

func TestInternIdentityEqualsContent(t *testing.T) {
	in := New(heap.New())
	a := in.Intern("x")
	b := in.Intern("x")
	assert.Equal(t, a.Hash, b.Hash)
	assert.Same(t, a, b, "interning makes reference identity coincide with content equality")
}
