package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_GetPut(t *testing.T) {
	type node struct{ v int }
	p := NewPool[node]("node", 2)

	a := p.Get()
	b := p.Get()
	require.NotSame(t, a, b)
	assert.Equal(t, 2, p.InUse())

	a.v = 7
	p.Put(a)
	assert.Equal(t, 1, p.InUse())

	c := p.Get()
	assert.Equal(t, 0, c.v, "recycled object must be zeroed")
}

func TestPool_ExhaustionPanics(t *testing.T) {
	p := NewPool[int]("tiny", 1)
	p.Get()
	assert.Panics(t, func() { p.Get() })
}
