package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSPSC_FIFOOrder(t *testing.T) {
	prod, cons := NewSPSC[int](8)

	for i := 0; i < 5; i++ {
		require.True(t, prod.TryWrite(i))
	}
	assert.Equal(t, 5, cons.Len())

	for i := 0; i < 5; i++ {
		v, ok := cons.Read()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok := cons.Read()
	assert.False(t, ok, "ring should be empty")
}

func TestSPSC_FullRejectsWrite(t *testing.T) {
	prod, cons := NewSPSC[int](4)

	for i := 0; i < 4; i++ {
		require.True(t, prod.TryWrite(i))
	}
	assert.False(t, prod.TryWrite(99), "full ring should reject TryWrite")
	assert.Nil(t, prod.NextToWrite())

	v, ok := cons.Read()
	require.True(t, ok)
	assert.Equal(t, 0, v)

	assert.True(t, prod.TryWrite(99), "space should open after a read")
}

func TestSPSC_CapacityRoundsUpToPowerOfTwo(t *testing.T) {
	prod, _ := NewSPSC[int](5)

	for i := 0; i < 8; i++ {
		require.True(t, prod.TryWrite(i), "capacity 5 should round up to 8")
	}
	assert.False(t, prod.TryWrite(8))
}

func TestSPSC_PeekCommitRead(t *testing.T) {
	prod, cons := NewSPSC[string](4)

	assert.Nil(t, cons.Peek())

	prod.Write("a")
	prod.Write("b")

	slot := cons.Peek()
	require.NotNil(t, slot)
	assert.Equal(t, "a", *slot)
	// peeking again without committing returns the same element
	assert.Equal(t, "a", *cons.Peek())

	cons.CommitRead()
	assert.Equal(t, "b", *cons.Peek())
}

func TestSPSC_WrapAround(t *testing.T) {
	prod, cons := NewSPSC[int](4)

	for round := 0; round < 10; round++ {
		for i := 0; i < 3; i++ {
			require.True(t, prod.TryWrite(round*3+i))
		}
		for i := 0; i < 3; i++ {
			v, ok := cons.Read()
			require.True(t, ok)
			assert.Equal(t, round*3+i, v)
		}
	}
}

func TestSPSC_ConcurrentProducerConsumer(t *testing.T) {
	const total = 100000
	prod, cons := NewSPSC[uint64](1024)

	done := make(chan uint64)
	go func() {
		var sum uint64
		for n := 0; n < total; {
			if v, ok := cons.Read(); ok {
				sum += v
				n++
			}
		}
		done <- sum
	}()

	var want uint64
	for i := uint64(1); i <= total; i++ {
		prod.Write(i)
		want += i
	}

	assert.Equal(t, want, <-done, "consumer must observe every element exactly once")
}
