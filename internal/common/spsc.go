package common

import (
	"runtime"
	"sync/atomic"
)

const cacheLineSize = 64

// spscRing is a bounded single-producer single-consumer ring with
// capacity rounded up to a power of two. head counts elements ever
// written, tail counts elements ever read; both only wrap modulo 2^64.
// The producer publishes a slot by storing head (release); the
// consumer observes it via the matching load (acquire). head and tail
// live on separate cache lines so the two threads do not false-share.
type spscRing[T any] struct {
	buf  []T
	mask uint64

	_    [cacheLineSize]byte
	head atomic.Uint64
	_    [cacheLineSize - 8]byte
	tail atomic.Uint64
	_    [cacheLineSize - 8]byte
}

// Producer is the write endpoint of an SPSC ring. It must only be
// used from a single goroutine.
type Producer[T any] struct {
	r *spscRing[T]
	// local copy of head; only the producer advances it
	head uint64
}

// Consumer is the read endpoint of an SPSC ring. It must only be
// used from a single goroutine.
type Consumer[T any] struct {
	r *spscRing[T]
	// local copy of tail; only the consumer advances it
	tail uint64
}

// NewSPSC creates a bounded SPSC ring and hands out its two
// endpoints. Binding each endpoint to exactly one goroutine is the
// caller's contract; every inter-thread queue in the system is built
// on this pair.
func NewSPSC[T any](capacity int) (*Producer[T], *Consumer[T]) {
	n := roundUpPowerOfTwo(uint64(capacity))
	r := &spscRing[T]{
		buf:  make([]T, n),
		mask: n - 1,
	}
	return &Producer[T]{r: r}, &Consumer[T]{r: r}
}

func roundUpPowerOfTwo(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	v++
	return v
}

// NextToWrite returns the slot the next element would occupy, or nil
// if the ring is full. The slot contents are not visible to the
// consumer until CommitWrite.
func (p *Producer[T]) NextToWrite() *T {
	tail := p.r.tail.Load()
	if p.head-tail == uint64(len(p.r.buf)) {
		return nil
	}
	return &p.r.buf[p.head&p.r.mask]
}

// CommitWrite publishes the slot previously returned by NextToWrite.
func (p *Producer[T]) CommitWrite() {
	p.head++
	p.r.head.Store(p.head)
}

// TryWrite writes one element, failing if the ring is full.
func (p *Producer[T]) TryWrite(v T) bool {
	slot := p.NextToWrite()
	if slot == nil {
		return false
	}
	*slot = v
	p.CommitWrite()
	return true
}

// Write writes one element, spinning with a scheduler pause while the
// ring is full. This is the hot-path variant: fullness back-pressures
// the producer instead of dropping.
func (p *Producer[T]) Write(v T) {
	for {
		if p.TryWrite(v) {
			return
		}
		runtime.Gosched()
	}
}

// Len reports the number of elements currently buffered.
func (p *Producer[T]) Len() int {
	return int(p.head - p.r.tail.Load())
}

// Peek returns the oldest unread element in place, or nil if the ring
// is empty. The slot stays owned by the ring until CommitRead.
func (c *Consumer[T]) Peek() *T {
	head := c.r.head.Load()
	if c.tail == head {
		return nil
	}
	return &c.r.buf[c.tail&c.r.mask]
}

// CommitRead releases the slot previously returned by Peek.
func (c *Consumer[T]) CommitRead() {
	c.tail++
	c.r.tail.Store(c.tail)
}

// Read pops one element, failing if the ring is empty.
func (c *Consumer[T]) Read() (T, bool) {
	slot := c.Peek()
	if slot == nil {
		var zero T
		return zero, false
	}
	v := *slot
	c.CommitRead()
	return v, true
}

// Len reports the number of elements currently buffered.
func (c *Consumer[T]) Len() int {
	return int(c.r.head.Load() - c.tail)
}
