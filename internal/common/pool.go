package common

import "fmt"

// Pool is a fixed-capacity slab allocator for book-keeping objects
// (orders, price levels). All slots are allocated up front; Get and
// Put are pointer pushes on a free list, so the matching thread never
// allocates on the hot path. Exhaustion is a sizing bug and fatal.
type Pool[T any] struct {
	store []T
	free  []*T
	name  string
}

// NewPool allocates a slab of size elements, all initially free.
func NewPool[T any](name string, size int) *Pool[T] {
	p := &Pool[T]{
		store: make([]T, size),
		free:  make([]*T, size),
		name:  name,
	}
	for i := range p.store {
		p.free[i] = &p.store[i]
	}
	return p
}

// Get returns a zeroed object from the pool. Panics if the pool is
// exhausted.
func (p *Pool[T]) Get() *T {
	if len(p.free) == 0 {
		panic(fmt.Sprintf("pool %q exhausted (capacity %d)", p.name, len(p.store)))
	}
	v := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	var zero T
	*v = zero
	return v
}

// Put returns an object to the pool. The caller must not retain the
// pointer afterwards.
func (p *Pool[T]) Put(v *T) {
	p.free = append(p.free, v)
}

// InUse reports how many objects are currently allocated.
func (p *Pool[T]) InUse() int {
	return len(p.store) - len(p.free)
}
