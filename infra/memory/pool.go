package memory

import (
	"sync"
	"sync/atomic"
)

// Pool is a typed object pool. Objects must be reset before Put.
type Pool[T any] struct {
	p         *sync.Pool
	allocated atomic.Int64
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	pool := &Pool[T]{}
	pool.p = &sync.Pool{
		New: func() any {
			pool.allocated.Add(1)
			return ctor()
		},
	}
	return pool
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	p.p.Put(v)
}

// Allocated counts objects the pool had to construct.
func (p *Pool[T]) Allocated() int64 {
	return p.allocated.Load()
}
