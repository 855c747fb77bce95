package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type arena struct {
	slots []int
}

func TestPoolConstructsOnDemand(t *testing.T) {
	p := NewPool(func() *arena { return &arena{slots: make([]int, 4)} })

	a := p.Get()
	b := p.Get()
	assert.Len(t, a.slots, 4)
	assert.NotSame(t, a, b)
	assert.Equal(t, int64(2), p.Allocated())

	p.Put(a)
	c := p.Get()
	assert.Len(t, c.slots, 4)
	assert.LessOrEqual(t, p.Allocated(), int64(3))
}
