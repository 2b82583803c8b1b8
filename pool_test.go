package pagedkv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolAllocateFree(t *testing.T) {
	assert := assert.New(t)

	p := newPool(TierCPU, 4, 3)
	assert.Equal(3, p.freeCount())
	assert.Equal(3, p.capacity())

	a := p.allocate()
	b := p.allocate()
	assert.Equal(1, p.freeCount())
	if a.ID() == b.ID() {
		t.Fatal("same block handed out twice")
	}

	p.freeBlock(a)
	assert.Equal(2, p.freeCount())
	assert.Equal(0, a.RefCount())

	// LIFO: the block freed last comes back first.
	c := p.allocate()
	assert.Equal(a.ID(), c.ID())
	assert.Equal(1, c.RefCount())

	p.freeBlock(b)
	p.freeBlock(c)
	assert.Equal(3, p.freeCount())
	assert.Equal(3, p.capacity())
}

func TestPoolExhaustion(t *testing.T) {
	p := newPool(TierGPU, 4, 2)
	p.allocate()
	p.allocate()

	assert.Panics(t, func() {
		p.allocate()
	})
}

func TestPoolDoubleFree(t *testing.T) {
	p := newPool(TierGPU, 4, 1)
	b := p.allocate()
	p.freeBlock(b)

	assert.Panics(t, func() {
		p.freeBlock(b)
	})
}

func TestPoolSharedBlockFree(t *testing.T) {
	assert := assert.New(t)

	p := newPool(TierGPU, 4, 1)
	b := p.allocate()
	b.incRef()
	b.incRef()

	// Three references: the block stays out of the free list until the
	// last one drops.
	p.freeBlock(b)
	p.freeBlock(b)
	assert.Equal(0, p.freeCount())

	p.freeBlock(b)
	assert.Equal(1, p.freeCount())
}
