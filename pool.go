package pagedkv

import "fmt"

// pool is the free-list allocator of physical blocks for one tier.
// The free list is a LIFO stack; its order carries no meaning.
type pool struct {
	tier      Tier
	blockSize int
	total     int
	free      []*PhysicalBlock
}

func newPool(tier Tier, blockSize, numBlocks int) *pool {
	p := &pool{
		tier:      tier,
		blockSize: blockSize,
		total:     numBlocks,
		free:      make([]*PhysicalBlock, 0, numBlocks),
	}
	for id := 0; id < numBlocks; id++ {
		p.free = append(p.free, &PhysicalBlock{
			id:        BlockID(id),
			tier:      tier,
			blockSize: blockSize,
		})
	}
	return p
}

// allocate pops one free block with its refcount reset to 1. Callers
// must have checked freeCount through an admission query first; an empty
// free list here is a contract violation, not a runtime condition.
func (p *pool) allocate() *PhysicalBlock {
	if len(p.free) == 0 {
		panic(fmt.Sprintf("pagedkv: %s pool exhausted", p.tier))
	}
	b := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	b.mu.lock()
	b.refcount = 1
	b.mu.unlock()
	return b
}

// freeBlock releases one reference. The block returns to the free list
// when the last reference drops.
func (p *pool) freeBlock(b *PhysicalBlock) {
	if b.decRef() == 0 {
		p.free = append(p.free, b)
	}
}

func (p *pool) freeCount() int { return len(p.free) }

func (p *pool) capacity() int { return p.total }
