package pagedkv

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// BlockID identifies a physical block within its tier.
type BlockID int

// Tier is the memory tier a physical block lives in. It is fixed at
// creation: migration between tiers copies into a new block, it never
// retags an existing one.
type Tier uint8

const (
	// TierGPU is the fast tier backing actively decoding sequences.
	TierGPU Tier = iota
	// TierCPU is the slow tier holding swapped-out sequences.
	TierCPU
)

func (t Tier) String() string {
	if t == TierGPU {
		return "gpu"
	}
	return "cpu"
}

// spinLock is a busy-retry mutex. A refcount critical section is a
// handful of instructions and never spans an engine operation, so
// spinning beats parking the goroutine.
type spinLock struct {
	held atomic.Bool
}

func (l *spinLock) lock() {
	for !l.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (l *spinLock) unlock() {
	l.held.Store(false)
}

// PhysicalBlock is a fixed-size unit of real KV storage in one tier.
// It is shared by every sequence whose block table references it; the
// refcount counts those tables and governs its lifetime.
type PhysicalBlock struct {
	id        BlockID
	tier      Tier
	blockSize int

	mu       spinLock
	refcount int
}

// ID returns the block identifier, unique within its tier.
func (b *PhysicalBlock) ID() BlockID { return b.id }

// Tier returns the tier the block was created in.
func (b *PhysicalBlock) Tier() Tier { return b.tier }

// RefCount reads the reference count under the block lock.
func (b *PhysicalBlock) RefCount() int {
	b.mu.lock()
	rc := b.refcount
	b.mu.unlock()
	return rc
}

func (b *PhysicalBlock) incRef() {
	b.mu.lock()
	b.refcount++
	b.mu.unlock()
}

// decRef drops one reference and returns the count that remains.
// Dropping a reference nobody holds is a double free.
func (b *PhysicalBlock) decRef() int {
	b.mu.lock()
	if b.refcount == 0 {
		b.mu.unlock()
		panic(fmt.Sprintf("pagedkv: %s block %d double freed", b.tier, b.id))
	}
	b.refcount--
	rc := b.refcount
	b.mu.unlock()
	return rc
}

// LogicalTokenBlock is one fixed-capacity chunk of a sequence's token
// stream. It knows nothing about physical storage.
type LogicalTokenBlock struct {
	blockID   int
	blockSize int
	tokens    []uint32
	numTokens int
}

// NewLogicalTokenBlock returns an empty logical block at position
// blockID of its owning sequence.
func NewLogicalTokenBlock(blockID, blockSize int) *LogicalTokenBlock {
	return &LogicalTokenBlock{
		blockID:   blockID,
		blockSize: blockSize,
		tokens:    make([]uint32, blockSize),
	}
}

// IsFull reports whether the block has no room for another token.
func (b *LogicalTokenBlock) IsFull() bool {
	return b.numTokens == b.blockSize
}

// NumTokens returns how many tokens the block holds.
func (b *LogicalTokenBlock) NumTokens() int { return b.numTokens }

// Tokens returns the live tokens of the block.
func (b *LogicalTokenBlock) Tokens() []uint32 {
	return b.tokens[:b.numTokens]
}

// AppendToken appends one token at the current end. Appending to a full
// block is a contract violation.
func (b *LogicalTokenBlock) AppendToken(token uint32) {
	if b.IsFull() {
		panic(fmt.Sprintf("pagedkv: append to full logical block %d", b.blockID))
	}
	b.tokens[b.numTokens] = token
	b.numTokens++
}

// AppendTokens appends tokens one by one.
func (b *LogicalTokenBlock) AppendTokens(tokens []uint32) {
	for _, token := range tokens {
		b.AppendToken(token)
	}
}
