package pagedkv

import (
	"fmt"

	"github.com/tidwall/hashmap"
)

// AllocStatus is the engine's answer to an allocation admission query.
type AllocStatus int

const (
	// AllocOK means the group fits in the free gpu blocks right now.
	AllocOK AllocStatus = iota
	// AllocLater means the group exceeds the free gpu blocks but not
	// the tier capacity; retry after other sequences release blocks.
	AllocLater
	// AllocImpossible means the group exceeds the tier capacity and can
	// never be admitted.
	AllocImpossible
)

func (s AllocStatus) String() string {
	switch s {
	case AllocOK:
		return "ok"
	case AllocLater:
		return "later"
	default:
		return "impossible"
	}
}

// CopyOnWrite instructs the compute layer to copy the live content of
// block Src into block Dst before the next write.
type CopyOnWrite struct {
	Src BlockID
	Dst BlockID
}

// blockTable is one sequence's ordered physical backing. Tables are
// never shared between sequences; sharing is expressed through the
// block handles they hold.
type blockTable []*PhysicalBlock

// BlockEngine maps each sequence to the physical blocks backing its
// logical token stream. It owns both tier pools; pools are never touched
// except through the engine.
//
// Engine-level calls must be serialized by the caller. Admission queries
// (CanAllocate, CanAppendSlot, CanSwapIn, CanSwapOut) must be consulted
// before the corresponding mutating call; mutating calls do not
// re-validate and treat exhaustion as a contract violation.
type BlockEngine struct {
	blockSize int
	gpu       *pool
	cpu       *pool
	tables    *hashmap.Map[uint64, blockTable]

	cows       uint64
	swappedIn  uint64
	swappedOut uint64
}

// New returns a block engine with both tier pools fully free.
func New(options Options) (*BlockEngine, error) {
	if err := checkOptions(options); err != nil {
		return nil, err
	}
	return &BlockEngine{
		blockSize: options.BlockSize,
		gpu:       newPool(TierGPU, options.BlockSize, options.GPUBlocks),
		cpu:       newPool(TierCPU, options.BlockSize, options.CPUBlocks),
		tables:    hashmap.New[uint64, blockTable](8),
	}, nil
}

// BlockSize returns the configured tokens-per-block.
func (e *BlockEngine) BlockSize() int { return e.blockSize }

// CanAllocate answers whether the group's prompt fits the gpu tier:
// now (AllocOK), after others free blocks (AllocLater), or never
// (AllocImpossible).
func (e *BlockEngine) CanAllocate(group SequenceGroup) AllocStatus {
	required := group.TotalLogicalBlocks()
	switch {
	case required > e.gpu.capacity():
		return AllocImpossible
	case required > e.gpu.freeCount():
		return AllocLater
	default:
		return AllocOK
	}
}

// Allocate backs every logical block of the group with a fresh gpu block
// and hands each member sequence its own table of the shared handles, so
// siblings share all blocks until copy-on-write diverges them. Callers
// must have seen AllocOK from CanAllocate for the same group.
func (e *BlockEngine) Allocate(group SequenceGroup) {
	required := group.TotalLogicalBlocks()
	shared := make(blockTable, 0, required)
	for i := 0; i < required; i++ {
		shared = append(shared, e.gpu.allocate())
	}

	n := 0
	for id := range group.Seqs() {
		if n > 0 {
			for _, b := range shared {
				b.incRef()
			}
		}
		table := make(blockTable, len(shared))
		copy(table, shared)
		e.tables.Set(id, table)
		n++
	}
}

// CanAppendSlot answers whether the group's pending token growth fits
// the free gpu blocks.
func (e *BlockEngine) CanAppendSlot(group SequenceGroup) bool {
	return group.BlocksToAddNewToken() <= e.gpu.freeCount()
}

// AppendTokenSlot reserves physical room for the sequence's next token.
// When the write would land in a block shared with siblings it performs
// copy-on-write and returns the (src, dst) copy instruction for the
// compute layer; otherwise ok is false and no copy is needed.
func (e *BlockEngine) AppendTokenSlot(seq Sequence) (cow CopyOnWrite, ok bool) {
	table, found := e.tables.Get(seq.ID())
	if !found {
		panic(fmt.Sprintf("pagedkv: append slot for unknown sequence %d", seq.ID()))
	}

	switch need := seq.BlocksToAddNewToken(); need {
	case 1:
		// Genuinely new space, nothing to copy.
		e.tables.Set(seq.ID(), append(table, e.gpu.allocate()))
		return CopyOnWrite{}, false
	case 0:
		last := table[len(table)-1]
		if last.tier != TierGPU {
			panic(fmt.Sprintf("pagedkv: sequence %d appends into swapped-out block %d", seq.ID(), last.id))
		}
		if last.RefCount() == 1 {
			// Exclusively owned, write in place.
			return CopyOnWrite{}, false
		}
		// The write would leak into sibling sequences, so copy on write.
		fresh := e.gpu.allocate()
		e.gpu.freeBlock(last)
		table[len(table)-1] = fresh
		e.cows++
		return CopyOnWrite{Src: last.id, Dst: fresh.id}, true
	default:
		panic(fmt.Sprintf("pagedkv: sequence %d wants %d new blocks for one token", seq.ID(), need))
	}
}

// FreeSequence releases one reference to every block in the sequence's
// table and drops the table. Freeing a sequence the engine does not know
// is a contract violation.
func (e *BlockEngine) FreeSequence(seq Sequence) {
	table, found := e.tables.Delete(seq.ID())
	if !found {
		panic(fmt.Sprintf("pagedkv: sequence %d freed twice", seq.ID()))
	}
	for _, b := range table {
		e.poolOf(b.tier).freeBlock(b)
	}
}

// HasSequence reports whether the engine holds a table for the sequence.
func (e *BlockEngine) HasSequence(seqID uint64) bool {
	_, found := e.tables.Get(seqID)
	return found
}

// BlockTable returns the ids of the physical blocks backing a sequence
// in logical order, or nil for an unknown sequence. The compute layer
// reads these to address the KV storage; it must not feed them back as
// engine mutations.
func (e *BlockEngine) BlockTable(seqID uint64) []BlockID {
	table, found := e.tables.Get(seqID)
	if !found {
		return nil
	}
	ids := make([]BlockID, len(table))
	for i, b := range table {
		ids[i] = b.id
	}
	return ids
}

// CanSwapOut answers whether every table slot of the group fits the free
// cpu blocks. The count is summed without deduplicating shared blocks,
// which keeps the answer conservative.
func (e *BlockEngine) CanSwapOut(group SequenceGroup) bool {
	return e.groupSlots(group) <= e.cpu.freeCount()
}

// CanSwapIn is the gpu-side mirror of CanSwapOut.
func (e *BlockEngine) CanSwapIn(group SequenceGroup) bool {
	return e.groupSlots(group) <= e.gpu.freeCount()
}

func (e *BlockEngine) groupSlots(group SequenceGroup) (n int) {
	for id := range group.Seqs() {
		if table, found := e.tables.Get(id); found {
			n += len(table)
		}
	}
	return
}

// SwapOut migrates the group's tables from the gpu tier to the cpu tier
// and returns the gpu→cpu block id mapping the compute layer must copy.
func (e *BlockEngine) SwapOut(group SequenceGroup) map[BlockID]BlockID {
	mapping := e.swap(group, e.gpu, e.cpu)
	e.swappedOut += uint64(len(mapping))
	return mapping
}

// SwapIn migrates the group's tables from the cpu tier back to the gpu
// tier and returns the cpu→gpu block id mapping.
func (e *BlockEngine) SwapIn(group SequenceGroup) map[BlockID]BlockID {
	mapping := e.swap(group, e.cpu, e.gpu)
	e.swappedIn += uint64(len(mapping))
	return mapping
}

// swap translates every src-tier block of the group into a dst-tier
// block. Blocks shared across member sequences translate once: the dedup
// map hands later references the same destination block with its
// refcount bumped. Each source reference is released in the source pool.
//
// The whole group is prechecked against the destination free list before
// any table is touched, so a skipped admission query panics with the
// engine still consistent instead of half migrated. The precheck uses
// the same non-deduplicated count as CanSwapIn/CanSwapOut.
func (e *BlockEngine) swap(group SequenceGroup, src, dst *pool) map[BlockID]BlockID {
	if n := e.groupSlots(group); n > dst.freeCount() {
		panic(fmt.Sprintf("pagedkv: swap of %d slots exceeds %d free %s blocks", n, dst.freeCount(), dst.tier))
	}

	moved := make(map[BlockID]*PhysicalBlock)
	mapping := make(map[BlockID]BlockID)
	for id := range group.Seqs() {
		table, found := e.tables.Get(id)
		if !found {
			panic(fmt.Sprintf("pagedkv: swap for unknown sequence %d", id))
		}
		next := make(blockTable, 0, len(table))
		for _, b := range table {
			if b.tier != src.tier {
				panic(fmt.Sprintf("pagedkv: %s block %d in a %s-sourced swap", b.tier, b.id, src.tier))
			}
			nb, seen := moved[b.id]
			if seen {
				nb.incRef()
			} else {
				nb = dst.allocate()
				moved[b.id] = nb
				mapping[b.id] = nb.id
			}
			next = append(next, nb)
			src.freeBlock(b)
		}
		e.tables.Set(id, next)
	}
	return mapping
}

func (e *BlockEngine) poolOf(t Tier) *pool {
	if t == TierGPU {
		return e.gpu
	}
	return e.cpu
}
