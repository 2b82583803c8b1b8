package pagedkv

import "fmt"

// InputMetadata is the per-step paged-attention view handed to the
// compute layer: where each token's KV entry lives (slot mapping), how
// long each attention context is, and the block tables to gather from.
type InputMetadata struct {
	PromptLens    []int
	MaxContextLen int
	BlockTables   [][]BlockID
	ContextLens   []int
	SlotMapping   []int
	IsPrompt      bool
}

// slot is the flat KV-storage address of one token position:
// block id scaled by block size plus the in-block offset.
func (e *BlockEngine) slot(table []BlockID, pos int) int {
	return int(table[pos/e.blockSize])*e.blockSize + pos%e.blockSize
}

// BuildInputMetadata assembles the metadata for one model step over the
// given sequences. A prompt step maps every token to its slot; a decode
// step maps only the newest position of each sequence. Every sequence
// must already be allocated (and resident on the gpu tier).
func (e *BlockEngine) BuildInputMetadata(seqs []Sequence, isPrompt bool) *InputMetadata {
	meta := &InputMetadata{IsPrompt: isPrompt}
	for _, s := range seqs {
		table := e.BlockTable(s.ID())
		if table == nil {
			panic(fmt.Sprintf("pagedkv: metadata for unallocated sequence %d", s.ID()))
		}
		n := s.NumTokens()
		meta.ContextLens = append(meta.ContextLens, n)
		if n > meta.MaxContextLen {
			meta.MaxContextLen = n
		}
		meta.BlockTables = append(meta.BlockTables, table)

		if isPrompt {
			meta.PromptLens = append(meta.PromptLens, n)
			for pos := 0; pos < n; pos++ {
				meta.SlotMapping = append(meta.SlotMapping, e.slot(table, pos))
			}
		} else {
			meta.SlotMapping = append(meta.SlotMapping, e.slot(table, n-1))
		}
	}
	return meta
}
