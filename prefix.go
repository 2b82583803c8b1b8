package pagedkv

import (
	"encoding/binary"

	"github.com/tidwall/hashmap"
	"github.com/zeebo/xxh3"
)

// PrefixIndex maps the content hash of a chain of full logical blocks to
// the physical block realizing it, so a scheduler can recognize shared
// prompt prefixes across requests before allocating. The index is
// maintained by the caller; the engine's own invariants never depend on
// it.
type PrefixIndex struct {
	m *hashmap.Map[uint64, BlockID]
}

// NewPrefixIndex
func NewPrefixIndex() *PrefixIndex {
	return &PrefixIndex{m: hashmap.New[uint64, BlockID](8)}
}

// ChainHash extends prev with the content of one full block of tokens.
// Chaining keeps equal chunks at different positions distinct.
func ChainHash(prev uint64, tokens []uint32) uint64 {
	buf := make([]byte, 8+4*len(tokens))
	binary.LittleEndian.PutUint64(buf, prev)
	for i, token := range tokens {
		binary.LittleEndian.PutUint32(buf[8+4*i:], token)
	}
	return xxh3.Hash(buf)
}

// Put records the physical block realizing the hashed chain.
func (ix *PrefixIndex) Put(hash uint64, id BlockID) {
	ix.m.Set(hash, id)
}

// Get returns the physical block recorded for the hashed chain.
func (ix *PrefixIndex) Get(hash uint64) (BlockID, bool) {
	return ix.m.Get(hash)
}

// Delete forgets a chain, e.g. when its block is reclaimed.
func (ix *PrefixIndex) Delete(hash uint64) bool {
	_, found := ix.m.Delete(hash)
	return found
}

// Len returns the number of indexed chains.
func (ix *PrefixIndex) Len() int { return ix.m.Len() }

// CachedBlocks returns the physical blocks of the longest indexed prefix
// of full token blocks.
func (ix *PrefixIndex) CachedBlocks(tokens []uint32, blockSize int) []BlockID {
	var ids []BlockID
	var h uint64
	for start := 0; start+blockSize <= len(tokens); start += blockSize {
		h = ChainHash(h, tokens[start:start+blockSize])
		id, found := ix.m.Get(h)
		if !found {
			break
		}
		ids = append(ids, id)
	}
	return ids
}

// IndexSequence publishes every full logical block of an allocated
// sequence under its chain hash.
func (ix *PrefixIndex) IndexSequence(seq *Seq, table []BlockID) {
	var h uint64
	for i, b := range seq.LogicalBlocks() {
		if !b.IsFull() || i >= len(table) {
			break
		}
		h = ChainHash(h, b.Tokens())
		ix.Put(h, table[i])
	}
}
