package pagedkv

import (
	"testing"

	"golang.org/x/exp/rand"
)

func benchEngine(b *testing.B, blockSize, gpu, cpu int) *BlockEngine {
	b.Helper()
	e, err := New(Options{BlockSize: blockSize, GPUBlocks: gpu, CPUBlocks: cpu})
	if err != nil {
		b.Fatal(err)
	}
	return e
}

func benchTokens(n int) []uint32 {
	tokens := make([]uint32, n)
	for i := range tokens {
		tokens[i] = rand.Uint32()
	}
	return tokens
}

func BenchmarkAllocateFree(b *testing.B) {
	e := benchEngine(b, 16, 1024, 1024)
	prompt := benchTokens(128)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := NewSeq(uint64(i), 16, prompt)
		e.Allocate(NewSeqGroup(s))
		e.FreeSequence(s)
	}
}

func BenchmarkAppendTokenSlot(b *testing.B) {
	e := benchEngine(b, 16, 4096, 16)
	s := NewSeq(1, 16, benchTokens(16))
	e.Allocate(NewSeqGroup(s))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Recycle before the sequence outgrows the tier.
		if s.NumTokens() >= 16*4000 {
			b.StopTimer()
			e.FreeSequence(s)
			s = NewSeq(uint64(i)+2, 16, benchTokens(16))
			e.Allocate(NewSeqGroup(s))
			b.StartTimer()
		}
		e.AppendTokenSlot(s)
		s.AppendToken(uint32(i))
	}
}

func BenchmarkSwapOutIn(b *testing.B) {
	e := benchEngine(b, 16, 256, 256)
	prompt := benchTokens(16 * 64)
	s := NewSeq(1, 16, prompt)
	g := NewSeqGroup(s)
	e.Allocate(g)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.SwapOut(g)
		e.SwapIn(g)
	}
}

func BenchmarkBuildInputMetadata(b *testing.B) {
	e := benchEngine(b, 16, 1024, 16)
	seqs := make([]Sequence, 32)
	for i := range seqs {
		s := NewSeq(uint64(i), 16, benchTokens(256))
		e.Allocate(NewSeqGroup(s))
		seqs[i] = s
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.BuildInputMetadata(seqs, false)
	}
}
