package main

import (
	"fmt"

	"github.com/pagedkv/pagedkv"
)

func main() {
	engine, err := pagedkv.New(pagedkv.Options{
		BlockSize: 4,
		GPUBlocks: 16,
		CPUBlocks: 32,
	})
	if err != nil {
		panic(err)
	}

	// Two beam branches sharing one 5-token prompt.
	prompt := []uint32{11, 12, 13, 14, 15}
	a := pagedkv.NewSeq(1, 4, prompt)
	b := pagedkv.NewSeq(2, 4, prompt)
	group := pagedkv.NewSeqGroup(a, b)

	if engine.CanAllocate(group) != pagedkv.AllocOK {
		panic("prompt does not fit")
	}
	engine.Allocate(group)
	fmt.Println("tables:", engine.BlockTable(1), engine.BlockTable(2))

	// Branch a decodes a token into the shared tail block: copy-on-write.
	if cow, ok := engine.AppendTokenSlot(a); ok {
		fmt.Printf("copy block %d -> %d before writing\n", cow.Src, cow.Dst)
	}
	a.AppendToken(42)
	fmt.Println("diverged:", engine.BlockTable(1), engine.BlockTable(2))

	// The compute layer addresses KV storage through the slot mapping.
	meta := engine.BuildInputMetadata([]pagedkv.Sequence{a}, false)
	fmt.Println("decode slots:", meta.SlotMapping)

	// Preempt the group to host memory and bring it back.
	if engine.CanSwapOut(group) {
		fmt.Println("swap out:", engine.SwapOut(group))
	}
	if engine.CanSwapIn(group) {
		fmt.Println("swap in:", engine.SwapIn(group))
	}

	stats, _ := engine.MarshalJSON()
	fmt.Println(string(stats))

	engine.FreeSequence(a)
	engine.FreeSequence(b)
	fmt.Println("gpu free:", engine.Stats().GPUFree)
}
