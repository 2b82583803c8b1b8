package main

import (
	"flag"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/pagedkv/pagedkv"
	"golang.org/x/exp/rand"
)

var previousPause time.Duration

func gcPause() time.Duration {
	runtime.GC()
	var stats debug.GCStats
	debug.ReadGCStats(&stats)
	pause := stats.PauseTotal - previousPause
	previousPause = stats.PauseTotal
	return pause
}

func main() {
	var blockSize, gpuBlocks, groups, beams, steps int
	flag.IntVar(&blockSize, "blocksize", 16, "tokens per block")
	flag.IntVar(&gpuBlocks, "blocks", 64*1024, "gpu tier capacity")
	flag.IntVar(&groups, "groups", 10000, "sequence groups to run")
	flag.IntVar(&beams, "beams", 2, "sequences per group")
	flag.IntVar(&steps, "steps", 64, "decode steps per group")
	flag.Parse()

	fmt.Printf("groups: %d, beams: %d, steps: %d\n", groups, beams, steps)

	engine, err := pagedkv.New(pagedkv.Options{
		BlockSize: blockSize,
		GPUBlocks: gpuBlocks,
		CPUBlocks: gpuBlocks,
	})
	if err != nil {
		panic(err)
	}

	prompt := make([]uint32, blockSize*8)
	for i := range prompt {
		prompt[i] = rand.Uint32()
	}

	start := time.Now()
	var id uint64
	for g := 0; g < groups; g++ {
		members := make([]*pagedkv.Seq, beams)
		for i := range members {
			id++
			members[i] = pagedkv.NewSeq(id, blockSize, prompt)
		}
		group := pagedkv.NewSeqGroup(members...)
		if engine.CanAllocate(group) != pagedkv.AllocOK {
			panic("tier sized too small for the workload")
		}
		engine.Allocate(group)

		for s := 0; s < steps; s++ {
			if !engine.CanAppendSlot(group) {
				break
			}
			for _, seq := range members {
				engine.AppendTokenSlot(seq)
				seq.AppendToken(rand.Uint32())
			}
		}
		for _, seq := range members {
			engine.FreeSequence(seq)
		}
	}

	elapsed := time.Since(start)
	ops := groups * beams * steps
	fmt.Printf("cost: %v, avg: %v/token\n", elapsed, elapsed/time.Duration(ops))
	fmt.Println("gc pause:", gcPause())

	stats, _ := engine.MarshalJSON()
	fmt.Println(string(stats))
}
