package pagedkv

import (
	"testing"

	"golang.org/x/exp/rand"
)

// FuzzRefcountConservation drives the engine through randomized
// allocate/append/swap/free schedules and checks that every block comes
// home: once all sequences are freed, both tiers are fully free again.
func FuzzRefcountConservation(f *testing.F) {
	f.Add(uint64(1), uint8(16))
	f.Add(uint64(42), uint8(64))
	f.Add(uint64(12345), uint8(255))

	f.Fuzz(func(t *testing.T, seed uint64, steps uint8) {
		rng := rand.New(rand.NewSource(seed))
		e, err := New(Options{BlockSize: 4, GPUBlocks: 256, CPUBlocks: 256})
		if err != nil {
			t.Fatal(err)
		}

		type liveGroup struct {
			group   *SeqGroup
			members []*Seq
			swapped bool
		}
		var groups []*liveGroup
		nextID := uint64(1)

		for i := 0; i < int(steps); i++ {
			switch rng.Intn(4) {
			case 0: // admit a new group
				n := 1 + rng.Intn(3)
				prompt := make([]uint32, 1+rng.Intn(20))
				for j := range prompt {
					prompt[j] = rng.Uint32()
				}
				members := make([]*Seq, n)
				for j := range members {
					members[j] = NewSeq(nextID, 4, prompt)
					nextID++
				}
				g := NewSeqGroup(members...)
				if e.CanAllocate(g) != AllocOK {
					continue
				}
				e.Allocate(g)
				groups = append(groups, &liveGroup{group: g, members: members})

			case 1: // decode one token on every member
				if len(groups) == 0 {
					continue
				}
				lg := groups[rng.Intn(len(groups))]
				if lg.swapped {
					continue
				}
				// Growth admission plus headroom for copy-on-write,
				// which CanAppendSlot deliberately does not count.
				if !e.CanAppendSlot(lg.group) ||
					e.Stats().GPUFree < len(lg.members) {
					continue
				}
				for _, s := range lg.members {
					e.AppendTokenSlot(s)
					s.AppendToken(rng.Uint32())
				}

			case 2: // migrate a group between tiers
				if len(groups) == 0 {
					continue
				}
				lg := groups[rng.Intn(len(groups))]
				if lg.swapped {
					if e.CanSwapIn(lg.group) {
						e.SwapIn(lg.group)
						lg.swapped = false
					}
				} else if e.CanSwapOut(lg.group) {
					e.SwapOut(lg.group)
					lg.swapped = true
				}

			case 3: // retire a group
				if len(groups) == 0 {
					continue
				}
				k := rng.Intn(len(groups))
				for _, s := range groups[k].members {
					e.FreeSequence(s)
				}
				groups = append(groups[:k], groups[k+1:]...)
			}

			// Live references never exceed what the pools handed out.
			st := e.Stats()
			if st.GPUFree < 0 || st.GPUFree > st.GPUTotal {
				t.Fatalf("gpu free count %d out of range", st.GPUFree)
			}
			if st.CPUFree < 0 || st.CPUFree > st.CPUTotal {
				t.Fatalf("cpu free count %d out of range", st.CPUFree)
			}
		}

		for _, lg := range groups {
			for _, s := range lg.members {
				e.FreeSequence(s)
			}
		}

		st := e.Stats()
		if st.GPUFree != st.GPUTotal {
			t.Fatalf("gpu leak: %d/%d free", st.GPUFree, st.GPUTotal)
		}
		if st.CPUFree != st.CPUTotal {
			t.Fatalf("cpu leak: %d/%d free", st.CPUFree, st.CPUTotal)
		}
		if st.Sequences != 0 {
			t.Fatalf("%d tables left behind", st.Sequences)
		}
	})
}
