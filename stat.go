package pagedkv

import "github.com/bytedance/sonic"

// Stats is a point-in-time view of engine occupancy.
type Stats struct {
	BlockSize  int
	GPUFree    int
	GPUTotal   int
	CPUFree    int
	CPUTotal   int
	Sequences  int
	COWs       uint64
	SwappedIn  uint64
	SwappedOut uint64
}

// Stats
func (e *BlockEngine) Stats() Stats {
	return Stats{
		BlockSize:  e.blockSize,
		GPUFree:    e.gpu.freeCount(),
		GPUTotal:   e.gpu.capacity(),
		CPUFree:    e.cpu.freeCount(),
		CPUTotal:   e.cpu.capacity(),
		Sequences:  e.tables.Len(),
		COWs:       e.cows,
		SwappedIn:  e.swappedIn,
		SwappedOut: e.swappedOut,
	}
}

// GPUUsage
func (s Stats) GPUUsage() float64 {
	return float64(s.GPUTotal-s.GPUFree) / float64(s.GPUTotal) * 100
}

// CPUUsage
func (s Stats) CPUUsage() float64 {
	return float64(s.CPUTotal-s.CPUFree) / float64(s.CPUTotal) * 100
}

// MarshalJSON reports the engine occupancy as JSON.
func (e *BlockEngine) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(e.Stats())
}
