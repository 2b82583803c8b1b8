package pagedkv

import "errors"

// Options is the configuration of the block engine.
type Options struct {
	// BlockSize is the number of token slots per block, logical and
	// physical alike.
	BlockSize int

	// GPUBlocks is the fixed capacity of the fast tier.
	GPUBlocks int

	// CPUBlocks is the fixed capacity of the slow (swap) tier.
	CPUBlocks int
}

// DefaultOptions
var DefaultOptions = Options{
	BlockSize: 16,
	GPUBlocks: 1024,
	CPUBlocks: 2048,
}

func checkOptions(options Options) error {
	if options.BlockSize <= 0 {
		return errors.New("pagedkv/options: invalid block size")
	}
	if options.GPUBlocks <= 0 {
		return errors.New("pagedkv/options: invalid gpu block count")
	}
	if options.CPUBlocks <= 0 {
		return errors.New("pagedkv/options: invalid cpu block count")
	}
	return nil
}
