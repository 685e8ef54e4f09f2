package simulation

import "runtime"

// ResourcesBuilderOption is a functional option used to configure Resources during construction.
type ResourcesBuilderOption func(*resources)

// WithSeed fixes the seed of the agent population.
//
// Parameters:
//   - seed: the seed from which every seeding chunk derives its random stream
//
// Returns:
//   - ResourcesBuilderOption: a function that applies the seed to the resources
func WithSeed(seed uint64) ResourcesBuilderOption {
	return func(r *resources) {
		r.seed = seed
	}
}

// WithWorkgroupSize sets the work group size agent counts must be a multiple of.
//
// Parameters:
//   - size: the @workgroup_size of the agent kernel
//
// Returns:
//   - ResourcesBuilderOption: a function that applies the work group size to the resources
func WithWorkgroupSize(size int) ResourcesBuilderOption {
	return func(r *resources) {
		if size > 0 {
			r.workgroupSize = size
		}
	}
}

// WithSeedWorkers sets how many workers seed agents in parallel.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - ResourcesBuilderOption: a function that applies the worker count to the resources
func WithSeedWorkers(n int) ResourcesBuilderOption {
	return func(r *resources) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithSeedChunk sets how many agents each seeding task fills.
//
// Parameters:
//   - n: agents per chunk
//
// Returns:
//   - ResourcesBuilderOption: a function that applies the chunk size to the resources
func WithSeedChunk(n int) ResourcesBuilderOption {
	return func(r *resources) {
		if n > 0 {
			r.chunk = n
		}
	}
}

func defaultSeedWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}
