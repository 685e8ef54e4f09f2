// Package simulation owns the GPU-resident state of the simulation: the agent buffer, the
// trail map field and the parameters that drive them.
package simulation

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"go.uber.org/zap"
)

var (
	// ErrAgentCountNotDivisible is returned when the agent count is zero or not a multiple
	// of the work group size.
	ErrAgentCountNotDivisible = errors.New("agent count must be a positive multiple of the work group size")
	// ErrAgentsAllocated is returned when agents are allocated a second time.
	ErrAgentsAllocated = errors.New("agents already allocated")
	// ErrInvalidFieldSize is returned for a field dimension of zero.
	ErrInvalidFieldSize = errors.New("field dimensions must be at least 1")
)

// Allocator creates storage buffers. renderer.Renderer satisfies it.
type Allocator interface {
	AllocateStorage(label string, size uint64, init func(mapped []byte)) (renderer.Storage, error)
}

type resources struct {
	mu    *sync.Mutex
	alloc Allocator

	agents *AgentBuffer
	field  *TrailMapField
	seeded bool

	seed          uint64
	workgroupSize int
	workers       int
	chunk         int
}

// Resources owns the agent buffer and the trail map field.
type Resources interface {
	// AllocateAgents creates the agent buffer and seeds every agent with a uniformly random
	// position and heading. It may only succeed once per Resources.
	//
	// Parameters:
	//   - n: the number of agents, a positive multiple of the work group size
	//
	// Returns:
	//   - *AgentBuffer: the seeded buffer
	//   - error: ErrAgentCountNotDivisible, ErrAgentsAllocated, or a fatal allocation error
	AllocateAgents(n int) (*AgentBuffer, error)

	// Agents returns the agent buffer, or nil before AllocateAgents.
	Agents() *AgentBuffer

	// ResizeField replaces the trail map with a zeroed field of the given size. The old
	// field is released and its contents are lost.
	//
	// Parameters:
	//   - width: the field width in cells
	//   - height: the field height in cells
	//
	// Returns:
	//   - *TrailMapField: the new field
	//   - error: ErrInvalidFieldSize, or a fatal allocation error
	ResizeField(width, height uint32) (*TrailMapField, error)

	// Field returns the trail map, or nil before ResizeField.
	Field() *TrailMapField

	// Release destroys the agent buffer and the field.
	Release()
}

var _ Resources = &resources{}

// NewResources creates empty simulation resources.
//
// Parameters:
//   - alloc: the allocator buffers are created with
//   - options: variadic list of ResourcesBuilderOption functions
//
// Returns:
//   - Resources: the resources
func NewResources(alloc Allocator, options ...ResourcesBuilderOption) Resources {
	r := &resources{
		mu:            &sync.Mutex{},
		alloc:         alloc,
		seed:          uint64(time.Now().UnixNano()),
		workgroupSize: 8,
		workers:       defaultSeedWorkers(),
		chunk:         16384,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *resources) AllocateAgents(n int) (*AgentBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seeded {
		return nil, ErrAgentsAllocated
	}
	if n <= 0 || n%r.workgroupSize != 0 {
		return nil, fmt.Errorf("%w: %d agents, work group size %d", ErrAgentCountNotDivisible, n, r.workgroupSize)
	}

	start := time.Now()
	storage, err := r.alloc.AllocateStorage("Agents", uint64(n)*common.AgentStride, func(mapped []byte) {
		r.seedAgents(common.BytesToSlice[common.Agent](mapped)[:n])
	})
	if err != nil {
		return nil, err
	}

	r.seeded = true
	r.agents = &AgentBuffer{owner: r, storage: storage, count: n}
	common.Logger().Info("agents allocated",
		zap.Int("agents", n),
		zap.Uint64("seed", r.seed),
		zap.Duration("took", time.Since(start)),
	)
	return r.agents, nil
}

// seedAgents fills agents in chunks on a worker pool. Each chunk draws from its own PCG
// stream keyed by the seed and the chunk index, so the result does not depend on scheduling.
func (r *resources) seedAgents(agents []common.Agent) {
	pool := worker.NewDynamicWorkerPool(r.workers, 256, 1*time.Second)
	defer pool.Stop()

	var wg sync.WaitGroup
	for id, lo := 0, 0; lo < len(agents); id, lo = id+1, lo+r.chunk {
		chunk := agents[lo:min(lo+r.chunk, len(agents))]
		stream := uint64(id)
		wg.Add(1)
		pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				rng := rand.New(rand.NewPCG(r.seed, stream))
				for i := range chunk {
					chunk[i] = common.Agent{X: rng.Float32(), Y: rng.Float32(), Heading: rng.Float32()}
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
}

func (r *resources) Agents() *AgentBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agents
}

func (r *resources) ResizeField(width, height uint32) (*TrailMapField, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidFieldSize, width, height)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	size := common.FieldSize{Width: width, Height: height}
	if r.field != nil {
		r.field.storage.Release()
		r.field = nil
	}
	storage, err := r.alloc.AllocateStorage("Trail Map", size.Bytes(), nil)
	if err != nil {
		return nil, err
	}

	r.field = &TrailMapField{owner: r, storage: storage, size: size}
	common.Logger().Info("trail map resized", zap.Uint32("width", width), zap.Uint32("height", height))
	return r.field, nil
}

func (r *resources) Field() *TrailMapField {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.field
}

func (r *resources) releaseAgents(a *AgentBuffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.agents != a {
		panic("simulation: agent buffer released twice or by a non-owner")
	}
	a.storage.Release()
	r.agents = nil
}

func (r *resources) releaseField(f *TrailMapField) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.field != f {
		panic("simulation: trail map released twice or by a non-owner")
	}
	f.storage.Release()
	r.field = nil
}

func (r *resources) Release() {
	if a := r.Agents(); a != nil {
		a.Release()
	}
	if f := r.Field(); f != nil {
		f.Release()
	}
}
