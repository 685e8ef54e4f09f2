// Package frame runs one simulation step and one display pass per frame.
package frame

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/kernels"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
	"github.com/Carmen-Shannon/physarum/engine/simulation"
	"go.uber.org/zap"
)

// State is whether the simulation advances.
type State int

const (
	// StatePaused renders the field without updating it.
	StatePaused State = iota
	// StateRunning updates agents and the field every frame before rendering.
	StateRunning
)

func (s State) String() string {
	switch s {
	case StatePaused:
		return "paused"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats describes one completed frame.
type Stats struct {
	// Frame is the frame counter value the frame ran with.
	Frame uint32
	// DeltaMillis is the time since the previous frame.
	DeltaMillis float64
	// State is the pipeline state during the frame.
	State State
	// Simulated is true when the compute branch ran.
	Simulated bool
	// Drawn is true when the display program drew the field.
	Drawn bool
}

type framePipeline struct {
	mu *sync.Mutex

	r         renderer.Renderer
	resources simulation.Resources
	params    simulation.ParameterSource
	programs  Programs
	clock     FrameClock
	quad      renderer.Mesh

	state     State
	observers []func(Stats)

	// reported holds the program state last logged per program key.
	reported map[string]program.State
	// uneven holds the agent count and work-group size last logged as not dividing.
	uneven [2]int
}

// FramePipeline runs the per-frame sequence: agent update, barrier, trail map update,
// barrier, display.
type FramePipeline interface {
	// RunFrame executes one frame. Programs that are not Linked are skipped: a compute
	// program skips the whole simulation step, the display program skips the draw.
	//
	// Returns:
	//   - error: a fatal allocation error or a renderer frame error
	RunFrame() error

	// Toggle switches between StatePaused and StateRunning.
	//
	// Returns:
	//   - State: the new state
	Toggle() State

	// State returns the current state.
	State() State

	// Programs returns the programs the pipeline runs.
	Programs() Programs

	// Clock returns the pipeline's frame clock.
	Clock() FrameClock

	// Release destroys the quad. Programs and resources belong to the caller.
	Release()
}

var _ FramePipeline = &framePipeline{}

// NewFramePipeline creates a pipeline over allocated resources. The field is created from
// the current parameters if the resources have none yet.
//
// Parameters:
//   - r: the renderer frames are recorded on
//   - resources: the agent buffer and field owner
//   - params: the source of the per-frame parameters
//   - programs: the compiled programs, in any state
//   - options: variadic list of FramePipelineBuilderOption functions
//
// Returns:
//   - FramePipeline: the pipeline, paused unless configured otherwise
//   - error: a fatal allocation error
func NewFramePipeline(r renderer.Renderer, resources simulation.Resources, params simulation.ParameterSource, programs Programs, options ...FramePipelineBuilderOption) (FramePipeline, error) {
	p := &framePipeline{
		mu:        &sync.Mutex{},
		r:         r,
		resources: resources,
		params:    params,
		programs:  programs,
		state:     StatePaused,
		reported:  make(map[string]program.State),
	}
	for _, opt := range options {
		opt(p)
	}
	if p.clock == nil {
		p.clock = NewFrameClock()
	}

	quad, err := NewQuad(r)
	if err != nil {
		return nil, err
	}
	p.quad = quad

	if resources.Field() == nil {
		size := params.Parameters().Clamp().FieldSize()
		if _, err := resources.ResizeField(size.Width, size.Height); err != nil {
			quad.Release()
			return nil, err
		}
	}
	return p, nil
}

func (p *framePipeline) Toggle() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRunning {
		p.state = StatePaused
	} else {
		p.state = StateRunning
	}
	common.Logger().Info("simulation toggled", zap.Stringer("state", p.state))
	return p.state
}

func (p *framePipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *framePipeline) Programs() Programs {
	return p.programs
}

func (p *framePipeline) Clock() FrameClock {
	return p.clock
}

func (p *framePipeline) Release() {
	if p.quad != nil {
		p.quad.Release()
		p.quad = nil
	}
}

func (p *framePipeline) RunFrame() error {
	dt := p.clock.Tick()
	seconds := float32(dt / 1000)
	params := p.params.Parameters().Clamp()
	state := p.State()
	stats := Stats{Frame: p.clock.Frame(), DeltaMillis: dt, State: state}

	field, err := p.fieldFor(params.FieldSize())
	if err != nil {
		return err
	}

	if err := p.r.BeginFrame(); err != nil {
		return fmt.Errorf("begin frame: %w", err)
	}
	visible := frameStart(field)

	if state == StateRunning && p.ready(p.programs.AgentUpdate, p.programs.TrailMapUpdate) && p.divisible() {
		// on failure v still carries whatever the step made visible
		v, err := p.simulate(visible, seconds, stats.Frame, params)
		if err != nil {
			common.Logger().Error("simulation step failed", zap.Error(err))
		} else {
			stats.Simulated = true
		}
		visible = v
	}

	if p.ready(p.programs.Display) {
		if err := p.display(visible); err != nil {
			common.Logger().Error("display failed", zap.Error(err))
		} else {
			stats.Drawn = true
		}
	}

	p.r.EndFrame()
	p.r.Present()
	p.clock.Advance()

	for _, fn := range p.observers {
		fn(stats)
	}
	return nil
}

// fieldFor returns the field, recreating it when the requested size changed.
func (p *framePipeline) fieldFor(size common.FieldSize) (*simulation.TrailMapField, error) {
	field := p.resources.Field()
	if field != nil && field.Size() == size {
		return field, nil
	}
	return p.resources.ResizeField(size.Width, size.Height)
}

// simulate runs both compute steps with a barrier after each.
func (p *framePipeline) simulate(in visibleField, dt float32, frame uint32, params simulation.SimulationParameters) (visibleField, error) {
	agents := p.resources.Agents()
	if agents == nil {
		return in, errors.New("no agents allocated")
	}

	written, err := p.updateAgents(in, agents, dt, frame, params)
	if err != nil {
		return in, err
	}
	deposited := barrier(p.r, written)
	written, err = p.updateTrailMap(deposited, dt, params)
	if err != nil {
		return deposited, err
	}
	return barrier(p.r, written), nil
}

func (p *framePipeline) updateAgents(in visibleField, agents *simulation.AgentBuffer, dt float32, frame uint32, params simulation.SimulationParameters) (pendingWrites, error) {
	size := in.field.Size()
	prog := p.programs.AgentUpdate
	prog.Use()
	u := kernels.AgentParams{
		DeltaTime:          dt,
		Frame:              frame,
		TrailMapResolution: [2]float32{float32(size.Width), float32(size.Height)},
		AgentSpeed:         params.AgentSpeed,
		SensorDistance:     params.SensorDistance,
		SensorAngle:        params.SensorAngle,
		RotationSpeed:      params.RotationSpeed,
	}
	u.Apply(prog)

	groups := uint32(agents.Count() / max(int(prog.WorkgroupSize()[0]), 1))
	err := p.r.Dispatch(renderer.Bindings{
		kernels.VarAgents:   agents.Storage(),
		kernels.VarTrailMap: in.field.Storage(),
	}, [3]uint32{groups, 1, 1})
	if err != nil {
		return pendingWrites{}, err
	}
	return pendingWrites{field: in.field, writer: prog.Key()}, nil
}

func (p *framePipeline) updateTrailMap(in visibleField, dt float32, params simulation.SimulationParameters) (pendingWrites, error) {
	size := in.field.Size()
	prog := p.programs.TrailMapUpdate
	prog.Use()
	u := kernels.TrailParams{
		DeltaTime:       dt,
		DecaySpeed:      params.DecaySpeed,
		DiffuseStrength: params.DiffuseStrength,
	}
	u.Apply(prog)

	err := p.r.Dispatch(renderer.Bindings{
		kernels.VarTrailMap: in.field.Storage(),
	}, [3]uint32{size.Width, size.Height, 1})
	if err != nil {
		return pendingWrites{}, err
	}
	return pendingWrites{field: in.field, writer: prog.Key()}, nil
}

func (p *framePipeline) display(in visibleField) error {
	size := in.field.Size()
	prog := p.programs.Display
	prog.Use()
	u := kernels.DisplayParams{TrailMapResolution: [2]float32{float32(size.Width), float32(size.Height)}}
	u.Apply(prog)

	return p.r.Draw(p.quad, renderer.Bindings{kernels.VarTrailMap: in.field.Storage()})
}

// divisible reports whether the agent count is a multiple of the agent-update work-group
// size. A reload can change the size after allocation, so the step is skipped rather than
// leaving the remainder undispatched. Logged once per change.
func (p *framePipeline) divisible() bool {
	agents := p.resources.Agents()
	if agents == nil {
		return true
	}
	wgs := max(int(p.programs.AgentUpdate.WorkgroupSize()[0]), 1)
	key := [2]int{agents.Count(), wgs}
	if agents.Count()%wgs == 0 {
		if p.uneven != ([2]int{}) {
			common.Logger().Info("agent count divides work-group size, resuming simulation", zap.Int("agents", key[0]), zap.Int("workgroup", wgs))
			p.uneven = [2]int{}
		}
		return true
	}
	if p.uneven != key {
		p.uneven = key
		common.Logger().Warn("agent count does not divide work-group size, skipping simulation",
			zap.Int("agents", key[0]),
			zap.Int("workgroup", wgs),
		)
	}
	return false
}

// ready reports whether every program is Linked, logging each program once per state change.
func (p *framePipeline) ready(progs ...program.Program) bool {
	ok := true
	for _, prog := range progs {
		if prog == nil {
			ok = false
			continue
		}
		state := prog.State()
		if last, seen := p.reported[prog.Key()]; !seen || last != state {
			p.reported[prog.Key()] = state
			switch {
			case state != program.StateLinked:
				common.Logger().Warn("program not linked, skipping it",
					zap.String("program", prog.Key()),
					zap.Stringer("state", state),
					zap.String("diagnostic", prog.Diagnostics().Link),
				)
			case seen:
				common.Logger().Info("program linked, resuming it", zap.String("program", prog.Key()))
			}
		}
		if state != program.StateLinked {
			ok = false
		}
	}
	return ok
}
