package frame

import (
	"errors"

	"github.com/Carmen-Shannon/physarum/engine/kernels"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
)

// Program keys.
const (
	KeyAgentUpdate    = "agent_update"
	KeyTrailMapUpdate = "trail_map_update"
	KeyDisplay        = "display"
)

// Programs are the three programs a frame runs.
type Programs struct {
	AgentUpdate    program.ComputeProgram
	TrailMapUpdate program.ComputeProgram
	Display        program.RenderProgram
}

// All returns the programs in frame order.
func (p Programs) All() []program.Program {
	return []program.Program{p.AgentUpdate, p.TrailMapUpdate, p.Display}
}

// Release destroys every program.
func (p Programs) Release() {
	for _, pr := range p.All() {
		if pr != nil {
			pr.Release()
		}
	}
}

// CompilePrograms compiles the simulation programs from a shader directory. Every program
// is returned even when some fail, so the frame loop can run with the ones that linked.
//
// Parameters:
//   - r: the renderer compiling the programs
//   - paths: the kernel sources
//
// Returns:
//   - Programs: all three programs, in whatever state compilation reached
//   - error: every compile failure joined, nil if all three are Linked
func CompilePrograms(r renderer.Renderer, paths kernels.Paths) (Programs, error) {
	var errs []error
	agent, err := r.CompileCompute(KeyAgentUpdate, paths.AgentUpdate)
	errs = append(errs, err)
	trail, err := r.CompileCompute(KeyTrailMapUpdate, paths.TrailMapUpdate)
	errs = append(errs, err)
	display, err := r.CompileRender(KeyDisplay, paths.DisplayVertex, paths.DisplayFragment)
	errs = append(errs, err)

	return Programs{AgentUpdate: agent, TrailMapUpdate: trail, Display: display}, errors.Join(errs...)
}
