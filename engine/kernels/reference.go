package kernels

import (
	"fmt"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"github.com/chewxy/math32"
)

// Tau is one full turn in radians.
const Tau float32 = 6.28318530718

// Hash is the PCG output permutation used by agent_update for per-agent jitter.
//
// Parameters:
//   - value: the input word
//
// Returns:
//   - uint32: a well-mixed 32-bit word
func Hash(value uint32) uint32 {
	state := value*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}

// Wrap maps v into [0, 1).
func Wrap(v float32) float32 {
	r := v - math32.Floor(v)
	if r >= 1 {
		return 0
	}
	return r
}

// field is a read view of the trail map.
type field struct {
	cells []float32
	res   [2]float32
	w, h  uint32
}

func newField(cells []float32, res [2]float32) (field, error) {
	f := field{cells: cells, res: res, w: uint32(res[0]), h: uint32(res[1])}
	if f.w == 0 || f.h == 0 {
		return f, fmt.Errorf("trail map resolution %vx%v is empty", res[0], res[1])
	}
	if uint64(len(cells)) < uint64(f.w)*uint64(f.h)*4 {
		return f, fmt.Errorf("trail map holds %d cells, resolution needs %d", len(cells)/4, f.w*f.h)
	}
	return f, nil
}

// cell returns the index of the cell under a position, wrapping around the edges.
func (f field) cell(x, y float32) int {
	cx := min(uint32(Wrap(x)*f.res[0]), f.w-1)
	cy := min(uint32(Wrap(y)*f.res[1]), f.h-1)
	return int(cy*f.w + cx)
}

func (f field) sense(a common.Agent, offset, distance float32) float32 {
	angle := (a.Heading + offset) * Tau
	i := f.cell(a.X+math32.Cos(angle)*distance, a.Y+math32.Sin(angle)*distance) * 4
	return f.cells[i] + f.cells[i+1] + f.cells[i+2]
}

// AgentUpdate is the Go implementation of agent_update. Agents are read from the visible
// copy, so every agent senses the field as it was before the dispatch.
//
// Parameters:
//   - ctx: the dispatch context, binding agents and trailMap
//
// Returns:
//   - error: an error if a binding is missing or the field does not match its resolution
func AgentUpdate(ctx *renderer.KernelContext) error {
	agentsBuf, trail := ctx.Buffer(VarAgents), ctx.Buffer(VarTrailMap)
	if agentsBuf == nil || trail == nil || agentsBuf.Write == nil || trail.Write == nil {
		return fmt.Errorf("%s needs writable %s and %s", EntryAgentUpdate, VarAgents, VarTrailMap)
	}

	u := ctx.Uniforms
	dt := u.Float("deltaTime")
	frame := u.Uint("frame")
	speed := u.Float("agentSpeed")
	sensorDistance := u.Float("sensorDistance")
	sensorAngle := u.Float("sensorAngle")
	turn := u.Float("rotationSpeed") * dt / Tau

	f, err := newField(trail.Read, u.Vec2("trailMapResolution"))
	if err != nil {
		return err
	}

	in := common.BytesToSlice[common.Agent](common.SliceToBytes(agentsBuf.Read))
	out := common.BytesToSlice[common.Agent](common.SliceToBytes(agentsBuf.Write))
	n := min(int(ctx.Invocations()[0]), len(in))
	landed := make([]int, n)
	frameHash := Hash(frame)

	ctx.Parallel(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			a := in[i]
			forward := f.sense(a, 0, sensorDistance)
			left := f.sense(a, sensorAngle, sensorDistance)
			right := f.sense(a, -sensorAngle, sensorDistance)
			jitter := float32(Hash(uint32(i)^frameHash)) / 4294967295.0

			switch {
			case forward >= left && forward >= right:
			case forward < left && forward < right:
				a.Heading += (jitter - 0.5) * 2 * turn
			case left > right:
				a.Heading += jitter * turn
			default:
				a.Heading -= jitter * turn
			}
			a.Heading = Wrap(a.Heading)

			angle := a.Heading * Tau
			a.X = Wrap(a.X + math32.Cos(angle)*speed*dt)
			a.Y = Wrap(a.Y + math32.Sin(angle)*speed*dt)
			out[i] = a
			landed[i] = f.cell(a.X, a.Y)
		}
	})

	// deposits of different agents may share a cell
	for _, c := range landed {
		cell := trail.Write[c*4 : c*4+4]
		cell[0], cell[1], cell[2], cell[3] = 1, 1, 1, 1
	}
	return nil
}

// TrailMapUpdate is the Go implementation of trail_map_update: a wrapped 3x3 box blur
// blended in by diffuseStrength*deltaTime, then a fade by decaySpeed. The field size is
// the dispatch size. Neighbours are always read from the pre-dispatch field, the
// race-free outcome of the in-place WGSL blur.
//
// Parameters:
//   - ctx: the dispatch context, binding trailMap
//
// Returns:
//   - error: an error if the binding is missing or smaller than the dispatch
func TrailMapUpdate(ctx *renderer.KernelContext) error {
	trail := ctx.Buffer(VarTrailMap)
	if trail == nil || trail.Write == nil {
		return fmt.Errorf("%s needs a writable %s", EntryTrailMapUpdate, VarTrailMap)
	}

	w, h := int(ctx.Groups[0]), int(ctx.Groups[1])
	if len(trail.Read) < w*h*4 {
		return fmt.Errorf("%s dispatched over %dx%d cells, %s holds %d", EntryTrailMapUpdate, w, h, VarTrailMap, len(trail.Read)/4)
	}

	u := ctx.Uniforms
	blend := clamp01(u.Float("diffuseStrength") * u.Float("deltaTime"))
	keep := 1 - clamp01(u.Float("decaySpeed"))
	src, dst := trail.Read, trail.Write

	ctx.Parallel(h, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := range w {
				var sum [4]float32
				for dy := -1; dy <= 1; dy++ {
					sy := (y + dy + h) % h
					for dx := -1; dx <= 1; dx++ {
						sx := (x + dx + w) % w
						i := (sy*w + sx) * 4
						sum[0] += src[i]
						sum[1] += src[i+1]
						sum[2] += src[i+2]
						sum[3] += src[i+3]
					}
				}
				i := (y*w + x) * 4
				for c := range 4 {
					blurred := sum[c] / 9
					dst[i+c] = (src[i+c]*(1-blend) + blurred*blend) * keep
				}
			}
		}
	})
	return nil
}

// Display is the Go implementation of the display fragment stage.
//
// Parameters:
//   - ctx: the draw context, binding trailMap
//   - uv: the texture coordinate of the pixel
//
// Returns:
//   - [4]float32: the clamped cell color with full alpha
func Display(ctx *renderer.KernelContext, uv [2]float32) [4]float32 {
	trail := ctx.Buffer(VarTrailMap)
	if trail == nil {
		return [4]float32{0, 0, 0, 1}
	}
	f, err := newField(trail.Read, ctx.Uniforms.Vec2("trailMapResolution"))
	if err != nil {
		return [4]float32{0, 0, 0, 1}
	}

	cx := min(uint32(clamp01(uv[0])*f.res[0]), f.w-1)
	cy := min(uint32(clamp01(uv[1])*f.res[1]), f.h-1)
	i := int(cy*f.w+cx) * 4
	return [4]float32{clamp01(f.cells[i]), clamp01(f.cells[i+1]), clamp01(f.cells[i+2]), 1}
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}
