package kernels

import (
	"os"
	"testing"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
	"github.com/Carmen-Shannon/physarum/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedKernelsReflect(t *testing.T) {
	agent, err := shader.NewShaderFromSource("agent", shader.ShaderTypeCompute, AgentUpdateSource)
	require.NoError(t, err)
	assert.Equal(t, EntryAgentUpdate, agent.EntryPoint())
	assert.Equal(t, [3]uint32{AgentWorkgroupSize, 1, 1}, agent.WorkgroupSize())
	require.NotNil(t, agent.UniformBlock())
	assert.Equal(t, uint64((&AgentParams{}).Size()), agent.UniformBlock().Size)
	for name, offset := range map[string]uint64{
		"deltaTime": 0, "frame": 4, "trailMapResolution": 8, "agentSpeed": 16,
		"sensorDistance": 20, "sensorAngle": 24, "rotationSpeed": 28,
	} {
		assert.Equal(t, offset, agent.UniformBlock().Fields[name].Offset, name)
	}
	_, _, ok := agent.BindGroupFromVarName(VarAgents)
	assert.True(t, ok)
	_, _, ok = agent.BindGroupFromVarName(VarTrailMap)
	assert.True(t, ok)

	trail, err := shader.NewShaderFromSource("trail", shader.ShaderTypeCompute, TrailMapUpdateSource)
	require.NoError(t, err)
	assert.Equal(t, EntryTrailMapUpdate, trail.EntryPoint())
	assert.Equal(t, [3]uint32{1, 1, 1}, trail.WorkgroupSize())
	assert.Equal(t, uint64(16), trail.UniformBlock().Size)

	vert, err := shader.NewShaderFromSource("vert", shader.ShaderTypeVertex, DisplayVertexSource)
	require.NoError(t, err)
	assert.Equal(t, EntryDisplayVertex, vert.EntryPoint())
	require.Len(t, vert.VertexLayouts()[0], 1)
	assert.Equal(t, uint64(common.VertexStride), vert.VertexLayouts()[0][0].ArrayStride)

	frag, err := shader.NewShaderFromSource("frag", shader.ShaderTypeFragment, DisplayFragmentSource)
	require.NoError(t, err)
	assert.Equal(t, EntryDisplayFrag, frag.EntryPoint())
	assert.Contains(t, frag.UniformBlock().Fields, "trailMapResolution")
}

func TestEmbeddedKernelsLint(t *testing.T) {
	assert.NoError(t, shader.Lint(AgentUpdateSource, shader.ShaderTypeCompute))
	assert.NoError(t, shader.Lint(TrailMapUpdateSource, shader.ShaderTypeCompute))
	assert.NoError(t, shader.Lint(DisplayVertexSource, shader.ShaderTypeVertex))
	assert.NoError(t, shader.Lint(DisplayFragmentSource, shader.ShaderTypeFragment))
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	paths, err := Extract(dir, false)
	require.NoError(t, err)
	assert.Equal(t, dir, paths.Dir())

	for _, path := range paths.All() {
		assert.FileExists(t, path)
	}
	data, err := os.ReadFile(paths.TrailMapUpdate)
	require.NoError(t, err)
	assert.Equal(t, TrailMapUpdateSource, string(data))

	// edits survive a second extraction
	require.NoError(t, os.WriteFile(paths.TrailMapUpdate, []byte("edited"), 0o644))
	_, err = Extract(dir, false)
	require.NoError(t, err)
	data, _ = os.ReadFile(paths.TrailMapUpdate)
	assert.Equal(t, "edited", string(data))

	_, err = Extract(dir, true)
	require.NoError(t, err)
	data, _ = os.ReadFile(paths.TrailMapUpdate)
	assert.Equal(t, TrailMapUpdateSource, string(data))
}

func TestHash(t *testing.T) {
	assert.Equal(t, uint32(129708002), Hash(0))
	assert.Equal(t, uint32(2831084092), Hash(1))
	assert.Equal(t, uint32(1223963391), Hash(42))
}

func TestWrap(t *testing.T) {
	tests := []struct {
		in, want float32
	}{
		{0, 0},
		{0.25, 0.25},
		{1, 0},
		{1.25, 0.25},
		{-0.25, 0.75},
		{-1e-9, 0},
	}
	for _, tt := range tests {
		got := Wrap(tt.in)
		assert.InDelta(t, tt.want, got, 1e-6, "Wrap(%v)", tt.in)
		assert.Less(t, got, float32(1))
		assert.GreaterOrEqual(t, got, float32(0))
	}
}

type simulation struct {
	r       renderer.Renderer
	agent   program.ComputeProgram
	trail   program.ComputeProgram
	display program.RenderProgram
}

func newSimulation(t *testing.T) *simulation {
	t.Helper()
	paths, err := Extract(t.TempDir(), false)
	require.NoError(t, err)

	opts := append(SoftwareKernels(), renderer.WithSurfaceSize(4, 4), renderer.WithSoftwareWorkers(2))
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Release)

	s := &simulation{r: r}
	s.agent, err = r.CompileCompute("agent_update", paths.AgentUpdate)
	require.NoError(t, err)
	s.trail, err = r.CompileCompute("trail_map_update", paths.TrailMapUpdate)
	require.NoError(t, err)
	s.display, err = r.CompileRender("display", paths.DisplayVertex, paths.DisplayFragment)
	require.NoError(t, err)
	return s
}

func (s *simulation) field(t *testing.T, w, h int, hot map[int]float32) renderer.Storage {
	t.Helper()
	st, err := s.r.AllocateStorage("trail", uint64(w*h*common.CellStride), func(mapped []byte) {
		cells := common.BytesToSlice[float32](mapped)
		for i, v := range hot {
			cells[i*4], cells[i*4+1], cells[i*4+2], cells[i*4+3] = v, v, v, v
		}
	})
	require.NoError(t, err)
	return st
}

func (s *simulation) agents(t *testing.T, agents []common.Agent) renderer.Storage {
	t.Helper()
	st, err := s.r.AllocateStorage("agents", uint64(len(agents)*common.AgentStride), func(mapped []byte) {
		copy(common.BytesToSlice[common.Agent](mapped), agents)
	})
	require.NoError(t, err)
	return st
}

func (s *simulation) read(t *testing.T, st renderer.Storage) []float32 {
	t.Helper()
	raw, err := s.r.ReadStorage(st)
	require.NoError(t, err)
	return common.BytesToSlice[float32](raw)
}

func (s *simulation) dispatchAgents(t *testing.T, params AgentParams, agents, trail renderer.Storage, count int) {
	t.Helper()
	require.NoError(t, s.r.BeginFrame())
	s.agent.Use()
	params.Apply(s.agent)
	err := s.r.Dispatch(renderer.Bindings{VarAgents: agents, VarTrailMap: trail}, [3]uint32{uint32(count / AgentWorkgroupSize), 1, 1})
	require.NoError(t, err)
	s.r.EndFrame()
}

func (s *simulation) dispatchTrail(t *testing.T, params TrailParams, trail renderer.Storage, w, h int) {
	t.Helper()
	require.NoError(t, s.r.BeginFrame())
	s.trail.Use()
	params.Apply(s.trail)
	require.NoError(t, s.r.Dispatch(renderer.Bindings{VarTrailMap: trail}, [3]uint32{uint32(w), uint32(h), 1}))
	s.r.EndFrame()
}

func TestAgentUpdateStationaryDeposits(t *testing.T) {
	s := newSimulation(t)
	const n = 8

	agents := make([]common.Agent, n)
	for i := range agents {
		agents[i] = common.Agent{X: (float32(i) + 0.5) / n, Y: (float32(i) + 0.5) / n, Heading: 0.25}
	}
	agentBuf := s.agents(t, agents)
	trail := s.field(t, n, n, nil)

	s.dispatchAgents(t, AgentParams{
		DeltaTime:          1.0 / 60,
		TrailMapResolution: [2]float32{n, n},
		SensorDistance:     0.1,
		SensorAngle:        0.2,
		RotationSpeed:      5,
	}, agentBuf, trail, n)

	got := common.BytesToSlice[common.Agent](common.SliceToBytes(s.read(t, agentBuf)))
	assert.Equal(t, agents, got)

	cells := s.read(t, trail)
	for y := range n {
		for x := range n {
			want := float32(0)
			if x == y {
				want = 1
			}
			for c := range 4 {
				assert.Equal(t, want, cells[(y*n+x)*4+c], "cell %d,%d", x, y)
			}
		}
	}
	assert.Empty(t, s.r.Hazards())
}

func TestAgentUpdateMovesAndWraps(t *testing.T) {
	s := newSimulation(t)
	agents := make([]common.Agent, AgentWorkgroupSize)
	for i := range agents {
		agents[i] = common.Agent{X: 0.9, Y: 0.5}
	}
	agentBuf := s.agents(t, agents)
	trail := s.field(t, 4, 4, nil)

	s.dispatchAgents(t, AgentParams{
		DeltaTime:          0.5,
		TrailMapResolution: [2]float32{4, 4},
		AgentSpeed:         0.5,
	}, agentBuf, trail, len(agents))

	got := common.BytesToSlice[common.Agent](common.SliceToBytes(s.read(t, agentBuf)))
	assert.InDelta(t, 0.15, got[0].X, 1e-5)
	assert.InDelta(t, 0.5, got[0].Y, 1e-5)
	assert.Zero(t, got[0].Heading)

	// landed in cell (0, 2)
	cells := s.read(t, trail)
	assert.Equal(t, float32(1), cells[(2*4+0)*4])
}

func TestAgentUpdateSteersTowardsTrail(t *testing.T) {
	s := newSimulation(t)
	agents := make([]common.Agent, AgentWorkgroupSize)
	for i := range agents {
		agents[i] = common.Agent{X: 0.625, Y: 0.625}
	}
	agentBuf := s.agents(t, agents)
	// the left sensor of every agent lands on cell (2, 3)
	trail := s.field(t, 4, 4, map[int]float32{3*4 + 2: 1})

	const dt, rotation = 1, 3
	s.dispatchAgents(t, AgentParams{
		DeltaTime:          dt,
		TrailMapResolution: [2]float32{4, 4},
		SensorDistance:     0.25,
		SensorAngle:        0.25,
		RotationSpeed:      rotation,
	}, agentBuf, trail, len(agents))

	got := common.BytesToSlice[common.Agent](common.SliceToBytes(s.read(t, agentBuf)))
	turn := float32(rotation) * dt / Tau
	for i, a := range got {
		jitter := float32(Hash(uint32(i)^Hash(0))) / 4294967295.0
		assert.InDelta(t, Wrap(jitter*turn), a.Heading, 1e-5, "agent %d", i)
		assert.Greater(t, a.Heading, float32(0))
	}
}

func TestTrailMapUpdateDecay(t *testing.T) {
	s := newSimulation(t)
	trail := s.field(t, 4, 4, map[int]float32{0: 1, 5: 0.5, 15: 1})

	s.dispatchTrail(t, TrailParams{DeltaTime: 1.0 / 60, DecaySpeed: 1, DiffuseStrength: 20}, trail, 4, 4)
	for _, v := range s.read(t, trail) {
		assert.Zero(t, v)
	}
}

func TestTrailMapUpdateIdentity(t *testing.T) {
	s := newSimulation(t)
	hot := map[int]float32{0: 1, 5: 0.5, 15: 1}
	trail := s.field(t, 4, 4, hot)
	before := append([]float32(nil), s.read(t, trail)...)

	s.dispatchTrail(t, TrailParams{DeltaTime: 1.0 / 60}, trail, 4, 4)
	assert.Equal(t, before, s.read(t, trail))
}

func TestTrailMapUpdateDiffusesWithWrap(t *testing.T) {
	s := newSimulation(t)
	trail := s.field(t, 4, 4, map[int]float32{0: 0.9})

	// diffuseStrength * deltaTime is clamped to a full blend
	s.dispatchTrail(t, TrailParams{DeltaTime: 1, DiffuseStrength: 20}, trail, 4, 4)

	cells := s.read(t, trail)
	neighbours := map[[2]int]bool{}
	for _, dy := range []int{-1, 0, 1} {
		for _, dx := range []int{-1, 0, 1} {
			neighbours[[2]int{(dx + 4) % 4, (dy + 4) % 4}] = true
		}
	}
	var total float32
	for y := range 4 {
		for x := range 4 {
			v := cells[(y*4+x)*4]
			total += v
			if neighbours[[2]int{x, y}] {
				assert.InDelta(t, 0.1, v, 1e-6, "cell %d,%d", x, y)
			} else {
				assert.Zero(t, v, "cell %d,%d", x, y)
			}
		}
	}
	assert.InDelta(t, 0.9, total, 1e-5)
}

func TestTrailMapUpdateReadsPreDispatchNeighbours(t *testing.T) {
	s := newSimulation(t)
	// two adjacent lit cells; an in-place sequential blur would make them differ
	trail := s.field(t, 4, 4, map[int]float32{5: 0.9, 6: 0.9})

	s.dispatchTrail(t, TrailParams{DeltaTime: 1, DiffuseStrength: 20}, trail, 4, 4)

	cells := s.read(t, trail)
	assert.InDelta(t, 0.2, cells[5*4], 1e-6)
	assert.Equal(t, cells[5*4], cells[6*4])
	// column 0 sees only cell 5 and column 3 only cell 6
	assert.InDelta(t, 0.1, cells[4*4], 1e-6)
	assert.Equal(t, cells[4*4], cells[7*4])
}

func TestDisplaySamplesField(t *testing.T) {
	s := newSimulation(t)
	// 2x2 field with one bright cell at (1, 0), shown on a 4x4 surface
	trail := s.field(t, 2, 2, map[int]float32{1: 2})

	vertices := []common.Vertex{
		{Position: [3]float32{1, 1, 0}, UV: [2]float32{1, 1}},
		{Position: [3]float32{1, -1, 0}, UV: [2]float32{1, 0}},
		{Position: [3]float32{-1, -1, 0}, UV: [2]float32{0, 0}},
		{Position: [3]float32{-1, 1, 0}, UV: [2]float32{0, 1}},
	}
	indices := []uint32{0, 1, 3, 1, 2, 3}
	mesh, err := s.r.CreateMesh("quad", common.SliceToBytes(vertices), common.SliceToBytes(indices), len(indices))
	require.NoError(t, err)

	require.NoError(t, s.r.BeginFrame())
	s.display.Use()
	(&DisplayParams{TrailMapResolution: [2]float32{2, 2}}).Apply(s.display)
	require.NoError(t, s.r.Draw(mesh, renderer.Bindings{VarTrailMap: trail}))
	s.r.EndFrame()
	s.r.Present()

	img := s.r.Snapshot()
	require.NotNil(t, img)
	for y := range 4 {
		for x := range 4 {
			c := img.RGBAAt(x, y)
			// uv.y grows upwards, so field row 0 is the bottom half of the image
			want := uint8(0)
			if x >= 2 && y >= 2 {
				want = 255
			}
			assert.Equal(t, want, c.R, "pixel %d,%d", x, y)
			assert.Equal(t, uint8(255), c.A)
		}
	}
}
