package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/frame"
	"github.com/Carmen-Shannon/physarum/engine/kernels"
	"github.com/Carmen-Shannon/physarum/engine/profiler"
	"github.com/Carmen-Shannon/physarum/engine/reload"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
	"github.com/Carmen-Shannon/physarum/engine/simulation"
	"github.com/Carmen-Shannon/physarum/engine/window"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWatcher struct {
	events chan reload.Event
}

func (w *fakeWatcher) Start(context.Context) error { return nil }
func (w *fakeWatcher) Events() <-chan reload.Event { return w.events }
func (w *fakeWatcher) Close() error                { return nil }

type harness struct {
	r     renderer.Renderer
	paths kernels.Paths
	store *simulation.ParameterStore
	pipe  frame.FramePipeline
	prof  *profiler.Profiler
}

func newHarness(t *testing.T, edits ...func(kernels.Paths)) *harness {
	t.Helper()
	h := &harness{}
	var err error
	h.paths, err = kernels.Extract(t.TempDir(), false)
	require.NoError(t, err)
	for _, edit := range edits {
		edit(h.paths)
	}

	h.prof, err = profiler.NewProfiler(profiler.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	opts := append(kernels.SoftwareKernels(),
		renderer.WithSurfaceSize(8, 8),
		renderer.WithSoftwareWorkers(2),
		renderer.WithCompilerOptions(program.WithCompileObserver(h.prof.ObserveCompile)),
	)
	h.r, err = renderer.NewRenderer(renderer.BackendTypeSoftware, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(h.r.Release)

	programs, _ := frame.CompilePrograms(h.r, h.paths)
	t.Cleanup(programs.Release)

	params := simulation.DefaultParameters()
	params.FieldWidth, params.FieldHeight = 16, 16
	h.store = simulation.NewParameterStore(params)

	res := simulation.NewResources(h.r, simulation.WithSeed(3))
	_, err = res.AllocateAgents(64)
	require.NoError(t, err)
	t.Cleanup(res.Release)

	h.pipe, err = frame.NewFramePipeline(h.r, res, h.store, programs, frame.WithFrameObserver(ObserveFrames(h.prof)))
	require.NoError(t, err)
	t.Cleanup(h.pipe.Release)
	return h
}

func TestRunStopsAtFrameLimit(t *testing.T) {
	h := newHarness(t)
	e := NewEngine(h.r, h.pipe, WithMaxFrames(3), WithProfiler(h.prof, true))

	require.NoError(t, e.Run())
	assert.Equal(t, uint32(3), h.pipe.Clock().Frame())
	assert.Nil(t, e.Window())
}

func TestQuitBeforeRun(t *testing.T) {
	h := newHarness(t)
	e := NewEngine(h.r, h.pipe)
	e.Quit()
	e.Quit()

	require.NoError(t, e.Run())
	assert.Zero(t, h.pipe.Clock().Frame())
}

func TestHandleKey(t *testing.T) {
	h := newHarness(t)
	e := NewEngine(h.r, h.pipe)

	e.HandleKey(window.KeyEnter)
	assert.Equal(t, frame.StateRunning, h.pipe.State())
	e.HandleKey(window.KeyUnknown)
	assert.Equal(t, frame.StateRunning, h.pipe.State())
	e.HandleKey(window.KeyEnter)
	assert.Equal(t, frame.StatePaused, h.pipe.State())

	e.HandleKey(window.KeyEscape)
	require.NoError(t, e.Run())
	assert.Zero(t, h.pipe.Clock().Frame())
}

func TestResizeLeavesFieldAlone(t *testing.T) {
	h := newHarness(t)
	e := NewEngine(h.r, h.pipe)

	e.Resize(32, 24)
	w, hh := h.r.Size()
	assert.Equal(t, 32, w)
	assert.Equal(t, 24, hh)

	e.Resize(0, 0)
	w, _ = h.r.Size()
	assert.Equal(t, 32, w)

	require.NoError(t, e.Step())
	assert.Equal(t, common.FieldSize{Width: 16, Height: 16}, h.store.Parameters().FieldSize())
}

func TestParameterReload(t *testing.T) {
	h := newHarness(t)
	w := &fakeWatcher{events: make(chan reload.Event, 4)}
	e := NewEngine(h.r, h.pipe, WithReload(w, h.store))

	path := filepath.Join(t.TempDir(), "params.toml")
	require.NoError(t, os.WriteFile(path, []byte("agent_speed = 0.5\nfield_width = 8\nfield_height = 8\n"), 0o644))
	w.events <- reload.Event{Kind: reload.EventParameters, Paths: []string{path}}
	require.NoError(t, e.Step())

	p := h.store.Parameters()
	assert.Equal(t, float32(0.5), p.AgentSpeed)
	assert.Equal(t, common.FieldSize{Width: 8, Height: 8}, p.FieldSize())

	// a rejected file keeps the previous values
	require.NoError(t, os.WriteFile(path, []byte("agent_speed = 7\n"), 0o644))
	w.events <- reload.Event{Kind: reload.EventParameters, Paths: []string{path}}
	require.NoError(t, e.Step())
	assert.Equal(t, float32(0.5), h.store.Parameters().AgentSpeed)
}

func TestShaderReloadRecompiles(t *testing.T) {
	h := newHarness(t, func(p kernels.Paths) {
		require.NoError(t, os.WriteFile(p.AgentUpdate, []byte("@compute @workgroup_size(8)\nfn agent_update( {"), 0o644))
	})
	agent := h.pipe.Programs().AgentUpdate
	require.Equal(t, program.StateLinkFailed, agent.State())

	w := &fakeWatcher{events: make(chan reload.Event, 4)}
	e := NewEngine(h.r, h.pipe, WithReload(w, h.store))

	w.events <- reload.Event{Kind: reload.EventShaders, Paths: []string{h.paths.AgentUpdate}}
	require.NoError(t, e.Step())
	assert.Equal(t, program.StateLinkFailed, agent.State())

	require.NoError(t, os.WriteFile(h.paths.AgentUpdate, []byte(kernels.AgentUpdateSource), 0o644))
	w.events <- reload.Event{Kind: reload.EventShaders, Paths: []string{h.paths.AgentUpdate}}
	require.NoError(t, e.Step())
	assert.Equal(t, program.StateLinked, agent.State())
}

func TestClosedWatcherIsDropped(t *testing.T) {
	h := newHarness(t)
	w := &fakeWatcher{events: make(chan reload.Event)}
	close(w.events)
	e := NewEngine(h.r, h.pipe, WithReload(w, h.store))

	require.NoError(t, e.Step())
	require.NoError(t, e.Step())
}

type failingPipeline struct {
	frame.FramePipeline
	err  error
	runs int
}

func (p *failingPipeline) RunFrame() error {
	p.runs++
	return p.err
}

func TestFatalErrorStopsRun(t *testing.T) {
	h := newHarness(t)
	fatal := common.NewError(common.KindAllocation, "allocate", "trail map", "out of memory", nil)
	pipe := &failingPipeline{FramePipeline: h.pipe, err: fatal}
	e := NewEngine(h.r, pipe)

	err := e.Run()
	require.Error(t, err)
	assert.True(t, common.IsFatal(err))
	assert.Equal(t, 1, pipe.runs)
}

func TestNonFatalErrorKeepsRunning(t *testing.T) {
	h := newHarness(t)
	pipe := &failingPipeline{FramePipeline: h.pipe, err: errors.New("surface lost")}
	e := NewEngine(h.r, pipe, WithMaxFrames(4))

	require.NoError(t, e.Run())
	assert.Equal(t, 4, pipe.runs)
}
