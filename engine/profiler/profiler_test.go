package profiler

import (
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func newTestProfiler(t *testing.T) (*Profiler, *prometheus.Registry, *stepClock) {
	t.Helper()
	reg := prometheus.NewRegistry()
	clock := &stepClock{t: time.Unix(0, 0)}
	p, err := NewProfiler(WithRegisterer(reg), WithTimeSource(clock.now), WithInterval(time.Second))
	require.NoError(t, err)
	return p, reg, clock
}

func TestTickLogsOncePerInterval(t *testing.T) {
	p, _, clock := newTestProfiler(t)

	for range 9 {
		clock.t = clock.t.Add(100 * time.Millisecond)
		assert.False(t, p.Tick())
	}
	clock.t = clock.t.Add(100 * time.Millisecond)
	assert.True(t, p.Tick())
	assert.Zero(t, p.frameCount)

	clock.t = clock.t.Add(100 * time.Millisecond)
	assert.False(t, p.Tick())
}

func TestReportFPS(t *testing.T) {
	p, _, _ := newTestProfiler(t)
	p.frameCount = 30
	r := p.report(500 * time.Millisecond)
	assert.InDelta(t, 60.0, r.FPS, 1e-9)
	assert.Positive(t, r.SysMB)
}

func TestObserveFrame(t *testing.T) {
	p, reg, _ := newTestProfiler(t)

	p.ObserveFrame(16*time.Millisecond, true, true)
	p.ObserveFrame(16*time.Millisecond, true, false)
	p.ObserveFrame(16*time.Millisecond, false, false)

	assert.Equal(t, 3.0, testutil.ToFloat64(p.frames))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.simulated))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.running))
	assert.Equal(t, 1, testutil.CollectAndCount(p.frameSeconds))

	count, err := testutil.GatherAndCount(reg, "physarum_frames_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestObserveCompile(t *testing.T) {
	p, _, _ := newTestProfiler(t)
	display := program.NewRenderProgram("display", "quad.vert.wgsl", "quad.frag.wgsl")
	agent := program.NewComputeProgram("agent_update", "agent.wgsl")
	failed := errors.New("link skipped")

	p.ObserveCompile(display, failed)
	p.ObserveCompile(display, failed)
	p.ObserveCompile(agent, failed)
	p.ObserveCompile(agent, nil)
	p.ObserveCompile(nil, failed)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.compileFailures.WithLabelValues("display")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.compileFailures.WithLabelValues("agent_update")))
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewProfiler(WithRegisterer(reg))
	require.NoError(t, err)
	_, err = NewProfiler(WithRegisterer(reg))
	assert.Error(t, err)

	_, err = NewProfiler(WithRegisterer(nil))
	assert.NoError(t, err)
}
