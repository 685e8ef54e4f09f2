package main

import (
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/physarum/engine/kernels"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"github.com/Carmen-Shannon/physarum/engine/simulation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadParametersWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.toml")

	store, err := loadParameters(path)
	require.NoError(t, err)
	assert.Equal(t, simulation.DefaultParameters(), store.Parameters())
	assert.FileExists(t, path)

	require.NoError(t, os.WriteFile(path, []byte("decay_speed = 0.5\n"), 0o644))
	store, err = loadParameters(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), store.Parameters().DecaySpeed)

	require.NoError(t, os.WriteFile(path, []byte("decay_speed = 5\n"), 0o644))
	_, err = loadParameters(path)
	assert.Error(t, err)
}

func TestRunHeadless(t *testing.T) {
	dir := t.TempDir()
	params := filepath.Join(dir, "params.toml")
	require.NoError(t, os.WriteFile(params, []byte("field_width = 32\nfield_height = 32\n"), 0o644))

	cfg := config{
		backend:      renderer.BackendTypeSoftware,
		agents:       256,
		seed:         7,
		shaderDir:    filepath.Join(dir, "shaders"),
		paramsPath:   params,
		watch:        true,
		logLevel:     zapcore.InfoLevel,
		run:          true,
		frames:       3,
		snapshotPath: filepath.Join(dir, "frame.png"),
		width:        16,
		height:       16,
		debounce:     50 * time.Millisecond,
	}
	require.NoError(t, run(cfg))

	assert.FileExists(t, filepath.Join(dir, "shaders", "agent_update.wgsl"))
	f, err := os.Open(cfg.snapshotPath)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestRunRejectsIndivisibleAgentCount(t *testing.T) {
	cfg := config{
		backend: renderer.BackendTypeSoftware,
		agents:  13,
		frames:  1,
		width:   8,
		height:  8,
	}
	assert.ErrorIs(t, run(cfg), simulation.ErrAgentCountNotDivisible)
}

func TestRunChecksAgentCountAgainstKernelWorkgroup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shaders")
	paths, err := kernels.Extract(dir, false)
	require.NoError(t, err)
	src, err := os.ReadFile(paths.AgentUpdate)
	require.NoError(t, err)
	src = []byte(strings.Replace(string(src), "@workgroup_size(8)", "@workgroup_size(16)", 1))
	require.NoError(t, os.WriteFile(paths.AgentUpdate, src, 0o644))

	params := filepath.Join(t.TempDir(), "params.toml")
	require.NoError(t, os.WriteFile(params, []byte("field_width = 16\nfield_height = 16\n"), 0o644))

	cfg := config{
		backend:    renderer.BackendTypeSoftware,
		agents:     24,
		shaderDir:  dir,
		paramsPath: params,
		run:        true,
		frames:     2,
		width:      8,
		height:     8,
	}
	assert.ErrorIs(t, run(cfg), simulation.ErrAgentCountNotDivisible)

	cfg.agents = 32
	assert.NoError(t, run(cfg))
}
