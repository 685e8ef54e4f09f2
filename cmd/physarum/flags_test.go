package main

import (
	"io"
	"testing"
	"time"

	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags("physarum", nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, renderer.BackendTypeWGPU, cfg.backend)
	assert.Equal(t, defaultAgents, cfg.agents)
	assert.Equal(t, zapcore.InfoLevel, cfg.logLevel)
	assert.True(t, cfg.vsync)
	assert.True(t, cfg.watch)
	assert.False(t, cfg.run)
	assert.Equal(t, 250*time.Millisecond, cfg.debounce)
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags("physarum", []string{
		"-backend", "software", "-agents", "64", "-seed", "9", "-log-level", "debug",
		"-frames", "10", "-snapshot", "out.png", "-run",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, renderer.BackendTypeSoftware, cfg.backend)
	assert.Equal(t, 64, cfg.agents)
	assert.Equal(t, uint64(9), cfg.seed)
	assert.Equal(t, zapcore.DebugLevel, cfg.logLevel)
	assert.Equal(t, uint64(10), cfg.frames)
	assert.Equal(t, "out.png", cfg.snapshotPath)
	assert.True(t, cfg.run)
}

func TestParseFlagsErrors(t *testing.T) {
	tests := map[string][]string{
		"backend":          {"-backend", "vulkan"},
		"log level":        {"-log-level", "loud"},
		"agents":           {"-agents", "0"},
		"snapshot on wgpu": {"-snapshot", "out.png"},
		"positional":       {"extra"},
		"unknown flag":     {"-nope"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseFlags("physarum", args, io.Discard)
			assert.Error(t, err)
		})
	}
}
