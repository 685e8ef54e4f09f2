package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"go.uber.org/zap/zapcore"
)

// defaultAgents is 10000 work groups of 8 agents.
const defaultAgents = 80000

// config holds the command-line options.
type config struct {
	backend      renderer.RendererBackendType
	agents       int
	seed         uint64
	shaderDir    string
	paramsPath   string
	watch        bool
	logLevel     zapcore.Level
	logDev       bool
	metricsAddr  string
	vsync        bool
	fpsLimit     float64
	profile      bool
	run          bool
	frames       uint64
	snapshotPath string
	width        int
	height       int
	debounce     time.Duration
}

// parseFlags reads the command line into a config.
func parseFlags(name string, args []string, output io.Writer) (config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		cfg      config
		backend  string
		logLevel string
	)
	fs.StringVar(&backend, "backend", "wgpu", "renderer backend: wgpu or software (headless)")
	fs.IntVar(&cfg.agents, "agents", defaultAgents, "number of agents, a multiple of the agent work group size")
	fs.Uint64Var(&cfg.seed, "seed", 0, "agent seeding seed; 0 seeds from the clock")
	fs.StringVar(&cfg.shaderDir, "shaders", "", "kernel source directory, populated with the built-in kernels if empty")
	fs.StringVar(&cfg.paramsPath, "params", "", "simulation parameter TOML file, created with the defaults if missing")
	fs.BoolVar(&cfg.watch, "watch", true, "reload edited kernels and parameters while running")
	fs.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.BoolVar(&cfg.logDev, "log-dev", false, "human-readable development logging")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	fs.BoolVar(&cfg.vsync, "vsync", true, "synchronize presentation with the display")
	fs.Float64Var(&cfg.fpsLimit, "fps", 0, "frame rate cap; 0 is uncapped")
	fs.BoolVar(&cfg.profile, "profile", false, "log frame rate and memory statistics every second")
	fs.BoolVar(&cfg.run, "run", false, "start running instead of paused")
	fs.Uint64Var(&cfg.frames, "frames", 0, "stop after this many frames; 0 runs until quit")
	fs.StringVar(&cfg.snapshotPath, "snapshot", "", "write the last software frame to this PNG file")
	fs.IntVar(&cfg.width, "width", 800, "window width")
	fs.IntVar(&cfg.height, "height", 800, "window height")
	fs.DurationVar(&cfg.debounce, "debounce", 250*time.Millisecond, "quiet period before a reload is applied")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if fs.NArg() > 0 {
		return config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	var err error
	if cfg.backend, err = renderer.ParseBackendType(backend); err != nil {
		return config{}, err
	}
	if cfg.logLevel, err = zapcore.ParseLevel(logLevel); err != nil {
		return config{}, err
	}
	if cfg.agents <= 0 {
		return config{}, errors.New("-agents must be positive")
	}
	if cfg.snapshotPath != "" && cfg.backend != renderer.BackendTypeSoftware {
		return config{}, errors.New("-snapshot needs -backend software")
	}
	return cfg, nil
}
