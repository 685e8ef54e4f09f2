// Command physarum runs the slime mould simulation in a window, or headless on the
// software renderer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine"
	"github.com/Carmen-Shannon/physarum/engine/frame"
	"github.com/Carmen-Shannon/physarum/engine/kernels"
	"github.com/Carmen-Shannon/physarum/engine/profiler"
	"github.com/Carmen-Shannon/physarum/engine/reload"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
	"github.com/Carmen-Shannon/physarum/engine/simulation"
	"github.com/Carmen-Shannon/physarum/engine/window"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := parseFlags(os.Args[0], os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(2)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	common.SetLogger(logger)

	err = run(cfg)
	_ = logger.Sync()
	if err != nil {
		logger.Error("physarum stopped", zap.Error(err), zap.Bool("fatal", common.IsFatal(err)))
		os.Exit(1)
	}
}

func newLogger(cfg config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.logDev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.logLevel)
	return zc.Build()
}

func run(cfg config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := loadParameters(cfg.paramsPath)
	if err != nil {
		return err
	}

	shaderDir := cfg.shaderDir
	if shaderDir == "" {
		tmp, err := os.MkdirTemp("", "physarum-kernels-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		shaderDir = tmp
	}
	paths, err := kernels.Extract(shaderDir, false)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prof, err := profiler.NewProfiler(profiler.WithRegisterer(reg))
	if err != nil {
		return err
	}
	if cfg.metricsAddr != "" {
		srv := serveMetrics(cfg.metricsAddr, reg)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	var (
		win     window.Window
		surface renderer.SurfaceSource
	)
	if cfg.backend == renderer.BackendTypeWGPU {
		win, err = window.NewWindow(window.WithTitle("physarum (paused)"), window.WithSize(cfg.width, cfg.height))
		if err != nil {
			return err
		}
		defer win.Close()
		surface = win
	}

	presentMode := renderer.PresentModeUncapped
	if cfg.vsync {
		presentMode = renderer.PresentModeVSync
	}
	opts := []renderer.RendererBuilderOption{
		renderer.WithPresentMode(presentMode),
		renderer.WithCompilerOptions(program.WithCompileObserver(prof.ObserveCompile)),
	}
	if cfg.backend == renderer.BackendTypeSoftware {
		opts = append(opts, renderer.WithSurfaceSize(cfg.width, cfg.height))
		opts = append(opts, kernels.SoftwareKernels()...)
	}
	r, err := renderer.NewRenderer(cfg.backend, surface, opts...)
	if err != nil {
		return err
	}
	defer r.Release()

	programs, err := frame.CompilePrograms(r, paths)
	if err != nil {
		common.Logger().Warn("some programs did not link; they are skipped until their kernels are fixed", zap.Error(err))
	}
	defer programs.Release()

	res := simulation.NewResources(r, resourceOptions(cfg, programs)...)
	defer res.Release()
	if _, err := res.AllocateAgents(cfg.agents); err != nil {
		return err
	}

	initial := frame.StatePaused
	if cfg.run {
		initial = frame.StateRunning
	}
	pipe, err := frame.NewFramePipeline(r, res, store, programs,
		frame.WithInitialState(initial),
		frame.WithFrameObserver(engine.ObserveFrames(prof)),
	)
	if err != nil {
		return err
	}
	defer pipe.Release()

	engOpts := []engine.EngineBuilderOption{
		engine.WithProfiler(prof, cfg.profile),
		engine.WithRenderFrameLimit(cfg.fpsLimit),
		engine.WithMaxFrames(cfg.frames),
	}
	if win != nil {
		engOpts = append(engOpts, engine.WithWindow(win))
	}
	if cfg.watch {
		w, err := startWatcher(ctx, cfg, shaderDir)
		if err != nil {
			return err
		}
		defer w.Close()
		engOpts = append(engOpts, engine.WithReload(w, store))
	}
	eng := engine.NewEngine(r, pipe, engOpts...)

	go func() {
		<-ctx.Done()
		eng.Quit()
	}()

	common.Logger().Info("simulation ready",
		zap.Int("agents", cfg.agents),
		zap.Stringer("state", pipe.State()),
		zap.String("shaders", shaderDir),
	)
	if err := eng.Run(); err != nil {
		return err
	}

	if cfg.snapshotPath != "" {
		return writeSnapshot(r, cfg.snapshotPath)
	}
	return nil
}

// loadParameters reads the parameter file, writing the defaults there first if it does not exist.
func loadParameters(path string) (*simulation.ParameterStore, error) {
	if path == "" {
		return simulation.NewParameterStore(simulation.DefaultParameters()), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		data, err := simulation.EncodeParameters(simulation.DefaultParameters())
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write default parameters: %w", err)
		}
	}
	p, err := simulation.LoadParameters(path)
	if err != nil {
		return nil, err
	}
	return simulation.NewParameterStore(p), nil
}

func startWatcher(ctx context.Context, cfg config, shaderDir string) (reload.Watcher, error) {
	opts := []reload.WatcherBuilderOption{reload.WithDebounce(cfg.debounce), reload.WithShaderDir(shaderDir)}
	if cfg.paramsPath != "" {
		opts = append(opts, reload.WithParameterFile(cfg.paramsPath))
	}
	w, err := reload.NewWatcher(opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.Logger().Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	common.Logger().Info("serving metrics", zap.String("addr", addr))
	return srv
}

func writeSnapshot(r renderer.Renderer, path string) error {
	img := r.Snapshot()
	if img == nil {
		return errors.New("renderer has no snapshot")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// resourceOptions ties the agent count to the work-group size the agent kernel declares.
// An unlinked kernel reports no size and the allocator keeps its default.
func resourceOptions(cfg config, programs frame.Programs) []simulation.ResourcesBuilderOption {
	var opts []simulation.ResourcesBuilderOption
	if cfg.seed != 0 {
		opts = append(opts, simulation.WithSeed(cfg.seed))
	}
	if programs.AgentUpdate != nil {
		if wgs := int(programs.AgentUpdate.WorkgroupSize()[0]); wgs > 0 {
			opts = append(opts, simulation.WithWorkgroupSize(wgs))
		}
	}
	return opts
}
