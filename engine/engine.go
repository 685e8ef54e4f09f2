// Package engine runs the control loop: one frame per iteration, key and resize routing,
// hot reload and profiling between frames.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/frame"
	"github.com/Carmen-Shannon/physarum/engine/profiler"
	"github.com/Carmen-Shannon/physarum/engine/reload"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
	"github.com/Carmen-Shannon/physarum/engine/simulation"
	"github.com/Carmen-Shannon/physarum/engine/window"
	"go.uber.org/zap"
)

// engine implements the Engine interface.
type engine struct {
	mu *sync.Mutex
	wg sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // ensures quitChannel is only closed once
	err         error     // first fatal error, returned by Run

	renderer renderer.Renderer
	pipeline frame.FramePipeline
	window   window.Window

	watcher reload.Watcher
	store   *simulation.ParameterStore

	profiler         *profiler.Profiler
	profilingEnabled bool

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	maxFrames        uint64        // stop after this many frames; 0 = until quit
	frames           uint64
}

// Engine owns the frame loop around a FramePipeline.
type Engine interface {
	// Window returns the window frames are presented to, nil when running headless.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Pipeline returns the pipeline the loop drives.
	//
	// Returns:
	//   - frame.FramePipeline: the frame pipeline
	Pipeline() frame.FramePipeline

	// HandleKey applies a key press: Enter toggles run/pause, Escape quits.
	//
	// Parameters:
	//   - key: the pressed key
	HandleKey(key window.Key)

	// Resize reconfigures the presentation surface. The trail map keeps its resolution.
	//
	// Parameters:
	//   - width, height: the new framebuffer size in pixels
	Resize(width, height int)

	// Step runs one loop iteration: pending reload events, then one frame.
	//
	// Returns:
	//   - error: a fatal error that must stop the loop
	Step() error

	// Run drives frames until Quit, the window closes, the frame limit is reached or a
	// fatal error occurs. With a window it must be called from the main goroutine.
	//
	// Returns:
	//   - error: the fatal error that stopped the loop, nil on a normal quit
	Run() error

	// Quit stops the loop after the current frame. Safe to call multiple times.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine around a renderer and the pipeline that draws on it.
// A configured window gets its key and resize callbacks routed to the engine.
//
// Parameters:
//   - r: the renderer the pipeline records on
//   - pipeline: the frame pipeline to drive
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(r renderer.Renderer, pipeline frame.FramePipeline, options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:          &sync.Mutex{},
		quitChannel: make(chan struct{}),
		renderer:    r,
		pipeline:    pipeline,
	}
	for _, opt := range options {
		opt(e)
	}

	if e.window != nil {
		e.window.SetResizeCallback(e.Resize)
		e.window.SetKeyCallback(e.HandleKey)
	}
	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Pipeline() frame.FramePipeline {
	return e.pipeline
}

func (e *engine) HandleKey(key window.Key) {
	switch key {
	case window.KeyEnter:
		state := e.pipeline.Toggle()
		if e.window != nil {
			e.window.SetTitle(fmt.Sprintf("physarum (%s)", state))
		}
	case window.KeyEscape:
		e.Quit()
	}
}

func (e *engine) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		// minimized
		return
	}
	e.renderer.Resize(width, height)
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
		if e.window != nil {
			e.window.RequestClose()
		}
	})
}

func (e *engine) quitting() bool {
	select {
	case <-e.quitChannel:
		return true
	default:
		return false
	}
}

// fail records the first fatal error and quits.
func (e *engine) fail(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
	common.Logger().Error("fatal error, stopping", zap.Error(err))
	e.Quit()
}

func (e *engine) Run() error {
	e.wg.Add(1)
	go e.handleRender()

	if e.window != nil {
		e.window.ProcessMessages()
		// the user closed the window
		e.Quit()
	} else {
		<-e.quitChannel
	}
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// handleRender runs frames in its own goroutine until quit.
// Recovers from panics so the window thread can shut down cleanly.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.fail(fmt.Errorf("render goroutine panicked: %v", r))
		}
	}()

	for !e.quitting() {
		start := time.Now()
		if err := e.Step(); err != nil {
			e.fail(err)
			return
		}

		e.frames++
		if e.maxFrames > 0 && e.frames >= e.maxFrames {
			e.Quit()
			return
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(start); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

func (e *engine) Step() error {
	e.drainReload()

	if err := e.pipeline.RunFrame(); err != nil {
		if common.IsFatal(err) {
			return err
		}
		common.Logger().Warn("frame failed", zap.Error(err))
	}

	if e.profilingEnabled && e.profiler != nil {
		e.profiler.Tick()
	}
	return nil
}

// drainReload applies every pending reload event without blocking.
func (e *engine) drainReload() {
	if e.watcher == nil {
		return
	}
	for {
		select {
		case ev, ok := <-e.watcher.Events():
			if !ok {
				e.watcher = nil
				return
			}
			e.applyReload(ev)
		default:
			return
		}
	}
}

func (e *engine) applyReload(ev reload.Event) {
	switch ev.Kind {
	case reload.EventShaders:
		for _, p := range reload.Affected(e.pipeline.Programs().All(), ev.Paths) {
			e.recompile(p)
		}
	case reload.EventParameters:
		if e.store == nil || len(ev.Paths) == 0 {
			return
		}
		params, err := simulation.LoadParameters(ev.Paths[0])
		if err != nil {
			common.Logger().Warn("parameter reload rejected, keeping previous values",
				zap.String("path", ev.Paths[0]), zap.Error(err))
			return
		}
		e.store.Replace(params)
		common.Logger().Info("parameters reloaded", zap.String("path", ev.Paths[0]))
	}
}

func (e *engine) recompile(p program.Program) {
	if err := e.renderer.Recompile(p); err != nil {
		common.Logger().Warn("recompile failed", zap.String("program", p.Key()), zap.Error(err))
		return
	}
	common.Logger().Info("program recompiled", zap.String("program", p.Key()))
}

// ObserveFrames returns a frame observer that feeds a profiler's metrics.
//
// Parameters:
//   - p: the profiler to feed
//
// Returns:
//   - func(frame.Stats): an observer for frame.WithFrameObserver
func ObserveFrames(p *profiler.Profiler) func(frame.Stats) {
	return func(s frame.Stats) {
		dt := time.Duration(s.DeltaMillis * float64(time.Millisecond))
		p.ObserveFrame(dt, s.State == frame.StateRunning, s.Simulated)
	}
}
