package engine

import (
	"time"

	"github.com/Carmen-Shannon/physarum/engine/profiler"
	"github.com/Carmen-Shannon/physarum/engine/reload"
	"github.com/Carmen-Shannon/physarum/engine/simulation"
	"github.com/Carmen-Shannon/physarum/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
type EngineBuilderOption func(*engine)

// WithWindow routes a window's keys and resizes to the engine and runs its message loop in Run.
//
// Parameters:
//   - w: the open window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithProfiler sets the profiler that logs frame statistics every interval.
//
// Parameters:
//   - p: the profiler
//   - enabled: if true, statistics are logged every interval
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler, enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
		e.profilingEnabled = enabled
	}
}

// WithReload applies a watcher's events at the start of each frame. Parameter events
// replace the contents of store.
//
// Parameters:
//   - w: a started watcher
//   - store: the parameters the pipeline reads
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithReload(w reload.Watcher, store *simulation.ParameterStore) EngineBuilderOption {
	return func(e *engine) {
		e.watcher = w
		e.store = store
	}
}

// WithRenderFrameLimit sets an optional frame rate cap in frames per second.
// Pass 0 to uncap the loop (default).
//
// Parameters:
//   - fps: maximum frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithMaxFrames stops Run after n frames. Pass 0 to run until quit (default).
//
// Parameters:
//   - n: the number of frames to run
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithMaxFrames(n uint64) EngineBuilderOption {
	return func(e *engine) {
		e.maxFrames = n
	}
}
