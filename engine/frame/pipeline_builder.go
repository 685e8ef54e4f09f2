package frame

// FramePipelineBuilderOption is a functional option used to configure a FramePipeline during construction.
type FramePipelineBuilderOption func(*framePipeline)

// WithClock replaces the wall-clock FrameClock.
//
// Parameters:
//   - clock: the clock sampling frame times
//
// Returns:
//   - FramePipelineBuilderOption: a function that applies the clock to the pipeline
func WithClock(clock FrameClock) FramePipelineBuilderOption {
	return func(p *framePipeline) {
		p.clock = clock
	}
}

// WithInitialState sets the state the pipeline starts in. The default is StatePaused.
//
// Parameters:
//   - state: the initial state
//
// Returns:
//   - FramePipelineBuilderOption: a function that applies the state to the pipeline
func WithInitialState(state State) FramePipelineBuilderOption {
	return func(p *framePipeline) {
		p.state = state
	}
}

// WithFrameObserver registers a callback run after every frame.
//
// Parameters:
//   - fn: the callback receiving the frame's statistics
//
// Returns:
//   - FramePipelineBuilderOption: a function that applies the observer to the pipeline
func WithFrameObserver(fn func(Stats)) FramePipelineBuilderOption {
	return func(p *framePipeline) {
		p.observers = append(p.observers, fn)
	}
}
