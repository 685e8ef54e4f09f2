package frame

import (
	"sync"
	"time"
)

// FrameClock samples the time between frames and counts frames.
type FrameClock interface {
	// Tick returns the milliseconds elapsed since the previous Tick, or since the clock was
	// created on the first call.
	Tick() float64

	// Frame returns the number of frames advanced so far. It wraps at 2^32.
	Frame() uint32

	// Advance counts one more frame.
	Advance()
}

type frameClock struct {
	mu    *sync.Mutex
	now   func() time.Time
	prev  time.Time
	frame uint32
}

var _ FrameClock = &frameClock{}

// FrameClockOption is a functional option used to configure a FrameClock during construction.
type FrameClockOption func(*frameClock)

// WithTimeSource replaces the wall clock, e.g. with a fake in tests.
//
// Parameters:
//   - now: the function returning the current time
//
// Returns:
//   - FrameClockOption: a function that applies the time source to the clock
func WithTimeSource(now func() time.Time) FrameClockOption {
	return func(c *frameClock) {
		c.now = now
	}
}

// WithStartFrame starts the frame counter at n.
//
// Parameters:
//   - n: the initial frame number
//
// Returns:
//   - FrameClockOption: a function that applies the counter to the clock
func WithStartFrame(n uint32) FrameClockOption {
	return func(c *frameClock) {
		c.frame = n
	}
}

// NewFrameClock creates a FrameClock starting now.
//
// Parameters:
//   - options: variadic list of FrameClockOption functions
//
// Returns:
//   - FrameClock: the clock
func NewFrameClock(options ...FrameClockOption) FrameClock {
	c := &frameClock{
		mu:  &sync.Mutex{},
		now: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	c.prev = c.now()
	return c
}

func (c *frameClock) Tick() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	dt := float64(now.Sub(c.prev)) / float64(time.Millisecond)
	c.prev = now
	return dt
}

func (c *frameClock) Frame() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

func (c *frameClock) Advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame++
}
