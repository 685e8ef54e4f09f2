package profiler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets how often Tick logs statistics.
//
// Parameters:
//   - d: the logging interval; values <= 0 keep the default
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithRegisterer sets where the collectors are registered. Pass nil to skip registration.
//
// Parameters:
//   - r: the Prometheus registerer
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithRegisterer(r prometheus.Registerer) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.registerer = r
	}
}

// WithNamespace sets the metric namespace.
//
// Parameters:
//   - ns: the namespace prefix
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithNamespace(ns string) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.namespace = ns
	}
}

// WithTimeSource replaces the wall clock.
//
// Parameters:
//   - now: returns the current time
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithTimeSource(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.now = now
	}
}
