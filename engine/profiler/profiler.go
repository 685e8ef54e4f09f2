// Package profiler reports frame rate and memory use, and exports frame metrics.
package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Profiler tracks frame rate and memory statistics for performance monitoring.
// Logs the stats at a configurable interval and keeps Prometheus collectors current.
type Profiler struct {
	mu *sync.Mutex

	namespace      string
	registerer     prometheus.Registerer
	now            func() time.Time
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	frames          prometheus.Counter
	simulated       prometheus.Counter
	frameSeconds    prometheus.Histogram
	running         prometheus.Gauge
	compileFailures *prometheus.CounterVec
}

// Report is one interval's worth of statistics.
type Report struct {
	FPS         float64
	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
	SysMB       float64
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second and the
// collectors are registered on the default Prometheus registerer unless configured otherwise.
//
// Parameters:
//   - options: variadic list of ProfilerBuilderOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
//   - error: an error if the collectors could not be registered
func NewProfiler(options ...ProfilerBuilderOption) (*Profiler, error) {
	p := &Profiler{
		mu:             &sync.Mutex{},
		namespace:      "physarum",
		registerer:     prometheus.DefaultRegisterer,
		now:            time.Now,
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()

	p.frames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      "frames_total",
		Help:      "Frames rendered.",
	})
	p.simulated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      "simulation_steps_total",
		Help:      "Frames that ran the agent and trail map updates.",
	})
	p.frameSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      "frame_seconds",
		Help:      "Time between consecutive frames.",
		Buckets:   []float64{0.002, 0.004, 0.008, 0.016, 0.033, 0.066, 0.1, 0.25, 1},
	})
	p.running = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      "running",
		Help:      "1 while the simulation advances, 0 while paused.",
	})
	p.compileFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      "compile_failures_total",
		Help:      "Program compilations that did not link.",
	}, []string{"program"})

	if p.registerer != nil {
		for _, c := range []prometheus.Collector{p.frames, p.simulated, p.frameSeconds, p.running, p.compileFailures} {
			if err := p.registerer.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// ObserveFrame records one completed frame.
//
// Parameters:
//   - dt: the time since the previous frame
//   - running: whether the simulation is running
//   - simulated: whether the frame ran the compute step
func (p *Profiler) ObserveFrame(dt time.Duration, running, simulated bool) {
	p.frames.Inc()
	p.frameSeconds.Observe(dt.Seconds())
	if running {
		p.running.Set(1)
	} else {
		p.running.Set(0)
	}
	if simulated {
		p.simulated.Inc()
	}
}

// ObserveCompile counts compile attempts that failed. It matches the signature of
// program.WithCompileObserver.
//
// Parameters:
//   - prog: the program that was compiled
//   - err: the compile result, nil on success
func (p *Profiler) ObserveCompile(prog program.Program, err error) {
	if err == nil || prog == nil {
		return
	}
	p.compileFailures.WithLabelValues(prog.Key()).Inc()
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	r := p.report(elapsed)
	common.Logger().Info("profiler",
		zap.Float64("fps", r.FPS),
		zap.Float64("heap_mb", r.HeapMB),
		zap.Float64("alloc_rate_mb_s", r.AllocRateMB),
		zap.Uint32("gc", r.GCCount),
		zap.Uint64("gc_last_us", r.LastPauseUs),
		zap.Uint64("gc_max_us", r.MaxPauseUs),
		zap.Float64("sys_mb", r.SysMB),
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = r.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

func (p *Profiler) report(elapsed time.Duration) Report {
	runtime.ReadMemStats(&p.memStats)
	r := Report{
		FPS:         float64(p.frameCount) / elapsed.Seconds(),
		HeapMB:      float64(p.memStats.Alloc) / 1024 / 1024,
		AllocRateMB: float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds(),
		GCCount:     p.memStats.NumGC,
		SysMB:       float64(p.memStats.Sys) / 1024 / 1024,
	}
	if r.GCCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses
		r.LastPauseUs = p.memStats.PauseNs[(r.GCCount-1)%256] / 1000
		start := p.lastGCCount
		if r.GCCount-start > 256 {
			start = r.GCCount - 256
		}
		for i := start; i < r.GCCount; i++ {
			r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}
	return r
}
