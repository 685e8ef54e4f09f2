package renderer

import (
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
)

// RendererBuilderOption is a functional option used to configure a Renderer during construction.
type RendererBuilderOption func(*renderer)

// WithPresentMode sets the initial presentation mode.
//
// Parameters:
//   - mode: the PresentMode to use
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode to the renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithForceFallbackAdapter requests the platform's fallback (software) WebGPU adapter.
//
// Parameters:
//   - force: true to request the fallback adapter
//
// Returns:
//   - RendererBuilderOption: a function that applies the adapter preference to the renderer
func WithForceFallbackAdapter(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithSurfaceSize sets the output size used when no surface is given.
//
// Parameters:
//   - width, height: the output size in pixels
//
// Returns:
//   - RendererBuilderOption: a function that applies the size to the renderer
func WithSurfaceSize(width, height int) RendererBuilderOption {
	return func(r *renderer) {
		r.width, r.height = width, height
	}
}

// WithCompilerOptions forwards options to the renderer's program compiler.
//
// Parameters:
//   - opts: the compiler options, e.g. program.WithCompileObserver
//
// Returns:
//   - RendererBuilderOption: a function that applies the options to the renderer
func WithCompilerOptions(opts ...program.CompilerBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.compilerOptions = append(r.compilerOptions, opts...)
	}
}

// WithComputeKernel registers the Go implementation of a compute entry point for the
// software backend. Compute programs whose entry point has no kernel fail to link.
//
// Parameters:
//   - entryPoint: the WGSL function name
//   - kernel: the kernel to run per dispatch
//
// Returns:
//   - RendererBuilderOption: a function that registers the kernel
func WithComputeKernel(entryPoint string, kernel ComputeKernel) RendererBuilderOption {
	return func(r *renderer) {
		r.software.compute[entryPoint] = kernel
	}
}

// WithFragmentKernel registers the Go implementation of a fragment entry point for the
// software backend.
//
// Parameters:
//   - entryPoint: the WGSL function name
//   - kernel: the kernel to run per pixel
//
// Returns:
//   - RendererBuilderOption: a function that registers the kernel
func WithFragmentKernel(entryPoint string, kernel FragmentKernel) RendererBuilderOption {
	return func(r *renderer) {
		r.software.fragment[entryPoint] = kernel
	}
}

// WithSoftwareWorkers sets how many workers the software backend splits work across.
//
// Parameters:
//   - n: the worker count, at least 1
//
// Returns:
//   - RendererBuilderOption: a function that sets the worker count
func WithSoftwareWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		if n > 0 {
			r.software.workers = n
		}
	}
}
