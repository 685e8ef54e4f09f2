package reload

import "time"

// WatcherBuilderOption is a functional option used to configure a Watcher during construction.
type WatcherBuilderOption func(*watcher)

// WithDebounce sets how long the watcher waits for changes to settle before emitting.
//
// Parameters:
//   - d: the quiet period
//
// Returns:
//   - WatcherBuilderOption: a function that applies the debounce to the watcher
func WithDebounce(d time.Duration) WatcherBuilderOption {
	return func(w *watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithShaderDir watches a directory of .wgsl kernels.
//
// Parameters:
//   - dir: the shader directory
//
// Returns:
//   - WatcherBuilderOption: a function that applies the directory to the watcher
func WithShaderDir(dir string) WatcherBuilderOption {
	return func(w *watcher) {
		w.shaderDir = dir
	}
}

// WithParameterFile watches a TOML parameter file.
//
// Parameters:
//   - path: the parameter file
//
// Returns:
//   - WatcherBuilderOption: a function that applies the file to the watcher
func WithParameterFile(path string) WatcherBuilderOption {
	return func(w *watcher) {
		w.paramsPath = path
	}
}
