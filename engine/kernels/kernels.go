// Package kernels holds the WGSL programs of the simulation and their Go reference
// implementations for the software renderer backend.
package kernels

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"go.uber.org/zap"
)

// File names of the kernels inside a shader directory.
const (
	AgentUpdateFile     = "agent_update.wgsl"
	TrailMapUpdateFile  = "trail_map_update.wgsl"
	DisplayVertexFile   = "display.vert.wgsl"
	DisplayFragmentFile = "display.frag.wgsl"
)

// Paths locates each kernel source on disk.
type Paths struct {
	AgentUpdate     string
	TrailMapUpdate  string
	DisplayVertex   string
	DisplayFragment string
}

// Dir returns the directory holding the kernels.
func (p Paths) Dir() string {
	return filepath.Dir(p.AgentUpdate)
}

// All returns every path in a stable order.
func (p Paths) All() []string {
	return []string{p.AgentUpdate, p.TrailMapUpdate, p.DisplayVertex, p.DisplayFragment}
}

// PathsIn returns the kernel paths inside dir without touching the filesystem.
//
// Parameters:
//   - dir: the shader directory
//
// Returns:
//   - Paths: the path of each kernel
func PathsIn(dir string) Paths {
	return Paths{
		AgentUpdate:     filepath.Join(dir, AgentUpdateFile),
		TrailMapUpdate:  filepath.Join(dir, TrailMapUpdateFile),
		DisplayVertex:   filepath.Join(dir, DisplayVertexFile),
		DisplayFragment: filepath.Join(dir, DisplayFragmentFile),
	}
}

// Extract writes the built-in kernels into dir, creating it if needed. Files that already
// exist are left alone unless overwrite is set, so edited kernels survive a restart.
//
// Parameters:
//   - dir: the shader directory
//   - overwrite: replace existing files with the built-in sources
//
// Returns:
//   - Paths: the path of each kernel
//   - error: an error if the directory or a file could not be written
func Extract(dir string, overwrite bool) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create shader directory: %w", err)
	}

	paths := PathsIn(dir)
	sources := map[string]string{
		paths.AgentUpdate:     AgentUpdateSource,
		paths.TrailMapUpdate:  TrailMapUpdateSource,
		paths.DisplayVertex:   DisplayVertexSource,
		paths.DisplayFragment: DisplayFragmentSource,
	}
	for _, path := range paths.All() {
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				continue
			} else if !errors.Is(err, fs.ErrNotExist) {
				return Paths{}, err
			}
		}
		if err := os.WriteFile(path, []byte(sources[path]), 0o644); err != nil {
			return Paths{}, fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
		common.Logger().Debug("kernel written", zap.String("path", path))
	}
	return paths, nil
}

// SoftwareKernels registers the Go implementation of every kernel entry point with a
// software renderer.
//
// Returns:
//   - []renderer.RendererBuilderOption: options to pass to renderer.NewRenderer
func SoftwareKernels() []renderer.RendererBuilderOption {
	return []renderer.RendererBuilderOption{
		renderer.WithComputeKernel(EntryAgentUpdate, AgentUpdate),
		renderer.WithComputeKernel(EntryTrailMapUpdate, TrailMapUpdate),
		renderer.WithFragmentKernel(EntryDisplayFrag, Display),
	}
}
