package renderer

import (
	"fmt"
	"image"
	"sync"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// SurfaceSource is the window a WebGPU renderer presents to.
type SurfaceSource interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Width() int
	Height() int
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	backend     RendererBackend
	compiler    program.Compiler
	current     program.Program

	width, height int

	forceFallbackAdapter bool
	pendingPresentMode   *PresentMode
	compilerOptions      []program.CompilerBuilderOption
	software             softwareConfig
}

// Renderer is the GPU facing side of the simulation. It compiles programs, owns the
// program binding state set by Use, allocates storage and encodes each frame as a
// sequence of dispatches, barriers and draws.
type Renderer interface {
	program.Binder

	// CompileCompute reads, compiles and links a compute program bound to this renderer.
	//
	// Parameters:
	//   - key: a unique identifier for the program
	//   - path: the compute shader source file
	//   - opts: variadic list of program.ProgramBuilderOption functions
	//
	// Returns:
	//   - program.ComputeProgram: the program in whatever state compilation reached, never nil
	//   - error: the compile failure, nil if the program is Linked
	CompileCompute(key, path string, opts ...program.ProgramBuilderOption) (program.ComputeProgram, error)

	// CompileRender reads, compiles and links a render program bound to this renderer.
	//
	// Parameters:
	//   - key: a unique identifier for the program
	//   - vertexPath: the vertex shader source file
	//   - fragmentPath: the fragment shader source file
	//   - opts: variadic list of program.ProgramBuilderOption functions
	//
	// Returns:
	//   - program.RenderProgram: the program in whatever state compilation reached, never nil
	//   - error: the compile failure, nil if the program is Linked
	CompileRender(key, vertexPath, fragmentPath string, opts ...program.ProgramBuilderOption) (program.RenderProgram, error)

	// Recompile re-reads and relinks a program created by this renderer.
	//
	// Parameters:
	//   - p: the program to rebuild
	//
	// Returns:
	//   - error: the failure of the new attempt; a Linked program stays usable on failure
	Recompile(p program.Program) error

	// CurrentProgram returns the program most recently passed to Use, or nil.
	//
	// Returns:
	//   - program.Program: the current execution target
	CurrentProgram() program.Program

	// AllocateStorage creates a zeroed storage buffer and lets init fill it while it is mapped.
	// A refused allocation is a common.KindAllocation error, which is fatal to the run.
	//
	// Parameters:
	//   - label: a debug label for the buffer
	//   - size: the size in bytes, a non-zero multiple of 4
	//   - init: optional callback receiving the mapped contents
	//
	// Returns:
	//   - Storage: the new buffer
	//   - error: a *common.Error of kind KindAllocation if the driver refused
	AllocateStorage(label string, size uint64, init func(mapped []byte)) (Storage, error)

	// ReadStorage copies the visible contents of a storage buffer to the host.
	//
	// Parameters:
	//   - s: the storage to read
	//
	// Returns:
	//   - []byte: the contents
	//   - error: ErrStorageReleased or a driver error
	ReadStorage(s Storage) ([]byte, error)

	// CreateMesh uploads indexed geometry.
	//
	// Parameters:
	//   - label: a debug label for the buffers
	//   - vertexData: the packed vertex bytes
	//   - indexData: the packed uint32 index bytes
	//   - indexCount: the number of indices to draw
	//
	// Returns:
	//   - Mesh: the uploaded mesh
	//   - error: a *common.Error of kind KindAllocation if the driver refused
	CreateMesh(label string, vertexData, indexData []byte, indexCount int) (Mesh, error)

	// BeginFrame starts recording a frame.
	//
	// Returns:
	//   - error: a driver error if no encoder could be created
	BeginFrame() error

	// Dispatch runs the current compute program over the given number of work groups.
	// A program that is not Linked is a guarded no-op returning ErrProgramNotLinked.
	//
	// Parameters:
	//   - bindings: the storage for each variable the program declares
	//   - groups: the work group counts in x, y and z
	//
	// Returns:
	//   - error: a binding or program state error, nothing is encoded when non-nil
	Dispatch(bindings Bindings, groups [3]uint32) error

	// Barrier makes the writes of every earlier dispatch of the frame visible to the
	// dispatches and draws recorded after it.
	//
	// Parameters:
	//   - kind: the class of access to order
	Barrier(kind BarrierKind)

	// Draw draws a mesh with the current render program.
	// A program that is not Linked is a guarded no-op returning ErrProgramNotLinked.
	//
	// Parameters:
	//   - mesh: the geometry to draw
	//   - bindings: the storage for each variable the program declares
	//
	// Returns:
	//   - error: a binding, surface or program state error
	Draw(mesh Mesh, bindings Bindings) error

	// EndFrame submits the recorded frame.
	EndFrame()

	// Present shows the rendered frame.
	Present()

	// Resize reconfigures the output surface. Storage is unaffected.
	//
	// Parameters:
	//   - width, height: the new framebuffer size in pixels
	Resize(width, height int)

	// Size returns the current output size in pixels.
	Size() (int, int)

	SetPresentMode(mode PresentMode)

	// Hazards returns every stale read observed so far. Only the software backend detects them.
	Hazards() []Hazard

	// Snapshot returns the last presented image when the backend can read it back.
	Snapshot() *image.RGBA

	// BackendType returns the driver this renderer runs on.
	BackendType() RendererBackendType

	// Release destroys the backend. Programs and storage must be released first.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer on the given backend. The WebGPU backend needs a
// surface; the software backend ignores it when nil and renders off screen.
//
// Parameters:
//   - backendType: the driver to use
//   - surface: the window to present to, may be nil for BackendTypeSoftware
//   - options: variadic list of RendererBuilderOption functions
//
// Returns:
//   - Renderer: the new renderer
//   - error: an error if no device could be acquired
func NewRenderer(backendType RendererBackendType, surface SurfaceSource, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:          &sync.Mutex{},
		backendType: backendType,
		width:       defaultSurfaceWidth,
		height:      defaultSurfaceHeight,
		software:    newSoftwareConfig(),
	}
	if surface != nil {
		r.width, r.height = surface.Width(), surface.Height()
	}

	for _, opt := range options {
		opt(r)
	}

	switch backendType {
	case BackendTypeSoftware:
		r.backend = newSoftwareRendererBackend(r.software)
	case BackendTypeWGPU:
		if surface == nil {
			return nil, fmt.Errorf("%s backend requires a surface", backendType)
		}
		backend, err := newWGPURendererBackend(surface.SurfaceDescriptor(), r.forceFallbackAdapter)
		if err != nil {
			return nil, err
		}
		r.backend = backend
	default:
		return nil, fmt.Errorf("unsupported renderer backend %s", backendType)
	}

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}
	r.backend.ConfigureSurface(r.width, r.height)

	opts := append([]program.CompilerBuilderOption{program.WithProgramBinder(r)}, r.compilerOptions...)
	r.compiler = program.NewCompiler(r.backend, opts...)

	common.Logger().Info("renderer ready",
		zap.Stringer("backend", backendType),
		zap.Int("width", r.width),
		zap.Int("height", r.height),
	)
	return r, nil
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) CompileCompute(key, path string, opts ...program.ProgramBuilderOption) (program.ComputeProgram, error) {
	return r.compiler.CompileCompute(key, path, opts...)
}

func (r *renderer) CompileRender(key, vertexPath, fragmentPath string, opts ...program.ProgramBuilderOption) (program.RenderProgram, error) {
	return r.compiler.CompileRender(key, vertexPath, fragmentPath, opts...)
}

func (r *renderer) Recompile(p program.Program) error {
	return r.compiler.Recompile(p)
}

func (r *renderer) UseProgram(p program.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = p
}

func (r *renderer) CurrentProgram() program.Program {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *renderer) AllocateStorage(label string, size uint64, init func(mapped []byte)) (Storage, error) {
	if size == 0 || size%4 != 0 {
		return nil, common.NewError(common.KindAllocation, "allocate", label, fmt.Sprintf("invalid size %d", size), nil)
	}
	s, err := r.backend.AllocateStorage(label, size, init)
	if err != nil {
		common.Logger().Error("storage allocation refused", zap.String("label", label), zap.Uint64("bytes", size), zap.Error(err))
		return nil, common.NewError(common.KindAllocation, "allocate", label, "", err)
	}
	return s, nil
}

func (r *renderer) ReadStorage(s Storage) ([]byte, error) {
	if s == nil || s.Released() {
		return nil, ErrStorageReleased
	}
	return r.backend.ReadStorage(s)
}

func (r *renderer) CreateMesh(label string, vertexData, indexData []byte, indexCount int) (Mesh, error) {
	m, err := r.backend.CreateMesh(label, vertexData, indexData, indexCount)
	if err != nil {
		return nil, common.NewError(common.KindAllocation, "allocate", label, "", err)
	}
	return m, nil
}

func (r *renderer) BeginFrame() error {
	return r.backend.BeginFrame()
}

func (r *renderer) Dispatch(bindings Bindings, groups [3]uint32) error {
	p, err := r.bound(program.KindCompute)
	if err != nil {
		return err
	}
	if groups[0] == 0 || groups[1] == 0 || groups[2] == 0 {
		return nil
	}
	return r.backend.Dispatch(p.(program.ComputeProgram), bindings, groups)
}

func (r *renderer) Barrier(kind BarrierKind) {
	r.backend.Barrier(kind)
}

func (r *renderer) Draw(mesh Mesh, bindings Bindings) error {
	p, err := r.bound(program.KindRender)
	if err != nil {
		return err
	}
	return r.backend.Draw(p.(program.RenderProgram), mesh, bindings)
}

// bound returns the current program if it can serve a call of the given kind.
func (r *renderer) bound(kind program.Kind) (program.Program, error) {
	p := r.CurrentProgram()
	switch {
	case p == nil:
		return nil, ErrNoProgramBound
	case p.Kind() != kind:
		return nil, fmt.Errorf("%w: %s is a %s program", ErrWrongProgramKind, p.Key(), p.Kind())
	case p.State() != program.StateLinked:
		return nil, fmt.Errorf("%w: %s is %s", ErrProgramNotLinked, p.Key(), p.State())
	}
	return p, nil
}

func (r *renderer) EndFrame() {
	r.backend.EndFrame()
}

func (r *renderer) Present() {
	r.backend.Present()
}

func (r *renderer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		// minimized windows report a zero framebuffer
		return
	}
	r.mu.Lock()
	r.width, r.height = width, height
	r.mu.Unlock()
	r.backend.ConfigureSurface(width, height)
}

func (r *renderer) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) Hazards() []Hazard {
	return r.backend.Hazards()
}

func (r *renderer) Snapshot() *image.RGBA {
	return r.backend.Snapshot()
}

func (r *renderer) Release() {
	r.mu.Lock()
	r.current = nil
	r.mu.Unlock()
	r.backend.Release()
}
