package renderer

import (
	"errors"
	"fmt"
	"image"

	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
)

// RendererBackendType selects the driver a Renderer is built on.
type RendererBackendType int

const (
	// BackendTypeWGPU drives a WebGPU device through cogentcore/webgpu.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeSoftware runs registered Go kernels on the CPU. It needs no window or GPU
	// and records storage hazards, which makes it the reference driver for tests.
	BackendTypeSoftware
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeSoftware:
		return "software"
	default:
		return fmt.Sprintf("RendererBackendType(%d)", int(t))
	}
}

// ParseBackendType maps a backend name to its RendererBackendType.
func ParseBackendType(name string) (RendererBackendType, error) {
	switch name {
	case "wgpu", "gpu":
		return BackendTypeWGPU, nil
	case "software", "cpu":
		return BackendTypeSoftware, nil
	default:
		return 0, fmt.Errorf("unknown renderer backend %q", name)
	}
}

// PresentMode represents the presentation mode used for rendering frames.
type PresentMode int

const (
	// PresentModeVSync synchronizes frame presentation with the display refresh rate.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames as fast as possible.
	PresentModeUncapped
)

// BarrierKind names the class of memory access a barrier orders.
type BarrierKind int

const (
	// BarrierStorage makes storage writes of earlier dispatches visible to later
	// dispatches and draws that read the same storage.
	BarrierStorage BarrierKind = iota
)

func (k BarrierKind) String() string {
	if k == BarrierStorage {
		return "storage"
	}
	return fmt.Sprintf("BarrierKind(%d)", int(k))
}

var (
	// ErrNoProgramBound is returned by Dispatch and Draw when Use was never called.
	ErrNoProgramBound = errors.New("no program bound")
	// ErrWrongProgramKind is returned when the bound program cannot serve the call.
	ErrWrongProgramKind = errors.New("bound program has the wrong kind")
	// ErrProgramNotLinked is returned when the bound program is not Linked. Nothing is encoded.
	ErrProgramNotLinked = errors.New("program is not linked")
	// ErrMissingBinding is returned when a program declares storage that the call did not bind.
	ErrMissingBinding = errors.New("storage binding missing")
	// ErrStorageReleased is returned when a released storage is bound or read.
	ErrStorageReleased = errors.New("storage released")
	// ErrNoFrame is returned by Dispatch and Draw outside BeginFrame/EndFrame.
	ErrNoFrame = errors.New("no frame in progress")
)

// Storage is a device buffer holding simulation state.
type Storage interface {
	// ID returns a process-unique identifier, used to key cached bindings.
	ID() uint64

	Label() string

	// Size returns the size of the buffer in bytes.
	Size() uint64

	// Release destroys the buffer. Releasing twice is a no-op.
	Release()

	Released() bool
}

// Mesh is an indexed vertex buffer pair on the device.
type Mesh interface {
	Label() string

	IndexCount() int

	Release()
}

// Bindings maps the WGSL variable names a program declares to the storage bound to them.
// The access mode of each binding (read or read_write) comes from the program source.
type Bindings map[string]Storage

// Hazard records a read of storage that still had unpublished writes, i.e. a missing barrier.
type Hazard struct {
	// Resource is the label of the storage read.
	Resource string
	// Writer is the key of the program whose writes were not yet visible.
	Writer string
	// Reader is the key of the program that read the stale contents.
	Reader string
}

func (h Hazard) String() string {
	return fmt.Sprintf("%s read %q before the writes of %s were made visible", h.Reader, h.Resource, h.Writer)
}

// RendererBackend is the driver behind a Renderer. It compiles and links programs,
// owns device storage and encodes the frame.
type RendererBackend interface {
	program.Driver

	// ConfigureSurface sets the output size. It never affects storage.
	ConfigureSurface(width, height int)

	SetPresentMode(mode PresentMode)

	// AllocateStorage creates a storage buffer and hands its mapped contents to init
	// before the buffer becomes visible to the device. Contents start zeroed.
	AllocateStorage(label string, size uint64, init func(mapped []byte)) (Storage, error)

	// ReadStorage copies the visible contents of s back to the host.
	ReadStorage(s Storage) ([]byte, error)

	CreateMesh(label string, vertexData, indexData []byte, indexCount int) (Mesh, error)

	BeginFrame() error

	Dispatch(p program.ComputeProgram, bindings Bindings, groups [3]uint32) error

	Barrier(kind BarrierKind)

	Draw(p program.RenderProgram, mesh Mesh, bindings Bindings) error

	EndFrame()

	Present()

	Hazards() []Hazard

	// Snapshot returns the last presented image, or nil if the backend cannot read it back.
	Snapshot() *image.RGBA

	Release()
}
