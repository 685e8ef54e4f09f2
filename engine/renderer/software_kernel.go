package renderer

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/physarum/engine/renderer/shader"
)

// ComputeKernel is the Go implementation of a WGSL compute entry point, run by the
// software backend once per dispatch. It must cover every invocation of the dispatch.
type ComputeKernel func(ctx *KernelContext) error

// FragmentKernel is the Go implementation of a WGSL fragment entry point. It receives the
// interpolated texture coordinate of a pixel and returns its RGBA color in [0, 1].
type FragmentKernel func(ctx *KernelContext, uv [2]float32) [4]float32

// KernelBuffer is a storage binding as seen by a kernel. Read holds the contents visible
// to the dispatch. Write is where a read_write binding's results go; it is nil for
// read-only bindings. Writes only become visible to later work after a barrier.
type KernelBuffer struct {
	Read  []float32
	Write []float32
}

// KernelContext carries everything a software kernel may access during one dispatch or draw.
type KernelContext struct {
	// Program is the key of the program being executed.
	Program string
	// Groups is the number of work groups dispatched in x, y and z.
	Groups [3]uint32
	// WorkgroupSize is the @workgroup_size of the entry point.
	WorkgroupSize [3]uint32
	// Uniforms reads the program's uniform block by member name.
	Uniforms Uniforms

	buffers  map[string]*KernelBuffer
	parallel func(n int, fn func(lo, hi int))
	// fresh holds the storages this dispatch started staging.
	fresh []*softwareStorage
}

// Invocations returns the total number of invocations along each axis.
func (c *KernelContext) Invocations() [3]uint32 {
	return [3]uint32{
		c.Groups[0] * c.WorkgroupSize[0],
		c.Groups[1] * c.WorkgroupSize[1],
		c.Groups[2] * c.WorkgroupSize[2],
	}
}

// Buffer returns the binding for a WGSL variable name, or nil if the program does not declare it.
func (c *KernelContext) Buffer(name string) *KernelBuffer {
	return c.buffers[name]
}

// Parallel splits [0, n) into contiguous ranges and runs fn on each, returning once all
// ranges are done. Ranges must not write overlapping memory.
func (c *KernelContext) Parallel(n int, fn func(lo, hi int)) {
	if c.parallel == nil || n <= 1 {
		fn(0, n)
		return
	}
	c.parallel(n, fn)
}

// Uniforms decodes named members of a uniform block. Unknown names read as zero.
type Uniforms struct {
	layout *shader.UniformBlock
	data   []byte
}

// NewUniforms wraps a layout and its bytes.
func NewUniforms(layout *shader.UniformBlock, data []byte) Uniforms {
	return Uniforms{layout: layout, data: data}
}

func (u Uniforms) word(name string, index int) (uint32, bool) {
	if u.layout == nil {
		return 0, false
	}
	f, ok := u.layout.Fields[name]
	if !ok {
		return 0, false
	}
	off := f.Offset + uint64(index*4)
	if off+4 > uint64(len(u.data)) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(u.data[off:]), true
}

func (u Uniforms) Float(name string) float32 {
	w, _ := u.word(name, 0)
	return math.Float32frombits(w)
}

func (u Uniforms) Uint(name string) uint32 {
	w, _ := u.word(name, 0)
	return w
}

func (u Uniforms) Vec2(name string) [2]float32 {
	x, _ := u.word(name, 0)
	y, _ := u.word(name, 1)
	return [2]float32{math.Float32frombits(x), math.Float32frombits(y)}
}
