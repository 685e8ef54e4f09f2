package program

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// Kind identifies whether a program is a compute program or a render program.
type Kind int

const (
	// KindCompute indicates a program with a single compute stage.
	KindCompute Kind = iota

	// KindRender indicates a program with a vertex and a fragment stage.
	KindRender
)

func (k Kind) String() string {
	switch k {
	case KindCompute:
		return "compute"
	case KindRender:
		return "render"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Stages returns the shader stages a program of this kind is built from, in compile order.
func (k Kind) Stages() []shader.ShaderType {
	if k == KindRender {
		return []shader.ShaderType{shader.ShaderTypeVertex, shader.ShaderTypeFragment}
	}
	return []shader.ShaderType{shader.ShaderTypeCompute}
}

// State is the lifecycle state of a program.
type State int

const (
	// StateUnlinked is the state of a program that has never produced a compiled set of stages.
	StateUnlinked State = iota

	// StateCompiled is the transient state after every stage compiled and before linking.
	StateCompiled

	// StateLinked is the state of a program holding a usable driver handle.
	StateLinked

	// StateLinkFailed is the state of a program whose stages or link step failed.
	StateLinkFailed
)

func (s State) String() string {
	switch s {
	case StateUnlinked:
		return "Unlinked"
	case StateCompiled:
		return "Compiled"
	case StateLinked:
		return "Linked"
	case StateLinkFailed:
		return "LinkFailed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Diagnostics holds the driver messages from the last compile attempt.
type Diagnostics struct {
	// Stages maps each failing stage to its truncated compiler output.
	Stages map[shader.ShaderType]string
	// Link is the link step output, or the reason linking was skipped.
	Link string
}

// Empty reports whether no stage or link diagnostic was recorded.
func (d Diagnostics) Empty() bool {
	return len(d.Stages) == 0 && d.Link == ""
}

// Binder receives the program passed to Use. The renderer implements it so that
// subsequent dispatch and draw calls target the bound program.
type Binder interface {
	UseProgram(p Program)
}

// program is the implementation of the Program, ComputeProgram and RenderProgram interfaces.
type program struct {
	mu *sync.Mutex

	key   string
	kind  Kind
	state State
	diag  Diagnostics

	// paths holds the source file for each stage, used by the compiler and by recompilation.
	paths map[shader.ShaderType]string
	// shaders holds the reflected sources the current handle was linked from.
	shaders map[shader.ShaderType]shader.Shader

	// handle is the driver object backing a Linked program.
	handle  any
	release func(handle any)
	binder  Binder

	uniforms *uniformBlock

	// The following properties only affect render programs.

	cullMode   wgpu.CullMode
	topology   wgpu.PrimitiveTopology
	frontFace  wgpu.FrontFace
	writeMask  wgpu.ColorWriteMask
	blendState *wgpu.BlendState
}

// Program is a GPU program: a set of compiled and linked stages plus the uniform
// values bound to it. A program object exists in every lifecycle state so call sites
// can guard on State before using it.
type Program interface {
	// Key returns the unique key of the program, used for labels, logs and reload lookups.
	//
	// Returns:
	//   - string: the program key
	Key() string

	// Kind returns whether the program is a compute or a render program.
	//
	// Returns:
	//   - Kind: the program kind
	Kind() Kind

	// State returns the current lifecycle state.
	//
	// Returns:
	//   - State: Unlinked, Compiled, Linked or LinkFailed
	State() State

	// Diagnostics returns the stage and link diagnostics of the last compile attempt.
	//
	// Returns:
	//   - Diagnostics: a copy of the recorded diagnostics
	Diagnostics() Diagnostics

	// SourcePath returns the file the given stage is compiled from.
	//
	// Parameters:
	//   - stage: the shader stage
	//
	// Returns:
	//   - string: the source path, empty if the program has no such stage
	SourcePath(stage shader.ShaderType) string

	// Shader returns the reflected source the current handle was linked from.
	//
	// Parameters:
	//   - stage: the shader stage
	//
	// Returns:
	//   - shader.Shader: the shader, nil if the program never linked
	Shader(stage shader.ShaderType) shader.Shader

	// Handle returns the driver object of a Linked program.
	// Note: the caller is responsible for asserting the concrete type expected by its driver.
	//
	// Returns:
	//   - any: the driver handle, nil unless the program has linked at least once
	Handle() any

	// Use makes this program the current execution target of its binder.
	Use()

	// SetFloat writes an f32 uniform. Unknown names and non-f32 members are ignored.
	//
	// Parameters:
	//   - name: the uniform struct member name
	//   - value: the value to write as-is
	SetFloat(name string, value float32)

	// SetUint writes a u32 uniform. Unknown names and non-u32 members are ignored.
	//
	// Parameters:
	//   - name: the uniform struct member name
	//   - value: the value to write as-is
	SetUint(name string, value uint32)

	// SetVec2 writes a vec2<f32> uniform. Unknown names and mismatched members are ignored.
	//
	// Parameters:
	//   - name: the uniform struct member name
	//   - x, y: the components to write as-is
	SetVec2(name string, x, y float32)

	// Uniforms returns the reflected uniform layout and the staged bytes, or nil if the
	// program declares no uniform block.
	//
	// Returns:
	//   - *shader.UniformBlock: the layout the bytes follow
	//   - []byte: a copy of the staged uniform bytes
	Uniforms() (*shader.UniformBlock, []byte)

	// TakeUniforms returns the staged bytes if they changed since the last call and
	// clears the dirty flag. Drivers call it before a dispatch or draw.
	//
	// Returns:
	//   - []byte: a copy of the staged uniform bytes
	//   - bool: false if nothing changed
	TakeUniforms() ([]byte, bool)

	// Release destroys the driver handle. The program returns to Unlinked.
	Release()
}

// ComputeProgram is a program with a single compute stage.
type ComputeProgram interface {
	Program

	// WorkgroupSize returns the @workgroup_size declared by the compute stage.
	//
	// Returns:
	//   - [3]uint32: the work group dimensions, [1, 1, 1] before the first link
	WorkgroupSize() [3]uint32
}

// RenderProgram is a program with a vertex and a fragment stage and the fixed
// function state used to build its pipeline.
type RenderProgram interface {
	Program

	CullMode() wgpu.CullMode

	Topology() wgpu.PrimitiveTopology

	FrontFace() wgpu.FrontFace

	WriteMask() wgpu.ColorWriteMask

	// BlendState returns the color blend state, nil for opaque output.
	BlendState() *wgpu.BlendState
}

var _ ComputeProgram = &program{}
var _ RenderProgram = &program{}

// NewComputeProgram creates an Unlinked compute program for the given source file.
// Programs are normally created through a Compiler which also links them.
//
// Parameters:
//   - key: a unique identifier for the program
//   - path: the compute shader source file
//   - opts: variadic list of ProgramBuilderOption functions
//
// Returns:
//   - ComputeProgram: the new program in the Unlinked state
func NewComputeProgram(key, path string, opts ...ProgramBuilderOption) ComputeProgram {
	p := newProgram(key, KindCompute, opts...)
	p.paths[shader.ShaderTypeCompute] = path
	return p
}

// NewRenderProgram creates an Unlinked render program for the given source files.
//
// Parameters:
//   - key: a unique identifier for the program
//   - vertexPath: the vertex shader source file
//   - fragmentPath: the fragment shader source file
//   - opts: variadic list of ProgramBuilderOption functions
//
// Returns:
//   - RenderProgram: the new program in the Unlinked state
func NewRenderProgram(key, vertexPath, fragmentPath string, opts ...ProgramBuilderOption) RenderProgram {
	p := newProgram(key, KindRender, opts...)
	p.paths[shader.ShaderTypeVertex] = vertexPath
	p.paths[shader.ShaderTypeFragment] = fragmentPath
	return p
}

func newProgram(key string, kind Kind, opts ...ProgramBuilderOption) *program {
	p := &program{
		mu:        &sync.Mutex{},
		key:       key,
		kind:      kind,
		state:     StateUnlinked,
		paths:     make(map[shader.ShaderType]string),
		shaders:   make(map[shader.ShaderType]shader.Shader),
		uniforms:  newUniformBlock(nil),
		cullMode:  wgpu.CullModeNone,
		topology:  wgpu.PrimitiveTopologyTriangleList,
		frontFace: wgpu.FrontFaceCCW,
		writeMask: wgpu.ColorWriteMaskAll,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *program) Key() string {
	return p.key
}

func (p *program) Kind() Kind {
	return p.kind
}

func (p *program) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *program) Diagnostics() Diagnostics {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := Diagnostics{Link: p.diag.Link}
	if len(p.diag.Stages) > 0 {
		d.Stages = make(map[shader.ShaderType]string, len(p.diag.Stages))
		for k, v := range p.diag.Stages {
			d.Stages[k] = v
		}
	}
	return d
}

func (p *program) SourcePath(stage shader.ShaderType) string {
	return p.paths[stage]
}

func (p *program) Shader(stage shader.ShaderType) shader.Shader {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shaders[stage]
}

func (p *program) Handle() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

func (p *program) Use() {
	if p.binder == nil {
		common.Logger().Debug("program used without a binder", zap.String("program", p.key))
		return
	}
	p.binder.UseProgram(p)
}

func (p *program) SetFloat(name string, value float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uniforms.setFloat(p.key, name, value)
}

func (p *program) SetUint(name string, value uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uniforms.setUint(p.key, name, value)
}

func (p *program) SetVec2(name string, x, y float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uniforms.setVec2(p.key, name, x, y)
}

func (p *program) Uniforms() (*shader.UniformBlock, []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uniforms.layout == nil {
		return nil, nil
	}
	return p.uniforms.layout, append([]byte(nil), p.uniforms.data...)
}

func (p *program) TakeUniforms() ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uniforms.layout == nil || !p.uniforms.dirty {
		return nil, false
	}
	p.uniforms.dirty = false
	return append([]byte(nil), p.uniforms.data...), true
}

func (p *program) Release() {
	p.mu.Lock()
	handle := p.handle
	release := p.release
	p.handle = nil
	p.state = StateUnlinked
	p.mu.Unlock()

	if handle != nil && release != nil {
		release(handle)
	}
}

func (p *program) WorkgroupSize() [3]uint32 {
	if s := p.Shader(shader.ShaderTypeCompute); s != nil {
		return s.WorkgroupSize()
	}
	return [3]uint32{1, 1, 1}
}

func (p *program) CullMode() wgpu.CullMode {
	return p.cullMode
}

func (p *program) Topology() wgpu.PrimitiveTopology {
	return p.topology
}

func (p *program) FrontFace() wgpu.FrontFace {
	return p.frontFace
}

func (p *program) WriteMask() wgpu.ColorWriteMask {
	return p.writeMask
}

func (p *program) BlendState() *wgpu.BlendState {
	return p.blendState
}

// setState records a state transition and the diagnostics that caused it.
func (p *program) setState(state State, diag Diagnostics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	p.diag = diag
}

// recordFailure keeps a Linked program Linked while storing the failed attempt's diagnostics.
func (p *program) recordFailure(diag Diagnostics) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diag = diag
	if p.state != StateLinked {
		p.state = StateLinkFailed
	}
	return p.state
}

// install swaps in a freshly linked handle and its shaders, returning the handle it replaced.
func (p *program) install(handle any, shaders map[shader.ShaderType]shader.Shader, release func(any)) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.handle
	p.handle = handle
	p.release = release
	p.shaders = shaders
	p.state = StateLinked
	p.diag = Diagnostics{}
	p.uniforms.relayout(p.key, UniformLayout(p.kind, shaders))
	return old
}

// UniformLayout picks the uniform block a program stages its uniforms in. Every backend
// sizes its uniform buffer from the same block, the first one declared in Stages order.
//
// Parameters:
//   - kind: the program kind, which fixes the stage order
//   - shaders: the program's shaders by stage
//
// Returns:
//   - *shader.UniformBlock: the block, or nil if no stage declares one
func UniformLayout(kind Kind, shaders map[shader.ShaderType]shader.Shader) *shader.UniformBlock {
	blocks := make([]*shader.UniformBlock, 0, len(kind.Stages()))
	for _, stage := range kind.Stages() {
		if s := shaders[stage]; s != nil {
			blocks = append(blocks, s.UniformBlock())
		}
	}
	return common.Coalesce(blocks...)
}
