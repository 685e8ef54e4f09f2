package program

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/physarum/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linkedProgram(t *testing.T) ComputeProgram {
	t.Helper()
	p, err := NewCompiler(&fakeDriver{}).CompileCompute("kernel", writeFile(t, t.TempDir(), "k.wgsl", computeSource))
	require.NoError(t, err)
	return p
}

func readFloat(data []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
}

func TestSetUniformsWriteAtReflectedOffsets(t *testing.T) {
	p := linkedProgram(t)
	p.SetFloat("deltaTime", 0.016)
	p.SetUint("frame", 42)
	p.SetVec2("trailMapResolution", 640, 480)

	layout, data := p.Uniforms()
	require.NotNil(t, layout)
	require.Len(t, data, 16)
	assert.Equal(t, float32(0.016), readFloat(data, 0))
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(data[4:]))
	assert.Equal(t, float32(640), readFloat(data, 8))
	assert.Equal(t, float32(480), readFloat(data, 12))
}

func TestSetUniformUnknownNameIsNoop(t *testing.T) {
	p := linkedProgram(t)
	_, _ = p.TakeUniforms()

	p.SetFloat("u_doesNotExist", 1)
	_, dirty := p.TakeUniforms()
	assert.False(t, dirty)
}

func TestSetUniformTypeMismatchIsNoop(t *testing.T) {
	p := linkedProgram(t)
	_, _ = p.TakeUniforms()

	p.SetFloat("frame", 3.5)
	p.SetUint("deltaTime", 7)
	_, dirty := p.TakeUniforms()
	assert.False(t, dirty)

	_, data := p.Uniforms()
	assert.Equal(t, make([]byte, 16), data)
}

func TestSetUniformValuesAreNotClamped(t *testing.T) {
	p := linkedProgram(t)
	p.SetFloat("deltaTime", -1e9)
	_, data := p.Uniforms()
	assert.Equal(t, float32(-1e9), readFloat(data, 0))
}

func TestTakeUniformsClearsDirty(t *testing.T) {
	p := linkedProgram(t)
	p.SetFloat("deltaTime", 1)

	data, dirty := p.TakeUniforms()
	require.True(t, dirty)
	assert.Equal(t, float32(1), readFloat(data, 0))

	_, dirty = p.TakeUniforms()
	assert.False(t, dirty)
}

func TestUniformsSetBeforeLinkSurvive(t *testing.T) {
	path := writeFile(t, t.TempDir(), "k.wgsl", computeSource)
	p := NewComputeProgram("kernel", path)
	p.SetFloat("deltaTime", 0.5)
	layout, _ := p.Uniforms()
	assert.Nil(t, layout)

	require.NoError(t, NewCompiler(&fakeDriver{}).Recompile(p))
	_, data := p.Uniforms()
	assert.Equal(t, float32(0.5), readFloat(data, 0))
}

func TestUseWithoutBinderIsNoop(t *testing.T) {
	p := NewComputeProgram("kernel", "unused.wgsl")
	assert.NotPanics(t, p.Use)
}

func TestRenderProgramOptions(t *testing.T) {
	blend := &wgpu.BlendState{}
	p := NewRenderProgram("display", "v.wgsl", "f.wgsl",
		WithCullMode(wgpu.CullModeBack),
		WithTopology(wgpu.PrimitiveTopologyTriangleStrip),
		WithFrontFace(wgpu.FrontFaceCW),
		WithWriteMask(wgpu.ColorWriteMaskRed),
		WithBlendState(blend),
	)
	assert.Equal(t, KindRender, p.Kind())
	assert.Equal(t, StateUnlinked, p.State())
	assert.Equal(t, wgpu.CullModeBack, p.CullMode())
	assert.Equal(t, wgpu.PrimitiveTopologyTriangleStrip, p.Topology())
	assert.Equal(t, wgpu.FrontFaceCW, p.FrontFace())
	assert.Equal(t, wgpu.ColorWriteMaskRed, p.WriteMask())
	assert.Same(t, blend, p.BlendState())
	assert.Equal(t, "f.wgsl", p.SourcePath(shader.ShaderTypeFragment))
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "Unlinked", StateUnlinked.String())
	assert.Equal(t, "Compiled", StateCompiled.String())
	assert.Equal(t, "Linked", StateLinked.String())
	assert.Equal(t, "LinkFailed", StateLinkFailed.String())
	assert.Equal(t, "render", KindRender.String())
}

func TestUniformLayoutTakesVertexBlockFirst(t *testing.T) {
	vs, err := shader.NewShaderFromSource("vs", shader.ShaderTypeVertex, `
struct VertexParams {
    scale: f32,
}
@group(0) @binding(0) var<uniform> vparams: VertexParams;

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position * vparams.scale, 1.0);
}
`)
	require.NoError(t, err)
	fs, err := shader.NewShaderFromSource("fs", shader.ShaderTypeFragment, `
struct FragmentParams {
    trailMapResolution: vec2<f32>,
    gain: f32,
}
@group(0) @binding(1) var<uniform> fparams: FragmentParams;

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(fparams.gain, 0.0, 0.0, 1.0);
}
`)
	require.NoError(t, err)
	require.NotNil(t, vs.UniformBlock())
	require.NotNil(t, fs.UniformBlock())

	both := map[shader.ShaderType]shader.Shader{shader.ShaderTypeVertex: vs, shader.ShaderTypeFragment: fs}
	assert.Same(t, vs.UniformBlock(), UniformLayout(KindRender, both))

	fragmentOnly := map[shader.ShaderType]shader.Shader{shader.ShaderTypeFragment: fs}
	assert.Same(t, fs.UniformBlock(), UniformLayout(KindRender, fragmentOnly))

	plain, err := shader.NewShaderFromSource("plain", shader.ShaderTypeVertex, vertexSource)
	require.NoError(t, err)
	assert.Nil(t, UniformLayout(KindRender, map[shader.ShaderType]shader.Shader{shader.ShaderTypeVertex: plain}))
	assert.Nil(t, UniformLayout(KindCompute, both))
}
