package shader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trailSource = `
struct TrailParams {
    deltaTime: f32,
    decaySpeed: f32,
    diffuseStrength: f32,
}

@group(0) @binding(0) var<uniform> params: TrailParams;
@group(0) @binding(1) var<storage, read_write> trailMap: array<vec4<f32>>;

@compute @workgroup_size(1)
fn trail_map_update(@builtin(global_invocation_id) id: vec3<u32>) {
}
`

func writeSource(t *testing.T, name, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestNewShaderMissingFile(t *testing.T) {
	s, err := NewShader("missing", ShaderTypeCompute, filepath.Join(t.TempDir(), "nope.wgsl"))
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, common.ErrResourceOpen)
	assert.Equal(t, common.KindResourceOpen, common.KindOf(err))
}

func TestNewShaderEmptyFile(t *testing.T) {
	path := writeSource(t, "empty.wgsl", "")
	_, err := NewShader("empty", ShaderTypeCompute, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrResourceRead)
}

func TestNewShaderFromSourceEmpty(t *testing.T) {
	_, err := NewShaderFromSource("blank", ShaderTypeFragment, "  \n\t")
	assert.ErrorIs(t, err, common.ErrResourceRead)
}

func TestNewShaderReflectsCompute(t *testing.T) {
	path := writeSource(t, "trail.wgsl", trailSource)
	s, err := NewShader("trail", ShaderTypeCompute, path)
	require.NoError(t, err)

	assert.Equal(t, path, s.Path())
	assert.Equal(t, "trail_map_update", s.EntryPoint())
	assert.Equal(t, [3]uint32{1, 1, 1}, s.WorkgroupSize())

	group, binding, ok := s.BindGroupFromVarName("trailMap")
	require.True(t, ok)
	assert.Equal(t, 0, group)
	assert.Equal(t, 1, binding)

	_, _, ok = s.BindGroupFromVarName("nothing")
	assert.False(t, ok)

	block := s.UniformBlock()
	require.NotNil(t, block)
	assert.Equal(t, "params", block.VarName)
	assert.Equal(t, uint64(16), block.Size)
	assert.Equal(t, uint64(4), block.Fields["decaySpeed"].Offset)
	assert.Equal(t, uint64(8), block.Fields["diffuseStrength"].Offset)
}

func TestNewShaderNoUniform(t *testing.T) {
	s, err := NewShaderFromSource("vs", ShaderTypeVertex, `
struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) uv: vec2<f32>,
}

@vertex
fn vs_main(in: VertexInput) -> @builtin(position) vec4<f32> {
    return vec4<f32>(in.position, 1.0);
}
`)
	require.NoError(t, err)
	assert.Nil(t, s.UniformBlock())
	assert.Equal(t, "vs_main", s.EntryPoint())

	layouts := s.VertexLayouts()
	require.Len(t, layouts, 1)
	assert.Equal(t, uint64(20), layouts[0][0].ArrayStride)
	require.Len(t, layouts[0][0].Attributes, 2)
	assert.Equal(t, uint64(12), layouts[0][0].Attributes[1].Offset)
}

func TestShaderTypeString(t *testing.T) {
	assert.Equal(t, "compute", ShaderTypeCompute.String())
	assert.Equal(t, "vertex", ShaderTypeVertex.String())
	assert.Equal(t, "fragment", ShaderTypeFragment.String())
	assert.Equal(t, "ShaderType(9)", ShaderType(9).String())
}
