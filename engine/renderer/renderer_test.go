package renderer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fillSource = `
struct FillParams {
    value: f32,
}

@group(0) @binding(0) var<uniform> params: FillParams;
@group(0) @binding(1) var<storage, read_write> data: array<f32>;

@compute @workgroup_size(4)
fn fill(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = params.value;
}
`

const copySource = `
@group(0) @binding(0) var<storage, read> data: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

@compute @workgroup_size(4)
fn copy_data(@builtin(global_invocation_id) id: vec3<u32>) {
    result[id.x] = data[id.x];
}
`

const quadVertexSource = `
struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) uv: vec2<f32>,
}

struct VertexOutput {
    @builtin(position) clip: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip = vec4<f32>(in.position, 1.0);
    out.uv = in.uv;
    return out;
}
`

const redFragmentSource = `
@group(0) @binding(0) var<storage, read> data: array<f32>;

@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return vec4<f32>(data[0], 0.0, 0.0, 1.0);
}
`

func fillKernel(ctx *KernelContext) error {
	data := ctx.Buffer("data")
	value := ctx.Uniforms.Float("value")
	n := min(int(ctx.Invocations()[0]), len(data.Write))
	ctx.Parallel(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			data.Write[i] = value
		}
	})
	return nil
}

func copyKernel(ctx *KernelContext) error {
	copy(ctx.Buffer("result").Write, ctx.Buffer("data").Read)
	return nil
}

func redKernel(ctx *KernelContext, _ [2]float32) [4]float32 {
	return [4]float32{ctx.Buffer("data").Read[0], 0, 0, 1}
}

func writeKernel(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

type fixture struct {
	r      Renderer
	fill   program.ComputeProgram
	copy   program.ComputeProgram
	data   Storage
	result Storage
}

func newFixture(t *testing.T, opts ...RendererBuilderOption) *fixture {
	t.Helper()
	dir := t.TempDir()

	opts = append([]RendererBuilderOption{
		WithSurfaceSize(8, 4),
		WithSoftwareWorkers(2),
		WithComputeKernel("fill", fillKernel),
		WithComputeKernel("copy_data", copyKernel),
		WithFragmentKernel("fs_main", redKernel),
	}, opts...)
	r, err := NewRenderer(BackendTypeSoftware, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Release)

	fill, err := r.CompileCompute("fill", writeKernel(t, dir, "fill.wgsl", fillSource))
	require.NoError(t, err)
	cp, err := r.CompileCompute("copy", writeKernel(t, dir, "copy.wgsl", copySource))
	require.NoError(t, err)

	data, err := r.AllocateStorage("data", 16*4, nil)
	require.NoError(t, err)
	result, err := r.AllocateStorage("result", 16*4, nil)
	require.NoError(t, err)

	return &fixture{r: r, fill: fill, copy: cp, data: data, result: result}
}

func (f *fixture) floats(t *testing.T, s Storage) []float32 {
	t.Helper()
	raw, err := f.r.ReadStorage(s)
	require.NoError(t, err)
	return common.BytesToSlice[float32](raw)
}

// runFillThenCopy dispatches fill and then copy over the same storage in one frame.
func (f *fixture) runFillThenCopy(t *testing.T, barrier bool) {
	t.Helper()
	require.NoError(t, f.r.BeginFrame())

	f.fill.Use()
	f.fill.SetFloat("value", 0.5)
	require.NoError(t, f.r.Dispatch(Bindings{"data": f.data}, [3]uint32{4, 1, 1}))
	if barrier {
		f.r.Barrier(BarrierStorage)
	}

	f.copy.Use()
	require.NoError(t, f.r.Dispatch(Bindings{"data": f.data, "result": f.result}, [3]uint32{4, 1, 1}))
	f.r.EndFrame()
}

func TestDispatchWithBarrierHasNoHazards(t *testing.T) {
	f := newFixture(t)
	f.runFillThenCopy(t, true)

	assert.Empty(t, f.r.Hazards())
	for _, v := range f.floats(t, f.result) {
		assert.Equal(t, float32(0.5), v)
	}
}

func TestDispatchWithoutBarrierRecordsHazard(t *testing.T) {
	f := newFixture(t)
	f.runFillThenCopy(t, false)

	hazards := f.r.Hazards()
	require.Len(t, hazards, 1)
	assert.Equal(t, Hazard{Resource: "data", Writer: "fill", Reader: "copy"}, hazards[0])

	// the reader saw the contents from before the write
	for _, v := range f.floats(t, f.result) {
		assert.Zero(t, v)
	}
	// the write itself still lands at the end of the frame
	for _, v := range f.floats(t, f.data) {
		assert.Equal(t, float32(0.5), v)
	}
}

func TestDispatchGuards(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.r.BeginFrame())
	defer f.r.EndFrame()

	err := f.r.Dispatch(Bindings{"data": f.data}, [3]uint32{1, 1, 1})
	assert.ErrorIs(t, err, ErrNoProgramBound)

	f.fill.Use()
	assert.Same(t, f.fill, f.r.CurrentProgram())
	err = f.r.Dispatch(Bindings{}, [3]uint32{1, 1, 1})
	assert.ErrorIs(t, err, ErrMissingBinding)

	err = f.r.Draw(nil, Bindings{})
	assert.ErrorIs(t, err, ErrWrongProgramKind)

	// zero work groups encode nothing
	assert.NoError(t, f.r.Dispatch(Bindings{}, [3]uint32{0, 1, 1}))
}

func TestDispatchOutsideFrame(t *testing.T) {
	f := newFixture(t)
	f.fill.Use()
	err := f.r.Dispatch(Bindings{"data": f.data}, [3]uint32{1, 1, 1})
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestDispatchUnlinkedProgramIsNoOp(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	// no Go kernel is registered for this entry point, so linking fails
	source := `
@group(0) @binding(0) var<storage, read_write> data: array<f32>;
@compute @workgroup_size(4)
fn unknown(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = 1.0;
}
`
	p, err := f.r.CompileCompute("unknown", writeKernel(t, dir, "unknown.wgsl", source))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrProgramLink))
	assert.Equal(t, program.StateLinkFailed, p.State())
	assert.Contains(t, p.Diagnostics().Link, "no registered compute kernel")

	require.NoError(t, f.r.BeginFrame())
	p.Use()
	err = f.r.Dispatch(Bindings{"data": f.data}, [3]uint32{4, 1, 1})
	assert.ErrorIs(t, err, ErrProgramNotLinked)
	f.r.EndFrame()

	for _, v := range f.floats(t, f.data) {
		assert.Zero(t, v)
	}
	assert.Empty(t, f.r.Hazards())
}

func TestCompileBrokenSource(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	p, err := f.r.CompileCompute("broken", writeKernel(t, dir, "broken.wgsl", "@compute @workgroup_size(1)\nfn broken( {\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrStageCompile))
	assert.Equal(t, program.StateLinkFailed, p.State())
	assert.Contains(t, p.Diagnostics().Link, "link skipped: 1 stage(s) failed to compile")
}

func TestAllocateStorage(t *testing.T) {
	f := newFixture(t)

	s, err := f.r.AllocateStorage("seeded", 4*4, func(mapped []byte) {
		copy(common.BytesToSlice[float32](mapped), []float32{1, 2, 3, 4})
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(16), s.Size())
	assert.Equal(t, []float32{1, 2, 3, 4}, f.floats(t, s))

	s.Release()
	assert.True(t, s.Released())
	_, err = f.r.ReadStorage(s)
	assert.ErrorIs(t, err, ErrStorageReleased)

	// releasing twice is harmless at this level
	s.Release()
}

func TestAllocateStorageInvalidSize(t *testing.T) {
	f := newFixture(t)

	for _, size := range []uint64{0, 3, 10} {
		_, err := f.r.AllocateStorage("bad", size, nil)
		require.Error(t, err)
		assert.Equal(t, common.KindAllocation, common.KindOf(err))
		assert.True(t, common.IsFatal(err))
	}
}

func TestDispatchReleasedStorage(t *testing.T) {
	f := newFixture(t)
	f.data.Release()

	require.NoError(t, f.r.BeginFrame())
	defer f.r.EndFrame()
	f.fill.Use()
	err := f.r.Dispatch(Bindings{"data": f.data}, [3]uint32{1, 1, 1})
	assert.ErrorIs(t, err, ErrStorageReleased)
}

func quadMesh(t *testing.T, r Renderer) Mesh {
	t.Helper()
	vertices := []common.Vertex{
		{Position: [3]float32{1, 1, 0}, UV: [2]float32{1, 1}},
		{Position: [3]float32{1, -1, 0}, UV: [2]float32{1, 0}},
		{Position: [3]float32{-1, -1, 0}, UV: [2]float32{0, 0}},
		{Position: [3]float32{-1, 1, 0}, UV: [2]float32{0, 1}},
	}
	indices := []uint32{0, 1, 3, 1, 2, 3}
	m, err := r.CreateMesh("quad", common.SliceToBytes(vertices), common.SliceToBytes(indices), len(indices))
	require.NoError(t, err)
	return m
}

func TestDrawFillsSurface(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	display, err := f.r.CompileRender("display",
		writeKernel(t, dir, "quad.vert.wgsl", quadVertexSource),
		writeKernel(t, dir, "red.frag.wgsl", redFragmentSource),
	)
	require.NoError(t, err)
	mesh := quadMesh(t, f.r)
	assert.Equal(t, 6, mesh.IndexCount())

	f.runFillThenCopy(t, true)

	require.NoError(t, f.r.BeginFrame())
	display.Use()
	require.NoError(t, f.r.Draw(mesh, Bindings{"data": f.data}))
	f.r.EndFrame()
	f.r.Present()

	img := f.r.Snapshot()
	require.NotNil(t, img)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
	for y := range 4 {
		for x := range 8 {
			c := img.RGBAAt(x, y)
			assert.Equal(t, uint8(128), c.R, "pixel %d,%d", x, y)
			assert.Zero(t, c.G)
			assert.Equal(t, uint8(255), c.A)
		}
	}
	assert.Empty(t, f.r.Hazards())
}

func TestCreateMeshRejectsBadIndices(t *testing.T) {
	f := newFixture(t)
	vertices := []common.Vertex{{}, {}, {}}
	_, err := f.r.CreateMesh("bad", common.SliceToBytes(vertices), common.SliceToBytes([]uint32{0, 1, 7}), 3)
	require.Error(t, err)
	assert.Equal(t, common.KindAllocation, common.KindOf(err))
}

func TestResize(t *testing.T) {
	f := newFixture(t)

	f.r.Resize(0, 100)
	w, h := f.r.Size()
	assert.Equal(t, 8, w)
	assert.Equal(t, 4, h)

	f.r.Resize(32, 16)
	w, h = f.r.Size()
	assert.Equal(t, 32, w)
	assert.Equal(t, 16, h)
}

func TestParseBackendType(t *testing.T) {
	tests := []struct {
		name    string
		want    RendererBackendType
		wantErr bool
	}{
		{"wgpu", BackendTypeWGPU, false},
		{"gpu", BackendTypeWGPU, false},
		{"software", BackendTypeSoftware, false},
		{"cpu", BackendTypeSoftware, false},
		{"vulkan", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBackendType(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeBindGroupLayouts(t *testing.T) {
	entry := func(binding uint32, visibility wgpu.ShaderStage) wgpu.BindGroupLayoutEntry {
		e := wgpu.BindGroupLayoutEntry{Binding: binding, Visibility: visibility}
		e.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		return e
	}
	vertex := map[int]wgpu.BindGroupLayoutDescriptor{
		0: {Entries: []wgpu.BindGroupLayoutEntry{entry(1, wgpu.ShaderStageVertex)}},
	}
	fragment := map[int]wgpu.BindGroupLayoutDescriptor{
		0: {Entries: []wgpu.BindGroupLayoutEntry{entry(1, wgpu.ShaderStageFragment), entry(0, wgpu.ShaderStageFragment)}},
		1: {Entries: []wgpu.BindGroupLayoutEntry{entry(0, wgpu.ShaderStageFragment)}},
	}

	merged := mergeBindGroupLayouts(vertex, fragment)
	require.Len(t, merged, 2)
	require.Len(t, merged[0].Entries, 2)
	assert.Equal(t, uint32(0), merged[0].Entries[0].Binding)
	assert.Equal(t, uint32(1), merged[0].Entries[1].Binding)
	assert.Equal(t, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment, merged[0].Entries[1].Visibility)
	assert.Equal(t, wgpu.ShaderStageFragment, merged[1].Entries[0].Visibility)
}
