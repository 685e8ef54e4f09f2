package renderer

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
	"github.com/Carmen-Shannon/physarum/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// wgpuStorage is a storage buffer on the device.
type wgpuStorage struct {
	id       uint64
	label    string
	size     uint64
	buf      *wgpu.Buffer
	released bool
	mu       *sync.Mutex
}

func (s *wgpuStorage) ID() uint64 {
	return s.id
}

func (s *wgpuStorage) Label() string {
	return s.label
}

func (s *wgpuStorage) Size() uint64 {
	return s.size
}

func (s *wgpuStorage) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *wgpuStorage) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.buf.Release()
}

// wgpuProgram is the handle of a linked program on the WebGPU backend.
type wgpuProgram struct {
	computePipeline *wgpu.ComputePipeline
	renderPipeline  *wgpu.RenderPipeline
	pipelineLayout  *wgpu.PipelineLayout

	// bindings owns the layouts, cached bind groups and uniform buffer of the program.
	bindings    bind_group_provider.BindGroupProvider
	descriptors map[int]wgpu.BindGroupLayoutDescriptor
	varNames    map[int]map[int]string
}

func (h *wgpuProgram) release() {
	if h.computePipeline != nil {
		h.computePipeline.Release()
	}
	if h.renderPipeline != nil {
		h.renderPipeline.Release()
	}
	if h.pipelineLayout != nil {
		h.pipelineLayout.Release()
	}
	h.bindings.Release()
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat        *wgpu.TextureFormat
	renderPassDescriptor *wgpu.RenderPassDescriptor

	presentMode wgpu.PresentMode // defaults to PresentModeImmediate (Uncapped)

	// Frame state. Dispatches share one compute pass until a barrier ends it; the render
	// pass is opened on the surface by the first draw.
	frameEncoder *wgpu.CommandEncoder
	computePass  *wgpu.ComputePassEncoder
	framePass    *wgpu.RenderPassEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
}

// wgpuRendererBackend is the WebGPU implementation of RendererBackend, with access to
// the underlying device objects.
type wgpuRendererBackend interface {
	RendererBackend

	Device() *wgpu.Device

	Queue() *wgpu.Queue

	Adapter() *wgpu.Adapter

	Surface() *wgpu.Surface
}

var _ wgpuRendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool) (wgpuRendererBackend, error) {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
	}
	w.surface = w.instance.CreateSurface(surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	w.adapter = a

	// Large fields exceed the default storage binding limit, so take what the adapter offers.
	supported := a.GetLimits()
	limits := wgpu.DefaultLimits()
	limits.MaxStorageBufferBindingSize = max(limits.MaxStorageBufferBindingSize, supported.Limits.MaxStorageBufferBindingSize)
	limits.MaxBufferSize = max(limits.MaxBufferSize, supported.Limits.MaxBufferSize)

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Simulation Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	return w, nil
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = &capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	b.renderPassDescriptor = &wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       nil, // set per frame to the surface view
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
			},
		},
	}
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

func (b *wgpuRendererBackendImpl) CompileStage(s shader.Shader) (program.Stage, error) {
	module, err := b.device.CreateShaderModule(s.Module())
	if err != nil {
		return program.Stage{}, err
	}
	return program.Stage{Shader: s, Handle: module}, nil
}

func (b *wgpuRendererBackendImpl) ReleaseStage(st program.Stage) {
	if module, ok := st.Handle.(*wgpu.ShaderModule); ok && module != nil {
		module.Release()
	}
}

func (b *wgpuRendererBackendImpl) LinkProgram(p program.Program, stages []program.Stage) (any, error) {
	switch p.Kind() {
	case program.KindCompute:
		if len(stages) != 1 {
			return nil, fmt.Errorf("compute program needs 1 stage, got %d", len(stages))
		}
		return b.linkCompute(p, stages[0])
	case program.KindRender:
		rp, ok := p.(program.RenderProgram)
		if !ok || len(stages) != 2 {
			return nil, fmt.Errorf("render program needs a vertex and a fragment stage")
		}
		return b.linkRender(rp, stages[0], stages[1])
	default:
		return nil, fmt.Errorf("unsupported program kind %s", p.Kind())
	}
}

// newProgramHandle creates the bind group layouts, pipeline layout and uniform buffer
// shared by both program kinds.
func (b *wgpuRendererBackendImpl) newProgramHandle(key string, descriptors map[int]wgpu.BindGroupLayoutDescriptor, varNames map[int]map[int]string, uniform *shader.UniformBlock) (*wgpuProgram, error) {
	h := &wgpuProgram{
		bindings:    bind_group_provider.NewBindGroupProvider(key),
		descriptors: descriptors,
		varNames:    varNames,
	}

	maxGroup := -1
	for g := range descriptors {
		maxGroup = max(maxGroup, g)
	}
	layouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g, desc := range descriptors {
		desc.Label = fmt.Sprintf("%s Group %d Layout", key, g)
		layout, err := b.device.CreateBindGroupLayout(&desc)
		if err != nil {
			h.release()
			return nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err)
		}
		layouts[g] = layout
		h.bindings.SetBindGroupLayout(g, layout)
	}
	for g, layout := range layouts {
		if layout == nil {
			// gaps between declared groups still need a layout
			empty, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Label: fmt.Sprintf("%s Group %d Layout", key, g)})
			if err != nil {
				h.release()
				return nil, err
			}
			layouts[g] = empty
			h.bindings.SetBindGroupLayout(g, empty)
		}
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            key,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		h.release()
		return nil, err
	}
	h.pipelineLayout = pipelineLayout

	if uniform != nil {
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: key + " Uniform Buffer",
			Size:  uniform.Size,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			h.release()
			return nil, err
		}
		h.bindings.SetUniformBuffer(buf, uniform.Group, uniform.Binding)
	}
	return h, nil
}

func (b *wgpuRendererBackendImpl) linkCompute(p program.Program, stage program.Stage) (*wgpuProgram, error) {
	s := stage.Shader
	h, err := b.newProgramHandle(p.Key(), s.BindGroupLayoutDescriptors(), s.BindGroupVarNames(), s.UniformBlock())
	if err != nil {
		return nil, err
	}

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.Key() + " Compute Pipeline",
		Layout: h.pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     stage.Handle.(*wgpu.ShaderModule),
			EntryPoint: s.EntryPoint(),
		},
	})
	if err != nil {
		h.release()
		return nil, err
	}
	h.computePipeline = created
	return h, nil
}

func (b *wgpuRendererBackendImpl) linkRender(p program.RenderProgram, vertex, fragment program.Stage) (*wgpuProgram, error) {
	vs, fs := vertex.Shader, fragment.Shader
	descriptors := mergeBindGroupLayouts(vs.BindGroupLayoutDescriptors(), fs.BindGroupLayoutDescriptors())
	varNames := mergeVarNames(vs.BindGroupVarNames(), fs.BindGroupVarNames())
	uniform := program.UniformLayout(program.KindRender, map[shader.ShaderType]shader.Shader{
		shader.ShaderTypeVertex:   vs,
		shader.ShaderTypeFragment: fs,
	})

	h, err := b.newProgramHandle(p.Key(), descriptors, varNames, uniform)
	if err != nil {
		return nil, err
	}

	vertexLayouts := make([]wgpu.VertexBufferLayout, 0, len(vs.VertexLayouts()))
	for i := range len(vs.VertexLayouts()) {
		vertexLayouts = append(vertexLayouts, vs.VertexLayouts()[i]...)
	}

	b.mu.Lock()
	format := *b.surfaceFormat
	b.mu.Unlock()

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.Key() + " Render Pipeline",
		Layout: h.pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vertex.Handle.(*wgpu.ShaderModule),
			EntryPoint: vs.EntryPoint(),
			Buffers:    vertexLayouts,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fragment.Handle.(*wgpu.ShaderModule),
			EntryPoint: fs.EntryPoint(),
			Targets: []wgpu.ColorTargetState{
				{
					Format:    format,
					Blend:     p.BlendState(),
					WriteMask: p.WriteMask(),
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.Topology(),
			FrontFace: p.FrontFace(),
			CullMode:  p.CullMode(),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		h.release()
		return nil, err
	}
	h.renderPipeline = created
	return h, nil
}

func (b *wgpuRendererBackendImpl) ReleaseProgram(handle any) {
	if h, ok := handle.(*wgpuProgram); ok {
		h.release()
	}
}

func (b *wgpuRendererBackendImpl) AllocateStorage(label string, size uint64, init func(mapped []byte)) (Storage, error) {
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		MappedAtCreation: true,
	})
	if err != nil {
		return nil, err
	}
	// mapped-at-creation memory starts zeroed
	if init != nil {
		init(buf.GetMappedRange(0, uint(size)))
	}
	buf.Unmap()

	return &wgpuStorage{
		id:    storageIDs.Add(1),
		label: label,
		size:  size,
		buf:   buf,
		mu:    &sync.Mutex{},
	}, nil
}

func (b *wgpuRendererBackendImpl) ReadStorage(s Storage) ([]byte, error) {
	st, ok := s.(*wgpuStorage)
	if !ok {
		return nil, fmt.Errorf("storage %q does not belong to the wgpu backend", s.Label())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: st.label + " Readback",
		Size:  st.size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Release()
	if err := encoder.CopyBufferToBuffer(st.buf, 0, staging, 0, st.size); err != nil {
		return nil, err
	}
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	var status wgpu.BufferMapAsyncStatus
	if err := staging.MapAsync(wgpu.MapModeRead, 0, st.size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	}); err != nil {
		return nil, err
	}
	b.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("map %q for reading: status %v", st.label, status)
	}
	defer staging.Unmap()

	out := make([]byte, st.size)
	copy(out, staging.GetMappedRange(0, uint(st.size)))
	return out, nil
}

func (b *wgpuRendererBackendImpl) CreateMesh(label string, vertexData, indexData []byte, indexCount int) (Mesh, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	provider := bind_group_provider.NewBindGroupProvider(label)
	if len(vertexData) > 0 {
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label + " Vertex Buffer",
			Size:  uint64(len(vertexData)),
			Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, err
		}
		b.queue.WriteBuffer(buf, 0, vertexData)
		provider.SetVertexBuffer(buf)
	}

	if len(indexData) > 0 {
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label + " Index Buffer",
			Size:  uint64(len(indexData)),
			Usage: wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			provider.Release()
			return nil, err
		}
		b.queue.WriteBuffer(buf, 0, indexData)
		provider.SetIndexBuffer(buf)
	}

	provider.SetIndexCount(indexCount)
	return provider, nil
}

func (b *wgpuRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder != nil {
		return fmt.Errorf("previous frame not ended")
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.frameEncoder = encoder
	return nil
}

// prepareBindings uploads dirty uniforms and rebuilds any bind group whose storage changed.
func (b *wgpuRendererBackendImpl) prepareBindings(p program.Program, h *wgpuProgram, bindings Bindings) error {
	var writes []bind_group_provider.BufferWrite
	if data, dirty := p.TakeUniforms(); dirty && h.bindings.UniformBuffer() != nil {
		writes = append(writes, bind_group_provider.BufferWrite{Provider: h.bindings, Data: data})
	}
	uniformGroup, uniformBinding := h.bindings.UniformSlot()

	groups := make([]int, 0, len(h.descriptors))
	for g := range h.descriptors {
		groups = append(groups, g)
	}
	sort.Ints(groups)

	for _, g := range groups {
		desc := h.descriptors[g]
		entries := make([]wgpu.BindGroupEntry, 0, len(desc.Entries))
		ids := make([]string, 0, len(desc.Entries))
		for _, e := range desc.Entries {
			if e.Buffer.Type == wgpu.BufferBindingTypeUniform && g == uniformGroup && int(e.Binding) == uniformBinding {
				entries = append(entries, wgpu.BindGroupEntry{Binding: e.Binding, Buffer: h.bindings.UniformBuffer(), Size: wgpu.WholeSize})
				continue
			}
			name := h.varNames[g][int(e.Binding)]
			s, ok := bindings[name]
			if !ok || s == nil {
				return fmt.Errorf("%w: %s needs %q", ErrMissingBinding, p.Key(), name)
			}
			st, ok := s.(*wgpuStorage)
			if !ok {
				return fmt.Errorf("storage %q does not belong to the wgpu backend", s.Label())
			}
			if st.Released() {
				return fmt.Errorf("%w: %q bound to %s", ErrStorageReleased, st.label, p.Key())
			}
			entries = append(entries, wgpu.BindGroupEntry{Binding: e.Binding, Buffer: st.buf, Size: wgpu.WholeSize})
			ids = append(ids, strconv.FormatUint(st.id, 10))
		}

		signature := strings.Join(ids, ",")
		if h.bindings.BindGroup(g) != nil && h.bindings.Signature(g) == signature {
			continue
		}
		bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s Group %d", p.Key(), g),
			Layout:  h.bindings.BindGroupLayout(g),
			Entries: entries,
		})
		if err != nil {
			return err
		}
		h.bindings.SetBindGroup(g, bg, signature)
	}

	b.writeBuffers(writes)
	return nil
}

func (b *wgpuRendererBackendImpl) writeBuffers(writes []bind_group_provider.BufferWrite) {
	for _, w := range writes {
		buf := w.Provider.UniformBuffer()
		if buf == nil {
			continue
		}
		b.queue.WriteBuffer(buf, w.Offset, w.Data)
	}
}

func (b *wgpuRendererBackendImpl) Dispatch(p program.ComputeProgram, bindings Bindings, groups [3]uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	h, ok := p.Handle().(*wgpuProgram)
	if !ok || h.computePipeline == nil {
		return fmt.Errorf("%w: %s has no compute pipeline", ErrProgramNotLinked, p.Key())
	}
	if err := b.prepareBindings(p, h, bindings); err != nil {
		return err
	}

	if b.computePass == nil {
		b.computePass = b.frameEncoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: "Simulation Pass"})
	}
	b.computePass.SetPipeline(h.computePipeline)
	for g := range h.bindings.GroupCount() {
		b.computePass.SetBindGroup(uint32(g), h.bindings.BindGroup(g), nil)
	}
	b.computePass.DispatchWorkgroups(groups[0], groups[1], groups[2])
	return nil
}

func (b *wgpuRendererBackendImpl) Barrier(BarrierKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endComputePass()
}

// endComputePass closes the open compute pass. WebGPU orders storage writes of one pass
// before the reads of the next, which is what a barrier needs.
func (b *wgpuRendererBackendImpl) endComputePass() {
	if b.computePass == nil {
		return
	}
	b.computePass.End()
	b.computePass.Release()
	b.computePass = nil
}

func (b *wgpuRendererBackendImpl) Draw(p program.RenderProgram, mesh Mesh, bindings Bindings) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	h, ok := p.Handle().(*wgpuProgram)
	if !ok || h.renderPipeline == nil {
		return fmt.Errorf("%w: %s has no render pipeline", ErrProgramNotLinked, p.Key())
	}
	meshProvider, ok := mesh.(bind_group_provider.BindGroupProvider)
	if !ok {
		return fmt.Errorf("mesh %q does not belong to the wgpu backend", mesh.Label())
	}
	if err := b.prepareBindings(p, h, bindings); err != nil {
		return err
	}
	if err := b.beginRenderPass(); err != nil {
		return err
	}

	b.framePass.SetPipeline(h.renderPipeline)
	for g := range h.bindings.GroupCount() {
		b.framePass.SetBindGroup(uint32(g), h.bindings.BindGroup(g), nil)
	}
	b.framePass.SetVertexBuffer(0, meshProvider.VertexBuffer(), 0, wgpu.WholeSize)
	b.framePass.SetIndexBuffer(meshProvider.IndexBuffer(), wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	b.framePass.DrawIndexed(uint32(meshProvider.IndexCount()), 1, 0, 0, 0)
	return nil
}

// beginRenderPass acquires the surface texture and opens the render pass once per frame.
func (b *wgpuRendererBackendImpl) beginRenderPass() error {
	if b.framePass != nil {
		return nil
	}
	b.endComputePass()

	// a surface texture still held from an unpresented frame cannot be acquired again
	if b.frameSurface != nil {
		return errors.New("previous frame surface not yet presented")
	}
	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}

	b.renderPassDescriptor.ColorAttachments[0].View = view
	b.framePass = b.frameEncoder.BeginRenderPass(b.renderPassDescriptor)
	b.frameSurface = surfaceTexture
	b.frameView = view
	return nil
}

func (b *wgpuRendererBackendImpl) EndFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return
	}
	b.endComputePass()
	if b.framePass != nil {
		b.framePass.End()
		b.framePass.Release()
		b.framePass = nil
	}

	commandBuffer, err := b.frameEncoder.Finish(nil)
	if err != nil {
		common.Logger().Error("failed to finish frame", zap.Error(err))
		b.frameEncoder.Release()
		b.frameEncoder = nil
		b.releaseSurfaceTexture()
		return
	}

	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.frameEncoder.Release()
	b.frameEncoder = nil
}

func (b *wgpuRendererBackendImpl) Present() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface == nil {
		return
	}
	b.surface.Present()
	b.releaseSurfaceTexture()
}

func (b *wgpuRendererBackendImpl) releaseSurfaceTexture() {
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

func (b *wgpuRendererBackendImpl) Hazards() []Hazard {
	return nil
}

func (b *wgpuRendererBackendImpl) Snapshot() *image.RGBA {
	return nil
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseSurfaceTexture()
	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.surface != nil {
		b.surface.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
}

func (b *wgpuRendererBackendImpl) Device() *wgpu.Device {
	return b.device
}

func (b *wgpuRendererBackendImpl) Queue() *wgpu.Queue {
	return b.queue
}

func (b *wgpuRendererBackendImpl) Adapter() *wgpu.Adapter {
	return b.adapter
}

func (b *wgpuRendererBackendImpl) Surface() *wgpu.Surface {
	return b.surface
}

// mergeBindGroupLayouts combines the bind group layout descriptors of a vertex and a
// fragment shader into one set for a render pipeline layout. Entries with the same
// binding number in both stages have their visibility flags ORed together.
//
// Parameters:
//   - vertexLayouts: bind group layout descriptors from the vertex shader
//   - fragmentLayouts: bind group layout descriptors from the fragment shader
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: the merged descriptors keyed by group index
func mergeBindGroupLayouts(vertexLayouts, fragmentLayouts map[int]wgpu.BindGroupLayoutDescriptor) map[int]wgpu.BindGroupLayoutDescriptor {
	merged := make(map[int]wgpu.BindGroupLayoutDescriptor)
	entryMaps := make(map[int]map[uint32]wgpu.BindGroupLayoutEntry)

	for _, layouts := range []map[int]wgpu.BindGroupLayoutDescriptor{vertexLayouts, fragmentLayouts} {
		for g, desc := range layouts {
			if entryMaps[g] == nil {
				entryMaps[g] = make(map[uint32]wgpu.BindGroupLayoutEntry)
			}
			for _, e := range desc.Entries {
				if existing, ok := entryMaps[g][e.Binding]; ok {
					existing.Visibility |= e.Visibility
					entryMaps[g][e.Binding] = existing
					continue
				}
				entryMaps[g][e.Binding] = e
			}
		}
	}

	for g, entryMap := range entryMaps {
		entries := make([]wgpu.BindGroupLayoutEntry, 0, len(entryMap))
		for _, e := range entryMap {
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Binding < entries[j].Binding
		})
		merged[g] = wgpu.BindGroupLayoutDescriptor{Entries: entries}
	}
	return merged
}

// mergeVarNames combines the binding variable names of two stages.
func mergeVarNames(a, b map[int]map[int]string) map[int]map[int]string {
	merged := make(map[int]map[int]string)
	for _, names := range []map[int]map[int]string{a, b} {
		for g, bindings := range names {
			if merged[g] == nil {
				merged[g] = make(map[int]string)
			}
			for binding, name := range bindings {
				merged[g][binding] = name
			}
		}
	}
	return merged
}
