package renderer

import (
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
	"github.com/Carmen-Shannon/physarum/engine/renderer/shader"
	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

const (
	defaultSurfaceWidth  = 640
	defaultSurfaceHeight = 360
)

var storageIDs atomic.Uint64

// softwareConfig collects the builder options of the software backend.
type softwareConfig struct {
	compute  map[string]ComputeKernel
	fragment map[string]FragmentKernel
	workers  int
}

func newSoftwareConfig() softwareConfig {
	return softwareConfig{
		compute:  make(map[string]ComputeKernel),
		fragment: make(map[string]FragmentKernel),
		workers:  max(runtime.NumCPU()-1, 1),
	}
}

// softwareStorage keeps two copies of a buffer. Dispatches read visible and write staged;
// a barrier or the end of the frame publishes staged into visible.
type softwareStorage struct {
	id       uint64
	label    string
	size     uint64
	visible  []float32
	staged   []float32
	writer   string
	released atomic.Bool
	owner    *softwareRendererBackendImpl
}

func (s *softwareStorage) ID() uint64 {
	return s.id
}

func (s *softwareStorage) Label() string {
	return s.label
}

func (s *softwareStorage) Size() uint64 {
	return s.size
}

func (s *softwareStorage) Released() bool {
	return s.released.Load()
}

func (s *softwareStorage) Release() {
	if s.released.Swap(true) {
		return
	}
	s.owner.forget(s)
}

// softwareMesh holds decoded vertices and indices for the rasterizer.
type softwareMesh struct {
	label    string
	vertices []common.Vertex
	indices  []uint32
}

func (m *softwareMesh) Label() string {
	return m.label
}

func (m *softwareMesh) IndexCount() int {
	return len(m.indices)
}

func (m *softwareMesh) Release() {}

// softwareProgram is the handle of a linked program on the software backend.
type softwareProgram struct {
	compute  ComputeKernel
	fragment FragmentKernel
	// writable maps each storage variable to whether the program declares it read_write.
	writable map[string]bool
	names    []string
}

// softwareRendererBackendImpl runs programs as Go kernels over host memory.
type softwareRendererBackendImpl struct {
	mu *sync.Mutex

	config softwareConfig
	pool   worker.DynamicWorkerPool

	width, height int
	storages      map[uint64]*softwareStorage
	hazards       []Hazard

	inFrame   bool
	frame     *image.RGBA
	presented *image.RGBA
}

// softwareRendererBackend is the software implementation of RendererBackend.
type softwareRendererBackend interface {
	RendererBackend
}

var _ softwareRendererBackend = &softwareRendererBackendImpl{}

func newSoftwareRendererBackend(config softwareConfig) softwareRendererBackend {
	return &softwareRendererBackendImpl{
		mu:       &sync.Mutex{},
		config:   config,
		pool:     worker.NewDynamicWorkerPool(config.workers, 256, 1*time.Second),
		storages: make(map[uint64]*softwareStorage),
	}
}

func (b *softwareRendererBackendImpl) CompileStage(s shader.Shader) (program.Stage, error) {
	if err := shader.Lint(s.Source(), s.ShaderType()); err != nil {
		return program.Stage{}, err
	}
	return program.Stage{Shader: s, Handle: s.EntryPoint()}, nil
}

func (b *softwareRendererBackendImpl) ReleaseStage(program.Stage) {}

func (b *softwareRendererBackendImpl) LinkProgram(p program.Program, stages []program.Stage) (any, error) {
	h := &softwareProgram{writable: make(map[string]bool)}
	for _, st := range stages {
		s := st.Shader
		switch s.ShaderType() {
		case shader.ShaderTypeCompute:
			k, ok := b.config.compute[s.EntryPoint()]
			if !ok {
				return nil, fmt.Errorf("error: entry point %q has no registered compute kernel", s.EntryPoint())
			}
			h.compute = k
		case shader.ShaderTypeFragment:
			k, ok := b.config.fragment[s.EntryPoint()]
			if !ok {
				return nil, fmt.Errorf("error: entry point %q has no registered fragment kernel", s.EntryPoint())
			}
			h.fragment = k
		}

		descriptors := s.BindGroupLayoutDescriptors()
		names := s.BindGroupVarNames()
		for g, desc := range descriptors {
			for _, e := range desc.Entries {
				name := names[g][int(e.Binding)]
				switch e.Buffer.Type {
				case wgpu.BufferBindingTypeStorage:
					h.writable[name] = true
				case wgpu.BufferBindingTypeReadOnlyStorage:
					if _, seen := h.writable[name]; !seen {
						h.writable[name] = false
					}
				}
			}
		}
	}
	for name := range h.writable {
		h.names = append(h.names, name)
	}
	sort.Strings(h.names)
	return h, nil
}

func (b *softwareRendererBackendImpl) ReleaseProgram(any) {}

func (b *softwareRendererBackendImpl) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = width, height
}

func (b *softwareRendererBackendImpl) SetPresentMode(PresentMode) {}

func (b *softwareRendererBackendImpl) AllocateStorage(label string, size uint64, init func(mapped []byte)) (Storage, error) {
	s := &softwareStorage{
		id:      storageIDs.Add(1),
		label:   label,
		size:    size,
		visible: make([]float32, size/4),
		owner:   b,
	}
	if init != nil {
		init(common.SliceToBytes(s.visible))
	}

	b.mu.Lock()
	b.storages[s.id] = s
	b.mu.Unlock()
	return s, nil
}

func (b *softwareRendererBackendImpl) forget(s *softwareStorage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.storages, s.id)
}

func (b *softwareRendererBackendImpl) ReadStorage(s Storage) ([]byte, error) {
	st, ok := s.(*softwareStorage)
	if !ok || st.owner != b {
		return nil, fmt.Errorf("storage %q does not belong to the software backend", s.Label())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float32, len(st.visible))
	copy(out, st.visible)
	return common.SliceToBytes(out), nil
}

func (b *softwareRendererBackendImpl) CreateMesh(label string, vertexData, indexData []byte, indexCount int) (Mesh, error) {
	stride := common.VertexStride
	if len(vertexData)%stride != 0 || len(indexData) < indexCount*4 {
		return nil, fmt.Errorf("mesh %q: %d vertex bytes and %d index bytes do not describe %d indices", label, len(vertexData), len(indexData), indexCount)
	}
	m := &softwareMesh{
		label:    label,
		vertices: make([]common.Vertex, len(vertexData)/stride),
		indices:  make([]uint32, indexCount),
	}
	copy(common.SliceToBytes(m.vertices), vertexData)
	copy(common.SliceToBytes(m.indices), indexData)
	for _, i := range m.indices {
		if int(i) >= len(m.vertices) {
			return nil, fmt.Errorf("mesh %q: index %d out of range", label, i)
		}
	}
	return m, nil
}

func (b *softwareRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFrame {
		return fmt.Errorf("previous frame not ended")
	}
	b.inFrame = true
	b.frame = nil
	return nil
}

func (b *softwareRendererBackendImpl) Dispatch(p program.ComputeProgram, bindings Bindings, groups [3]uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inFrame {
		return ErrNoFrame
	}
	h, ok := p.Handle().(*softwareProgram)
	if !ok || h.compute == nil {
		return fmt.Errorf("%w: %s has no software compute handle", ErrProgramNotLinked, p.Key())
	}
	ctx, err := b.kernelContext(p, h, bindings)
	if err != nil {
		return err
	}
	ctx.Groups = groups
	ctx.WorkgroupSize = p.WorkgroupSize()
	if err := h.compute(ctx); err != nil {
		// a failed kernel leaves nothing pending
		for _, st := range ctx.fresh {
			st.staged, st.writer = nil, ""
		}
		return err
	}
	return nil
}

// kernelContext validates bindings, records stale reads and prepares staged copies for
// the writable bindings. Nothing is modified unless every binding resolves.
func (b *softwareRendererBackendImpl) kernelContext(p program.Program, h *softwareProgram, bindings Bindings) (*KernelContext, error) {
	resolved := make([]*softwareStorage, len(h.names))
	for i, name := range h.names {
		s, ok := bindings[name]
		if !ok || s == nil {
			return nil, fmt.Errorf("%w: %s needs %q", ErrMissingBinding, p.Key(), name)
		}
		st, ok := s.(*softwareStorage)
		if !ok || st.owner != b {
			return nil, fmt.Errorf("storage %q does not belong to the software backend", s.Label())
		}
		if st.Released() {
			return nil, fmt.Errorf("%w: %q bound to %s", ErrStorageReleased, st.label, p.Key())
		}
		resolved[i] = st
	}

	layout, data := p.Uniforms()
	p.TakeUniforms()
	ctx := &KernelContext{
		Program:  p.Key(),
		Uniforms: NewUniforms(layout, data),
		buffers:  make(map[string]*KernelBuffer, len(h.names)),
		parallel: b.parallel,
	}

	for i, name := range h.names {
		st := resolved[i]
		if st.staged != nil {
			hz := Hazard{Resource: st.label, Writer: st.writer, Reader: p.Key()}
			b.hazards = append(b.hazards, hz)
			common.Logger().Warn("stale storage read", zap.String("hazard", hz.String()))
		}
		kb := &KernelBuffer{Read: st.visible}
		if h.writable[name] {
			if st.staged == nil {
				st.staged = make([]float32, len(st.visible))
				copy(st.staged, st.visible)
				ctx.fresh = append(ctx.fresh, st)
			}
			st.writer = p.Key()
			kb.Write = st.staged
		}
		ctx.buffers[name] = kb
	}
	return ctx, nil
}

func (b *softwareRendererBackendImpl) Barrier(BarrierKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publish()
}

// publish makes every staged write visible.
func (b *softwareRendererBackendImpl) publish() {
	for _, st := range b.storages {
		if st.staged == nil {
			continue
		}
		st.visible, st.staged = st.staged, nil
		st.writer = ""
	}
}

func (b *softwareRendererBackendImpl) Draw(p program.RenderProgram, mesh Mesh, bindings Bindings) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inFrame {
		return ErrNoFrame
	}
	h, ok := p.Handle().(*softwareProgram)
	if !ok || h.fragment == nil {
		return fmt.Errorf("%w: %s has no software fragment handle", ErrProgramNotLinked, p.Key())
	}
	m, ok := mesh.(*softwareMesh)
	if !ok {
		return fmt.Errorf("mesh %q does not belong to the software backend", mesh.Label())
	}
	ctx, err := b.kernelContext(p, h, bindings)
	if err != nil {
		return err
	}

	if b.frame == nil {
		b.frame = image.NewRGBA(image.Rect(0, 0, b.width, b.height))
		for i := 3; i < len(b.frame.Pix); i += 4 {
			b.frame.Pix[i] = 0xff
		}
	}
	for t := 0; t+2 < len(m.indices); t += 3 {
		b.rasterize(ctx, h.fragment, m.vertices[m.indices[t]], m.vertices[m.indices[t+1]], m.vertices[m.indices[t+2]])
	}
	return nil
}

// rasterize fills one triangle, interpolating texture coordinates barycentrically and
// splitting its rows across the worker pool.
func (b *softwareRendererBackendImpl) rasterize(ctx *KernelContext, frag FragmentKernel, v0, v1, v2 common.Vertex) {
	w, h := float32(b.width), float32(b.height)
	toPixel := func(v common.Vertex) [2]float32 {
		return [2]float32{(v.Position[0] + 1) * 0.5 * w, (1 - v.Position[1]) * 0.5 * h}
	}
	p0, p1, p2 := toPixel(v0), toPixel(v1), toPixel(v2)
	edge := func(a, b [2]float32, x, y float32) float32 {
		return (b[0]-a[0])*(y-a[1]) - (b[1]-a[1])*(x-a[0])
	}
	area := edge(p0, p1, p2[0], p2[1])
	if area == 0 {
		return
	}

	minX := max(int(math32.Floor(min(p0[0], p1[0], p2[0]))), 0)
	maxX := min(int(math32.Ceil(max(p0[0], p1[0], p2[0]))), b.width)
	minY := max(int(math32.Floor(min(p0[1], p1[1], p2[1]))), 0)
	maxY := min(int(math32.Ceil(max(p0[1], p1[1], p2[1]))), b.height)
	if minX >= maxX || minY >= maxY {
		return
	}

	img := b.frame
	b.parallel(maxY-minY, func(lo, hi int) {
		for y := minY + lo; y < minY+hi; y++ {
			py := float32(y) + 0.5
			for x := minX; x < maxX; x++ {
				px := float32(x) + 0.5
				w0 := edge(p1, p2, px, py) / area
				w1 := edge(p2, p0, px, py) / area
				w2 := edge(p0, p1, px, py) / area
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
				uv := [2]float32{
					w0*v0.UV[0] + w1*v1.UV[0] + w2*v2.UV[0],
					w0*v0.UV[1] + w1*v1.UV[1] + w2*v2.UV[1],
				}
				c := frag(ctx, uv)
				img.SetRGBA(x, y, color.RGBA{R: toByte(c[0]), G: toByte(c[1]), B: toByte(c[2]), A: toByte(c[3])})
			}
		}
	})
}

func toByte(v float32) uint8 {
	return uint8(math32.Round(min(max(v, 0), 1) * 255))
}

// parallel splits [0, n) into one contiguous range per worker and waits for all of them.
func (b *softwareRendererBackendImpl) parallel(n int, fn func(lo, hi int)) {
	chunks := min(b.config.workers, n)
	if chunks <= 1 {
		fn(0, n)
		return
	}
	step := (n + chunks - 1) / chunks

	var wg sync.WaitGroup
	for id, lo := 0, 0; lo < n; id, lo = id+1, lo+step {
		hi := min(lo+step, n)
		start := lo
		wg.Add(1)
		b.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				fn(start, hi)
				return nil, nil
			},
		})
	}
	wg.Wait()
}

func (b *softwareRendererBackendImpl) EndFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()
	// submission boundary: everything written this frame is visible to the next one
	b.publish()
	b.inFrame = false
}

func (b *softwareRendererBackendImpl) Present() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame != nil {
		b.presented = b.frame
	}
}

func (b *softwareRendererBackendImpl) Hazards() []Hazard {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Hazard(nil), b.hazards...)
}

func (b *softwareRendererBackendImpl) Snapshot() *image.RGBA {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presented
}

func (b *softwareRendererBackendImpl) Release() {
	b.pool.Stop()
}
