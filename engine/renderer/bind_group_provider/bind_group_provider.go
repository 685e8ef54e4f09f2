package bind_group_provider

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// bindGroupProvider is the implementation of the BindGroupProvider interface.
type bindGroupProvider struct {
	label string

	// bindGroupLayouts holds the layout of every group the owning program declares.
	bindGroupLayouts map[int]*wgpu.BindGroupLayout
	// bindGroups holds the cached bind group of every group, built from the resources named by signatures.
	bindGroups map[int]*wgpu.BindGroup
	signatures map[int]string

	// uniformBuffer backs the program's var<uniform> block.
	uniformBuffer  *wgpu.Buffer
	uniformGroup   int
	uniformBinding int

	// mesh buffers, only set on providers created for geometry

	vertexBuffer *wgpu.Buffer
	indexBuffer  *wgpu.Buffer
	indexCount   int
}

// BindGroupProvider owns the GPU binding objects of one program or mesh: the bind group
// layouts, the bind groups built from them, the uniform buffer and, for meshes, the
// vertex and index buffers. Storage buffers referenced by bind groups are not owned.
type BindGroupProvider interface {
	// Release destroys every object the provider owns.
	Release()

	// Label returns the debug label used for the objects the provider creates.
	//
	// Returns:
	//   - string: the label
	Label() string

	// BindGroup returns the cached bind group for a group index.
	//
	// Parameters:
	//   - group: the @group index
	//
	// Returns:
	//   - *wgpu.BindGroup: the bind group, nil if none was built yet
	BindGroup(group int) *wgpu.BindGroup

	// Signature returns the identity of the resources the cached bind group of a group was
	// built from. A caller rebuilds the bind group when its resources produce another signature.
	//
	// Parameters:
	//   - group: the @group index
	//
	// Returns:
	//   - string: the signature, empty if no bind group is cached
	Signature(group int) string

	// SetBindGroup caches a bind group, releasing the one it replaces.
	//
	// Parameters:
	//   - group: the @group index
	//   - bg: the new bind group
	//   - signature: the identity of the resources bg references
	SetBindGroup(group int, bg *wgpu.BindGroup, signature string)

	// BindGroupLayout returns the layout of a group.
	//
	// Parameters:
	//   - group: the @group index
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the layout, nil if the group is not declared
	BindGroupLayout(group int) *wgpu.BindGroupLayout

	// GroupCount returns one past the highest declared group index.
	//
	// Returns:
	//   - int: the number of bind group slots to set when encoding
	GroupCount() int

	SetBindGroupLayout(group int, bgl *wgpu.BindGroupLayout)

	UniformBuffer() *wgpu.Buffer

	// UniformSlot returns where the uniform buffer is bound.
	//
	// Returns:
	//   - int: the @group index
	//   - int: the @binding index
	UniformSlot() (int, int)

	SetUniformBuffer(buf *wgpu.Buffer, group, binding int)

	VertexBuffer() *wgpu.Buffer

	IndexBuffer() *wgpu.Buffer

	IndexCount() int

	SetVertexBuffer(buf *wgpu.Buffer)

	SetIndexBuffer(buf *wgpu.Buffer)

	SetIndexCount(count int)
}

var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates an empty BindGroupProvider.
//
// Parameters:
//   - label: the debug label for the objects the provider will hold
//   - options: variadic list of BindGroupProviderOption functions
//
// Returns:
//   - BindGroupProvider: the new provider
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:            label,
		bindGroupLayouts: make(map[int]*wgpu.BindGroupLayout),
		bindGroups:       make(map[int]*wgpu.BindGroup),
		signatures:       make(map[int]string),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Release() {
	for g, bg := range p.bindGroups {
		if bg != nil {
			bg.Release()
		}
		delete(p.bindGroups, g)
		delete(p.signatures, g)
	}
	for g, bgl := range p.bindGroupLayouts {
		if bgl != nil {
			bgl.Release()
		}
		delete(p.bindGroupLayouts, g)
	}
	for _, buf := range []*wgpu.Buffer{p.uniformBuffer, p.vertexBuffer, p.indexBuffer} {
		if buf != nil {
			buf.Release()
		}
	}
	p.uniformBuffer, p.vertexBuffer, p.indexBuffer = nil, nil, nil
	p.indexCount = 0
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup(group int) *wgpu.BindGroup {
	return p.bindGroups[group]
}

func (p *bindGroupProvider) Signature(group int) string {
	return p.signatures[group]
}

func (p *bindGroupProvider) SetBindGroup(group int, bg *wgpu.BindGroup, signature string) {
	if old := p.bindGroups[group]; old != nil && old != bg {
		old.Release()
	}
	p.bindGroups[group] = bg
	p.signatures[group] = signature
}

func (p *bindGroupProvider) BindGroupLayout(group int) *wgpu.BindGroupLayout {
	return p.bindGroupLayouts[group]
}

func (p *bindGroupProvider) GroupCount() int {
	count := 0
	for g := range p.bindGroupLayouts {
		count = max(count, g+1)
	}
	return count
}

func (p *bindGroupProvider) SetBindGroupLayout(group int, bgl *wgpu.BindGroupLayout) {
	p.bindGroupLayouts[group] = bgl
}

func (p *bindGroupProvider) UniformBuffer() *wgpu.Buffer {
	return p.uniformBuffer
}

func (p *bindGroupProvider) UniformSlot() (int, int) {
	return p.uniformGroup, p.uniformBinding
}

func (p *bindGroupProvider) SetUniformBuffer(buf *wgpu.Buffer, group, binding int) {
	p.uniformBuffer = buf
	p.uniformGroup = group
	p.uniformBinding = binding
}

func (p *bindGroupProvider) VertexBuffer() *wgpu.Buffer {
	return p.vertexBuffer
}

func (p *bindGroupProvider) IndexBuffer() *wgpu.Buffer {
	return p.indexBuffer
}

func (p *bindGroupProvider) IndexCount() int {
	return p.indexCount
}

func (p *bindGroupProvider) SetVertexBuffer(buf *wgpu.Buffer) {
	p.vertexBuffer = buf
}

func (p *bindGroupProvider) SetIndexBuffer(buf *wgpu.Buffer) {
	p.indexBuffer = buf
}

func (p *bindGroupProvider) SetIndexCount(count int) {
	p.indexCount = count
}
