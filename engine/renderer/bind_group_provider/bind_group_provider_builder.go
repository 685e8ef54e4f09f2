package bind_group_provider

import "github.com/cogentcore/webgpu/wgpu"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBindGroupLayouts sets the layouts of the provider, keyed by group index.
//
// Parameters:
//   - layouts: the bind group layouts
//
// Returns:
//   - BindGroupProviderOption: a function that sets the layouts of the provider
func WithBindGroupLayouts(layouts map[int]*wgpu.BindGroupLayout) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		for g, l := range layouts {
			p.bindGroupLayouts[g] = l
		}
	}
}

// WithUniformBuffer sets the uniform buffer of the provider and where it is bound.
//
// Parameters:
//   - buf: the uniform buffer
//   - group, binding: the slot the buffer is bound to
//
// Returns:
//   - BindGroupProviderOption: a function that sets the uniform buffer of the provider
func WithUniformBuffer(buf *wgpu.Buffer, group, binding int) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.SetUniformBuffer(buf, group, binding)
	}
}

// WithMeshBuffers sets the vertex and index buffers of a mesh provider.
//
// Parameters:
//   - vertexBuffer, indexBuffer: the geometry buffers
//   - indexCount: the number of indices to draw
//
// Returns:
//   - BindGroupProviderOption: a function that sets the mesh buffers of the provider
func WithMeshBuffers(vertexBuffer, indexBuffer *wgpu.Buffer, indexCount int) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.vertexBuffer = vertexBuffer
		p.indexBuffer = indexBuffer
		p.indexCount = indexCount
	}
}
