package program

import "github.com/cogentcore/webgpu/wgpu"

// ProgramBuilderOption is a functional option used to configure a program during construction.
type ProgramBuilderOption func(*program)

// WithBinder sets the binder that Use forwards to.
//
// Parameters:
//   - b: the binder, normally the renderer
//
// Returns:
//   - ProgramBuilderOption: a function that sets the binder of the program
func WithBinder(b Binder) ProgramBuilderOption {
	return func(p *program) {
		p.binder = b
	}
}

// WithCullMode sets the face culling mode of a render program.
//
// Parameters:
//   - mode: the wgpu.CullMode to use
//
// Returns:
//   - ProgramBuilderOption: a function that sets the cull mode of the program
func WithCullMode(mode wgpu.CullMode) ProgramBuilderOption {
	return func(p *program) {
		p.cullMode = mode
	}
}

// WithTopology sets the primitive topology of a render program.
//
// Parameters:
//   - topology: the wgpu.PrimitiveTopology to use
//
// Returns:
//   - ProgramBuilderOption: a function that sets the topology of the program
func WithTopology(topology wgpu.PrimitiveTopology) ProgramBuilderOption {
	return func(p *program) {
		p.topology = topology
	}
}

// WithFrontFace sets the winding order considered front facing.
//
// Parameters:
//   - frontFace: the wgpu.FrontFace to use
//
// Returns:
//   - ProgramBuilderOption: a function that sets the front face of the program
func WithFrontFace(frontFace wgpu.FrontFace) ProgramBuilderOption {
	return func(p *program) {
		p.frontFace = frontFace
	}
}

// WithWriteMask sets which color channels a render program writes.
//
// Parameters:
//   - writeMask: the wgpu.ColorWriteMask to use
//
// Returns:
//   - ProgramBuilderOption: a function that sets the write mask of the program
func WithWriteMask(writeMask wgpu.ColorWriteMask) ProgramBuilderOption {
	return func(p *program) {
		p.writeMask = writeMask
	}
}

// WithBlendState sets the color blend state of a render program. A nil state disables blending.
//
// Parameters:
//   - blendState: the wgpu.BlendState to use
//
// Returns:
//   - ProgramBuilderOption: a function that sets the blend state of the program
func WithBlendState(blendState *wgpu.BlendState) ProgramBuilderOption {
	return func(p *program) {
		p.blendState = blendState
	}
}
