package shader

import "github.com/cogentcore/webgpu/wgpu"

// UniformField is one named member of a uniform struct with its byte placement.
type UniformField struct {
	// Name is the WGSL member name, used as the parameter name by programs.
	Name string
	// TypeName is the WGSL type of the member, e.g. "f32", "u32", "vec2<f32>".
	TypeName string
	// Offset is the byte offset of the member from the start of the uniform buffer.
	Offset uint64
	// Size is the byte size of the member.
	Size uint64
}

// UniformBlock describes the var<uniform> resource of a shader: where it is bound,
// how large the buffer must be and where each named member lives.
type UniformBlock struct {
	// VarName is the WGSL variable name of the uniform resource.
	VarName string
	// Group and Binding locate the resource in the bind group layout.
	Group, Binding int
	// TypeName is the WGSL struct (or primitive) type of the resource.
	TypeName string
	// Size is the buffer size in bytes, rounded to the struct alignment.
	Size uint64
	// Fields holds the struct members keyed by name.
	Fields map[string]UniformField
}

// vertexFormatInfo holds the wgpu vertex format and its byte size for offset calculation
type vertexFormatInfo struct {
	format wgpu.VertexFormat
	size   uint64
}

// wgslTypeLayout holds the byte size and alignment for a WGSL type.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}
