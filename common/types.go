// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

const (
	// AgentStride is the size in bytes of one Agent record as laid out in GPU storage.
	AgentStride = 12

	// CellStride is the size in bytes of one trail-map cell (4 x f32) as laid out in GPU storage.
	CellStride = 16

	// VertexStride is the size in bytes of one Vertex (vec3<f32> position, vec2<f32> uv).
	VertexStride = 20
)

// Agent is a single simulated point entity. Matches the WGSL struct
//
//	struct Agent { x: f32, y: f32, heading: f32 }
//
// so a []Agent can be handed to SliceToBytes for upload.
type Agent struct {
	// X is the horizontal position in normalized field coordinates [0, 1).
	X float32
	// Y is the vertical position in normalized field coordinates [0, 1).
	Y float32
	// Heading is the direction of travel as a fraction of a full turn [0, 1).
	Heading float32
}

// FieldSize is the cell resolution of the trail-map field.
type FieldSize struct {
	Width  uint32
	Height uint32
}

// Cells returns the number of cells in a field of this size.
func (s FieldSize) Cells() uint64 {
	return uint64(s.Width) * uint64(s.Height)
}

// Bytes returns the storage size in bytes of a field of this size.
func (s FieldSize) Bytes() uint64 {
	return s.Cells() * CellStride
}

// Vertex is one fullscreen-quad vertex: clip-space position followed by texture coordinates.
type Vertex struct {
	Position [3]float32
	UV       [2]float32
}
