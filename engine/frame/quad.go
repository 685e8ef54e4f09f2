package frame

import (
	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
)

// QuadVertices covers the whole viewport; texture coordinates grow right and up.
var QuadVertices = []common.Vertex{
	{Position: [3]float32{1, 1, 0}, UV: [2]float32{1, 1}},
	{Position: [3]float32{1, -1, 0}, UV: [2]float32{1, 0}},
	{Position: [3]float32{-1, -1, 0}, UV: [2]float32{0, 0}},
	{Position: [3]float32{-1, 1, 0}, UV: [2]float32{0, 1}},
}

// QuadIndices are the two triangles of the quad.
var QuadIndices = []uint32{0, 1, 3, 1, 2, 3}

// NewQuad uploads the fullscreen quad.
//
// Parameters:
//   - r: the renderer the mesh is created on
//
// Returns:
//   - renderer.Mesh: the quad
//   - error: a fatal allocation error
func NewQuad(r renderer.Renderer) (renderer.Mesh, error) {
	return r.CreateMesh("Fullscreen Quad", common.SliceToBytes(QuadVertices), common.SliceToBytes(QuadIndices), len(QuadIndices))
}
