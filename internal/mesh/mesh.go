// Package mesh defines the triangle data exchanged between the chunk server
// and its clients: a flat render mesh for GPU upload and an indexed collision
// mesh for physics.
package mesh

import "github.com/go-gl/mathgl/mgl32"

// VertexFloats is the number of float32s per render vertex:
// position (x,y,z), normal (nx,ny,nz) and block type.
const VertexFloats = 7

// RenderMesh is an ordered triangle list, VertexFloats floats per vertex,
// three vertices per triangle. The block type rides in the seventh float so
// the whole vertex fits one interleaved GPU buffer.
type RenderMesh []float32

// VertexCount returns the number of vertices in the mesh.
func (m RenderMesh) VertexCount() int {
	return len(m) / VertexFloats
}

// TriangleCount returns the number of triangles in the mesh.
func (m RenderMesh) TriangleCount() int {
	return m.VertexCount() / 3
}

// Vertex returns position, normal and block type of vertex i.
func (m RenderMesh) Vertex(i int) (pos, normal mgl32.Vec3, blockType float32) {
	v := m[i*VertexFloats:]
	pos = mgl32.Vec3{v[0], v[1], v[2]}
	normal = mgl32.Vec3{v[3], v[4], v[5]}
	blockType = v[6]
	return
}

// AppendVertex appends one vertex to the mesh.
func (m RenderMesh) AppendVertex(pos, normal mgl32.Vec3, blockType float32) RenderMesh {
	return append(m,
		pos.X(), pos.Y(), pos.Z(),
		normal.X(), normal.Y(), normal.Z(),
		blockType,
	)
}

// CollisionMesh is an indexed triangle list for physics consumption.
type CollisionMesh struct {
	Vertices []mgl32.Vec3
	Indices  []int32
}

// BuildCollision derives a collision mesh from a render mesh, deduplicating
// shared corners so physics works on an indexed triangle list.
func BuildCollision(m RenderMesh) CollisionMesh {
	cm := CollisionMesh{
		Vertices: make([]mgl32.Vec3, 0, m.VertexCount()/2),
		Indices:  make([]int32, 0, m.VertexCount()),
	}
	seen := make(map[[3]float32]int32, m.VertexCount()/2)
	for i := 0; i < m.VertexCount(); i++ {
		pos, _, _ := m.Vertex(i)
		key := [3]float32{pos.X(), pos.Y(), pos.Z()}
		idx, ok := seen[key]
		if !ok {
			idx = int32(len(cm.Vertices))
			cm.Vertices = append(cm.Vertices, pos)
			seen[key] = idx
		}
		cm.Indices = append(cm.Indices, idx)
	}
	return cm
}
