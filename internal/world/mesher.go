package world

import (
	"github.com/go-gl/mathgl/mgl32"

	"aetheris/internal/mesh"
	"aetheris/internal/profiling"
)

// cubeFace holds the six corner offsets (two triangles) and the normal for
// one face of a unit voxel with its min corner at the voxel position.
type cubeFace struct {
	dx, dy, dz int32
	normal     mgl32.Vec3
	corners    [6][3]float32
}

var cubeFaces = [...]cubeFace{
	{ // NORTH (+Z)
		dz: 1, normal: mgl32.Vec3{0, 0, 1},
		corners: [6][3]float32{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {1, 1, 1}, {0, 1, 1}, {0, 0, 1}},
	},
	{ // SOUTH (-Z)
		dz: -1, normal: mgl32.Vec3{0, 0, -1},
		corners: [6][3]float32{{1, 0, 0}, {0, 0, 0}, {0, 1, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}},
	},
	{ // WEST (-X)
		dx: -1, normal: mgl32.Vec3{-1, 0, 0},
		corners: [6][3]float32{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 1}, {0, 1, 0}, {0, 0, 0}},
	},
	{ // EAST (+X)
		dx: 1, normal: mgl32.Vec3{1, 0, 0},
		corners: [6][3]float32{{1, 0, 1}, {1, 0, 0}, {1, 1, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}},
	},
	{ // TOP (+Y)
		dy: 1, normal: mgl32.Vec3{0, 1, 0},
		corners: [6][3]float32{{0, 1, 1}, {1, 1, 1}, {1, 1, 0}, {1, 1, 0}, {0, 1, 0}, {0, 1, 1}},
	},
	{ // BOTTOM (-Y)
		dy: -1, normal: mgl32.Vec3{0, -1, 0},
		corners: [6][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {1, 0, 1}, {0, 0, 1}, {0, 0, 0}},
	},
}

// MaxHeight returns the altitude above which density can never reach the
// iso-level, so chunks entirely above it mesh to nothing.
func (f *Field) MaxHeight() int32 {
	return int32(f.baseHeight + f.gradientStrength)
}

// TerrainMesher turns a density field into render meshes, one chunk at a
// time. Output is deterministic for a given seed and edit history.
type TerrainMesher struct {
	field      *Field
	chunkSize  int32
	chunkSizeY int32
}

// NewTerrainMesher creates a mesher over the given field.
func NewTerrainMesher(field *Field, chunkSize, chunkSizeY int32) *TerrainMesher {
	return &TerrainMesher{field: field, chunkSize: chunkSize, chunkSizeY: chunkSizeY}
}

// Generate builds the render mesh for a chunk: one pair of triangles per
// exposed voxel face. A chunk with no solid voxels yields an empty mesh.
func (tm *TerrainMesher) Generate(coord ChunkCoord) (mesh.RenderMesh, error) {
	defer profiling.Track("world.Generate")()

	baseX := coord.X * tm.chunkSize
	baseY := coord.Y * tm.chunkSizeY
	baseZ := coord.Z * tm.chunkSize

	if baseY > tm.field.MaxHeight() {
		return nil, nil
	}

	var out mesh.RenderMesh
	for lx := int32(0); lx < tm.chunkSize; lx++ {
		for lz := int32(0); lz < tm.chunkSize; lz++ {
			for ly := int32(0); ly < tm.chunkSizeY; ly++ {
				x, y, z := baseX+lx, baseY+ly, baseZ+lz
				if !tm.field.Solid(x, y, z) {
					continue
				}
				bt := float32(tm.field.BlockTypeAt(x, y, z))
				for fi := range cubeFaces {
					face := &cubeFaces[fi]
					if tm.field.Solid(x+face.dx, y+face.dy, z+face.dz) {
						continue
					}
					for _, c := range face.corners {
						out = out.AppendVertex(
							mgl32.Vec3{float32(x) + c[0], float32(y) + c[1], float32(z) + c[2]},
							face.normal,
							bt,
						)
					}
				}
			}
		}
	}
	return out, nil
}
