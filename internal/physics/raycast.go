package physics

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"aetheris/internal/mesh"
	"aetheris/internal/profiling"
	"aetheris/internal/world"
)

const (
	// MaxReachDistance bounds block picking for mining.
	MaxReachDistance = 5.0

	hitEpsilon      = 5e-4 // minimum t, rejects self-intersection at the ray origin
	parallelEpsilon = 1e-7
	dedupeEpsilon   = 0.001 // consecutive hits closer than this count as one surface hit
)

// TriangleSource exposes the renderer's cached triangles per chunk. The
// returned mesh is read-only.
type TriangleSource interface {
	GetMeshData(c world.ChunkCoord) (mesh.RenderMesh, bool)
}

// Hit is a single ray-triangle intersection.
type Hit struct {
	Point     mgl32.Vec3
	Normal    mgl32.Vec3
	T         float32
	BlockType world.BlockType
}

// Raycaster walks rays through the voxel grid and tests triangles of every
// chunk the ray passes through.
type Raycaster struct {
	Source     TriangleSource
	ChunkSize  int32
	ChunkSizeY int32
}

// Raycast returns the nearest hit within maxDist, if any.
func (rc *Raycaster) Raycast(start, dir mgl32.Vec3, maxDist float32) (Hit, bool) {
	hits := rc.cast(start, dir, maxDist, false)
	if len(hits) == 0 {
		return Hit{}, false
	}
	return hits[0], true
}

// RaycastAll returns every hit within maxDist, sorted ascending by distance,
// with near-coincident hits (such as a ray through an edge shared by two
// triangles) collapsed into one.
func (rc *Raycaster) RaycastAll(start, dir mgl32.Vec3, maxDist float32) []Hit {
	return rc.cast(start, dir, maxDist, true)
}

// cast runs an Amanatides-Woo traversal over unit voxels, collecting
// triangle intersections from each chunk the ray visits.
func (rc *Raycaster) cast(start, dir mgl32.Vec3, maxDist float32, all bool) []Hit {
	defer profiling.Track("physics.Raycast")()

	if dir.Len() == 0 {
		return nil
	}
	dir = dir.Normalize()

	ix := int32(math.Floor(float64(start.X())))
	iy := int32(math.Floor(float64(start.Y())))
	iz := int32(math.Floor(float64(start.Z())))

	stepX, tMaxX, tDeltaX := axisSetup(start.X(), dir.X(), ix)
	stepY, tMaxY, tDeltaY := axisSetup(start.Y(), dir.Y(), iy)
	stepZ, tMaxZ, tDeltaZ := axisSetup(start.Z(), dir.Z(), iz)

	maxSteps := int(math.Ceil(float64(maxDist)/0.5)) + 8

	var hits []Hit
	lastChunk := world.ChunkCoord{X: math.MaxInt32} // sentinel: no chunk visited yet

	for i := 0; i < maxSteps; i++ {
		chunk := world.ChunkCoord{
			X: world.FloorDiv(ix, rc.ChunkSize),
			Y: world.FloorDiv(iy, rc.ChunkSizeY),
			Z: world.FloorDiv(iz, rc.ChunkSize),
		}
		if chunk != lastChunk {
			lastChunk = chunk
			if m, ok := rc.Source.GetMeshData(chunk); ok {
				hits = rc.intersectMesh(hits, m, start, dir, maxDist)
			}
		}

		// advance along the axis whose boundary comes first
		next := tMaxX
		if tMaxY < next {
			next = tMaxY
		}
		if tMaxZ < next {
			next = tMaxZ
		}
		if next > maxDist {
			break
		}
		switch next {
		case tMaxX:
			ix += stepX
			tMaxX += tDeltaX
		case tMaxY:
			iy += stepY
			tMaxY += tDeltaY
		default:
			iz += stepZ
			tMaxZ += tDeltaZ
		}
	}

	sort.Slice(hits, func(a, b int) bool { return hits[a].T < hits[b].T })

	// drop consecutive hits at the same point, e.g. a ray through the edge
	// shared by two triangles
	deduped := hits[:0]
	for _, h := range hits {
		if len(deduped) > 0 && h.T-deduped[len(deduped)-1].T < dedupeEpsilon {
			continue
		}
		deduped = append(deduped, h)
		if !all && len(deduped) == 1 {
			break
		}
	}
	return deduped
}

// axisSetup computes the DDA stepping state for one axis: the step direction,
// the ray distance to the first voxel boundary, and the distance between
// boundaries.
func axisSetup(origin, dir float32, voxel int32) (step int32, tMax, tDelta float32) {
	if dir > 0 {
		step = 1
		tMax = (float32(voxel) + 1 - origin) / dir
		tDelta = 1 / dir
	} else if dir < 0 {
		step = -1
		tMax = (origin - float32(voxel)) / -dir
		tDelta = 1 / -dir
	} else {
		step = 0
		tMax = float32(math.Inf(1))
		tDelta = float32(math.Inf(1))
	}
	return
}

func (rc *Raycaster) intersectMesh(hits []Hit, m mesh.RenderMesh, start, dir mgl32.Vec3, maxDist float32) []Hit {
	for tri := 0; tri < m.TriangleCount(); tri++ {
		v0, _, bt := m.Vertex(tri * 3)
		v1, _, _ := m.Vertex(tri*3 + 1)
		v2, _, _ := m.Vertex(tri*3 + 2)
		if t, ok := intersectTriangle(start, dir, v0, v1, v2); ok && t > hitEpsilon && t <= maxDist {
			edge1 := v1.Sub(v0)
			edge2 := v2.Sub(v0)
			hits = append(hits, Hit{
				Point:     start.Add(dir.Mul(t)),
				Normal:    edge1.Cross(edge2).Normalize(),
				T:         t,
				BlockType: world.BlockType(bt),
			})
		}
	}
	return hits
}

// intersectTriangle is Möller–Trumbore: barycentric test without precomputed
// plane equations. Returns the ray parameter t on hit.
func intersectTriangle(origin, dir, v0, v1, v2 mgl32.Vec3) (float32, bool) {
	edge1 := v1.Sub(v0)
	edge2 := v2.Sub(v0)

	h := dir.Cross(edge2)
	a := edge1.Dot(h)
	if a > -parallelEpsilon && a < parallelEpsilon {
		return 0, false // ray parallel to triangle plane
	}

	f := 1 / a
	s := origin.Sub(v0)
	u := f * s.Dot(h)
	if u < 0 || u > 1 {
		return 0, false
	}

	q := s.Cross(edge1)
	v := f * dir.Dot(q)
	if v < 0 || u+v > 1 {
		return 0, false
	}

	t := f * edge2.Dot(q)
	if t <= 0 {
		return 0, false
	}
	return t, true
}
