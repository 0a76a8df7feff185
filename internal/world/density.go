package world

import (
	"math"
	"sync"
)

// Field is a 3D density-based terrain source. Positive density above the
// iso-level means solid; the gradient term pulls density negative with
// altitude so terrain thins out instead of extending forever.
//
// Block edits (mining) do not rewrite the noise; they accumulate in a sparse
// per-voxel overlay that is subtracted on every sample, so re-meshing a chunk
// after an edit sees the hole.
type Field struct {
	seed             int64
	scale            float64 // noise frequency
	baseHeight       float64 // target surface level
	gradientStrength float64 // altitude density gradient
	octaves          int
	persistence      float64
	lacunarity       float64

	editMu sync.RWMutex
	edits  map[[3]int32]float32
}

// IsoLevel is the density threshold separating air from solid.
const IsoLevel = 0.5

// NewField creates a density field for the given world seed.
func NewField(seed int64) *Field {
	return &Field{
		seed:             seed,
		scale:            1.0 / 64.0,
		baseHeight:       32.0,
		gradientStrength: 24.0,
		octaves:          4,
		persistence:      0.5,
		lacunarity:       2.0,
		edits:            make(map[[3]int32]float32),
	}
}

// SampleDensity returns the density at a world position. Values above
// IsoLevel are solid.
func (f *Field) SampleDensity(x, y, z float32) float32 {
	nx := float64(x) * f.scale
	ny := float64(y) * f.scale
	nz := float64(z) * f.scale

	noise := octaveNoise3D(nx, ny, nz, f.seed, f.octaves, f.persistence, f.lacunarity)

	// Height gradient: higher altitude drives density down
	gradient := (f.baseHeight - float64(y)) / f.gradientStrength

	d := float32(noise + gradient)

	vx := int32(math.Floor(float64(x)))
	vy := int32(math.Floor(float64(y)))
	vz := int32(math.Floor(float64(z)))
	f.editMu.RLock()
	delta, ok := f.edits[[3]int32{vx, vy, vz}]
	f.editMu.RUnlock()
	if ok {
		d += delta
	}
	return d
}

// Solid reports whether the voxel with min corner (x,y,z) is solid, sampling
// at the voxel center.
func (f *Field) Solid(x, y, z int32) bool {
	return f.SampleDensity(float32(x)+0.5, float32(y)+0.5, float32(z)+0.5) >= IsoLevel
}

// RemoveBlock applies a smooth density removal centered on (x,y,z). Voxels
// within radius lose up to strength, falling off linearly with distance.
func (f *Field) RemoveBlock(x, y, z, radius, strength float32) {
	r := int32(math.Ceil(float64(radius)))
	cx := int32(math.Floor(float64(x)))
	cy := int32(math.Floor(float64(y)))
	cz := int32(math.Floor(float64(z)))

	f.editMu.Lock()
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			for dz := -r; dz <= r; dz++ {
				vx, vy, vz := cx+dx, cy+dy, cz+dz
				ddx := float64(vx) + 0.5 - float64(x)
				ddy := float64(vy) + 0.5 - float64(y)
				ddz := float64(vz) + 0.5 - float64(z)
				dist := math.Sqrt(ddx*ddx + ddy*ddy + ddz*ddz)
				if dist > float64(radius) {
					continue
				}
				falloff := 1.0 - dist/float64(radius)
				f.edits[[3]int32{vx, vy, vz}] -= strength * float32(falloff)
			}
		}
	}
	f.editMu.Unlock()
}

// BlockTypeAt classifies a solid voxel by its surroundings: exposed surface
// becomes grass (sand near the low lands, snow up high), the two layers
// beneath it are dirt, everything deeper is stone.
func (f *Field) BlockTypeAt(x, y, z int32) BlockType {
	if !f.Solid(x, y, z) {
		return BlockTypeAir
	}
	if !f.Solid(x, y+1, z) {
		switch {
		case float64(y) < f.baseHeight-8:
			return BlockTypeSand
		case float64(y) > f.baseHeight+20:
			return BlockTypeSnow
		default:
			return BlockTypeGrass
		}
	}
	if !f.Solid(x, y+2, z) || !f.Solid(x, y+3, z) {
		return BlockTypeDirt
	}
	return BlockTypeStone
}
