package world

import (
	"testing"
)

func TestFloorDiv(t *testing.T) {
	cases := []struct {
		a, b, want int32
	}{
		{0, 32, 0},
		{31, 32, 0},
		{32, 32, 1},
		{-1, 32, -1},
		{-32, 32, -1},
		{-33, 32, -2},
		{95, 96, 0},
		{-96, 96, -1},
	}
	for _, tc := range cases {
		if got := FloorDiv(tc.a, tc.b); got != tc.want {
			t.Errorf("FloorDiv(%d,%d) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestChunkForBlock(t *testing.T) {
	c := ChunkForBlock(-1, 100, 33, 32, 96)
	want := ChunkCoord{X: -1, Y: 1, Z: 1}
	if c != want {
		t.Errorf("ChunkForBlock = %v, want %v", c, want)
	}
}

func TestHardnessTable(t *testing.T) {
	cases := []struct {
		bt   BlockType
		want float32
	}{
		{BlockTypeAir, 0},
		{BlockTypeStone, 2.0},
		{BlockTypeDirt, 0.8},
		{BlockTypeGrass, 0.8},
		{BlockTypeSand, 0.5},
		{BlockTypeSnow, 1.5},
		{BlockTypeGravel, 1.2},
		{BlockTypeWood, 1.5},
		{BlockTypeLeaves, 0.3},
		{BlockType(200), 1.0}, // out of range falls back
	}
	for _, tc := range cases {
		if got := tc.bt.Hardness(); got != tc.want {
			t.Errorf("%v.Hardness() = %f, want %f", tc.bt, got, tc.want)
		}
	}
}

func TestDensityDeterministic(t *testing.T) {
	a := NewField(1337)
	b := NewField(1337)
	for _, p := range [][3]float32{{0, 32, 0}, {100.5, 10, -50.25}, {-3, 90, 7}} {
		da := a.SampleDensity(p[0], p[1], p[2])
		db := b.SampleDensity(p[0], p[1], p[2])
		if da != db {
			t.Errorf("density not deterministic at %v: %f vs %f", p, da, db)
		}
	}

	c := NewField(42)
	diff := false
	for x := float32(0); x < 64; x += 8 {
		if a.SampleDensity(x, 32, 0) != c.SampleDensity(x, 32, 0) {
			diff = true
			break
		}
	}
	if !diff {
		t.Errorf("different seeds should produce different terrain")
	}
}

func TestDensityGradient(t *testing.T) {
	f := NewField(1)
	// far below the surface everything is solid, far above nothing is
	if !f.Solid(0, -50, 0) {
		t.Errorf("deep underground should be solid")
	}
	if f.Solid(0, f.MaxHeight()+10, 0) {
		t.Errorf("above max height should be air")
	}
}

func TestRemoveBlockCarvesField(t *testing.T) {
	f := NewField(1)
	var surfaceY int32 = -1
	for y := int32(95); y >= 0; y-- {
		if f.Solid(8, y, 8) {
			surfaceY = y
			break
		}
	}
	if surfaceY < 0 {
		t.Fatalf("no surface found")
	}

	before := f.SampleDensity(8.5, float32(surfaceY)+0.5, 8.5)
	f.RemoveBlock(8.5, float32(surfaceY)+0.5, 8.5, 1.5, 3.0)
	after := f.SampleDensity(8.5, float32(surfaceY)+0.5, 8.5)

	if after >= before {
		t.Errorf("density should drop after removal: %f -> %f", before, after)
	}
	if f.Solid(8, surfaceY, 8) {
		t.Errorf("carved voxel should be air")
	}
	// edits accumulate
	f.RemoveBlock(8.5, float32(surfaceY)+0.5, 8.5, 1.5, 3.0)
	if f.SampleDensity(8.5, float32(surfaceY)+0.5, 8.5) >= after {
		t.Errorf("second removal should carve deeper")
	}
}

func TestBlockTypeClassification(t *testing.T) {
	f := NewField(1)
	var surfaceY int32 = -1
	for y := int32(95); y >= 0; y-- {
		if f.Solid(4, y, 4) {
			surfaceY = y
			break
		}
	}
	if surfaceY < 0 {
		t.Fatalf("no surface found")
	}

	top := f.BlockTypeAt(4, surfaceY, 4)
	if top != BlockTypeGrass && top != BlockTypeSand && top != BlockTypeSnow {
		t.Errorf("surface block should be grass, sand or snow, got %v", top)
	}
	if f.BlockTypeAt(4, surfaceY+1, 4) != BlockTypeAir {
		t.Errorf("above the surface should be air")
	}
	if deep := f.BlockTypeAt(4, surfaceY-10, 4); deep != BlockTypeStone {
		t.Errorf("deep block should be stone, got %v", deep)
	}
}

func TestMesherDeterministicAndEmptyAboveTerrain(t *testing.T) {
	f := NewField(1337)
	tm := NewTerrainMesher(f, 32, 96)

	a, err := tm.Generate(ChunkCoord{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := tm.Generate(ChunkCoord{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("mesher not deterministic: %d vs %d floats", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("mesher not deterministic at float %d", i)
		}
	}
	if a.VertexCount() == 0 {
		t.Errorf("surface chunk should produce triangles")
	}
	if a.VertexCount()%3 != 0 {
		t.Errorf("vertex count %d is not a whole number of triangles", a.VertexCount())
	}

	sky, err := tm.Generate(ChunkCoord{Y: 5})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if sky.VertexCount() != 0 {
		t.Errorf("chunk above max height should be empty, got %d vertices", sky.VertexCount())
	}
}

func TestMesherSeesEdits(t *testing.T) {
	f := NewField(1337)
	tm := NewTerrainMesher(f, 32, 96)

	before, err := tm.Generate(ChunkCoord{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var surfaceY int32 = -1
	for y := int32(95); y >= 0; y-- {
		if f.Solid(16, y, 16) {
			surfaceY = y
			break
		}
	}
	if surfaceY < 0 {
		t.Fatalf("no surface found")
	}
	f.RemoveBlock(16.5, float32(surfaceY)+0.5, 16.5, 1.5, 3.0)

	after, err := tm.Generate(ChunkCoord{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(after) == len(before) {
		t.Errorf("mesh should change after a density edit")
	}
}
