package player

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"aetheris/internal/physics"
	"aetheris/internal/world"
)

// faceInset steps the hit point just inside the struck face so flooring it
// yields the block that owns the face, not its neighbor.
const faceInset = 0.1

// Miner tracks break progress on the block under the crosshair. Progress
// only accumulates while the break input is held, the window is focused and
// the target block stays the same; anything else resets it.
type Miner struct {
	Caster    *physics.Raycaster
	Player    *Player
	SpeedMult float32

	// OnBlockMined fires once when progress reaches 1.
	OnBlockMined func(pos [3]int32, blockType world.BlockType)

	target    [3]int32
	hasTarget bool
	progress  float32
	blockType world.BlockType
}

// NewMiner creates a miner picking through the given raycaster.
func NewMiner(caster *physics.Raycaster, p *Player) *Miner {
	return &Miner{Caster: caster, Player: p, SpeedMult: 1}
}

// Progress returns the current break progress in [0,1].
func (m *Miner) Progress() float32 { return m.progress }

// Target returns the block being mined, if any.
func (m *Miner) Target() ([3]int32, bool) { return m.target, m.hasTarget }

// Update advances the mining state by one frame.
func (m *Miner) Update(dt float32, breakHeld, focused bool) {
	if !focused || !breakHeld {
		m.reset()
		return
	}

	hit, ok := m.Caster.Raycast(m.Player.EyePosition(), m.Player.GetForward(), physics.MaxReachDistance)
	if !ok {
		m.reset()
		return
	}

	// step just inside the hit face to land in the struck block
	inner := hit.Point.Sub(hit.Normal.Mul(faceInset))
	target := [3]int32{
		int32(math.Floor(float64(inner.X()))),
		int32(math.Floor(float64(inner.Y()))),
		int32(math.Floor(float64(inner.Z()))),
	}

	if !m.hasTarget || target != m.target {
		m.target = target
		m.hasTarget = true
		m.blockType = hit.BlockType
		m.progress = 0
	}

	speedMult := m.SpeedMult
	if speedMult <= 0 {
		speedMult = 1
	}
	breakTime := m.blockType.Hardness() * speedMult
	if breakTime <= 0 {
		// air and other zero-hardness blocks break on the first held frame
		m.finish()
		return
	}

	m.progress += dt / breakTime
	if m.progress >= 1 {
		m.finish()
	}
}

func (m *Miner) finish() {
	if m.OnBlockMined != nil {
		m.OnBlockMined(m.target, m.blockType)
	}
	m.reset()
}

func (m *Miner) reset() {
	m.hasTarget = false
	m.progress = 0
	m.blockType = world.BlockTypeAir
}

// TargetCenter returns the world-space center of the current target block.
func (m *Miner) TargetCenter() (mgl32.Vec3, bool) {
	if !m.hasTarget {
		return mgl32.Vec3{}, false
	}
	return mgl32.Vec3{
		float32(m.target[0]) + 0.5,
		float32(m.target[1]) + 0.5,
		float32(m.target[2]) + 0.5,
	}, true
}
