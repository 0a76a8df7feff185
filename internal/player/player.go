package player

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	PlayerEyeHeight = 1.5
)

// Player holds the local player's transform. The view angles are degrees,
// matching the camera conventions of the renderer.
type Player struct {
	Position mgl32.Vec3
	Velocity mgl32.Vec3
	Yaw      float64
	Pitch    float64
}

func New() *Player {
	return &Player{
		Position: mgl32.Vec3{0, 48, 0},
		Yaw:      -90.0,
		Pitch:    -20.0,
	}
}

// EyePosition returns the camera origin used for picking.
func (p *Player) EyePosition() mgl32.Vec3 {
	return p.Position.Add(mgl32.Vec3{0, PlayerEyeHeight, 0})
}

// GetForward returns the unit view vector derived from yaw and pitch.
func (p *Player) GetForward() mgl32.Vec3 {
	yaw := mgl32.DegToRad(float32(p.Yaw))
	pitch := mgl32.DegToRad(float32(p.Pitch))
	return mgl32.Vec3{
		float32(math.Cos(float64(pitch)) * math.Cos(float64(yaw))),
		float32(math.Sin(float64(pitch))),
		float32(math.Cos(float64(pitch)) * math.Sin(float64(yaw))),
	}.Normalize()
}
