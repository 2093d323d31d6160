package camera

import (
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"
)

// OrbitCamera circles a target point. Yaw and Pitch are in degrees.
type OrbitCamera struct {
	Target   mgl32.Vec3
	Distance float32
	Yaw      float32
	Pitch    float32

	MinDistance float32
	MaxDistance float32
	LookSpeed   float32
	ZoomSpeed   float32
	PanSpeed    float32
	Fovy        float32
}

func New(target mgl32.Vec3, distance float32) *OrbitCamera {
	return &OrbitCamera{
		Target:      target,
		Distance:    distance,
		Yaw:         -135.0,
		Pitch:       30.0,
		MinDistance: 2,
		MaxDistance: 200,
		LookSpeed:   0.3,
		ZoomSpeed:   0.1, // fraction of distance per wheel step
		PanSpeed:    0.002,
		Fovy:        45,
	}
}

// Orbit turns the camera by mouse deltas in pixels.
func (c *OrbitCamera) Orbit(dx, dy float32) {
	c.Yaw += dx * c.LookSpeed
	c.Pitch += dy * c.LookSpeed

	// Clamp pitch
	if c.Pitch > 89 {
		c.Pitch = 89
	}
	if c.Pitch < -89 {
		c.Pitch = -89
	}
}

// Zoom moves toward the target for positive wheel steps.
func (c *OrbitCamera) Zoom(wheel float32) {
	c.Distance *= 1 - wheel*c.ZoomSpeed
	if c.Distance < c.MinDistance {
		c.Distance = c.MinDistance
	}
	if c.Distance > c.MaxDistance {
		c.Distance = c.MaxDistance
	}
}

// Pan slides the target in the view plane, scaled by distance.
func (c *OrbitCamera) Pan(dx, dy float32) {
	forward, right := c.getDirections()
	up := right.Cross(forward)
	scale := c.PanSpeed * c.Distance
	c.Target = c.Target.Sub(right.Mul(dx * scale)).Add(up.Mul(dy * scale))
}

// Position is the eye point.
func (c *OrbitCamera) Position() mgl32.Vec3 {
	forward, _ := c.getDirections()
	return c.Target.Sub(forward.Mul(c.Distance))
}

// getDirections returns the unit view direction and the horizontal right vector.
func (c *OrbitCamera) getDirections() (forward, right mgl32.Vec3) {
	yawRad := float64(c.Yaw) * math.Pi / 180
	pitchRad := float64(c.Pitch) * math.Pi / 180
	// Looking down at the target for positive pitch
	forward = mgl32.Vec3{
		float32(math.Cos(yawRad) * math.Cos(pitchRad)),
		float32(-math.Sin(pitchRad)),
		float32(math.Sin(yawRad) * math.Cos(pitchRad)),
	}
	right = mgl32.Vec3{
		float32(-math.Sin(yawRad)),
		0,
		float32(math.Cos(yawRad)),
	}
	return
}

// Update applies mouse input: right drag orbits, middle drag pans, wheel zooms.
func (c *OrbitCamera) Update() {
	delta := rl.GetMouseDelta()
	if rl.IsMouseButtonDown(rl.MouseRightButton) {
		c.Orbit(delta.X, delta.Y)
	}
	if rl.IsMouseButtonDown(rl.MouseMiddleButton) {
		c.Pan(delta.X, delta.Y)
	}
	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		c.Zoom(wheel)
	}
}

func (c *OrbitCamera) GetRaylibCamera() rl.Camera3D {
	pos := c.Position()
	return rl.Camera3D{
		Position:   rl.Vector3{X: pos.X(), Y: pos.Y(), Z: pos.Z()},
		Target:     rl.Vector3{X: c.Target.X(), Y: c.Target.Y(), Z: c.Target.Z()},
		Up:         rl.Vector3{X: 0, Y: 1, Z: 0},
		Fovy:       c.Fovy,
		Projection: rl.CameraPerspective,
	}
}
