package physics

import "github.com/go-gl/mathgl/mgl32"

// BodyID identifies a rigid body across the physics world and the scene arena.
// Zero means "no body".
type BodyID uint64

// Transform is a rigid pose with per-axis scale.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func IdentityTransform() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// NewTransform builds a transform from a position and euler angles in degrees,
// applied in X, Y, Z order like the scene file stores them.
func NewTransform(position, eulerDeg mgl32.Vec3) Transform {
	t := IdentityTransform()
	t.Position = position
	t.Rotation = mgl32.AnglesToQuat(
		mgl32.DegToRad(eulerDeg.X()),
		mgl32.DegToRad(eulerDeg.Y()),
		mgl32.DegToRad(eulerDeg.Z()),
		mgl32.XYZ,
	)
	return t
}

// Apply maps a local point to world space.
func (t Transform) Apply(local mgl32.Vec3) mgl32.Vec3 {
	return t.Position.Add(t.rotation().Rotate(mulElem(local, t.scale())))
}

// ApplyDirection rotates a local direction into world space (no translation or scale).
func (t Transform) ApplyDirection(dir mgl32.Vec3) mgl32.Vec3 {
	return t.rotation().Rotate(dir)
}

// InverseApply maps a world point back into local space.
func (t Transform) InverseApply(world mgl32.Vec3) mgl32.Vec3 {
	local := t.rotation().Conjugate().Rotate(world.Sub(t.Position))
	s := t.scale()
	return mgl32.Vec3{local.X() / s.X(), local.Y() / s.Y(), local.Z() / s.Z()}
}

// Mat4 returns the TRS matrix, used by renderers.
func (t Transform) Mat4() mgl32.Mat4 {
	s := t.scale()
	return mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).
		Mul4(t.rotation().Mat4()).
		Mul4(mgl32.Scale3D(s.X(), s.Y(), s.Z()))
}

// Compose returns the transform that applies child first, then t.
// Scale is combined per axis, which is exact only for uniform parent scale.
func (t Transform) Compose(child Transform) Transform {
	return Transform{
		Position: t.Apply(child.Position),
		Rotation: t.rotation().Mul(child.rotation()).Normalize(),
		Scale:    mulElem(t.scale(), child.scale()),
	}
}

// scale and rotation treat zero values (a zero Transform) as identity.
func (t Transform) scale() mgl32.Vec3 {
	if t.Scale == (mgl32.Vec3{}) {
		return mgl32.Vec3{1, 1, 1}
	}
	return t.Scale
}

func (t Transform) rotation() mgl32.Quat {
	if t.Rotation == (mgl32.Quat{}) {
		return mgl32.QuatIdent()
	}
	return t.Rotation
}

func mulElem(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a.X() * b.X(), a.Y() * b.Y(), a.Z() * b.Z()}
}
