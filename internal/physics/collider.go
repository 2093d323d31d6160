package physics

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ColliderID identifies a collider registered with a World. Zero is never issued.
type ColliderID uint32

// Shape is collision geometry in its own local frame. Scale is baked into the
// shape when it is built, so a collider's pose is always rigid.
type Shape interface {
	// Bounds is the local-space AABB of the shape.
	Bounds() AABB
	// IntersectsOBB reports whether the shape overlaps o, given in the shape's frame.
	IntersectsOBB(o OBB) bool
}

// BoxShape is a box centered on the collider origin.
type BoxShape struct {
	Size mgl32.Vec3
}

func (b BoxShape) Bounds() AABB {
	return NewAABBFromCenter(mgl32.Vec3{}, b.Size)
}

func (b BoxShape) IntersectsOBB(o OBB) bool {
	return NewAABBasOBB(mgl32.Vec3{}, b.Size).IntersectsOBB(o)
}

// SphereShape is a sphere centered on the collider origin.
type SphereShape struct {
	Radius float32
}

func (s SphereShape) Bounds() AABB {
	d := 2 * s.Radius
	return NewAABBFromCenter(mgl32.Vec3{}, mgl32.Vec3{d, d, d})
}

func (s SphereShape) IntersectsOBB(o OBB) bool {
	return o.IntersectsSphere(mgl32.Vec3{}, s.Radius)
}

// Collider attaches a shape to a body (Owner != 0) or to the world (Owner == 0).
// Local is the shape's pose relative to its owner, or its world pose when static.
type Collider struct {
	ID    ColliderID
	Owner BodyID
	Shape Shape
	Local Transform
}

// Cuboid is the query shape used by ShapeIntersections.
type Cuboid struct {
	HalfExtents mgl32.Vec3
}

// NewCube returns a cuboid with the given side length.
func NewCube(side float32) Cuboid {
	h := side / 2
	return Cuboid{HalfExtents: mgl32.Vec3{h, h, h}}
}

func (c Cuboid) obb(pos mgl32.Vec3, rot mgl32.Quat) OBB {
	return NewOBB(pos, c.HalfExtents.Mul(2), rot)
}

// QueryFilter narrows the colliders a query may report.
type QueryFilter struct {
	// ExcludeBody skips every collider owned by this body.
	ExcludeBody BodyID
	// ExcludeCollider skips a single collider.
	ExcludeCollider ColliderID
	// Predicate, when set, must return true for a collider to be reported.
	Predicate func(ColliderID) bool
}

func (f QueryFilter) accepts(c *Collider) bool {
	if f.ExcludeBody != 0 && c.Owner == f.ExcludeBody {
		return false
	}
	if f.ExcludeCollider != 0 && c.ID == f.ExcludeCollider {
		return false
	}
	if f.Predicate != nil && !f.Predicate(c.ID) {
		return false
	}
	return true
}
