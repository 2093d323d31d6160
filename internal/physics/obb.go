package physics

import (
	"github.com/go-gl/mathgl/mgl32"
)

// OBB represents an Oriented Bounding Box
type OBB struct {
	Center   mgl32.Vec3    // World-space center
	HalfSize mgl32.Vec3    // Half-extents along local axes
	Axes     [3]mgl32.Vec3 // Local X, Y, Z axes (rotated)
}

// NewOBB creates an OBB from center, full size and rotation
func NewOBB(center, size mgl32.Vec3, rotation mgl32.Quat) OBB {
	if rotation == (mgl32.Quat{}) {
		rotation = mgl32.QuatIdent()
	}
	return OBB{
		Center:   center,
		HalfSize: size.Mul(0.5),
		Axes: [3]mgl32.Vec3{
			rotation.Rotate(mgl32.Vec3{1, 0, 0}).Normalize(),
			rotation.Rotate(mgl32.Vec3{0, 1, 0}).Normalize(),
			rotation.Rotate(mgl32.Vec3{0, 0, 1}).Normalize(),
		},
	}
}

// NewAABBasOBB creates an axis-aligned OBB (no rotation)
func NewAABBasOBB(center, size mgl32.Vec3) OBB {
	return OBB{
		Center:   center,
		HalfSize: size.Mul(0.5),
		Axes: [3]mgl32.Vec3{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
	}
}

// Transformed moves the box from t's local space into t's parent space.
func (o OBB) Transformed(t Transform) OBB {
	s := t.scale()
	out := OBB{
		Center:   t.Apply(o.Center),
		HalfSize: mulElem(o.HalfSize, mgl32.Vec3{absf(s.X()), absf(s.Y()), absf(s.Z())}),
	}
	for i := range o.Axes {
		out.Axes[i] = t.ApplyDirection(o.Axes[i])
	}
	return out
}

// InLocalSpace expresses a world box in the rigid frame of t. t's scale is ignored;
// collider shapes carry their scale baked in.
func (o OBB) InLocalSpace(t Transform) OBB {
	inv := t.rotation().Conjugate()
	out := OBB{
		Center:   inv.Rotate(o.Center.Sub(t.Position)),
		HalfSize: o.HalfSize,
	}
	for i := range o.Axes {
		out.Axes[i] = inv.Rotate(o.Axes[i])
	}
	return out
}

// AABB returns the axis-aligned box enclosing the OBB.
func (o OBB) AABB() AABB {
	var ext mgl32.Vec3
	for i := 0; i < 3; i++ {
		for k := 0; k < 3; k++ {
			ext[i] += absf(o.Axes[k][i]) * o.HalfSize[k]
		}
	}
	return AABB{Min: o.Center.Sub(ext), Max: o.Center.Add(ext)}
}

// IntersectsOBB tests if two OBBs intersect using the Separating Axis Theorem
func (a OBB) IntersectsOBB(b OBB) bool {
	// Vector from A's center to B's center
	t := b.Center.Sub(a.Center)

	// 15 axes: 3 face normals from each box plus the 9 edge cross products
	for i := 0; i < 3; i++ {
		if !overlapOnAxis(a, b, a.Axes[i], t) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		if !overlapOnAxis(a, b, b.Axes[i], t) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			axis := a.Axes[i].Cross(b.Axes[j])
			// Skip near-zero axes (parallel edges)
			if axis.Len() > 0.0001 {
				if !overlapOnAxis(a, b, axis.Normalize(), t) {
					return false
				}
			}
		}
	}

	return true
}

// overlapOnAxis checks if two OBBs overlap when projected onto a given axis
func overlapOnAxis(a, b OBB, axis, t mgl32.Vec3) bool {
	distance := absf(t.Dot(axis))
	return distance <= a.projectedRadius(axis)+b.projectedRadius(axis)
}

func (o OBB) projectedRadius(axis mgl32.Vec3) float32 {
	return o.HalfSize.X()*absf(o.Axes[0].Dot(axis)) +
		o.HalfSize.Y()*absf(o.Axes[1].Dot(axis)) +
		o.HalfSize.Z()*absf(o.Axes[2].Dot(axis))
}

// IntersectsSphere tests if an OBB intersects with a sphere
func (o OBB) IntersectsSphere(center mgl32.Vec3, radius float32) bool {
	d := center.Sub(ClosestPointOnOBB(o, center))
	return d.Dot(d) <= radius*radius
}

// IntersectsTriangle runs SAT over the box faces, the triangle normal and the
// nine edge cross products.
func (o OBB) IntersectsTriangle(v0, v1, v2 mgl32.Vec3) bool {
	// Work relative to the box center
	p0 := v0.Sub(o.Center)
	p1 := v1.Sub(o.Center)
	p2 := v2.Sub(o.Center)

	separated := func(axis mgl32.Vec3) bool {
		if axis.LenSqr() < 1e-12 {
			return false
		}
		a, b, c := p0.Dot(axis), p1.Dot(axis), p2.Dot(axis)
		r := o.projectedRadius(axis)
		return minf(a, minf(b, c)) > r || maxf(a, maxf(b, c)) < -r
	}

	for i := 0; i < 3; i++ {
		if separated(o.Axes[i]) {
			return false
		}
	}

	e0 := p1.Sub(p0)
	e1 := p2.Sub(p1)
	e2 := p0.Sub(p2)
	if separated(e0.Cross(e1)) {
		return false
	}

	for i := 0; i < 3; i++ {
		for _, e := range [3]mgl32.Vec3{e0, e1, e2} {
			if separated(o.Axes[i].Cross(e)) {
				return false
			}
		}
	}
	return true
}

// ClosestPointOnOBB returns the closest point on the OBB surface to the given point
func ClosestPointOnOBB(o OBB, point mgl32.Vec3) mgl32.Vec3 {
	// Transform point to OBB's local space
	local := point.Sub(o.Center)

	result := o.Center
	for i := 0; i < 3; i++ {
		// Clamp to box extents and transform back
		d := clampf(local.Dot(o.Axes[i]), -o.HalfSize[i], o.HalfSize[i])
		result = result.Add(o.Axes[i].Mul(d))
	}
	return result
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func clampf(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
