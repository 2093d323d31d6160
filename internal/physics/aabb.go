package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// NewAABBFromCenter creates an AABB from a center point and full size dimensions.
func NewAABBFromCenter(center, size mgl32.Vec3) AABB {
	half := size.Mul(0.5)
	return AABB{
		Min: center.Sub(half),
		Max: center.Add(half),
	}
}

// EmptyAABB returns an inverted box that any Extend call will overwrite.
func EmptyAABB() AABB {
	return AABB{
		Min: mgl32.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: mgl32.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

func (a AABB) Intersects(b AABB) bool {
	return a.Min.X() <= b.Max.X() && a.Max.X() >= b.Min.X() &&
		a.Min.Y() <= b.Max.Y() && a.Max.Y() >= b.Min.Y() &&
		a.Min.Z() <= b.Max.Z() && a.Max.Z() >= b.Min.Z()
}

// Extend grows the box to include p.
func (a AABB) Extend(p mgl32.Vec3) AABB {
	return AABB{
		Min: mgl32.Vec3{minf(a.Min.X(), p.X()), minf(a.Min.Y(), p.Y()), minf(a.Min.Z(), p.Z())},
		Max: mgl32.Vec3{maxf(a.Max.X(), p.X()), maxf(a.Max.Y(), p.Y()), maxf(a.Max.Z(), p.Z())},
	}
}

func (a AABB) Union(b AABB) AABB {
	return a.Extend(b.Min).Extend(b.Max)
}

func (a AABB) Center() mgl32.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

func (a AABB) Size() mgl32.Vec3 {
	return a.Max.Sub(a.Min)
}

// Transformed returns the world AABB enclosing this local box under t.
func (a AABB) Transformed(t Transform) AABB {
	out := EmptyAABB()
	for i := 0; i < 8; i++ {
		corner := mgl32.Vec3{a.Min.X(), a.Min.Y(), a.Min.Z()}
		if i&1 != 0 {
			corner[0] = a.Max.X()
		}
		if i&2 != 0 {
			corner[1] = a.Max.Y()
		}
		if i&4 != 0 {
			corner[2] = a.Max.Z()
		}
		out = out.Extend(t.Apply(corner))
	}
	return out
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
