package render

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Frustum represents the 6 planes of a view frustum for culling
type Frustum struct {
	planes [6]Plane // left, right, bottom, top, near, far
}

// Plane is n·p + d = 0 with n pointing into the frustum.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// ViewProjection builds the perspective view-projection matrix for a camera.
func ViewProjection(eye, target, up mgl32.Vec3, fovyDeg, aspect, near, far float32) mgl32.Mat4 {
	proj := mgl32.Perspective(mgl32.DegToRad(fovyDeg), aspect, near, far)
	view := mgl32.LookAtV(eye, target, up)
	return proj.Mul4(view)
}

// FrustumFromMatrix extracts frustum planes from a view-projection matrix
// using the Gribb/Hartmann method.
func FrustumFromMatrix(vp mgl32.Mat4) Frustum {
	r0, r1, r2, r3 := vp.Row(0), vp.Row(1), vp.Row(2), vp.Row(3)

	var f Frustum
	f.planes[0] = planeFrom(r3.Add(r0)) // left
	f.planes[1] = planeFrom(r3.Sub(r0)) // right
	f.planes[2] = planeFrom(r3.Add(r1)) // bottom
	f.planes[3] = planeFrom(r3.Sub(r1)) // top
	f.planes[4] = planeFrom(r3.Add(r2)) // near
	f.planes[5] = planeFrom(r3.Sub(r2)) // far
	return f
}

func planeFrom(v mgl32.Vec4) Plane {
	p := Plane{Normal: v.Vec3(), Distance: v.W()}
	length := p.Normal.Len()
	if length == 0 {
		return p
	}
	return Plane{Normal: p.Normal.Mul(1 / length), Distance: p.Distance / length}
}

// ContainsSphere tests if a sphere is inside or intersects the frustum
func (f *Frustum) ContainsSphere(center mgl32.Vec3, radius float32) bool {
	for i := range f.planes {
		if f.planes[i].Normal.Dot(center)+f.planes[i].Distance < -radius {
			return false
		}
	}
	return true
}

// ContainsPoint tests if a point is inside the frustum
func (f *Frustum) ContainsPoint(point mgl32.Vec3) bool {
	return f.ContainsSphere(point, 0)
}
