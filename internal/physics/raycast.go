package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type RaycastHit struct {
	Collider ColliderID
	Body     BodyID
	Point    mgl32.Vec3
	Normal   mgl32.Vec3
	Distance float32
}

// Raycast checks every collider and returns the closest hit. Mesh colliders are
// tested against their triangles.
func (w *World) Raycast(origin, direction mgl32.Vec3, maxDistance float32) (RaycastHit, bool) {
	if direction.LenSqr() == 0 {
		return RaycastHit{}, false
	}
	direction = direction.Normalize()

	w.mu.RLock()
	defer w.mu.RUnlock()

	var closestHit RaycastHit
	closestHit.Distance = maxDistance
	hit := false

	for id, c := range w.colliders {
		if !rayIntersectsAABB(origin, direction, w.bounds[id], maxDistance) {
			continue
		}

		// Cast in the collider's frame, then map the hit back
		pose := w.colliderPose(c)
		inv := pose.rotation().Conjugate()
		localOrigin := inv.Rotate(origin.Sub(pose.Position))
		localDir := inv.Rotate(direction)

		var (
			hitInfo RaycastHit
			ok      bool
		)
		switch s := c.Shape.(type) {
		case BoxShape:
			hitInfo, ok = raycastBox(localOrigin, localDir, s.Bounds(), closestHit.Distance)
		case SphereShape:
			hitInfo, ok = raycastSphere(localOrigin, localDir, s.Radius, closestHit.Distance)
		case *MeshCollider:
			hitInfo, ok = raycastMesh(localOrigin, localDir, s, closestHit.Distance)
		}
		if !ok || hitInfo.Distance >= closestHit.Distance {
			continue
		}

		hitInfo.Point = pose.Apply(hitInfo.Point)
		hitInfo.Normal = pose.ApplyDirection(hitInfo.Normal)
		hitInfo.Collider = id
		hitInfo.Body = c.Owner
		closestHit = hitInfo
		hit = true
	}

	return closestHit, hit
}

// slab returns the entry and exit distances of a ray through a box.
func slab(origin, direction mgl32.Vec3, box AABB) (float32, float32, bool) {
	tmin := float32(-1e30)
	tmax := float32(1e30)
	for i := 0; i < 3; i++ {
		if direction[i] != 0 {
			t1 := (box.Min[i] - origin[i]) / direction[i]
			t2 := (box.Max[i] - origin[i]) / direction[i]
			if t1 > t2 {
				t1, t2 = t2, t1
			}
			tmin = maxf(tmin, t1)
			tmax = minf(tmax, t2)
			if tmin > tmax {
				return 0, 0, false
			}
		} else if origin[i] < box.Min[i] || origin[i] > box.Max[i] {
			return 0, 0, false
		}
	}
	return tmin, tmax, true
}

func rayIntersectsAABB(origin, direction mgl32.Vec3, box AABB, maxDistance float32) bool {
	tmin, tmax, ok := slab(origin, direction, box)
	return ok && tmax >= 0 && tmin <= maxDistance
}

func raycastBox(origin, direction mgl32.Vec3, box AABB, maxDistance float32) (RaycastHit, bool) {
	tmin, tmax, ok := slab(origin, direction, box)
	if !ok || tmax < 0 || tmin > maxDistance {
		return RaycastHit{}, false
	}

	t := tmin
	if t < 0 {
		t = tmax
	}
	if t < 0 || t > maxDistance {
		return RaycastHit{}, false
	}

	point := origin.Add(direction.Mul(t))

	// Calculate normal based on which face was hit
	var normal mgl32.Vec3
	epsilon := float32(0.001)
	switch {
	case absf(point.X()-box.Min.X()) < epsilon:
		normal = mgl32.Vec3{-1, 0, 0}
	case absf(point.X()-box.Max.X()) < epsilon:
		normal = mgl32.Vec3{1, 0, 0}
	case absf(point.Y()-box.Min.Y()) < epsilon:
		normal = mgl32.Vec3{0, -1, 0}
	case absf(point.Y()-box.Max.Y()) < epsilon:
		normal = mgl32.Vec3{0, 1, 0}
	case absf(point.Z()-box.Min.Z()) < epsilon:
		normal = mgl32.Vec3{0, 0, -1}
	default:
		normal = mgl32.Vec3{0, 0, 1}
	}

	return RaycastHit{Point: point, Normal: normal, Distance: t}, true
}

func raycastSphere(origin, direction mgl32.Vec3, radius, maxDistance float32) (RaycastHit, bool) {
	// Sphere sits at the local origin
	oc := origin
	a := direction.Dot(direction)
	b := 2.0 * oc.Dot(direction)
	c := oc.Dot(oc) - radius*radius

	discriminant := b*b - 4*a*c
	if discriminant < 0 {
		return RaycastHit{}, false
	}

	sq := float32(math.Sqrt(float64(discriminant)))
	t := (-b - sq) / (2 * a)
	if t < 0 {
		t = (-b + sq) / (2 * a)
	}
	if t < 0 || t > maxDistance {
		return RaycastHit{}, false
	}

	point := origin.Add(direction.Mul(t))
	return RaycastHit{Point: point, Normal: point.Normalize(), Distance: t}, true
}

func raycastMesh(origin, direction mgl32.Vec3, m *MeshCollider, maxDistance float32) (RaycastHit, bool) {
	best := RaycastHit{Distance: maxDistance}
	found := false
	var walk func(node *BVHNode)
	walk = func(node *BVHNode) {
		if node == nil || !rayIntersectsAABB(origin, direction, node.Bounds, best.Distance) {
			return
		}
		for _, idx := range node.Triangles {
			tri := &m.Triangles[idx]
			if t, ok := rayTriangle(origin, direction, tri); ok && t < best.Distance {
				best = RaycastHit{Point: origin.Add(direction.Mul(t)), Normal: tri.Normal, Distance: t}
				found = true
			}
		}
		walk(node.Left)
		walk(node.Right)
	}
	walk(m.Root)
	return best, found
}

// rayTriangle is the Moller-Trumbore test.
func rayTriangle(origin, direction mgl32.Vec3, tri *Triangle) (float32, bool) {
	e1 := tri.V1.Sub(tri.V0)
	e2 := tri.V2.Sub(tri.V0)
	p := direction.Cross(e2)
	det := e1.Dot(p)
	if absf(det) < 1e-8 {
		return 0, false
	}
	inv := 1 / det
	s := origin.Sub(tri.V0)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := direction.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	return t, t >= 0
}
