package physics

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrColliderGenerationFailed is returned when a trimesh collider cannot be built from a mesh.
var ErrColliderGenerationFailed = errors.New("physics: collider generation failed")

// Triangle represents a single triangle with precomputed normal
type Triangle struct {
	V0, V1, V2 mgl32.Vec3
	Normal     mgl32.Vec3
}

// BVHNode is a node in the bounding volume hierarchy
type BVHNode struct {
	Bounds    AABB
	Left      *BVHNode
	Right     *BVHNode
	Triangles []int // indices into the triangle array (only for leaf nodes)
}

// MeshCollider is a triangle mesh shape with a BVH for overlap queries.
// Triangles live in the collider's local frame with scale already applied.
type MeshCollider struct {
	Triangles []Triangle
	Root      *BVHNode
}

// NewMeshCollider builds a trimesh collider from indexed positions. A nil index
// slice treats every three positions as one triangle. Degenerate triangles are
// dropped; a mesh left with none fails with ErrColliderGenerationFailed.
func NewMeshCollider(positions []mgl32.Vec3, indices []uint32, scale mgl32.Vec3) (*MeshCollider, error) {
	if scale == (mgl32.Vec3{}) {
		scale = mgl32.Vec3{1, 1, 1}
	}

	vertex := func(i uint32) (mgl32.Vec3, error) {
		if int(i) >= len(positions) {
			return mgl32.Vec3{}, fmt.Errorf("%w: index %d out of range (%d vertices)", ErrColliderGenerationFailed, i, len(positions))
		}
		return mulElem(positions[i], scale), nil
	}

	m := &MeshCollider{}
	addTriangle := func(i0, i1, i2 uint32) error {
		v0, err := vertex(i0)
		if err != nil {
			return err
		}
		v1, err := vertex(i1)
		if err != nil {
			return err
		}
		v2, err := vertex(i2)
		if err != nil {
			return err
		}
		normal := v1.Sub(v0).Cross(v2.Sub(v0))
		if normal.LenSqr() < 1e-12 {
			return nil
		}
		m.Triangles = append(m.Triangles, Triangle{V0: v0, V1: v1, V2: v2, Normal: normal.Normalize()})
		return nil
	}

	if indices != nil {
		if len(indices)%3 != 0 {
			return nil, fmt.Errorf("%w: index count %d is not a multiple of 3", ErrColliderGenerationFailed, len(indices))
		}
		for i := 0; i+2 < len(indices); i += 3 {
			if err := addTriangle(indices[i], indices[i+1], indices[i+2]); err != nil {
				return nil, err
			}
		}
	} else {
		// Non-indexed mesh (every 3 vertices = 1 triangle)
		for i := 0; i+2 < len(positions); i += 3 {
			if err := addTriangle(uint32(i), uint32(i+1), uint32(i+2)); err != nil {
				return nil, err
			}
		}
	}

	if len(m.Triangles) == 0 {
		return nil, fmt.Errorf("%w: mesh has no usable triangles", ErrColliderGenerationFailed)
	}

	m.buildBVH()
	return m, nil
}

func (m *MeshCollider) Bounds() AABB {
	if m.Root == nil {
		return AABB{}
	}
	return m.Root.Bounds
}

// IntersectsOBB reports whether any triangle overlaps o. Only the surface is
// tested; a box entirely inside a closed mesh does not intersect it.
func (m *MeshCollider) IntersectsOBB(o OBB) bool {
	if m.Root == nil {
		return false
	}
	return m.queryNode(m.Root, o, o.AABB())
}

func (m *MeshCollider) queryNode(node *BVHNode, o OBB, box AABB) bool {
	if !node.Bounds.Intersects(box) {
		return false
	}

	if node.Triangles != nil {
		for _, idx := range node.Triangles {
			tri := &m.Triangles[idx]
			if o.IntersectsTriangle(tri.V0, tri.V1, tri.V2) {
				return true
			}
		}
		return false
	}

	if node.Left != nil && m.queryNode(node.Left, o, box) {
		return true
	}
	return node.Right != nil && m.queryNode(node.Right, o, box)
}

// buildBVH constructs a bounding volume hierarchy for fast queries
func (m *MeshCollider) buildBVH() {
	indices := make([]int, len(m.Triangles))
	for i := range indices {
		indices[i] = i
	}
	m.Root = m.buildBVHNode(indices, 0)
}

func (m *MeshCollider) buildBVHNode(indices []int, depth int) *BVHNode {
	node := &BVHNode{}
	node.Bounds = m.computeBounds(indices)

	// If few triangles or max depth, make leaf
	if len(indices) <= 4 || depth > 20 {
		node.Triangles = indices
		return node
	}

	// Find longest axis
	size := node.Bounds.Size()
	axis := 0
	if size.Y() > size.X() {
		axis = 1
	}
	if size.Z() > size[axis] {
		axis = 2
	}

	mid := m.partitionTriangles(indices, axis)
	if mid == 0 || mid == len(indices) {
		// Couldn't split, make leaf
		node.Triangles = indices
		return node
	}

	node.Left = m.buildBVHNode(indices[:mid], depth+1)
	node.Right = m.buildBVHNode(indices[mid:], depth+1)
	return node
}

func (m *MeshCollider) computeBounds(indices []int) AABB {
	bounds := EmptyAABB()
	for _, idx := range indices {
		tri := &m.Triangles[idx]
		bounds = bounds.Extend(tri.V0).Extend(tri.V1).Extend(tri.V2)
	}
	return bounds
}

// partitionTriangles splits around the mean centroid on axis and returns the split index
func (m *MeshCollider) partitionTriangles(indices []int, axis int) int {
	center := float32(0)
	for _, idx := range indices {
		center += m.centroid(idx)[axis]
	}
	center /= float32(len(indices))

	left := 0
	right := len(indices) - 1
	for left <= right {
		if m.centroid(indices[left])[axis] < center {
			left++
		} else {
			indices[left], indices[right] = indices[right], indices[left]
			right--
		}
	}
	return left
}

func (m *MeshCollider) centroid(idx int) mgl32.Vec3 {
	tri := &m.Triangles[idx]
	return tri.V0.Add(tri.V1).Add(tri.V2).Mul(1.0 / 3.0)
}
