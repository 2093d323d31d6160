// Package mesh holds the triangle meshes bodies are voxelized from.
package mesh

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Mesh is an indexed triangle list. Nil Indices means every three positions
// form one triangle.
type Mesh struct {
	Positions []mgl32.Vec3
	Indices   []uint32
}

// VertexPositions returns the mesh's vertex positions. Empty for a mesh without geometry.
func (m *Mesh) VertexPositions() []mgl32.Vec3 {
	if m == nil {
		return nil
	}
	return m.Positions
}

// TriangleCount returns the number of triangles described by the mesh.
func (m *Mesh) TriangleCount() int {
	if m == nil {
		return 0
	}
	if m.Indices != nil {
		return len(m.Indices) / 3
	}
	return len(m.Positions) / 3
}

// Scaled returns a copy with every position multiplied per axis by s.
func (m *Mesh) Scaled(s mgl32.Vec3) *Mesh {
	out := &Mesh{
		Positions: make([]mgl32.Vec3, len(m.Positions)),
		Indices:   m.Indices,
	}
	for i, p := range m.Positions {
		out.Positions[i] = mgl32.Vec3{p.X() * s.X(), p.Y() * s.Y(), p.Z() * s.Z()}
	}
	return out
}

// boxIndices winds the 12 triangles of a box whose corners are ordered
// bottom face (y min) first, then top face, counter-clockwise seen from above.
var boxIndices = []uint32{
	0, 1, 2, 0, 2, 3, // bottom
	4, 6, 5, 4, 7, 6, // top
	0, 4, 5, 0, 5, 1, // sides
	1, 5, 6, 1, 6, 2,
	2, 6, 7, 2, 7, 3,
	3, 7, 4, 3, 4, 0,
}

// Box returns a closed box of the given size centered on the origin.
func Box(size mgl32.Vec3) *Mesh {
	h := size.Mul(0.5)
	return &Mesh{
		Positions: []mgl32.Vec3{
			{-h.X(), -h.Y(), -h.Z()}, {h.X(), -h.Y(), -h.Z()}, {h.X(), -h.Y(), h.Z()}, {-h.X(), -h.Y(), h.Z()},
			{-h.X(), h.Y(), -h.Z()}, {h.X(), h.Y(), -h.Z()}, {h.X(), h.Y(), h.Z()}, {-h.X(), h.Y(), h.Z()},
		},
		Indices: append([]uint32(nil), boxIndices...),
	}
}

// Hull returns a simple boat hull: a deck of length x beam at the top, a keel
// narrowed by taper (0..1) at the bottom, centered on the origin. Length runs along Z.
func Hull(length, beam, depth, taper float32) *Mesh {
	if taper < 0 {
		taper = 0
	}
	if taper > 1 {
		taper = 1
	}
	hl, hb, hd := length/2, beam/2, depth/2
	kl, kb := hl*(1-taper*0.5), hb*(1-taper)
	return &Mesh{
		Positions: []mgl32.Vec3{
			{-kb, -hd, -kl}, {kb, -hd, -kl}, {kb, -hd, kl}, {-kb, -hd, kl},
			{-hb, hd, -hl}, {hb, hd, -hl}, {hb, hd, hl}, {-hb, hd, hl},
		},
		Indices: append([]uint32(nil), boxIndices...),
	}
}

// Plane returns a flat square in the XZ plane. It has no volume.
func Plane(size float32) *Mesh {
	h := size / 2
	return &Mesh{
		Positions: []mgl32.Vec3{{-h, 0, -h}, {h, 0, -h}, {h, 0, h}, {-h, 0, h}},
		Indices:   []uint32{0, 2, 1, 0, 3, 2},
	}
}
