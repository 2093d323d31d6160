package mesh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestBox(t *testing.T) {
	m := Box(mgl32.Vec3{2, 4, 6})
	if len(m.VertexPositions()) != 8 {
		t.Errorf("Expected 8 vertices, got %d", len(m.VertexPositions()))
	}
	if m.TriangleCount() != 12 {
		t.Errorf("Expected 12 triangles, got %d", m.TriangleCount())
	}
	for _, p := range m.Positions {
		if p.X() != 1 && p.X() != -1 || p.Y() != 2 && p.Y() != -2 || p.Z() != 3 && p.Z() != -3 {
			t.Errorf("Unexpected corner %v", p)
		}
	}
	for _, i := range m.Indices {
		if int(i) >= len(m.Positions) {
			t.Fatalf("Index %d out of range", i)
		}
	}
}

func TestBoxIndicesAreNotShared(t *testing.T) {
	a := Box(mgl32.Vec3{1, 1, 1})
	a.Indices[0] = 7
	b := Box(mgl32.Vec3{1, 1, 1})
	if b.Indices[0] != 0 {
		t.Error("Expected each box to own its index slice")
	}
}

func TestHullTapersKeel(t *testing.T) {
	m := Hull(8, 4, 2, 0.5)
	for i, p := range m.Positions {
		if i < 4 && (p.X() > 1 || p.X() < -1) {
			t.Errorf("Expected keel vertex %d within half beam 1, got %v", i, p)
		}
		if i >= 4 && p.X() != 2 && p.X() != -2 {
			t.Errorf("Expected deck vertex %d at half beam 2, got %v", i, p)
		}
	}
}

func TestScaled(t *testing.T) {
	m := Box(mgl32.Vec3{1, 1, 1}).Scaled(mgl32.Vec3{2, 3, 4})
	if m.Positions[6] != (mgl32.Vec3{1, 1.5, 2}) {
		t.Errorf("Expected (1,1.5,2), got %v", m.Positions[6])
	}
}

func TestNilMeshHasNoGeometry(t *testing.T) {
	var m *Mesh
	if len(m.VertexPositions()) != 0 || m.TriangleCount() != 0 {
		t.Error("Expected nil mesh to report no geometry")
	}
}
