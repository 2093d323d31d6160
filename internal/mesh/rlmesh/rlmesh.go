// Package rlmesh converts raylib meshes and models into mesh.Mesh.
package rlmesh

import (
	"unsafe"

	"buoyancy3d/internal/mesh"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"
)

// FromMesh copies the vertex positions and indices out of a raylib mesh.
func FromMesh(m rl.Mesh) *mesh.Mesh {
	out := &mesh.Mesh{}
	if m.Vertices == nil || m.VertexCount == 0 {
		return out
	}

	vertices := unsafe.Slice(m.Vertices, m.VertexCount*3)
	out.Positions = make([]mgl32.Vec3, m.VertexCount)
	for i := range out.Positions {
		out.Positions[i] = mgl32.Vec3{vertices[i*3+0], vertices[i*3+1], vertices[i*3+2]}
	}

	if m.Indices != nil {
		// Indexed mesh
		indices := unsafe.Slice(m.Indices, m.TriangleCount*3)
		out.Indices = make([]uint32, len(indices))
		for i, idx := range indices {
			out.Indices[i] = uint32(idx)
		}
	}
	return out
}

// FromModel merges every mesh of a model into one, with indices rebased.
func FromModel(model rl.Model) *mesh.Mesh {
	out := &mesh.Mesh{}
	if model.Meshes == nil || model.MeshCount == 0 {
		return out
	}

	meshes := unsafe.Slice(model.Meshes, model.MeshCount)
	for _, m := range meshes {
		part := FromMesh(m)
		base := uint32(len(out.Positions))
		out.Positions = append(out.Positions, part.Positions...)

		if part.Indices == nil {
			// Non-indexed mesh (every 3 vertices = 1 triangle)
			for i := uint32(0); i < uint32(len(part.Positions)); i++ {
				out.Indices = append(out.Indices, base+i)
			}
			continue
		}
		for _, idx := range part.Indices {
			out.Indices = append(out.Indices, base+idx)
		}
	}
	return out
}

// Vec3 converts an mgl32 vector to raylib.
func Vec3(v mgl32.Vec3) rl.Vector3 {
	return rl.Vector3{X: v.X(), Y: v.Y(), Z: v.Z()}
}

// FromVec3 converts a raylib vector to mgl32.
func FromVec3(v rl.Vector3) mgl32.Vec3 {
	return mgl32.Vec3{v.X, v.Y, v.Z}
}
