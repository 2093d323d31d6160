// Package engine keeps the arena of simulated bodies and the events raised about them.
package engine

import (
	"buoyancy3d/internal/mesh"
	"buoyancy3d/internal/physics"
	"buoyancy3d/internal/voxel"
)

// Body is a buoyant rigid body's record in the scene arena. Its rigidbody and
// force accumulator live in the physics world under the same ID.
type Body struct {
	ID   physics.BodyID
	Name string
	Tags []string

	Mesh    *mesh.Mesh
	Buoyant bool
	// Density is the body's own density, used to derive mass when none is given.
	Density float32
	// FluidDensity overrides the simulation's fluid density for this body when > 0.
	FluidDensity float32
	// CubeSize and CubeCells describe an analytic cube volume, used when the
	// body has no mesh geometry.
	CubeSize  float32
	CubeCells int

	// Grid is nil until the body has been voxelized.
	Grid     *voxel.Grid
	Collider physics.ColliderID
	// InitErr holds the last voxelization failure. Cleared on Requeue.
	InitErr error
}

func NewBody(id physics.BodyID, name string, m *mesh.Mesh) *Body {
	return &Body{
		ID:      id,
		Name:    name,
		Mesh:    m,
		Buoyant: true,
	}
}

// IsCube reports whether the body is voxelized as an analytic cube.
func (b *Body) IsCube() bool {
	return len(b.Mesh.VertexPositions()) == 0 && b.CubeSize > 0 && b.CubeCells > 0
}

// GridState reports the lifecycle stage of the body's grid.
func (b *Body) GridState() voxel.State {
	return b.Grid.State()
}

func (b *Body) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (b *Body) AddTag(tag string) {
	if !b.HasTag(tag) {
		b.Tags = append(b.Tags, tag)
	}
}
