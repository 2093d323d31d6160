package voxel

import (
	"buoyancy3d/internal/physics"

	"github.com/go-gl/mathgl/mgl32"
)

// SpatialQuery reports the colliders overlapping a cuboid. Implementations must
// be safe for concurrent read-only use.
type SpatialQuery interface {
	ShapeIntersections(shape physics.Cuboid, pos mgl32.Vec3, rot mgl32.Quat, filter physics.QueryFilter) []physics.ColliderID
}

// BatchSpatialQuery answers many same-shaped queries in one call.
type BatchSpatialQuery interface {
	SpatialQuery
	BatchShapeIntersections(shape physics.Cuboid, positions []mgl32.Vec3, rot mgl32.Quat, filter physics.QueryFilter) [][]physics.ColliderID
}

// Refresh reclassifies every voxel of a dirty grid and clears the flag. A voxel
// is solid when its axis-aligned world cube overlaps any collider not owned by
// self. Clean grids are left alone. It returns whether a pass ran.
func Refresh(grid *Grid, xf physics.Transform, q SpatialQuery, self physics.BodyID) bool {
	if !grid.Dirty() {
		return false
	}

	cube := physics.NewCube(grid.VoxelSize)
	filter := physics.QueryFilter{ExcludeBody: self}
	identity := mgl32.QuatIdent()

	if bq, ok := q.(BatchSpatialQuery); ok {
		positions := make([]mgl32.Vec3, len(grid.Voxels))
		for i := range grid.Voxels {
			positions[i] = xf.Apply(grid.Voxels[i].LocalOffset)
		}
		results := bq.BatchShapeIntersections(cube, positions, identity, filter)
		for i := range grid.Voxels {
			grid.Voxels[i].Solid = i < len(results) && len(results[i]) > 0
		}
	} else {
		for i := range grid.Voxels {
			pos := xf.Apply(grid.Voxels[i].LocalOffset)
			grid.Voxels[i].Solid = len(q.ShapeIntersections(cube, pos, identity, filter)) > 0
		}
	}

	grid.dirty = false
	grid.refreshed = true
	return true
}
