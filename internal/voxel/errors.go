package voxel

import "errors"

var (
	// ErrMeshMissingGeometry is returned when a mesh has no vertex positions.
	ErrMeshMissingGeometry = errors.New("voxel: mesh has no vertex positions")
	// ErrDegenerateVolume is returned when the mesh bounds are flat on some axis.
	// The grid returned alongside it is valid and empty.
	ErrDegenerateVolume = errors.New("voxel: degenerate volume")
	// ErrInvalidVoxelSize is returned for non-positive, NaN or infinite voxel sizes.
	ErrInvalidVoxelSize = errors.New("voxel: invalid voxel size")
	// ErrGridTooLarge is returned when a grid exceeds its Limits and Overflow is OverflowFail.
	ErrGridTooLarge = errors.New("voxel: grid exceeds limits")
)
