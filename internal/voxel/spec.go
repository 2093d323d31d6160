package voxel

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// GridSpec is the persisted form of a grid's geometry. Solidity is not stored;
// grids rebuilt from a spec start Generated and must be refreshed.
type GridSpec struct {
	VoxelSize    float32      `json:"voxel_size"`
	CellsPerAxis int          `json:"cells_per_axis,omitempty"`
	Dims         [3]int       `json:"dims,omitempty"`
	Offsets      [][3]float32 `json:"offsets,omitempty"`
}

// Spec returns the grid's persisted form: cells per axis for analytic cubes,
// explicit offsets otherwise.
func (g *Grid) Spec() GridSpec {
	if g.cellsPerAxis > 0 {
		return GridSpec{VoxelSize: g.VoxelSize, CellsPerAxis: g.cellsPerAxis}
	}
	spec := GridSpec{
		VoxelSize: g.VoxelSize,
		Dims:      g.Dims,
		Offsets:   make([][3]float32, len(g.Voxels)),
	}
	for i, v := range g.Voxels {
		spec.Offsets[i] = [3]float32(v.LocalOffset)
	}
	return spec
}

// FromSpec rebuilds a grid from its persisted form.
func FromSpec(spec GridSpec) (*Grid, error) {
	if spec.CellsPerAxis > 0 {
		return SubdivideCube(spec.VoxelSize*float32(spec.CellsPerAxis), spec.CellsPerAxis)
	}
	offsets := make([]mgl32.Vec3, len(spec.Offsets))
	for i, o := range spec.Offsets {
		offsets[i] = mgl32.Vec3(o)
	}
	g, err := FromOffsets(spec.VoxelSize, offsets)
	if err != nil {
		return nil, err
	}
	if spec.Dims != ([3]int{}) {
		if n := spec.Dims[0] * spec.Dims[1] * spec.Dims[2]; n != len(offsets) {
			return nil, fmt.Errorf("voxel: spec dims %v hold %d cells, have %d offsets", spec.Dims, n, len(offsets))
		}
		g.Dims = spec.Dims
	}
	return g, nil
}

// FromOffsets builds a grid from explicit cell centers.
func FromOffsets(voxelSize float32, offsets []mgl32.Vec3) (*Grid, error) {
	if !validSize(voxelSize) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVoxelSize, voxelSize)
	}
	g := &Grid{
		Voxels:    make([]Voxel, len(offsets)),
		VoxelSize: voxelSize,
		Dims:      [3]int{len(offsets), 1, 1},
	}
	if len(offsets) == 0 {
		g.Dims = [3]int{}
		return g, nil
	}
	half := voxelSize / 2
	b := Bounds{Min: offsets[0], Max: offsets[0]}
	for i, o := range offsets {
		g.Voxels[i].LocalOffset = o
		for k := 0; k < 3; k++ {
			if o[k]-half < b.Min[k] {
				b.Min[k] = o[k] - half
			}
			if o[k]+half > b.Max[k] {
				b.Max[k] = o[k] + half
			}
		}
	}
	g.Bounds = b
	return g, nil
}
