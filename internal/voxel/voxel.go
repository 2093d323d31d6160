// Package voxel turns meshes into voxel grids and classifies which cells are
// occupied by other collision geometry.
package voxel

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Voxel is one cubic cell of a body's local volume.
type Voxel struct {
	LocalOffset mgl32.Vec3 // cell center in the body's local frame
	Solid       bool       // overlaps a collider other than the owning body's
}

// State is the lifecycle stage of a body's grid.
type State int

const (
	StateUninitialized State = iota
	StateGenerated
	StateSolidityStale
	StateSolidityCurrent
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateGenerated:
		return "generated"
	case StateSolidityStale:
		return "solidity-stale"
	case StateSolidityCurrent:
		return "solidity-current"
	default:
		return "unknown"
	}
}

// Grid is a body's voxelized volume. Voxels are stored x fastest, then y, then z.
type Grid struct {
	Voxels    []Voxel
	VoxelSize float32
	Dims      [3]int
	Bounds    Bounds

	dirty        bool
	refreshed    bool
	cellsPerAxis int // set for analytic cube grids
}

// Dirty reports whether solidity must be recomputed.
func (g *Grid) Dirty() bool {
	return g != nil && g.dirty
}

// MarkDirty schedules a solidity refresh.
func (g *Grid) MarkDirty() {
	if g != nil {
		g.dirty = true
	}
}

// State reports the grid's lifecycle stage. A nil grid is uninitialized.
func (g *Grid) State() State {
	switch {
	case g == nil:
		return StateUninitialized
	case g.dirty:
		return StateSolidityStale
	case g.refreshed:
		return StateSolidityCurrent
	default:
		return StateGenerated
	}
}

// Len returns the number of voxels.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Voxels)
}

// Index returns the slice index of cell (x, y, z).
func (g *Grid) Index(x, y, z int) int {
	return x + g.Dims[0]*(y+g.Dims[1]*z)
}

// SolidCount returns the number of solid voxels.
func (g *Grid) SolidCount() int {
	if g == nil {
		return 0
	}
	n := 0
	for i := range g.Voxels {
		if g.Voxels[i].Solid {
			n++
		}
	}
	return n
}

// CellVolume is the volume of a single voxel.
func (g *Grid) CellVolume() float32 {
	return g.VoxelSize * g.VoxelSize * g.VoxelSize
}
