package buoyancy

import (
	"fmt"

	"buoyancy3d/internal/physics"
	"buoyancy3d/internal/voxel"
	"buoyancy3d/internal/water"

	"github.com/go-gl/mathgl/mgl32"
)

// Mode selects how a Result is applied to a body.
type Mode int

const (
	// ModePerVoxel applies every voxel's force at its own world point, producing torque.
	ModePerVoxel Mode = iota
	// ModeClampedResultant applies the summed force at the center of mass with
	// its vertical part capped at the body's static weight. Torque is discarded.
	ModeClampedResultant
)

func (m Mode) String() string {
	switch m {
	case ModePerVoxel:
		return "per-voxel"
	case ModeClampedResultant:
		return "clamped-resultant"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "per-voxel" (the default for "") or "clamped-resultant".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "per-voxel":
		return ModePerVoxel, nil
	case "clamped-resultant":
		return ModeClampedResultant, nil
	}
	return ModePerVoxel, fmt.Errorf("buoyancy: unknown force mode %q", s)
}

// ForceReceiver is a body's external force accumulator.
type ForceReceiver interface {
	ApplyForce(force mgl32.Vec3)
	ApplyForceAtPoint(force, worldPoint mgl32.Vec3)
}

// PointForce is one voxel's contribution.
type PointForce struct {
	Force       mgl32.Vec3
	LocalOffset mgl32.Vec3
	WorldPoint  mgl32.Vec3
}

// Result is the buoyancy of one grid for one tick.
type Result struct {
	Force           mgl32.Vec3
	Points          []PointForce
	SubmergedVolume float32
	Eligible        int // non-solid voxels considered
}

// Step samples the water under every non-solid voxel and sums the displaced
// fluid's weight. Every non-solid voxel gets a PointForce, dry ones with zero
// force. gravity is a positive magnitude. It only reads grid.
func Step(grid *voxel.Grid, xf physics.Transform, sampler water.Sampler, fluidDensity, gravity float32) Result {
	var res Result
	if grid == nil {
		return res
	}
	for i := range grid.Voxels {
		v := &grid.Voxels[i]
		if v.Solid {
			continue
		}
		res.Eligible++

		worldPos := xf.Apply(v.LocalOffset)
		h := sampler.HeightAt(worldPos.X(), worldPos.Z())
		submerged := SubmergedVolume(worldPos.Y(), h, grid.VoxelSize)

		force := mgl32.Vec3{0, gravity * submerged * fluidDensity, 0}
		res.Force = res.Force.Add(force)
		res.SubmergedVolume += submerged
		res.Points = append(res.Points, PointForce{
			Force:       force,
			LocalOffset: v.LocalOffset,
			WorldPoint:  worldPos,
		})
	}
	return res
}

// Apply writes res into recv. staticWeight (mass times gravity) is only used by
// ModeClampedResultant.
func Apply(res Result, recv ForceReceiver, mode Mode, staticWeight float32) {
	switch mode {
	case ModeClampedResultant:
		f := res.Force
		if staticWeight >= 0 && f.Y() > staticWeight {
			f[1] = staticWeight
		}
		recv.ApplyForce(f)
	default:
		for _, pf := range res.Points {
			recv.ApplyForceAtPoint(pf.Force, pf.WorldPoint)
		}
	}
}
