package render

import (
	"buoyancy3d/internal/buoyancy"
	"buoyancy3d/internal/water"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"
)

// VoxelKind is how a voxel is drawn.
type VoxelKind int

const (
	KindDry VoxelKind = iota
	KindPartial
	KindSubmerged
	KindSolid
)

func (k VoxelKind) Color() rl.Color {
	switch k {
	case KindSolid:
		return rl.Red
	case KindSubmerged:
		return rl.Blue
	case KindPartial:
		return rl.SkyBlue
	default:
		return rl.Green
	}
}

// Classify reports a voxel's draw kind from its world center. Solid wins over
// any water state.
func Classify(solid bool, center mgl32.Vec3, size float32, s water.Sampler) VoxelKind {
	if solid {
		return KindSolid
	}
	full := size * size * size
	switch v := buoyancy.SubmergedVolume(center.Y(), s.HeightAt(center.X(), center.Z()), size); {
	case v <= 0:
		return KindDry
	case v >= full:
		return KindSubmerged
	default:
		return KindPartial
	}
}
