// Package buoyancy integrates buoyant force over a body's voxel grid.
package buoyancy

// SubmergedVolume returns the volume of a voxel of side size, centered at
// height centerY, that lies below waterHeight.
func SubmergedVolume(centerY, waterHeight, size float32) float32 {
	half := size / 2
	bottom := centerY - half
	top := centerY + half
	switch {
	case top <= waterHeight:
		return size * size * size
	case bottom >= waterHeight:
		return 0
	default:
		return (waterHeight - bottom) * size * size
	}
}
