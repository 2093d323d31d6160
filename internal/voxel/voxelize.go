package voxel

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Overflow selects what Voxelize does when a grid exceeds its Limits.
type Overflow int

const (
	// OverflowFail rejects the mesh with ErrGridTooLarge.
	OverflowFail Overflow = iota
	// OverflowClamp grows the voxel size until the grid fits.
	OverflowClamp
)

func (o Overflow) String() string {
	if o == OverflowClamp {
		return "clamp"
	}
	return "fail"
}

// ParseOverflow accepts "fail" or "clamp".
func ParseOverflow(s string) (Overflow, error) {
	switch s {
	case "", "fail":
		return OverflowFail, nil
	case "clamp":
		return OverflowClamp, nil
	}
	return OverflowFail, fmt.Errorf("voxel: unknown overflow policy %q", s)
}

// MaxGridVoxels bounds every grid regardless of Limits.
const MaxGridVoxels = 1 << 24

// Limits caps grid size. A zero field leaves that cap off; MaxGridVoxels
// still applies.
type Limits struct {
	MaxCellsPerAxis int
	MaxVoxels       int
	Overflow        Overflow
}

func DefaultLimits() Limits {
	return Limits{
		MaxCellsPerAxis: 128,
		MaxVoxels:       1 << 16,
		Overflow:        OverflowFail,
	}
}

// voxelCap is the effective voxel count ceiling.
func (l Limits) voxelCap() int {
	if l.MaxVoxels > 0 && l.MaxVoxels < MaxGridVoxels {
		return l.MaxVoxels
	}
	return MaxGridVoxels
}

func (l Limits) fits(dims [3]int) bool {
	if l.MaxCellsPerAxis > 0 {
		for _, d := range dims {
			if d > l.MaxCellsPerAxis {
				return false
			}
		}
	}
	n, ok := cellCount(dims)
	return ok && n <= l.voxelCap()
}

// cellCount multiplies dims, reporting false once the product passes
// MaxGridVoxels.
func cellCount(dims [3]int) (int, bool) {
	n := 1
	for _, d := range dims {
		if d < 0 {
			return 0, false
		}
		if d > 0 && n > MaxGridVoxels/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

func validSize(size float32) bool {
	f := float64(size)
	return size > 0 && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// GridSize returns the cell count per axis, ceil(extent / voxelSize).
// Axes with non-positive extent get zero cells.
func GridSize(b Bounds, voxelSize float32) [3]int {
	var dims [3]int
	ext := b.Extent()
	for i := 0; i < 3; i++ {
		if ext[i] <= 0 {
			continue
		}
		c := math.Ceil(float64(ext[i]) / float64(voxelSize))
		if c > math.MaxInt32 {
			c = math.MaxInt32
		}
		dims[i] = int(c)
	}
	return dims
}

// Voxelize builds a grid covering the bounds of positions. The grid starts
// Generated; callers mark it dirty to have its solidity classified.
//
// A flat mesh yields ErrDegenerateVolume together with an empty, usable grid.
func Voxelize(positions []mgl32.Vec3, voxelSize float32, limits Limits) (*Grid, error) {
	if !validSize(voxelSize) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVoxelSize, voxelSize)
	}
	b, err := ComputeBounds(positions)
	if err != nil {
		return nil, err
	}

	dims := GridSize(b, voxelSize)
	if dims[0] == 0 || dims[1] == 0 || dims[2] == 0 {
		empty := &Grid{VoxelSize: voxelSize, Bounds: b}
		return empty, fmt.Errorf("%w: extent %v", ErrDegenerateVolume, b.Extent())
	}

	if !limits.fits(dims) {
		if limits.Overflow != OverflowClamp {
			return nil, fmt.Errorf("%w: %dx%dx%d cells at size %v", ErrGridTooLarge, dims[0], dims[1], dims[2], voxelSize)
		}
		voxelSize, dims = clampSize(b, voxelSize, limits)
	}

	return fill(b.Min, dims, voxelSize, b), nil
}

// clampSize grows voxelSize until the grid fits limits.
func clampSize(b Bounds, voxelSize float32, limits Limits) (float32, [3]int) {
	ext := b.Extent()
	if limits.MaxCellsPerAxis > 0 {
		longest := maxComponent(ext)
		if floor := longest / float32(limits.MaxCellsPerAxis); floor > voxelSize {
			voxelSize = floor
		}
	}
	dims := GridSize(b, voxelSize)
	for !limits.fits(dims) {
		grow := float32(1.01)
		ratio := float64(dims[0]) * float64(dims[1]) * float64(dims[2]) / float64(limits.voxelCap())
		if g := float32(math.Cbrt(ratio)); g > grow {
			grow = g
		}
		voxelSize *= grow
		dims = GridSize(b, voxelSize)
	}
	return voxelSize, dims
}

func maxComponent(v mgl32.Vec3) float32 {
	m := v[0]
	if v[1] > m {
		m = v[1]
	}
	if v[2] > m {
		m = v[2]
	}
	return m
}

// fill lays out cell centers from origin + size/2, x fastest.
func fill(origin mgl32.Vec3, dims [3]int, voxelSize float32, b Bounds) *Grid {
	g := &Grid{
		Voxels:    make([]Voxel, 0, dims[0]*dims[1]*dims[2]),
		VoxelSize: voxelSize,
		Dims:      dims,
		Bounds:    b,
	}
	half := voxelSize / 2
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				g.Voxels = append(g.Voxels, Voxel{
					LocalOffset: mgl32.Vec3{
						origin.X() + half + float32(x)*voxelSize,
						origin.Y() + half + float32(y)*voxelSize,
						origin.Z() + half + float32(z)*voxelSize,
					},
				})
			}
		}
	}
	return g
}

// SubdivideCube builds a cube of side cubeSize split into cellsPerAxis cells per
// axis, centered on the local origin. Used when a body has no mesh.
func SubdivideCube(cubeSize float32, cellsPerAxis int) (*Grid, error) {
	if !validSize(cubeSize) || cellsPerAxis <= 0 {
		return nil, fmt.Errorf("%w: cube %v with %d cells per axis", ErrInvalidVoxelSize, cubeSize, cellsPerAxis)
	}
	dims := [3]int{cellsPerAxis, cellsPerAxis, cellsPerAxis}
	if _, ok := cellCount(dims); !ok {
		return nil, fmt.Errorf("%w: %d cells per axis", ErrGridTooLarge, cellsPerAxis)
	}
	voxelSize := cubeSize / float32(cellsPerAxis)
	half := cubeSize / 2
	b := Bounds{
		Min: mgl32.Vec3{-half, -half, -half},
		Max: mgl32.Vec3{half, half, half},
	}
	g := fill(b.Min, dims, voxelSize, b)
	g.cellsPerAxis = cellsPerAxis
	return g, nil
}
