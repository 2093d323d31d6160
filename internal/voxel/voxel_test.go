package voxel

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"buoyancy3d/internal/physics"

	"github.com/go-gl/mathgl/mgl32"
)

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func approxVec(a, b mgl32.Vec3) bool {
	return approx(a.X(), b.X()) && approx(a.Y(), b.Y()) && approx(a.Z(), b.Z())
}

func boxCorners(min, max mgl32.Vec3) []mgl32.Vec3 {
	var out []mgl32.Vec3
	for i := 0; i < 8; i++ {
		p := min
		if i&1 != 0 {
			p[0] = max[0]
		}
		if i&2 != 0 {
			p[1] = max[1]
		}
		if i&4 != 0 {
			p[2] = max[2]
		}
		out = append(out, p)
	}
	return out
}

func TestComputeBoundsContainsEveryVertex(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		n := 1 + rng.Intn(50)
		points := make([]mgl32.Vec3, n)
		for i := range points {
			points[i] = mgl32.Vec3{
				rng.Float32()*20 - 10,
				rng.Float32()*20 - 10,
				rng.Float32()*20 - 10,
			}
		}
		b, err := ComputeBounds(points)
		if err != nil {
			t.Fatalf("ComputeBounds failed: %v", err)
		}
		for _, p := range points {
			if !b.Contains(p) {
				t.Fatalf("Expected %v inside %v-%v", p, b.Min, b.Max)
			}
		}
		for i := 0; i < 3; i++ {
			if b.Min[i] > b.Max[i] {
				t.Errorf("Expected Min <= Max on axis %d, got %v > %v", i, b.Min[i], b.Max[i])
			}
		}
	}
}

func TestComputeBoundsEmpty(t *testing.T) {
	if _, err := ComputeBounds(nil); !errors.Is(err, ErrMeshMissingGeometry) {
		t.Errorf("Expected ErrMeshMissingGeometry, got %v", err)
	}
}

func TestVoxelCountIsProductOfCeils(t *testing.T) {
	tests := []struct {
		name   string
		max    mgl32.Vec3
		size   float32
		dims   [3]int
		voxels int
	}{
		{"exact fit", mgl32.Vec3{2, 1, 0.5}, 0.5, [3]int{4, 2, 1}, 8},
		{"partial cells round up", mgl32.Vec3{1.25, 0.75, 2}, 0.5, [3]int{3, 2, 4}, 24},
		{"single cell", mgl32.Vec3{0.25, 0.25, 0.25}, 1, [3]int{1, 1, 1}, 1},
		{"unit voxels", mgl32.Vec3{3, 2, 1}, 1, [3]int{3, 2, 1}, 6},
	}
	for _, tt := range tests {
		g, err := Voxelize(boxCorners(mgl32.Vec3{}, tt.max), tt.size, Limits{})
		if err != nil {
			t.Fatalf("%s: Voxelize failed: %v", tt.name, err)
		}
		if g.Dims != tt.dims {
			t.Errorf("%s: expected dims %v, got %v", tt.name, tt.dims, g.Dims)
		}
		if g.Len() != tt.voxels {
			t.Errorf("%s: expected %d voxels, got %d", tt.name, tt.voxels, g.Len())
		}
	}
}

func TestVoxelizeCenterLayout(t *testing.T) {
	g, err := Voxelize(boxCorners(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1}), 0.5, Limits{})
	if err != nil {
		t.Fatalf("Voxelize failed: %v", err)
	}
	cases := []struct {
		x, y, z int
		want    mgl32.Vec3
	}{
		{0, 0, 0, mgl32.Vec3{0.25, 0.25, 0.25}},
		{1, 0, 0, mgl32.Vec3{0.75, 0.25, 0.25}},
		{0, 1, 0, mgl32.Vec3{0.25, 0.75, 0.25}},
		{1, 1, 1, mgl32.Vec3{0.75, 0.75, 0.75}},
	}
	for _, c := range cases {
		got := g.Voxels[g.Index(c.x, c.y, c.z)].LocalOffset
		if !approxVec(got, c.want) {
			t.Errorf("Cell (%d,%d,%d): expected %v, got %v", c.x, c.y, c.z, c.want, got)
		}
	}
	// x fastest
	if g.Index(1, 0, 0) != 1 || g.Index(0, 1, 0) != 2 || g.Index(0, 0, 1) != 4 {
		t.Error("Expected row-major layout with x fastest, then y, then z")
	}
}

func TestVoxelizeErrors(t *testing.T) {
	if g, err := Voxelize(nil, 0.8, DefaultLimits()); !errors.Is(err, ErrMeshMissingGeometry) || g != nil {
		t.Errorf("Expected ErrMeshMissingGeometry and nil grid, got %v, %v", g, err)
	}

	cube := boxCorners(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1})
	for _, size := range []float32{0, -1, float32(math.NaN()), float32(math.Inf(1))} {
		if _, err := Voxelize(cube, size, DefaultLimits()); !errors.Is(err, ErrInvalidVoxelSize) {
			t.Errorf("Size %v: expected ErrInvalidVoxelSize, got %v", size, err)
		}
	}
}

func TestVoxelizeDegenerateReturnsEmptyGrid(t *testing.T) {
	plane := []mgl32.Vec3{{0, 0, 0}, {4, 0, 0}, {4, 0, 4}, {0, 0, 4}}
	g, err := Voxelize(plane, 0.8, DefaultLimits())
	if !errors.Is(err, ErrDegenerateVolume) {
		t.Fatalf("Expected ErrDegenerateVolume, got %v", err)
	}
	if g == nil {
		t.Fatal("Expected an empty grid alongside ErrDegenerateVolume")
	}
	if g.Len() != 0 {
		t.Errorf("Expected 0 voxels, got %d", g.Len())
	}
}

func TestVoxelizeLimits(t *testing.T) {
	mesh := boxCorners(mgl32.Vec3{}, mgl32.Vec3{10, 10, 10})

	_, err := Voxelize(mesh, 0.5, Limits{MaxCellsPerAxis: 16})
	if !errors.Is(err, ErrGridTooLarge) {
		t.Errorf("Expected ErrGridTooLarge, got %v", err)
	}

	g, err := Voxelize(mesh, 0.5, Limits{MaxCellsPerAxis: 16, Overflow: OverflowClamp})
	if err != nil {
		t.Fatalf("Clamped Voxelize failed: %v", err)
	}
	for i, d := range g.Dims {
		if d > 16 {
			t.Errorf("Axis %d: expected at most 16 cells, got %d", i, d)
		}
		if float32(d)*g.VoxelSize < 10 {
			t.Errorf("Axis %d: grid no longer covers the mesh (%d x %v)", i, d, g.VoxelSize)
		}
	}
	if g.VoxelSize < 0.625 {
		t.Errorf("Expected voxel size grown to at least 0.625, got %v", g.VoxelSize)
	}

	g, err = Voxelize(mesh, 0.5, Limits{MaxVoxels: 1000, Overflow: OverflowClamp})
	if err != nil {
		t.Fatalf("Clamped Voxelize failed: %v", err)
	}
	if g.Len() > 1000 {
		t.Errorf("Expected at most 1000 voxels, got %d", g.Len())
	}
}

func TestVoxelizeHugeExtentDoesNotOverflow(t *testing.T) {
	huge := []mgl32.Vec3{{0, 0, 0}, {1 << 21, 1 << 21, 1 << 21}}

	for _, lim := range []Limits{
		{MaxVoxels: 1 << 16, Overflow: OverflowFail},
		{Overflow: OverflowFail},
	} {
		if _, err := Voxelize(huge, 1, lim); !errors.Is(err, ErrGridTooLarge) {
			t.Errorf("Limits %+v: expected ErrGridTooLarge, got %v", lim, err)
		}
	}

	g, err := Voxelize(huge, 1, Limits{MaxVoxels: 4096, Overflow: OverflowClamp})
	if err != nil {
		t.Fatalf("Clamped Voxelize failed: %v", err)
	}
	if g.Len() == 0 || g.Len() > 4096 {
		t.Errorf("Expected 1..4096 voxels, got %d", g.Len())
	}

	if _, err := SubdivideCube(1, 1<<21); !errors.Is(err, ErrGridTooLarge) {
		t.Errorf("Expected ErrGridTooLarge for oversized cube, got %v", err)
	}
}

func TestSubdivideCubeIsSymmetric(t *testing.T) {
	g, err := SubdivideCube(2, 4)
	if err != nil {
		t.Fatalf("SubdivideCube failed: %v", err)
	}
	if g.Len() != 64 {
		t.Errorf("Expected 64 voxels, got %d", g.Len())
	}
	if !approx(g.VoxelSize, 0.5) {
		t.Errorf("Expected voxel size 0.5, got %v", g.VoxelSize)
	}
	var sum mgl32.Vec3
	for _, v := range g.Voxels {
		sum = sum.Add(v.LocalOffset)
	}
	if !approxVec(sum, mgl32.Vec3{}) {
		t.Errorf("Expected offsets centered on the origin, sum %v", sum)
	}
	if !approxVec(g.Voxels[0].LocalOffset, mgl32.Vec3{-0.75, -0.75, -0.75}) {
		t.Errorf("Expected first center (-0.75,-0.75,-0.75), got %v", g.Voxels[0].LocalOffset)
	}

	if _, err := SubdivideCube(2, 0); !errors.Is(err, ErrInvalidVoxelSize) {
		t.Errorf("Expected ErrInvalidVoxelSize for zero cells, got %v", err)
	}
}

func TestGridStateMachine(t *testing.T) {
	var none *Grid
	if none.State() != StateUninitialized {
		t.Errorf("Expected nil grid uninitialized, got %v", none.State())
	}

	g, _ := SubdivideCube(1, 1)
	if g.State() != StateGenerated {
		t.Errorf("Expected generated, got %v", g.State())
	}
	g.MarkDirty()
	if g.State() != StateSolidityStale {
		t.Errorf("Expected solidity-stale, got %v", g.State())
	}
	Refresh(g, physics.IdentityTransform(), physics.NewWorld(9.81), 0)
	if g.State() != StateSolidityCurrent {
		t.Errorf("Expected solidity-current, got %v", g.State())
	}
	g.MarkDirty()
	if g.State() != StateSolidityStale {
		t.Errorf("Expected solidity-stale after MarkDirty, got %v", g.State())
	}
}

type countingQuery struct {
	calls int
}

func (c *countingQuery) ShapeIntersections(physics.Cuboid, mgl32.Vec3, mgl32.Quat, physics.QueryFilter) []physics.ColliderID {
	c.calls++
	return nil
}

func TestRefreshSkipsCleanGrid(t *testing.T) {
	g, _ := SubdivideCube(2, 2)
	q := &countingQuery{}
	if Refresh(g, physics.IdentityTransform(), q, 0) {
		t.Error("Expected no pass on a clean grid")
	}
	if q.calls != 0 {
		t.Errorf("Expected 0 queries, got %d", q.calls)
	}

	g.MarkDirty()
	if !Refresh(g, physics.IdentityTransform(), q, 0) {
		t.Error("Expected a pass on a dirty grid")
	}
	if q.calls != 8 {
		t.Errorf("Expected one query per voxel (8), got %d", q.calls)
	}
	if g.Dirty() {
		t.Error("Expected dirty cleared after refresh")
	}
}

// singleQuery hides the batch method so Refresh takes the per-voxel path.
type singleQuery struct {
	w *physics.World
}

func (s singleQuery) ShapeIntersections(shape physics.Cuboid, pos mgl32.Vec3, rot mgl32.Quat, f physics.QueryFilter) []physics.ColliderID {
	return s.w.ShapeIntersections(shape, pos, rot, f)
}

// obstacleWorld puts a body at origin whose own collider fills its grid, plus
// a small static box overlapping only the (+,+,+) voxel.
func obstacleWorld(t *testing.T, origin mgl32.Vec3) (*physics.World, physics.BodyID) {
	t.Helper()
	w := physics.NewWorld(9.81)
	rb := physics.NewRigidbody(1)
	rb.Transform.Position = origin
	self := w.AddBody(rb)
	if _, err := w.AddCollider(self, physics.BoxShape{Size: mgl32.Vec3{2, 2, 2}}, physics.IdentityTransform()); err != nil {
		t.Fatalf("AddCollider failed: %v", err)
	}
	obstacle := physics.IdentityTransform()
	obstacle.Position = origin.Add(mgl32.Vec3{1.2, 0.5, 0.5})
	if _, err := w.AddCollider(0, physics.BoxShape{Size: mgl32.Vec3{0.8, 0.8, 0.8}}, obstacle); err != nil {
		t.Fatalf("AddCollider failed: %v", err)
	}
	return w, self
}

func TestRefreshMarksOverlappingVoxels(t *testing.T) {
	origin := mgl32.Vec3{10, 0, -4}
	w, self := obstacleWorld(t, origin)
	xf := w.Body(self).Transform

	for name, q := range map[string]SpatialQuery{"batch": w, "single": singleQuery{w}} {
		g, _ := SubdivideCube(2, 2)
		g.MarkDirty()
		Refresh(g, xf, q, self)

		if g.SolidCount() != 1 {
			t.Errorf("%s: expected 1 solid voxel, got %d", name, g.SolidCount())
		}
		if !g.Voxels[g.Index(1, 1, 1)].Solid {
			t.Errorf("%s: expected voxel (1,1,1) solid", name)
		}
	}
}

func TestRefreshWithoutSelfExclusionSeesOwnCollider(t *testing.T) {
	w, self := obstacleWorld(t, mgl32.Vec3{})
	g, _ := SubdivideCube(2, 2)
	g.MarkDirty()
	Refresh(g, w.Body(self).Transform, w, 0)
	if g.SolidCount() != g.Len() {
		t.Errorf("Expected every voxel solid against its own collider, got %d of %d", g.SolidCount(), g.Len())
	}
}

func TestRefreshIdempotent(t *testing.T) {
	w, self := obstacleWorld(t, mgl32.Vec3{})
	xf := w.Body(self).Transform
	g, _ := SubdivideCube(2, 4)
	g.MarkDirty()
	Refresh(g, xf, w, self)

	before := make([]bool, g.Len())
	for i, v := range g.Voxels {
		before[i] = v.Solid
	}

	if Refresh(g, xf, w, self) {
		t.Error("Expected second refresh to be a no-op")
	}
	g.MarkDirty()
	Refresh(g, xf, w, self)

	for i, v := range g.Voxels {
		if v.Solid != before[i] {
			t.Fatalf("Voxel %d changed from %v to %v", i, before[i], v.Solid)
		}
	}
}

func TestGridSpecRoundTrip(t *testing.T) {
	g, err := Voxelize(boxCorners(mgl32.Vec3{-1, 0, 2}, mgl32.Vec3{1, 1.5, 3}), 0.5, Limits{})
	if err != nil {
		t.Fatalf("Voxelize failed: %v", err)
	}
	back, err := FromSpec(g.Spec())
	if err != nil {
		t.Fatalf("FromSpec failed: %v", err)
	}
	if back.Dims != g.Dims || back.Len() != g.Len() || back.VoxelSize != g.VoxelSize {
		t.Errorf("Expected dims %v len %d, got %v len %d", g.Dims, g.Len(), back.Dims, back.Len())
	}
	for i := range g.Voxels {
		if back.Voxels[i].LocalOffset != g.Voxels[i].LocalOffset {
			t.Fatalf("Voxel %d: expected %v, got %v", i, g.Voxels[i].LocalOffset, back.Voxels[i].LocalOffset)
		}
	}
	if back.State() != StateGenerated {
		t.Errorf("Expected restored grid generated, got %v", back.State())
	}

	cube, _ := SubdivideCube(2, 4)
	spec := cube.Spec()
	if spec.CellsPerAxis != 4 || spec.Offsets != nil {
		t.Errorf("Expected compact cube spec, got %+v", spec)
	}
	restored, err := FromSpec(spec)
	if err != nil || restored.Len() != 64 {
		t.Errorf("Expected 64 voxels from cube spec, got %v (%v)", restored.Len(), err)
	}
}

func TestFromSpecRejectsBadInput(t *testing.T) {
	if _, err := FromSpec(GridSpec{VoxelSize: 0, Offsets: [][3]float32{{0, 0, 0}}}); !errors.Is(err, ErrInvalidVoxelSize) {
		t.Errorf("Expected ErrInvalidVoxelSize, got %v", err)
	}
	bad := GridSpec{VoxelSize: 1, Dims: [3]int{2, 2, 2}, Offsets: [][3]float32{{0, 0, 0}}}
	if _, err := FromSpec(bad); err == nil {
		t.Error("Expected error for mismatched dims")
	}
}

func TestGridSizeSkipsFlatAxes(t *testing.T) {
	b := Bounds{Min: mgl32.Vec3{0, 1, 0}, Max: mgl32.Vec3{2, 1, 1.1}}
	if got, want := GridSize(b, 0.5), [3]int{4, 0, 3}; got != want {
		t.Errorf("Expected dims %v, got %v", want, got)
	}
}

func TestFromOffsets(t *testing.T) {
	g, err := FromOffsets(1, []mgl32.Vec3{{0, 0, 0}, {2, 0, 0}})
	if err != nil {
		t.Fatalf("FromOffsets failed: %v", err)
	}
	if g.Len() != 2 || g.Dims != [3]int{2, 1, 1} {
		t.Errorf("Expected 2 voxels in dims [2 1 1], got %d in %v", g.Len(), g.Dims)
	}
	if !approxVec(g.Bounds.Min, mgl32.Vec3{-0.5, -0.5, -0.5}) || !approxVec(g.Bounds.Max, mgl32.Vec3{2.5, 0.5, 0.5}) {
		t.Errorf("Expected bounds [-0.5 .. 2.5], got %v", g.Bounds)
	}

	empty, err := FromOffsets(1, nil)
	if err != nil || empty.Len() != 0 || empty.Dims != [3]int{} {
		t.Errorf("Expected empty grid, got %v (err %v)", empty, err)
	}
	if _, err := FromOffsets(-1, nil); !errors.Is(err, ErrInvalidVoxelSize) {
		t.Errorf("Expected ErrInvalidVoxelSize, got %v", err)
	}
}
