package sim

import (
	"errors"
	"io"
	"log"
	"math"
	"sync/atomic"
	"testing"

	"buoyancy3d/internal/buoyancy"
	"buoyancy3d/internal/config"
	"buoyancy3d/internal/engine"
	"buoyancy3d/internal/mesh"
	"buoyancy3d/internal/physics"
	"buoyancy3d/internal/voxel"
	"buoyancy3d/internal/water"

	"github.com/go-gl/mathgl/mgl32"
)

const dt = float32(1.0 / 60)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newSystem(t *testing.T, cfg config.Config, sampler water.Sampler) *System {
	t.Helper()
	sys, err := New(cfg, sampler, quietLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return sys
}

func addBox(t *testing.T, sys *System, name string, side float32, pos mgl32.Vec3, kinematic bool) *engine.Body {
	t.Helper()
	spec := sys.NewBodySpec(name, mesh.Box(mgl32.Vec3{side, side, side}))
	spec.Transform.Position = pos
	spec.Kinematic = kinematic
	b, err := sys.AddBody(spec)
	if err != nil {
		t.Fatalf("AddBody(%s) failed: %v", name, err)
	}
	return b
}

func TestEmptyMeshFailsWithoutBlockingSibling(t *testing.T) {
	sys := newSystem(t, config.Default(), water.Flat{Height: 0})

	var failures []BodyFailure
	sys.OnBodyFailed.AddListener(func(f BodyFailure) {
		failures = append(failures, f)
	})

	empty, err := sys.AddBody(sys.NewBodySpec("empty", &mesh.Mesh{}))
	if err != nil {
		t.Fatalf("AddBody failed: %v", err)
	}
	box := addBox(t, sys, "box", 2, mgl32.Vec3{}, true)

	report := sys.Tick(dt)

	if report.Failed != 1 || report.Initialized != 1 {
		t.Errorf("Expected 1 failed and 1 initialised, got %d and %d", report.Failed, report.Initialized)
	}
	if !errors.Is(empty.InitErr, voxel.ErrMeshMissingGeometry) {
		t.Errorf("Expected ErrMeshMissingGeometry, got %v", empty.InitErr)
	}
	if empty.GridState() != voxel.StateUninitialized {
		t.Errorf("Expected failed body to stay Uninitialized, got %v", empty.GridState())
	}
	if len(failures) != 1 || failures[0].Body != empty {
		t.Errorf("Expected one failure event for the empty body, got %v", failures)
	}
	if box.GridState() != voxel.StateSolidityCurrent {
		t.Errorf("Expected sibling to be SolidityCurrent, got %v", box.GridState())
	}
	if box.Grid.Len() != 27 {
		t.Errorf("Expected 27 voxels, got %d", box.Grid.Len())
	}
	if _, ok := report.Body(empty.ID); ok {
		t.Errorf("Failed body should not be reported")
	}
	if _, ok := report.Body(box.ID); !ok {
		t.Errorf("Expected a report for the sibling")
	}

	// Failures are not retried on their own
	report = sys.Tick(dt)
	if report.Failed != 0 || len(failures) != 1 {
		t.Errorf("Expected no retry, got %d failures this tick", report.Failed)
	}
}

func TestColliderFailureWithoutBlockingSibling(t *testing.T) {
	sys := newSystem(t, config.Default(), water.Flat{Height: 0})

	// Two vertices span a volume but form no triangle
	points := &mesh.Mesh{Positions: []mgl32.Vec3{{0, 0, 0}, {1, 1, 1}}}
	bad, err := sys.AddBody(sys.NewBodySpec("points", points))
	if err != nil {
		t.Fatalf("AddBody failed: %v", err)
	}
	box := addBox(t, sys, "box", 2, mgl32.Vec3{10, 0, 0}, true)

	report := sys.Tick(dt)

	if report.Failed != 1 || report.Initialized != 1 {
		t.Errorf("Expected 1 failed and 1 initialised, got %d and %d", report.Failed, report.Initialized)
	}
	if !errors.Is(bad.InitErr, physics.ErrColliderGenerationFailed) {
		t.Errorf("Expected ErrColliderGenerationFailed, got %v", bad.InitErr)
	}
	if bad.GridState() != voxel.StateUninitialized || bad.Collider != 0 {
		t.Errorf("Expected failed body without grid or collider, got %v and collider %d", bad.GridState(), bad.Collider)
	}
	if box.GridState() != voxel.StateSolidityCurrent {
		t.Errorf("Expected sibling to be SolidityCurrent, got %v", box.GridState())
	}
}

func TestArchimedesEndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.VoxelSize = 0.5
	cfg.FluidDensity = 1000
	sys := newSystem(t, cfg, water.Flat{Height: 100})
	box := addBox(t, sys, "box", 2, mgl32.Vec3{}, true)

	report := sys.Tick(dt)
	br, ok := report.Body(box.ID)
	if !ok {
		t.Fatalf("Expected a body report")
	}

	want := float32(1000 * 9.81 * 8)
	if math.Abs(float64(br.Buoyancy.Y()-want)) > float64(want)*1e-4 {
		t.Errorf("Expected buoyancy %v, got %v", want, br.Buoyancy.Y())
	}
	if br.Voxels != 64 || br.Eligible != 64 || br.Solid != 0 {
		t.Errorf("Expected 64 free voxels, got voxels=%d eligible=%d solid=%d", br.Voxels, br.Eligible, br.Solid)
	}
	if br.Force != br.Buoyancy {
		t.Errorf("Expected accumulator %v to equal buoyancy %v", br.Force, br.Buoyancy)
	}
	if br.Torque.Len() > 1 {
		t.Errorf("Expected no torque on a symmetric submerged box, got %v", br.Torque)
	}
	if sys.World.Body(box.ID).ExternalForce != (mgl32.Vec3{}) {
		t.Errorf("Expected the accumulator to be cleared by the physics step")
	}
}

func TestClampedResultantMode(t *testing.T) {
	cfg := config.Default()
	cfg.VoxelSize = 0.5
	cfg.FluidDensity = 1000
	cfg.ForceMode = buoyancy.ModeClampedResultant.String()
	sys := newSystem(t, cfg, water.Flat{Height: 100})
	box := addBox(t, sys, "box", 2, mgl32.Vec3{}, true)

	br, _ := sys.Tick(dt).Body(box.ID)
	weight := float32(2000 * 9.81)
	if math.Abs(float64(br.Force.Y()-weight)) > 1e-2 {
		t.Errorf("Expected force clamped to %v, got %v", weight, br.Force.Y())
	}
	if br.Torque != (mgl32.Vec3{}) {
		t.Errorf("Expected no torque, got %v", br.Torque)
	}
}

func TestObstacleMarksGridsDirty(t *testing.T) {
	sys := newSystem(t, config.Default(), water.Flat{Height: 0})
	box := addBox(t, sys, "box", 2, mgl32.Vec3{}, true)

	changed := 0
	sys.OnObstaclesChanged.AddListener(func() { changed++ })

	br, _ := sys.Tick(dt).Body(box.ID)
	if br.Solid != 0 {
		t.Errorf("Expected no solid voxels before the obstacle, got %d", br.Solid)
	}

	rock, err := sys.AddObstacle(physics.BoxShape{Size: mgl32.Vec3{1, 1, 1}}, physics.IdentityTransform())
	if err != nil {
		t.Fatalf("AddObstacle failed: %v", err)
	}
	if box.GridState() != voxel.StateSolidityStale {
		t.Errorf("Expected SolidityStale after adding an obstacle, got %v", box.GridState())
	}

	report := sys.Tick(dt)
	br, _ = report.Body(box.ID)
	if report.Refreshed != 1 || br.Solid != 8 {
		t.Errorf("Expected 1 refresh with 8 solid voxels, got %d and %d", report.Refreshed, br.Solid)
	}
	if br.Eligible != 19 {
		t.Errorf("Expected 19 eligible voxels, got %d", br.Eligible)
	}

	if !sys.RemoveObstacle(rock) {
		t.Fatalf("Expected RemoveObstacle to succeed")
	}
	if sys.RemoveObstacle(box.Collider) {
		t.Errorf("A body collider is not an obstacle")
	}
	br, _ = sys.Tick(dt).Body(box.ID)
	if br.Solid != 0 {
		t.Errorf("Expected no solid voxels after removal, got %d", br.Solid)
	}
	if changed != 2 {
		t.Errorf("Expected 2 obstacle events, got %d", changed)
	}
}

func TestOverlappingBodiesObstructEachOther(t *testing.T) {
	sys := newSystem(t, config.Default(), water.Flat{Height: 0})
	a := addBox(t, sys, "a", 2, mgl32.Vec3{}, true)
	sys.Tick(dt)
	if a.Grid.SolidCount() != 0 {
		t.Fatalf("Expected a lone body to ignore its own collider, got %d solid", a.Grid.SolidCount())
	}

	addBox(t, sys, "b", 2, mgl32.Vec3{1, 0, 0}, true)
	sys.Tick(dt)
	if a.Grid.SolidCount() == 0 {
		t.Errorf("Expected the new neighbour to obstruct some voxels")
	}
}

func TestRevoxelizeAfterSetMesh(t *testing.T) {
	sys := newSystem(t, config.Default(), water.Flat{Height: 0})
	b, _ := sys.AddBody(sys.NewBodySpec("late", nil))
	sys.Tick(dt)
	if b.InitErr == nil {
		t.Fatalf("Expected a nil mesh to fail")
	}

	voxelized := 0
	sys.OnVoxelized.AddListener(func(*engine.Body) { voxelized++ })

	if !sys.SetMesh(b.ID, mesh.Box(mgl32.Vec3{2, 2, 2})) {
		t.Fatalf("Expected SetMesh to succeed")
	}
	report := sys.Tick(dt)
	if report.Initialized != 1 || b.InitErr != nil || b.Grid == nil {
		t.Errorf("Expected body to initialise, got initialized=%d err=%v", report.Initialized, b.InitErr)
	}
	if voxelized != 1 {
		t.Errorf("Expected 1 voxelized event, got %d", voxelized)
	}
	firstCollider := b.Collider

	sys.Revoxelize(b.ID)
	if b.Grid != nil {
		t.Errorf("Expected Revoxelize to drop the grid")
	}
	sys.Tick(dt)
	if b.Collider == firstCollider || sys.World.ColliderCount() != 1 {
		t.Errorf("Expected the collider to be replaced, got %d colliders", sys.World.ColliderCount())
	}
	if sys.Revoxelize(999) {
		t.Errorf("Expected Revoxelize of unknown body to fail")
	}
}

func TestFlatMeshKeepsEmptyGrid(t *testing.T) {
	sys := newSystem(t, config.Default(), water.Flat{Height: 0})
	b, _ := sys.AddBody(sys.NewBodySpec("deck", mesh.Plane(4)))
	report := sys.Tick(dt)
	if report.Failed != 0 || b.InitErr != nil {
		t.Fatalf("Expected a flat mesh to initialise, got %v", b.InitErr)
	}
	if b.Grid == nil || b.Grid.Len() != 0 {
		t.Errorf("Expected an empty grid")
	}
	br, _ := report.Body(b.ID)
	if br.Buoyancy != (mgl32.Vec3{}) {
		t.Errorf("Expected zero buoyancy, got %v", br.Buoyancy)
	}
}

func TestDryBodyFalls(t *testing.T) {
	sys := newSystem(t, config.Default(), water.Flat{Height: -10})
	b := addBox(t, sys, "box", 2, mgl32.Vec3{0, 5, 0}, false)
	br, _ := sys.Tick(dt).Body(b.ID)
	if br.Buoyancy.Y() != 0 {
		t.Errorf("Expected no buoyancy above the water, got %v", br.Buoyancy)
	}
	if br.Velocity.Y() >= 0 || br.Position.Y() >= 5 {
		t.Errorf("Expected the body to fall, got velocity %v position %v", br.Velocity, br.Position)
	}
}

func TestMassFromDensity(t *testing.T) {
	sys := newSystem(t, config.Default(), nil)
	spec := sys.NewBodySpec("raft", mesh.Box(mgl32.Vec3{2, 1, 4}))
	spec.Mass = 0
	spec.Density = 500
	b, err := sys.AddBody(spec)
	if err != nil {
		t.Fatalf("AddBody failed: %v", err)
	}
	if m := sys.World.Body(b.ID).Mass; m != 4000 {
		t.Errorf("Expected mass 4000, got %v", m)
	}

	spec = sys.NewBodySpec("nomesh", nil)
	spec.Mass = 0
	b, _ = sys.AddBody(spec)
	if m := sys.World.Body(b.ID).Mass; m != config.Default().BodyDefaults.Mass {
		t.Errorf("Expected default mass, got %v", m)
	}
}

func TestStaticBodyNeedsGeometry(t *testing.T) {
	sys := newSystem(t, config.Default(), nil)
	spec := sys.NewBodySpec("pier", nil)
	spec.Buoyant = false
	if _, err := sys.AddBody(spec); !errors.Is(err, physics.ErrColliderGenerationFailed) {
		t.Errorf("Expected ErrColliderGenerationFailed, got %v", err)
	}
	if sys.World.BodyCount() != 0 || sys.Scene.Len() != 0 {
		t.Errorf("Expected the failed body to be rolled back")
	}

	spec.Mesh = mesh.Box(mgl32.Vec3{1, 1, 1})
	b, err := sys.AddBody(spec)
	if err != nil {
		t.Fatalf("AddBody failed: %v", err)
	}
	if b.Collider == 0 || sys.Scene.PendingCount() != 0 {
		t.Errorf("Expected a collider and no pending work for a non-buoyant body")
	}
}

func TestRefreshEveryTicks(t *testing.T) {
	cfg := config.Default()
	cfg.RefreshEveryTicks = 2
	sys := newSystem(t, cfg, water.Flat{Height: 0})
	addBox(t, sys, "box", 2, mgl32.Vec3{}, true)

	want := []int{1, 1, 0, 1}
	for i, w := range want {
		if got := sys.Tick(dt).Refreshed; got != w {
			t.Errorf("Tick %d: expected %d refreshes, got %d", i+1, w, got)
		}
	}
}

func TestTickAdvancesClockedWater(t *testing.T) {
	waves := water.NewWaves(0, water.Wave{Amplitude: 0.5, Wavelength: 10, Speed: 1})
	sys := newSystem(t, config.Default(), waves)

	var ticks []uint64
	sys.OnTick.AddListener(func(r TickReport) { ticks = append(ticks, r.Tick) })

	sys.Tick(0.5)
	sys.Tick(0.5)
	if waves.Time() != 1 || sys.Elapsed() != 1 {
		t.Errorf("Expected water time 1, got %v", waves.Time())
	}
	if len(ticks) != 2 || ticks[1] != 2 || sys.TickCount() != 2 {
		t.Errorf("Expected tick events 1 and 2, got %v", ticks)
	}
}

func TestRemoveBody(t *testing.T) {
	sys := newSystem(t, config.Default(), water.Flat{Height: 0})
	b := addBox(t, sys, "box", 2, mgl32.Vec3{}, true)
	sys.Tick(dt)
	sys.RemoveBody(b.ID)
	if sys.World.BodyCount() != 0 || sys.World.ColliderCount() != 0 || sys.Scene.Len() != 0 {
		t.Errorf("Expected body and collider to be removed")
	}
	if len(sys.Tick(dt).Bodies) != 0 {
		t.Errorf("Expected no reports after removal")
	}
}

func TestParallelVisitsEveryIndexOnce(t *testing.T) {
	sys := newSystem(t, config.Default(), nil)
	var hits [100]int32
	sys.parallel(len(hits), func(i int) {
		atomic.AddInt32(&hits[i], 1)
	})
	for i, h := range hits {
		if h != 1 {
			t.Errorf("Index %d visited %d times", i, h)
		}
	}
	sys.parallel(0, func(int) { t.Errorf("Expected no calls") })
}

func TestRestoreGridSkipsVoxelization(t *testing.T) {
	sys := newSystem(t, config.Default(), water.Flat{Height: 0})
	b := addBox(t, sys, "box", 2, mgl32.Vec3{}, true)

	grid, err := voxel.SubdivideCube(2, 2)
	if err != nil {
		t.Fatalf("SubdivideCube failed: %v", err)
	}
	if err := sys.RestoreGrid(b.ID, grid); err != nil {
		t.Fatalf("RestoreGrid failed: %v", err)
	}
	if sys.Scene.PendingCount() != 0 || b.Collider == 0 {
		t.Errorf("Expected the body dequeued with a collider")
	}

	report := sys.Tick(dt)
	if report.Initialized != 0 || report.Refreshed != 1 {
		t.Errorf("Expected no voxelization and one refresh, got %d and %d", report.Initialized, report.Refreshed)
	}
	if b.Grid.Len() != 8 {
		t.Errorf("Expected the restored 8 voxel grid, got %d", b.Grid.Len())
	}
	if err := sys.RestoreGrid(999, grid); err == nil {
		t.Errorf("Expected an error for an unknown body")
	}
}

func TestCubeBodyWithoutMesh(t *testing.T) {
	cfg := config.Default()
	cfg.FluidDensity = 1000
	sys := newSystem(t, cfg, water.Flat{Height: 100})
	spec := sys.NewBodySpec("crate", nil)
	spec.CubeSize = 2
	spec.CubeCells = 4
	spec.Kinematic = true
	b, err := sys.AddBody(spec)
	if err != nil {
		t.Fatalf("AddBody failed: %v", err)
	}

	report := sys.Tick(dt)
	if report.Initialized != 1 || b.InitErr != nil {
		t.Fatalf("Expected the cube to initialise, got %v", b.InitErr)
	}
	if b.Grid.Len() != 64 || b.Grid.VoxelSize != 0.5 {
		t.Errorf("Expected 64 voxels of 0.5, got %d of %v", b.Grid.Len(), b.Grid.VoxelSize)
	}
	if spec := b.Grid.Spec(); spec.CellsPerAxis != 4 {
		t.Errorf("Expected a compact cube spec, got %+v", spec)
	}
	c, ok := sys.World.Collider(b.Collider)
	if !ok {
		t.Fatalf("Expected a collider")
	}
	if box, isBox := c.Shape.(physics.BoxShape); !isBox || box.Size != (mgl32.Vec3{2, 2, 2}) {
		t.Errorf("Expected a 2m box collider, got %#v", c.Shape)
	}
	br, _ := report.Body(b.ID)
	want := float32(1000 * 9.81 * 8)
	if math.Abs(float64(br.Buoyancy.Y()-want)) > float64(want)*1e-4 {
		t.Errorf("Expected buoyancy %v, got %v", want, br.Buoyancy.Y())
	}
}

func TestSetModeAppliesNextTick(t *testing.T) {
	cfg := config.Default()
	cfg.VoxelSize = 0.5
	cfg.FluidDensity = 1000
	sys := newSystem(t, cfg, water.Flat{Height: 100})
	box := addBox(t, sys, "box", 2, mgl32.Vec3{}, true)

	br, _ := sys.Tick(dt).Body(box.ID)
	full := float32(1000 * 9.81 * 8)
	if math.Abs(float64(br.Force.Y()-full)) > 1 {
		t.Errorf("Expected per-voxel force %v, got %v", full, br.Force.Y())
	}

	sys.SetMode(buoyancy.ModeClampedResultant)
	if sys.Mode() != buoyancy.ModeClampedResultant {
		t.Fatalf("Expected clamped mode, got %v", sys.Mode())
	}
	br, _ = sys.Tick(dt).Body(box.ID)
	weight := float32(2000 * 9.81)
	if math.Abs(float64(br.Force.Y()-weight)) > 1e-2 {
		t.Errorf("Expected force clamped to %v, got %v", weight, br.Force.Y())
	}
}

func TestMarkAllDirty(t *testing.T) {
	sys := newSystem(t, config.Default(), water.Flat{Height: 0})
	addBox(t, sys, "a", 2, mgl32.Vec3{}, true)
	addBox(t, sys, "b", 2, mgl32.Vec3{10, 0, 0}, true)

	if got := sys.Tick(dt).Refreshed; got != 2 {
		t.Errorf("Expected 2 refreshes on the first tick, got %d", got)
	}
	if got := sys.Tick(dt).Refreshed; got != 0 {
		t.Errorf("Expected clean grids to skip refresh, got %d", got)
	}
	sys.MarkAllDirty()
	if got := sys.Tick(dt).Refreshed; got != 2 {
		t.Errorf("Expected 2 refreshes after MarkAllDirty, got %d", got)
	}
}

func TestNonBuoyantBodyIsNotRevoxelized(t *testing.T) {
	sys := newSystem(t, config.Default(), water.Flat{Height: 0})
	spec := sys.NewBodySpec("pier", mesh.Box(mgl32.Vec3{1, 1, 1}))
	spec.Buoyant = false
	pier, err := sys.AddBody(spec)
	if err != nil {
		t.Fatalf("AddBody failed: %v", err)
	}
	first := pier.Collider

	if sys.Revoxelize(pier.ID) {
		t.Error("Expected Revoxelize to refuse a non-buoyant body")
	}
	if sys.Scene.PendingCount() != 0 || pier.Collider != first {
		t.Errorf("Expected no pending work and collider %d kept, got %d pending and collider %d", first, sys.Scene.PendingCount(), pier.Collider)
	}

	if !sys.SetMesh(pier.ID, mesh.Box(mgl32.Vec3{4, 1, 4})) {
		t.Fatal("Expected SetMesh to swap the collider")
	}
	if pier.Collider == first || sys.World.ColliderCount() != 1 {
		t.Errorf("Expected one new collider, got id %d and %d colliders", pier.Collider, sys.World.ColliderCount())
	}
	sys.Tick(dt)
	if pier.Grid != nil {
		t.Errorf("Expected no grid on a non-buoyant body, got %d voxels", pier.Grid.Len())
	}

	swapped := pier.Collider
	if sys.SetMesh(pier.ID, &mesh.Mesh{}) {
		t.Error("Expected SetMesh with an empty mesh to fail")
	}
	if pier.Collider != swapped || pier.Mesh.TriangleCount() == 0 {
		t.Errorf("Expected the previous collider and mesh kept")
	}
}
