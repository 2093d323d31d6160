// Package sim runs the per-tick buoyancy pipeline over a scene of bodies.
package sim

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"buoyancy3d/internal/buoyancy"
	"buoyancy3d/internal/config"
	"buoyancy3d/internal/engine"
	"buoyancy3d/internal/mesh"
	"buoyancy3d/internal/physics"
	"buoyancy3d/internal/voxel"
	"buoyancy3d/internal/water"

	"github.com/go-gl/mathgl/mgl32"
)

// BodySpec describes a body to add. Scale is baked into Mesh; Transform is rigid.
type BodySpec struct {
	Name      string
	Tags      []string
	Mesh      *mesh.Mesh
	Transform physics.Transform

	// Mass <= 0 derives mass from Density and the mesh bounds.
	Mass           float32
	Density        float32
	FluidDensity   float32
	LinearDamping  float32
	AngularDamping float32

	Buoyant    bool
	Kinematic  bool
	UseGravity bool

	// CubeSize and CubeCells give a mesh-less body a cube volume of side
	// CubeSize split into CubeCells cells per axis.
	CubeSize  float32
	CubeCells int
}

// BodyFailure is raised when a body cannot be initialised.
type BodyFailure struct {
	Body *engine.Body
	Err  error
}

// System owns the physics world and the body arena and advances both.
// It is driven from a single goroutine; Tick fans work out internally.
type System struct {
	World *physics.World
	Scene *engine.Scene
	Water water.Sampler

	OnVoxelized        engine.EventWithArg[*engine.Body]
	OnBodyFailed       engine.EventWithArg[BodyFailure]
	OnTick             engine.EventWithArg[TickReport]
	OnObstaclesChanged engine.Event

	cfg    config.Config
	mode   buoyancy.Mode
	limits voxel.Limits
	logger *log.Logger

	tick    uint64
	elapsed float64
}

// New builds a system from cfg. A nil sampler uses the configured water surface.
func New(cfg config.Config, sampler water.Sampler, logger *log.Logger) (*System, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	limits, err := cfg.VoxelLimits()
	if err != nil {
		return nil, err
	}
	if sampler == nil {
		sampler = cfg.Sampler()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &System{
		World:  physics.NewWorld(cfg.Gravity),
		Scene:  engine.NewScene("Main"),
		Water:  sampler,
		cfg:    cfg,
		mode:   mode,
		limits: limits,
		logger: logger,
	}, nil
}

func (s *System) Config() config.Config {
	return s.cfg
}

func (s *System) Mode() buoyancy.Mode {
	return s.mode
}

// SetMode switches force application for subsequent ticks.
func (s *System) SetMode(m buoyancy.Mode) {
	s.mode = m
}

// TickCount returns the number of completed ticks.
func (s *System) TickCount() uint64 {
	return s.tick
}

// Elapsed returns simulated seconds.
func (s *System) Elapsed() float64 {
	return s.elapsed
}

// NewBodySpec returns a dynamic buoyant body spec carrying the configured defaults.
func (s *System) NewBodySpec(name string, m *mesh.Mesh) BodySpec {
	d := s.cfg.BodyDefaults
	return BodySpec{
		Name:           name,
		Mesh:           m,
		Transform:      physics.IdentityTransform(),
		Mass:           d.Mass,
		Density:        d.Density,
		LinearDamping:  d.LinearDamping,
		AngularDamping: d.AngularDamping,
		Buoyant:        true,
		UseGravity:     true,
	}
}

// AddBody registers a rigidbody and its scene record. Buoyant bodies are
// voxelized on the next Tick; others get their collider immediately.
func (s *System) AddBody(spec BodySpec) (*engine.Body, error) {
	positions := spec.Mesh.VertexPositions()
	bounds, boundsErr := voxel.ComputeBounds(positions)
	if boundsErr != nil && spec.CubeSize > 0 && spec.CubeCells > 0 {
		h := spec.CubeSize / 2
		bounds = voxel.Bounds{Min: mgl32.Vec3{-h, -h, -h}, Max: mgl32.Vec3{h, h, h}}
		boundsErr = nil
	}

	mass := spec.Mass
	if mass <= 0 && spec.Density > 0 && boundsErr == nil {
		ext := bounds.Extent()
		mass = spec.Density * ext.X() * ext.Y() * ext.Z()
	}
	if mass <= 0 {
		mass = s.cfg.BodyDefaults.Mass
	}

	rb := physics.NewRigidbody(mass)
	rb.Transform = spec.Transform
	rb.LinearDamping = spec.LinearDamping
	rb.AngularDamping = spec.AngularDamping
	rb.IsKinematic = spec.Kinematic
	rb.UseGravity = spec.UseGravity
	if boundsErr == nil {
		rb.CenterOfMass = bounds.Center()
		rb.SetBoxInertia(bounds.Extent())
	}

	id := s.World.AddBody(rb)
	b := engine.NewBody(id, spec.Name, spec.Mesh)
	b.Buoyant = spec.Buoyant
	b.Density = spec.Density
	b.FluidDensity = spec.FluidDensity
	b.CubeSize = spec.CubeSize
	b.CubeCells = spec.CubeCells
	for _, tag := range spec.Tags {
		b.AddTag(tag)
	}

	if !b.Buoyant {
		if err := s.attachCollider(b); err != nil {
			s.World.RemoveBody(id)
			return nil, err
		}
		s.MarkAllDirty()
	}
	if err := s.Scene.Add(b); err != nil {
		s.World.RemoveBody(id)
		return nil, err
	}
	return b, nil
}

// AddObstacle places a static collider. Every grid is re-classified on the next tick.
func (s *System) AddObstacle(shape physics.Shape, pose physics.Transform) (physics.ColliderID, error) {
	id, err := s.World.AddCollider(0, shape, pose)
	if err != nil {
		return 0, err
	}
	s.MarkAllDirty()
	s.OnObstaclesChanged.Invoke()
	return id, nil
}

// RemoveObstacle drops a static collider added with AddObstacle.
func (s *System) RemoveObstacle(id physics.ColliderID) bool {
	c, ok := s.World.Collider(id)
	if !ok || c.Owner != 0 {
		return false
	}
	s.World.RemoveCollider(id)
	s.MarkAllDirty()
	s.OnObstaclesChanged.Invoke()
	return true
}

// RemoveBody drops a body, its rigidbody and its colliders.
func (s *System) RemoveBody(id physics.BodyID) {
	if s.Scene.Body(id) == nil {
		return
	}
	s.Scene.Remove(id)
	s.World.RemoveBody(id)
	s.MarkAllDirty()
}

// Revoxelize drops a body's grid and collider and queues it for the next tick.
// It is the only way a failed body is retried. Non-buoyant bodies have no grid
// and report false.
func (s *System) Revoxelize(id physics.BodyID) bool {
	b := s.Scene.Body(id)
	if b == nil || !b.Buoyant {
		return false
	}
	if b.Collider != 0 {
		s.World.RemoveCollider(b.Collider)
		b.Collider = 0
	}
	return s.Scene.Requeue(id)
}

// SetMesh replaces a body's mesh and revoxelizes it. A non-buoyant body only
// swaps its collider, and keeps the old mesh if the new one has no triangles.
func (s *System) SetMesh(id physics.BodyID, m *mesh.Mesh) bool {
	b := s.Scene.Body(id)
	if b == nil {
		return false
	}
	if b.Buoyant {
		b.Mesh = m
		return s.Revoxelize(id)
	}

	prevMesh, prevCollider := b.Mesh, b.Collider
	b.Mesh = m
	if err := s.attachCollider(b); err != nil {
		b.Mesh = prevMesh
		s.logger.Printf("Physics: body %d (%s) keeps its collider: %v", b.ID, b.Name, err)
		return false
	}
	if prevCollider != 0 {
		s.World.RemoveCollider(prevCollider)
	}
	s.MarkAllDirty()
	return true
}

// RestoreGrid installs a previously built grid on a body instead of
// voxelizing it. The body leaves the pending queue and the grid is refreshed
// on the next tick.
func (s *System) RestoreGrid(id physics.BodyID, grid *voxel.Grid) error {
	b := s.Scene.Body(id)
	if b == nil {
		return fmt.Errorf("sim: unknown body %d", id)
	}
	if grid == nil {
		return fmt.Errorf("sim: body %d: nil grid", id)
	}
	if b.Collider == 0 {
		if err := s.attachCollider(b); err != nil {
			return err
		}
	}
	s.Scene.Dequeue(id)
	grid.MarkDirty()
	b.Grid = grid
	b.InitErr = nil
	s.MarkAllDirty()
	return nil
}

// MarkAllDirty queues every initialised grid for re-classification.
func (s *System) MarkAllDirty() {
	for _, b := range s.Scene.Bodies() {
		if b.Grid != nil {
			b.Grid.MarkDirty()
		}
	}
}

// Tick runs one pass: initialise new bodies, refresh dirty grids, integrate
// buoyancy into each body's accumulator, then advance the physics world.
func (s *System) Tick(dt float32) TickReport {
	start := time.Now()
	s.tick++
	s.elapsed += float64(dt)
	report := TickReport{Tick: s.tick, Time: s.elapsed}

	initialized := false
	for _, b := range s.Scene.DrainPending() {
		if err := s.initBody(b); err != nil {
			b.InitErr = err
			b.Grid = nil
			report.Failed++
			s.logger.Printf("Buoyancy: body %d (%s) not initialised: %v", b.ID, b.Name, err)
			s.OnBodyFailed.Invoke(BodyFailure{Body: b, Err: err})
			continue
		}
		initialized = true
		report.Initialized++
		s.OnVoxelized.Invoke(b)
	}
	if initialized {
		// New colliders may obstruct other bodies' voxels.
		s.MarkAllDirty()
	}

	if clocked, ok := s.Water.(water.Clocked); ok {
		clocked.SetTime(s.elapsed)
	}
	if n := s.cfg.RefreshEveryTicks; n > 0 && s.tick%uint64(n) == 0 {
		s.MarkAllDirty()
	}

	var active []*engine.Body
	for _, b := range s.Scene.Bodies() {
		if b.Buoyant && b.Grid != nil && s.World.Body(b.ID) != nil {
			active = append(active, b)
		}
	}

	refreshed := make([]bool, len(active))
	s.parallel(len(active), func(i int) {
		b := active[i]
		rb := s.World.Body(b.ID)
		refreshed[i] = voxel.Refresh(b.Grid, rb.Transform, s.World, b.ID)
	})

	reports := make([]BodyReport, len(active))
	s.parallel(len(active), func(i int) {
		b := active[i]
		rb := s.World.Body(b.ID)
		res := buoyancy.Step(b.Grid, rb.Transform, s.Water, s.fluidDensity(b), s.cfg.Gravity)
		buoyancy.Apply(res, rb, s.mode, rb.Mass*s.cfg.Gravity)
		reports[i] = BodyReport{
			ID:              b.ID,
			Name:            b.Name,
			State:           b.GridState().String(),
			Voxels:          b.Grid.Len(),
			Solid:           b.Grid.SolidCount(),
			Eligible:        res.Eligible,
			SubmergedVolume: res.SubmergedVolume,
			Buoyancy:        res.Force,
			Force:           rb.ExternalForce,
			Torque:          rb.Torque(),
		}
	})
	for _, r := range refreshed {
		if r {
			report.Refreshed++
		}
	}

	s.World.Step(dt)

	for i := range reports {
		if rb := s.World.Body(reports[i].ID); rb != nil {
			reports[i].Position = rb.Transform.Position
			reports[i].Velocity = rb.Velocity
		}
	}
	report.Bodies = reports
	report.Duration = time.Since(start)

	s.OnTick.Invoke(report)
	return report
}

func (s *System) fluidDensity(b *engine.Body) float32 {
	if b.FluidDensity > 0 {
		return b.FluidDensity
	}
	return s.cfg.FluidDensity
}

// initBody voxelizes a body and gives it a trimesh collider from the same mesh.
// Cube bodies are subdivided instead. A flat mesh keeps an empty grid and only logs.
func (s *System) initBody(b *engine.Body) error {
	var (
		grid *voxel.Grid
		err  error
	)
	if b.IsCube() {
		grid, err = voxel.SubdivideCube(b.CubeSize, b.CubeCells)
	} else {
		grid, err = voxel.Voxelize(b.Mesh.VertexPositions(), s.cfg.VoxelSize, s.limits)
	}
	if err != nil {
		if !errors.Is(err, voxel.ErrDegenerateVolume) {
			return err
		}
		s.logger.Printf("Buoyancy: body %d (%s) has no volume, using empty grid: %v", b.ID, b.Name, err)
	}
	if b.Collider != 0 {
		s.World.RemoveCollider(b.Collider)
		b.Collider = 0
	}
	if err := s.attachCollider(b); err != nil {
		return err
	}
	grid.MarkDirty()
	b.Grid = grid
	b.InitErr = nil
	return nil
}

// attachCollider gives b its own collider: a box for cube bodies, a trimesh otherwise.
func (s *System) attachCollider(b *engine.Body) error {
	var shape physics.Shape
	if b.IsCube() {
		shape = physics.BoxShape{Size: mgl32.Vec3{b.CubeSize, b.CubeSize, b.CubeSize}}
	} else {
		var indices []uint32
		if b.Mesh != nil {
			indices = b.Mesh.Indices
		}
		mc, err := physics.NewMeshCollider(b.Mesh.VertexPositions(), indices, mgl32.Vec3{1, 1, 1})
		if err != nil {
			return fmt.Errorf("body %d collider: %w", b.ID, err)
		}
		shape = mc
	}
	cid, err := s.World.AddCollider(b.ID, shape, physics.IdentityTransform())
	if err != nil {
		return err
	}
	b.Collider = cid
	return nil
}

// parallel runs fn(0..n-1) on at most cfg.Workers goroutines.
func (s *System) parallel(n int, fn func(i int)) {
	workers := s.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}
