package physics

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Spatial grid cell size - colliders are bucketed by the cells their bounds touch
const CellSize = 5.0

// maxCellsPerCollider keeps huge colliders (terrain, sea floor) out of the hash.
// They are tested against every query instead.
const maxCellsPerCollider = 512

// GPUBatchThreshold is the minimum batch size before a BroadPhase is used.
// Below this, CPU spatial hashing is faster due to GPU overhead.
const GPUBatchThreshold = 4096

// Cell key for spatial hashing
type CellKey struct {
	X, Y, Z int
}

func posToCell(pos mgl32.Vec3) CellKey {
	return CellKey{
		X: int(math.Floor(float64(pos.X() / CellSize))),
		Y: int(math.Floor(float64(pos.Y() / CellSize))),
		Z: int(math.Floor(float64(pos.Z() / CellSize))),
	}
}

// BroadPhase finds overlapping boxes for large query batches.
// Implementations may run on the GPU; pairs are (query index, target index).
type BroadPhase interface {
	OverlapPairs(queries, targets []AABB) ([][2]uint32, error)
}

// World owns rigid bodies and colliders and answers overlap queries.
//
// Queries take the read lock and may run concurrently. AddBody, AddCollider,
// RemoveBody, SetTransform and Step take the write lock.
type World struct {
	Gravity mgl32.Vec3

	mu           sync.RWMutex
	bodies       map[BodyID]*Rigidbody
	order        []BodyID
	nextBody     BodyID
	colliders    map[ColliderID]*Collider
	nextCollider ColliderID

	// broad phase state, rebuilt after every mutation
	bounds    map[ColliderID]AABB
	grid      map[CellKey][]ColliderID
	oversized []ColliderID

	broadPhase BroadPhase
}

func NewWorld(gravity float32) *World {
	return &World{
		Gravity:   mgl32.Vec3{0, -gravity, 0},
		bodies:    make(map[BodyID]*Rigidbody),
		colliders: make(map[ColliderID]*Collider),
		bounds:    make(map[ColliderID]AABB),
		grid:      make(map[CellKey][]ColliderID),
	}
}

// SetBroadPhase installs an accelerated broad phase for batch queries. Nil restores CPU only.
func (w *World) SetBroadPhase(bp BroadPhase) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.broadPhase = bp
	if bp != nil {
		log.Printf("Physics: batch broad-phase ready (threshold: %d queries)", GPUBatchThreshold)
	}
}

// AddBody registers a rigidbody and assigns its ID.
func (w *World) AddBody(rb *Rigidbody) BodyID {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextBody++
	rb.ID = w.nextBody
	w.bodies[rb.ID] = rb
	w.order = append(w.order, rb.ID)
	return rb.ID
}

// Body returns the rigidbody with the given ID, or nil.
func (w *World) Body(id BodyID) *Rigidbody {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.bodies[id]
}

// BodyCount returns the number of registered rigidbodies.
func (w *World) BodyCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bodies)
}

// RemoveBody drops a body and every collider it owns.
func (w *World) RemoveBody(id BodyID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.bodies[id]; !ok {
		return
	}
	delete(w.bodies, id)
	for i, other := range w.order {
		if other == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	for cid, c := range w.colliders {
		if c.Owner == id {
			delete(w.colliders, cid)
		}
	}
	w.rebuildGrid()
}

// AddCollider attaches shape to owner (0 for a static collider) at the given local pose.
func (w *World) AddCollider(owner BodyID, shape Shape, local Transform) (ColliderID, error) {
	if shape == nil {
		return 0, fmt.Errorf("%w: nil shape", ErrColliderGenerationFailed)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if owner != 0 {
		if _, ok := w.bodies[owner]; !ok {
			return 0, fmt.Errorf("physics: add collider: unknown body %d", owner)
		}
	}
	w.nextCollider++
	c := &Collider{ID: w.nextCollider, Owner: owner, Shape: shape, Local: local}
	w.colliders[c.ID] = c
	w.rebuildGrid()
	return c.ID, nil
}

// RemoveCollider detaches a single collider.
func (w *World) RemoveCollider(id ColliderID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.colliders[id]; !ok {
		return false
	}
	delete(w.colliders, id)
	w.rebuildGrid()
	return true
}

// ColliderCount returns the number of registered colliders.
func (w *World) ColliderCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.colliders)
}

// Collider returns a copy of the collider and whether it exists.
func (w *World) Collider(id ColliderID) (Collider, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.colliders[id]
	if !ok {
		return Collider{}, false
	}
	return *c, true
}

// ColliderBounds returns the world AABB of a collider as of the last mutation.
func (w *World) ColliderBounds(id ColliderID) (AABB, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.bounds[id]
	return b, ok
}

// SetTransform teleports a body and refreshes the broad phase.
func (w *World) SetTransform(id BodyID, t Transform) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rb, ok := w.bodies[id]
	if !ok {
		return
	}
	rb.Transform = t
	w.rebuildGrid()
}

// Step integrates every body by dt, then rebuilds the broad phase.
func (w *World) Step(dt float32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range w.order {
		w.bodies[id].Integrate(dt, w.Gravity)
	}
	w.rebuildGrid()
}

// colliderPose returns the rigid world pose of a collider. Must hold the lock.
func (w *World) colliderPose(c *Collider) Transform {
	local := rigid(c.Local)
	if c.Owner == 0 {
		return local
	}
	return rigid(w.bodies[c.Owner].Transform).Compose(local)
}

func rigid(t Transform) Transform {
	t.Scale = mgl32.Vec3{1, 1, 1}
	return t
}

// rebuildGrid clears and repopulates the spatial hash grid. Must hold the write lock.
func (w *World) rebuildGrid() {
	for k := range w.grid {
		delete(w.grid, k)
	}
	for k := range w.bounds {
		delete(w.bounds, k)
	}
	w.oversized = w.oversized[:0]

	ids := make([]ColliderID, 0, len(w.colliders))
	for id := range w.colliders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		c := w.colliders[id]
		box := c.Shape.Bounds().Transformed(w.colliderPose(c))
		w.bounds[id] = box

		lo, hi := posToCell(box.Min), posToCell(box.Max)
		cells := (hi.X - lo.X + 1) * (hi.Y - lo.Y + 1) * (hi.Z - lo.Z + 1)
		if cells > maxCellsPerCollider || cells <= 0 {
			w.oversized = append(w.oversized, id)
			continue
		}
		for x := lo.X; x <= hi.X; x++ {
			for y := lo.Y; y <= hi.Y; y++ {
				for z := lo.Z; z <= hi.Z; z++ {
					key := CellKey{x, y, z}
					w.grid[key] = append(w.grid[key], id)
				}
			}
		}
	}
}

// ShapeIntersections returns the colliders overlapping shape placed at pos with
// rotation rot, in ascending ID order. It only reads world state.
func (w *World) ShapeIntersections(shape Cuboid, pos mgl32.Vec3, rot mgl32.Quat, filter QueryFilter) []ColliderID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	query := shape.obb(pos, rot)
	return w.narrowPhase(query, w.candidates(query.AABB()), filter)
}

// BatchShapeIntersections runs ShapeIntersections for every position with the
// same shape, rotation and filter. Large batches go through the BroadPhase when set.
func (w *World) BatchShapeIntersections(shape Cuboid, positions []mgl32.Vec3, rot mgl32.Quat, filter QueryFilter) [][]ColliderID {
	w.mu.RLock()
	defer w.mu.RUnlock()

	queries := make([]OBB, len(positions))
	boxes := make([]AABB, len(positions))
	for i, p := range positions {
		queries[i] = shape.obb(p, rot)
		boxes[i] = queries[i].AABB()
	}

	out := make([][]ColliderID, len(positions))
	if cands, ok := w.batchCandidates(boxes); ok {
		for i := range queries {
			out[i] = w.narrowPhase(queries[i], cands[i], filter)
		}
		return out
	}
	for i := range queries {
		out[i] = w.narrowPhase(queries[i], w.candidates(boxes[i]), filter)
	}
	return out
}

// batchCandidates asks the BroadPhase for candidates. Must hold the read lock.
func (w *World) batchCandidates(boxes []AABB) ([][]ColliderID, bool) {
	if w.broadPhase == nil || len(boxes) < GPUBatchThreshold || len(w.colliders) == 0 {
		return nil, false
	}

	ids := make([]ColliderID, 0, len(w.bounds))
	for id := range w.bounds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	targets := make([]AABB, len(ids))
	for i, id := range ids {
		targets[i] = w.bounds[id]
	}

	pairs, err := w.broadPhase.OverlapPairs(boxes, targets)
	if err != nil {
		log.Printf("Physics: batch broad-phase failed, using CPU: %v", err)
		return nil, false
	}

	cands := make([][]ColliderID, len(boxes))
	for _, p := range pairs {
		q, t := int(p[0]), int(p[1])
		if q >= len(boxes) || t >= len(ids) {
			continue
		}
		cands[q] = append(cands[q], ids[t])
	}
	return cands, true
}

// candidates gathers colliders whose bounds overlap box. Must hold the read lock.
func (w *World) candidates(box AABB) []ColliderID {
	seen := make(map[ColliderID]struct{})
	var out []ColliderID
	add := func(id ColliderID) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		if w.bounds[id].Intersects(box) {
			out = append(out, id)
		}
	}

	lo, hi := posToCell(box.Min), posToCell(box.Max)
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				for _, id := range w.grid[CellKey{x, y, z}] {
					add(id)
				}
			}
		}
	}
	for _, id := range w.oversized {
		add(id)
	}
	return out
}

// narrowPhase runs exact shape tests. Must hold the read lock.
func (w *World) narrowPhase(query OBB, cands []ColliderID, filter QueryFilter) []ColliderID {
	var hits []ColliderID
	for _, id := range cands {
		c, ok := w.colliders[id]
		if !ok || !filter.accepts(c) {
			continue
		}
		if c.Shape.IntersectsOBB(query.InLocalSpace(w.colliderPose(c))) {
			hits = append(hits, id)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i] < hits[j] })
	return hits
}
