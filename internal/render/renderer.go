// Package render draws the simulation with raylib: water surface, meshes,
// voxel grids colored by state, and collider bounds.
package render

import (
	"math"

	"buoyancy3d/internal/mesh"
	"buoyancy3d/internal/mesh/rlmesh"
	"buoyancy3d/internal/physics"
	"buoyancy3d/internal/sim"
	"buoyancy3d/internal/voxel"
	"buoyancy3d/internal/world"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	nearPlane float32 = 0.1
	farPlane  float32 = 1000.0
)

type Options struct {
	Meshes bool
	Voxels bool
	Bounds bool
	Water  bool
	// WaterExtent is the half width of the drawn water patch.
	WaterExtent float32
	// WaterStep is the spacing of water surface samples.
	WaterStep float32
}

func DefaultOptions() Options {
	return Options{
		Meshes:      true,
		Voxels:      true,
		Water:       true,
		WaterExtent: 40,
		WaterStep:   2,
	}
}

// Stats counts what the last Draw call emitted.
type Stats struct {
	VoxelsDrawn  int
	VoxelsCulled int
	Triangles    int
}

type Renderer struct {
	Options  Options
	Stats    Stats
	// Selected body gets its collider bounds drawn regardless of Options.Bounds.
	Selected physics.BodyID

	frustum Frustum
	water   rl.Color
}

func NewRenderer() *Renderer {
	return &Renderer{
		Options: DefaultOptions(),
		water:   rl.NewColor(40, 110, 200, 110),
	}
}

// Draw renders one frame's 3D content. Call between BeginMode3D and EndMode3D.
func (r *Renderer) Draw(cam rl.Camera3D, aspect float32, sys *sim.System, pop *world.Populated) {
	r.Stats = Stats{}
	r.frustum = FrustumFromMatrix(ViewProjection(
		rlmesh.FromVec3(cam.Position), rlmesh.FromVec3(cam.Target), rlmesh.FromVec3(cam.Up),
		cam.Fovy, aspect, nearPlane, farPlane,
	))

	if pop != nil {
		for _, st := range pop.Static {
			color := LookupColor(st.Color, rl.LightGray)
			if r.Options.Meshes && st.Mesh != nil {
				r.drawMesh(st.Mesh, st.Pose, color)
			} else if st.Mesh == nil {
				r.drawColliders(sys, st.Colliders, color)
			}
		}
	}

	for _, b := range sys.Scene.Bodies() {
		rb := sys.World.Body(b.ID)
		if rb == nil {
			continue
		}
		xf := rb.Transform
		color := rl.Orange
		if pop != nil {
			color = LookupColor(pop.Colors[b.ID], rl.Orange)
		}
		if r.Options.Meshes && !r.Options.Voxels {
			r.drawMesh(b.Mesh, xf, color)
		} else if r.Options.Meshes {
			r.drawMeshWires(b.Mesh, xf, rl.Fade(color, 0.6))
		}
		if r.Options.Meshes && b.IsCube() {
			s := b.CubeSize
			withTransform(xf, func() {
				rl.DrawCubeWires(rl.Vector3{}, s, s, s, color)
			})
		}
		if r.Options.Voxels && b.Grid != nil {
			r.drawGrid(sys, b.Grid.Voxels, b.Grid.VoxelSize, xf)
		}
		if (r.Options.Bounds || b.ID == r.Selected) && b.Collider != 0 {
			r.drawColliders(sys, []physics.ColliderID{b.Collider}, rl.Yellow)
		}
	}

	if r.Options.Water {
		r.drawWater(sys, cam.Target)
	}
}

func (r *Renderer) drawGrid(sys *sim.System, voxels []voxel.Voxel, size float32, xf physics.Transform) {
	radius := size * 0.87
	withTransform(xf, func() {
		for _, v := range voxels {
			center := xf.Apply(v.LocalOffset)
			if !r.frustum.ContainsSphere(center, radius) {
				r.Stats.VoxelsCulled++
				continue
			}
			kind := Classify(v.Solid, center, size, sys.Water)
			rl.DrawCubeWires(rlmesh.Vec3(v.LocalOffset), size, size, size, kind.Color())
			r.Stats.VoxelsDrawn++
		}
	})
}

func (r *Renderer) drawMesh(m *mesh.Mesh, xf physics.Transform, color rl.Color) {
	if m == nil {
		return
	}
	withTransform(xf, func() {
		forEachTriangle(m, func(a, b, c mgl32.Vec3) {
			va, vb, vc := rlmesh.Vec3(a), rlmesh.Vec3(b), rlmesh.Vec3(c)
			// Both windings so open meshes show from either side
			rl.DrawTriangle3D(va, vb, vc, color)
			rl.DrawTriangle3D(va, vc, vb, color)
			r.Stats.Triangles++
		})
	})
	r.drawMeshWires(m, xf, rl.Fade(rl.Black, 0.3))
}

func (r *Renderer) drawMeshWires(m *mesh.Mesh, xf physics.Transform, color rl.Color) {
	if m == nil {
		return
	}
	withTransform(xf, func() {
		forEachTriangle(m, func(a, b, c mgl32.Vec3) {
			va, vb, vc := rlmesh.Vec3(a), rlmesh.Vec3(b), rlmesh.Vec3(c)
			rl.DrawLine3D(va, vb, color)
			rl.DrawLine3D(vb, vc, color)
			rl.DrawLine3D(vc, va, color)
		})
	})
}

func (r *Renderer) drawColliders(sys *sim.System, ids []physics.ColliderID, color rl.Color) {
	for _, id := range ids {
		box, ok := sys.World.ColliderBounds(id)
		if !ok {
			continue
		}
		rl.DrawBoundingBox(rl.BoundingBox{Min: rlmesh.Vec3(box.Min), Max: rlmesh.Vec3(box.Max)}, color)
	}
}

// drawWater tessellates the surface around focus.
func (r *Renderer) drawWater(sys *sim.System, focus rl.Vector3) {
	ext, step := r.Options.WaterExtent, r.Options.WaterStep
	if ext <= 0 || step <= 0 {
		return
	}
	cx := float32(math.Round(float64(focus.X/step))) * step
	cz := float32(math.Round(float64(focus.Z/step))) * step
	at := func(x, z float32) rl.Vector3 {
		return rl.Vector3{X: x, Y: sys.Water.HeightAt(x, z), Z: z}
	}

	rl.DisableBackfaceCulling()
	defer rl.EnableBackfaceCulling()
	for x := cx - ext; x < cx+ext; x += step {
		for z := cz - ext; z < cz+ext; z += step {
			p00, p10 := at(x, z), at(x+step, z)
			p01, p11 := at(x, z+step), at(x+step, z+step)
			rl.DrawTriangle3D(p00, p01, p11, r.water)
			rl.DrawTriangle3D(p00, p11, p10, r.water)
		}
	}
}

// withTransform draws fn in xf's frame.
func withTransform(xf physics.Transform, fn func()) {
	axis, angle := axisAngle(xf.Rotation)
	rl.PushMatrix()
	rl.Translatef(xf.Position.X(), xf.Position.Y(), xf.Position.Z())
	if angle != 0 {
		rl.Rotatef(angle, axis.X(), axis.Y(), axis.Z())
	}
	fn()
	rl.PopMatrix()
}

// axisAngle returns q's rotation axis and angle in degrees.
func axisAngle(q mgl32.Quat) (mgl32.Vec3, float32) {
	q = q.Normalize()
	w := q.W
	if w > 1 {
		w = 1
	} else if w < -1 {
		w = -1
	}
	angle := 2 * float32(math.Acos(float64(w)))
	s := float32(math.Sqrt(float64(1 - w*w)))
	if s < 1e-6 {
		return mgl32.Vec3{0, 1, 0}, 0
	}
	return q.V.Mul(1 / s), mgl32.RadToDeg(angle)
}

func forEachTriangle(m *mesh.Mesh, fn func(a, b, c mgl32.Vec3)) {
	pos := m.Positions
	if m.Indices == nil {
		for i := 0; i+2 < len(pos); i += 3 {
			fn(pos[i], pos[i+1], pos[i+2])
		}
		return
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		a, b, c := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		if int(a) >= len(pos) || int(b) >= len(pos) || int(c) >= len(pos) {
			continue
		}
		fn(pos[a], pos[b], pos[c])
	}
}
