package world

import (
	"fmt"

	"buoyancy3d/internal/engine"
	"buoyancy3d/internal/mesh"
	"buoyancy3d/internal/physics"
	"buoyancy3d/internal/sim"

	"github.com/go-gl/mathgl/mgl32"
)

// StaticObject is a scene object without a rigidbody: an obstacle when it has
// colliders, decoration otherwise.
type StaticObject struct {
	Name      string
	Tags      []string
	Pose      physics.Transform
	Mesh      *mesh.Mesh
	Colliders []physics.ColliderID
	Color     string
}

// Populated records what a scene file put into a simulation.
type Populated struct {
	Name   string
	Bodies []*engine.Body
	Static []StaticObject
	// Colors holds Renderer colors by body. Missing means default.
	Colors map[physics.BodyID]string

	objects []ObjectDef
	bodyAt  map[int]physics.BodyID
}

// Populate adds every object of sf to sys. Objects with a Rigidbody or Buoyancy
// component become bodies; the rest become static obstacles or decoration.
// Buoyant bodies are voxelized on the next tick.
func Populate(sys *sim.System, sf *SceneFile) (*Populated, error) {
	pop := &Populated{
		Name:    sf.Name,
		Colors:  make(map[physics.BodyID]string),
		objects: sf.Objects,
		bodyAt:  make(map[int]physics.BodyID),
	}

	for i := range sf.Objects {
		o := &sf.Objects[i]
		oc, err := decodeComponents(o)
		if err != nil {
			return pop, err
		}
		scale := o.scale()
		pose := physics.Transform{
			Position: mgl32.Vec3(o.Position),
			Rotation: o.orientation(),
			Scale:    mgl32.Vec3{1, 1, 1},
		}

		var m *mesh.Mesh
		if oc.mesh != nil {
			if m, err = oc.mesh.build(scale); err != nil {
				return pop, fmt.Errorf("object %q: %w", o.Name, err)
			}
		}

		if oc.rigidbody != nil || oc.buoyancy != nil {
			b, err := addBody(sys, o, oc, m, pose, scale)
			if err != nil {
				return pop, err
			}
			pop.Bodies = append(pop.Bodies, b)
			pop.bodyAt[i] = b.ID
			if oc.color != "" {
				pop.Colors[b.ID] = oc.color
			}
			continue
		}

		st := StaticObject{Name: o.Name, Tags: o.Tags, Pose: pose, Mesh: m, Color: oc.color}
		for _, def := range oc.boxes {
			id, err := sys.AddObstacle(boxShape(def, scale), pose.Compose(offsetPose(def.Offset, scale)))
			if err != nil {
				return pop, fmt.Errorf("object %q: %w", o.Name, err)
			}
			st.Colliders = append(st.Colliders, id)
		}
		for _, def := range oc.spheres {
			id, err := sys.AddObstacle(sphereShape(def, scale), pose.Compose(offsetPose(def.Offset, scale)))
			if err != nil {
				return pop, fmt.Errorf("object %q: %w", o.Name, err)
			}
			st.Colliders = append(st.Colliders, id)
		}
		if oc.trimesh {
			if m == nil {
				return pop, fmt.Errorf("object %q: MeshCollider needs a Mesh component", o.Name)
			}
			mc, err := physics.NewMeshCollider(m.Positions, m.Indices, mgl32.Vec3{1, 1, 1})
			if err != nil {
				return pop, fmt.Errorf("object %q: %w", o.Name, err)
			}
			id, err := sys.AddObstacle(mc, pose)
			if err != nil {
				return pop, fmt.Errorf("object %q: %w", o.Name, err)
			}
			st.Colliders = append(st.Colliders, id)
		}
		pop.Static = append(pop.Static, st)
	}
	return pop, nil
}

func addBody(sys *sim.System, o *ObjectDef, oc objectComponents, m *mesh.Mesh, pose physics.Transform, scale mgl32.Vec3) (*engine.Body, error) {
	spec := sys.NewBodySpec(o.Name, m)
	spec.Tags = o.Tags
	spec.Transform = pose
	spec.Buoyant = oc.buoyancy != nil && (oc.buoyancy.Enabled == nil || *oc.buoyancy.Enabled)
	if bd := oc.buoyancy; bd != nil {
		spec.FluidDensity = bd.FluidDensity
		if m == nil && bd.CubeSize > 0 {
			spec.CubeSize = bd.CubeSize * maxAxis(scale)
			spec.CubeCells = bd.CellsPerAxis
			if spec.CubeCells <= 0 {
				spec.CubeCells = 1
			}
		}
	}

	if rb := oc.rigidbody; rb != nil {
		if rb.Density > 0 {
			spec.Density = rb.Density
			spec.Mass = 0
		}
		if rb.Mass > 0 {
			spec.Mass = rb.Mass
		}
		if rb.LinearDamping != nil {
			spec.LinearDamping = *rb.LinearDamping
		}
		if rb.AngularDamping != nil {
			spec.AngularDamping = *rb.AngularDamping
		}
		if rb.UseGravity != nil {
			spec.UseGravity = *rb.UseGravity
		}
		spec.Kinematic = rb.IsKinematic
	}

	if !spec.Buoyant && m == nil && spec.CubeCells == 0 {
		return nil, fmt.Errorf("object %q: a rigidbody without Buoyancy needs a Mesh", o.Name)
	}

	b, err := sys.AddBody(spec)
	if err != nil {
		return nil, fmt.Errorf("object %q: %w", o.Name, err)
	}

	attached := false
	for _, def := range oc.boxes {
		if _, err := sys.World.AddCollider(b.ID, boxShape(def, scale), offsetPose(def.Offset, scale)); err != nil {
			return nil, fmt.Errorf("object %q: %w", o.Name, err)
		}
		attached = true
	}
	for _, def := range oc.spheres {
		if _, err := sys.World.AddCollider(b.ID, sphereShape(def, scale), offsetPose(def.Offset, scale)); err != nil {
			return nil, fmt.Errorf("object %q: %w", o.Name, err)
		}
		attached = true
	}
	if attached {
		sys.MarkAllDirty()
	}
	return b, nil
}

func boxShape(def boxColliderDef, scale mgl32.Vec3) physics.BoxShape {
	return physics.BoxShape{Size: mgl32.Vec3{
		def.Size[0] * scale.X(),
		def.Size[1] * scale.Y(),
		def.Size[2] * scale.Z(),
	}}
}

// sphereShape scales the radius by the largest axis.
func sphereShape(def sphereColliderDef, scale mgl32.Vec3) physics.SphereShape {
	return physics.SphereShape{Radius: def.Radius * maxAxis(scale)}
}

func maxAxis(v mgl32.Vec3) float32 {
	s := v.X()
	if v.Y() > s {
		s = v.Y()
	}
	if v.Z() > s {
		s = v.Z()
	}
	return s
}

func offsetPose(offset [3]float32, scale mgl32.Vec3) physics.Transform {
	t := physics.IdentityTransform()
	t.Position = mgl32.Vec3{offset[0] * scale.X(), offset[1] * scale.Y(), offset[2] * scale.Z()}
	return t
}

// Capture returns the scene as it stands: every object populated from the
// source file, with bodies moved to their current pose. Removed bodies are dropped.
func Capture(sys *sim.System, pop *Populated) *SceneFile {
	sf := &SceneFile{Name: pop.Name}
	for i, o := range pop.objects {
		if id, ok := pop.bodyAt[i]; ok {
			rb := sys.World.Body(id)
			if rb == nil {
				continue
			}
			q := rb.Transform.Rotation
			o.Position = [3]float32(rb.Transform.Position)
			o.Orientation = &[4]float32{q.W, q.V.X(), q.V.Y(), q.V.Z()}
		}
		sf.Objects = append(sf.Objects, o)
	}
	return sf
}

// CaptureMesh returns an object definition with the body's mesh inlined, for
// bodies that were added in code rather than from a scene file.
func CaptureMesh(sys *sim.System, b *engine.Body) ObjectDef {
	o := ObjectDef{Name: b.Name, Tags: b.Tags, Scale: [3]float32{1, 1, 1}}
	if rb := sys.World.Body(b.ID); rb != nil {
		q := rb.Transform.Rotation
		o.Position = [3]float32(rb.Transform.Position)
		o.Orientation = &[4]float32{q.W, q.V.X(), q.V.Y(), q.V.Z()}

		gravity := rb.UseGravity
		ld, ad := rb.LinearDamping, rb.AngularDamping
		o.Components = append(o.Components, marshalComponent(rigidbodyDef{
			Type:           "Rigidbody",
			Mass:           rb.Mass,
			LinearDamping:  &ld,
			AngularDamping: &ad,
			UseGravity:     &gravity,
			IsKinematic:    rb.IsKinematic,
		}))
	}
	if b.Mesh != nil {
		o.Components = append(o.Components, marshalComponent(inlineMesh(b.Mesh)))
	}
	if b.Buoyant {
		o.Components = append(o.Components, marshalComponent(buoyancyDef{
			Type:         "Buoyancy",
			FluidDensity: b.FluidDensity,
			CubeSize:     b.CubeSize,
			CellsPerAxis: b.CubeCells,
		}))
	}
	return o
}
