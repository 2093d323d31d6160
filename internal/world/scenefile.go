// Package world loads scene files and populates a simulation from them.
package world

import (
	"encoding/json"
	"fmt"
	"os"

	"buoyancy3d/internal/mesh"

	"github.com/go-gl/mathgl/mgl32"
)

// --- JSON types ---

type SceneFile struct {
	Name    string      `json:"name,omitempty"`
	Objects []ObjectDef `json:"objects"`
}

type ObjectDef struct {
	Name     string     `json:"name"`
	Tags     []string   `json:"tags,omitempty"`
	Position [3]float32 `json:"position"`
	Rotation [3]float32 `json:"rotation"`
	// Orientation (w, x, y, z) overrides Rotation when set. Written by Capture.
	Orientation *[4]float32       `json:"orientation,omitempty"`
	Scale       [3]float32        `json:"scale"`
	Components  []json.RawMessage `json:"components"`
}

type componentHeader struct {
	Type string `json:"type"`
}

type meshDef struct {
	Type string `json:"type"`
	// Shape is "box" (size: x, y, z), "hull" (size: length, beam, depth) or
	// "plane" (size: side). Empty with Positions set is an inline mesh.
	Shape     string       `json:"shape,omitempty"`
	Size      []float32    `json:"size,omitempty"`
	Taper     float32      `json:"taper,omitempty"`
	Positions [][3]float32 `json:"positions,omitempty"`
	Indices   []uint32     `json:"indices,omitempty"`
}

type rigidbodyDef struct {
	Type           string   `json:"type"`
	Mass           float32  `json:"mass,omitempty"`
	Density        float32  `json:"density,omitempty"`
	LinearDamping  *float32 `json:"linearDamping,omitempty"`
	AngularDamping *float32 `json:"angularDamping,omitempty"`
	UseGravity     *bool    `json:"useGravity,omitempty"`
	IsKinematic    bool     `json:"isKinematic,omitempty"`
}

type buoyancyDef struct {
	Type         string  `json:"type"`
	FluidDensity float32 `json:"fluidDensity,omitempty"`
	Enabled      *bool   `json:"enabled,omitempty"`
	// CubeSize and CellsPerAxis voxelize an object without a Mesh as a cube.
	CubeSize     float32 `json:"cubeSize,omitempty"`
	CellsPerAxis int     `json:"cellsPerAxis,omitempty"`
}

type boxColliderDef struct {
	Type   string     `json:"type"`
	Size   [3]float32 `json:"size"`
	Offset [3]float32 `json:"offset,omitempty"`
}

type sphereColliderDef struct {
	Type   string     `json:"type"`
	Radius float32    `json:"radius"`
	Offset [3]float32 `json:"offset,omitempty"`
}

type meshColliderDef struct {
	Type string `json:"type"`
}

type rendererDef struct {
	Type  string `json:"type"`
	Color string `json:"color"`
}

// --- Loading ---

func LoadScene(path string) (*SceneFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	return ParseScene(data)
}

func ParseScene(data []byte) (*SceneFile, error) {
	var sf SceneFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	return &sf, nil
}

// --- Saving ---

func SaveScene(path string, sf *SceneFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scene: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write scene: %w", err)
	}
	return nil
}

func marshalComponent(def any) json.RawMessage {
	data, err := json.Marshal(def)
	if err != nil {
		return nil
	}
	return data
}

// --- Component decoding ---

func (o *ObjectDef) scale() mgl32.Vec3 {
	// Default scale to 1 if zero
	if o.Scale == [3]float32{} {
		return mgl32.Vec3{1, 1, 1}
	}
	return mgl32.Vec3(o.Scale)
}

func (o *ObjectDef) orientation() mgl32.Quat {
	if o.Orientation != nil {
		q := o.Orientation
		return mgl32.Quat{W: q[0], V: mgl32.Vec3{q[1], q[2], q[3]}}.Normalize()
	}
	r := o.Rotation
	return mgl32.AnglesToQuat(mgl32.DegToRad(r[0]), mgl32.DegToRad(r[1]), mgl32.DegToRad(r[2]), mgl32.XYZ)
}

// objectComponents is an object's components, decoded. Unknown types are skipped.
type objectComponents struct {
	mesh      *meshDef
	rigidbody *rigidbodyDef
	buoyancy  *buoyancyDef
	boxes     []boxColliderDef
	spheres   []sphereColliderDef
	trimesh   bool
	color     string
}

func decodeComponents(o *ObjectDef) (objectComponents, error) {
	var oc objectComponents
	for _, raw := range o.Components {
		var header componentHeader
		if err := json.Unmarshal(raw, &header); err != nil {
			return oc, fmt.Errorf("object %q: %w", o.Name, err)
		}

		var err error
		switch header.Type {
		case "Mesh":
			oc.mesh = &meshDef{}
			err = json.Unmarshal(raw, oc.mesh)
		case "Rigidbody":
			oc.rigidbody = &rigidbodyDef{}
			err = json.Unmarshal(raw, oc.rigidbody)
		case "Buoyancy":
			oc.buoyancy = &buoyancyDef{}
			err = json.Unmarshal(raw, oc.buoyancy)
		case "BoxCollider":
			var def boxColliderDef
			if err = json.Unmarshal(raw, &def); err == nil {
				oc.boxes = append(oc.boxes, def)
			}
		case "SphereCollider":
			var def sphereColliderDef
			if err = json.Unmarshal(raw, &def); err == nil {
				oc.spheres = append(oc.spheres, def)
			}
		case "MeshCollider":
			oc.trimesh = true
		case "Renderer":
			var def rendererDef
			if err = json.Unmarshal(raw, &def); err == nil {
				oc.color = def.Color
			}
		}
		if err != nil {
			return oc, fmt.Errorf("object %q: %s: %w", o.Name, header.Type, err)
		}
	}
	return oc, nil
}

// build returns the mesh in object space with scale applied.
func (d *meshDef) build(scale mgl32.Vec3) (*mesh.Mesh, error) {
	var m *mesh.Mesh
	switch d.Shape {
	case "box":
		if len(d.Size) < 3 {
			return nil, fmt.Errorf("box mesh needs 3 sizes, got %d", len(d.Size))
		}
		m = mesh.Box(mgl32.Vec3{d.Size[0], d.Size[1], d.Size[2]})
	case "hull":
		if len(d.Size) < 3 {
			return nil, fmt.Errorf("hull mesh needs length, beam and depth, got %d values", len(d.Size))
		}
		m = mesh.Hull(d.Size[0], d.Size[1], d.Size[2], d.Taper)
	case "plane":
		if len(d.Size) < 1 {
			return nil, fmt.Errorf("plane mesh needs a size")
		}
		m = mesh.Plane(d.Size[0])
	case "":
		m = &mesh.Mesh{Positions: make([]mgl32.Vec3, len(d.Positions)), Indices: d.Indices}
		for i, p := range d.Positions {
			m.Positions[i] = mgl32.Vec3(p)
		}
	default:
		return nil, fmt.Errorf("unknown mesh shape %q", d.Shape)
	}
	if scale != (mgl32.Vec3{1, 1, 1}) {
		m = m.Scaled(scale)
	}
	return m, nil
}

func inlineMesh(m *mesh.Mesh) meshDef {
	def := meshDef{Type: "Mesh", Indices: m.Indices}
	def.Positions = make([][3]float32, len(m.Positions))
	for i, p := range m.Positions {
		def.Positions[i] = [3]float32(p)
	}
	return def
}
