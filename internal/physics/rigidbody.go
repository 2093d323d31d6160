package physics

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Rigidbody is a dynamic or kinematic body stepped by World.
//
// ExternalForce and ExternalTorque accumulate for one step and are cleared after
// the body is integrated. Each body is written by one caller at a time; World
// does not lock them.
type Rigidbody struct {
	ID              BodyID
	Transform       Transform
	Velocity        mgl32.Vec3
	AngularVelocity mgl32.Vec3 // radians per second, world space
	Mass            float32
	LinearDamping   float32
	AngularDamping  float32
	UseGravity      bool
	IsKinematic     bool // moves only when its transform is set

	// CenterOfMass is in body-local space.
	CenterOfMass mgl32.Vec3
	// Inertia is the diagonal of the local inertia tensor.
	Inertia mgl32.Vec3

	ExternalForce  mgl32.Vec3
	ExternalTorque mgl32.Vec3
}

func NewRigidbody(mass float32) *Rigidbody {
	return &Rigidbody{
		Transform:  IdentityTransform(),
		Mass:       mass,
		UseGravity: true,
		Inertia:    mgl32.Vec3{mass / 6, mass / 6, mass / 6}, // unit cube
	}
}

// SetBoxInertia sets the inertia tensor of a solid box of the given size.
func (r *Rigidbody) SetBoxInertia(size mgl32.Vec3) {
	x2, y2, z2 := size.X()*size.X(), size.Y()*size.Y(), size.Z()*size.Z()
	k := r.Mass / 12
	r.Inertia = mgl32.Vec3{k * (y2 + z2), k * (x2 + z2), k * (x2 + y2)}
}

// WorldCenterOfMass returns the center of mass in world space.
func (r *Rigidbody) WorldCenterOfMass() mgl32.Vec3 {
	return r.Transform.Apply(r.CenterOfMass)
}

// ApplyForce adds a force through the center of mass.
func (r *Rigidbody) ApplyForce(force mgl32.Vec3) {
	r.ExternalForce = r.ExternalForce.Add(force)
}

// ApplyForceAtPoint adds a force at a world-space point, producing torque about
// the center of mass.
func (r *Rigidbody) ApplyForceAtPoint(force, worldPoint mgl32.Vec3) {
	r.ExternalForce = r.ExternalForce.Add(force)
	arm := worldPoint.Sub(r.WorldCenterOfMass())
	r.ExternalTorque = r.ExternalTorque.Add(arm.Cross(force))
}

// Torque returns the torque accumulated this step.
func (r *Rigidbody) Torque() mgl32.Vec3 {
	return r.ExternalTorque
}

// ClearForces resets the accumulators.
func (r *Rigidbody) ClearForces() {
	r.ExternalForce = mgl32.Vec3{}
	r.ExternalTorque = mgl32.Vec3{}
}

// Integrate advances the body by dt with semi-implicit Euler and clears the
// accumulators. Kinematic and massless bodies only have their forces cleared.
func (r *Rigidbody) Integrate(dt float32, gravity mgl32.Vec3) {
	defer r.ClearForces()
	if r.IsKinematic || r.Mass <= 0 || dt <= 0 {
		return
	}

	accel := r.ExternalForce.Mul(1 / r.Mass)
	if r.UseGravity {
		accel = accel.Add(gravity)
	}
	r.Velocity = r.Velocity.Add(accel.Mul(dt)).Mul(1 / (1 + dt*r.LinearDamping))

	rot := r.Transform.rotation()
	localTorque := rot.Conjugate().Rotate(r.ExternalTorque)
	localAlpha := mgl32.Vec3{
		safeDiv(localTorque.X(), r.Inertia.X()),
		safeDiv(localTorque.Y(), r.Inertia.Y()),
		safeDiv(localTorque.Z(), r.Inertia.Z()),
	}
	alpha := rot.Rotate(localAlpha)
	r.AngularVelocity = r.AngularVelocity.Add(alpha.Mul(dt)).Mul(1 / (1 + dt*r.AngularDamping))

	// Integrate about the center of mass so off-center COMs do not drift.
	com := r.WorldCenterOfMass().Add(r.Velocity.Mul(dt))

	w := r.AngularVelocity
	spin := mgl32.Quat{W: 0, V: w}.Mul(rot).Scale(0.5 * dt)
	rot = rot.Add(spin).Normalize()

	r.Transform.Rotation = rot
	r.Transform.Position = com.Sub(rot.Rotate(mulElem(r.CenterOfMass, r.Transform.scale())))
}

func safeDiv(a, b float32) float32 {
	if b == 0 {
		return 0
	}
	return a / b
}
