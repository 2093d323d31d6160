package sim

import (
	"fmt"
	"time"

	"buoyancy3d/internal/physics"

	"github.com/go-gl/mathgl/mgl32"
)

// TickReport summarises one Tick. It is published to OnTick listeners and
// serialised as-is by the observer.
type TickReport struct {
	Tick        uint64        `json:"tick"`
	Time        float64       `json:"time"`
	Bodies      []BodyReport  `json:"bodies"`
	Initialized int           `json:"initialized"`
	Failed      int           `json:"failed"`
	Refreshed   int           `json:"refreshed"`
	Duration    time.Duration `json:"duration_ns"`
}

// BodyReport is one buoyant body's state after a tick. Force and Torque are the
// accumulator contents just before integration.
type BodyReport struct {
	ID              physics.BodyID `json:"id"`
	Name            string         `json:"name"`
	State           string         `json:"state"`
	Voxels          int            `json:"voxels"`
	Solid           int            `json:"solid"`
	Eligible        int            `json:"eligible"`
	SubmergedVolume float32        `json:"submerged_volume"`
	Buoyancy        mgl32.Vec3     `json:"buoyancy"`
	Force           mgl32.Vec3     `json:"force"`
	Torque          mgl32.Vec3     `json:"torque"`
	Position        mgl32.Vec3     `json:"position"`
	Velocity        mgl32.Vec3     `json:"velocity"`
}

// Body returns the report for id, if present.
func (r TickReport) Body(id physics.BodyID) (BodyReport, bool) {
	for _, b := range r.Bodies {
		if b.ID == id {
			return b, true
		}
	}
	return BodyReport{}, false
}

func (b BodyReport) String() string {
	return fmt.Sprintf("%s [%s] voxels=%d solid=%d submerged=%.3f lift=%.1f pos=(%.2f, %.2f, %.2f)",
		b.Name, b.State, b.Voxels, b.Solid, b.SubmergedVolume, b.Buoyancy.Y(),
		b.Position.X(), b.Position.Y(), b.Position.Z())
}
