// Package water provides fluid height fields sampled by the buoyancy integrator.
package water

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultHeight is the resting water level of a scene without a configured one.
const DefaultHeight = 2.0

// Sampler returns the water surface height at a world (x, z). HeightAt must be
// a pure function of position and the current simulation time, safe for
// concurrent callers.
type Sampler interface {
	HeightAt(x, z float32) float32
}

// Clocked is a sampler whose surface changes over time. The simulation calls
// SetTime once per tick, before any HeightAt call of that tick.
type Clocked interface {
	Sampler
	SetTime(seconds float64)
}

// Flat is a still water plane.
type Flat struct {
	Height float32
}

func (f Flat) HeightAt(x, z float32) float32 {
	return f.Height
}

// Wave is one directional sine component.
type Wave struct {
	Amplitude  float32
	Wavelength float32
	Speed      float32    // phase speed in units per second
	Direction  mgl32.Vec2 // travel direction on the XZ plane
}

// Waves is a base height plus a sum of directional sine waves.
type Waves struct {
	Base       float32
	Components []Wave

	time float64
}

func NewWaves(base float32, components ...Wave) *Waves {
	w := &Waves{Base: base}
	for _, c := range components {
		if c.Direction.Len() == 0 {
			c.Direction = mgl32.Vec2{1, 0}
		}
		c.Direction = c.Direction.Normalize()
		w.Components = append(w.Components, c)
	}
	return w
}

func (w *Waves) SetTime(seconds float64) {
	w.time = seconds
}

func (w *Waves) Time() float64 {
	return w.time
}

func (w *Waves) HeightAt(x, z float32) float32 {
	h := float64(w.Base)
	for _, c := range w.Components {
		if c.Wavelength <= 0 {
			continue
		}
		k := 2 * math.Pi / float64(c.Wavelength)
		d := float64(c.Direction.X())*float64(x) + float64(c.Direction.Y())*float64(z)
		h += float64(c.Amplitude) * math.Sin(k*(d-float64(c.Speed)*w.time))
	}
	return float32(h)
}
