package engine

import (
	"fmt"

	"buoyancy3d/internal/physics"
)

// Scene is the arena of bodies, keyed by stable ID and kept in insertion order.
// Buoyant bodies added since the last DrainPending wait in a pending queue.
type Scene struct {
	Name string

	bodies  map[physics.BodyID]*Body
	order   []physics.BodyID
	pending []physics.BodyID
	queued  map[physics.BodyID]bool
}

func NewScene(name string) *Scene {
	return &Scene{
		Name:   name,
		bodies: make(map[physics.BodyID]*Body),
		queued: make(map[physics.BodyID]bool),
	}
}

// Add registers a body. Buoyant bodies are queued for initialisation.
func (s *Scene) Add(b *Body) error {
	if b == nil || b.ID == 0 {
		return fmt.Errorf("engine: body needs a non-zero id")
	}
	if _, dup := s.bodies[b.ID]; dup {
		return fmt.Errorf("engine: body %d already in scene", b.ID)
	}
	s.bodies[b.ID] = b
	s.order = append(s.order, b.ID)
	if b.Buoyant {
		s.enqueue(b.ID)
	}
	return nil
}

func (s *Scene) Remove(id physics.BodyID) {
	if _, ok := s.bodies[id]; !ok {
		return
	}
	delete(s.bodies, id)
	delete(s.queued, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for i, other := range s.pending {
		if other == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
}

// Body returns the body with the given ID, or nil.
func (s *Scene) Body(id physics.BodyID) *Body {
	return s.bodies[id]
}

// Bodies returns every body in insertion order.
func (s *Scene) Bodies() []*Body {
	out := make([]*Body, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.bodies[id])
	}
	return out
}

func (s *Scene) Len() int {
	return len(s.order)
}

func (s *Scene) FindByName(name string) *Body {
	for _, id := range s.order {
		if b := s.bodies[id]; b.Name == name {
			return b
		}
	}
	return nil
}

func (s *Scene) FindByTag(tag string) []*Body {
	var result []*Body
	for _, id := range s.order {
		if b := s.bodies[id]; b.HasTag(tag) {
			result = append(result, b)
		}
	}
	return result
}

// Requeue puts an existing body back on the pending queue, dropping its grid
// and last error. It is the only way a failed body is retried.
func (s *Scene) Requeue(id physics.BodyID) bool {
	b, ok := s.bodies[id]
	if !ok {
		return false
	}
	b.Grid = nil
	b.InitErr = nil
	s.enqueue(id)
	return true
}

// DrainPending returns the queued bodies in arrival order and clears the queue.
func (s *Scene) DrainPending() []*Body {
	out := make([]*Body, 0, len(s.pending))
	for _, id := range s.pending {
		out = append(out, s.bodies[id])
		delete(s.queued, id)
	}
	s.pending = s.pending[:0]
	return out
}

// Dequeue drops a body from the pending queue without touching it.
func (s *Scene) Dequeue(id physics.BodyID) bool {
	if !s.queued[id] {
		return false
	}
	delete(s.queued, id)
	for i, other := range s.pending {
		if other == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	return true
}

func (s *Scene) PendingCount() int {
	return len(s.pending)
}

func (s *Scene) enqueue(id physics.BodyID) {
	if s.queued[id] {
		return
	}
	s.queued[id] = true
	s.pending = append(s.pending, id)
}
