package observer

import (
	"buoyancy3d/internal/config"
	"buoyancy3d/internal/sim"
)

// Version is the observer protocol version.
const Version = "0.1"

// SubscribeMsg is the first client message on /v1/ws. It may be re-sent to
// change the body filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Bodies restricts TICK messages to these body names. Empty means all.
	Bodies []string `json:"bodies,omitempty"`
}

// BootstrapResponse is served on GET /v1/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	Scene           string        `json:"scene"`
	Tick            uint64        `json:"tick"`
	Params          config.Config `json:"params"`
}

// TickMsg is sent to every subscriber after each tick.
type TickMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Report          sim.TickReport `json:"report"`
}
