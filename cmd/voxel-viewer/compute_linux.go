//go:build linux

package main

import (
	"log"

	"buoyancy3d/internal/sim"
)

func initializeCompute(sys *sim.System, logger *log.Logger) func() {
	// Disabled on Linux due to EGL/WebGPU conflicts with NVIDIA on X11
	logger.Println("Compute: disabled on Linux (EGL conflict workaround)")
	return func() {}
}
