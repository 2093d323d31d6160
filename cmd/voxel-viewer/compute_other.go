//go:build !linux

package main

import (
	"log"

	"buoyancy3d/internal/compute"
	"buoyancy3d/internal/sim"
)

func initializeCompute(sys *sim.System, logger *log.Logger) func() {
	info, err := compute.Initialize()
	if err != nil {
		logger.Printf("Compute shaders unavailable: %v", err)
		return func() {}
	}
	logger.Printf("Compute: %s", info)
	bp, err := compute.NewBroadPhase(1 << 20)
	if err != nil {
		logger.Printf("GPU broad phase unavailable: %v", err)
		return func() {}
	}
	sys.World.SetBroadPhase(bp)
	return bp.Release
}
