// Stress test comparing CPU vs GPU broad phase for voxel solidity queries
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"time"

	"buoyancy3d/internal/compute"
	"buoyancy3d/internal/physics"
	"buoyancy3d/internal/voxel"

	"github.com/go-gl/mathgl/mgl32"
)

func main() {
	obstacles := flag.Int("obstacles", 2000, "static box obstacles in the world")
	iterations := flag.Int("iterations", 10, "timed runs per grid size")
	flag.Parse()

	var bp *compute.BroadPhase
	if info, err := compute.Initialize(); err != nil {
		fmt.Printf("GPU unavailable, CPU only: %v\n\n", err)
	} else {
		fmt.Printf("GPU: %s\n\n", info)
		if bp, err = compute.NewBroadPhase(1 << 22); err != nil {
			fmt.Printf("GPU broad phase unavailable, CPU only: %v\n\n", err)
			bp = nil
		} else {
			defer bp.Release()
		}
	}

	// Cells per axis; voxel counts are the cubes
	for _, cells := range []int{8, 16, 24, 32, 48, 64} {
		testGrid(cells, *obstacles, *iterations, bp)
	}
}

func testGrid(cells, obstacles, iterations int, bp *compute.BroadPhase) {
	rng := rand.New(rand.NewSource(42)) // Consistent results

	w := physics.NewWorld(9.81)
	spawnSize := float32(cells)
	for i := 0; i < obstacles; i++ {
		pos := mgl32.Vec3{
			rng.Float32()*spawnSize - spawnSize/2,
			rng.Float32()*spawnSize - spawnSize/2,
			rng.Float32()*spawnSize - spawnSize/2,
		}
		side := 0.5 + rng.Float32() // 0.5 to 1.5 wide
		shape := physics.BoxShape{Size: mgl32.Vec3{side, side, side}}
		pose := physics.IdentityTransform()
		pose.Position = pos
		if _, err := w.AddCollider(0, shape, pose); err != nil {
			fmt.Printf("%7d voxels: add collider: %v\n", cells*cells*cells, err)
			return
		}
	}

	grid, err := voxel.SubdivideCube(spawnSize, cells)
	if err != nil {
		fmt.Printf("%7d voxels: %v\n", cells*cells*cells, err)
		return
	}
	positions := make([]mgl32.Vec3, len(grid.Voxels))
	for i, v := range grid.Voxels {
		positions[i] = v.LocalOffset
	}
	shape := physics.NewCube(grid.VoxelSize)
	rot := mgl32.QuatIdent()

	run := func() (time.Duration, int) {
		w.BatchShapeIntersections(shape, positions, rot, physics.QueryFilter{}) // warm up
		start := time.Now()
		solid := 0
		for i := 0; i < iterations; i++ {
			solid = 0
			for _, hits := range w.BatchShapeIntersections(shape, positions, rot, physics.QueryFilter{}) {
				if len(hits) > 0 {
					solid++
				}
			}
		}
		return time.Since(start) / time.Duration(iterations), solid
	}

	w.SetBroadPhase(nil)
	cpuTime, cpuSolid := run()

	if bp == nil || len(positions) < physics.GPUBatchThreshold {
		fmt.Printf("%7d voxels: CPU %10v (%6d solid) | GPU n/a\n",
			len(positions), cpuTime.Round(time.Microsecond), cpuSolid)
		return
	}

	w.SetBroadPhase(bp)
	gpuTime, gpuSolid := run()

	// Calculate speedup
	speedup := float64(cpuTime) / float64(gpuTime)

	fmt.Printf("%7d voxels: CPU %10v (%6d solid) | GPU %10v (%6d solid) | %.1fx speedup\n",
		len(positions), cpuTime.Round(time.Microsecond), cpuSolid,
		gpuTime.Round(time.Microsecond), gpuSolid, speedup)
}
