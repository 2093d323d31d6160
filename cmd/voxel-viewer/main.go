// Interactive viewer: runs a scene and draws voxel grids colored by solidity
// and submersion.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"buoyancy3d/internal/buoyancy"
	"buoyancy3d/internal/camera"
	"buoyancy3d/internal/config"
	"buoyancy3d/internal/mesh/rlmesh"
	"buoyancy3d/internal/persistence/snapshot"
	"buoyancy3d/internal/physics"
	"buoyancy3d/internal/render"
	"buoyancy3d/internal/sim"
	"buoyancy3d/internal/water"
	"buoyancy3d/internal/world"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"
)

const maxStepsPerFrame = 4

type viewer struct {
	sys      *sim.System
	pop      *world.Populated
	cam      *camera.OrbitCamera
	renderer *render.Renderer
	logger   *log.Logger

	step     float32
	accum    float32
	paused   bool
	debug    bool
	selected physics.BodyID
	last     sim.TickReport
	snapPath string
	status   string

	// Frame timing (ms)
	tickMs float64
	drawMs float64
}

func main() {
	var (
		configPath = flag.String("config", "", "path to config yaml")
		scenePath  = flag.String("scene", "scenes/harbor.json", "scene file")
		modelPath  = flag.String("model", "", "extra model (obj, gltf, iqm) dropped in as a buoyant body")
		snapPath   = flag.String("snapshot", "data/viewer.snap.zst", "snapshot path for the S key")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[viewer] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatalf("config: %v", err)
		}
	}
	sys, err := sim.New(cfg, nil, logger)
	if err != nil {
		logger.Fatalf("sim: %v", err)
	}
	sf, err := world.LoadScene(*scenePath)
	if err != nil {
		logger.Fatalf("scene: %v", err)
	}
	pop, err := world.Populate(sys, sf)
	if err != nil {
		logger.Fatalf("populate: %v", err)
	}

	rl.SetConfigFlags(rl.FlagWindowHighdpi | rl.FlagMsaa4xHint | rl.FlagWindowResizable)
	rl.InitWindow(1280, 720, "Voxel Buoyancy - "+pop.Name)
	defer rl.CloseWindow()
	rl.SetTargetFPS(120)

	// WebGPU is set up after the GL context exists
	release := initializeCompute(sys, logger)
	defer release()

	if *modelPath != "" {
		if err := addModel(sys, pop, *modelPath, cfg.Water.Height+4); err != nil {
			logger.Printf("model: %v", err)
		}
	}

	v := &viewer{
		sys:      sys,
		pop:      pop,
		cam:      camera.New(mgl32.Vec3{0, cfg.Water.Height, 0}, 30),
		renderer: render.NewRenderer(),
		logger:   logger,
		step:     1 / float32(cfg.TickRateHz),
		snapPath: *snapPath,
	}
	for !rl.WindowShouldClose() {
		v.Update()
		v.Draw()
	}
}

// addModel loads a model file and adds it as a buoyant body above the water.
func addModel(sys *sim.System, pop *world.Populated, path string, height float32) error {
	model := rl.LoadModel(path)
	defer rl.UnloadModel(model)
	m := rlmesh.FromModel(model)
	if len(m.Positions) == 0 {
		return fmt.Errorf("%s: no geometry", path)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	spec := sys.NewBodySpec(name, m)
	spec.Transform.Position = mgl32.Vec3{0, height, 0}
	b, err := sys.AddBody(spec)
	if err != nil {
		return err
	}
	pop.Bodies = append(pop.Bodies, b)
	pop.Colors[b.ID] = "Gold"
	return nil
}

func (v *viewer) Update() {
	if !v.overPanel() {
		v.cam.Update()
	}

	if rl.IsMouseButtonPressed(rl.MouseLeftButton) && !v.overPanel() {
		v.pick()
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		v.paused = !v.paused
	}
	if rl.IsKeyPressed(rl.KeyF1) {
		v.debug = !v.debug
	}
	if rl.IsKeyPressed(rl.KeyR) {
		if v.selected != 0 {
			v.revoxelize(v.selected)
		} else {
			v.revoxelizeAll()
		}
	}
	if rl.IsKeyPressed(rl.KeyS) {
		v.saveSnapshot()
	}

	start := time.Now()
	if v.paused {
		if rl.IsKeyPressed(rl.KeyN) {
			v.last = v.sys.Tick(v.step)
		}
	} else {
		v.accum += rl.GetFrameTime()
		for n := 0; v.accum >= v.step && n < maxStepsPerFrame; n++ {
			v.last = v.sys.Tick(v.step)
			v.accum -= v.step
		}
		// Drop backlog rather than spiral when ticks are slower than frames
		if v.accum > v.step {
			v.accum = 0
		}
	}
	v.tickMs = float64(time.Since(start).Microseconds()) / 1000.0
}

// pick selects the body under the mouse. Static obstacles clear the selection.
func (v *viewer) pick() {
	ray := rl.GetScreenToWorldRay(rl.GetMousePosition(), v.cam.GetRaylibCamera())
	hit, ok := v.sys.World.Raycast(rlmesh.FromVec3(ray.Position), rlmesh.FromVec3(ray.Direction), 1000)
	if !ok || v.sys.Scene.Body(hit.Body) == nil {
		v.selected = 0
		v.renderer.Selected = 0
		return
	}
	v.selected = hit.Body
	v.renderer.Selected = hit.Body
	v.status = fmt.Sprintf("Selected %s at %.2f m", v.sys.Scene.Body(hit.Body).Name, hit.Distance)
}

func (v *viewer) Draw() {
	cam3d := v.cam.GetRaylibCamera()
	aspect := float32(rl.GetScreenWidth()) / float32(max(rl.GetScreenHeight(), 1))

	rl.BeginDrawing()
	rl.ClearBackground(rl.NewColor(20, 20, 30, 255))

	drawStart := time.Now()
	rl.BeginMode3D(cam3d)
	rl.DrawGrid(40, 1)
	v.renderer.Draw(cam3d, aspect, v.sys, v.pop)
	rl.EndMode3D()
	v.drawMs = float64(time.Since(drawStart).Microseconds()) / 1000.0

	v.DrawUI()
	rl.EndDrawing()
}

func (v *viewer) panelBounds() rl.Rectangle {
	return rl.Rectangle{X: float32(rl.GetScreenWidth()) - 230, Y: 10, Width: 220, Height: 260}
}

func (v *viewer) overPanel() bool {
	return rl.CheckCollisionPointRec(rl.GetMousePosition(), v.panelBounds())
}

func (v *viewer) DrawUI() {
	rl.DrawText("Right drag orbit, middle drag pan, wheel zoom", 10, 10, 20, rl.DarkGray)
	rl.DrawText("Click select, Space pause, N step, R revoxelize, S snapshot, F1 debug", 10, 35, 20, rl.DarkGray)
	rl.DrawFPS(10, 60)

	state := "running"
	if v.paused {
		state = "paused"
	}
	rl.DrawText(fmt.Sprintf("Tick %d  t=%.2fs  %s  mode %s", v.last.Tick, v.last.Time, state, v.sys.Mode()), 10, 85, 18, rl.RayWhite)

	y := int32(110)
	for i, b := range v.last.Bodies {
		if i == 8 {
			rl.DrawText(fmt.Sprintf("... %d more", len(v.last.Bodies)-i), 10, y, 16, rl.Gray)
			break
		}
		color := rl.LightGray
		if b.ID == v.selected {
			color = rl.Yellow
		}
		rl.DrawText(b.String(), 10, y, 16, color)
		y += 20
	}
	if v.status != "" {
		rl.DrawText(v.status, 10, int32(rl.GetScreenHeight())-30, 18, rl.Yellow)
	}

	v.drawPanel()

	if v.debug {
		st := v.renderer.Stats
		y += 10
		rl.DrawText(fmt.Sprintf("Voxels drawn %d, culled %d, triangles %d", st.VoxelsDrawn, st.VoxelsCulled, st.Triangles), 10, y, 16, rl.Green)
		rl.DrawText(fmt.Sprintf("Tick:  %.2f ms (sim %v)", v.tickMs, v.last.Duration.Round(time.Microsecond)), 10, y+20, 16, rl.Green)
		rl.DrawText(fmt.Sprintf("Draw:  %.2f ms", v.drawMs), 10, y+40, 16, rl.Green)
		rl.DrawText(fmt.Sprintf("Total: %.2f ms", v.tickMs+v.drawMs), 10, y+60, 16, rl.Lime)
	}
}

func (v *viewer) drawPanel() {
	p := v.panelBounds()
	rl.DrawRectangleRec(p, rl.Fade(rl.Black, 0.6))
	x, y := p.X+10, p.Y+10
	row := func(h float32) rl.Rectangle {
		r := rl.Rectangle{X: x, Y: y, Width: 16, Height: 16}
		y += h
		return r
	}

	o := &v.renderer.Options
	o.Meshes = gui.CheckBox(row(24), "Meshes", o.Meshes)
	o.Voxels = gui.CheckBox(row(24), "Voxels", o.Voxels)
	o.Bounds = gui.CheckBox(row(24), "Collider bounds", o.Bounds)
	o.Water = gui.CheckBox(row(24), "Water", o.Water)

	clamped := v.sys.Mode() == buoyancy.ModeClampedResultant
	if c := gui.CheckBox(row(30), "Clamped forces", clamped); c != clamped {
		if c {
			v.sys.SetMode(buoyancy.ModeClampedResultant)
		} else {
			v.sys.SetMode(buoyancy.ModePerVoxel)
		}
	}

	if flat, ok := v.sys.Water.(water.Flat); ok {
		r := row(30)
		r.X += 50
		r.Width = 110
		h := gui.Slider(r, "Water", fmt.Sprintf("%.1f", flat.Height), flat.Height, -10, 20)
		if h != flat.Height {
			v.sys.Water = water.Flat{Height: h}
		}
	}

	label := "Pause"
	if v.paused {
		label = "Resume"
	}
	if gui.Button(rl.Rectangle{X: x, Y: y, Width: 95, Height: 24}, label) {
		v.paused = !v.paused
	}
	if gui.Button(rl.Rectangle{X: x + 105, Y: y, Width: 95, Height: 24}, "Revoxelize") {
		v.revoxelizeAll()
	}
	y += 32
	if gui.Button(rl.Rectangle{X: x, Y: y, Width: 200, Height: 24}, "Save snapshot") {
		v.saveSnapshot()
	}
}

func (v *viewer) revoxelizeAll() {
	n := 0
	for _, b := range v.sys.Scene.Bodies() {
		if b.Buoyant && v.sys.Revoxelize(b.ID) {
			n++
		}
	}
	v.status = fmt.Sprintf("Revoxelizing %d bodies", n)
}

func (v *viewer) revoxelize(id physics.BodyID) {
	if v.sys.Revoxelize(id) {
		v.status = fmt.Sprintf("Revoxelizing %s", v.sys.Scene.Body(id).Name)
	}
}

func (v *viewer) saveSnapshot() {
	snap := snapshot.Capture(v.sys, v.pop.Name)
	if err := snapshot.WriteSnapshot(v.snapPath, snap); err != nil {
		v.status = fmt.Sprintf("Snapshot failed: %v", err)
		v.logger.Print(v.status)
		return
	}
	v.status = fmt.Sprintf("Saved %d bodies to %s", len(snap.Bodies), v.snapPath)
	v.logger.Print(v.status)
}
