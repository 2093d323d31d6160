// Headless buoyancy simulation: loads a scene, ticks it, and optionally
// indexes, snapshots and streams the run.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"buoyancy3d/internal/buoyancy"
	"buoyancy3d/internal/compute"
	"buoyancy3d/internal/config"
	"buoyancy3d/internal/persistence/indexdb"
	"buoyancy3d/internal/persistence/snapshot"
	"buoyancy3d/internal/sim"
	"buoyancy3d/internal/transport/observer"
	"buoyancy3d/internal/world"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config yaml (default: built-in parameters)")
		scenePath   = flag.String("scene", "scenes/harbor.json", "scene file")
		ticks       = flag.Int("ticks", 600, "ticks to run (0 runs until interrupted)")
		dt          = flag.Float64("dt", 0, "seconds per tick (default: 1/tick_rate_hz)")
		mode        = flag.String("mode", "", "force mode override: per-voxel or clamped-resultant")
		every       = flag.Int("every", 60, "log body reports every N ticks (0 disables)")
		dbPath      = flag.String("db", "", "sqlite index path (empty disables)")
		restorePath = flag.String("restore", "", "snapshot to restore grids and poses from")
		snapPath    = flag.String("snapshot", "", "write a snapshot here when the run ends")
		savePath    = flag.String("save_scene", "", "write the final scene here when the run ends")
		observe     = flag.Bool("observe", false, "serve the observer websocket on config observer.addr")
		realtime    = flag.Bool("realtime", false, "pace ticks to wall clock")
		gpu         = flag.Bool("gpu", false, "use the GPU broad phase for solidity queries")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[sim] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatalf("config: %v", err)
		}
	}
	if *mode != "" {
		cfg.ForceMode = *mode
		if _, err := buoyancy.ParseMode(cfg.ForceMode); err != nil {
			logger.Fatalf("mode: %v", err)
		}
	}

	sys, err := sim.New(cfg, nil, logger)
	if err != nil {
		logger.Fatalf("sim: %v", err)
	}
	sys.OnBodyFailed.AddListener(func(f sim.BodyFailure) {
		logger.Printf("body %q failed: %v", f.Body.Name, f.Err)
	})

	sf, err := world.LoadScene(*scenePath)
	if err != nil {
		logger.Fatalf("scene: %v", err)
	}
	pop, err := world.Populate(sys, sf)
	if err != nil {
		logger.Fatalf("populate: %v", err)
	}
	logger.Printf("scene %q: %d bodies, %d static objects", pop.Name, len(pop.Bodies), len(pop.Static))

	if *gpu {
		if bp := initGPU(logger); bp != nil {
			sys.World.SetBroadPhase(bp)
			defer bp.Release()
		}
	}

	if *restorePath != "" {
		snap, err := snapshot.ReadSnapshot(*restorePath)
		if err != nil {
			logger.Fatalf("restore: %v", err)
		}
		n, err := snapshot.Restore(sys, snap)
		if err != nil {
			logger.Fatalf("restore: %v", err)
		}
		logger.Printf("restored %d of %d bodies from tick %d", n, len(snap.Bodies), snap.Header.Tick)
	}

	var idx *indexdb.Index
	if *dbPath != "" {
		if idx, err = indexdb.Open(*dbPath, logger); err != nil {
			logger.Fatalf("indexdb: %v", err)
		}
		sys.OnTick.AddListener(idx.RecordTick)
		defer func() {
			st := idx.Stats()
			if err := idx.Close(); err != nil {
				logger.Printf("indexdb close: %v", err)
			}
			logger.Printf("indexdb: dropped %d ticks, %d write errors", st.DropTickTotal, st.WriteErrorTotal)
		}()
	}

	ctx, cancel := signalContext()
	defer cancel()

	if *observe {
		obs := observer.NewServer(cfg, pop.Name, logger)
		sys.OnTick.AddListener(obs.Publish)
		srv := &http.Server{
			Addr:              cfg.Observer.Addr,
			Handler:           obs.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("observer listening on %s", cfg.Observer.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("observer: %v", err)
			}
		}()
		defer func() {
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
	}

	step := float32(*dt)
	if step <= 0 {
		step = 1 / float32(cfg.TickRateHz)
	}

	var pace <-chan time.Time
	if *realtime {
		ticker := time.NewTicker(time.Duration(float64(step) * float64(time.Second)))
		defer ticker.Stop()
		pace = ticker.C
	}

	start := time.Now()
	var busy time.Duration
	run := 0
loop:
	for *ticks == 0 || run < *ticks {
		if pace != nil {
			select {
			case <-ctx.Done():
				break loop
			case <-pace:
			}
		} else if ctx.Err() != nil {
			break
		}

		report := sys.Tick(step)
		busy += report.Duration
		run++
		if *every > 0 && report.Tick%uint64(*every) == 0 {
			logger.Printf("tick %d t=%.2fs (%v)", report.Tick, report.Time, report.Duration.Round(time.Microsecond))
			for _, b := range report.Bodies {
				logger.Printf("  %s", b)
			}
		}
	}
	if run > 0 {
		logger.Printf("ran %d ticks in %v (avg tick %v)", run, time.Since(start).Round(time.Millisecond), (busy / time.Duration(run)).Round(time.Microsecond))
	}

	if *snapPath != "" {
		snap := snapshot.Capture(sys, pop.Name)
		if err := snapshot.WriteSnapshot(*snapPath, snap); err != nil {
			logger.Printf("snapshot: %v", err)
		} else {
			logger.Printf("snapshot: %d bodies at tick %d -> %s", len(snap.Bodies), snap.Header.Tick, *snapPath)
			idx.RecordSnapshot(*snapPath, snap)
		}
	}

	if *savePath != "" {
		if err := world.SaveScene(*savePath, world.Capture(sys, pop)); err != nil {
			logger.Printf("save scene: %v", err)
		}
	}
}

// initGPU returns nil when no adapter is available; the world then stays on the CPU.
func initGPU(logger *log.Logger) *compute.BroadPhase {
	info, err := compute.Initialize()
	if err != nil {
		logger.Printf("Compute shaders unavailable: %v", err)
		return nil
	}
	logger.Printf("Compute: %s", info)
	bp, err := compute.NewBroadPhase(1 << 20)
	if err != nil {
		logger.Printf("GPU broad phase unavailable: %v", err)
		return nil
	}
	return bp
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
