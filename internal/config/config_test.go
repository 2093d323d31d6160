package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"buoyancy3d/internal/buoyancy"
	"buoyancy3d/internal/voxel"
	"buoyancy3d/internal/water"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.VoxelSize != 0.8 {
		t.Errorf("Expected voxel size 0.8, got %v", cfg.VoxelSize)
	}
	if cfg.Gravity != 9.81 {
		t.Errorf("Expected gravity 9.81, got %v", cfg.Gravity)
	}
	if cfg.Water.Height != water.DefaultHeight {
		t.Errorf("Expected water height %v, got %v", water.DefaultHeight, cfg.Water.Height)
	}
	mode, err := cfg.Mode()
	if err != nil || mode != buoyancy.ModePerVoxel {
		t.Errorf("Expected per-voxel default mode, got %v (%v)", mode, err)
	}
	if _, ok := cfg.Sampler().(water.Flat); !ok {
		t.Errorf("Expected flat water by default, got %T", cfg.Sampler())
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
voxel_size: 0.5
force_mode: clamped-resultant
limits:
  max_cells_per_axis: 32
  overflow: clamp
water:
  height: 1.5
  waves:
    - amplitude: 0.3
      wavelength: 12
      speed: 2
      direction: [1, 1]
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.VoxelSize != 0.5 {
		t.Errorf("Expected 0.5, got %v", cfg.VoxelSize)
	}
	if cfg.Gravity != 9.81 {
		t.Errorf("Expected untouched gravity 9.81, got %v", cfg.Gravity)
	}
	if mode, _ := cfg.Mode(); mode != buoyancy.ModeClampedResultant {
		t.Errorf("Expected clamped-resultant, got %v", mode)
	}
	lim, err := cfg.VoxelLimits()
	if err != nil {
		t.Fatalf("VoxelLimits failed: %v", err)
	}
	if lim.MaxCellsPerAxis != 32 || lim.Overflow != voxel.OverflowClamp {
		t.Errorf("Expected 32 cells clamped, got %+v", lim)
	}
	if lim.MaxVoxels != voxel.DefaultLimits().MaxVoxels {
		t.Errorf("Expected default max voxels kept, got %d", lim.MaxVoxels)
	}
	waves, ok := cfg.Sampler().(*water.Waves)
	if !ok {
		t.Fatalf("Expected *water.Waves, got %T", cfg.Sampler())
	}
	if waves.Base != 1.5 || len(waves.Components) != 1 {
		t.Errorf("Expected base 1.5 with one wave, got %v with %d", waves.Base, len(waves.Components))
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative voxel size", "voxel_size: -1\n"},
		{"zero gravity", "gravity: 0\n"},
		{"unknown mode", "force_mode: sideways\n"},
		{"unknown key", "voxel_sise: 0.5\n"},
		{"bad overflow", "limits:\n  overflow: explode\n"},
		{"no voxel cap", "limits:\n  max_cells_per_axis: 0\n  max_voxels: 0\n"},
		{"wave without wavelength", "water:\n  waves:\n    - amplitude: 1\n"},
		{"not yaml", "voxel_size: [\n"},
	}
	for _, tt := range tests {
		if _, err := Parse([]byte(tt.yaml)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestParseEmptyIsDefault(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.VoxelSize != Default().VoxelSize || cfg.Workers != Default().Workers {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	if err := os.WriteFile(path, []byte("workers: 2\ntick_rate_hz: 50\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workers != 2 {
		t.Errorf("Expected 2 workers, got %d", cfg.Workers)
	}
	if cfg.TickSeconds() != 0.02 {
		t.Errorf("Expected 0.02s ticks, got %v", cfg.TickSeconds())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("workers: 0\n"), 0o644)
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Errorf("Expected error naming the file, got %v", err)
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "buoyancy.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.FluidDensity != 1000 || cfg.VoxelSize != 0.5 {
		t.Errorf("Expected SI fluid density and 0.5 voxels, got %v and %v", cfg.FluidDensity, cfg.VoxelSize)
	}
	if cfg.RefreshEveryTicks != 30 {
		t.Errorf("Expected refresh every 30 ticks, got %d", cfg.RefreshEveryTicks)
	}
	lim, err := cfg.VoxelLimits()
	if err != nil || lim.Overflow != voxel.OverflowClamp {
		t.Errorf("Expected clamp overflow, got %v (%v)", lim.Overflow, err)
	}
	if _, ok := cfg.Sampler().(*water.Waves); !ok {
		t.Errorf("Expected waves, got %T", cfg.Sampler())
	}
}
