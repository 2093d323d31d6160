// Package config loads the simulation parameters from YAML.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"buoyancy3d/internal/buoyancy"
	"buoyancy3d/internal/voxel"
	"buoyancy3d/internal/water"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

type Config struct {
	VoxelSize    float32 `yaml:"voxel_size" json:"voxel_size"`
	Gravity      float32 `yaml:"gravity" json:"gravity"`
	FluidDensity float32 `yaml:"fluid_density" json:"fluid_density"`
	ForceMode    string  `yaml:"force_mode" json:"force_mode"`
	Workers      int     `yaml:"workers" json:"workers"`
	TickRateHz   int     `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	// RefreshEveryTicks re-marks every grid dirty on this period. 0 refreshes
	// only after obstacles or bodies change.
	RefreshEveryTicks int `yaml:"refresh_every_ticks" json:"refresh_every_ticks"`

	Limits       Limits       `yaml:"limits" json:"limits"`
	Water        Water        `yaml:"water" json:"water"`
	BodyDefaults BodyDefaults `yaml:"body_defaults" json:"body_defaults"`
	Observer     Observer     `yaml:"observer" json:"observer"`
}

type Limits struct {
	MaxCellsPerAxis int    `yaml:"max_cells_per_axis" json:"max_cells_per_axis"`
	MaxVoxels       int    `yaml:"max_voxels" json:"max_voxels"`
	Overflow        string `yaml:"overflow" json:"overflow"`
}

type Water struct {
	Height float32 `yaml:"height" json:"height"`
	Waves  []Wave  `yaml:"waves" json:"waves,omitempty"`
}

type Wave struct {
	Amplitude  float32    `yaml:"amplitude" json:"amplitude"`
	Wavelength float32    `yaml:"wavelength" json:"wavelength"`
	Speed      float32    `yaml:"speed" json:"speed"`
	Direction  [2]float32 `yaml:"direction" json:"direction"`
}

type BodyDefaults struct {
	Mass           float32 `yaml:"mass" json:"mass"`
	Density        float32 `yaml:"density" json:"density"`
	LinearDamping  float32 `yaml:"linear_damping" json:"linear_damping"`
	AngularDamping float32 `yaml:"angular_damping" json:"angular_damping"`
}

type Observer struct {
	Addr      string `yaml:"addr" json:"addr"`
	SendQueue int    `yaml:"send_queue" json:"send_queue"`
}

// Default returns the built-in parameters.
func Default() Config {
	lim := voxel.DefaultLimits()
	return Config{
		VoxelSize:    0.8,
		Gravity:      9.81,
		FluidDensity: 1.0,
		ForceMode:    buoyancy.ModePerVoxel.String(),
		Workers:      4,
		TickRateHz:   60,
		Limits: Limits{
			MaxCellsPerAxis: lim.MaxCellsPerAxis,
			MaxVoxels:       lim.MaxVoxels,
			Overflow:        lim.Overflow.String(),
		},
		Water: Water{Height: water.DefaultHeight},
		BodyDefaults: BodyDefaults{
			Mass:           2000,
			LinearDamping:  0.8,
			AngularDamping: 0.8,
		},
		Observer: Observer{
			Addr:      "127.0.0.1:8787",
			SendQueue: 8,
		},
	}
}

// Load reads a YAML file. Keys it leaves out keep their defaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates raw YAML against the embedded schema and decodes it over Default().
func Parse(raw []byte) (Config, error) {
	if err := validate(raw); err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.Mode(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.VoxelLimits(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("config.schema.json", schemaJSON)
	})
	return compiledSchema, schemaErr
}

func validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if doc == nil {
		// Empty file: all defaults
		return nil
	}
	// The validator expects encoding/json shaped values.
	js, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	var v any
	if err := json.Unmarshal(js, &v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	s, err := schema()
	if err != nil {
		return fmt.Errorf("config: schema: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("config: %s", strings.TrimSpace(err.Error()))
	}
	return nil
}

// Mode returns the configured force application mode.
func (c Config) Mode() (buoyancy.Mode, error) {
	return buoyancy.ParseMode(c.ForceMode)
}

// VoxelLimits returns the voxelization caps.
func (c Config) VoxelLimits() (voxel.Limits, error) {
	of, err := voxel.ParseOverflow(c.Limits.Overflow)
	if err != nil {
		return voxel.Limits{}, err
	}
	if c.Limits.MaxCellsPerAxis <= 0 && c.Limits.MaxVoxels <= 0 {
		return voxel.Limits{}, errors.New("config: limits need max_cells_per_axis or max_voxels")
	}
	return voxel.Limits{
		MaxCellsPerAxis: c.Limits.MaxCellsPerAxis,
		MaxVoxels:       c.Limits.MaxVoxels,
		Overflow:        of,
	}, nil
}

// Sampler builds the water surface: flat unless waves are configured.
func (c Config) Sampler() water.Sampler {
	if len(c.Water.Waves) == 0 {
		return water.Flat{Height: c.Water.Height}
	}
	waves := make([]water.Wave, len(c.Water.Waves))
	for i, w := range c.Water.Waves {
		waves[i] = water.Wave{
			Amplitude:  w.Amplitude,
			Wavelength: w.Wavelength,
			Speed:      w.Speed,
			Direction:  mgl32.Vec2(w.Direction),
		}
	}
	return water.NewWaves(c.Water.Height, waves...)
}

// TickSeconds is the fixed step length.
func (c Config) TickSeconds() float32 {
	if c.TickRateHz <= 0 {
		return 1.0 / 60
	}
	return 1 / float32(c.TickRateHz)
}
