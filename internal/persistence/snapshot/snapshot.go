// Package snapshot stores voxel grids and body poses so a run can resume
// without voxelizing again.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"buoyancy3d/internal/sim"
	"buoyancy3d/internal/voxel"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version   int     `json:"version"`
	Scene     string  `json:"scene"`
	Tick      uint64  `json:"tick"`
	Time      float64 `json:"time"`
	VoxelSize float32 `json:"voxel_size"`
}

type SnapshotV1 struct {
	Header Header   `json:"header"`
	Bodies []BodyV1 `json:"bodies"`
}

// BodyV1 is one buoyant body. Solidity is not stored; restored grids are
// reclassified on the next tick.
type BodyV1 struct {
	ID       uint64         `json:"id"`
	Name     string         `json:"name"`
	Position [3]float32     `json:"position"`
	Rotation [4]float32     `json:"rotation"` // w, x, y, z
	Velocity [3]float32     `json:"velocity"`
	Spin     [3]float32     `json:"angular_velocity"`
	Grid     voxel.GridSpec `json:"grid"`
}

// Capture records every body that has a grid.
func Capture(sys *sim.System, scene string) SnapshotV1 {
	snap := SnapshotV1{Header: Header{
		Version:   Version,
		Scene:     scene,
		Tick:      sys.TickCount(),
		Time:      sys.Elapsed(),
		VoxelSize: sys.Config().VoxelSize,
	}}
	for _, b := range sys.Scene.Bodies() {
		rb := sys.World.Body(b.ID)
		if b.Grid == nil || rb == nil {
			continue
		}
		q := rb.Transform.Rotation
		snap.Bodies = append(snap.Bodies, BodyV1{
			ID:       uint64(b.ID),
			Name:     b.Name,
			Position: [3]float32(rb.Transform.Position),
			Rotation: [4]float32{q.W, q.V.X(), q.V.Y(), q.V.Z()},
			Velocity: [3]float32(rb.Velocity),
			Spin:     [3]float32(rb.AngularVelocity),
			Grid:     b.Grid.Spec(),
		})
	}
	return snap
}

// Restore matches snapshot bodies to scene bodies by name, installs their
// grids and poses, and returns how many were restored. Bodies missing from
// the scene are skipped.
func Restore(sys *sim.System, snap SnapshotV1) (int, error) {
	if snap.Header.Version != Version {
		return 0, fmt.Errorf("snapshot: unsupported version %d", snap.Header.Version)
	}
	restored := 0
	for _, sb := range snap.Bodies {
		b := sys.Scene.FindByName(sb.Name)
		if b == nil {
			continue
		}
		grid, err := voxel.FromSpec(sb.Grid)
		if err != nil {
			return restored, fmt.Errorf("snapshot: body %q: %w", sb.Name, err)
		}
		if err := sys.RestoreGrid(b.ID, grid); err != nil {
			return restored, err
		}
		if rb := sys.World.Body(b.ID); rb != nil {
			xf := rb.Transform
			xf.Position = mgl32.Vec3(sb.Position)
			xf.Rotation = mgl32.Quat{W: sb.Rotation[0], V: mgl32.Vec3{sb.Rotation[1], sb.Rotation[2], sb.Rotation[3]}}.Normalize()
			sys.World.SetTransform(b.ID, xf)
			rb.Velocity = mgl32.Vec3(sb.Velocity)
			rb.AngularVelocity = mgl32.Vec3(sb.Spin)
		}
		restored++
	}
	return restored, nil
}

// WriteSnapshot writes a JSON header line followed by the JSON snapshot,
// the whole stream zstd compressed.
func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for tools that only need the tick; the body repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("json decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("parse header: %w", err)
	}
	return h, nil
}
