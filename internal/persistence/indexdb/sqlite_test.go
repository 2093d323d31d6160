package indexdb

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"buoyancy3d/internal/persistence/snapshot"
	"buoyancy3d/internal/sim"
	"buoyancy3d/internal/voxel"

	"github.com/go-gl/mathgl/mgl32"
)

func report(tick uint64) sim.TickReport {
	return sim.TickReport{
		Tick: tick,
		Time: float64(tick) / 60,
		Bodies: []sim.BodyReport{
			{ID: 1, Name: "hull", State: "Classified", Voxels: 27, Eligible: 27, SubmergedVolume: 27, Buoyancy: mgl32.Vec3{0, 264.87, 0}, Position: mgl32.Vec3{0, 1, 0}},
			{ID: 2, Name: "crate", State: "Classified", Voxels: 8, Solid: 2, Eligible: 6},
		},
		Refreshed: 2,
	}
}

func TestIndexRecordsTicksAndSnapshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "run.sqlite")
	idx, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	idx.RecordTick(report(1))
	idx.RecordTick(report(2))
	idx.RecordSnapshot("/tmp/run.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, Scene: "harbor", Tick: 2},
		Bodies: []snapshot.BodyV1{
			{Name: "hull", Grid: voxel.GridSpec{VoxelSize: 1, CellsPerAxis: 3}},
			{Name: "crate", Grid: voxel.GridSpec{VoxelSize: 1, Offsets: [][3]float32{{0, 0, 0}, {1, 0, 0}}}},
		},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	var ticks int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&ticks); err != nil {
		t.Fatalf("count ticks: %v", err)
	}
	if ticks != 2 {
		t.Errorf("Expected 2 tick rows, got %d", ticks)
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM body_forces WHERE body_id = 1`).Scan(&rows); err != nil {
		t.Fatalf("count body_forces: %v", err)
	}
	if rows != 2 {
		t.Errorf("Expected 2 rows for body 1, got %d", rows)
	}

	var submerged float64
	var state string
	if err := db.QueryRow(`SELECT submerged_volume, state FROM body_forces WHERE tick = 2 AND body_id = 1`).Scan(&submerged, &state); err != nil {
		t.Fatalf("select body: %v", err)
	}
	if submerged != 27 || state != "Classified" {
		t.Errorf("Expected submerged 27 Classified, got %v %s", submerged, state)
	}

	var scene string
	var bodies, voxels int
	if err := db.QueryRow(`SELECT scene, bodies, voxels FROM snapshots WHERE tick = 2`).Scan(&scene, &bodies, &voxels); err != nil {
		t.Fatalf("select snapshot: %v", err)
	}
	if scene != "harbor" || bodies != 2 || voxels != 29 {
		t.Errorf("Expected harbor/2/29, got %s/%d/%d", scene, bodies, voxels)
	}
}

func TestIndexReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.sqlite")
	for i := uint64(1); i <= 2; i++ {
		idx, err := Open(path, nil)
		if err != nil {
			t.Fatalf("Open %d failed: %v", i, err)
		}
		idx.RecordTick(report(i))
		if err := idx.Close(); err != nil {
			t.Fatalf("Close %d failed: %v", i, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()
	var ticks int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&ticks); err != nil {
		t.Fatalf("count ticks: %v", err)
	}
	if ticks != 2 {
		t.Errorf("Expected 2 tick rows across sessions, got %d", ticks)
	}
}

func TestIndexQueueDropStats(t *testing.T) {
	s := &Index{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: report(1)}

	s.RecordTick(report(2))
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Errorf("Expected DropTickTotal 1, got %d", st.DropTickTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Errorf("Expected DropSnapshotTotal 1, got %d", st.DropSnapshotTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Errorf("Expected depth 1 cap 1, got depth %d cap %d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestIndexRecordDuringClose(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "run.sqlite"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				idx.RecordTick(report(uint64(w*1000 + i)))
				idx.RecordSnapshot("/tmp/x.snap.zst", snapshot.SnapshotV1{})
			}
		}(w)
	}
	if err := idx.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	wg.Wait()

	before := idx.Stats()
	idx.RecordTick(report(99999))
	if after := idx.Stats(); after.DropTickTotal != before.DropTickTotal {
		t.Errorf("Expected records after Close to be discarded silently, drops went %d -> %d", before.DropTickTotal, after.DropTickTotal)
	}
}

func TestIndexNilSafe(t *testing.T) {
	var s *Index
	s.RecordTick(report(1))
	s.RecordSnapshot("x", snapshot.SnapshotV1{})
	if st := s.Stats(); st.QueueCapacity != 0 {
		t.Errorf("Expected zero stats, got %+v", st)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open("", nil); err == nil {
		t.Error("Expected error for empty path")
	}
}
