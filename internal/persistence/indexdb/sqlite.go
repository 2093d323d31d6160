// Package indexdb keeps a queryable SQLite history of tick reports and
// snapshots. It is a secondary index: writes are queued and dropped when the
// writer falls behind, so the simulation never waits on disk.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"buoyancy3d/internal/persistence/snapshot"
	"buoyancy3d/internal/sim"
)

const queueSize = 4096

type Index struct {
	db     *sql.DB
	logger *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against Close closing it.
	mu     sync.RWMutex
	closed bool

	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64
	writeErrors  atomic.Uint64
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	WriteErrorTotal   uint64 `json:"write_error_total"`
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     sim.TickReport
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick   uint64
	Path   string
	Scene  string
	Bodies int
	Voxels int
}

// Open creates or opens the index at path and starts its writer.
func Open(path string, logger *log.Logger) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("indexdb: empty db path")
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Index{
		db:     db,
		logger: logger,
		ch:     make(chan req, queueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("indexdb: %s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			time REAL NOT NULL,
			bodies INTEGER NOT NULL,
			initialized INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			refreshed INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS body_forces (
			tick INTEGER NOT NULL,
			body_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			state TEXT NOT NULL,
			voxels INTEGER NOT NULL,
			solid INTEGER NOT NULL,
			eligible INTEGER NOT NULL,
			submerged_volume REAL NOT NULL,
			buoyancy_y REAL NOT NULL,
			force_x REAL NOT NULL,
			force_y REAL NOT NULL,
			force_z REAL NOT NULL,
			pos_x REAL NOT NULL,
			pos_y REAL NOT NULL,
			pos_z REAL NOT NULL,
			PRIMARY KEY(tick, body_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_body_forces_body ON body_forces(body_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			scene TEXT NOT NULL,
			bodies INTEGER NOT NULL,
			voxels INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued writes and closes the database.
func (s *Index) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordTick queues r. It never blocks.
func (s *Index) RecordTick(r sim.TickReport) {
	if s == nil {
		return
	}
	if !s.enqueue(req{kind: reqTick, tick: r}) {
		s.dropTick.Add(1)
	}
}

// RecordSnapshot queues a row describing a snapshot written to path.
func (s *Index) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Tick:   snap.Header.Tick,
		Path:   path,
		Scene:  snap.Header.Scene,
		Bodies: len(snap.Bodies),
	}
	for _, b := range snap.Bodies {
		if n := b.Grid.CellsPerAxis; n > 0 {
			r.Voxels += n * n * n
			continue
		}
		r.Voxels += len(b.Grid.Offsets)
	}
	if !s.enqueue(req{kind: reqSnapshot, snapshot: r}) {
		s.dropSnapshot.Add(1)
	}
}

// enqueue is a non-blocking send. It reports false when the queue is full;
// requests after Close are discarded and count as sent.
func (s *Index) enqueue(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

func (s *Index) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

func (s *Index) loop() {
	ctx := context.Background()

	insertTick, err := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,time,bodies,initialized,failed,refreshed,duration_ns,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		s.logger.Printf("Index: prepare ticks: %v", err)
	}
	insertBody, err := s.db.Prepare(`INSERT OR REPLACE INTO body_forces(tick,body_id,name,state,voxels,solid,eligible,submerged_volume,buoyancy_y,force_x,force_y,force_z,pos_x,pos_y,pos_z) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		s.logger.Printf("Index: prepare body_forces: %v", err)
	}
	insertSnapshot, err := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,scene,bodies,voxels,recorded_at) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		s.logger.Printf("Index: prepare snapshots: %v", err)
	}
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertBody, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 1000
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrors.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
			s.logger.Printf("Index: commit: %v", err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.writeErrors.Add(1)
		s.logger.Printf("Index: write failed, dropping batch: %v", err)
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			if insertTick == nil || insertBody == nil {
				continue
			}
			t := r.tick
			raw, _ := json.Marshal(t)
			if _, err := tx.Stmt(insertTick).Exec(
				int64(t.Tick), t.Time, len(t.Bodies),
				t.Initialized, t.Failed, t.Refreshed,
				int64(t.Duration), string(raw),
			); err != nil {
				rollback(err)
				continue
			}
			opCount++
			for _, b := range t.Bodies {
				if _, err := tx.Stmt(insertBody).Exec(
					int64(t.Tick), int64(b.ID), b.Name, b.State,
					b.Voxels, b.Solid, b.Eligible,
					b.SubmergedVolume, b.Buoyancy.Y(),
					b.Force.X(), b.Force.Y(), b.Force.Z(),
					b.Position.X(), b.Position.Y(), b.Position.Z(),
				); err != nil {
					rollback(err)
					break
				}
				opCount++
			}

		case reqSnapshot:
			if insertSnapshot == nil {
				continue
			}
			sr := r.snapshot
			if _, err := tx.Stmt(insertSnapshot).Exec(
				int64(sr.Tick), sr.Path, sr.Scene, sr.Bodies, sr.Voxels,
				time.Now().UTC().Format(time.RFC3339Nano),
			); err != nil {
				rollback(err)
				continue
			}
			opCount++
		}

		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
	commit()
}
