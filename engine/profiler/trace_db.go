package profiler

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/world"

	_ "modernc.org/sqlite"
)

// traceDB writes frame reports from a single goroutine. Reports are dropped when the writer falls
// behind so the render loop never blocks on disk.
type traceDB struct {
	db *sql.DB

	ch     chan world.FrameReport
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
	drops  atomic.Uint64
}

func openTraceDB(path string) (*traceDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS frames (
			frame INTEGER PRIMARY KEY,
			started_at TEXT NOT NULL,
			duration_us INTEGER NOT NULL,
			dispatch_size INTEGER NOT NULL,
			animation_count INTEGER NOT NULL,
			excluded TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS passes (
			frame INTEGER NOT NULL,
			view INTEGER NOT NULL,
			pass TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL,
			duration_us INTEGER NOT NULL,
			PRIMARY KEY (frame, view, pass)
		);`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("trace db: %w", err)
		}
	}

	t := &traceDB{db: db, ch: make(chan world.FrameReport, 1024)}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.loop()
	}()
	return t, nil
}

func (t *traceDB) record(report world.FrameReport) {
	if t == nil || t.closed.Load() {
		return
	}
	select {
	case t.ch <- report:
	default:
		t.drops.Add(1)
	}
}

func (t *traceDB) loop() {
	for report := range t.ch {
		if err := t.write(report); err != nil {
			common.Logger().Warn("profiler trace write failed", "frame", report.Frame, "err", err)
		}
	}
}

func (t *traceDB) write(report world.FrameReport) error {
	tx, err := t.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	excluded, err := json.Marshal(report.Excluded)
	if err != nil {
		return err
	}
	if report.Excluded == nil {
		excluded = []byte("[]")
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO frames(frame,started_at,duration_us,dispatch_size,animation_count,excluded) VALUES(?,?,?,?,?,?)`,
		report.Frame, report.Started.UTC().Format("2006-01-02T15:04:05.000000Z"), report.Duration.Microseconds(),
		report.DispatchSize, report.AnimationCount, string(excluded)); err != nil {
		return err
	}

	insertPass, err := tx.Prepare(`INSERT OR REPLACE INTO passes(frame,view,pass,status,error,duration_us) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insertPass.Close()
	writeReport := func(r graph.Report) error {
		for _, n := range r.Nodes {
			if _, err := insertPass.Exec(report.Frame, uint32(r.View), n.Kind.String(), n.Status.String(), n.Error, n.Duration.Microseconds()); err != nil {
				return err
			}
		}
		return nil
	}
	if err := writeReport(report.Global); err != nil {
		return err
	}
	for _, r := range report.Views {
		if err := writeReport(r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (t *traceDB) close() error {
	var err error
	t.once.Do(func() {
		t.closed.Store(true)
		close(t.ch)
		t.wg.Wait()
		if n := t.drops.Load(); n > 0 {
			common.Logger().Warn("profiler trace dropped frames", "count", n)
		}
		err = t.db.Close()
	})
	return err
}
