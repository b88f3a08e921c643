package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gridnav.ai/internal/persistence/snapshot"
	"gridnav.ai/internal/sim/planner"
	"gridnav.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index over planner records and board
// snapshots. JSONL logs stay the source of truth: writes are queued and
// dropped when the writer falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropRecord   atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqRecord reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	record   planner.Record
	snapshot snapshotRow
}

type snapshotRow struct {
	BoardID   string
	Version   uint64
	Path      string
	Width     int
	Height    int
	Entities  int
	CreatedAt int64
}

// QueueStats reports writer backlog and drops since open.
type QueueStats struct {
	QueueDepth        int
	QueueCapacity     int
	DropRecordTotal   uint64
	DropSnapshotTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
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

	s := &SQLiteIndex{
		db: db,
		// Bursty batches (a whole army re-pathing in one tick) must not stall the planner.
		ch: make(chan req, 65536),
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
			return err
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
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS queries (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			at_ms INTEGER NOT NULL,
			footprint TEXT NOT NULL,
			origin_x INTEGER NOT NULL,
			origin_y INTEGER NOT NULL,
			goal_x INTEGER NOT NULL,
			goal_y INTEGER NOT NULL,
			effective_x INTEGER NOT NULL,
			effective_y INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			steps INTEGER NOT NULL,
			cost REAL NOT NULL,
			expansions INTEGER NOT NULL,
			duration_us INTEGER NOT NULL,
			path_digest TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_queries_board_version ON queries(board_id, version);`,
		`CREATE INDEX IF NOT EXISTS idx_queries_outcome ON queries(outcome);`,
		`CREATE TABLE IF NOT EXISTS mutations (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			at_ms INTEGER NOT NULL,
			kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			entity_kind TEXT,
			footprint TEXT,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_mutations_entity ON mutations(entity_id, version);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			board_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			path TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (board_id, version)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteRecord queues r for indexing. It never blocks; it satisfies
// planner.Recorder.
func (s *SQLiteIndex) WriteRecord(r planner.Record) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqRecord, record: r}:
	default:
		s.dropRecord.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.BoardSnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		BoardID:   snap.Header.BoardID,
		Version:   snap.Header.BoardVersion,
		Path:      path,
		Width:     snap.Width,
		Height:    snap.Height,
		Entities:  len(snap.Entities),
		CreatedAt: snap.Header.CreatedAt,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) Stats() QueueStats {
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropRecordTotal:   s.dropRecord.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// UpsertTuning stores the tuning values actually applied, keyed by digest.
func (s *SQLiteIndex) UpsertTuning(t tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	digest := hex.EncodeToString(sum[:])
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`, "tuning", digest, string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertQuery, _ := s.db.Prepare(`INSERT OR REPLACE INTO queries(id,board_id,version,at_ms,footprint,origin_x,origin_y,goal_x,goal_y,effective_x,effective_y,outcome,steps,cost,expansions,duration_us,path_digest) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertMutation, _ := s.db.Prepare(`INSERT OR REPLACE INTO mutations(id,board_id,version,at_ms,kind,entity_id,entity_kind,footprint,x,y,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(board_id,version,path,width,height,entities,created_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertQuery, insertMutation, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
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
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRecord:
			rec := r.record
			switch rec.Kind {
			case planner.KindQuery:
				exec(insertQuery,
					rec.ID, rec.BoardID, int64(rec.Version), rec.AtUnixMs, rec.Footprint,
					rec.Origin[0], rec.Origin[1], rec.Goal[0], rec.Goal[1],
					rec.Effective[0], rec.Effective[1],
					rec.Outcome, rec.Steps, rec.Cost, rec.Expansions, rec.DurationUs, rec.PathDigest,
				)
			case planner.KindPlace, planner.KindRelease:
				raw, _ := json.Marshal(rec)
				exec(insertMutation,
					rec.ID, rec.BoardID, int64(rec.Version), rec.AtUnixMs, rec.Kind,
					rec.EntityID, rec.EntityKind, rec.Footprint, rec.At[0], rec.At[1], string(raw),
				)
			}
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.BoardID, int64(sn.Version), sn.Path, sn.Width, sn.Height, sn.Entities, sn.CreatedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
