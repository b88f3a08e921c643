package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"gridnav.ai/internal/persistence/snapshot"
	"gridnav.ai/internal/sim/planner"
	"gridnav.ai/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqRecord}

	_ = s.WriteRecord(planner.Record{Kind: planner.KindQuery})
	s.RecordSnapshot("/tmp/b.snap.zst", snapshot.BoardSnapshotV1{})

	st := s.Stats()
	if st.DropRecordTotal != 1 {
		t.Fatalf("DropRecordTotal=%d want=1", st.DropRecordTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_RecordsAndReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "board.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	recs := []planner.Record{
		{Kind: planner.KindQuery, ID: "q1", BoardID: "b", Outcome: planner.OutcomeFound, Steps: 9, Expansions: 3, Footprint: "round:1", Goal: [2]int{9, 9}},
		{Kind: planner.KindQuery, ID: "q2", BoardID: "b", Outcome: planner.OutcomeNoPath, Expansions: 40, Footprint: "round:1"},
		{Kind: planner.KindQuery, ID: "q3", BoardID: "b", Outcome: planner.OutcomeFound, Steps: 2, Expansions: 1, Footprint: "rect:1x1"},
		{Kind: planner.KindPlace, ID: "m1", BoardID: "b", Version: 1, EntityID: "hall", EntityKind: "BUILDING", Footprint: "rect:3x3", At: [2]int{4, 4}},
	}
	for _, r := range recs {
		_ = idx.WriteRecord(r)
	}
	idx.RecordSnapshot("/data/b/snapshots/1.snap.zst", snapshot.BoardSnapshotV1{
		Header: snapshot.Header{BoardID: "b", BoardVersion: 1, CreatedAt: 100},
		Width:  10, Height: 10,
		Entities: []snapshot.EntityV1{{ID: "hall"}},
	})
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	counts, err := OutcomeCounts(ctx, db)
	if err != nil {
		t.Fatalf("OutcomeCounts: %v", err)
	}
	if len(counts) != 2 || counts[0].Outcome != planner.OutcomeFound || counts[0].Count != 2 {
		t.Fatalf("counts=%+v", counts)
	}

	slow, err := SlowestQueries(ctx, db, 2)
	if err != nil {
		t.Fatalf("SlowestQueries: %v", err)
	}
	if len(slow) != 2 || slow[0].ID != "q2" || slow[1].ID != "q1" || slow[1].Goal != [2]int{9, 9} {
		t.Fatalf("slow=%+v", slow)
	}

	snaps, err := Snapshots(ctx, db, 0)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Version != 1 || snaps[0].Entities != 1 {
		t.Fatalf("snaps=%+v", snaps)
	}

	var entity string
	if err := db.QueryRow(`SELECT entity_id FROM mutations WHERE id='m1'`).Scan(&entity); err != nil || entity != "hall" {
		t.Fatalf("mutation row: %q %v", entity, err)
	}
	var digest string
	if err := db.QueryRow(`SELECT digest FROM config WHERE name='tuning'`).Scan(&digest); err != nil || len(digest) != 64 {
		t.Fatalf("tuning digest: %q %v", digest, err)
	}
}
