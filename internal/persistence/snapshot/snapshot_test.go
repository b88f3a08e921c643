package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "board-1.snap.zst")
	in := BoardSnapshotV1{
		Header:  Header{Version: Version, BoardID: "board-1", CreatedAt: 1700000000, BoardVersion: 7},
		Width:   4,
		Height:  3,
		Terrain: "AAw=",
		Entities: []EntityV1{
			{ID: "hall", Kind: "BUILDING", X: 1, Y: 1, Footprint: "rect:2x2"},
			{ID: "u1", Kind: "UNIT", X: 3, Y: 0, Footprint: "round:1"},
		},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if out.Header.BoardID != "board-1" || out.Width != 4 || out.Height != 3 || out.Terrain != in.Terrain {
		t.Fatalf("unexpected snapshot: %+v", out)
	}
	if len(out.Entities) != 2 || out.Entities[0] != in.Entities[0] || out.Entities[1] != in.Entities[1] {
		t.Fatalf("entities mismatch: %+v", out.Entities)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.BoardID != "board-1" || h.Entities != 2 || h.CreatedAt != 1700000000 || h.BoardVersion != 7 {
		t.Fatalf("header=%+v", h)
	}
}

func TestReadSnapshot_RejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.snap.zst")
	if err := WriteSnapshot(path, BoardSnapshotV1{Header: Header{Version: 99}}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
