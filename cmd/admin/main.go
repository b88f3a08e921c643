package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	persistlog "gridnav.ai/internal/persistence/log"
	"gridnav.ai/internal/persistence/snapshot"
	"gridnav.ai/internal/sim/planner"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "stats":
			statsCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "records":
			recordsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	boardID := fs.String("board", "", "board id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "boards")
	if *boardID != "" {
		base = filepath.Join(base, *boardID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// rollbackCmd writes a copy of a snapshot without the entities placed since a
// given version inside a rectangle.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	boardID := fs.String("board", "", "board id")
	snapPath := fs.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	rect := fs.String("rect", "", "rectangle filter: x1,y1:x2,y2 (required)")
	sinceVer := fs.Uint64("since_version", 1, "rollback placements since this board version (inclusive)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*boardID) == "" {
		fmt.Fprintln(os.Stderr, "missing -board")
		os.Exit(2)
	}
	if strings.TrimSpace(*rect) == "" {
		fmt.Fprintln(os.Stderr, "missing -rect")
		os.Exit(2)
	}

	boardDir := filepath.Join(*dataDir, "boards", *boardID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = latestSnapshot(boardDir)
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	min, max, err := parseRect(*rect)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -rect:", err)
		os.Exit(2)
	}

	recs, err := persistlog.ReadRecordDir(boardDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read records:", err)
		os.Exit(1)
	}
	placedSince := placementsSince(recs, *sinceVer, snap.Header.BoardVersion)
	removed := applyRollback(&snap, placedSince, min, max)
	if removed == 0 {
		fmt.Println("no matching placements; nothing to rollback")
		return
	}

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(boardDir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", snap.Header.BoardVersion))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("rollback ok: snapshot=%s version=%d rect=%s since=%d removed=%d out=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.BoardVersion, *rect, *sinceVer, removed, *outPath)
}

// placementsSince returns the ids of entities placed in [since, to].
func placementsSince(recs []planner.Record, since, to uint64) map[string]bool {
	out := make(map[string]bool)
	for _, r := range recs {
		if r.Kind != planner.KindPlace || r.Version < since || r.Version > to {
			continue
		}
		out[r.EntityID] = true
	}
	return out
}

func applyRollback(snap *snapshot.BoardSnapshotV1, ids map[string]bool, min, max [2]int) (removed int) {
	if snap == nil || len(ids) == 0 {
		return 0
	}
	kept := snap.Entities[:0]
	for _, e := range snap.Entities {
		if ids[e.ID] && withinRect([2]int{e.X, e.Y}, min, max) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	snap.Entities = kept
	snap.Header.Entities = len(kept)
	return removed
}

func withinRect(pos [2]int, min, max [2]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1]
}

func parseRect(s string) (min, max [2]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1:x2,y2")
	}
	a, err := parseVec2(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec2(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 2; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec2(s string) ([2]int, error) {
	var v [2]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return v, fmt.Errorf("expected x,y")
	}
	for i := 0; i < 2; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

func latestSnapshot(boardDir string) string {
	dir := filepath.Join(boardDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestVersion uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || v > bestVersion {
			bestVersion = v
			best = filepath.Join(dir, name)
		}
	}
	return best
}
