package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	persistlog "gridnav.ai/internal/persistence/log"
	"gridnav.ai/internal/persistence/snapshot"
	"gridnav.ai/internal/sim/planner"
)

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	boardID := fs.String("board", "", "board id (used when -path is empty)")
	path := fs.String("path", "", "snapshot path (optional; defaults to latest)")
	full := fs.Bool("full", false, "decode the body and list entities")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		if strings.TrimSpace(*boardID) == "" {
			fmt.Fprintln(os.Stderr, "missing -board or -path")
			os.Exit(2)
		}
		p = latestSnapshot(filepath.Join(*dataDir, "boards", *boardID))
		if p == "" {
			fmt.Fprintln(os.Stderr, "no snapshot found")
			os.Exit(2)
		}
	}

	h, err := snapshot.ReadHeader(p)
	if err != nil {
		fail("read header", err)
	}
	size := ""
	if st, err := os.Stat(p); err == nil {
		size = humanize.Bytes(uint64(st.Size()))
	}
	fmt.Printf("%s: v%d board=%s version=%d entities=%d size=%s written %s\n",
		filepath.Base(p), h.Version, h.BoardID, h.BoardVersion, h.Entities, size, humanize.Time(time.Unix(h.CreatedAt, 0)))
	if !*full {
		return
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fail("read snapshot", err)
	}
	fmt.Printf("size %dx%d terrain %s encoded\n", snap.Width, snap.Height, humanize.Bytes(uint64(len(snap.Terrain))))
	for _, e := range snap.Entities {
		fmt.Printf("  %-24s %-12s (%d,%d) %s\n", e.ID, e.Kind, e.X, e.Y, e.Footprint)
	}
}

type recordSummary struct {
	Queries    int            `json:"queries"`
	Places     int            `json:"places"`
	Releases   int            `json:"releases"`
	Outcomes   map[string]int `json:"outcomes"`
	Footprints map[string]int `json:"footprints"`
	Expansions int64          `json:"expansions"`
	MaxVersion uint64         `json:"max_version"`
	FirstMs    int64          `json:"first_ms"`
	LastMs     int64          `json:"last_ms"`
}

func summarizeRecords(recs []planner.Record) recordSummary {
	s := recordSummary{Outcomes: map[string]int{}, Footprints: map[string]int{}}
	for _, r := range recs {
		if s.FirstMs == 0 || r.AtUnixMs < s.FirstMs {
			s.FirstMs = r.AtUnixMs
		}
		s.LastMs = max(s.LastMs, r.AtUnixMs)
		s.MaxVersion = max(s.MaxVersion, r.Version)
		switch r.Kind {
		case planner.KindQuery:
			s.Queries++
			s.Outcomes[r.Outcome]++
			s.Footprints[r.Footprint]++
			s.Expansions += int64(r.Expansions)
		case planner.KindPlace:
			s.Places++
		case planner.KindRelease:
			s.Releases++
		}
	}
	return s
}

func recordsCmd(args []string) {
	fs := flag.NewFlagSet("records", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	boardID := fs.String("board", "", "board id")
	asJSON := fs.Bool("json", false, "print the summary as JSON")
	_ = fs.Parse(args)

	if strings.TrimSpace(*boardID) == "" {
		fmt.Fprintln(os.Stderr, "missing -board")
		os.Exit(2)
	}
	recs, err := persistlog.ReadRecordDir(filepath.Join(*dataDir, "boards", *boardID))
	if err != nil {
		fail("read records", err)
	}
	s := summarizeRecords(recs)
	if *asJSON {
		printJSON(s)
		return
	}
	fmt.Printf("%s queries, %s placements, %s releases, board version %d\n",
		humanize.Comma(int64(s.Queries)), humanize.Comma(int64(s.Places)), humanize.Comma(int64(s.Releases)), s.MaxVersion)
	if s.Queries > 0 {
		fmt.Printf("span %s to %s\n", humanize.Time(time.UnixMilli(s.FirstMs)), humanize.Time(time.UnixMilli(s.LastMs)))
		fmt.Printf("expansions %s\n", humanize.Comma(s.Expansions))
	}
	for _, k := range sortedKeys(s.Outcomes) {
		fmt.Printf("  outcome   %-14s %s\n", k, humanize.Comma(int64(s.Outcomes[k])))
	}
	for _, k := range sortedKeys(s.Footprints) {
		fmt.Printf("  footprint %-14s %s\n", k, humanize.Comma(int64(s.Footprints[k])))
	}
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
