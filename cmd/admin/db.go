package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"

	"gridnav.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	boardID := fs.String("board", "", "board id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	asJSON := fs.Bool("json", false, "print one JSON object per row")
	_ = fs.Parse(args)

	q := "outcomes"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*boardID) == "" {
			fmt.Fprintln(os.Stderr, "missing -board or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "boards", *boardID, "index", "board.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()
	ctx := context.Background()

	switch q {
	case "outcomes":
		rows, err := indexdb.OutcomeCounts(ctx, db)
		if err != nil {
			fail("query", err)
		}
		var total int64
		for _, r := range rows {
			total += r.Count
		}
		for _, r := range rows {
			if *asJSON {
				printJSON(r)
				continue
			}
			fmt.Printf("%-14s %10s  %5.1f%%\n", r.Outcome, humanize.Comma(r.Count), 100*float64(r.Count)/float64(max(total, 1)))
		}

	case "slow":
		rows, err := indexdb.SlowestQueries(ctx, db, *limit)
		if err != nil {
			fail("query", err)
		}
		for _, r := range rows {
			if *asJSON {
				printJSON(r)
				continue
			}
			fmt.Printf("%s v%-6d %-10s (%d,%d)->(%d,%d) %-12s steps=%d expansions=%s took=%s\n",
				r.ID, r.Version, r.Footprint, r.Origin[0], r.Origin[1], r.Goal[0], r.Goal[1],
				r.Outcome, r.Steps, humanize.Comma(int64(r.Expansions)), time.Duration(r.DurationUs)*time.Microsecond)
		}

	case "snapshots":
		rows, err := indexdb.Snapshots(ctx, db, *limit)
		if err != nil {
			fail("query", err)
		}
		for _, r := range rows {
			if *asJSON {
				printJSON(r)
				continue
			}
			size := "?"
			if st, err := os.Stat(r.Path); err == nil {
				size = humanize.Bytes(uint64(st.Size()))
			}
			fmt.Printf("v%-6d %dx%d entities=%s size=%s written %s  %s\n",
				r.Version, r.Width, r.Height, humanize.Comma(int64(r.Entities)), size,
				humanize.Time(time.Unix(r.CreatedAt, 0)), r.Path)
		}

	case "tuning":
		var digest, raw, updated string
		if err := db.QueryRow(`SELECT digest,json,updated_at FROM config WHERE name='tuning'`).Scan(&digest, &raw, &updated); err != nil {
			fail("scan", err)
		}
		fmt.Printf("digest=%s updated_at=%s\n%s\n", digest, updated, raw)

	default:
		fmt.Fprintln(os.Stderr, "unknown db query:", q, "(outcomes|slow|snapshots|tuning)")
		os.Exit(2)
	}
}

func fail(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}
