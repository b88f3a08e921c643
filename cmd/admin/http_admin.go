package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"gridnav.ai/internal/persistence/indexdb"
	"gridnav.ai/internal/sim/planner"
)

type serverStats struct {
	BoardID string              `json:"board_id"`
	Width   int                 `json:"width"`
	Height  int                 `json:"height"`
	Planner planner.Stats       `json:"planner"`
	Index   *indexdb.QueueStats `json:"index,omitempty"`
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("raw", false, "print the response body unchanged")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/stats"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 || *raw {
		fmt.Println(string(b))
		if resp.StatusCode/100 != 2 {
			os.Exit(1)
		}
		return
	}
	var st serverStats
	if err := json.Unmarshal(b, &st); err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	fmt.Print(formatStats(st))
}

func formatStats(st serverStats) string {
	var sb strings.Builder
	p := st.Planner
	fmt.Fprintf(&sb, "board %s %dx%d version %s\n", st.BoardID, st.Width, st.Height, humanize.Comma(int64(p.Version)))
	fmt.Fprintf(&sb, "queries %s (found %s, no path %s, invalid goal %s, budget %s, failed %s)\n",
		humanize.Comma(int64(p.Queries)), humanize.Comma(int64(p.Found)), humanize.Comma(int64(p.NoPath)),
		humanize.Comma(int64(p.InvalidGoal)), humanize.Comma(int64(p.Budget)), humanize.Comma(int64(p.Failed)))
	avg := 0.0
	if p.Queries > 0 {
		avg = float64(p.Expansions) / float64(p.Queries)
	}
	fmt.Fprintf(&sb, "expansions %s (%.1f per query)\n", humanize.Comma(int64(p.Expansions)), avg)
	fmt.Fprintf(&sb, "placed %s released %s\n", humanize.Comma(int64(p.Places)), humanize.Comma(int64(p.Releases)))
	if st.Index != nil {
		fmt.Fprintf(&sb, "index queue %d/%d dropped records %s snapshots %s\n",
			st.Index.QueueDepth, st.Index.QueueCapacity,
			humanize.Comma(int64(st.Index.DropRecordTotal)), humanize.Comma(int64(st.Index.DropSnapshotTotal)))
	}
	return sb.String()
}
