package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"gridnav.ai/internal/sim/footprint"
	"gridnav.ai/internal/sim/grid"
	"gridnav.ai/internal/sim/pathfind"
	"gridnav.ai/internal/sim/tuning"
)

type memRecorder struct {
	mu   sync.Mutex
	recs []Record
}

func (m *memRecorder) WriteRecord(r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func (m *memRecorder) all() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.recs...)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestPlanner_FindPathRecordsQuery(t *testing.T) {
	rec := &memRecorder{}
	p := New("b1", grid.New(10, 10), DefaultConfig(), quietLogger(), rec)

	resp := p.FindPath(context.Background(), Request{Footprint: footprint.Round(1), Goal: grid.Coord{X: 9, Y: 9}})
	if resp.Err != nil || resp.Outcome != OutcomeFound {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.ID == "" {
		t.Fatalf("query id should be generated")
	}
	recs := rec.all()
	if len(recs) != 1 {
		t.Fatalf("records=%d want 1", len(recs))
	}
	r := recs[0]
	if r.Kind != KindQuery || r.ID != resp.ID || r.BoardID != "b1" || r.Version != 0 {
		t.Fatalf("record=%+v", r)
	}
	if r.Steps != 9 || r.PathDigest != PathDigest(resp.Result.Path) || r.Costs != [2]float64{1, 1.7} {
		t.Fatalf("record=%+v", r)
	}
	if r.Footprint != "round:1" || r.Effective != [2]int{9, 9} {
		t.Fatalf("record=%+v", r)
	}
}

func TestPlanner_PlaceBumpsVersion(t *testing.T) {
	rec := &memRecorder{}
	p := New("b1", grid.New(10, 10), DefaultConfig(), quietLogger(), rec)

	hall := grid.Entity{ID: "hall", Kind: grid.KindBuilding, At: grid.Coord{X: 5, Y: 5}, Shape: footprint.Square(3)}
	if err := p.Place(hall); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if err := p.Place(hall); err == nil {
		t.Fatalf("second placement should fail")
	}
	if p.Version() != 1 {
		t.Fatalf("version=%d want 1", p.Version())
	}

	resp := p.FindPath(context.Background(), Request{ID: "q1", Footprint: footprint.Rect(1, 1), Goal: grid.Coord{X: 5, Y: 5}})
	if resp.Err != nil || !resp.Result.Stats.Repaired {
		t.Fatalf("goal under a building should be repaired: %+v", resp)
	}

	if err := p.Remove("hall"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := p.Remove("hall"); !errors.Is(err, grid.ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}

	recs := rec.all()
	kinds := []string{KindPlace, KindQuery, KindRelease}
	versions := []uint64{1, 1, 2}
	if len(recs) != len(kinds) {
		t.Fatalf("records=%+v", recs)
	}
	for i := range kinds {
		if recs[i].Kind != kinds[i] || recs[i].Version != versions[i] {
			t.Fatalf("record %d=%+v", i, recs[i])
		}
	}
	st := p.Stats()
	if st.Places != 1 || st.Releases != 1 || st.Version != 2 || st.Found != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestPlanner_BatchKeepsOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 3
	p := New("b1", grid.New(16, 16), cfg, quietLogger())

	reqs := make([]Request, 40)
	for i := range reqs {
		reqs[i] = Request{
			ID:        fmt.Sprintf("q%d", i),
			Footprint: footprint.Round(1),
			Origin:    grid.Coord{X: i % 16, Y: 0},
			Goal:      grid.Coord{X: 15 - i%16, Y: 15},
		}
	}
	out, err := p.Batch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	for i, r := range out {
		if r.ID != reqs[i].ID {
			t.Fatalf("response %d id=%s want %s", i, r.ID, reqs[i].ID)
		}
		if r.Err != nil {
			t.Fatalf("response %d: %v", i, r.Err)
		}
		if r.Result.Steps() != grid.Chebyshev(reqs[i].Origin, reqs[i].Goal) {
			t.Fatalf("response %d steps=%d", i, r.Result.Steps())
		}
	}
	if st := p.Stats(); st.Queries != 40 || st.Found != 40 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestPlanner_BatchCanceled(t *testing.T) {
	p := New("b1", grid.New(8, 8), DefaultConfig(), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := p.Batch(ctx, []Request{{ID: "a", Footprint: footprint.Round(1)}, {ID: "b", Footprint: footprint.Round(1)}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, r := range out {
		if r.Outcome != OutcomeCanceled {
			t.Fatalf("response=%+v", r)
		}
	}
}

func TestPlanner_SetConfigBudget(t *testing.T) {
	g := grid.New(30, 30)
	for y := 0; y < 29; y++ {
		_ = g.SetTerrain(grid.Coord{X: 15, Y: y}, false, false)
	}
	p := New("b1", g, DefaultConfig(), quietLogger())
	cfg := p.Config()
	cfg.Search.MaxExpansions = 1
	p.SetConfig(cfg)

	resp := p.FindPath(context.Background(), Request{Footprint: footprint.Rect(1, 1), Goal: grid.Coord{X: 29, Y: 0}})
	if resp.Outcome != OutcomeBudget || !errors.Is(resp.Err, pathfind.ErrSearchBudgetExceeded) {
		t.Fatalf("resp=%+v", resp)
	}
	if p.Stats().Budget != 1 {
		t.Fatalf("stats=%+v", p.Stats())
	}
}

func TestPlanner_SnapshotRestore(t *testing.T) {
	p := New("b1", grid.New(6, 6), DefaultConfig(), quietLogger())
	if err := p.Place(grid.Entity{ID: "r", Kind: grid.KindResource, At: grid.Coord{X: 2, Y: 2}, Shape: footprint.Square(2)}); err != nil {
		t.Fatalf("Place: %v", err)
	}
	snap := p.Snapshot()
	if snap.Header.BoardVersion != 1 || len(snap.Entities) != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}

	q := New("b1", grid.New(1, 1), DefaultConfig(), quietLogger())
	if err := q.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if q.Version() != 1 {
		t.Fatalf("version=%d", q.Version())
	}
	if q.Board().SnapshotWalkable().At(grid.Coord{X: 3, Y: 3}) != grid.Blocked {
		t.Fatalf("restored board lost the resource")
	}
}

func TestOutcomeFor(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, OutcomeFound},
		{pathfind.ErrNoPathExists, OutcomeNoPath},
		{pathfind.ErrInvalidGoal, OutcomeInvalidGoal},
		{pathfind.ErrSearchBudgetExceeded, OutcomeBudget},
		{fmt.Errorf("origin: %w", grid.ErrOutOfBounds), OutcomeOutOfBounds},
		{context.Canceled, OutcomeCanceled},
		{errors.New("footprint: bad"), OutcomeBadRequest},
	}
	for _, tc := range cases {
		if got := OutcomeFor(tc.err); got != tc.want {
			t.Fatalf("OutcomeFor(%v)=%s want %s", tc.err, got, tc.want)
		}
	}
}

func TestConfigFromTuning(t *testing.T) {
	tu := tuning.Defaults()
	tu.MaxExpansions = 99
	tu.QueryTimeoutMs = 20
	cfg := ConfigFromTuning(tu)
	if cfg.Search.MaxExpansions != 99 || cfg.Search.DiagonalCost != 1.7 || cfg.QueryTimeout.Milliseconds() != 20 || cfg.Workers != 4 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestPlanner_RejectsOversizedFootprints(t *testing.T) {
	p := New("b1", grid.New(8, 8), DefaultConfig(), quietLogger())

	for _, fp := range []footprint.Footprint{footprint.Rect(100000, 100000), footprint.Square(9)} {
		err := p.Place(grid.Entity{ID: "big", Kind: grid.KindBuilding, At: grid.Coord{X: 4, Y: 4}, Shape: fp})
		if !errors.Is(err, footprint.ErrTooLarge) {
			t.Fatalf("Place(%v): err=%v want ErrTooLarge", fp, err)
		}
	}
	if p.Version() != 0 {
		t.Fatalf("version=%d want 0", p.Version())
	}

	out, err := p.Batch(context.Background(), []Request{
		{ID: "a", Footprint: footprint.Round(100000000000), Goal: grid.Coord{X: 7, Y: 7}},
		{ID: "b", Footprint: footprint.Round(1), Goal: grid.Coord{X: 7, Y: 7}},
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if out[0].Outcome != OutcomeBadRequest || !errors.Is(out[0].Err, footprint.ErrTooLarge) {
		t.Fatalf("oversized query=%+v", out[0])
	}
	if out[1].Outcome != OutcomeFound {
		t.Fatalf("regular query=%+v", out[1])
	}
}
