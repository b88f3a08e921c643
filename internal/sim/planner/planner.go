package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gridnav.ai/internal/persistence/snapshot"
	"gridnav.ai/internal/sim/footprint"
	"gridnav.ai/internal/sim/grid"
	"gridnav.ai/internal/sim/pathfind"
	"gridnav.ai/internal/sim/tuning"
)

var ErrQueueTimeout = errors.New("planner: query waited too long for a worker")

// Outcomes reported in records, stats and logs.
const (
	OutcomeFound       = "found"
	OutcomeNoPath      = "no_path"
	OutcomeInvalidGoal = "invalid_goal"
	OutcomeBudget      = "budget"
	OutcomeOutOfBounds = "out_of_bounds"
	OutcomeBadRequest  = "bad_request"
	OutcomeCanceled    = "canceled"
)

type Config struct {
	Search  pathfind.Options
	Workers int
	// QueryTimeout bounds how long a batched query may wait for a worker.
	QueryTimeout time.Duration
}

func DefaultConfig() Config {
	return ConfigFromTuning(tuning.Defaults())
}

func ConfigFromTuning(t tuning.Tuning) Config {
	return Config{
		Search: pathfind.Options{
			CardinalCost:  t.CardinalCost,
			DiagonalCost:  t.DiagonalCost,
			MaxExpansions: t.MaxExpansions,
		},
		Workers:      max(t.Workers, 1),
		QueryTimeout: time.Duration(t.QueryTimeoutMs) * time.Millisecond,
	}
}

type Request struct {
	ID        string
	Footprint footprint.Footprint
	Origin    grid.Coord
	Goal      grid.Coord
}

type Response struct {
	ID      string
	Outcome string
	// Version is the board version the query was answered against.
	Version uint64
	Result  pathfind.Result
	Err     error
}

type Stats struct {
	Queries     uint64
	Found       uint64
	NoPath      uint64
	InvalidGoal uint64
	Budget      uint64
	Failed      uint64
	Expansions  uint64
	Places      uint64
	Releases    uint64
	Version     uint64
}

// Planner serves path queries and occupancy changes for one board.
type Planner struct {
	boardID string
	board   *grid.Grid
	kernels *footprint.KernelCache
	log     logrus.FieldLogger
	rec     []Recorder
	now     func() time.Time

	cfg atomic.Pointer[Config]

	// mu orders mutations against the walkable copies taken for queries.
	mu      sync.RWMutex
	version uint64

	queries, found, noPath, invalid, budget, failed atomic.Uint64
	expansions, places, releases                    atomic.Uint64
}

func New(boardID string, board *grid.Grid, cfg Config, log logrus.FieldLogger, rec ...Recorder) *Planner {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	p := &Planner{
		boardID: boardID,
		board:   board,
		kernels: footprint.NewKernelCache(),
		log:     log.WithField("board", boardID),
		rec:     rec,
		now:     time.Now,
	}
	p.SetConfig(cfg)
	return p
}

// SetConfig swaps the configuration used by queries that start afterwards.
func (p *Planner) SetConfig(cfg Config) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	cfg.Search.Kernels = p.kernels
	p.cfg.Store(&cfg)
}

func (p *Planner) Config() Config { return *p.cfg.Load() }

func (p *Planner) BoardID() string { return p.boardID }

func (p *Planner) Board() *grid.Grid {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.board
}

func (p *Planner) Version() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// FindPath runs one query on the calling goroutine.
func (p *Planner) FindPath(ctx context.Context, req Request) Response {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := ctx.Err(); err != nil {
		return Response{ID: req.ID, Outcome: OutcomeCanceled, Err: err}
	}
	cfg := p.cfg.Load()

	p.mu.RLock()
	w := p.board.SnapshotWalkable()
	version := p.version
	p.mu.RUnlock()

	start := p.now()
	res, err := pathfind.Search(w, req.Footprint, req.Origin, req.Goal, cfg.Search)
	took := p.now().Sub(start)

	outcome := OutcomeFor(err)
	p.count(outcome, res.Stats.Expansions)

	entry := p.log.WithFields(logrus.Fields{
		"query":      req.ID,
		"footprint":  req.Footprint.String(),
		"origin":     req.Origin.String(),
		"goal":       req.Goal.String(),
		"outcome":    outcome,
		"expansions": res.Stats.Expansions,
		"took":       took,
	})
	switch outcome {
	case OutcomeFound, OutcomeNoPath, OutcomeInvalidGoal:
		entry.Debug("path query")
	case OutcomeBudget:
		entry.Warn("path query hit expansion budget")
	default:
		entry.WithError(err).Info("path query rejected")
	}

	p.emit(Record{
		Kind:       KindQuery,
		ID:         req.ID,
		AtUnixMs:   start.UnixMilli(),
		BoardID:    p.boardID,
		Version:    version,
		Footprint:  req.Footprint.String(),
		Origin:     req.Origin.ToArray(),
		Goal:       req.Goal.ToArray(),
		Effective:  res.Goal.ToArray(),
		Costs:      [2]float64{cfg.Search.CardinalCost, cfg.Search.DiagonalCost},
		Budget:     cfg.Search.MaxExpansions,
		Outcome:    outcome,
		Steps:      res.Steps(),
		Cost:       res.Cost,
		Expansions: res.Stats.Expansions,
		DurationUs: took.Microseconds(),
		PathDigest: PathDigest(res.Path),
	})
	return Response{ID: req.ID, Outcome: outcome, Version: version, Result: res, Err: err}
}

// Batch runs reqs on a pool of Config.Workers goroutines. Responses line up
// with reqs. The returned error is non-nil only when ctx ends first.
func (p *Planner) Batch(ctx context.Context, reqs []Request) ([]Response, error) {
	cfg := p.cfg.Load()
	out := make([]Response, len(reqs))
	start := p.now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range reqs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				out[i] = Response{ID: reqs[i].ID, Outcome: OutcomeCanceled, Err: err}
				return err
			}
			if cfg.QueryTimeout > 0 && p.now().Sub(start) > cfg.QueryTimeout {
				out[i] = Response{ID: reqs[i].ID, Outcome: OutcomeCanceled, Err: ErrQueueTimeout}
				p.queries.Add(1)
				p.failed.Add(1)
				return nil
			}
			out[i] = p.FindPath(gctx, reqs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i := range out {
			if out[i].Outcome == "" {
				out[i] = Response{ID: reqs[i].ID, Outcome: OutcomeCanceled, Err: err}
			}
		}
		return out, err
	}
	return out, nil
}

// Place applies ent's footprint to the board.
func (p *Planner) Place(ent grid.Entity) error {
	if ent.ID == "" {
		return fmt.Errorf("place: empty entity id")
	}
	if err := ent.Shape.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	kw, kh := footprint.KernelSize(ent.Shape)
	if bw, bh := p.board.Size(); kw > bw || kh > bh {
		p.mu.Unlock()
		return fmt.Errorf("place %s: %w: %v on a %dx%d board", ent.ID, footprint.ErrTooLarge, ent.Shape, bw, bh)
	}
	if err := p.board.ApplyFootprint(ent); err != nil {
		p.mu.Unlock()
		return err
	}
	p.version++
	version := p.version
	p.mu.Unlock()

	p.places.Add(1)
	p.log.WithFields(logrus.Fields{"entity": ent.ID, "kind": ent.Kind.String(), "at": ent.At.String()}).Debug("placed")
	p.emit(Record{
		Kind:       KindPlace,
		ID:         uuid.NewString(),
		AtUnixMs:   p.now().UnixMilli(),
		BoardID:    p.boardID,
		Version:    version,
		Footprint:  ent.Shape.String(),
		EntityID:   ent.ID,
		EntityKind: ent.Kind.String(),
		At:         ent.At.ToArray(),
	})
	return nil
}

// Remove releases a placed entity by id.
func (p *Planner) Remove(id string) error {
	p.mu.Lock()
	if err := p.board.ReleaseEntity(id); err != nil {
		p.mu.Unlock()
		return err
	}
	p.version++
	version := p.version
	p.mu.Unlock()

	p.releases.Add(1)
	p.log.WithField("entity", id).Debug("released")
	p.emit(Record{
		Kind:     KindRelease,
		ID:       uuid.NewString(),
		AtUnixMs: p.now().UnixMilli(),
		BoardID:  p.boardID,
		Version:  version,
		EntityID: id,
	})
	return nil
}

// Snapshot exports the board together with the version it reflects.
func (p *Planner) Snapshot() snapshot.BoardSnapshotV1 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := p.board.ExportSnapshot(p.boardID, p.now())
	snap.Header.BoardVersion = p.version
	return snap
}

// Restore replaces board state from snap.
func (p *Planner) Restore(snap snapshot.BoardSnapshotV1) error {
	g, err := grid.ImportSnapshot(snap)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.board = g
	p.version = snap.Header.BoardVersion
	p.mu.Unlock()
	return nil
}

func (p *Planner) Stats() Stats {
	return Stats{
		Queries:     p.queries.Load(),
		Found:       p.found.Load(),
		NoPath:      p.noPath.Load(),
		InvalidGoal: p.invalid.Load(),
		Budget:      p.budget.Load(),
		Failed:      p.failed.Load(),
		Expansions:  p.expansions.Load(),
		Places:      p.places.Load(),
		Releases:    p.releases.Load(),
		Version:     p.Version(),
	}
}

func (p *Planner) count(outcome string, expansions int) {
	p.queries.Add(1)
	p.expansions.Add(uint64(expansions))
	switch outcome {
	case OutcomeFound:
		p.found.Add(1)
	case OutcomeNoPath:
		p.noPath.Add(1)
	case OutcomeInvalidGoal:
		p.invalid.Add(1)
	case OutcomeBudget:
		p.budget.Add(1)
	default:
		p.failed.Add(1)
	}
}

func (p *Planner) emit(r Record) {
	for _, rec := range p.rec {
		if err := rec.WriteRecord(r); err != nil {
			p.log.WithError(err).WithField("kind", r.Kind).Warn("record write failed")
		}
	}
}

// OutcomeFor classifies a search error.
func OutcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeFound
	case errors.Is(err, pathfind.ErrNoPathExists):
		return OutcomeNoPath
	case errors.Is(err, pathfind.ErrInvalidGoal):
		return OutcomeInvalidGoal
	case errors.Is(err, pathfind.ErrSearchBudgetExceeded):
		return OutcomeBudget
	case errors.Is(err, grid.ErrOutOfBounds):
		return OutcomeOutOfBounds
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeBadRequest
	}
}
