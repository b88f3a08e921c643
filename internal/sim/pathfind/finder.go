package pathfind

import (
	"fmt"

	"gridnav.ai/internal/sim/footprint"
	"gridnav.ai/internal/sim/grid"
)

// Board is the read side of an occupancy grid that the finder needs.
type Board interface {
	Size() (int, int)
	SnapshotWalkable() grid.Walkable
}

type Options struct {
	CardinalCost float64
	DiagonalCost float64
	// MaxExpansions caps the number of frontier pops. 0 disables the cap.
	MaxExpansions int
	// Kernels overrides the process-wide kernel cache.
	Kernels *footprint.KernelCache
}

func DefaultOptions() Options {
	return Options{CardinalCost: 1, DiagonalCost: 1.7}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.CardinalCost <= 0 {
		o.CardinalCost = d.CardinalCost
	}
	if o.DiagonalCost <= 0 {
		o.DiagonalCost = d.DiagonalCost
	}
	if o.MaxExpansions < 0 {
		o.MaxExpansions = 0
	}
	return o
}

type Stats struct {
	Expansions int
	Pushes     int
	Rays       int
	Repaired   bool
}

type Result struct {
	// Goal is the effective goal. It differs from the requested goal when
	// the requested cell was blocked and had to be repaired.
	Goal grid.Coord
	// Path is the dense per-cell path, origin and goal included.
	Path []grid.Coord
	// JumpPoints is the sparse chain the search produced, origin first.
	JumpPoints []grid.Coord
	// JumpCosts holds the cost recorded at each jump point.
	JumpCosts []float64
	Cost      float64
	Stats     Stats
}

// Steps is the number of single-cell moves in the path.
func (r Result) Steps() int {
	if len(r.Path) == 0 {
		return 0
	}
	return len(r.Path) - 1
}

// FindPath plans a path for a unit with footprint fp on a snapshot of b.
func FindPath(b Board, fp footprint.Footprint, origin, goal grid.Coord, opts Options) (Result, error) {
	return Search(b.SnapshotWalkable(), fp, origin, goal, opts)
}

var (
	cardinals = [4]grid.Coord{{X: 0, Y: 1}, {X: 1, Y: 0}, {X: -1, Y: 0}, {X: 0, Y: -1}}
	diagonals = [4]grid.Coord{{X: 1, Y: 1}, {X: 1, Y: -1}, {X: -1, Y: 1}, {X: -1, Y: -1}}
)

// Search runs jump point search on an already captured walkability snapshot.
func Search(w grid.Walkable, fp footprint.Footprint, origin, goal grid.Coord, opts Options) (Result, error) {
	if err := fp.Validate(); err != nil {
		return Result{}, err
	}
	opts = opts.normalized()
	if !w.InBounds(origin) {
		return Result{}, fmt.Errorf("%w: origin %v", grid.ErrOutOfBounds, origin)
	}
	if kw, kh := footprint.KernelSize(fp); kw > w.Width || kh > w.Height {
		return Result{}, fmt.Errorf("%w: %v needs %dx%d on a %dx%d board", footprint.ErrTooLarge, fp, kw, kh, w.Width, w.Height)
	}
	if origin == goal {
		return trivial(origin, Stats{}), nil
	}

	var kernel footprint.Kernel
	if opts.Kernels != nil {
		kernel = opts.Kernels.Get(fp)
	} else {
		kernel = footprint.KernelFor(fp)
	}
	field := NewField(w, kernel)

	var stats Stats
	if field.Blocked(goal) {
		repaired, err := field.NearestFree(goal)
		if err != nil {
			return Result{Goal: goal, Stats: Stats{Repaired: true}}, err
		}
		goal = repaired
		stats.Repaired = true
	}
	if origin == goal {
		return trivial(origin, stats), nil
	}

	// A unit standing inside inflated clearance must still be able to leave.
	field.Set(origin, valueFree)
	field.Set(goal, valueGoal)

	sc := newSearchContext(field, origin, goal, opts)
	sc.stats = stats
	found, err := sc.run()
	if err != nil {
		return Result{Goal: goal, Stats: sc.stats}, err
	}
	if !found {
		return Result{Goal: goal, Stats: sc.stats}, ErrNoPathExists
	}
	return sc.reconstruct(), nil
}

func trivial(at grid.Coord, stats Stats) Result {
	return Result{
		Goal:       at,
		Path:       []grid.Coord{at},
		JumpPoints: []grid.Coord{at},
		JumpCosts:  []float64{0},
		Stats:      stats,
	}
}

type outcome uint8

const (
	outcomeContinue outcome = iota
	outcomeDeadEnd
	outcomeJumpPoint
	outcomeGoal
)

const (
	noSource     = -1
	originSource = -2
)

// searchContext holds all state of one query.
type searchContext struct {
	field    *Field
	sources  []int
	visited  []bool
	frontier *Frontier

	origin   grid.Coord
	goal     grid.Coord
	goalCost float64

	opts  Options
	stats Stats
}

func newSearchContext(f *Field, origin, goal grid.Coord, opts Options) *searchContext {
	n := f.width * f.height
	sc := &searchContext{
		field:    f,
		sources:  make([]int, n),
		visited:  make([]bool, n),
		frontier: NewFrontier(),
		origin:   origin,
		goal:     goal,
		opts:     opts,
	}
	for i := range sc.sources {
		sc.sources[i] = noSource
	}
	sc.sources[sc.idx(origin)] = originSource
	return sc
}

func (sc *searchContext) idx(c grid.Coord) int { return c.Y*sc.field.width + c.X }

func (sc *searchContext) coordOf(i int) grid.Coord {
	return grid.Coord{X: i % sc.field.width, Y: i / sc.field.width}
}

func (sc *searchContext) push(c grid.Coord) {
	sc.frontier.Push(c, sc.field.Value(c))
	sc.stats.Pushes++
}

// run drives the main loop. It reports whether the goal was reached.
func (sc *searchContext) run() (bool, error) {
	sc.push(sc.origin)
	for sc.frontier.Len() > 0 {
		if sc.opts.MaxExpansions > 0 && sc.stats.Expansions >= sc.opts.MaxExpansions {
			return false, ErrSearchBudgetExceeded
		}
		cur, err := sc.frontier.Pop()
		if err != nil {
			panic(err)
		}
		i := sc.idx(cur)
		if sc.visited[i] {
			continue
		}
		sc.visited[i] = true
		sc.stats.Expansions++

		if sc.expand(cur) == outcomeGoal {
			return true, nil
		}
	}
	return false, nil
}

func (sc *searchContext) expand(cur grid.Coord) outcome {
	back, hasBack := sc.backward(cur)
	for _, d := range cardinals {
		if hasBack && d == back {
			continue
		}
		if sc.jumpCardinal(cur, d) == outcomeGoal {
			return outcomeGoal
		}
	}
	for _, d := range diagonals {
		if hasBack && d == back {
			continue
		}
		if sc.jumpDiagonal(cur, d) == outcomeGoal {
			return outcomeGoal
		}
	}
	return outcomeContinue
}

// backward returns the direction pointing from cur straight back at the jump
// point it was reached from. The origin has no backward direction.
func (sc *searchContext) backward(cur grid.Coord) (grid.Coord, bool) {
	src := sc.sources[sc.idx(cur)]
	if src < 0 {
		return grid.Coord{}, false
	}
	d := cur.Sub(sc.coordOf(src))
	return grid.Coord{X: -sign(d.X), Y: -sign(d.Y)}, true
}

// step applies the checks shared by both ray kinds to the cell c reached from
// jump point from at running cost.
func (sc *searchContext) step(from, c grid.Coord, cost float64) outcome {
	if c == sc.goal {
		sc.sources[sc.idx(c)] = sc.idx(from)
		sc.goalCost = cost
		return outcomeGoal
	}
	if sc.field.Blocked(c) || c == sc.origin {
		return outcomeDeadEnd
	}
	if prev := sc.field.Value(c); prev != valueFree && prev < cost {
		return outcomeDeadEnd
	}
	sc.sources[sc.idx(c)] = sc.idx(from)
	sc.field.Set(c, cost)
	return outcomeContinue
}

func (sc *searchContext) jumpCardinal(from, d grid.Coord) outcome {
	sc.stats.Rays++
	f := sc.field
	cost := f.Value(from)
	cur := from
	for {
		cost += sc.opts.CardinalCost
		cur = cur.Add(d)
		if o := sc.step(from, cur, cost); o != outcomeContinue {
			return o
		}

		cx, cy := cur.X, cur.Y
		var forced bool
		if d.Y == 0 {
			forced = (f.Blocked(grid.Coord{X: cx, Y: cy - 1}) && !f.Blocked(grid.Coord{X: cx + d.X, Y: cy - 1})) ||
				(f.Blocked(grid.Coord{X: cx, Y: cy + 1}) && !f.Blocked(grid.Coord{X: cx + d.X, Y: cy + 1}))
		} else {
			forced = (f.Blocked(grid.Coord{X: cx - 1, Y: cy}) && !f.Blocked(grid.Coord{X: cx - 1, Y: cy + d.Y})) ||
				(f.Blocked(grid.Coord{X: cx + 1, Y: cy}) && !f.Blocked(grid.Coord{X: cx + 1, Y: cy + d.Y}))
		}
		if forced {
			sc.push(cur)
			return outcomeJumpPoint
		}
	}
}

func (sc *searchContext) jumpDiagonal(from, d grid.Coord) outcome {
	sc.stats.Rays++
	f := sc.field
	cost := f.Value(from)
	cur := from
	for {
		cost += sc.opts.DiagonalCost
		cur = cur.Add(d)
		if o := sc.step(from, cur, cost); o != outcomeContinue {
			return o
		}

		pushed := false
		for _, sub := range [2]grid.Coord{{X: d.X}, {Y: d.Y}} {
			switch sc.jumpCardinal(cur, sub) {
			case outcomeGoal:
				return outcomeGoal
			case outcomeJumpPoint:
				if !pushed {
					sc.push(cur)
					pushed = true
				}
			}
		}

		cx, cy := cur.X, cur.Y
		s1 := f.Blocked(grid.Coord{X: cx - d.X, Y: cy})
		d1 := f.Blocked(grid.Coord{X: cx - d.X, Y: cy + d.Y})
		s2 := f.Blocked(grid.Coord{X: cx, Y: cy - d.Y})
		d2 := f.Blocked(grid.Coord{X: cx + d.X, Y: cy - d.Y})
		if !pushed && ((s1 && !d1) || (s2 && !d2)) {
			sc.push(cur)
		}
	}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
