package pathfind

import (
	"fmt"

	"gridnav.ai/internal/sim/grid"
)

// reconstruct walks sources back from the goal and densifies the jump point
// chain into single-cell steps. Source chains strictly decrease in cost, so a
// walk longer than the board means the invariant is broken.
func (sc *searchContext) reconstruct() Result {
	limit := len(sc.sources)
	chain := []grid.Coord{sc.goal}
	costs := []float64{sc.goalCost}
	i := sc.idx(sc.goal)
	for {
		src := sc.sources[i]
		if src == originSource {
			break
		}
		if src == noSource {
			panic(fmt.Sprintf("pathfind: broken source chain at %v", sc.coordOf(i)))
		}
		if len(chain) > limit {
			panic("pathfind: source chain cycle")
		}
		i = src
		c := sc.coordOf(i)
		chain = append(chain, c)
		if c == sc.origin {
			costs = append(costs, 0)
		} else {
			costs = append(costs, sc.field.Value(c))
		}
	}
	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
		costs[l], costs[r] = costs[r], costs[l]
	}

	path, cost := densify(chain, sc.opts.CardinalCost, sc.opts.DiagonalCost)
	return Result{
		Goal:       sc.goal,
		Path:       path,
		JumpPoints: chain,
		JumpCosts:  costs,
		Cost:       cost,
		Stats:      sc.stats,
	}
}

// densify expands consecutive jump points into unit steps and sums the step
// costs.
func densify(chain []grid.Coord, cardinal, diagonal float64) ([]grid.Coord, float64) {
	if len(chain) == 0 {
		return nil, 0
	}
	out := []grid.Coord{chain[0]}
	cost := 0.0
	for k := 1; k < len(chain); k++ {
		cur, next := chain[k-1], chain[k]
		for cur != next {
			d := next.Sub(cur)
			step := grid.Coord{X: sign(d.X), Y: sign(d.Y)}
			if step.X != 0 && step.Y != 0 {
				cost += diagonal
			} else {
				cost += cardinal
			}
			cur = cur.Add(step)
			out = append(out, cur)
		}
	}
	return out, cost
}
