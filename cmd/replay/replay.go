package main

import (
	"fmt"
	"sort"

	"gridnav.ai/internal/sim/footprint"
	"gridnav.ai/internal/sim/grid"
	"gridnav.ai/internal/sim/pathfind"
	"gridnav.ai/internal/sim/planner"
)

type replayStats struct {
	Applied int
	Checked int
	Skipped int
}

// replay applies mutations in version order on top of g (which reflects
// version from) and re-runs every query at the version it observed. A query
// whose outcome or path digest differs fails the replay.
func replay(g *grid.Grid, boardID string, from, to uint64, recs []planner.Record) (replayStats, error) {
	var st replayStats
	ordered := make([]planner.Record, 0, len(recs))
	for _, r := range recs {
		if boardID != "" && r.BoardID != boardID {
			continue
		}
		ordered = append(ordered, r)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		// A mutation produces its version; queries at that version saw it.
		return a.Kind != planner.KindQuery && b.Kind == planner.KindQuery
	})

	version := from
	for _, r := range ordered {
		if to != 0 && r.Version > to {
			break
		}
		switch r.Kind {
		case planner.KindPlace, planner.KindRelease:
			if r.Version <= from {
				st.Skipped++
				continue
			}
			if r.Version != version+1 {
				return st, fmt.Errorf("version gap: at=%d next mutation=%d (%s)", version, r.Version, r.ID)
			}
			if err := applyMutation(g, r); err != nil {
				return st, fmt.Errorf("mutation %s v%d: %w", r.ID, r.Version, err)
			}
			version = r.Version
			st.Applied++
		case planner.KindQuery:
			if r.Version != version {
				st.Skipped++
				continue
			}
			if err := checkQuery(g, r); err != nil {
				return st, fmt.Errorf("query %s v%d: %w", r.ID, r.Version, err)
			}
			st.Checked++
		default:
			st.Skipped++
		}
	}
	return st, nil
}

func applyMutation(g *grid.Grid, r planner.Record) error {
	if r.Kind == planner.KindRelease {
		return g.ReleaseEntity(r.EntityID)
	}
	fp, err := footprint.Parse(r.Footprint)
	if err != nil {
		return err
	}
	kind, err := grid.ParseKind(r.EntityKind)
	if err != nil {
		return err
	}
	return g.ApplyFootprint(grid.Entity{ID: r.EntityID, Kind: kind, At: grid.FromArray(r.At), Shape: fp})
}

func checkQuery(g *grid.Grid, r planner.Record) error {
	var (
		res pathfind.Result
		err error
	)
	fp, perr := footprint.Parse(r.Footprint)
	if perr != nil {
		err = perr
	} else {
		opts := pathfind.Options{CardinalCost: r.Costs[0], DiagonalCost: r.Costs[1], MaxExpansions: r.Budget}
		res, err = pathfind.Search(g.SnapshotWalkable(), fp, grid.FromArray(r.Origin), grid.FromArray(r.Goal), opts)
	}
	if got := planner.OutcomeFor(err); got != r.Outcome {
		return fmt.Errorf("outcome mismatch: got=%s want=%s", got, r.Outcome)
	}
	if got := planner.PathDigest(res.Path); got != r.PathDigest {
		return fmt.Errorf("path digest mismatch: got=%s want=%s", got, r.PathDigest)
	}
	return nil
}
