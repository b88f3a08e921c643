package indexdb

import (
	"context"
	"database/sql"
)

type OutcomeCount struct {
	Outcome string
	Count   int64
}

type QueryRow struct {
	ID         string
	BoardID    string
	Version    int64
	Footprint  string
	Origin     [2]int
	Goal       [2]int
	Outcome    string
	Steps      int
	Expansions int
	DurationUs int64
}

type SnapshotRow struct {
	BoardID   string
	Version   int64
	Path      string
	Width     int
	Height    int
	Entities  int
	CreatedAt int64
}

// DB exposes the underlying handle for ad-hoc admin queries.
func (s *SQLiteIndex) DB() *sql.DB { return s.db }

func OutcomeCounts(ctx context.Context, db *sql.DB) ([]OutcomeCount, error) {
	rows, err := db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM queries GROUP BY outcome ORDER BY COUNT(*) DESC, outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		if err := rows.Scan(&c.Outcome, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SlowestQueries returns the queries with the most expansions first.
func SlowestQueries(ctx context.Context, db *sql.DB, limit int) ([]QueryRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT id,board_id,version,footprint,origin_x,origin_y,goal_x,goal_y,outcome,steps,expansions,duration_us
		FROM queries ORDER BY expansions DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QueryRow
	for rows.Next() {
		var q QueryRow
		if err := rows.Scan(&q.ID, &q.BoardID, &q.Version, &q.Footprint,
			&q.Origin[0], &q.Origin[1], &q.Goal[0], &q.Goal[1],
			&q.Outcome, &q.Steps, &q.Expansions, &q.DurationUs); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func Snapshots(ctx context.Context, db *sql.DB, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT board_id,version,path,width,height,entities,created_at
		FROM snapshots ORDER BY created_at DESC, version DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(&r.BoardID, &r.Version, &r.Path, &r.Width, &r.Height, &r.Entities, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
