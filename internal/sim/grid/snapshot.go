package grid

import (
	"fmt"
	"sort"
	"time"

	"gridnav.ai/internal/persistence/snapshot"
	"gridnav.ai/internal/sim/encoding"
	"gridnav.ai/internal/sim/footprint"
)

// Terrain class codes stored in snapshots.
const (
	terrainOpen     uint8 = 0 // crossable and buildable
	terrainCrossing uint8 = 1 // crossable only
	terrainBlocked  uint8 = 2
)

// ExportSnapshot captures terrain and every object applied with
// ApplyFootprint. Single-cell occupants set with Occupy are not persisted.
func (g *Grid) ExportSnapshot(boardID string, now time.Time) snapshot.BoardSnapshotV1 {
	g.mu.RLock()
	codes := make([]uint8, len(g.cells))
	for i, c := range g.cells {
		switch {
		case !c.Crossable:
			codes[i] = terrainBlocked
		case !c.Buildable:
			codes[i] = terrainCrossing
		default:
			codes[i] = terrainOpen
		}
	}
	ents := make([]snapshot.EntityV1, 0, len(g.placed))
	for _, p := range g.placed {
		at := p.Center()
		ents = append(ents, snapshot.EntityV1{
			ID:        p.ObjectID(),
			Kind:      p.ObjectKind().String(),
			X:         at.X,
			Y:         at.Y,
			Footprint: p.Footprint().String(),
		})
	}
	g.mu.RUnlock()

	sort.Slice(ents, func(i, j int) bool { return ents[i].ID < ents[j].ID })
	return snapshot.BoardSnapshotV1{
		Header: snapshot.Header{
			Version:   snapshot.Version,
			BoardID:   boardID,
			CreatedAt: now.Unix(),
		},
		Width:    g.width,
		Height:   g.height,
		Terrain:  encoding.EncodeRLE(codes),
		Entities: ents,
	}
}

// ImportSnapshot rebuilds a board from a snapshot. Entities are re-applied in
// snapshot order; any conflict aborts the import.
func ImportSnapshot(snap snapshot.BoardSnapshotV1) (*Grid, error) {
	if snap.Width <= 0 || snap.Height <= 0 {
		return nil, fmt.Errorf("snapshot: bad board size %dx%d", snap.Width, snap.Height)
	}
	n := snap.Width * snap.Height
	codes, err := encoding.DecodeRLE(snap.Terrain, n)
	if err != nil {
		return nil, fmt.Errorf("snapshot terrain: %w", err)
	}
	if len(codes) != n {
		return nil, fmt.Errorf("snapshot terrain: %d cells, want %d", len(codes), n)
	}

	g := New(snap.Width, snap.Height)
	for i, code := range codes {
		cell := &g.cells[i]
		switch code {
		case terrainOpen:
		case terrainCrossing:
			cell.Buildable = false
		case terrainBlocked:
			cell.Crossable = false
			cell.Buildable = false
		default:
			return nil, fmt.Errorf("snapshot terrain: unknown code %d at cell %d", code, i)
		}
	}

	for _, e := range snap.Entities {
		kind, err := ParseKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.ID, err)
		}
		fp, err := footprint.Parse(e.Footprint)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.ID, err)
		}
		ent := Entity{ID: e.ID, Kind: kind, At: Coord{X: e.X, Y: e.Y}, Shape: fp}
		if err := g.ApplyFootprint(ent); err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.ID, err)
		}
	}
	return g, nil
}
