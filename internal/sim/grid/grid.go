package grid

import (
	"fmt"
	"sync"
)

// Walkable values.
const (
	Free    int8 = 0
	Blocked int8 = -1
)

// Walkable is a detached copy of board walkability taken for one query.
type Walkable struct {
	Width  int
	Height int
	Cells  []int8
}

func (w Walkable) InBounds(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < w.Width && c.Y < w.Height
}

// At returns Blocked outside the board.
func (w Walkable) At(c Coord) int8 {
	if !w.InBounds(c) {
		return Blocked
	}
	return w.Cells[c.Y*w.Width+c.X]
}

// Grid is the authoritative occupancy state of a board. Mutations and
// snapshots are serialized by an internal lock; path searches run on
// snapshots without holding it.
type Grid struct {
	mu     sync.RWMutex
	width  int
	height int
	cells  []Cell

	placed map[string]Placeable
}

// New returns a width×height board with every cell crossable and buildable.
func New(width, height int) *Grid {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	g := &Grid{
		width:  width,
		height: height,
		cells:  make([]Cell, width*height),
		placed: make(map[string]Placeable),
	}
	for i := range g.cells {
		g.cells[i] = Cell{Crossable: true, Buildable: true}
	}
	return g
}

func (g *Grid) Size() (int, int) { return g.width, g.height }

func (g *Grid) InBounds(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.width && c.Y < g.height
}

func (g *Grid) idx(c Coord) int { return c.Y*g.width + c.X }

func (g *Grid) CellAt(c Coord) (Cell, error) {
	if !g.InBounds(c) {
		return Cell{}, fmt.Errorf("%w: %v", ErrOutOfBounds, c)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cells[g.idx(c)], nil
}

// SetTerrain updates the terrain class of a cell. Buildable is forced off for
// cells that are not crossable.
func (g *Grid) SetTerrain(c Coord, crossable, buildable bool) error {
	if !g.InBounds(c) {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, c)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	cell := &g.cells[g.idx(c)]
	cell.Crossable = crossable
	cell.Buildable = buildable && crossable
	return nil
}

// Occupy marks c as occupied by obj. Static objects turn the cell into a hard
// obstacle for every later snapshot until released.
func (g *Grid) Occupy(c Coord, obj Object) error {
	if !g.InBounds(c) {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, c)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.occupyLocked(c, obj)
}

func (g *Grid) occupyLocked(c Coord, obj Object) error {
	cell := &g.cells[g.idx(c)]
	if !cell.Crossable {
		return fmt.Errorf("%w: %v", ErrNotCrossable, c)
	}
	if cell.Kind != OccupantNone {
		if cell.Occupant != nil && cell.Occupant.ObjectID() == obj.ObjectID() {
			return nil
		}
		return fmt.Errorf("%w: %v by %s", ErrOccupied, c, cell.Occupant.ObjectID())
	}
	cell.Occupant = obj
	if obj.ObjectKind().Static() {
		cell.Kind = OccupantStatic
	} else {
		cell.Kind = OccupantUnit
	}
	return nil
}

// Release clears the occupant of c.
func (g *Grid) Release(c Coord) error {
	if !g.InBounds(c) {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, c)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	cell := &g.cells[g.idx(c)]
	cell.Occupant = nil
	cell.Kind = OccupantNone
	return nil
}

// ApplyFootprint occupies every cell under obj's footprint. It is
// all-or-nothing: on any conflict the cells taken so far are released.
func (g *Grid) ApplyFootprint(obj Placeable) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.placed[obj.ObjectID()]; ok {
		return fmt.Errorf("%w: %s already placed", ErrOccupied, obj.ObjectID())
	}
	center := obj.Center()
	taken := make([]Coord, 0, 16)
	for _, off := range obj.Footprint().Offsets() {
		c := Coord{X: center.X + off[0], Y: center.Y + off[1]}
		var err error
		if !g.InBounds(c) {
			err = fmt.Errorf("%w: %v", ErrOutOfBounds, c)
		} else {
			err = g.occupyLocked(c, obj)
		}
		if err != nil {
			for _, t := range taken {
				g.releaseIfLocked(t, obj)
			}
			return err
		}
		taken = append(taken, c)
	}
	g.placed[obj.ObjectID()] = obj
	return nil
}

// ReleaseFootprint releases the cells under obj's footprint that obj still holds.
func (g *Grid) ReleaseFootprint(obj Placeable) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseFootprintLocked(obj)
}

// ReleaseEntity releases a placed object by id.
func (g *Grid) ReleaseEntity(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	obj, ok := g.placed[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	g.releaseFootprintLocked(obj)
	return nil
}

func (g *Grid) releaseFootprintLocked(obj Placeable) {
	center := obj.Center()
	for _, off := range obj.Footprint().Offsets() {
		c := Coord{X: center.X + off[0], Y: center.Y + off[1]}
		if g.InBounds(c) {
			g.releaseIfLocked(c, obj)
		}
	}
	delete(g.placed, obj.ObjectID())
}

func (g *Grid) releaseIfLocked(c Coord, obj Object) {
	cell := &g.cells[g.idx(c)]
	if cell.Occupant == nil || cell.Occupant.ObjectID() != obj.ObjectID() {
		return
	}
	cell.Occupant = nil
	cell.Kind = OccupantNone
}

// Placed returns the objects applied with ApplyFootprint, in no particular order.
func (g *Grid) Placed() []Placeable {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Placeable, 0, len(g.placed))
	for _, p := range g.placed {
		out = append(out, p)
	}
	return out
}

// SnapshotWalkable copies the board into a Free/Blocked matrix. The lock is
// held only for the copy.
func (g *Grid) SnapshotWalkable() Walkable {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w := Walkable{Width: g.width, Height: g.height, Cells: make([]int8, len(g.cells))}
	for i, c := range g.cells {
		if c.HardObstacle() {
			w.Cells[i] = Blocked
		}
	}
	return w
}
