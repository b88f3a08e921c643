package grid

import (
	"errors"
	"fmt"

	"gridnav.ai/internal/sim/footprint"
)

var (
	ErrOutOfBounds  = errors.New("grid: out of bounds")
	ErrOccupied     = errors.New("grid: cell already occupied")
	ErrNotCrossable = errors.New("grid: cell not crossable")
	ErrUnknownID    = errors.New("grid: unknown entity")
)

// Coord indexes a board cell. Comparable and usable as a map key.
type Coord struct {
	X int
	Y int
}

func (c Coord) Add(d Coord) Coord { return Coord{X: c.X + d.X, Y: c.Y + d.Y} }
func (c Coord) Sub(d Coord) Coord { return Coord{X: c.X - d.X, Y: c.Y - d.Y} }
func (c Coord) ToArray() [2]int   { return [2]int{c.X, c.Y} }
func (c Coord) String() string    { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

func FromArray(a [2]int) Coord { return Coord{X: a[0], Y: a[1]} }

// Chebyshev is the number of 8-connected steps between a and b on an open board.
func Chebyshev(a, b Coord) int {
	return max(abs(a.X-b.X), abs(a.Y-b.Y))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type OccupantKind uint8

const (
	OccupantNone OccupantKind = iota
	OccupantUnit
	OccupantStatic
)

func (k OccupantKind) String() string {
	switch k {
	case OccupantUnit:
		return "unit"
	case OccupantStatic:
		return "static"
	default:
		return "none"
	}
}

// ObjectKind classifies objects placed on the board.
type ObjectKind uint8

const (
	KindUnit ObjectKind = iota + 1
	KindBuilding
	KindResource
	KindDestructible
)

var kindNames = map[ObjectKind]string{
	KindUnit:         "UNIT",
	KindBuilding:     "BUILDING",
	KindResource:     "RESOURCE",
	KindDestructible: "DESTRUCTIBLE",
}

func (k ObjectKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// Static reports whether objects of this kind are hard obstacles for planning.
func (k ObjectKind) Static() bool { return k != KindUnit }

func ParseKind(s string) (ObjectKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown object kind %q", s)
}

// Object is anything that can occupy a cell.
type Object interface {
	ObjectID() string
	ObjectKind() ObjectKind
}

// Placeable is an object with a footprint centred on a cell.
type Placeable interface {
	Object
	Center() Coord
	Footprint() footprint.Footprint
}

// Entity is the plain Placeable used by transports, snapshots and map loading.
type Entity struct {
	ID    string
	Kind  ObjectKind
	At    Coord
	Shape footprint.Footprint
}

func (e Entity) ObjectID() string               { return e.ID }
func (e Entity) ObjectKind() ObjectKind         { return e.Kind }
func (e Entity) Center() Coord                  { return e.At }
func (e Entity) Footprint() footprint.Footprint { return e.Shape }

// Cell is one board cell. Buildable implies Crossable.
type Cell struct {
	Crossable bool
	Buildable bool
	Occupant  Object
	Kind      OccupantKind
}

// HardObstacle reports whether planners must route around this cell.
func (c Cell) HardObstacle() bool {
	return !c.Crossable || c.Kind == OccupantStatic
}

// CanBuild reports whether a building may be placed here right now.
func (c Cell) CanBuild() bool {
	return c.Buildable && c.Kind == OccupantNone
}
