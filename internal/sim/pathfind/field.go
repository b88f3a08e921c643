package pathfind

import (
	"math"

	"gridnav.ai/internal/sim/footprint"
	"gridnav.ai/internal/sim/grid"
)

// Field values. Positive values are the accumulated cost at which a ray
// reached the cell.
const (
	valueFree    = 0.0
	valueBlocked = -1.0
	valueGoal    = -3.0
)

// Field is the query-local, footprint-inflated obstacle matrix. Every
// accessor is bounds-safe: outside the board reads as blocked and writes are
// dropped, so the jump loops never branch on bounds themselves.
type Field struct {
	width  int
	height int
	vals   []float64
}

// NewField dilates the blocked cells of w by kernel k. Each set kernel cell
// (kx,ky) marks blocked+(kx,ky)-k.Origin(). Cells beyond the board edge are
// not treated as obstacle sources.
func NewField(w grid.Walkable, k footprint.Kernel) *Field {
	f := &Field{width: w.Width, height: w.Height, vals: make([]float64, len(w.Cells))}
	ox, oy := k.Origin()

	offs := make([]grid.Coord, 0, k.Width*k.Height)
	for ky := 0; ky < k.Height; ky++ {
		for kx := 0; kx < k.Width; kx++ {
			if k.At(kx, ky) {
				offs = append(offs, grid.Coord{X: kx - ox, Y: ky - oy})
			}
		}
	}

	for i, v := range w.Cells {
		if v != grid.Blocked {
			continue
		}
		b := grid.Coord{X: i % w.Width, Y: i / w.Width}
		f.vals[i] = valueBlocked
		for _, o := range offs {
			f.Set(b.Add(o), valueBlocked)
		}
	}
	return f
}

func (f *Field) InBounds(c grid.Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < f.width && c.Y < f.height
}

func (f *Field) Size() (int, int) { return f.width, f.height }

// Blocked is true outside the board or on a blocked cell.
func (f *Field) Blocked(c grid.Coord) bool {
	if !f.InBounds(c) {
		return true
	}
	return f.vals[c.Y*f.width+c.X] == valueBlocked
}

// Value returns -1 outside the board, which any positive running cost
// compares as already cheaper.
func (f *Field) Value(c grid.Coord) float64 {
	if !f.InBounds(c) {
		return valueBlocked
	}
	return f.vals[c.Y*f.width+c.X]
}

func (f *Field) Set(c grid.Coord, v float64) {
	if !f.InBounds(c) {
		return
	}
	f.vals[c.Y*f.width+c.X] = v
}

// NearestFree scans square rings of growing radius around c, each ring in
// row-major order, and returns the first free in-bounds cell. Rings stop
// once the radius exceeds the board diagonal.
func (f *Field) NearestFree(c grid.Coord) (grid.Coord, error) {
	limit := int(math.Ceil(math.Hypot(float64(f.width), float64(f.height))))
	for r := 1; r <= limit; r++ {
		for y := c.Y - r; y <= c.Y+r; y++ {
			edgeRow := y == c.Y-r || y == c.Y+r
			for x := c.X - r; x <= c.X+r; x++ {
				if !edgeRow && x != c.X-r && x != c.X+r {
					continue
				}
				p := grid.Coord{X: x, Y: y}
				if f.InBounds(p) && !f.Blocked(p) {
					return p, nil
				}
			}
		}
	}
	return grid.Coord{}, ErrInvalidGoal
}
