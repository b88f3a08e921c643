package pathfind

import (
	"errors"
	"testing"

	"gridnav.ai/internal/sim/footprint"
	"gridnav.ai/internal/sim/grid"
)

func walkableWithBlocked(w, h int, blocked ...grid.Coord) grid.Walkable {
	out := grid.Walkable{Width: w, Height: h, Cells: make([]int8, w*h)}
	for _, c := range blocked {
		out.Cells[c.Y*w+c.X] = grid.Blocked
	}
	return out
}

func TestNewField_DilatesByKernel(t *testing.T) {
	w := walkableWithBlocked(10, 10, grid.Coord{X: 5, Y: 5})
	f := NewField(w, footprint.RoundKernel(1))

	want := map[grid.Coord]bool{{X: 4, Y: 4}: true, {X: 5, Y: 4}: true, {X: 4, Y: 5}: true, {X: 5, Y: 5}: true}
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			c := grid.Coord{X: x, Y: y}
			if f.Blocked(c) != want[c] {
				t.Fatalf("cell %v blocked=%v want %v", c, f.Blocked(c), want[c])
			}
		}
	}
}

func TestNewField_UnitKernelIsIdentity(t *testing.T) {
	w := walkableWithBlocked(4, 4, grid.Coord{X: 0, Y: 0}, grid.Coord{X: 3, Y: 2})
	f := NewField(w, footprint.RectKernel(1, 1))
	for i, v := range w.Cells {
		c := grid.Coord{X: i % 4, Y: i / 4}
		if f.Blocked(c) != (v == grid.Blocked) {
			t.Fatalf("cell %v changed under 1x1 kernel", c)
		}
	}
}

func TestField_BoundsSafe(t *testing.T) {
	f := NewField(walkableWithBlocked(3, 3), footprint.RectKernel(1, 1))
	out := grid.Coord{X: -1, Y: 1}
	if !f.Blocked(out) {
		t.Fatalf("out-of-bounds should read as blocked")
	}
	if f.Value(out) != valueBlocked {
		t.Fatalf("out-of-bounds value=%v", f.Value(out))
	}
	f.Set(out, 5)
	f.Set(grid.Coord{X: 3, Y: 0}, 5)
	f.Set(grid.Coord{X: 1, Y: 1}, 2.5)
	if f.Value(grid.Coord{X: 1, Y: 1}) != 2.5 {
		t.Fatalf("in-bounds set lost")
	}
}

func TestNearestFree_RingOrder(t *testing.T) {
	var blocked []grid.Coord
	for y := 4; y <= 6; y++ {
		for x := 4; x <= 6; x++ {
			blocked = append(blocked, grid.Coord{X: x, Y: y})
		}
	}
	f := NewField(walkableWithBlocked(10, 10, blocked...), footprint.RectKernel(1, 1))

	got, err := f.NearestFree(grid.Coord{X: 5, Y: 5})
	if err != nil {
		t.Fatalf("NearestFree: %v", err)
	}
	if got != (grid.Coord{X: 3, Y: 3}) {
		t.Fatalf("got %v want (3,3)", got)
	}

	// From outside the board the first in-bounds cell of the ring wins.
	got, err = f.NearestFree(grid.Coord{X: 12, Y: 3})
	if err != nil {
		t.Fatalf("NearestFree off-board: %v", err)
	}
	if got != (grid.Coord{X: 9, Y: 0}) {
		t.Fatalf("got %v want (9,0)", got)
	}
}

func TestNearestFree_Bounded(t *testing.T) {
	var all []grid.Coord
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			all = append(all, grid.Coord{X: x, Y: y})
		}
	}
	f := NewField(walkableWithBlocked(5, 5, all...), footprint.RectKernel(1, 1))
	if _, err := f.NearestFree(grid.Coord{X: 2, Y: 2}); !errors.Is(err, ErrInvalidGoal) {
		t.Fatalf("expected ErrInvalidGoal, got %v", err)
	}
}
