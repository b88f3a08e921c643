package pathfind

import (
	"errors"
	"testing"

	"gridnav.ai/internal/sim/grid"
)

func TestFrontier_OrdersByCostThenInsertion(t *testing.T) {
	f := NewFrontier()
	f.Push(grid.Coord{X: 1}, 3)
	f.Push(grid.Coord{X: 2}, 1)
	f.Push(grid.Coord{X: 3}, 2)
	f.Push(grid.Coord{X: 4}, 1)
	f.Push(grid.Coord{X: 2}, 0.5) // duplicates are allowed

	want := []int{2, 2, 4, 3, 1}
	for i, x := range want {
		c, err := f.Pop()
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if c.X != x {
			t.Fatalf("pop %d: got x=%d want %d", i, c.X, x)
		}
	}
	if f.Len() != 0 {
		t.Fatalf("len=%d want 0", f.Len())
	}
	if _, err := f.Pop(); !errors.Is(err, ErrEmptyFrontier) {
		t.Fatalf("expected ErrEmptyFrontier, got %v", err)
	}
}

func TestFrontier_TiesKeepInsertionOrder(t *testing.T) {
	f := NewFrontier()
	for i := 0; i < 50; i++ {
		f.Push(grid.Coord{X: i}, 7)
	}
	for i := 0; i < 50; i++ {
		c, _ := f.Pop()
		if c.X != i {
			t.Fatalf("tie %d popped x=%d", i, c.X)
		}
	}
}
