package pathfind

import (
	"container/heap"

	"gridnav.ai/internal/sim/grid"
)

type frontierItem struct {
	cost float64
	seq  uint64
	at   grid.Coord
}

type frontierHeap []frontierItem

func (h frontierHeap) Len() int { return len(h) }
func (h frontierHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	return h[i].seq < h[j].seq
}
func (h frontierHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *frontierHeap) Push(x any)   { *h = append(*h, x.(frontierItem)) }
func (h *frontierHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Frontier is a min-priority worklist ordered by (cost, insertion order).
// A coordinate may be pushed more than once; consumers dedupe on pop.
type Frontier struct {
	h   frontierHeap
	seq uint64
}

func NewFrontier() *Frontier {
	return &Frontier{h: make(frontierHeap, 0, 64)}
}

func (f *Frontier) Push(c grid.Coord, cost float64) {
	heap.Push(&f.h, frontierItem{cost: cost, seq: f.seq, at: c})
	f.seq++
}

func (f *Frontier) Pop() (grid.Coord, error) {
	if len(f.h) == 0 {
		return grid.Coord{}, ErrEmptyFrontier
	}
	it := heap.Pop(&f.h).(frontierItem)
	return it.at, nil
}

func (f *Frontier) Len() int { return len(f.h) }
