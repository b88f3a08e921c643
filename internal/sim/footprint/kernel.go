package footprint

import (
	"math"
	"sync"
)

// Kernel is a boolean structuring element used to dilate obstacles by a
// footprint. Kernels are immutable once built.
type Kernel struct {
	Width  int
	Height int
	bits   []bool
}

func newKernel(w, h int) Kernel {
	return Kernel{Width: w, Height: h, bits: make([]bool, w*h)}
}

func (k Kernel) At(x, y int) bool {
	if x < 0 || y < 0 || x >= k.Width || y >= k.Height {
		return false
	}
	return k.bits[y*k.Width+x]
}

// Origin is the kernel cell that lands on the dilated source cell.
func (k Kernel) Origin() (int, int) {
	return k.Width / 2, k.Height / 2
}

// Count returns the number of set cells.
func (k Kernel) Count() int {
	n := 0
	for _, b := range k.bits {
		if b {
			n++
		}
	}
	return n
}

func (k Kernel) Equal(o Kernel) bool {
	if k.Width != o.Width || k.Height != o.Height {
		return false
	}
	for i := range k.bits {
		if k.bits[i] != o.bits[i] {
			return false
		}
	}
	return true
}

// RoundKernel builds the kernel for a round footprint. The kernel spans
// x,y in [0, ceil(radius)] and a cell is set when its distance to the kernel
// centre is at most ceil(radius/2). Side and membership round differently;
// both decide which gaps a unit fits through.
func RoundKernel(radius float64) Kernel {
	if radius < 0 {
		radius = 0
	}
	n := int(math.Ceil(radius))
	side := n + 1
	k := newKernel(side, side)
	c := float64(n) / 2
	limit := math.Ceil(radius / 2)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			if math.Hypot(float64(x)-c, float64(y)-c) <= limit {
				k.bits[y*side+x] = true
			}
		}
	}
	return k
}

// RectKernel is a filled width×height kernel.
func RectKernel(width, height int) Kernel {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	k := newKernel(width, height)
	for i := range k.bits {
		k.bits[i] = true
	}
	return k
}

// KernelSize is the width and height of the kernel built for fp.
func KernelSize(fp Footprint) (int, int) {
	if fp.Shape == ShapeRound {
		side := int(math.Ceil(max(fp.Radius, 0))) + 1
		return side, side
	}
	return max(fp.Width, 1), max(fp.Height, 1)
}

// kernelKey holds only what the kernel depends on. For round footprints that
// is ceil(r) and ceil(r/2), so radii rounding to the same pair share an entry.
type kernelKey struct {
	shape Shape
	a, b  int
}

func keyFor(fp Footprint) kernelKey {
	if fp.Shape == ShapeRound {
		r := max(fp.Radius, 0)
		return kernelKey{shape: ShapeRound, a: int(math.Ceil(r)), b: int(math.Ceil(r / 2))}
	}
	return kernelKey{shape: fp.Shape, a: fp.Width, b: fp.Height}
}

// KernelCache memoizes kernels per (shape, size). Safe for concurrent use.
type KernelCache struct {
	mu sync.RWMutex
	m  map[kernelKey]Kernel
}

func NewKernelCache() *KernelCache {
	return &KernelCache{m: make(map[kernelKey]Kernel)}
}

func (c *KernelCache) Get(fp Footprint) Kernel {
	key := keyFor(fp)
	c.mu.RLock()
	k, ok := c.m[key]
	c.mu.RUnlock()
	if ok {
		return k
	}

	k = build(fp)
	c.mu.Lock()
	if prev, ok := c.m[key]; ok {
		k = prev
	} else {
		c.m[key] = k
	}
	c.mu.Unlock()
	return k
}

func (c *KernelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func build(fp Footprint) Kernel {
	if fp.Shape == ShapeRound {
		return RoundKernel(fp.Radius)
	}
	return RectKernel(fp.Width, fp.Height)
}

var defaultCache = NewKernelCache()

// KernelFor returns the cached kernel for fp from the process-wide cache.
func KernelFor(fp Footprint) Kernel {
	return defaultCache.Get(fp)
}
