package footprint

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Size limits enforced by Validate.
const (
	MaxRadius = 64.0
	MaxSide   = 128
)

// ErrTooLarge reports a footprint over the size limits or wider than the board.
var ErrTooLarge = errors.New("footprint: too large")

type Shape uint8

const (
	ShapeRound Shape = iota + 1
	ShapeRect
)

func (s Shape) String() string {
	switch s {
	case ShapeRound:
		return "round"
	case ShapeRect:
		return "rect"
	default:
		return "unknown"
	}
}

// Footprint is the area an object covers on the board. Round footprints are
// used for moving units, rectangular ones for buildings, resources and
// destructibles.
type Footprint struct {
	Shape  Shape
	Radius float64 // ShapeRound only
	Width  int     // ShapeRect only
	Height int     // ShapeRect only
}

func Round(radius float64) Footprint {
	return Footprint{Shape: ShapeRound, Radius: radius}
}

func Rect(width, height int) Footprint {
	return Footprint{Shape: ShapeRect, Width: width, Height: height}
}

// Square is a size×size rectangle.
func Square(size int) Footprint {
	return Rect(size, size)
}

func (f Footprint) IsRound() bool { return f.Shape == ShapeRound }

func (f Footprint) Validate() error {
	switch f.Shape {
	case ShapeRound:
		if f.Radius < 0 || math.IsNaN(f.Radius) || math.IsInf(f.Radius, 0) {
			return fmt.Errorf("footprint: bad radius %v", f.Radius)
		}
		if f.Radius > MaxRadius {
			return fmt.Errorf("%w: radius %v exceeds %v", ErrTooLarge, f.Radius, MaxRadius)
		}
	case ShapeRect:
		if f.Width <= 0 || f.Height <= 0 {
			return fmt.Errorf("footprint: bad rect %dx%d", f.Width, f.Height)
		}
		if f.Width > MaxSide || f.Height > MaxSide {
			return fmt.Errorf("%w: rect %dx%d exceeds %d", ErrTooLarge, f.Width, f.Height, MaxSide)
		}
	default:
		return fmt.Errorf("footprint: unknown shape %d", f.Shape)
	}
	return nil
}

// String renders the footprint as "round:<radius>" or "rect:<w>x<h>".
// Parse accepts the same form.
func (f Footprint) String() string {
	switch f.Shape {
	case ShapeRound:
		return "round:" + strconv.FormatFloat(f.Radius, 'g', -1, 64)
	case ShapeRect:
		return fmt.Sprintf("rect:%dx%d", f.Width, f.Height)
	default:
		return "unknown"
	}
}

func Parse(s string) (Footprint, error) {
	kind, arg, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Footprint{}, fmt.Errorf("footprint %q: expected <shape>:<size>", s)
	}
	var fp Footprint
	switch strings.ToLower(kind) {
	case "round":
		r, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return Footprint{}, fmt.Errorf("footprint %q: %w", s, err)
		}
		fp = Round(r)
	case "rect", "square":
		ws, hs, found := strings.Cut(arg, "x")
		if !found {
			hs = ws
		}
		w, err := strconv.Atoi(ws)
		if err != nil {
			return Footprint{}, fmt.Errorf("footprint %q: %w", s, err)
		}
		h, err := strconv.Atoi(hs)
		if err != nil {
			return Footprint{}, fmt.Errorf("footprint %q: %w", s, err)
		}
		fp = Rect(w, h)
	default:
		return Footprint{}, fmt.Errorf("footprint %q: unknown shape %q", s, kind)
	}
	if err := fp.Validate(); err != nil {
		return Footprint{}, err
	}
	return fp, nil
}

// Offsets lists the cells covered by the footprint relative to the object's
// centre cell. A rectangle of side n spans [1-ceil(n/2), floor(n/2)] on that
// axis; a round footprint covers every cell whose centre lies within Radius.
// The centre cell is always covered.
func (f Footprint) Offsets() [][2]int {
	switch f.Shape {
	case ShapeRect:
		out := make([][2]int, 0, f.Width*f.Height)
		for dy := 1 - (f.Height+1)/2; dy <= f.Height/2; dy++ {
			for dx := 1 - (f.Width+1)/2; dx <= f.Width/2; dx++ {
				out = append(out, [2]int{dx, dy})
			}
		}
		return out
	case ShapeRound:
		r := int(math.Floor(f.Radius))
		out := make([][2]int, 0, (2*r+1)*(2*r+1))
		r2 := f.Radius * f.Radius
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if float64(dx*dx+dy*dy) <= r2 {
					out = append(out, [2]int{dx, dy})
				}
			}
		}
		return out
	default:
		return nil
	}
}
