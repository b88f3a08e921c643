// Package mapload builds boards from palette-indexed map images.
package mapload

import (
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/colornames"

	"gridnav.ai/internal/sim/footprint"
	"gridnav.ai/internal/sim/grid"
	"gridnav.ai/internal/sim/tuning"
)

type Resource struct {
	At   grid.Coord
	Rich bool
}

// Map is a freshly loaded board plus the markers found in the image.
type Map struct {
	Name      string
	Grid      *grid.Grid
	Starts    []grid.Coord
	Resources []Resource
}

// Palette maps an exact pixel colour to a map class.
type Palette map[color.RGBA]string

// ParsePalette resolves class → colour bindings. Colours are "#rrggbb" or
// SVG colour names.
func ParsePalette(classes map[string]string) (Palette, error) {
	names := make([]string, 0, len(classes))
	for class := range classes {
		names = append(names, class)
	}
	sort.Strings(names)

	p := make(Palette, len(classes))
	for _, class := range names {
		c, err := ParseColour(classes[class])
		if err != nil {
			return nil, fmt.Errorf("palette %s: %w", class, err)
		}
		if prev, ok := p[c]; ok {
			return nil, fmt.Errorf("palette: %s and %s share a colour", prev, class)
		}
		p[c] = class
	}
	return p, nil
}

func ParseColour(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		if len(hex) != 6 {
			return color.RGBA{}, fmt.Errorf("bad colour %q", s)
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("bad colour %q", s)
		}
		return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
	}
	c, ok := colornames.Map[s]
	if !ok {
		return color.RGBA{}, fmt.Errorf("unknown colour name %q", s)
	}
	return c, nil
}

// Load decodes a PNG or BMP map file.
func Load(path string, p Palette) (Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return Map{}, err
	}
	defer f.Close()
	m, err := Decode(f, p)
	if err != nil {
		return Map{}, fmt.Errorf("map %s: %w", filepath.Base(path), err)
	}
	m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return m, nil
}

// Decode classifies every pixel through p. A pixel whose colour is not in the
// palette fails the whole load.
func Decode(r io.Reader, p Palette) (Map, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return Map{}, err
	}
	b := img.Bounds()
	g := grid.New(b.Dx(), b.Dy())
	m := Map{Grid: g}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			c.A = 0xff
			class, ok := p[c]
			if !ok {
				return Map{}, fmt.Errorf("unknown colour #%02x%02x%02x at (%d,%d)", c.R, c.G, c.B, x-b.Min.X, y-b.Min.Y)
			}
			at := grid.Coord{X: x - b.Min.X, Y: y - b.Min.Y}
			switch class {
			case tuning.ClassNotCrossable:
				_ = g.SetTerrain(at, false, false)
			case tuning.ClassNotBuildable:
				_ = g.SetTerrain(at, true, false)
			case tuning.ClassStart:
				m.Starts = append(m.Starts, at)
			case tuning.ClassResourceNorm:
				m.Resources = append(m.Resources, Resource{At: at})
			case tuning.ClassResourceRich:
				m.Resources = append(m.Resources, Resource{At: at, Rich: true})
			}
		}
	}
	return m, nil
}

// PlaceResources applies every resource marker as a static object with
// footprint fp. Markers that collide with an earlier placement are skipped
// and counted.
func (m Map) PlaceResources(fp footprint.Footprint) (placed, skipped int, err error) {
	if err := fp.Validate(); err != nil {
		return 0, 0, err
	}
	for _, r := range m.Resources {
		ent := grid.Entity{
			ID:    fmt.Sprintf("res-%d-%d", r.At.X, r.At.Y),
			Kind:  grid.KindResource,
			At:    r.At,
			Shape: fp,
		}
		if err := m.Grid.ApplyFootprint(ent); err != nil {
			skipped++
			continue
		}
		placed++
	}
	return placed, skipped, nil
}
