package mapload

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gridnav.ai/internal/sim/footprint"
	"gridnav.ai/internal/sim/grid"
	"gridnav.ai/internal/sim/tuning"
)

func testPalette(t *testing.T) Palette {
	t.Helper()
	p, err := ParsePalette(tuning.Defaults().Palette)
	if err != nil {
		t.Fatalf("ParsePalette: %v", err)
	}
	return p
}

// encodeMap renders rows of class letters: . free, # wall, ~ not buildable,
// S start, r/R resources.
func encodeMap(t *testing.T, rows ...string) []byte {
	t.Helper()
	colours := map[byte]color.RGBA{
		'.': {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		'#': {A: 0xff},
		'~': {R: 0x80, G: 0x80, B: 0x80, A: 0xff},
		'S': {R: 0xff, A: 0xff},
		'r': {G: 0xff, A: 0xff},
		'R': {B: 0xff, A: 0xff},
		'?': {R: 0x12, G: 0x34, B: 0x56, A: 0xff},
	}
	img := image.NewRGBA(image.Rect(0, 0, len(rows[0]), len(rows)))
	for y, row := range rows {
		for x := 0; x < len(row); x++ {
			img.SetRGBA(x, y, colours[row[x]])
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecode_Classes(t *testing.T) {
	raw := encodeMap(t,
		"S..#",
		".~r#",
		"...R",
	)
	m, err := Decode(bytes.NewReader(raw), testPalette(t))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	w, h := m.Grid.Size()
	if w != 4 || h != 3 {
		t.Fatalf("size=%dx%d", w, h)
	}
	if len(m.Starts) != 1 || m.Starts[0] != (grid.Coord{}) {
		t.Fatalf("starts=%v", m.Starts)
	}
	if len(m.Resources) != 2 || m.Resources[0].Rich || !m.Resources[1].Rich {
		t.Fatalf("resources=%v", m.Resources)
	}
	wall, _ := m.Grid.CellAt(grid.Coord{X: 3, Y: 0})
	if wall.Crossable {
		t.Fatalf("wall should not be crossable")
	}
	rough, _ := m.Grid.CellAt(grid.Coord{X: 1, Y: 1})
	if !rough.Crossable || rough.Buildable {
		t.Fatalf("not_buildable cell=%+v", rough)
	}
}

func TestDecode_UnknownColour(t *testing.T) {
	raw := encodeMap(t, "..", ".?")
	_, err := Decode(bytes.NewReader(raw), testPalette(t))
	if err == nil || !strings.Contains(err.Error(), "(1,1)") {
		t.Fatalf("expected error naming the pixel, got %v", err)
	}
}

func TestLoad_AndPlaceResources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.png")
	if err := os.WriteFile(path, encodeMap(t,
		"......",
		".r....",
		"..r...",
		"......",
	), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := Load(path, testPalette(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Name != "arena" {
		t.Fatalf("name=%q", m.Name)
	}
	placed, skipped, err := m.PlaceResources(footprint.Square(2))
	if err != nil {
		t.Fatalf("PlaceResources: %v", err)
	}
	// (1,1) covers (2,2), so the second marker collides.
	if placed != 1 || skipped != 1 {
		t.Fatalf("placed=%d skipped=%d", placed, skipped)
	}
	if m.Grid.SnapshotWalkable().At(grid.Coord{X: 2, Y: 2}) != grid.Blocked {
		t.Fatalf("resource cell should block planning")
	}
}

func TestParseColour(t *testing.T) {
	c, err := ParseColour("#10Ff00")
	if err != nil || c != (color.RGBA{R: 0x10, G: 0xff, A: 0xff}) {
		t.Fatalf("hex: %v %v", c, err)
	}
	if c, err := ParseColour("Black"); err != nil || c != (color.RGBA{A: 0xff}) {
		t.Fatalf("name: %v %v", c, err)
	}
	for _, bad := range []string{"#123", "#gggggg", "not-a-colour"} {
		if _, err := ParseColour(bad); err == nil {
			t.Fatalf("ParseColour(%q) should fail", bad)
		}
	}
	if _, err := ParsePalette(map[string]string{"free": "white", "start": "#ffffff"}); err == nil {
		t.Fatalf("shared colour should fail")
	}
}
