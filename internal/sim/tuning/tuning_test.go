package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoad_EmptyPathIsDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.DiagonalCost != 1.7 || got.CardinalCost != 1 || got.Workers != 4 {
		t.Fatalf("defaults=%+v", got)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_OverridesAndPalette(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	writeFile(t, path, `
diagonal_cost: 1.5
max_expansions: 500
workers: 0
board:
  width: 32
  height: 16
  map: maps/arena.png
palette:
  free: " #FFFFFF "
  not_crossable: black
`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.DiagonalCost != 1.5 || got.CardinalCost != 1 || got.MaxExpansions != 500 {
		t.Fatalf("costs=%+v", got)
	}
	if got.Workers != 4 {
		t.Fatalf("workers should fall back to default, got %d", got.Workers)
	}
	if got.Board.Width != 32 || got.Board.Height != 16 || got.Board.Map != "maps/arena.png" {
		t.Fatalf("board=%+v", got.Board)
	}
	if len(got.Palette) != 2 || got.Palette[ClassFree] != "#ffffff" {
		t.Fatalf("palette should replace defaults: %v", got.Palette)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"negative cost": "cardinal_cost: -1\n",
		"budget":        "max_expansions: -3\n",
		"workers":       "workers: -2\n",
		"unknown class": "palette:\n  free: white\n  lava: orange\n",
		"dup colour":    "palette:\n  free: white\n  start: white\n",
		"missing free":  "palette:\n  start: red\n",
		"bad yaml":      "board: [",
	}
	dir := t.TempDir()
	for name, body := range cases {
		path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".yaml")
		writeFile(t, path, body)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	writeFile(t, path, "diagonal_cost: 1.7\n")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	writeFile(t, filepath.Join(dir, "other.yaml"), "diagonal_cost: 9\n")
	writeFile(t, path, "diagonal_cost: 1.4\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-w.Updates:
			if got.DiagonalCost == 1.4 {
				return
			}
		case <-w.Errors:
			// a reload can race a partial write; the next event retries
		case <-deadline:
			t.Fatalf("no reload observed")
		}
	}
}
