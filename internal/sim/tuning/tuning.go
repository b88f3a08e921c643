package tuning

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tuning is the operator-facing planner configuration loaded from tuning.yaml.
type Tuning struct {
	CardinalCost   float64 `yaml:"cardinal_cost"`
	DiagonalCost   float64 `yaml:"diagonal_cost"`
	MaxExpansions  int     `yaml:"max_expansions"`
	Workers        int     `yaml:"workers"`
	QueryTimeoutMs int     `yaml:"query_timeout_ms"`

	Board   BoardSpec         `yaml:"board"`
	Palette map[string]string `yaml:"palette"`

	QueryLog bool `yaml:"query_log"`
	IndexDB  bool `yaml:"index_db"`
}

type BoardSpec struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Map    string `yaml:"map,omitempty"`
}

// Map image classes a palette may bind colours to.
const (
	ClassFree         = "free"
	ClassNotCrossable = "not_crossable"
	ClassNotBuildable = "not_buildable"
	ClassStart        = "start"
	ClassResourceNorm = "resource_norm"
	ClassResourceRich = "resource_rich"
)

var knownClasses = map[string]bool{
	ClassFree:         true,
	ClassNotCrossable: true,
	ClassNotBuildable: true,
	ClassStart:        true,
	ClassResourceNorm: true,
	ClassResourceRich: true,
}

func Defaults() Tuning {
	return Tuning{
		CardinalCost:   1,
		DiagonalCost:   1.7,
		MaxExpansions:  200000,
		Workers:        4,
		QueryTimeoutMs: 250,
		Board:          BoardSpec{Width: 64, Height: 64},
		Palette: map[string]string{
			ClassFree:         "white",
			ClassNotCrossable: "black",
			ClassNotBuildable: "#808080",
			ClassStart:        "red",
			ClassResourceNorm: "lime",
			ClassResourceRich: "blue",
		},
		QueryLog: true,
		IndexDB:  true,
	}
}

// Load reads path on top of Defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	// A palette in the file replaces the default one instead of merging into it.
	t.Palette = nil
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.Palette == nil {
		t.Palette = Defaults().Palette
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	if t.Workers == 0 {
		t.Workers = Defaults().Workers
	}
	if t.QueryTimeoutMs < 0 {
		t.QueryTimeoutMs = 0
	}
	for class, colour := range t.Palette {
		t.Palette[class] = strings.ToLower(strings.TrimSpace(colour))
	}
}

func (t Tuning) Validate() error {
	if t.CardinalCost <= 0 {
		return fmt.Errorf("cardinal_cost must be > 0")
	}
	if t.DiagonalCost <= 0 {
		return fmt.Errorf("diagonal_cost must be > 0")
	}
	if t.MaxExpansions < 0 {
		return fmt.Errorf("max_expansions must be >= 0")
	}
	if t.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if t.Board.Width < 1 || t.Board.Height < 1 {
		return fmt.Errorf("board: bad size %dx%d", t.Board.Width, t.Board.Height)
	}
	classes := make([]string, 0, len(t.Palette))
	for class := range t.Palette {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	seen := map[string]string{}
	for _, class := range classes {
		if !knownClasses[class] {
			return fmt.Errorf("palette: unknown class %q", class)
		}
		colour := t.Palette[class]
		if colour == "" {
			return fmt.Errorf("palette: empty colour for %q", class)
		}
		if other, dup := seen[colour]; dup {
			return fmt.Errorf("palette: %q and %q share colour %q", other, class, colour)
		}
		seen[colour] = class
	}
	if _, ok := t.Palette[ClassFree]; !ok {
		return fmt.Errorf("palette: missing %q", ClassFree)
	}
	return nil
}
