package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"gridnav.ai/internal/sim/grid"
)

// Record kinds.
const (
	KindQuery   = "query"
	KindPlace   = "place"
	KindRelease = "release"
)

// Record is one durable planner event. Mutations carry the board version they
// produced; queries carry the version they observed. Replaying mutations in
// version order and checking each query at its version reproduces the run.
type Record struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	AtUnixMs int64  `json:"at_unix_ms"`
	BoardID  string `json:"board_id"`
	Version  uint64 `json:"version"`

	Footprint string `json:"footprint,omitempty"`

	// query
	Origin     [2]int     `json:"origin"`
	Goal       [2]int     `json:"goal"`
	Effective  [2]int     `json:"effective_goal"`
	Costs      [2]float64 `json:"costs"`
	Budget     int        `json:"budget,omitempty"`
	Outcome    string     `json:"outcome,omitempty"`
	Steps      int        `json:"steps,omitempty"`
	Cost       float64    `json:"cost,omitempty"`
	Expansions int        `json:"expansions,omitempty"`
	DurationUs int64      `json:"duration_us,omitempty"`
	PathDigest string     `json:"path_digest,omitempty"`

	// place / release
	EntityID   string `json:"entity_id,omitempty"`
	EntityKind string `json:"entity_kind,omitempty"`
	At         [2]int `json:"at"`
}

// Recorder receives every record the planner emits. Implementations must not
// block the caller for long.
type Recorder interface {
	WriteRecord(Record) error
}

// PathDigest is a stable hex digest of a dense path.
func PathDigest(path []grid.Coord) string {
	if len(path) == 0 {
		return ""
	}
	h := sha256.New()
	buf := make([]byte, 0, 24)
	for _, c := range path {
		buf = buf[:0]
		buf = strconv.AppendInt(buf, int64(c.X), 10)
		buf = append(buf, ',')
		buf = strconv.AppendInt(buf, int64(c.Y), 10)
		buf = append(buf, ';')
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}
