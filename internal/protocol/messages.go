package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	Board           BoardParams `json:"board"`
	Search          SearchRef   `json:"search"`
}

type BoardParams struct {
	BoardID string `json:"board_id"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Version uint64 `json:"version"`
}

type SearchRef struct {
	CardinalCost  float64 `json:"cardinal_cost"`
	DiagonalCost  float64 `json:"diagonal_cost"`
	MaxExpansions int     `json:"max_expansions"`
}

// PATH_REQ (client -> server). Footprint uses the "round:<r>" or
// "rect:<w>x<h>" notation.
type PathReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Footprint       string `json:"footprint"`
	Origin          [2]int `json:"origin"`
	Goal            [2]int `json:"goal"`
	// Dense asks for every cell of the route instead of only jump points.
	Dense bool `json:"dense,omitempty"`
}

// PATH_BATCH (client -> server): answered by one PATH_RESP per query, in order.
type PathBatchMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	ID              string       `json:"id"`
	Queries         []PathReqMsg `json:"queries"`
}

// PATH_RESP (server -> client)
type PathRespMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ID              string   `json:"id"`
	Outcome         string   `json:"outcome"`
	Code            string   `json:"code,omitempty"`
	Message         string   `json:"message,omitempty"`
	Goal            [2]int   `json:"goal"`
	Repaired        bool     `json:"repaired,omitempty"`
	JumpPoints      [][2]int `json:"jump_points,omitempty"`
	Path            [][2]int `json:"path,omitempty"`
	Steps           int      `json:"steps"`
	Cost            float64  `json:"cost"`
	Expansions      int      `json:"expansions"`
	BoardVersion    uint64   `json:"board_version"`
}

// OCCUPY (client -> server): place an object's footprint on the board.
type OccupyMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	EntityID        string `json:"entity_id"`
	Kind            string `json:"kind"`
	Footprint       string `json:"footprint"`
	At              [2]int `json:"at"`
}

// RELEASE (client -> server)
type ReleaseMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	EntityID        string `json:"entity_id"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	BoardVersion    uint64 `json:"board_version,omitempty"`
}

// ERROR is sent for messages that could not be routed at all.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
