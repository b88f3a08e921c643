package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/matryer/way"

	"gridnav.ai/internal/persistence/indexdb"
	"gridnav.ai/internal/persistence/objmirror"
	"gridnav.ai/internal/protocol"
	"gridnav.ai/internal/sim/planner"
	"gridnav.ai/internal/transport/ws"
)

const maxPathBody = 1 << 20

type server struct {
	router  *way.Router
	planner *planner.Planner
	ws      *ws.Server
	index   *indexdb.SQLiteIndex
	mirror  *objmirror.Mirror
}

func (s *server) routes() {
	s.router = way.NewRouter()
	s.router.HandleFunc("GET", "/healthz", s.handleHealth)
	s.router.HandleFunc("GET", "/v1/ws", s.ws.Handler())
	s.router.HandleFunc("POST", "/v1/path", s.handlePath)
	s.router.HandleFunc("GET", "/v1/stats", s.handleStats)
	s.router.HandleFunc("GET", "/metrics", s.handleMetrics)
}

func (s *server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("ok"))
}

// handlePath answers a single PATH_REQ posted as JSON.
func (s *server) handlePath(rw http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxPathBody))
	if err != nil {
		writeJSON(rw, http.StatusRequestEntityTooLarge, protocol.ErrorMsg{
			Type: protocol.TypeError, ProtocolVersion: protocol.Version,
			Code: protocol.ErrProtoBadRequest, Message: err.Error(),
		})
		return
	}
	base, err := protocol.Validate(raw)
	if err == nil && base.Type != protocol.TypePathReq {
		err = fmt.Errorf("expected %s, got %s", protocol.TypePathReq, base.Type)
	}
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.ErrorMsg{
			Type: protocol.TypeError, ProtocolVersion: protocol.Version, AckFor: base.ID,
			Code: protocol.ErrProtoBadRequest, Message: err.Error(),
		})
		return
	}
	var req protocol.PathReqMsg
	if err := json.Unmarshal(raw, &req); err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.ErrorMsg{
			Type: protocol.TypeError, ProtocolVersion: protocol.Version,
			Code: protocol.ErrProtoBadRequest, Message: err.Error(),
		})
		return
	}
	writeJSON(rw, http.StatusOK, s.ws.Path(r.Context(), req))
}

type statsResponse struct {
	BoardID string              `json:"board_id"`
	Width   int                 `json:"width"`
	Height  int                 `json:"height"`
	Planner planner.Stats       `json:"planner"`
	Index   *indexdb.QueueStats `json:"index,omitempty"`
	Mirror  *objmirror.Stats    `json:"mirror,omitempty"`
}

func (s *server) handleStats(rw http.ResponseWriter, r *http.Request) {
	w, h := s.planner.Board().Size()
	resp := statsResponse{
		BoardID: s.planner.BoardID(),
		Width:   w,
		Height:  h,
		Planner: s.planner.Stats(),
	}
	if s.index != nil {
		qs := s.index.Stats()
		resp.Index = &qs
	}
	if s.mirror != nil {
		ms := s.mirror.Stats()
		resp.Mirror = &ms
	}
	writeJSON(rw, http.StatusOK, resp)
}

// handleMetrics writes a minimal Prometheus exposition.
func (s *server) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	board := s.planner.BoardID()
	st := s.planner.Stats()

	fmt.Fprintf(rw, "# HELP gridnav_board_version Board mutation counter.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_board_version gauge\n")
	fmt.Fprintf(rw, "gridnav_board_version{board=%q} %d\n", board, st.Version)

	fmt.Fprintf(rw, "# HELP gridnav_queries_total Path queries by outcome.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_queries_total counter\n")
	fmt.Fprintf(rw, "gridnav_queries_total{board=%q,outcome=%q} %d\n", board, planner.OutcomeFound, st.Found)
	fmt.Fprintf(rw, "gridnav_queries_total{board=%q,outcome=%q} %d\n", board, planner.OutcomeNoPath, st.NoPath)
	fmt.Fprintf(rw, "gridnav_queries_total{board=%q,outcome=%q} %d\n", board, planner.OutcomeInvalidGoal, st.InvalidGoal)
	fmt.Fprintf(rw, "gridnav_queries_total{board=%q,outcome=%q} %d\n", board, planner.OutcomeBudget, st.Budget)
	fmt.Fprintf(rw, "gridnav_queries_total{board=%q,outcome=%q} %d\n", board, "failed", st.Failed)

	fmt.Fprintf(rw, "# HELP gridnav_expansions_total Frontier pops across all queries.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_expansions_total counter\n")
	fmt.Fprintf(rw, "gridnav_expansions_total{board=%q} %d\n", board, st.Expansions)

	fmt.Fprintf(rw, "# HELP gridnav_mutations_total Board placements and releases.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_mutations_total counter\n")
	fmt.Fprintf(rw, "gridnav_mutations_total{board=%q,kind=%q} %d\n", board, planner.KindPlace, st.Places)
	fmt.Fprintf(rw, "gridnav_mutations_total{board=%q,kind=%q} %d\n", board, planner.KindRelease, st.Releases)

	if s.mirror != nil {
		ms := s.mirror.Stats()
		fmt.Fprintf(rw, "# HELP gridnav_mirror_uploads_total Snapshot mirror uploads by result.\n")
		fmt.Fprintf(rw, "# TYPE gridnav_mirror_uploads_total counter\n")
		fmt.Fprintf(rw, "gridnav_mirror_uploads_total{board=%q,result=%q} %d\n", board, "ok", ms.Uploaded)
		fmt.Fprintf(rw, "gridnav_mirror_uploads_total{board=%q,result=%q} %d\n", board, "failed", ms.Failed)
		fmt.Fprintf(rw, "gridnav_mirror_uploads_total{board=%q,result=%q} %d\n", board, "dropped", ms.Dropped)
	}

	if s.index == nil {
		return
	}
	qs := s.index.Stats()
	fmt.Fprintf(rw, "# HELP gridnav_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "gridnav_index_queue_depth{board=%q} %d\n", board, qs.QueueDepth)

	fmt.Fprintf(rw, "# HELP gridnav_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_index_dropped_total counter\n")
	fmt.Fprintf(rw, "gridnav_index_dropped_total{board=%q,kind=%q} %d\n", board, "record", qs.DropRecordTotal)
	fmt.Fprintf(rw, "gridnav_index_dropped_total{board=%q,kind=%q} %d\n", board, "snapshot", qs.DropSnapshotTotal)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
