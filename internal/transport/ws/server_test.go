package ws

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"gridnav.ai/internal/protocol"
	"gridnav.ai/internal/sim/grid"
	"gridnav.ai/internal/sim/planner"
)

func newTestServer(t *testing.T) (*planner.Planner, *websocket.Conn) {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	p := planner.New("test", grid.New(12, 12), planner.DefaultConfig(), l)
	srv := httptest.NewServer(NewServer(p, l).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return p, conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv[T any](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return v
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "t"})
	w := recv[protocol.WelcomeMsg](t, conn)
	if w.Type != protocol.TypeWelcome || w.SessionID == "" {
		t.Fatalf("welcome=%+v", w)
	}
	return w
}

func TestServer_PathAndOccupy(t *testing.T) {
	p, conn := newTestServer(t)
	w := hello(t, conn)
	if w.Board.Width != 12 || w.Board.Height != 12 || w.Board.BoardID != "test" || w.Search.DiagonalCost != 1.7 {
		t.Fatalf("welcome=%+v", w)
	}

	send(t, conn, protocol.PathReqMsg{
		Type: protocol.TypePathReq, ProtocolVersion: protocol.Version,
		ID: "q1", Footprint: "round:1", Origin: [2]int{0, 0}, Goal: [2]int{9, 9}, Dense: true,
	})
	resp := recv[protocol.PathRespMsg](t, conn)
	if resp.ID != "q1" || resp.Outcome != planner.OutcomeFound || resp.Code != "" {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.Steps != 9 || len(resp.Path) != 10 || resp.Path[9] != [2]int{9, 9} || len(resp.JumpPoints) == 0 {
		t.Fatalf("resp=%+v", resp)
	}

	send(t, conn, protocol.OccupyMsg{
		Type: protocol.TypeOccupy, ProtocolVersion: protocol.Version,
		ID: "o1", EntityID: "hall", Kind: "BUILDING", Footprint: "rect:3x3", At: [2]int{5, 5},
	})
	ack := recv[protocol.AckMsg](t, conn)
	if !ack.Accepted || ack.AckFor != "o1" || ack.BoardVersion != 1 {
		t.Fatalf("ack=%+v", ack)
	}
	if p.Version() != 1 {
		t.Fatalf("version=%d", p.Version())
	}

	send(t, conn, protocol.OccupyMsg{
		Type: protocol.TypeOccupy, ProtocolVersion: protocol.Version,
		ID: "o2", EntityID: "tower", Kind: "BUILDING", Footprint: "rect:1x1", At: [2]int{5, 5},
	})
	ack = recv[protocol.AckMsg](t, conn)
	if ack.Accepted || ack.Code != protocol.ErrConflict {
		t.Fatalf("ack=%+v", ack)
	}

	send(t, conn, protocol.ReleaseMsg{Type: protocol.TypeRelease, ProtocolVersion: protocol.Version, ID: "r1", EntityID: "nope"})
	ack = recv[protocol.AckMsg](t, conn)
	if ack.Accepted || ack.Code != protocol.ErrNotFound {
		t.Fatalf("ack=%+v", ack)
	}

	send(t, conn, protocol.ReleaseMsg{Type: protocol.TypeRelease, ProtocolVersion: protocol.Version, ID: "r2", EntityID: "hall"})
	ack = recv[protocol.AckMsg](t, conn)
	if !ack.Accepted || ack.BoardVersion != 2 {
		t.Fatalf("ack=%+v", ack)
	}
}

func TestServer_BatchAnswersInOrder(t *testing.T) {
	_, conn := newTestServer(t)
	hello(t, conn)

	send(t, conn, protocol.PathBatchMsg{
		Type: protocol.TypePathBatch, ProtocolVersion: protocol.Version, ID: "b1",
		Queries: []protocol.PathReqMsg{
			{ID: "a", Footprint: "round:1", Origin: [2]int{0, 0}, Goal: [2]int{3, 0}},
			{ID: "b", Footprint: "round:1", Origin: [2]int{20, 0}, Goal: [2]int{3, 0}},
			{ID: "c", Footprint: "rect:2x2", Origin: [2]int{0, 0}, Goal: [2]int{0, 5}},
		},
	})
	want := []struct {
		id, outcome, code string
	}{
		{"a", planner.OutcomeFound, ""},
		{"b", planner.OutcomeOutOfBounds, protocol.ErrOutOfBounds},
		{"c", planner.OutcomeFound, ""},
	}
	for _, w := range want {
		resp := recv[protocol.PathRespMsg](t, conn)
		if resp.ID != w.id || resp.Outcome != w.outcome || resp.Code != w.code {
			t.Fatalf("resp=%+v want %+v", resp, w)
		}
	}
}

func TestServer_RejectsInvalidMessages(t *testing.T) {
	_, conn := newTestServer(t)
	hello(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"PATH_REQ","protocol_version":"1.0","id":"x","footprint":"hex:2","origin":[0,0],"goal":[1,1]}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	e := recv[protocol.ErrorMsg](t, conn)
	if e.Type != protocol.TypeError || e.Code != protocol.ErrProtoBadRequest || e.AckFor != "x" {
		t.Fatalf("err=%+v", e)
	}

	send(t, conn, protocol.ReleaseMsg{Type: protocol.TypeRelease, ProtocolVersion: "0.1", ID: "y", EntityID: "z"})
	e = recv[protocol.ErrorMsg](t, conn)
	if e.Code != protocol.ErrProtoVersion || e.AckFor != "y" {
		t.Fatalf("err=%+v", e)
	}
}

func TestServer_RequiresHello(t *testing.T) {
	_, conn := newTestServer(t)
	send(t, conn, protocol.ReleaseMsg{Type: protocol.TypeRelease, ProtocolVersion: protocol.Version, EntityID: "z"})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy close, got %v", err)
	}
}
