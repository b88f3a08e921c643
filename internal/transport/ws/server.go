package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"gridnav.ai/internal/protocol"
	"gridnav.ai/internal/sim/footprint"
	"gridnav.ai/internal/sim/grid"
	"gridnav.ai/internal/sim/planner"
)

// Server speaks the JSON protocol over websockets. Each connection owns one
// reader loop and one writer goroutine; all writes go through the writer.
type Server struct {
	planner *planner.Planner
	log     logrus.FieldLogger

	upgrader websocket.Upgrader
}

func NewServer(p *planner.Planner, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		planner: p,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}
		log := s.log.WithField("session", sessionID)
		log.Info("session open")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.dispatch(ctx, log, msg, out)
		}
		<-done
		log.Info("session closed")
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.Validate(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 16
	}
	if maxQ > 256 {
		maxQ = 256
	}
	out = make(chan []byte, maxQ)

	cfg := s.planner.Config()
	w, h := s.planner.Board().Size()
	sessionID = uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Board: protocol.BoardParams{
			BoardID: s.planner.BoardID(),
			Width:   w,
			Height:  h,
			Version: s.planner.Version(),
		},
		Search: protocol.SearchRef{
			CardinalCost:  cfg.Search.CardinalCost,
			DiagonalCost:  cfg.Search.DiagonalCost,
			MaxExpansions: cfg.Search.MaxExpansions,
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	return sessionID, out
}

func (s *Server) dispatch(ctx context.Context, log logrus.FieldLogger, msg []byte, out chan<- []byte) {
	base, err := protocol.Validate(msg)
	if err != nil {
		log.WithError(err).Debug("rejected message")
		s.send(ctx, out, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			AckFor:          base.ID,
			Code:            protocol.ErrProtoBadRequest,
			Message:         err.Error(),
		})
		return
	}
	if base.ProtocolVersion != protocol.Version {
		s.send(ctx, out, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			AckFor:          base.ID,
			Code:            protocol.ErrProtoVersion,
			Message:         "protocol_version must be " + protocol.Version,
		})
		return
	}

	switch base.Type {
	case protocol.TypePathReq:
		var req protocol.PathReqMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return
		}
		s.send(ctx, out, s.Path(ctx, req))
	case protocol.TypePathBatch:
		var batch protocol.PathBatchMsg
		if err := json.Unmarshal(msg, &batch); err != nil {
			return
		}
		for _, resp := range s.Batch(ctx, batch) {
			s.send(ctx, out, resp)
		}
	case protocol.TypeOccupy:
		var occ protocol.OccupyMsg
		if err := json.Unmarshal(msg, &occ); err != nil {
			return
		}
		s.send(ctx, out, s.Occupy(occ))
	case protocol.TypeRelease:
		var rel protocol.ReleaseMsg
		if err := json.Unmarshal(msg, &rel); err != nil {
			return
		}
		s.send(ctx, out, s.Release(rel))
	default:
		s.send(ctx, out, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			AckFor:          base.ID,
			Code:            protocol.ErrProtoBadRequest,
			Message:         "unexpected " + base.Type,
		})
	}
}

// Path answers one PATH_REQ. It is shared with the plain HTTP endpoint.
func (s *Server) Path(ctx context.Context, req protocol.PathReqMsg) protocol.PathRespMsg {
	fp, err := footprint.Parse(req.Footprint)
	if err != nil {
		return badPathReq(req.ID, err)
	}
	resp := s.planner.FindPath(ctx, toRequest(req, fp))
	return PathResp(resp, req.Dense)
}

// Batch answers every query of a PATH_BATCH in order.
func (s *Server) Batch(ctx context.Context, batch protocol.PathBatchMsg) []protocol.PathRespMsg {
	out := make([]protocol.PathRespMsg, len(batch.Queries))
	reqs := make([]planner.Request, 0, len(batch.Queries))
	slots := make([]int, 0, len(batch.Queries))
	for i, q := range batch.Queries {
		fp, err := footprint.Parse(q.Footprint)
		if err != nil {
			out[i] = badPathReq(q.ID, err)
			continue
		}
		reqs = append(reqs, toRequest(q, fp))
		slots = append(slots, i)
	}
	resps, _ := s.planner.Batch(ctx, reqs)
	for j, resp := range resps {
		out[slots[j]] = PathResp(resp, batch.Queries[slots[j]].Dense)
	}
	return out
}

func (s *Server) Occupy(msg protocol.OccupyMsg) protocol.AckMsg {
	ack := protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: msg.ID}
	fp, err := footprint.Parse(msg.Footprint)
	if err != nil {
		return reject(ack, err)
	}
	kind, err := grid.ParseKind(msg.Kind)
	if err != nil {
		return reject(ack, err)
	}
	if err := s.planner.Place(grid.Entity{ID: msg.EntityID, Kind: kind, At: grid.FromArray(msg.At), Shape: fp}); err != nil {
		return reject(ack, err)
	}
	ack.Accepted = true
	ack.BoardVersion = s.planner.Version()
	return ack
}

func (s *Server) Release(msg protocol.ReleaseMsg) protocol.AckMsg {
	ack := protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: msg.ID}
	if err := s.planner.Remove(msg.EntityID); err != nil {
		return reject(ack, err)
	}
	ack.Accepted = true
	ack.BoardVersion = s.planner.Version()
	return ack
}

// PathResp renders a planner response. Without dense only jump points are sent.
func PathResp(resp planner.Response, dense bool) protocol.PathRespMsg {
	res := resp.Result
	msg := protocol.PathRespMsg{
		Type:            protocol.TypePathResp,
		ProtocolVersion: protocol.Version,
		ID:              resp.ID,
		Outcome:         resp.Outcome,
		Code:            protocol.CodeFor(resp.Err),
		Goal:            res.Goal.ToArray(),
		Repaired:        res.Stats.Repaired,
		Steps:           res.Steps(),
		Cost:            res.Cost,
		Expansions:      res.Stats.Expansions,
		BoardVersion:    resp.Version,
	}
	if resp.Err != nil {
		msg.Message = resp.Err.Error()
		return msg
	}
	msg.JumpPoints = toArrays(res.JumpPoints)
	if dense {
		msg.Path = toArrays(res.Path)
	}
	return msg
}

func toRequest(q protocol.PathReqMsg, fp footprint.Footprint) planner.Request {
	return planner.Request{
		ID:        q.ID,
		Footprint: fp,
		Origin:    grid.FromArray(q.Origin),
		Goal:      grid.FromArray(q.Goal),
	}
}

func badPathReq(id string, err error) protocol.PathRespMsg {
	return protocol.PathRespMsg{
		Type:            protocol.TypePathResp,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Outcome:         planner.OutcomeBadRequest,
		Code:            protocol.ErrBadRequest,
		Message:         err.Error(),
	}
}

func reject(ack protocol.AckMsg, err error) protocol.AckMsg {
	ack.Accepted = false
	ack.Code = protocol.CodeFor(err)
	ack.Message = err.Error()
	return ack
}

func toArrays(cs []grid.Coord) [][2]int {
	out := make([][2]int, len(cs))
	for i, c := range cs {
		out[i] = c.ToArray()
	}
	return out
}

func (s *Server) send(ctx context.Context, out chan<- []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.WithError(err).Error("marshal reply")
		return
	}
	select {
	case out <- b:
	case <-ctx.Done():
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
