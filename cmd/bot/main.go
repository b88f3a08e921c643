package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"gridnav.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "client name")
		fp    = flag.String("footprint", "round:1", "unit footprint")
		every = flag.Duration("every", 500*time.Millisecond, "delay between queries")
		count = flag.Int("n", 0, "queries to send before exiting (0 = until interrupted)")
		build = flag.Int("build_every", 10, "place a random building every N queries (0 = never)")
		dense = flag.Bool("dense", false, "ask for dense paths")
		seed  = flag.Int64("seed", 0, "rng seed (0 = time based)")
	)
	flag.Parse()

	logger := log.WithField("client", *name)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		MaxQueue:        16,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		logger.Fatalf("expected WELCOME: %v", err)
	}
	logger.WithFields(log.Fields{
		"session": welcome.SessionID,
		"board":   welcome.Board.BoardID,
		"size":    fmt.Sprintf("%dx%d", welcome.Board.Width, welcome.Board.Height),
		"version": welcome.Board.Version,
	}).Info("WELCOME")

	go readLoop(conn, logger)

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(*seed))
	randCell := func() [2]int {
		return [2]int{r.Intn(max(welcome.Board.Width, 1)), r.Intn(max(welcome.Board.Height, 1))}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	tick := time.NewTicker(*every)
	defer tick.Stop()

	for i := 1; *count == 0 || i <= *count; i++ {
		select {
		case <-stop:
			return
		case <-tick.C:
		}
		if *build > 0 && i%*build == 0 {
			occ := protocol.OccupyMsg{
				Type:            protocol.TypeOccupy,
				ProtocolVersion: protocol.Version,
				ID:              fmt.Sprintf("O%d", i),
				EntityID:        fmt.Sprintf("%s-b%d", *name, i),
				Kind:            "BUILDING",
				Footprint:       "rect:3x3",
				At:              randCell(),
			}
			if err := conn.WriteJSON(occ); err != nil {
				logger.WithError(err).Error("send OCCUPY")
				return
			}
		}
		req := protocol.PathReqMsg{
			Type:            protocol.TypePathReq,
			ProtocolVersion: protocol.Version,
			ID:              fmt.Sprintf("Q%d", i),
			Footprint:       *fp,
			Origin:          randCell(),
			Goal:            randCell(),
			Dense:           *dense,
		}
		if err := conn.WriteJSON(req); err != nil {
			logger.WithError(err).Error("send PATH_REQ")
			return
		}
	}
	// Give the last replies a moment to arrive.
	time.Sleep(*every)
}

func readLoop(conn *websocket.Conn, logger *log.Entry) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypePathResp:
			var resp protocol.PathRespMsg
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			logger.WithFields(log.Fields{
				"id":         resp.ID,
				"outcome":    resp.Outcome,
				"steps":      resp.Steps,
				"cost":       resp.Cost,
				"expansions": resp.Expansions,
				"repaired":   resp.Repaired,
				"version":    resp.BoardVersion,
			}).Info("PATH_RESP")
		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			logger.WithFields(log.Fields{"for": ack.AckFor, "accepted": ack.Accepted, "code": ack.Code}).Info("ACK")
		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.WithFields(log.Fields{"for": e.AckFor, "code": e.Code}).Warn(e.Message)
		}
	}
}
