package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"emberhold.gg/internal/game/logic/rates"
	"emberhold.gg/internal/game/trade"
	"emberhold.gg/internal/protocol"
)

const (
	writeTimeout = 5 * time.Second
	pingEvery    = 30 * time.Second
	readTimeout  = 90 * time.Second
)

// Players resolves a login name to a stable player id, creating the player on
// first sight.
type Players interface {
	Login(name string) (userID string, created bool, err error)
}

type Server struct {
	hub     *Hub
	reg     *trade.Registry
	players Players
	gold    trade.CurrencyStore
	logger  *log.Logger

	reqWindow time.Duration
	reqMax    int

	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, reg *trade.Registry, players Players, gold trade.CurrencyStore, reqWindow time.Duration, reqMax int, logger *log.Logger) *Server {
	return &Server{
		hub:       hub,
		reg:       reg,
		players:   players,
		gold:      gold,
		logger:    logger,
		reqWindow: reqWindow,
		reqMax:    reqMax,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c, out := s.handshake(conn)
		if c == nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine: outbox plus keepalive pings.
		go func() {
			ping := time.NewTicker(pingEvery)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						cancel()
						return
					}
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.dispatch(c, msg)
		}

		// A dropped connection cancels the player's live trade.
		if s.reg.InTrade(c.id) {
			s.reg.Cancel(c.id, trade.ReasonDisconnected)
		}
		s.hub.detach(c)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*client, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return nil, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return nil, nil
	}
	name := strings.TrimSpace(hello.PlayerName)
	if name == "" {
		closePolicy(conn, "missing player_name")
		return nil, nil
	}

	userID, _, err := s.players.Login(name)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("login %q: %v", name, err)
		}
		closePolicy(conn, "login failed")
		return nil, nil
	}

	out := make(chan []byte, 32)
	c, ok := s.hub.attach(userID, name, out)
	if !ok {
		closePolicy(conn, "already connected")
		return nil, nil
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		UserID:          userID,
		PlayerName:      name,
		Gold:            s.gold.Gold(userID),
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.hub.detach(c)
		return nil, nil
	}
	return c, out
}

func (s *Server) dispatch(c *client, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.hub.send(c.id, protocol.Ack("", false, protocol.ErrProtoBadRequest, "bad json"))
		return
	}
	var cmd protocol.TradeCmd
	if err := json.Unmarshal(msg, &cmd); err != nil {
		s.hub.send(c.id, protocol.Ack("", false, protocol.ErrProtoBadRequest, "bad json"))
		return
	}
	if cmd.ProtocolVersion != protocol.Version {
		s.hub.send(c.id, protocol.Ack(cmd.ID, false, protocol.ErrProtoBadRequest, "bad protocol_version"))
		return
	}

	var ok bool
	var code, text string
	switch base.Type {
	case protocol.TypeTradeRequest:
		var retry time.Duration
		c.reqStart, c.reqCount, ok, retry = rates.Allow(time.Now(), c.reqStart, c.reqCount, s.reqWindow, s.reqMax)
		if !ok {
			s.hub.send(c.id, protocol.Ack(cmd.ID, false, protocol.ErrRateLimit,
				"too many trade requests, retry in "+retry.Truncate(time.Second).String()))
			return
		}
		ok, code, text = s.reg.RequestTrade(c.id, strings.TrimSpace(cmd.TargetName))
	case protocol.TypeTradeOfferItem:
		ok, code, text = s.reg.UpdateItemOffer(c.id, cmd.Slot, cmd.Qty)
	case protocol.TypeTradeOfferGold:
		ok, code, text = s.reg.UpdateGoldOffer(c.id, cmd.Gold)
	case protocol.TypeTradeConfirm:
		ok, code, text = s.reg.Confirm(c.id)
	case protocol.TypeTradeCancel:
		ok, code, text = s.reg.Cancel(c.id, trade.ReasonCancelled)
	case protocol.TypeTradeReject:
		ok, code, text = s.reg.Reject(c.id)
	default:
		s.hub.send(c.id, protocol.Ack(cmd.ID, false, protocol.ErrProtoBadRequest, "unknown type "+base.Type))
		return
	}
	s.hub.send(c.id, protocol.Ack(cmd.ID, ok, code, text))
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
