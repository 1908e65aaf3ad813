package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"

	"emberhold.gg/internal/protocol"
)

// A scripted trade client. Run one instance per participant against the demo
// accounts:
//
//	bot -name alice -trade bob -slot 1 -qty 2
//	bot -name bob -gold 40
//
// The instance with -trade initiates and confirms only after the partner
// does, so its confirmation is never invalidated by the partner's offer
// landing afterwards. The responder answers any incoming trade with its
// configured offer and confirms right away. Both exit when the session
// closes.
func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "player name")
		target = flag.String("trade", "", "player to open a trade with (responder mode if empty)")
		slot   = flag.Int("slot", 0, "inventory slot to offer")
		qty    = flag.Int("qty", 0, "units to offer from that slot")
		gold   = flag.Int64("gold", 0, "gold to offer")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	seq := 0
	send := func(cmd protocol.TradeCmd) {
		seq++
		cmd.ProtocolVersion = protocol.Version
		cmd.ID = fmt.Sprintf("c%d", seq)
		if err := conn.WriteJSON(cmd); err != nil {
			logger.Fatalf("send %s: %v", cmd.Type, err)
		}
	}
	placeOffer := func(confirm bool) {
		if *slot > 0 && *qty > 0 {
			send(protocol.TradeCmd{Type: protocol.TypeTradeOfferItem, Slot: *slot, Qty: *qty})
		}
		if *gold > 0 {
			send(protocol.TradeCmd{Type: protocol.TypeTradeOfferGold, Gold: *gold})
		}
		if confirm {
			send(protocol.TradeCmd{Type: protocol.TypeTradeConfirm})
		}
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME user_id=%s gold=%d", w.UserID, w.Gold)
			if *target != "" {
				send(protocol.TradeCmd{Type: protocol.TypeTradeRequest, TargetName: *target})
				placeOffer(false)
			}

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			if a.Accepted {
				logger.Printf("ACK %s: %s", a.AckFor, a.Message)
			} else {
				logger.Printf("ACK %s: REJECTED %s %s", a.AckFor, a.Code, a.Message)
			}

		case protocol.EvTradeOpened:
			var ev protocol.Event
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			logger.Printf("trade opened with %v", ev["partner"])
			if *target == "" {
				placeOffer(true)
			}

		case protocol.EvTradeClosed:
			var ev protocol.Event
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			logger.Printf("trade closed: %v", ev["reason"])
			return

		case protocol.EvText:
			var ev protocol.Event
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			text, _ := ev["message"].(string)
			logger.Printf("[%v] %s", ev["severity"], text)
			if *target != "" && strings.Contains(text, "confirmed the trade") {
				send(protocol.TradeCmd{Type: protocol.TypeTradeConfirm})
			}
		}
	}
}
