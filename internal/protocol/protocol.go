package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	// Client -> server.
	TypeHello          = "HELLO"
	TypeTradeRequest   = "TRADE_REQUEST"
	TypeTradeOfferItem = "TRADE_OFFER_ITEM"
	TypeTradeOfferGold = "TRADE_OFFER_GOLD"
	TypeTradeConfirm   = "TRADE_CONFIRM"
	TypeTradeCancel    = "TRADE_CANCEL"
	TypeTradeReject    = "TRADE_REJECT"

	// Server -> client.
	TypeWelcome = "WELCOME"
	TypeAck     = "ACK"
)

// Server-push event types (the "type" key of an Event).
const (
	EvTradeOpened = "TRADE_OPENED"
	EvTradeClosed = "TRADE_CLOSED"
	EvText        = "TEXT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Event is a loosely-typed server push. Routed client-side by its "type" key.
type Event map[string]any
