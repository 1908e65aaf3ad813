package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	UserID          string `json:"user_id"`
	PlayerName      string `json:"player_name"`
	Gold            int64  `json:"gold"`
}

// TradeCmd carries every client-side trade verb. Which fields matter depends
// on Type: TRADE_REQUEST uses TargetName, TRADE_OFFER_ITEM uses Slot/Qty,
// TRADE_OFFER_GOLD uses Gold; the rest need only Type. ID is an opaque client
// reference echoed back in the ACK.
type TradeCmd struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	TargetName      string `json:"target_name,omitempty"`
	Slot            int    `json:"slot,omitempty"`
	Qty             int    `json:"qty,omitempty"`
	Gold            int64  `json:"gold,omitempty"`
}

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for,omitempty"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

func Ack(ref string, accepted bool, code, message string) AckMsg {
	return AckMsg{
		Type:            TypeAck,
		ProtocolVersion: Version,
		AckFor:          ref,
		Accepted:        accepted,
		Code:            code,
		Message:         message,
	}
}
