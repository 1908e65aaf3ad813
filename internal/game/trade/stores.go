package trade

import "time"

// Collaborator contracts. Inventory, gold, name resolution and client
// feedback are all owned elsewhere; the trade core only consumes them.

type SlotChange struct {
	Slot int
	Qty  int
}

type InventoryStore interface {
	// Slot returns the item stack occupying a slot, if any.
	Slot(userID string, slot int) (itemID string, qty int, ok bool)
	// RemoveItem takes qty units out of a slot. False if the slot does not
	// hold at least that many units.
	RemoveItem(userID string, slot int, qty int) bool
	// AddItem stores qty units wherever they fit and reports the touched
	// slots. An empty result means nothing was stored (inventory full).
	AddItem(userID string, itemID string, qty int) []SlotChange
	// RemoveItemByID takes qty units of an item regardless of slot. Only
	// used when reversing a delivery.
	RemoveItemByID(userID string, itemID string, qty int) bool
}

type CurrencyStore interface {
	Gold(userID string) int64
	RemoveGold(userID string, amount int64) bool
	AddGold(userID string, amount int64) int64
}

// Directory resolves online players. FindByName must only report players the
// server can currently deliver notifications to.
type Directory interface {
	FindByName(name string) (userID string, ok bool)
	DisplayName(userID string) string
}

// Notifier delivers user-visible trade feedback. Every message a participant
// sees goes through here.
type Notifier interface {
	TradeOpened(userID, partnerName string)
	TradeClosed(userID, reason string)
	Text(userID, message, severity string)
}

const (
	SeverityInfo  = "INFO"
	SeverityWarn  = "WARN"
	SeverityError = "ERROR"
)

// Session close reasons surfaced via Notifier.TradeClosed.
const (
	ReasonCompleted    = "completed"
	ReasonCancelled    = "cancelled"
	ReasonRejected     = "rejected"
	ReasonDisconnected = "partner disconnected"
	ReasonIdle         = "idle timeout"
)

// AuditSink receives durable records. RollbackFailed entries flag possible
// resource duplication or loss and are meant for manual reconciliation.
type AuditSink interface {
	TradeCompleted(AuditEntry)
	RollbackFailed(ReconcileEntry)
}

type AuditEntry struct {
	Time          time.Time `json:"time"`
	InitiatorID   string    `json:"initiator_id"`
	TargetID      string    `json:"target_id"`
	InitiatorGave Offer     `json:"initiator_gave"`
	TargetGave    Offer     `json:"target_gave"`
}

type ReconcileEntry struct {
	Time        time.Time `json:"time"`
	InitiatorID string    `json:"initiator_id"`
	TargetID    string    `json:"target_id"`
	Cause       string    `json:"cause"`
	Failed      []string  `json:"failed"`
	Message     string    `json:"message"`
}
