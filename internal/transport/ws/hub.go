package ws

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"emberhold.gg/internal/protocol"
)

// NameStore supplies display names for players who are not connected.
type NameStore interface {
	DisplayName(userID string) string
}

// Hub tracks connected players and their outboxes. It doubles as the trade
// core's Notifier and Directory: only players the hub can reach count as
// online.
type Hub struct {
	mu     sync.Mutex
	byID   map[string]*client
	byName map[string]string // lower(name) -> id
	store  NameStore
	logger *log.Logger
}

type client struct {
	id   string
	name string
	out  chan []byte

	// Fixed-window rate state for TRADE_REQUEST. Only the connection's own
	// reader goroutine touches these.
	reqStart time.Time
	reqCount int
}

func NewHub(store NameStore, logger *log.Logger) *Hub {
	return &Hub{
		byID:   map[string]*client{},
		byName: map[string]string{},
		store:  store,
		logger: logger,
	}
}

// attach registers a connection. False if the player is already connected.
func (h *Hub) attach(id, name string, out chan []byte) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dup := h.byID[id]; dup {
		return nil, false
	}
	c := &client{id: id, name: name, out: out}
	h.byID[id] = c
	h.byName[strings.ToLower(name)] = id
	return c, true
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byID[c.id] != c {
		return
	}
	delete(h.byID, c.id)
	delete(h.byName, strings.ToLower(c.name))
}

// --- trade.Directory ---

func (h *Hub) FindByName(name string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.byName[strings.ToLower(name)]
	return id, ok
}

func (h *Hub) DisplayName(userID string) string {
	h.mu.Lock()
	if c := h.byID[userID]; c != nil {
		h.mu.Unlock()
		return c.name
	}
	h.mu.Unlock()
	return h.store.DisplayName(userID)
}

// send marshals and queues an event; a full outbox drops it rather than
// stalling the caller (the registry notifies while holding its lock).
func (h *Hub) send(userID string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.Lock()
	c := h.byID[userID]
	h.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case c.out <- b:
	default:
		if h.logger != nil {
			h.logger.Printf("outbox full, dropping %s for %s", string(b[:min(len(b), 64)]), userID)
		}
	}
}

// --- trade.Notifier ---

func (h *Hub) TradeOpened(userID, partnerName string) {
	h.send(userID, protocol.Event{"type": protocol.EvTradeOpened, "partner": partnerName})
}

func (h *Hub) TradeClosed(userID, reason string) {
	h.send(userID, protocol.Event{"type": protocol.EvTradeClosed, "reason": reason})
}

func (h *Hub) Text(userID, message, severity string) {
	h.send(userID, protocol.Event{"type": protocol.EvText, "message": message, "severity": severity})
}
