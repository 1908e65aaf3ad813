package trade

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"testing"
)

type stack struct {
	itemID string
	qty    int
}

// memStore is an in-memory inventory+currency store with failure injection
// for driving the commit phases into their corners.
type memStore struct {
	inv      map[string]map[int]stack
	gold     map[string]int64
	maxSlots int

	failAddFor     map[string]bool // AddItem stores nothing (inventory full)
	failRemoveSlot map[string]int  // RemoveItem fails for this user+slot
	failRemoveByID bool            // breaks delivery reversal
}

func newMemStore() *memStore {
	return &memStore{
		inv:            map[string]map[int]stack{},
		gold:           map[string]int64{},
		maxSlots:       30,
		failAddFor:     map[string]bool{},
		failRemoveSlot: map[string]int{},
	}
}

func (m *memStore) setSlot(user string, slot int, itemID string, qty int) {
	if m.inv[user] == nil {
		m.inv[user] = map[int]stack{}
	}
	if qty <= 0 {
		delete(m.inv[user], slot)
		return
	}
	m.inv[user][slot] = stack{itemID: itemID, qty: qty}
}

func (m *memStore) Slot(user string, slot int) (string, int, bool) {
	st, ok := m.inv[user][slot]
	if !ok {
		return "", 0, false
	}
	return st.itemID, st.qty, true
}

func (m *memStore) RemoveItem(user string, slot, qty int) bool {
	if s, ok := m.failRemoveSlot[user]; ok && s == slot {
		return false
	}
	st, ok := m.inv[user][slot]
	if !ok || st.qty < qty || qty <= 0 {
		return false
	}
	st.qty -= qty
	if st.qty == 0 {
		delete(m.inv[user], slot)
	} else {
		m.inv[user][slot] = st
	}
	return true
}

func (m *memStore) AddItem(user string, itemID string, qty int) []SlotChange {
	if qty <= 0 || m.failAddFor[user] {
		return nil
	}
	if m.inv[user] == nil {
		m.inv[user] = map[int]stack{}
	}
	// Stack onto an existing slot of the same item first.
	for _, slot := range sortedSlots(m.inv[user]) {
		st := m.inv[user][slot]
		if st.itemID == itemID {
			st.qty += qty
			m.inv[user][slot] = st
			return []SlotChange{{Slot: slot, Qty: st.qty}}
		}
	}
	for slot := 1; slot <= m.maxSlots; slot++ {
		if _, used := m.inv[user][slot]; !used {
			m.inv[user][slot] = stack{itemID: itemID, qty: qty}
			return []SlotChange{{Slot: slot, Qty: qty}}
		}
	}
	return nil
}

func (m *memStore) RemoveItemByID(user string, itemID string, qty int) bool {
	if m.failRemoveByID {
		return false
	}
	total := 0
	for _, st := range m.inv[user] {
		if st.itemID == itemID {
			total += st.qty
		}
	}
	if total < qty || qty <= 0 {
		return false
	}
	left := qty
	for _, slot := range sortedSlots(m.inv[user]) {
		if left == 0 {
			break
		}
		st := m.inv[user][slot]
		if st.itemID != itemID {
			continue
		}
		take := st.qty
		if take > left {
			take = left
		}
		st.qty -= take
		if st.qty == 0 {
			delete(m.inv[user], slot)
		} else {
			m.inv[user][slot] = st
		}
		left -= take
	}
	return true
}

func (m *memStore) Gold(user string) int64 { return m.gold[user] }

func (m *memStore) RemoveGold(user string, amount int64) bool {
	if amount <= 0 || m.gold[user] < amount {
		return false
	}
	m.gold[user] -= amount
	return true
}

func (m *memStore) AddGold(user string, amount int64) int64 {
	m.gold[user] += amount
	return m.gold[user]
}

// totalOf sums an item across users, for conservation checks.
func (m *memStore) totalOf(itemID string, users ...string) int {
	total := 0
	for _, u := range users {
		for _, st := range m.inv[u] {
			if st.itemID == itemID {
				total += st.qty
			}
		}
	}
	return total
}

func (m *memStore) goldTotal(users ...string) int64 {
	var total int64
	for _, u := range users {
		total += m.gold[u]
	}
	return total
}

// dump renders all slots and balances deterministically so tests can assert
// exact state equality across a failed commit.
func (m *memStore) dump() string {
	users := map[string]bool{}
	for u := range m.inv {
		users[u] = true
	}
	for u := range m.gold {
		users[u] = true
	}
	ordered := make([]string, 0, len(users))
	for u := range users {
		ordered = append(ordered, u)
	}
	sort.Strings(ordered)

	var b strings.Builder
	for _, u := range ordered {
		fmt.Fprintf(&b, "%s gold=%d", u, m.gold[u])
		for _, slot := range sortedSlots(m.inv[u]) {
			st := m.inv[u][slot]
			fmt.Fprintf(&b, " %d:%s:%d", slot, st.itemID, st.qty)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func sortedSlots(slots map[int]stack) []int {
	out := make([]int, 0, len(slots))
	for s := range slots {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

type memDir struct {
	names   map[string]string // id -> display name
	offline map[string]bool
}

func (d *memDir) FindByName(name string) (string, bool) {
	for id, n := range d.names {
		if strings.EqualFold(n, name) && !d.offline[id] {
			return id, true
		}
	}
	return "", false
}

func (d *memDir) DisplayName(id string) string {
	if n, ok := d.names[id]; ok {
		return n
	}
	return id
}

type recNotifier struct {
	opened []string // "user<-partner"
	closed []string // "user:reason"
	texts  []string // "user:severity:message"
}

func (n *recNotifier) TradeOpened(userID, partnerName string) {
	n.opened = append(n.opened, userID+"<-"+partnerName)
}

func (n *recNotifier) TradeClosed(userID, reason string) {
	n.closed = append(n.closed, userID+":"+reason)
}

func (n *recNotifier) Text(userID, message, severity string) {
	n.texts = append(n.texts, userID+":"+severity+":"+message)
}

func (n *recNotifier) textsFor(userID string) []string {
	var out []string
	for _, t := range n.texts {
		if strings.HasPrefix(t, userID+":") {
			out = append(out, t)
		}
	}
	return out
}

func (n *recNotifier) closedReasons(userID string) []string {
	var out []string
	for _, c := range n.closed {
		if strings.HasPrefix(c, userID+":") {
			out = append(out, strings.TrimPrefix(c, userID+":"))
		}
	}
	return out
}

type recAudit struct {
	completed []AuditEntry
	reconcile []ReconcileEntry
}

func (a *recAudit) TradeCompleted(e AuditEntry)   { a.completed = append(a.completed, e) }
func (a *recAudit) RollbackFailed(e ReconcileEntry) { a.reconcile = append(a.reconcile, e) }

const (
	aliceID = "A1"
	bobID   = "B1"
	carolID = "C1"
)

type fixture struct {
	store *memStore
	dir   *memDir
	notes *recNotifier
	audit *recAudit
	reg   *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureCfg(t, Config{Allow: true})
}

func newFixtureCfg(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := newMemStore()
	dir := &memDir{
		names:   map[string]string{aliceID: "Alice", bobID: "Bob", carolID: "Carol"},
		offline: map[string]bool{},
	}
	notes := &recNotifier{}
	audit := &recAudit{}
	logger := log.New(io.Discard, "", 0)
	exec := NewExecutor(store, store, audit, logger)
	reg := NewRegistry(cfg, store, store, dir, notes, exec, logger)
	return &fixture{store: store, dir: dir, notes: notes, audit: audit, reg: reg}
}

// open starts an Alice->Bob session or fails the test.
func (f *fixture) open(t *testing.T) {
	t.Helper()
	if ok, code, msg := f.reg.RequestTrade(aliceID, "Bob"); !ok {
		t.Fatalf("request trade: %s %s", code, msg)
	}
}
