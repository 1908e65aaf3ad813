package trade

import (
	"fmt"
	"log"
	"sync"
	"time"

	"emberhold.gg/internal/protocol"
)

// Config carries the policy knobs the registry enforces.
type Config struct {
	// Allow gates the whole subsystem; when false every verb answers
	// E_NO_PERMISSION.
	Allow bool
	// MaxOfferSlots caps the distinct item stacks per offer.
	MaxOfferSlots int
}

func (c *Config) applyDefaults() {
	if c.MaxOfferSlots <= 0 {
		c.MaxOfferSlots = 12
	}
}

// Registry owns every live trade session, keyed under both participant ids.
// It is the only entry point into the trade core: all verbs lock the registry
// and run to completion, including the commit itself, so a session is never
// observed mid-swap.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	cfg    Config
	inv    InventoryStore
	gold   CurrencyStore
	dir    Directory
	notify Notifier
	exec   *Executor
	logger *log.Logger
}

func NewRegistry(cfg Config, inv InventoryStore, gold CurrencyStore, dir Directory, notify Notifier, exec *Executor, logger *log.Logger) *Registry {
	cfg.applyDefaults()
	return &Registry{
		sessions: map[string]*Session{},
		cfg:      cfg,
		inv:      inv,
		gold:     gold,
		dir:      dir,
		notify:   notify,
		exec:     exec,
		logger:   logger,
	}
}

// RequestTrade opens a PENDING session between the initiator and the named
// player. Both parties get a TRADE_OPENED notice.
func (r *Registry) RequestTrade(initiatorID, targetName string) (ok bool, code, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.cfg.Allow {
		return false, protocol.ErrNoPermission, "trading is disabled"
	}
	targetID, found := r.dir.FindByName(targetName)
	if !found {
		return false, protocol.ErrInvalidTarget, fmt.Sprintf("%s is not online", targetName)
	}
	if targetID == initiatorID {
		return false, protocol.ErrSelfTrade, "cannot trade with yourself"
	}
	if _, busy := r.sessions[initiatorID]; busy {
		return false, protocol.ErrUserBusy, "you are already in a trade"
	}
	if _, busy := r.sessions[targetID]; busy {
		return false, protocol.ErrUserBusy, fmt.Sprintf("%s is already in a trade", targetName)
	}

	s := newSession(initiatorID, r.dir.DisplayName(initiatorID), targetID, r.dir.DisplayName(targetID), time.Now())
	r.sessions[initiatorID] = s
	r.sessions[targetID] = s
	r.notify.TradeOpened(initiatorID, s.TargetName)
	r.notify.TradeOpened(targetID, s.InitiatorName)
	return true, "", "trade opened"
}

// SessionFor returns a detached copy of the user's session, if any.
func (r *Registry) SessionFor(userID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[userID]
	if s == nil {
		return Session{}, false
	}
	return s.snapshot(), true
}

func (r *Registry) InTrade(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[userID]
	return ok
}

// UpdateItemOffer puts qty units of the stack in the user's inventory slot on
// the table. qty 0 withdraws the entry and always succeeds.
func (r *Registry) UpdateItemOffer(userID string, slot, qty int) (ok bool, code, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok2 := r.sessionLocked(userID)
	if !ok2 {
		return false, protocol.ErrNotInTrade, "no open trade"
	}
	o := s.offerOf(userID)
	if qty == 0 {
		if !o.clear(slot) {
			return true, "", "nothing offered in that slot"
		}
		r.offerChangedLocked(s, userID)
		return true, "", "offer withdrawn"
	}
	if len(o.Items) >= r.cfg.MaxOfferSlots {
		if _, exists := o.Items[slot]; !exists {
			return false, protocol.ErrBadOffer, fmt.Sprintf("at most %d stacks per offer", r.cfg.MaxOfferSlots)
		}
	}
	itemID, valid, code, msg := validateItemOffer(r.inv, userID, o, slot, qty)
	if !valid {
		return false, code, msg
	}
	o.put(OfferedItem{Slot: slot, ItemID: itemID, Qty: qty})
	r.offerChangedLocked(s, userID)
	return true, "", "offer updated"
}

// UpdateGoldOffer puts a gold amount on the table. Amount 0 withdraws it.
func (r *Registry) UpdateGoldOffer(userID string, amount int64) (ok bool, code, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok2 := r.sessionLocked(userID)
	if !ok2 {
		return false, protocol.ErrNotInTrade, "no open trade"
	}
	o := s.offerOf(userID)
	if amount == 0 {
		if o.Gold == 0 {
			return true, "", "no gold offered"
		}
		o.Gold = 0
		r.offerChangedLocked(s, userID)
		return true, "", "gold offer withdrawn"
	}
	if valid, code, msg := validateGoldOffer(r.gold, userID, amount); !valid {
		return false, code, msg
	}
	o.Gold = amount
	r.offerChangedLocked(s, userID)
	return true, "", "gold offer updated"
}

// Confirm marks the caller ready. The first confirmation moves the session to
// ACTIVE; once both sides are ready the swap is committed synchronously. A
// repeat confirm without an intervening offer change is a no-op.
func (r *Registry) Confirm(userID string) (ok bool, code, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok2 := r.sessionLocked(userID)
	if !ok2 {
		return false, protocol.ErrNotInTrade, "no open trade"
	}
	if s.confirmed(userID) {
		return true, "", "already confirmed"
	}
	s.setConfirmed(userID)
	if s.State == StatePending {
		s.State = StateActive
	}
	s.touch(time.Now())

	if !s.bothConfirmed() {
		partnerID, _ := s.Partner(userID)
		r.notify.Text(partnerID, fmt.Sprintf("%s confirmed the trade", s.nameOf(userID)), SeverityInfo)
		return true, "", "confirmed"
	}

	if err := r.exec.Execute(s); err != nil {
		// Retryable: keep the session, drop both confirmations.
		s.resetConfirmations()
		reason := fmt.Sprintf("trade failed: %s (%s)", err.Message, s.nameOf(err.UserID))
		r.notify.Text(s.InitiatorID, reason, SeverityError)
		r.notify.Text(s.TargetID, reason, SeverityError)
		if r.logger != nil {
			r.logger.Printf("commit failed %s/%s: %v", s.InitiatorID, s.TargetID, err)
		}
		return false, err.Code, err.Message
	}

	s.State = StateCompleted
	r.clearLocked(s)
	r.notify.TradeClosed(s.InitiatorID, ReasonCompleted)
	r.notify.TradeClosed(s.TargetID, ReasonCompleted)
	return true, "", "trade completed"
}

// Cancel tears down the caller's session with the given reason. Also the
// cleanup hook the connection layer invokes on disconnect.
func (r *Registry) Cancel(userID, reason string) (ok bool, code, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok2 := r.sessionLocked(userID)
	if !ok2 {
		return false, protocol.ErrNotInTrade, "no open trade"
	}
	r.cancelLocked(s, reason)
	return true, "", "trade " + reason
}

// Reject is the target declining a request; same teardown, different notice.
func (r *Registry) Reject(userID string) (ok bool, code, msg string) {
	return r.Cancel(userID, ReasonRejected)
}

// ReapIdle cancels sessions with no activity for longer than maxIdle and
// returns how many were torn down. Policy for abandoned sessions; wired to a
// janitor loop in cmd/server.
func (r *Registry) ReapIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	var stale []*Session
	for userID, s := range r.sessions {
		if userID == s.InitiatorID && s.LastUpdate.Before(cutoff) {
			stale = append(stale, s)
		}
	}
	for _, s := range stale {
		r.cancelLocked(s, ReasonIdle)
	}
	return len(stale)
}

// sessionLocked looks up the caller's session. With trading disabled no
// session can ever exist, so the not-in-trade answer covers that case too.
func (r *Registry) sessionLocked(userID string) (*Session, bool) {
	s := r.sessions[userID]
	return s, s != nil
}

// offerChangedLocked applies the shared consequences of any successful offer
// mutation: both confirmations drop and the partner is told.
func (r *Registry) offerChangedLocked(s *Session, by string) {
	s.resetConfirmations()
	s.touch(time.Now())
	partnerID, _ := s.Partner(by)
	r.notify.Text(partnerID, fmt.Sprintf("%s changed their offer", s.nameOf(by)), SeverityWarn)
}

func (r *Registry) cancelLocked(s *Session, reason string) {
	s.State = StateCancelled
	r.clearLocked(s)
	r.notify.TradeClosed(s.InitiatorID, reason)
	r.notify.TradeClosed(s.TargetID, reason)
}

// clearLocked removes the dual mapping in one step; a session is reachable
// under both participant ids or under neither.
func (r *Registry) clearLocked(s *Session) {
	delete(r.sessions, s.InitiatorID)
	delete(r.sessions, s.TargetID)
}
