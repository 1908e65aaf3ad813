package trade

import (
	"fmt"
	"log"
	"time"

	"emberhold.gg/internal/protocol"
)

// ExchangeError names the participant that blocked a commit and why. Code
// E_ROLLBACK means an undo step itself failed and store state may no longer
// be consistent; everything else leaves the stores untouched.
type ExchangeError struct {
	Code    string
	UserID  string
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.UserID, e.Message)
}

// undoLedger records completed sub-operations paired with their inverse so a
// failed phase can be reversed newest-first.
type undoLedger struct {
	steps []undoStep
}

type undoStep struct {
	note   string
	revert func() bool
}

func (l *undoLedger) record(note string, revert func() bool) {
	l.steps = append(l.steps, undoStep{note: note, revert: revert})
}

// unwind reverses every recorded step in LIFO order and reports the steps
// whose reversal itself failed. The ledger is drained either way.
func (l *undoLedger) unwind() []string {
	var failed []string
	for i := len(l.steps) - 1; i >= 0; i-- {
		if !l.steps[i].revert() {
			failed = append(failed, l.steps[i].note)
		}
	}
	l.steps = nil
	return failed
}

// Executor realizes a confirmed swap against stores that have no multi-key
// transactions: revalidate, withdraw both sides, deliver both sides, with an
// undo ledger per mutating phase.
type Executor struct {
	inv    InventoryStore
	gold   CurrencyStore
	audit  AuditSink // may be nil
	logger *log.Logger
}

func NewExecutor(inv InventoryStore, gold CurrencyStore, audit AuditSink, logger *log.Logger) *Executor {
	return &Executor{inv: inv, gold: gold, audit: audit, logger: logger}
}

// Execute runs the staged commit for a session both sides confirmed. It runs
// to completion before returning; the caller holds the registry lock, so no
// other trade operation can observe an intermediate state.
func (e *Executor) Execute(s *Session) *ExchangeError {
	sides := []struct {
		id    string
		offer *Offer
	}{
		{s.InitiatorID, &s.InitiatorOffer},
		{s.TargetID, &s.TargetOffer},
	}

	// Phase 1: revalidate against live state. Zero mutation on violation.
	for _, side := range sides {
		if ok, code, msg := revalidateOffer(e.inv, e.gold, side.id, side.offer); !ok {
			return &ExchangeError{Code: code, UserID: side.id, Message: msg}
		}
	}

	// Phase 2: withdraw every offered stack and gold amount from its owner.
	var withdrawn undoLedger
	for _, side := range sides {
		userID := side.id
		for _, slot := range side.offer.slots() {
			it := side.offer.Items[slot]
			if !e.inv.RemoveItem(userID, it.Slot, it.Qty) {
				return e.abort(s, protocol.ErrStale, userID,
					fmt.Sprintf("slot %d changed during commit", it.Slot), &withdrawn)
			}
			withdrawn.record(fmt.Sprintf("restore %dx %s to %s", it.Qty, it.ItemID, userID), func() bool {
				return len(e.inv.AddItem(userID, it.ItemID, it.Qty)) > 0
			})
		}
		if g := side.offer.Gold; g > 0 {
			if !e.gold.RemoveGold(userID, g) {
				return e.abort(s, protocol.ErrStale, userID, "gold changed during commit", &withdrawn)
			}
			withdrawn.record(fmt.Sprintf("restore %d gold to %s", g, userID), func() bool {
				e.gold.AddGold(userID, g)
				return true
			})
		}
	}

	// Phase 3: deliver each participant the partner's offer. A failure here
	// reverses the deliveries made so far, then the whole withdraw phase.
	var delivered undoLedger
	for i, side := range sides {
		userID := side.id
		incoming := sides[1-i].offer
		for _, slot := range incoming.slots() {
			it := incoming.Items[slot]
			if len(e.inv.AddItem(userID, it.ItemID, it.Qty)) == 0 {
				return e.abort(s, protocol.ErrBlocked, userID,
					fmt.Sprintf("inventory full, cannot receive %dx %s", it.Qty, it.ItemID),
					&delivered, &withdrawn)
			}
			delivered.record(fmt.Sprintf("take back %dx %s from %s", it.Qty, it.ItemID, userID), func() bool {
				return e.inv.RemoveItemByID(userID, it.ItemID, it.Qty)
			})
		}
		if g := incoming.Gold; g > 0 {
			e.gold.AddGold(userID, g)
			delivered.record(fmt.Sprintf("take back %d gold from %s", g, userID), func() bool {
				return e.gold.RemoveGold(userID, g)
			})
		}
	}

	if e.audit != nil {
		e.audit.TradeCompleted(AuditEntry{
			Time:          time.Now().UTC(),
			InitiatorID:   s.InitiatorID,
			TargetID:      s.TargetID,
			InitiatorGave: s.InitiatorOffer.clone(),
			TargetGave:    s.TargetOffer.clone(),
		})
	}
	return nil
}

// abort unwinds the given ledgers (newest phase first). If any reversal fails
// the condition is fatal: it is logged and flagged for manual reconciliation,
// never retried.
func (e *Executor) abort(s *Session, code, userID, msg string, ledgers ...*undoLedger) *ExchangeError {
	var failed []string
	for _, l := range ledgers {
		failed = append(failed, l.unwind()...)
	}
	if len(failed) == 0 {
		return &ExchangeError{Code: code, UserID: userID, Message: msg}
	}
	if e.logger != nil {
		e.logger.Printf("ROLLBACK FAILURE trade %s/%s cause=%s failed=%v", s.InitiatorID, s.TargetID, code, failed)
	}
	if e.audit != nil {
		e.audit.RollbackFailed(ReconcileEntry{
			Time:        time.Now().UTC(),
			InitiatorID: s.InitiatorID,
			TargetID:    s.TargetID,
			Cause:       code,
			Failed:      failed,
			Message:     msg,
		})
	}
	return &ExchangeError{Code: protocol.ErrRollback, UserID: userID, Message: "rollback failed, flagged for reconciliation"}
}
