package trade

import (
	"testing"
	"time"

	"emberhold.gg/internal/protocol"
)

func TestRequestTradeOpensSession(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	sa, ok := f.reg.SessionFor(aliceID)
	if !ok {
		t.Fatalf("expected session under initiator id")
	}
	sb, ok := f.reg.SessionFor(bobID)
	if !ok {
		t.Fatalf("expected session under target id")
	}
	if sa.State != StatePending || sb.State != StatePending {
		t.Fatalf("expected PENDING, got %s / %s", sa.State, sb.State)
	}
	if sa.InitiatorName != "Alice" || sa.TargetName != "Bob" {
		t.Fatalf("unexpected names: %q %q", sa.InitiatorName, sa.TargetName)
	}
	if len(f.notes.opened) != 2 {
		t.Fatalf("expected both parties notified, got %v", f.notes.opened)
	}
}

func TestRequestTradeTargetOffline(t *testing.T) {
	f := newFixture(t)
	f.dir.offline[bobID] = true
	ok, code, _ := f.reg.RequestTrade(aliceID, "Bob")
	if ok || code != protocol.ErrInvalidTarget {
		t.Fatalf("expected E_INVALID_TARGET, got ok=%v code=%s", ok, code)
	}
	if f.reg.InTrade(aliceID) {
		t.Fatalf("no session should exist")
	}
}

func TestRequestTradeSelf(t *testing.T) {
	f := newFixture(t)
	ok, code, _ := f.reg.RequestTrade(aliceID, "Alice")
	if ok || code != protocol.ErrSelfTrade {
		t.Fatalf("expected E_SELF_TRADE, got ok=%v code=%s", ok, code)
	}
}

func TestRequestTradeUserBusy(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	// Third party cannot reach either participant.
	ok, code, _ := f.reg.RequestTrade(carolID, "Bob")
	if ok || code != protocol.ErrUserBusy {
		t.Fatalf("expected E_USER_BUSY for busy target, got ok=%v code=%s", ok, code)
	}
	// A busy initiator cannot open a second session either.
	ok, code, _ = f.reg.RequestTrade(aliceID, "Carol")
	if ok || code != protocol.ErrUserBusy {
		t.Fatalf("expected E_USER_BUSY for busy initiator, got ok=%v code=%s", ok, code)
	}
}

func TestTradingDisabled(t *testing.T) {
	f := newFixtureCfg(t, Config{Allow: false})
	ok, code, _ := f.reg.RequestTrade(aliceID, "Bob")
	if ok || code != protocol.ErrNoPermission {
		t.Fatalf("expected E_NO_PERMISSION, got ok=%v code=%s", ok, code)
	}
}

func TestCancelClearsBothMappings(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	if ok, code, _ := f.reg.Cancel(bobID, ReasonCancelled); !ok {
		t.Fatalf("cancel failed: %s", code)
	}
	if f.reg.InTrade(aliceID) || f.reg.InTrade(bobID) {
		t.Fatalf("expected both mappings cleared")
	}
	if got := f.notes.closedReasons(aliceID); len(got) != 1 || got[0] != ReasonCancelled {
		t.Fatalf("unexpected close notices for alice: %v", got)
	}
	if got := f.notes.closedReasons(bobID); len(got) != 1 || got[0] != ReasonCancelled {
		t.Fatalf("unexpected close notices for bob: %v", got)
	}
}

func TestCancelAfterPartnerConfirmed(t *testing.T) {
	f := newFixture(t)
	f.store.setSlot(aliceID, 1, "IRON_INGOT", 5)
	f.store.gold[bobID] = 60
	f.open(t)
	if ok, _, _ := f.reg.UpdateItemOffer(aliceID, 1, 2); !ok {
		t.Fatalf("offer failed")
	}
	before := f.store.dump()

	if ok, _, _ := f.reg.Confirm(aliceID); !ok {
		t.Fatalf("confirm failed")
	}
	if ok, _, _ := f.reg.Cancel(bobID, ReasonCancelled); !ok {
		t.Fatalf("cancel failed")
	}

	if f.reg.InTrade(aliceID) || f.reg.InTrade(bobID) {
		t.Fatalf("session should be gone")
	}
	if after := f.store.dump(); after != before {
		t.Fatalf("cancel moved resources:\nbefore: %s\nafter: %s", before, after)
	}
	if len(f.notes.closedReasons(aliceID)) != 1 || len(f.notes.closedReasons(bobID)) != 1 {
		t.Fatalf("expected cancellation notices for both parties")
	}
}

func TestRejectRemovesSession(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	if ok, _, _ := f.reg.Reject(bobID); !ok {
		t.Fatalf("reject failed")
	}
	if f.reg.InTrade(aliceID) {
		t.Fatalf("session should be gone")
	}
	if got := f.notes.closedReasons(aliceID); len(got) != 1 || got[0] != ReasonRejected {
		t.Fatalf("unexpected reasons: %v", got)
	}
}

func TestOfferChangeResetsConfirmations(t *testing.T) {
	f := newFixture(t)
	f.store.setSlot(aliceID, 1, "IRON_INGOT", 5)
	f.open(t)

	if ok, _, _ := f.reg.Confirm(bobID); !ok {
		t.Fatalf("bob confirm failed")
	}
	if s, _ := f.reg.SessionFor(bobID); !s.TargetConfirmed {
		t.Fatalf("bob's flag should be set")
	}

	if ok, code, msg := f.reg.UpdateItemOffer(aliceID, 1, 2); !ok {
		t.Fatalf("offer failed: %s %s", code, msg)
	}
	s, _ := f.reg.SessionFor(bobID)
	if s.InitiatorConfirmed || s.TargetConfirmed {
		t.Fatalf("both flags must reset after an offer change")
	}
	texts := f.notes.textsFor(bobID)
	if len(texts) == 0 {
		t.Fatalf("bob should be told the offer changed")
	}
	last := texts[len(texts)-1]
	if want := bobID + ":" + SeverityWarn + ":Alice changed their offer"; last != want {
		t.Fatalf("unexpected notice %q, want %q", last, want)
	}
}

func TestConfirmIdempotent(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	if ok, _, _ := f.reg.Confirm(aliceID); !ok {
		t.Fatalf("first confirm failed")
	}
	if ok, _, msg := f.reg.Confirm(aliceID); !ok || msg != "already confirmed" {
		t.Fatalf("repeat confirm should no-op, got ok=%v msg=%q", ok, msg)
	}
	s, _ := f.reg.SessionFor(aliceID)
	if !s.InitiatorConfirmed || s.TargetConfirmed {
		t.Fatalf("unexpected flags: %v %v", s.InitiatorConfirmed, s.TargetConfirmed)
	}
	if s.State != StateActive {
		t.Fatalf("first confirm should activate, got %s", s.State)
	}
	// Bob heard about the confirmation exactly once.
	if got := f.notes.textsFor(bobID); len(got) != 1 {
		t.Fatalf("expected one confirmation notice, got %v", got)
	}
	if len(f.audit.completed) != 0 {
		t.Fatalf("nothing should have committed")
	}
}

func TestUpdateOfferWithoutSession(t *testing.T) {
	f := newFixture(t)
	if ok, code, _ := f.reg.UpdateItemOffer(aliceID, 1, 1); ok || code != protocol.ErrNotInTrade {
		t.Fatalf("expected E_NOT_IN_TRADE, got ok=%v code=%s", ok, code)
	}
	if ok, code, _ := f.reg.Confirm(aliceID); ok || code != protocol.ErrNotInTrade {
		t.Fatalf("expected E_NOT_IN_TRADE, got ok=%v code=%s", ok, code)
	}
}

func TestItemOfferValidation(t *testing.T) {
	f := newFixture(t)
	f.store.setSlot(aliceID, 1, "IRON_INGOT", 3)
	f.open(t)

	if ok, code, _ := f.reg.UpdateItemOffer(aliceID, 2, 1); ok || code != protocol.ErrBadOffer {
		t.Fatalf("empty slot: expected E_BAD_OFFER, got ok=%v code=%s", ok, code)
	}
	if ok, code, _ := f.reg.UpdateItemOffer(aliceID, 1, 5); ok || code != protocol.ErrBadOffer {
		t.Fatalf("over quantity: expected E_BAD_OFFER, got ok=%v code=%s", ok, code)
	}
	if ok, code, _ := f.reg.UpdateItemOffer(aliceID, 1, -1); ok || code != protocol.ErrBadOffer {
		t.Fatalf("negative quantity: expected E_BAD_OFFER, got ok=%v code=%s", ok, code)
	}
	if ok, code, msg := f.reg.UpdateItemOffer(aliceID, 1, 3); !ok {
		t.Fatalf("valid offer rejected: %s %s", code, msg)
	}
}

func TestOfferSlotItemSwitchRequiresClear(t *testing.T) {
	f := newFixture(t)
	f.store.setSlot(aliceID, 1, "IRON_INGOT", 3)
	f.open(t)
	if ok, _, _ := f.reg.UpdateItemOffer(aliceID, 1, 2); !ok {
		t.Fatalf("initial offer failed")
	}

	// Another subsystem swaps what sits in slot 1.
	f.store.setSlot(aliceID, 1, "PLANK", 10)
	if ok, code, _ := f.reg.UpdateItemOffer(aliceID, 1, 4); ok || code != protocol.ErrBadOffer {
		t.Fatalf("item switch without clear: expected E_BAD_OFFER, got ok=%v code=%s", ok, code)
	}
	// Clearing the entry first makes the slot offerable again.
	if ok, _, _ := f.reg.UpdateItemOffer(aliceID, 1, 0); !ok {
		t.Fatalf("clear failed")
	}
	if ok, code, msg := f.reg.UpdateItemOffer(aliceID, 1, 4); !ok {
		t.Fatalf("re-offer failed: %s %s", code, msg)
	}
}

func TestOfferRemovalAlwaysSucceeds(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	if ok, _, _ := f.reg.UpdateItemOffer(aliceID, 7, 0); !ok {
		t.Fatalf("removing a non-existent entry should still succeed")
	}
	if ok, _, _ := f.reg.UpdateGoldOffer(aliceID, 0); !ok {
		t.Fatalf("zeroing absent gold should still succeed")
	}
	// A no-op removal is not an offer change: no partner notice.
	if got := f.notes.textsFor(bobID); len(got) != 0 {
		t.Fatalf("unexpected notices: %v", got)
	}
}

func TestGoldOfferValidation(t *testing.T) {
	f := newFixture(t)
	f.store.gold[aliceID] = 50
	f.open(t)

	if ok, code, _ := f.reg.UpdateGoldOffer(aliceID, 80); ok || code != protocol.ErrNoGold {
		t.Fatalf("expected E_NO_GOLD, got ok=%v code=%s", ok, code)
	}
	if ok, code, _ := f.reg.UpdateGoldOffer(aliceID, -5); ok || code != protocol.ErrBadRequest {
		t.Fatalf("expected E_BAD_REQUEST, got ok=%v code=%s", ok, code)
	}
	if ok, code, msg := f.reg.UpdateGoldOffer(aliceID, 50); !ok {
		t.Fatalf("valid gold offer rejected: %s %s", code, msg)
	}
	s, _ := f.reg.SessionFor(aliceID)
	if s.InitiatorOffer.Gold != 50 {
		t.Fatalf("unexpected gold: %d", s.InitiatorOffer.Gold)
	}
}

func TestMaxOfferSlots(t *testing.T) {
	f := newFixtureCfg(t, Config{Allow: true, MaxOfferSlots: 2})
	f.store.setSlot(aliceID, 1, "IRON_INGOT", 1)
	f.store.setSlot(aliceID, 2, "PLANK", 1)
	f.store.setSlot(aliceID, 3, "STONE", 1)
	f.open(t)

	for slot := 1; slot <= 2; slot++ {
		if ok, _, _ := f.reg.UpdateItemOffer(aliceID, slot, 1); !ok {
			t.Fatalf("offer slot %d failed", slot)
		}
	}
	if ok, code, _ := f.reg.UpdateItemOffer(aliceID, 3, 1); ok || code != protocol.ErrBadOffer {
		t.Fatalf("expected E_BAD_OFFER over the cap, got ok=%v code=%s", ok, code)
	}
	// Re-offering an already-listed slot stays allowed.
	if ok, _, _ := f.reg.UpdateItemOffer(aliceID, 1, 1); !ok {
		t.Fatalf("re-offer of existing slot should pass the cap")
	}
}

func TestReapIdle(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	if n := f.reg.ReapIdle(time.Hour); n != 0 {
		t.Fatalf("fresh session reaped: %d", n)
	}
	// Backdate the session.
	f.reg.mu.Lock()
	f.reg.sessions[aliceID].LastUpdate = time.Now().Add(-10 * time.Minute)
	f.reg.mu.Unlock()

	if n := f.reg.ReapIdle(5 * time.Minute); n != 1 {
		t.Fatalf("expected one reap, got %d", n)
	}
	if f.reg.InTrade(aliceID) || f.reg.InTrade(bobID) {
		t.Fatalf("session should be gone")
	}
	if got := f.notes.closedReasons(bobID); len(got) != 1 || got[0] != ReasonIdle {
		t.Fatalf("unexpected reasons: %v", got)
	}
}

func TestSessionSnapshotDetached(t *testing.T) {
	f := newFixture(t)
	f.store.setSlot(aliceID, 1, "IRON_INGOT", 5)
	f.open(t)
	if ok, _, _ := f.reg.UpdateItemOffer(aliceID, 1, 2); !ok {
		t.Fatalf("offer failed")
	}

	s, _ := f.reg.SessionFor(aliceID)
	s.InitiatorOffer.Items[1] = OfferedItem{Slot: 1, ItemID: "FORGED", Qty: 99}

	fresh, _ := f.reg.SessionFor(aliceID)
	if it := fresh.InitiatorOffer.Items[1]; it.ItemID != "IRON_INGOT" || it.Qty != 2 {
		t.Fatalf("snapshot mutation leaked into the registry: %+v", it)
	}
}
