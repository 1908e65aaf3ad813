package trade

import (
	"fmt"

	"emberhold.gg/internal/protocol"
)

// validateItemOffer re-reads the live inventory slot before accepting an item
// offer. Values cached at offer time are never trusted.
func validateItemOffer(inv InventoryStore, userID string, cur *Offer, slot, qty int) (itemID string, ok bool, code, msg string) {
	if qty <= 0 {
		return "", false, protocol.ErrBadOffer, "quantity must be positive"
	}
	itemID, live, held := inv.Slot(userID, slot)
	if !held {
		return "", false, protocol.ErrBadOffer, fmt.Sprintf("slot %d is empty", slot)
	}
	if qty > live {
		return "", false, protocol.ErrBadOffer, fmt.Sprintf("slot %d holds only %d", slot, live)
	}
	if prev, exists := cur.Items[slot]; exists && prev.ItemID != itemID {
		return "", false, protocol.ErrBadOffer, fmt.Sprintf("slot %d now holds a different item; clear it first", slot)
	}
	return itemID, true, "", ""
}

func validateGoldOffer(cur CurrencyStore, userID string, amount int64) (ok bool, code, msg string) {
	if amount < 0 {
		return false, protocol.ErrBadRequest, "gold amount must not be negative"
	}
	if live := cur.Gold(userID); amount > live {
		return false, protocol.ErrNoGold, fmt.Sprintf("only %d gold available", live)
	}
	return true, "", ""
}

// revalidateOffer re-checks a whole offer against current store state. Used
// by the executor at commit time; any violation aborts with zero mutation.
func revalidateOffer(inv InventoryStore, cur CurrencyStore, userID string, o *Offer) (ok bool, code, msg string) {
	for _, slot := range o.slots() {
		it := o.Items[slot]
		itemID, live, held := inv.Slot(userID, slot)
		if !held || itemID != it.ItemID || live < it.Qty {
			return false, protocol.ErrStale, fmt.Sprintf("slot %d no longer holds %dx %s", slot, it.Qty, it.ItemID)
		}
	}
	if o.Gold > 0 && cur.Gold(userID) < o.Gold {
		return false, protocol.ErrStale, fmt.Sprintf("%d gold no longer available", o.Gold)
	}
	return true, "", ""
}
