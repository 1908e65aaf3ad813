package trade

import "sort"

// OfferedItem is one stack a participant has put on the table, addressed by
// the slot it occupies in that participant's own inventory.
type OfferedItem struct {
	Slot   int    `json:"slot"`
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

// Offer is everything one participant has proposed to relinquish. A slot key
// never silently changes item id: the entry must be cleared first.
type Offer struct {
	Items map[int]OfferedItem `json:"items,omitempty"`
	Gold  int64               `json:"gold,omitempty"`
}

func (o *Offer) Empty() bool {
	return len(o.Items) == 0 && o.Gold == 0
}

func (o *Offer) put(it OfferedItem) {
	if o.Items == nil {
		o.Items = map[int]OfferedItem{}
	}
	o.Items[it.Slot] = it
}

// clear drops the entry for a slot and reports whether one was present.
func (o *Offer) clear(slot int) bool {
	if _, ok := o.Items[slot]; !ok {
		return false
	}
	delete(o.Items, slot)
	return true
}

// slots returns the offered slot keys in ascending order so that withdraw and
// deliver walk the offer deterministically.
func (o *Offer) slots() []int {
	out := make([]int, 0, len(o.Items))
	for slot := range o.Items {
		out = append(out, slot)
	}
	sort.Ints(out)
	return out
}

func (o *Offer) clone() Offer {
	c := Offer{Gold: o.Gold}
	if len(o.Items) > 0 {
		c.Items = make(map[int]OfferedItem, len(o.Items))
		for slot, it := range o.Items {
			c.Items[slot] = it
		}
	}
	return c
}
