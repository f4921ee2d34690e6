package checkout

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle phase of a cart.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusPaying  Status = "paying"
	StatusPaid    Status = "paid"
)

// Item is one cart line.
type Item struct {
	SKU      string
	Price    decimal.Decimal
	Quantity int
}

// LineTotal returns price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// State is the cart view state.
type State struct {
	Currency   string
	Items      []Item
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	Applied    []string
	Status     Status
	Revision   int
	ReceiptID  string
	LastFailed string
}

// Equal compares states by value; decimals compare numerically.
func (s State) Equal(other State) bool {
	if s.Currency != other.Currency || s.Status != other.Status || s.Revision != other.Revision ||
		s.ReceiptID != other.ReceiptID || s.LastFailed != other.LastFailed {
		return false
	}
	if !s.Subtotal.Equal(other.Subtotal) || !s.Discount.Equal(other.Discount) || !s.Total.Equal(other.Total) {
		return false
	}
	if !slices.Equal(s.Applied, other.Applied) {
		return false
	}
	return slices.EqualFunc(s.Items, other.Items, func(a, b Item) bool {
		return a.SKU == b.SKU && a.Quantity == b.Quantity && a.Price.Equal(b.Price)
	})
}

// Quantity returns the number of units in the cart.
func (s State) Quantity() int {
	n := 0
	for _, item := range s.Items {
		n += item.Quantity
	}
	return n
}

// Item returns the line for sku.
func (s State) Item(sku string) (Item, bool) {
	for _, item := range s.Items {
		if item.SKU == sku {
			return item, true
		}
	}
	return Item{}, false
}

func (s State) withItems(items []Item) State {
	s.Items = items
	s.Subtotal = decimal.Zero
	for _, item := range items {
		s.Subtotal = s.Subtotal.Add(item.LineTotal())
	}
	return s
}

// SideEffectKind names one-off cart events.
type SideEffectKind string

const (
	SideEffectReady      SideEffectKind = "ready"
	SideEffectHeartbeat  SideEffectKind = "heartbeat"
	SideEffectPromotions SideEffectKind = "promotions_updated"
	SideEffectReceipt    SideEffectKind = "receipt"
	SideEffectError      SideEffectKind = "error"
)

// SideEffect is a one-off event for the UI.
type SideEffect struct {
	Kind      SideEffectKind
	Message   string
	ReceiptID string
	Total     decimal.Decimal
}
