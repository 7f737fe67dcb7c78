package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderID identifies an order on the wire and in the book.
type OrderID uint64

// OrderSide represents the side of an order (buy or sell)
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Letter returns the single-character wire encoding of the side.
func (s OrderSide) Letter() string {
	if s == OrderSideBuy {
		return "B"
	}
	return "S"
}

// Order represents a limit order. Iceberg and plain limit orders share the
// same record; a plain limit order has PeakSize zero and never carries a
// hidden reserve.
//
// VisibleQty holds the full submitted quantity until the order first rests;
// the engine performs the visible/hidden split at rest time.
type Order struct {
	ID        OrderID
	Side      OrderSide
	Price     decimal.Decimal
	PeakSize  decimal.Decimal
	CreatedAt time.Time

	VisibleQty decimal.Decimal
	HiddenQty  decimal.Decimal
}

// NewOrder creates an order carrying its full quantity as visible.
func NewOrder(id OrderID, side OrderSide, price, quantity, peakSize decimal.Decimal) *Order {
	return &Order{
		ID:         id,
		Side:       side,
		Price:      price,
		PeakSize:   peakSize,
		VisibleQty: quantity,
		HiddenQty:  decimal.Zero,
		CreatedAt:  time.Now(),
	}
}

// Remaining returns the total unfilled quantity, visible plus hidden.
func (o *Order) Remaining() decimal.Decimal {
	return o.VisibleQty.Add(o.HiddenQty)
}

// IsIceberg reports whether the order discloses its quantity in peaks.
func (o *Order) IsIceberg() bool {
	return o.PeakSize.IsPositive()
}

// IsValid validates the order fields
func (o *Order) IsValid() bool {
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return false
	}
	if !o.Price.IsPositive() {
		return false
	}
	if !o.Remaining().IsPositive() {
		return false
	}
	if o.PeakSize.IsNegative() {
		return false
	}
	return true
}

func (o *Order) String() string {
	return fmt.Sprintf("Order{id=%d side=%s price=%s visible=%s hidden=%s peak=%s}",
		o.ID, o.Side, o.Price, o.VisibleQty, o.HiddenQty, o.PeakSize)
}
