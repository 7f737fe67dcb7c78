package engine

import (
	"github.com/shopspring/decimal"

	"github.com/icebook/icebook/logging"
	"github.com/icebook/icebook/models"
)

// BookEntry is one resting order as disclosed by a snapshot. Hidden
// iceberg quantity is never included.
type BookEntry struct {
	Side       models.OrderSide
	ID         models.OrderID
	Price      decimal.Decimal
	VisibleQty decimal.Decimal
}

// Snapshot returns every resting order: buy side first, best price to
// worst, FIFO within a level; then the sell side the same way. The book is
// not mutated. Blocks until the worker has produced the snapshot, so it
// reflects every previously submitted event.
func (me *MatchingEngine) Snapshot() ([]BookEntry, error) {
	response, err := me.dispatch(&command{
		kind:     cmdSnapshot,
		response: make(chan *commandResponse, 1),
	})
	if err != nil {
		return nil, err
	}
	return response.entries, nil
}

// snapshotBook runs on the matching worker. Each side's price index is
// cloned and the clone drained best-first; the live tree never changes.
func (me *MatchingEngine) snapshotBook() []BookEntry {
	entries := make([]BookEntry, 0, me.orderBook.Size())
	entries = me.drainSide(entries, me.orderBook.Bids)
	entries = me.drainSide(entries, me.orderBook.Asks)
	return entries
}

func (me *MatchingEngine) drainSide(entries []BookEntry, side *OrderBookSide) []BookEntry {
	clone := side.Clone()

	pop := clone.DeleteMax
	if side.side == models.OrderSideSell {
		pop = clone.DeleteMin
	}

	for {
		item := pop()
		if item == nil {
			return entries
		}
		level, ok := item.(*PriceLevel)
		if !ok || level.Orders == nil {
			logging.LogInternalError("snapshot", "price level missing from book", map[string]interface{}{
				"side": side.side,
			})
			continue
		}

		for e := level.Orders.Front(); e != nil; e = e.Next() {
			order := e.Value.(*models.Order)
			if _, live := me.orderBook.Orders[order.ID]; !live {
				logging.LogInternalError("snapshot", "resting order missing from id index", map[string]interface{}{
					"order_id": uint64(order.ID),
					"price":    level.Price.String(),
				})
				continue
			}
			entries = append(entries, BookEntry{
				Side:       order.Side,
				ID:         order.ID,
				Price:      order.Price,
				VisibleQty: order.VisibleQty,
			})
		}
	}
}
