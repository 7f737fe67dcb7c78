package engine

import (
	"container/list"
	"errors"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/icebook/icebook/models"
)

// ErrUnknownOrder is returned when a cancel targets an id that is not
// resting on the book.
var ErrUnknownOrder = errors.New("unknown order")

// PriceLevel is the FIFO queue of all resting orders sharing one price.
// Oldest order at the front. list.Element values are the stable handles the
// by-id index holds; they survive unrelated insertions, removals and
// splices.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders *list.List
	Volume decimal.Decimal
}

// NewPriceLevel creates an empty price level
func NewPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{
		Price:  price,
		Orders: list.New(),
		Volume: decimal.Zero,
	}
}

// AddOrder appends an order at the back of the queue and returns its handle.
func (pl *PriceLevel) AddOrder(order *models.Order) *list.Element {
	element := pl.Orders.PushBack(order)
	pl.Volume = pl.Volume.Add(order.VisibleQty)
	return element
}

// RemoveOrder erases the slot referenced by the handle.
func (pl *PriceLevel) RemoveOrder(element *list.Element) {
	if element == nil {
		return
	}
	order := element.Value.(*models.Order)
	pl.Volume = pl.Volume.Sub(order.VisibleQty)
	pl.Orders.Remove(element)
}

// MoveToBack splices the slot to the back of the queue. The handle stays
// valid; the order loses time priority against everything queued at this
// level.
func (pl *PriceLevel) MoveToBack(element *list.Element) {
	pl.Orders.MoveToBack(element)
}

// Front returns the handle of the highest-priority order, nil when empty.
func (pl *PriceLevel) Front() *list.Element {
	return pl.Orders.Front()
}

// AdjustVolume applies a fill or refill delta to the visible volume sum.
func (pl *PriceLevel) AdjustVolume(delta decimal.Decimal) {
	pl.Volume = pl.Volume.Add(delta)
}

// UpdateVolume recomputes the visible volume from the queue.
func (pl *PriceLevel) UpdateVolume() {
	pl.Volume = decimal.Zero
	for e := pl.Orders.Front(); e != nil; e = e.Next() {
		order := e.Value.(*models.Order)
		pl.Volume = pl.Volume.Add(order.VisibleQty)
	}
}

func (pl *PriceLevel) IsEmpty() bool {
	return pl.Orders.Len() == 0
}

func (pl *PriceLevel) Less(than btree.Item) bool {
	other := than.(*PriceLevel)
	return pl.Price.LessThan(other.Price)
}

// OrderBookSide holds every populated price level of one side. The btree is
// both the price->level mapping and the best-price index: Max is the best
// bid, Min the best ask. Cancellation may leave an empty level in the tree;
// consumers pop or skip empty levels when they surface at the best.
type OrderBookSide struct {
	side models.OrderSide
	tree *btree.BTree
}

func NewOrderBookSide(side models.OrderSide) *OrderBookSide {
	return &OrderBookSide{
		side: side,
		tree: btree.New(32),
	}
}

// GetOrCreate returns the level at price, creating it when absent.
func (obs *OrderBookSide) GetOrCreate(price decimal.Decimal) *PriceLevel {
	if item := obs.tree.Get(&PriceLevel{Price: price}); item != nil {
		return item.(*PriceLevel)
	}
	level := NewPriceLevel(price)
	obs.tree.ReplaceOrInsert(level)
	return level
}

// Get returns the level at price, nil when absent.
func (obs *OrderBookSide) Get(price decimal.Decimal) *PriceLevel {
	if item := obs.tree.Get(&PriceLevel{Price: price}); item != nil {
		return item.(*PriceLevel)
	}
	return nil
}

// RemoveLevel drops the level at price from the tree.
func (obs *OrderBookSide) RemoveLevel(price decimal.Decimal) {
	obs.tree.Delete(&PriceLevel{Price: price})
}

// PeekBest returns the best level of this side without removing it:
// highest price for bids, lowest for asks. Nil when the side is empty.
func (obs *OrderBookSide) PeekBest() *PriceLevel {
	var item btree.Item
	if obs.side == models.OrderSideBuy {
		item = obs.tree.Max()
	} else {
		item = obs.tree.Min()
	}
	if item != nil {
		return item.(*PriceLevel)
	}
	return nil
}

// Clone returns a copy-on-write clone of the index for destructive
// iteration. The live tree is unaffected by mutations of the clone.
func (obs *OrderBookSide) Clone() *btree.BTree {
	return obs.tree.Clone()
}

// Len returns the number of price levels, drained-but-unreclaimed ones
// included.
func (obs *OrderBookSide) Len() int {
	return obs.tree.Len()
}

// OrderLocation is the by-id entry for a resting order: the level it lives
// in and the stable handle of its slot inside that level's queue.
type OrderLocation struct {
	PriceLevel *PriceLevel
	Element    *list.Element
}

// OrderBook indexes the resting orders of one instrument three ways: by
// price level, by FIFO position within a level, and by order id. It is
// owned by a single goroutine (the matching worker) and is not safe for
// concurrent use.
type OrderBook struct {
	Bids   *OrderBookSide
	Asks   *OrderBookSide
	Orders map[models.OrderID]*OrderLocation
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		Bids:   NewOrderBookSide(models.OrderSideBuy),
		Asks:   NewOrderBookSide(models.OrderSideSell),
		Orders: make(map[models.OrderID]*OrderLocation),
	}
}

// SideFor returns the book side resting orders of the given side live on.
func (ob *OrderBook) SideFor(side models.OrderSide) *OrderBookSide {
	if side == models.OrderSideBuy {
		return ob.Bids
	}
	return ob.Asks
}

// AddRestingOrder appends the order at the back of its price level, creating
// the level if needed, and records the by-id location.
func (ob *OrderBook) AddRestingOrder(order *models.Order) {
	level := ob.SideFor(order.Side).GetOrCreate(order.Price)
	element := level.AddOrder(order)
	ob.Orders[order.ID] = &OrderLocation{
		PriceLevel: level,
		Element:    element,
	}
}

// RemoveFilled erases a fully consumed order from its level and the by-id
// index. The caller reclaims the level if it drained.
func (ob *OrderBook) RemoveFilled(order *models.Order, location *OrderLocation) {
	location.PriceLevel.RemoveOrder(location.Element)
	delete(ob.Orders, order.ID)
}

// CancelOrder removes the order with the given id from the book. The level
// is left in the tree even when it drains; the matching loop and the
// snapshot emitter reclaim empty levels lazily.
func (ob *OrderBook) CancelOrder(id models.OrderID) (*models.Order, error) {
	location, exists := ob.Orders[id]
	if !exists {
		return nil, ErrUnknownOrder
	}

	order := location.Element.Value.(*models.Order)
	location.PriceLevel.RemoveOrder(location.Element)
	delete(ob.Orders, id)

	return order, nil
}

// GetOrder retrieves a resting order by id, nil when not resting.
func (ob *OrderBook) GetOrder(id models.OrderID) *models.Order {
	location, exists := ob.Orders[id]
	if !exists {
		return nil
	}
	return location.Element.Value.(*models.Order)
}

// Size returns the number of resting orders.
func (ob *OrderBook) Size() int {
	return len(ob.Orders)
}

// BestBid returns the best populated bid level, skipping drained ones.
func (ob *OrderBook) BestBid() *PriceLevel {
	return ob.bestPopulated(ob.Bids)
}

// BestAsk returns the best populated ask level, skipping drained ones.
func (ob *OrderBook) BestAsk() *PriceLevel {
	return ob.bestPopulated(ob.Asks)
}

func (ob *OrderBook) bestPopulated(side *OrderBookSide) *PriceLevel {
	for {
		level := side.PeekBest()
		if level == nil {
			return nil
		}
		if !level.IsEmpty() {
			return level
		}
		side.RemoveLevel(level.Price)
	}
}

// Depth returns the number of resting orders on one side.
func (ob *OrderBook) Depth(side models.OrderSide) int {
	count := 0
	ob.SideFor(side).tree.Ascend(func(i btree.Item) bool {
		count += i.(*PriceLevel).Orders.Len()
		return true
	})
	return count
}
