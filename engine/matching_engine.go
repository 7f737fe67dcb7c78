package engine

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/icebook/icebook/metrics"
	"github.com/icebook/icebook/models"
)

// ErrEngineStopped is returned when a command is submitted while the
// matching worker is not running.
var ErrEngineStopped = errors.New("matching engine is not running")

// Trade represents a matched trade between an incoming order and one
// resting counterparty. Quantity is the total matched against that
// counterparty during a single submission; Price is the price of first
// contact.
type Trade struct {
	TradeID     uuid.UUID
	BuyOrderID  models.OrderID
	SellOrderID models.OrderID
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Timestamp   time.Time
}

// NewTrade creates a new trade
func NewTrade(buyOrderID, sellOrderID models.OrderID, price, quantity decimal.Decimal) *Trade {
	return &Trade{
		TradeID:     uuid.New(),
		BuyOrderID:  buyOrderID,
		SellOrderID: sellOrderID,
		Price:       price,
		Quantity:    quantity,
		Timestamp:   time.Now(),
	}
}

// SubmitResult is the synchronous outcome of one submission: the trades in
// counterparty first-touch order and whether a residual rested on the book.
type SubmitResult struct {
	Order  *models.Order
	Trades []*Trade
	Rested bool
}

type commandKind int

const (
	cmdSubmit commandKind = iota
	cmdCancel
	cmdSnapshot
)

type command struct {
	kind     commandKind
	order    *models.Order
	cancelID models.OrderID
	response chan *commandResponse
}

type commandResponse struct {
	result    *SubmitResult
	cancelled *models.Order
	entries   []BookEntry
	err       error
}

// sideRules captures the two predicates that differ between buy and sell
// matching: the cross condition against a resting price and the buy/sell
// assignment of the two ids in a trade.
type sideRules struct {
	incoming models.OrderSide
	crossOK  func(restingPrice, incomingPrice decimal.Decimal) bool
	tradeIDs func(restingID, incomingID models.OrderID) (buyID, sellID models.OrderID)
}

var buyRules = sideRules{
	incoming: models.OrderSideBuy,
	crossOK: func(restingPrice, incomingPrice decimal.Decimal) bool {
		return restingPrice.LessThanOrEqual(incomingPrice)
	},
	tradeIDs: func(restingID, incomingID models.OrderID) (models.OrderID, models.OrderID) {
		return incomingID, restingID
	},
}

var sellRules = sideRules{
	incoming: models.OrderSideSell,
	crossOK: func(restingPrice, incomingPrice decimal.Decimal) bool {
		return restingPrice.GreaterThanOrEqual(incomingPrice)
	},
	tradeIDs: func(restingID, incomingID models.OrderID) (models.OrderID, models.OrderID) {
		return restingID, incomingID
	},
}

func rulesFor(side models.OrderSide) sideRules {
	if side == models.OrderSideBuy {
		return buyRules
	}
	return sellRules
}

// MatchingEngine owns the order book and processes submissions and
// cancellations one at a time on a single worker goroutine. Callers block
// until their command has executed to completion, so every event observes
// the book state left by the previous one.
type MatchingEngine struct {
	orderBook   *OrderBook
	commandChan chan *command
	stopChan    chan struct{}
	wg          sync.WaitGroup
	isRunning   bool
	mu          sync.RWMutex

	eventBus *EventBus
}

func NewMatchingEngine() *MatchingEngine {
	return &MatchingEngine{
		orderBook:   NewOrderBook(),
		commandChan: make(chan *command, 1024),
		stopChan:    make(chan struct{}),
		eventBus:    NewEventBus(),
	}
}

func (me *MatchingEngine) GetEventBus() *EventBus {
	return me.eventBus
}

func (me *MatchingEngine) SubscribeToEvents(eventType EventType, listener EventListener) {
	me.eventBus.Subscribe(eventType, listener)
}

// Start launches the matching worker. The book is only ever touched from
// that goroutine; commands reach it through the channel.
func (me *MatchingEngine) Start(ctx context.Context) error {
	me.mu.Lock()
	if me.isRunning {
		me.mu.Unlock()
		return fmt.Errorf("matching engine is already running")
	}
	me.isRunning = true
	me.mu.Unlock()

	me.wg.Add(1)
	go me.matchingWorker(ctx)

	return nil
}

// Stop drains pending commands and shuts the worker down.
func (me *MatchingEngine) Stop() error {
	me.mu.Lock()
	if !me.isRunning {
		me.mu.Unlock()
		return ErrEngineStopped
	}
	me.mu.Unlock()

	close(me.stopChan)
	me.wg.Wait()

	me.mu.Lock()
	me.isRunning = false
	me.mu.Unlock()

	return nil
}

func (me *MatchingEngine) IsRunning() bool {
	me.mu.RLock()
	defer me.mu.RUnlock()
	return me.isRunning
}

func (me *MatchingEngine) matchingWorker(ctx context.Context) {
	defer me.wg.Done()

	for {
		select {
		case <-ctx.Done():
			me.drainCommands()
			return
		case <-me.stopChan:
			me.drainCommands()
			return
		case cmd := <-me.commandChan:
			me.processCommand(cmd)
		}
	}
}

func (me *MatchingEngine) drainCommands() {
	for {
		select {
		case cmd := <-me.commandChan:
			me.processCommand(cmd)
		default:
			return
		}
	}
}

func (me *MatchingEngine) processCommand(cmd *command) {
	var response *commandResponse

	switch cmd.kind {
	case cmdSubmit:
		if !cmd.order.IsValid() {
			response = &commandResponse{
				err: fmt.Errorf("invalid order %s", cmd.order),
			}
			break
		}
		result := me.matchOrder(cmd.order)
		me.updateBookMetrics()
		response = &commandResponse{result: result}

	case cmdCancel:
		cancelled, err := me.orderBook.CancelOrder(cmd.cancelID)
		if err != nil {
			metrics.UnknownCancelsTotal.Inc()
			response = &commandResponse{
				err: fmt.Errorf("cancel %d: %w", cmd.cancelID, err),
			}
			break
		}
		metrics.OrdersCancelledTotal.WithLabelValues(string(cancelled.Side)).Inc()
		me.eventBus.Publish(Event{
			Type:      EventTypeOrderbookChange,
			Timestamp: time.Now(),
			Data: OrderbookChangeEvent{
				Side:      cancelled.Side,
				Action:    "remove",
				Price:     cancelled.Price,
				Quantity:  cancelled.Remaining(),
				Timestamp: time.Now(),
			},
		})
		me.updateBookMetrics()
		response = &commandResponse{cancelled: cancelled}

	case cmdSnapshot:
		entries := me.snapshotBook()
		response = &commandResponse{entries: entries}
	}

	cmd.response <- response
	close(cmd.response)
}

func (me *MatchingEngine) dispatch(cmd *command) (*commandResponse, error) {
	me.mu.RLock()
	if !me.isRunning {
		me.mu.RUnlock()
		return nil, ErrEngineStopped
	}
	me.mu.RUnlock()

	me.commandChan <- cmd
	response := <-cmd.response
	return response, response.err
}

// SubmitOrder runs one submission to completion: matching, iceberg
// replenishments and resting of the residual. Safe to call from any
// goroutine; blocks until the worker has processed the order.
func (me *MatchingEngine) SubmitOrder(order *models.Order) (*SubmitResult, error) {
	kind := "limit"
	if order.IsIceberg() {
		kind = "iceberg"
	}
	metrics.OrdersReceivedTotal.WithLabelValues(string(order.Side), kind).Inc()

	response, err := me.dispatch(&command{
		kind:     cmdSubmit,
		order:    order,
		response: make(chan *commandResponse, 1),
	})
	if err != nil {
		return nil, err
	}
	return response.result, nil
}

// CancelOrder removes the resting order with the given id. Returns
// ErrUnknownOrder (wrapped) when the id is not on the book; the book is
// left untouched in that case.
func (me *MatchingEngine) CancelOrder(id models.OrderID) (*models.Order, error) {
	response, err := me.dispatch(&command{
		kind:     cmdCancel,
		cancelID: id,
		response: make(chan *commandResponse, 1),
	})
	if err != nil {
		return nil, err
	}
	return response.cancelled, nil
}

// fillRef remembers a counterparty in first-touch order together with the
// price at which it was first hit.
type fillRef struct {
	id    models.OrderID
	price decimal.Decimal
}

// matchOrder walks the opposite side best-price first, consuming resting
// liquidity under price/time priority with iceberg replenishment, then
// rests the residual. Trades are aggregated per counterparty across the
// whole event and reported in the order counterparties were first touched.
func (me *MatchingEngine) matchOrder(order *models.Order) *SubmitResult {
	rules := rulesFor(order.Side)
	opposite := me.orderBook.SideFor(order.Side.Opposite())

	original := order.Remaining()
	remaining := original

	aggregated := make(map[models.OrderID]decimal.Decimal)
	touched := make([]fillRef, 0)

	for remaining.IsPositive() {
		level := opposite.PeekBest()
		if level == nil {
			break
		}
		if !rules.crossOK(level.Price, order.Price) {
			break
		}
		if level.IsEmpty() {
			// Drained by a cancellation; reclaim lazily.
			opposite.RemoveLevel(level.Price)
			continue
		}

		element := level.Front()
		resting := element.Value.(*models.Order)

		traded := decimal.Min(resting.VisibleQty, remaining)
		resting.VisibleQty = resting.VisibleQty.Sub(traded)
		level.AdjustVolume(traded.Neg())
		remaining = remaining.Sub(traded)

		if _, seen := aggregated[resting.ID]; !seen {
			aggregated[resting.ID] = traded
			touched = append(touched, fillRef{id: resting.ID, price: level.Price})
		} else {
			aggregated[resting.ID] = aggregated[resting.ID].Add(traded)
		}

		if resting.VisibleQty.IsZero() {
			if resting.HiddenQty.IsPositive() {
				me.refillIceberg(level, element, resting)
			} else {
				level.RemoveOrder(element)
				delete(me.orderBook.Orders, resting.ID)
				if level.IsEmpty() {
					opposite.RemoveLevel(level.Price)
				}
			}
		}
	}

	rested := false
	if remaining.IsPositive() {
		me.restResidual(order, original, remaining)
		rested = true
	} else {
		order.VisibleQty = decimal.Zero
		order.HiddenQty = decimal.Zero
	}

	trades := make([]*Trade, 0, len(touched))
	for _, ref := range touched {
		buyID, sellID := rules.tradeIDs(ref.id, order.ID)
		trade := NewTrade(buyID, sellID, ref.price, aggregated[ref.id])
		trades = append(trades, trade)

		metrics.TradesExecutedTotal.Inc()
		volume, _ := trade.Quantity.Float64()
		metrics.TradedVolumeTotal.Add(volume)
		me.eventBus.Publish(Event{
			Type:      EventTypeNewTrade,
			Timestamp: trade.Timestamp,
			Data: NewTradeEvent{
				TradeID:     trade.TradeID,
				BuyOrderID:  trade.BuyOrderID,
				SellOrderID: trade.SellOrderID,
				Price:       trade.Price,
				Quantity:    trade.Quantity,
				Timestamp:   trade.Timestamp,
			},
		})
	}

	return &SubmitResult{Order: order, Trades: trades, Rested: rested}
}

// refillIceberg discloses the next slice from the hidden reserve and
// splices the order to the back of its level. The by-id handle stays
// valid; time priority resets against everything queued at the level.
func (me *MatchingEngine) refillIceberg(level *PriceLevel, element *list.Element, resting *models.Order) {
	refill := decimal.Min(resting.HiddenQty, resting.PeakSize)
	resting.VisibleQty = refill
	resting.HiddenQty = resting.HiddenQty.Sub(refill)
	level.MoveToBack(element)
	level.AdjustVolume(refill)

	metrics.IcebergRefillsTotal.Inc()
	me.eventBus.Publish(Event{
		Type:      EventTypeIcebergRefill,
		Timestamp: time.Now(),
		Data: IcebergRefillEvent{
			OrderID:         resting.ID,
			Price:           level.Price,
			Refilled:        refill,
			HiddenRemaining: resting.HiddenQty,
			Timestamp:       time.Now(),
		},
	})
}

// restResidual performs the entry-time iceberg split and appends the order
// at the back of its price level. The first visible slice after a partial
// fill on entry is peak - (traded mod peak), so the next refill discloses
// exactly one peak.
func (me *MatchingEngine) restResidual(order *models.Order, original, remaining decimal.Decimal) {
	if order.PeakSize.IsPositive() && remaining.GreaterThan(order.PeakSize) {
		traded := original.Sub(remaining)
		visible := order.PeakSize.Sub(traded.Mod(order.PeakSize))
		order.HiddenQty = remaining.Sub(visible)
		order.VisibleQty = visible
	} else {
		order.VisibleQty = remaining
		order.HiddenQty = decimal.Zero
	}

	me.orderBook.AddRestingOrder(order)

	me.eventBus.Publish(Event{
		Type:      EventTypeOrderbookChange,
		Timestamp: time.Now(),
		Data: OrderbookChangeEvent{
			Side:      order.Side,
			Action:    "add",
			Price:     order.Price,
			Quantity:  order.VisibleQty,
			Timestamp: time.Now(),
		},
	})
}

func (me *MatchingEngine) GetOrderBook() *OrderBook {
	return me.orderBook
}

// updateBookMetrics refreshes the depth and best-price gauges after an
// event has fully executed.
func (me *MatchingEngine) updateBookMetrics() {
	metrics.UpdateOrderbookDepth(string(models.OrderSideBuy), float64(me.orderBook.Depth(models.OrderSideBuy)))
	metrics.UpdateOrderbookDepth(string(models.OrderSideSell), float64(me.orderBook.Depth(models.OrderSideSell)))

	bestBid, bestAsk := 0.0, 0.0
	if level := me.orderBook.BestBid(); level != nil {
		bestBid, _ = level.Price.Float64()
	}
	if level := me.orderBook.BestAsk(); level != nil {
		bestAsk, _ = level.Price.Float64()
	}
	metrics.UpdateBestPrices(bestBid, bestAsk)
}
