package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/icebook/icebook/models"
)

type EventType string

const (
	EventTypeNewTrade        EventType = "NewTrade"
	EventTypeOrderbookChange EventType = "OrderbookChange"
	EventTypeIcebergRefill   EventType = "IcebergRefill"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

type NewTradeEvent struct {
	TradeID     uuid.UUID
	BuyOrderID  models.OrderID
	SellOrderID models.OrderID
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Timestamp   time.Time
}

type OrderbookChangeEvent struct {
	Side      models.OrderSide
	Action    string // "add" or "remove"
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Timestamp time.Time
}

type IcebergRefillEvent struct {
	OrderID         models.OrderID
	Price           decimal.Decimal
	Refilled        decimal.Decimal
	HiddenRemaining decimal.Decimal
	Timestamp       time.Time
}

type EventListener func(event Event)

// EventBus fans engine events out to asynchronous listeners. Listeners are
// observational only; nothing on the matching path waits for them.
type EventBus struct {
	listeners map[EventType][]EventListener
	mu        sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		listeners: make(map[EventType][]EventListener),
	}
}

func (eb *EventBus) Subscribe(eventType EventType, listener EventListener) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners[eventType] = append(eb.listeners[eventType], listener)
}

func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	listeners := eb.listeners[event.Type]
	eb.mu.RUnlock()

	for _, listener := range listeners {
		go listener(event)
	}
}

// Unsubscribe removes all listeners for a specific event type
func (eb *EventBus) Unsubscribe(eventType EventType) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.listeners, eventType)
}

// GetListenerCount returns the number of listeners for an event type
func (eb *EventBus) GetListenerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.listeners[eventType])
}
