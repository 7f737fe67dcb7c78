package logging

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// InitLogger initializes the structured logger with JSON format. All log
// output goes to stderr: stdout is reserved for the trade and snapshot
// records, stderr is the diagnostic stream.
func InitLogger(level string) *logrus.Logger {
	log = logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(os.Stderr)

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if log == nil {
		return InitLogger("info")
	}
	return log
}

// Event types as constants
const (
	EventOrderReceived  = "order_received"
	EventOrderRested    = "order_rested"
	EventOrderCancelled = "order_cancelled"
	EventTradeExecuted  = "trade_executed"
	EventIcebergRefill  = "iceberg_refill"
	EventUnknownOrder   = "unknown_order"
	EventInternalError  = "internal_error"
	EventParseSkipped   = "parse_skipped"
)

// LogOrderReceived logs an incoming submission before it enters the engine.
func LogOrderReceived(orderID uint64, side, price, quantity, peak string) {
	GetLogger().WithFields(logrus.Fields{
		"event":    EventOrderReceived,
		"order_id": orderID,
		"side":     side,
		"price":    price,
		"quantity": quantity,
		"peak":     peak,
	}).Debug("Order received")
}

// LogTradeExecuted logs one aggregated trade record.
func LogTradeExecuted(tradeID string, buyOrderID, sellOrderID uint64, price, quantity string) {
	GetLogger().WithFields(logrus.Fields{
		"event":         EventTradeExecuted,
		"trade_id":      tradeID,
		"buy_order_id":  buyOrderID,
		"sell_order_id": sellOrderID,
		"price":         price,
		"quantity":      quantity,
	}).Info("Trade executed")
}

// LogOrderRested logs a residual landing on the book.
func LogOrderRested(orderID uint64, side, price, visible, hidden string) {
	GetLogger().WithFields(logrus.Fields{
		"event":    EventOrderRested,
		"order_id": orderID,
		"side":     side,
		"price":    price,
		"visible":  visible,
		"hidden":   hidden,
	}).Debug("Order rested")
}

// LogOrderCancelled logs a successful cancellation.
func LogOrderCancelled(orderID uint64, remaining string) {
	GetLogger().WithFields(logrus.Fields{
		"event":     EventOrderCancelled,
		"order_id":  orderID,
		"remaining": remaining,
	}).Info("Order cancelled")
}

// LogUnknownOrder reports a cancel that targeted an id not on the book.
// The event is a no-op for the engine; the diagnostic is the only trace.
func LogUnknownOrder(orderID uint64) {
	GetLogger().WithFields(logrus.Fields{
		"event":    EventUnknownOrder,
		"order_id": orderID,
	}).Errorf("unknown order %d: unable to cancel", orderID)
}

// LogIcebergRefill logs a reserve slice being disclosed.
func LogIcebergRefill(orderID uint64, price, refilled, hiddenRemaining string) {
	GetLogger().WithFields(logrus.Fields{
		"event":            EventIcebergRefill,
		"order_id":         orderID,
		"price":            price,
		"refilled":         refilled,
		"hidden_remaining": hiddenRemaining,
	}).Debug("Iceberg refilled")
}

// LogInternalError reports an operation that failed in a way the engine
// survives. Processing continues best-effort.
func LogInternalError(operation, message string, details map[string]interface{}) {
	fields := logrus.Fields{
		"event":     EventInternalError,
		"operation": operation,
	}
	for k, v := range details {
		fields[k] = v
	}
	GetLogger().WithFields(fields).Error(message)
}

// LogParseSkipped logs an input line the parser could not decode.
func LogParseSkipped(line string, err error) {
	GetLogger().WithFields(logrus.Fields{
		"event": EventParseSkipped,
		"line":  line,
		"error": err.Error(),
	}).Warn("Input line skipped")
}
