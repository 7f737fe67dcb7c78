package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: Total orders received
	OrdersReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_received_total",
			Help: "Total number of orders received by the matching engine",
		},
		[]string{"side", "type"}, // Labels: buy/sell, limit/iceberg
	)

	// Counter: Total orders cancelled
	OrdersCancelledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_cancelled_total",
			Help: "Total number of resting orders removed by cancellation",
		},
		[]string{"side"},
	)

	// Counter: Cancels that targeted an unknown order id
	UnknownCancelsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "unknown_cancels_total",
			Help: "Total number of cancellations rejected because the id was not on the book",
		},
	)

	// Counter: Aggregated trade records emitted
	TradesExecutedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trades_executed_total",
			Help: "Total number of aggregated trade records emitted",
		},
	)

	// Counter: Total traded quantity
	TradedVolumeTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "traded_volume_total",
			Help: "Total quantity matched across all trades",
		},
	)

	// Counter: Iceberg reserve slices disclosed
	IcebergRefillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iceberg_refills_total",
			Help: "Total number of iceberg replenishments",
		},
	)

	// Gauge: Current orderbook depth (resting orders per side)
	CurrentOrderbookDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "current_orderbook_depth",
			Help: "Current number of resting orders in the orderbook",
		},
		[]string{"side"},
	)

	// Gauge: Best bid price
	BestBidPrice = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "best_bid_price",
			Help: "Highest resting buy price, 0 when the bid side is empty",
		},
	)

	// Gauge: Best ask price
	BestAskPrice = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "best_ask_price",
			Help: "Lowest resting sell price, 0 when the ask side is empty",
		},
	)
)

// UpdateOrderbookDepth sets the depth gauge for one side.
func UpdateOrderbookDepth(side string, depth float64) {
	CurrentOrderbookDepth.WithLabelValues(side).Set(depth)
}

// UpdateBestPrices sets the best bid and ask gauges.
func UpdateBestPrices(bestBid, bestAsk float64) {
	BestBidPrice.Set(bestBid)
	BestAskPrice.Set(bestAsk)
}

// Serve exposes /metrics on addr. Disabled unless explicitly requested;
// the engine itself opens no sockets.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
