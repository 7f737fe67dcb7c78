package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"net/http"
	"os"

	"github.com/icebook/icebook/engine"
	"github.com/icebook/icebook/feed"
	"github.com/icebook/icebook/logging"
	"github.com/icebook/icebook/metrics"
)

func main() {
	logLevel := flag.String("log-level", "info", "diagnostic log level: debug, info, warn, error")
	metricsAddr := flag.String("metrics-addr", "", "address for the /metrics listener; empty disables it")
	flag.Parse()

	logger := logging.InitLogger(*logLevel)

	if *metricsAddr != "" {
		go func() {
			if err := metrics.Serve(*metricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics listener failed")
			}
		}()
	}

	me := engine.NewMatchingEngine()
	me.SubscribeToEvents(engine.EventTypeIcebergRefill, func(event engine.Event) {
		refill := event.Data.(engine.IcebergRefillEvent)
		logging.LogIcebergRefill(uint64(refill.OrderID), refill.Price.String(),
			refill.Refilled.String(), refill.HiddenRemaining.String())
	})

	if err := me.Start(context.Background()); err != nil {
		logger.WithError(err).Fatal("failed to start matching engine")
	}

	out := feed.NewWriter(os.Stdout)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		event, err := feed.ParseLine(line)
		if err != nil {
			logging.LogParseSkipped(line, err)
			continue
		}
		if event == nil {
			continue
		}

		switch event.Kind {
		case feed.EventSubmit:
			order := event.Order
			logging.LogOrderReceived(uint64(order.ID), string(order.Side),
				order.Price.String(), order.Remaining().String(), order.PeakSize.String())

			result, err := me.SubmitOrder(order)
			if err != nil {
				logging.LogInternalError("submit", err.Error(), map[string]interface{}{
					"order_id": uint64(order.ID),
				})
				continue
			}
			for _, trade := range result.Trades {
				if err := out.WriteTrade(trade); err != nil {
					logger.WithError(err).Fatal("failed to write trade record")
				}
				logging.LogTradeExecuted(trade.TradeID.String(),
					uint64(trade.BuyOrderID), uint64(trade.SellOrderID),
					trade.Price.String(), trade.Quantity.String())
			}
			if result.Rested {
				logging.LogOrderRested(uint64(order.ID), string(order.Side),
					order.Price.String(), order.VisibleQty.String(), order.HiddenQty.String())
			}

		case feed.EventCancel:
			cancelled, err := me.CancelOrder(event.CancelID)
			if err != nil {
				if errors.Is(err, engine.ErrUnknownOrder) {
					logging.LogUnknownOrder(uint64(event.CancelID))
				} else {
					logging.LogInternalError("cancel", err.Error(), map[string]interface{}{
						"order_id": uint64(event.CancelID),
					})
				}
				continue
			}
			logging.LogOrderCancelled(uint64(cancelled.ID), cancelled.Remaining().String())
		}
	}
	if err := scanner.Err(); err != nil {
		logger.WithError(err).Fatal("failed to read input stream")
	}

	entries, err := me.Snapshot()
	if err != nil {
		logger.WithError(err).Fatal("failed to snapshot the book")
	}
	if err := out.WriteSnapshot(entries); err != nil {
		logger.WithError(err).Fatal("failed to write snapshot")
	}
	if err := out.Flush(); err != nil {
		logger.WithError(err).Fatal("failed to flush output stream")
	}

	if err := me.Stop(); err != nil {
		logger.WithError(err).Error("failed to stop matching engine")
	}
}
