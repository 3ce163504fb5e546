// Package broker defines the BrokerGateway capability the engine trades
// through, with one implementation per brokerage. The engine depends only
// on the Gateway interface; concrete gateways live in subpackages (kis)
// or in this package (paper).
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaengyi/RedArrow/internal/model"
)

// Order statuses returned by gateways.
const (
	StatusSubmitted = "submitted"
	StatusFilled    = "filled"
	StatusRejected  = "rejected"
)

// OrderResult is the outcome of a buy/sell request.
type OrderResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Gateway is the brokerage capability. Calls are synchronous; every call
// honors ctx deadlines and fails with a typed error rather than an
// ambiguous empty result.
type Gateway interface {
	Connect(ctx context.Context) error
	Disconnect() error

	// TopVolumeStocks returns up to count snapshots ranked by trading amount.
	TopVolumeStocks(ctx context.Context, count int) ([]model.Snapshot, error)

	// StockPrice returns the current snapshot for one symbol.
	StockPrice(ctx context.Context, symbol string) (model.Snapshot, error)

	// HistoricalData returns up to days daily bars, oldest first.
	HistoricalData(ctx context.Context, symbol string, days int) ([]model.PriceBar, error)

	// OrderBook returns bid/ask depth. Gateways without a depth feed
	// return a DataUnavailableError; callers must treat depth as optional.
	OrderBook(ctx context.Context, symbol string) (model.OrderBook, error)

	// PlaceBuyOrder and PlaceSellOrder submit orders. price 0 means market.
	PlaceBuyOrder(ctx context.Context, symbol string, quantity int64, price float64) (OrderResult, error)
	PlaceSellOrder(ctx context.Context, symbol string, quantity int64, price float64) (OrderResult, error)

	AccountBalance(ctx context.Context) (model.AccountBalance, error)
	Positions(ctx context.Context) ([]model.BrokerPosition, error)
}

// ConnectivityError means the broker was unreachable or timed out. The
// engine retries on the next tick, never in a tight loop.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("broker: %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// DataUnavailableError means a symbol's data is missing or insufficient.
// The symbol is skipped for the cycle; never fatal.
type DataUnavailableError struct {
	Symbol string
	Reason string
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("broker: data unavailable for %s: %s", e.Symbol, e.Reason)
}

// OrderRejectedError means the broker declined an order. The identical
// order is never retried.
type OrderRejectedError struct {
	Symbol string
	Reason string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("broker: order rejected for %s: %s", e.Symbol, e.Reason)
}

// IsConnectivity reports whether err is (or wraps) a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// IsDataUnavailable reports whether err is (or wraps) a DataUnavailableError.
func IsDataUnavailable(err error) bool {
	var de *DataUnavailableError
	return errors.As(err, &de)
}

// IsOrderRejected reports whether err is (or wraps) an OrderRejectedError.
func IsOrderRejected(err error) bool {
	var oe *OrderRejectedError
	return errors.As(err, &oe)
}
