// Package kis adapts the KIS Open API client to the broker.Gateway
// interface, translating transport failures and API envelope errors
// into the gateway's typed errors.
package kis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jaengyi/RedArrow/internal/broker"
	"github.com/jaengyi/RedArrow/internal/markethours"
	"github.com/jaengyi/RedArrow/internal/model"
	"github.com/jaengyi/RedArrow/pkg/kisconnect"
)

// Gateway is the live KIS brokerage gateway.
type Gateway struct {
	client *kisconnect.Client

	now func() time.Time
}

var _ broker.Gateway = (*Gateway)(nil)

// New builds a gateway over the given client.
func New(client *kisconnect.Client) *Gateway {
	return &Gateway{
		client: client,
		now:    func() time.Time { return time.Now().In(markethours.KST) },
	}
}

// Connect issues the first access token so credential problems surface
// at startup instead of on the first tick.
func (g *Gateway) Connect(ctx context.Context) error {
	if _, err := g.client.Token(ctx); err != nil {
		return wrapErr("connect", err)
	}
	log.Printf("[kis] connected")
	return nil
}

// Disconnect drops the cached token.
func (g *Gateway) Disconnect() error {
	g.client.InvalidateToken()
	return nil
}

// TopVolumeStocks returns the trading-amount ranking as snapshots.
func (g *Gateway) TopVolumeStocks(ctx context.Context, count int) ([]model.Snapshot, error) {
	rows, err := g.client.VolumeRank(ctx, count)
	if err != nil {
		return nil, wrapErr("top volume", err)
	}
	now := g.now()
	out := make([]model.Snapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Snapshot{
			Symbol:        r.Symbol,
			Name:          r.Name,
			Price:         kisconnect.ParseFloat(r.Price),
			Volume:        kisconnect.ParseFloat(r.Volume),
			TradingAmount: kisconnect.ParseFloat(r.Amount),
			ChangeRate:    kisconnect.ParseFloat(r.ChangeRate),
			TS:            now,
		})
	}
	return out, nil
}

// StockPrice returns the current quote for one symbol. The previous
// day's high/low come from a short daily lookback so the volatility
// breakout signal has its reference range.
func (g *Gateway) StockPrice(ctx context.Context, symbol string) (model.Snapshot, error) {
	q, err := g.client.InquirePrice(ctx, symbol)
	if err != nil {
		return model.Snapshot{}, dataErr(symbol, "price "+symbol, err)
	}
	snap := model.Snapshot{
		Symbol:        symbol,
		Price:         kisconnect.ParseFloat(q.Price),
		Open:          kisconnect.ParseFloat(q.Open),
		High:          kisconnect.ParseFloat(q.High),
		Low:           kisconnect.ParseFloat(q.Low),
		Close:         kisconnect.ParseFloat(q.Price),
		Volume:        kisconnect.ParseFloat(q.Volume),
		TradingAmount: kisconnect.ParseFloat(q.Amount),
		ChangeRate:    kisconnect.ParseFloat(q.ChangeRate),
		TS:            g.now(),
	}
	if bars, err := g.HistoricalData(ctx, symbol, 2); err == nil && len(bars) >= 2 {
		prev := bars[len(bars)-2]
		snap.PrevHigh = prev.High
		snap.PrevLow = prev.Low
	}
	return snap, nil
}

// HistoricalData returns up to days daily bars, oldest first. The
// calendar window is widened to cover weekends and holidays.
func (g *Gateway) HistoricalData(ctx context.Context, symbol string, days int) ([]model.PriceBar, error) {
	if days <= 0 {
		days = 30
	}
	to := g.now()
	from := to.AddDate(0, 0, -(days*2 + 7))
	rows, err := g.client.DailyPrices(ctx, symbol, from.Format("20060102"), to.Format("20060102"))
	if err != nil {
		return nil, dataErr(symbol, "history "+symbol, err)
	}

	bars := make([]model.PriceBar, 0, len(rows))
	for _, r := range rows {
		if r.Date == "" {
			continue
		}
		ts, err := time.ParseInLocation("20060102", r.Date, markethours.KST)
		if err != nil {
			continue
		}
		bars = append(bars, model.PriceBar{
			Open:   kisconnect.ParseFloat(r.Open),
			High:   kisconnect.ParseFloat(r.High),
			Low:    kisconnect.ParseFloat(r.Low),
			Close:  kisconnect.ParseFloat(r.Close),
			Volume: kisconnect.ParseFloat(r.Volume),
			TS:     ts,
		})
	}
	if len(bars) == 0 {
		return nil, &broker.DataUnavailableError{Symbol: symbol, Reason: "no daily bars returned"}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

// OrderBook returns bid/ask depth totals.
func (g *Gateway) OrderBook(ctx context.Context, symbol string) (model.OrderBook, error) {
	out, err := g.client.AskingPrice(ctx, symbol)
	if err != nil {
		return model.OrderBook{}, dataErr(symbol, "order book "+symbol, err)
	}
	return model.OrderBook{
		Symbol:    symbol,
		BidVolume: kisconnect.ParseFloat(out.TotalBidQty),
		AskVolume: kisconnect.ParseFloat(out.TotalAskQty),
	}, nil
}

// PlaceBuyOrder submits a cash buy. price 0 submits at market.
func (g *Gateway) PlaceBuyOrder(ctx context.Context, symbol string, quantity int64, price float64) (broker.OrderResult, error) {
	out, err := g.client.BuyCash(ctx, kisconnect.OrderRequest{Symbol: symbol, Quantity: quantity, Price: price})
	if err != nil {
		return broker.OrderResult{}, orderErr(symbol, err)
	}
	log.Printf("[kis] buy %s x%d accepted, order %s", symbol, quantity, out.OrderNo)
	return broker.OrderResult{OrderID: out.OrderNo, Status: broker.StatusSubmitted}, nil
}

// PlaceSellOrder submits a cash sell. price 0 submits at market.
func (g *Gateway) PlaceSellOrder(ctx context.Context, symbol string, quantity int64, price float64) (broker.OrderResult, error) {
	out, err := g.client.SellCash(ctx, kisconnect.OrderRequest{Symbol: symbol, Quantity: quantity, Price: price})
	if err != nil {
		return broker.OrderResult{}, orderErr(symbol, err)
	}
	log.Printf("[kis] sell %s x%d accepted, order %s", symbol, quantity, out.OrderNo)
	return broker.OrderResult{OrderID: out.OrderNo, Status: broker.StatusSubmitted}, nil
}

// AccountBalance returns the account summary from the balance inquiry.
func (g *Gateway) AccountBalance(ctx context.Context) (model.AccountBalance, error) {
	_, totals, err := g.client.InquireBalance(ctx)
	if err != nil {
		return model.AccountBalance{}, wrapErr("balance", err)
	}
	return model.AccountBalance{
		AvailableAmount: kisconnect.ParseFloat(totals.CashAvailable),
		TotalAssets:     kisconnect.ParseFloat(totals.TotalEvalAmount),
		StockEvalAmount: kisconnect.ParseFloat(totals.StockEvalAmount),
	}, nil
}

// Positions returns current holdings from the balance inquiry. Zero
// quantity rows (settled sells) are dropped.
func (g *Gateway) Positions(ctx context.Context) ([]model.BrokerPosition, error) {
	holdings, _, err := g.client.InquireBalance(ctx)
	if err != nil {
		return nil, wrapErr("positions", err)
	}
	out := make([]model.BrokerPosition, 0, len(holdings))
	for _, h := range holdings {
		qty := kisconnect.ParseInt(h.Quantity)
		if qty <= 0 {
			continue
		}
		out = append(out, model.BrokerPosition{
			Symbol:       h.Symbol,
			Name:         h.Name,
			Quantity:     qty,
			EntryPrice:   kisconnect.ParseFloat(h.AvgPrice),
			CurrentPrice: kisconnect.ParseFloat(h.CurrentPrice),
		})
	}
	return out, nil
}

// wrapErr classifies failures on account and session routes, where an
// API envelope error (expired token, bad credentials) blocks trading as
// surely as a transport failure does.
func wrapErr(op string, err error) error {
	var apiErr *kisconnect.APIError
	if errors.As(err, &apiErr) {
		return &broker.ConnectivityError{Op: op, Err: fmt.Errorf("api %s: %s", apiErr.Code, apiErr.Message)}
	}
	return &broker.ConnectivityError{Op: op, Err: err}
}

// dataErr classifies failures on quotation routes. An API envelope
// error there concerns one symbol (unknown code, no data) and must not
// count as a broker outage; only transport failures stay connectivity.
func dataErr(symbol, op string, err error) error {
	var apiErr *kisconnect.APIError
	if errors.As(err, &apiErr) {
		return &broker.DataUnavailableError{Symbol: symbol, Reason: fmt.Sprintf("[%s] %s", apiErr.Code, apiErr.Message)}
	}
	return &broker.ConnectivityError{Op: op, Err: err}
}

// orderErr maps order failures: an API-level decline is a rejection,
// a transport failure stays a connectivity error.
func orderErr(symbol string, err error) error {
	var apiErr *kisconnect.APIError
	if errors.As(err, &apiErr) {
		return &broker.OrderRejectedError{Symbol: symbol, Reason: fmt.Sprintf("[%s] %s", apiErr.Code, apiErr.Message)}
	}
	return &broker.ConnectivityError{Op: "order " + symbol, Err: err}
}
