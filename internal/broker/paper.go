package broker

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/jaengyi/RedArrow/internal/markethours"
	"github.com/jaengyi/RedArrow/internal/model"
)

// paperSymbol seeds one instrument of the simulated universe.
type paperSymbol struct {
	symbol string
	name   string
	base   float64 // starting price, KRW
	volume float64 // typical daily volume
}

var defaultUniverse = []paperSymbol{
	{"005930", "Samsung Electronics", 70000, 10_000_000},
	{"000660", "SK hynix", 120000, 5_000_000},
	{"051910", "LG Chem", 400000, 2_000_000},
	{"035420", "NAVER", 210000, 1_500_000},
	{"005380", "Hyundai Motor", 190000, 1_200_000},
	{"035720", "Kakao", 55000, 3_000_000},
	{"105560", "KB Financial", 60000, 1_800_000},
	{"006400", "Samsung SDI", 380000, 900_000},
	{"068270", "Celltrion", 170000, 1_100_000},
	{"003670", "POSCO Future M", 280000, 800_000},
}

type paperHolding struct {
	qty      int64
	avgPrice float64
}

// PaperGateway simulates a brokerage without real API calls: a seeded
// random-walk market, immediate fills with configurable slippage, and an
// in-memory ledger. Deterministic for a given seed, which is what the
// simulation mode and the engine tests rely on.
type PaperGateway struct {
	mu        sync.Mutex
	rng       *rand.Rand
	connected bool

	cash     float64
	holdings map[string]*paperHolding

	universe  []paperSymbol
	prices    map[string]float64
	histories map[string][]model.PriceBar

	orderSeq    int64
	slippageBps float64
}

// NewPaperGateway creates a paper gateway with the default universe.
// historyDays of synthetic daily bars are pre-generated per symbol.
func NewPaperGateway(seed int64, startingCash float64, historyDays int) *PaperGateway {
	g := &PaperGateway{
		rng:         rand.New(rand.NewSource(seed)),
		cash:        startingCash,
		holdings:    make(map[string]*paperHolding),
		universe:    defaultUniverse,
		prices:      make(map[string]float64),
		histories:   make(map[string][]model.PriceBar),
		slippageBps: 5,
	}
	g.generateHistories(historyDays)
	return g
}

func (g *PaperGateway) generateHistories(days int) {
	end := time.Now().In(markethours.KST).Truncate(24 * time.Hour)
	for _, s := range g.universe {
		bars := make([]model.PriceBar, 0, days)
		price := s.base
		for i := days; i > 0; i-- {
			drift := (g.rng.Float64() - 0.48) * 0.02 // slight upward bias
			open := price
			close := math.Max(1, open*(1+drift))
			high := math.Max(open, close) * (1 + g.rng.Float64()*0.01)
			low := math.Min(open, close) * (1 - g.rng.Float64()*0.01)
			vol := s.volume * (0.5 + g.rng.Float64())
			bars = append(bars, model.PriceBar{
				Open: open, High: high, Low: low, Close: close,
				Volume: vol,
				TS:     end.AddDate(0, 0, -i),
			})
			price = close
		}
		g.histories[s.symbol] = bars
		g.prices[s.symbol] = price
	}
}

func (g *PaperGateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = true
	log.Printf("[paper] connected (cash=%.0f, universe=%d symbols)", g.cash, len(g.universe))
	return nil
}

func (g *PaperGateway) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	return nil
}

// step advances one symbol's price by a small deterministic walk.
// Caller holds g.mu.
func (g *PaperGateway) step(symbol string) float64 {
	p := g.prices[symbol]
	p = math.Max(1, p*(1+(g.rng.Float64()-0.5)*0.004))
	g.prices[symbol] = p
	return p
}

func (g *PaperGateway) snapshotLocked(s paperSymbol, now time.Time) model.Snapshot {
	price := g.step(s.symbol)
	hist := g.histories[s.symbol]
	last := hist[len(hist)-1]
	vol := s.volume * (0.5 + g.rng.Float64()*1.5)
	return model.Snapshot{
		Symbol:        s.symbol,
		Name:          s.name,
		Price:         price,
		Open:          last.Close,
		High:          math.Max(price, last.Close),
		Low:           math.Min(price, last.Close),
		Close:         price,
		Volume:        vol,
		TradingAmount: price * vol,
		ChangeRate:    (price - last.Close) / last.Close * 100,
		PrevHigh:      last.High,
		PrevLow:       last.Low,
		TS:            now,
	}
}

func (g *PaperGateway) TopVolumeStocks(ctx context.Context, count int) ([]model.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, &ConnectivityError{Op: "top volume stocks", Err: errNotConnected}
	}
	now := time.Now()
	snaps := make([]model.Snapshot, 0, len(g.universe))
	for _, s := range g.universe {
		snaps = append(snaps, g.snapshotLocked(s, now))
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].TradingAmount != snaps[j].TradingAmount {
			return snaps[i].TradingAmount > snaps[j].TradingAmount
		}
		return snaps[i].Symbol < snaps[j].Symbol
	})
	if count < len(snaps) {
		snaps = snaps[:count]
	}
	return snaps, nil
}

func (g *PaperGateway) StockPrice(ctx context.Context, symbol string) (model.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return model.Snapshot{}, &ConnectivityError{Op: "stock price", Err: errNotConnected}
	}
	for _, s := range g.universe {
		if s.symbol == symbol {
			return g.snapshotLocked(s, time.Now()), nil
		}
	}
	return model.Snapshot{}, &DataUnavailableError{Symbol: symbol, Reason: "unknown symbol"}
}

func (g *PaperGateway) HistoricalData(ctx context.Context, symbol string, days int) ([]model.PriceBar, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	hist, ok := g.histories[symbol]
	if !ok {
		return nil, &DataUnavailableError{Symbol: symbol, Reason: "no history"}
	}
	if days < len(hist) {
		hist = hist[len(hist)-days:]
	}
	out := make([]model.PriceBar, len(hist))
	copy(out, hist)
	return out, nil
}

func (g *PaperGateway) OrderBook(ctx context.Context, symbol string) (model.OrderBook, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.histories[symbol]; !ok {
		return model.OrderBook{}, &DataUnavailableError{Symbol: symbol, Reason: "unknown symbol"}
	}
	bid := 10000 + g.rng.Float64()*90000
	ask := 10000 + g.rng.Float64()*90000
	return model.OrderBook{Symbol: symbol, BidVolume: bid, AskVolume: ask}, nil
}

func (g *PaperGateway) PlaceBuyOrder(ctx context.Context, symbol string, quantity int64, price float64) (OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return OrderResult{}, &ConnectivityError{Op: "buy order", Err: errNotConnected}
	}
	if quantity <= 0 {
		return OrderResult{Status: StatusRejected}, &OrderRejectedError{Symbol: symbol, Reason: "invalid quantity"}
	}
	fill := g.prices[symbol]
	if price > 0 {
		fill = price
	}
	fill *= 1 + g.slippageBps/10000 // buys fill slightly worse
	cost := fill * float64(quantity)
	if cost > g.cash {
		return OrderResult{Status: StatusRejected}, &OrderRejectedError{Symbol: symbol, Reason: "insufficient balance"}
	}

	g.cash -= cost
	h := g.holdings[symbol]
	if h == nil {
		h = &paperHolding{}
		g.holdings[symbol] = h
	}
	total := h.avgPrice*float64(h.qty) + cost
	h.qty += quantity
	h.avgPrice = total / float64(h.qty)

	g.orderSeq++
	id := fmt.Sprintf("PAPER-%d", g.orderSeq)
	log.Printf("[paper] BUY %s qty=%d fill=%.0f order=%s", symbol, quantity, fill, id)
	return OrderResult{OrderID: id, Status: StatusFilled, Message: fmt.Sprintf("filled at %.0f", fill)}, nil
}

func (g *PaperGateway) PlaceSellOrder(ctx context.Context, symbol string, quantity int64, price float64) (OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return OrderResult{}, &ConnectivityError{Op: "sell order", Err: errNotConnected}
	}
	h := g.holdings[symbol]
	if h == nil || h.qty < quantity || quantity <= 0 {
		return OrderResult{Status: StatusRejected}, &OrderRejectedError{Symbol: symbol, Reason: "invalid lot"}
	}
	fill := g.prices[symbol]
	if price > 0 {
		fill = price
	}
	fill *= 1 - g.slippageBps/10000 // sells fill slightly worse

	g.cash += fill * float64(quantity)
	h.qty -= quantity
	if h.qty == 0 {
		delete(g.holdings, symbol)
	}

	g.orderSeq++
	id := fmt.Sprintf("PAPER-%d", g.orderSeq)
	log.Printf("[paper] SELL %s qty=%d fill=%.0f order=%s", symbol, quantity, fill, id)
	return OrderResult{OrderID: id, Status: StatusFilled, Message: fmt.Sprintf("filled at %.0f", fill)}, nil
}

func (g *PaperGateway) AccountBalance(ctx context.Context) (model.AccountBalance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return model.AccountBalance{}, &ConnectivityError{Op: "account balance", Err: errNotConnected}
	}
	eval := 0.0
	for sym, h := range g.holdings {
		eval += g.prices[sym] * float64(h.qty)
	}
	return model.AccountBalance{
		AvailableAmount: g.cash,
		TotalAssets:     g.cash + eval,
		StockEvalAmount: eval,
	}, nil
}

func (g *PaperGateway) Positions(ctx context.Context) ([]model.BrokerPosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, &ConnectivityError{Op: "positions", Err: errNotConnected}
	}
	names := make(map[string]string, len(g.universe))
	for _, s := range g.universe {
		names[s.symbol] = s.name
	}
	out := make([]model.BrokerPosition, 0, len(g.holdings))
	for sym, h := range g.holdings {
		out = append(out, model.BrokerPosition{
			Symbol:       sym,
			Name:         names[sym],
			Quantity:     h.qty,
			EntryPrice:   h.avgPrice,
			CurrentPrice: g.prices[sym],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

var errNotConnected = fmt.Errorf("not connected")
