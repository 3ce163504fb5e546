package selector

import (
	"testing"
	"time"

	"github.com/jaengyi/RedArrow/config"
	"github.com/jaengyi/RedArrow/internal/model"
)

// risingBars builds n daily bars with closes start, start+1, ... and a
// constant volume. Highs/lows bracket the close by one.
func risingBars(n int, start, volume float64) []model.PriceBar {
	t0 := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.PriceBar, n)
	for i := range bars {
		c := start + float64(i)
		bars[i] = model.PriceBar{
			Open: c, High: c + 1, Low: c - 1, Close: c,
			Volume: volume,
			TS:     t0.AddDate(0, 0, i),
		}
	}
	return bars
}

func TestFilterByAmountTopNAndTies(t *testing.T) {
	s := New(config.Default())
	s.cfg.TopVolumeCount = 3

	universe := []model.Snapshot{
		{Symbol: "D", TradingAmount: 100},
		{Symbol: "C", TradingAmount: 500},
		{Symbol: "B", TradingAmount: 500},
		{Symbol: "A", TradingAmount: 900},
	}
	got := s.filterByAmount(universe)
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("got %d symbols, want %d", len(got), len(want))
	}
	for i, sym := range want {
		if got[i].Symbol != sym {
			t.Errorf("rank %d: got %s, want %s", i, got[i].Symbol, sym)
		}
	}
}

func TestVolumeSurge(t *testing.T) {
	s := New(config.Default())
	bars := risingBars(30, 100, 1000)

	if !s.volumeSurge(model.Snapshot{Volume: 2500}, bars) {
		t.Error("2.5x average volume must surge at threshold 2.0")
	}
	if s.volumeSurge(model.Snapshot{Volume: 1999}, bars) {
		t.Error("below 2x average volume must not surge")
	}

	flat := risingBars(30, 100, 0)
	if s.volumeSurge(model.Snapshot{Volume: 5000}, flat) {
		t.Error("zero average volume must never surge")
	}
}

func TestMABreakoutAndSupport(t *testing.T) {
	s := New(config.Default())
	bars := risingBars(30, 100, 1000)
	closes := model.Closes(bars)
	// MA20 of closes 110..129 = 119.5.

	if !s.maBreakout(closes, 130) {
		t.Error("price 130 above MA 119.5 must break out")
	}
	if s.maBreakout(closes, 119) {
		t.Error("price below the MA must not break out")
	}

	if !s.supportAtMA(closes, 120) {
		t.Error("price 120 is within 1%% above MA 119.5")
	}
	if s.supportAtMA(closes, 119) {
		t.Error("price below the MA is not an upside approach")
	}
	if s.supportAtMA(closes, 130) {
		t.Error("price 8.8%% above the MA is outside tolerance")
	}
}

func TestGoldenCrossSignal(t *testing.T) {
	s := New(config.Default())
	s.cfg.MAShortPeriod = 2
	s.cfg.MALongPeriod = 4

	// Short MA dips below the long MA then jumps over it on the last bar:
	// shortMA(2) at the last two points is 9 then 19.5, longMA(4) is 9.25
	// then 14.5.
	closes := []float64{10, 10, 10, 10, 9, 9, 30}
	if !s.goldenCross(closes) {
		t.Error("expected a golden cross on the final bar")
	}

	if s.goldenCross(model.Closes(risingBars(30, 100, 1000))) {
		t.Error("a monotone series has no cross to detect")
	}
}

func TestMACDBuySignal(t *testing.T) {
	s := New(config.Default())
	s.cfg.MACDFast = 1
	s.cfg.MACDSlow = 2
	s.cfg.MACDSignal = 2

	// Line dips to -0.667 (below signal -0.444) then rebounds to 1.111
	// (above signal 0.592): a cross up on the last bar.
	if !s.macdBuy([]float64{10, 10, 10, 8, 12}) {
		t.Error("expected MACD buy on the rebound bar")
	}
	if s.macdBuy([]float64{10, 10, 10, 10, 10}) {
		t.Error("a constant series never crosses")
	}
}

func TestStochasticOversoldExit(t *testing.T) {
	s := New(config.Default())
	s.cfg.StochasticK = 2
	s.cfg.StochasticD = 2
	s.cfg.StochasticOversold = 20

	// %K goes 10 then 50: leaves the oversold band on the last bar.
	bars := []model.PriceBar{
		{Open: 5, High: 10, Low: 0, Close: 5, Volume: 1, TS: time.Unix(1, 0)},
		{Open: 1, High: 10, Low: 0, Close: 1, Volume: 1, TS: time.Unix(2, 0)},
		{Open: 5, High: 10, Low: 0, Close: 5, Volume: 1, TS: time.Unix(3, 0)},
	}
	if !s.stochasticBuy(bars) {
		t.Error("expected a buy on leaving the oversold band")
	}
}

func TestOrderBookImbalance(t *testing.T) {
	s := New(config.Default())

	if s.orderBookImbalance("005930") {
		t.Error("no hook installed: signal must stay off")
	}

	s.OrderBookFunc = func(symbol string) (model.OrderBook, bool) {
		switch symbol {
		case "BID":
			return model.OrderBook{BidVolume: 700, AskVolume: 300}, true
		case "EVEN":
			return model.OrderBook{BidVolume: 500, AskVolume: 500}, true
		default:
			return model.OrderBook{}, false
		}
	}
	if !s.orderBookImbalance("BID") {
		t.Error("70%% bid side must fire")
	}
	if s.orderBookImbalance("EVEN") {
		t.Error("a balanced book must not fire")
	}
	if s.orderBookImbalance("MISSING") {
		t.Error("missing depth must not fire")
	}
}

func TestSelectScoresAndDiagnostics(t *testing.T) {
	cfg := config.Default()
	sel := New(cfg)

	rising := risingBars(30, 100, 1000)
	malformed := risingBars(30, 100, 1000)
	malformed[10].Close = -5

	history := map[string][]model.PriceBar{
		"GOOD": rising,
		"SHRT": risingBars(10, 100, 1000),
		"BADH": malformed,
	}
	universe := []model.Snapshot{
		// Surge (2500 >= 2x1000), MA breakout (130 > 119.5), volatility
		// breakout (level 128 + 0.5*2 = 129 <= 130) and rising OBV:
		// 3 + 2 + 2 + 1 = 8.
		{Symbol: "GOOD", Price: 130, Open: 128, PrevHigh: 129, PrevLow: 127,
			Volume: 2500, TradingAmount: 9_000_000},
		{Symbol: "SHRT", Price: 110, Volume: 2500, TradingAmount: 8_000_000},
		{Symbol: "BADH", Price: 130, Volume: 2500, TradingAmount: 7_000_000},
	}

	candidates, diags := sel.Select(universe, history)

	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	c := candidates[0]
	if c.Symbol != "GOOD" || c.Score != 8 {
		t.Errorf("got %s score %d, want GOOD score 8", c.Symbol, c.Score)
	}
	for _, sig := range []string{
		model.SignalVolumeSurge, model.SignalMABreakout,
		model.SignalVolatilityBreakout, model.SignalOBVRising,
	} {
		if !c.Signals[sig] {
			t.Errorf("signal %s missing from %v", sig, c.Signals)
		}
	}
	if len(diags) != 2 {
		t.Fatalf("got %d diagnostics, want 2: %v", len(diags), diags)
	}
}

func TestSelectOrdering(t *testing.T) {
	cfg := config.Default()
	cfg.Selector.MinScore = 1
	sel := New(cfg)

	rising := risingBars(30, 100, 1000)
	history := map[string][]model.PriceBar{
		"AAA": rising, "BBB": rising, "CCC": rising,
	}
	// Identical signals for all three (surge + MA breakout + OBV = 6), so
	// ordering falls to trading amount desc, then symbol asc.
	snap := func(sym string, amount float64) model.Snapshot {
		return model.Snapshot{Symbol: sym, Price: 130, Open: 130, PrevHigh: 131, PrevLow: 129,
			Volume: 2500, TradingAmount: amount}
	}
	universe := []model.Snapshot{snap("CCC", 900), snap("AAA", 500), snap("BBB", 900)}

	candidates, _ := sel.Select(universe, history)
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(candidates))
	}
	want := []string{"BBB", "CCC", "AAA"}
	for i, sym := range want {
		if candidates[i].Symbol != sym {
			t.Errorf("rank %d: got %s, want %s", i, candidates[i].Symbol, sym)
		}
	}
	if candidates[0].Score != candidates[2].Score {
		t.Errorf("scores differ: %d vs %d", candidates[0].Score, candidates[2].Score)
	}
}

func TestInsufficientHistoryNeverSelected(t *testing.T) {
	cfg := config.Default()
	cfg.Selector.MinScore = 0
	sel := New(cfg)

	universe := []model.Snapshot{{Symbol: "SHRT", Price: 100, TradingAmount: 1000}}
	history := map[string][]model.PriceBar{"SHRT": risingBars(cfg.HistoryLookback()-1, 100, 1000)}

	candidates, diags := sel.Select(universe, history)
	if len(candidates) != 0 {
		t.Fatalf("short history produced a candidate: %+v", candidates)
	}
	if len(diags) != 1 || diags[0].Symbol != "SHRT" {
		t.Fatalf("got diagnostics %v, want one for SHRT", diags)
	}
}
