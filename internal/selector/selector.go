// Package selector picks trade candidates from a market snapshot universe.
//
// Selection is purely functional over its inputs: the universe is filtered
// to the most liquid symbols, each survivor is scored against a set of
// weighted technical signals, and candidates at or above the minimum score
// come back ranked. Symbols with broken or insufficient history are
// excluded with a diagnostic, never an error.
package selector

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jaengyi/RedArrow/config"
	"github.com/jaengyi/RedArrow/internal/model"
)

// Diagnostic describes a symbol excluded from selection and why.
type Diagnostic struct {
	Symbol string
	Reason string
}

// OrderBookFunc supplies order-book depth for a symbol. Book depth is not
// guaranteed by every data path, so the hook is optional; when it is nil
// or returns false the imbalance signal simply never fires.
type OrderBookFunc func(symbol string) (model.OrderBook, bool)

// Selector scores snapshot universes into ranked candidates.
type Selector struct {
	cfg      config.SelectorConfig
	lookback int

	// OrderBookFunc enables the order-book imbalance signal when set.
	OrderBookFunc OrderBookFunc
}

// New builds a Selector from the application configuration.
func New(cfg *config.Config) *Selector {
	return &Selector{
		cfg:      cfg.Selector,
		lookback: cfg.HistoryLookback(),
	}
}

// Select filters universe to the top symbols by trading amount, scores
// each against the configured signals using its price history, and returns
// candidates with score >= minScore sorted by score desc, trading amount
// desc, symbol asc. Excluded symbols are reported as diagnostics.
func (s *Selector) Select(universe []model.Snapshot, history map[string][]model.PriceBar) ([]model.ScoredCandidate, []Diagnostic) {
	var diags []Diagnostic

	top := s.filterByAmount(universe)

	candidates := make([]model.ScoredCandidate, 0, len(top))
	for _, snap := range top {
		bars, ok := history[snap.Symbol]
		if !ok || len(bars) < s.lookback {
			diags = append(diags, Diagnostic{
				Symbol: snap.Symbol,
				Reason: fmt.Sprintf("insufficient history: %d bars, need %d", len(bars), s.lookback),
			})
			continue
		}
		if idx, valid := model.ValidateBars(bars); !valid {
			diags = append(diags, Diagnostic{
				Symbol: snap.Symbol,
				Reason: fmt.Sprintf("malformed history at bar %d", idx),
			})
			continue
		}

		score, signals := s.score(snap, bars)
		if score < s.cfg.MinScore {
			continue
		}
		candidates = append(candidates, model.ScoredCandidate{
			Symbol:      snap.Symbol,
			Snapshot:    snap,
			Score:       score,
			Signals:     signals,
			EvaluatedAt: time.Now(),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Snapshot.TradingAmount != candidates[j].Snapshot.TradingAmount {
			return candidates[i].Snapshot.TradingAmount > candidates[j].Snapshot.TradingAmount
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})

	if len(candidates) > 0 {
		log.Printf("[selector] %d candidates from %d symbols (%d excluded)",
			len(candidates), len(universe), len(diags))
	}
	return candidates, diags
}

// filterByAmount returns the top-N universe entries by trading amount,
// ties broken by symbol for a deterministic cut.
func (s *Selector) filterByAmount(universe []model.Snapshot) []model.Snapshot {
	sorted := make([]model.Snapshot, len(universe))
	copy(sorted, universe)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TradingAmount != sorted[j].TradingAmount {
			return sorted[i].TradingAmount > sorted[j].TradingAmount
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})
	if s.cfg.TopVolumeCount < len(sorted) {
		sorted = sorted[:s.cfg.TopVolumeCount]
	}
	return sorted
}

// score evaluates every configured signal for one symbol. Each true
// signal contributes its weight; nothing else touches the score.
func (s *Selector) score(snap model.Snapshot, bars []model.PriceBar) (int, model.SignalSet) {
	closes := model.Closes(bars)
	w := s.cfg.Weights

	score := 0
	signals := make(model.SignalSet)
	add := func(name string, on bool, weight int) {
		if on && weight > 0 {
			score += weight
			signals[name] = true
		}
	}

	add(model.SignalVolumeSurge, s.volumeSurge(snap, bars), w.VolumeSurge)
	add(model.SignalMABreakout, s.maBreakout(closes, snap.Price), w.MABreakout)
	add(model.SignalGoldenCross, s.goldenCross(closes), w.GoldenCross)
	add(model.SignalVolatilityBreakout, s.volatilityBreakout(snap), w.VolatilityBreakout)
	add(model.SignalMACDBuy, s.macdBuy(closes), w.MACDBuy)
	add(model.SignalStochasticBuy, s.stochasticBuy(bars), w.StochasticBuy)
	add(model.SignalOBVRising, s.obvRising(bars), w.OBVRising)
	add(model.SignalSupportAtMA, s.supportAtMA(closes, snap.Price), w.SupportAtMA)
	add(model.SignalOrderBookImbalance, s.orderBookImbalance(snap.Symbol), w.OrderBookImbalance)

	return score, signals
}
