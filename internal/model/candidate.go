package model

import "time"

// Signal names produced by the selector.
const (
	SignalVolumeSurge        = "volume_surge"
	SignalGoldenCross        = "golden_cross"
	SignalMABreakout         = "ma_breakout"
	SignalVolatilityBreakout = "volatility_breakout"
	SignalMACDBuy            = "macd_buy"
	SignalStochasticBuy      = "stochastic_buy"
	SignalOBVRising          = "obv_rising"
	SignalSupportAtMA        = "support_at_ma"
	SignalOrderBookImbalance = "order_book_imbalance"
)

// SignalSet maps a signal name to whether it fired for a candidate.
type SignalSet map[string]bool

// ScoredCandidate is one selector output: a symbol whose signal score
// cleared the minimum. Created fresh each selection cycle, never mutated.
type ScoredCandidate struct {
	Symbol      string    `json:"symbol"`
	Snapshot    Snapshot  `json:"snapshot"`
	Score       int       `json:"score"`
	Signals     SignalSet `json:"signals"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}
