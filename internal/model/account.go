package model

import (
	"encoding/json"
	"time"
)

// AccountState is the engine's local view of the trading account.
// Mutated only by confirmed fills/closes and by ledger reconciliation.
type AccountState struct {
	Balance          float64 `json:"balance"`            // available cash, KRW
	RealizedPnLToday float64 `json:"realized_pnl_today"` // KRW
}

// AccountBalance is the balance view returned by the broker ledger.
type AccountBalance struct {
	AvailableAmount float64 `json:"available_amount"`
	TotalAssets     float64 `json:"total_assets"`
	StockEvalAmount float64 `json:"stock_eval_amount"`
}

// DailySummary is the immutable end-of-session settlement record.
type DailySummary struct {
	Date            string     `json:"date"` // YYYY-MM-DD
	DailyPnL        float64    `json:"daily_pnl"`
	StartingBalance float64    `json:"starting_balance"`
	EndingBalance   float64    `json:"ending_balance"`
	FinalPositions  []Position `json:"final_positions"`
	SettledAt       time.Time  `json:"settled_at"`
}

// JSON returns the JSON-encoded summary.
func (d *DailySummary) JSON() []byte {
	b, _ := json.Marshal(d)
	return b
}
