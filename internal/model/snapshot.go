package model

import (
	"encoding/json"
	"time"
)

// Snapshot is the current-tick view of one symbol. A new snapshot
// supersedes the previous one each tick.
type Snapshot struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name,omitempty"`
	Price         float64   `json:"price"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        float64   `json:"volume"`
	TradingAmount float64   `json:"trading_amount"` // price x volume turnover, KRW
	ChangeRate    float64   `json:"change_rate"`    // percent vs previous close
	PrevHigh      float64   `json:"prev_high"`
	PrevLow       float64   `json:"prev_low"`
	TS            time.Time `json:"ts"`
}

// JSON returns the JSON-encoded snapshot (errors ignored for cache writes).
func (s *Snapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// OrderBook is a depth summary for one symbol. Book depth is optional on
// the data path; callers must tolerate its absence.
type OrderBook struct {
	Symbol    string  `json:"symbol"`
	BidVolume float64 `json:"bid_volume"`
	AskVolume float64 `json:"ask_volume"`
}
