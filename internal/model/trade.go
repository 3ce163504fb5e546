package model

import "time"

// Trade sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trade is one executed fill, recorded in the journal.
type Trade struct {
	Symbol     string
	Name       string
	Side       string
	Quantity   int64
	Price      float64
	Reason     string // entry score or close reason
	PnL        float64
	PnLPercent float64
	OrderID    string
	TS         time.Time
}

// Notional returns the traded KRW amount.
func (t Trade) Notional() float64 {
	return t.Price * float64(t.Quantity)
}
