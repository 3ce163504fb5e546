package model

import "time"

// Position is one open holding tracked by the orchestrator's position
// table. HighestPrice ratchets up with every tick and never decreases.
type Position struct {
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name,omitempty"`
	EntryPrice   float64   `json:"entry_price"`
	Quantity     int64     `json:"quantity"`
	HighestPrice float64   `json:"highest_price"` // highest since entry, >= EntryPrice
	EntryTime    time.Time `json:"entry_time"`
}

// UnrealizedPnL returns the open profit/loss at the given price.
func (p *Position) UnrealizedPnL(current float64) float64 {
	return (current - p.EntryPrice) * float64(p.Quantity)
}

// PnLPercent returns the percent gain/loss versus entry.
func (p *Position) PnLPercent(current float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (current - p.EntryPrice) / p.EntryPrice * 100
}

// Notional returns the position's entry value in KRW.
func (p *Position) Notional() float64 {
	return p.EntryPrice * float64(p.Quantity)
}

// BrokerPosition is a holding as reported by the external ledger.
// The broker view is authoritative during position sync.
type BrokerPosition struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name,omitempty"`
	Quantity     int64   `json:"quantity"`
	EntryPrice   float64 `json:"entry_price"`
	CurrentPrice float64 `json:"current_price"`
}
