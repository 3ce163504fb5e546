// Package model defines the core market data and trading domain types
// shared by the selector, risk controller, and orchestrator.
package model

import "time"

// PriceBar is one OHLCV bar of a symbol's daily history.
// Bars for a symbol are chronological and immutable once recorded.
type PriceBar struct {
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	TS     time.Time `json:"ts"`
}

// ValidateBars checks that a history series is well formed: strictly
// increasing timestamps and non-negative prices. Returns false with the
// offending index on the first violation.
func ValidateBars(bars []PriceBar) (int, bool) {
	for i, b := range bars {
		if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 {
			return i, false
		}
		if i > 0 && !bars[i-1].TS.Before(b.TS) {
			return i, false
		}
	}
	return -1, true
}

// Closes extracts the close series from a bar history.
func Closes(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high series from a bar history.
func Highs(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low series from a bar history.
func Lows(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts the volume series from a bar history.
func Volumes(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}
