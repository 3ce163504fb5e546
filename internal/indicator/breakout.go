package indicator

// VolatilityBreakoutLevel computes the Larry Williams volatility breakout
// entry level: today's open plus k times the previous day's high-low range.
func VolatilityBreakoutLevel(openPrice, prevHigh, prevLow, k float64) float64 {
	return openPrice + k*(prevHigh-prevLow)
}
