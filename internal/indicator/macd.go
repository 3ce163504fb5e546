package indicator

// MACDResult holds the three MACD output series.
type MACDResult struct {
	Line      []float64 // fast EMA - slow EMA
	Signal    []float64 // EMA of Line
	Histogram []float64 // Line - Signal
}

// MACD computes the Moving Average Convergence Divergence oscillator:
// the MACD line is fastEMA - slowEMA, the signal line is an EMA of that
// line, and the histogram is their difference.
func MACD(series []float64, fast, slow, signal int) MACDResult {
	fastEMA := EMA(series, fast)
	slowEMA := EMA(series, slow)

	line := make([]float64, len(series))
	for i := range series {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	sig := EMA(line, signal)
	hist := make([]float64, len(series))
	for i := range series {
		hist[i] = line[i] - sig[i]
	}

	return MACDResult{Line: line, Signal: sig, Histogram: hist}
}
