package indicator

// OnBalanceVolume computes the cumulative volume-flow series. The first
// value is the first volume; volume is added when close rises versus the
// prior bar, subtracted when it falls, and carried unchanged when equal.
func OnBalanceVolume(close, volume []float64) []float64 {
	n := len(close)
	out := undefinedSeries(n)
	if n == 0 || len(volume) != n {
		return out
	}
	out[0] = volume[0]
	for i := 1; i < n; i++ {
		switch {
		case close[i] > close[i-1]:
			out[i] = out[i-1] + volume[i]
		case close[i] < close[i-1]:
			out[i] = out[i-1] - volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}
