package selector

import (
	"math"

	"github.com/jaengyi/RedArrow/internal/indicator"
	"github.com/jaengyi/RedArrow/internal/model"
)

// volumeSurge fires when the current volume reaches the configured
// multiple of the trailing average volume.
func (s *Selector) volumeSurge(snap model.Snapshot, bars []model.PriceBar) bool {
	volumes := model.Volumes(bars)
	if s.cfg.VolumeAvgWindow > 0 && s.cfg.VolumeAvgWindow < len(volumes) {
		volumes = volumes[len(volumes)-s.cfg.VolumeAvgWindow:]
	}
	sum := 0.0
	for _, v := range volumes {
		sum += v
	}
	avg := sum / float64(len(volumes))
	if avg == 0 {
		return false
	}
	return snap.Volume >= s.cfg.VolumeSurgeThreshold*avg
}

// maBreakout fires when the current price sits above the long moving
// average.
func (s *Selector) maBreakout(closes []float64, price float64) bool {
	ma := indicator.Last(indicator.MovingAverage(closes, s.cfg.MALongPeriod))
	return indicator.Defined(ma) && price > ma
}

// goldenCross fires when the short moving average crossed above the long
// one on the latest bar.
func (s *Selector) goldenCross(closes []float64) bool {
	shortMA := indicator.MovingAverage(closes, s.cfg.MAShortPeriod)
	longMA := indicator.MovingAverage(closes, s.cfg.MALongPeriod)
	cross := indicator.DetectGoldenCross(shortMA, longMA)
	return len(cross) > 0 && cross[len(cross)-1]
}

// volatilityBreakout fires when the price has cleared the open plus a
// fraction of the previous day's range.
func (s *Selector) volatilityBreakout(snap model.Snapshot) bool {
	level := indicator.VolatilityBreakoutLevel(snap.Open, snap.PrevHigh, snap.PrevLow, s.cfg.VolatilityBreakoutK)
	return indicator.Defined(level) && snap.Price >= level
}

// macdBuy fires when the MACD line crossed above its signal line on the
// latest bar.
func (s *Selector) macdBuy(closes []float64) bool {
	r := indicator.MACD(closes, s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal)
	n := len(r.Line)
	if n < 2 {
		return false
	}
	prevL, prevS := r.Line[n-2], r.Signal[n-2]
	curL, curS := r.Line[n-1], r.Signal[n-1]
	if !indicator.Defined(prevL) || !indicator.Defined(prevS) ||
		!indicator.Defined(curL) || !indicator.Defined(curS) {
		return false
	}
	return prevL <= prevS && curL > curS
}

// stochasticBuy fires on a %K over %D cross up, or on %K leaving the
// oversold band.
func (s *Selector) stochasticBuy(bars []model.PriceBar) bool {
	r := indicator.Stochastic(model.Highs(bars), model.Lows(bars), model.Closes(bars),
		s.cfg.StochasticK, s.cfg.StochasticD)
	n := len(r.K)
	if n < 2 {
		return false
	}
	prevK, curK := r.K[n-2], r.K[n-1]
	prevD, curD := r.D[n-2], r.D[n-1]

	if indicator.Defined(prevK) && indicator.Defined(prevD) &&
		indicator.Defined(curK) && indicator.Defined(curD) &&
		prevK <= prevD && curK > curD {
		return true
	}
	return indicator.Defined(prevK) && indicator.Defined(curK) &&
		prevK <= s.cfg.StochasticOversold && curK > s.cfg.StochasticOversold
}

// obvRising fires when on-balance volume rose on the latest bar.
func (s *Selector) obvRising(bars []model.PriceBar) bool {
	obv := indicator.OnBalanceVolume(model.Closes(bars), model.Volumes(bars))
	n := len(obv)
	return n >= 2 && obv[n-1] > obv[n-2]
}

// supportAtMA fires when the price holds at or just above the long moving
// average within the tolerance band. Only the upside approach counts.
func (s *Selector) supportAtMA(closes []float64, price float64) bool {
	ma := indicator.Last(indicator.MovingAverage(closes, s.cfg.MALongPeriod))
	if !indicator.Defined(ma) || ma <= 0 || price < ma {
		return false
	}
	return math.Abs(price-ma)/ma <= s.cfg.SupportTolerance
}

// orderBookImbalance fires when book depth is available and either side
// holds more than 60% of the visible volume. A lopsided ask side often
// precedes absorption, a lopsided bid side shows direct buying pressure.
func (s *Selector) orderBookImbalance(symbol string) bool {
	if s.OrderBookFunc == nil {
		return false
	}
	book, ok := s.OrderBookFunc(symbol)
	if !ok {
		return false
	}
	total := book.BidVolume + book.AskVolume
	if total <= 0 {
		return false
	}
	return book.BidVolume/total > 0.6 || book.AskVolume/total > 0.6
}
