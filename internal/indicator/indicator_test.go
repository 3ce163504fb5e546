package indicator

import (
	"math"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func assertNaN(t *testing.T, label string, got float64) {
	t.Helper()
	if !math.IsNaN(got) {
		t.Errorf("%s: got %.6f, want NaN", label, got)
	}
}

// ────────────────────────────────────────────────────────────
// MovingAverage
// ────────────────────────────────────────────────────────────

func TestMovingAverage_HandCalculated(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// MA(3) at idx 2: (100+102+104)/3 = 102
	// MA(3) at idx 3: (102+104+103)/3 = 103
	// MA(3) at idx 4: (104+103+105)/3 = 104
	ma := MovingAverage([]float64{100, 102, 104, 103, 105}, 3)

	assertNaN(t, "MA(3)[0]", ma[0])
	assertNaN(t, "MA(3)[1]", ma[1])
	assertClose(t, "MA(3)[2]", ma[2], 102, 1e-9)
	assertClose(t, "MA(3)[3]", ma[3], 103, 1e-9)
	assertClose(t, "MA(3)[4]", ma[4], 104, 1e-9)
}

func TestMovingAverage_ShortSeries(t *testing.T) {
	ma := MovingAverage([]float64{100, 102}, 5)
	for i, v := range ma {
		assertNaN(t, "short series MA", v)
		_ = i
	}
}

func TestMovingAverage_NaNPropagates(t *testing.T) {
	series := []float64{100, math.NaN(), 104, 103, 105}
	ma := MovingAverage(series, 3)
	assertNaN(t, "window containing NaN [2]", ma[2])
	assertNaN(t, "window containing NaN [3]", ma[3])
	assertClose(t, "clean window [4]", ma[4], 104, 1e-9)
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_SeedsFromFirstPoint(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5, seeded from the first value.
	// 100 → 100
	// 102 → 102*0.5 + 100*0.5 = 101
	// 104 → 104*0.5 + 101*0.5 = 102.5
	ema := EMA([]float64{100, 102, 104}, 3)

	assertClose(t, "EMA[0]", ema[0], 100, 1e-9)
	assertClose(t, "EMA[1]", ema[1], 101, 1e-9)
	assertClose(t, "EMA[2]", ema[2], 102.5, 1e-9)
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_IdentityOnConstantSeries(t *testing.T) {
	// A constant series keeps both EMAs pinned at the constant, so the
	// MACD line, signal, and histogram are all exactly zero.
	series := []float64{50, 50, 50, 50, 50, 50}
	res := MACD(series, 2, 4, 3)
	for i := range series {
		assertClose(t, "MACD line", res.Line[i], 0, 1e-9)
		assertClose(t, "MACD signal", res.Signal[i], 0, 1e-9)
		assertClose(t, "MACD histogram", res.Histogram[i], 0, 1e-9)
	}
}

func TestMACD_HandCalculated(t *testing.T) {
	// fast=1 means fastEMA == price; slow=3 has multiplier 0.5.
	// Prices: 100, 104
	// slowEMA: 100, 102 → line: 0, 2
	// signal(3): 0, 1 → histogram: 0, 1
	res := MACD([]float64{100, 104}, 1, 3, 3)
	assertClose(t, "line[1]", res.Line[1], 2, 1e-9)
	assertClose(t, "signal[1]", res.Signal[1], 1, 1e-9)
	assertClose(t, "hist[1]", res.Histogram[1], 1, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Stochastic
// ────────────────────────────────────────────────────────────

func TestStochastic_HandCalculated(t *testing.T) {
	high := []float64{110, 112, 115}
	low := []float64{100, 101, 105}
	close := []float64{105, 110, 112}

	// kPeriod=3 at idx 2: hh=115, ll=100, %K = 100*(112-100)/15 = 80
	res := Stochastic(high, low, close, 3, 1)
	assertNaN(t, "%K[0]", res.K[0])
	assertNaN(t, "%K[1]", res.K[1])
	assertClose(t, "%K[2]", res.K[2], 80, 1e-9)
	// dPeriod=1 → %D mirrors %K
	assertClose(t, "%D[2]", res.D[2], 80, 1e-9)
}

func TestStochastic_FlatRangeIsUndefined(t *testing.T) {
	flat := []float64{100, 100, 100, 100}
	res := Stochastic(flat, flat, flat, 3, 2)
	for i := range flat {
		assertNaN(t, "flat range %K", res.K[i])
		assertNaN(t, "flat range %D", res.D[i])
	}
}

// ────────────────────────────────────────────────────────────
// OBV
// ────────────────────────────────────────────────────────────

func TestOnBalanceVolume_HandCalculated(t *testing.T) {
	close := []float64{100, 102, 101, 101, 103}
	volume := []float64{1000, 500, 300, 200, 400}

	// 1000, +500 = 1500, -300 = 1200, equal = 1200, +400 = 1600
	obv := OnBalanceVolume(close, volume)
	want := []float64{1000, 1500, 1200, 1200, 1600}
	for i := range want {
		assertClose(t, "OBV", obv[i], want[i], 1e-9)
	}
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_AllGainsIs100(t *testing.T) {
	series := []float64{100, 101, 102, 103, 104, 105}
	rsi := RSI(series, 3)
	assertNaN(t, "RSI[2]", rsi[2])
	assertClose(t, "RSI all gains", rsi[3], 100, 1e-9)
	assertClose(t, "RSI all gains", rsi[5], 100, 1e-9)
}

func TestRSI_HandCalculated(t *testing.T) {
	// period=2, deltas: +2, -1, +1
	// Seed at idx 2: avgGain=(2+0)/2=1, avgLoss=(0+1)/2=0.5
	// RS=2, RSI = 100 - 100/3 = 66.6667
	// idx 3: avgGain=(1*1+1)/2=1, avgLoss=(0.5*1+0)/2=0.25
	// RS=4, RSI = 100 - 100/5 = 80
	rsi := RSI([]float64{100, 102, 101, 102}, 2)
	assertClose(t, "RSI[2]", rsi[2], 66.666667, 1e-4)
	assertClose(t, "RSI[3]", rsi[3], 80, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Bollinger
// ────────────────────────────────────────────────────────────

func TestBollingerBands_HandCalculated(t *testing.T) {
	// Window 100, 102, 104: mean=102, sample std=2
	res := BollingerBands([]float64{100, 102, 104}, 3, 2)
	assertClose(t, "middle", res.Middle[2], 102, 1e-9)
	assertClose(t, "upper", res.Upper[2], 106, 1e-9)
	assertClose(t, "lower", res.Lower[2], 98, 1e-9)
	assertNaN(t, "upper before window", res.Upper[1])
}

// ────────────────────────────────────────────────────────────
// Volatility breakout
// ────────────────────────────────────────────────────────────

func TestVolatilityBreakoutLevel(t *testing.T) {
	// open 70000, prev range 71000-68000=3000, k=0.5 → 71500
	assertClose(t, "breakout level",
		VolatilityBreakoutLevel(70000, 71000, 68000, 0.5), 71500, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Crosses
// ────────────────────────────────────────────────────────────

func TestDetectGoldenCross(t *testing.T) {
	short := []float64{99, 101, 102}
	long := []float64{100, 100, 100}

	cross := DetectGoldenCross(short, long)
	if cross[0] {
		t.Error("index 0 can never be a cross")
	}
	if !cross[1] {
		t.Error("expected golden cross at index 1 (99<=100 then 101>100)")
	}
	if cross[2] {
		t.Error("no cross at index 2 (already above)")
	}
}

func TestDetectGoldenCross_EqualityFlips(t *testing.T) {
	// prev equal counts as at-or-below, so rising off equality is a cross.
	cross := DetectGoldenCross([]float64{100, 101}, []float64{100, 100})
	if !cross[1] {
		t.Error("expected cross when short moves from equal to above")
	}
}

func TestDetectDeadCross(t *testing.T) {
	short := []float64{101, 99}
	long := []float64{100, 100}
	cross := DetectDeadCross(short, long)
	if !cross[1] {
		t.Error("expected dead cross at index 1")
	}
}

func TestDetectCross_UndefinedInputsAreFalse(t *testing.T) {
	short := []float64{math.NaN(), 101, 102}
	long := []float64{100, 100, 100}
	cross := DetectGoldenCross(short, long)
	if cross[1] {
		t.Error("cross with NaN at i-1 must be false")
	}
}
