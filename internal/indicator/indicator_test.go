package indicator

import (
	"math"
	"testing"
)

func constSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestSMA_WarmupUndefined(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	out := SMA(closes, 3)

	for i := 0; i < 2; i++ {
		if Defined(out[i]) {
			t.Errorf("bar %d: expected undefined during warm-up, got %.4f", i, out[i])
		}
	}
	// (1+2+3)/3, (2+3+4)/3, (3+4+5)/3
	want := []float64{2, 3, 4}
	for i, w := range want {
		if math.Abs(out[i+2]-w) > 1e-9 {
			t.Errorf("bar %d: expected SMA=%.4f, got %.4f", i+2, w, out[i+2])
		}
	}
}

func TestSMA_PeriodLongerThanSeries(t *testing.T) {
	out := SMA([]float64{1, 2}, 5)
	for i, v := range out {
		if Defined(v) {
			t.Errorf("bar %d: expected all-undefined for short series, got %.4f", i, v)
		}
	}
}

func TestEMA_SeededWithSMA(t *testing.T) {
	closes := constSeries(10, 100)
	out := EMA(closes, 5)

	for i := 0; i < 4; i++ {
		if Defined(out[i]) {
			t.Errorf("bar %d: expected undefined during warm-up", i)
		}
	}
	for i := 4; i < 10; i++ {
		if math.Abs(out[i]-100) > 1e-9 {
			t.Errorf("bar %d: expected EMA=100, got %.4f", i, out[i])
		}
	}
}

func TestEMA_ConvergesTowardPrice(t *testing.T) {
	closes := constSeries(50, 100)
	closes = append(closes, constSeries(50, 200)...)
	out := EMA(closes, 10)

	last := out[len(out)-1]
	if math.Abs(last-200) > 0.1 {
		t.Errorf("expected EMA to converge near 200, got %.4f", last)
	}
	if out[55] <= 100 || out[55] >= 200 {
		t.Errorf("expected EMA mid-transition between 100 and 200, got %.4f", out[55])
	}
}

func TestRSI_WarmupAndAllGains(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	out := RSI(closes, 14)

	for i := 0; i < 14; i++ {
		if Defined(out[i]) {
			t.Errorf("bar %d: expected undefined before period bars accumulated", i)
		}
	}
	for i := 14; i < 30; i++ {
		if math.Abs(out[i]-100) > 1e-9 {
			t.Errorf("bar %d: monotonic gains should give RSI=100, got %.4f", i, out[i])
		}
	}
}

func TestRSI_Range(t *testing.T) {
	closes := []float64{44, 44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10,
		45.42, 45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00, 46.03,
		46.41, 46.22, 45.64}
	out := RSI(closes, 14)

	for i := 14; i < len(out); i++ {
		if !Defined(out[i]) {
			t.Fatalf("bar %d: expected defined RSI", i)
		}
		if out[i] < 0 || out[i] > 100 {
			t.Errorf("bar %d: RSI out of range: %.4f", i, out[i])
		}
	}
}

func TestMACD_WarmupBoundaries(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i)/5)*10
	}
	line, signal, hist := MACD(closes, 12, 26, 9)

	if Defined(line[24]) {
		t.Error("MACD line defined before slow EMA warm-up")
	}
	if !Defined(line[25]) {
		t.Error("MACD line undefined at bar slow-1")
	}
	if Defined(signal[32]) {
		t.Error("signal line defined before its own warm-up")
	}
	if !Defined(signal[33]) || !Defined(hist[33]) {
		t.Error("signal/histogram undefined at bar slow+signal-2")
	}
	for i := 33; i < 60; i++ {
		if math.Abs(hist[i]-(line[i]-signal[i])) > 1e-9 {
			t.Errorf("bar %d: histogram != line-signal", i)
		}
	}
}

func TestMACD_FlatSeriesIsZero(t *testing.T) {
	line, signal, hist := MACD(constSeries(60, 50), 12, 26, 9)
	for i := 40; i < 60; i++ {
		if math.Abs(line[i]) > 1e-9 || math.Abs(signal[i]) > 1e-9 || math.Abs(hist[i]) > 1e-9 {
			t.Errorf("bar %d: flat series should give zero MACD, got line=%.6f signal=%.6f hist=%.6f",
				i, line[i], signal[i], hist[i])
		}
	}
}

func TestBollinger_ConstantSeries(t *testing.T) {
	bb := Bollinger(constSeries(25, 100), 20, 2)

	for i := 0; i < 19; i++ {
		if Defined(bb.Mid[i]) {
			t.Errorf("bar %d: expected undefined during warm-up", i)
		}
	}
	for i := 19; i < 25; i++ {
		if math.Abs(bb.Mid[i]-100) > 1e-9 {
			t.Errorf("bar %d: expected mid=100, got %.4f", i, bb.Mid[i])
		}
		if math.Abs(bb.Upper[i]-bb.Lower[i]) > 1e-9 {
			t.Errorf("bar %d: zero-variance window should collapse the band", i)
		}
		if math.Abs(bb.PctB[i]-0.5) > 1e-9 {
			t.Errorf("bar %d: zero-width band should give PctB=0.5, got %.4f", i, bb.PctB[i])
		}
	}
}

func TestBollinger_PctBClipped(t *testing.T) {
	// 19 flat bars, then a violent spike: close far above the upper band.
	closes := constSeries(19, 100)
	closes = append(closes, 500)
	bb := Bollinger(closes, 20, 2)

	i := len(closes) - 1
	if !Defined(bb.PctB[i]) {
		t.Fatal("expected defined PctB at last bar")
	}
	if bb.PctB[i] != 1 {
		t.Errorf("expected PctB clipped to 1, got %.4f", bb.PctB[i])
	}
	if bb.Upper[i] <= bb.Mid[i] || bb.Lower[i] >= bb.Mid[i] {
		t.Error("expected upper > mid > lower on a non-degenerate window")
	}
	if bb.Bandwidth[i] <= 0 {
		t.Errorf("expected positive bandwidth, got %.4f", bb.Bandwidth[i])
	}
}
