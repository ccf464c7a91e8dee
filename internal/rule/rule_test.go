package rule

import (
	"errors"
	"math"
	"testing"
	"time"

	"quantengine/internal/model"
)

func TestParseSpec_RejectsUnknowns(t *testing.T) {
	if _, err := ParseSpec("xor", []string{RuleRSI}); !errors.Is(err, model.ErrInvalidRuleSpec) {
		t.Errorf("unknown combinator: expected ErrInvalidRuleSpec, got %v", err)
	}
	if _, err := ParseSpec("and", []string{"momentum_blast"}); !errors.Is(err, model.ErrInvalidRuleSpec) {
		t.Errorf("unknown rule: expected ErrInvalidRuleSpec, got %v", err)
	}
	if _, err := ParseSpec("and", nil); !errors.Is(err, model.ErrInvalidRuleSpec) {
		t.Errorf("empty rule list: expected ErrInvalidRuleSpec, got %v", err)
	}

	spec, err := ParseSpec("OR", []string{"MACD_CROSS", "rsi"})
	if err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if spec.Logic != LogicOr || spec.Signals[0] != RuleMACDCross {
		t.Errorf("expected normalized spec, got %+v", spec)
	}
}

func TestCross_MutuallyExclusive(t *testing.T) {
	a := []float64{1, 3, 1, 2, 5}
	b := []float64{2, 2, 2, 2, 2}

	for i := range a {
		up := CrossUp(a, b, i)
		down := CrossDown(a, b, i)
		if up && down {
			t.Errorf("bar %d: cross up and down both true", i)
		}
	}
	if !CrossUp(a, b, 1) {
		t.Error("expected cross up at bar 1 (1<=2 then 3>2)")
	}
	if !CrossDown(a, b, 2) {
		t.Error("expected cross down at bar 2 (3>=2 then 1<2)")
	}
	if !CrossUp(a, b, 4) {
		t.Error("expected cross up at bar 4 (2<=2 then 5>2)")
	}
}

func TestCross_TouchThenBreak(t *testing.T) {
	// Touching the level (equal) then breaking above counts as a cross up.
	a := []float64{2, 3}
	b := []float64{2, 2}
	if !CrossUp(a, b, 1) {
		t.Error("equal-then-above should be a cross up")
	}
	if CrossDown(a, b, 1) {
		t.Error("equal-then-above must not be a cross down")
	}
}

func TestCross_UndefinedNeverCrosses(t *testing.T) {
	nan := math.NaN()
	a := []float64{nan, 3, 3, nan}
	b := []float64{2, 2, nan, 2}

	for i := range a {
		if CrossUp(a, b, i) || CrossDown(a, b, i) {
			t.Errorf("bar %d: undefined input produced a crossing", i)
		}
	}
	if CrossUp(a, b, 0) {
		t.Error("bar 0 can never cross")
	}
}

func sigs(vals ...int) []model.Signal {
	out := make([]model.Signal, len(vals))
	for i, v := range vals {
		out[i] = model.Signal(v)
	}
	return out
}

func TestCombine_And(t *testing.T) {
	s1 := sigs(0, 1, 1, -1, -1, 1)
	s2 := sigs(0, 1, 0, -1, 1, -1)
	got := Combine(LogicAnd, [][]model.Signal{s1, s2})
	want := sigs(0, 1, 0, -1, 0, 0)

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bar %d: and-combine expected %d, got %d", i, want[i], got[i])
		}
	}

	// Symmetry: argument order must not matter.
	flipped := Combine(LogicAnd, [][]model.Signal{s2, s1})
	for i := range want {
		if flipped[i] != got[i] {
			t.Errorf("bar %d: and-combine is not symmetric", i)
		}
	}
}

func TestCombine_OrRequiresNoContradiction(t *testing.T) {
	s1 := sigs(0, 1, 1, 0, -1, 0)
	s2 := sigs(0, 0, -1, -1, -1, 0)
	got := Combine(LogicOr, [][]model.Signal{s1, s2})
	// bar 2: one bullish + one bearish vote → neutral, never bullish
	want := sigs(0, 1, 0, -1, -1, 0)

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bar %d: or-combine expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestCombine_AllNeutral(t *testing.T) {
	s := sigs(0, 0, 0)
	for _, logic := range []Logic{LogicAnd, LogicOr} {
		got := Combine(logic, [][]model.Signal{s, s, s})
		for i, v := range got {
			if v != model.SignalNeutral {
				t.Errorf("%s bar %d: all-neutral inputs gave %d", logic, i, v)
			}
		}
	}
}

func testSeries(closes []float64) *model.Series {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, len(closes))
	for i, c := range closes {
		candles[i] = model.Candle{
			TS: base.Add(time.Duration(i) * time.Hour),
			Open: c, High: c, Low: c, Close: c, Volume: 1,
		}
	}
	return &model.Series{
		Symbol: "BTCUSDT", Interval: "1h", EffectiveInterval: "1h",
		Candles: candles,
	}
}

func TestEvaluate_ShortSeriesAllNeutral(t *testing.T) {
	spec, err := ParseSpec("and", []string{RuleMACDCross})
	if err != nil {
		t.Fatal(err)
	}
	series := testSeries([]float64{1, 2, 3, 4, 5})
	p := DefaultParams()

	if err := spec.CheckHistory(series.Len(), p); !errors.Is(err, model.ErrInsufficientHistory) {
		t.Errorf("expected ErrInsufficientHistory for 5 bars, got %v", err)
	}

	combined, _, err := Evaluate(spec, series, p)
	if err != nil {
		t.Fatalf("short series must not fail evaluation: %v", err)
	}
	if len(combined) != series.Len() {
		t.Fatalf("combined length %d != series length %d", len(combined), series.Len())
	}
	for i, s := range combined {
		if s != model.SignalNeutral {
			t.Errorf("bar %d: expected neutral on all-undefined indicators, got %d", i, s)
		}
	}
}

func TestEvaluate_MACrossFiresOnTrendFlip(t *testing.T) {
	// Long decline then a sharp sustained rally: fast EMA must cross up
	// through the slow SMA somewhere in the rally.
	closes := make([]float64, 0, 120)
	for i := 0; i < 60; i++ {
		closes = append(closes, 200-float64(i))
	}
	for i := 0; i < 60; i++ {
		closes = append(closes, 140+3*float64(i))
	}

	spec, err := ParseSpec("and", []string{RuleMACross})
	if err != nil {
		t.Fatal(err)
	}
	combined, ind, err := Evaluate(spec, testSeries(closes), DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if ind.FastMA == nil || ind.SlowMA == nil {
		t.Fatal("expected MA series populated in the indicator set")
	}

	bullish := 0
	for _, s := range combined {
		if s == model.SignalBullish {
			bullish++
		}
	}
	if bullish == 0 {
		t.Error("expected at least one bullish ma_cross during the rally")
	}
}

func TestEvaluate_RejectsBadParams(t *testing.T) {
	spec, _ := ParseSpec("and", []string{RuleRSI})
	p := DefaultParams()
	p.RSIPeriod = 0
	if _, _, err := Evaluate(spec, testSeries([]float64{1, 2, 3}), p); !errors.Is(err, model.ErrInvalidRuleSpec) {
		t.Errorf("expected ErrInvalidRuleSpec for zero period, got %v", err)
	}
}
