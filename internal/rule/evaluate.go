package rule

import (
	"quantengine/internal/indicator"
	"quantengine/internal/model"
)

// IndicatorSet carries the indicator series computed during an evaluation,
// so downstream consumers (charts, API responses) reuse them instead of
// recomputing. Only the series the named rules needed are populated.
type IndicatorSet struct {
	MACDLine   []float64
	MACDSignal []float64
	MACDHist   []float64

	RSI []float64

	Bollinger *indicator.BollingerBands

	FastMA []float64
	SlowMA []float64
}

// Evaluate computes each named rule's signal series over the price series
// and combines them with the spec's logic. The spec must already be parsed;
// parameter misconfiguration is still rejected here before any computation.
func Evaluate(spec Spec, series *model.Series, p Params) ([]model.Signal, *IndicatorSet, error) {
	if err := p.validate(); err != nil {
		return nil, nil, err
	}

	closes := series.Closes()
	ind := &IndicatorSet{}
	outputs := make([][]model.Signal, 0, len(spec.Signals))

	for _, name := range spec.Signals {
		switch name {
		case RuleMACDCross:
			if ind.MACDLine == nil {
				ind.MACDLine, ind.MACDSignal, ind.MACDHist = indicator.MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
			}
			outputs = append(outputs, macdCross(ind.MACDLine, ind.MACDSignal))
		case RuleRSI:
			if ind.RSI == nil {
				ind.RSI = indicator.RSI(closes, p.RSIPeriod)
			}
			outputs = append(outputs, rsiThreshold(ind.RSI, p.RSIOversold, p.RSIOverbought))
		case RuleBollinger:
			if ind.Bollinger == nil {
				bb := indicator.Bollinger(closes, p.BBPeriod, p.BBStdDev)
				ind.Bollinger = &bb
			}
			outputs = append(outputs, bollingerBreach(closes, ind.Bollinger))
		case RuleMACross:
			if ind.FastMA == nil {
				ind.FastMA = indicator.EMA(closes, p.MAFast)
				ind.SlowMA = indicator.SMA(closes, p.MASlow)
			}
			outputs = append(outputs, maCross(ind.FastMA, ind.SlowMA))
		}
	}

	return Combine(spec.Logic, outputs), ind, nil
}

// macdCross: +1 when the MACD line crosses up through its signal line,
// -1 on cross down.
func macdCross(line, signal []float64) []model.Signal {
	out := make([]model.Signal, len(line))
	for i := range out {
		switch {
		case CrossUp(line, signal, i):
			out[i] = model.SignalBullish
		case CrossDown(line, signal, i):
			out[i] = model.SignalBearish
		}
	}
	return out
}

// rsiThreshold: +1 when RSI crosses up through the oversold level (recovery
// off the bottom), -1 when it crosses down through the overbought level.
func rsiThreshold(rsi []float64, oversold, overbought float64) []model.Signal {
	out := make([]model.Signal, len(rsi))
	for i := range out {
		switch {
		case CrossUpLevel(rsi, oversold, i):
			out[i] = model.SignalBullish
		case CrossDownLevel(rsi, overbought, i):
			out[i] = model.SignalBearish
		}
	}
	return out
}

// bollingerBreach: contrarian band rule. +1 when close crosses up through
// the lower band, -1 when close crosses down through the upper band.
func bollingerBreach(closes []float64, bb *indicator.BollingerBands) []model.Signal {
	out := make([]model.Signal, len(closes))
	for i := range out {
		switch {
		case CrossUp(closes, bb.Lower, i):
			out[i] = model.SignalBullish
		case CrossDown(closes, bb.Upper, i):
			out[i] = model.SignalBearish
		}
	}
	return out
}

// maCross: golden/death cross between the fast and slow moving averages.
func maCross(fast, slow []float64) []model.Signal {
	out := make([]model.Signal, len(fast))
	for i := range out {
		switch {
		case CrossUp(fast, slow, i):
			out[i] = model.SignalBullish
		case CrossDown(fast, slow, i):
			out[i] = model.SignalBearish
		}
	}
	return out
}

// Combine folds multiple rule outputs into one combined signal series.
//
// AND: nonzero only where every rule agrees on the same direction.
// OR: bullish where at least one rule is bullish and none is bearish;
// bearish symmetrically. A bar with contradicting votes is neutral.
func Combine(logic Logic, outputs [][]model.Signal) []model.Signal {
	if len(outputs) == 0 {
		return nil
	}
	n := len(outputs[0])
	combined := make([]model.Signal, n)

	for i := 0; i < n; i++ {
		bulls, bears := 0, 0
		for _, sig := range outputs {
			switch sig[i] {
			case model.SignalBullish:
				bulls++
			case model.SignalBearish:
				bears++
			}
		}
		switch logic {
		case LogicAnd:
			if bulls == len(outputs) {
				combined[i] = model.SignalBullish
			} else if bears == len(outputs) {
				combined[i] = model.SignalBearish
			}
		case LogicOr:
			if bulls > 0 && bears == 0 {
				combined[i] = model.SignalBullish
			} else if bears > 0 && bulls == 0 {
				combined[i] = model.SignalBearish
			}
		}
	}
	return combined
}
