// Package rule turns indicator series into discrete trading signals and
// combines several of them with boolean logic.
//
// A rule maps indicator outputs to a per-bar trinary signal (+1 bullish,
// 0 neutral, -1 bearish). Undefined indicator bars never produce a signal.
// Rule specs are validated up front: an unknown rule name or combinator is
// rejected before any computation begins.
package rule

import (
	"fmt"
	"strings"

	"quantengine/internal/model"
)

// Logic is a closed set of signal combinators.
type Logic uint8

const (
	// LogicAnd is bullish/bearish only where every rule agrees.
	LogicAnd Logic = iota
	// LogicOr is bullish where at least one rule is bullish and none is
	// bearish, and symmetrically for bearish.
	LogicOr
)

func (l Logic) String() string {
	if l == LogicOr {
		return "or"
	}
	return "and"
}

// ParseLogic parses "and"/"or". Anything else is an invalid rule spec.
func ParseLogic(s string) (Logic, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "and":
		return LogicAnd, nil
	case "or":
		return LogicOr, nil
	}
	return LogicAnd, fmt.Errorf("%w: unknown combinator %q", model.ErrInvalidRuleSpec, s)
}

// Built-in rule names.
const (
	RuleMACDCross = "macd_cross"
	RuleRSI       = "rsi"
	RuleBollinger = "bollinger"
	RuleMACross   = "ma_cross"
)

var knownRules = map[string]bool{
	RuleMACDCross: true,
	RuleRSI:       true,
	RuleBollinger: true,
	RuleMACross:   true,
}

// Spec names the rules to evaluate and how to combine their outputs.
type Spec struct {
	Logic   Logic
	Signals []string
}

// ParseSpec validates a raw logic string and rule name list into a Spec.
func ParseSpec(logic string, signals []string) (Spec, error) {
	l, err := ParseLogic(logic)
	if err != nil {
		return Spec{}, err
	}
	if len(signals) == 0 {
		return Spec{}, fmt.Errorf("%w: no signals named", model.ErrInvalidRuleSpec)
	}
	for _, name := range signals {
		if !knownRules[strings.ToLower(name)] {
			return Spec{}, fmt.Errorf("%w: unknown rule %q", model.ErrInvalidRuleSpec, name)
		}
	}
	out := Spec{Logic: l, Signals: make([]string, len(signals))}
	for i, name := range signals {
		out.Signals[i] = strings.ToLower(name)
	}
	return out, nil
}

// Params holds the numeric parameters of the built-in rules.
type Params struct {
	RSIPeriod     int
	RSIOversold   float64
	RSIOverbought float64

	MACDFast   int
	MACDSlow   int
	MACDSignal int

	BBPeriod int
	BBStdDev float64

	MAFast int
	MASlow int
}

// DefaultParams returns the conventional parameter set.
func DefaultParams() Params {
	return Params{
		RSIPeriod:     14,
		RSIOversold:   30,
		RSIOverbought: 70,
		MACDFast:      12,
		MACDSlow:      26,
		MACDSignal:    9,
		BBPeriod:      20,
		BBStdDev:      2,
		MAFast:        12,
		MASlow:        26,
	}
}

func (p Params) validate() error {
	if p.RSIPeriod < 1 || p.MACDFast < 1 || p.MACDSlow < 1 || p.MACDSignal < 1 ||
		p.BBPeriod < 1 || p.MAFast < 1 || p.MASlow < 1 {
		return fmt.Errorf("%w: indicator periods must be >= 1", model.ErrInvalidRuleSpec)
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("%w: macd fast period must be below slow", model.ErrInvalidRuleSpec)
	}
	if p.MAFast >= p.MASlow {
		return fmt.Errorf("%w: ma fast period must be below slow", model.ErrInvalidRuleSpec)
	}
	return nil
}

// WarmupBars returns the number of leading bars the spec's rules need
// before any of them can produce a defined, crossable value.
func (s Spec) WarmupBars(p Params) int {
	max := 0
	for _, name := range s.Signals {
		var w int
		switch name {
		case RuleMACDCross:
			w = p.MACDSlow + p.MACDSignal - 1
		case RuleRSI:
			w = p.RSIPeriod + 1
		case RuleBollinger:
			w = p.BBPeriod
		case RuleMACross:
			w = p.MASlow
		}
		if w > max {
			max = w
		}
	}
	return max
}

// CheckHistory reports ErrInsufficientHistory when a series of n bars cannot
// produce a single defined signal for this spec. The evaluation itself still
// succeeds with an all-neutral output; this is advisory for callers.
func (s Spec) CheckHistory(n int, p Params) error {
	if need := s.WarmupBars(p) + 1; n < need {
		return fmt.Errorf("%w: rules %v need %d bars, have %d",
			model.ErrInsufficientHistory, s.Signals, need, n)
	}
	return nil
}
