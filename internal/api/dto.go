package api

import (
	"fmt"
	"strconv"
	"time"

	"quantengine/internal/model"
)

// RuleSpecDTO is the wire form of a rule spec.
type RuleSpecDTO struct {
	Logic   string   `json:"logic"`
	Signals []string `json:"signals"`
}

// BacktestRequest is the inbound body for /api/backtest/run and
// /api/backtest/examples. Start and End accept RFC3339 or unix seconds.
type BacktestRequest struct {
	Symbol   string      `json:"symbol"`
	Interval string      `json:"interval"`
	Start    string      `json:"start"`
	End      string      `json:"end"`
	Rule     RuleSpecDTO `json:"rule"`

	InitialCapital float64 `json:"initial_capital"`
	FeePct         float64 `json:"fee_pct"`

	// Examples endpoint only.
	NumExamples   int `json:"num_examples"`
	LookaheadBars int `json:"lookahead_bars"`
}

// BacktestResponse wraps a simulation result with the served series facts.
type BacktestResponse struct {
	Symbol            string                `json:"symbol"`
	Interval          string                `json:"interval"`
	EffectiveInterval string                `json:"effective_interval"`
	Degraded          bool                  `json:"degraded"`
	Warning           string                `json:"warning,omitempty"`
	Result            *model.BacktestResult `json:"result"`
}

// ExamplesResponse wraps extracted examples with the served series facts.
type ExamplesResponse struct {
	Symbol            string          `json:"symbol"`
	Interval          string          `json:"interval"`
	EffectiveInterval string          `json:"effective_interval"`
	Degraded          bool            `json:"degraded"`
	Warning           string          `json:"warning,omitempty"`
	Examples          []model.Example `json:"examples"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// parseTime accepts RFC3339 timestamps or unix seconds.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q (want RFC3339 or unix seconds)", s)
}
