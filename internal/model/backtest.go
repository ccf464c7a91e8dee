package model

import "time"

// Signal is a per-bar trinary trading signal.
type Signal int8

const (
	SignalBearish Signal = -1
	SignalNeutral Signal = 0
	SignalBullish Signal = 1
)

// Trade is one closed round trip. Prices are fee-adjusted execution prices.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	ProfitPct  float64   `json:"profit_pct"`
}

// OpenPosition describes a position still open at series end. It contributes
// to the equity curve mark-to-close but never to the Trades ledger.
type OpenPosition struct {
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
}

// BacktestResult is the complete, immutable outcome of one simulation run.
// EquityCurve is index-aligned with the price series the run consumed.
type BacktestResult struct {
	Trades      []Trade       `json:"trades"`
	Open        *OpenPosition `json:"open_position,omitempty"`
	EquityCurve []float64     `json:"equity_curve"`
	PnL         float64       `json:"pnl"`
	WinRate     float64       `json:"win_rate"`
	MaxDrawdown float64       `json:"max_drawdown"`
	Sharpe      float64       `json:"sharpe"`
}

// Example is one historical signal occurrence with its forward outcome and
// a rendered chart artifact reference. OutcomePct is nil when the lookahead
// window runs past the end of the series.
type Example struct {
	TS         time.Time `json:"timestamp"`
	Signal     Signal    `json:"signal"`
	OutcomePct *float64  `json:"outcome_pct"`
	Artifact   string    `json:"artifact"`
}
