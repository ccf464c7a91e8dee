// Package backtest simulates a long-only strategy against a combined signal
// series and produces a trade ledger, an equity curve, and summary metrics.
//
// The simulator is a two-state machine (Flat/Long) walked bar-by-bar in
// chronological order. Executions happen at the NEXT bar's close, so a
// signal can never be filled with same-bar information. Identical inputs always
// produce identical results: no randomness, no wall-clock reads.
package backtest

import (
	"quantengine/internal/model"
)

// Config holds the simulation parameters.
type Config struct {
	// InitialCapital is the starting equity. Defaults to 10000 when zero.
	InitialCapital float64
	// FeePct is a proportional fee applied to both the entry and the exit
	// execution price (e.g. 0.001 = 10 bps per side).
	FeePct float64
}

// Run walks the combined signal and price series together. The two slices
// must be index-aligned; combined may be shorter only if the caller
// truncated it, in which case trailing bars are treated as neutral.
func Run(series *model.Series, combined []model.Signal, cfg Config) *model.BacktestResult {
	capital := cfg.InitialCapital
	if capital <= 0 {
		capital = 10000
	}

	candles := series.Candles
	n := len(candles)
	equity := make([]float64, n)

	var trades []model.Trade
	var open *model.OpenPosition
	realized := capital

	signalAt := func(i int) model.Signal {
		if i < len(combined) {
			return combined[i]
		}
		return model.SignalNeutral
	}

	for i := 0; i < n; i++ {
		// Execute against this bar's close any signal raised on the
		// previous bar (one-bar execution lag).
		if i > 0 {
			switch sig := signalAt(i - 1); {
			case sig == model.SignalBullish && open == nil:
				open = &model.OpenPosition{
					EntryTime:  candles[i].TS,
					EntryPrice: candles[i].Close * (1 + cfg.FeePct),
				}
			case sig == model.SignalBearish && open != nil:
				exitPrice := candles[i].Close * (1 - cfg.FeePct)
				profit := (exitPrice - open.EntryPrice) / open.EntryPrice
				trades = append(trades, model.Trade{
					EntryTime:  open.EntryTime,
					ExitTime:   candles[i].TS,
					EntryPrice: open.EntryPrice,
					ExitPrice:  exitPrice,
					ProfitPct:  profit,
				})
				realized *= 1 + profit
				open = nil
			}
		}

		if open != nil {
			// Unrealized mark-to-close.
			equity[i] = realized * (candles[i].Close / open.EntryPrice)
		} else {
			equity[i] = realized
		}
	}

	// A position still open at series end stays open: it shaped the equity
	// curve above but is excluded from the closed-trade ledger.
	result := &model.BacktestResult{
		Trades:      trades,
		Open:        open,
		EquityCurve: equity,
		WinRate:     winRate(trades),
		MaxDrawdown: maxDrawdown(equity),
		Sharpe:      sharpe(equity),
	}
	if n > 0 {
		result.PnL = equity[n-1]/capital - 1
	}
	return result
}
