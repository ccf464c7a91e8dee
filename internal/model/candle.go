// Package model defines the value types that flow through the backtest
// pipeline: candles, price series, signals, trades and results.
//
// Every entity here is produced by one pipeline stage and consumed read-only
// downstream. Nothing is mutated after it crosses a component boundary.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Candle represents one OHLCV bar for a symbol at a given interval.
// Timestamps are always UTC and mark the bar's open time.
type Candle struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is an ordered, gap-tolerant sequence of candles for one
// symbol+interval+range. Timestamps are strictly increasing with no
// duplicates. Missing upstream candles remain absent, never interpolated.
type Series struct {
	Symbol string `json:"symbol"`
	// Interval is what the caller asked for (e.g. "4h").
	Interval string `json:"interval"`
	// EffectiveInterval is what was actually served. It differs from
	// Interval only when the fallback provider degraded granularity.
	EffectiveInterval string   `json:"effective_interval"`
	Degraded          bool     `json:"degraded"`
	Candles           []Candle `json:"candles"`
}

// Len returns the number of candles.
func (s *Series) Len() int { return len(s.Candles) }

// Closes extracts the close column as a new slice.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i := range s.Candles {
		out[i] = s.Candles[i].Close
	}
	return out
}

// Timestamps extracts the bar timestamps as a new slice.
func (s *Series) Timestamps() []time.Time {
	out := make([]time.Time, len(s.Candles))
	for i := range s.Candles {
		out[i] = s.Candles[i].TS
	}
	return out
}

// IntervalDuration parses a Binance-style interval string ("1m", "4h",
// "1d", "1w") into a duration.
func IntervalDuration(interval string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(interval))
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	switch s[len(s)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid interval %q", interval)
}
