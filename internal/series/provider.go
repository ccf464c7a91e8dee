// Package series acquires contiguous, gap-tolerant OHLCV price series with
// fallback between two upstream providers.
//
// The primary (Binance klines) serves any interval but caps each request at
// a fixed candle count, so ranges are paginated in bounded windows. The
// secondary (CoinGecko market chart) covers more symbols but only hourly or
// daily granularity; when the pipeline falls back, the served interval is
// downgraded and the resulting Series carries a Degraded flag so callers
// can detect it. All timestamps are normalized to UTC. Missing upstream
// candles stay missing, nothing is interpolated.
package series

import (
	"context"
	"errors"
	"time"

	"quantengine/internal/model"
)

// ErrUnsupported marks a permanent per-provider refusal (unknown symbol,
// unservable interval). It is not retried; the source falls through to the
// next provider.
var ErrUnsupported = errors.New("unsupported by provider")

// Provider fetches a price series from one upstream.
//
// Outcomes are typed: a nil error is success; ErrUnsupported (wrapped) is a
// permanent refusal; anything else is a transport/upstream failure that the
// provider has already retried up to its bound.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol, interval string, start, end time.Time) (*model.Series, error)
}

// clampCandles filters candles to [start, end] and enforces strictly
// increasing timestamps, dropping duplicates and out-of-order rows.
func clampCandles(candles []model.Candle, start, end time.Time) []model.Candle {
	out := make([]model.Candle, 0, len(candles))
	var last time.Time
	for _, c := range candles {
		if c.TS.Before(start) || c.TS.After(end) {
			continue
		}
		if !last.IsZero() && !c.TS.After(last) {
			continue
		}
		out = append(out, c)
		last = c.TS
	}
	return out
}
