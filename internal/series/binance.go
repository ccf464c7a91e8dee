package series

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"quantengine/internal/model"
)

const (
	defaultBinanceBaseURL = "https://api.binance.com"
	binancePageLimit      = 1000 // hard upstream cap per klines request
)

// BinanceConfig configures the primary klines provider.
type BinanceConfig struct {
	BaseURL        string
	VsCurrency     string        // quote currency for coin-id symbols, default USDT
	MaxRetries     int           // attempts per page before giving up, default 3
	RequestTimeout time.Duration // per-request bound, default 15s
	Throttle       time.Duration // pause between pages, default 120ms
}

// Binance fetches OHLCV from the Binance spot klines endpoint, paginating
// the requested range in pageLimit-sized windows.
type Binance struct {
	cfg    BinanceConfig
	client *http.Client
}

// NewBinance creates the primary provider.
func NewBinance(cfg BinanceConfig) *Binance {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBinanceBaseURL
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "USDT"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = 120 * time.Millisecond
	}
	return &Binance{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (b *Binance) Name() string { return "binance" }

// Fetch paginates klines over [start, end]. Either the full range comes
// back or an error does; a window failure never yields a partial series.
func (b *Binance) Fetch(ctx context.Context, symbol, interval string, start, end time.Time) (*model.Series, error) {
	pair, ok := BinancePair(symbol, b.cfg.VsCurrency)
	if !ok {
		return nil, fmt.Errorf("%w: no binance pair for %q", ErrUnsupported, symbol)
	}
	step, err := model.IntervalDuration(interval)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	start = start.UTC()
	end = end.UTC()
	window := step * binancePageLimit

	var candles []model.Candle
	cur := start
	for cur.Before(end) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		winEnd := cur.Add(window - time.Millisecond)
		if winEnd.After(end) {
			winEnd = end
		}

		rows, err := b.klines(ctx, pair, interval, cur, winEnd)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			candles = append(candles, rows...)
			next := rows[len(rows)-1].TS.Add(step)
			if !next.After(cur) {
				break
			}
			cur = next
		} else {
			// Empty window: the instrument may not have traded yet in this
			// stretch. Skip past it; later windows can still hold data.
			cur = winEnd.Add(time.Millisecond)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.cfg.Throttle):
		}
	}

	candles = clampCandles(candles, start, end)
	if len(candles) == 0 {
		return nil, fmt.Errorf("binance: no candles for %s@%s in %s..%s",
			pair, interval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return &model.Series{
		Symbol:            symbol,
		Interval:          interval,
		EffectiveInterval: interval,
		Candles:           candles,
	}, nil
}

// klines requests one page, retrying transient failures up to the bound.
func (b *Binance) klines(ctx context.Context, pair, interval string, start, end time.Time) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", pair)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(binancePageLimit))
	reqURL := b.cfg.BaseURL + "/api/v3/klines?" + q.Encode()

	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxRetries; attempt++ {
		rows, retryable, err := b.klinesOnce(ctx, reqURL)
		if err == nil {
			return rows, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		log.Printf("[binance] %s@%s attempt %d/%d failed: %v", pair, interval, attempt, b.cfg.MaxRetries, err)

		backoff := time.Duration(attempt) * 500 * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("binance klines: retries exhausted: %w", lastErr)
}

func (b *Binance) klinesOnce(ctx context.Context, reqURL string) (rows []model.Candle, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("binance klines: create request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("binance klines: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		// Unknown symbol/interval is permanent, fall through to secondary.
		return nil, false, fmt.Errorf("%w: binance status %d", ErrUnsupported, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("binance klines: status %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("binance klines: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("binance klines: read body: %w", err)
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false, fmt.Errorf("binance klines: decode: %w", err)
	}

	rows = make([]model.Candle, 0, len(raw))
	for _, kline := range raw {
		c, err := parseKline(kline)
		if err != nil {
			return nil, false, err
		}
		rows = append(rows, c)
	}
	return rows, false, nil
}

// parseKline decodes one kline row:
// [openTime, open, high, low, close, volume, closeTime, ...]. Open time is
// a millisecond epoch number; prices and volume arrive as strings.
func parseKline(row []any) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("binance klines: short row (%d fields)", len(row))
	}
	openMs, ok := row[0].(float64)
	if !ok {
		return model.Candle{}, fmt.Errorf("binance klines: bad open time %v", row[0])
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		s, ok := row[i+1].(string)
		if !ok {
			return model.Candle{}, fmt.Errorf("binance klines: bad field %d: %v", i+1, row[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("binance klines: parse field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return model.Candle{
		TS:     time.UnixMilli(int64(openMs)).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
