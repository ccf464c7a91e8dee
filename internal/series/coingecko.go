package series

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"quantengine/internal/model"
)

const (
	defaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"

	// Granularity pivot: the market chart endpoint serves hourly points for
	// spans up to 90 days and daily beyond that.
	coinGeckoHourlyMaxDays = 90
)

// CoinGeckoConfig configures the fallback provider.
type CoinGeckoConfig struct {
	BaseURL         string
	APIKey          string
	APIKeyHeader    string        // inferred from BaseURL when empty
	MaxRetries      int           // default 3
	BackoffBase     time.Duration // default 500ms, doubled each attempt
	RequestTimeout  time.Duration // default 20s
	MaxLookbackDays int           // default 365, range starts clamp here
}

// CoinGecko fetches price and volume points from the market chart endpoint
// and buckets them into OHLCV candles at hourly or daily granularity.
type CoinGecko struct {
	cfg    CoinGeckoConfig
	client *http.Client
}

// NewCoinGecko creates the fallback provider. When no key header is given
// it is inferred from the base URL: pro hosts take the pro key header,
// everything else the demo one.
func NewCoinGecko(cfg CoinGeckoConfig) *CoinGecko {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCoinGeckoBaseURL
	}
	if cfg.APIKeyHeader == "" {
		if strings.Contains(cfg.BaseURL, "pro-api") {
			cfg.APIKeyHeader = "x-cg-pro-api-key"
		} else {
			cfg.APIKeyHeader = "x-cg-demo-api-key"
		}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	if cfg.MaxLookbackDays <= 0 {
		cfg.MaxLookbackDays = 365
	}
	return &CoinGecko{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (g *CoinGecko) Name() string { return "coingecko" }

// EffectiveInterval reports the granularity this provider would serve for a
// span: "1h" up to the hourly pivot, "1d" beyond it.
func EffectiveInterval(start, end time.Time) string {
	if end.Sub(start) <= coinGeckoHourlyMaxDays*24*time.Hour {
		return "1h"
	}
	return "1d"
}

// Fetch serves only the "1h" and "1d" intervals; anything finer is a
// permanent refusal. Candles are bucketed from the endpoint's raw price
// points, so open/high/low/close all derive from trade prices inside the
// bucket and volumes are summed.
func (g *CoinGecko) Fetch(ctx context.Context, symbol, interval string, start, end time.Time) (*model.Series, error) {
	id, ok := CoinGeckoID(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: no coingecko id for %q", ErrUnsupported, symbol)
	}
	var bucket time.Duration
	switch interval {
	case "1h":
		bucket = time.Hour
	case "1d":
		bucket = 24 * time.Hour
	default:
		return nil, fmt.Errorf("%w: coingecko cannot serve interval %q", ErrUnsupported, interval)
	}

	start = start.UTC()
	end = end.UTC()
	if floor := time.Now().UTC().AddDate(0, 0, -g.cfg.MaxLookbackDays); start.Before(floor) {
		log.Printf("[coingecko] clamping %s start %s to %d-day lookback",
			id, start.Format(time.RFC3339), g.cfg.MaxLookbackDays)
		start = floor
	}

	days := int(math.Ceil(time.Now().UTC().Sub(start).Hours() / 24))
	if days < 1 {
		days = 1
	}
	if days > g.cfg.MaxLookbackDays {
		days = g.cfg.MaxLookbackDays
	}

	chart, err := g.marketChart(ctx, id, days)
	if err != nil {
		return nil, err
	}

	candles := bucketChart(chart, bucket)
	candles = clampCandles(candles, start, end)
	if len(candles) == 0 {
		return nil, fmt.Errorf("coingecko: no candles for %s@%s in %s..%s",
			id, interval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return &model.Series{
		Symbol:            symbol,
		Interval:          interval,
		EffectiveInterval: interval,
		Candles:           candles,
	}, nil
}

type marketChart struct {
	Prices       [][2]float64 `json:"prices"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

func (g *CoinGecko) marketChart(ctx context.Context, id string, days int) (*marketChart, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", strconv.Itoa(days))
	reqURL := fmt.Sprintf("%s/coins/%s/market_chart?%s", g.cfg.BaseURL, url.PathEscape(id), q.Encode())

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		chart, retryable, err := g.marketChartOnce(ctx, reqURL)
		if err == nil {
			return chart, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		log.Printf("[coingecko] %s attempt %d/%d failed: %v", id, attempt, g.cfg.MaxRetries, err)

		backoff := g.cfg.BackoffBase * time.Duration(1<<(attempt-1))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("coingecko market_chart: retries exhausted: %w", lastErr)
}

func (g *CoinGecko) marketChartOnce(ctx context.Context, reqURL string) (chart *marketChart, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("coingecko market_chart: create request: %w", err)
	}
	if g.cfg.APIKey != "" {
		req.Header.Set(g.cfg.APIKeyHeader, g.cfg.APIKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("coingecko market_chart: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, false, fmt.Errorf("%w: coingecko status %d", ErrUnsupported, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("coingecko market_chart: status %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("coingecko market_chart: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("coingecko market_chart: read body: %w", err)
	}
	var out marketChart
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, false, fmt.Errorf("coingecko market_chart: decode: %w", err)
	}
	return &out, false, nil
}

// bucketChart folds raw [ms, value] price points into fixed-width OHLC
// buckets and attaches the sum of volume points landing in each bucket.
// Empty buckets produce no candle.
func bucketChart(chart *marketChart, width time.Duration) []model.Candle {
	type agg struct {
		open, high, low, close float64
		volume                 float64
		seen                   bool
	}
	buckets := make(map[int64]*agg)

	floor := func(ms float64) int64 {
		return time.UnixMilli(int64(ms)).UTC().Truncate(width).Unix()
	}

	for _, p := range chart.Prices {
		ts, price := floor(p[0]), p[1]
		a := buckets[ts]
		if a == nil {
			a = &agg{open: price, high: price, low: price}
			buckets[ts] = a
		}
		if price > a.high {
			a.high = price
		}
		if price < a.low {
			a.low = price
		}
		a.close = price
		a.seen = true
	}
	for _, v := range chart.TotalVolumes {
		if a := buckets[floor(v[0])]; a != nil {
			a.volume += v[1]
		}
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		if buckets[k].seen {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]model.Candle, 0, len(keys))
	for _, k := range keys {
		a := buckets[k]
		out = append(out, model.Candle{
			TS:     time.Unix(k, 0).UTC(),
			Open:   a.open,
			High:   a.high,
			Low:    a.low,
			Close:  a.close,
			Volume: a.volume,
		})
	}
	return out
}
