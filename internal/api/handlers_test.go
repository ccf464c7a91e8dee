package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quantengine/internal/logger"
	"quantengine/internal/model"
	"quantengine/internal/rule"
)

type stubFetcher struct {
	series *model.Series
	err    error
	calls  int
}

func (f *stubFetcher) Fetch(_ context.Context, symbol, interval string, _, _ time.Time) (*model.Series, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s := *f.series
	s.Symbol, s.Interval = symbol, interval
	if s.EffectiveInterval == "" {
		s.EffectiveInterval = interval
	}
	return &s, nil
}

type stubSelector struct {
	examples  []model.Example
	lastCount int
	lastLook  int
}

func (s *stubSelector) Select(_ *model.Series, _ []model.Signal, _ *rule.IndicatorSet, count, lookahead int) ([]model.Example, error) {
	s.lastCount, s.lastLook = count, lookahead
	return s.examples, nil
}

func syntheticSeries(n int) *model.Series {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, n)
	for i := range candles {
		p := 100 + 10*float64(i%9) - float64(i%4)
		candles[i] = model.Candle{TS: base.Add(time.Duration(i) * time.Hour),
			Open: p, High: p + 2, Low: p - 2, Close: p, Volume: 5}
	}
	return &model.Series{Candles: candles}
}

func newTestMux(f Fetcher, sel ExampleSelector) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandlers(f, sel, Defaults{MaxExamples: 10}, nil).RegisterRoutes(mux, "")
	return mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func validRequest() BacktestRequest {
	return BacktestRequest{
		Symbol:   "BTCUSDT",
		Interval: "1h",
		Start:    "2024-05-01T00:00:00Z",
		End:      "2024-05-05T00:00:00Z",
		Rule:     RuleSpecDTO{Logic: "or", Signals: []string{"ma_cross"}},
	}
}

func TestBacktestRun_OK(t *testing.T) {
	fetcher := &stubFetcher{series: syntheticSeries(120)}
	rec := postJSON(t, newTestMux(fetcher, &stubSelector{}), "/api/backtest/run", validRequest())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp BacktestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result == nil {
		t.Fatal("expected a result")
	}
	if len(resp.Result.EquityCurve) != 120 {
		t.Errorf("equity curve must align with the series, got %d points", len(resp.Result.EquityCurve))
	}
	if resp.Degraded {
		t.Error("stub series is not degraded")
	}
	if resp.Warning != "" {
		t.Errorf("120 bars cover the warmup, unexpected warning %q", resp.Warning)
	}
}

func TestBacktestRun_ShortSeriesWarnsButSucceeds(t *testing.T) {
	fetcher := &stubFetcher{series: syntheticSeries(5)}
	rec := postJSON(t, newTestMux(fetcher, &stubSelector{}), "/api/backtest/run", validRequest())

	if rec.Code != http.StatusOK {
		t.Fatalf("short history is advisory, expected 200, got %d", rec.Code)
	}
	var resp BacktestResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Warning == "" {
		t.Error("expected an insufficient-history warning")
	}
	for _, eq := range resp.Result.EquityCurve {
		if eq != 10000 {
			t.Fatalf("all-neutral run must hold flat equity, got %.2f", eq)
		}
	}
}

func TestBacktestRun_BadRuleFailsFast(t *testing.T) {
	fetcher := &stubFetcher{series: syntheticSeries(50)}
	req := validRequest()
	req.Rule.Signals = []string{"astrology"}
	rec := postJSON(t, newTestMux(fetcher, &stubSelector{}), "/api/backtest/run", req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp errorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Kind != "bad_rule" {
		t.Errorf("expected kind bad_rule, got %q", resp.Kind)
	}
	if fetcher.calls != 0 {
		t.Error("a bad rule spec must be rejected before any fetch")
	}
}

func TestBacktestRun_DataUnavailable(t *testing.T) {
	fetcher := &stubFetcher{err: fmt.Errorf("%w: nothing upstream", model.ErrDataUnavailable)}
	rec := postJSON(t, newTestMux(fetcher, &stubSelector{}), "/api/backtest/run", validRequest())

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var resp errorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Kind != "no_data" {
		t.Errorf("expected kind no_data, got %q", resp.Kind)
	}
}

func TestBacktestRun_BadTimestamp(t *testing.T) {
	req := validRequest()
	req.Start = "yesterday"
	rec := postJSON(t, newTestMux(&stubFetcher{series: syntheticSeries(10)}, &stubSelector{}), "/api/backtest/run", req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestBacktestExamples_ClampsCountAndDefaultsLookahead(t *testing.T) {
	sel := &stubSelector{examples: []model.Example{{Artifact: "/examples/x.png"}}}
	req := validRequest()
	req.NumExamples = 99
	rec := postJSON(t, newTestMux(&stubFetcher{series: syntheticSeries(120)}, sel), "/api/backtest/examples", req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if sel.lastCount != 10 {
		t.Errorf("expected count clamped to 10, got %d", sel.lastCount)
	}
	if sel.lastLook != 10 {
		t.Errorf("expected default lookahead 10, got %d", sel.lastLook)
	}
	var resp ExamplesResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Examples) != 1 {
		t.Errorf("expected 1 example through, got %d", len(resp.Examples))
	}
}

func TestBacktestExamples_EmptyIsNotAnError(t *testing.T) {
	rec := postJSON(t, newTestMux(&stubFetcher{series: syntheticSeries(120)}, &stubSelector{}), "/api/backtest/examples", validRequest())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ExamplesResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Examples == nil {
		t.Error("examples must encode as [] rather than null")
	}
}

type traceFetcher struct {
	stubFetcher
	traceID string
}

func (f *traceFetcher) Fetch(ctx context.Context, symbol, interval string, start, end time.Time) (*model.Series, error) {
	f.traceID = logger.TraceID(ctx)
	return f.stubFetcher.Fetch(ctx, symbol, interval, start, end)
}

func TestRequestCarriesTraceID(t *testing.T) {
	fetcher := &traceFetcher{stubFetcher: stubFetcher{series: syntheticSeries(30)}}
	rec := postJSON(t, newTestMux(fetcher, &stubSelector{}), "/api/backtest/run", validRequest())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if fetcher.traceID == "" {
		t.Fatal("expected a trace ID in the request context")
	}
	if !strings.HasPrefix(fetcher.traceID, "req-") {
		t.Errorf("trace IDs are tagged req-, got %q", fetcher.traceID)
	}
}

func TestOHLC_OK(t *testing.T) {
	mux := newTestMux(&stubFetcher{series: syntheticSeries(24)}, &stubSelector{})
	req := httptest.NewRequest(http.MethodGet,
		"/api/ohlc?symbol=BTCUSDT&interval=1h&start=2024-05-01T00:00:00Z&end=2024-05-02T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var s model.Series
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if len(s.Candles) != 24 || s.Symbol != "BTCUSDT" {
		t.Errorf("unexpected series: %d candles, symbol %q", len(s.Candles), s.Symbol)
	}
}

func TestOHLC_MissingParams(t *testing.T) {
	mux := newTestMux(&stubFetcher{series: syntheticSeries(5)}, &stubSelector{})
	req := httptest.NewRequest(http.MethodGet, "/api/ohlc?symbol=BTCUSDT", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
