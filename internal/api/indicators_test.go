package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func indicatorsRequest(names ...string) IndicatorsRequest {
	return IndicatorsRequest{
		Symbol:     "BTCUSDT",
		Interval:   "1h",
		Start:      "2024-05-01T00:00:00Z",
		End:        "2024-05-05T00:00:00Z",
		Indicators: names,
	}
}

func TestIndicators_OK(t *testing.T) {
	fetcher := &stubFetcher{series: syntheticSeries(60)}
	rec := postJSON(t, newTestMux(fetcher, &stubSelector{}), "/api/indicators",
		indicatorsRequest("sma20", "rsi", "macd"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Symbol     string                     `json:"symbol"`
		Indicators map[string]json.RawMessage `json:"indicators"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Indicators) != 3 {
		t.Fatalf("expected 3 indicator entries, got %d", len(resp.Indicators))
	}

	var sma []IndicatorPoint
	if err := json.Unmarshal(resp.Indicators["sma20"], &sma); err != nil {
		t.Fatal(err)
	}
	if len(sma) != 41 {
		t.Errorf("a 20-bar SMA over 60 bars has 41 defined points, got %d", len(sma))
	}
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if !sma[0].TS.Equal(base.Add(19 * time.Hour)) {
		t.Errorf("first defined SMA point must land on bar 19, got %s", sma[0].TS)
	}

	var macd map[string][]IndicatorPoint
	if err := json.Unmarshal(resp.Indicators["macd"], &macd); err != nil {
		t.Fatal(err)
	}
	for _, part := range []string{"line", "signal", "hist"} {
		if len(macd[part]) == 0 {
			t.Errorf("macd %s series is empty", part)
		}
	}
}

func TestIndicators_UnknownNameFailsFast(t *testing.T) {
	fetcher := &stubFetcher{series: syntheticSeries(60)}
	rec := postJSON(t, newTestMux(fetcher, &stubSelector{}), "/api/indicators",
		indicatorsRequest("sma20", "vibes"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if fetcher.calls != 0 {
		t.Error("an unknown indicator must be rejected before any fetch")
	}
}

func TestIndicators_EmptyListRejected(t *testing.T) {
	rec := postJSON(t, newTestMux(&stubFetcher{series: syntheticSeries(10)}, &stubSelector{}),
		"/api/indicators", indicatorsRequest())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty indicator list, got %d", rec.Code)
	}
}

func TestIndicators_WindowSuffixRequired(t *testing.T) {
	rec := postJSON(t, newTestMux(&stubFetcher{series: syntheticSeries(10)}, &stubSelector{}),
		"/api/indicators", indicatorsRequest("sma"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bare sma has no window, expected 400, got %d", rec.Code)
	}
}
