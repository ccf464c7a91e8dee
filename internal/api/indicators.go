package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quantengine/internal/indicator"
	"quantengine/internal/rule"
)

// IndicatorsRequest is the inbound body for /api/indicators. Indicator
// names carry their window as a suffix ("sma20", "ema12", "rsi14"); "rsi"
// defaults to 14, "macd" and "bollinger" use the conventional parameters.
type IndicatorsRequest struct {
	Symbol     string   `json:"symbol"`
	Interval   string   `json:"interval"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Indicators []string `json:"indicators"`
}

// IndicatorPoint is one defined indicator value. Warm-up bars never appear.
type IndicatorPoint struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// IndicatorsResponse maps each requested indicator to its point series, or
// to a named group of point series for multi-output indicators.
type IndicatorsResponse struct {
	Symbol            string         `json:"symbol"`
	Interval          string         `json:"interval"`
	EffectiveInterval string         `json:"effective_interval"`
	Degraded          bool           `json:"degraded"`
	Indicators        map[string]any `json:"indicators"`
}

// handleIndicators serves POST /api/indicators.
func (h *Handlers) handleIndicators(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "bad_request", "POST only")
		return
	}

	var req IndicatorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON: "+err.Error())
		return
	}
	if req.Symbol == "" || req.Interval == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "symbol and interval are required")
		return
	}
	jobs, err := planIndicators(req.Indicators)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	start, err := parseTime(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "start: "+err.Error())
		return
	}
	end, err := parseTime(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "end: "+err.Error())
		return
	}

	series, err := h.fetcher.Fetch(r.Context(), req.Symbol, req.Interval, start, end)
	if err != nil {
		writeMappedError(r.Context(), w, err)
		return
	}

	ts, closes := series.Timestamps(), series.Closes()
	out := make(map[string]any, len(jobs))
	for _, j := range jobs {
		out[j.key] = j.run(ts, closes)
	}
	writeJSON(w, IndicatorsResponse{
		Symbol:            series.Symbol,
		Interval:          series.Interval,
		EffectiveInterval: series.EffectiveInterval,
		Degraded:          series.Degraded,
		Indicators:        out,
	})
}

type indicatorJob struct {
	key string
	run func(ts []time.Time, closes []float64) any
}

// planIndicators validates the requested names up front, before any data is
// fetched, and returns one compute job per name.
func planIndicators(names []string) ([]indicatorJob, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no indicators requested")
	}
	jobs := make([]indicatorJob, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		switch {
		case strings.HasPrefix(key, "sma"):
			window, err := indicatorWindow(key, "sma", 0)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, indicatorJob{key, func(ts []time.Time, closes []float64) any {
				return points(ts, indicator.SMA(closes, window))
			}})
		case strings.HasPrefix(key, "ema"):
			window, err := indicatorWindow(key, "ema", 0)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, indicatorJob{key, func(ts []time.Time, closes []float64) any {
				return points(ts, indicator.EMA(closes, window))
			}})
		case strings.HasPrefix(key, "rsi"):
			window, err := indicatorWindow(key, "rsi", rule.DefaultParams().RSIPeriod)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, indicatorJob{key, func(ts []time.Time, closes []float64) any {
				return points(ts, indicator.RSI(closes, window))
			}})
		case key == "macd":
			jobs = append(jobs, indicatorJob{key, func(ts []time.Time, closes []float64) any {
				p := rule.DefaultParams()
				line, sig, hist := indicator.MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
				return map[string][]IndicatorPoint{
					"line":   points(ts, line),
					"signal": points(ts, sig),
					"hist":   points(ts, hist),
				}
			}})
		case key == "bollinger":
			jobs = append(jobs, indicatorJob{key, func(ts []time.Time, closes []float64) any {
				p := rule.DefaultParams()
				bb := indicator.Bollinger(closes, p.BBPeriod, p.BBStdDev)
				return map[string][]IndicatorPoint{
					"mid":       points(ts, bb.Mid),
					"upper":     points(ts, bb.Upper),
					"lower":     points(ts, bb.Lower),
					"bandwidth": points(ts, bb.Bandwidth),
					"pct_b":     points(ts, bb.PctB),
				}
			}})
		default:
			return nil, fmt.Errorf("unknown indicator %q", name)
		}
	}
	return jobs, nil
}

// indicatorWindow parses the numeric window suffix off an indicator name.
// def of 0 means the suffix is mandatory.
func indicatorWindow(key, prefix string, def int) (int, error) {
	suffix := strings.TrimPrefix(key, prefix)
	if suffix == "" {
		if def > 0 {
			return def, nil
		}
		return 0, fmt.Errorf("indicator %q needs a window suffix, e.g. %s20", key, prefix)
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("bad window in indicator %q", key)
	}
	return n, nil
}

// points pairs indicator values with their bar timestamps, dropping
// undefined warm-up bars so the payload stays valid JSON.
func points(ts []time.Time, vals []float64) []IndicatorPoint {
	out := make([]IndicatorPoint, 0, len(vals))
	for i, v := range vals {
		if !indicator.Defined(v) {
			continue
		}
		out = append(out, IndicatorPoint{TS: ts[i], Value: v})
	}
	return out
}
