// Package api exposes the backtest engine over HTTP: series fetches,
// backtest runs, example extraction and artifact serving.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"time"

	"quantengine/internal/backtest"
	"quantengine/internal/logger"
	"quantengine/internal/metrics"
	"quantengine/internal/model"
	"quantengine/internal/rule"
)

// Fetcher resolves a series request, transparently handling provider
// fallback and caching.
type Fetcher interface {
	Fetch(ctx context.Context, symbol, interval string, start, end time.Time) (*model.Series, error)
}

// ExampleSelector extracts signal examples with rendered artifacts.
type ExampleSelector interface {
	Select(s *model.Series, combined []model.Signal, ind *rule.IndicatorSet, count, lookaheadBars int) ([]model.Example, error)
}

// Defaults fill request fields the caller omitted.
type Defaults struct {
	InitialCapital float64 // default 10000
	FeePct         float64
	LookaheadBars  int // default 10
	MaxExamples    int // default 20
}

// Handlers holds the collaborators the HTTP layer dispatches into.
type Handlers struct {
	fetcher  Fetcher
	examples ExampleSelector
	defaults Defaults
	met      *metrics.Metrics
}

// NewHandlers wires the HTTP layer. Metrics may be nil.
func NewHandlers(f Fetcher, ex ExampleSelector, d Defaults, met *metrics.Metrics) *Handlers {
	if d.InitialCapital <= 0 {
		d.InitialCapital = 10000
	}
	if d.LookaheadBars <= 0 {
		d.LookaheadBars = 10
	}
	if d.MaxExamples <= 0 {
		d.MaxExamples = 20
	}
	return &Handlers{fetcher: f, examples: ex, defaults: d, met: met}
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// withTrace tags the request context with a fresh trace ID so log lines
// from one request can be correlated across components.
func withTrace(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithTraceID(r.Context(), logger.GenerateTraceID("req", time.Now()))
		next(w, r.WithContext(ctx))
	}
}

// RegisterRoutes registers all HTTP routes on the provided mux.
// artifactDir, when non-empty, is served under /examples/.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux, artifactDir string) {
	mux.HandleFunc("/api/ohlc", withTrace(h.handleOHLC))
	mux.HandleFunc("/api/indicators", withTrace(h.handleIndicators))
	mux.HandleFunc("/api/backtest/run", withTrace(h.handleBacktestRun))
	mux.HandleFunc("/api/backtest/examples", withTrace(h.handleBacktestExamples))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if artifactDir != "" {
		mux.Handle("/examples/", http.StripPrefix("/examples/",
			http.FileServer(http.Dir(artifactDir))))
	}
}

// handleOHLC serves GET /api/ohlc?symbol=&interval=&start=&end=.
func (h *Handlers) handleOHLC(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "bad_request", "GET only")
		return
	}

	q := r.URL.Query()
	symbol, interval := q.Get("symbol"), q.Get("interval")
	if symbol == "" || interval == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "symbol and interval are required")
		return
	}
	start, err := parseTime(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "start: "+err.Error())
		return
	}
	end, err := parseTime(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "end: "+err.Error())
		return
	}

	series, err := h.fetcher.Fetch(r.Context(), symbol, interval, start, end)
	if err != nil {
		writeMappedError(r.Context(), w, err)
		return
	}
	writeJSON(w, series)
}

// handleBacktestRun serves POST /api/backtest/run.
func (h *Handlers) handleBacktestRun(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "bad_request", "POST only")
		return
	}

	began := time.Now()
	series, combined, _, spec, req, ok := h.runPipeline(w, r)
	if !ok {
		return
	}

	cfg := backtest.Config{InitialCapital: req.InitialCapital, FeePct: req.FeePct}
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = h.defaults.InitialCapital
	}
	if cfg.FeePct == 0 {
		cfg.FeePct = h.defaults.FeePct
	}
	result := backtest.Run(series, combined, cfg)

	if h.met != nil {
		h.met.BacktestsTotal.WithLabelValues("ok").Inc()
		h.met.BacktestRunDur.Observe(time.Since(began).Seconds())
		h.met.TradesSimulated.Add(float64(len(result.Trades)))
		for _, s := range combined {
			if s != model.SignalNeutral {
				h.met.SignalsEmitted.Inc()
			}
		}
	}

	resp := BacktestResponse{
		Symbol:            series.Symbol,
		Interval:          series.Interval,
		EffectiveInterval: series.EffectiveInterval,
		Degraded:          series.Degraded,
		Result:            result,
	}
	if err := spec.CheckHistory(series.Len(), rule.DefaultParams()); err != nil {
		resp.Warning = err.Error()
	}
	writeJSON(w, resp)
}

// handleBacktestExamples serves POST /api/backtest/examples.
func (h *Handlers) handleBacktestExamples(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "bad_request", "POST only")
		return
	}

	series, combined, ind, spec, req, ok := h.runPipeline(w, r)
	if !ok {
		return
	}

	count := req.NumExamples
	if count <= 0 {
		count = 5
	}
	if count > h.defaults.MaxExamples {
		count = h.defaults.MaxExamples
	}
	lookahead := req.LookaheadBars
	if lookahead <= 0 {
		lookahead = h.defaults.LookaheadBars
	}

	examples, err := h.examples.Select(series, combined, ind, count, lookahead)
	if err != nil {
		writeMappedError(r.Context(), w, err)
		return
	}
	if examples == nil {
		examples = []model.Example{}
	}

	resp := ExamplesResponse{
		Symbol:            series.Symbol,
		Interval:          series.Interval,
		EffectiveInterval: series.EffectiveInterval,
		Degraded:          series.Degraded,
		Examples:          examples,
	}
	if err := spec.CheckHistory(series.Len(), rule.DefaultParams()); err != nil {
		resp.Warning = err.Error()
	}
	writeJSON(w, resp)
}

// runPipeline parses, validates, fetches and evaluates. On failure it has
// already written the error response and returns ok=false. Validation runs
// before any network fetch so a bad rule spec fails fast.
func (h *Handlers) runPipeline(w http.ResponseWriter, r *http.Request) (*model.Series, []model.Signal, *rule.IndicatorSet, rule.Spec, *BacktestRequest, bool) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON: "+err.Error())
		return nil, nil, nil, rule.Spec{}, nil, false
	}
	if req.Symbol == "" || req.Interval == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "symbol and interval are required")
		return nil, nil, nil, rule.Spec{}, nil, false
	}

	spec, err := rule.ParseSpec(req.Rule.Logic, req.Rule.Signals)
	if err != nil {
		h.countBacktest("bad_rule")
		writeMappedError(r.Context(), w, err)
		return nil, nil, nil, rule.Spec{}, nil, false
	}
	start, err := parseTime(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "start: "+err.Error())
		return nil, nil, nil, rule.Spec{}, nil, false
	}
	end, err := parseTime(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "end: "+err.Error())
		return nil, nil, nil, rule.Spec{}, nil, false
	}

	series, err := h.fetcher.Fetch(r.Context(), req.Symbol, req.Interval, start, end)
	if err != nil {
		h.countBacktest("no_data")
		writeMappedError(r.Context(), w, err)
		return nil, nil, nil, rule.Spec{}, nil, false
	}

	combined, ind, err := rule.Evaluate(spec, series, rule.DefaultParams())
	if err != nil {
		h.countBacktest("bad_rule")
		writeMappedError(r.Context(), w, err)
		return nil, nil, nil, rule.Spec{}, nil, false
	}
	return series, combined, ind, spec, &req, true
}

func (h *Handlers) countBacktest(outcome string) {
	if h.met != nil {
		h.met.BacktestsTotal.WithLabelValues(outcome).Inc()
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] response encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{Error: msg, Kind: kind})
}

// writeMappedError translates pipeline errors to HTTP: bad configuration is
// the caller's fault, missing data is the upstream's, everything else is
// ours.
func writeMappedError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidRuleSpec):
		writeError(w, http.StatusBadRequest, "bad_rule", err.Error())
	case errors.Is(err, model.ErrDataUnavailable):
		writeError(w, http.StatusBadGateway, "no_data", err.Error())
	default:
		slog.Error("request failed", append(logger.LogWithTrace(ctx), "err", err)...)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
