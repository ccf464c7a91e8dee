package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the backtest engine.
type Metrics struct {
	// Series acquisition
	ProviderRequests   *prometheus.CounterVec // labels: provider, outcome=ok|unsupported|error
	ProviderFetchDur   *prometheus.HistogramVec
	Fallbacks          prometheus.Counter
	IntervalDowngrades prometheus.Counter
	CandlesServed      prometheus.Counter

	// Cache / store
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	StoreWriteDur  prometheus.Histogram
	StoreCommitErr prometheus.Counter

	// Evaluation and simulation
	BacktestsTotal  *prometheus.CounterVec // labels: outcome=ok|bad_rule|no_data|error
	BacktestRunDur  prometheus.Histogram
	SignalsEmitted  prometheus.Counter
	TradesSimulated prometheus.Counter

	// Example extraction
	ExamplesExtracted prometheus.Counter
	RenderFailures    prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantengine_provider_requests_total",
			Help: "Upstream series requests by provider and outcome",
		}, []string{"provider", "outcome"}),
		ProviderFetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quantengine_provider_fetch_duration_seconds",
			Help:    "Full-range fetch latency per provider",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_fallbacks_total",
			Help: "Requests served by the secondary provider",
		}),
		IntervalDowngrades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_interval_downgrades_total",
			Help: "Requests whose interval was coarsened on fallback",
		}),
		CandlesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_candles_served_total",
			Help: "Total candles returned to callers",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_series_cache_hits_total",
			Help: "Series served from the Redis cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_series_cache_misses_total",
			Help: "Series cache lookups that fell through to upstream",
		}),
		StoreWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quantengine_store_write_duration_seconds",
			Help:    "SQLite candle batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		StoreCommitErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_store_commit_errors_total",
			Help: "Failed SQLite candle batch commits",
		}),

		BacktestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantengine_backtests_total",
			Help: "Backtest runs by outcome",
		}, []string{"outcome"}),
		BacktestRunDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quantengine_backtest_run_duration_seconds",
			Help:    "Evaluate-plus-simulate latency per backtest",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		SignalsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_signals_emitted_total",
			Help: "Non-neutral combined signals produced by rule evaluation",
		}),
		TradesSimulated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_trades_simulated_total",
			Help: "Closed trades produced by the simulator",
		}),

		ExamplesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_examples_extracted_total",
			Help: "Signal examples extracted with rendered artifacts",
		}),
		RenderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_render_failures_total",
			Help: "Chart renders that failed and skipped their example",
		}),
	}

	prometheus.MustRegister(
		m.ProviderRequests,
		m.ProviderFetchDur,
		m.Fallbacks,
		m.IntervalDowngrades,
		m.CandlesServed,
		m.CacheHits,
		m.CacheMisses,
		m.StoreWriteDur,
		m.StoreCommitErr,
		m.BacktestsTotal,
		m.BacktestRunDur,
		m.SignalsEmitted,
		m.TradesSimulated,
		m.ExamplesExtracted,
		m.RenderFailures,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool `json:"redis_connected"`
	SQLiteOK       bool `json:"sqlite_ok"`

	LastFetchTime   time.Time `json:"last_fetch_time"`
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	redisEnabled  bool
	sqliteEnabled bool
}

// NewHealthStatus returns a default health status. Disabled dependencies
// are excluded from the overall verdict.
func NewHealthStatus(redisEnabled, sqliteEnabled bool) *HealthStatus {
	return &HealthStatus{
		StartedAt:     time.Now(),
		redisEnabled:  redisEnabled,
		sqliteEnabled: sqliteEnabled,
	}
}

func (h *HealthStatus) SetLastFetchTime(t time.Time) {
	h.mu.Lock()
	h.LastFetchTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisBad := h.redisEnabled && !h.RedisConnected
	sqliteBad := h.sqliteEnabled && !h.SQLiteOK
	if redisBad || sqliteBad {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if redisBad && sqliteBad {
		overallStatus = "unhealthy"
	}

	lastFetch := ""
	if !h.LastFetchTime.IsZero() {
		lastFetch = h.LastFetchTime.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteEnabled   bool    `json:"sqlite_enabled"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastFetchTime   string  `json:"last_fetch_time"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.redisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.sqliteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastFetchTime:   lastFetch,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
