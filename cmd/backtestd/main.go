// cmd/backtestd serves the backtest engine over HTTP: series fetches with
// provider fallback, rule-driven backtests and example extraction with
// rendered chart artifacts.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"quantengine/config"
	"quantengine/internal/api"
	"quantengine/internal/chart"
	"quantengine/internal/example"
	"quantengine/internal/logger"
	"quantengine/internal/metrics"
	"quantengine/internal/model"
	"quantengine/internal/series"
	redisstore "quantengine/internal/store/redis"
	sqlitestore "quantengine/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[backtestd] starting...")

	cfg := config.Load()
	slogger := logger.Init("backtestd", logger.ParseLevel(cfg.LogLevel))

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(cfg.RedisEnabled, cfg.SQLiteEnabled)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Durable candle store (optional) ----
	var store *sqlitestore.Store
	if cfg.SQLiteEnabled {
		os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
		var err error
		store, err = sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[backtestd] sqlite init failed: %v", err)
		}
		defer store.Close()
	}

	// ---- Series cache (optional, degraded to misses when down) ----
	var cache *redisstore.Cache
	if cfg.RedisEnabled {
		var err error
		cache, err = redisstore.New(redisstore.CacheConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.SeriesCacheTTL,
		})
		if err != nil {
			log.Printf("[backtestd] WARNING: redis init failed: %v (continuing without cache)", err)
		} else {
			defer cache.Close()
		}
	}

	switch {
	case cache != nil && store != nil:
		health.StartLivenessChecker(ctx, cache.Client(), store.DB(), 10*time.Second)
	case cache != nil:
		health.StartLivenessChecker(ctx, cache.Client(), nil, 10*time.Second)
	case store != nil:
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Series source: primary with fallback ----
	primary := series.NewBinance(series.BinanceConfig{
		BaseURL:        cfg.BinanceBaseURL,
		MaxRetries:     cfg.ProviderRetries,
		RequestTimeout: cfg.ProviderTimeout,
	})
	fallback := series.NewCoinGecko(series.CoinGeckoConfig{
		BaseURL:         cfg.CoinGeckoBaseURL,
		APIKey:          cfg.CoinGeckoAPIKey,
		MaxRetries:      cfg.ProviderRetries,
		RequestTimeout:  cfg.ProviderTimeout,
		MaxLookbackDays: cfg.CoinGeckoLookback,
	})

	opts := []series.SourceOption{series.WithMetrics(prom)}
	if cache != nil {
		opts = append(opts, series.WithCache(cache))
	}
	if store != nil {
		opts = append(opts, series.WithStore(store))
	}
	source := series.NewSource(primary, fallback, slogger, opts...)

	// ---- Example extraction ----
	sink, err := example.NewFSSink(cfg.ArtifactsDir, "/examples")
	if err != nil {
		log.Fatalf("[backtestd] artifact sink init failed: %v", err)
	}
	extractor := example.New(chart.New(chart.Config{}), sink, prom)

	// ---- HTTP API ----
	handlers := api.NewHandlers(
		&trackedFetcher{src: source, health: health},
		extractor,
		api.Defaults{
			InitialCapital: cfg.InitialCapital,
			FeePct:         cfg.FeePct,
			LookaheadBars:  cfg.LookaheadBars,
			MaxExamples:    cfg.MaxExamples,
		},
		prom,
	)
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, sink.Dir())

	srv := &http.Server{Addr: cfg.APIAddr, Handler: mux}
	go func() {
		log.Printf("[backtestd] API listening on %s", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[backtestd] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[backtestd] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	log.Println("[backtestd] shutdown complete.")
}

// trackedFetcher stamps the health status on every successful fetch.
type trackedFetcher struct {
	src    *series.Source
	health *metrics.HealthStatus
}

func (t *trackedFetcher) Fetch(ctx context.Context, symbol, interval string, start, end time.Time) (*model.Series, error) {
	s, err := t.src.Fetch(ctx, symbol, interval, start, end)
	if err == nil {
		t.health.SetLastFetchTime(time.Now())
	}
	return s, err
}
