// cmd/backtest runs one backtest from the command line, either against the
// live providers or fully offline from previously stored SQLite candles.
//
// Usage:
//
//	go run ./cmd/backtest -symbol=BTCUSDT -interval=1h \
//	    -start=2024-01-01T00:00:00Z -end=2024-03-01T00:00:00Z \
//	    -logic=or -signals=macd_cross,rsi -examples=3
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"quantengine/config"
	"quantengine/internal/backtest"
	"quantengine/internal/chart"
	"quantengine/internal/example"
	"quantengine/internal/logger"
	"quantengine/internal/model"
	"quantengine/internal/rule"
	"quantengine/internal/series"
	sqlitestore "quantengine/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	symbol := flag.String("symbol", "BTCUSDT", "Symbol or coin id (BTCUSDT, bitcoin)")
	interval := flag.String("interval", "1h", "Candle interval (1m, 4h, 1d, ...)")
	startStr := flag.String("start", "", "Range start (RFC3339 or unix seconds)")
	endStr := flag.String("end", "", "Range end (RFC3339 or unix seconds, default now)")
	logic := flag.String("logic", "and", "Signal combinator: and|or")
	signals := flag.String("signals", "macd_cross", "Comma-separated rule names")
	capital := flag.Float64("capital", 10000, "Initial capital")
	fee := flag.Float64("fee", 0.001, "Per-side fee fraction")
	offline := flag.Bool("offline", false, "Read candles from SQLite instead of the network")
	dbPath := flag.String("db", "data/candles.db", "SQLite candle store path")
	numExamples := flag.Int("examples", 0, "Render the N most recent signal examples")
	lookahead := flag.Int("lookahead", 10, "Bars used to measure example outcomes")
	artifacts := flag.String("artifacts", "data/examples", "Artifact output directory")
	flag.Parse()

	slogger := logger.Init("backtest-cli", logger.ParseLevel(config.Load().LogLevel))

	spec, err := rule.ParseSpec(*logic, splitSignals(*signals))
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	end := time.Now().UTC()
	if *endStr != "" {
		if end, err = parseTime(*endStr); err != nil {
			log.Fatalf("[backtest] end: %v", err)
		}
	}
	start := end.AddDate(0, -1, 0)
	if *startStr != "" {
		if start, err = parseTime(*startStr); err != nil {
			log.Fatalf("[backtest] start: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	s, err := loadSeries(ctx, slogger, *offline, *dbPath, *symbol, *interval, start, end)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	if s.Degraded {
		log.Printf("[backtest] NOTE: fallback provider served %s instead of %s",
			s.EffectiveInterval, s.Interval)
	}
	if err := spec.CheckHistory(s.Len(), rule.DefaultParams()); err != nil {
		log.Printf("[backtest] WARNING: %v", err)
	}

	combined, ind, err := rule.Evaluate(spec, s, rule.DefaultParams())
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	result := backtest.Run(s, combined, backtest.Config{
		InitialCapital: *capital,
		FeePct:         *fee,
	})

	printSummary(s, spec, result)

	if *numExamples > 0 {
		sink, err := example.NewFSSink(*artifacts, *artifacts)
		if err != nil {
			log.Fatalf("[backtest] %v", err)
		}
		extractor := example.New(chart.New(chart.Config{}), sink, nil)
		examples, err := extractor.Select(s, combined, ind, *numExamples, *lookahead)
		if err != nil {
			log.Fatalf("[backtest] %v", err)
		}
		fmt.Println()
		for _, ex := range examples {
			outcome := "n/a (clipped)"
			if ex.OutcomePct != nil {
				outcome = fmt.Sprintf("%+.2f%%", *ex.OutcomePct*100)
			}
			fmt.Printf("  %s  signal=%+d  outcome=%s  %s\n",
				ex.TS.Format(time.RFC3339), ex.Signal, outcome, ex.Artifact)
		}
	}
}

// loadSeries resolves candles either from the SQLite store or the live
// provider chain, persisting fresh fetches for later offline runs.
func loadSeries(ctx context.Context, slogger *slog.Logger, offline bool, dbPath, symbol, interval string, start, end time.Time) (*model.Series, error) {
	store, err := sqlitestore.New(ensureDir(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	defer store.Close()

	if offline {
		candles, err := store.ReadCandles(ctx, symbol, interval, start, end)
		if err != nil {
			return nil, err
		}
		if len(candles) == 0 {
			return nil, fmt.Errorf("no stored candles for %s@%s in range; fetch online first", symbol, interval)
		}
		return &model.Series{
			Symbol:            symbol,
			Interval:          interval,
			EffectiveInterval: interval,
			Candles:           candles,
		}, nil
	}

	cfg := config.Load()
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
	src := series.NewSource(primary, fallback, slogger, series.WithStore(store))
	return src.Fetch(ctx, symbol, interval, start, end)
}

func printSummary(s *model.Series, spec rule.Spec, result *model.BacktestResult) {
	open := "none"
	if result.Open != nil {
		open = fmt.Sprintf("entered %.2f @ %s",
			result.Open.EntryPrice, result.Open.EntryTime.Format("2006-01-02 15:04"))
	}
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║              BACKTEST COMPLETE               ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  Symbol:        %-28s ║\n", s.Symbol)
	fmt.Printf("║  Interval:      %-28s ║\n", s.EffectiveInterval)
	fmt.Printf("║  Candles:       %-28d ║\n", s.Len())
	fmt.Printf("║  Rules:         %-28s ║\n", strings.Join(spec.Signals, ","))
	fmt.Printf("║  Closed trades: %-28d ║\n", len(result.Trades))
	fmt.Printf("║  Open position: %-28s ║\n", open)
	fmt.Printf("║  PnL:           %-28s ║\n", fmt.Sprintf("%+.2f%%", result.PnL*100))
	fmt.Printf("║  Win rate:      %-28s ║\n", fmt.Sprintf("%.1f%%", result.WinRate*100))
	fmt.Printf("║  Max drawdown:  %-28s ║\n", fmt.Sprintf("%.2f%%", result.MaxDrawdown*100))
	fmt.Printf("║  Sharpe:        %-28.3f ║\n", result.Sharpe)
	fmt.Println("╚══════════════════════════════════════════════╝")
}

func splitSignals(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", s)
}

func ensureDir(dbPath string) string {
	os.MkdirAll(filepath.Dir(dbPath), 0o755)
	return dbPath
}
