package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Upstream providers
	BinanceBaseURL    string
	CoinGeckoBaseURL  string
	CoinGeckoAPIKey   string
	ProviderRetries   int
	ProviderTimeout   time.Duration
	CoinGeckoLookback int // max lookback window in days

	// Infrastructure
	RedisAddr      string
	RedisPassword  string
	RedisEnabled   bool
	SQLitePath     string
	SQLiteEnabled  bool
	SeriesCacheTTL time.Duration

	// Serving
	APIAddr      string
	MetricsAddr  string
	ArtifactsDir string
	LogLevel     string

	// Backtest defaults
	InitialCapital float64
	FeePct         float64
	LookaheadBars  int
	MaxExamples    int
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}

	return &Config{
		BinanceBaseURL:    getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
		CoinGeckoBaseURL:  getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoAPIKey:   getEnv("COINGECKO_API_KEY", ""),
		ProviderRetries:   getEnvInt("PROVIDER_RETRIES", 3),
		ProviderTimeout:   getEnvDuration("PROVIDER_TIMEOUT", 20*time.Second),
		CoinGeckoLookback: getEnvInt("COINGECKO_LOOKBACK_DAYS", 365),

		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisEnabled:   getEnvBool("REDIS_ENABLED", true),
		SQLitePath:     getEnv("SQLITE_PATH", "data/candles.db"),
		SQLiteEnabled:  getEnvBool("SQLITE_ENABLED", true),
		SeriesCacheTTL: getEnvDuration("SERIES_CACHE_TTL", 15*time.Minute),

		APIAddr:      getEnv("API_ADDR", ":8080"),
		MetricsAddr:  getEnv("METRICS_ADDR", ":9090"),
		ArtifactsDir: getEnv("ARTIFACTS_DIR", "data/examples"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		InitialCapital: getEnvFloat("INITIAL_CAPITAL", 10000),
		FeePct:         getEnvFloat("FEE_PCT", 0.001),
		LookaheadBars:  getEnvInt("LOOKAHEAD_BARS", 10),
		MaxExamples:    getEnvInt("MAX_EXAMPLES", 20),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
