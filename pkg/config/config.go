package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading engine. It
// is built once at startup and passed into constructors; nothing
// mutates it afterwards.
type Config struct {
	// Execution
	ExecutionMode string // "immediate" or "next_bar"
	FeeRate       float64
	SlippageBps   float64

	// Storage
	StorageBackend string // "memory" or "persistent"
	DBPath         string

	// Metrics
	SnapshotCacheTTL   time.Duration
	SnapshotCapacity   int
	SnapshotRatePerSec float64

	// Market data
	UseMockFeed bool
	Tickers     []string
	BarInterval time.Duration

	// Event bus
	BusCapacity int

	// Portfolios
	PortfoliosFile string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		ExecutionMode:      strings.ToLower(getEnv("EXECUTION_MODE", "immediate")),
		FeeRate:            getEnvFloat("FEE_RATE", 0.0004),
		SlippageBps:        getEnvFloat("SLIPPAGE_BPS", 2),
		StorageBackend:     strings.ToLower(getEnv("STORAGE_BACKEND", "memory")),
		DBPath:             getEnv("DB_PATH", "./data/trading.db"),
		SnapshotCacheTTL:   getEnvDuration("SNAPSHOT_CACHE_TTL", 5*time.Second),
		SnapshotCapacity:   getEnvInt("SNAPSHOT_CAPACITY", 10000),
		SnapshotRatePerSec: getEnvFloat("SNAPSHOT_RATE_PER_SEC", 5),
		UseMockFeed:        getEnv("USE_MOCK_FEED", "true") == "true",
		Tickers:            splitAndTrim(getEnv("TICKERS", "BTCUSDT,ETHUSDT")),
		BarInterval:        getEnvDuration("BAR_INTERVAL", time.Second),
		BusCapacity:        getEnvInt("BUS_CAPACITY", 256),
		PortfoliosFile:     getEnv("PORTFOLIOS_FILE", "./portfolios.yaml"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
