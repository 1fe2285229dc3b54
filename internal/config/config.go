package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the forge service.
type Config struct {
	// HTTP server port
	HTTPPort string

	// Price feed settings
	FeedSource   string // "binance" or "nats"
	BinanceWSURL string
	Symbols      []string

	// NATS settings (tick replay source and event publishing)
	NATSURLs      string
	NATSCredsFile string
	NATSCreds     string
	PublishEvents bool

	// Engine settings
	InitialBalance        float64
	FeeRate               float64
	MaintenanceMarginRate float64
	MaxDrawdown           float64
	MaxLeverage           int
	ConversionRate        float64
	RecomputeLiqOnAverage bool

	// Logging
	LogLevel    string
	Environment string
}

// Load reads configuration from environment variables with .env support.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		FeedSource:            getEnv("FEED_SOURCE", "binance"),
		BinanceWSURL:          getEnv("BINANCE_WS_URL", "wss://stream.binance.com:9443/stream"),
		Symbols:               splitList(getEnv("SYMBOLS", "SOLUSDT,TRXUSDT,BTCUSDT,ETHUSDT,BONKUSDT,WIFUSDT,PEPEUSDT,DOGEUSDT")),
		NATSURLs:              getEnv("NATS_URLS", "nats://localhost:4222"),
		NATSCredsFile:         os.Getenv("NATS_CREDS_FILE"),
		NATSCreds:             os.Getenv("NATS_CREDS"),
		PublishEvents:         getEnvBool("PUBLISH_EVENTS", false),
		InitialBalance:        getEnvFloat("INITIAL_BALANCE", 10000),
		FeeRate:               getEnvFloat("FEE_RATE", 0.001),
		MaintenanceMarginRate: getEnvFloat("MAINTENANCE_MARGIN_RATE", 0.005),
		MaxDrawdown:           getEnvFloat("MAX_DRAWDOWN", 0.15),
		MaxLeverage:           getEnvInt("MAX_LEVERAGE", 125),
		ConversionRate:        getEnvFloat("CONVERSION_RATE", 1.0),
		RecomputeLiqOnAverage: getEnvBool("RECOMPUTE_LIQUIDATION_ON_AVERAGE", false),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		Environment:           getEnv("ENVIRONMENT", "development"),
	}

	if cfg.FeedSource != "binance" && cfg.FeedSource != "nats" {
		return nil, fmt.Errorf("invalid FEED_SOURCE %q (must be binance or nats)", cfg.FeedSource)
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("SYMBOLS must list at least one symbol")
	}
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("INITIAL_BALANCE must be positive, got %f", cfg.InitialBalance)
	}
	if cfg.ConversionRate <= 0 {
		return nil, fmt.Errorf("CONVERSION_RATE must be positive, got %f", cfg.ConversionRate)
	}

	return cfg, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if s := strings.ToUpper(strings.TrimSpace(part)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
