// Package config provides configuration management functionality.
//
// Configuration is loaded from environment variables (optionally via a
// .env file) into a typed Config struct. Per-source adapter settings
// (endpoint, credentials, quota, cadence) are modeled as a map so that
// adding a new source requires no change to this package.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/sharpline/internal/utils"
)

// SourceConfig is the inbound adapter configuration for one provider,
// "Adapter configuration".
type SourceConfig struct {
	Name           string
	Endpoint       string
	APIKey         string
	DailyQuota     int
	CadenceSeconds int
	BooksEnabled   []string
	Enabled        bool
}

// Config holds application configuration.
type Config struct {
	Sources map[string]SourceConfig

	DataDir              string
	LogLevel             string
	HTTPPort             int
	FetchTimeout         time.Duration
	DetectorRunTimeout   time.Duration
	ConfidenceFloor      float64
	JuiceFloorMoneyline  int // worst acceptable moneyline odds, e.g. -160
	CircuitBreakerFailK  int
	CircuitBreakerWindow time.Duration
	CircuitBreakerCooldown time.Duration
	PipelineLagThreshold time.Duration
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
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
		return fallback
	}
	return f
}

// defaultSources seeds the six providers names. Adapter
// implementations still validate credentials themselves at fetch time;
// this is only the inbound configuration shape.
func defaultSources() map[string]SourceConfig {
	return map[string]SourceConfig{
		"action_network": {Name: "action_network", Endpoint: getEnv("ACTION_NETWORK_ENDPOINT", "https://api.actionnetwork.com/web/v2"), APIKey: os.Getenv("ACTION_NETWORK_API_KEY"), DailyQuota: getEnvInt("ACTION_NETWORK_QUOTA", 5000), CadenceSeconds: getEnvInt("ACTION_NETWORK_CADENCE", 300), BooksEnabled: utils.ParseCSV(os.Getenv("ACTION_NETWORK_BOOKS")), Enabled: true},
		"vsin":           {Name: "vsin", Endpoint: getEnv("VSIN_ENDPOINT", "https://www.vsin.com/mlb/betting-splits"), CadenceSeconds: getEnvInt("VSIN_CADENCE", 300), BooksEnabled: utils.ParseCSV(os.Getenv("VSIN_BOOKS")), Enabled: true},
		"sbd":            {Name: "sbd", Endpoint: getEnv("SBD_ENDPOINT", "https://www.sportsbettingdime.com/mlb/public-betting-trends"), CadenceSeconds: getEnvInt("SBD_CADENCE", 600), BooksEnabled: utils.ParseCSV(os.Getenv("SBD_BOOKS")), Enabled: true},
		"sbr":            {Name: "sbr", Endpoint: getEnv("SBR_ENDPOINT", "https://www.sportsbookreview.com/betting-odds/mlb-baseball"), CadenceSeconds: getEnvInt("SBR_CADENCE", 600), BooksEnabled: utils.ParseCSV(os.Getenv("SBR_BOOKS")), Enabled: true},
		"mlb_stats":      {Name: "mlb_stats", Endpoint: getEnv("MLB_STATS_ENDPOINT", "https://statsapi.mlb.com/api/v1"), CadenceSeconds: getEnvInt("MLB_STATS_CADENCE", 1800), Enabled: true},
		"odds_api":       {Name: "odds_api", Endpoint: getEnv("ODDS_API_ENDPOINT", "https://api.the-odds-api.com/v4"), APIKey: os.Getenv("ODDS_API_API_KEY"), DailyQuota: getEnvInt("ODDS_API_QUOTA", 500), CadenceSeconds: getEnvInt("ODDS_API_CADENCE", 300), BooksEnabled: utils.ParseCSV(os.Getenv("ODDS_API_BOOKS")), Enabled: true},
	}
}

// Load reads configuration from environment variables, loading a .env
// file first if one exists (godotenv.Load returns a harmless error when
// the file is absent).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("SHARPLINE_DATA_DIR", "./data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		Sources:                defaultSources(),
		DataDir:                dataDir,
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		HTTPPort:               getEnvInt("HTTP_PORT", 8090),
		FetchTimeout:           time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		DetectorRunTimeout:     time.Duration(getEnvInt("DETECTOR_RUN_TIMEOUT_SECONDS", 60)) * time.Second,
		ConfidenceFloor:        getEnvFloat("CONFIDENCE_FLOOR", 0.55),
		JuiceFloorMoneyline:    getEnvInt("JUICE_FLOOR_MONEYLINE", -160),
		CircuitBreakerFailK:    getEnvInt("CIRCUIT_BREAKER_FAIL_K", 5),
		CircuitBreakerWindow:   time.Duration(getEnvInt("CIRCUIT_BREAKER_WINDOW_SECONDS", 300)) * time.Second,
		CircuitBreakerCooldown: time.Duration(getEnvInt("CIRCUIT_BREAKER_COOLDOWN_SECONDS", 60)) * time.Second,
		PipelineLagThreshold:   time.Duration(getEnvInt("PIPELINE_LAG_THRESHOLD_SECONDS", 300)) * time.Second,
	}

	return cfg, nil
}
