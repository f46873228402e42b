// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults for UK capital gains tax parameters. Callers with a tax
// configuration provider should override these per tax year.
const (
	DefaultCGTAllowance = 12300.0
	DefaultCGTRate      = 0.20
	DefaultRiskFreeRate = 0.02
	DefaultMinTradeSize = 100.0
)

// CGTConfig holds capital gains tax parameters for a tax year.
type CGTConfig struct {
	AnnualAllowance  float64
	TaxRate          float64
	LossCarryForward float64
}

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for the history database
	LogLevel     string
	Port         int
	DevMode      bool
	RiskFreeRate float64
	MinTradeSize float64
	CGT          CGTConfig
}

// Load reads configuration from environment variables.
// A .env file is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("FOLIO_DATA_DIR", "./data")
	absDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	port, err := strconv.Atoi(getEnv("FOLIO_PORT", "8085"))
	if err != nil {
		return nil, fmt.Errorf("invalid FOLIO_PORT: %w", err)
	}

	cfg := &Config{
		DataDir:      absDir,
		LogLevel:     getEnv("FOLIO_LOG_LEVEL", "info"),
		Port:         port,
		DevMode:      getEnv("FOLIO_DEV_MODE", "") == "true",
		RiskFreeRate: getEnvFloat("FOLIO_RISK_FREE_RATE", DefaultRiskFreeRate),
		MinTradeSize: getEnvFloat("FOLIO_MIN_TRADE_SIZE", DefaultMinTradeSize),
		CGT: CGTConfig{
			AnnualAllowance:  getEnvFloat("FOLIO_CGT_ALLOWANCE", DefaultCGTAllowance),
			TaxRate:          getEnvFloat("FOLIO_CGT_RATE", DefaultCGTRate),
			LossCarryForward: getEnvFloat("FOLIO_CGT_LOSS_CARRY_FORWARD", 0),
		},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return f
}
