package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FOLIO_DATA_DIR", filepath.Join(t.TempDir(), "data"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8085, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, DefaultRiskFreeRate, cfg.RiskFreeRate)
	assert.Equal(t, DefaultMinTradeSize, cfg.MinTradeSize)
	assert.Equal(t, DefaultCGTAllowance, cfg.CGT.AnnualAllowance)
	assert.Equal(t, DefaultCGTRate, cfg.CGT.TaxRate)
	assert.Equal(t, 0.0, cfg.CGT.LossCarryForward)
	assert.DirExists(t, cfg.DataDir)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FOLIO_DATA_DIR", filepath.Join(t.TempDir(), "data"))
	t.Setenv("FOLIO_PORT", "9000")
	t.Setenv("FOLIO_LOG_LEVEL", "debug")
	t.Setenv("FOLIO_DEV_MODE", "true")
	t.Setenv("FOLIO_CGT_ALLOWANCE", "6000")
	t.Setenv("FOLIO_CGT_RATE", "0.10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 6000.0, cfg.CGT.AnnualAllowance)
	assert.Equal(t, 0.10, cfg.CGT.TaxRate)
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("FOLIO_DATA_DIR", filepath.Join(t.TempDir(), "data"))
	t.Setenv("FOLIO_PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvFloatFallsBackOnGarbage(t *testing.T) {
	t.Setenv("FOLIO_RISK_FREE_RATE", "banana")
	assert.Equal(t, DefaultRiskFreeRate, getEnvFloat("FOLIO_RISK_FREE_RATE", DefaultRiskFreeRate))
}
