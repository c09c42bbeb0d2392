package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OlympusDAO/token-holder-balances/pkg/config"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "token-holder-transactions", cfg.RecordsPrefix)
	assert.Equal(t, "token-holder-balances", cfg.BalancesPrefix)
	assert.Equal(t, 540*time.Second, cfg.Budget)
	assert.Equal(t, 60*time.Second, cfg.SafetyMargin)
	assert.Equal(t, "2021-01-01", cfg.EarliestDay.String())
	assert.True(t, cfg.CutoffDay.IsZero())
	assert.Equal(t, "10 * * * *", cfg.CronSpec)
	assert.Equal(t, ":3000", cfg.Addr)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.ClickHouseAddr)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_DIR", "/var/data")
	t.Setenv("SUBGRAPH_URL", "https://example.com/subgraphs/test")
	t.Setenv("EARLIEST_DATE", "2021-11-24")
	t.Setenv("CUTOFF_DATE", "2022-10-17")
	t.Setenv("RUN_BUDGET_SECONDS", "300")
	t.Setenv("RUN_SAFETY_MARGIN_SECONDS", "30")
	t.Setenv("MIRROR_CSV", "true")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/var/data", cfg.StorageDir)
	assert.Equal(t, "https://example.com/subgraphs/test", cfg.SubgraphURL)
	assert.Equal(t, "2021-11-24", cfg.EarliestDay.String())
	assert.Equal(t, "2022-10-17", cfg.CutoffDay.String())
	assert.Equal(t, 300*time.Second, cfg.Budget)
	assert.Equal(t, 30*time.Second, cfg.SafetyMargin)
	assert.True(t, cfg.MirrorCSV)
}

func TestFromEnvZeroBudgetDisablesBudget(t *testing.T) {
	t.Setenv("RUN_BUDGET_SECONDS", "0")

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.Budget)
}

func TestFromEnvRejectsBadDates(t *testing.T) {
	t.Setenv("EARLIEST_DATE", "24/11/2021")
	_, err := config.FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EARLIEST_DATE")
}

func TestFromEnvRejectsMarginAboveBudget(t *testing.T) {
	t.Setenv("RUN_BUDGET_SECONDS", "60")
	t.Setenv("RUN_SAFETY_MARGIN_SECONDS", "60")
	_, err := config.FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "safety margin")
}
