package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
	fn()
}

func clearSessionEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SYMBOL", "RUN_DIR", "DURATION_SEC", "STARTING_CASH", "STRATEGY_PARAMS",
		"BAR_RULE", "BAR_LIMIT", "ASYNC_WRITERS", "WRITER_QUEUE_LEN",
		"VIZ_BAR_INTERVAL_MS", "VIZ_GAP_FILL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigFromEnvFailsFastOnNonPositiveStartingCash(t *testing.T) {
	clearSessionEnv(t)
	withEnv(t, map[string]string{"SYMBOL": "BTC-USD", "STARTING_CASH": "0"}, func() {
		_, err := loadConfigFromEnv()
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestLoadConfigFromEnvFailsFastOnNonPositiveDuration(t *testing.T) {
	clearSessionEnv(t)
	withEnv(t, map[string]string{"SYMBOL": "BTC-USD", "DURATION_SEC": "-1"}, func() {
		_, err := loadConfigFromEnv()
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestLoadConfigFromEnvAppliesDefaultsWhenOnlyRequiredKeysSet(t *testing.T) {
	clearSessionEnv(t)
	withEnv(t, map[string]string{"SYMBOL": "BTC-USD"}, func() {
		cfg, err := loadConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "BTC-USD", cfg.Symbol)
		assert.Equal(t, "momentum", cfg.StrategyName)
		assert.Equal(t, "tick", cfg.BarRule)
		assert.Greater(t, cfg.StartingCash, 0.0)
	})
}

func TestLoadConfigFromEnvRejectsMalformedStrategyParams(t *testing.T) {
	clearSessionEnv(t)
	withEnv(t, map[string]string{"SYMBOL": "BTC-USD", "STRATEGY_PARAMS": "{not json"}, func() {
		_, err := loadConfigFromEnv()
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestConfigBarBuilderResolvesEachKnownRule(t *testing.T) {
	for _, rule := range []string{"tick", "volume", "dollar", "imbalance"} {
		cfg := Config{BarRule: rule, BarLimit: 10}
		b, err := cfg.barBuilder()
		require.NoError(t, err, rule)
		assert.NotNil(t, b)
	}
}

func TestConfigBarBuilderRejectsUnknownRule(t *testing.T) {
	cfg := Config{BarRule: "nonsense", BarLimit: 10}
	_, err := cfg.barBuilder()
	assert.ErrorIs(t, err, ErrConfiguration)
}
