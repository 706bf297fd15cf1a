package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLedgerConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		cfg, err := LoadLedgerConfig()
		require.NoError(t, err)
		assert.Equal(t, int64(500), cfg.ActivationBonus)
		assert.Equal(t, uint64(8), cfg.MaxAttempts)
		assert.True(t, cfg.SerialPattern.MatchString("WB-000123"))
		assert.False(t, cfg.SerialPattern.MatchString("bad serial"))
	})

	t.Run("overrides", func(t *testing.T) {
		viper.Reset()
		viper.Set("ledger.activation_bonus", 250)
		viper.Set("ledger.retry_max_delay", "1s")
		cfg, err := LoadLedgerConfig()
		require.NoError(t, err)
		assert.Equal(t, int64(250), cfg.ActivationBonus)
		assert.Equal(t, time.Second, cfg.RetryMaxDelay)
	})

	t.Run("invalid serial pattern", func(t *testing.T) {
		viper.Reset()
		viper.Set("ledger.serial_pattern", "([")
		_, err := LoadLedgerConfig()
		assert.Error(t, err)
	})
}

func TestLoadGatewayConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Reset()
	viper.Set("cors.allowed_origins", "https://a.example, https://b.example")
	viper.Set("store.seed_inventory", "WB-000001,WB-000002")

	cfg := LoadGatewayConfig()
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"WB-000001", "WB-000002"}, cfg.SeedInventory)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}

func TestLoadEnv(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Reset()
	t.Setenv("LEDGER_ACTIVATION_BONUS", "750")
	t.Setenv("STORE_BACKEND", "memory")

	LoadEnv()

	cfg, err := LoadLedgerConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(750), cfg.ActivationBonus)
	assert.Equal(t, "memory", LoadGatewayConfig().StoreBackend)
}
