package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Redis.SummaryCacheTTL)
	assert.Equal(t, 15*time.Second, cfg.Terminal.SyncInterval)
	assert.Equal(t, 200, cfg.Terminal.PushBatchSize)
	assert.Equal(t, AllFeatures(), cfg.Features)
	assert.False(t, cfg.IsProduction())
	assert.NoError(t, cfg.ValidateServer())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("FEATURE_RECEPTIONS", "false")
	t.Setenv("SYNC_INTERVAL", "1m")
	t.Setenv("DEVICE_ID", "caisse-1")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.False(t, cfg.Features.Receptions)
	assert.True(t, cfg.Features.Sales)
	assert.Equal(t, time.Minute, cfg.Terminal.SyncInterval)
	assert.True(t, cfg.IsProduction())
	assert.NoError(t, cfg.ValidateTerminal())
}

func TestValidateTerminal_RequiresDevice(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Terminal.DeviceID = ""
	assert.ErrorContains(t, cfg.ValidateTerminal(), "DEVICE_ID")
}
