package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves into an empty directory so no configs/ folder is found.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "loopback", cfg.TransportDriver)
	assert.Equal(t, 2*time.Second, cfg.RecoveryDelay)
	assert.Equal(t, 4, cfg.RecoveryConcurrency)
	assert.Equal(t, -1, cfg.LoopbackSentCode)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("APP_STORE_DRIVER", "sqlite")
	t.Setenv("APP_RECOVERY_DELAY", "10s")
	t.Setenv("APP_LOOPBACK_DELIVERED_CODE", "5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, 10*time.Second, cfg.RecoveryDelay)
	assert.Equal(t, 5, cfg.LoopbackDeliveredCode)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	chdirTemp(t)
	t.Setenv("APP_TRANSPORT_DRIVER", "carrier-pigeon")

	_, err := Load("")
	assert.ErrorContains(t, err, "TRANSPORT_DRIVER")
}

func TestValidate(t *testing.T) {
	base := Config{StoreDriver: "memory", TransportDriver: "nats", RecoveryConcurrency: 1, EventBufferSize: 1}
	require.NoError(t, base.Validate())

	bad := base
	bad.RecoveryConcurrency = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.StoreDriver = "mysql"
	assert.Error(t, bad.Validate())
}
