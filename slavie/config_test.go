package slavie

import (
	"context"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func DefaultTestConfig(t testing.TB) *Config {
	tmpdir := t.TempDir()
	cfg := DefaultConfig()

	cfg.DatabaseType = dbTypeSQLite
	cfg.Database = filepath.Join(
		tmpdir,
		fmt.Sprintf("%s.sqlite3", strings.ReplaceAll(t.Name(), "/", "_")),
	)
	cfg.StartupTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 10 * time.Second
	cfg.RuntimeConfigTTL = 0
	cfg.CommandToggleTTL = time.Minute
	cfg.API.CORS.AllowOrigins = []string{"*"}
	cfg.API.Development = true
	cfg.API.Secret = "aksdfjakjsfdajfefIJHShi sfEISHSIDF HSIHDF"
	cfg.API.Listen = "127.0.0.1:0"
	cfg.Discord.Token = "test-discord-token"
	cfg.Discord.ApplicationID = "123456789012345678"
	cfg.Discord.OwnerIDs = []string{"owner"}
	cfg.Tenor.APIKey = ""

	logLevel := slog.LevelWarn
	cfg.LogLevel.Set(logLevel)
	cfg.Discord.LogLevel.Set(logLevel)
	cfg.Discord.DiscordGoLogLevel.Set(logLevel)
	cfg.Discord.WebhookServer.LogLevel.Set(logLevel)
	cfg.DatabaseLogLevel.Set(logLevel)
	cfg.API.LogLevel.Set(logLevel)
	cfg.Tenor.LogLevel.Set(logLevel)

	return cfg
}

// newTestStore returns a connected sqlite-backed Store, closed when
// the test finishes.
func newTestStore(t testing.TB) *Store {
	t.Helper()
	cfg := DefaultTestConfig(t)
	store := NewStore(cfg, slog.Default())
	require.NoError(t, store.Connect(context.Background()))
	t.Cleanup(
		func() {
			_ = store.Close()
		},
	)
	return store
}

func TestDefaultTestConfigValidates(t *testing.T) {
	cfg := DefaultTestConfig(t)
	require.NoError(t, structValidator.Struct(cfg))
}

func TestConfigValidation(t *testing.T) {
	t.Run(
		"missing token", func(t *testing.T) {
			cfg := DefaultTestConfig(t)
			cfg.Discord.Token = ""
			assert.Error(t, structValidator.Struct(cfg))
		},
	)
	t.Run(
		"bad database type", func(t *testing.T) {
			cfg := DefaultTestConfig(t)
			cfg.DatabaseType = "mongodb"
			assert.Error(t, structValidator.Struct(cfg))
		},
	)
	t.Run(
		"webhook without public key", func(t *testing.T) {
			cfg := DefaultTestConfig(t)
			cfg.Discord.WebhookServer.Enabled = true
			cfg.Discord.WebhookServer.PublicKey = ""
			assert.Error(t, structValidator.Struct(cfg))
		},
	)
	t.Run(
		"tenor limit", func(t *testing.T) {
			cfg := DefaultTestConfig(t)
			cfg.Tenor.Limit = 0
			assert.Error(t, structValidator.Struct(cfg))
		},
	)
}

func TestConfigLogValueRedacts(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.Tenor.APIKey = "super-secret-tenor-key"

	rendered := cfg.LogValue().String()
	assert.NotContains(t, rendered, "test-discord-token")
	assert.NotContains(t, rendered, "super-secret-tenor-key")
	assert.Contains(t, rendered, "[redacted]")
}
