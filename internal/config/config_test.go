package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/nlukit/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	_ = os.Unsetenv("NLUKIT_HOST")
	_ = os.Unsetenv("NLUKIT_PORT")
	_ = os.Unsetenv("NLUKIT_STORAGE_ENGINE")

	cfg := config.Load()

	assert.Equal(t, "127.0.0.1", cfg.Server.Host,
		"Default host must be 127.0.0.1 for security")
	assert.Equal(t, "127.0.0.1:6464", cfg.Server.Addr())
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, 0.3, cfg.NLU.GuessThreshold)
	assert.Equal(t, 30*time.Second, cfg.Provider.Timeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NLUKIT_HOST", "0.0.0.0")
	t.Setenv("NLUKIT_PORT", "8080")
	t.Setenv("NLUKIT_PROVIDER_TIMEOUT", "5s")
	t.Setenv("NLUKIT_GUESS_THRESHOLD", "0.6")
	t.Setenv("NLUKIT_LOG_PRETTY", "yes")

	cfg := config.Load()

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 0.6, cfg.NLU.GuessThreshold)
	assert.True(t, cfg.Logging.Pretty)
}

func TestLoad_UnparseableValuesFallBack(t *testing.T) {
	t.Setenv("NLUKIT_PORT", "not-a-port")
	t.Setenv("NLUKIT_PROVIDER_RPS", "lots")

	cfg := config.Load()

	assert.Equal(t, 6464, cfg.Server.Port)
	assert.Equal(t, float64(10), cfg.Provider.RequestsPerSecond)
}

func TestLoadFile_YAMLWinsOverEnv(t *testing.T) {
	t.Setenv("NLUKIT_PORT", "8080")

	path := filepath.Join(t.TempDir(), "nlukit.yaml")
	doc := "server:\n  port: 9090\nstorage:\n  engine: postgres\n  postgres_dsn: postgres://localhost/nlukit\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
	// Unset YAML keys keep their environment or default values.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := config.Load()
	cfg.Storage.Engine = "sqlite"
	cfg.Storage.SQLitePath = "./data/nlukit.db"
	require.NoError(t, cfg.Validate())

	cfg.Storage.Engine = "postgres"
	cfg.Storage.PostgresDSN = ""
	assert.Error(t, cfg.Validate(), "postgres engine requires a DSN")

	cfg.Storage.Engine = "bolt"
	assert.Error(t, cfg.Validate(), "unknown engines are rejected")

	cfg = config.Load()
	cfg.NLU.GuessThreshold = 1.5
	assert.Error(t, cfg.Validate())
}
