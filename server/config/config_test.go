package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazavi/yumekai-sub000/server/domain"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 50051, cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, domain.InactiveTimeout, cfg.InactiveTimeout)
	assert.Equal(t, domain.SweepInterval, cfg.SweepInterval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	file := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
port: 6000
store_backend: memory
inactive_timeout: 90s
log_level: debug
`), 0o644))
	t.Setenv("YUMEKAI_PORT", "7000")
	t.Setenv("YUMEKAI_LOG_FORMAT", "json")

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 90*time.Second, cfg.InactiveTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("YUMEKAI_STORE_BACKEND=redis\nYUMEKAI_REDIS_ADDR=cache:6379\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("YUMEKAI_STORE_BACKEND")
		os.Unsetenv("YUMEKAI_REDIS_ADDR")
	})

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load(viper.New(), "/nonexistent/yumekai.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:            50051,
		StoreBackend:    BackendMemory,
		CatalogURL:      "http://catalog",
		InactiveTimeout: time.Minute,
		SweepInterval:   time.Minute,
		LogLevel:        "info",
		LogFormat:       "text",
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.StoreBackend = "postgres"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.StoreBackend = BackendSQLite
	assert.Error(t, bad.Validate())

	bad = valid
	bad.LogLevel = "loud"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Port = 0
	assert.Error(t, bad.Validate())

	bad = valid
	bad.SweepInterval = 0
	assert.Error(t, bad.Validate())
}
