package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerLoadOrCreateWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	exists, err := m.Exists()
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = m.Load()
	assert.ErrorIs(t, err, ErrConfigNotFound)

	cfg, err := m.LoadOrCreate()
	require.NoError(t, err)
	assert.True(t, cfg.FirstRun)
	assert.Equal(t, 100, cfg.Sync.BatchSize)
	assert.Equal(t, 5, cfg.Sync.DebounceSeconds)

	exists, err = m.Exists()
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestManagerEncryptsPasswords(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	cfg := Default()
	cfg.Database.Password = "db-pass"
	cfg.Storage.RedisPassword = "redis-pass"
	require.NoError(t, m.Save(cfg))

	// caller keeps plain values
	assert.Equal(t, "db-pass", cfg.Database.Password)

	raw, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "db-pass")
	assert.NotContains(t, string(raw), "redis-pass")

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "db-pass", loaded.Database.Password)
	assert.Equal(t, "redis-pass", loaded.Storage.RedisPassword)
}

func TestManagerAcceptsPlainPassword(t *testing.T) {
	dir := t.TempDir()
	doc := map[string]any{"database": map[string]any{"host": "db.local", "password": "plain"}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), data, 0600))

	cfg, err := NewManager(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, "plain", cfg.Database.Password)
	assert.Equal(t, "db.local", cfg.Database.Host)
	// untouched sections keep defaults
	assert.Equal(t, StorageModeFile, cfg.Storage.Mode)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@remote:5432/sales")
	t.Setenv("SYNC_DEBOUNCE", "2s")
	t.Setenv("SYNC_BATCH_SIZE", "50")
	t.Setenv("SYNC_ENABLED", "false")
	t.Setenv("STORAGE_MODE", "kv")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, "postgres://u:p@remote:5432/sales", cfg.Database.DSN())
	assert.Equal(t, 2, cfg.Sync.DebounceSeconds)
	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.False(t, cfg.Sync.Enabled)
	assert.Equal(t, StorageModeKV, cfg.Storage.Mode)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NotContains(t, cfg.Database.Redacted(), ":p@")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Storage.KVBackend = KVBackendRedis
	assert.Error(t, cfg.Validate())
	cfg.Storage.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Validate())

	cfg.Sync.RowIDScheme = "md5"
	assert.Error(t, cfg.Validate())
}

func TestLoadUsesAppHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("DISTROAPP_HOME", home)
	t.Setenv("DATA_DIR", filepath.Join(home, "elsewhere"))

	cfg, paths, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, filepath.Join(home, "config.json"), paths.Config)
	assert.Equal(t, filepath.Join(home, "elsewhere"), paths.Data)
	assert.Equal(t, filepath.Join(home, "backups"), paths.Backups)
	assert.FileExists(t, paths.Config)
}
