package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load resolves the application directory, reads .env, loads or creates config.json
// and applies environment overrides on top.
func Load() (*AppConfig, Paths, error) {
	// .env is optional
	_ = godotenv.Load()

	root, err := AppDataDir()
	if err != nil {
		return nil, Paths{}, err
	}

	cfg, err := NewManager(root).LoadOrCreate()
	if err != nil {
		return nil, Paths{}, err
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, Paths{}, err
	}

	return cfg, ResolvePaths(root, cfg), nil
}

// ApplyEnv overrides file values with environment variables when they are set
func (cfg *AppConfig) ApplyEnv() {
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.Username = getEnv("DB_USER", cfg.Database.Username)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.AutoMigrate = getEnvAsBool("DB_AUTO_MIGRATE", cfg.Database.AutoMigrate)

	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.Mode = getEnv("STORAGE_MODE", cfg.Storage.Mode)
	cfg.Storage.KVBackend = getEnv("KV_BACKEND", cfg.Storage.KVBackend)
	cfg.Storage.RedisAddr = getEnv("REDIS_ADDR", cfg.Storage.RedisAddr)
	cfg.Storage.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Storage.RedisPassword)
	cfg.Storage.RedisDB = getEnvAsInt("REDIS_DB", cfg.Storage.RedisDB)

	cfg.Sync.Enabled = getEnvAsBool("SYNC_ENABLED", cfg.Sync.Enabled)
	cfg.Sync.DebounceSeconds = int(getEnvAsDuration("SYNC_DEBOUNCE", cfg.Sync.DebounceDelay()) / time.Second)
	cfg.Sync.BatchSize = getEnvAsInt("SYNC_BATCH_SIZE", cfg.Sync.BatchSize)
	cfg.Sync.ProbeTimeoutSeconds = int(getEnvAsDuration("SYNC_PROBE_TIMEOUT", cfg.Sync.ProbeTimeout()) / time.Second)
	cfg.Sync.RowIDScheme = getEnv("SYNC_ROW_ID_SCHEME", cfg.Sync.RowIDScheme)
	cfg.Sync.RowIDKey = getEnv("SYNC_ROW_ID_KEY", cfg.Sync.RowIDKey)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Environment = getEnv("APP_ENV", cfg.Log.Environment)

	cfg.StatusServer.Enabled = getEnvAsBool("STATUS_SERVER_ENABLED", cfg.StatusServer.Enabled)
	cfg.StatusServer.Port = getEnvAsInt("STATUS_SERVER_PORT", cfg.StatusServer.Port)
	cfg.StatusServer.Advertise = getEnvAsBool("STATUS_SERVER_MDNS", cfg.StatusServer.Advertise)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
