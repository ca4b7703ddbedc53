package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"DistroApp/app/security"
)

// AppName is used for the application data directory and service names
const AppName = "DistroApp"

// ErrConfigNotFound is returned by Load when no config file exists yet
var ErrConfigNotFound = errors.New("config file not found")

// AppConfig holds all application configuration
type AppConfig struct {
	// Remote Postgres used for sync
	Database DatabaseConfig `json:"database"`

	// Local persistence tiers
	Storage StorageConfig `json:"storage"`

	Sync         SyncConfig         `json:"sync"`
	Log          LogConfig          `json:"log"`
	StatusServer StatusServerConfig `json:"status_server"`

	// First run flag
	FirstRun bool `json:"first_run"`
}

// DatabaseConfig holds remote database connection settings
type DatabaseConfig struct {
	URL      string `json:"url,omitempty"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`

	// AutoMigrate creates the remote tables on startup
	AutoMigrate bool `json:"auto_migrate"`
}

// StorageConfig selects where collections are persisted locally
type StorageConfig struct {
	// DataDir overrides <appdata>/data for the collection files
	DataDir       string `json:"data_dir,omitempty"`
	// Mode is "file" (collection files) or "kv" (key-value store only)
	Mode          string `json:"mode"`
	// KVBackend is "sqlite" or "redis"
	KVBackend     string `json:"kv_backend"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db"`
}

// SyncConfig holds remote sync settings
type SyncConfig struct {
	Enabled             bool   `json:"enabled"`
	DebounceSeconds     int    `json:"debounce_seconds"`
	BatchSize           int    `json:"batch_size"`
	ProbeTimeoutSeconds int    `json:"probe_timeout_seconds"`
	RowIDScheme         string `json:"row_id_scheme"`
	RowIDKey            string `json:"row_id_key,omitempty"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `json:"level"`
	Environment string `json:"environment"`
}

// StatusServerConfig holds the LAN status server settings
type StatusServerConfig struct {
	Enabled   bool `json:"enabled"`
	Port      int  `json:"port"`
	Advertise bool `json:"advertise"`
}

const (
	StorageModeFile = "file"
	StorageModeKV   = "kv"

	KVBackendSQLite = "sqlite"
	KVBackendRedis  = "redis"

	RowIDSchemeKeyed  = "keyed"
	RowIDSchemeLegacy = "legacy"
)

// Default returns the configuration written on first run
func Default() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "distro_app_db",
			Username: "postgres",
			SSLMode:  "disable",
		},
		Storage: StorageConfig{
			Mode:      StorageModeFile,
			KVBackend: KVBackendSQLite,
		},
		Sync: SyncConfig{
			Enabled:             true,
			DebounceSeconds:     5,
			BatchSize:           100,
			ProbeTimeoutSeconds: 10,
			RowIDScheme:         RowIDSchemeKeyed,
		},
		Log: LogConfig{
			Level:       "info",
			Environment: "production",
		},
		StatusServer: StatusServerConfig{
			Enabled:   false,
			Port:      8090,
			Advertise: true,
		},
		FirstRun: true,
	}
}

// DSN builds the Postgres connection string. URL takes priority over the individual fields.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode)
}

// Configured reports whether enough is set to attempt a remote connection
func (d DatabaseConfig) Configured() bool {
	return d.URL != "" || (d.Host != "" && d.Database != "")
}

// Redacted describes the target without credentials, for logs
func (d DatabaseConfig) Redacted() string {
	if d.URL != "" {
		u, err := url.Parse(d.URL)
		if err != nil {
			return "database url"
		}
		return u.Redacted()
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", d.Host, d.Port, d.Database, d.SSLMode)
}

// DebounceDelay is the quiet period before a background sync fires
func (s SyncConfig) DebounceDelay() time.Duration {
	return time.Duration(s.DebounceSeconds) * time.Second
}

// ProbeTimeout bounds the connectivity probe
func (s SyncConfig) ProbeTimeout() time.Duration {
	return time.Duration(s.ProbeTimeoutSeconds) * time.Second
}

// Validate checks enumerations and ranges
func (cfg *AppConfig) Validate() error {
	switch cfg.Storage.Mode {
	case StorageModeFile, StorageModeKV:
	default:
		return fmt.Errorf("invalid storage mode %q", cfg.Storage.Mode)
	}
	switch cfg.Storage.KVBackend {
	case KVBackendSQLite:
	case KVBackendRedis:
		if cfg.Storage.RedisAddr == "" {
			return fmt.Errorf("redis key-value backend requires redis_addr")
		}
	default:
		return fmt.Errorf("invalid key-value backend %q", cfg.Storage.KVBackend)
	}
	switch cfg.Sync.RowIDScheme {
	case RowIDSchemeKeyed, RowIDSchemeLegacy:
	default:
		return fmt.Errorf("invalid row id scheme %q", cfg.Sync.RowIDScheme)
	}
	if cfg.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync batch size must be positive, got %d", cfg.Sync.BatchSize)
	}
	if cfg.Sync.DebounceSeconds < 0 {
		return fmt.Errorf("sync debounce must not be negative, got %d", cfg.Sync.DebounceSeconds)
	}
	return nil
}

// Paths resolves the on-disk locations used by the application
type Paths struct {
	Root      string
	Config    string
	Data      string
	Backups   string
	Logs      string
	LocalDB   string
	SecretKey string
}

// AppDataDir returns the application data directory, creating it if needed.
// DISTROAPP_HOME overrides the platform default.
func AppDataDir() (string, error) {
	dir := os.Getenv("DISTROAPP_HOME")
	if dir == "" {
		base := os.Getenv("APPDATA")
		if base == "" {
			var err error
			base, err = os.UserConfigDir()
			if err != nil {
				return "", fmt.Errorf("could not determine config directory: %w", err)
			}
		}
		dir = filepath.Join(base, AppName)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("could not create application directory: %w", err)
	}
	return dir, nil
}

// ResolvePaths lays out the application directory
func ResolvePaths(root string, cfg *AppConfig) Paths {
	p := Paths{
		Root:      root,
		Config:    filepath.Join(root, "config.json"),
		Data:      filepath.Join(root, "data"),
		Backups:   filepath.Join(root, "backups"),
		Logs:      filepath.Join(root, "logs"),
		LocalDB:   filepath.Join(root, "local.db"),
		SecretKey: filepath.Join(root, security.KeyFileName),
	}
	if cfg != nil && cfg.Storage.DataDir != "" {
		p.Data = cfg.Storage.DataDir
	}
	return p
}

// Manager reads and writes config.json inside the application directory
type Manager struct {
	path  string
	vault *security.Vault
}

// NewManager creates a manager for the config file in dir
func NewManager(dir string) *Manager {
	return &Manager{
		path:  filepath.Join(dir, "config.json"),
		vault: security.NewVault(filepath.Join(dir, security.KeyFileName)),
	}
}

// Path returns the config file location
func (m *Manager) Path() string {
	return m.path
}

// Exists checks if the config file exists
func (m *Manager) Exists() (bool, error) {
	_, err := os.Stat(m.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Load reads config.json and decrypts sensitive fields
func (m *Manager) Load() (*AppConfig, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	// Missing keys keep their defaults
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}

	cfg.Database.Password = m.vault.DecryptOrPlain(cfg.Database.Password)
	cfg.Storage.RedisPassword = m.vault.DecryptOrPlain(cfg.Storage.RedisPassword)

	return cfg, nil
}

// Save writes config.json after encrypting sensitive fields
func (m *Manager) Save(cfg *AppConfig) error {
	// Work on a copy so the caller keeps plain values
	out := *cfg

	var err error
	if out.Database.Password, err = m.vault.Encrypt(cfg.Database.Password); err != nil {
		return fmt.Errorf("could not encrypt database password: %w", err)
	}
	if out.Storage.RedisPassword, err = m.vault.Encrypt(cfg.Storage.RedisPassword); err != nil {
		return fmt.Errorf("could not encrypt redis password: %w", err)
	}

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}
	return nil
}

// LoadOrCreate loads config.json, writing the defaults first if it does not exist
func (m *Manager) LoadOrCreate() (*AppConfig, error) {
	cfg, err := m.Load()
	if errors.Is(err, ErrConfigNotFound) {
		cfg = Default()
		if err := m.Save(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

// MarkSetupComplete clears the first run flag
func (m *Manager) MarkSetupComplete() error {
	cfg, err := m.Load()
	if err != nil {
		return err
	}
	cfg.FirstRun = false
	return m.Save(cfg)
}
