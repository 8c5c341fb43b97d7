// ABOUTME: Vitals configuration: YAML file in the XDG config dir plus VITALS_* env overrides.
// ABOUTME: Also the storage backend factory used by every entry point.

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/vitals/internal/storage"
	"gopkg.in/yaml.v3"
)

// Lock kinds.
const (
	LockLocal  = "local"
	LockValkey = "valkey"
)

// Config stores vitals configuration.
type Config struct {
	// Backend selects the storage backend: "sqlite" (default), "postgres", or "badger".
	Backend string `yaml:"backend,omitempty"`

	// DataDir is the root directory for local storage. SQLite puts vitals.db
	// here; badger uses a badger/ folder. Supports ~ expansion. Defaults to
	// ~/.local/share/vitals.
	DataDir string `yaml:"data_dir,omitempty"`

	PostgresDSN string `yaml:"postgres_dsn,omitempty"`

	// User owns every record this installation writes.
	User string `yaml:"user,omitempty"`

	Log    LogConfig    `yaml:"log"`
	Lock   LockConfig   `yaml:"lock"`
	HTTP   HTTPConfig   `yaml:"http"`
	S3     S3Config     `yaml:"s3"`
	Ingest IngestConfig `yaml:"ingest"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type LockConfig struct {
	Kind string        `yaml:"kind"`
	Addr string        `yaml:"addr,omitempty"`
	TTL  time.Duration `yaml:"ttl"`
	Wait time.Duration `yaml:"wait"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxUploadMB  int64         `yaml:"max_upload_mb"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Secure    bool   `yaml:"secure"`
}

type IngestConfig struct {
	MaxStoredErrors        int     `yaml:"max_stored_errors"`
	IncludeMinuteHeartRate bool    `yaml:"include_minute_heart_rate"`
	IncludeCaloriesBurned  bool    `yaml:"include_calories_burned"`
	RemoveOutliers         bool    `yaml:"remove_outliers"`
	OutlierThreshold       float64 `yaml:"outlier_threshold"`
}

// Default returns a config with every default filled in.
func Default() *Config {
	return &Config{
		Backend: storage.BackendSQLite,
		User:    "local",
		Log:     LogConfig{Level: "info", Format: "text"},
		Lock:    LockConfig{Kind: LockLocal, TTL: 5 * time.Minute, Wait: 30 * time.Second},
		HTTP: HTTPConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			MaxUploadMB:  512,
		},
		S3:     S3Config{Secure: true},
		Ingest: IngestConfig{MaxStoredErrors: 100, OutlierThreshold: 3.0},
	}
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return storage.BackendSQLite
	}
	return c.Backend
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return storage.DataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetUser returns the configured user, defaulting to "local".
func (c *Config) GetUser() string {
	if c.User == "" {
		return "local"
	}
	return c.User
}

// Validate rejects settings no backend can honor.
func (c *Config) Validate() error {
	backend := c.GetBackend()
	if !slices.Contains(storage.Backends, backend) {
		return fmt.Errorf("unknown backend: %q", backend)
	}
	if backend == storage.BackendPostgres && c.PostgresDSN == "" {
		return errors.New("postgres backend requires postgres_dsn")
	}
	switch c.Lock.Kind {
	case "", LockLocal:
	case LockValkey:
		if c.Lock.Addr == "" {
			return errors.New("valkey lock requires lock.addr")
		}
	default:
		return fmt.Errorf("unknown lock kind: %q", c.Lock.Kind)
	}
	if c.Ingest.OutlierThreshold < 0 {
		return errors.New("ingest.outlier_threshold must not be negative")
	}
	if c.Log.Level != "" {
		if _, err := log.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStorage opens the configured backend.
func (c *Config) OpenStorage(ctx context.Context, logger *log.Logger) (storage.Store, error) {
	dataDir := c.GetDataDir()

	switch backend := c.GetBackend(); backend {
	case storage.BackendSQLite:
		return storage.Open(filepath.Join(dataDir, "vitals.db"))
	case storage.BackendPostgres:
		return storage.OpenPostgres(ctx, c.PostgresDSN)
	case storage.BackendBadger:
		return storage.OpenBadger(filepath.Join(dataDir, "badger"), logger)
	default:
		return nil, fmt.Errorf("unknown backend: %q", backend)
	}
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "vitals", "config.yaml")
}

// Load reads config from the default path and applies env overrides.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom reads config from path. A missing file yields defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VITALS_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("VITALS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("VITALS_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("VITALS_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("VITALS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("VITALS_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("VITALS_LOCK"); v != "" {
		cfg.Lock.Kind = v
	}
	if v := os.Getenv("VITALS_VALKEY_ADDR"); v != "" {
		cfg.Lock.Addr = v
	}
	if v := os.Getenv("VITALS_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("VITALS_MAX_UPLOAD_MB"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.HTTP.MaxUploadMB = parsed
		}
	}
	if v := os.Getenv("VITALS_S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv("VITALS_S3_ACCESS_KEY"); v != "" {
		cfg.S3.AccessKey = v
	}
	if v := os.Getenv("VITALS_S3_SECRET_KEY"); v != "" {
		cfg.S3.SecretKey = v
	}
	if v := os.Getenv("VITALS_S3_SECURE"); v != "" {
		cfg.S3.Secure = v == "1" || strings.EqualFold(v, "true")
	}
}

// Save writes config to the default path.
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo writes config to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
