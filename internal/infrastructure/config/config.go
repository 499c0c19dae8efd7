package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Reminder ReminderConfig `mapstructure:"reminder"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// RelayConfig holds configuration of the relay HTTP process
type RelayConfig struct {
	Port              int           `mapstructure:"port"`
	Host              string        `mapstructure:"host"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	UpstreamTimeout   time.Duration `mapstructure:"upstream_timeout"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

// StorageConfig holds configuration of the local persistence backends
type StorageConfig struct {
	DatabasePath  string `mapstructure:"database_path"`
	KVBackend     string `mapstructure:"kv_backend"`
	DocumentPath  string `mapstructure:"document_path"`
	SuggestedName string `mapstructure:"suggested_name"`
	DocumentsDir  string `mapstructure:"documents_dir"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// NotifyConfig holds configuration of the notification client
type NotifyConfig struct {
	RelayURL        string        `mapstructure:"relay_url"`
	BatchInterval   time.Duration `mapstructure:"batch_interval"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	DefaultAssignee string        `mapstructure:"default_assignee"`
}

// ReminderConfig holds configuration of scheduled reminders
type ReminderConfig struct {
	Schedule string `mapstructure:"schedule"`
	Timezone string `mapstructure:"timezone"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from defaults, an optional config file, a .env
// file and the environment, in increasing precedence.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists (ignore errors)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvVars(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	dataDir := DefaultDataDir()

	// App defaults
	v.SetDefault("app.name", "tasksync")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Relay defaults
	v.SetDefault("relay.port", 3001)
	v.SetDefault("relay.host", "127.0.0.1")
	v.SetDefault("relay.read_timeout", "30s")
	v.SetDefault("relay.write_timeout", "30s")
	v.SetDefault("relay.idle_timeout", "120s")
	v.SetDefault("relay.upstream_timeout", "10s")
	v.SetDefault("relay.rate_limit_requests", 0)
	v.SetDefault("relay.rate_limit_window", "1m")

	// Storage defaults
	v.SetDefault("storage.database_path", filepath.Join(dataDir, "tasksync.db"))
	v.SetDefault("storage.kv_backend", "sqlite")
	v.SetDefault("storage.document_path", "")
	v.SetDefault("storage.suggested_name", "tasks.json")
	v.SetDefault("storage.documents_dir", DefaultDocumentsDir())

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "tasksync:")

	// Notify defaults
	v.SetDefault("notify.relay_url", "http://localhost:3001/proxy")
	v.SetDefault("notify.batch_interval", "300ms")
	v.SetDefault("notify.request_timeout", "15s")
	v.SetDefault("notify.default_assignee", "me")

	// Reminder defaults
	v.SetDefault("reminder.schedule", "0 0 9 * * *")
	v.SetDefault("reminder.timezone", "Local")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stderr")
	v.SetDefault("logger.filename", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.environment", "APP_ENVIRONMENT")
	v.BindEnv("app.debug", "APP_DEBUG")

	// Relay
	v.BindEnv("relay.port", "RELAY_PORT")
	v.BindEnv("relay.host", "RELAY_HOST")
	v.BindEnv("relay.read_timeout", "RELAY_READ_TIMEOUT")
	v.BindEnv("relay.write_timeout", "RELAY_WRITE_TIMEOUT")
	v.BindEnv("relay.idle_timeout", "RELAY_IDLE_TIMEOUT")
	v.BindEnv("relay.upstream_timeout", "RELAY_UPSTREAM_TIMEOUT")
	v.BindEnv("relay.rate_limit_requests", "RELAY_RATE_LIMIT_REQUESTS")
	v.BindEnv("relay.rate_limit_window", "RELAY_RATE_LIMIT_WINDOW")

	// Storage
	v.BindEnv("storage.database_path", "TASKSYNC_DB_PATH")
	v.BindEnv("storage.kv_backend", "TASKSYNC_KV_BACKEND")
	v.BindEnv("storage.document_path", "TASKSYNC_DOCUMENT")
	v.BindEnv("storage.suggested_name", "TASKSYNC_SUGGESTED_NAME")
	v.BindEnv("storage.documents_dir", "TASKSYNC_DOCUMENTS_DIR")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("redis.key_prefix", "REDIS_KEY_PREFIX")

	// Notify
	v.BindEnv("notify.relay_url", "TASKSYNC_RELAY_URL")
	v.BindEnv("notify.batch_interval", "TASKSYNC_BATCH_INTERVAL")
	v.BindEnv("notify.request_timeout", "TASKSYNC_REQUEST_TIMEOUT")
	v.BindEnv("notify.default_assignee", "TASKSYNC_DEFAULT_ASSIGNEE")

	// Reminder
	v.BindEnv("reminder.schedule", "TASKSYNC_REMINDER_SCHEDULE")
	v.BindEnv("reminder.timezone", "TASKSYNC_REMINDER_TZ")

	// Logger
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.format", "LOG_FORMAT")
	v.BindEnv("logger.output", "LOG_OUTPUT")
	v.BindEnv("logger.filename", "LOG_FILENAME")

	// Metrics
	v.BindEnv("metrics.enabled", "ENABLE_METRICS")
	v.BindEnv("metrics.port", "METRICS_PORT")
}

func validateConfig(cfg *Config) error {
	if cfg.Relay.Port <= 0 || cfg.Relay.Port > 65535 {
		return fmt.Errorf("relay port must be between 1 and 65535")
	}

	if cfg.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database path is required")
	}

	switch cfg.Storage.KVBackend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("unknown kv backend %q (want sqlite or redis)", cfg.Storage.KVBackend)
	}

	if cfg.Notify.RelayURL == "" {
		return fmt.Errorf("notify relay url is required")
	}

	if cfg.Notify.BatchInterval < 0 {
		return fmt.Errorf("notify batch interval must not be negative")
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("metrics port must be between 1 and 65535")
	}

	return nil
}

// GetAddr returns the relay listen address
func (cfg *RelayConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// GetAddr returns the Redis address
func (cfg *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// Location resolves the reminder timezone.
func (cfg *ReminderConfig) Location() (*time.Location, error) {
	if cfg.Timezone == "" || cfg.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(cfg.Timezone)
}

// DefaultDataDir returns the directory for the embedded database.
// Uses XDG_DATA_HOME if set, otherwise $HOME/.local/share.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "tasksync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tasksync"
	}
	return filepath.Join(home, ".local", "share", "tasksync")
}

// DefaultDocumentsDir returns the directory offered for new document files.
func DefaultDocumentsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Documents")
}
