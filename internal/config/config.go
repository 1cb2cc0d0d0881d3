package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Refresh       RefreshConfig       `mapstructure:"refresh"`
	Stats         StatsConfig         `mapstructure:"stats"`
	Usage         UsageConfig         `mapstructure:"usage"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Backup        BackupConfig        `mapstructure:"backup"`
	Defaults      storage.Settings    `mapstructure:"defaults"`
}

// ServerConfig defines the HTTP listener
type ServerConfig struct {
	BindAddress    string `mapstructure:"bind_address"`
	HTTPPort       int    `mapstructure:"http_port"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type   string      `mapstructure:"type"` // redis, bolt, sqlite or memory
	Redis  RedisConfig `mapstructure:"redis"`
	Bolt   FileConfig  `mapstructure:"bolt"`
	SQLite FileConfig  `mapstructure:"sqlite"`
	Cache  CacheConfig `mapstructure:"cache"`
}

// RedisConfig defines the Redis connection
type RedisConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	PoolSize       int    `mapstructure:"pool_size"`
	MinIdleConns   int    `mapstructure:"min_idle_conns"`
	DialTimeout    string `mapstructure:"dial_timeout"`
	ReadTimeout    string `mapstructure:"read_timeout"`
	WriteTimeout   string `mapstructure:"write_timeout"`
	ConnectTimeout string `mapstructure:"connect_timeout"` // total time spent retrying the first ping
}

// FileConfig points an embedded backend at its database file
type FileConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig defines the record read cache
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"` // applies to bolt and memory only
	Size    int    `mapstructure:"size"`
	TTL     string `mapstructure:"ttl"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// RefreshConfig defines refresh scheduler timings
type RefreshConfig struct {
	PollInterval        string `mapstructure:"poll_interval"`
	CoalesceDelay       string `mapstructure:"coalesce_delay"`
	MinInterval         string `mapstructure:"min_interval"`
	PauseCommitInterval string `mapstructure:"pause_commit_interval"`
}

// StatsConfig defines aggregation windows
type StatsConfig struct {
	StreakWindowDays int `mapstructure:"streak_window_days"`
	TrendWindowDays  int `mapstructure:"trend_window_days"`
	YearWindowDays   int `mapstructure:"year_window_days"`
}

// UsageConfig defines usage tracking settings
type UsageConfig struct {
	WatchInterval string `mapstructure:"watch_interval"`
}

// NotificationsConfig defines desktop notifications
type NotificationsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	AppName string `mapstructure:"app_name"`
	Sound   bool   `mapstructure:"sound"` // play the alert sound with each notification
}

// BackupConfig defines scheduled backups
type BackupConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Time    string `mapstructure:"time"` // HH:MM, local
	Keep    int    `mapstructure:"keep"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	v.SetEnvPrefix("SNUSKOLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file; a missing file means defaults and environment only
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.http_port", 8420)
	v.SetDefault("server.metrics_enabled", true)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.bolt.path", "/var/lib/snuskoll/snuskoll.bolt")
	v.SetDefault("storage.sqlite.path", "/var/lib/snuskoll/snuskoll.db")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.connect_timeout", "30s")
	v.SetDefault("storage.cache.enabled", true)
	v.SetDefault("storage.cache.size", 1024)
	v.SetDefault("storage.cache.ttl", "10m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	// Refresh defaults
	v.SetDefault("refresh.poll_interval", "500ms")
	v.SetDefault("refresh.coalesce_delay", "100ms")
	v.SetDefault("refresh.min_interval", "100ms")
	v.SetDefault("refresh.pause_commit_interval", "1s")

	// Stats defaults
	v.SetDefault("stats.streak_window_days", 30)
	v.SetDefault("stats.trend_window_days", 7)
	v.SetDefault("stats.year_window_days", 365)

	// Usage defaults
	v.SetDefault("usage.watch_interval", "1s")

	// Notification defaults
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.app_name", "Snuskoll")
	v.SetDefault("notifications.sound", false)

	// Backup defaults
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.dir", "/var/lib/snuskoll/backups")
	v.SetDefault("backup.time", "03:00")
	v.SetDefault("backup.keep", 7)

	// Seed settings used the first time the settings store is empty
	d := storage.DefaultSettings()
	v.SetDefault("defaults.daily_intake", d.DailyIntake)
	v.SetDefault("defaults.target_daily_intake", d.TargetDailyIntake)
	v.SetDefault("defaults.cost_per_can", d.CostPerCan)
	v.SetDefault("defaults.portions_per_can", d.PortionsPerCan)
	v.SetDefault("defaults.session_time", d.SessionTime)
	v.SetDefault("defaults.target_session_time", d.TargetSessionTime)
	v.SetDefault("defaults.wait_time", d.WaitTime)
	v.SetDefault("defaults.target_wait_time", d.TargetWaitTime)
	v.SetDefault("defaults.nicotine_content", d.NicotineContent)
	v.SetDefault("defaults.goal", string(d.Goal))
	v.SetDefault("defaults.pace", string(d.Pace))
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", cfg.Server.HTTPPort)
	}

	// Storage backend is chosen here and nowhere else
	switch cfg.Storage.Type {
	case "":
		cfg.Storage.Type = "bolt"
		fallthrough
	case "bolt":
		if err := ensureParent(cfg.Storage.Bolt.Path); err != nil {
			return err
		}
	case "sqlite":
		if err := ensureParent(cfg.Storage.SQLite.Path); err != nil {
			return err
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s (must be redis, bolt, sqlite, or memory)", cfg.Storage.Type)
	}

	durations := map[string]string{
		"refresh.poll_interval":         cfg.Refresh.PollInterval,
		"refresh.coalesce_delay":        cfg.Refresh.CoalesceDelay,
		"refresh.min_interval":          cfg.Refresh.MinInterval,
		"refresh.pause_commit_interval": cfg.Refresh.PauseCommitInterval,
		"usage.watch_interval":          cfg.Usage.WatchInterval,
		"storage.cache.ttl":             cfg.Storage.Cache.TTL,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if cfg.Stats.StreakWindowDays < 1 || cfg.Stats.TrendWindowDays < 1 || cfg.Stats.YearWindowDays < 1 {
		return fmt.Errorf("stats windows must be at least one day")
	}

	if cfg.Backup.Enabled {
		if _, err := time.Parse("15:04", cfg.Backup.Time); err != nil {
			return fmt.Errorf("invalid backup.time: %w", err)
		}
		if cfg.Backup.Keep < 1 {
			return fmt.Errorf("backup.keep must be at least 1")
		}
	}

	return nil
}

// ParseDuration parses a duration string with a fallback
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func ensureParent(path string) error {
	if path == "" {
		return fmt.Errorf("storage path is required")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return nil
}
