// Package config загружает настройки клиента и сервера: значения по умолчанию,
// необязательный файл конфигурации и переменные окружения FILAMENTDB_*.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "FILAMENTDB"

// Backend варианты локального хранилища клиента
const (
	BackendBolt   = "bolt"
	BackendFile   = "file"
	BackendRemote = "remote"
)

var (
	// ErrInvalidConfig возвращается при недопустимых значениях настроек
	ErrInvalidConfig = errors.New("invalid config")
)

// LogConfig настройки логирования
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // text или json
	File       string `mapstructure:"file"`   // пустое значение пишет в stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// BackupConfig назначение для export
type BackupConfig struct {
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3Prefix    string `mapstructure:"s3_prefix"`
	S3PathStyle bool   `mapstructure:"s3_path_style"`
	Dir         string `mapstructure:"dir"`
}

// ClientConfig настройки клиента
type ClientConfig struct {
	Log           LogConfig     `mapstructure:"log"`
	Backup        BackupConfig  `mapstructure:"backup"`
	ServerURL     string        `mapstructure:"server_url"`
	APIKey        string        `mapstructure:"api_key"`
	Token         string        `mapstructure:"token"`
	Backend       string        `mapstructure:"backend"`
	DBPath        string        `mapstructure:"db_path"`
	DataDir       string        `mapstructure:"data_dir"`
	SyncInterval  time.Duration `mapstructure:"sync_interval"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	Retention     time.Duration `mapstructure:"retention"`
	Timeout       time.Duration `mapstructure:"timeout"`
	LogCapacity   int           `mapstructure:"log_capacity"`
}

// ServerConfig настройки сервера
type ServerConfig struct {
	Log             LogConfig     `mapstructure:"log"`
	Addr            string        `mapstructure:"addr"`
	DBPath          string        `mapstructure:"db_path"`
	APIKeyHash      string        `mapstructure:"api_key_hash"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	RateWindow      time.Duration `mapstructure:"rate_window"`
	RateLimit       int           `mapstructure:"rate_limit"`
	SyncRateLimit   int           `mapstructure:"sync_rate_limit"`
	ImportRateLimit int           `mapstructure:"import_rate_limit"`
	Metrics         bool          `mapstructure:"metrics"`
}

func setLogDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setLogDefaults(v)
	return v
}

// NewClient создает viper с настройками клиента по умолчанию.
// Флаги cobra привязываются к нему через BindPFlag до вызова LoadClient
func NewClient() *viper.Viper {
	v := newViper()
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("api_key", "")
	v.SetDefault("token", "")
	v.SetDefault("backend", BackendBolt)
	v.SetDefault("db_path", "filamentdb.db")
	v.SetDefault("data_dir", "filaments")
	v.SetDefault("sync_interval", 5*time.Minute)
	v.SetDefault("sweep_interval", time.Hour)
	v.SetDefault("cache_ttl", 30*time.Second)
	v.SetDefault("retention", 30*24*time.Hour)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("log_capacity", 50)
	v.SetDefault("backup.s3_bucket", "")
	v.SetDefault("backup.s3_region", "")
	v.SetDefault("backup.s3_endpoint", "")
	v.SetDefault("backup.s3_prefix", "backups/")
	v.SetDefault("backup.s3_path_style", false)
	v.SetDefault("backup.dir", "")
	return v
}

// NewServer создает viper с настройками сервера по умолчанию
func NewServer() *viper.Viper {
	v := newViper()
	v.SetDefault("addr", ":8080")
	v.SetDefault("db_path", "filamentdb-server.db")
	v.SetDefault("api_key_hash", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", 30*24*time.Hour)
	v.SetDefault("rate_window", time.Minute)
	v.SetDefault("rate_limit", 600)
	v.SetDefault("sync_rate_limit", 120)
	v.SetDefault("import_rate_limit", 10)
	v.SetDefault("metrics", true)
	return v
}

// LoadClient читает файл file (если задан) и собирает ClientConfig
func LoadClient(v *viper.Viper, file string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := load(v, file, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadServer читает файл file (если задан) и собирает ServerConfig
func LoadServer(v *viper.Viper, file string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := load(v, file, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(v *viper.Viper, file string, out any) error {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// Validate проверяет настройки клиента
func (c *ClientConfig) Validate() error {
	switch c.Backend {
	case BackendBolt, BackendFile, BackendRemote:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.SyncInterval <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("%w: retention must be positive", ErrInvalidConfig)
	}
	if c.LogCapacity <= 0 {
		return fmt.Errorf("%w: log capacity must be positive", ErrInvalidConfig)
	}
	return c.Log.Validate()
}

// Validate проверяет настройки сервера
func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr is required", ErrInvalidConfig)
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		return fmt.Errorf("%w: rate limit must be positive", ErrInvalidConfig)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: token ttl must be positive", ErrInvalidConfig)
	}
	return c.Log.Validate()
}

// Validate проверяет настройки логирования
func (c LogConfig) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Format)
	}
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Level)
	}
	return nil
}
