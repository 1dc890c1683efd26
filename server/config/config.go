// Package config loads the server settings from yumekai.yaml, a .env file
// and YUMEKAI_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/hazavi/yumekai-sub000/server/domain"
)

const envPrefix = "YUMEKAI"

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	Port            int
	StoreBackend    string
	DBPath          string
	RedisAddr       string
	RedisPassword   string
	RedisKeyPrefix  string
	CatalogURL      string
	CatalogTimeout  time.Duration
	InactiveTimeout time.Duration
	SweepInterval   time.Duration
	LogLevel        string
	LogFormat       string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 50051)
	v.SetDefault("store_backend", BackendSQLite)
	v.SetDefault("db_path", "./yumekai.db")
	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_key_prefix", "yumekai:")
	v.SetDefault("catalog_url", "http://localhost:8000/api")
	v.SetDefault("catalog_timeout", 5*time.Second)
	v.SetDefault("inactive_timeout", domain.InactiveTimeout)
	v.SetDefault("sweep_interval", domain.SweepInterval)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads the configuration. configFile may be empty, in which case
// yumekai.yaml is looked up in the working directory and $HOME/.yumekai.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("failed to read .env file")
	}

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("yumekai")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.yumekai")
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		Port:            v.GetInt("port"),
		StoreBackend:    strings.ToLower(v.GetString("store_backend")),
		DBPath:          v.GetString("db_path"),
		RedisAddr:       v.GetString("redis_addr"),
		RedisPassword:   v.GetString("redis_password"),
		RedisKeyPrefix:  v.GetString("redis_key_prefix"),
		CatalogURL:      v.GetString("catalog_url"),
		CatalogTimeout:  v.GetDuration("catalog_timeout"),
		InactiveTimeout: v.GetDuration("inactive_timeout"),
		SweepInterval:   v.GetDuration("sweep_interval"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.StoreBackend {
	case BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("db_path is required for the %s backend", BackendSQLite)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the %s backend", BackendRedis)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store_backend %q", c.StoreBackend)
	}
	if c.CatalogURL == "" {
		return fmt.Errorf("catalog_url is required")
	}
	if c.InactiveTimeout <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("inactive_timeout and sweep_interval must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	return nil
}

// ConfigureLogging applies the log level and format to the standard logrus
// logger.
func (c Config) ConfigureLogging() {
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)
}
