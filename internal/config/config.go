// Package config provides application configuration with multi-source priority.
//
// Sources (highest to lowest):
//  1. Environment variables
//  2. Config file (~/.relay/config.yaml or ./config.yaml)
//  3. Defaults
//
// Model and search credentials are NOT configured here: the stream endpoint
// receives them per request in the body, so the server itself holds no
// provider secrets. Only the model name and provider timeout are server-side
// settings, passed into each orchestrator run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidAddr indicates the listen address is empty.
	ErrInvalidAddr = errors.New("invalid listen address")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidTimeout indicates the provider timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid provider timeout")
)

// Config stores application configuration.
type Config struct {
	// HTTP server
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst"`

	// Model configuration. ModelName is passed into each orchestrator run;
	// there is no process-wide mutable model selection.
	ModelName string `mapstructure:"model_name"`

	// ProviderTimeoutSec bounds a single model or search provider call so a
	// hung provider cannot pin an SSE connection forever.
	ProviderTimeoutSec int `mapstructure:"provider_timeout_sec"`

	// Storage
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load loads configuration. Priority: env > config file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".relay")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// ProviderTimeout returns the provider call budget as a duration.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSec) * time.Second
}

func setDefaults() {
	viper.SetDefault("addr", "127.0.0.1:8900")
	viper.SetDefault("cors_origins", []string{"http://localhost:8081"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)

	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("provider_timeout_sec", 120)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "relay")
	viper.SetDefault("postgres_password", "relay_dev_password")
	viper.SetDefault("postgres_db_name", "relay")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment overrides explicitly.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("addr", "RELAY_ADDR")
	mustBind("cors_origins", "RELAY_CORS_ORIGINS")
	mustBind("trust_proxy", "RELAY_TRUST_PROXY")
	mustBind("rate_burst", "RELAY_RATE_BURST")
	mustBind("model_name", "RELAY_MODEL_NAME")
	mustBind("provider_timeout_sec", "RELAY_PROVIDER_TIMEOUT_SEC")
	mustBind("log_level", "RELAY_LOG_LEVEL")
	mustBind("log_json", "RELAY_LOG_JSON")
	mustBind("postgres_password", "RELAY_POSTGRES_PASSWORD")
}

// Validate validates configuration values. Returns sentinel errors that can
// be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Addr == "" {
		return fmt.Errorf("%w: addr cannot be empty", ErrInvalidAddr)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	if c.ProviderTimeoutSec < 1 || c.ProviderTimeoutSec > 600 {
		return fmt.Errorf("%w: must be between 1 and 600 seconds, got %d", ErrInvalidTimeout, c.ProviderTimeoutSec)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	return nil
}
