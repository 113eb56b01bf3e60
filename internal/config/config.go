// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (SAFETRANSIT_* plus secrets like TELEGRAM_BOT_TOKEN)
//  2. Config file (~/.safetransit/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive values (bot token, API key, database password) are masked in
// MarshalJSON and never logged.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidServerPort indicates the HTTP server port is out of range.
	ErrInvalidServerPort = errors.New("invalid server port")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrMissingTelegramToken indicates the bot command was run without a token.
	ErrMissingTelegramToken = errors.New("missing telegram bot token")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidPollTimeout indicates the Telegram long-poll timeout is out of range.
	ErrInvalidPollTimeout = errors.New("invalid poll timeout")
)

// DefaultModelName is the model used for report analysis and safety advice.
const DefaultModelName = "gemini-2.5-flash"

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI model configuration. GeminiAPIKey empty means AI analysis is
	// disabled and the service degrades to confirmation-only responses.
	ModelName    string  `mapstructure:"model_name" json:"model_name"`
	Temperature  float32 `mapstructure:"temperature" json:"temperature"`
	GeminiAPIKey string  `mapstructure:"gemini_api_key" json:"gemini_api_key"`

	// HTTP server
	ServerHost string `mapstructure:"server_host" json:"server_host"`
	ServerPort int    `mapstructure:"server_port" json:"server_port"`
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`

	// Telegram bot
	TelegramToken   string `mapstructure:"telegram_token" json:"telegram_token"`
	PollTimeoutSecs int    `mapstructure:"poll_timeout_secs" json:"poll_timeout_secs"`

	// PostgreSQL report store. Empty host disables persistence and the
	// service falls back to the in-memory store.
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Stop registry override. Empty path uses the built-in Padova stops.
	StopsFile string `mapstructure:"stops_file" json:"stops_file"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load reads configuration from defaults, config file, and environment.
// Validation runs immediately so callers fail fast on bad configuration.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}

	configDir := filepath.Join(home, ".safetransit")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
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

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", 0.2)

	viper.SetDefault("server_host", "localhost")
	viper.SetDefault("server_port", 8090)
	viper.SetDefault("rate_burst", 60)

	viper.SetDefault("poll_timeout_secs", 30)

	// PostgreSQL is opt-in: no default host, memory store otherwise.
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "safetransit")
	viper.SetDefault("postgres_db_name", "safetransit")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables.
// Secrets are only accepted from the environment, never the config file,
// except for local development setups that opt in via the file anyway.
func bindEnvVariables() {
	viper.SetEnvPrefix("SAFETRANSIT")
	viper.AutomaticEnv()

	// Conventional secret names used by the hosting platforms.
	_ = viper.BindEnv("telegram_token", "TELEGRAM_BOT_TOKEN", "SAFETRANSIT_TELEGRAM_TOKEN")
	_ = viper.BindEnv("gemini_api_key", "GEMINI_API_KEY", "SAFETRANSIT_GEMINI_API_KEY")
	_ = viper.BindEnv("postgres_password", "SAFETRANSIT_POSTGRES_PASSWORD")
}

// HasPostgres reports whether a PostgreSQL report store is configured.
func (c *Config) HasPostgres() bool {
	return c.PostgresHost != ""
}

// HasTelegram reports whether the Telegram transport is configured.
func (c *Config) HasTelegram() bool {
	return c.TelegramToken != ""
}

// HasAI reports whether the AI analysis collaborator is configured.
func (c *Config) HasAI() bool {
	return c.GeminiAPIKey != ""
}

// ServerAddr returns the host:port listen address for the HTTP server.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// MarshalJSON masks sensitive fields so the config can be logged or dumped.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	if masked.TelegramToken != "" {
		masked.TelegramToken = "***"
	}
	if masked.GeminiAPIKey != "" {
		masked.GeminiAPIKey = "***"
	}
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "***"
	}
	return json.Marshal(masked)
}
