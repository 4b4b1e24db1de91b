// Package config provides dev-server configuration loading from environment
// variables and .env files. It uses viper for flexible configuration
// management with sensible defaults.
package config

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds all dev-server configuration loaded from environment
// variables or a .env file. Priority: environment variables > .env > defaults.
type Config struct {
	AppEnv         string // Application environment (dev, staging, prod)
	HTTPAddr       string // HTTP server bind address (e.g., ":8080")
	MetricsAddr    string // Metrics server bind address
	RulesPath      string // Path to the yaml rules file
	LogLevel       string // zerolog level (trace, debug, info, warn, error)
	RateLimitPerIP int    // Rate limit per client IP (requests/minute, 0 disables)
	OTLPEndpoint   string // OTLP trace collector endpoint ("" disables tracing)
}

// Load reads configuration from environment variables and .env file (if
// present). Environment variables take precedence over .env file values.
// Use Validate() to check the result before starting servers.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env") // Optional; silently ignored if file doesn't exist
	_ = v.ReadInConfig()    // Ignore error - .env is optional
	v.AutomaticEnv()        // Read from environment variables

	setConfigDefaults(v)

	return &Config{
		AppEnv:         v.GetString("APP_ENV"),
		HTTPAddr:       v.GetString("HTTP_ADDR"),
		MetricsAddr:    v.GetString("METRICS_ADDR"),
		RulesPath:      v.GetString("RULES_PATH"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		RateLimitPerIP: v.GetInt("RATE_LIMIT_PER_IP"),
		OTLPEndpoint:   v.GetString("OTLP_ENDPOINT"),
	}, nil
}

// setConfigDefaults sets default values suitable for local development.
func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("RULES_PATH", "rules.yaml")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RATE_LIMIT_PER_IP", 100)
	v.SetDefault("OTLP_ENDPOINT", "")
}

// ValidationError represents a configuration validation error with details
// about what failed.
type ValidationError struct {
	Field   string // Name of the configuration field
	Message string // Human-readable error message
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed [%s]: %s", e.Field, e.Message)
}

// Validate checks that the configuration can actually run a server. Intended
// to be called at startup to fail fast on misconfiguration.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return ValidationError{
			Field:   "HTTP_ADDR",
			Message: "HTTP server address cannot be empty",
		}
	}
	if c.MetricsAddr == "" {
		return ValidationError{
			Field:   "METRICS_ADDR",
			Message: "metrics server address cannot be empty",
		}
	}
	if c.RulesPath == "" {
		return ValidationError{
			Field:   "RULES_PATH",
			Message: "rules file path cannot be empty",
		}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return ValidationError{
			Field:   "LOG_LEVEL",
			Message: fmt.Sprintf("unknown log level '%s'", c.LogLevel),
		}
	}
	if c.RateLimitPerIP < 0 {
		return ValidationError{
			Field:   "RATE_LIMIT_PER_IP",
			Message: "rate limit cannot be negative",
		}
	}
	return nil
}
