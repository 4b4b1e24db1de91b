// Package cli holds the CLI's configuration file handling and output
// formatting.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration
type Config struct {
	DefaultEnv   string               `yaml:"default_env"`
	Environments map[string]EnvConfig `yaml:"environments"`
}

// EnvConfig represents configuration for a specific environment
type EnvConfig struct {
	Endpoint string `yaml:"endpoint"`
	EnvKey   string `yaml:"env_key"`
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".goflagbag", "config.yaml"), nil
}

// LoadConfig loads the configuration from file
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(configPath)
}

// LoadConfigFrom loads the configuration from an explicit path. A missing
// file yields an empty config, not an error.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{
				DefaultEnv:   "prod",
				Environments: make(map[string]EnvConfig),
			}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Environments == nil {
		cfg.Environments = make(map[string]EnvConfig)
	}
	return &cfg, nil
}

// SaveConfig saves the configuration to file
func SaveConfig(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveConfigTo(configPath, cfg)
}

// SaveConfigTo saves the configuration to an explicit path, creating the
// parent directory if needed.
func SaveConfigTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// InitConfig creates a starter configuration file with sample environments.
func InitConfig() error {
	cfg := &Config{
		DefaultEnv: "prod",
		Environments: map[string]EnvConfig{
			"dev": {
				Endpoint: "http://localhost:8080",
				EnvKey:   "env-dev",
			},
			"staging": {
				Endpoint: "https://staging.example.com",
				EnvKey:   "env-staging",
			},
			"prod": {
				Endpoint: "https://flags.example.com",
				EnvKey:   "env-prod",
			},
		},
	}
	return SaveConfig(cfg)
}

// GetEnvConfig returns configuration for a specific environment.
// Priority: command flags > environment variables > config file.
// Returns the environment config and the effective environment name.
func GetEnvConfig(envName, endpointFlag, envKeyFlag string) (*EnvConfig, string, error) {
	// First check command line flags
	if endpointFlag != "" && envKeyFlag != "" {
		if envName == "" {
			envName = "default"
		}
		return &EnvConfig{Endpoint: endpointFlag, EnvKey: envKeyFlag}, envName, nil
	}

	// Then check environment variables
	envEndpoint := os.Getenv("FLAGBAG_ENDPOINT")
	envEnvKey := os.Getenv("FLAGBAG_ENV_KEY")
	if envEndpoint != "" && envEnvKey != "" {
		if envName == "" {
			envName = "default"
		}
		return &EnvConfig{Endpoint: envEndpoint, EnvKey: envEnvKey}, envName, nil
	}

	// Finally check config file
	cfg, err := LoadConfig()
	if err != nil {
		return nil, "", err
	}

	if envName == "" {
		envName = cfg.DefaultEnv
	}

	envCfg, ok := cfg.Environments[envName]
	if !ok {
		return nil, "", fmt.Errorf("environment '%s' not found in config", envName)
	}

	// Override with flags/env vars if provided
	if endpointFlag != "" {
		envCfg.Endpoint = endpointFlag
	} else if envEndpoint != "" {
		envCfg.Endpoint = envEndpoint
	}

	if envKeyFlag != "" {
		envCfg.EnvKey = envKeyFlag
	} else if envEnvKey != "" {
		envCfg.EnvKey = envEnvKey
	}

	if envCfg.Endpoint == "" || envCfg.EnvKey == "" {
		return nil, "", fmt.Errorf("endpoint and env_key must be configured for environment '%s'", envName)
	}

	return &envCfg, envName, nil
}
