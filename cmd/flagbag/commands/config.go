package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/goflagbag/internal/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the flagbag CLI configuration file.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long: `Create a starter configuration file at ~/.goflagbag/config.yaml

Example:
  flagbag config init`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.InitConfig(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		configPath, _ := cli.GetConfigPath()
		fmt.Printf("Configuration file created at: %s\n", configPath)
		fmt.Println("\nEdit the file to point at your evaluation service:")
		fmt.Println("  vi ~/.goflagbag/config.yaml")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration",
	Long: `Display the current configuration.

Example:
  flagbag config list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Printf("Default Environment: %s\n\n", cfg.DefaultEnv)
		fmt.Println("Environments:")
		for name, envCfg := range cfg.Environments {
			fmt.Printf("  %s:\n", name)
			fmt.Printf("    endpoint: %s\n", envCfg.Endpoint)
			fmt.Printf("    env_key: %s\n", envCfg.EnvKey)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <env.key>",
	Short: "Get a configuration value",
	Long: `Get a specific configuration value.

Examples:
  flagbag config get dev.endpoint
  flagbag config get prod.env_key`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		envName, key, err := splitConfigKey(args[0])
		if err != nil {
			return err
		}

		envCfg, ok := cfg.Environments[envName]
		if !ok {
			return fmt.Errorf("environment '%s' not found", envName)
		}

		switch key {
		case "endpoint":
			fmt.Println(envCfg.Endpoint)
		case "env_key":
			fmt.Println(envCfg.EnvKey)
		default:
			return fmt.Errorf("unknown key '%s', valid keys: endpoint, env_key", key)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <env.key> <value>",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value.

Examples:
  flagbag config set dev.endpoint http://localhost:8080
  flagbag config set dev.env_key env-1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		envName, key, err := splitConfigKey(args[0])
		if err != nil {
			return err
		}
		value := args[1]

		envCfg := cfg.Environments[envName]
		switch key {
		case "endpoint":
			envCfg.Endpoint = value
		case "env_key":
			envCfg.EnvKey = value
		default:
			return fmt.Errorf("unknown key '%s', valid keys: endpoint, env_key", key)
		}
		cfg.Environments[envName] = envCfg

		if err := cli.SaveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		if !quiet {
			fmt.Printf("Successfully set %s.%s\n", envName, key)
		}
		return nil
	},
}

var configDefaultCmd = &cobra.Command{
	Use:   "default <env>",
	Short: "Set the default environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.DefaultEnv = args[0]
		if err := cli.SaveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		if !quiet {
			fmt.Printf("Default environment set to %s\n", args[0])
		}
		return nil
	},
}

func splitConfigKey(arg string) (envName, key string, err error) {
	parts := strings.Split(arg, ".")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid key format, expected 'env.key' (e.g., 'dev.endpoint')")
	}
	return parts[0], parts[1], nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configDefaultCmd)
}
