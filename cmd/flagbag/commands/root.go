package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	flagbag "github.com/TimurManjosov/goflagbag"
	"github.com/TimurManjosov/goflagbag/internal/cli"
	"github.com/TimurManjosov/goflagbag/internal/visitor"
)

var (
	// Global flags
	endpoint  string
	envKey    string
	env       string
	format    string
	quiet     bool
	verbose   bool
	userKey   string
	userEmail string
	traits    []string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "flagbag",
	Short: "CLI for evaluating feature flags against a flag service",
	Long: `Flagbag evaluates feature flags for a visitor/user/trait combination
against a remote evaluation service and prints the resulting flag bag.

Examples:
  flagbag eval --endpoint http://localhost:8080 --env-key env-1
  flagbag eval --user-key u1 --trait plan=pro --format json
  flagbag watch --interval 30s
  flagbag visitor show
  flagbag config set dev.endpoint http://localhost:8080`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Base URL of the evaluation service")
	rootCmd.PersistentFlags().StringVar(&envKey, "env-key", "", "Environment key to evaluate against")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "Named environment from the config file")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
}

// addIdentityFlags registers the user/trait flags shared by eval and watch.
func addIdentityFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&userKey, "user-key", "", "Authenticated user key")
	cmd.Flags().StringVar(&userEmail, "user-email", "", "Authenticated user email")
	cmd.Flags().StringArrayVar(&traits, "trait", nil, "Trait as key=value (repeatable; value parsed as JSON when possible)")
}

// newClient builds an SDK client from the global flags and the config file,
// persisting the visitor key in the per-user file store.
func newClient(extra ...flagbag.Option) (*flagbag.Client, error) {
	envCfg, _, err := cli.GetEnvConfig(env, endpoint, envKey)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	visitorPath, err := visitor.DefaultFilePath()
	if err != nil {
		return nil, err
	}

	opts := []flagbag.Option{
		flagbag.WithEndpoint(envCfg.Endpoint),
		flagbag.WithEnvKey(envCfg.EnvKey),
		flagbag.WithIdentityStore(visitor.NewFileStore(visitorPath)),
	}
	if verbose {
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel).With().Timestamp().Logger()
		opts = append(opts, flagbag.WithLogger(log))
	}
	if userKey != "" {
		opts = append(opts, flagbag.WithUser(&flagbag.User{Key: userKey, Email: userEmail}))
	}
	if len(traits) > 0 {
		parsed, err := parseTraits(traits)
		if err != nil {
			return nil, err
		}
		opts = append(opts, flagbag.WithTraits(parsed))
	}
	opts = append(opts, extra...)

	return flagbag.New(opts...)
}

// parseTraits turns repeated key=value flags into a trait map. Values that
// parse as JSON keep their type (true, 10, "x"); anything else is a string.
func parseTraits(pairs []string) (flagbag.Traits, error) {
	parsed := make(flagbag.Traits, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid trait %q, expected key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		parsed[key] = v
	}
	return parsed, nil
}
