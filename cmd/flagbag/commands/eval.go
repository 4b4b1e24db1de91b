package commands

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/goflagbag/internal/cli"
)

var evalTimeout time.Duration

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate feature flags once",
	Long: `Evaluate feature flags for the configured identity and print the
resulting flag bag. Exits non-zero when the evaluation settles with an error.

Examples:
  flagbag eval --endpoint http://localhost:8080 --env-key env-1
  flagbag eval --user-key u1 --trait plan=pro --trait seats=3
  flagbag eval --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), evalTimeout)
		defer cancel()

		bag, err := c.WaitSettled(ctx)
		if !quiet {
			// A failed settle may still carry stale cached flags; show them.
			if printErr := cli.PrintBag(os.Stdout, bag, cli.OutputFormat(format)); printErr != nil {
				return printErr
			}
		}
		return err
	},
}

func init() {
	addIdentityFlags(evalCmd)
	evalCmd.Flags().DurationVar(&evalTimeout, "timeout", 10*time.Second, "Evaluation timeout")
	rootCmd.AddCommand(evalCmd)
}
