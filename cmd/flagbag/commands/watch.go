package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"

	flagbag "github.com/TimurManjosov/goflagbag"
	"github.com/TimurManjosov/goflagbag/internal/cli"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch feature flags and print changes",
	Long: `Evaluate feature flags and keep watching: the flags are re-evaluated
on a fixed interval (delivered to the client as focus signals) and every
change is printed. After a failed evaluation the retry is rescheduled with
exponential backoff.

Examples:
  flagbag watch --interval 30s
  flagbag watch --user-key u1 --trait plan=pro --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		notifier := flagbag.NewFocusNotifier()

		c, err := newClient(flagbag.WithFocusNotifier(notifier))
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()

		// Retry pacing is the caller's job: the SDK core never retries.
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = time.Second
		bo.MaxInterval = watchInterval

		bags := c.Watch(ctx)
		var retry <-chan time.Time
		lastPrinted := ""

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				notifier.Focus()
			case <-retry:
				retry = nil
				c.Revalidate()
			case bag, ok := <-bags:
				if !ok {
					return nil
				}
				if bag.Fetching {
					continue
				}
				if err := c.LastError(); err != nil {
					delay := bo.NextBackOff()
					fmt.Fprintf(os.Stderr, "evaluation failed (%v), retrying in %s\n", err, delay.Round(time.Millisecond))
					retry = time.After(delay)
					continue
				}
				bo.Reset()

				// json sorts map keys, so equal flag sets render equal.
				blob, _ := json.Marshal(bag.Flags)
				rendered := string(blob)
				if rendered == lastPrinted {
					continue
				}
				lastPrinted = rendered
				if !quiet {
					if err := cli.PrintBag(os.Stdout, bag, cli.OutputFormat(format)); err != nil {
						return err
					}
				}
			}
		}
	},
}

func init() {
	addIdentityFlags(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "Revalidation interval")
	rootCmd.AddCommand(watchCmd)
}
