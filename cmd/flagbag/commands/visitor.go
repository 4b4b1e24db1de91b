package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/goflagbag/internal/visitor"
)

var visitorCmd = &cobra.Command{
	Use:   "visitor",
	Short: "Manage the persisted visitor key",
	Long: `Manage the visitor key persisted at ~/.goflagbag/visitor. The key is
the CLI's anonymous identity, used by the service for percentage rollouts.`,
}

var visitorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the persisted visitor key",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := visitor.DefaultFilePath()
		if err != nil {
			return err
		}
		key := visitor.NewFileStore(path).Get()
		if key == "" {
			fmt.Println("(no visitor key persisted)")
			return nil
		}
		fmt.Println(key)
		return nil
	},
}

var visitorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the persisted visitor key",
	Long: `Remove the persisted visitor key. The next evaluation will run with a
freshly generated identity (or the one the service assigns).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := visitor.DefaultFilePath()
		if err != nil {
			return err
		}
		if err := visitor.NewFileStore(path).Reset(); err != nil {
			return err
		}
		if !quiet {
			fmt.Println("Visitor key removed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(visitorCmd)
	visitorCmd.AddCommand(visitorShowCmd)
	visitorCmd.AddCommand(visitorResetCmd)
}
