package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetUsage bool

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show the name generation usage of this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		tracker, err := a.tracker(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if resetUsage {
			if err := tracker.ResetMonthlyUsage(ctx); err != nil {
				return err
			}
		}

		stats, err := tracker.GetCurrentUsage(ctx)
		if err != nil {
			return err
		}
		decision, err := tracker.CheckQuota(ctx)
		if err != nil {
			return err
		}

		remaining := fmt.Sprint(decision.Remaining)
		if decision.Remaining < 0 {
			remaining = "unlimited"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %s tier %s month %s used %d remaining %s\n",
			tracker.UserID(), stats.Tier, stats.Month, stats.Count, remaining)
		return nil
	},
}

func init() {
	usageCmd.Flags().BoolVar(&resetUsage, "reset", false, "reset the current month's count")
	rootCmd.AddCommand(usageCmd)
}
