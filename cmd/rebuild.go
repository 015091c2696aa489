package cmd

import (
	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the state tables from the event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		return a.store.Rebuild(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
