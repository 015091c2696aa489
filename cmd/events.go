package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"example.com/keeptend/domain"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the event log as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		events, err := a.store.Events(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, event := range events {
			wire, err := domain.Encode(event.Payload)
			if err != nil {
				return err
			}
			line, err := json.Marshal(struct {
				Seq         uint64          `json:"seq"`
				CommittedAt int64           `json:"committedAt"`
				Event       json.RawMessage `json:"event"`
			}{event.Seq, event.CommittedAt, wire})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(line))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
