package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/keeptend/database"
	"example.com/keeptend/eventstore"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that replaying the event log reproduces the stored state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		ok, err := verifyReplay(cmd.Context(), a.store)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("state differs from a replay of the event log")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "state matches event log")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

// verifyReplay replays the log into a scratch database and compares dumps
func verifyReplay(ctx context.Context, store *eventstore.GormEventStore) (bool, error) {
	scratch, err := database.OpenMemory()
	if err != nil {
		return false, errors.Wrap(err, "failed to open scratch database")
	}
	defer database.Close(scratch)

	ok, err := store.Verify(ctx, scratch)
	if err != nil {
		return false, errors.Wrap(err, "failed to replay event log")
	}
	log.Info().Bool("match", ok).Msg("Replay verified")
	return ok, nil
}
