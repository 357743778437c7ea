package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemosyne/brain/internal/logging"
)

var pruneEventsCmd = &cobra.Command{
	Use:   "prune-events",
	Short: "Delete raw events (and their context rows) older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, sw, err := openSweeper()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := sw.PruneEvents(context.Background(), time.Now())
		if err != nil {
			return err
		}
		logging.Info().Int64("events_pruned", n).Msg("mnemosyne-maintain: prune-events complete")
		return nil
	},
}

func init() {
	addStoreFlags(pruneEventsCmd)
}
