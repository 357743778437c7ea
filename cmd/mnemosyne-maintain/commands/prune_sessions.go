package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemosyne/brain/internal/logging"
)

var pruneSessionsCmd = &cobra.Command{
	Use:   "prune-sessions",
	Short: "Delete sessions older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, sw, err := openSweeper()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := sw.PruneSessions(context.Background(), time.Now())
		if err != nil {
			return err
		}
		logging.Info().Int64("sessions_pruned", n).Msg("mnemosyne-maintain: prune-sessions complete")
		return nil
	},
}

func init() {
	addStoreFlags(pruneSessionsCmd)
}
