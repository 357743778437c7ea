package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemosyne/brain/internal/logging"
)

var cleanScreenshotsCmd = &cobra.Command{
	Use:   "clean-screenshots",
	Short: "Remove screenshot files older than the stale threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, sw, err := openSweeper()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := sw.CleanScreenshots(time.Now())
		if err != nil {
			return err
		}
		logging.Info().Int64("screenshots_removed", n).Msg("mnemosyne-maintain: clean-screenshots complete")
		return nil
	},
}

func init() {
	addStoreFlags(cleanScreenshotsCmd)
}
