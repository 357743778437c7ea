package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemosyne/brain/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full sweep: prune sessions, prune events, clean screenshots, compact",
	RunE:  runSweep,
}

func init() {
	addStoreFlags(runCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	store, sw, err := openSweeper()
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := sw.RunAll(context.Background(), time.Now())
	if err != nil {
		return err
	}

	logging.Info().
		Int64("sessions_pruned", report.SessionsPruned).
		Int64("events_pruned", report.EventsPruned).
		Int64("screenshots_removed", report.ScreenshotsRemoved).
		Int64("size_before_bytes", report.SizeBeforeBytes).
		Int64("size_after_bytes", report.SizeAfterBytes).
		Msg("mnemosyne-maintain: sweep complete")
	return nil
}
