package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mnemosyne/brain/internal/logging"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Run the storage-compaction operation (VACUUM)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, sw, err := openSweeper()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := sw.Compact(context.Background()); err != nil {
			return err
		}
		logging.Info().Msg("mnemosyne-maintain: compact complete")
		return nil
	},
}

func init() {
	addStoreFlags(compactCmd)
}
