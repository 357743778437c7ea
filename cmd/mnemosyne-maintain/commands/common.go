package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemosyne/brain/internal/config"
	"github.com/mnemosyne/brain/internal/maintenance"
	"github.com/mnemosyne/brain/internal/storage"
)

var (
	dbPath           string
	screenshotDir    string
	sessionRetention time.Duration
	eventRetention   time.Duration
	screenshotMaxAge time.Duration

	defaultCfg = config.Load()
)

func addStoreFlags(cmd *cobra.Command) {
	cfg := defaultCfg
	cmd.Flags().StringVar(&dbPath, "db-path", cfg.DBPath, "Row store file location")
	cmd.Flags().StringVar(&screenshotDir, "screenshot-dir", cfg.ScreenshotDir, "Screenshot cache directory")
	cmd.Flags().DurationVar(&sessionRetention, "session-retention", maintenance.SessionRetention, "Session prune threshold")
	cmd.Flags().DurationVar(&eventRetention, "event-retention", maintenance.EventRetention, "Raw event prune threshold")
	cmd.Flags().DurationVar(&screenshotMaxAge, "screenshot-max-age", maintenance.ScreenshotMaxAge, "Stale screenshot threshold")
}

func openSweeper() (*storage.Store, *maintenance.Sweeper, error) {
	store, err := storage.Open(dbPath, false)
	if err != nil {
		return nil, nil, err
	}
	sw := maintenance.New(store, dbPath, screenshotDir, sessionRetention, eventRetention, screenshotMaxAge)
	return store, sw, nil
}
