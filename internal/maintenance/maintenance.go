// Package maintenance implements the out-of-band sweep from spec section
// 4.11: prune old sessions and raw events, remove stale screenshot files,
// then compact the row store, reporting deletion counts and file size
// before and after.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mnemosyne/brain/internal/logging"
	"github.com/mnemosyne/brain/internal/storage"
)

const (
	// SessionRetention is the default session prune threshold.
	SessionRetention = 30 * 24 * time.Hour
	// EventRetention is the default raw event prune threshold.
	EventRetention = 7 * 24 * time.Hour
	// ScreenshotMaxAge is the default stale-screenshot threshold.
	ScreenshotMaxAge = time.Hour
)

// Report summarizes one sweep's effect.
type Report struct {
	SessionsPruned     int64
	EventsPruned       int64
	ScreenshotsRemoved int64
	SizeBeforeBytes    int64
	SizeAfterBytes     int64
}

// Sweeper runs the maintenance operations against one store and one
// screenshot directory.
type Sweeper struct {
	store            *storage.Store
	dbPath           string
	screenshotDir    string
	sessionRetention time.Duration
	eventRetention   time.Duration
	screenshotMaxAge time.Duration
}

// New builds a Sweeper. Zero durations fall back to the spec's defaults.
func New(store *storage.Store, dbPath, screenshotDir string, sessionRetention, eventRetention, screenshotMaxAge time.Duration) *Sweeper {
	if sessionRetention <= 0 {
		sessionRetention = SessionRetention
	}
	if eventRetention <= 0 {
		eventRetention = EventRetention
	}
	if screenshotMaxAge <= 0 {
		screenshotMaxAge = ScreenshotMaxAge
	}
	return &Sweeper{
		store:            store,
		dbPath:           dbPath,
		screenshotDir:    screenshotDir,
		sessionRetention: sessionRetention,
		eventRetention:   eventRetention,
		screenshotMaxAge: screenshotMaxAge,
	}
}

// RunAll performs the full sweep in the order spec section 4.11 lists:
// prune sessions, prune events, clean screenshots, compact.
func (s *Sweeper) RunAll(ctx context.Context, now time.Time) (Report, error) {
	var report Report
	report.SizeBeforeBytes = s.fileSize()

	sessionsPruned, err := s.PruneSessions(ctx, now)
	if err != nil {
		return report, fmt.Errorf("maintenance: prune sessions: %w", err)
	}
	report.SessionsPruned = sessionsPruned

	eventsPruned, err := s.PruneEvents(ctx, now)
	if err != nil {
		return report, fmt.Errorf("maintenance: prune events: %w", err)
	}
	report.EventsPruned = eventsPruned

	screenshotsRemoved, err := s.CleanScreenshots(now)
	if err != nil {
		return report, fmt.Errorf("maintenance: clean screenshots: %w", err)
	}
	report.ScreenshotsRemoved = screenshotsRemoved

	if err := s.Compact(ctx); err != nil {
		return report, fmt.Errorf("maintenance: compact: %w", err)
	}
	report.SizeAfterBytes = s.fileSize()

	logging.Info().
		Int64("sessions_pruned", report.SessionsPruned).
		Int64("events_pruned", report.EventsPruned).
		Int64("screenshots_removed", report.ScreenshotsRemoved).
		Int64("size_before_bytes", report.SizeBeforeBytes).
		Int64("size_after_bytes", report.SizeAfterBytes).
		Msg("maintenance: sweep complete")

	return report, nil
}

// PruneSessions removes sessions started before now minus the session
// retention window.
func (s *Sweeper) PruneSessions(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.sessionRetention).Unix()
	return s.store.Sessions.PruneOlderThan(ctx, cutoff)
}

// PruneEvents removes raw events (and their context rows) older than the
// event retention window.
func (s *Sweeper) PruneEvents(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.eventRetention).Unix()
	return s.store.Events.PruneOlderThan(ctx, cutoff)
}

// CleanScreenshots removes screenshot files older than the configured max
// age, returning the number of files removed. A missing screenshot
// directory is not an error.
func (s *Sweeper) CleanScreenshots(now time.Time) (int64, error) {
	if s.screenshotDir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(s.screenshotDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read screenshot dir: %w", err)
	}

	var removed int64
	cutoff := now.Add(-s.screenshotMaxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.screenshotDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("path", path).Msg("maintenance: failed to remove stale screenshot")
			continue
		}
		removed++
	}
	return removed, nil
}

// Compact runs the storage-compaction operation.
func (s *Sweeper) Compact(ctx context.Context) error {
	return s.store.Compact(ctx)
}

func (s *Sweeper) fileSize() int64 {
	info, err := os.Stat(s.dbPath)
	if err != nil {
		return 0
	}
	return info.Size()
}
