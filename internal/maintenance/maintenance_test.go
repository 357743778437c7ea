package maintenance

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne/brain/internal/model"
	"github.com/mnemosyne/brain/internal/storage"
)

func newTestSweeper(t *testing.T) (*Sweeper, *storage.Store, string) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "activity.db")
	screenshotDir := filepath.Join(dir, "screenshots")
	require.NoError(t, os.MkdirAll(screenshotDir, 0755))

	store, err := storage.Open(dbPath, false)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Sessions.EnsureTable(context.Background()))

	sw := New(store, dbPath, screenshotDir, 30*24*time.Hour, 7*24*time.Hour, time.Hour)
	return sw, store, screenshotDir
}

func TestSweeper_PruneSessionsRemovesOldOnly(t *testing.T) {
	sw, store, _ := newTestSweeper(t)
	ctx := context.Background()
	now := time.Unix(1_000_000, 0)

	require.NoError(t, store.Sessions.Insert(ctx, &model.Session{
		ID: "11111111-1111-1111-1111-111111111111",
		StartTime: now.Add(-40 * 24 * time.Hour).Unix(), EndTime: now.Add(-40*24*time.Hour).Unix() + 10,
	}))
	require.NoError(t, store.Sessions.Insert(ctx, &model.Session{
		ID: "22222222-2222-2222-2222-222222222222",
		StartTime: now.Add(-1 * time.Hour).Unix(), EndTime: now.Add(-1*time.Hour).Unix() + 10,
	}))

	n, err := sw.PruneSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recent, err := store.Sessions.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", recent[0].ID)
}

func TestSweeper_PruneEventsRemovesOldRowsAndContext(t *testing.T) {
	sw, store, _ := newTestSweeper(t)
	ctx := context.Background()
	now := time.Unix(1_000_000, 0)

	raw, err := sql.Open("sqlite3", sw.dbPath)
	require.NoError(t, err)
	defer raw.Close()

	_, err = raw.Exec(`INSERT INTO raw_events (unix_time, process_name, window_title, is_processed) VALUES (?, 'old', 'w', 1)`,
		now.Add(-10*24*time.Hour).Unix())
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO raw_events (unix_time, process_name, window_title, is_processed) VALUES (?, 'new', 'w', 1)`,
		now.Add(-1*time.Hour).Unix())
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO context_enrichment (event_id, user_intent) VALUES (1, 'intent')`)
	require.NoError(t, err)

	n, err := sw.PruneEvents(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var remaining int
	require.NoError(t, raw.QueryRow(`SELECT COUNT(*) FROM raw_events`).Scan(&remaining))
	assert.Equal(t, 1, remaining)

	var orphaned int
	require.NoError(t, raw.QueryRow(`SELECT COUNT(*) FROM context_enrichment WHERE event_id = 1`).Scan(&orphaned))
	assert.Equal(t, 0, orphaned)

	_ = store // keep reference alive for the shared connection lock
}

func TestSweeper_CleanScreenshotsRemovesStaleOnly(t *testing.T) {
	sw, _, screenshotDir := newTestSweeper(t)

	stale := filepath.Join(screenshotDir, "stale.png")
	fresh := filepath.Join(screenshotDir, "fresh.png")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0644))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	n, err := sw.CleanScreenshots(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestSweeper_CleanScreenshotsMissingDirIsNoop(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "activity.db")
	store, err := storage.Open(dbPath, false)
	require.NoError(t, err)
	defer store.Close()

	sw := New(store, dbPath, filepath.Join(dir, "does-not-exist"), 0, 0, 0)
	n, err := sw.CleanScreenshots(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSweeper_RunAllReportsSizes(t *testing.T) {
	sw, _, _ := newTestSweeper(t)
	report, err := sw.RunAll(context.Background(), time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.SizeBeforeBytes, int64(0))
	assert.GreaterOrEqual(t, report.SizeAfterBytes, int64(0))
}
