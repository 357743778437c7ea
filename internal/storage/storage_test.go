package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mnemosyne/brain/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "activity.db")
	s, err := Open(dbPath, false)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertRawEvent(t *testing.T, s *Store, process, title string, unixTime int64, intensity int) int64 {
	t.Helper()
	res, err := s.db.Exec(`
		INSERT INTO raw_events (unix_time, process_name, window_title, input_intensity, is_processed)
		VALUES (?, ?, ?, ?, 0)`, unixTime, process, title, intensity)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestEventsRepo_FetchPendingOrderedByTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertRawEvent(t, s, "chrome", "tab2", 200, 10)
	insertRawEvent(t, s, "chrome", "tab1", 100, 20)

	events, err := s.Events.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(100), events[0].UnixTime)
	require.Equal(t, int64(200), events[1].UnixTime)
}

func TestEventsRepo_MarkProcessed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertRawEvent(t, s, "code", "main.go", 100, 50)
	require.NoError(t, s.Events.MarkProcessed(ctx, []int64{id}))

	events, err := s.Events.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestEventsRepo_GetHistoryTailDefaultsWindowAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertRawEvent(t, s, "chrome", "tab1", 100, 10)
	insertRawEvent(t, s, "code", "main.go", 140, 20)
	insertRawEvent(t, s, "slack", "general", 500, 50) // outside the default 60s window

	history, err := s.Events.GetHistoryTail(ctx, 120, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "chrome", history[0].ProcessName)
	require.Equal(t, "code", history[1].ProcessName)
}

func TestContextRepo_BatchInsertContextIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertRawEvent(t, s, "code", "main.go", 100, 50)

	require.NoError(t, s.Context.BatchInsertContext(ctx, []int64{id}, "coding", []string{"dev"}))
	require.NoError(t, s.Context.BatchInsertContext(ctx, []int64{id}, "coding", []string{"dev"}))

	var intent, tags string
	row := s.db.QueryRow(`SELECT user_intent, generated_tags FROM context_enrichment WHERE event_id = ?`, id)
	require.NoError(t, row.Scan(&intent, &tags))
	require.Equal(t, "coding", intent)
	require.Equal(t, "dev", tags)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM context_enrichment WHERE event_id = ?`, id).Scan(&count))
	require.Equal(t, 1, count)
}

func TestContextRepo_UpdateEventContextStoresPerceptionFieldsAndWikilinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertRawEvent(t, s, "code", "main.go", 100, 50)

	require.NoError(t, s.Context.UpdateEventContext(ctx, id, "tree", "ocr text", "a person typing", "Writing Go", []string{"Go"}, []string{"dev", "focus"}))

	var tree, ocr, vlm, intent, wikilinks, tags string
	row := s.db.QueryRow(`
		SELECT accessibility_tree_json, ocr_content, vlm_description, user_intent, generated_wikilinks, generated_tags
		FROM context_enrichment WHERE event_id = ?`, id)
	require.NoError(t, row.Scan(&tree, &ocr, &vlm, &intent, &wikilinks, &tags))
	require.Equal(t, "tree", tree)
	require.Equal(t, "ocr text", ocr)
	require.Equal(t, "a person typing", vlm)
	require.Equal(t, "Writing Go", intent)
	require.Equal(t, "Go", wikilinks)
	require.Equal(t, "dev,focus", tags)

	// Re-applying with different fields upserts rather than duplicating.
	require.NoError(t, s.Context.UpdateEventContext(ctx, id, "tree2", "", "", "Reading docs", nil, []string{"docs"}))
	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM context_enrichment WHERE event_id = ?`, id).Scan(&count))
	require.Equal(t, 1, count)
}

func TestSessionsRepo_InsertAndGetRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Sessions.EnsureTable(ctx))

	sess := &model.Session{
		ID:                "11111111-1111-1111-1111-111111111111",
		StartTime:         100,
		EndTime:           160,
		PrimaryProcess:    "code",
		PrimaryWindow:     "main.go",
		WindowTransitions: []string{"code:main.go"},
		Events:            []model.Event{{}, {}},
		AvgInputIntensity: 42,
		ActivitySummary:   "Writing Go code",
		Tags:              []string{"coding", "focus"},
	}
	require.NoError(t, s.Sessions.Insert(ctx, sess))

	recent, err := s.Sessions.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, int64(60), recent[0].DurationSeconds())
	require.Equal(t, []string{"coding", "focus"}, recent[0].Tags)
}

func TestSessionsRepo_PruneOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Sessions.EnsureTable(ctx))

	old := &model.Session{ID: "22222222-2222-2222-2222-222222222222", StartTime: 1, EndTime: 10}
	recent := &model.Session{ID: "33333333-3333-3333-3333-333333333333", StartTime: 1000, EndTime: 1010}
	require.NoError(t, s.Sessions.Insert(ctx, old))
	require.NoError(t, s.Sessions.Insert(ctx, recent))

	n, err := s.Sessions.PruneOlderThan(ctx, 500)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	remaining, err := s.Sessions.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "33333333-3333-3333-3333-333333333333", remaining[0].ID)
}

func TestStatsRepo_CollectOnEmptyStore(t *testing.T) {
	s := newTestStore(t)
	snap := s.Stats.Collect(context.Background())
	require.Equal(t, int64(0), snap.TotalEvents)
	require.Equal(t, int64(0), snap.EnrichedCount)
}
