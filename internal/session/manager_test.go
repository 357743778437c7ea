package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne/brain/internal/config"
	"github.com/mnemosyne/brain/internal/graph"
	"github.com/mnemosyne/brain/internal/inference"
	"github.com/mnemosyne/brain/internal/model"
	"github.com/mnemosyne/brain/internal/storage"
)

func newTestManager(t *testing.T, handler http.HandlerFunc) (*Manager, *storage.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "activity.db")
	store, err := storage.Open(dbPath, false)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Sessions.EnsureTable(context.Background()))

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	llm := inference.NewClient(&config.Config{
		LLMEndpoint:   server.URL,
		LLMHeavyModel: "heavy",
		LLMLightModel: "light",
	})

	g := graph.New(filepath.Join(t.TempDir(), "graph.json"))
	mgr := NewManager(store.Sessions, llm, g, t.TempDir(), 5)
	return mgr, store
}

func chatHandler(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": content},
		})
	}
}

func TestManager_DiscardsSessionBelowMinDuration(t *testing.T) {
	mgr, store := newTestManager(t, chatHandler("irrelevant"))

	s := &model.Session{ID: "11111111-1111-1111-1111-111111111111", StartTime: 100, EndTime: 102}
	require.NoError(t, mgr.Archive(context.Background(), s))

	recent, err := store.Sessions.GetRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestManager_ArchivesLongEnoughSession(t *testing.T) {
	mgr, store := newTestManager(t, chatHandler("The user was writing Go code for an hour"))

	s := &model.Session{
		ID:                "22222222-2222-2222-2222-222222222222",
		StartTime:         100,
		EndTime:           3700,
		PrimaryProcess:    "code",
		PrimaryWindow:     "main.go",
		WindowTransitions: []string{"code:main.go"},
		Events:            []model.Event{{InputIntensity: 40}, {InputIntensity: 60}},
		AvgInputIntensity: 50,
	}
	require.NoError(t, mgr.Archive(context.Background(), s))

	recent, err := store.Sessions.GetRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "The user was writing Go code for an hour", recent[0].ActivitySummary)
}

func TestManager_GraphWriteRecordsSessionUse(t *testing.T) {
	mgr, _ := newTestManager(t, chatHandler("short"))

	s := &model.Session{
		ID:             "33333333-3333-3333-3333-333333333333",
		StartTime:      100,
		EndTime:        200,
		PrimaryProcess: "slack",
	}
	require.NoError(t, mgr.Archive(context.Background(), s))
	assert.GreaterOrEqual(t, mgr.graph.NodeCount(), 2)
}
