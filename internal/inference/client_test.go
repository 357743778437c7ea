package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne/brain/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		LLMEndpoint:   server.URL,
		LLMHeavyModel: "heavy-model",
		LLMLightModel: "light-model",
	}
	return NewClient(cfg), server
}

func TestReason_AutoTierFallsBackToLightOnHeavyFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Model == "heavy-model" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "light tier answered"}})
	})

	text, ok := client.Reason(context.Background(), "prompt", "system", TierAuto, 0.3, 100)
	require.True(t, ok)
	assert.Equal(t, "light tier answered", text)
}

func TestReason_AutoTierFailsWhenBothTiersFail(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, ok := client.Reason(context.Background(), "prompt", "system", TierAuto, 0.3, 100)
	assert.False(t, ok)
}

func TestSynthesize_SuccessExtractsTagsAndSetsConfidence(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "The user is editing a file"}})
	})

	result := client.Synthesize(context.Background(), EnrichmentContext{Title: "main.go - code", ProcessName: "code"})
	assert.Equal(t, 0.8, result.Confidence)
	assert.Contains(t, result.Tags, "edit")
	assert.Equal(t, "The user is editing a file", result.Intent)
}

func TestSynthesize_FailureDegradesToSanitizedTitleAndFallbackTags(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	result := client.Synthesize(context.Background(), EnrichmentContext{Title: "Inbox - user@example.com", ProcessName: "chrome"})
	assert.Equal(t, 0.3, result.Confidence)
	assert.Contains(t, result.Intent, "Activity in")
	assert.NotContains(t, result.Intent, "user@example.com")
	assert.Equal(t, []string{"browsing"}, result.Tags)
}

func TestIntensityBucket(t *testing.T) {
	assert.Equal(t, "low", IntensityBucket(10))
	assert.Equal(t, "medium", IntensityBucket(50))
	assert.Equal(t, "high", IntensityBucket(90))
}

func TestCheckConnection_TrueOnReachableEndpoint(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	assert.True(t, client.CheckConnection(context.Background()))
}

func TestCheckConnection_FalseWhenUnreachable(t *testing.T) {
	cfg := &config.Config{LLMEndpoint: "http://127.0.0.1:1", LLMHeavyModel: "h", LLMLightModel: "l"}
	client := NewClient(cfg)
	client.httpClient.Timeout = 500 * time.Millisecond
	assert.False(t, client.CheckConnection(context.Background()))
}

func TestSecondaryAnalysis_ParsesTriples(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{
			Content: "Go | relates_to | Concurrency\nHTTP | used_by | Client",
		}})
	})

	triples := client.SecondaryAnalysis(context.Background(), "summary", "code", 10, 5.0)
	require.Len(t, triples, 2)
	assert.Equal(t, ConceptTriple{From: "Go", Relation: "relates_to", To: "Concurrency"}, triples[0])
}

func TestBuildSessionSummaryPrompt_TruncatesTransitionsWithSuffix(t *testing.T) {
	transitions := []string{"a", "b", "c", "d", "e", "f", "g"}
	prompt := buildSessionSummaryPrompt(12.5, "code", "main.go", transitions, "medium", 40)
	assert.Contains(t, prompt, "(+2 more)")
}
