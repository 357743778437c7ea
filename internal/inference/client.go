// Package inference implements the HTTP client toward the local LLM
// described in spec section 4.9: tiered heavy/light model selection,
// activity synthesis, session summarization, best-effort secondary
// analysis, and wikilink augmentation against a local notes vault.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mnemosyne/brain/internal/config"
	"github.com/mnemosyne/brain/internal/logging"
	"github.com/mnemosyne/brain/internal/sanitizer"
)

// Tier selects which model answers a reasoning call.
type Tier int

const (
	// TierAuto tries the heavy model first and falls back to light on
	// failure.
	TierAuto Tier = iota
	TierHeavy
	TierLight
)

const activityAnalystSystemPrompt = "You are an activity analyst. Given a snapshot of a user's current screen " +
	"context, infer their intent in a short phrase and suggest relevant tags. Be concise and concrete."

// EnrichmentContext carries the per-event context sections fed into
// Synthesize (spec section 4.9): sanitized title, UI tree, OCR text,
// vision description, intensity, and a short window of recent history.
type EnrichmentContext struct {
	Title             string
	AccessibilityTree string
	OCRContent        string
	VisionDescription string
	Intensity         int
	RecentHistory     []string
	ProcessName       string
}

// SynthesisResult is the outcome of Synthesize.
type SynthesisResult struct {
	Intent     string
	Tags       []string
	Confidence float64
	Raw        string
}

// Client holds a persistent HTTP client toward the LLM endpoint and the
// heavy/light model tiers.
type Client struct {
	httpClient *http.Client
	endpoint   string
	heavyModel string
	lightModel string
	vault      *Vault
}

// NewClient builds an inference client from the process configuration,
// scanning the configured vault (if any) once at startup.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   cfg.LLMEndpoint,
		heavyModel: cfg.LLMHeavyModel,
		lightModel: cfg.LLMLightModel,
		vault:      NewVault(cfg.VaultPath),
	}
}

// Synthesize builds the activity-analyst prompt from ctx and asks the LLM
// for an intent plus tags (spec section 4.9). It never returns an error:
// on failure it degrades to a sanitized-title intent and app-keyword tags.
func (c *Client) Synthesize(ctx context.Context, ec EnrichmentContext) SynthesisResult {
	sanitizedTitle := sanitizer.CleanText(ec.Title)
	prompt := buildSynthesisPrompt(ec, sanitizedTitle)

	raw, ok := c.Reason(ctx, prompt, activityAnalystSystemPrompt, TierAuto, 0.3, 200)
	if !ok {
		return SynthesisResult{
			Intent:     fmt.Sprintf("Activity in %s", sanitizedTitle),
			Confidence: 0.3,
			Tags:       FallbackTagsForProcess(ec.ProcessName),
		}
	}

	augmented := AugmentWikilinks(raw, c.vault)
	tags := append(ExtractKeywordTags(augmented), ExtractTags(augmented)...)

	return SynthesisResult{
		Intent:     strings.TrimSpace(augmented),
		Confidence: 0.8,
		Tags:       dedupeStrings(tags),
		Raw:        raw,
	}
}

func buildSynthesisPrompt(ec EnrichmentContext, sanitizedTitle string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Window title: %s\n", sanitizedTitle)
	if ec.AccessibilityTree != "" {
		b.WriteString("UI tree: ")
		b.WriteString(truncate(ec.AccessibilityTree, 2000))
		b.WriteString("\n")
	}
	if ec.OCRContent != "" {
		b.WriteString("OCR text: ")
		b.WriteString(truncate(ec.OCRContent, 1500))
		b.WriteString("\n")
	}
	if ec.VisionDescription != "" {
		fmt.Fprintf(&b, "Screen description: %s\n", ec.VisionDescription)
	}
	fmt.Fprintf(&b, "Input intensity: %d/100\n", ec.Intensity)
	if len(ec.RecentHistory) > 0 {
		b.WriteString("Recent history:\n")
		for _, h := range ec.RecentHistory {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	return b.String()
}

// SummarizeSession builds the session-summary prompt described in spec
// section 4.8 and asks the LLM for a short natural-language summary.
func (c *Client) SummarizeSession(ctx context.Context, durationMinutes float64, primaryProcess, primaryWindow string, transitions []string, intensityBucket string, eventCount int) (string, bool) {
	prompt := buildSessionSummaryPrompt(durationMinutes, primaryProcess, primaryWindow, transitions, intensityBucket, eventCount)
	return c.Reason(ctx, prompt, activityAnalystSystemPrompt, TierAuto, 0.4, 150)
}

func buildSessionSummaryPrompt(durationMinutes float64, primaryProcess, primaryWindow string, transitions []string, intensityBucket string, eventCount int) string {
	window := primaryWindow
	if len(window) > 100 {
		window = window[:100]
	}

	shown := transitions
	suffix := ""
	if len(shown) > 5 {
		suffix = fmt.Sprintf(" (+%d more)", len(shown)-5)
		shown = shown[:5]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session duration: %.1f minutes\n", durationMinutes)
	fmt.Fprintf(&b, "Primary application: %s\n", primaryProcess)
	fmt.Fprintf(&b, "Primary window: %s\n", window)
	fmt.Fprintf(&b, "Window transitions: %s%s\n", strings.Join(shown, ", "), suffix)
	fmt.Fprintf(&b, "Input intensity: %s\n", intensityBucket)
	fmt.Fprintf(&b, "Event count: %d\n", eventCount)
	b.WriteString("Summarize what the user was doing in one or two sentences.")
	return b.String()
}

// IntensityBucket classifies a mean input intensity into low/medium/high
// (spec section 4.8): <30, <70, else.
func IntensityBucket(mean float64) string {
	switch {
	case mean < 30:
		return "low"
	case mean < 70:
		return "medium"
	default:
		return "high"
	}
}

// ConceptTriple is one (concept, relation, concept) triple from secondary
// analysis.
type ConceptTriple struct {
	From     string
	Relation string
	To       string
}

// SecondaryAnalysis asks for up to 5 concept relationship triples drawn
// from a session summary (spec section 4.8, step 8). Best-effort: any
// failure yields an empty slice.
func (c *Client) SecondaryAnalysis(ctx context.Context, summary, process string, eventCount int, durationMinutes float64) []ConceptTriple {
	prompt := fmt.Sprintf(
		"Summary: %s\nApplication: %s\nEvents: %d\nDuration: %.1f minutes\n"+
			"List up to 5 (concept, relation, concept) triples describing concepts related to this activity, one per line as concept | relation | concept.",
		summary, process, eventCount, durationMinutes)

	raw, ok := c.Reason(ctx, prompt, activityAnalystSystemPrompt, TierAuto, 0.3, 200)
	if !ok {
		return nil
	}
	return parseTriples(raw)
}

func parseTriples(raw string) []ConceptTriple {
	var triples []ConceptTriple
	for _, line := range strings.Split(raw, "\n") {
		parts := strings.Split(line, "|")
		if len(parts) != 3 {
			continue
		}
		from := strings.TrimSpace(parts[0])
		relation := strings.TrimSpace(parts[1])
		to := strings.TrimSpace(parts[2])
		if from == "" || relation == "" || to == "" {
			continue
		}
		triples = append(triples, ConceptTriple{From: from, Relation: relation, To: to})
		if len(triples) >= 5 {
			break
		}
	}
	return triples
}

// VaultFor exposes the client's scanned vault so callers outside this
// package (the session manager) can run their own wikilink augmentation
// passes, e.g. over an LLM-produced session summary.
func (c *Client) VaultFor() *Vault {
	return c.vault
}

// CheckConnection reports whether the LLM endpoint is reachable.
func (c *Client) CheckConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// Reason issues a single chat/generate call at the given tier. Tier AUTO
// tries the heavy model first and retries once on the light model if the
// heavy call fails entirely (spec section 4.9); it returns (text, true) on
// success or ("", false) if both failed.
func (c *Client) Reason(ctx context.Context, prompt, system string, tier Tier, temperature float64, maxTokens int) (string, bool) {
	switch tier {
	case TierHeavy:
		text, err := c.call(ctx, c.heavyModel, prompt, system, temperature, maxTokens)
		if err != nil {
			logging.Debug().Err(err).Msg("inference: heavy tier call failed")
			return "", false
		}
		return text, true
	case TierLight:
		text, err := c.call(ctx, c.lightModel, prompt, system, temperature, maxTokens)
		if err != nil {
			logging.Debug().Err(err).Msg("inference: light tier call failed")
			return "", false
		}
		return text, true
	default:
		text, err := c.call(ctx, c.heavyModel, prompt, system, temperature, maxTokens)
		if err == nil {
			return text, true
		}
		logging.Debug().Err(err).Msg("inference: heavy tier failed, retrying on light tier")

		text, err = c.call(ctx, c.lightModel, prompt, system, temperature, maxTokens)
		if err != nil {
			logging.Debug().Err(err).Msg("inference: light tier also failed")
			return "", false
		}
		return text, true
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Options     chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

func (c *Client) call(ctx context.Context, model, prompt, system string, temperature float64, maxTokens int) (string, error) {
	if model == "" {
		return "", fmt.Errorf("inference: no model configured for this tier")
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream:  false,
		Options: chatOptions{Temperature: temperature, NumPredict: maxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("inference: encode request: %w", err)
	}

	var out chatResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("inference: llm returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("inference: llm returned %d", resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return "", err
	}
	return out.Message.Content, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
