package session

import (
	"context"
	"os"

	"github.com/mnemosyne/brain/internal/graph"
	"github.com/mnemosyne/brain/internal/inference"
	"github.com/mnemosyne/brain/internal/logging"
	"github.com/mnemosyne/brain/internal/model"
	"github.com/mnemosyne/brain/internal/storage"
)

// minSecondaryAnalysisSummaryLen gates step 8 of archival: secondary
// analysis only runs for a summary with some real content (spec section
// 4.8, "only if summary length > 30").
const minSecondaryAnalysisSummaryLen = 30

// Manager archives closed sessions: summarization, wikilink/tag
// extraction, persistence, screenshot cleanup, and knowledge-graph writes
// (spec section 4.8).
type Manager struct {
	sessions      *storage.SessionsRepo
	llm           *inference.Client
	graph         *graph.Graph
	screenshotDir string
	minDuration   int64
	graphEnabled  bool
}

// NewManager builds a session archival manager.
func NewManager(sessions *storage.SessionsRepo, llm *inference.Client, g *graph.Graph, screenshotDir string, minDurationSeconds int64) *Manager {
	return &Manager{
		sessions:      sessions,
		llm:           llm,
		graph:         g,
		screenshotDir: screenshotDir,
		minDuration:   minDurationSeconds,
		graphEnabled:  g != nil,
	}
}

// Archive runs the full archival pipeline for a closed session. It never
// returns an error for recoverable steps (summarization failure, graph
// write failure); only a persistence failure on the session row itself is
// surfaced, since every other step is best-effort.
func (m *Manager) Archive(ctx context.Context, s *model.Session) error {
	if s.DurationSeconds() < m.minDuration {
		logging.Debug().Str("session_id", s.ID).Int64("duration", s.DurationSeconds()).Msg("session: discarding below minimum duration")
		return nil
	}

	summary := m.summarize(ctx, s)
	s.ActivitySummary = summary
	s.Tags = dedupeStrings(inference.ExtractTags(summary))

	if err := m.sessions.Insert(ctx, s); err != nil {
		return err
	}

	m.cleanupScreenshots(s)

	if m.graphEnabled {
		m.writeGraph(ctx, s, summary)
	}

	return nil
}

func (m *Manager) summarize(ctx context.Context, s *model.Session) string {
	durationMinutes := float64(s.DurationSeconds()) / 60.0
	bucket := inference.IntensityBucket(s.AvgInputIntensity)

	summary, ok := m.llm.SummarizeSession(ctx, durationMinutes, s.PrimaryProcess, s.PrimaryWindow, s.WindowTransitions, bucket, s.EventCount())
	if !ok {
		logging.Debug().Str("session_id", s.ID).Msg("session: summarization failed, leaving summary empty")
		return ""
	}
	return inference.AugmentWikilinks(summary, m.llm.VaultFor())
}

// cleanupScreenshots unlinks every event's screenshot file, ignoring
// failures (spec section 4.8 step 6).
func (m *Manager) cleanupScreenshots(s *model.Session) {
	for _, e := range s.Events {
		if e.ScreenshotHash == "" {
			continue
		}
		path := m.screenshotDir + "/" + e.ScreenshotHash + ".png"
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.Debug().Err(err).Str("path", path).Msg("session: screenshot cleanup failed")
		}
	}
}

func (m *Manager) writeGraph(ctx context.Context, s *model.Session, summary string) {
	m.graph.RecordSessionUse(s.ID, s.PrimaryProcess)
	for _, tag := range s.Tags {
		m.graph.RecordMentions(s.ID, tag)
	}

	if len(summary) <= minSecondaryAnalysisSummaryLen {
		return
	}

	triples := m.llm.SecondaryAnalysis(ctx, summary, s.PrimaryProcess, s.EventCount(), float64(s.DurationSeconds())/60.0)
	for _, t := range triples {
		m.graph.RecordTriple(t.From, t.Relation, t.To)
	}
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
