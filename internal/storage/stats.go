package storage

import (
	"context"

	"github.com/mnemosyne/brain/internal/logging"
)

// StatsRepo implements the "Stats" repository from spec section 4.10: event
// counts, enriched count, screenshot count, VLM count, LLM count. Each
// query is isolated so a missing optional column (one added by a later
// migration) degrades to zero rather than failing the whole call.
type StatsRepo struct {
	store *Store
}

// Snapshot is the aggregate counters surfaced by the Stats repository.
type Snapshot struct {
	TotalEvents     int64
	EnrichedCount   int64
	ScreenshotCount int64
	VLMCount        int64
	LLMCount        int64
}

// Collect gathers every counter, logging and zeroing any query that fails
// (e.g. against an older schema missing a migrated column) rather than
// propagating the error.
func (r *StatsRepo) Collect(ctx context.Context) Snapshot {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return Snapshot{
		TotalEvents:     r.scalar(ctx, `SELECT COUNT(*) FROM raw_events`),
		EnrichedCount:   r.scalar(ctx, `SELECT COUNT(*) FROM context_enrichment`),
		ScreenshotCount: r.scalar(ctx, `SELECT COUNT(*) FROM raw_events WHERE has_screenshot = 1`),
		VLMCount:        r.scalar(ctx, `SELECT COUNT(*) FROM raw_events WHERE vlm_description IS NOT NULL AND vlm_description != ''`),
		LLMCount:        r.scalar(ctx, `SELECT COUNT(*) FROM raw_events WHERE user_intent IS NOT NULL AND user_intent != ''`),
	}
}

// scalar runs a single COUNT(*)-shaped query under the caller's lock,
// recovering to zero on any error (degraded-column behavior, spec section
// 9 "Supplemented Features").
func (r *StatsRepo) scalar(ctx context.Context, query string) (result int64) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Debug().Interface("panic", rec).Str("query", query).Msg("stats: query panicked, degrading to zero")
			result = 0
		}
	}()

	row := r.store.db.QueryRowContext(ctx, query)
	var n int64
	if err := row.Scan(&n); err != nil {
		logging.Debug().Err(err).Str("query", query).Msg("stats: query failed, degrading to zero")
		return 0
	}
	return n
}
