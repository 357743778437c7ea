package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemosyne/brain/internal/model"
)

// SessionsRepo implements the "Sessions" repository from spec section 4.10.
type SessionsRepo struct {
	store *Store
}

// EnsureTable creates the sessions table and its (start_time, end_time)
// index if absent. Safe to call repeatedly.
func (r *SessionsRepo) EnsureTable(ctx context.Context) error {
	return r.store.ensureSchema(ctx)
}

// Insert archives a closed, sized session. Fields mirror the "sessions"
// schema in spec section 6.
func (r *SessionsRepo) Insert(ctx context.Context, s *model.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO sessions
			(session_uuid, start_time, end_time, duration_seconds, primary_process, primary_window,
			 window_transitions, event_count, avg_input_intensity, activity_summary, generated_tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_uuid) DO UPDATE SET
			end_time = excluded.end_time,
			duration_seconds = excluded.duration_seconds,
			activity_summary = excluded.activity_summary,
			generated_tags = excluded.generated_tags`,
		s.ID, s.StartTime, s.EndTime, s.DurationSeconds(), s.PrimaryProcess, s.PrimaryWindow,
		strings.Join(s.WindowTransitions, "|"), s.EventCount(), s.AvgInputIntensity,
		s.ActivitySummary, strings.Join(s.Tags, ","))
	if err != nil {
		return fmt.Errorf("storage: insert session: %w", err)
	}
	return nil
}

// GetRecent returns the most recently started sessions, newest first.
func (r *SessionsRepo) GetRecent(ctx context.Context, limit int) ([]model.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT session_uuid, start_time, end_time, primary_process, primary_window,
		       window_transitions, avg_input_intensity, activity_summary, generated_tags
		FROM sessions
		ORDER BY start_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: get recent sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var s model.Session
		var transitions, tags string
		if err := rows.Scan(&s.ID, &s.StartTime, &s.EndTime, &s.PrimaryProcess, &s.PrimaryWindow,
			&transitions, &s.AvgInputIntensity, &s.ActivitySummary, &tags); err != nil {
			return nil, err
		}
		if transitions != "" {
			s.WindowTransitions = strings.Split(transitions, "|")
		}
		if tags != "" {
			s.Tags = strings.Split(tags, ",")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes sessions whose start_time is before cutoff
// (unix seconds), returning the number of rows removed (spec section
// 4.11).
func (r *SessionsRepo) PruneOlderThan(ctx context.Context, cutoffUnix int64) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	res, err := r.store.db.ExecContext(ctx, `DELETE FROM sessions WHERE start_time < ?`, cutoffUnix)
	if err != nil {
		return 0, fmt.Errorf("storage: prune sessions: %w", err)
	}
	return res.RowsAffected()
}
