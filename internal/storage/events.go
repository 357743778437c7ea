package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mnemosyne/brain/internal/model"
)

// EventsRepo implements the "Events" repository from spec section 4.10.
type EventsRepo struct {
	store *Store
}

// FetchPending returns up to limit unprocessed events ordered by
// timestamp ascending.
func (r *EventsRepo) FetchPending(ctx context.Context, limit int) ([]model.Event, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, session_uuid, timestamp_utc, unix_time, process_name, window_title,
		       window_hwnd, roi_left, roi_top, roi_right, roi_bottom,
		       input_idle_ms, input_intensity, screenshot_hash
		FROM raw_events
		WHERE is_processed = 0
		ORDER BY unix_time ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch pending: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		var sessionUUID, timestampUTC sql.NullString
		var windowHWND sql.NullInt64
		var roiLeft, roiTop, roiRight, roiBottom sql.NullInt64
		var screenshotHash sql.NullString

		if err := rows.Scan(&e.ID, &sessionUUID, &timestampUTC, &e.UnixTime, &e.ProcessName,
			&e.WindowTitle, &windowHWND, &roiLeft, &roiTop, &roiRight, &roiBottom,
			&e.InputIdleMS, &e.InputIntensity, &screenshotHash); err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}

		e.SessionUUID = sessionUUID.String
		e.TimestampUTC = timestampUTC.String
		e.ScreenshotHash = screenshotHash.String
		if windowHWND.Valid {
			v := windowHWND.Int64
			e.WindowHandle = &v
		}
		if roiLeft.Valid && roiTop.Valid && roiRight.Valid && roiBottom.Valid {
			e.ROI = &model.ROI{
				Left: int(roiLeft.Int64), Top: int(roiTop.Int64),
				Right: int(roiRight.Int64), Bottom: int(roiBottom.Int64),
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkProcessed flags a set of event ids as processed inside a single
// transaction.
func (r *EventsRepo) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: mark processed: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE raw_events SET is_processed = 1 WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("storage: mark processed: prepare: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("storage: mark processed: exec: %w", err)
		}
	}
	return tx.Commit()
}

// BatchMarkProcessed flags ids as processed with a single IN (...) update.
func (r *EventsRepo) BatchMarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`UPDATE raw_events SET is_processed = 1 WHERE id IN (%s)`,
		strings.Join(placeholders, ","))
	_, err := r.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("storage: batch mark processed: %w", err)
	}
	return nil
}

// EventSummary is the reduced shape returned by GetHistoryTail, used to
// build the inference client's "recent history" prompt section.
type EventSummary struct {
	ProcessName string
	WindowTitle string
	UnixTime    int64
}

// GetHistoryTail returns event summaries within [ts-window, ts+window]
// inclusive, defaulting to a 60-second window.
func (r *EventsRepo) GetHistoryTail(ctx context.Context, ts int64, window int64) ([]EventSummary, error) {
	if window <= 0 {
		window = 60
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT process_name, window_title, unix_time
		FROM raw_events
		WHERE unix_time BETWEEN ? AND ?
		ORDER BY unix_time ASC`, ts-window, ts+window)
	if err != nil {
		return nil, fmt.Errorf("storage: history tail: %w", err)
	}
	defer rows.Close()

	var out []EventSummary
	for rows.Next() {
		var s EventSummary
		if err := rows.Scan(&s.ProcessName, &s.WindowTitle, &s.UnixTime); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ArchiveGroupIntentOnly is the stream-mode archival path: the stream
// ingester bypasses perception, so only intent+tags are recorded (spec
// section 9, Open Question 4). The raw event row is synthesized from the
// group's aggregate fields since no individual stream events reach this
// table by id.
func (r *EventsRepo) ArchiveGroupIntentOnly(ctx context.Context, group model.EventGroup, intent string, tags []string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: archive group intent-only: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO raw_events
			(unix_time, process_name, window_title, input_intensity, is_processed, has_screenshot, screenshot_hash, user_intent)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
		group.LastSeen, group.Fingerprint.ProcessName, group.Fingerprint.WindowTitle,
		int(group.MeanIntensity), boolToInt(group.ScreenshotHash != ""), group.ScreenshotHash, intent)
	if err != nil {
		return 0, fmt.Errorf("storage: archive group intent-only: insert event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	tagsJoined := strings.Join(tags, ",")
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO context_enrichment (event_id, user_intent, generated_tags)
		VALUES (?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET user_intent = excluded.user_intent, generated_tags = excluded.generated_tags`,
		id, intent, tagsJoined); err != nil {
		return 0, fmt.Errorf("storage: archive group intent-only: insert context: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// PruneOlderThan deletes raw events, processed or not (and their orphaned
// context rows), whose unix_time is before cutoff, returning the number of event rows
// removed (spec section 4.11).
func (r *EventsRepo) PruneOlderThan(ctx context.Context, cutoffUnix int64) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: prune events: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM context_enrichment
		WHERE event_id IN (SELECT id FROM raw_events WHERE unix_time < ?)`, cutoffUnix); err != nil {
		return 0, fmt.Errorf("storage: prune events: context: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM raw_events WHERE unix_time < ?`, cutoffUnix)
	if err != nil {
		return 0, fmt.Errorf("storage: prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
