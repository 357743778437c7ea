package storage

import (
	"context"
	"fmt"
	"strings"
)

// ContextRepo implements the "Context" repository from spec section 4.10.
type ContextRepo struct {
	store *Store
}

// UpdateEventContext upserts the enrichment fields for a single event id.
func (r *ContextRepo) UpdateEventContext(ctx context.Context, eventID int64, accessibilityTree, ocrContent, vlmDescription, intent string, wikilinks, tags []string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO context_enrichment
			(event_id, accessibility_tree_json, ocr_content, vlm_description, user_intent, generated_wikilinks, generated_tags)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			accessibility_tree_json = excluded.accessibility_tree_json,
			ocr_content = excluded.ocr_content,
			vlm_description = excluded.vlm_description,
			user_intent = excluded.user_intent,
			generated_wikilinks = excluded.generated_wikilinks,
			generated_tags = excluded.generated_tags`,
		eventID, accessibilityTree, ocrContent, vlmDescription, intent,
		strings.Join(wikilinks, ","), strings.Join(tags, ","))
	if err != nil {
		return fmt.Errorf("storage: update event context: %w", err)
	}
	return nil
}

// BatchInsertContext applies the same intent/tags to every event id,
// upserting by event id so re-application (e.g. a re-archived stream
// group) is idempotent.
func (r *ContextRepo) BatchInsertContext(ctx context.Context, ids []int64, intent string, tags []string) error {
	if len(ids) == 0 {
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: batch insert context: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO context_enrichment (event_id, user_intent, generated_tags)
		VALUES (?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET user_intent = excluded.user_intent, generated_tags = excluded.generated_tags`)
	if err != nil {
		return fmt.Errorf("storage: batch insert context: prepare: %w", err)
	}
	defer stmt.Close()

	tagsJoined := strings.Join(tags, ",")
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, intent, tagsJoined); err != nil {
			return fmt.Errorf("storage: batch insert context: exec: %w", err)
		}
	}
	return tx.Commit()
}
