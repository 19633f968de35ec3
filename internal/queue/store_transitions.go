package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// StopItems moves items into review so the daemon halts further processing
// on them, leaving completed or already-failed items untouched.
func (s *Store) StopItems(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusReview, "Stopped by user", time.Now().UTC().Format(time.RFC3339Nano))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE queue_items
        SET status = ?, progress_stage = ?, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status NOT IN ('` + string(StatusCompleted) + `', '` + string(StatusFailed) + `')`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("stop items: %w", err)
	}
	return res.RowsAffected()
}

// ActiveFingerprints returns the set of disc fingerprints currently present
// in the queue, regardless of status, used to detect a disc already enqueued.
func (s *Store) ActiveFingerprints(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT disc_fingerprint FROM queue_items WHERE disc_fingerprint IS NOT NULL AND disc_fingerprint != ''`)
	if err != nil {
		return nil, fmt.Errorf("active fingerprints: %w", err)
	}
	defer rows.Close()

	fingerprints := make(map[string]struct{})
	for rows.Next() {
		var fp sql.NullString
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		trimmed := strings.ToUpper(strings.TrimSpace(fp.String))
		if trimmed != "" {
			fingerprints[trimmed] = struct{}{}
		}
	}
	return fingerprints, rows.Err()
}

func rollbackCaseClause(pairs []statusTransition) (string, []any) {
	var b strings.Builder
	b.WriteString("CASE status")
	args := make([]any, 0, len(pairs)*2)
	for _, pair := range pairs {
		b.WriteString(" WHEN ? THEN ?")
		args = append(args, pair.from, pair.to)
	}
	b.WriteString(" ELSE status END")
	return b.String(), args
}

func rollbackStatuses(pairs []statusTransition) []any {
	args := make([]any, len(pairs))
	for i, pair := range pairs {
		args[i] = pair.from
	}
	return args
}

// ResetStuckProcessing resets items in processing states back to the start of their current stage.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	pairs := processingRollbackTransitions()
	caseExpr, caseArgs := rollbackCaseClause(pairs)
	statusArgs := rollbackStatuses(pairs)
	query := fmt.Sprintf(`UPDATE queue_items
        SET status = %s,
            progress_stage = 'Reset from stuck processing',
            progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (%s)`, caseExpr, makePlaceholders(len(statusArgs)))
	args := append(caseArgs, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, statusArgs...)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// UpdateProgress persists the progress-related columns of an item without
// rewriting its larger payload fields (metadata, rip spec). Stages call this
// frequently while a job runs, so it touches only what changes in practice.
func (s *Store) UpdateProgress(ctx context.Context, item *Item) error {
	if item == nil {
		return fmt.Errorf("update progress: item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, active_episode_key = ?, progress_stage = ?, progress_percent = ?,
             progress_message = ?, progress_bytes_copied = ?, progress_total_bytes = ?,
             encoding_details_json = ?, drapto_preset_profile = ?, updated_at = ?
         WHERE id = ?`,
		item.Status,
		nullableString(item.ActiveEpisodeKey),
		nullableString(item.ProgressStage),
		item.ProgressPercent,
		nullableString(item.ProgressMessage),
		item.ProgressBytesCopied,
		item.ProgressTotalBytes,
		nullableString(item.EncodingDetailsJSON),
		nullableString(item.DraptoPresetProfile),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// FailActiveOnShutdown marks every item still in a processing state as failed
// so the daemon requires an explicit retry before resuming it on restart. The
// work pump drives at most one item through a processing status at a time and
// this is only called after it has been stopped, so in practice this affects
// the single item whose stage was interrupted, if any.
func (s *Store) FailActiveOnShutdown(ctx context.Context) (int64, error) {
	statuses := make([]Status, 0, len(processingStatuses))
	for status := range processingStatuses {
		statuses = append(statuses, status)
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, 0, len(statuses)+3)
	args = append(args, StatusFailed, "Interrupted by daemon shutdown", time.Now().UTC().Format(time.RFC3339Nano))
	for _, status := range statuses {
		args = append(args, status)
	}
	query := `UPDATE queue_items
        SET status = ?, error_message = ?, updated_at = ?
        WHERE status IN (` + placeholders + `)`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("fail active on shutdown: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns items stuck in processing back to the start of their current stage when heartbeats expire.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	pairs := processingRollbackTransitions()
	caseExpr, caseArgs := rollbackCaseClause(pairs)
	statusArgs := rollbackStatuses(pairs)
	query := fmt.Sprintf(`UPDATE queue_items
        SET status = %s,
            progress_stage = 'Reclaimed from stale processing',
            progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (%s) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`, caseExpr, makePlaceholders(len(statusArgs)))
	args := append(caseArgs, now.Format(time.RFC3339Nano))
	args = append(args, statusArgs...)
	args = append(args, cutoff.UTC().Format(time.RFC3339Nano))
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed items back to pending for reprocessing.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE queue_items
            SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
                progress_message = NULL, error_message = NULL, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			time.Now().UTC().Format(time.RFC3339Nano),
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, time.Now().UTC().Format(time.RFC3339Nano))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE queue_items
        SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
            progress_message = NULL, error_message = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}
