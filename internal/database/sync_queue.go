package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bronizone/internal/models"
)

// CreateSyncTask ставит задачу синхронизации отчёта в очередь.
func (db *DB) CreateSyncTask(ctx context.Context, taskType string, bookingID int64, payload string) (*models.SyncTask, error) {
	now := db.clock.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO sync_tasks (task_type, booking_id, payload, status, retry_count, created_at)
         VALUES (?, ?, ?, 'pending', 0, ?)`,
		taskType, bookingID, payload, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return &models.SyncTask{
		ID:        id,
		TaskType:  taskType,
		BookingID: bookingID,
		Payload:   payload,
		Status:    models.SyncStatusPending,
		CreatedAt: now,
	}, nil
}

func scanSyncTask(row rowScanner) (*models.SyncTask, error) {
	var t models.SyncTask
	var lastError sql.NullString
	var processedAt, nextRetryAt sql.NullTime
	err := row.Scan(&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status,
		&t.RetryCount, &lastError, &t.CreatedAt, &processedAt, &nextRetryAt)
	if err != nil {
		return nil, err
	}
	if lastError.Valid {
		t.LastError = &lastError.String
	}
	if processedAt.Valid {
		v := processedAt.Time.UTC()
		t.ProcessedAt = &v
	}
	if nextRetryAt.Valid {
		v := nextRetryAt.Time.UTC()
		t.NextRetryAt = &v
	}
	return &t, nil
}

// GetPendingSyncTasks возвращает задачи, готовые к обработке: pending без
// расписания повтора либо с наступившим next_retry_at.
func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, task_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
         FROM sync_tasks
         WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= ?)
         ORDER BY created_at
         LIMIT ?`, db.clock.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		task, err := scanSyncTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// MarkSyncTaskDone помечает задачу выполненной.
func (db *DB) MarkSyncTaskDone(ctx context.Context, taskID int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE sync_tasks SET status = 'done', processed_at = ?, last_error = NULL WHERE id = ?`,
		db.clock.Now().UTC(), taskID)
	if err != nil {
		return fmt.Errorf("failed to mark sync task done: %w", err)
	}
	return nil
}

// MarkSyncTaskFailed записывает ошибку и либо планирует повтор, либо
// отправляет задачу в dead-letter (status=failed), если повторы исчерпаны.
func (db *DB) MarkSyncTaskFailed(ctx context.Context, task *models.SyncTask, errMsg string, retryAfter *time.Duration) error {
	if retryAfter == nil {
		_, err := db.ExecContext(ctx,
			`UPDATE sync_tasks SET status = 'failed', last_error = ?, processed_at = ? WHERE id = ?`,
			errMsg, db.clock.Now().UTC(), task.ID)
		if err != nil {
			return fmt.Errorf("failed to mark sync task failed: %w", err)
		}
		return nil
	}
	nextRetry := db.clock.Now().UTC().Add(*retryAfter)
	_, err := db.ExecContext(ctx,
		`UPDATE sync_tasks SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ? WHERE id = ?`,
		errMsg, nextRetry, task.ID)
	if err != nil {
		return fmt.Errorf("failed to schedule sync task retry: %w", err)
	}
	return nil
}

// GetFailedSyncTasks возвращает задачи из dead-letter для ручного разбора.
func (db *DB) GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, task_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
         FROM sync_tasks WHERE status = 'failed' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		task, err := scanSyncTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}
