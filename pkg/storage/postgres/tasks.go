package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/hubcap/pkg/storage"
	"github.com/platinummonkey/hubcap/pkg/tasks"
)

const taskColumns = `task_id, type, state, biz_id, attempts, data, error, abandoned, next_retry_at, created_at, updated_at`

// EnqueueIfAbsent persists the task unless one with the same biz_id already
// exists. The unique constraint is the only deduplication mechanism, so a
// conflicting insert is a successful no-op.
func (s *Store) EnqueueIfAbsent(ctx context.Context, task *tasks.Task) (bool, error) {
	query := `
		INSERT INTO tasks (task_id, type, state, biz_id, attempts, data, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (biz_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		task.TaskID, task.Type, task.State, task.BizID,
		task.Attempts, []byte(task.Data), task.Error, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return affected > 0, nil
}

// FindTaskByBizID returns the task with the given idempotency key.
func (s *Store) FindTaskByBizID(ctx context.Context, bizID string) (*tasks.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE biz_id = $1`
	t, err := scanTask(s.db.QueryRowContext(ctx, query, bizID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return t, nil
}

// ClaimTask atomically transitions one runnable task of the given type to
// processing and returns it. FOR UPDATE SKIP LOCKED guarantees two workers
// never claim the same row; a task in error state is runnable only once its
// retry time has passed and its attempts are under the ceiling.
func (s *Store) ClaimTask(ctx context.Context, taskType tasks.TaskType, now time.Time, maxAttempts int) (*tasks.Task, error) {
	query := `
		UPDATE tasks
		SET state = $1, attempts = attempts + 1, updated_at = NOW()
		WHERE task_id = (
			SELECT task_id FROM tasks
			WHERE type = $2
			  AND (state = $3 OR (state = $4 AND NOT abandoned AND attempts < $5
				AND (next_retry_at IS NULL OR next_retry_at <= $6)))
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + taskColumns + `
	`
	t, err := scanTask(s.db.QueryRowContext(ctx, query,
		tasks.TaskStateProcessing, taskType,
		tasks.TaskStateWaiting, tasks.TaskStateError,
		maxAttempts, now,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	return t, nil
}

// SucceedTask records a successful processing pass.
func (s *Store) SucceedTask(ctx context.Context, taskID string) error {
	query := `
		UPDATE tasks SET state = $1, error = '', next_retry_at = NULL, updated_at = NOW()
		WHERE task_id = $2
	`
	result, err := s.db.ExecContext(ctx, query, tasks.TaskStateSuccess, taskID)
	if err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	return requireAffected(result)
}

// RetryTask records a retryable failure and schedules the next attempt.
func (s *Store) RetryTask(ctx context.Context, taskID string, message string, nextRetryAt time.Time) error {
	query := `
		UPDATE tasks SET state = $1, error = $2, next_retry_at = $3, updated_at = NOW()
		WHERE task_id = $4
	`
	result, err := s.db.ExecContext(ctx, query, tasks.TaskStateError, message, nextRetryAt, taskID)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if affected == 0 {
		return storage.ErrTaskNotFound
	}
	return nil
}

// AbandonTask marks the task error with no further automatic retry.
func (s *Store) AbandonTask(ctx context.Context, taskID string, message string) error {
	query := `
		UPDATE tasks SET state = $1, error = $2, abandoned = TRUE, updated_at = NOW()
		WHERE task_id = $3
	`
	result, err := s.db.ExecContext(ctx, query, tasks.TaskStateError, message, taskID)
	if err != nil {
		return fmt.Errorf("failed to abandon task: %w", err)
	}
	return requireAffected(result)
}

// ResetStaleProcessing returns processing tasks older than olderThan to
// waiting, recovering work orphaned by a crashed worker.
func (s *Store) ResetStaleProcessing(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE tasks SET state = $1, updated_at = NOW()
		WHERE state = $2 AND updated_at < $3
	`
	result, err := s.db.ExecContext(ctx, query, tasks.TaskStateWaiting, tasks.TaskStateProcessing, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale tasks: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale tasks: %w", err)
	}
	return affected, nil
}

// CountByState reports queue depth per task type and state.
func (s *Store) CountByState(ctx context.Context) (map[tasks.TaskType]map[tasks.TaskState]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, state, COUNT(*) FROM tasks GROUP BY type, state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	out := make(map[tasks.TaskType]map[tasks.TaskState]int64)
	for rows.Next() {
		var taskType tasks.TaskType
		var state tasks.TaskState
		var count int64
		if err := rows.Scan(&taskType, &state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan task counts: %w", err)
		}
		if out[taskType] == nil {
			out[taskType] = make(map[tasks.TaskState]int64)
		}
		out[taskType][state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task counts: %w", err)
	}
	return out, nil
}

func scanTask(row rowScanner) (*tasks.Task, error) {
	var t tasks.Task
	var data []byte
	var nextRetry sql.NullTime
	err := row.Scan(&t.TaskID, &t.Type, &t.State, &t.BizID,
		&t.Attempts, &data, &t.Error, &t.Abandoned, &nextRetry, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Data = data
	if nextRetry.Valid {
		t.NextRetryAt = &nextRetry.Time
	}
	return &t, nil
}
