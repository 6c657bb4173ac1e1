package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/hubcap/pkg/hooks"
	"github.com/platinummonkey/hubcap/pkg/storage"
	"github.com/platinummonkey/hubcap/pkg/tasks"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStoreWithDB(db, nil), mock
}

func taskRows(task *tasks.Task) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"task_id", "type", "state", "biz_id", "attempts", "data",
		"error", "abandoned", "next_retry_at", "created_at", "updated_at",
	})
	rows.AddRow(task.TaskID, task.Type, task.State, task.BizID, task.Attempts,
		[]byte(task.Data), task.Error, task.Abandoned, task.NextRetryAt,
		task.CreatedAt, task.UpdatedAt)
	return rows
}

func TestEnqueueIfAbsent(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	event := hooks.NewPublishEvent("@cnpmcore/foo", "change-1", "1.0.0", "latest")
	task, err := tasks.NewCreateHookTriggerTask(event)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(task.TaskID, task.Type, task.State, task.BizID,
			task.Attempts, []byte(task.Data), task.Error, task.CreatedAt, task.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := store.EnqueueIfAbsent(ctx, task)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueIfAbsentConflict(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	event := hooks.NewPublishEvent("@cnpmcore/foo", "change-1", "1.0.0", "latest")
	task, err := tasks.NewCreateHookTriggerTask(event)
	require.NoError(t, err)

	// ON CONFLICT DO NOTHING: zero rows affected means the biz_id was taken
	mock.ExpectExec("INSERT INTO tasks").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := store.EnqueueIfAbsent(ctx, task)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindTaskByBizID(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	event := hooks.NewPublishEvent("@cnpmcore/foo", "change-1", "1.0.0", "")
	task, err := tasks.NewCreateHookTriggerTask(event)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM tasks WHERE biz_id").
		WithArgs(task.BizID).
		WillReturnRows(taskRows(task))

	got, err := store.FindTaskByBizID(ctx, task.BizID)
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, got.TaskID)
	assert.Equal(t, task.BizID, got.BizID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindTaskByBizIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM tasks WHERE biz_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"task_id"}))

	_, err := store.FindTaskByBizID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrTaskNotFound)
}

func TestClaimTask(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	event := hooks.NewPublishEvent("@cnpmcore/foo", "change-1", "1.0.0", "")
	task, err := tasks.NewTriggerHookTask(event, "hook-1")
	require.NoError(t, err)
	task.State = tasks.TaskStateProcessing
	task.Attempts = 1

	mock.ExpectQuery("UPDATE tasks").
		WithArgs(tasks.TaskStateProcessing, tasks.TaskTriggerHook,
			tasks.TaskStateWaiting, tasks.TaskStateError, 6, now).
		WillReturnRows(taskRows(task))

	got, err := store.ClaimTask(ctx, tasks.TaskTriggerHook, now, 6)
	require.NoError(t, err)
	assert.Equal(t, tasks.TaskStateProcessing, got.State)
	assert.Equal(t, 1, got.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTaskEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("UPDATE tasks").
		WillReturnRows(sqlmock.NewRows([]string{"task_id"}))

	_, err := store.ClaimTask(ctx, tasks.TaskTriggerHook, time.Now(), 6)
	assert.ErrorIs(t, err, storage.ErrTaskNotFound)
}

func TestSucceedTask(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE tasks SET state").
		WithArgs(tasks.TaskStateSuccess, "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SucceedTask(ctx, "task-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryTask(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	next := time.Now().Add(10 * time.Second)

	mock.ExpectExec("UPDATE tasks SET state").
		WithArgs(tasks.TaskStateError, "endpoint returned status 500", next, "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RetryTask(ctx, "task-1", "endpoint returned status 500", next))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAbandonTask(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE tasks SET state").
		WithArgs(tasks.TaskStateError, "hook deleted", "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.AbandonTask(ctx, "task-1", "hook deleted"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskUpdateMissingRow(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE tasks SET state").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.SucceedTask(ctx, "ghost"), storage.ErrTaskNotFound)
}

func TestResetStaleProcessing(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	cutoff := time.Now().Add(-5 * time.Minute)

	mock.ExpectExec("UPDATE tasks SET state").
		WithArgs(tasks.TaskStateWaiting, tasks.TaskStateProcessing, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.ResetStaleProcessing(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByState(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"type", "state", "count"}).
		AddRow("TriggerHook", "waiting", 4).
		AddRow("TriggerHook", "error", 1).
		AddRow("CreateHookTrigger", "success", 7)
	mock.ExpectQuery("SELECT type, state, COUNT").WillReturnRows(rows)

	counts, err := store.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[tasks.TaskTriggerHook][tasks.TaskStateWaiting])
	assert.Equal(t, int64(1), counts[tasks.TaskTriggerHook][tasks.TaskStateError])
	assert.Equal(t, int64(7), counts[tasks.TaskCreateHookTrigger][tasks.TaskStateSuccess])
}
