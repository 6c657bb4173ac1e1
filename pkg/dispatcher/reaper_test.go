package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/hubcap/pkg/hooks"
	"github.com/platinummonkey/hubcap/pkg/observability"
	"github.com/platinummonkey/hubcap/pkg/storage"
	"github.com/platinummonkey/hubcap/pkg/tasks"
)

func TestSweepRecoversStaleTasks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	event := hooks.NewPublishEvent("foo", "change-1", "1.0.0", "")
	task, err := tasks.NewTriggerHookTask(event, "hook-1")
	require.NoError(t, err)
	_, err = store.EnqueueIfAbsent(ctx, task)
	require.NoError(t, err)

	// claim and never finish, simulating a crashed worker
	_, err = store.ClaimTask(ctx, tasks.TaskTriggerHook, time.Now(), 6)
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	// zero-ish visibility window so the stuck task is immediately stale
	reaper := NewReaper(store, time.Nanosecond, metrics, nil)
	time.Sleep(10 * time.Millisecond)
	reaper.Sweep()

	reclaimed, err := store.ClaimTask(ctx, tasks.TaskTriggerHook, time.Now(), 6)
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, reclaimed.TaskID)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.TasksRecovered))
}

func TestSweepRefreshesQueueDepth(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	event := hooks.NewPublishEvent("foo", "change-1", "1.0.0", "")
	task, err := tasks.NewTriggerHookTask(event, "hook-1")
	require.NoError(t, err)
	_, err = store.EnqueueIfAbsent(ctx, task)
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	reaper := NewReaper(store, time.Hour, metrics, nil)
	reaper.Sweep()

	gauge := metrics.QueueDepth.WithLabelValues(string(tasks.TaskTriggerHook), string(tasks.TaskStateWaiting))
	assert.Equal(t, float64(1), testutil.ToFloat64(gauge))
}

func TestReaperStartStop(t *testing.T) {
	store := storage.NewMemoryStore()
	reaper := NewReaper(store, time.Minute, nil, nil)

	require.NoError(t, reaper.Start("@every 1h"))
	reaper.Stop()

	assert.Error(t, NewReaper(store, time.Minute, nil, nil).Start("not a schedule"))
}
