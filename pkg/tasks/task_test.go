package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/hubcap/pkg/hooks"
)

func TestBizIDs(t *testing.T) {
	assert.Equal(t, "CreateHookTrigger:change-1", CreateHookTriggerBizID("change-1"))
	assert.Equal(t, "TriggerHook:change-1:hook-1", TriggerHookBizID("change-1", "hook-1"))
}

func TestNewCreateHookTriggerTask(t *testing.T) {
	event := hooks.NewPublishEvent("@cnpmcore/foo", "change-1", "1.0.0", "latest")

	task, err := NewCreateHookTriggerTask(event)
	require.NoError(t, err)

	assert.Equal(t, TaskCreateHookTrigger, task.Type)
	assert.Equal(t, TaskStateWaiting, task.State)
	assert.Equal(t, "CreateHookTrigger:change-1", task.BizID)
	assert.Zero(t, task.Attempts)

	data, err := task.FanOutData()
	require.NoError(t, err)
	assert.Equal(t, event, data.HookEvent)
}

func TestNewTriggerHookTask(t *testing.T) {
	event := hooks.NewTagEvent("@cnpmcore/foo", "change-1", "1.0.0", "beta")

	task, err := NewTriggerHookTask(event, "hook-9")
	require.NoError(t, err)

	assert.Equal(t, TaskTriggerHook, task.Type)
	assert.Equal(t, "TriggerHook:change-1:hook-9", task.BizID)

	data, err := task.DeliveryData()
	require.NoError(t, err)
	assert.Equal(t, "hook-9", data.HookID)
	assert.Equal(t, event, data.HookEvent)
}

func TestDecodeRejectsWrongType(t *testing.T) {
	event := hooks.NewPublishEvent("foo", "change-1", "1.0.0", "")

	fanout, err := NewCreateHookTriggerTask(event)
	require.NoError(t, err)
	_, err = fanout.DeliveryData()
	assert.Error(t, err)

	delivery, err := NewTriggerHookTask(event, "hook-1")
	require.NoError(t, err)
	_, err = delivery.FanOutData()
	assert.Error(t, err)
}

func TestTerminal(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"waiting", Task{State: TaskStateWaiting}, false},
		{"processing", Task{State: TaskStateProcessing}, false},
		{"success", Task{State: TaskStateSuccess}, true},
		{"retryable error", Task{State: TaskStateError, NextRetryAt: &now}, false},
		{"abandoned error", Task{State: TaskStateError, Abandoned: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.Terminal())
		})
	}
}
