package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/hubcap/pkg/hooks"
)

// TaskType identifies which stage handler consumes a task.
type TaskType string

const (
	// TaskCreateHookTrigger fans one change out into per-hook delivery tasks.
	TaskCreateHookTrigger TaskType = "CreateHookTrigger"
	// TaskTriggerHook delivers one signed callback to one hook.
	TaskTriggerHook TaskType = "TriggerHook"
)

// TaskState is the lifecycle state of a task.
//
// waiting -> processing -> success
// waiting -> processing -> error (retryable until the attempt ceiling)
// error   -> processing  (on re-dispatch)
type TaskState string

const (
	TaskStateWaiting    TaskState = "waiting"
	TaskStateProcessing TaskState = "processing"
	TaskStateSuccess    TaskState = "success"
	TaskStateError      TaskState = "error"
)

// Task is a unit of queued work. BizID is the deterministic idempotency key:
// enqueue is a no-op when a task with the same BizID already exists, which is
// the sole deduplication mechanism across the pipeline.
type Task struct {
	TaskID    string          `json:"task_id"`
	Type      TaskType        `json:"type"`
	State     TaskState       `json:"state"`
	BizID     string          `json:"biz_id"`
	Attempts  int             `json:"attempts"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
	// Abandoned marks an error task ineligible for automatic retry:
	// either the attempt ceiling was reached or the failure was permanent
	// (subscription deleted, malformed payload).
	Abandoned bool `json:"abandoned,omitempty"`
	// NextRetryAt schedules the earliest re-dispatch of an error task.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateHookTriggerData is the payload of a TaskCreateHookTrigger task.
type CreateHookTriggerData struct {
	HookEvent hooks.HookEvent `json:"hookEvent"`
}

// TriggerHookData is the payload of a TaskTriggerHook task.
type TriggerHookData struct {
	HookEvent hooks.HookEvent `json:"hookEvent"`
	HookID    string          `json:"hookId"`
}

// CreateHookTriggerBizID builds the idempotency key for the fan-out stage.
func CreateHookTriggerBizID(changeID string) string {
	return fmt.Sprintf("CreateHookTrigger:%s", changeID)
}

// TriggerHookBizID builds the idempotency key for one change/hook delivery.
func TriggerHookBizID(changeID, hookID string) string {
	return fmt.Sprintf("TriggerHook:%s:%s", changeID, hookID)
}

// NewCreateHookTriggerTask builds the fan-out task for one hook event.
func NewCreateHookTriggerTask(event hooks.HookEvent) (*Task, error) {
	data, err := json.Marshal(CreateHookTriggerData{HookEvent: event})
	if err != nil {
		return nil, fmt.Errorf("marshal fan-out payload: %w", err)
	}
	return newTask(TaskCreateHookTrigger, CreateHookTriggerBizID(event.ChangeID), data), nil
}

// NewTriggerHookTask builds the delivery task for one change/hook pair.
func NewTriggerHookTask(event hooks.HookEvent, hookID string) (*Task, error) {
	data, err := json.Marshal(TriggerHookData{HookEvent: event, HookID: hookID})
	if err != nil {
		return nil, fmt.Errorf("marshal delivery payload: %w", err)
	}
	return newTask(TaskTriggerHook, TriggerHookBizID(event.ChangeID, hookID), data), nil
}

func newTask(taskType TaskType, bizID string, data json.RawMessage) *Task {
	now := time.Now().UTC()
	return &Task{
		TaskID:    uuid.NewString(),
		Type:      taskType,
		State:     TaskStateWaiting,
		BizID:     bizID,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FanOutData decodes the payload of a fan-out task. Decoding is explicit per
// task type; a task of the wrong type is a data error.
func (t *Task) FanOutData() (*CreateHookTriggerData, error) {
	if t.Type != TaskCreateHookTrigger {
		return nil, fmt.Errorf("task %s is %s, not %s", t.TaskID, t.Type, TaskCreateHookTrigger)
	}
	var data CreateHookTriggerData
	if err := json.Unmarshal(t.Data, &data); err != nil {
		return nil, fmt.Errorf("decode fan-out payload of task %s: %w", t.TaskID, err)
	}
	return &data, nil
}

// DeliveryData decodes the payload of a delivery task.
func (t *Task) DeliveryData() (*TriggerHookData, error) {
	if t.Type != TaskTriggerHook {
		return nil, fmt.Errorf("task %s is %s, not %s", t.TaskID, t.Type, TaskTriggerHook)
	}
	var data TriggerHookData
	if err := json.Unmarshal(t.Data, &data); err != nil {
		return nil, fmt.Errorf("decode delivery payload of task %s: %w", t.TaskID, err)
	}
	return &data, nil
}

// Terminal reports whether the task is done for good: success, or an error
// that will not be retried automatically.
func (t *Task) Terminal() bool {
	return t.State == TaskStateSuccess || (t.State == TaskStateError && t.Abandoned)
}
