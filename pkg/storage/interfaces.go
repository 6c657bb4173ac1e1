package storage

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/hubcap/pkg/hooks"
	"github.com/platinummonkey/hubcap/pkg/tasks"
)

var (
	// ErrHookNotFound is returned when a hook id resolves to nothing,
	// typically because the subscription was deleted.
	ErrHookNotFound = errors.New("hook not found")
	// ErrTaskNotFound is returned by task lookups that match no row.
	ErrTaskNotFound = errors.New("task not found")
	// ErrUserNotFound is returned when an owner id cannot be resolved.
	ErrUserNotFound = errors.New("user not found")
)

// ChangeRepository is the append-only change log. No update or delete is
// exposed; an appended change is visible in full or not at all.
type ChangeRepository interface {
	AddChange(ctx context.Context, change *hooks.Change) error
	// ListChangesSince returns changes strictly after seq in append order,
	// up to limit rows. Callers resume from the last returned Seq.
	ListChangesSince(ctx context.Context, seq int64, limit int) ([]*hooks.Change, error)
}

// HookRepository stores subscriptions. Matching is pure and side-effect-free;
// FindMatching returns an unordered set.
type HookRepository interface {
	CreateHook(ctx context.Context, hook *hooks.Hook) error
	GetHook(ctx context.Context, hookID string) (*hooks.Hook, error)
	DeleteHook(ctx context.Context, hookID string) error
	// FindMatching returns every enabled hook whose scope subsumes
	// targetName; ownerID may be empty when the target owner is unknown.
	FindMatching(ctx context.Context, targetName, ownerID string) ([]*hooks.Hook, error)
	ListHooksByName(ctx context.Context, name string) ([]*hooks.Hook, error)
}

// TaskRepository is the durable task queue shared by all workers. It must
// support atomic claim-and-transition; it is the only cross-worker
// synchronization point in the pipeline.
type TaskRepository interface {
	// EnqueueIfAbsent persists the task unless one with the same BizID
	// already exists. Reports whether a new task was created.
	EnqueueIfAbsent(ctx context.Context, task *tasks.Task) (bool, error)
	FindTaskByBizID(ctx context.Context, bizID string) (*tasks.Task, error)
	// ClaimTask atomically moves one runnable task of the given type to
	// processing and returns it, or ErrTaskNotFound when nothing is
	// runnable. A waiting task is always runnable; an error task is
	// runnable once its NextRetryAt has passed, while its attempts stay
	// under maxAttempts and it is not abandoned.
	ClaimTask(ctx context.Context, taskType tasks.TaskType, now time.Time, maxAttempts int) (*tasks.Task, error)
	// SucceedTask records a successful processing pass.
	SucceedTask(ctx context.Context, taskID string) error
	// RetryTask records a retryable failure and schedules the next attempt.
	RetryTask(ctx context.Context, taskID string, message string, nextRetryAt time.Time) error
	// AbandonTask marks the task error and ineligible for automatic retry.
	// Used for permanent failures and for the attempt ceiling.
	AbandonTask(ctx context.Context, taskID string, message string) error
	// ResetStaleProcessing returns processing tasks older than olderThan to
	// waiting, recovering work orphaned by a crashed worker.
	ResetStaleProcessing(ctx context.Context, olderThan time.Time) (int64, error)
	// CountByState reports queue depth per task type and state.
	CountByState(ctx context.Context) (map[tasks.TaskType]map[tasks.TaskState]int64, error)
}

// UserRepository resolves owner identities for the hookOwner envelope field.
type UserRepository interface {
	FindUserName(ctx context.Context, userID string) (string, error)
	FindPackageOwner(ctx context.Context, targetName string) (string, error)
}

// Store aggregates the four repositories behind one durable backend.
type Store interface {
	ChangeRepository
	HookRepository
	TaskRepository
	UserRepository

	HealthCheck(ctx context.Context) error
	Close() error
}

// Config for storage backends.
type Config struct {
	Type string // "postgres", "memory"

	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// Redis config (hook snapshot cache)
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache config
	CacheEnabled bool
	CacheTTL     time.Duration
	L1CacheSize  int // entries in the in-process LRU
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL:         5 * time.Minute,
		L1CacheSize:      1024,
	}
}
