package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/hubcap/pkg/observability"
	"github.com/platinummonkey/hubcap/pkg/storage"
	"github.com/platinummonkey/hubcap/pkg/tasks"
)

// Handler executes one claimed task. A nil return marks the task success;
// an error marks it retryable unless the error reports Permanent() true.
type Handler interface {
	Execute(ctx context.Context, task *tasks.Task) error
}

// permanent is the duck-typed marker for non-retryable failures.
type permanent interface {
	Permanent() bool
}

func isPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}

// Config tunes the dispatcher loops.
type Config struct {
	// Workers is the number of concurrent handlers per registered task type.
	Workers int
	// PollInterval is the idle sleep when no task is runnable.
	PollInterval time.Duration
	// ErrorBackoff is the sleep after a storage failure in the poll loop.
	ErrorBackoff time.Duration
	// HandlerTimeout bounds one handler execution.
	HandlerTimeout time.Duration

	Retry RetryConfig
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		PollInterval:   time.Second,
		ErrorBackoff:   5 * time.Second,
		HandlerTimeout: 30 * time.Second,
		Retry:          DefaultRetryConfig(),
	}
}

// Dispatcher polls the task store for runnable tasks and drives the stage
// handlers with bounded concurrency. The claim transition in the store is
// the only exclusion mechanism: once a worker claims a task it runs the
// handler to completion, then records the outcome.
type Dispatcher struct {
	store    storage.TaskRepository
	handlers map[tasks.TaskType]Handler
	policy   *RetryPolicy
	config   Config
	metrics  *observability.Metrics
	log      *logrus.Logger
}

// New creates a dispatcher. metrics may be nil.
func New(store storage.TaskRepository, config Config, metrics *observability.Metrics, log *logrus.Logger) *Dispatcher {
	if log == nil {
		log = logrus.New()
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = 5 * time.Second
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 30 * time.Second
	}
	return &Dispatcher{
		store:    store,
		handlers: make(map[tasks.TaskType]Handler),
		policy:   NewRetryPolicy(config.Retry),
		config:   config,
		metrics:  metrics,
		log:      log,
	}
}

// Register wires a stage handler for one task type. Must be called before
// Run.
func (d *Dispatcher) Register(taskType tasks.TaskType, handler Handler) {
	d.handlers[taskType] = handler
}

// Run blocks, polling and executing tasks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	g, ctx := errgroup.WithContext(ctx)
	for taskType, handler := range d.handlers {
		taskType, handler := taskType, handler
		for i := 0; i < d.config.Workers; i++ {
			g.Go(func() error {
				d.workerLoop(ctx, taskType, handler)
				return nil
			})
		}
	}
	return g.Wait()
}

// workerLoop claims and executes tasks of one type until ctx is cancelled.
func (d *Dispatcher) workerLoop(ctx context.Context, taskType tasks.TaskType, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}

		task, err := d.store.ClaimTask(ctx, taskType, time.Now(), d.policy.MaxAttempts())
		if err != nil {
			if errors.Is(err, storage.ErrTaskNotFound) {
				d.sleep(ctx, d.config.PollInterval)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			// Storage outage: back off and keep polling, never crash.
			d.log.WithError(err).WithField("type", taskType).Warn("Task claim failed")
			d.sleep(ctx, d.config.ErrorBackoff)
			continue
		}

		d.process(ctx, task, handler)
	}
}

// process runs the handler for one claimed task and records the outcome.
// Handler failures never propagate past this boundary; every outcome lands
// in the task store.
func (d *Dispatcher) process(ctx context.Context, task *tasks.Task, handler Handler) {
	start := time.Now()
	err := d.execute(ctx, task, handler)
	duration := time.Since(start)

	outcome := "success"
	switch {
	case err == nil:
		if ferr := d.store.SucceedTask(ctx, task.TaskID); ferr != nil {
			d.log.WithError(ferr).WithField("task", task.TaskID).Error("Failed to record task success")
		}
	case isPermanent(err) || !d.policy.ShouldRetry(task.Attempts):
		outcome = "abandoned"
		message := err.Error()
		if !isPermanent(err) {
			message = fmt.Sprintf("max attempts reached: %v", err)
		}
		d.log.WithError(err).WithFields(logrus.Fields{
			"task":     task.TaskID,
			"biz_id":   task.BizID,
			"attempts": task.Attempts,
		}).Error("Task abandoned")
		if ferr := d.store.AbandonTask(ctx, task.TaskID, message); ferr != nil {
			d.log.WithError(ferr).WithField("task", task.TaskID).Error("Failed to abandon task")
		}
	default:
		outcome = "error"
		next := d.policy.NextRetryTime(task.Attempts)
		d.log.WithError(err).WithFields(logrus.Fields{
			"task":       task.TaskID,
			"biz_id":     task.BizID,
			"attempts":   task.Attempts,
			"next_retry": next,
		}).Warn("Task failed, retry scheduled")
		if ferr := d.store.RetryTask(ctx, task.TaskID, err.Error(), next); ferr != nil {
			d.log.WithError(ferr).WithField("task", task.TaskID).Error("Failed to schedule task retry")
		}
	}

	if d.metrics != nil {
		d.metrics.ObserveTask(string(task.Type), outcome, duration)
	}
}

// execute runs the handler under the configured timeout with panic recovery.
func (d *Dispatcher) execute(ctx context.Context, task *tasks.Task, handler Handler) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.HandlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.log.WithFields(logrus.Fields{
				"task":  task.TaskID,
				"panic": r,
			}).Errorf("Handler panic\n%s", debug.Stack())
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler.Execute(ctx, task)
}

func (d *Dispatcher) sleep(ctx context.Context, duration time.Duration) {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
