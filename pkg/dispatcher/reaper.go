package dispatcher

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/hubcap/pkg/observability"
	"github.com/platinummonkey/hubcap/pkg/storage"
)

// Reaper periodically returns tasks orphaned in processing state (worker
// crashed mid-task) to waiting, and refreshes the queue depth gauges. Runs
// on a cron schedule alongside the dispatcher.
type Reaper struct {
	store             storage.TaskRepository
	visibilityTimeout time.Duration
	metrics           *observability.Metrics
	log               *logrus.Logger
	cron              *cron.Cron
}

// NewReaper creates a reaper. visibilityTimeout is how long a task may sit
// in processing before it is presumed orphaned; it must comfortably exceed
// the dispatcher's handler timeout.
func NewReaper(store storage.TaskRepository, visibilityTimeout time.Duration, metrics *observability.Metrics, log *logrus.Logger) *Reaper {
	if log == nil {
		log = logrus.New()
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	return &Reaper{
		store:             store,
		visibilityTimeout: visibilityTimeout,
		metrics:           metrics,
		log:               log,
	}
}

// Start schedules the sweep. schedule is a cron expression, e.g. "@every 1m".
func (r *Reaper) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, r.Sweep); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (r *Reaper) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Sweep performs one pass: recover stale tasks, refresh depth gauges.
func (r *Reaper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-r.visibilityTimeout)
	recovered, err := r.store.ResetStaleProcessing(ctx, cutoff)
	if err != nil {
		r.log.WithError(err).Warn("Stale task sweep failed")
	} else if recovered > 0 {
		r.log.WithField("recovered", recovered).Warn("Recovered stale processing tasks")
		if r.metrics != nil {
			r.metrics.TasksRecovered.Add(float64(recovered))
		}
	}

	if r.metrics == nil {
		return
	}
	depths, err := r.store.CountByState(ctx)
	if err != nil {
		r.log.WithError(err).Warn("Queue depth refresh failed")
		return
	}
	for taskType, states := range depths {
		for state, count := range states {
			r.metrics.QueueDepth.WithLabelValues(string(taskType), string(state)).Set(float64(count))
		}
	}
}
