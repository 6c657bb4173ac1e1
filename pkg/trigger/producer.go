package trigger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/hubcap/pkg/hooks"
	"github.com/platinummonkey/hubcap/pkg/observability"
	"github.com/platinummonkey/hubcap/pkg/storage"
	"github.com/platinummonkey/hubcap/pkg/tasks"
)

// Producer records registry mutations: it appends the Change and enqueues
// the fan-out task. Fan-out is asynchronous; a slow subscriber never blocks
// the mutation that produced the change.
type Producer struct {
	changes storage.ChangeRepository
	queue   storage.TaskRepository
	metrics *observability.Metrics
	log     *logrus.Logger
}

// NewProducer creates a change producer.
func NewProducer(changes storage.ChangeRepository, queue storage.TaskRepository, log *logrus.Logger) *Producer {
	if log == nil {
		log = logrus.New()
	}
	return &Producer{changes: changes, queue: queue, log: log}
}

// SetMetrics enables change production counters.
func (p *Producer) SetMetrics(m *observability.Metrics) {
	p.metrics = m
}

// changeData is the event-specific portion of a produced change.
type changeData struct {
	Version string `json:"version,omitempty"`
	Tag     string `json:"tag,omitempty"`
}

// ProduceChange appends a change record and schedules its fan-out. The
// fan-out task biz_id is derived from the change id, so producing the same
// change twice enqueues one task.
func (p *Producer) ProduceChange(ctx context.Context, changeType hooks.ChangeType, targetName string, data json.RawMessage) (*hooks.Change, error) {
	change := hooks.NewChange(changeType, targetName, data)
	if err := p.changes.AddChange(ctx, change); err != nil {
		return nil, fmt.Errorf("append change for %s: %w", targetName, err)
	}

	var cd changeData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cd); err != nil {
			return nil, fmt.Errorf("decode change data for %s: %w", change.ChangeID, err)
		}
	}

	event, err := hooks.FromChange(change, cd.Version, cd.Tag)
	if err != nil {
		return nil, err
	}
	task, err := tasks.NewCreateHookTriggerTask(event)
	if err != nil {
		return nil, err
	}
	if _, err := p.queue.EnqueueIfAbsent(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue fan-out for change %s: %w", change.ChangeID, err)
	}

	if p.metrics != nil {
		p.metrics.ChangesProducedTotal.WithLabelValues(string(change.Type)).Inc()
	}
	p.log.WithFields(logrus.Fields{
		"change": change.ChangeID,
		"type":   change.Type,
		"target": targetName,
	}).Info("Change recorded")
	return change, nil
}
