package trigger

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/hubcap/pkg/storage"
	"github.com/platinummonkey/hubcap/pkg/tasks"
)

// FanoutService handles CreateHookTrigger tasks: one change in, one delivery
// task per matching hook out.
type FanoutService struct {
	hooks  storage.HookRepository
	users  storage.UserRepository
	queue  storage.TaskRepository
	log    *logrus.Logger
}

// NewFanoutService creates the fan-out stage handler.
func NewFanoutService(hooks storage.HookRepository, users storage.UserRepository, queue storage.TaskRepository, log *logrus.Logger) *FanoutService {
	if log == nil {
		log = logrus.New()
	}
	return &FanoutService{hooks: hooks, users: users, queue: queue, log: log}
}

// Execute fans one change out to every matching hook. Zero matches is still
// success. Idempotency rests entirely on the delivery task biz_id: a crash
// and re-run enqueues no duplicates.
func (s *FanoutService) Execute(ctx context.Context, task *tasks.Task) error {
	data, err := task.FanOutData()
	if err != nil {
		return Permanent(err)
	}
	event := data.HookEvent

	ownerID, err := s.users.FindPackageOwner(ctx, event.Fullname)
	if err != nil {
		return fmt.Errorf("resolve owner of %s: %w", event.Fullname, err)
	}

	matched, err := s.hooks.FindMatching(ctx, event.Fullname, ownerID)
	if err != nil {
		return fmt.Errorf("find hooks for %s: %w", event.Fullname, err)
	}

	for _, hook := range matched {
		deliveryTask, err := tasks.NewTriggerHookTask(event, hook.HookID)
		if err != nil {
			return Permanent(err)
		}
		created, err := s.queue.EnqueueIfAbsent(ctx, deliveryTask)
		if err != nil {
			return fmt.Errorf("enqueue delivery for hook %s: %w", hook.HookID, err)
		}
		if created {
			s.log.WithFields(logrus.Fields{
				"biz_id": deliveryTask.BizID,
				"hook":   hook.HookID,
				"change": event.ChangeID,
			}).Info("Enqueued hook delivery")
		}
	}

	s.log.WithFields(logrus.Fields{
		"change":  event.ChangeID,
		"target":  event.Fullname,
		"matched": len(matched),
	}).Debug("Fan-out complete")
	return nil
}
