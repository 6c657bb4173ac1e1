package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/hubcap/pkg/hooks"
	"github.com/platinummonkey/hubcap/pkg/tasks"
)

// MemoryStore is a mutex-guarded in-memory Store used by unit tests and the
// daemon's dev mode. Claim semantics match the postgres implementation: a
// claim is exclusive and transitions exactly one runnable task.
type MemoryStore struct {
	mu sync.Mutex

	seq     int64
	changes []*hooks.Change

	hooksByID map[string]*hooks.Hook

	tasksByID    map[string]*tasks.Task
	tasksByBizID map[string]*tasks.Task

	usersByID     map[string]string // userID -> username
	packageOwners map[string]string // targetName -> userID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hooksByID:     make(map[string]*hooks.Hook),
		tasksByID:     make(map[string]*tasks.Task),
		tasksByBizID:  make(map[string]*tasks.Task),
		usersByID:     make(map[string]string),
		packageOwners: make(map[string]string),
	}
}

// AddChange appends a change and assigns its sequence number.
func (s *MemoryStore) AddChange(_ context.Context, change *hooks.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	change.Seq = s.seq
	cp := *change
	s.changes = append(s.changes, &cp)
	return nil
}

// ListChangesSince returns changes strictly after seq in append order.
func (s *MemoryStore) ListChangesSince(_ context.Context, seq int64, limit int) ([]*hooks.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*hooks.Change
	for _, c := range s.changes {
		if c.Seq > seq {
			cp := *c
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// CreateHook stores a hook subscription.
func (s *MemoryStore) CreateHook(_ context.Context, hook *hooks.Hook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *hook
	s.hooksByID[hook.HookID] = &cp
	return nil
}

// GetHook returns the hook snapshot or ErrHookNotFound.
func (s *MemoryStore) GetHook(_ context.Context, hookID string) (*hooks.Hook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hooksByID[hookID]
	if !ok {
		return nil, ErrHookNotFound
	}
	cp := *h
	return &cp, nil
}

// DeleteHook removes a subscription.
func (s *MemoryStore) DeleteHook(_ context.Context, hookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hooksByID[hookID]; !ok {
		return ErrHookNotFound
	}
	delete(s.hooksByID, hookID)
	return nil
}

// FindMatching returns every enabled hook whose scope subsumes targetName.
func (s *MemoryStore) FindMatching(_ context.Context, targetName, ownerID string) ([]*hooks.Hook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*hooks.Hook
	for _, h := range s.hooksByID {
		if h.Enabled && h.Matches(targetName, ownerID) {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListHooksByName returns hooks subscribed to the exact name.
func (s *MemoryStore) ListHooksByName(_ context.Context, name string) ([]*hooks.Hook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*hooks.Hook
	for _, h := range s.hooksByID {
		if h.Name == name {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// EnqueueIfAbsent persists the task unless its BizID is already taken.
func (s *MemoryStore) EnqueueIfAbsent(_ context.Context, task *tasks.Task) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasksByBizID[task.BizID]; ok {
		return false, nil
	}
	cp := *task
	s.tasksByID[task.TaskID] = &cp
	s.tasksByBizID[task.BizID] = &cp
	return true, nil
}

// FindTaskByBizID returns the task snapshot or ErrTaskNotFound.
func (s *MemoryStore) FindTaskByBizID(_ context.Context, bizID string) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasksByBizID[bizID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// ClaimTask atomically claims one runnable task of the given type.
func (s *MemoryStore) ClaimTask(_ context.Context, taskType tasks.TaskType, now time.Time, maxAttempts int) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*tasks.Task
	for _, t := range s.tasksByID {
		if t.Type != taskType {
			continue
		}
		switch t.State {
		case tasks.TaskStateWaiting:
			candidates = append(candidates, t)
		case tasks.TaskStateError:
			if !t.Abandoned && t.Attempts < maxAttempts &&
				(t.NextRetryAt == nil || !t.NextRetryAt.After(now)) {
				candidates = append(candidates, t)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, ErrTaskNotFound
	}
	// Oldest first, approximating queue order.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	t := candidates[0]
	t.State = tasks.TaskStateProcessing
	t.Attempts++
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, nil
}

// SucceedTask records a successful processing pass.
func (s *MemoryStore) SucceedTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasksByID[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	t.State = tasks.TaskStateSuccess
	t.Error = ""
	t.NextRetryAt = nil
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// RetryTask records a retryable failure and schedules the next attempt.
func (s *MemoryStore) RetryTask(_ context.Context, taskID string, message string, nextRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasksByID[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	t.State = tasks.TaskStateError
	t.Error = message
	t.NextRetryAt = &nextRetryAt
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// AbandonTask marks the task error with no further automatic retry.
func (s *MemoryStore) AbandonTask(_ context.Context, taskID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasksByID[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	t.State = tasks.TaskStateError
	t.Error = message
	t.Abandoned = true
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// ResetStaleProcessing returns orphaned processing tasks to waiting.
func (s *MemoryStore) ResetStaleProcessing(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.tasksByID {
		if t.State == tasks.TaskStateProcessing && t.UpdatedAt.Before(olderThan) {
			t.State = tasks.TaskStateWaiting
			t.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// CountByState reports queue depth per task type and state.
func (s *MemoryStore) CountByState(_ context.Context) (map[tasks.TaskType]map[tasks.TaskState]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[tasks.TaskType]map[tasks.TaskState]int64)
	for _, t := range s.tasksByID {
		if out[t.Type] == nil {
			out[t.Type] = make(map[tasks.TaskState]int64)
		}
		out[t.Type][t.State]++
	}
	return out, nil
}

// RegisterUser records a userID -> username mapping for identity lookups.
func (s *MemoryStore) RegisterUser(userID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersByID[userID] = username
}

// SetPackageOwner records the owning user of a package name.
func (s *MemoryStore) SetPackageOwner(targetName, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packageOwners[targetName] = userID
}

// FindUserName resolves a userID to its username.
func (s *MemoryStore) FindUserName(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.usersByID[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	return name, nil
}

// FindPackageOwner resolves the owning userID of a package, or "" when the
// owner is unknown.
func (s *MemoryStore) FindPackageOwner(_ context.Context, targetName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packageOwners[targetName], nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
