package taskqueue

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	task      Task
	visibleAt time.Time
}

// In-process queue, for tests and single-process development. Not durable.
type MemQueue struct {
	mu    sync.Mutex
	tasks map[string]*memEntry
}

var _ Store = (*MemQueue)(nil)

func NewMemQueue() *MemQueue {
	return &MemQueue{
		tasks: make(map[string]*memEntry),
	}
}

func (q *MemQueue) Enqueue(ctx context.Context, kind Kind, payload any, runAt time.Time) (string, error) {
	t, err := NewTask(kind, payload, runAt)
	if err != nil {
		return "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.tasks[t.ID]; !ok {
		q.tasks[t.ID] = &memEntry{task: *t, visibleAt: t.RunAt}
	}
	return t.ID, nil
}

func (q *MemQueue) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []*memEntry
	for _, e := range q.tasks {
		if !e.visibleAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].visibleAt.Before(due[j].visibleAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]Task, 0, len(due))
	for _, e := range due {
		e.visibleAt = now.Add(lease)
		out = append(out, e.task)
	}
	return out, nil
}

func (q *MemQueue) Complete(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.tasks, id)
	return nil
}

func (q *MemQueue) Retry(ctx context.Context, task *Task, runAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.tasks[task.ID]
	if !ok {
		return nil
	}
	e.task.Attempts = task.Attempts + 1
	e.visibleAt = runAt
	return nil
}

// Every task still in the queue, in run order. For tests.
func (q *MemQueue) Pending() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Task, 0, len(q.tasks))
	for _, e := range q.tasks {
		out = append(out, e.task)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RunAt.Equal(out[j].RunAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RunAt.Before(out[j].RunAt)
	})
	return out
}
