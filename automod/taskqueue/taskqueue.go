// Durable deferred execution of moderation tasks.
//
// Tasks are delivered at least once: a claimed task is hidden from other workers for a lease period, and reappears if it is not completed in time. Handlers must be idempotent.
//
// Includes an interface and implementations using redis, SQL (gorm), and in-process memory.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/modwarden/warden/automod/helpers"
)

var ErrUnknownKind = errors.New("unknown task kind")

type Kind string

const (
	KindReminder        Kind = "reminder"
	KindReminderRemoval Kind = "reminder-removal"
	KindAction          Kind = "action"
)

type Task struct {
	ID       string          `json:"id"`
	Kind     Kind            `json:"kind"`
	RunAt    time.Time       `json:"runAt"`
	Attempts int             `json:"attempts"`
	Payload  json.RawMessage `json:"payload"`
}

// Decodes the payload into the provided struct pointer.
func (t *Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decoding %s task payload: %w", t.Kind, err)
	}
	return nil
}

// The only thing schedulers depend on.
type Queue interface {
	// Registers a task to run at or after runAt, returning the task ID. Enqueueing an identical task (same kind, payload, and time) again is a no-op.
	Enqueue(ctx context.Context, kind Kind, payload any, runAt time.Time) (string, error)
}

// Worker side of a queue.
type Store interface {
	Queue
	// Claims up to limit tasks which are due at now, hiding them until now+lease.
	Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Task, error)
	// Removes a task permanently. Does not error if the task does not exist.
	Complete(ctx context.Context, id string) error
	// Makes the task visible again at runAt, with the attempt counter incremented.
	Retry(ctx context.Context, task *Task, runAt time.Time) error
}

// Builds a task with a deterministic ID derived from kind, payload, and time.
func NewTask(kind Kind, payload any, runAt time.Time) (*Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s task payload: %w", kind, err)
	}
	runAt = runAt.UTC().Truncate(time.Millisecond)
	id := helpers.HashOfString(string(kind) + "|" + string(b) + "|" + strconv.FormatInt(runAt.UnixMilli(), 10))
	return &Task{
		ID:      id,
		Kind:    kind,
		RunAt:   runAt,
		Payload: b,
	}, nil
}
