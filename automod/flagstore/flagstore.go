// Per-post lifecycle flags.
//
// The engine records what it has done for a post (gated, reminder sent, action executed, and so on) so redelivered tasks and duplicate webhook calls do not repeat side effects.
package flagstore

import (
	"context"
)

const (
	FlagGated                  = "gated"
	FlagReminderScheduled      = "reminder-scheduled"
	FlagReminderSent           = "reminder-sent"
	FlagReminderCancelled      = "reminder-cancelled"
	FlagReminderRemoved        = "reminder-removed"
	FlagReminderRemovalSkipped = "reminder-removal-skipped"
	FlagActionScheduled        = "action-scheduled"
	FlagActionExecuted         = "action-executed"
	FlagActionCancelled        = "action-cancelled"
	// removal progress, see actions.Progress
	FlagActionRemoved  = "action-removed"
	FlagActionNoted    = "action-noted"
	FlagActionNotified = "action-notified"
)

type FlagStore interface {
	Get(ctx context.Context, key string) ([]string, error)
	Add(ctx context.Context, key string, flags []string) error
	Remove(ctx context.Context, key string, flags []string) error
}

// Has reports whether the flag is set for the key.
func Has(ctx context.Context, fs FlagStore, key, flag string) (bool, error) {
	l, err := fs.Get(ctx, key)
	if err != nil {
		return false, err
	}
	for _, f := range l {
		if f == flag {
			return true, nil
		}
	}
	return false, nil
}
