package engine

import (
	"context"

	"github.com/modwarden/warden/automod/actions"
	"github.com/modwarden/warden/automod/platform"
)

// Interface for a type that can tell operators about actions taken (removals, and reports that replaced a misconfigured action)
type Notifier interface {
	SendAction(ctx context.Context, post *platform.Post, res *actions.Result) error
}
