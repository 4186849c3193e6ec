package ticker

import (
	"context"
	"fmt"
	"time"
)

// Periodically runs task once right away, then at every interval, until the context is done or task returns an error.
func Periodically(ctx context.Context, interval time.Duration, task func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := task(ctx); err != nil {
		return fmt.Errorf("periodic task failed: %w", err)
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := task(ctx); err != nil {
				return fmt.Errorf("periodic task failed: %w", err)
			}
		}
	}
}
