// Period counters (total, per UTC day, per UTC hour) for moderation activity.
//
// The engine uses these for daily action quotas and for operator statistics: actions taken per subreddit, distinct authors actioned, fallback reports.
package countstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

// counter names used by the engine
const (
	CounterActions       = "actions"
	CounterRemovals      = "removals"
	CounterReminders     = "reminders"
	CounterFallbacks     = "fallback-reports"
	CounterQuota         = "action-quota"
	DistinctAuthorsActed = "authors-actioned"
)

type CountStore interface {
	GetCount(ctx context.Context, name, val, period string) (int, error)
	// increments all periods at once
	Increment(ctx context.Context, name, val string) error
	GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error)
	IncrementDistinct(ctx context.Context, name, bucket, val string) error
}

func periodBucket(now time.Time, name, val, period string) string {
	switch period {
	case PeriodTotal:
		return fmt.Sprintf("%s/%s", name, val)
	case PeriodDay:
		t := now.UTC().Format(time.DateOnly)
		return fmt.Sprintf("%s/%s/%s", name, val, t)
	case PeriodHour:
		t := now.UTC().Format(time.RFC3339)[0:13]
		return fmt.Sprintf("%s/%s/%s", name, val, t)
	default:
		slog.Warn("unhandled counter period", "period", period)
		return fmt.Sprintf("%s/%s", name, val)
	}
}
