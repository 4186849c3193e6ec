package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modwarden/warden/automod/actions"
	"github.com/modwarden/warden/automod/cachestore"
	"github.com/modwarden/warden/automod/comments"
	"github.com/modwarden/warden/automod/countstore"
	"github.com/modwarden/warden/automod/flagstore"
	"github.com/modwarden/warden/automod/format"
	"github.com/modwarden/warden/automod/platform"
	"github.com/modwarden/warden/automod/rules"
	"github.com/modwarden/warden/automod/settings"
	"github.com/modwarden/warden/automod/taskqueue"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Reminders with a shorter delay than this are sent inline, because the scheduler is unreliable for very short delays.
const InlineReminderThreshold = 10 * time.Minute

// report reason used when the daily action quota is exhausted
const ReasonQuotaExceeded = "action quota exceeded"

var tracer = otel.Tracer("engine")

// runtime for gating new posts, scheduling reminders and actions, and re-validating them when they come due.
//
// Logger, Platform, Queue, Settings, and Flags must be set. Counters, Cache, and Notifier are optional.
type Engine struct {
	Logger   *slog.Logger
	Platform platform.Platform
	Queue    taskqueue.Queue
	Settings settings.Store
	Flags    flagstore.FlagStore
	Counters countstore.CountStore
	Cache    cachestore.CacheStore
	Notifier Notifier
	// account name the bot acts as. Its own comments never count as qualifying comments.
	Identity string
	// per-subreddit daily limit on removals and flair changes; zero means unlimited
	QuotaActionsDay int
	// overridable clock
	Now func() time.Time
}

type PostCreateEvent struct {
	PostID string `json:"postId"`
	// author flair at submission time, if the signal carried it
	AuthorFlair *platform.UserFlair `json:"authorFlair,omitempty"`
}

type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSent      Outcome = "sent"
	OutcomeScheduled Outcome = "scheduled"
	OutcomeExecuted  Outcome = "executed"
	OutcomeRemoved   Outcome = "removed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
)

// What ProcessPostCreate decided for a post.
type PostResult struct {
	PostID     string    `json:"postId"`
	Gated      bool      `json:"gated"`
	Reminder   Outcome   `json:"reminder,omitempty"`
	ReminderAt time.Time `json:"reminderAt,omitzero"`
	Action     Outcome   `json:"action,omitempty"`
	ActionAt   time.Time `json:"actionAt,omitzero"`
}

func (eng *Engine) now() time.Time {
	if eng.Now != nil {
		return eng.Now()
	}
	return time.Now()
}

func (eng *Engine) executor(logger *slog.Logger, postID string) *actions.Executor {
	return &actions.Executor{
		Platform: eng.Platform,
		Identity: eng.Identity,
		Logger:   logger,
		Loader:   eng.loader(logger),
		Progress: &flagProgress{flags: eng.Flags, key: postID},
	}
}

// Stores removal progress as "action-<step>" lifecycle flags on the post.
type flagProgress struct {
	flags flagstore.FlagStore
	key   string
}

func (fp *flagProgress) Done(ctx context.Context, step string) (bool, error) {
	return flagstore.Has(ctx, fp.flags, fp.key, "action-"+step)
}

func (fp *flagProgress) Mark(ctx context.Context, step string) error {
	return fp.flags.Add(ctx, fp.key, []string{"action-" + step})
}

func (eng *Engine) loader(logger *slog.Logger) *format.Loader {
	return &format.Loader{
		Platform: eng.Platform,
		Cache:    eng.Cache,
		Logger:   logger,
	}
}

// Handles a new post: evaluates the policy once, then sends or schedules the reminder and schedules the action.
func (eng *Engine) ProcessPostCreate(ctx context.Context, evt PostCreateEvent) (res *PostResult, err error) {
	ctx, span := tracer.Start(ctx, "ProcessPostCreate", trace.WithAttributes(attribute.String("post", evt.PostID)))
	defer span.End()

	logger := eng.Logger.With("post", evt.PostID)
	start := time.Now()
	// similar to an HTTP server, we want to recover any panics from processing
	defer func() {
		if r := recover(); r != nil {
			logger.Error("post processing exception", "err", r)
			err = fmt.Errorf("post processing panic: %v", r)
		}
		postProcessDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			postProcessCount.WithLabelValues("error").Inc()
		}
	}()

	res = &PostResult{PostID: evt.PostID}
	if evt.PostID == "" {
		return res, nil
	}

	vals, cfg, err := settings.Load(ctx, eng.Settings)
	if err != nil {
		return nil, err
	}
	post, err := eng.Platform.GetPost(ctx, evt.PostID)
	if errors.Is(err, platform.ErrNotFound) {
		logger.Info("post not found, ignoring")
		postProcessCount.WithLabelValues("missing").Inc()
		return res, nil
	} else if err != nil {
		return nil, fmt.Errorf("fetching post: %w", err)
	}
	logger = logger.With("subreddit", post.SubredditName)

	attrs := rules.NewAttributes(post, evt.AuthorFlair)
	if !rules.CheckPost(&attrs, &cfg.Policy) {
		logger.Debug("post does not match policy")
		postProcessCount.WithLabelValues("ungated").Inc()
		eng.canonicalPostLogLine(logger, res)
		return res, nil
	}
	res.Gated = true
	postProcessCount.WithLabelValues("gated").Inc()
	eng.addFlag(ctx, logger, post.ID, flagstore.FlagGated)

	now := eng.now()
	// the action is scheduled first, so a failing reminder never prevents it
	if cfg.Action.Kind != actions.DoNothing {
		payload := ActionPayload{
			PostID:      post.ID,
			AuthorFlair: evt.AuthorFlair,
			Settings:    vals,
		}
		res.ActionAt = now.Add(cfg.Action.Delay)
		if _, err := eng.Queue.Enqueue(ctx, taskqueue.KindAction, payload, res.ActionAt); err != nil {
			return nil, fmt.Errorf("scheduling action: %w", err)
		}
		res.Action = OutcomeScheduled
		eng.addFlag(ctx, logger, post.ID, flagstore.FlagActionScheduled)
	}

	if cfg.Reminder.Enabled && cfg.Reminder.Message != "" {
		data := eng.loader(logger).Load(ctx, post)
		payload := ReminderPayload{
			PostID:      post.ID,
			Message:     format.Message(cfg.Reminder.Message, cfg.Reminder.RandomValues, &data),
			Options:     cfg.Reminder.Options,
			RemoveDelay: cfg.Reminder.RemoveDelay,
			AuthorFlair: evt.AuthorFlair,
			Settings:    vals,
		}
		runAt := now.Add(cfg.Reminder.Delay)
		scheduled := cfg.Reminder.Delay >= InlineReminderThreshold
		if !scheduled {
			res.Reminder, err = eng.sendReminder(ctx, logger, &payload, cfg)
			if err != nil {
				// hand it to the task runner, which retries with backoff
				logger.Warn("inline reminder failed, scheduling it instead", "err", err)
				runAt = now
				scheduled = true
			}
		}
		if scheduled {
			res.ReminderAt = runAt
			if _, err := eng.Queue.Enqueue(ctx, taskqueue.KindReminder, payload, runAt); err != nil {
				return nil, fmt.Errorf("scheduling reminder: %w", err)
			}
			res.Reminder = OutcomeScheduled
			eng.addFlag(ctx, logger, post.ID, flagstore.FlagReminderScheduled)
		}
	}

	eng.canonicalPostLogLine(logger, res)
	return res, nil
}

// Re-checks the policy and the reply tree against live state. Returns the live post if it should still be acted on, or nil and a short reason if not.
func (eng *Engine) revalidate(ctx context.Context, postID string, snapshot *platform.UserFlair, cfg *settings.Config) (*platform.Post, string, error) {
	ctx, span := tracer.Start(ctx, "revalidate")
	defer span.End()

	post, err := eng.Platform.GetPost(ctx, postID)
	if errors.Is(err, platform.ErrNotFound) {
		return nil, "post-missing", nil
	} else if err != nil {
		return nil, "", fmt.Errorf("fetching post: %w", err)
	}

	flair := snapshot
	if post.AuthorName != "" {
		flair, err = eng.Platform.GetUserFlair(ctx, post.SubredditName, post.AuthorName)
		if err != nil {
			return nil, "", fmt.Errorf("fetching author flair: %w", err)
		}
	}
	attrs := rules.NewAttributes(post, flair)
	if !rules.CheckPost(&attrs, &cfg.Policy) {
		return nil, "policy", nil
	}

	list, err := eng.Platform.GetCommentTree(ctx, post.ID)
	if err != nil {
		return nil, "", fmt.Errorf("fetching comments: %w", err)
	}
	tree := comments.NewTree(post.ID, post.AuthorID, list)
	if c := tree.Find(&cfg.Comments, cfg.CommentIgnore, eng.Identity); c != nil {
		span.SetAttributes(attribute.String("comment", c.ID))
		return nil, "comment-found", nil
	}
	return post, "", nil
}

// Flag writes are bookkeeping for duplicate suppression; failures are logged, not returned.
func (eng *Engine) addFlag(ctx context.Context, logger *slog.Logger, key, flag string) {
	if err := eng.Flags.Add(ctx, key, []string{flag}); err != nil {
		logger.Warn("failed to persist lifecycle flag", "flag", flag, "err", err)
	}
}

func (eng *Engine) hasFlag(ctx context.Context, key, flag string) (bool, error) {
	ok, err := flagstore.Has(ctx, eng.Flags, key, flag)
	if err != nil {
		return false, fmt.Errorf("reading lifecycle flags: %w", err)
	}
	return ok, nil
}

func (eng *Engine) increment(ctx context.Context, logger *slog.Logger, name, val string) {
	if eng.Counters == nil {
		return
	}
	if err := eng.Counters.Increment(ctx, name, val); err != nil {
		logger.Warn("failed to increment counter", "counter", name, "err", err)
	}
}

func (eng *Engine) canonicalPostLogLine(logger *slog.Logger, res *PostResult) {
	logger.Info("canonical-post-line",
		"gated", res.Gated,
		"reminder", res.Reminder,
		"action", res.Action,
	)
}
