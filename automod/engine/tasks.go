package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modwarden/warden/automod/actions"
	"github.com/modwarden/warden/automod/countstore"
	"github.com/modwarden/warden/automod/flagstore"
	"github.com/modwarden/warden/automod/platform"
	"github.com/modwarden/warden/automod/settings"
	"github.com/modwarden/warden/automod/taskqueue"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Payloads only carry identifiers and the settings as they were when the task was scheduled. Content is always re-fetched.

type ReminderPayload struct {
	PostID string `json:"postId"`
	// rendered reminder text
	Message     string                 `json:"message"`
	Options     actions.CommentOptions `json:"options"`
	RemoveDelay time.Duration          `json:"removeDelay,omitempty"`
	// used only if the post no longer names an author
	AuthorFlair *platform.UserFlair `json:"authorFlair,omitempty"`
	Settings    settings.Values     `json:"settings"`
}

type ReminderRemovalPayload struct {
	CommentID string `json:"commentId"`
	PostID    string `json:"postId,omitempty"`
}

type ActionPayload struct {
	PostID      string              `json:"postId"`
	AuthorFlair *platform.UserFlair `json:"authorFlair,omitempty"`
	Settings    settings.Values     `json:"settings"`
}

// Runs a due task. Returned errors are collaborator failures, and the task should be retried; every other problem resolves to a no-op.
func (eng *Engine) HandleTask(ctx context.Context, task *taskqueue.Task) (err error) {
	ctx, span := tracer.Start(ctx, "HandleTask", trace.WithAttributes(
		attribute.String("kind", string(task.Kind)),
		attribute.String("task", task.ID),
		attribute.Int("attempts", task.Attempts),
	))
	defer span.End()

	logger := eng.Logger.With("task", task.ID, "kind", task.Kind, "attempts", task.Attempts)
	var outcome Outcome
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task execution exception", "err", r)
			err = fmt.Errorf("task panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			taskOutcomeCount.WithLabelValues(string(task.Kind), "error").Inc()
			return
		}
		taskOutcomeCount.WithLabelValues(string(task.Kind), string(outcome)).Inc()
		logger.Info("canonical-task-line", "outcome", outcome)
	}()

	switch task.Kind {
	case taskqueue.KindReminder:
		var p ReminderPayload
		if err := task.Decode(&p); err != nil {
			logger.Error("dropping undecodable task", "err", err)
			outcome = OutcomeSkipped
			return nil
		}
		logger = logger.With("post", p.PostID)
		outcome, err = eng.handleReminder(ctx, logger, &p)
	case taskqueue.KindReminderRemoval:
		var p ReminderRemovalPayload
		if err := task.Decode(&p); err != nil {
			logger.Error("dropping undecodable task", "err", err)
			outcome = OutcomeSkipped
			return nil
		}
		logger = logger.With("post", p.PostID, "comment", p.CommentID)
		outcome, err = eng.handleReminderRemoval(ctx, logger, &p)
	case taskqueue.KindAction:
		var p ActionPayload
		if err := task.Decode(&p); err != nil {
			logger.Error("dropping undecodable task", "err", err)
			outcome = OutcomeSkipped
			return nil
		}
		logger = logger.With("post", p.PostID)
		outcome, err = eng.handleAction(ctx, logger, &p)
	default:
		return fmt.Errorf("%w: %s", taskqueue.ErrUnknownKind, task.Kind)
	}
	return err
}

// Parses the settings snapshot carried by a task. A snapshot that no longer parses (eg, from an older release) cancels the task.
func snapshotConfig(logger *slog.Logger, vals settings.Values) *settings.Config {
	cfg, err := settings.Parse(vals)
	if err != nil {
		logger.Error("task settings snapshot is invalid", "err", err)
		return nil
	}
	return cfg
}

func (eng *Engine) handleReminder(ctx context.Context, logger *slog.Logger, p *ReminderPayload) (Outcome, error) {
	if p.PostID == "" || p.Message == "" {
		return OutcomeCancelled, nil
	}
	cfg := snapshotConfig(logger, p.Settings)
	if cfg == nil {
		return OutcomeCancelled, nil
	}
	return eng.sendReminder(ctx, logger, p, cfg)
}

// Posts the reminder comment if the post still qualifies, and schedules its removal. Shared by the inline and scheduled paths.
func (eng *Engine) sendReminder(ctx context.Context, logger *slog.Logger, p *ReminderPayload, cfg *settings.Config) (Outcome, error) {
	sent, err := eng.hasFlag(ctx, p.PostID, flagstore.FlagReminderSent)
	if err != nil {
		return OutcomeNone, err
	}
	if sent {
		return OutcomeDuplicate, nil
	}

	post, reason, err := eng.revalidate(ctx, p.PostID, p.AuthorFlair, cfg)
	if err != nil {
		return OutcomeNone, err
	}
	if post == nil {
		logger.Info("reminder cancelled", "reason", reason)
		eng.addFlag(ctx, logger, p.PostID, flagstore.FlagReminderCancelled)
		return OutcomeCancelled, nil
	}

	c, err := actions.PostModComment(ctx, eng.Platform, post.ID, p.Message, p.Options)
	if err != nil {
		if c == nil {
			return OutcomeNone, err
		}
		// the comment exists; retrying would post a second one
		logger.Warn("reminder posted but moderation options failed", "comment", c.ID, "err", err)
	}
	eng.addFlag(ctx, logger, post.ID, flagstore.FlagReminderSent)
	eng.increment(ctx, logger, countstore.CounterReminders, post.SubredditName)

	if p.RemoveDelay > 0 {
		rp := ReminderRemovalPayload{CommentID: c.ID, PostID: post.ID}
		if _, err := eng.Queue.Enqueue(ctx, taskqueue.KindReminderRemoval, rp, eng.now().Add(p.RemoveDelay)); err != nil {
			// not returned: a retry would be suppressed by the sent flag anyways
			logger.Error("failed to schedule reminder removal", "comment", c.ID, "err", err)
		}
	}
	return OutcomeSent, nil
}

func (eng *Engine) handleReminderRemoval(ctx context.Context, logger *slog.Logger, p *ReminderRemovalPayload) (Outcome, error) {
	if p.CommentID == "" {
		return OutcomeCancelled, nil
	}
	c, err := eng.Platform.GetComment(ctx, p.CommentID)
	if errors.Is(err, platform.ErrNotFound) {
		logger.Info("reminder comment no longer exists")
		return OutcomeSkipped, nil
	} else if err != nil {
		return OutcomeNone, fmt.Errorf("fetching reminder comment: %w", err)
	}
	key := p.PostID
	if key == "" {
		key = c.PostID
	}
	if c.IsGone() {
		eng.addFlag(ctx, logger, key, flagstore.FlagReminderRemovalSkipped)
		return OutcomeSkipped, nil
	}
	if err := eng.Platform.RemoveComment(ctx, c.ID); err != nil {
		return OutcomeNone, fmt.Errorf("removing reminder comment: %w", err)
	}
	eng.addFlag(ctx, logger, key, flagstore.FlagReminderRemoved)
	return OutcomeRemoved, nil
}

func (eng *Engine) handleAction(ctx context.Context, logger *slog.Logger, p *ActionPayload) (Outcome, error) {
	if p.PostID == "" {
		return OutcomeCancelled, nil
	}
	done, err := eng.hasFlag(ctx, p.PostID, flagstore.FlagActionExecuted)
	if err != nil {
		return OutcomeNone, err
	}
	if done {
		return OutcomeDuplicate, nil
	}
	cfg := snapshotConfig(logger, p.Settings)
	if cfg == nil {
		return OutcomeCancelled, nil
	}
	if cfg.Action.Kind == actions.DoNothing {
		return OutcomeSkipped, nil
	}

	// a previous attempt already removed the post, and re-validating would now see that removal
	resuming, err := eng.hasFlag(ctx, p.PostID, flagstore.FlagActionRemoved)
	if err != nil {
		return OutcomeNone, err
	}

	var post *platform.Post
	if resuming {
		post, err = eng.Platform.GetPost(ctx, p.PostID)
		if errors.Is(err, platform.ErrNotFound) {
			logger.Info("action cancelled", "reason", "post-missing")
			eng.addFlag(ctx, logger, p.PostID, flagstore.FlagActionCancelled)
			return OutcomeCancelled, nil
		} else if err != nil {
			return OutcomeNone, fmt.Errorf("fetching post: %w", err)
		}
		logger.Info("resuming partially executed removal")
	} else {
		var reason string
		post, reason, err = eng.revalidate(ctx, p.PostID, p.AuthorFlair, cfg)
		if err != nil {
			return OutcomeNone, err
		}
		if post == nil {
			logger.Info("action cancelled", "reason", reason)
			eng.addFlag(ctx, logger, p.PostID, flagstore.FlagActionCancelled)
			return OutcomeCancelled, nil
		}
	}
	logger = logger.With("subreddit", post.SubredditName)

	acfg := cfg.Action.Config
	if !resuming && !eng.withinQuota(ctx, logger, post.SubredditName, acfg.Kind) {
		acfg = actions.Config{Kind: actions.Report, ReportReason: ReasonQuotaExceeded}
	}

	res, err := eng.executor(logger, post.ID).Execute(ctx, post, &acfg)
	if err != nil {
		return OutcomeNone, err
	}
	eng.addFlag(ctx, logger, post.ID, flagstore.FlagActionExecuted)
	eng.recordAction(ctx, logger, post, res)

	if eng.Notifier != nil && (res.Outcome == actions.OutcomeRemoved || res.Fallback) {
		if err := eng.Notifier.SendAction(ctx, post, res); err != nil {
			logger.Warn("failed to send action notification", "err", err)
		}
	}
	return OutcomeExecuted, nil
}

// Circuit breaker for destructive actions. Reports are never limited.
func (eng *Engine) withinQuota(ctx context.Context, logger *slog.Logger, subreddit string, kind actions.Kind) bool {
	if eng.QuotaActionsDay <= 0 || eng.Counters == nil {
		return true
	}
	if kind != actions.Remove && kind != actions.Flair {
		return true
	}
	c, err := eng.Counters.GetCount(ctx, countstore.CounterQuota, subreddit, countstore.PeriodDay)
	if err != nil {
		// fail safe: a report is always visible to a human
		logger.Warn("failed to read action quota", "err", err)
		return false
	}
	if c >= eng.QuotaActionsDay {
		logger.Warn("CIRCUIT BREAKER: daily action quota", "quota", eng.QuotaActionsDay)
		quotaTripCount.Inc()
		return false
	}
	return true
}

func (eng *Engine) recordAction(ctx context.Context, logger *slog.Logger, post *platform.Post, res *actions.Result) {
	actionCount.WithLabelValues(string(res.Outcome), fmt.Sprint(res.Fallback)).Inc()
	sub := post.SubredditName
	eng.increment(ctx, logger, countstore.CounterActions, sub)
	switch res.Outcome {
	case actions.OutcomeRemoved:
		eng.increment(ctx, logger, countstore.CounterRemovals, sub)
		eng.increment(ctx, logger, countstore.CounterQuota, sub)
	case actions.OutcomeFlaired:
		eng.increment(ctx, logger, countstore.CounterQuota, sub)
	}
	if res.Fallback {
		eng.increment(ctx, logger, countstore.CounterFallbacks, sub)
	}
	if eng.Counters != nil && post.AuthorName != "" {
		if err := eng.Counters.IncrementDistinct(ctx, countstore.DistinctAuthorsActed, sub, post.AuthorName); err != nil {
			logger.Warn("failed to increment counter", "counter", countstore.DistinctAuthorsActed, "err", err)
		}
	}
}
