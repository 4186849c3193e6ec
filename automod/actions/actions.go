// Executes the terminal moderation action for a post: flair change, removal (with optional notification), or report.
//
// Any configured reference which does not resolve (flair template, removal reason) degrades to a report, so a misconfiguration is always visible to a human moderator.
package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modwarden/warden/automod/format"
	"github.com/modwarden/warden/automod/platform"
)

type Kind string

const (
	DoNothing Kind = "do_nothing"
	Report    Kind = "report"
	Flair     Kind = "flair"
	Remove    Kind = "remove"
)

func (k Kind) Valid() bool {
	switch k {
	case DoNothing, Report, Flair, Remove:
		return true
	}
	return false
}

type NotifyVia string

const (
	NotifyNone    NotifyVia = "do_nothing"
	NotifyComment NotifyVia = "comment"
	NotifyModmail NotifyVia = "modmail"
)

func (n NotifyVia) Valid() bool {
	switch n {
	case NotifyNone, NotifyComment, NotifyModmail:
		return true
	}
	return false
}

const (
	ReasonInvalidFlair   = "invalid change flair ID"
	ReasonInvalidRemoval = "invalid removal reason"
)

type Config struct {
	Kind            Kind           `json:"kind"`
	ReportReason    string         `json:"reportReason,omitempty"`
	FlairTemplateID string         `json:"flairTemplateId,omitempty"`
	RemovalReason   string         `json:"removalReason,omitempty"`
	NotifyVia       NotifyVia      `json:"notifyVia,omitempty"`
	Options         CommentOptions `json:"options"`
	ArchiveModmail  bool           `json:"archiveModmail,omitempty"`
}

type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFlaired  Outcome = "flaired"
	OutcomeRemoved  Outcome = "removed"
	OutcomeReported Outcome = "reported"
)

// Platform-visible steps of a removal, in order.
const (
	StepRemoved  = "removed"
	StepNoted    = "noted"
	StepNotified = "notified"
)

// Records completed removal steps, so a retried removal resumes after them instead of repeating them.
type Progress interface {
	Done(ctx context.Context, step string) (bool, error)
	Mark(ctx context.Context, step string) error
}

// What was done. Fallback is set when a flair or removal degraded to a report.
type Result struct {
	Outcome        Outcome
	Fallback       bool
	ReportReason   string
	CommentID      string
	ConversationID string
}

type Executor struct {
	Platform platform.Platform
	// name the bot acts as; used in report reasons and removal notes
	Identity string
	Logger   *slog.Logger
	// used to render removal comments; if nil, only post fields are available to templates
	Loader *format.Loader
	// optional; without it every step of a removal runs on each call
	Progress Progress
}

func (e *Executor) done(ctx context.Context, step string) (bool, error) {
	if e.Progress == nil {
		return false, nil
	}
	ok, err := e.Progress.Done(ctx, step)
	if err != nil {
		return false, fmt.Errorf("reading removal progress: %w", err)
	}
	return ok, nil
}

func (e *Executor) mark(ctx context.Context, step string) {
	if e.Progress == nil {
		return
	}
	if err := e.Progress.Mark(ctx, step); err != nil {
		e.logger().Warn("failed to record removal progress", "step", step, "err", err)
	}
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Performs the configured action against the post. Platform errors are returned as-is and are not retried.
func (e *Executor) Execute(ctx context.Context, post *platform.Post, cfg *Config) (*Result, error) {
	logger := e.logger().With("post", post.ID, "action", cfg.Kind)
	res := Result{}

	var reason string
	switch cfg.Kind {
	case Flair:
		ok, err := e.flair(ctx, post, cfg)
		if err != nil {
			return nil, err
		}
		if ok {
			res.Outcome = OutcomeFlaired
			return &res, nil
		}
		logger.Warn("flair template not found, reporting instead", "flairTemplate", cfg.FlairTemplateID)
		reason = ReasonInvalidFlair
		res.Fallback = true
	case Remove:
		ok, err := e.remove(ctx, post, cfg, &res)
		if err != nil {
			return nil, err
		}
		if ok {
			res.Outcome = OutcomeRemoved
			return &res, nil
		}
		logger.Warn("removal reason not found, reporting instead", "removalReason", cfg.RemovalReason)
		reason = ReasonInvalidRemoval
		res.Fallback = true
	case Report:
		reason = cfg.ReportReason
	default:
		res.Outcome = OutcomeSkipped
		return &res, nil
	}

	res.ReportReason = e.reportReason(reason)
	if err := e.Platform.Report(ctx, post.ID, res.ReportReason); err != nil {
		return nil, fmt.Errorf("reporting post: %w", err)
	}
	res.Outcome = OutcomeReported
	return &res, nil
}

func (e *Executor) reportReason(reason string) string {
	if reason == "" {
		return e.Identity
	}
	return e.Identity + ": " + reason
}

// returns false if the template does not exist
func (e *Executor) flair(ctx context.Context, post *platform.Post, cfg *Config) (bool, error) {
	templates, err := e.Platform.GetPostFlairTemplates(ctx, post.SubredditName)
	if err != nil {
		return false, fmt.Errorf("fetching flair templates: %w", err)
	}
	for _, tmpl := range templates {
		if tmpl.ID == cfg.FlairTemplateID {
			if err := e.Platform.SetPostFlair(ctx, post.SubredditName, post.ID, tmpl.ID); err != nil {
				return false, fmt.Errorf("setting post flair: %w", err)
			}
			return true, nil
		}
	}
	return false, nil
}

// returns false if a removal reason is configured but does not exist.
//
// Once the post is removed, failures of later steps which are retryable (note, initial notification) are returned and the next call resumes from the first unfinished step. Failures applying options to a notification which already exists are only logged.
func (e *Executor) remove(ctx context.Context, post *platform.Post, cfg *Config, res *Result) (bool, error) {
	removed, err := e.done(ctx, StepRemoved)
	if err != nil {
		return false, err
	}
	if cfg.RemovalReason == "" {
		if !removed {
			if err := e.removePost(ctx, post); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	reasons, err := e.Platform.GetRemovalReasons(ctx, post.SubredditName)
	if err != nil {
		return false, fmt.Errorf("fetching removal reasons: %w", err)
	}
	var reason *platform.RemovalReason
	for i := range reasons {
		if reasons[i].Title == cfg.RemovalReason {
			reason = &reasons[i]
			break
		}
	}
	if reason == nil {
		if removed {
			// deleted between attempts; the post is already gone, so there is nothing left to report
			e.logger().Warn("removal reason disappeared after removal", "post", post.ID, "removalReason", cfg.RemovalReason)
			return true, nil
		}
		return false, nil
	}

	if !removed {
		if err := e.removePost(ctx, post); err != nil {
			return false, err
		}
	}

	noted, err := e.done(ctx, StepNoted)
	if err != nil {
		return false, err
	}
	if !noted {
		if err := e.Platform.AddRemovalNote(ctx, post.ID, reason.ID, "automated removal by "+e.Identity); err != nil {
			return false, fmt.Errorf("adding removal note: %w", err)
		}
		e.mark(ctx, StepNoted)
	}

	notified, err := e.done(ctx, StepNotified)
	if err != nil {
		return false, err
	}
	if notified {
		return true, nil
	}
	switch cfg.NotifyVia {
	case NotifyComment:
		d := e.data(ctx, post)
		c, err := PostModComment(ctx, e.Platform, post.ID, format.Message(reason.Message, nil, &d), cfg.Options)
		if err != nil {
			if c == nil {
				return false, err
			}
			// the comment exists; retrying would post a second one
			e.logger().Warn("removal comment posted but moderation options failed", "post", post.ID, "comment", c.ID, "err", err)
		}
		res.CommentID = c.ID
	case NotifyModmail:
		d := e.data(ctx, post)
		subject, body := format.RemovalMail(&d, reason)
		convID, err := e.Platform.CreateModmail(ctx, platform.ModmailConversation{
			SubredditName: post.SubredditName,
			To:            post.AuthorName,
			Subject:       subject,
			Body:          body,
			AuthorHidden:  true,
		})
		if err != nil {
			return false, fmt.Errorf("sending removal modmail: %w", err)
		}
		res.ConversationID = convID
		if convID != "" && cfg.ArchiveModmail {
			if err := e.Platform.ArchiveModmail(ctx, convID); err != nil {
				e.logger().Warn("removal modmail sent but archiving failed", "post", post.ID, "conversation", convID, "err", err)
			}
		}
	}
	e.mark(ctx, StepNotified)
	return true, nil
}

func (e *Executor) removePost(ctx context.Context, post *platform.Post) error {
	if err := e.Platform.RemovePost(ctx, post.ID); err != nil {
		return fmt.Errorf("removing post: %w", err)
	}
	e.mark(ctx, StepRemoved)
	return nil
}

func (e *Executor) data(ctx context.Context, post *platform.Post) format.Data {
	if e.Loader == nil {
		return format.Data{Post: post}
	}
	return e.Loader.Load(ctx, post)
}
