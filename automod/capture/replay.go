package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/modwarden/warden/automod/comments"
	"github.com/modwarden/warden/automod/engine"
	"github.com/modwarden/warden/automod/platform"
	"github.com/modwarden/warden/automod/settings"
)

// What the engine would do with a captured post, step by step, if nothing changed after capture.
type Evaluation struct {
	PostID string `json:"postId"`
	// id of the first qualifying comment in the captured tree, if there is one
	QualifyingComment string                         `json:"qualifyingComment,omitempty"`
	Result            *engine.PostResult             `json:"result"`
	PostedComments    []platform.Comment             `json:"postedComments,omitempty"`
	Reports           []platform.Report              `json:"reports,omitempty"`
	Removed           bool                           `json:"removed"`
	FlairChanges      []string                       `json:"flairChanges,omitempty"`
	Modmails          []platform.ModmailConversation `json:"modmails,omitempty"`
	RemovedComments   []string                       `json:"removedComments,omitempty"`
}

// Replays a capture against an in-memory engine, running every scheduled task, and reports the observable effects.
func Evaluate(ctx context.Context, pc *PostCapture, identity string, logger *slog.Logger) (*Evaluation, error) {
	f := engine.EngineTestFixture()
	if logger != nil {
		f.Engine.Logger = logger
	}
	if identity != "" {
		f.Engine.Identity = identity
		f.Platform.BotName = identity
	}
	f.Platform.Subreddit = pc.Subreddit
	f.Platform.FlairTemplates = pc.FlairTemplates
	f.Platform.RemovalReasons = pc.RemovalReasons
	f.Platform.InsertPost(pc.Post)
	for _, c := range pc.Comments {
		f.Platform.InsertComment(c)
	}
	if pc.AuthorFlair != nil && pc.Post.AuthorName != "" {
		f.Platform.UserFlairs[pc.Post.AuthorName] = *pc.AuthorFlair
	}
	if err := settings.Import(ctx, f.Settings, pc.Settings); err != nil {
		return nil, fmt.Errorf("capture settings: %w", err)
	}

	cfg, err := settings.Parse(pc.Settings)
	if err != nil {
		return nil, err
	}
	ev := Evaluation{PostID: pc.Post.ID}
	tree := comments.NewTree(pc.Post.ID, pc.Post.AuthorID, pc.Comments)
	if c := tree.Find(&cfg.Comments, cfg.CommentIgnore, f.Engine.Identity); c != nil {
		ev.QualifyingComment = c.ID
	}

	res, err := f.Engine.ProcessPostCreate(ctx, engine.PostCreateEvent{PostID: pc.Post.ID, AuthorFlair: pc.AuthorFlair})
	if err != nil {
		return nil, err
	}
	ev.Result = res

	// step the clock to each due time in turn, since running tasks can schedule more
	for i := 0; i < 10; i++ {
		pending := f.Queue.Pending()
		if len(pending) == 0 {
			break
		}
		sort.Slice(pending, func(a, b int) bool { return pending[a].RunAt.Before(pending[b].RunAt) })
		if d := pending[0].RunAt.Sub(f.Clock.Now()); d > 0 {
			f.Clock.Advance(d)
		}
		if _, err := f.RunDue(ctx); err != nil {
			return nil, err
		}
	}

	for _, c := range f.Platform.Comments {
		if c.AuthorName == f.Platform.BotName && c.PostID == pc.Post.ID {
			ev.PostedComments = append(ev.PostedComments, c)
		}
	}
	sort.Slice(ev.PostedComments, func(a, b int) bool { return ev.PostedComments[a].ID < ev.PostedComments[b].ID })
	ev.Reports = f.Platform.Reports
	ev.Removed = len(f.Platform.RemovedPosts) > 0
	ev.FlairChanges = f.Platform.FlairChanges
	ev.Modmails = f.Platform.Modmails
	ev.RemovedComments = f.Platform.RemovedComment
	return &ev, nil
}
