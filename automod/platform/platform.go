// Interface and types for the community platform which hosts posts, comments, flair, and moderator tooling.
//
// The engine only talks to the platform through this interface. Implementations include an in-memory mock (for tests and offline replay) and an HTTP bridge client.
package platform

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("platform object not found")

// Why (and by whom) a post was removed. The empty value means the post is live.
type RemovalCategory string

const (
	RemovedNone      RemovalCategory = ""
	RemovedAuthor    RemovalCategory = "author"
	RemovedModerator RemovalCategory = "moderator"
	RemovedPlatform  RemovalCategory = "platform"
	RemovedFiltered  RemovalCategory = "filtered"
)

type Post struct {
	ID              string          `json:"id"`
	SubredditName   string          `json:"subredditName"`
	Title           string          `json:"title"`
	Body            string          `json:"body,omitempty"`
	URL             string          `json:"url,omitempty"`
	Permalink       string          `json:"permalink,omitempty"`
	AuthorID        string          `json:"authorId,omitempty"`
	AuthorName      string          `json:"authorName,omitempty"`
	FlairText       string          `json:"flairText,omitempty"`
	FlairTemplateID string          `json:"flairTemplateId,omitempty"`
	RemovedBy       RemovalCategory `json:"removedBy,omitempty"`
}

type Comment struct {
	ID         string `json:"id"`
	PostID     string `json:"postId"`
	ParentID   string `json:"parentId"`
	AuthorID   string `json:"authorId,omitempty"`
	AuthorName string `json:"authorName,omitempty"`
	Body       string `json:"body"`
	Removed    bool   `json:"removed,omitempty"`
	Spam       bool   `json:"spam,omitempty"`
	// set when the comment is being held by an automatic filter
	FilteredAt *time.Time `json:"filteredAt,omitempty"`
	Locked     bool       `json:"locked,omitempty"`
	// "moderator" when distinguished
	Distinguished string `json:"distinguished,omitempty"`
	Stickied      bool   `json:"stickied,omitempty"`
}

// Removed, marked as spam, or held by a filter.
func (c *Comment) IsGone() bool {
	return c.Removed || c.Spam || c.FilteredAt != nil
}

type UserFlair struct {
	Text       string `json:"text,omitempty"`
	CSSClass   string `json:"cssClass,omitempty"`
	TemplateID string `json:"templateId,omitempty"`
}

type FlairTemplate struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type RemovalReason struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type Subreddit struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type ModmailConversation struct {
	SubredditName string `json:"subredditName"`
	To            string `json:"to"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	// hides the sending moderator's identity from the recipient
	AuthorHidden bool `json:"isAuthorHidden"`
}

// Everything the engine needs from the platform. All calls are blocking request/response; implementations must not retry mutations.
type Platform interface {
	GetPost(ctx context.Context, id string) (*Post, error)
	GetComment(ctx context.Context, id string) (*Comment, error)
	// Flat list of every comment under the post, at any depth. Parent/child relationships are given by ParentID.
	GetCommentTree(ctx context.Context, postID string) ([]Comment, error)
	GetPostFlairTemplates(ctx context.Context, subreddit string) ([]FlairTemplate, error)
	GetRemovalReasons(ctx context.Context, subreddit string) ([]RemovalReason, error)
	// Returns nil (and no error) if the user has no flair in the subreddit.
	GetUserFlair(ctx context.Context, subreddit, username string) (*UserFlair, error)
	GetCurrentSubreddit(ctx context.Context) (*Subreddit, error)

	SetPostFlair(ctx context.Context, subreddit, postID, templateID string) error
	RemovePost(ctx context.Context, id string) error
	RemoveComment(ctx context.Context, id string) error
	AddComment(ctx context.Context, parentID, text string) (*Comment, error)
	LockComment(ctx context.Context, id string) error
	DistinguishComment(ctx context.Context, id string, sticky bool) error
	AddRemovalNote(ctx context.Context, id, reasonID, note string) error
	Report(ctx context.Context, id, reason string) error
	// Returns the conversation ID.
	CreateModmail(ctx context.Context, conv ModmailConversation) (string, error)
	ArchiveModmail(ctx context.Context, id string) error
}
