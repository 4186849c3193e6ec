package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/modwarden/warden/automod/platform"
	"github.com/modwarden/warden/automod/settings"
)

// Everything needed to re-evaluate a post offline: the post, its reply tree, the subreddit's templates, and the settings in effect.
type PostCapture struct {
	CapturedAt     time.Time                `json:"capturedAt"`
	Subreddit      platform.Subreddit       `json:"subreddit"`
	Post           platform.Post            `json:"post"`
	AuthorFlair    *platform.UserFlair      `json:"authorFlair,omitempty"`
	Comments       []platform.Comment       `json:"comments"`
	FlairTemplates []platform.FlairTemplate `json:"flairTemplates,omitempty"`
	RemovalReasons []platform.RemovalReason `json:"removalReasons,omitempty"`
	Settings       settings.Values          `json:"settings"`
}

func CapturePost(ctx context.Context, p platform.Platform, store settings.Store, postID string) (*PostCapture, error) {
	post, err := p.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("fetching post: %w", err)
	}
	sub, err := p.GetCurrentSubreddit(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching subreddit: %w", err)
	}
	list, err := p.GetCommentTree(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("fetching comments: %w", err)
	}
	pc := PostCapture{
		CapturedAt: time.Now().UTC(),
		Subreddit:  *sub,
		Post:       *post,
		Comments:   list,
	}
	if post.AuthorName != "" {
		pc.AuthorFlair, err = p.GetUserFlair(ctx, post.SubredditName, post.AuthorName)
		if err != nil {
			return nil, fmt.Errorf("fetching author flair: %w", err)
		}
	}
	if pc.FlairTemplates, err = p.GetPostFlairTemplates(ctx, post.SubredditName); err != nil {
		return nil, fmt.Errorf("fetching flair templates: %w", err)
	}
	if pc.RemovalReasons, err = p.GetRemovalReasons(ctx, post.SubredditName); err != nil {
		return nil, fmt.Errorf("fetching removal reasons: %w", err)
	}
	if pc.Settings, err = store.Get(ctx); err != nil {
		return nil, fmt.Errorf("fetching settings: %w", err)
	}
	return &pc, nil
}

func LoadCapture(r io.Reader) (*PostCapture, error) {
	var pc PostCapture
	if err := json.NewDecoder(r).Decode(&pc); err != nil {
		return nil, fmt.Errorf("decoding capture: %w", err)
	}
	if pc.Post.ID == "" {
		return nil, fmt.Errorf("capture has no post")
	}
	return &pc, nil
}

func MustLoadCapture(capPath string) *PostCapture {
	f, err := os.Open(capPath)
	if err != nil {
		panic(err)
	}
	defer func() { _ = f.Close() }()

	pc, err := LoadCapture(f)
	if err != nil {
		panic(err)
	}
	return pc
}
