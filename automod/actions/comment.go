package actions

import (
	"context"
	"fmt"

	"github.com/modwarden/warden/automod/platform"
)

// Moderator options applied to a bot comment after posting. Sticky implies distinguish and takes precedence.
type CommentOptions struct {
	Distinguish bool `json:"distinguish,omitempty"`
	Sticky      bool `json:"sticky,omitempty"`
}

// Posts a moderator comment on the post, locks it, then distinguishes (or stickies) it per the options.
func PostModComment(ctx context.Context, p platform.Platform, postID, text string, opts CommentOptions) (*platform.Comment, error) {
	c, err := p.AddComment(ctx, postID, text)
	if err != nil {
		return nil, fmt.Errorf("posting comment: %w", err)
	}
	if err := p.LockComment(ctx, c.ID); err != nil {
		return c, fmt.Errorf("locking comment %s: %w", c.ID, err)
	}
	if opts.Sticky {
		err = p.DistinguishComment(ctx, c.ID, true)
	} else if opts.Distinguish {
		err = p.DistinguishComment(ctx, c.ID, false)
	}
	if err != nil {
		return c, fmt.Errorf("distinguishing comment %s: %w", c.ID, err)
	}
	return c, nil
}
