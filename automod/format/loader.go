package format

import (
	"context"
	"log/slog"

	"github.com/modwarden/warden/automod/cachestore"
	"github.com/modwarden/warden/automod/platform"
)

// Fetches the live values needed to render messages for a post. Failures are logged and leave the corresponding fields nil, so rendering never fails.
type Loader struct {
	Platform platform.Platform
	// optional; subreddit metadata is cached here when set
	Cache  cachestore.CacheStore
	Logger *slog.Logger
}

func (l *Loader) Load(ctx context.Context, post *platform.Post) Data {
	d := Data{Post: post}
	d.Subreddit = l.subreddit(ctx)
	if post.AuthorName != "" {
		flair, err := l.Platform.GetUserFlair(ctx, post.SubredditName, post.AuthorName)
		if err != nil {
			l.logger().Warn("failed to fetch author flair for message", "post", post.ID, "err", err)
		} else {
			d.AuthorFlair = flair
		}
	}
	return d
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *Loader) subreddit(ctx context.Context) *platform.Subreddit {
	logger := l.logger()
	if l.Cache != nil {
		var sub platform.Subreddit
		ok, err := cachestore.GetJSON(ctx, l.Cache, cachestore.CacheSubreddit, "current", &sub)
		if err != nil {
			logger.Warn("subreddit cache read failed", "err", err)
		} else if ok {
			return &sub
		}
	}

	sub, err := l.Platform.GetCurrentSubreddit(ctx)
	if err != nil {
		logger.Warn("failed to fetch subreddit for message", "err", err)
		return nil
	}
	if l.Cache != nil {
		if err := cachestore.SetJSON(ctx, l.Cache, cachestore.CacheSubreddit, "current", sub); err != nil {
			logger.Warn("subreddit cache write failed", "err", err)
		}
	}
	return sub
}
