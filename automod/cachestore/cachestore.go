package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
)

// cache names used by the engine
const (
	CacheSubreddit      = "subreddit"
	CacheFlairTemplates = "flair-templates"
)

type CacheStore interface {
	// returns empty string on miss
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

// GetJSON decodes a cached value into v. Returns false on a miss, or if the cached value does not decode (the entry is purged in that case).
func GetJSON(ctx context.Context, cs CacheStore, name, key string, v any) (bool, error) {
	raw, err := cs.Get(ctx, name, key)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, cs.Purge(ctx, name, key)
	}
	return true, nil
}

func SetJSON(ctx context.Context, cs CacheStore, name, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache value %s/%s: %w", name, key, err)
	}
	return cs.Set(ctx, name, key, string(b))
}
