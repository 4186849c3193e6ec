package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var redisSettingsPrefix string = "settings/"

// Stores all settings for a namespace (eg, one subreddit) in a single redis hash, with JSON-encoded values.
type RedisStore struct {
	Client    *redis.Client
	Namespace string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(redisURL, namespace string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisStore{
		Client:    rdb,
		Namespace: namespace,
	}, nil
}

func (s *RedisStore) key() string {
	return redisSettingsPrefix + s.Namespace
}

func (s *RedisStore) Get(ctx context.Context) (Values, error) {
	fields, err := s.Client.HGetAll(ctx, s.key()).Result()
	if err != nil {
		return nil, err
	}
	raw := make(Values, len(fields))
	for k, enc := range fields {
		var v any
		if err := json.Unmarshal([]byte(enc), &v); err != nil {
			return nil, fmt.Errorf("decoding setting %s: %w", k, err)
		}
		raw[k] = v
	}
	return normalizeStored(raw)
}

func (s *RedisStore) Set(ctx context.Context, key string, raw any) error {
	v, err := Normalize(key, raw)
	if err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Client.HSet(ctx, s.key(), key, string(b)).Err()
}
