package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

var redisCachePrefix string = "cache/"

// Redis-backed cache with a small local TinyLFU in front, so repeated reads within one process skip the network.
type RedisCacheStore struct {
	Data *cache.Cache
	TTL  time.Duration
}

var _ CacheStore = (*RedisCacheStore)(nil)

func NewRedisCacheStore(redisURL string, ttl time.Duration) (*RedisCacheStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if err := rdb.Ping(context.TODO()).Err(); err != nil {
		return nil, err
	}
	// local entries live at most a minute so purges from other replicas are picked up quickly
	localTTL := min(ttl, time.Minute)
	return &RedisCacheStore{
		Data: cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(1_000, localTTL),
		}),
		TTL: ttl,
	}, nil
}

func (s *RedisCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	var val string
	err := s.Data.Get(ctx, redisCachePrefix+name+"/"+key, &val)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, name, key string, val string) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisCachePrefix + name + "/" + key,
		Value: val,
		TTL:   s.TTL,
	})
}

func (s *RedisCacheStore) Purge(ctx context.Context, name, key string) error {
	err := s.Data.Delete(ctx, redisCachePrefix+name+"/"+key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
