package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisQueueKey string = "tasks/queue"
var redisTaskPrefix string = "tasks/data"

// the sorted set is scored by visibility time (unix millis). Claiming pushes the score forward by the lease, atomically.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
	redis.call('ZADD', KEYS[1], ARGV[3], id)
end
return ids
`)

// stores the body and schedules it in one step, so a body never exists without a schedule entry. Returns 0 if the task already exists.
var enqueueScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[1], 'NX', ARGV[3], ARGV[1])
return 1
`)

// Queue backed by a redis sorted set (schedule) and hash (task bodies).
type RedisQueue struct {
	Client *redis.Client
}

var _ Store = (*RedisQueue)(nil)

func NewRedisQueue(redisURL string) (*RedisQueue, error) {
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
	return &RedisQueue{
		Client: rdb,
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, kind Kind, payload any, runAt time.Time) (string, error) {
	t, err := NewTask(kind, payload, runAt)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	err = enqueueScript.Run(ctx, q.Client, []string{redisQueueKey, redisTaskPrefix}, t.ID, b, t.RunAt.UnixMilli()).Err()
	if err != nil {
		return "", fmt.Errorf("enqueueing task: %w", err)
	}
	return t.ID, nil
}

func (q *RedisQueue) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Task, error) {
	ids, err := claimScript.Run(ctx, q.Client, []string{redisQueueKey}, now.UnixMilli(), limit, now.Add(lease).UnixMilli()).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claiming tasks: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	bodies, err := q.Client.HMGet(ctx, redisTaskPrefix, ids...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(ids))
	for i, raw := range bodies {
		s, ok := raw.(string)
		if !ok {
			// body went missing; drop the orphaned schedule entry
			q.Client.ZRem(ctx, redisQueueKey, ids[i])
			continue
		}
		var t Task
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("decoding task %s: %w", ids[i], err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (q *RedisQueue) Complete(ctx context.Context, id string) error {
	multi := q.Client.TxPipeline()
	multi.ZRem(ctx, redisQueueKey, id)
	multi.HDel(ctx, redisTaskPrefix, id)
	_, err := multi.Exec(ctx)
	return err
}

func (q *RedisQueue) Retry(ctx context.Context, task *Task, runAt time.Time) error {
	next := *task
	next.Attempts++
	b, err := json.Marshal(next)
	if err != nil {
		return err
	}
	multi := q.Client.TxPipeline()
	multi.HSet(ctx, redisTaskPrefix, next.ID, b)
	multi.ZAdd(ctx, redisQueueKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: next.ID})
	_, err = multi.Exec(ctx)
	return err
}
