package taskqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testPayload struct {
	PostID string `json:"postId"`
}

func TestNewTask(t *testing.T) {
	assert := assert.New(t)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t1, err := NewTask(KindReminder, testPayload{PostID: "t3_a"}, at)
	assert.NoError(err)
	t2, err := NewTask(KindReminder, testPayload{PostID: "t3_a"}, at.In(time.FixedZone("X", 3600)))
	assert.NoError(err)
	t3, err := NewTask(KindAction, testPayload{PostID: "t3_a"}, at)
	assert.NoError(err)
	t4, err := NewTask(KindReminder, testPayload{PostID: "t3_a"}, at.Add(time.Minute))
	assert.NoError(err)

	assert.Equal(t1.ID, t2.ID)
	assert.NotEqual(t1.ID, t3.ID)
	assert.NotEqual(t1.ID, t4.ID)
	assert.Equal(16, len(t1.ID))

	var p testPayload
	assert.NoError(t1.Decode(&p))
	assert.Equal("t3_a", p.PostID)
}

func testQueueBasics(t *testing.T, q Store) {
	assert := assert.New(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	id1, err := q.Enqueue(ctx, KindReminder, testPayload{PostID: "t3_a"}, base.Add(5*time.Minute))
	assert.NoError(err)
	again, err := q.Enqueue(ctx, KindReminder, testPayload{PostID: "t3_a"}, base.Add(5*time.Minute))
	assert.NoError(err)
	assert.Equal(id1, again)
	id2, err := q.Enqueue(ctx, KindAction, testPayload{PostID: "t3_a"}, base.Add(10*time.Minute))
	assert.NoError(err)

	// nothing due yet
	tasks, err := q.Claim(ctx, base, 10, time.Minute)
	assert.NoError(err)
	assert.Empty(tasks)

	tasks, err = q.Claim(ctx, base.Add(5*time.Minute), 10, time.Minute)
	assert.NoError(err)
	assert.Equal(1, len(tasks))
	assert.Equal(id1, tasks[0].ID)
	assert.Equal(KindReminder, tasks[0].Kind)

	// leased, so not claimable again until the lease runs out
	tasks, err = q.Claim(ctx, base.Add(5*time.Minute+30*time.Second), 10, time.Minute)
	assert.NoError(err)
	assert.Empty(tasks)

	tasks, err = q.Claim(ctx, base.Add(10*time.Minute), 10, time.Minute)
	assert.NoError(err)
	assert.Equal(2, len(tasks))
	assert.Equal(id1, tasks[0].ID)
	assert.Equal(id2, tasks[1].ID)

	assert.NoError(q.Complete(ctx, id1))
	assert.NoError(q.Complete(ctx, id1))
	assert.NoError(q.Retry(ctx, &tasks[1], base.Add(20*time.Minute)))

	tasks, err = q.Claim(ctx, base.Add(15*time.Minute), 10, time.Minute)
	assert.NoError(err)
	assert.Empty(tasks)

	tasks, err = q.Claim(ctx, base.Add(20*time.Minute), 10, time.Minute)
	assert.NoError(err)
	assert.Equal(1, len(tasks))
	assert.Equal(id2, tasks[0].ID)
	assert.Equal(1, tasks[0].Attempts)
	assert.NoError(q.Complete(ctx, id2))
}

func TestMemQueue(t *testing.T) {
	testQueueBasics(t, NewMemQueue())
}

func TestGormQueue(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	// every connection to ":memory:" is a separate database
	sqldb, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqldb.SetMaxOpenConns(1)
	q, err := NewGormQueue(db)
	if err != nil {
		t.Fatal(err)
	}
	testQueueBasics(t, q)
}

func TestRedisQueue(t *testing.T) {
	t.Skip("live test, need redis running locally")

	q, err := NewRedisQueue("redis://localhost:6379/0")
	if err != nil {
		t.Fatal(err)
	}
	q.Client.Del(context.Background(), redisQueueKey, redisTaskPrefix)
	testQueueBasics(t, q)
}

func TestRedisQueueEnqueueDuplicate(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	q, err := NewRedisQueue("redis://localhost:6379/0")
	if err != nil {
		t.Fatal(err)
	}
	q.Client.Del(ctx, redisQueueKey, redisTaskPrefix)

	runAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	id1, err := q.Enqueue(ctx, KindAction, testPayload{PostID: "t3_a"}, runAt)
	assert.NoError(err)
	id2, err := q.Enqueue(ctx, KindAction, testPayload{PostID: "t3_a"}, runAt)
	assert.NoError(err)
	assert.Equal(id1, id2)

	// every stored body has exactly one schedule entry
	assert.Equal(int64(1), q.Client.HLen(ctx, redisTaskPrefix).Val())
	assert.Equal(int64(1), q.Client.ZCard(ctx, redisQueueKey).Val())
	score, err := q.Client.ZScore(ctx, redisQueueKey, id1).Result()
	assert.NoError(err)
	assert.Equal(float64(runAt.UnixMilli()), score)
}

func TestRunnerRestart(t *testing.T) {
	assert := assert.New(t)

	q := NewMemQueue()
	var calls atomic.Int32
	r := NewRunner(q, func(ctx context.Context, task *Task) error {
		calls.Add(1)
		return nil
	}, nil)
	r.PollInterval = 10 * time.Millisecond

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		errc := make(chan error, 1)
		go func() { errc <- r.Run(ctx) }()
		select {
		case err := <-errc:
			assert.ErrorIs(err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("runner did not stop")
		}
	}

	// still usable after Run has returned
	_, err := q.Enqueue(context.Background(), KindAction, testPayload{PostID: "t3_a"}, time.Now().Add(-time.Second))
	assert.NoError(err)
	n, err := r.RunOnce(context.Background())
	assert.NoError(err)
	assert.Equal(1, n)
	assert.Equal(int32(1), calls.Load())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRunner(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := NewMemQueue()

	var calls atomic.Int32
	boom := errors.New("platform unavailable")
	handler := func(ctx context.Context, task *Task) error {
		calls.Add(1)
		var p testPayload
		if err := task.Decode(&p); err != nil {
			return err
		}
		switch p.PostID {
		case "t3_flaky":
			if task.Attempts < 2 {
				return boom
			}
		case "t3_broken":
			return boom
		case "t3_panic":
			panic("oops")
		}
		return nil
	}

	r := NewRunner(q, handler, nil)
	r.Now = clock.Now
	r.MaxAttempts = 3
	r.BaseBackoff = time.Minute

	for _, id := range []string{"t3_ok", "t3_flaky", "t3_broken", "t3_panic"} {
		_, err := q.Enqueue(ctx, KindAction, testPayload{PostID: id}, clock.Now())
		assert.NoError(err)
	}
	_, err := q.Enqueue(ctx, KindAction, testPayload{PostID: "t3_later"}, clock.Now().Add(time.Hour))
	assert.NoError(err)

	n, err := r.RunOnce(ctx)
	assert.NoError(err)
	assert.Equal(4, n)
	// ok is done; flaky, broken, panic retry after 1m; later is untouched
	assert.Equal(4, len(q.Pending()))

	// first retry is after BaseBackoff
	clock.Advance(59 * time.Second)
	n, err = r.RunOnce(ctx)
	assert.NoError(err)
	assert.Equal(0, n)

	clock.Advance(time.Second)
	n, err = r.RunOnce(ctx)
	assert.NoError(err)
	assert.Equal(3, n)

	// second retry is after 2*BaseBackoff; this is the last attempt
	clock.Advance(2 * time.Minute)
	n, err = r.RunOnce(ctx)
	assert.NoError(err)
	assert.Equal(3, n)

	pending := q.Pending()
	assert.Equal(1, len(pending))
	var p testPayload
	assert.NoError(pending[0].Decode(&p))
	assert.Equal("t3_later", p.PostID)
	assert.Equal(int32(10), calls.Load())
}

func TestRunnerBackoff(t *testing.T) {
	assert := assert.New(t)

	r := NewRunner(NewMemQueue(), nil, nil)
	r.BaseBackoff = time.Minute
	r.MaxBackoff = 10 * time.Minute

	assert.Equal(time.Minute, r.backoff(0))
	assert.Equal(2*time.Minute, r.backoff(1))
	assert.Equal(8*time.Minute, r.backoff(3))
	assert.Equal(10*time.Minute, r.backoff(4))
	assert.Equal(10*time.Minute, r.backoff(40))
}

func TestRunnerRun(t *testing.T) {
	assert := assert.New(t)

	q := NewMemQueue()
	done := make(chan struct{})
	r := NewRunner(q, func(ctx context.Context, task *Task) error {
		close(done)
		return nil
	}, nil)
	r.PollInterval = 10 * time.Millisecond

	_, err := q.Enqueue(context.Background(), KindReminder, testPayload{PostID: "t3_a"}, time.Now().Add(-time.Second))
	assert.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task was never run")
	}
	cancel()
	assert.ErrorIs(<-errc, context.Canceled)
	assert.Eventually(func() bool { return len(q.Pending()) == 0 }, time.Second, 10*time.Millisecond)
}
