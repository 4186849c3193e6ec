package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/modwarden/warden/automod/cachestore"
	"github.com/modwarden/warden/automod/countstore"
	"github.com/modwarden/warden/automod/flagstore"
	"github.com/modwarden/warden/automod/platform"
	"github.com/modwarden/warden/automod/settings"
	"github.com/modwarden/warden/automod/taskqueue"
)

// Manually advanced clock, shared by the engine and the task runner of a TestFixture.
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// An engine wired entirely to in-memory backends. Intentionally exported, for use in other packages and in offline replay.
type TestFixture struct {
	Engine   *Engine
	Platform *platform.MockPlatform
	Queue    *taskqueue.MemQueue
	Settings *settings.MemStore
	Flags    *flagstore.MemFlagStore
	Counters *countstore.MemCountStore
	Clock    *TestClock
	Runner   *taskqueue.Runner
}

func EngineTestFixture() *TestFixture {
	mp := platform.NewMockPlatform("gardening")
	mp.FlairTemplates = []platform.FlairTemplate{
		{ID: "flair-needs-source", Text: "Needs Source"},
	}
	mp.RemovalReasons = []platform.RemovalReason{
		{ID: "reason-1", Title: "No source", Message: "Please include a link to the source."},
	}
	clock := &TestClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	counters := countstore.NewMemCountStore()
	counters.Now = clock.Now
	f := &TestFixture{
		Platform: &mp,
		Queue:    taskqueue.NewMemQueue(),
		Settings: settings.NewMemStore(),
		Flags:    flagstore.NewMemFlagStore(),
		Counters: counters,
		Clock:    clock,
	}
	f.Engine = &Engine{
		Logger:   slog.Default(),
		Platform: f.Platform,
		Queue:    f.Queue,
		Settings: f.Settings,
		Flags:    f.Flags,
		Counters: f.Counters,
		Cache:    cachestore.NewMemCacheStore(10, time.Hour),
		Identity: mp.BotName,
		Now:      clock.Now,
	}
	f.Runner = taskqueue.NewRunner(f.Queue, f.Engine.HandleTask, slog.Default())
	f.Runner.Now = clock.Now
	return f
}

// Applies and validates each setting. Panics on invalid values, since fixtures are static.
func (f *TestFixture) MustSet(vals settings.Values) {
	if err := settings.Import(context.Background(), f.Settings, vals); err != nil {
		panic(err)
	}
}

// Runs every task that is due at the current fixture time.
func (f *TestFixture) RunDue(ctx context.Context) (int, error) {
	return f.Runner.RunOnce(ctx)
}
