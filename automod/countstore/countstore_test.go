package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemCountStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	c, err := cs.GetCount(ctx, CounterRemovals, "gardening", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, CounterRemovals, "gardening"))
	assert.NoError(cs.Increment(ctx, CounterRemovals, "gardening"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCount(ctx, CounterRemovals, "gardening", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	assert.NoError(cs.IncrementDistinct(ctx, DistinctAuthorsActed, "gardening", "alice"))
	assert.NoError(cs.IncrementDistinct(ctx, DistinctAuthorsActed, "gardening", "alice"))
	assert.NoError(cs.IncrementDistinct(ctx, DistinctAuthorsActed, "gardening", "bob"))
	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCountDistinct(ctx, DistinctAuthorsActed, "gardening", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}
}

func TestMemCountStorePeriods(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	cs := NewMemCountStore()
	cs.Now = func() time.Time { return now }

	assert.NoError(cs.Increment(ctx, CounterActions, "gardening"))
	now = now.Add(time.Hour)
	assert.NoError(cs.Increment(ctx, CounterActions, "gardening"))

	c, err := cs.GetCount(ctx, CounterActions, "gardening", PeriodDay)
	assert.NoError(err)
	assert.Equal(1, c)
	c, err = cs.GetCount(ctx, CounterActions, "gardening", PeriodHour)
	assert.NoError(err)
	assert.Equal(1, c)
	c, err = cs.GetCount(ctx, CounterActions, "gardening", PeriodTotal)
	assert.NoError(err)
	assert.Equal(2, c)
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	// run with -race
	var wg sync.WaitGroup
	fnInc := func(name, val string, times int) {
		defer wg.Done()
		for i := 0; i < times; i++ {
			assert.NoError(cs.Increment(ctx, name, val))
			assert.NoError(cs.IncrementDistinct(ctx, name, name, val))
			_, err := cs.GetCount(ctx, name, val, PeriodTotal)
			assert.NoError(err)
			time.Sleep(time.Nanosecond)
		}
	}
	wg.Add(4)
	go fnInc("test1", "val1", 10)
	go fnInc("test1", "val1", 10)
	go fnInc("test2", "val2", 6)
	go fnInc("test2", "val2", 6)
	wg.Wait()

	c, err := cs.GetCount(ctx, "test1", "val1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(20, c)
	c, err = cs.GetCount(ctx, "test2", "val2", PeriodTotal)
	assert.NoError(err)
	assert.Equal(12, c)
	c, err = cs.GetCountDistinct(ctx, "test1", "test1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
}

func TestRedisCountStoreBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	cs, err := NewRedisCountStore("redis://localhost:6379/0")
	if err != nil {
		t.Fatal(err)
	}
	cs.Client.Del(ctx, redisCountPrefix+periodBucket(time.Now(), "test", "one", PeriodTotal))
	assert.NoError(cs.Increment(ctx, "test", "one"))
	c, err := cs.GetCount(ctx, "test", "one", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
}
