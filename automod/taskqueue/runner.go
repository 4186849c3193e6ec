package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modwarden/warden/internal/ticker"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"
)

type HandlerFunc func(ctx context.Context, task *Task) error

// Polls a Store for due tasks and executes them concurrently. Failed tasks are retried with exponential backoff, and dropped after MaxAttempts.
type Runner struct {
	Store   Store
	Handler HandlerFunc
	Logger  *slog.Logger
	Now     func() time.Time

	PollInterval time.Duration
	Parallelism  int
	// how long a claimed task stays hidden from other workers
	Lease       time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	sem      *semaphore.Weighted
	inflight *xsync.MapOf[string, time.Time]
}

func NewRunner(store Store, handler HandlerFunc, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		Store:        store,
		Handler:      handler,
		Logger:       logger.With("component", "task-runner"),
		Now:          time.Now,
		PollInterval: 5 * time.Second,
		Parallelism:  8,
		Lease:        5 * time.Minute,
		MaxAttempts:  6,
		BaseBackoff:  30 * time.Second,
		MaxBackoff:   time.Hour,
	}
	return r
}

func (r *Runner) init() {
	if r.sem == nil {
		r.sem = semaphore.NewWeighted(int64(max(r.Parallelism, 1)))
	}
	if r.inflight == nil {
		r.inflight = xsync.NewMapOf[string, time.Time]()
	}
}

// Polls until the context is cancelled, then waits for running tasks to finish.
func (r *Runner) Run(ctx context.Context) error {
	r.init()
	r.Logger.Info("starting task runner", "parallelism", r.Parallelism, "interval", r.PollInterval)
	err := ticker.Periodically(ctx, r.PollInterval, func(ctx context.Context) error {
		if _, _, err := r.dispatch(ctx); err != nil {
			r.Logger.Error("failed to dispatch tasks", "err", err)
		}
		return nil
	})

	// wait for in-flight tasks, which run with their own context
	n := int64(max(r.Parallelism, 1))
	if err := r.sem.Acquire(context.Background(), n); err == nil {
		r.sem.Release(n)
	}
	r.Logger.Info("task runner stopped")
	return err
}

// Claims and executes one batch of due tasks, waiting for all of them to finish. Returns the number of tasks executed.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	r.init()
	wg, n, err := r.dispatch(ctx)
	wg.Wait()
	return n, err
}

func (r *Runner) dispatch(ctx context.Context) (*sync.WaitGroup, int, error) {
	wg := &sync.WaitGroup{}
	slots := max(r.Parallelism, 1) - r.inflight.Size()
	if slots <= 0 {
		return wg, 0, nil
	}
	now := r.Now()
	tasks, err := r.Store.Claim(ctx, now, slots, r.Lease)
	if err != nil {
		return wg, 0, fmt.Errorf("claiming tasks: %w", err)
	}

	started := 0
	for i := range tasks {
		t := tasks[i]
		// a lease can expire while the task is still running here
		if _, loaded := r.inflight.LoadOrStore(t.ID, now); loaded {
			continue
		}
		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.inflight.Delete(t.ID)
			break
		}
		started++
		wg.Add(1)
		tasksInFlight.Inc()
		go func() {
			defer wg.Done()
			defer r.sem.Release(1)
			defer tasksInFlight.Dec()
			defer r.inflight.Delete(t.ID)
			// tasks outlive the poll loop's context, so a shutdown does not abort them midway
			r.execute(context.WithoutCancel(ctx), &t)
		}()
	}
	return wg, started, nil
}

func (r *Runner) execute(ctx context.Context, t *Task) {
	logger := r.Logger.With("task", t.ID, "kind", t.Kind, "attempt", t.Attempts+1)
	start := r.Now()
	taskLag.WithLabelValues(string(t.Kind)).Observe(start.Sub(t.RunAt).Seconds())

	err := r.call(ctx, t)
	taskRunDuration.WithLabelValues(string(t.Kind)).Observe(time.Since(start).Seconds())

	if err == nil {
		taskRunCount.WithLabelValues(string(t.Kind), "ok").Inc()
		if err := r.Store.Complete(ctx, t.ID); err != nil {
			logger.Error("failed to mark task complete", "err", err)
		}
		return
	}

	if t.Attempts+1 >= r.MaxAttempts {
		taskRunCount.WithLabelValues(string(t.Kind), "dropped").Inc()
		logger.Error("task failed permanently, dropping", "err", err)
		if err := r.Store.Complete(ctx, t.ID); err != nil {
			logger.Error("failed to drop task", "err", err)
		}
		return
	}

	taskRunCount.WithLabelValues(string(t.Kind), "retry").Inc()
	next := r.Now().Add(r.backoff(t.Attempts))
	logger.Warn("task failed, will retry", "err", err, "retryAt", next)
	if err := r.Store.Retry(ctx, t, next); err != nil {
		logger.Error("failed to reschedule task", "err", err)
	}
}

func (r *Runner) call(ctx context.Context, t *Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task handler panic: %v", rec)
		}
	}()
	return r.Handler(ctx, t)
}

func (r *Runner) backoff(attempts int) time.Duration {
	d := r.BaseBackoff
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= r.MaxBackoff {
			return r.MaxBackoff
		}
	}
	return d
}
