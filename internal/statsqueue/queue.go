package statsqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/analytics"
	"vigil/internal/clock"
	"vigil/internal/permanent"
	"vigil/internal/state"
)

// ErrQueueFull indicates the recompute buffer rejected a task.
var ErrQueueFull = errors.New("stats queue full")

// ErrQueueClosed indicates the queue no longer accepts tasks.
var ErrQueueClosed = errors.New("stats queue closed")

// Task requests one trailing-window recomputation for a monitor.
// Params: monitor id and enqueue time.
// Returns: queue unit consumed by recompute workers.
type Task struct {
	MonitorID  string
	EnqueuedAt time.Time
}

// Producer enqueues recompute tasks without blocking the caller.
// Params: recompute task.
// Returns: ErrQueueFull when the buffer is saturated.
type Producer interface {
	Enqueue(task Task) error
}

// Options tunes queue capacity, worker pool, and retry policy.
// Params: sizing and retry knobs; zero values fall back to defaults.
// Returns: queue construction settings.
type Options struct {
	Capacity    int
	Workers     int
	Window      time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// Queue decouples duration-stat recomputation from the ping write path.
// Params: bounded task buffer, stores, and retry policy.
// Returns: async recompute pipeline whose failures never reach ping senders.
type Queue struct {
	tasks   chan Task
	pings   state.PingStore
	stats   state.StatStore
	clock   clock.Clock
	logger  *slog.Logger
	options Options

	mu     sync.Mutex
	closed bool
}

// New creates stats recompute queue.
// Params: ping/stat stores, clock, logger, and options.
// Returns: initialized queue; Run must be called to start workers.
func New(pings state.PingStore, stats state.StatStore, clk clock.Clock, logger *slog.Logger, options Options) *Queue {
	if options.Capacity <= 0 {
		options.Capacity = 1024
	}
	if options.Workers <= 0 {
		options.Workers = 2
	}
	if options.Window <= 0 {
		options.Window = 7 * 24 * time.Hour
	}
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = 3
	}
	if options.Backoff <= 0 {
		options.Backoff = 250 * time.Millisecond
	}
	return &Queue{
		tasks:   make(chan Task, options.Capacity),
		pings:   pings,
		stats:   stats,
		clock:   clk,
		logger:  logger,
		options: options,
	}
}

// Enqueue submits one recompute task without blocking.
// Params: recompute task.
// Returns: ErrQueueClosed after Close, ErrQueueFull when the buffer is
// saturated.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run processes tasks with the configured worker pool until ctx is done.
// Params: lifecycle context.
// Returns: after ctx cancellation once workers drain.
func (q *Queue) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < q.options.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx)
		}()
	}
	wg.Wait()
}

// Close stops accepting tasks; workers still running drain the buffer,
// workers already stopped by context cancellation leave it behind.
// Params: none.
// Returns: channel closed exactly once; safe to call repeatedly.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}

func (q *Queue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			if err := q.processWithRetry(ctx, task); err != nil {
				q.logger.Error("stats recompute failed",
					"monitor", task.MonitorID, "error", err.Error())
			}
		}
	}
}

// processWithRetry recomputes with bounded retries and backoff.
// Params: context and recompute task.
// Returns: final error after exhausted attempts or permanent failure.
func (q *Queue) processWithRetry(ctx context.Context, task Task) error {
	var lastErr error
	for attempt := 1; attempt <= q.options.MaxAttempts; attempt++ {
		lastErr = q.process(ctx, task)
		if lastErr == nil {
			return nil
		}
		if permanent.Is(lastErr) {
			return lastErr
		}
		q.logger.Warn("stats recompute attempt failed",
			"monitor", task.MonitorID, "attempt", attempt, "error", lastErr.Error())
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(q.options.Backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}

// process recomputes one trailing-window aggregate from raw samples.
// Params: context and recompute task.
// Returns: store read/write error.
func (q *Queue) process(ctx context.Context, task Task) error {
	now := q.clock.Now()
	windowStart := now.Add(-q.options.Window)

	samples, err := q.pings.DurationsSince(ctx, task.MonitorID, windowStart)
	if err != nil {
		return err
	}

	stat := analytics.Compute(samples, windowStart, now)
	stat.MonitorID = task.MonitorID
	return q.stats.UpsertWindowStat(ctx, stat)
}
