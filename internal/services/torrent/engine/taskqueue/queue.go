// Package taskqueue serialises work onto the engine goroutine. Any goroutine
// may submit; only the engine goroutine drains.
package taskqueue

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
	"piecestream/internal/metrics"
)

type entry struct {
	name      string
	task      ports.EngineTask
	submitted time.Time
}

type Queue struct {
	mu            sync.Mutex
	tasks         []entry
	closed        bool
	wake          chan struct{}
	logger        *slog.Logger
	slowThreshold time.Duration
	now           func() time.Time
}

type Option func(*Queue)

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithSlowTaskThreshold logs tasks that keep the engine goroutine busy for
// longer than d. Zero disables the check.
func WithSlowTaskThreshold(d time.Duration) Option {
	return func(q *Queue) {
		q.slowThreshold = d
	}
}

func New(opts ...Option) *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	return q
}

// Submit appends a task in FIFO order and wakes the engine goroutine. It
// never blocks. Tasks submitted after Close are dropped.
func (q *Queue) Submit(name string, task ports.EngineTask) bool {
	if task == nil {
		return false
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		metrics.EngineTasksTotal.WithLabelValues("dropped").Inc()
		q.logger.Debug("engine task dropped after close", slog.String("task", name))
		return false
	}
	q.tasks = append(q.tasks, entry{name: name, task: task, submitted: q.now()})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Wake fires after a Submit. The engine loop selects on it.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// DrainAndRun runs every task queued at call time on the calling goroutine.
// Tasks submitted while draining wait for the next call. Returns the number
// of tasks run.
func (q *Queue) DrainAndRun(h ports.EngineHandle) int {
	q.mu.Lock()
	batch := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	metrics.EngineQueueDepth.Set(float64(len(batch)))
	for _, e := range batch {
		q.run(h, e)
	}
	return len(batch)
}

// Close rejects further submissions. Tasks already queued stay runnable so
// the engine can drain them on shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *Queue) run(h ports.EngineHandle, e entry) {
	start := q.now()
	err := safeRun(h, e)
	elapsed := q.now().Sub(start)
	metrics.EngineTaskDuration.Observe(elapsed.Seconds())

	if err != nil {
		q.logger.Error("engine task failed",
			slog.String("task", e.name),
			slog.String("error", err.Error()),
		)
	} else {
		metrics.EngineTasksTotal.WithLabelValues("ok").Inc()
	}

	if q.slowThreshold > 0 && elapsed > q.slowThreshold {
		q.logger.Warn("slow engine task",
			slog.String("task", e.name),
			slog.Int64("durationMs", elapsed.Milliseconds()),
			slog.Int64("queuedMs", start.Sub(e.submitted).Milliseconds()),
		)
	}
}

func safeRun(h ports.EngineHandle, e entry) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.EngineTasksTotal.WithLabelValues("panic").Inc()
			err = fmt.Errorf("%w: %s: panic: %v\n%s", domain.ErrEngineTaskFailure, e.name, rec, debug.Stack())
		}
	}()
	if runErr := e.task(h); runErr != nil {
		metrics.EngineTasksTotal.WithLabelValues("error").Inc()
		if errors.Is(runErr, domain.ErrEngineTaskFailure) {
			return runErr
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrEngineTaskFailure, e.name, runErr)
	}
	return nil
}
