// Package queue implements the in-process retry queue that serializes
// webhook processing.
//
// One logical worker drains a FIFO list of tasks, finishing each task
// (including its retries) before moving to the next. The total ordering is
// intentional: gateway events for the same booking must never interleave,
// and the booking store is protected from racing partial updates. A failing
// task is retried in place with a fixed delay, so it can hold up tasks
// behind it for at most (MaxRetries × RetryDelay) plus I/O latency.
//
// The worker goroutine is started lazily by Enqueue and exits once the list
// drains. The running flag is flipped under the same lock as the append, so
// concurrent Enqueue calls can never start two workers.
package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/TechLoui/Vagafogo-sub000/internal/audit"
	"github.com/TechLoui/Vagafogo-sub000/internal/clock"
	"github.com/TechLoui/Vagafogo-sub000/internal/domain"
	"github.com/TechLoui/Vagafogo-sub000/internal/observability"
)

// Processor handles one inbound event to completion. A nil return discards
// the task as done; an error triggers the retry policy.
type Processor interface {
	Process(ctx context.Context, event *domain.InboundEvent) error
}

// Auditor records terminal processing outcomes.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Config defines the retry policy for queued tasks.
//
// MaxRetries: retries after the first attempt, so a task is attempted at
// most MaxRetries+1 times before being dropped.
// RetryDelay: fixed wait between attempts (not exponential).
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: 4 * time.Second,
	}
}

// Task wraps one inbound event with its retry attempt count.
type Task struct {
	Event   *domain.InboundEvent
	Attempt int
}

// Queue owns the pending task list and the worker-control state.
// Construct one per process with New and hand it to the HTTP handler.
type Queue struct {
	config    Config
	processor Processor
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	auditor   Auditor

	mu      sync.Mutex
	tasks   []*Task
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(config Config, processor Processor, clk clock.Clock, logger *slog.Logger) *Queue {
	if config.MaxRetries < 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = DefaultConfig().RetryDelay
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		config:    config,
		processor: processor,
		clock:     clk,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// WithMetrics enables Prometheus metrics collection.
func (q *Queue) WithMetrics(m *observability.Metrics) *Queue {
	q.metrics = m
	return q
}

// WithAuditor enables outcome publishing for dropped tasks. Publish
// failures are logged, never propagated.
func (q *Queue) WithAuditor(a Auditor) *Queue {
	q.auditor = a
	return q
}

// Enqueue appends the event and returns immediately; processing happens
// asynchronously on the worker goroutine. Safe for concurrent use.
func (q *Queue) Enqueue(event *domain.InboundEvent) {
	q.mu.Lock()
	q.tasks = append(q.tasks, &Task{Event: event})
	depth := len(q.tasks)
	start := !q.running
	if start {
		q.running = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	q.setDepth(depth)
	if start {
		go q.run()
	}
}

// Len reports the number of tasks waiting (not counting one in flight).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Stop cancels the worker context and waits for the in-flight task to
// unwind. Tasks still queued are abandoned; the gateway redelivers
// unacknowledged events on its side.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
	q.logger.Info("task queue stopped")
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if len(q.tasks) == 0 || q.ctx.Err() != nil {
			q.running = false
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		depth := len(q.tasks)
		q.mu.Unlock()

		q.setDepth(depth)
		q.processTask(task)
	}
}

// processTask runs one task to a terminal outcome: success, or drop after
// exhausting retries. Failures never escape to the worker loop.
func (q *Queue) processTask(task *Task) {
	for {
		start := q.clock.Now()
		err := q.safeProcess(task)
		q.observeDuration(q.clock.Now().Sub(start))

		if err == nil {
			return
		}

		task.Attempt++
		if task.Attempt > q.config.MaxRetries {
			q.logger.Error("task dropped after exhausting retries",
				"event", task.Event.Event,
				"reference", task.Event.Reference(),
				"attempts", task.Attempt,
				"error", err,
			)
			q.countDropped()
			q.recordDropped(task, err)
			return
		}

		q.logger.Warn("task failed, will retry",
			"event", task.Event.Event,
			"reference", task.Event.Reference(),
			"attempt", task.Attempt,
			"retry_in", q.config.RetryDelay,
			"error", err,
		)
		q.countRetried()

		select {
		case <-q.ctx.Done():
			q.logger.Warn("task abandoned during shutdown",
				"event", task.Event.Event,
				"reference", task.Event.Reference(),
			)
			return
		case <-q.clock.After(q.config.RetryDelay):
		}
	}
}

// safeProcess converts a processor panic into a task failure so a bad
// payload cannot kill the worker loop.
func (q *Queue) safeProcess(task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return q.processor.Process(q.ctx, task.Event)
}

func (q *Queue) recordDropped(task *Task, cause error) {
	if q.auditor == nil {
		return
	}
	entry := audit.Entry{
		PaymentID: task.Event.PaymentID(),
		EventType: task.Event.Event,
		BookingID: task.Event.Reference(),
		Outcome:   audit.OutcomeDropped,
		Reason:    cause.Error(),
		At:        q.clock.Now(),
	}
	if err := q.auditor.Record(q.ctx, entry); err != nil {
		q.logger.Warn("failed to record audit entry", "error", err)
	}
}

func (q *Queue) setDepth(n int) {
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(n))
	}
}

func (q *Queue) countRetried() {
	if q.metrics != nil {
		q.metrics.TasksRetried.Inc()
	}
}

func (q *Queue) countDropped() {
	if q.metrics != nil {
		q.metrics.TasksDropped.Inc()
	}
}

func (q *Queue) observeDuration(d time.Duration) {
	if q.metrics != nil {
		q.metrics.ProcessDuration.Observe(d.Seconds())
	}
}
