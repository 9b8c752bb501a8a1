package taskqueue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keeldb/keel/pkg/metrics"
)

// Handler executes one delivered task.
type Handler func(ctx context.Context, task *Task) error

// popTimeout bounds each blocking receive so workers notice Stop promptly.
const popTimeout = time.Second

// Worker consumes one queue with a pool of goroutines. Each delivered task
// is executed through the backoff policy: transient failures are retried
// with growing delays, permanent failures are logged and the task dropped.
type Worker struct {
	queue       *Queue
	queueName   string
	handler     Handler
	concurrency int
	logger      zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a worker pool for a queue.
func NewWorker(queue *Queue, queueName string, concurrency int, handler Handler, logger zerolog.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		queueName:   queueName,
		handler:     handler,
		concurrency: concurrency,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the pool.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

// Stop stops the pool and waits for in-flight tasks to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	backoff := DefaultBackoff()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.queue.receive(ctx, w.queueName, popTimeout)
		if err != nil {
			w.logger.Error().Err(err).Str("queue", w.queueName).Msg("Failed to receive task")
			if err := backoff.Retry(ctx, err); err != nil {
				w.logger.Error().Err(err).Str("queue", w.queueName).Msg("Queue receive failing permanently")
				return
			}
			continue
		}
		if task == nil {
			continue
		}

		w.execute(ctx, task, backoff)
	}
}

// execute runs one task to completion or to permanent failure.
func (w *Worker) execute(ctx context.Context, task *Task, backoff *Backoff) {
	logger := w.logger.With().Str("task_id", task.ID).Str("queue", task.Queue).Logger()

	for {
		err := w.handler(ctx, task)
		if err == nil {
			backoff.Success()
			return
		}

		logger.Warn().Err(err).Msg("Task execution failed, retrying")
		metrics.TaskRetriesTotal.Inc()
		if rerr := backoff.Retry(ctx, err); rerr != nil {
			logger.Error().Err(rerr).Msg("Task failed permanently")
			backoff.Success()
			return
		}
	}
}
