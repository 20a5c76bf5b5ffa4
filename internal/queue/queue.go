package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Enqueuer publishes tasks to an asynq queue.
type Enqueuer struct {
	Client      *asynq.Client
	Queue       string
	MaxAttempts int
	Timeout     time.Duration
}

// Enqueue publishes task. When key is set the task is dropped silently while
// another task with the same key is still pending, scheduled or retrying.
func (e Enqueuer) Enqueue(ctx context.Context, task *asynq.Task, key string) error {
	if e.Client == nil {
		return errors.New("queue: asynq client not configured")
	}
	if task == nil || task.Type() == "" {
		return errors.New("queue: task kind is required")
	}
	opts := e.options(key)
	_, err := e.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		QueueDedupedTotal.WithLabelValues(task.Type()).Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", task.Type(), err)
	}
	QueueEnqueuedTotal.WithLabelValues(task.Type()).Inc()
	return nil
}

func (e Enqueuer) options(key string) []asynq.Option {
	opts := []asynq.Option{asynq.Queue(e.queueName())}
	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	opts = append(opts, asynq.MaxRetry(maxAttempts-1))
	if e.Timeout > 0 {
		opts = append(opts, asynq.Timeout(e.Timeout))
	}
	if key != "" {
		opts = append(opts, asynq.TaskID(key))
	}
	return opts
}

func (e Enqueuer) queueName() string {
	if e.Queue == "" {
		return "default"
	}
	return e.Queue
}

// Instrument wraps task handlers with processing metrics and a per-task
// logger carried on the context.
func Instrument(logger zerolog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			kind := task.Type()
			log := logger.With().Str("task", kind).Logger()
			if id, ok := asynq.GetTaskID(ctx); ok {
				log = log.With().Str("task_id", id).Logger()
			}
			start := time.Now()
			err := next.ProcessTask(log.WithContext(ctx), task)
			QueueTaskDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
			status := "ok"
			switch {
			case errors.Is(err, asynq.SkipRetry):
				status = "skipped"
				log.Warn().Err(err).Msg("task dropped without retry")
			case err != nil:
				status = "error"
				log.Error().Err(err).Msg("task failed")
			}
			QueueProcessedTotal.WithLabelValues(kind, status).Inc()
			return err
		})
	}
}
