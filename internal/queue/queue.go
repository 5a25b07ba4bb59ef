package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job is the envelope stored on the Redis list. Attempt counts the current
// delivery attempt, starting at 1.
type Job struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Payload          json.RawMessage `json:"payload"`
	Attempt          int             `json:"attempt"`
	MaxAttempts      int             `json:"maxAttempts"`
	RemoveOnComplete bool            `json:"removeOnComplete"`
	EnqueuedAt       time.Time       `json:"enqueuedAt"`
}

// Options controls retry and completion behavior for an enqueued job.
type Options struct {
	Attempts         int
	RemoveOnComplete bool
}

// Queue is a durable at-least-once work queue backed by a Redis list.
// Producers LPUSH job envelopes; the worker BRPOPs them on the other side.
type Queue struct {
	redis *redis.Client
	key   string
}

func New(rdb *redis.Client, name string) *Queue {
	return &Queue{redis: rdb, key: "queue:" + name}
}

func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts Options) error {
	if q.redis == nil {
		return fmt.Errorf("queue unavailable")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}

	job := Job{
		ID:               uuid.NewString(),
		Name:             name,
		Payload:          body,
		Attempt:          1,
		MaxAttempts:      attempts,
		RemoveOnComplete: opts.RemoveOnComplete,
		EnqueuedAt:       time.Now().UTC(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := q.redis.LPush(ctx, q.key, string(data)).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}

	zap.L().Debug("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("job_name", name),
		zap.String("queue", q.key))
	return nil
}

// Handler processes a single dequeued job. A returned error triggers a retry
// while attempts remain.
type Handler func(ctx context.Context, job *Job) error

// Worker drains a Queue, dispatching jobs to registered handlers. Failed jobs
// are re-enqueued with their attempt counter bumped until MaxAttempts is
// exhausted, then dropped with a log line. Completed jobs are retained on a
// side list unless the job asked for removal on completion.
type Worker struct {
	queue       *Queue
	handlers    map[string]Handler
	pollTimeout time.Duration
}

func NewWorker(q *Queue, pollTimeout time.Duration) *Worker {
	return &Worker{
		queue:       q,
		handlers:    make(map[string]Handler),
		pollTimeout: pollTimeout,
	}
}

func (w *Worker) Register(name string, h Handler) {
	w.handlers[name] = h
}

// Run blocks consuming jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	zap.L().Info("queue worker started", zap.String("queue", w.queue.key))
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("queue worker stopped", zap.String("queue", w.queue.key))
			return
		default:
		}

		if err := w.processOne(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			zap.L().Error("queue poll failed", zap.String("queue", w.queue.key), zap.Error(err))
			time.Sleep(w.pollTimeout)
		}
	}
}

func (w *Worker) processOne(ctx context.Context) error {
	res, err := w.queue.redis.BRPop(ctx, w.pollTimeout, w.queue.key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if len(res) != 2 {
		return fmt.Errorf("unexpected BRPOP reply length %d", len(res))
	}

	raw := res[1]
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		zap.L().Error("dropping undecodable job", zap.String("queue", w.queue.key), zap.Error(err))
		return nil
	}

	h, ok := w.handlers[job.Name]
	if !ok {
		zap.L().Warn("dropping job with no handler",
			zap.String("job_id", job.ID),
			zap.String("job_name", job.Name))
		return nil
	}

	if err := h(ctx, &job); err != nil {
		w.retry(ctx, &job, err)
		return nil
	}

	if !job.RemoveOnComplete {
		if err := w.queue.redis.LPush(ctx, w.queue.key+":completed", raw).Err(); err != nil {
			zap.L().Warn("failed to archive completed job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	zap.L().Info("job processed",
		zap.String("job_id", job.ID),
		zap.String("job_name", job.Name),
		zap.Int("attempt", job.Attempt))
	return nil
}

func (w *Worker) retry(ctx context.Context, job *Job, cause error) {
	if job.Attempt >= job.MaxAttempts {
		zap.L().Error("job exhausted retries",
			zap.String("job_id", job.ID),
			zap.String("job_name", job.Name),
			zap.Int("attempts", job.Attempt),
			zap.Error(cause))
		return
	}

	job.Attempt++
	data, err := json.Marshal(job)
	if err != nil {
		zap.L().Error("failed to re-marshal job for retry", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	if err := w.queue.redis.LPush(ctx, w.queue.key, string(data)).Err(); err != nil {
		zap.L().Error("failed to re-enqueue job",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return
	}

	zap.L().Warn("job re-enqueued after failure",
		zap.String("job_id", job.ID),
		zap.String("job_name", job.Name),
		zap.Int("next_attempt", job.Attempt),
		zap.Error(cause))
}
