// Package redis provides a Redis-backed implementation of the delayed-job
// queue. Pending jobs live in a sorted set scored by due time plus a hash
// entry holding the serialized job, so jobs survive process restarts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"signalcraft-go/internal/config"
	"signalcraft-go/internal/queue"
)

// Key prefixes for queue data in Redis.
const (
	prefixScheduled = "sched:" // sorted set of job IDs scored by due time
	prefixJob       = "job:"   // serialized job bodies
)

// Queue implements queue.Queue using Redis.
type Queue struct {
	client *redis.Client

	// pollInterval controls how often Process scans for due jobs.
	pollInterval time.Duration
}

// NewQueue creates a new Redis-backed delayed-job queue.
func NewQueue(cfg *config.RedisConfig, pollInterval time.Duration) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Queue{client: client, pollInterval: pollInterval}, nil
}

// Client exposes the underlying Redis client so other Redis-backed
// components can share the connection.
func (q *Queue) Client() *redis.Client {
	return q.client
}

func scheduledKey(queueName string) string {
	return prefixScheduled + queueName
}

func jobKey(queueName, jobID string) string {
	return fmt.Sprintf("%s%s:%s", prefixJob, queueName, jobID)
}

// Enqueue schedules a job on the named queue and returns its job ID.
func (q *Queue) Enqueue(ctx context.Context, queueName, jobName string, payload []byte, opts queue.Options) (string, error) {
	now := time.Now()
	job := &queue.Job{
		ID:          uuid.NewString(),
		Queue:       queueName,
		Name:        jobName,
		Payload:     payload,
		MaxAttempts: opts.MaxAttempts,
		BackoffBase: opts.BackoffBase,
		RunAt:       now.Add(opts.Delay),
		EnqueuedAt:  now,
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = queue.DefaultMaxAttempts
	}
	if job.BackoffBase <= 0 {
		job.BackoffBase = queue.DefaultBackoffBase
	}

	if err := q.store(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// store writes the job body and schedules it in a single pipeline.
func (q *Queue) store(ctx context.Context, job *queue.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.Queue, job.ID), data, 0)
	pipe.ZAdd(ctx, scheduledKey(job.Queue), redis.Z{
		Score:  float64(job.RunAt.UnixMilli()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Cancel removes a pending job.
func (q *Queue) Cancel(ctx context.Context, queueName, jobID string) error {
	removed, err := q.client.ZRem(ctx, scheduledKey(queueName), jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	if removed == 0 {
		return queue.ErrJobNotFound
	}
	if err := q.client.Del(ctx, jobKey(queueName, jobID)).Err(); err != nil {
		return fmt.Errorf("failed to delete job body: %w", err)
	}
	return nil
}

// Find returns a pending job by ID.
func (q *Queue) Find(ctx context.Context, queueName, jobID string) (*queue.Job, error) {
	data, err := q.client.Get(ctx, jobKey(queueName, jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, queue.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job queue.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Process runs due jobs through the handler. This blocks until the context is
// canceled.
func (q *Queue) Process(ctx context.Context, queueName string, handler queue.Handler) error {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				job, err := q.claimDue(ctx, queueName)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return err
					}
					break
				}
				if job == nil {
					break
				}
				q.run(ctx, job, handler)
			}
		}
	}
}

// claimDue pops one due job. The ZRem result arbitrates between competing
// workers: only the caller that actually removed the member owns the job.
func (q *Queue) claimDue(ctx context.Context, queueName string) (*queue.Job, error) {
	now := float64(time.Now().UnixMilli())
	ids, err := q.client.ZRangeByScore(ctx, scheduledKey(queueName), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", now),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan due jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	id := ids[0]
	removed, err := q.client.ZRem(ctx, scheduledKey(queueName), id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if removed == 0 {
		// Another worker claimed it first.
		return nil, nil
	}

	job, err := q.Find(ctx, queueName, id)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := q.client.Del(ctx, jobKey(queueName, id)).Err(); err != nil {
		return nil, fmt.Errorf("failed to delete claimed job body: %w", err)
	}
	return job, nil
}

// run executes the handler and requeues on failure with exponential backoff.
func (q *Queue) run(ctx context.Context, job *queue.Job, handler queue.Handler) {
	job.Attempt++
	if err := handler(ctx, job); err == nil {
		return
	}
	if job.Attempt >= job.MaxAttempts {
		return
	}

	job.RunAt = queue.NextBackoff(time.Now(), job.BackoffBase, job.Attempt)
	// Best effort: a failed requeue drops the retry, not the original intent.
	_ = q.store(ctx, job)
}

// Close closes the Redis client connection.
func (q *Queue) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
