// Package queue defines interfaces for delayed-job queue operations.
// This abstraction allows swapping implementations (Redis, in-memory)
// without changing business logic.
package queue

import (
	"context"
	"time"
)

// Default job options applied when the caller leaves them zero.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 5 * time.Second
)

// Job is a unit of deferred work. Jobs are serialized into the backing store
// and handed back to a Handler when due.
type Job struct {
	// ID uniquely identifies the job within its queue and is the handle used
	// to cancel it.
	ID string `json:"id"`

	// Queue is the logical queue the job belongs to.
	Queue string `json:"queue"`

	// Name identifies the kind of work (e.g. "escalation-check").
	Name string `json:"name"`

	// Payload is the handler-defined job body.
	Payload []byte `json:"payload"`

	// Attempt is the number of times the job has already been tried.
	Attempt int `json:"attempt"`

	MaxAttempts int           `json:"max_attempts"`
	BackoffBase time.Duration `json:"backoff_base"`

	// RunAt is when the job becomes due.
	RunAt      time.Time `json:"run_at"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Options controls scheduling and retry behavior for an enqueued job.
type Options struct {
	// Delay defers the job's first run by this duration. Zero means the job
	// is due immediately.
	Delay time.Duration

	// MaxAttempts bounds retries on handler failure. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int

	// BackoffBase is the base for exponential retry backoff
	// (base * 2^attempt). Zero means DefaultBackoffBase.
	BackoffBase time.Duration
}

// Handler processes a due job. Returning an error requeues the job with
// exponential backoff until MaxAttempts is exhausted.
type Handler func(ctx context.Context, job *Job) error

// Queue defines the interface for scheduling and consuming delayed jobs.
// Implementations must be safe for concurrent use.
type Queue interface {
	// Enqueue schedules a job on the named queue and returns its job ID.
	Enqueue(ctx context.Context, queueName, jobName string, payload []byte, opts Options) (string, error)

	// Cancel removes a not-yet-run job. Canceling an unknown or already-run
	// job returns ErrJobNotFound.
	Cancel(ctx context.Context, queueName, jobID string) error

	// Find returns a pending job by ID, or ErrJobNotFound.
	Find(ctx context.Context, queueName, jobID string) (*Job, error)

	// Process runs due jobs from the named queue through the handler.
	// This is a blocking call that runs until the context is canceled
	// or an unrecoverable error occurs.
	Process(ctx context.Context, queueName string, handler Handler) error

	// Close releases any resources held by the queue.
	Close() error
}

// NextBackoff returns when a failed job should run again. The attempt is the
// number of tries already made (1 for the first failure).
func NextBackoff(now time.Time, base time.Duration, attempt int) time.Time {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return now.Add(d)
}
