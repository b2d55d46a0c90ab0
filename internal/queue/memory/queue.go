// Package memory provides an in-memory implementation of the delayed-job
// queue. This is useful for testing and development without external
// dependencies.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"signalcraft-go/internal/queue"
)

// Queue is an in-memory delayed-job queue backed by a map of pending jobs
// and a short polling loop. This implementation is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	jobs   map[string]map[string]*queue.Job // queueName -> jobID -> job
	closed bool

	// pollInterval controls how often Process scans for due jobs. Kept short
	// so tests observe near-immediate delivery of zero-delay jobs.
	pollInterval time.Duration

	now func() time.Time
}

// NewQueue creates a new in-memory delayed-job queue.
func NewQueue() *Queue {
	return &Queue{
		jobs:         make(map[string]map[string]*queue.Job),
		pollInterval: 10 * time.Millisecond,
		now:          time.Now,
	}
}

// Enqueue schedules a job and returns its generated ID.
func (q *Queue) Enqueue(ctx context.Context, queueName, jobName string, payload []byte, opts queue.Options) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", queue.ErrQueueClosed
	}

	now := q.now()
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

	if q.jobs[queueName] == nil {
		q.jobs[queueName] = make(map[string]*queue.Job)
	}
	q.jobs[queueName][job.ID] = job
	return job.ID, nil
}

// Cancel removes a pending job.
func (q *Queue) Cancel(ctx context.Context, queueName, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.jobs[queueName]
	if pending == nil {
		return queue.ErrJobNotFound
	}
	if _, ok := pending[jobID]; !ok {
		return queue.ErrJobNotFound
	}
	delete(pending, jobID)
	return nil
}

// Find returns a pending job by ID.
func (q *Queue) Find(ctx context.Context, queueName, jobID string) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job, ok := q.jobs[queueName][jobID]; ok {
		copied := *job
		return &copied, nil
	}
	return nil, queue.ErrJobNotFound
}

// Process runs due jobs through the handler until the context is canceled.
func (q *Queue) Process(ctx context.Context, queueName string, handler queue.Handler) error {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				job := q.claimDue(queueName)
				if job == nil {
					break
				}
				q.run(ctx, job, handler)
			}
		}
	}
}

// claimDue removes and returns one due job, or nil when none are due.
func (q *Queue) claimDue(queueName string) *queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	now := q.now()
	for id, job := range q.jobs[queueName] {
		if !job.RunAt.After(now) {
			delete(q.jobs[queueName], id)
			return job
		}
	}
	return nil
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

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	job.RunAt = queue.NextBackoff(q.now(), job.BackoffBase, job.Attempt)
	if q.jobs[job.Queue] == nil {
		q.jobs[job.Queue] = make(map[string]*queue.Job)
	}
	q.jobs[job.Queue][job.ID] = job
}

// Close shuts down the queue. Pending jobs are discarded.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.jobs = make(map[string]map[string]*queue.Job)
	return nil
}

// Len returns the number of pending jobs in the named queue.
// Useful for testing to verify queue state.
func (q *Queue) Len(queueName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs[queueName])
}
