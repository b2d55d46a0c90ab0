package queue

import "errors"

var (
	// ErrQueueClosed is returned when operating on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrJobNotFound is returned when a job ID does not match any pending job.
	ErrJobNotFound = errors.New("job not found")
)
