// Package task provides the background execution primitives used by the
// lifecycle engine: a bounded in-memory queue and a worker pool that drains
// it. The primitives know nothing about quizzes or task records; they run
// opaque units of work so they stay reusable and trivially testable.
package task

import (
	"context"

	"github.com/google/uuid"
)

// Job represents a unit of background work to be processed by the worker
// pool.
type Job interface {
	// ID returns the job's unique identifier, used for logging and
	// correlation with the task record it executes.
	ID() uuid.UUID

	// Type returns the job type identifier.
	Type() string

	// Execute runs the job logic. The context is canceled when the worker
	// pool shuts down.
	Execute(ctx context.Context) error
}

// QueueReader provides read-only access to the job channel, allowing
// workers to consume jobs without the ability to enqueue.
type QueueReader interface {
	// GetChannel returns a read-only channel for consuming jobs.
	GetChannel() <-chan Job
}

// QueueWriter provides write access to the job queue, allowing services to
// enqueue jobs for processing.
type QueueWriter interface {
	// Enqueue adds a job to the queue for processing.
	// Returns an error if the queue is full or closed.
	Enqueue(job Job) error

	// Close closes the queue, preventing further job submission.
	Close()
}
