package queue

import (
	"context"

	"github.com/iago/reportflow/internal/domain"
)

// Producer sends async jobs to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message domain.QueueMessage) error
}

// Consumer receives async jobs and executes handlers.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error
}

// CancelRegistry remembers queue job ids that must not be processed.
type CancelRegistry interface {
	// MarkCancelled reports true when the id was not cancelled before.
	MarkCancelled(ctx context.Context, queueJobID string) (bool, error)
	IsCancelled(ctx context.Context, queueJobID string) (bool, error)
}

// JobQueue is the queue surface used by services.
type JobQueue interface {
	AddJob(ctx context.Context, jobType domain.JobType, message domain.QueueMessage) (string, error)
	CancelJob(ctx context.Context, queueJobID string) (bool, error)
}

// BacklogReporter exposes how many messages wait for a consumer.
type BacklogReporter interface {
	Backlog(ctx context.Context) (int64, error)
}
