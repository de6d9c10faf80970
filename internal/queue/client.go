package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iago/reportflow/internal/domain"
)

// Client assigns correlation ids to outgoing jobs and routes cancellations.
type Client struct {
	producer Producer
	cancels  CancelRegistry
	now      func() time.Time
}

func NewClient(producer Producer, cancels CancelRegistry) *Client {
	return &Client{
		producer: producer,
		cancels:  cancels,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewJobID returns a fresh queue job id. Callers that must persist the id
// before the message becomes visible to consumers pass it in QueueJobID.
func NewJobID() string {
	return uuid.NewString()
}

// AddJob enqueues message as jobType and returns its queue job id, generating
// one when message.QueueJobID is empty.
func (c *Client) AddJob(ctx context.Context, jobType domain.JobType, message domain.QueueMessage) (string, error) {
	if jobType == "" {
		return "", errors.New("job type is required")
	}
	if strings.TrimSpace(message.QueueJobID) == "" {
		message.QueueJobID = NewJobID()
	}
	message.Type = jobType
	message.Attempt = 0
	if message.RequestedAt.IsZero() {
		message.RequestedAt = c.now()
	}
	if err := c.producer.Enqueue(ctx, message); err != nil {
		return "", fmt.Errorf("add %s job: %w", jobType, err)
	}
	return message.QueueJobID, nil
}

// CancelJob marks a queued job as cancelled. Consumers drop cancelled
// messages instead of handing them to the handler.
func (c *Client) CancelJob(ctx context.Context, queueJobID string) (bool, error) {
	if strings.TrimSpace(queueJobID) == "" {
		return false, nil
	}
	if c.cancels == nil {
		return false, errors.New("queue backend does not support cancellation")
	}
	cancelled, err := c.cancels.MarkCancelled(ctx, queueJobID)
	if err != nil {
		return false, fmt.Errorf("cancel job %s: %w", queueJobID, err)
	}
	return cancelled, nil
}
