package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iago/reportflow/internal/domain"
)

// LocalQueue is a fallback queue used when Redis is not configured.
type LocalQueue struct {
	ch          chan domain.QueueMessage
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger

	dlqMu sync.Mutex
	dlq   []domain.QueueMessage

	cancelMu  sync.RWMutex
	cancelled map[string]struct{}
}

func NewLocalQueue(bufferSize, maxAttempts int, logger *zap.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 512
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalQueue{
		ch:          make(chan domain.QueueMessage, bufferSize),
		maxAttempts: maxAttempts,
		retryDelay:  500 * time.Millisecond,
		logger:      logger,
		dlq:         make([]domain.QueueMessage, 0),
		cancelled:   make(map[string]struct{}),
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, message domain.QueueMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- message:
		return nil
	}
}

func (q *LocalQueue) EnqueueBatch(ctx context.Context, messages []domain.QueueMessage) error {
	for _, message := range messages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q.ch <- message:
		}
	}
	return nil
}

func (q *LocalQueue) MarkCancelled(_ context.Context, queueJobID string) (bool, error) {
	q.cancelMu.Lock()
	defer q.cancelMu.Unlock()

	if _, ok := q.cancelled[queueJobID]; ok {
		return false, nil
	}
	q.cancelled[queueJobID] = struct{}{}
	return true, nil
}

func (q *LocalQueue) IsCancelled(_ context.Context, queueJobID string) (bool, error) {
	q.cancelMu.RLock()
	defer q.cancelMu.RUnlock()

	_, ok := q.cancelled[queueJobID]
	return ok, nil
}

func (q *LocalQueue) Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-q.ch:
			if cancelled, _ := q.IsCancelled(ctx, message.QueueJobID); cancelled {
				q.logger.Info("local queue skipped cancelled message",
					zap.String("queue_job_id", message.QueueJobID),
					zap.String("export_job_id", message.ExportJobID),
				)
				continue
			}

			err := handler(ctx, message)
			if err == nil {
				continue
			}

			message.Attempt++
			if message.Attempt >= q.maxAttempts {
				q.dlqMu.Lock()
				q.dlq = append(q.dlq, message)
				q.dlqMu.Unlock()
				q.logger.Warn("local queue moved message to DLQ",
					zap.String("queue_job_id", message.QueueJobID),
					zap.Int("attempt", message.Attempt),
					zap.Error(err),
				)
				continue
			}

			delay := time.Duration(message.Attempt) * q.retryDelay
			go func(retryMessage domain.QueueMessage) {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
					select {
					case q.ch <- retryMessage:
					case <-ctx.Done():
					}
				}
			}(message)
		}
	}
}

func (q *LocalQueue) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

// Len is the number of buffered messages.
func (q *LocalQueue) Len() int {
	return len(q.ch)
}

func (q *LocalQueue) Backlog(context.Context) (int64, error) {
	return int64(q.Len()), nil
}
