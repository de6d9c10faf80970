package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iago/reportflow/internal/domain"
)

type StreamsConfig struct {
	Addr        string
	Password    string
	DB          int
	Stream      string
	DLQStream   string
	CancelSet   string
	Group       string
	Consumer    string
	MaxAttempts int
}

// StreamsQueue implements Producer, Consumer and CancelRegistry backed by
// Redis Streams and a Redis set of cancelled job ids.
type StreamsQueue struct {
	client      *redis.Client
	stream      string
	dlqStream   string
	cancelSet   string
	group       string
	consumer    string
	maxAttempts int
	logger      *zap.Logger
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig, logger *zap.Logger) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "reportflow_jobs"
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = cfg.Stream + "_dlq"
	}
	if cfg.CancelSet == "" {
		cfg.CancelSet = cfg.Stream + "_cancelled"
	}
	if cfg.Group == "" {
		cfg.Group = "reportflow_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "api-1"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	queue := &StreamsQueue{
		client:      client,
		stream:      cfg.Stream,
		dlqStream:   cfg.DLQStream,
		cancelSet:   cfg.CancelSet,
		group:       cfg.Group,
		consumer:    cfg.Consumer,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
	}
	if err := queue.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return queue, nil
}

func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

func (q *StreamsQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Backlog is the number of entries still held in the stream.
func (q *StreamsQueue) Backlog(ctx context.Context) (int64, error) {
	return q.client.XLen(ctx, q.stream).Result()
}

func (q *StreamsQueue) Enqueue(ctx context.Context, message domain.QueueMessage) error {
	_, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: streamValues(message),
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue to stream: %w", err)
	}
	return nil
}

func (q *StreamsQueue) EnqueueBatch(ctx context.Context, messages []domain.QueueMessage) error {
	if len(messages) == 0 {
		return nil
	}

	pipeline := q.client.Pipeline()
	for _, message := range messages {
		pipeline.XAdd(ctx, &redis.XAddArgs{
			Stream: q.stream,
			Values: streamValues(message),
		})
	}

	if _, err := pipeline.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue batch to stream: %w", err)
	}
	return nil
}

func (q *StreamsQueue) MarkCancelled(ctx context.Context, queueJobID string) (bool, error) {
	added, err := q.client.SAdd(ctx, q.cancelSet, queueJobID).Result()
	if err != nil {
		return false, fmt.Errorf("sadd cancel set: %w", err)
	}
	return added == 1, nil
}

func (q *StreamsQueue) IsCancelled(ctx context.Context, queueJobID string) (bool, error) {
	cancelled, err := q.client.SIsMember(ctx, q.cancelSet, queueJobID).Result()
	if err != nil {
		return false, fmt.Errorf("sismember cancel set: %w", err)
	}
	return cancelled, nil
}

func (q *StreamsQueue) Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}

		for _, stream := range streams {
			for _, item := range stream.Messages {
				q.handleItem(ctx, item, handler)
			}
		}
	}
}

func (q *StreamsQueue) handleItem(ctx context.Context, item redis.XMessage, handler func(context.Context, domain.QueueMessage) error) {
	defer func() {
		if err := q.ackAndDelete(ctx, item.ID); err != nil {
			q.logger.Warn("stream ack failed", zap.String("stream_id", item.ID), zap.Error(err))
		}
	}()

	message, parseErr := parseStreamMessage(item)
	if parseErr != nil {
		q.moveToDLQ(ctx, domain.QueueMessage{}, item, parseErr.Error())
		return
	}

	cancelled, err := q.IsCancelled(ctx, message.QueueJobID)
	if err != nil {
		q.logger.Warn("cancel lookup failed", zap.String("queue_job_id", message.QueueJobID), zap.Error(err))
	}
	if cancelled {
		q.logger.Info("stream skipped cancelled message", zap.String("queue_job_id", message.QueueJobID))
		return
	}

	handleErr := handler(ctx, message)
	if handleErr == nil {
		return
	}

	message.Attempt++
	if message.Attempt >= q.maxAttempts {
		q.moveToDLQ(ctx, message, item, handleErr.Error())
		return
	}

	if requeueErr := q.Enqueue(ctx, message); requeueErr != nil {
		q.moveToDLQ(ctx, message, item, fmt.Sprintf("requeue failed: %v", requeueErr))
	}
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, streamID string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, streamID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.client.XDel(ctx, q.stream, streamID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

func (q *StreamsQueue) moveToDLQ(ctx context.Context, message domain.QueueMessage, item redis.XMessage, errorMessage string) {
	values := streamValues(message)
	values["stream_id"] = item.ID
	values["error"] = errorMessage
	values["moved_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.dlqStream, Values: values}).Result(); err != nil {
		q.logger.Error("send to dlq failed", zap.String("stream_id", item.ID), zap.Error(err))
		return
	}
	q.logger.Warn("stream moved message to DLQ",
		zap.String("queue_job_id", message.QueueJobID),
		zap.Int("attempt", message.Attempt),
		zap.String("error", errorMessage),
	)
}

func streamValues(message domain.QueueMessage) map[string]any {
	return map[string]any{
		"queue_job_id":    message.QueueJobID,
		"type":            string(message.Type),
		"export_job_id":   message.ExportJobID,
		"organization_id": message.OrganizationID,
		"payload":         string(message.Payload),
		"attempt":         message.Attempt,
		"requested_at":    message.RequestedAt.Format(time.RFC3339Nano),
	}
}

func parseStreamMessage(item redis.XMessage) (domain.QueueMessage, error) {
	getString := func(key string) (string, error) {
		value, ok := item.Values[key]
		if !ok {
			return "", fmt.Errorf("missing field %s", key)
		}
		switch casted := value.(type) {
		case string:
			return casted, nil
		case []byte:
			return string(casted), nil
		default:
			return fmt.Sprintf("%v", casted), nil
		}
	}

	fields := make(map[string]string, 7)
	for _, key := range []string{"queue_job_id", "type", "export_job_id", "organization_id", "payload", "attempt", "requested_at"} {
		value, err := getString(key)
		if err != nil {
			return domain.QueueMessage{}, err
		}
		fields[key] = value
	}

	attempt, err := strconv.Atoi(fields["attempt"])
	if err != nil {
		return domain.QueueMessage{}, fmt.Errorf("invalid attempt: %w", err)
	}
	requestedAt, err := time.Parse(time.RFC3339Nano, fields["requested_at"])
	if err != nil {
		return domain.QueueMessage{}, fmt.Errorf("invalid requested_at: %w", err)
	}

	var payload []byte
	if fields["payload"] != "" {
		payload = []byte(fields["payload"])
	}

	return domain.QueueMessage{
		QueueJobID:     fields["queue_job_id"],
		Type:           domain.JobType(fields["type"]),
		ExportJobID:    fields["export_job_id"],
		OrganizationID: fields["organization_id"],
		Payload:        payload,
		Attempt:        attempt,
		RequestedAt:    requestedAt,
	}, nil
}
