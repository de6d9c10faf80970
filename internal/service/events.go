package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/policy"
)

// EventSink receives the domain events drained from an aggregate after it
// has been saved.
type EventSink interface {
	Publish(ctx context.Context, events []domain.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, events []domain.Event)

func (f EventSinkFunc) Publish(ctx context.Context, events []domain.Event) {
	f(ctx, events)
}

// FanOut publishes to every sink in order.
func FanOut(sinks ...EventSink) EventSink {
	return EventSinkFunc(func(ctx context.Context, events []domain.Event) {
		for _, sink := range sinks {
			if sink != nil {
				sink.Publish(ctx, events)
			}
		}
	})
}

// LogEventSink writes each event as a structured log line with PII masked.
type LogEventSink struct {
	logger *zap.Logger
}

func NewLogEventSink(logger *zap.Logger) *LogEventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEventSink{logger: logger}
}

func (s *LogEventSink) Publish(_ context.Context, events []domain.Event) {
	for _, event := range events {
		fields := []zap.Field{
			zap.String("event", event.Name),
			zap.String("aggregate_type", event.AggregateType),
			zap.String("aggregate_id", event.AggregateID.String()),
			zap.Time("occurred_at", event.OccurredAt),
		}
		if event.Field != "" {
			fields = append(fields,
				zap.String("field", event.Field),
				zap.String("old_value", describe(event.OldValue)),
				zap.String("new_value", describe(event.NewValue)),
			)
		}
		s.logger.Info("domain event", fields...)
	}
}

const maxLoggedValueLength = 256

func describe(value any) string {
	if value == nil {
		return ""
	}
	text := policy.MaskPIIString(fmt.Sprintf("%v", value))
	if len(text) > maxLoggedValueLength {
		return text[:maxLoggedValueLength] + "..."
	}
	return text
}

type eventSource interface {
	PullEvents() []domain.Event
}

func publish(ctx context.Context, sink EventSink, aggregate eventSource) {
	events := aggregate.PullEvents()
	if sink == nil || len(events) == 0 {
		return
	}
	sink.Publish(ctx, events)
}
