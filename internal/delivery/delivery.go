package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/policy"
)

var ErrNoSender = errors.New("delivery: no sender for method")

// Delivery is one rendered scheduled report on its way to the audience.
type Delivery struct {
	ScheduledReportID domain.ID
	ScheduleName      string
	ReportTitle       string
	ExportJobID       domain.ID
	Config            domain.DeliveryConfig
	FileName          string
	ContentType       string
	DownloadURL       string
	Data              []byte
	GeneratedAt       time.Time
}

type Sender interface {
	Send(ctx context.Context, delivery Delivery) error
}

// Router sends each delivery through the sender registered for its method.
type Router struct {
	senders map[domain.DeliveryMethod]Sender
	logger  *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		senders: map[domain.DeliveryMethod]Sender{
			domain.DeliveryMethodDownload: DownloadSender{},
		},
		logger: logger,
	}
}

func (r *Router) Register(method domain.DeliveryMethod, sender Sender) {
	r.senders[method] = sender
}

func (r *Router) Deliver(ctx context.Context, delivery Delivery) error {
	method := delivery.Config.Method
	sender, ok := r.senders[method]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSender, method)
	}

	started := time.Now()
	err := sender.Send(ctx, delivery)
	fields := []zap.Field{
		zap.String("scheduled_report_id", delivery.ScheduledReportID.String()),
		zap.String("export_job_id", delivery.ExportJobID.String()),
		zap.String("method", string(method)),
		zap.Strings("recipients", policy.MaskEmails(delivery.Config.Recipients)),
		zap.Duration("elapsed", time.Since(started)),
	}
	if err != nil {
		r.logger.Warn("report delivery failed", append(fields, zap.Error(err))...)
		return fmt.Errorf("deliver via %s: %w", method, err)
	}
	r.logger.Info("report delivered", fields...)
	return nil
}

// DownloadSender does nothing: the stored file's URL is the delivery.
type DownloadSender struct{}

func (DownloadSender) Send(context.Context, Delivery) error {
	return nil
}
