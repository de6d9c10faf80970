package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iago/reportflow/internal/delivery"
	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/exporter"
	"github.com/iago/reportflow/internal/metrics"
	"github.com/iago/reportflow/internal/queue"
	"github.com/iago/reportflow/internal/repository"
	"github.com/iago/reportflow/internal/service"
	"github.com/iago/reportflow/internal/storage"
)

// Renderer produces the file bytes for one export format.
type Renderer interface {
	Render(ctx context.Context, format domain.ExportFormat, doc exporter.Document) ([]byte, error)
}

// Deliverer hands a rendered scheduled report to its audience.
type Deliverer interface {
	Deliver(ctx context.Context, d delivery.Delivery) error
}

type Dependencies struct {
	Consumer  queue.Consumer
	Exports   *service.ExportService
	Schedules *service.ScheduleService
	Reports   repository.ReportRepository
	Renderer  Renderer
	Store     storage.Store
	Deliverer Deliverer
	// Metrics is optional.
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Processor consumes export jobs, renders and stores the file, and records
// the outcome on the job and, for scheduled runs, on the schedule.
type Processor struct {
	deps   Dependencies
	logger *zap.Logger
	now    func() time.Time
}

func NewProcessor(deps Dependencies) *Processor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		deps:   deps,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *Processor) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.deps.Consumer.Consume(ctx, p.processMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		p.logger.Error("worker consume loop error", zap.Error(err))

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, message domain.QueueMessage) error {
	if message.Type != domain.JobTypeExport {
		return fmt.Errorf("unsupported job type: %s", message.Type)
	}
	jobID, err := domain.ParseID(message.ExportJobID)
	if err != nil {
		return fmt.Errorf("parse export job id: %w", err)
	}
	logger := p.logger.With(
		zap.String("export_job_id", message.ExportJobID),
		zap.String("queue_job_id", message.QueueJobID),
		zap.Int("attempt", message.Attempt),
	)

	job, err := p.deps.Exports.Begin(ctx, jobID)
	if errors.Is(err, domain.RuleViolation(domain.RuleInvalidExportJobTransition)) {
		// Cancelled or already handled by another attempt.
		logger.Info("export job skipped", zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	started := p.now()
	object, renderErr := p.render(ctx, job)
	elapsed := p.now().Sub(started)

	if renderErr != nil {
		logger.Warn("export failed", zap.Error(renderErr))
		if _, err := p.deps.Exports.Fail(ctx, jobID, renderErr.Error()); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		p.observe(job.Format(), domain.ExportJobStatusFailed, elapsed, 0)
		p.recordExecution(ctx, job, false, logger)
		return nil
	}

	completed, err := p.deps.Exports.Complete(ctx, jobID, domain.ExportResult{
		FilePath:    object.Key,
		DownloadURL: object.URL,
		FileURL:     "file://" + object.Path,
		FileSize:    object.Size,
	})
	if errors.Is(err, domain.RuleViolation(domain.RuleInvalidExportJobTransition)) {
		logger.Info("export finished after cancellation", zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	p.observe(job.Format(), domain.ExportJobStatusCompleted, elapsed, object.Size)
	logger.Info("export completed",
		zap.String("format", string(job.Format())),
		zap.Int64("file_size", object.Size),
		zap.Duration("elapsed", elapsed),
	)

	if !completed.ScheduledReportID().IsZero() {
		deliverErr := p.deliver(ctx, completed, object)
		if deliverErr != nil {
			logger.Warn("scheduled delivery failed", zap.Error(deliverErr))
		}
		p.recordExecution(ctx, completed, deliverErr == nil, logger)
	}
	return nil
}

func (p *Processor) render(ctx context.Context, job *domain.ExportJob) (storage.Object, error) {
	report, err := p.deps.Reports.FindByID(ctx, job.ReportID())
	if err != nil {
		return storage.Object{}, fmt.Errorf("load report %s: %w", job.ReportID(), err)
	}
	options, err := exporter.ParseOptions(job.Options())
	if err != nil {
		return storage.Object{}, err
	}
	doc, err := exporter.BuildDocument(report, options, p.now())
	if err != nil {
		return storage.Object{}, err
	}
	data, err := p.deps.Renderer.Render(ctx, job.Format(), doc)
	if err != nil {
		return storage.Object{}, fmt.Errorf("render %s: %w", job.Format(), err)
	}
	object, err := p.deps.Store.Put(ctx, objectKey(job), data)
	if err != nil {
		return storage.Object{}, fmt.Errorf("store export: %w", err)
	}
	return object, nil
}

func (p *Processor) deliver(ctx context.Context, job *domain.ExportJob, object storage.Object) error {
	if p.deps.Schedules == nil || p.deps.Deliverer == nil {
		return errors.New("scheduled delivery is not configured")
	}
	schedule, err := p.deps.Schedules.Get(ctx, job.ScheduledReportID())
	if err != nil {
		return fmt.Errorf("load scheduled report: %w", err)
	}
	report, err := p.deps.Reports.FindByID(ctx, job.ReportID())
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	data, err := readObject(ctx, p.deps.Store, object.Key)
	if err != nil {
		return err
	}

	err = p.deps.Deliverer.Deliver(ctx, delivery.Delivery{
		ScheduledReportID: schedule.ID(),
		ScheduleName:      schedule.Name(),
		ReportTitle:       report.Title(),
		ExportJobID:       job.ID(),
		Config:            schedule.DeliveryConfig(),
		FileName:          fileName(report.Title(), job.Format()),
		ContentType:       job.Format().ContentType(),
		DownloadURL:       job.DownloadURL(),
		Data:              data,
		GeneratedAt:       p.now(),
	})
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveDelivery(schedule.DeliveryConfig().Method, err)
	}
	return err
}

func (p *Processor) recordExecution(ctx context.Context, job *domain.ExportJob, success bool, logger *zap.Logger) {
	if job.ScheduledReportID().IsZero() || p.deps.Schedules == nil {
		return
	}
	if _, err := p.deps.Schedules.RecordExecution(ctx, job.ScheduledReportID(), success); err != nil {
		logger.Error("record schedule execution failed",
			zap.String("scheduled_report_id", job.ScheduledReportID().String()),
			zap.Error(err),
		)
	}
}

func (p *Processor) observe(format domain.ExportFormat, status domain.ExportJobStatus, elapsed time.Duration, size int64) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveExport(format, status, elapsed, size)
	}
}
