package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/policy"
	"github.com/iago/reportflow/internal/queue"
	"github.com/iago/reportflow/internal/repository"
)

type RequestExportInput struct {
	ReportID       domain.ID
	Format         domain.ExportFormat
	UserID         domain.ID
	OrganizationID domain.ID
	Options        json.RawMessage
}

// ExecutionRecorder counts one run of a scheduled report.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, id domain.ID, success bool) (*domain.ScheduledReport, error)
}

type ExportService struct {
	repo       repository.ExportJobRepository
	reports    repository.ReportRepository
	queue      queue.JobQueue
	events     EventSink
	executions ExecutionRecorder
}

func NewExportService(
	repo repository.ExportJobRepository,
	reports repository.ReportRepository,
	jobs queue.JobQueue,
	events EventSink,
) *ExportService {
	return &ExportService{repo: repo, reports: reports, queue: jobs, events: events}
}

// WithExecutionRecorder makes Cancel count a cancelled scheduled export as a
// failed run, so the schedule arms its next execution.
func (s *ExportService) WithExecutionRecorder(recorder ExecutionRecorder) *ExportService {
	s.executions = recorder
	return s
}

// Request creates a PENDING export of a non-archived report and enqueues it.
func (s *ExportService) Request(ctx context.Context, input RequestExportInput) (*domain.ExportJob, error) {
	if err := s.ensureExportable(ctx, input.ReportID); err != nil {
		return nil, err
	}
	job, err := domain.NewExportJob(domain.NewExportJobParams{
		ReportID:       input.ReportID,
		Format:         input.Format,
		UserID:         input.UserID,
		OrganizationID: input.OrganizationID,
		Options:        input.Options,
	})
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, job)
}

// RequestScheduled creates the export for one run of schedule in its
// delivery format.
func (s *ExportService) RequestScheduled(ctx context.Context, schedule *domain.ScheduledReport) (*domain.ExportJob, error) {
	if err := s.ensureExportable(ctx, schedule.ReportID()); err != nil {
		return nil, err
	}
	delivery := schedule.DeliveryConfig()
	options, err := json.Marshal(map[string]any{"includeCharts": delivery.IncludeCharts})
	if err != nil {
		return nil, fmt.Errorf("encode export options: %w", err)
	}
	job, err := domain.NewScheduledExportJob(domain.NewExportJobParams{
		ReportID:       schedule.ReportID(),
		Format:         delivery.Format.ExportFormat(),
		UserID:         schedule.CreatedBy(),
		OrganizationID: schedule.OrganizationID(),
		Options:        options,
	}, schedule.ID())
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, job)
}

func (s *ExportService) Get(ctx context.Context, id domain.ID) (*domain.ExportJob, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *ExportService) ListByReport(ctx context.Context, reportID domain.ID) ([]*domain.ExportJob, error) {
	return s.repo.ListByReport(ctx, reportID)
}

// Cancel stops a PENDING or PROCESSING export and tells the queue to drop
// its message. A cancelled scheduled export counts as a failed run.
func (s *ExportService) Cancel(ctx context.Context, id domain.ID) (*domain.ExportJob, error) {
	job, err := s.mutate(ctx, id, (*domain.ExportJob).Cancel)
	if err != nil {
		return nil, err
	}
	var recordErr error
	if !job.ScheduledReportID().IsZero() && s.executions != nil {
		if _, err := s.executions.RecordExecution(ctx, job.ScheduledReportID(), false); err != nil {
			recordErr = fmt.Errorf("record cancelled run of %s: %w", job.ScheduledReportID(), err)
		}
	}
	if _, err := s.queue.CancelJob(ctx, job.QueueJobID()); err != nil {
		return job, errors.Join(recordErr, fmt.Errorf("cancel queued export %s: %w", id, err))
	}
	return job, recordErr
}

// Retry returns a FAILED export to PENDING and enqueues it again.
func (s *ExportService) Retry(ctx context.Context, id domain.ID) (*domain.ExportJob, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load export job %s: %w", id, err)
	}
	if err := job.Retry(); err != nil {
		return nil, err
	}
	return s.submit(ctx, job)
}

// Begin is called by the worker before rendering.
func (s *ExportService) Begin(ctx context.Context, id domain.ID) (*domain.ExportJob, error) {
	return s.mutate(ctx, id, (*domain.ExportJob).MarkAsProcessing)
}

func (s *ExportService) Complete(ctx context.Context, id domain.ID, result domain.ExportResult) (*domain.ExportJob, error) {
	return s.mutate(ctx, id, func(job *domain.ExportJob) error {
		return job.MarkAsCompleted(result)
	})
}

func (s *ExportService) Fail(ctx context.Context, id domain.ID, message string) (*domain.ExportJob, error) {
	return s.mutate(ctx, id, func(job *domain.ExportJob) error {
		return job.MarkAsFailed(message)
	})
}

func (s *ExportService) ensureExportable(ctx context.Context, reportID domain.ID) error {
	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report %s: %w", reportID, err)
	}
	if report.Status().IsArchived() {
		return domain.NewRuleViolation(domain.RuleExportOfArchivedReport, "report %s is archived and cannot be exported", reportID)
	}
	return nil
}

// submit stores job with its queue correlation id and then enqueues it, so a
// worker picking the message up always finds the id persisted. An enqueue
// failure leaves the job FAILED so it can be retried.
func (s *ExportService) submit(ctx context.Context, job *domain.ExportJob) (*domain.ExportJob, error) {
	payload, err := json.Marshal(domain.ExportPayload{
		ReportID:          job.ReportID().String(),
		Format:            job.Format(),
		ScheduledReportID: scheduledID(job),
		Options:           policy.MaskPIIJSON(job.Options()),
	})
	if err != nil {
		return nil, fmt.Errorf("encode export payload: %w", err)
	}

	job.AssignQueueJob(queue.NewJobID())
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save export job: %w", err)
	}

	_, enqueueErr := s.queue.AddJob(ctx, domain.JobTypeExport, domain.QueueMessage{
		QueueJobID:     job.QueueJobID(),
		ExportJobID:    job.ID().String(),
		OrganizationID: job.OrganizationID().String(),
		Payload:        payload,
	})
	if enqueueErr != nil {
		if err := job.MarkAsProcessing(); err == nil {
			_ = job.MarkAsFailed("enqueue failed: " + enqueueErr.Error())
		}
		if err := s.repo.Save(ctx, job); err != nil {
			return nil, fmt.Errorf("save export job after enqueue failure: %w", err)
		}
		publish(ctx, s.events, job)
		return job, fmt.Errorf("enqueue export job %s: %w", job.ID(), enqueueErr)
	}

	publish(ctx, s.events, job)
	return job, nil
}

func (s *ExportService) mutate(ctx context.Context, id domain.ID, change func(*domain.ExportJob) error) (*domain.ExportJob, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load export job %s: %w", id, err)
	}
	if err := change(job); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save export job %s: %w", id, err)
	}
	publish(ctx, s.events, job)
	return job, nil
}

func scheduledID(job *domain.ExportJob) string {
	if job.ScheduledReportID().IsZero() {
		return ""
	}
	return job.ScheduledReportID().String()
}
