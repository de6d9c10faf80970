package domain

import (
	"encoding/json"
	"time"

	"github.com/iago/reportflow/internal/validation"
)

const exportJobAggregate = "export_job"

// ExportResult describes the file produced by a completed export.
type ExportResult struct {
	FilePath    string
	DownloadURL string
	FileURL     string
	FileSize    int64
}

// ExportJob is the aggregate root for one asynchronous export of a report.
type ExportJob struct {
	eventBuffer
	versioned

	id                ID
	reportID          ID
	scheduledReportID ID
	format            ExportFormat
	status            ExportJobStatus
	userID            ID
	organizationID    ID
	options           json.RawMessage
	filePath          string
	downloadURL       string
	fileURL           string
	fileSize          int64
	errorMessage      string
	queueJobID        string
	createdAt         time.Time
	updatedAt         time.Time
	completedAt       *time.Time
}

type NewExportJobParams struct {
	ReportID       ID
	Format         ExportFormat
	UserID         ID
	OrganizationID ID
	Options        json.RawMessage
}

// NewScheduledExportJob creates an export started by a schedule run.
func NewScheduledExportJob(params NewExportJobParams, scheduledReportID ID) (*ExportJob, error) {
	job, err := NewExportJob(params)
	if err != nil {
		return nil, err
	}
	job.scheduledReportID = scheduledReportID
	return job, nil
}

type ExportJobSnapshot struct {
	ID                ID
	ReportID          ID
	ScheduledReportID ID
	Format            ExportFormat
	Status            ExportJobStatus
	UserID            ID
	OrganizationID    ID
	Options           json.RawMessage
	FilePath          string
	DownloadURL       string
	FileURL           string
	FileSize          int64
	ErrorMessage      string
	QueueJobID        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
	Version           int
}

func NewExportJob(params NewExportJobParams) (*ExportJob, error) {
	if params.ReportID.IsZero() {
		return nil, &validation.Error{Field: "reportId", Message: "reportId is required"}
	}
	if params.UserID.IsZero() {
		return nil, &validation.Error{Field: "userId", Message: "userId is required"}
	}
	if _, err := ParseExportFormat(string(params.Format)); err != nil {
		return nil, &validation.Error{Field: "format", Message: err.Error()}
	}
	if len(params.Options) > 0 && !json.Valid(params.Options) {
		return nil, &validation.Error{Field: "options", Message: "options must be valid JSON"}
	}

	now := nowFunc()
	job := &ExportJob{
		id:             NewID(),
		reportID:       params.ReportID,
		format:         params.Format,
		status:         ExportJobStatusPending,
		userID:         params.UserID,
		organizationID: params.OrganizationID,
		options:        append(json.RawMessage(nil), params.Options...),
		createdAt:      now,
		updatedAt:      now,
	}
	job.record(Event{
		Name:          "export_job.created",
		AggregateType: exportJobAggregate,
		AggregateID:   job.id,
		NewValue:      job.status,
		OccurredAt:    now,
	})
	return job, nil
}

func ReconstituteExportJob(s ExportJobSnapshot) *ExportJob {
	return &ExportJob{
		id:                s.ID,
		reportID:          s.ReportID,
		scheduledReportID: s.ScheduledReportID,
		format:            s.Format,
		status:            s.Status,
		userID:            s.UserID,
		organizationID:    s.OrganizationID,
		options:           append(json.RawMessage(nil), s.Options...),
		filePath:          s.FilePath,
		downloadURL:       s.DownloadURL,
		fileURL:           s.FileURL,
		fileSize:          s.FileSize,
		errorMessage:      s.ErrorMessage,
		queueJobID:        s.QueueJobID,
		createdAt:         s.CreatedAt,
		updatedAt:         s.UpdatedAt,
		completedAt:       cloneTime(s.CompletedAt),
		versioned:         versioned{version: s.Version},
	}
}

func (j *ExportJob) Snapshot() ExportJobSnapshot {
	return ExportJobSnapshot{
		ID:                j.id,
		ReportID:          j.reportID,
		ScheduledReportID: j.scheduledReportID,
		Format:            j.format,
		Status:            j.status,
		UserID:            j.userID,
		OrganizationID:    j.organizationID,
		Options:           append(json.RawMessage(nil), j.options...),
		FilePath:          j.filePath,
		DownloadURL:       j.downloadURL,
		FileURL:           j.fileURL,
		FileSize:          j.fileSize,
		ErrorMessage:      j.errorMessage,
		QueueJobID:        j.queueJobID,
		CreatedAt:         j.createdAt,
		UpdatedAt:         j.updatedAt,
		CompletedAt:       cloneTime(j.completedAt),
		Version:           j.version,
	}
}

func (j *ExportJob) ID() ID                   { return j.id }
func (j *ExportJob) ReportID() ID             { return j.reportID }
func (j *ExportJob) ScheduledReportID() ID    { return j.scheduledReportID }
func (j *ExportJob) Format() ExportFormat     { return j.format }
func (j *ExportJob) Status() ExportJobStatus  { return j.status }
func (j *ExportJob) UserID() ID               { return j.userID }
func (j *ExportJob) OrganizationID() ID       { return j.organizationID }
func (j *ExportJob) Options() json.RawMessage { return append(json.RawMessage(nil), j.options...) }
func (j *ExportJob) FilePath() string         { return j.filePath }
func (j *ExportJob) DownloadURL() string      { return j.downloadURL }
func (j *ExportJob) FileURL() string          { return j.fileURL }
func (j *ExportJob) FileSize() int64          { return j.fileSize }
func (j *ExportJob) ErrorMessage() string     { return j.errorMessage }
func (j *ExportJob) QueueJobID() string       { return j.queueJobID }
func (j *ExportJob) CreatedAt() time.Time     { return j.createdAt }
func (j *ExportJob) UpdatedAt() time.Time     { return j.updatedAt }
func (j *ExportJob) CompletedAt() *time.Time  { return cloneTime(j.completedAt) }

// AssignQueueJob stores the queue's correlation id for this job.
func (j *ExportJob) AssignQueueJob(queueJobID string) {
	j.queueJobID = queueJobID
	j.updatedAt = nowFunc()
}

func (j *ExportJob) MarkAsProcessing() error {
	if err := j.expect(ExportJobStatusProcessing, ExportJobStatusPending); err != nil {
		return err
	}
	j.errorMessage = ""
	j.transition(ExportJobStatusProcessing)
	return nil
}

func (j *ExportJob) MarkAsCompleted(result ExportResult) error {
	if err := j.expect(ExportJobStatusCompleted, ExportJobStatusProcessing); err != nil {
		return err
	}
	j.filePath = result.FilePath
	j.downloadURL = result.DownloadURL
	j.fileURL = result.FileURL
	j.fileSize = result.FileSize
	j.errorMessage = ""
	j.transition(ExportJobStatusCompleted)
	j.stampCompleted()
	return nil
}

func (j *ExportJob) MarkAsFailed(message string) error {
	if err := j.expect(ExportJobStatusFailed, ExportJobStatusProcessing); err != nil {
		return err
	}
	j.errorMessage = message
	j.transition(ExportJobStatusFailed)
	j.stampCompleted()
	return nil
}

func (j *ExportJob) Cancel() error {
	if err := j.expect(ExportJobStatusCancelled, ExportJobStatusPending, ExportJobStatusProcessing); err != nil {
		return err
	}
	j.transition(ExportJobStatusCancelled)
	j.stampCompleted()
	return nil
}

// Retry returns a FAILED job to PENDING and forgets the previous attempt.
func (j *ExportJob) Retry() error {
	if err := j.expect(ExportJobStatusPending, ExportJobStatusFailed); err != nil {
		return err
	}
	j.errorMessage = ""
	j.filePath = ""
	j.downloadURL = ""
	j.fileURL = ""
	j.fileSize = 0
	j.queueJobID = ""
	j.completedAt = nil
	j.transition(ExportJobStatusPending)
	return nil
}

func (j *ExportJob) expect(target ExportJobStatus, allowed ...ExportJobStatus) error {
	for _, status := range allowed {
		if j.status == status {
			return nil
		}
	}
	return violation(RuleInvalidExportJobTransition, "cannot transition export job from %s to %s", j.status, target)
}

func (j *ExportJob) transition(target ExportJobStatus) {
	old := j.status
	j.status = target
	j.updatedAt = nowFunc()
	j.record(Event{
		Name:          "export_job.status_changed",
		AggregateType: exportJobAggregate,
		AggregateID:   j.id,
		Field:         "status",
		OldValue:      old,
		NewValue:      target,
		OccurredAt:    j.updatedAt,
	})
}

func (j *ExportJob) stampCompleted() {
	completed := j.updatedAt
	j.completedAt = &completed
}
