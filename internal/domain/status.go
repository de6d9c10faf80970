package domain

import "fmt"

// ReportStatus is the publication state of a report.
type ReportStatus string

const (
	ReportStatusDraft     ReportStatus = "DRAFT"
	ReportStatusPublished ReportStatus = "PUBLISHED"
	ReportStatusArchived  ReportStatus = "ARCHIVED"
)

var reportTransitions = map[ReportStatus][]ReportStatus{
	ReportStatusDraft:     {ReportStatusPublished, ReportStatusArchived},
	ReportStatusPublished: {ReportStatusArchived},
	ReportStatusArchived:  {},
}

// ParseReportStatus accepts only the uppercase canonical names.
func ParseReportStatus(raw string) (ReportStatus, error) {
	status := ReportStatus(raw)
	if _, ok := reportTransitions[status]; !ok {
		return "", fmt.Errorf("invalid ReportStatus status: %s", raw)
	}
	return status, nil
}

func (s ReportStatus) String() string {
	return string(s)
}

func (s ReportStatus) IsDraft() bool {
	return s == ReportStatusDraft
}

func (s ReportStatus) IsPublished() bool {
	return s == ReportStatusPublished
}

func (s ReportStatus) IsArchived() bool {
	return s == ReportStatusArchived
}

func (s ReportStatus) Equals(other ReportStatus) bool {
	return s == other
}

// CanTransitionTo reports whether target is reachable in one step. A status
// never transitions to itself.
func (s ReportStatus) CanTransitionTo(target ReportStatus) bool {
	for _, allowed := range reportTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ScheduledReportStatus is the run state of a schedule. Any status may be set
// from any other.
type ScheduledReportStatus string

const (
	ScheduledReportStatusActive   ScheduledReportStatus = "ACTIVE"
	ScheduledReportStatusInactive ScheduledReportStatus = "INACTIVE"
	ScheduledReportStatusPaused   ScheduledReportStatus = "PAUSED"
)

func ParseScheduledReportStatus(raw string) (ScheduledReportStatus, error) {
	switch status := ScheduledReportStatus(raw); status {
	case ScheduledReportStatusActive, ScheduledReportStatusInactive, ScheduledReportStatusPaused:
		return status, nil
	}
	return "", fmt.Errorf("invalid ScheduledReportStatus status: %s", raw)
}

func (s ScheduledReportStatus) String() string {
	return string(s)
}

func (s ScheduledReportStatus) IsActive() bool {
	return s == ScheduledReportStatusActive
}

func (s ScheduledReportStatus) IsInactive() bool {
	return s == ScheduledReportStatusInactive
}

func (s ScheduledReportStatus) IsPaused() bool {
	return s == ScheduledReportStatusPaused
}

// ExportJobStatus is the processing state of an export job.
type ExportJobStatus string

const (
	ExportJobStatusPending    ExportJobStatus = "PENDING"
	ExportJobStatusProcessing ExportJobStatus = "PROCESSING"
	ExportJobStatusCompleted  ExportJobStatus = "COMPLETED"
	ExportJobStatusFailed     ExportJobStatus = "FAILED"
	ExportJobStatusCancelled  ExportJobStatus = "CANCELLED"
)

func ParseExportJobStatus(raw string) (ExportJobStatus, error) {
	switch status := ExportJobStatus(raw); status {
	case ExportJobStatusPending, ExportJobStatusProcessing, ExportJobStatusCompleted,
		ExportJobStatusFailed, ExportJobStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("invalid ExportJobStatus status: %s", raw)
}

func (s ExportJobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no worker will touch the job again without a retry.
func (s ExportJobStatus) IsTerminal() bool {
	return s == ExportJobStatusCompleted || s == ExportJobStatusFailed || s == ExportJobStatusCancelled
}
