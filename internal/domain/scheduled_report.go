package domain

import (
	"strings"
	"time"

	"github.com/iago/reportflow/internal/validation"
)

const scheduledReportAggregate = "scheduled_report"

// ScheduledReport is the aggregate root for recurring generation and delivery
// of a report.
type ScheduledReport struct {
	eventBuffer
	versioned

	id              ID
	name            string
	description     string
	reportID        ID
	scheduleConfig  ScheduleConfig
	deliveryConfig  DeliveryConfig
	status          ScheduledReportStatus
	executionCount  int
	failureCount    int
	lastExecutedAt  *time.Time
	nextExecutionAt time.Time
	createdBy       ID
	organizationID  ID
	createdAt       time.Time
	updatedAt       time.Time
}

type NewScheduledReportParams struct {
	Name           string
	Description    string
	ReportID       ID
	ScheduleConfig ScheduleConfig
	DeliveryConfig DeliveryConfig
	// Status defaults to ACTIVE.
	Status         ScheduledReportStatus
	CreatedBy      ID
	OrganizationID ID
}

type ScheduledReportSnapshot struct {
	ID              ID
	Name            string
	Description     string
	ReportID        ID
	ScheduleConfig  ScheduleConfig
	DeliveryConfig  DeliveryConfig
	Status          ScheduledReportStatus
	ExecutionCount  int
	FailureCount    int
	LastExecutedAt  *time.Time
	NextExecutionAt time.Time
	CreatedBy       ID
	OrganizationID  ID
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int
}

func NewScheduledReport(params NewScheduledReportParams) (*ScheduledReport, error) {
	name := strings.TrimSpace(params.Name)
	if err := validation.Length("name", name, maxTitleLength); err != nil {
		return nil, err
	}
	if err := validation.MaxLength("description", params.Description, maxDescriptionLength); err != nil {
		return nil, err
	}
	if params.ReportID.IsZero() {
		return nil, &validation.Error{Field: "reportId", Message: "reportId is required"}
	}
	if params.CreatedBy.IsZero() {
		return nil, &validation.Error{Field: "createdBy", Message: "createdBy is required"}
	}
	if err := params.DeliveryConfig.Validate(); err != nil {
		return nil, err
	}
	status := params.Status
	if status == "" {
		status = ScheduledReportStatusActive
	}
	if _, err := ParseScheduledReportStatus(string(status)); err != nil {
		return nil, &validation.Error{Field: "status", Message: err.Error()}
	}

	now := nowFunc()
	next, err := NextExecution(params.ScheduleConfig, now)
	if err != nil {
		return nil, err
	}

	scheduled := &ScheduledReport{
		id:              NewID(),
		name:            name,
		description:     params.Description,
		reportID:        params.ReportID,
		scheduleConfig:  params.ScheduleConfig.clone(),
		deliveryConfig:  params.DeliveryConfig.clone(),
		status:          status,
		nextExecutionAt: next,
		createdBy:       params.CreatedBy,
		organizationID:  params.OrganizationID,
		createdAt:       now,
		updatedAt:       now,
	}
	scheduled.record(Event{
		Name:          "scheduled_report.created",
		AggregateType: scheduledReportAggregate,
		AggregateID:   scheduled.id,
		NewValue:      name,
		OccurredAt:    now,
	})
	return scheduled, nil
}

func ReconstituteScheduledReport(s ScheduledReportSnapshot) *ScheduledReport {
	return &ScheduledReport{
		id:              s.ID,
		name:            s.Name,
		description:     s.Description,
		reportID:        s.ReportID,
		scheduleConfig:  s.ScheduleConfig.clone(),
		deliveryConfig:  s.DeliveryConfig.clone(),
		status:          s.Status,
		executionCount:  s.ExecutionCount,
		failureCount:    s.FailureCount,
		lastExecutedAt:  cloneTime(s.LastExecutedAt),
		nextExecutionAt: s.NextExecutionAt,
		createdBy:       s.CreatedBy,
		organizationID:  s.OrganizationID,
		createdAt:       s.CreatedAt,
		updatedAt:       s.UpdatedAt,
		versioned:       versioned{version: s.Version},
	}
}

func (s *ScheduledReport) Snapshot() ScheduledReportSnapshot {
	return ScheduledReportSnapshot{
		ID:              s.id,
		Name:            s.name,
		Description:     s.description,
		ReportID:        s.reportID,
		ScheduleConfig:  s.scheduleConfig.clone(),
		DeliveryConfig:  s.deliveryConfig.clone(),
		Status:          s.status,
		ExecutionCount:  s.executionCount,
		FailureCount:    s.failureCount,
		LastExecutedAt:  cloneTime(s.lastExecutedAt),
		NextExecutionAt: s.nextExecutionAt,
		CreatedBy:       s.createdBy,
		OrganizationID:  s.organizationID,
		CreatedAt:       s.createdAt,
		UpdatedAt:       s.updatedAt,
		Version:         s.version,
	}
}

func (s *ScheduledReport) ID() ID                         { return s.id }
func (s *ScheduledReport) Name() string                   { return s.name }
func (s *ScheduledReport) Description() string            { return s.description }
func (s *ScheduledReport) ReportID() ID                   { return s.reportID }
func (s *ScheduledReport) ScheduleConfig() ScheduleConfig { return s.scheduleConfig.clone() }
func (s *ScheduledReport) DeliveryConfig() DeliveryConfig { return s.deliveryConfig.clone() }
func (s *ScheduledReport) Status() ScheduledReportStatus  { return s.status }
func (s *ScheduledReport) ExecutionCount() int            { return s.executionCount }
func (s *ScheduledReport) FailureCount() int              { return s.failureCount }
func (s *ScheduledReport) LastExecutedAt() *time.Time     { return cloneTime(s.lastExecutedAt) }
func (s *ScheduledReport) NextExecutionAt() time.Time     { return s.nextExecutionAt }
func (s *ScheduledReport) CreatedBy() ID                  { return s.createdBy }
func (s *ScheduledReport) OrganizationID() ID             { return s.organizationID }
func (s *ScheduledReport) CreatedAt() time.Time           { return s.createdAt }
func (s *ScheduledReport) UpdatedAt() time.Time           { return s.updatedAt }

func (s *ScheduledReport) UpdateName(name string) error {
	name = strings.TrimSpace(name)
	if err := validation.Length("name", name, maxTitleLength); err != nil {
		return err
	}
	old := s.name
	s.name = name
	s.touch("scheduled_report.name_updated", "name", old, name)
	return nil
}

func (s *ScheduledReport) UpdateDescription(description string) error {
	if err := validation.MaxLength("description", description, maxDescriptionLength); err != nil {
		return err
	}
	old := s.description
	s.description = description
	s.touch("scheduled_report.description_updated", "description", old, description)
	return nil
}

// UpdateScheduleConfig replaces the schedule and re-arms nextExecutionAt.
func (s *ScheduledReport) UpdateScheduleConfig(cfg ScheduleConfig) error {
	next, err := NextExecution(cfg, nowFunc())
	if err != nil {
		return err
	}
	old := s.scheduleConfig
	s.scheduleConfig = cfg.clone()
	s.nextExecutionAt = next
	s.touch("scheduled_report.schedule_updated", "scheduleConfig", old, cfg.clone())
	return nil
}

func (s *ScheduledReport) UpdateDeliveryConfig(cfg DeliveryConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	old := s.deliveryConfig
	s.deliveryConfig = cfg.clone()
	s.touch("scheduled_report.delivery_updated", "deliveryConfig", old, cfg.clone())
	return nil
}

// MarkExecuted records one run and arms the next one from now.
func (s *ScheduledReport) MarkExecuted(success bool) error {
	now := nowFunc()
	next, err := NextExecution(s.scheduleConfig, now)
	if err != nil {
		return err
	}
	s.executionCount++
	if !success {
		s.failureCount++
	}
	s.lastExecutedAt = &now
	old := s.nextExecutionAt
	s.nextExecutionAt = next
	s.touch("scheduled_report.executed", "nextExecutionAt", old, next)
	return nil
}

func (s *ScheduledReport) Activate() {
	s.setStatus(ScheduledReportStatusActive)
}

func (s *ScheduledReport) Deactivate() {
	s.setStatus(ScheduledReportStatusInactive)
}

func (s *ScheduledReport) Pause() {
	s.setStatus(ScheduledReportStatusPaused)
}

func (s *ScheduledReport) Resume() {
	s.setStatus(ScheduledReportStatusActive)
}

// SuccessRate is the share of executions that did not fail; 1.0 before the
// first execution.
func (s *ScheduledReport) SuccessRate() float64 {
	if s.executionCount == 0 {
		return 1.0
	}
	return float64(s.executionCount-s.failureCount) / float64(s.executionCount)
}

// IsDue reports whether an active schedule should fire at now.
func (s *ScheduledReport) IsDue(now time.Time) bool {
	return s.status.IsActive() && !s.nextExecutionAt.After(now)
}

func (s *ScheduledReport) setStatus(status ScheduledReportStatus) {
	if s.status == status {
		return
	}
	old := s.status
	s.status = status
	s.touch("scheduled_report.status_changed", "status", old, status)
}

func (s *ScheduledReport) touch(name, field string, oldValue, newValue any) {
	s.updatedAt = nowFunc()
	s.record(Event{
		Name:          name,
		AggregateType: scheduledReportAggregate,
		AggregateID:   s.id,
		Field:         field,
		OldValue:      oldValue,
		NewValue:      newValue,
		OccurredAt:    s.updatedAt,
	})
}
