package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/repository"
)

const recordExecutionAttempts = 3

type CreateScheduleInput struct {
	Name           string
	Description    string
	ReportID       domain.ID
	ScheduleConfig domain.ScheduleConfig
	DeliveryConfig domain.DeliveryConfig
	Status         domain.ScheduledReportStatus
	CreatedBy      domain.ID
	OrganizationID domain.ID
}

type UpdateScheduleInput struct {
	Name           *string
	Description    *string
	ScheduleConfig *domain.ScheduleConfig
	DeliveryConfig *domain.DeliveryConfig
}

type ScheduleService struct {
	repo    repository.ScheduledReportRepository
	reports repository.ReportRepository
	events  EventSink
}

func NewScheduleService(repo repository.ScheduledReportRepository, reports repository.ReportRepository, events EventSink) *ScheduleService {
	return &ScheduleService{repo: repo, reports: reports, events: events}
}

// Create schedules an existing, non-archived report.
func (s *ScheduleService) Create(ctx context.Context, input CreateScheduleInput) (*domain.ScheduledReport, error) {
	report, err := s.reports.FindByID(ctx, input.ReportID)
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", input.ReportID, err)
	}
	if report.Status().IsArchived() {
		return nil, domain.NewRuleViolation(domain.RuleArchivedReportImmutable, "report %s is archived and cannot be scheduled", report.ID())
	}

	schedule, err := domain.NewScheduledReport(domain.NewScheduledReportParams{
		Name:           input.Name,
		Description:    input.Description,
		ReportID:       input.ReportID,
		ScheduleConfig: input.ScheduleConfig,
		DeliveryConfig: input.DeliveryConfig,
		Status:         input.Status,
		CreatedBy:      input.CreatedBy,
		OrganizationID: input.OrganizationID,
	})
	if err != nil {
		return nil, err
	}
	if err := s.ensureNameAvailable(ctx, schedule.OrganizationID(), schedule.Name(), domain.ID{}); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("save scheduled report: %w", err)
	}
	publish(ctx, s.events, schedule)
	return schedule, nil
}

func (s *ScheduleService) Get(ctx context.Context, id domain.ID) (*domain.ScheduledReport, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *ScheduleService) List(ctx context.Context, filter repository.ListFilter) ([]*domain.ScheduledReport, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *ScheduleService) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledReport, error) {
	return s.repo.ListDue(ctx, now, limit)
}

func (s *ScheduleService) Update(ctx context.Context, id domain.ID, input UpdateScheduleInput) (*domain.ScheduledReport, error) {
	return s.mutate(ctx, id, func(schedule *domain.ScheduledReport) error {
		if input.Name != nil {
			if err := schedule.UpdateName(*input.Name); err != nil {
				return err
			}
			if err := s.ensureNameAvailable(ctx, schedule.OrganizationID(), schedule.Name(), schedule.ID()); err != nil {
				return err
			}
		}
		if input.Description != nil {
			if err := schedule.UpdateDescription(*input.Description); err != nil {
				return err
			}
		}
		if input.ScheduleConfig != nil {
			if err := schedule.UpdateScheduleConfig(*input.ScheduleConfig); err != nil {
				return err
			}
		}
		if input.DeliveryConfig != nil {
			if err := schedule.UpdateDeliveryConfig(*input.DeliveryConfig); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ScheduleService) Activate(ctx context.Context, id domain.ID) (*domain.ScheduledReport, error) {
	return s.setStatus(ctx, id, (*domain.ScheduledReport).Activate)
}

func (s *ScheduleService) Deactivate(ctx context.Context, id domain.ID) (*domain.ScheduledReport, error) {
	return s.setStatus(ctx, id, (*domain.ScheduledReport).Deactivate)
}

func (s *ScheduleService) Pause(ctx context.Context, id domain.ID) (*domain.ScheduledReport, error) {
	return s.setStatus(ctx, id, (*domain.ScheduledReport).Pause)
}

func (s *ScheduleService) Resume(ctx context.Context, id domain.ID) (*domain.ScheduledReport, error) {
	return s.setStatus(ctx, id, (*domain.ScheduledReport).Resume)
}

// RecordExecution counts one run and rearms the next execution time. A save
// that loses to a concurrent edit is reapplied on a fresh copy.
func (s *ScheduleService) RecordExecution(ctx context.Context, id domain.ID, success bool) (*domain.ScheduledReport, error) {
	var (
		schedule *domain.ScheduledReport
		err      error
	)
	for attempt := 0; attempt < recordExecutionAttempts; attempt++ {
		schedule, err = s.mutate(ctx, id, func(schedule *domain.ScheduledReport) error {
			return schedule.MarkExecuted(success)
		})
		if !errors.Is(err, repository.ErrConcurrentModification) {
			return schedule, err
		}
	}
	return nil, err
}

func (s *ScheduleService) Delete(ctx context.Context, id domain.ID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete scheduled report %s: %w", id, err)
	}
	return nil
}

func (s *ScheduleService) setStatus(ctx context.Context, id domain.ID, change func(*domain.ScheduledReport)) (*domain.ScheduledReport, error) {
	return s.mutate(ctx, id, func(schedule *domain.ScheduledReport) error {
		change(schedule)
		return nil
	})
}

func (s *ScheduleService) mutate(ctx context.Context, id domain.ID, change func(*domain.ScheduledReport) error) (*domain.ScheduledReport, error) {
	schedule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load scheduled report %s: %w", id, err)
	}
	if err := change(schedule); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("save scheduled report %s: %w", id, err)
	}
	publish(ctx, s.events, schedule)
	return schedule, nil
}

func (s *ScheduleService) ensureNameAvailable(ctx context.Context, organizationID domain.ID, name string, excludeID domain.ID) error {
	taken, err := s.repo.ExistsByName(ctx, organizationID, name, excludeID)
	if err != nil {
		return fmt.Errorf("check scheduled report name: %w", err)
	}
	if taken {
		return domain.NewRuleViolation(domain.RuleScheduledReportNameTaken, "a scheduled report named %q already exists", name)
	}
	return nil
}
