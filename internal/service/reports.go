package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/policy"
	"github.com/iago/reportflow/internal/repository"
	"github.com/iago/reportflow/internal/validation"
)

type CreateReportInput struct {
	Title          string
	Description    string
	Config         *domain.ReportConfig
	Content        json.RawMessage
	IsPublic       bool
	CreatedBy      domain.ID
	OrganizationID domain.ID
	Metadata       map[string]any
}

// UpdateReportInput carries a partial update; nil fields are left unchanged.
type UpdateReportInput struct {
	Title       *string
	Description *string
	IsPublic    *bool
	Config      *domain.ReportConfig
	Content     json.RawMessage
	Metadata    map[string]any
}

type ReportService struct {
	repo   repository.ReportRepository
	events EventSink
}

func NewReportService(repo repository.ReportRepository, events EventSink) *ReportService {
	return &ReportService{repo: repo, events: events}
}

func (s *ReportService) Create(ctx context.Context, input CreateReportInput) (*domain.Report, error) {
	config := domain.DefaultReportConfig()
	if input.Config != nil {
		config = *input.Config
	}
	return s.CreateFromParams(ctx, domain.NewReportParams{
		Title:          input.Title,
		Description:    input.Description,
		Config:         config,
		Content:        input.Content,
		IsPublic:       input.IsPublic,
		CreatedBy:      input.CreatedBy,
		OrganizationID: input.OrganizationID,
		Metadata:       input.Metadata,
	})
}

// CreateFromParams creates a DRAFT report after checking content policy and
// title uniqueness within the organization.
func (s *ReportService) CreateFromParams(ctx context.Context, params domain.NewReportParams) (*domain.Report, error) {
	if err := checkContent(params.Content); err != nil {
		return nil, err
	}
	report, err := domain.NewReport(params)
	if err != nil {
		return nil, err
	}
	if err := s.ensureTitleAvailable(ctx, report.OrganizationID(), report.Title(), domain.ID{}); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, report); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}
	publish(ctx, s.events, report)
	return report, nil
}

func (s *ReportService) Get(ctx context.Context, id domain.ID) (*domain.Report, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *ReportService) List(ctx context.Context, filter repository.ListFilter) ([]*domain.Report, int, error) {
	return s.repo.List(ctx, filter)
}

// Update applies the non-nil fields of input in one save. Nothing is
// persisted when any field is rejected.
func (s *ReportService) Update(ctx context.Context, id domain.ID, input UpdateReportInput) (*domain.Report, error) {
	return s.mutate(ctx, id, func(report *domain.Report) error {
		if input.Title != nil {
			if err := report.UpdateTitle(*input.Title); err != nil {
				return err
			}
			if err := s.ensureTitleAvailable(ctx, report.OrganizationID(), report.Title(), report.ID()); err != nil {
				return err
			}
		}
		if input.Description != nil {
			if err := report.UpdateDescription(*input.Description); err != nil {
				return err
			}
		}
		if input.IsPublic != nil {
			if err := report.UpdateVisibility(*input.IsPublic); err != nil {
				return err
			}
		}
		if input.Config != nil {
			if err := report.UpdateConfig(*input.Config); err != nil {
				return err
			}
		}
		if input.Content != nil {
			if err := checkContent(input.Content); err != nil {
				return err
			}
			if err := report.UpdateContent(input.Content); err != nil {
				return err
			}
		}
		if input.Metadata != nil {
			if err := report.UpdateMetadata(input.Metadata); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ReportService) Publish(ctx context.Context, id domain.ID) (*domain.Report, error) {
	return s.mutate(ctx, id, (*domain.Report).Publish)
}

func (s *ReportService) Archive(ctx context.Context, id domain.ID) (*domain.Report, error) {
	return s.mutate(ctx, id, (*domain.Report).Archive)
}

func (s *ReportService) Restore(ctx context.Context, id domain.ID) (*domain.Report, error) {
	return s.mutate(ctx, id, (*domain.Report).Restore)
}

// Delete removes the report permanently. Archiving is the reversible path.
func (s *ReportService) Delete(ctx context.Context, id domain.ID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete report %s: %w", id, err)
	}
	return nil
}

func (s *ReportService) mutate(ctx context.Context, id domain.ID, change func(*domain.Report) error) (*domain.Report, error) {
	report, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", id, err)
	}
	if err := change(report); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, report); err != nil {
		return nil, fmt.Errorf("save report %s: %w", id, err)
	}
	publish(ctx, s.events, report)
	return report, nil
}

func (s *ReportService) ensureTitleAvailable(ctx context.Context, organizationID domain.ID, title string, excludeID domain.ID) error {
	taken, err := s.repo.ExistsByTitle(ctx, organizationID, title, excludeID)
	if err != nil {
		return fmt.Errorf("check report title: %w", err)
	}
	if taken {
		return domain.NewRuleViolation(domain.RuleReportTitleTaken, "a report titled %q already exists", title)
	}
	return nil
}

func checkContent(content json.RawMessage) error {
	err := policy.EnforceContentPolicy(content)
	var policyErr *policy.PolicyViolationError
	if errors.As(err, &policyErr) {
		return &validation.Error{Field: "content", Message: policyErr.Error()}
	}
	return err
}
