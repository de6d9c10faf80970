package service

import (
	"context"
	"fmt"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/repository"
)

type CreateTemplateInput struct {
	Name            string
	Description     string
	Type            domain.TemplateType
	Category        string
	Config          *domain.ReportConfig
	IsSystem        bool
	Tags            []string
	CreatedBy       domain.ID
	OrganizationID  domain.ID
	PreviewImageURL string
}

type UpdateTemplateInput struct {
	Name            *string
	Description     *string
	Config          *domain.ReportConfig
	PreviewImageURL *string
	// AsSystem routes renames of system templates through the
	// administrative path.
	AsSystem bool
}

type InstantiateTemplateInput struct {
	Title          string
	CreatedBy      domain.ID
	OrganizationID domain.ID
}

type TemplateService struct {
	repo    repository.TemplateRepository
	reports *ReportService
	events  EventSink
}

func NewTemplateService(repo repository.TemplateRepository, reports *ReportService, events EventSink) *TemplateService {
	return &TemplateService{repo: repo, reports: reports, events: events}
}

func (s *TemplateService) Create(ctx context.Context, input CreateTemplateInput) (*domain.ReportTemplate, error) {
	config := domain.DefaultReportConfig()
	if input.Config != nil {
		config = *input.Config
	}
	template, err := domain.NewReportTemplate(domain.NewReportTemplateParams{
		Name:            input.Name,
		Description:     input.Description,
		Type:            input.Type,
		Category:        input.Category,
		Config:          config,
		IsSystem:        input.IsSystem,
		Tags:            input.Tags,
		CreatedBy:       input.CreatedBy,
		OrganizationID:  input.OrganizationID,
		PreviewImageURL: input.PreviewImageURL,
	})
	if err != nil {
		return nil, err
	}
	if err := s.ensureNameAvailable(ctx, template.OrganizationID(), template.Name(), domain.ID{}); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, template); err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}
	publish(ctx, s.events, template)
	return template, nil
}

func (s *TemplateService) Get(ctx context.Context, id domain.ID) (*domain.ReportTemplate, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *TemplateService) List(ctx context.Context, filter repository.ListFilter) ([]*domain.ReportTemplate, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *TemplateService) ListActive(ctx context.Context, organizationID domain.ID) ([]*domain.ReportTemplate, error) {
	return s.repo.ListActive(ctx, organizationID)
}

func (s *TemplateService) Update(ctx context.Context, id domain.ID, input UpdateTemplateInput) (*domain.ReportTemplate, error) {
	return s.mutate(ctx, id, func(template *domain.ReportTemplate) error {
		if input.Name != nil {
			rename := template.UpdateName
			if input.AsSystem {
				rename = template.UpdateNameAsSystem
			}
			if err := rename(*input.Name); err != nil {
				return err
			}
			if err := s.ensureNameAvailable(ctx, template.OrganizationID(), template.Name(), template.ID()); err != nil {
				return err
			}
		}
		if input.Description != nil {
			if err := template.UpdateDescription(*input.Description); err != nil {
				return err
			}
		}
		if input.Config != nil {
			if err := template.UpdateDefinition(*input.Config); err != nil {
				return err
			}
		}
		if input.PreviewImageURL != nil {
			if err := template.UpdatePreviewImage(*input.PreviewImageURL); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *TemplateService) AddTag(ctx context.Context, id domain.ID, tag string) (*domain.ReportTemplate, error) {
	return s.mutate(ctx, id, func(template *domain.ReportTemplate) error {
		return template.AddTag(tag)
	})
}

func (s *TemplateService) RemoveTag(ctx context.Context, id domain.ID, tag string) (*domain.ReportTemplate, error) {
	return s.mutate(ctx, id, func(template *domain.ReportTemplate) error {
		template.RemoveTag(tag)
		return nil
	})
}

func (s *TemplateService) Activate(ctx context.Context, id domain.ID) (*domain.ReportTemplate, error) {
	return s.mutate(ctx, id, func(template *domain.ReportTemplate) error {
		template.Activate()
		return nil
	})
}

func (s *TemplateService) Deactivate(ctx context.Context, id domain.ID) (*domain.ReportTemplate, error) {
	return s.mutate(ctx, id, (*domain.ReportTemplate).Deactivate)
}

// Delete removes a non-system template.
func (s *TemplateService) Delete(ctx context.Context, id domain.ID) error {
	template, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load template %s: %w", id, err)
	}
	if template.IsSystem() {
		return domain.NewRuleViolation(domain.RuleSystemTemplateImmutable, "system template %s cannot be deleted", id)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	return nil
}

// Instantiate creates a DRAFT report from the template and counts the use.
// The usage is only recorded once the report has been saved.
func (s *TemplateService) Instantiate(ctx context.Context, id domain.ID, input InstantiateTemplateInput) (*domain.Report, error) {
	template, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", id, err)
	}
	params, err := template.ReportParams(input.Title, input.CreatedBy, input.OrganizationID)
	if err != nil {
		return nil, err
	}
	report, err := s.reports.CreateFromParams(ctx, params)
	if err != nil {
		return nil, err
	}

	template.IncrementUsage()
	if err := s.repo.Save(ctx, template); err != nil {
		return nil, fmt.Errorf("record template usage %s: %w", id, err)
	}
	publish(ctx, s.events, template)
	return report, nil
}

func (s *TemplateService) mutate(ctx context.Context, id domain.ID, change func(*domain.ReportTemplate) error) (*domain.ReportTemplate, error) {
	template, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", id, err)
	}
	if err := change(template); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, template); err != nil {
		return nil, fmt.Errorf("save template %s: %w", id, err)
	}
	publish(ctx, s.events, template)
	return template, nil
}

func (s *TemplateService) ensureNameAvailable(ctx context.Context, organizationID domain.ID, name string, excludeID domain.ID) error {
	taken, err := s.repo.ExistsByName(ctx, organizationID, name, excludeID)
	if err != nil {
		return fmt.Errorf("check template name: %w", err)
	}
	if taken {
		return domain.NewRuleViolation(domain.RuleTemplateNameTaken, "a template named %q already exists", name)
	}
	return nil
}
