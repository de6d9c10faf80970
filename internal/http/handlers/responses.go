package handlers

import (
	"encoding/json"
	"time"

	"github.com/iago/reportflow/internal/domain"
)

type reportResponse struct {
	ID             string              `json:"id"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Config         domain.ReportConfig `json:"config"`
	Content        json.RawMessage     `json:"content,omitempty"`
	Status         domain.ReportStatus `json:"status"`
	IsPublic       bool                `json:"isPublic"`
	TemplateID     string              `json:"templateId,omitempty"`
	CreatedBy      string              `json:"createdBy"`
	OrganizationID string              `json:"organizationId,omitempty"`
	Metadata       map[string]any      `json:"metadata,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	PublishedAt    *time.Time          `json:"publishedAt,omitempty"`
	ArchivedAt     *time.Time          `json:"archivedAt,omitempty"`
	Version        int                 `json:"version"`
}

func newReportResponse(report *domain.Report) reportResponse {
	return reportResponse{
		ID:             report.ID().String(),
		Title:          report.Title(),
		Description:    report.Description(),
		Config:         report.Config(),
		Content:        report.Content(),
		Status:         report.Status(),
		IsPublic:       report.IsPublic(),
		TemplateID:     report.TemplateID().String(),
		CreatedBy:      report.CreatedBy().String(),
		OrganizationID: report.OrganizationID().String(),
		Metadata:       report.Metadata(),
		CreatedAt:      report.CreatedAt(),
		UpdatedAt:      report.UpdatedAt(),
		PublishedAt:    report.PublishedAt(),
		ArchivedAt:     report.ArchivedAt(),
		Version:        report.Version(),
	}
}

type templateResponse struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	Type            domain.TemplateType  `json:"type"`
	Category        string               `json:"category"`
	Config          domain.ReportConfig  `json:"config"`
	Layout          domain.LayoutConfig  `json:"layout"`
	Styling         domain.StylingConfig `json:"styling"`
	IsSystem        bool                 `json:"isSystem"`
	IsActive        bool                 `json:"isActive"`
	Tags            []string             `json:"tags"`
	UsageCount      int                  `json:"usageCount"`
	LastUsedAt      *time.Time           `json:"lastUsedAt,omitempty"`
	CreatedBy       string               `json:"createdBy"`
	OrganizationID  string               `json:"organizationId,omitempty"`
	PreviewImageURL string               `json:"previewImageUrl,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
	Version         int                  `json:"version"`
}

func newTemplateResponse(template *domain.ReportTemplate) templateResponse {
	tags := template.Tags()
	if tags == nil {
		tags = []string{}
	}
	return templateResponse{
		ID:              template.ID().String(),
		Name:            template.Name(),
		Description:     template.Description(),
		Type:            template.Type(),
		Category:        template.Category(),
		Config:          template.Config(),
		Layout:          template.Layout(),
		Styling:         template.Styling(),
		IsSystem:        template.IsSystem(),
		IsActive:        template.IsActive(),
		Tags:            tags,
		UsageCount:      template.UsageCount(),
		LastUsedAt:      template.LastUsedAt(),
		CreatedBy:       template.CreatedBy().String(),
		OrganizationID:  template.OrganizationID().String(),
		PreviewImageURL: template.PreviewImageURL(),
		CreatedAt:       template.CreatedAt(),
		UpdatedAt:       template.UpdatedAt(),
		Version:         template.Version(),
	}
}

type scheduleResponse struct {
	ID              string                       `json:"id"`
	Name            string                       `json:"name"`
	Description     string                       `json:"description"`
	ReportID        string                       `json:"reportId"`
	ScheduleConfig  domain.ScheduleConfig        `json:"scheduleConfig"`
	DeliveryConfig  domain.DeliveryConfig        `json:"deliveryConfig"`
	Status          domain.ScheduledReportStatus `json:"status"`
	ExecutionCount  int                          `json:"executionCount"`
	FailureCount    int                          `json:"failureCount"`
	SuccessRate     float64                      `json:"successRate"`
	LastExecutedAt  *time.Time                   `json:"lastExecutedAt,omitempty"`
	NextExecutionAt time.Time                    `json:"nextExecutionAt"`
	CreatedBy       string                       `json:"createdBy"`
	OrganizationID  string                       `json:"organizationId,omitempty"`
	CreatedAt       time.Time                    `json:"createdAt"`
	UpdatedAt       time.Time                    `json:"updatedAt"`
	Version         int                          `json:"version"`
}

func newScheduleResponse(schedule *domain.ScheduledReport) scheduleResponse {
	return scheduleResponse{
		ID:              schedule.ID().String(),
		Name:            schedule.Name(),
		Description:     schedule.Description(),
		ReportID:        schedule.ReportID().String(),
		ScheduleConfig:  schedule.ScheduleConfig(),
		DeliveryConfig:  schedule.DeliveryConfig(),
		Status:          schedule.Status(),
		ExecutionCount:  schedule.ExecutionCount(),
		FailureCount:    schedule.FailureCount(),
		SuccessRate:     schedule.SuccessRate(),
		LastExecutedAt:  schedule.LastExecutedAt(),
		NextExecutionAt: schedule.NextExecutionAt(),
		CreatedBy:       schedule.CreatedBy().String(),
		OrganizationID:  schedule.OrganizationID().String(),
		CreatedAt:       schedule.CreatedAt(),
		UpdatedAt:       schedule.UpdatedAt(),
		Version:         schedule.Version(),
	}
}

type exportResponse struct {
	ID                string                 `json:"id"`
	ReportID          string                 `json:"reportId"`
	ScheduledReportID string                 `json:"scheduledReportId,omitempty"`
	Format            domain.ExportFormat    `json:"format"`
	Status            domain.ExportJobStatus `json:"status"`
	UserID            string                 `json:"userId"`
	OrganizationID    string                 `json:"organizationId,omitempty"`
	Options           json.RawMessage        `json:"options,omitempty"`
	DownloadURL       string                 `json:"downloadUrl,omitempty"`
	FileSize          int64                  `json:"fileSize,omitempty"`
	ErrorMessage      string                 `json:"errorMessage,omitempty"`
	StatusURL         string                 `json:"statusUrl"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
	CompletedAt       *time.Time             `json:"completedAt,omitempty"`
	Version           int                    `json:"version"`
}

func newExportResponse(job *domain.ExportJob) exportResponse {
	return exportResponse{
		ID:                job.ID().String(),
		ReportID:          job.ReportID().String(),
		ScheduledReportID: job.ScheduledReportID().String(),
		Format:            job.Format(),
		Status:            job.Status(),
		UserID:            job.UserID().String(),
		OrganizationID:    job.OrganizationID().String(),
		Options:           job.Options(),
		DownloadURL:       job.DownloadURL(),
		FileSize:          job.FileSize(),
		ErrorMessage:      job.ErrorMessage(),
		StatusURL:         exportPath(job.ID()),
		CreatedAt:         job.CreatedAt(),
		UpdatedAt:         job.UpdatedAt(),
		CompletedAt:       job.CompletedAt(),
		Version:           job.Version(),
	}
}

func exportPath(id domain.ID) string {
	return "/v1/exports/" + id.String()
}

func mapSlice[T, R any](items []T, convert func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, convert(item))
	}
	return out
}
