package domain

import (
	"encoding/json"
	"maps"
	"strings"
	"time"

	"github.com/iago/reportflow/internal/validation"
)

const (
	maxTitleLength       = 255
	maxDescriptionLength = 1000

	reportAggregate = "report"
)

// Report is the aggregate root for an authored report.
type Report struct {
	eventBuffer
	versioned

	id             ID
	title          string
	description    string
	config         ReportConfig
	content        json.RawMessage
	status         ReportStatus
	isPublic       bool
	templateID     ID
	createdBy      ID
	organizationID ID
	metadata       map[string]any
	createdAt      time.Time
	updatedAt      time.Time
	publishedAt    *time.Time
	archivedAt     *time.Time
}

type NewReportParams struct {
	Title          string
	Description    string
	Config         ReportConfig
	Content        json.RawMessage
	IsPublic       bool
	TemplateID     ID
	CreatedBy      ID
	OrganizationID ID
	Metadata       map[string]any
}

// ReportSnapshot is the persisted shape of a Report.
type ReportSnapshot struct {
	ID             ID
	Title          string
	Description    string
	Config         ReportConfig
	Content        json.RawMessage
	Status         ReportStatus
	IsPublic       bool
	TemplateID     ID
	CreatedBy      ID
	OrganizationID ID
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PublishedAt    *time.Time
	ArchivedAt     *time.Time
	Version        int
}

// NewReport validates params and creates a DRAFT report.
func NewReport(params NewReportParams) (*Report, error) {
	title := strings.TrimSpace(params.Title)
	if err := validation.Length("title", title, maxTitleLength); err != nil {
		return nil, err
	}
	if err := validation.MaxLength("description", params.Description, maxDescriptionLength); err != nil {
		return nil, err
	}
	if params.CreatedBy.IsZero() {
		return nil, &validation.Error{Field: "createdBy", Message: "createdBy is required"}
	}
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}

	now := nowFunc()
	report := &Report{
		id:             NewID(),
		title:          title,
		description:    params.Description,
		config:         params.Config.Clone(),
		content:        append(json.RawMessage(nil), params.Content...),
		status:         ReportStatusDraft,
		isPublic:       params.IsPublic,
		templateID:     params.TemplateID,
		createdBy:      params.CreatedBy,
		organizationID: params.OrganizationID,
		metadata:       cloneMetadata(params.Metadata),
		createdAt:      now,
		updatedAt:      now,
	}
	report.record(Event{
		Name:          "report.created",
		AggregateType: reportAggregate,
		AggregateID:   report.id,
		NewValue:      title,
		OccurredAt:    now,
	})
	return report, nil
}

// ReconstituteReport rebuilds a report from storage without validation.
func ReconstituteReport(s ReportSnapshot) *Report {
	return &Report{
		id:             s.ID,
		title:          s.Title,
		description:    s.Description,
		config:         s.Config.Clone(),
		content:        append(json.RawMessage(nil), s.Content...),
		status:         s.Status,
		isPublic:       s.IsPublic,
		templateID:     s.TemplateID,
		createdBy:      s.CreatedBy,
		organizationID: s.OrganizationID,
		metadata:       cloneMetadata(s.Metadata),
		createdAt:      s.CreatedAt,
		updatedAt:      s.UpdatedAt,
		publishedAt:    cloneTime(s.PublishedAt),
		archivedAt:     cloneTime(s.ArchivedAt),
		versioned:      versioned{version: s.Version},
	}
}

func (r *Report) Snapshot() ReportSnapshot {
	return ReportSnapshot{
		ID:             r.id,
		Title:          r.title,
		Description:    r.description,
		Config:         r.config.Clone(),
		Content:        append(json.RawMessage(nil), r.content...),
		Status:         r.status,
		IsPublic:       r.isPublic,
		TemplateID:     r.templateID,
		CreatedBy:      r.createdBy,
		OrganizationID: r.organizationID,
		Metadata:       cloneMetadata(r.metadata),
		CreatedAt:      r.createdAt,
		UpdatedAt:      r.updatedAt,
		PublishedAt:    cloneTime(r.publishedAt),
		ArchivedAt:     cloneTime(r.archivedAt),
		Version:        r.version,
	}
}

func (r *Report) ID() ID                   { return r.id }
func (r *Report) Title() string            { return r.title }
func (r *Report) Description() string      { return r.description }
func (r *Report) Config() ReportConfig     { return r.config.Clone() }
func (r *Report) Content() json.RawMessage { return append(json.RawMessage(nil), r.content...) }
func (r *Report) Status() ReportStatus     { return r.status }
func (r *Report) IsPublic() bool           { return r.isPublic }
func (r *Report) TemplateID() ID           { return r.templateID }
func (r *Report) CreatedBy() ID            { return r.createdBy }
func (r *Report) OrganizationID() ID       { return r.organizationID }
func (r *Report) Metadata() map[string]any { return cloneMetadata(r.metadata) }
func (r *Report) CreatedAt() time.Time     { return r.createdAt }
func (r *Report) UpdatedAt() time.Time     { return r.updatedAt }
func (r *Report) PublishedAt() *time.Time  { return cloneTime(r.publishedAt) }
func (r *Report) ArchivedAt() *time.Time   { return cloneTime(r.archivedAt) }

func (r *Report) UpdateTitle(title string) error {
	if err := r.ensureNotArchived(); err != nil {
		return err
	}
	title = strings.TrimSpace(title)
	if err := validation.Length("title", title, maxTitleLength); err != nil {
		return err
	}
	old := r.title
	r.title = title
	r.touch("report.title_updated", "title", old, title)
	return nil
}

func (r *Report) UpdateDescription(description string) error {
	if err := r.ensureNotArchived(); err != nil {
		return err
	}
	if err := validation.MaxLength("description", description, maxDescriptionLength); err != nil {
		return err
	}
	old := r.description
	r.description = description
	r.touch("report.description_updated", "description", old, description)
	return nil
}

func (r *Report) UpdateVisibility(isPublic bool) error {
	if err := r.ensureNotArchived(); err != nil {
		return err
	}
	old := r.isPublic
	r.isPublic = isPublic
	r.touch("report.visibility_updated", "isPublic", old, isPublic)
	return nil
}

func (r *Report) UpdateMetadata(metadata map[string]any) error {
	if err := r.ensureNotArchived(); err != nil {
		return err
	}
	old := r.metadata
	r.metadata = cloneMetadata(metadata)
	r.touch("report.metadata_updated", "metadata", old, cloneMetadata(metadata))
	return nil
}

func (r *Report) UpdateConfig(config ReportConfig) error {
	if err := r.ensureNotArchived(); err != nil {
		return err
	}
	if r.status.IsPublished() {
		return violation(RulePublishedReportConfigImmutable, "config of published report %s cannot be changed", r.id)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	old := r.config
	r.config = config.Clone()
	r.touch("report.config_updated", "config", old, config.Clone())
	return nil
}

func (r *Report) UpdateContent(content json.RawMessage) error {
	if err := r.ensureNotArchived(); err != nil {
		return err
	}
	if r.status.IsPublished() {
		return violation(RulePublishedReportContentImmutable, "content of published report %s cannot be changed", r.id)
	}
	old := r.content
	r.content = append(json.RawMessage(nil), content...)
	r.touch("report.content_updated", "content", old, append(json.RawMessage(nil), content...))
	return nil
}

// Publish moves a DRAFT with a publishable config to PUBLISHED.
func (r *Report) Publish() error {
	if !r.status.CanTransitionTo(ReportStatusPublished) {
		return violation(RuleInvalidStatusForPublish, "report %s cannot be published from status %s", r.id, r.status)
	}
	if !r.config.IsValidForPublishing() {
		return violation(RuleInvalidConfigForPublish, "report %s config is not valid for publishing", r.id)
	}
	old := r.status
	r.status = ReportStatusPublished
	r.touch("report.published", "status", old, r.status)
	published := r.updatedAt
	r.publishedAt = &published
	return nil
}

func (r *Report) Archive() error {
	if r.status.IsArchived() {
		return violation(RuleReportAlreadyArchived, "report %s is already archived", r.id)
	}
	old := r.status
	r.status = ReportStatusArchived
	r.touch("report.archived", "status", old, r.status)
	archived := r.updatedAt
	r.archivedAt = &archived
	return nil
}

// Restore brings an ARCHIVED report back as PUBLISHED.
func (r *Report) Restore() error {
	if !r.status.IsArchived() {
		return violation(RuleInvalidStatusForRestore, "report %s is not archived", r.id)
	}
	old := r.status
	r.status = ReportStatusPublished
	r.archivedAt = nil
	r.touch("report.restored", "status", old, r.status)
	return nil
}

func (r *Report) ensureNotArchived() error {
	if r.status.IsArchived() {
		return violation(RuleArchivedReportImmutable, "archived report %s cannot be modified", r.id)
	}
	return nil
}

func (r *Report) touch(name, field string, oldValue, newValue any) {
	r.updatedAt = nowFunc()
	r.record(Event{
		Name:          name,
		AggregateType: reportAggregate,
		AggregateID:   r.id,
		Field:         field,
		OldValue:      oldValue,
		NewValue:      newValue,
		OccurredAt:    r.updatedAt,
	})
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return map[string]any{}
	}
	return maps.Clone(metadata)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
