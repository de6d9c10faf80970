package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/iago/reportflow/internal/validation"
)

const (
	MaxTemplateTags   = 10
	maxTagLength      = 50
	templateAggregate = "report_template"
)

// TemplateType is the kind of report a template produces.
type TemplateType string

const (
	TemplateTypeDashboard TemplateType = "DASHBOARD"
	TemplateTypeTable     TemplateType = "TABLE"
	TemplateTypeChart     TemplateType = "CHART"
	TemplateTypeDocument  TemplateType = "DOCUMENT"
	TemplateTypeCustom    TemplateType = "CUSTOM"
)

func ParseTemplateType(raw string) (TemplateType, error) {
	switch t := TemplateType(raw); t {
	case TemplateTypeDashboard, TemplateTypeTable, TemplateTypeChart, TemplateTypeDocument, TemplateTypeCustom:
		return t, nil
	}
	return "", &validation.Error{Field: "type", Message: "invalid TemplateType: " + raw}
}

// ReportTemplate is the aggregate root for a reusable report definition.
type ReportTemplate struct {
	eventBuffer
	versioned

	id              ID
	name            string
	description     string
	templateType    TemplateType
	category        string
	config          ReportConfig
	layout          LayoutConfig
	styling         StylingConfig
	isSystem        bool
	isActive        bool
	tags            []string
	usageCount      int
	lastUsedAt      *time.Time
	createdBy       ID
	organizationID  ID
	previewImageURL string
	createdAt       time.Time
	updatedAt       time.Time
}

type NewReportTemplateParams struct {
	Name            string
	Description     string
	Type            TemplateType
	Category        string
	Config          ReportConfig
	IsSystem        bool
	Tags            []string
	CreatedBy       ID
	OrganizationID  ID
	PreviewImageURL string
}

// ReportTemplateSnapshot is the persisted shape of a ReportTemplate.
type ReportTemplateSnapshot struct {
	ID              ID
	Name            string
	Description     string
	Type            TemplateType
	Category        string
	Config          ReportConfig
	Layout          LayoutConfig
	Styling         StylingConfig
	IsSystem        bool
	IsActive        bool
	Tags            []string
	UsageCount      int
	LastUsedAt      *time.Time
	CreatedBy       ID
	OrganizationID  ID
	PreviewImageURL string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int
}

// NewReportTemplate creates an active template with no recorded usage. The
// template's layout and styling start as the config's.
func NewReportTemplate(params NewReportTemplateParams) (*ReportTemplate, error) {
	name := strings.TrimSpace(params.Name)
	if err := validation.Length("name", name, maxTitleLength); err != nil {
		return nil, err
	}
	if err := validation.MaxLength("description", params.Description, maxDescriptionLength); err != nil {
		return nil, err
	}
	if _, err := ParseTemplateType(string(params.Type)); err != nil {
		return nil, err
	}
	if err := validation.Length("category", params.Category, maxTitleLength); err != nil {
		return nil, err
	}
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}
	if err := validateTags(params.Tags); err != nil {
		return nil, err
	}
	if params.CreatedBy.IsZero() {
		return nil, &validation.Error{Field: "createdBy", Message: "createdBy is required"}
	}
	if params.PreviewImageURL != "" {
		if err := validation.URL("previewImageUrl", params.PreviewImageURL); err != nil {
			return nil, err
		}
	}

	now := nowFunc()
	template := &ReportTemplate{
		id:              NewID(),
		name:            name,
		description:     params.Description,
		templateType:    params.Type,
		category:        params.Category,
		config:          params.Config.Clone(),
		layout:          params.Config.Layout,
		styling:         params.Config.Styling,
		isSystem:        params.IsSystem,
		isActive:        true,
		tags:            dedupeTags(params.Tags),
		createdBy:       params.CreatedBy,
		organizationID:  params.OrganizationID,
		previewImageURL: params.PreviewImageURL,
		createdAt:       now,
		updatedAt:       now,
	}
	template.record(Event{
		Name:          "report_template.created",
		AggregateType: templateAggregate,
		AggregateID:   template.id,
		NewValue:      name,
		OccurredAt:    now,
	})
	return template, nil
}

func ReconstituteReportTemplate(s ReportTemplateSnapshot) *ReportTemplate {
	return &ReportTemplate{
		id:              s.ID,
		name:            s.Name,
		description:     s.Description,
		templateType:    s.Type,
		category:        s.Category,
		config:          s.Config.Clone(),
		layout:          s.Layout,
		styling:         s.Styling,
		isSystem:        s.IsSystem,
		isActive:        s.IsActive,
		tags:            slices.Clone(s.Tags),
		usageCount:      s.UsageCount,
		lastUsedAt:      cloneTime(s.LastUsedAt),
		createdBy:       s.CreatedBy,
		organizationID:  s.OrganizationID,
		previewImageURL: s.PreviewImageURL,
		createdAt:       s.CreatedAt,
		updatedAt:       s.UpdatedAt,
		versioned:       versioned{version: s.Version},
	}
}

func (t *ReportTemplate) Snapshot() ReportTemplateSnapshot {
	return ReportTemplateSnapshot{
		ID:              t.id,
		Name:            t.name,
		Description:     t.description,
		Type:            t.templateType,
		Category:        t.category,
		Config:          t.config.Clone(),
		Layout:          t.layout,
		Styling:         t.styling,
		IsSystem:        t.isSystem,
		IsActive:        t.isActive,
		Tags:            slices.Clone(t.tags),
		UsageCount:      t.usageCount,
		LastUsedAt:      cloneTime(t.lastUsedAt),
		CreatedBy:       t.createdBy,
		OrganizationID:  t.organizationID,
		PreviewImageURL: t.previewImageURL,
		CreatedAt:       t.createdAt,
		UpdatedAt:       t.updatedAt,
		Version:         t.version,
	}
}

func (t *ReportTemplate) ID() ID                  { return t.id }
func (t *ReportTemplate) Name() string            { return t.name }
func (t *ReportTemplate) Description() string     { return t.description }
func (t *ReportTemplate) Type() TemplateType      { return t.templateType }
func (t *ReportTemplate) Category() string        { return t.category }
func (t *ReportTemplate) Config() ReportConfig    { return t.config.Clone() }
func (t *ReportTemplate) Layout() LayoutConfig    { return t.layout }
func (t *ReportTemplate) Styling() StylingConfig  { return t.styling }
func (t *ReportTemplate) IsSystem() bool          { return t.isSystem }
func (t *ReportTemplate) IsActive() bool          { return t.isActive }
func (t *ReportTemplate) Tags() []string          { return slices.Clone(t.tags) }
func (t *ReportTemplate) UsageCount() int         { return t.usageCount }
func (t *ReportTemplate) LastUsedAt() *time.Time  { return cloneTime(t.lastUsedAt) }
func (t *ReportTemplate) CreatedBy() ID           { return t.createdBy }
func (t *ReportTemplate) OrganizationID() ID      { return t.organizationID }
func (t *ReportTemplate) PreviewImageURL() string { return t.previewImageURL }
func (t *ReportTemplate) CreatedAt() time.Time    { return t.createdAt }
func (t *ReportTemplate) UpdatedAt() time.Time    { return t.updatedAt }

// UpdateName renames a non-system template.
func (t *ReportTemplate) UpdateName(name string) error {
	if t.isSystem {
		return violation(RuleSystemTemplateImmutable, "system template %s cannot be renamed", t.id)
	}
	return t.rename(name)
}

// UpdateNameAsSystem renames a system template. It is the administrative path
// and refuses ordinary templates.
func (t *ReportTemplate) UpdateNameAsSystem(name string) error {
	if !t.isSystem {
		return violation(RuleNotSystemTemplate, "template %s is not a system template", t.id)
	}
	return t.rename(name)
}

func (t *ReportTemplate) rename(name string) error {
	name = strings.TrimSpace(name)
	if err := validation.Length("name", name, maxTitleLength); err != nil {
		return err
	}
	old := t.name
	t.name = name
	t.touch("report_template.name_updated", "name", old, name)
	return nil
}

func (t *ReportTemplate) UpdateDescription(description string) error {
	if err := validation.MaxLength("description", description, maxDescriptionLength); err != nil {
		return err
	}
	old := t.description
	t.description = description
	t.touch("report_template.description_updated", "description", old, description)
	return nil
}

// UpdateDefinition replaces config, layout and styling together.
func (t *ReportTemplate) UpdateDefinition(config ReportConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	old := t.config
	t.config = config.Clone()
	t.layout = config.Layout
	t.styling = config.Styling
	t.touch("report_template.definition_updated", "config", old, config.Clone())
	return nil
}

func (t *ReportTemplate) UpdatePreviewImage(url string) error {
	if url != "" {
		if err := validation.URL("previewImageUrl", url); err != nil {
			return err
		}
	}
	old := t.previewImageURL
	t.previewImageURL = url
	t.touch("report_template.preview_updated", "previewImageUrl", old, url)
	return nil
}

// AddTag adds a tag unless it is already present. The tag set is capped at
// MaxTemplateTags.
func (t *ReportTemplate) AddTag(tag string) error {
	tag = strings.TrimSpace(tag)
	if err := validation.Length("tag", tag, maxTagLength); err != nil {
		return err
	}
	if slices.Contains(t.tags, tag) {
		return nil
	}
	if len(t.tags) >= MaxTemplateTags {
		return violation(RuleTemplateTagLimitExceeded, "template %s already has %d tags", t.id, MaxTemplateTags)
	}
	old := slices.Clone(t.tags)
	t.tags = append(t.tags, tag)
	t.touch("report_template.tag_added", "tags", old, slices.Clone(t.tags))
	return nil
}

func (t *ReportTemplate) RemoveTag(tag string) {
	tag = strings.TrimSpace(tag)
	index := slices.Index(t.tags, tag)
	if index < 0 {
		return
	}
	old := slices.Clone(t.tags)
	t.tags = slices.Delete(t.tags, index, index+1)
	t.touch("report_template.tag_removed", "tags", old, slices.Clone(t.tags))
}

// IncrementUsage counts one instantiation. It touches nothing but the usage
// counter and lastUsedAt.
func (t *ReportTemplate) IncrementUsage() {
	now := nowFunc()
	old := t.usageCount
	t.usageCount++
	t.lastUsedAt = &now
	t.record(Event{
		Name:          "report_template.used",
		AggregateType: templateAggregate,
		AggregateID:   t.id,
		Field:         "usageCount",
		OldValue:      old,
		NewValue:      t.usageCount,
		OccurredAt:    now,
	})
}

func (t *ReportTemplate) Activate() {
	if t.isActive {
		return
	}
	t.isActive = true
	t.touch("report_template.activated", "isActive", false, true)
}

func (t *ReportTemplate) Deactivate() error {
	if t.isSystem {
		return violation(RuleSystemTemplateDeactivation, "system template %s cannot be deactivated", t.id)
	}
	if !t.isActive {
		return nil
	}
	t.isActive = false
	t.touch("report_template.deactivated", "isActive", true, false)
	return nil
}

// ReportParams seeds a report from this template. The caller supplies the
// title and author and must call IncrementUsage once the report is saved.
func (t *ReportTemplate) ReportParams(title string, createdBy, organizationID ID) (NewReportParams, error) {
	if !t.isActive {
		return NewReportParams{}, violation(RuleTemplateInactive, "template %s is not active", t.id)
	}
	config := t.config.Clone()
	config.Layout = t.layout
	config.Styling = t.styling
	return NewReportParams{
		Title:          title,
		Description:    t.description,
		Config:         config,
		TemplateID:     t.id,
		CreatedBy:      createdBy,
		OrganizationID: organizationID,
		Metadata:       map[string]any{"templateName": t.name},
	}, nil
}

func (t *ReportTemplate) touch(name, field string, oldValue, newValue any) {
	t.updatedAt = nowFunc()
	t.record(Event{
		Name:          name,
		AggregateType: templateAggregate,
		AggregateID:   t.id,
		Field:         field,
		OldValue:      oldValue,
		NewValue:      newValue,
		OccurredAt:    t.updatedAt,
	})
}

func validateTags(tags []string) error {
	if err := validation.ArrayLength("tags", len(tags), 0, MaxTemplateTags); err != nil {
		return err
	}
	return validation.NonEmptyStrings("tags", tags, maxTagLength)
}

func dedupeTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if !slices.Contains(result, tag) {
			result = append(result, tag)
		}
	}
	return result
}
