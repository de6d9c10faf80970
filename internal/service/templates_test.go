package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/reportflow/internal/domain"
)

func createTemplate(t *testing.T, f *fixture, name string, system bool) *domain.ReportTemplate {
	t.Helper()
	config := publishableConfig()
	template, err := f.templates.Create(context.Background(), CreateTemplateInput{
		Name:           name,
		Description:    "Monthly revenue by region",
		Type:           domain.TemplateTypeDashboard,
		Category:       "finance",
		Config:         &config,
		IsSystem:       system,
		Tags:           []string{"finance"},
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	require.NoError(t, err)
	return template
}

func TestTemplateServiceRejectsDuplicateName(t *testing.T) {
	f := newFixture(t)
	createTemplate(t, f, "Revenue", false)

	_, err := f.templates.Create(context.Background(), CreateTemplateInput{
		Name:           "revenue",
		Type:           domain.TemplateTypeTable,
		Category:       "finance",
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	requireRule(t, err, domain.RuleTemplateNameTaken)
}

func TestTemplateServiceInstantiateCreatesDraftAndCountsUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := createTemplate(t, f, "Revenue", false)

	report, err := f.templates.Instantiate(ctx, template.ID(), InstantiateTemplateInput{
		Title:          "Revenue March",
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	require.NoError(t, err)
	assert.True(t, report.Status().IsDraft())
	assert.True(t, report.TemplateID().Equals(template.ID()))
	assert.Len(t, report.Config().Components, 1)

	stored, err := f.templates.Get(ctx, template.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsageCount())
	assert.NotNil(t, stored.LastUsedAt())
}

func TestTemplateServiceInstantiateDoesNotCountFailedReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := createTemplate(t, f, "Revenue", false)
	f.createReport(t, "Revenue March")

	_, err := f.templates.Instantiate(ctx, template.ID(), InstantiateTemplateInput{
		Title:          "Revenue March",
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	requireRule(t, err, domain.RuleReportTitleTaken)

	stored, err := f.templates.Get(ctx, template.ID())
	require.NoError(t, err)
	assert.Zero(t, stored.UsageCount())
}

func TestTemplateServiceInactiveTemplateCannotBeInstantiated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := createTemplate(t, f, "Revenue", false)

	_, err := f.templates.Deactivate(ctx, template.ID())
	require.NoError(t, err)

	_, err = f.templates.Instantiate(ctx, template.ID(), InstantiateTemplateInput{
		Title:          "Revenue March",
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	requireRule(t, err, domain.RuleTemplateInactive)

	active, err := f.templates.ListActive(ctx, testOrg)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestTemplateServiceSystemTemplateGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := createTemplate(t, f, "Executive summary", true)

	name := "Board summary"
	_, err := f.templates.Update(ctx, template.ID(), UpdateTemplateInput{Name: &name})
	requireRule(t, err, domain.RuleSystemTemplateImmutable)

	renamed, err := f.templates.Update(ctx, template.ID(), UpdateTemplateInput{Name: &name, AsSystem: true})
	require.NoError(t, err)
	assert.Equal(t, "Board summary", renamed.Name())

	_, err = f.templates.Deactivate(ctx, template.ID())
	requireRule(t, err, domain.RuleSystemTemplateDeactivation)

	err = f.templates.Delete(ctx, template.ID())
	requireRule(t, err, domain.RuleSystemTemplateImmutable)
}

func TestTemplateServiceTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := createTemplate(t, f, "Revenue", false)

	updated, err := f.templates.AddTag(ctx, template.ID(), "monthly")
	require.NoError(t, err)
	assert.Equal(t, []string{"finance", "monthly"}, updated.Tags())

	updated, err = f.templates.RemoveTag(ctx, template.ID(), "finance")
	require.NoError(t, err)
	assert.Equal(t, []string{"monthly"}, updated.Tags())
}
