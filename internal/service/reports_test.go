package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/repository"
)

func TestReportServiceCreatePublishesEventsAfterSave(t *testing.T) {
	f := newFixture(t)
	report := f.createReport(t, "Quarterly sales")

	stored, err := f.reports.Get(context.Background(), report.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusDraft, stored.Status())
	assert.Equal(t, 1, stored.Version())
	assert.Equal(t, []string{"report.created"}, f.sink.names())
}

func TestReportServiceRejectsDuplicateTitleInOrganization(t *testing.T) {
	f := newFixture(t)
	f.createReport(t, "Quarterly sales")

	_, err := f.reports.Create(context.Background(), CreateReportInput{
		Title:          "  quarterly SALES ",
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	requireRule(t, err, domain.RuleReportTitleTaken)

	other := domain.MustParseID("corg000000000000000000002")
	_, err = f.reports.Create(context.Background(), CreateReportInput{
		Title:          "Quarterly sales",
		CreatedBy:      testAuthor,
		OrganizationID: other,
	})
	assert.NoError(t, err)
}

func TestReportServiceRejectsActiveContent(t *testing.T) {
	f := newFixture(t)
	_, err := f.reports.Create(context.Background(), CreateReportInput{
		Title:          "Unsafe",
		Content:        json.RawMessage(`{"body":"<script>alert(1)</script>"}`),
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	requireValidation(t, err, "content")
}

func TestReportServiceUpdateIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	report := f.createReport(t, "Quarterly sales")
	f.createReport(t, "Taken")

	title := "Taken"
	description := "should not persist"
	_, err := f.reports.Update(context.Background(), report.ID(), UpdateReportInput{
		Description: &description,
		Title:       &title,
	})
	requireRule(t, err, domain.RuleReportTitleTaken)

	stored, err := f.reports.Get(context.Background(), report.ID())
	require.NoError(t, err)
	assert.Equal(t, "Quarterly sales", stored.Title())
	assert.Empty(t, stored.Description())
}

func TestReportServiceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.createReport(t, "Quarterly sales")

	_, err := f.reports.Publish(ctx, report.ID())
	requireRule(t, err, domain.RuleInvalidConfigForPublish)

	config := publishableConfig()
	_, err = f.reports.Update(ctx, report.ID(), UpdateReportInput{Config: &config})
	require.NoError(t, err)

	published, err := f.reports.Publish(ctx, report.ID())
	require.NoError(t, err)
	assert.True(t, published.Status().IsPublished())

	_, err = f.reports.Update(ctx, report.ID(), UpdateReportInput{Config: &config})
	requireRule(t, err, domain.RulePublishedReportConfigImmutable)

	archived, err := f.reports.Archive(ctx, report.ID())
	require.NoError(t, err)
	assert.True(t, archived.Status().IsArchived())

	restored, err := f.reports.Restore(ctx, report.ID())
	require.NoError(t, err)
	assert.True(t, restored.Status().IsPublished())

	require.NoError(t, f.reports.Delete(ctx, report.ID()))
	_, err = f.reports.Get(ctx, report.ID())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReportServiceMissingReport(t *testing.T) {
	f := newFixture(t)
	_, err := f.reports.Publish(context.Background(), domain.NewID())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
