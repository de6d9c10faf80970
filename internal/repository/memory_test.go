package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/reportflow/internal/domain"
)

var (
	authorID = domain.MustParseID("cauthor0000000000000000001")
	orgA     = domain.MustParseID("corga00000000000000000001")
	orgB     = domain.MustParseID("corgb00000000000000000001")
)

func newReport(t *testing.T, title string, org domain.ID) *domain.Report {
	t.Helper()
	report, err := domain.NewReport(domain.NewReportParams{
		Title:          title,
		Config:         domain.DefaultReportConfig(),
		CreatedBy:      authorID,
		OrganizationID: org,
	})
	require.NoError(t, err)
	return report
}

func TestMemoryReportRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReportRepository()
	report := newReport(t, "Revenue", orgA)

	require.NoError(t, repo.Save(ctx, report))
	assert.Equal(t, 1, report.Version())

	loaded, err := repo.FindByID(ctx, report.ID())
	require.NoError(t, err)
	assert.Equal(t, report.Snapshot(), loaded.Snapshot())

	require.NoError(t, loaded.UpdateMetadata(map[string]any{"k": "v"}))
	stored, err := repo.FindByID(ctx, report.ID())
	require.NoError(t, err)
	assert.Empty(t, stored.Metadata(), "mutating a loaded copy must not leak into the store")

	require.NoError(t, repo.Delete(ctx, report.ID()))
	_, err = repo.FindByID(ctx, report.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, report.ID()), ErrNotFound)
}

func TestMemoryReportRepositoryOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReportRepository()
	report := newReport(t, "Revenue", orgA)
	require.NoError(t, repo.Save(ctx, report))

	first, err := repo.FindByID(ctx, report.ID())
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, report.ID())
	require.NoError(t, err)

	require.NoError(t, first.UpdateTitle("First"))
	require.NoError(t, second.UpdateTitle("Second"))

	require.NoError(t, repo.Save(ctx, first))
	assert.Equal(t, 2, first.Version())
	assert.True(t, errors.Is(repo.Save(ctx, second), ErrConcurrentModification))

	stored, err := repo.FindByID(ctx, report.ID())
	require.NoError(t, err)
	assert.Equal(t, "First", stored.Title())
}

func TestMemoryReportRepositoryExistsByTitle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReportRepository()
	report := newReport(t, "Revenue", orgA)
	require.NoError(t, repo.Save(ctx, report))

	exists, err := repo.ExistsByTitle(ctx, orgA, " revenue ", domain.ID{})
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByTitle(ctx, orgA, "Revenue", report.ID())
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsByTitle(ctx, orgB, "Revenue", domain.ID{})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryReportRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReportRepository()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(ctx, newReport(t, "Sales "+strings.Repeat("x", i+1), orgA)))
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, repo.Save(ctx, newReport(t, "Churn", orgB)))

	items, total, err := repo.List(ctx, ListFilter{OrganizationID: orgA, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.Equal(t, "Sales xxxxx", items[0].Title())

	items, total, err = repo.List(ctx, ListFilter{OrganizationID: orgA, Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, items, 1)

	items, _, err = repo.List(ctx, ListFilter{OrganizationID: orgA, Page: 9})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, total, err = repo.List(ctx, ListFilter{Search: "churn"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Churn", items[0].Title())

	_, total, err = repo.List(ctx, ListFilter{Status: domain.ReportStatusPublished.String()})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMemoryTemplateRepositoryListActive(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTemplateRepository()

	create := func(name string, org domain.ID, system bool) *domain.ReportTemplate {
		template, err := domain.NewReportTemplate(domain.NewReportTemplateParams{
			Name:           name,
			Type:           domain.TemplateTypeTable,
			Category:       "ops",
			Config:         domain.DefaultReportConfig(),
			IsSystem:       system,
			CreatedBy:      authorID,
			OrganizationID: org,
		})
		require.NoError(t, err)
		return template
	}

	popular := create("Popular", orgA, false)
	popular.IncrementUsage()
	inactive := create("Inactive", orgA, false)
	require.NoError(t, inactive.Deactivate())
	system := create("System", domain.ID{}, true)
	other := create("Other org", orgB, false)

	for _, template := range []*domain.ReportTemplate{popular, inactive, system, other} {
		require.NoError(t, repo.Save(ctx, template))
	}

	active, err := repo.ListActive(ctx, orgA)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Popular", active[0].Name())
	assert.Equal(t, "System", active[1].Name())

	exists, err := repo.ExistsByName(ctx, orgA, "popular", domain.ID{})
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryScheduledReportRepositoryListDue(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryScheduledReportRepository()
	reportID := domain.NewID()

	create := func(name string, hour int) *domain.ScheduledReport {
		scheduled, err := domain.NewScheduledReport(domain.NewScheduledReportParams{
			Name:           name,
			ReportID:       reportID,
			ScheduleConfig: domain.ScheduleConfig{Frequency: domain.FrequencyDaily, Hour: hour, Timezone: "UTC"},
			DeliveryConfig: domain.DeliveryConfig{Method: domain.DeliveryMethodDownload, Format: domain.DeliveryFormatCSV},
			CreatedBy:      authorID,
			OrganizationID: orgA,
		})
		require.NoError(t, err)
		return scheduled
	}

	early := create("early", 1)
	late := create("late", 2)
	paused := create("paused", 0)
	paused.Pause()
	for _, s := range []*domain.ScheduledReport{late, early, paused} {
		require.NoError(t, repo.Save(ctx, s))
	}

	horizon := late.NextExecutionAt()
	if early.NextExecutionAt().After(horizon) {
		horizon = early.NextExecutionAt()
	}

	due, err := repo.ListDue(ctx, horizon, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.False(t, due[0].NextExecutionAt().After(due[1].NextExecutionAt()))

	due, err = repo.ListDue(ctx, horizon, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	due, err = repo.ListDue(ctx, horizon.Add(-48*time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMemoryExportJobRepositoryListByReport(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryExportJobRepository()
	reportID := domain.NewID()

	for _, format := range []domain.ExportFormat{domain.ExportFormatCSV, domain.ExportFormatPDF} {
		job, err := domain.NewExportJob(domain.NewExportJobParams{ReportID: reportID, Format: format, UserID: authorID})
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, job))
	}
	unrelated, err := domain.NewExportJob(domain.NewExportJobParams{ReportID: domain.NewID(), Format: domain.ExportFormatJSON, UserID: authorID})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, unrelated))

	jobs, err := repo.ListByReport(ctx, reportID)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	require.NoError(t, repo.Delete(ctx, unrelated.ID()))
	assert.ErrorIs(t, repo.Save(ctx, unrelated), ErrNotFound)
}

func TestBuildListFilters(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := buildListFilters("reports", ListFilter{
		OrganizationID: orgA,
		Status:         "DRAFT",
		From:           &from,
		Search:         "sales",
	}, "title", "description")

	assert.Equal(t,
		"FROM reports WHERE TRUE AND organization_id = $1 AND status = $2 AND created_at >= $3"+
			" AND (title ILIKE '%' || $4 || '%' OR description ILIKE '%' || $4 || '%')",
		query)
	assert.Equal(t, []any{orgA.String(), "DRAFT", from, "sales"}, args)

	page, pageArgs := pageClause(args, ListFilter{Page: 2, PageSize: 10})
	assert.Equal(t, " ORDER BY created_at DESC LIMIT $5 OFFSET $6", page)
	assert.Equal(t, 10, pageArgs[4])
	assert.Equal(t, 10, pageArgs[5])
}

func TestNextVersion(t *testing.T) {
	version, err := nextVersion(0, false, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	_, err = nextVersion(3, true, 2)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	_, err = nextVersion(0, false, 4)
	assert.ErrorIs(t, err, ErrNotFound)
}
