package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/reportflow/internal/domain"
)

func TestVersionedTableStatements(t *testing.T) {
	table := versionedTable{name: "widgets", entity: "widget", columns: []string{"id", "name", "size"}}

	assert.Equal(t, "id, name, size, version", table.selectList())
	assert.Equal(t,
		"INSERT INTO widgets (id, name, size, version) VALUES ($1, $2, $3, 1) RETURNING version",
		table.insertSQL())
	assert.Equal(t,
		"UPDATE widgets SET name = $2, size = $3, version = version + 1 WHERE id = $1 AND version = $4 RETURNING version",
		table.updateSQL())
}

func TestPostgresUpdateNeverInserts(t *testing.T) {
	for _, table := range []versionedTable{reportTable, templateTable, scheduledReportTable, exportJobTable} {
		assert.NotContains(t, table.updateSQL(), "INSERT", table.name)
		assert.NotContains(t, table.insertSQL(), "ON CONFLICT", table.name)
	}
}

func TestRejectedSaveMatchesMemoryStores(t *testing.T) {
	cases := []struct {
		name     string
		stored   int
		exists   bool
		incoming int
		want     error
	}{
		{name: "deleted row", stored: 0, exists: false, incoming: 3, want: ErrNotFound},
		{name: "stale version", stored: 4, exists: true, incoming: 3, want: ErrConcurrentModification},
		{name: "concurrent create", stored: 1, exists: true, incoming: 0, want: ErrConcurrentModification},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := nextVersion(tc.stored, tc.exists, tc.incoming)
			require.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, rejectedSave(tc.incoming, tc.exists), tc.want)
		})
	}
}

func TestPostgresValuesCoverEveryColumn(t *testing.T) {
	report := newReport(t, "Sales", orgA)
	values, err := reportValues(report.Snapshot())
	require.NoError(t, err)
	assert.Len(t, values, len(reportTable.columns))
	assert.Equal(t, report.ID().String(), values[0])

	template, err := domain.NewReportTemplate(domain.NewReportTemplateParams{
		Name:      "Ops",
		Type:      domain.TemplateTypeTable,
		Category:  "ops",
		Config:    domain.DefaultReportConfig(),
		CreatedBy: authorID,
	})
	require.NoError(t, err)
	values, err = templateValues(template.Snapshot())
	require.NoError(t, err)
	assert.Len(t, values, len(templateTable.columns))
	assert.Equal(t, []string{}, values[10], "tags are never stored as NULL")

	scheduled, err := domain.NewScheduledReport(domain.NewScheduledReportParams{
		Name:           "Daily",
		ReportID:       report.ID(),
		ScheduleConfig: domain.ScheduleConfig{Frequency: domain.FrequencyDaily, Hour: 6, Timezone: "UTC"},
		DeliveryConfig: domain.DeliveryConfig{Method: domain.DeliveryMethodDownload, Format: domain.DeliveryFormatCSV},
		CreatedBy:      authorID,
	})
	require.NoError(t, err)
	values, err = scheduledReportValues(scheduled.Snapshot())
	require.NoError(t, err)
	assert.Len(t, values, len(scheduledReportTable.columns))

	job, err := domain.NewExportJob(domain.NewExportJobParams{ReportID: report.ID(), Format: domain.ExportFormatCSV, UserID: authorID})
	require.NoError(t, err)
	values = exportJobValues(job.Snapshot())
	assert.Len(t, values, len(exportJobTable.columns))
	assert.Nil(t, values[2], "ad hoc export has no schedule")
}
