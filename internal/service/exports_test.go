package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/queue"
)

func requestExport(t *testing.T, f *fixture, reportID domain.ID) *domain.ExportJob {
	t.Helper()
	job, err := f.exports.Request(context.Background(), RequestExportInput{
		ReportID:       reportID,
		Format:         domain.ExportFormatCSV,
		UserID:         testAuthor,
		OrganizationID: testOrg,
		Options:        json.RawMessage(`{"notify":"owner@example.com"}`),
	})
	require.NoError(t, err)
	return job
}

func TestExportServiceRequestEnqueuesMaskedPayload(t *testing.T) {
	f := newFixture(t)
	report := f.createReport(t, "Sales")
	job := requestExport(t, f, report.ID())

	assert.Equal(t, domain.ExportJobStatusPending, job.Status())
	require.NotEmpty(t, job.QueueJobID())

	require.Len(t, f.queue.messages, 1)
	message := f.queue.messages[0]
	assert.Equal(t, domain.JobTypeExport, message.Type)
	assert.Equal(t, job.ID().String(), message.ExportJobID)
	assert.Equal(t, job.QueueJobID(), message.QueueJobID)

	var payload domain.ExportPayload
	require.NoError(t, json.Unmarshal(message.Payload, &payload))
	assert.Equal(t, report.ID().String(), payload.ReportID)
	assert.Equal(t, domain.ExportFormatCSV, payload.Format)
	assert.NotContains(t, string(payload.Options), "owner@example.com")

	stored, err := f.exports.Get(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, job.QueueJobID(), stored.QueueJobID())
	assert.Equal(t, 1, stored.Version(), "job is saved once before it is queued")
}

func TestExportServiceRejectsArchivedReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.createReport(t, "Sales")
	config := publishableConfig()
	_, err := f.reports.Update(ctx, report.ID(), UpdateReportInput{Config: &config})
	require.NoError(t, err)
	_, err = f.reports.Publish(ctx, report.ID())
	require.NoError(t, err)
	_, err = f.reports.Archive(ctx, report.ID())
	require.NoError(t, err)

	_, err = f.exports.Request(ctx, RequestExportInput{
		ReportID:       report.ID(),
		Format:         domain.ExportFormatPDF,
		UserID:         testAuthor,
		OrganizationID: testOrg,
	})
	requireRule(t, err, domain.RuleExportOfArchivedReport)
	assert.Empty(t, f.queue.messages)
}

func TestExportServiceEnqueueFailureLeavesRetryableJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.createReport(t, "Sales")
	f.queue.addErr = errors.New("redis down")

	job, err := f.exports.Request(ctx, RequestExportInput{
		ReportID:       report.ID(),
		Format:         domain.ExportFormatJSON,
		UserID:         testAuthor,
		OrganizationID: testOrg,
	})
	require.Error(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.ExportJobStatusFailed, job.Status())
	assert.Contains(t, job.ErrorMessage(), "redis down")

	failedQueueJobID := job.QueueJobID()

	f.queue.addErr = nil
	retried, err := f.exports.Retry(ctx, job.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.ExportJobStatusPending, retried.Status())
	assert.Empty(t, retried.ErrorMessage())
	require.Len(t, f.queue.messages, 1)
	assert.Equal(t, f.queue.messages[0].QueueJobID, retried.QueueJobID())
	assert.NotEqual(t, failedQueueJobID, retried.QueueJobID())
}

func TestExportServiceWorkerTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.createReport(t, "Sales")
	job := requestExport(t, f, report.ID())

	_, err := f.exports.Complete(ctx, job.ID(), domain.ExportResult{FilePath: "x.csv"})
	requireRule(t, err, domain.RuleInvalidExportJobTransition)

	_, err = f.exports.Begin(ctx, job.ID())
	require.NoError(t, err)
	done, err := f.exports.Complete(ctx, job.ID(), domain.ExportResult{
		FilePath:    "exports/x.csv",
		DownloadURL: "http://localhost/files/exports/x.csv",
		FileSize:    42,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExportJobStatusCompleted, done.Status())
	assert.NotNil(t, done.CompletedAt())

	_, err = f.exports.Cancel(ctx, job.ID())
	requireRule(t, err, domain.RuleInvalidExportJobTransition)

	jobs, err := f.exports.ListByReport(ctx, report.ID())
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestExportServiceCancelDropsQueuedMessage(t *testing.T) {
	f := newFixture(t)
	report := f.createReport(t, "Sales")
	job := requestExport(t, f, report.ID())

	cancelled, err := f.exports.Cancel(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.ExportJobStatusCancelled, cancelled.Status())
	assert.Equal(t, []string{job.QueueJobID()}, f.queue.cancelled)
}

func TestExportServiceRequestScheduledUsesDeliveryFormat(t *testing.T) {
	f := newFixture(t)
	report := f.createReport(t, "Sales")
	schedule := createSchedule(t, f, report.ID(), "Daily sales")

	job, err := f.exports.RequestScheduled(context.Background(), schedule)
	require.NoError(t, err)
	assert.Equal(t, domain.ExportFormatCSV, job.Format())
	assert.True(t, job.ScheduledReportID().Equals(schedule.ID()))
	assert.True(t, job.UserID().Equals(testAuthor))
}

func TestExportServiceWithLocalQueue(t *testing.T) {
	f := newFixture(t)
	local := queue.NewLocalQueue(4, 1, zaptest.NewLogger(t))
	exports := NewExportService(f.exportRepo, f.reportRepo, queue.NewClient(local, local), f.sink)
	report := f.createReport(t, "Sales")

	job, err := exports.Request(context.Background(), RequestExportInput{
		ReportID:       report.ID(),
		Format:         domain.ExportFormatHTML,
		UserID:         testAuthor,
		OrganizationID: testOrg,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.QueueJobID())
	assert.Equal(t, 1, local.Len())

	_, err = exports.Cancel(context.Background(), job.ID())
	require.NoError(t, err)
	cancelled, err := local.IsCancelled(context.Background(), job.QueueJobID())
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestExportServiceRequestSurvivesConcurrentWorker(t *testing.T) {
	f := newFixture(t)
	local := queue.NewLocalQueue(512, 1, zaptest.NewLogger(t))
	exports := NewExportService(f.exportRepo, f.reportRepo, queue.NewClient(local, local), f.sink)
	report := f.createReport(t, "Sales")

	ctx, cancel := context.WithCancel(context.Background())
	consumed := make(chan struct{})
	var handled atomic.Int64
	var beginErrs []error
	go func() {
		defer close(consumed)
		_ = local.Consume(ctx, func(ctx context.Context, message domain.QueueMessage) error {
			defer handled.Add(1)
			id, err := domain.ParseID(message.ExportJobID)
			if err != nil {
				return err
			}
			if _, err := exports.Begin(ctx, id); err != nil {
				beginErrs = append(beginErrs, err)
			}
			return nil
		})
	}()

	const requests = 200
	jobs := make([]*domain.ExportJob, 0, requests)
	for i := 0; i < requests; i++ {
		job, err := exports.Request(context.Background(), RequestExportInput{
			ReportID:       report.ID(),
			Format:         domain.ExportFormatCSV,
			UserID:         testAuthor,
			OrganizationID: testOrg,
		})
		require.NoError(t, err, "request %d", i)
		jobs = append(jobs, job)
	}

	require.Eventually(t, func() bool { return handled.Load() == requests }, 5*time.Second, 5*time.Millisecond)
	cancel()
	<-consumed
	assert.Empty(t, beginErrs)

	for _, job := range jobs {
		stored, err := exports.Get(context.Background(), job.ID())
		require.NoError(t, err)
		assert.Equal(t, domain.ExportJobStatusProcessing, stored.Status())
		assert.Equal(t, job.QueueJobID(), stored.QueueJobID())
		assert.NotEmpty(t, stored.QueueJobID())
	}
}

func TestExportServiceCancelRecordsScheduledRunAsFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.createReport(t, "Sales")
	schedule := createSchedule(t, f, report.ID(), "Daily sales")

	job, err := f.exports.RequestScheduled(ctx, schedule)
	require.NoError(t, err)
	_, err = f.exports.Cancel(ctx, job.ID())
	require.NoError(t, err)

	updated, err := f.schedules.Get(ctx, schedule.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ExecutionCount())
	assert.Equal(t, 1, updated.FailureCount())
	assert.NotNil(t, updated.LastExecutedAt())
	assert.Equal(t, []string{job.QueueJobID()}, f.queue.cancelled)
}

func TestExportServiceCancelOfAdHocExportRecordsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.createReport(t, "Sales")
	schedule := createSchedule(t, f, report.ID(), "Daily sales")
	job := requestExport(t, f, report.ID())

	_, err := f.exports.Cancel(ctx, job.ID())
	require.NoError(t, err)

	unchanged, err := f.schedules.Get(ctx, schedule.ID())
	require.NoError(t, err)
	assert.Zero(t, unchanged.ExecutionCount())
}
